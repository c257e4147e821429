package models

import "github.com/google/uuid"

// ensureID assigns a v4 id before insert so rows created through sqlite in
// tests match the gen_random_uuid() default used on postgres.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
