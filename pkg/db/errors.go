package db

import (
	"strings"

	pkgerrors "github.com/angelmondragon/packfinderz-fulfillment/pkg/errors"
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// IsUniqueViolation reports whether err is a unique constraint violation.
// When constraintName is set, only violations of that constraint match.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if code, constraint, ok := pgCode(err); ok {
		if code != pgUniqueViolation {
			return false
		}
		return constraintName == "" || constraint == constraintName
	}
	msg := err.Error()
	if constraintName != "" && !strings.Contains(msg, constraintName) {
		return false
	}
	return strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "UNIQUE constraint failed")
}

// IsSerializationFailure reports whether err is a serialization failure or a
// deadlock, both of which succeed when the whole unit of work is retried.
func IsSerializationFailure(err error) bool {
	code, _, ok := pgCode(err)
	if !ok {
		return false
	}
	return code == pgSerializationFailure || code == pgDeadlockDetected
}

func pgCode(err error) (code string, constraint string, ok bool) {
	pg, ok := pkgerrors.Postgres(err)
	return pg.Code, pg.Constraint, ok
}
