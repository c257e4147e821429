package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Metadata is a free-form JSON object persisted in a JSONB column.
type Metadata map[string]any

// Value serializes the map to JSON.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]any(m))
}

// Scan decodes JSONB into the map.
func (m *Metadata) Scan(value any) error {
	if value == nil {
		*m = Metadata{}
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("unsupported metadata scan type %T", value)
	}
	decoded := Metadata{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return err
		}
	}
	*m = decoded
	return nil
}

// Clone returns a shallow copy that is safe to mutate.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Merge copies every key of other into m, allocating when m is nil.
func (m Metadata) Merge(other map[string]any) Metadata {
	out := m
	if out == nil {
		out = Metadata{}
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// String returns the string stored under key, or "".
func (m Metadata) String(key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// Bool returns the bool stored under key.
func (m Metadata) Bool(key string) bool {
	if m == nil {
		return false
	}
	v, _ := m[key].(bool)
	return v
}
