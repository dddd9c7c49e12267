package postgres

import "github.com/google/uuid"

// newID mints a UUIDv7 for new rows, matching the teacher's
// monotonic-id convention for generated job/work ids.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
