package bytestore

import (
	"errors"
	"fmt"
)

// ErrExists is returned when publishing over an existing Byte id.
var ErrExists = errors.New("bytestore: byte already exists")

type ByteNotFoundError struct {
	ID string
}

func (e *ByteNotFoundError) Error() string {
	return fmt.Sprintf("byte %s not found", e.ID)
}

// CorruptContainerError reports a Byte whose files are missing, unreadable or
// do not match their metadata.
type CorruptContainerError struct {
	ID      string
	Reason  string
	wrapped error
}

func (e *CorruptContainerError) Unwrap() error { return e.wrapped }
func (e *CorruptContainerError) Error() string {
	if e.wrapped == nil {
		return fmt.Sprintf("byte %s is corrupt: %s", e.ID, e.Reason)
	}
	return fmt.Sprintf("byte %s is corrupt: %s: %v", e.ID, e.Reason, e.wrapped)
}

func corrupt(id, reason string, err error) *CorruptContainerError {
	return &CorruptContainerError{ID: id, Reason: reason, wrapped: err}
}
