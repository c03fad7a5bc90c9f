package engine

import (
	"errors"
	"fmt"

	"playbyte/core"
	"playbyte/system"
)

// ErrNoFrame is returned by RenderThumbnail for a session that has not produced a frame yet.
var ErrNoFrame = errors.New("engine: no frame available for thumbnail")

// NoCoreError reports that no discovered core can run a system.
type NoCoreError struct {
	System system.System
}

func (e *NoCoreError) Error() string {
	return fmt.Sprintf("engine: no usable core for %s", e.System)
}

// CaptureUnsupportedError wraps the core's UnsupportedError when a Byte is
// requested from a session whose core cannot serialize.
type CaptureUnsupportedError struct {
	Session core.SessionID
	Core    string
	wrapped error
}

func (e *CaptureUnsupportedError) Unwrap() error { return e.wrapped }
func (e *CaptureUnsupportedError) Error() string {
	return fmt.Sprintf("engine: cannot create a Byte from session %s: %v", e.Session, e.wrapped)
}

// RomNotFoundError reports that the ROM a Byte was captured from is not under any configured root.
type RomNotFoundError struct {
	ByteID  string
	Hash    string
	Roots   []string
	wrapped error
}

func (e *RomNotFoundError) Unwrap() error { return e.wrapped }
func (e *RomNotFoundError) Error() string {
	return fmt.Sprintf("engine: byte %s needs rom sha1 %s, not found under %v", e.ByteID, e.Hash, e.Roots)
}
