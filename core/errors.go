package core

import (
	"errors"
	"fmt"
)

// ErrInvalidSession is returned for ids that were stopped, faulted, or never issued.
var ErrInvalidSession = errors.New("core: invalid session")

// ErrCoreBusy is wrapped by CoreLoadError when a process-global core is already in use.
var ErrCoreBusy = errors.New("core busy")

type CoreLoadError struct {
	Core    string
	wrapped error
}

func NewCoreLoadError(core string, err error) *CoreLoadError {
	return &CoreLoadError{Core: core, wrapped: err}
}

func (e *CoreLoadError) Unwrap() error { return e.wrapped }
func (e *CoreLoadError) Error() string {
	return fmt.Sprintf("core %s: load failed: %v", e.Core, e.wrapped)
}

type RomRejectedError struct {
	Core    string
	Rom     string
	wrapped error
}

func NewRomRejectedError(core, rom string, err error) *RomRejectedError {
	return &RomRejectedError{Core: core, Rom: rom, wrapped: err}
}

func (e *RomRejectedError) Unwrap() error { return e.wrapped }
func (e *RomRejectedError) Error() string {
	if e.wrapped == nil {
		return fmt.Sprintf("core %s rejected rom %s", e.Core, e.Rom)
	}
	return fmt.Sprintf("core %s rejected rom %s: %v", e.Core, e.Rom, e.wrapped)
}

type UnsupportedError struct {
	Core       string
	Capability string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("core %s does not support %s", e.Core, e.Capability)
}

type CorruptStateError struct {
	Reason  string
	wrapped error
}

func (e *CorruptStateError) Unwrap() error { return e.wrapped }
func (e *CorruptStateError) Error() string {
	if e.wrapped == nil {
		return "corrupt state: " + e.Reason
	}
	return fmt.Sprintf("corrupt state: %s: %v", e.Reason, e.wrapped)
}

// CoreFaultError reports a panic or internal failure inside a core. The session is gone.
type CoreFaultError struct {
	Session SessionID
	Value   any
}

func (e *CoreFaultError) Error() string {
	return fmt.Sprintf("core fault in session %s: %v", e.Session, e.Value)
}

func (e *CoreFaultError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
