package stream

import (
	"errors"
	"fmt"
	"os"
)

// Common stream errors. Where possible, these alias os package errors
// for compatibility with os.IsNotExist, os.IsExist, etc.
var (
	ErrNotFound         = os.ErrNotExist
	ErrConflict         = os.ErrExist
	ErrPermission       = os.ErrPermission
	ErrInvalid          = os.ErrInvalid
	ErrConfiguration    = errors.New("stream: invalid configuration")
	ErrInvalidResource  = errors.New("stream: invalid resource")
	ErrUnsupportedEvent = errors.New("stream: unsupported event")
	ErrClosed           = errors.New("stream: already closed")
	ErrNotSupported     = errors.New("stream: feature not supported by this resource")
	ErrWouldBlock       = errors.New("stream: operation would block")
	ErrFilterFatal      = errors.New("stream: filter failed")
)

// Error records a failed operation together with the resource, filter,
// protocol or context name it was applied to.
//
// Kind is one of the sentinel errors above, so callers can match it with
// errors.Is without caring about the underlying cause.
type Error struct {
	Op   string
	Name string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	msg := ""
	switch {
	case e.Err != nil:
		msg = e.Err.Error()
	case e.Kind != nil:
		msg = e.Kind.Error()
	}
	if e.Name == "" {
		return "stream: " + e.Op + ": " + msg
	}
	return fmt.Sprintf("stream: %s %q: %s", e.Op, e.Name, msg)
}

// Unwrap exposes both the kind and the cause.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

func newError(op, name string, kind error, format string, args ...any) error {
	return &Error{Op: op, Name: name, Kind: kind, Err: fmt.Errorf(format, args...)}
}

func wrapError(op, name string, kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Name: name, Kind: kind, Err: err}
}
