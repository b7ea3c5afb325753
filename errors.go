package uringcp

import (
	"errors"
	"fmt"
)

// Code classifies an Error into a small taxonomy. It is not
// wire-format stable; callers should match on it with IsCode, not by
// formatting the error message.
type Code int

const (
	// CodeUnknown is the zero value; it should never appear on an Error
	// returned by this package.
	CodeUnknown Code = iota
	// CodeInvalid marks caller misuse: non-regular file, negative
	// length, non-power-of-two capacity.
	CodeInvalid
	// CodeExhausted marks a bounded resource (arena, FIFO) that is at
	// capacity when the caller expected room. Surfacing this as an error
	// rather than letting it panic is reserved for cases originating
	// below the layer that does capacity bookkeeping (ring.ErrFull);
	// anywhere the bookkeeping itself is violated it's a panic instead.
	CodeExhausted
	// CodeIO marks a permanent I/O failure reported by the kernel; Errno
	// carries the underlying value.
	CodeIO
	// CodeAborted marks a copy that stopped partway through after a
	// CodeIO failure. The Stats returned alongside the error describe
	// how much was durably written.
	CodeAborted
)

func (c Code) String() string {
	switch c {
	case CodeInvalid:
		return "invalid"
	case CodeExhausted:
		return "exhausted"
	case CodeIO:
		return "io"
	case CodeAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Error is the structured error type returned by every exported
// operation in this package: an Op/Code/Errno/Msg/Inner tuple that
// supports errors.Is/errors.Unwrap instead of string matching.
type Error struct {
	Op    string // the operation that failed, e.g. "Copy", "NewContext"
	Code  Code
	Errno int32 // raw kernel errno when a kernel failure carried one (CodeIO or CodeAborted), else 0
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	if e.Errno != 0 {
		return fmt.Sprintf("uringcp: %s: %s (errno %d): %s", e.Op, e.Code, e.Errno, e.Msg)
	}
	return fmt.Sprintf("uringcp: %s: %s: %s", e.Op, e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Inner }

// Is reports whether target is an *Error with the same Code, so
// callers can write errors.Is(err, &Error{Code: CodeIO}) without
// needing Errno or Msg to match.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError builds an *Error with no kernel errno attached.
func NewError(op string, code Code, msg string, inner error) *Error {
	return &Error{Op: op, Code: code, Msg: msg, Inner: inner}
}

// NewIOError builds a CodeIO *Error carrying the kernel's errno.
func NewIOError(op string, errno int32, inner error) *Error {
	return &Error{Op: op, Code: CodeIO, Errno: errno, Msg: "permanent I/O failure", Inner: inner}
}

// IsCode reports whether the first *Error in err's chain (err itself or
// the first one it wraps) has the given code. *Error values wrapped
// inside that first one are not consulted.
func IsCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
