// Package ring wraps a kernel io_uring submission/completion ring and
// layers the FIFO/arena bookkeeping of a ring context on top of it. It
// is the one package in this module that talks to the kernel; everything
// above it (internal/driver) only ever sees request descriptors and
// Context methods.
//
// The Ring interface below wraps plain IORING_OP_READ/IORING_OP_WRITE
// SQEs against a file descriptor, which is what
// github.com/pawelgaczynski/giouring's SQE preparation helpers are built
// for, with a constructor picked by build tag for platform portability.
package ring

import "github.com/pooh64/uring-cp/internal/interfaces"

// Op identifies the kernel operation a submission performs.
type Op int

const (
	OpRead Op = iota
	OpWrite
)

func (o Op) String() string {
	if o == OpRead {
		return "read"
	}
	return "write"
}

// Completion is one reaped kernel completion.
type Completion struct {
	UserData uint64
	Res      int32 // >=0: bytes transferred; <0: -errno
}

// Ring is the minimal kernel io_uring surface the Context needs. A
// production build uses the giouring-backed implementation in
// ring_linux.go; tests and non-Linux builds use FakeRing / the stub in
// ring_stub.go.
type Ring interface {
	// Prepare stages one submission (a read or write of buf at offset
	// against fd) tagged with userData, without entering the kernel yet.
	// Returns ErrFull if no submission-queue slot is available.
	Prepare(op Op, fd int, buf []byte, offset int64, userData uint64) error

	// Submit flushes all staged submissions with a single syscall and
	// returns the number submitted.
	Submit() (int, error)

	// WaitOne blocks until at least one completion is available, then
	// drains every completion currently available without blocking
	// again.
	WaitOne() ([]Completion, error)

	// Close tears down the kernel ring. Ring teardown must happen before
	// the Context releases its FIFOs/arena.
	Close() error
}

// ErrFull is returned by Prepare when the kernel submission queue has
// no free slot. In correctly sized copies (arena == RQ_CAP+WQ_CAP, ring
// sized to match) this should never happen; it is surfaced as an error
// rather than a panic only because it originates below the FIFO layer
// that does the capacity bookkeeping.
type fullError struct{}

func (fullError) Error() string { return "ring: submission queue full" }

var ErrFull error = fullError{}

// Logger is re-exported so callers of New don't need to import
// internal/interfaces directly.
type Logger = interfaces.Logger
