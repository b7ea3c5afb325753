// Package uringcp implements an asynchronous file-copy pipeline: a
// double-buffered, back-pressured read/write pipeline over one io_uring
// instance, using a pre-allocated aligned block arena and two FIFO
// in-flight-request queues. Copy is the single public entry point;
// internal/arena, internal/fifo, internal/ring, and internal/driver
// implement the four components that make up the pipeline, wired
// together behind Options/Params, with construction errors wrapped in
// this package's own *Error rather than returned raw.
package uringcp

import (
	"fmt"
	"os"

	"github.com/pooh64/uring-cp/internal/driver"
	"github.com/pooh64/uring-cp/internal/interfaces"
	"github.com/pooh64/uring-cp/internal/ring"
)

// Params tunes the pipeline's resource shape: ring capacities and block
// size.
type Params struct {
	// BlockSize is the arena block size in bytes; must be a power of
	// two. It is not checked against MinBlockSize. Zero selects
	// DefaultParams as a whole.
	BlockSize int
	// ReadQueueCap is RQ_CAP, the read-ahead depth; must be a power of
	// two.
	ReadQueueCap int
	// WriteQueueCap is WQ_CAP, the write-ahead depth; must be a power
	// of two.
	WriteQueueCap int
}

// DefaultParams returns the package defaults: 128KiB blocks, 8 deep
// read-ahead and write-ahead.
func DefaultParams() Params {
	return Params{
		BlockSize:     DefaultBlockSize,
		ReadQueueCap:  DefaultReadQueueCap,
		WriteQueueCap: DefaultWriteQueueCap,
	}
}

// Options configures one Copy call.
type Options struct {
	Params   Params
	Logger   interfaces.Logger
	Observer interfaces.Observer
}

// Stats describes the outcome of a Copy call.
type Stats struct {
	// BytesWritten is the number of bytes durably written to out. On
	// success this equals N; on a failed copy it is the prefix of N
	// that completed before the failure.
	BytesWritten int64
}

// Copy transfers exactly n bytes from in to out using the pipeline,
// starting both files at offset 0 (arbitrary-offset copy is out of
// scope). out must already be extended to at least
// roundup(n, params.BlockSize) bytes; Copy truncates it to exactly n
// bytes on success.
//
// n == 0 returns immediately with no submissions.
func Copy(in, out *os.File, n int64, opts Options) (Stats, error) {
	params := opts.Params
	if params.BlockSize == 0 {
		params = DefaultParams()
	}
	if n < 0 {
		return Stats{}, NewError("Copy", CodeInvalid, fmt.Sprintf("n must be non-negative, got %d", n), nil)
	}

	kernel, err := ring.NewKernel(uint32(params.ReadQueueCap + params.WriteQueueCap))
	if err != nil {
		return Stats{}, NewError("Copy", CodeInvalid, "constructing kernel ring", err)
	}
	return copyWithRing(kernel, in, out, n, opts, params)
}

// CopyWithRing is Copy but with the kernel ring supplied by the
// caller, letting tests substitute a FakeRing (see testing.go) instead
// of a real io_uring instance. Production callers should use Copy.
func CopyWithRing(kernel ring.Ring, in, out *os.File, n int64, opts Options) (Stats, error) {
	params := opts.Params
	if params.BlockSize == 0 {
		params = DefaultParams()
	}
	if n < 0 {
		return Stats{}, NewError("Copy", CodeInvalid, fmt.Sprintf("n must be non-negative, got %d", n), nil)
	}
	return copyWithRing(kernel, in, out, n, opts, params)
}

func copyWithRing(kernel ring.Ring, in, out *os.File, n int64, opts Options, params Params) (Stats, error) {
	ctx, err := ring.NewContext(ring.Config{
		RQCap:     params.ReadQueueCap,
		WQCap:     params.WriteQueueCap,
		BlockSize: params.BlockSize,
		Kernel:    kernel,
		Logger:    opts.Logger,
		Observer:  opts.Observer,
	})
	if err != nil {
		return Stats{}, NewError("Copy", CodeInvalid, "constructing ring context", err)
	}
	defer ctx.Close()

	var inFD, outFD int
	if in != nil {
		inFD = int(in.Fd())
	}
	if out != nil {
		outFD = int(out.Fd())
	}

	drv, err := driver.New(driver.Config{
		Context:  ctx,
		InFD:     inFD,
		OutFD:    outFD,
		N:        n,
		Logger:   opts.Logger,
		Observer: opts.Observer,
	})
	if err != nil {
		return Stats{}, NewError("Copy", CodeInvalid, "constructing driver", err)
	}

	if err := drv.Run(); err != nil {
		stats := Stats{BytesWritten: drv.CursorOut()}
		if ae, ok := asAbort(err); ok {
			ioErr := NewIOError("Copy", ae.Errno(), err)
			return stats, &Error{Op: "Copy", Code: CodeAborted, Errno: ae.Errno(), Msg: err.Error(), Inner: ioErr}
		}
		return stats, NewError("Copy", CodeIO, "copy failed", err)
	}

	if out != nil {
		if err := out.Truncate(n); err != nil {
			return Stats{BytesWritten: n}, NewError("Copy", CodeIO, "truncating destination", err)
		}
	}
	return Stats{BytesWritten: n}, nil
}

type abortErrno interface {
	Errno() int32
}

func asAbort(err error) (abortErrno, bool) {
	for err != nil {
		if ae, ok := err.(abortErrno); ok {
			return ae, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return nil, false
}
