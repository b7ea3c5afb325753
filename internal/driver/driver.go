// Package driver implements the copy state machine: a single-threaded,
// cooperative loop that primes reads, submits, blocks for completions,
// drains ready writes, and promotes ready reads into writes until the
// destination has received exactly N bytes.
package driver

import (
	"fmt"

	"github.com/pooh64/uring-cp/internal/interfaces"
	"github.com/pooh64/uring-cp/internal/ring"
)

// Driver runs one copy operation to completion. It is not safe for
// concurrent use; the state machine is single-threaded by design.
type Driver struct {
	ctx      *ring.Context
	inFD     int
	outFD    int
	n        int64
	logger   interfaces.Logger
	observer interfaces.Observer

	cursorIn  int64
	cursorOut int64
}

// Config configures a Driver.
type Config struct {
	Context  *ring.Context
	InFD     int
	OutFD    int
	N        int64 // total bytes to copy; must be >= 0
	Logger   interfaces.Logger
	Observer interfaces.Observer
}

// New constructs a Driver from cfg. N < 0 is caller misuse and returns
// an error.
func New(cfg Config) (*Driver, error) {
	if cfg.N < 0 {
		return nil, fmt.Errorf("driver: N must be non-negative, got %d", cfg.N)
	}
	if cfg.Context == nil {
		return nil, fmt.Errorf("driver: Config.Context is required")
	}
	observer := cfg.Observer
	if observer == nil {
		observer = interfaces.NoOpObserver{}
	}
	return &Driver{
		ctx:      cfg.Context,
		inFD:     cfg.InFD,
		outFD:    cfg.OutFD,
		n:        cfg.N,
		logger:   cfg.Logger,
		observer: observer,
	}, nil
}

// Run drives the copy to completion, returning once cursorOut == N or a
// fatal error occurs. N == 0 returns immediately without any submission.
func (d *Driver) Run() error {
	if d.n == 0 {
		return nil
	}

	for {
		if err := d.prime(); err != nil {
			return err
		}

		if _, err := d.ctx.Submit(); err != nil {
			return fmt.Errorf("driver: submit: %w", err)
		}

		if err := d.ctx.WaitOne(); err != nil {
			return d.translateAbort(err)
		}

		done, err := d.drainWrites()
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		if err := d.promote(); err != nil {
			return err
		}
	}
}

// prime fills the read FIFO while it has room and there is more source
// data to request.
func (d *Driver) prime() error {
	rq := d.ctx.ReadQueue()
	for !rq.Full() && d.cursorIn < d.n {
		if err := d.primeOne(); err != nil {
			return err
		}
	}
	return nil
}

// drainWrites pops every ready descriptor from the tail of the write
// FIFO, releases its buffer, and advances cursorOut. It reports
// done=true once cursorOut reaches N.
func (d *Driver) drainWrites() (done bool, err error) {
	wq := d.ctx.WriteQueue()
	for wq.Ready() {
		slot := wq.Pop()
		desc := slot.Value

		d.ctx.Arena().Free(desc.Buf)
		d.cursorOut += int64(desc.Len)
		d.observer.ObserveWrite(desc.Offset, desc.Len, 0, true)
		if d.logger != nil {
			d.logger.Debugf("write complete offset=%d len=%d cursor_out=%d/%d", desc.Offset, desc.Len, d.cursorOut, d.n)
		}

		if d.cursorOut >= d.n {
			return true, nil
		}
	}
	return false, nil
}

// promote converts ready reads into writes while the read FIFO's tail
// is ready and the write FIFO has room. After each promotion it primes
// one more read if source data remains.
func (d *Driver) promote() error {
	rq := d.ctx.ReadQueue()
	wq := d.ctx.WriteQueue()

	for rq.Ready() && !wq.Full() {
		slot := rq.Peek()
		desc := slot.Value

		if err := d.ctx.EnqueueWrite(d.outFD, desc.Buf, desc.Offset, desc.Len); err != nil {
			return fmt.Errorf("driver: promote: %w", err)
		}
		rq.Pop()
		d.observer.ObserveRead(desc.Offset, desc.Len, 0, true)

		if d.cursorIn < d.n {
			if err := d.primeOne(); err != nil {
				return err
			}
		}
	}
	return nil
}

// primeOne allocates and enqueues exactly one more read, used by
// promote to keep the read pipeline full after a promotion frees a
// read-FIFO slot.
func (d *Driver) primeOne() error {
	rq := d.ctx.ReadQueue()
	if rq.Full() {
		return nil
	}
	buf := d.ctx.Arena().Alloc()
	length := d.n - d.cursorIn
	if bs := int64(d.ctx.BlockSize()); length > bs {
		length = bs
	}
	if err := d.ctx.EnqueueRead(d.inFD, buf, d.cursorIn, int(length)); err != nil {
		d.ctx.Arena().Free(buf)
		return fmt.Errorf("driver: prime: %w", err)
	}
	d.cursorIn += length
	return nil
}

// translateAbort wraps a fatal ring error, surfacing the kernel errno
// when one is available.
func (d *Driver) translateAbort(err error) error {
	type errnoer interface{ Errno() int32 }
	if e, ok := err.(errnoer); ok {
		return fmt.Errorf("driver: copy aborted: %w (errno %d)", err, e.Errno())
	}
	return fmt.Errorf("driver: copy aborted: %w", err)
}

// CursorOut returns the number of bytes durably written so far. Useful
// for progress reporting after a fatal abort: the destination's content
// at offsets [0, CursorOut) is guaranteed to match the source.
func (d *Driver) CursorOut() int64 { return d.cursorOut }
