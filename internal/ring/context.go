package ring

import (
	"fmt"

	"github.com/pooh64/uring-cp/internal/arena"
	"github.com/pooh64/uring-cp/internal/fifo"
	"github.com/pooh64/uring-cp/internal/interfaces"
)

// Context owns the kernel ring, both FIFOs, and the arena. Its lifetime
// encloses one copy operation; no Descriptor outlives it.
type Context struct {
	kernel    Ring
	arena     *arena.Arena
	rq        *fifo.FIFO[Descriptor]
	wq        *fifo.FIFO[Descriptor]
	blockSize int
	logger    interfaces.Logger
	observer  interfaces.Observer
}

// Config configures a Context. RQCap/WQCap must be powers of two and
// their sum must not overflow int.
type Config struct {
	RQCap     int
	WQCap     int
	BlockSize int
	Kernel    Ring // required; callers construct via NewKernel or NewFake
	Logger    interfaces.Logger
	Observer  interfaces.Observer
}

// errAbort is returned by WaitOne when a descriptor records a permanent
// kernel failure: the caller must abort the copy.
type errAbort struct {
	op     Op
	offset int64
	errno  int32
}

func (e *errAbort) Error() string {
	return fmt.Sprintf("ring: %s at offset %d failed: errno %d", e.op, e.offset, -e.errno)
}

// Errno returns the raw (positive) kernel errno recorded on the failed
// descriptor.
func (e *errAbort) Errno() int32 { return -e.errno }

// NewContext validates cfg and constructs a Context. Invalid capacities
// are caller misuse and return an error rather than panicking.
func NewContext(cfg Config) (*Context, error) {
	if cfg.RQCap <= 0 || cfg.RQCap&(cfg.RQCap-1) != 0 {
		return nil, fmt.Errorf("ring: RQCap must be a power of two, got %d", cfg.RQCap)
	}
	if cfg.WQCap <= 0 || cfg.WQCap&(cfg.WQCap-1) != 0 {
		return nil, fmt.Errorf("ring: WQCap must be a power of two, got %d", cfg.WQCap)
	}
	total := cfg.RQCap + cfg.WQCap
	if total <= 0 || total < cfg.RQCap { // overflow check
		return nil, fmt.Errorf("ring: RQCap+WQCap overflowed")
	}
	if cfg.Kernel == nil {
		return nil, fmt.Errorf("ring: Config.Kernel is required")
	}

	a, err := arena.New(total, cfg.BlockSize)
	if err != nil {
		return nil, fmt.Errorf("ring: %w", err)
	}
	rq, err := fifo.New[Descriptor](cfg.RQCap)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("ring: %w", err)
	}
	wq, err := fifo.New[Descriptor](cfg.WQCap)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("ring: %w", err)
	}

	observer := cfg.Observer
	if observer == nil {
		observer = interfaces.NoOpObserver{}
	}

	return &Context{
		kernel:    cfg.Kernel,
		arena:     a,
		rq:        rq,
		wq:        wq,
		blockSize: cfg.BlockSize,
		logger:    cfg.Logger,
		observer:  observer,
	}, nil
}

// Arena exposes the block allocator to the driver's prime step.
func (c *Context) Arena() *arena.Arena { return c.arena }

// ReadQueue exposes the read FIFO to the driver.
func (c *Context) ReadQueue() *fifo.FIFO[Descriptor] { return c.rq }

// WriteQueue exposes the write FIFO to the driver.
func (c *Context) WriteQueue() *fifo.FIFO[Descriptor] { return c.wq }

// BlockSize returns the arena block size this context was built with.
func (c *Context) BlockSize() int { return c.blockSize }

func encodeTag(kind Op, counter uint64) uint64 {
	const kindBit = uint64(1) << 63
	if kind == OpWrite {
		return kindBit | (counter &^ kindBit)
	}
	return counter &^ kindBit
}

func decodeTag(tag uint64) (Op, uint64) {
	const kindBit = uint64(1) << 63
	if tag&kindBit != 0 {
		return OpWrite, tag &^ kindBit
	}
	return OpRead, tag
}

// EnqueueRead stages a read of length bytes at offset against fd into
// buf (an arena-owned block), pushes it onto the read FIFO, and hands
// it to the kernel ring. It fails with an error if the read FIFO is
// full or the kernel ring has no free submission slot.
func (c *Context) EnqueueRead(fd int, buf arena.Buffer, offset int64, length int) error {
	return c.enqueue(OpRead, c.rq, fd, buf, offset, length)
}

// EnqueueWrite stages a write reusing buf (the same arena block a
// completed read populated), pushing onto the write FIFO.
func (c *Context) EnqueueWrite(fd int, buf arena.Buffer, offset int64, length int) error {
	return c.enqueue(OpWrite, c.wq, fd, buf, offset, length)
}

func (c *Context) enqueue(kind Op, q *fifo.FIFO[Descriptor], fd int, buf arena.Buffer, offset int64, length int) error {
	if q.Full() {
		return fmt.Errorf("ring: %s queue full", kind)
	}
	if length > buf.Len() {
		return fmt.Errorf("ring: logical length %d exceeds block size %d", length, buf.Len())
	}

	d := Descriptor{
		Kind:         kind,
		FD:           fd,
		Buf:          buf,
		Len:          length,
		Offset:       offset,
		SubmitOffset: offset,
		SubmitLen:    buf.Len(),
	}
	counter := q.NextCounter()
	slot := q.Push(d)

	submitBuf, submitOff := slot.Value.submitView()
	if err := c.kernel.Prepare(kind, fd, submitBuf, submitOff, encodeTag(kind, counter)); err != nil {
		return fmt.Errorf("ring: prepare %s: %w", kind, err)
	}
	if c.logger != nil {
		c.logger.Debugf("enqueue %s fd=%d offset=%d len=%d", kind, fd, offset, length)
	}
	return nil
}

// Submit flushes all staged kernel submissions with one syscall.
func (c *Context) Submit() (int, error) {
	return c.kernel.Submit()
}

// WaitOne blocks for at least one kernel completion and drains every
// completion currently available. Transient EAGAIN and short completions
// restart transparently; a permanent failure aborts with an *errAbort
// error; a completion that reaches the descriptor's logical length marks
// it ready in place.
func (c *Context) WaitOne() error {
	completions, err := c.kernel.WaitOne()
	if err != nil {
		return fmt.Errorf("ring: wait_one: %w", err)
	}

	for _, comp := range completions {
		kind, counter := decodeTag(comp.UserData)
		q := c.rq
		if kind == OpWrite {
			q = c.wq
		}
		slot := q.At(counter)
		d := &slot.Value

		if comp.Res < 0 {
			if isEAGAIN(comp.Res) {
				c.observer.ObserveRestart(kind.String()+"-again", d.Offset)
				if err := c.restart(kind, d, counter); err != nil {
					return err
				}
				continue
			}
			d.Errno = comp.Res
			return &errAbort{op: kind, offset: d.Offset, errno: comp.Res}
		}

		accumulated := d.Residual + int(comp.Res)
		if accumulated >= d.Len {
			d.Residual = accumulated
			slot.Ready = true
			continue
		}

		c.observer.ObserveRestart(kind.String()+"-short", d.Offset)
		d.Residual = accumulated
		if err := c.restart(kind, d, counter); err != nil {
			return err
		}
	}
	return nil
}

// restart re-stages the same descriptor at its current residual offset,
// preserving accumulated progress.
func (c *Context) restart(kind Op, d *Descriptor, counter uint64) error {
	buf, offset := d.submitView()
	if err := c.kernel.Prepare(kind, d.FD, buf, offset, encodeTag(kind, counter)); err != nil {
		return fmt.Errorf("ring: restart %s: %w", kind, err)
	}
	if c.logger != nil {
		c.logger.Debugf("restart %s fd=%d offset=%d residual=%d", kind, d.FD, d.Offset, d.Residual)
	}
	return nil
}

// Close tears down the kernel ring first, then releases the FIFOs'
// backing arena. Any descriptors still in flight at this point are
// simply abandoned; the kernel ring's own teardown reclaims them.
func (c *Context) Close() error {
	ringErr := c.kernel.Close()
	arenaErr := c.arena.Close()
	if ringErr != nil {
		return ringErr
	}
	return arenaErr
}

func isEAGAIN(res int32) bool {
	return res == -11 // EAGAIN is 11 on every platform giouring targets
}
