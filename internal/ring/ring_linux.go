//go:build linux

package ring

import (
	"fmt"
	"unsafe"

	"github.com/pawelgaczynski/giouring"
)

// kernelRing implements Ring on top of github.com/pawelgaczynski/giouring,
// a pure-Go binding of liburing. The FIFO/arena bookkeeping above it is
// unaware that this is a pure-Go binding rather than cgo liburing.
type kernelRing struct {
	r *giouring.Ring
}

// NewKernel creates a kernel-backed ring sized for entries in-flight
// submissions. entries should equal RQ_CAP+WQ_CAP so the kernel ring
// never needs more slots than the FIFOs can ever have outstanding.
func NewKernel(entries uint32) (Ring, error) {
	r, err := giouring.CreateRing(entries)
	if err != nil {
		return nil, fmt.Errorf("ring: io_uring_setup(%d): %w", entries, err)
	}
	return &kernelRing{r: r}, nil
}

func (k *kernelRing) Prepare(op Op, fd int, buf []byte, offset int64, userData uint64) error {
	sqe := k.r.GetSQE()
	if sqe == nil {
		return ErrFull
	}

	var addr uint64
	if len(buf) > 0 {
		addr = uint64(uintptr(unsafe.Pointer(&buf[0])))
	}

	switch op {
	case OpRead:
		sqe.PrepareRead(int32(fd), addr, uint32(len(buf)), uint64(offset))
	case OpWrite:
		sqe.PrepareWrite(int32(fd), addr, uint32(len(buf)), uint64(offset))
	default:
		return fmt.Errorf("ring: unknown op %v", op)
	}
	sqe.UserData = userData
	return nil
}

func (k *kernelRing) Submit() (int, error) {
	n, err := k.r.Submit()
	if err != nil {
		return int(n), fmt.Errorf("ring: submit: %w", err)
	}
	return int(n), nil
}

func (k *kernelRing) WaitOne() ([]Completion, error) {
	cqe, err := k.r.WaitCQE()
	if err != nil {
		return nil, fmt.Errorf("ring: wait_cqe: %w", err)
	}

	completions := make([]Completion, 0, 4)
	completions = append(completions, Completion{UserData: cqe.UserData, Res: cqe.Res})
	k.r.CQESeen(cqe)

	for {
		cqe, err := k.r.PeekCQE()
		if err != nil {
			break
		}
		completions = append(completions, Completion{UserData: cqe.UserData, Res: cqe.Res})
		k.r.CQESeen(cqe)
	}
	return completions, nil
}

func (k *kernelRing) Close() error {
	k.r.QueueExit()
	return nil
}
