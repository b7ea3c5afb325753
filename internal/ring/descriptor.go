package ring

import "github.com/pooh64/uring-cp/internal/arena"

// Descriptor is the unit of work passing through the pipeline. Buf/Len/
// Offset are the logical payload; SubmitOffset/SubmitLen are the
// alignment-padded kernel view, kept as distinct fields so a short
// trailing-block completion can't silently corrupt the logical payload
// accounting.
type Descriptor struct {
	Kind Op
	FD   int

	Buf    arena.Buffer // always a pointer into the arena, block-aligned
	Len    int          // logical payload length, <= Buf.Len()
	Offset int64        // logical file offset, a multiple of the block size

	SubmitOffset int64 // == Offset; kept distinct for clarity at call sites
	SubmitLen    int   // alignment-rounded length actually given to the kernel

	Residual int   // bytes completed so far across restarts
	Errno    int32 // set on permanent failure; 0 otherwise
}

// submitView returns the buffer slice and offset the kernel should see
// right now, accounting for any residual already completed by a prior
// short completion.
func (d *Descriptor) submitView() ([]byte, int64) {
	buf := d.Buf.Bytes()[:d.SubmitLen]
	return buf[d.Residual:], d.SubmitOffset + int64(d.Residual)
}
