// Package arena provides a fixed pool of aligned I/O buffers for the
// copy pipeline: a contiguous region of equal-size blocks plus a stack
// of free block indices. Allocation pops, free pushes, and a raw
// pointer is never the thing being freed — every free validates the
// buffer against the arena's own bounds, so double-frees and foreign
// pointers are rejected instead of silently corrupting the free list.
package arena

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Buffer is a view of one whole arena block. It carries no logical
// payload length of its own; the request descriptor holding the buffer
// records how many of its bytes are payload.
type Buffer struct {
	data      []byte
	blockSize int
}

// Bytes returns the full block-sized backing slice. Callers that need the
// alignment-padded submission view read this directly; callers that need
// the logical payload slice it themselves.
func (b Buffer) Bytes() []byte { return b.data }

// Len is the block size of the arena this buffer was allocated from.
func (b Buffer) Len() int { return b.blockSize }

// index returns this buffer's position in the arena, used only by Free
// to validate ownership.
func (b Buffer) index(base []byte, blockSize int) (int, bool) {
	if blockSize == 0 || len(b.data) != blockSize {
		return 0, false
	}
	off := addrOf(b.data) - addrOf(base)
	if off < 0 || off%blockSize != 0 {
		return 0, false
	}
	idx := off / blockSize
	if idx*blockSize+blockSize > len(base) {
		return 0, false
	}
	return idx, true
}

// Arena owns a contiguous, block-aligned mmap'd region of n blocks, plus
// a stack of free block indices. Allocation pops; free pushes; both are
// O(1) and allocate no memory after construction.
//
// Invariant: free_count ∈ [0, n]; every free-stack entry is a distinct
// index in [0, n). The arena does not track which block is "owned by
// whom" while it's checked out — that bookkeeping belongs to the
// request descriptor holding the buffer.
type Arena struct {
	mem       []byte
	blockSize int
	nBlocks   int
	free      []int // stack of free block indices; free[:freeTop] are valid
	freeTop   int
	onBlock   map[int]bool // which indices are currently checked out, for Free validation
}

// New allocates an arena of nBlocks aligned blocks of blockSize bytes each.
// blockSize must be a power of two; nBlocks must be at least 1. The region
// comes from an anonymous mmap and so starts page-aligned; blockSize is
// not checked against the page size or any device alignment.
func New(nBlocks, blockSize int) (*Arena, error) {
	if nBlocks <= 0 {
		return nil, fmt.Errorf("arena: nBlocks must be positive, got %d", nBlocks)
	}
	if blockSize <= 0 || blockSize&(blockSize-1) != 0 {
		return nil, fmt.Errorf("arena: blockSize must be a power of two, got %d", blockSize)
	}

	mem, err := unix.Mmap(-1, 0, nBlocks*blockSize,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("arena: mmap %d bytes: %w", nBlocks*blockSize, err)
	}

	a := &Arena{
		mem:       mem,
		blockSize: blockSize,
		nBlocks:   nBlocks,
		free:      make([]int, nBlocks),
		freeTop:   nBlocks,
		onBlock:   make(map[int]bool, nBlocks),
	}
	for i := 0; i < nBlocks; i++ {
		a.free[i] = i
	}
	return a, nil
}

// BlockSize returns the size of one arena block in bytes.
func (a *Arena) BlockSize() int { return a.blockSize }

// NBlocks returns the total number of blocks the arena was constructed with.
func (a *Arena) NBlocks() int { return a.nBlocks }

// FreeCount returns the number of blocks currently available for Alloc.
func (a *Arena) FreeCount() int { return a.freeTop }

// Alloc pops a free block. It panics if the arena is exhausted: the
// arena is always sized to exactly cover every slot of every in-flight
// queue, so exhaustion while a queue still has room left is a
// programming-invariant violation, not a runtime condition callers
// should handle.
func (a *Arena) Alloc() Buffer {
	if a.freeTop == 0 {
		panic("arena: exhausted (programming-invariant violation: arena must hold RQ_CAP+WQ_CAP blocks)")
	}
	a.freeTop--
	idx := a.free[a.freeTop]
	a.onBlock[idx] = true
	start := idx * a.blockSize
	return Buffer{data: a.mem[start : start+a.blockSize : start+a.blockSize], blockSize: a.blockSize}
}

// Free returns a buffer to the arena. It panics if buf was not produced
// by this arena, is not block-aligned, or has already been freed — all
// are programming-invariant violations.
func (a *Arena) Free(buf Buffer) {
	idx, ok := buf.index(a.mem, a.blockSize)
	if !ok {
		panic("arena: free of foreign or misaligned pointer")
	}
	if !a.onBlock[idx] {
		panic("arena: double free")
	}
	if a.freeTop >= a.nBlocks {
		panic("arena: free stack already full")
	}
	delete(a.onBlock, idx)
	a.free[a.freeTop] = idx
	a.freeTop++
}

// Close releases the arena's backing memory. The arena must not be used
// afterward.
func (a *Arena) Close() error {
	if a.mem == nil {
		return nil
	}
	err := unix.Munmap(a.mem)
	a.mem = nil
	return err
}
