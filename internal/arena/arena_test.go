package arena

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsInvalidSizes(t *testing.T) {
	_, err := New(0, 4096)
	assert.Error(t, err)

	_, err = New(4, 0)
	assert.Error(t, err)

	_, err = New(4, 4097) // not a power of two
	assert.Error(t, err)
}

func TestAllocFreeRoundTrip(t *testing.T) {
	a, err := New(4, 4096)
	require.NoError(t, err)
	defer a.Close()

	require.Equal(t, 4, a.FreeCount())

	bufs := make([]Buffer, 0, 4)
	for i := 0; i < 4; i++ {
		bufs = append(bufs, a.Alloc())
	}
	assert.Equal(t, 0, a.FreeCount())

	for _, b := range bufs {
		assert.Len(t, b.Bytes(), 4096)
		a.Free(b)
	}
	assert.Equal(t, 4, a.FreeCount())
}

func TestAllocExhaustedPanics(t *testing.T) {
	a, err := New(1, 4096)
	require.NoError(t, err)
	defer a.Close()

	a.Alloc()
	assert.Panics(t, func() { a.Alloc() })
}

func TestFreeForeignPointerPanics(t *testing.T) {
	a, err := New(1, 4096)
	require.NoError(t, err)
	defer a.Close()

	other, err := New(1, 4096)
	require.NoError(t, err)
	defer other.Close()

	foreign := other.Alloc()
	assert.Panics(t, func() { a.Free(foreign) })
}

func TestDoubleFreePanics(t *testing.T) {
	a, err := New(2, 4096)
	require.NoError(t, err)
	defer a.Close()

	b := a.Alloc()
	a.Free(b)
	assert.Panics(t, func() { a.Free(b) })
}

func TestFreeCountPlusInFlightIsConstant(t *testing.T) {
	a, err := New(8, 4096)
	require.NoError(t, err)
	defer a.Close()

	var held []Buffer
	inFlight := 0
	for i := 0; i < 20; i++ {
		if inFlight < a.NBlocks() && (i%3 != 0 || len(held) == 0) {
			held = append(held, a.Alloc())
			inFlight++
		} else {
			b := held[len(held)-1]
			held = held[:len(held)-1]
			a.Free(b)
			inFlight--
		}
		assert.Equal(t, a.NBlocks(), a.FreeCount()+inFlight)
	}
}
