package uringcp

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempFile(t *testing.T) *os.File {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "uringcp-*")
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestCopyZeroLength(t *testing.T) {
	in, out := tempFile(t), tempFile(t)
	fake := NewFakeRing()
	fake.PutFile(int(in.Fd()), nil)
	fake.PutFile(int(out.Fd()), nil)

	stats, err := CopyWithRing(fake, in, out, 0, Options{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.BytesWritten)
}

func TestCopyByteIdentical(t *testing.T) {
	in, out := tempFile(t), tempFile(t)
	src := make([]byte, 1000)
	for i := range src {
		src[i] = byte(i * 7)
	}
	fake := NewFakeRing()
	fake.PutFile(int(in.Fd()), src)
	fake.PutFile(int(out.Fd()), make([]byte, 1024))

	stats, err := CopyWithRing(fake, in, out, int64(len(src)), Options{
		Params: Params{BlockSize: 64, ReadQueueCap: 4, WriteQueueCap: 4},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(len(src)), stats.BytesWritten)
	assert.Equal(t, src, fake.File(int(out.Fd()))[:len(src)])
}

func TestCopyRejectsNegativeLength(t *testing.T) {
	in, out := tempFile(t), tempFile(t)
	fake := NewFakeRing()

	_, err := CopyWithRing(fake, in, out, -1, Options{})
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeInvalid))
}

func TestCopyIsIdempotentAcrossRepeatedRuns(t *testing.T) {
	src := make([]byte, 1000)
	for i := range src {
		src[i] = byte(i * 13)
	}
	params := Params{BlockSize: 64, ReadQueueCap: 4, WriteQueueCap: 4}

	runOnce := func() []byte {
		in, out := tempFile(t), tempFile(t)
		fake := NewFakeRing()
		fake.PutFile(int(in.Fd()), src)
		fake.PutFile(int(out.Fd()), make([]byte, 1024))

		stats, err := CopyWithRing(fake, in, out, int64(len(src)), Options{Params: params})
		require.NoError(t, err)
		assert.Equal(t, int64(len(src)), stats.BytesWritten)
		return fake.File(int(out.Fd()))[:len(src)]
	}

	first := runOnce()
	second := runOnce()
	assert.Equal(t, src, first)
	assert.Equal(t, first, second)
}

func TestCopyWithObserver(t *testing.T) {
	in, out := tempFile(t), tempFile(t)
	src := make([]byte, 32)
	for i := range src {
		src[i] = byte(i)
	}
	fake := NewFakeRing()
	fake.PutFile(int(in.Fd()), src)
	fake.PutFile(int(out.Fd()), make([]byte, 32))

	metrics := NewMetrics()
	stats, err := CopyWithRing(fake, in, out, int64(len(src)), Options{
		Params:   Params{BlockSize: 8, ReadQueueCap: 2, WriteQueueCap: 2},
		Observer: metrics,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(len(src)), stats.BytesWritten)

	snap := metrics.Snapshot()
	assert.Equal(t, uint64(4), snap.WriteOps)
	assert.Equal(t, uint64(32), snap.WriteBytes)
}
