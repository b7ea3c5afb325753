package driver

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pooh64/uring-cp/internal/ring"
)

type recordedEvent struct {
	kind   string
	offset int64
	length int
}

type recordingObserver struct {
	events []recordedEvent
}

func (r *recordingObserver) ObserveRead(offset int64, length int, _ uint64, _ bool) {
	r.events = append(r.events, recordedEvent{"read", offset, length})
}

func (r *recordingObserver) ObserveWrite(offset int64, length int, _ uint64, _ bool) {
	r.events = append(r.events, recordedEvent{"write", offset, length})
}

func (r *recordingObserver) ObserveRestart(kind string, offset int64) {
	r.events = append(r.events, recordedEvent{"restart:" + kind, offset, 0})
}

func (r *recordingObserver) writes() []recordedEvent {
	var out []recordedEvent
	for _, e := range r.events {
		if e.kind == "write" {
			out = append(out, e)
		}
	}
	return out
}

func runCopy(t *testing.T, fake *ring.FakeRing, inFD, outFD int, n int64, rqCap, wqCap, blockSize int, obs *recordingObserver) *Driver {
	t.Helper()
	ctx, err := ring.NewContext(ring.Config{
		RQCap:     rqCap,
		WQCap:     wqCap,
		BlockSize: blockSize,
		Kernel:    fake,
		Observer:  obs,
	})
	require.NoError(t, err)
	t.Cleanup(func() { ctx.Close() })

	d, err := New(Config{Context: ctx, InFD: inFD, OutFD: outFD, N: n, Observer: obs})
	require.NoError(t, err)
	return d
}

func TestZeroLengthCopyIsImmediate(t *testing.T) {
	fake := ring.NewFake()
	const in, out = 1, 2
	fake.PutFile(in, nil)
	fake.PutFile(out, nil)
	obs := &recordingObserver{}

	d := runCopy(t, fake, in, out, 0, 2, 2, 4, obs)
	require.NoError(t, d.Run())
	assert.Empty(t, obs.events)
	assert.Equal(t, int64(0), d.CursorOut())
}

func TestSixteenByteCopyBlockFour(t *testing.T) {
	fake := ring.NewFake()
	const in, out = 1, 2
	src := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
	fake.PutFile(in, src)
	fake.PutFile(out, make([]byte, 16))
	obs := &recordingObserver{}

	d := runCopy(t, fake, in, out, 16, 2, 2, 4, obs)
	require.NoError(t, d.Run())

	assert.Equal(t, src, fake.File(out))
	writes := obs.writes()
	require.Len(t, writes, 4)
	wantOffsets := []int64{0, 4, 8, 12}
	for i, w := range writes {
		assert.Equal(t, wantOffsets[i], w.offset)
		assert.Equal(t, 4, w.length)
	}
}

func TestSeventeenByteCopyBlockEightTrailingPartial(t *testing.T) {
	fake := ring.NewFake()
	const in, out = 1, 2
	src := make([]byte, 17)
	for i := range src {
		src[i] = 'A'
	}
	fake.PutFile(in, src)
	fake.PutFile(out, make([]byte, 24)) // pre-extended to roundup(17,8)=24
	obs := &recordingObserver{}

	d := runCopy(t, fake, in, out, 17, 2, 2, 8, obs)
	require.NoError(t, d.Run())

	dst := fake.File(out)
	assert.Equal(t, src, dst[:17])

	writes := obs.writes()
	require.Len(t, writes, 3)
	assert.Equal(t, recordedEvent{"write", 0, 8}, writes[0])
	assert.Equal(t, recordedEvent{"write", 8, 8}, writes[1])
	assert.Equal(t, recordedEvent{"write", 16, 1}, writes[2])
}

func TestSerialSingleBufferEachKind(t *testing.T) {
	fake := ring.NewFake()
	const in, out = 1, 2
	src := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	fake.PutFile(in, src)
	fake.PutFile(out, make([]byte, 8))
	obs := &recordingObserver{}

	d := runCopy(t, fake, in, out, 8, 1, 1, 4, obs)
	require.NoError(t, d.Run())
	assert.Equal(t, src, fake.File(out))
}

func TestInjectedShortCompletionStillByteIdentical(t *testing.T) {
	fake := ring.NewFake()
	const in, out = 1, 2
	src := []byte{10, 20, 30, 40, 50, 60, 70, 80}
	fake.PutFile(in, src)
	fake.PutFile(out, make([]byte, 8))
	fake.InjectShortOnce(in, 1)
	obs := &recordingObserver{}

	d := runCopy(t, fake, in, out, 8, 2, 2, 4, obs)
	require.NoError(t, d.Run())
	assert.Equal(t, src, fake.File(out))
}

func TestInjectedAgainEventuallyCompletes(t *testing.T) {
	fake := ring.NewFake()
	const in, out = 1, 2
	src := []byte{10, 20, 30, 40, 50, 60, 70, 80}
	fake.PutFile(in, src)
	fake.PutFile(out, make([]byte, 8))
	fake.InjectAgainOnce(in, 2)
	obs := &recordingObserver{}

	d := runCopy(t, fake, in, out, 8, 2, 2, 4, obs)
	require.NoError(t, d.Run())
	assert.Equal(t, src, fake.File(out))
}

func TestPermanentWriteFailureAbortsWithPrefixIntact(t *testing.T) {
	fake := ring.NewFake()
	const in, out = 1, 2
	src := make([]byte, 64)
	for i := range src {
		src[i] = byte(i)
	}
	fake.PutFile(in, src)
	fake.PutFile(out, make([]byte, 64))

	failing := &failNthWriteRing{FakeRing: fake, failAt: 3}
	obs := &recordingObserver{}
	ctx, err := ring.NewContext(ring.Config{RQCap: 4, WQCap: 4, BlockSize: 8, Kernel: failing, Observer: obs})
	require.NoError(t, err)
	defer ctx.Close()

	d, err := New(Config{Context: ctx, InFD: in, OutFD: out, N: 64, Observer: obs})
	require.NoError(t, err)

	err = d.Run()
	require.Error(t, err)
	assert.True(t, d.CursorOut() < 64)
	assert.Equal(t, src[:d.CursorOut()], fake.File(out)[:d.CursorOut()])
}

func TestSixtyFourKiBCopySixteenBlocksAscendingOffsets(t *testing.T) {
	fake := ring.NewFake()
	const in, out = 1, 2
	const n = 65536
	const blockSize = 4096
	const rqCap, wqCap = 4, 4

	src := make([]byte, n)
	rand.New(rand.NewSource(1)).Read(src)
	fake.PutFile(in, src)
	fake.PutFile(out, make([]byte, n))
	obs := &recordingObserver{}

	d := runCopy(t, fake, in, out, n, rqCap, wqCap, blockSize, obs)
	require.NoError(t, d.Run())
	assert.Equal(t, src, fake.File(out))

	writes := obs.writes()
	require.Len(t, writes, n/blockSize)
	for i, w := range writes {
		assert.Equal(t, int64(i*blockSize), w.offset)
		assert.Equal(t, blockSize, w.length)
	}
}

// failNthWriteRing fails the nth write submission with EIO, exercising
// a permanent failure partway through a multi-block copy.
type failNthWriteRing struct {
	*ring.FakeRing
	failAt int
	seen   int
}

func (f *failNthWriteRing) Submit() (int, error) {
	return f.FakeRing.Submit()
}

// writeTagBit mirrors internal/ring's encodeTag: the top bit of
// UserData is set for write submissions. Completion carries no Op
// field of its own, so this is the only way an external test can tell
// a write completion from a read completion.
const writeTagBit = uint64(1) << 63

func (f *failNthWriteRing) WaitOne() ([]ring.Completion, error) {
	completions, err := f.FakeRing.WaitOne()
	if err != nil {
		return completions, err
	}
	for i := range completions {
		if completions[i].Res >= 0 && completions[i].UserData&writeTagBit != 0 {
			f.seen++
			if f.seen == f.failAt {
				completions[i].Res = -5 // EIO
			}
		}
	}
	return completions, nil
}
