package ring

import (
	"sync"
)

// FakeRing is an in-memory stand-in for a kernel ring, used by the
// Context/driver tests and exported at the module root (see the root
// package's testing.go) for downstream users who want to exercise the
// pipeline without real O_DIRECT files.
//
// It backs each "file descriptor" with a plain byte slice — simple is
// fine since FakeRing only ever serves one reader and one writer at a
// time under the driver's single-threaded model — and can be told to
// inject the transient conditions real hardware occasionally produces:
// a short completion on the Nth submission, or an EAGAIN on the Nth.
type FakeRing struct {
	mu    sync.Mutex
	files map[int][]byte

	pending []fakeSubmission
	cqes    []Completion

	// Injection hooks, consulted once per (would-be) completion and then
	// cleared so a single injected condition fires exactly once.
	shortOn map[int]int // fd -> global submission number (1-indexed) that completes short
	againOn map[int]int // fd -> global submission number (1-indexed) that completes with EAGAIN
	submitN int
}

type fakeSubmission struct {
	op       Op
	fd       int
	buf      []byte
	offset   int64
	userData uint64
}

// NewFake creates an empty FakeRing. Register file contents with PutFile
// before submitting reads against an fd, and read back written content
// with File after the copy completes.
func NewFake() *FakeRing {
	return &FakeRing{
		files:   make(map[int][]byte),
		shortOn: make(map[int]int),
		againOn: make(map[int]int),
	}
}

// PutFile registers fd's backing content (a copy of data) and pre-sizes
// it for writes up to at least that length.
func (f *FakeRing) PutFile(fd int, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	f.files[fd] = cp
}

// File returns a copy of fd's current backing content.
func (f *FakeRing) File(fd int) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(f.files[fd]))
	copy(cp, f.files[fd])
	return cp
}

// InjectShortOnce arranges for the nth submission (1-indexed, across all
// fds) against fd to complete with half the requested length instead of
// the full length, exercising a short-completion restart.
func (f *FakeRing) InjectShortOnce(fd int, nthSubmission int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shortOn[fd] = nthSubmission
}

// InjectAgainOnce arranges for the nth submission (1-indexed, across all
// fds), if it is against fd, to complete with EAGAIN instead of
// succeeding, exercising a transient-retry restart.
func (f *FakeRing) InjectAgainOnce(fd int, nthSubmission int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.againOn[fd] = nthSubmission
}

const fakeEAGAIN int32 = -11 // matches unix.EAGAIN numerically on linux/amd64

func (f *FakeRing) Prepare(op Op, fd int, buf []byte, offset int64, userData uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, fakeSubmission{op: op, fd: fd, buf: buf, offset: offset, userData: userData})
	return nil
}

func (f *FakeRing) Submit() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := len(f.pending)
	for _, s := range f.pending {
		f.submitN++
		f.cqes = append(f.cqes, f.execute(s))
	}
	f.pending = f.pending[:0]
	return n, nil
}

func (f *FakeRing) execute(s fakeSubmission) Completion {
	if f.againOn[s.fd] == f.submitN {
		delete(f.againOn, s.fd)
		return Completion{UserData: s.userData, Res: fakeEAGAIN}
	}

	want := len(s.buf)
	if f.shortOn[s.fd] == f.submitN {
		delete(f.shortOn, s.fd)
		want = want / 2
	}

	switch s.op {
	case OpRead:
		src := f.files[s.fd]
		n := copy(s.buf[:want], src[s.offset:])
		return Completion{UserData: s.userData, Res: int32(n)}
	case OpWrite:
		dst := f.files[s.fd]
		end := int(s.offset) + want
		if end > len(dst) {
			grown := make([]byte, end)
			copy(grown, dst)
			dst = grown
			f.files[s.fd] = dst
		}
		n := copy(dst[s.offset:end], s.buf[:want])
		return Completion{UserData: s.userData, Res: int32(n)}
	default:
		return Completion{UserData: s.userData, Res: -1}
	}
}

func (f *FakeRing) WaitOne() ([]Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.cqes
	f.cqes = nil
	return out, nil
}

func (f *FakeRing) Close() error { return nil }
