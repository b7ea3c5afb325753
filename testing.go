package uringcp

import "github.com/pooh64/uring-cp/internal/ring"

// FakeRing is a re-export of the internal fake kernel ring, for
// downstream callers who want to exercise this package's pipeline
// without real O_DIRECT file descriptors. See internal/ring.FakeRing
// for the injection hooks (InjectShortOnce, InjectAgainOnce).
type FakeRing = ring.FakeRing

// NewFakeRing constructs a FakeRing for use with CopyWithRing in tests.
func NewFakeRing() *FakeRing {
	return ring.NewFake()
}
