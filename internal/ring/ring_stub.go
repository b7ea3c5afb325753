//go:build !linux

package ring

import "fmt"

// NewKernel is unavailable off Linux; io_uring is a Linux-only kernel
// interface. The package still builds on other platforms, and its
// ring-independent callers (FakeRing-based tests) still run.
func NewKernel(entries uint32) (Ring, error) {
	return nil, fmt.Errorf("ring: io_uring is only available on linux")
}
