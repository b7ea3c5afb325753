package arena

import "unsafe"

// addrOf returns the address of a byte slice's backing array, used only to
// validate that a freed Buffer's storage actually lies within this arena's
// mmap'd region. The freed Buffer may come from another region entirely
// (a foreign buffer); Buffer.index rejects any address difference that
// does not land on a block boundary inside this arena.
func addrOf(b []byte) int {
	if len(b) == 0 {
		return 0
	}
	return int(uintptr(unsafe.Pointer(&b[0])))
}
