// Package arena hands out raw, 8-byte aligned regions of guest linear
// memory to the host.
//
// Ownership is explicit: the host allocates a region, uses it and releases
// it with the same size it allocated. Sizes are not recorded or verified.
//
// The guest heap is managed by the Go garbage collector, so every live region
// is kept reachable from a pin table until it is released. The table only
// keeps memory alive; it is never used to validate a call.
//
// The arena is not safe for concurrent use. A Wasm instance runs one call
// at a time and that is the only caller.
package arena

import "unsafe"

// Alignment is the alignment of every address returned by Allocate.
const Alignment = 8

// MaxSize is the largest request Allocate accepts. Wasm linear memory is
// addressed with 32 bits.
const MaxSize = 1<<32 - Alignment

// Backing storage is word-typed so the Go allocator aligns it to 8 bytes.
// Byte slices smaller than 16 bytes may come from the tiny allocator with
// weaker alignment.
var pinned = map[uintptr][]uint64{}

// Allocate returns the address of a region of at least size bytes, or 0 when
// size exceeds MaxSize.
//
// A zero size still yields a unique, valid address backed by one word; it
// must be released with size 0.
func Allocate(size uintptr) uintptr {
	if size > MaxSize {
		return 0
	}

	words := (size + Alignment - 1) / Alignment
	if words == 0 {
		words = 1
	}

	buf := make([]uint64, words)
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
	pinned[addr] = buf
	return addr
}

// Release returns the region at addr. size must equal the size passed to
// Allocate for addr; a mismatch is a caller contract violation and is not
// detected. Releasing 0 is a no-op.
func Release(addr, size uintptr) {
	if addr == 0 {
		return
	}
	delete(pinned, addr)
}

// Bytes views size bytes starting at addr. The region must be live, or be
// memory the caller otherwise guarantees for the duration of the view.
func Bytes(addr, size uintptr) []byte {
	if size == 0 {
		return []byte{}
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
}

// Live returns the number of regions allocated and not yet released.
func Live() int {
	return len(pinned)
}
