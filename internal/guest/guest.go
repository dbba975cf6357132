// Package guest implements the reader-area parser's boundary functions on
// top of the arena and the scanner. The Wasm exports in exports_wasip1.go
// convert between the uint32 ABI and these functions.
package guest

import (
	"github.com/woxQAQ/readerscan/internal/arena"
	"github.com/woxQAQ/readerscan/internal/scanner"
)

// Allocate reserves size bytes for the host.
func Allocate(size uintptr) uintptr {
	return arena.Allocate(size)
}

// Release frees a region previously returned by Allocate with the same size.
func Release(addr, size uintptr) {
	arena.Release(addr, size)
}

// Extract scans the UTF-8 document of length bytes at addr and returns the
// address of a new zero-terminated JSON array owned by the caller. It
// returns 0 without allocating when the document is not valid UTF-8 or
// the result cannot be encoded.
func Extract(addr, length uintptr) uintptr {
	var doc []byte
	if length > 0 {
		doc = arena.Bytes(addr, length)
	}

	text, err := scanner.Extract(doc)
	if err != nil {
		return 0
	}

	size := uintptr(len(text)) + 1
	out := arena.Allocate(size)
	if out == 0 {
		return 0
	}

	buf := arena.Bytes(out, size)
	copy(buf, text)
	buf[len(text)] = 0
	return out
}
