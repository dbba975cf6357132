package protocol

import (
	"encoding/json"
	"fmt"
)

// Shared ABI definitions for the reader-area parser guest and its hosts.
// Addresses and lengths are uint32 because Wasm linear memory is 32-bit.

// Exported guest function names.
const (
	ExportAlloc   = "alloc"
	ExportDealloc = "dealloc"
	ExportExtract = "parse_chapter_images"

	// ExportInitialize is the reactor initializer emitted for
	// -buildmode=c-shared wasip1 builds.
	ExportInitialize = "_initialize"
)

// Alignment is the byte alignment of every buffer returned by alloc.
const Alignment = 8

// NullAddress is the sentinel returned by parse_chapter_images on failure.
const NullAddress uint32 = 0

// Terminator ends every result buffer. The buffer length to pass to
// dealloc is len(text)+1.
const Terminator byte = 0

// ImageList is the decoded result of a parse_chapter_images call.
type ImageList []string

// DecodeResult parses the serialized result text (without the terminator).
func DecodeResult(data []byte) (ImageList, error) {
	var list ImageList
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode image list: %w", err)
	}
	if list == nil {
		// "null" is not a valid guest result.
		return nil, fmt.Errorf("decode image list: expected array, got %q", data)
	}
	return list, nil
}

// ResultSize returns the dealloc size for a result whose text is n bytes.
func ResultSize(n uint32) uint32 {
	return n + 1
}
