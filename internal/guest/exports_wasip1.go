package guest

// NOTE: uint32 is used for addresses and lengths because Wasm linear memory
// is 32-bit. Export names must match pkg/protocol.

//go:wasmexport alloc
func wasmAlloc(size uint32) uint32 {
	return uint32(Allocate(uintptr(size)))
}

//go:wasmexport dealloc
func wasmDealloc(addr, size uint32) {
	Release(uintptr(addr), uintptr(size))
}

//go:wasmexport parse_chapter_images
func wasmParseChapterImages(addr, length uint32) uint32 {
	return uint32(Extract(uintptr(addr), uintptr(length)))
}
