// Command readerarea is the reader-area parser plugin. It is built as a
// WASI reactor and does nothing on its own; hosts call its exports.
//
//	GOOS=wasip1 GOARCH=wasm go build -buildmode=c-shared -o readerarea.wasm ./cmd/readerarea
//
// go generate ./cmd/readerarea writes build/readerarea.wasm, which the
// host's integration tests pick up.
package main

//go:generate env GOOS=wasip1 GOARCH=wasm go build -buildmode=c-shared -o ../../build/readerarea.wasm .

import (
	// Registers the alloc, dealloc and parse_chapter_images exports.
	_ "github.com/woxQAQ/readerscan/internal/guest"
)

func main() {}
