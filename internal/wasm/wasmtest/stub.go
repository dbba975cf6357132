// Package wasmtest assembles tiny Wasm guests for host-side tests.
package wasmtest

// section encodes one Wasm section. Contents must stay under 128 bytes so
// the size fits a single LEB128 byte.
func section(id byte, content ...byte) []byte {
	if len(content) >= 128 {
		panic("wasmtest: section too large")
	}
	return append([]byte{id, byte(len(content))}, content...)
}

func vec(s string) []byte {
	return append([]byte{byte(len(s))}, s...)
}

// Empty is a valid Wasm module with no sections.
func Empty() []byte {
	return []byte{
		0x00, 0x61, 0x73, 0x6d, // Magic number: \0asm
		0x01, 0x00, 0x00, 0x00, // Version: 1
	}
}

// MemoryOnly is a module exporting one page of memory and nothing else.
func MemoryOnly() []byte {
	wasm := Empty()
	wasm = append(wasm, section(0x05, 0x01, 0x00, 0x01)...)

	exports := append([]byte{0x01}, vec("memory")...)
	exports = append(exports, 0x02, 0x00)
	return append(wasm, section(0x07, exports...)...)
}

// ResultAddress is where StubGuest places its static result.
const ResultAddress = 1024

// InputAddress is what the stub's alloc returns for every request.
const InputAddress = 16

// StubGuest assembles a module with the parser ABI shape: alloc always
// returns InputAddress, dealloc does nothing, and parse_chapter_images
// returns ResultAddress holding result followed by a zero byte. An empty
// result makes parse_chapter_images return the null address instead.
func StubGuest(result string) []byte {
	extractBody := []byte{0x04, 0x00, 0x41, 0x00, 0x0b} // i32.const 0
	if result != "" {
		extractBody = []byte{0x05, 0x00, 0x41, 0x80, 0x08, 0x0b} // i32.const 1024
	}
	return stub(result, extractBody)
}

// TrapLimit is the largest document TrappingGuest accepts.
const TrapLimit = 32

// TrappingGuest is StubGuest(result), except that parse_chapter_images
// executes unreachable for documents longer than TrapLimit bytes.
func TrappingGuest(result string) []byte {
	extractBody := []byte{
		0x0e, 0x00,
		0x20, 0x01, // local.get 1
		0x41, TrapLimit, // i32.const TrapLimit
		0x4b,       // i32.gt_u
		0x04, 0x40, // if
		0x00,       // unreachable
		0x0b,       // end
		0x41, 0x80, 0x08, // i32.const 1024
		0x0b,
	}
	return stub(result, extractBody)
}

func stub(result string, extractBody []byte) []byte {
	wasm := Empty()

	// Types: (i32)->i32, (i32,i32)->(), (i32,i32)->i32
	wasm = append(wasm, section(0x01,
		0x03,
		0x60, 0x01, 0x7f, 0x01, 0x7f,
		0x60, 0x02, 0x7f, 0x7f, 0x00,
		0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f,
	)...)

	// Functions 0..2 use types 0..2.
	wasm = append(wasm, section(0x03, 0x03, 0x00, 0x01, 0x02)...)

	// One page of memory.
	wasm = append(wasm, section(0x05, 0x01, 0x00, 0x01)...)

	exports := []byte{0x04}
	exports = append(append(exports, vec("memory")...), 0x02, 0x00)
	exports = append(append(exports, vec("alloc")...), 0x00, 0x00)
	exports = append(append(exports, vec("dealloc")...), 0x00, 0x01)
	exports = append(append(exports, vec("parse_chapter_images")...), 0x00, 0x02)
	wasm = append(wasm, section(0x07, exports...)...)

	code := []byte{0x03}
	code = append(code, 0x04, 0x00, 0x41, InputAddress, 0x0b)
	code = append(code, 0x02, 0x00, 0x0b)
	code = append(code, extractBody...)
	wasm = append(wasm, section(0x0a, code...)...)

	if result != "" {
		data := []byte{0x01, 0x00, 0x41, 0x80, 0x08, 0x0b} // active, offset 1024
		data = append(data, vec(result+"\x00")...)
		wasm = append(wasm, section(0x0b, data...)...)
	}

	return wasm
}
