package wasm

import (
	"bytes"
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"
	"github.com/woxQAQ/readerscan/pkg/protocol"
)

// readChunk is how many bytes ReadString inspects per memory read.
const readChunk = 4096

// linearMemory is the subset of api.Memory the helpers need.
type linearMemory interface {
	Size() uint32
	Read(offset, byteCount uint32) ([]byte, bool)
	Write(offset uint32, v []byte) bool
}

// guestFunction is the subset of api.Function used to call guest exports.
type guestFunction interface {
	Call(ctx context.Context, params ...uint64) ([]uint64, error)
}

// Memory moves buffers in and out of a guest's linear memory.
//
// Buffers written by the host are allocated with the guest's alloc export
// and must be returned with Free and the same size. Every read is bounds
// checked and copied, since guest memory may grow or be reused after the
// next call.
type Memory struct {
	mem     linearMemory
	alloc   guestFunction
	dealloc guestFunction
}

func newMemory(mem linearMemory, alloc, dealloc guestFunction) *Memory {
	return &Memory{mem: mem, alloc: alloc, dealloc: dealloc}
}

// ReadString reads a zero-terminated string starting at ptr. It fails if
// no terminator is found before the end of memory.
func (m *Memory) ReadString(ptr uint32) (string, bool) {
	size := m.mem.Size()
	if ptr >= size {
		return "", false
	}

	var out []byte
	for off := ptr; off < size; {
		n := min(uint32(readChunk), size-off)
		buf, ok := m.mem.Read(off, n)
		if !ok {
			return "", false
		}
		if i := bytes.IndexByte(buf, protocol.Terminator); i >= 0 {
			out = append(out, buf[:i]...)
			return string(out), true
		}
		out = append(out, buf...)
		off += n
	}

	return "", false
}

// WriteBytes allocates len(data) bytes in the guest and copies data in.
// The caller owns the returned buffer and must release it with Free(ptr, length).
func (m *Memory) WriteBytes(ctx context.Context, data []byte) (uint32, uint32, error) {
	length := uint32(len(data))

	ptr, err := m.Alloc(ctx, length)
	if err != nil {
		return 0, 0, err
	}

	if length > 0 && !m.mem.Write(ptr, data) {
		_ = m.Free(ctx, ptr, length)
		return 0, 0, &MemoryAccessError{
			Operation: "write",
			Address:   ptr,
			Length:    length,
			Err:       fmt.Errorf("out of bounds"),
		}
	}

	return ptr, length, nil
}

// Alloc calls the guest's alloc export.
func (m *Memory) Alloc(ctx context.Context, size uint32) (uint32, error) {
	if m.alloc == nil {
		return 0, &MemoryAccessError{Operation: "alloc", Length: size, Err: fmt.Errorf("guest has no alloc export")}
	}

	results, err := m.alloc.Call(ctx, api.EncodeU32(size))
	if err != nil {
		return 0, &MemoryAccessError{Operation: "alloc", Length: size, Err: err}
	}
	if len(results) == 0 {
		return 0, &MemoryAccessError{Operation: "alloc", Length: size, Err: fmt.Errorf("alloc returned no address")}
	}

	ptr := api.DecodeU32(results[0])
	if ptr == protocol.NullAddress {
		return 0, &MemoryAccessError{Operation: "alloc", Length: size, Err: fmt.Errorf("guest allocation failed")}
	}
	return ptr, nil
}

// Free calls the guest's dealloc export. size must be the size the buffer
// was allocated with.
func (m *Memory) Free(ctx context.Context, ptr, size uint32) error {
	if m.dealloc == nil {
		return &MemoryAccessError{Operation: "dealloc", Address: ptr, Length: size, Err: fmt.Errorf("guest has no dealloc export")}
	}

	if _, err := m.dealloc.Call(ctx, api.EncodeU32(ptr), api.EncodeU32(size)); err != nil {
		return &MemoryAccessError{Operation: "dealloc", Address: ptr, Length: size, Err: err}
	}
	return nil
}
