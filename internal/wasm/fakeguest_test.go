package wasm

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"github.com/woxQAQ/readerscan/internal/scanner"
)

// fakeMemory is a fixed-size linear memory.
type fakeMemory struct {
	data []byte
}

func (m *fakeMemory) Size() uint32 {
	return uint32(len(m.data))
}

func (m *fakeMemory) Read(offset, byteCount uint32) ([]byte, bool) {
	if uint64(offset)+uint64(byteCount) > uint64(len(m.data)) {
		return nil, false
	}
	return m.data[offset : offset+byteCount], true
}

func (m *fakeMemory) Write(offset uint32, v []byte) bool {
	if uint64(offset)+uint64(len(v)) > uint64(len(m.data)) {
		return false
	}
	copy(m.data[offset:], v)
	return true
}

// fakeFunc adapts a closure to guestFunction.
type fakeFunc func(ctx context.Context, params ...uint64) ([]uint64, error)

func (f fakeFunc) Call(ctx context.Context, params ...uint64) ([]uint64, error) {
	return f(ctx, params...)
}

// fakeGuest emulates the parser guest in Go: a bump allocator that records
// every live buffer, and an extract export backed by the scanner package.
type fakeGuest struct {
	mem  *fakeMemory
	next uint32
	live map[uint32]uint32 // ptr -> size

	// badFrees counts dealloc calls with an unknown pointer or wrong size.
	badFrees int

	// extract overrides the default extract behaviour when set.
	extract fakeFunc
}

func newFakeGuest(memSize int) *fakeGuest {
	return &fakeGuest{
		mem:  &fakeMemory{data: make([]byte, memSize)},
		next: 8,
		live: make(map[uint32]uint32),
	}
}

func (g *fakeGuest) allocate(size uint32) uint32 {
	span := (max(size, 1) + 7) &^ 7
	if uint64(g.next)+uint64(span) > uint64(len(g.mem.data)) {
		return 0
	}
	ptr := g.next
	g.next += span
	g.live[ptr] = size
	return ptr
}

func (g *fakeGuest) allocFunc() guestFunction {
	return fakeFunc(func(_ context.Context, params ...uint64) ([]uint64, error) {
		return []uint64{api.EncodeU32(g.allocate(api.DecodeU32(params[0])))}, nil
	})
}

func (g *fakeGuest) deallocFunc() guestFunction {
	return fakeFunc(func(_ context.Context, params ...uint64) ([]uint64, error) {
		ptr, size := api.DecodeU32(params[0]), api.DecodeU32(params[1])
		if want, ok := g.live[ptr]; !ok || want != size {
			g.badFrees++
		}
		delete(g.live, ptr)
		return nil, nil
	})
}

func (g *fakeGuest) extractFunc() guestFunction {
	return fakeFunc(func(ctx context.Context, params ...uint64) ([]uint64, error) {
		if g.extract != nil {
			return g.extract(ctx, params...)
		}

		ptr, length := api.DecodeU32(params[0]), api.DecodeU32(params[1])
		doc, _ := g.mem.Read(ptr, length)

		text, err := scanner.Extract(doc)
		if err != nil {
			return []uint64{0}, nil
		}

		out := g.allocate(uint32(len(text)) + 1)
		if out == 0 {
			return []uint64{0}, nil
		}
		g.mem.Write(out, append(text, 0))
		return []uint64{api.EncodeU32(out)}, nil
	})
}

func (g *fakeGuest) memory() *Memory {
	return newMemory(g.mem, g.allocFunc(), g.deallocFunc())
}
