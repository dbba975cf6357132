package wasm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tetratelabs/wazero/api"
	"github.com/woxQAQ/readerscan/pkg/protocol"
	"go.uber.org/zap"
)

// Extractor runs documents through a parser guest's
// alloc / parse_chapter_images / dealloc contract.
//
// For every call the input buffer is allocated in the guest, filled,
// passed to the extract export and released with its original size. The
// result buffer is read up to its terminator and released with
// len(text)+1. Calls are serialized; an instance is not reentrant.
type Extractor struct {
	name    string
	mem     *Memory
	extract guestFunction
	timeout time.Duration
	logger  *zap.Logger

	// closed reports whether the underlying module is gone; nil means never.
	closed func() bool

	mu      sync.Mutex
	trapped bool
}

// NewExtractor binds an Extractor to an instance. A zero timeout disables
// the per-call deadline.
func NewExtractor(instance *Instance, timeout time.Duration, logger *zap.Logger) *Extractor {
	e := newExtractor(instance.Name, instance.Memory(), instance.Function(instance.names.Extract), timeout, logger)
	e.closed = instance.IsClosed
	return e
}

func newExtractor(name string, mem *Memory, extract guestFunction, timeout time.Duration, logger *zap.Logger) *Extractor {
	return &Extractor{
		name:    name,
		mem:     mem,
		extract: extract,
		timeout: timeout,
		logger:  logger.With(zap.String("component", "wasm-extractor"), zap.String("module", name)),
	}
}

// Usable reports whether the instance can take another document. A guest
// that trapped is left in an undefined state, and a closed module (timeout
// or guest exit) fails every later call; both must be replaced.
func (e *Extractor) Usable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.trapped {
		return false
	}
	return e.closed == nil || !e.closed()
}

// Extract returns the sorted, deduplicated image URLs found in html.
func (e *Extractor) Extract(ctx context.Context, html []byte) (protocol.ImageList, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	text, err := e.call(ctx, html)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &TimeoutError{Duration: e.timeout}
		}
		return nil, err
	}

	list, err := protocol.DecodeResult([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", e.name, err)
	}

	e.logger.Debug("Extracted chapter images",
		zap.Int("input_bytes", len(html)),
		zap.Int("images", len(list)),
	)

	return list, nil
}

// call performs one ABI round trip and returns the raw result text.
func (e *Extractor) call(ctx context.Context, html []byte) (string, error) {
	in, inLen, err := e.mem.WriteBytes(ctx, html)
	if err != nil {
		return "", fmt.Errorf("failed to write document: %w", err)
	}
	defer func() {
		if err := e.mem.Free(ctx, in, inLen); err != nil {
			e.logger.Warn("Failed to release input buffer",
				zap.Uint32("ptr", in),
				zap.Uint32("length", inLen),
				zap.Error(err),
			)
		}
	}()

	results, err := e.extract.Call(ctx, api.EncodeU32(in), api.EncodeU32(inLen))
	if err != nil {
		e.trapped = true
		return "", fmt.Errorf("failed to call extract in module %s: %w", e.name, err)
	}
	if len(results) == 0 {
		return "", fmt.Errorf("extract in module %s returned no address", e.name)
	}

	out := api.DecodeU32(results[0])
	if out == protocol.NullAddress {
		return "", &ExtractionFailedError{ModuleName: e.name, InputLen: inLen}
	}

	text, ok := e.mem.ReadString(out)
	if !ok {
		// The buffer length is unknown without a terminator, so it leaks.
		return "", &MemoryAccessError{
			Operation: "read",
			Address:   out,
			Err:       fmt.Errorf("unterminated result"),
		}
	}

	if err := e.mem.Free(ctx, out, protocol.ResultSize(uint32(len(text)))); err != nil {
		e.logger.Warn("Failed to release result buffer",
			zap.Uint32("ptr", out),
			zap.Error(err),
		)
	}

	return text, nil
}
