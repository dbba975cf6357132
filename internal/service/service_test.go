package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/woxQAQ/readerscan/internal/config"
	"github.com/woxQAQ/readerscan/internal/plugin"
	"github.com/woxQAQ/readerscan/internal/wasm/wasmtest"
	"go.uber.org/zap/zaptest"
)

const manifest = `name: stub
version: 0.1.0
sites: [example.com]
wasm:
  file: stub.wasm
capabilities: [chapter_images]
`

// newTestService registers guest as the "stub" plugin, or no plugin at all
// when guest is nil.
func newTestService(t *testing.T, guest []byte) *Service {
	t.Helper()

	root := t.TempDir()
	if guest != nil {
		dir := filepath.Join(root, "stub")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, plugin.ManifestFile), []byte(manifest), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "stub.wasm"), guest, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	cfg := &config.Config{
		PluginPaths: []string{root},
		Wasm:        config.WasmConfig{MemoryPages: 16, MaxInstances: 8, ExecutionTimeout: 5},
		Batch:       config.BatchConfig{Workers: 2, OutputExt: ".json"},
	}

	ctx := context.Background()
	svc, err := New(ctx, cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(func() { svc.Close(ctx) })
	return svc
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, wasmtest.StubGuest(`["a.jpg","b.jpg"]`))

	tests := []struct {
		name string
		sel  Selector
	}{
		{"only plugin", Selector{}},
		{"by name", Selector{Plugin: "stub"}},
		{"by site", Selector{Site: "www.example.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := svc.Resolve(ctx, tt.sel)
			if err != nil {
				t.Fatalf("Resolve() failed: %v", err)
			}
			if p.Name() != "stub" {
				t.Errorf("expected 'stub', got '%s'", p.Name())
			}
		})
	}

	if _, err := svc.Resolve(ctx, Selector{Site: "other.org"}); err == nil {
		t.Error("Resolve() should fail for an unknown site")
	}
}

func TestResolveWithoutPlugins(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil)

	_, err := svc.Resolve(ctx, Selector{})
	if !errors.Is(err, ErrNoPlugin) {
		t.Fatalf("expected ErrNoPlugin, got %v", err)
	}

	path := filepath.Join(t.TempDir(), "adhoc.wasm")
	if err := os.WriteFile(path, wasmtest.StubGuest(`["x.jpg"]`), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := svc.Resolve(ctx, Selector{WasmPath: path})
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}

	images, err := svc.Extract(ctx, p, []byte("<html></html>"))
	if err != nil {
		t.Fatalf("Extract() failed: %v", err)
	}
	if len(images) != 1 || images[0] != "x.jpg" {
		t.Errorf("unexpected images: %v", images)
	}
}

func TestExtractFiles(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, wasmtest.StubGuest(`["a.jpg","b.jpg"]`))

	p, err := svc.Resolve(ctx, Selector{Plugin: "stub"})
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}

	dir := t.TempDir()
	var files []string
	for _, name := range []string{"1.html", "2.html", "3.html", "4.html", "5.html"} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(`<div id="readerarea"></div>`), 0o644); err != nil {
			t.Fatal(err)
		}
		files = append(files, path)
	}
	files = append(files, filepath.Join(dir, "missing.html"))

	var mu sync.Mutex
	var results []FileResult
	err = svc.ExtractFiles(ctx, p, files, 3, func(r FileResult) {
		mu.Lock()
		defer mu.Unlock()
		results = append(results, r)
	})
	if err != nil {
		t.Fatalf("ExtractFiles() failed: %v", err)
	}

	if len(results) != len(files) {
		t.Fatalf("expected %d results, got %d", len(files), len(results))
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Path < results[j].Path })

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			if filepath.Base(r.Path) != "missing.html" {
				t.Errorf("unexpected failure for %s: %v", r.Path, r.Err)
			}
			continue
		}
		if len(r.Images) != 2 {
			t.Errorf("%s: expected 2 images, got %v", r.Path, r.Images)
		}
	}
	if failed != 1 {
		t.Errorf("expected 1 failure, got %d", failed)
	}

	// Every worker instance is closed when the batch ends.
	if n := svc.wasmRuntime.InstanceCount(); n != 0 {
		t.Errorf("expected no live instances, got %d", n)
	}
}

func TestExtractFilesReplacesTrappedInstance(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, wasmtest.TrappingGuest(`["a.jpg"]`))

	p, err := svc.Resolve(ctx, Selector{})
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}

	page := `<div id="readerarea"></div>`
	big := page + strings.Repeat("<p>filler</p>", 8)
	if len(page) > wasmtest.TrapLimit || len(big) <= wasmtest.TrapLimit {
		t.Fatalf("page sizes do not straddle the trap limit")
	}

	dir := t.TempDir()
	var files []string
	for i, body := range []string{page, big, page, page} {
		path := filepath.Join(dir, fmt.Sprintf("%d.html", i))
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		files = append(files, path)
	}

	// A single worker sees the files in order, so the trap lands in the
	// middle of its run.
	var results []FileResult
	err = svc.ExtractFiles(ctx, p, files, 1, func(r FileResult) {
		results = append(results, r)
	})
	if err != nil {
		t.Fatalf("ExtractFiles() failed: %v", err)
	}

	if len(results) != len(files) {
		t.Fatalf("expected %d results, got %d", len(files), len(results))
	}
	for i, r := range results {
		if r.Path != files[i] {
			t.Fatalf("result %d is for %s, want %s", i, r.Path, files[i])
		}
		if i == 1 {
			if r.Err == nil {
				t.Errorf("%s: expected the guest to trap", r.Path)
			}
			continue
		}
		if r.Err != nil {
			t.Errorf("%s: unexpected failure after the trap: %v", r.Path, r.Err)
			continue
		}
		if len(r.Images) != 1 || r.Images[0] != "a.jpg" {
			t.Errorf("%s: unexpected images %v", r.Path, r.Images)
		}
	}

	if n := svc.wasmRuntime.InstanceCount(); n != 0 {
		t.Errorf("expected no live instances, got %d", n)
	}
}

func TestExtractFilesEmpty(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, wasmtest.StubGuest(`["a.jpg","b.jpg"]`))

	p, err := svc.Resolve(ctx, Selector{})
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}

	called := false
	if err := svc.ExtractFiles(ctx, p, nil, 0, func(FileResult) { called = true }); err != nil {
		t.Fatalf("ExtractFiles() failed: %v", err)
	}
	if called {
		t.Error("callback should not run for an empty batch")
	}
}
