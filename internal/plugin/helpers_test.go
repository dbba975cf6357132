package plugin

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/woxQAQ/readerscan/internal/wasm/wasmtest"
)

const validManifest = `name: readerarea
version: 1.0.0
sites:
  - example.com
  - manga.example.org
wasm:
  file: readerarea.wasm
capabilities:
  - chapter_images
author: test
license: MIT
`

// writePlugin creates root/name with the given manifest and, when wasmBytes
// is non-nil, a readerarea.wasm file.
func writePlugin(t *testing.T, root, name, manifest string, wasmBytes []byte) string {
	t.Helper()

	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	if manifest != "" {
		if err := os.WriteFile(filepath.Join(dir, ManifestFile), []byte(manifest), 0o644); err != nil {
			t.Fatalf("write manifest: %v", err)
		}
	}
	if wasmBytes != nil {
		if err := os.WriteFile(filepath.Join(dir, "readerarea.wasm"), wasmBytes, 0o644); err != nil {
			t.Fatalf("write wasm: %v", err)
		}
	}
	return dir
}

func writeValidPlugin(t *testing.T, root string) string {
	t.Helper()
	return writePlugin(t, root, "readerarea", validManifest, wasmtest.StubGuest(`["stub"]`))
}
