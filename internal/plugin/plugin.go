package plugin

import (
	"time"

	"github.com/woxQAQ/readerscan/internal/wasm"
)

// Plugin is a loaded parser guest with its manifest.
type Plugin struct {
	Manifest *Manifest

	// Compiled is the compiled Wasm module.
	Compiled *wasm.CompiledModule

	LoadedAt time.Time
}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return p.Manifest.Name
}

// Version returns the plugin version.
func (p *Plugin) Version() string {
	return p.Manifest.Version
}

// Sites returns the host names the plugin handles.
func (p *Plugin) Sites() []string {
	return p.Manifest.Sites
}
