package plugin

import (
	"context"
	"fmt"
	"sync"

	"github.com/woxQAQ/readerscan/internal/config"
	"github.com/woxQAQ/readerscan/internal/wasm"
	"go.uber.org/zap"
)

// Manager manages plugin lifecycle.
type Manager struct {
	cfg         *config.Config
	runtime     *wasm.Runtime
	loader      *Loader
	registry    *Registry
	instanceMgr *wasm.InstanceManager
	logger      *zap.Logger

	mu     sync.RWMutex
	loaded bool
}

// NewManager creates a new plugin manager.
func NewManager(cfg *config.Config, runtime *wasm.Runtime, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:         cfg,
		runtime:     runtime,
		loader:      NewLoader(runtime, logger),
		registry:    NewRegistry(logger),
		instanceMgr: wasm.NewInstanceManager(runtime, logger),
		logger:      logger.With(zap.String("component", "plugin-manager")),
	}
}

// LoadAll discovers and registers all plugins from the configured paths.
func (m *Manager) LoadAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loaded {
		return fmt.Errorf("plugins already loaded")
	}

	m.logger.Info("Loading plugins",
		zap.Strings("paths", m.cfg.PluginPaths),
	)

	plugins, err := m.loader.DiscoverPlugins(ctx, m.cfg.PluginPaths)
	if err != nil {
		// Having no plugins is not fatal; --wasm can still supply one.
		if _, ok := err.(*NoPluginsFoundError); ok {
			m.logger.Warn("No plugins found in configured paths",
				zap.Strings("paths", m.cfg.PluginPaths),
			)
			m.loaded = true
			return nil
		}
		return err
	}

	for _, p := range plugins {
		if err := m.registry.Register(p); err != nil {
			m.logger.Error("Failed to register plugin",
				zap.String("name", p.Manifest.Name),
				zap.Error(err),
			)
			continue
		}
	}

	m.loaded = true

	m.logger.Info("Plugins loaded successfully",
		zap.Int("count", m.registry.Count()),
	)

	return nil
}

// LoadStandalone loads and registers a bare Wasm file. It replaces a
// registered plugin of the same name, so an explicit file always wins over
// one discovered in the plugin paths.
func (m *Manager) LoadStandalone(ctx context.Context, wasmPath string) (*Plugin, error) {
	p, err := m.loader.LoadStandalone(ctx, wasmPath)
	if err != nil {
		return nil, err
	}
	if old, ok := m.registry.Get(p.Name()); ok {
		m.logger.Info("Replacing registered plugin with standalone module",
			zap.String("name", p.Name()),
			zap.String("previous", old.Manifest.WasmPath()),
			zap.String("wasm", wasmPath),
		)
		m.registry.Unregister(p.Name())
	}
	if err := m.registry.Register(p); err != nil {
		return nil, err
	}
	return p, nil
}

// GetPlugin retrieves a plugin by name.
func (m *Manager) GetPlugin(name string) (*Plugin, error) {
	p, ok := m.registry.Get(name)
	if !ok {
		return nil, &PluginNotFoundError{PluginName: name}
	}
	return p, nil
}

// FindPluginForSite finds the plugin serving a host name.
func (m *Manager) FindPluginForSite(host string) (*Plugin, error) {
	plugins := m.registry.LookupBySite(host)
	if len(plugins) == 0 {
		return nil, &NoPluginForSiteError{Site: host}
	}

	// First registered wins when several plugins claim the same site.
	return plugins[0], nil
}

// Instantiate creates a new instance of a plugin.
func (m *Manager) Instantiate(ctx context.Context, name string) (*wasm.Instance, error) {
	p, ok := m.registry.Get(name)
	if !ok {
		return nil, &PluginNotFoundError{PluginName: name}
	}

	return m.instanceMgr.Instantiate(ctx, &wasm.InstanceConfig{
		ModuleName: p.Compiled.Name,
		Exports:    p.Manifest.ExportNames(),
	})
}

// NewExtractor instantiates a plugin and binds an Extractor to it. The
// caller closes the returned instance.
func (m *Manager) NewExtractor(ctx context.Context, name string) (*wasm.Extractor, *wasm.Instance, error) {
	inst, err := m.Instantiate(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	return wasm.NewExtractor(inst, m.cfg.Wasm.Timeout(), m.logger), inst, nil
}

// Shutdown gracefully shuts down all plugins.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down plugin manager")

	// Runtime close handles instance cleanup
	if err := m.runtime.Close(ctx); err != nil {
		m.logger.Error("Failed to shutdown runtime", zap.Error(err))
		return err
	}

	m.logger.Info("Plugin manager shutdown complete")
	return nil
}

// Registry returns the plugin registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}
