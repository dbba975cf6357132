package plugin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/woxQAQ/readerscan/internal/wasm"
	"go.uber.org/zap"
)

// Loader handles loading plugins from disk.
type Loader struct {
	moduleLoader *wasm.ModuleLoader
	logger       *zap.Logger
}

// NewLoader creates a new plugin loader.
func NewLoader(runtime *wasm.Runtime, logger *zap.Logger) *Loader {
	return &Loader{
		moduleLoader: wasm.NewModuleLoader(runtime, logger),
		logger:       logger.With(zap.String("component", "plugin-loader")),
	}
}

// LoadPlugin loads a single plugin from a directory.
func (l *Loader) LoadPlugin(ctx context.Context, dir string) (*Plugin, error) {
	l.logger.Debug("Loading plugin", zap.String("dir", dir))

	manifest, err := ParseManifest(dir)
	if err != nil {
		return nil, err
	}

	l.logger.Info("Loading plugin",
		zap.String("name", manifest.Name),
		zap.String("version", manifest.Version),
		zap.Strings("sites", manifest.Sites),
	)

	return l.compile(ctx, manifest)
}

// LoadStandalone loads a bare Wasm file that has no manifest. The plugin is
// named after the file and serves no sites.
func (l *Loader) LoadStandalone(ctx context.Context, wasmPath string) (*Plugin, error) {
	if _, err := os.Stat(wasmPath); err != nil {
		return nil, &WasmNotFoundError{WasmFile: wasmPath}
	}

	manifest := &Manifest{
		Name:         strings.TrimSuffix(filepath.Base(wasmPath), filepath.Ext(wasmPath)),
		Version:      "standalone",
		Wasm:         WasmConfig{File: filepath.Base(wasmPath)},
		Capabilities: []string{CapabilityChapterImages},
		dir:          filepath.Dir(wasmPath),
	}

	return l.compile(ctx, manifest)
}

// compile compiles the manifest's module (uses the runtime's cache) and
// checks it exports the parser ABI.
func (l *Loader) compile(ctx context.Context, manifest *Manifest) (*Plugin, error) {
	compiled, err := l.moduleLoader.LoadModuleFromFile(ctx, manifest.WasmPath())
	if err != nil {
		return nil, &PluginLoadError{
			PluginName: manifest.Name,
			Err:        err,
		}
	}

	if err := wasm.RequireExports(compiled, manifest.ExportNames()); err != nil {
		return nil, &PluginLoadError{
			PluginName: manifest.Name,
			Err:        err,
		}
	}

	p := &Plugin{
		Manifest: manifest,
		Compiled: compiled,
		LoadedAt: time.Now(),
	}

	l.logger.Info("Plugin loaded successfully",
		zap.String("name", manifest.Name),
		zap.Int64("size_bytes", compiled.SizeBytes),
	)

	return p, nil
}

// DiscoverPlugins scans directories for plugins, one per subdirectory.
func (l *Loader) DiscoverPlugins(ctx context.Context, paths []string) ([]*Plugin, error) {
	var plugins []*Plugin
	var errs []error

	for _, basePath := range paths {
		l.logger.Debug("Scanning plugin directory", zap.String("path", basePath))

		entries, err := os.ReadDir(basePath)
		if err != nil {
			if os.IsNotExist(err) {
				l.logger.Warn("Plugin path does not exist", zap.String("path", basePath))
				continue
			}
			return nil, fmt.Errorf("failed to read directory '%s': %w", basePath, err)
		}

		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}

			pluginDir := filepath.Join(basePath, entry.Name())

			p, err := l.LoadPlugin(ctx, pluginDir)
			if err != nil {
				l.logger.Error("Failed to load plugin",
					zap.String("dir", pluginDir),
					zap.Error(err),
				)
				errs = append(errs, err)
				continue
			}

			plugins = append(plugins, p)
		}
	}

	if len(plugins) > 0 && len(errs) > 0 {
		l.logger.Warn("Some plugins failed to load",
			zap.Int("loaded", len(plugins)),
			zap.Int("failed", len(errs)),
		)
	}

	if len(plugins) == 0 {
		return nil, &NoPluginsFoundError{Paths: paths}
	}

	return plugins, nil
}
