// Package service wires configuration, the Wasm runtime and the plugin
// manager into the operations exposed by the command line.
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/woxQAQ/readerscan/internal/config"
	"github.com/woxQAQ/readerscan/internal/plugin"
	"github.com/woxQAQ/readerscan/internal/wasm"
	"github.com/woxQAQ/readerscan/pkg/protocol"
	"go.uber.org/zap"
)

// ErrNoPlugin is returned by Resolve when nothing selects a plugin.
var ErrNoPlugin = errors.New("no plugin selected: use --plugin, --site or --wasm")

type Service struct {
	cfg         *config.Config
	logger      *zap.Logger
	wasmRuntime *wasm.Runtime
	plugins     *plugin.Manager
}

func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Service, error) {
	// Initialize Wasm runtime.
	wasmConfig := &wasm.RuntimeConfig{
		MemoryPages:  cfg.Wasm.MemoryPages,
		DebugEnabled: cfg.Wasm.Debug,
		CacheDir:     cfg.Wasm.CacheDir,
		MaxInstances: cfg.Wasm.MaxInstances,
	}

	wasmRuntime, err := wasm.NewRuntime(ctx, logger, wasmConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Wasm runtime: %w", err)
	}

	plugins := plugin.NewManager(cfg, wasmRuntime, logger)
	if err := plugins.LoadAll(ctx); err != nil {
		_ = wasmRuntime.Close(ctx)
		return nil, fmt.Errorf("failed to load plugins: %w", err)
	}

	logger.Info("Service initialized",
		zap.Uint32("wasm_memory_pages", cfg.Wasm.MemoryPages),
		zap.String("wasm_cache_dir", cfg.Wasm.CacheDir),
		zap.Int("plugins", plugins.Registry().Count()),
	)

	return &Service{
		cfg:         cfg,
		logger:      logger,
		wasmRuntime: wasmRuntime,
		plugins:     plugins,
	}, nil
}

// Plugins returns the plugin manager.
func (s *Service) Plugins() *plugin.Manager {
	return s.plugins
}

// Selector picks the plugin for an extraction. The first non-empty field
// wins, in WasmPath, Plugin, Site order.
type Selector struct {
	WasmPath string
	Plugin   string
	Site     string
}

// Resolve returns the plugin chosen by sel. With an empty selector the only
// registered plugin is used.
func (s *Service) Resolve(ctx context.Context, sel Selector) (*plugin.Plugin, error) {
	switch {
	case sel.WasmPath != "":
		return s.plugins.LoadStandalone(ctx, sel.WasmPath)
	case sel.Plugin != "":
		return s.plugins.GetPlugin(sel.Plugin)
	case sel.Site != "":
		return s.plugins.FindPluginForSite(sel.Site)
	}

	if list := s.plugins.Registry().List(); len(list) == 1 {
		return list[0], nil
	}
	return nil, ErrNoPlugin
}

// Extract runs one document through a fresh instance of p.
func (s *Service) Extract(ctx context.Context, p *plugin.Plugin, html []byte) (protocol.ImageList, error) {
	extractor, inst, err := s.plugins.NewExtractor(ctx, p.Name())
	if err != nil {
		return nil, err
	}
	defer inst.Close(ctx)

	return extractor.Extract(ctx, html)
}

// FileResult is the outcome of extracting one file in a batch.
type FileResult struct {
	Path   string
	Images protocol.ImageList
	Err    error
}

// ExtractFiles extracts every file with up to workers instances of p, each
// owned by a single goroutine. done is called once per file from the
// worker goroutines. A worker whose instance trapped or was closed swaps
// it for a fresh one before its next file. Instantiation failures before
// the first file abort the batch; later ones fail that worker's remaining
// files.
func (s *Service) ExtractFiles(ctx context.Context, p *plugin.Plugin, files []string, workers int, done func(FileResult)) error {
	if len(files) == 0 {
		return nil
	}
	if workers <= 0 {
		workers = s.cfg.Batch.Workers
	}
	workers = max(1, min(workers, len(files)))

	pool := make([]*worker, 0, workers)
	defer func() {
		for _, w := range pool {
			w.close(ctx)
		}
	}()
	for i := 0; i < workers; i++ {
		w := &worker{svc: s, plugin: p}
		if err := w.renew(ctx); err != nil {
			return err
		}
		pool = append(pool, w)
	}

	jobs := make(chan string)
	var wg sync.WaitGroup
	for _, w := range pool {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				done(w.extract(ctx, path))
			}
		}()
	}

feed:
	for _, path := range files {
		select {
		case jobs <- path:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	return ctx.Err()
}

// worker is one batch goroutine's guest instance.
type worker struct {
	svc    *Service
	plugin *plugin.Plugin

	extractor *wasm.Extractor
	instance  *wasm.Instance
	err       error
}

func (w *worker) renew(ctx context.Context) error {
	w.close(ctx)
	w.extractor, w.instance, w.err = w.svc.plugins.NewExtractor(ctx, w.plugin.Name())
	return w.err
}

func (w *worker) close(ctx context.Context) {
	if w.instance != nil {
		_ = w.instance.Close(ctx)
		w.instance = nil
	}
}

func (w *worker) extract(ctx context.Context, path string) FileResult {
	if w.err == nil && !w.extractor.Usable() {
		w.svc.logger.Warn("Replacing guest instance",
			zap.String("plugin", w.plugin.Name()),
			zap.String("instance", w.instance.ID),
		)
		if err := w.renew(ctx); err != nil {
			w.svc.logger.Error("Failed to replace guest instance", zap.Error(err))
		}
	}
	if w.err != nil {
		return FileResult{Path: path, Err: w.err}
	}
	return w.svc.extractFile(ctx, w.extractor, path)
}

func (s *Service) extractFile(ctx context.Context, extractor *wasm.Extractor, path string) FileResult {
	html, err := os.ReadFile(path)
	if err != nil {
		return FileResult{Path: path, Err: err}
	}

	images, err := extractor.Extract(ctx, html)
	if err != nil {
		s.logger.Warn("Extraction failed", zap.String("path", path), zap.Error(err))
		return FileResult{Path: path, Err: err}
	}
	return FileResult{Path: path, Images: images}
}

// Close gracefully shuts down the service.
func (s *Service) Close(ctx context.Context) error {
	s.logger.Info("Shutting down service")

	if err := s.plugins.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to shutdown plugins", zap.Error(err))
		return err
	}

	s.logger.Info("Service shutdown complete")
	return nil
}
