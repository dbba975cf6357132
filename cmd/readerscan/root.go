package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/woxQAQ/readerscan/internal/config"
	"github.com/woxQAQ/readerscan/internal/service"
	"github.com/woxQAQ/readerscan/pkg/protocol"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// cli holds state shared by every subcommand. cfg and logger are set in
// the root command's PersistentPreRunE.
type cli struct {
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "readerscan",
		Short: "Extract chapter image URLs with sandboxed Wasm parsers",
		Long: `readerscan - Run reader-area parser plugins compiled to WebAssembly.

Each plugin is a Wasm guest exporting alloc, dealloc and
parse_chapter_images. Plugins are discovered from the configured plugin
paths, or a single module can be run directly with --wasm.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&c.configPath, "config", "", "Path to configuration file")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	root.AddCommand(
		newExtractCmd(c),
		newBatchCmd(c),
		newPluginsCmd(c),
		newVersionCmd(),
	)

	return root
}

func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	c.cfg = cfg
	c.logger = logger
	return nil
}

// newLogger builds a development logger for debug and a production logger
// otherwise. Both write to stderr.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var zc zap.Config
	if lvl == zapcore.DebugLevel {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)

	return zc.Build()
}

// selectorFlags registers the plugin selection flags shared by extract and
// batch.
func selectorFlags(cmd *cobra.Command, sel *service.Selector) {
	cmd.Flags().StringVar(&sel.Plugin, "plugin", "", "Plugin name")
	cmd.Flags().StringVar(&sel.Site, "site", "", "Pick the plugin registered for this host")
	cmd.Flags().StringVar(&sel.WasmPath, "wasm", "", "Run a Wasm module directly, without a manifest")
	cmd.MarkFlagsMutuallyExclusive("plugin", "site", "wasm")
}

// writeImages writes images as a single-line JSON array.
func writeImages(w io.Writer, images protocol.ImageList) error {
	if images == nil {
		images = protocol.ImageList{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(images)
}
