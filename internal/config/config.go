package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. READERSCAN_LOG_LEVEL or
// READERSCAN_WASM_MEMORY_PAGES.
const EnvPrefix = "READERSCAN"

type Config struct {
	PluginPaths []string    `mapstructure:"plugin_paths"`
	LogLevel    string      `mapstructure:"log_level"`
	Wasm        WasmConfig  `mapstructure:"wasm"`
	Batch       BatchConfig `mapstructure:"batch"`
}

// WasmConfig holds Wasm runtime configuration.
type WasmConfig struct {
	// Memory limit per guest (in pages, 64KB each).
	MemoryPages uint32 `mapstructure:"memory_pages"`
	// Forward guest stderr to the host.
	Debug bool `mapstructure:"debug"`
	// Compilation cache directory.
	CacheDir string `mapstructure:"cache_dir"`
	// Maximum live instances.
	MaxInstances int `mapstructure:"max_instances"`
	// Per-document execution timeout (seconds). 0 disables it.
	ExecutionTimeout int `mapstructure:"execution_timeout"`
}

// Timeout returns ExecutionTimeout as a duration.
func (w WasmConfig) Timeout() time.Duration {
	return time.Duration(w.ExecutionTimeout) * time.Second
}

// BatchConfig holds settings for directory extraction.
type BatchConfig struct {
	// Parallel guest instances.
	Workers int `mapstructure:"workers"`
	// Extension written next to each input file.
	OutputExt string `mapstructure:"output_ext"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("plugin_paths", []string{"./plugins"})
	v.SetDefault("log_level", "info")

	// Wasm defaults
	v.SetDefault("wasm.memory_pages", 256) // 16MB
	v.SetDefault("wasm.debug", false)
	v.SetDefault("wasm.cache_dir", "")
	v.SetDefault("wasm.max_instances", 100)
	v.SetDefault("wasm.execution_timeout", 30)

	v.SetDefault("batch.workers", 4)
	v.SetDefault("batch.output_ext", ".json")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
