package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Backend  string        `mapstructure:"backend"`
	LogLevel string        `mapstructure:"log_level"`
	Toolkit  ToolkitConfig `mapstructure:"toolkit"`
	Recon    ReconConfig   `mapstructure:"recon"`
	Chunk    ChunkConfig   `mapstructure:"chunk"`
}

type ToolkitConfig struct {
	LibraryPath string `mapstructure:"library_path"`
}

type ReconConfig struct {
	Device int `mapstructure:"device"`
}

type ChunkConfig struct {
	MemoryBudget int64 `mapstructure:"memory_budget"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		Backend:  BackendAuto,
		LogLevel: "info",
		Toolkit: ToolkitConfig{
			LibraryPath: "",
		},
		Recon: ReconConfig{
			Device: 0,
		},
		Chunk: ChunkConfig{
			MemoryBudget: 0,
		},
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("backend", defaults.Backend, "Reconstruction backend (auto|cpu|toolkit)")
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
	fs.String("toolkit-library-path", defaults.Toolkit.LibraryPath, "Path to the native toolkit shared library")
	fs.String("toolkit-lib", defaults.Toolkit.LibraryPath, "Path to the native toolkit shared library (alias for --toolkit-library-path)")
	fs.Int("recon-device", defaults.Recon.Device, "Device index for the toolkit backend")
	fs.Int64("chunk-memory-budget", defaults.Chunk.MemoryBudget, "Byte budget for chunked runs (0 runs unchunked)")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := v.BindPFlags(opts.Cmd.Flags()); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}
	registerAliases(v)

	v.SetEnvPrefix("TOMOLIB")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	if err := v.BindEnv("toolkit.library_path", "TOMOLIB_TOOLKIT_LIB", "TOMOREC_LIBRARY_PATH"); err != nil {
		return Config{}, fmt.Errorf("bind toolkit env vars: %w", err)
	}
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("tomolib")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("backend", c.Backend)
	v.SetDefault("log_level", c.LogLevel)
	v.SetDefault("toolkit.library_path", c.Toolkit.LibraryPath)
	v.SetDefault("recon.device", c.Recon.Device)
	v.SetDefault("chunk.memory_budget", c.Chunk.MemoryBudget)
}

func registerAliases(v *viper.Viper) {
	v.RegisterAlias("log_level", "log-level")
	v.RegisterAlias("toolkit.library_path", "toolkit-library-path")
	v.RegisterAlias("toolkit.library_path", "toolkit-lib")
	v.RegisterAlias("recon.device", "recon-device")
	v.RegisterAlias("chunk.memory_budget", "chunk-memory-budget")
}
