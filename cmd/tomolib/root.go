package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/example/go-tomolib/internal/config"
	"github.com/example/go-tomolib/toolkit"
	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	activeCfg config.Config
)

func NewRootCmd() *cobra.Command {
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "tomolib",
		Short: "Tomographic preprocessing and reconstruction command line",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(config.LoadOptions{
				Cmd:        cmd,
				ConfigFile: cfgFile,
				Defaults:   defaults,
			})
			if err != nil {
				return err
			}
			activeCfg = loaded
			setupLogger(loaded.LogLevel)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Optional config file (yaml|toml|json)")
	config.RegisterFlags(cmd.PersistentFlags(), defaults)

	cmd.AddCommand(newStitchCmd())
	cmd.AddCommand(newReconCmd())
	cmd.AddCommand(newInfoCmd())
	cmd.AddCommand(newBenchCmd())
	cmd.AddCommand(newDoctorCmd())

	return cmd
}

// setupLogger configures the process-wide slog default logger.
func setupLogger(levelStr string) {
	lvl, err := config.ParseLogLevel(levelStr)
	if err != nil {
		lvl = slog.LevelInfo
	}
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(h))
}

func requireConfig() (config.Config, error) {
	if activeCfg.Backend == "" {
		return config.Config{}, fmt.Errorf("configuration not loaded")
	}
	return activeCfg, nil
}

// ensureBackend activates the reconstruction backend the config selects and
// returns the name of the backend that will serve this process. The auto
// backend prefers the native toolkit and falls back to the CPU engine when no
// library can be loaded; an explicit toolkit request makes that failure fatal.
func ensureBackend(cfg config.Config) (string, error) {
	backend, err := config.NormalizeBackend(cfg.Backend)
	if err != nil {
		return "", err
	}

	if backend == config.BackendCPU {
		return config.BackendCPU, nil
	}

	_, bootErr := toolkit.Bootstrap(toolkit.Config{LibraryPath: cfg.Toolkit.LibraryPath})
	if bootErr != nil {
		if backend == config.BackendToolkit {
			return "", fmt.Errorf("toolkit backend requested: %w", bootErr)
		}

		slog.Debug("toolkit unavailable, using cpu backend", "error", bootErr)

		return config.BackendCPU, nil
	}

	return config.BackendToolkit, nil
}
