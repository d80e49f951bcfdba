package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/example/go-tomolib/internal/config"
	"github.com/example/go-tomolib/internal/doctor"
	"github.com/example/go-tomolib/recon"
	"github.com/example/go-tomolib/safetensors"
	"github.com/example/go-tomolib/toolkit"
	"github.com/example/go-tomolib/volume"
	"github.com/spf13/cobra"
)

func newDoctorCmd() *cobra.Command {
	var dataFiles []string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run local backend and data checks",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			backend, err := config.NormalizeBackend(cfg.Backend)
			if err != nil {
				return err
			}

			cpuMode := backend == config.BackendCPU
			_, _ = fmt.Fprintf(os.Stdout, "backend: %s\n", backend)

			dcfg := doctor.Config{
				Backend: recon.CurrentBackendInfo().Name,
				ToolkitVersion: func() (string, error) {
					return probeToolkitVersion(cfg)
				},
				SkipToolkit:       cpuMode,
				DataFiles:         dataFiles,
				ValidateContainer: validateContainerHeader,
				MemoryBudget:      cfg.Chunk.MemoryBudget,
			}

			result := doctor.Run(dcfg, os.Stdout)

			if result.Failed() {
				for _, f := range result.Failures() {
					// #nosec G705 -- Writes plain diagnostic text to stderr for CLI output, not HTML rendering.
					fmt.Fprintf(os.Stderr, "FAIL: %s\n", f)
				}

				return errors.New("doctor checks failed")
			}

			_, _ = fmt.Fprintln(os.Stdout, "doctor checks passed")

			return nil
		},
	}

	cmd.Flags().StringArrayVar(&dataFiles, "data", nil, "Sinogram container path to verify (repeatable)")

	return cmd
}

// probeToolkitVersion loads the native library and reports its version. A
// load failure is the doctor finding, not a crash.
func probeToolkitVersion(cfg config.Config) (string, error) {
	info, err := toolkit.Bootstrap(toolkit.Config{LibraryPath: cfg.Toolkit.LibraryPath})
	if err != nil {
		return "", err
	}

	return info.Version, nil
}

// validateContainerHeader confirms the file parses as a 3-D volume container
// without decoding its payload.
func validateContainerHeader(path string) error {
	if isSafetensorsPath(path) {
		store, err := safetensors.Open(path)
		if err != nil {
			return err
		}
		defer store.Close()

		info, err := store.Info(safetensors.VolumeTensor)
		if err != nil {
			return err
		}

		if len(info.Shape) != 3 {
			return fmt.Errorf("expected a 3-D volume, got shape %v", info.Shape)
		}

		return nil
	}

	_, err := volume.ProbeNPY(path)
	return err
}
