package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/example/go-tomolib/recon"
	"github.com/example/go-tomolib/safetensors"
	"github.com/example/go-tomolib/toolkit"
	"github.com/example/go-tomolib/volume"
	"github.com/spf13/cobra"
)

func newInfoCmd() *cobra.Command {
	var (
		in        string
		withStats bool
	)

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show backend, toolkit and container details",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if withStats && in == "" {
				return fmt.Errorf("--stats requires --in")
			}

			backendName, err := ensureBackend(cfg)
			if err != nil {
				return err
			}

			engine := recon.CurrentBackendInfo()
			_, _ = fmt.Fprintf(os.Stdout, "backend: %s\n", backendName)
			_, _ = fmt.Fprintf(os.Stdout, "engine: %s", engine.Name)
			if engine.Version != "" {
				_, _ = fmt.Fprintf(os.Stdout, " %s", engine.Version)
			}
			_, _ = fmt.Fprintln(os.Stdout)
			if engine.Description != "" {
				_, _ = fmt.Fprintf(os.Stdout, "description: %s\n", engine.Description)
			}

			path, err := toolkit.DetectLibrary(toolkit.Config{LibraryPath: cfg.Toolkit.LibraryPath})
			if err != nil {
				_, _ = fmt.Fprintln(os.Stdout, "toolkit library: not found")
			} else {
				_, _ = fmt.Fprintf(os.Stdout, "toolkit library: %s\n", path)
			}

			if in != "" {
				if err := printContainerInfo(os.Stdout, in); err != nil {
					return err
				}

				if withStats {
					return printVolumeStats(os.Stdout, in)
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&in, "in", "", "Optional volume container to inspect (.npy or .safetensors)")
	cmd.Flags().BoolVar(&withStats, "stats", false, "Decode the volume and print value statistics")

	return cmd
}

// printContainerInfo reads just the container header to report its layout.
func printContainerInfo(w io.Writer, path string) error {
	if isSafetensorsPath(path) {
		return printSafetensorsInfo(w, path)
	}

	info, err := volume.ProbeNPY(path)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(w, "container: %s\n", path)
	_, _ = fmt.Fprintf(w, "shape: (%d, %d, %d)\n", info.P, info.R, info.C)
	_, _ = fmt.Fprintf(w, "dtype: %s\n", info.DType)
	_, _ = fmt.Fprintf(w, "voxels: %d\n", info.P*info.R*info.C)

	return nil
}

// printVolumeStats decodes the full payload and reports its value
// distribution.
func printVolumeStats(w io.Writer, path string) error {
	v, _, err := readScanInput(path, nil)
	if err != nil {
		return err
	}

	s, err := volume.Summary(v)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(w, "min: %g\n", s.Min)
	_, _ = fmt.Fprintf(w, "max: %g\n", s.Max)
	_, _ = fmt.Fprintf(w, "mean: %g\n", s.Mean)
	_, _ = fmt.Fprintf(w, "median: %g\n", s.Median)
	_, _ = fmt.Fprintf(w, "stddev: %g\n", s.StdDev)
	_, _ = fmt.Fprintf(w, "rms: %g\n", s.RMS)
	_, _ = fmt.Fprintf(w, "sum: %g\n", s.Sum)

	return nil
}

func printSafetensorsInfo(w io.Writer, path string) error {
	store, err := safetensors.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	info, err := store.Info(safetensors.VolumeTensor)
	if err != nil {
		return err
	}

	voxels := int64(1)
	shape := make([]string, len(info.Shape))
	for i, d := range info.Shape {
		shape[i] = strconv.FormatInt(d, 10)
		voxels *= d
	}

	_, _ = fmt.Fprintf(w, "container: %s\n", path)
	_, _ = fmt.Fprintf(w, "shape: (%s)\n", strings.Join(shape, ", "))
	_, _ = fmt.Fprintf(w, "dtype: %s\n", info.DType)
	_, _ = fmt.Fprintf(w, "voxels: %d\n", voxels)

	if store.Has(safetensors.AnglesTensor) {
		_, _ = fmt.Fprintln(w, "angles: embedded")
	}

	return nil
}
