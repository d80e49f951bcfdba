package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/example/go-tomolib/internal/bench"
	"github.com/example/go-tomolib/sino"
	"github.com/example/go-tomolib/volume"
	"github.com/spf13/cobra"
)

func newBenchCmd() *cobra.Command {
	var (
		projections   int
		rows          int
		columns       int
		overlap       float64
		method        string
		iterations    int
		runs          int
		format        string
		rateThreshold float64
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark the stitch and reconstruction pipeline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if projections < 2 || rows < 1 || columns < 1 {
				return fmt.Errorf("--projections must be at least 2 and --rows/--columns at least 1")
			}
			if runs < 1 {
				return fmt.Errorf("--runs must be at least 1")
			}
			if format != "table" && format != "json" {
				return fmt.Errorf("--format must be 'table' or 'json'")
			}

			selectedMethod, err := normalizeMethod(method)
			if err != nil {
				return err
			}

			if _, err := ensureBackend(cfg); err != nil {
				return err
			}

			results, err := runBenchWorkload(cmd.Context(), benchOptions{
				Projections: projections,
				Rows:        rows,
				Columns:     columns,
				Overlap:     overlap,
				Method:      selectedMethod,
				Iterations:  iterations,
				Runs:        runs,
				Device:      cfg.Recon.Device,
			})
			if err != nil {
				return err
			}

			durations := make([]time.Duration, len(results))
			for i, r := range results {
				durations[i] = r.Duration
			}
			stats := bench.ComputeStats(durations)

			switch format {
			case "json":
				bench.FormatJSON(results, stats, os.Stdout)
			default:
				bench.FormatTable(results, stats, os.Stdout)
			}

			// Compute mean throughput across all runs.
			var totalRate float64
			for _, r := range results {
				totalRate += r.Rate
			}
			meanRate := totalRate / float64(len(results))

			if err := bench.CheckRateThreshold(meanRate, rateThreshold); err != nil {
				return err
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&projections, "projections", 64, "Projection count of the synthetic full-turn scan")
	cmd.Flags().IntVar(&rows, "rows", 4, "Detector rows of the synthetic scan")
	cmd.Flags().IntVar(&columns, "columns", 128, "Detector columns of the synthetic scan")
	cmd.Flags().Float64Var(&overlap, "overlap", 16, "Stitch overlap in detector columns")
	cmd.Flags().StringVar(&method, "method", "fbp", "Reconstruction method (fbp|sirt|cgls)")
	cmd.Flags().IntVar(&iterations, "iterations", 10, "Iteration count for sirt and cgls")
	cmd.Flags().IntVar(&runs, "runs", 5, "Number of pipeline runs")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table|json")
	cmd.Flags().Float64Var(&rateThreshold, "rate-threshold", 0, "Exit non-zero if mean throughput in Mvox/s falls below this value (0 = disabled)")

	return cmd
}

type benchOptions struct {
	Projections int
	Rows        int
	Columns     int
	Overlap     float64
	Method      string
	Iterations  int
	Runs        int
	Device      int
}

func runBenchWorkload(ctx context.Context, opts benchOptions) ([]bench.RunResult, error) {
	input, err := syntheticScan(opts.Projections, opts.Rows, opts.Columns)
	if err != nil {
		return nil, err
	}

	angles, err := anglesForScan("", nil, 180, opts.Projections/2)
	if err != nil {
		return nil, err
	}

	call := reconCall(opts.Method)
	reconOpts := buildReconOpts(reconOptions{
		Iterations:    opts.Iterations,
		Nonnegativity: true,
		Device:        opts.Device,
	})

	results := make([]bench.RunResult, 0, opts.Runs)

	for i := range opts.Runs {
		start := time.Now()

		stitched, err := sino.Sino360To180(input, opts.Overlap, sino.RotationLeft)
		if err != nil {
			return nil, fmt.Errorf("run %d failed: %w", i+1, err)
		}

		slices, err := call(ctx, stitched, angles, reconOpts...)
		if err != nil {
			return nil, fmt.Errorf("run %d failed: %w", i+1, err)
		}

		dur := time.Since(start)
		voxels := int64(slices.Len())

		results = append(results, bench.RunResult{
			Index:    i,
			Cold:     i == 0,
			Duration: dur,
			Voxels:   voxels,
			Rate:     bench.CalcRate(voxels, dur),
		})
	}

	return results, nil
}

// syntheticScan builds a deterministic full-turn sinogram for benchmarking.
func syntheticScan(p, r, c int) (*volume.Volume[float32], error) {
	data := make([]float32, p*r*c)
	for i := range data {
		data[i] = float32(i%97) / 97
	}

	return volume.NewOwned(data, p, r, c)
}
