// Package stageprof profiles the stitch and reconstruction pipeline stage by
// stage, labelling each phase for pprof.
package stageprof

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"runtime/pprof"
	"time"

	"github.com/example/go-tomolib/recon"
	"github.com/example/go-tomolib/sino"
	"github.com/example/go-tomolib/volume"
)

type timings struct {
	stitch      time.Duration
	reconstruct time.Duration
	encode      time.Duration
	total       time.Duration
	voxels      int
}

func Main() {
	var (
		projections int
		rows        int
		columns     int
		overlap     float64
		method      string
		iterations  int
		runs        int
		warmup      int
		cpuprofile  string
		debugLogs   bool
	)
	flag.IntVar(&projections, "projections", 64, "projection count of the synthetic full-turn scan")
	flag.IntVar(&rows, "rows", 4, "detector rows")
	flag.IntVar(&columns, "columns", 128, "detector columns")
	flag.Float64Var(&overlap, "overlap", 16, "stitch overlap in detector columns")
	flag.StringVar(&method, "method", "fbp", "reconstruction method (fbp|sirt|cgls)")
	flag.IntVar(&iterations, "iterations", 10, "iteration count for the iterative methods")
	flag.IntVar(&runs, "runs", 5, "number of profiled runs")
	flag.IntVar(&warmup, "warmup", 1, "number of warmup runs")
	flag.StringVar(&cpuprofile, "cpuprofile", "", "write cpu profile")
	flag.BoolVar(&debugLogs, "debug-logs", false, "enable debug logs from pipeline stages")
	flag.Parse()

	if debugLogs {
		slog.SetDefault(
			slog.New(
				slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}),
			),
		)
	}

	if runs < 1 {
		fatalf("--runs must be >= 1")
	}

	if method != "fbp" && method != "sirt" && method != "cgls" {
		fatalf("--method must be fbp, sirt or cgls")
	}

	input := phantom(projections, rows, columns)
	angles := spreadAngles(projections / 2)

	ctx := context.Background()

	for i := range warmup {
		_, err := runOnce(ctx, input, angles, overlap, method, iterations)
		if err != nil {
			fatalf("warmup run %d failed: %v", i+1, err)
		}
	}

	if cpuprofile != "" {
		f, err := os.Create(cpuprofile)
		if err != nil {
			fatalf("create cpuprofile: %v", err)
		}
		defer f.Close()

		err = pprof.StartCPUProfile(f)
		if err != nil {
			fatalf("start cpuprofile: %v", err)
		}

		defer pprof.StopCPUProfile()
	}

	var agg timings

	for i := range runs {
		t, err := runOnce(ctx, input, angles, overlap, method, iterations)
		if err != nil {
			fatalf("profiled run %d failed: %v", i+1, err)
		}

		agg.stitch += t.stitch
		agg.reconstruct += t.reconstruct
		agg.encode += t.encode
		agg.total += t.total
		agg.voxels = t.voxels
	}

	div := float64(runs)
	avgStitch := agg.stitch.Seconds() * 1000 / div
	avgReconstruct := agg.reconstruct.Seconds() * 1000 / div
	avgEncode := agg.encode.Seconds() * 1000 / div
	avgTotal := agg.total.Seconds() * 1000 / div

	fmt.Printf("scan: %dx%dx%d overlap %.1f\n", projections, rows, columns, overlap)
	fmt.Printf("method: %s\n", method)
	fmt.Printf("runs: %d (warmup %d)\n", runs, warmup)
	fmt.Printf("voxels_out: %d\n", agg.voxels)
	fmt.Printf("avg_stitch_ms: %.2f\n", avgStitch)
	fmt.Printf("avg_reconstruct_ms: %.2f\n", avgReconstruct)
	fmt.Printf("avg_encode_ms: %.2f\n", avgEncode)
	fmt.Printf("avg_total_ms: %.2f\n", avgTotal)

	if avgTotal > 0 {
		fmt.Printf("rate_mvox_s: %.3f\n", float64(agg.voxels)/avgTotal/1000)
		fmt.Printf("share_stitch_pct: %.2f\n", 100*avgStitch/avgTotal)
		fmt.Printf("share_reconstruct_pct: %.2f\n", 100*avgReconstruct/avgTotal)
		fmt.Printf("share_encode_pct: %.2f\n", 100*avgEncode/avgTotal)
	}
}

func runOnce(ctx context.Context, input *volume.Volume[float32], angles []float64, overlap float64, method string, iterations int) (timings, error) {
	var out timings
	startTotal := time.Now()

	var stitched *volume.Volume[float32]
	var stitchErr error

	pprof.Do(ctx, pprof.Labels("stage", "stitch"), func(context.Context) {
		start := time.Now()
		stitched, stitchErr = sino.Sino360To180(input, overlap, sino.RotationLeft)
		out.stitch = time.Since(start)
	})

	if stitchErr != nil {
		return out, fmt.Errorf("stitch: %w", stitchErr)
	}

	var slices *volume.Volume[float32]
	var reconErr error

	pprof.Do(ctx, pprof.Labels("stage", "reconstruct"), func(ctx context.Context) {
		start := time.Now()

		switch method {
		case "sirt":
			slices, reconErr = recon.SIRT(ctx, stitched, angles, recon.WithIterations(iterations))
		case "cgls":
			slices, reconErr = recon.CGLS(ctx, stitched, angles, recon.WithIterations(iterations))
		default:
			slices, reconErr = recon.FBP(ctx, stitched, angles)
		}

		out.reconstruct = time.Since(start)
	})

	if reconErr != nil {
		return out, fmt.Errorf("reconstruct: %w", reconErr)
	}

	var encErr error

	pprof.Do(ctx, pprof.Labels("stage", "encode"), func(context.Context) {
		start := time.Now()
		encErr = volume.EncodeNPY(io.Discard, slices)
		out.encode = time.Since(start)
	})

	if encErr != nil {
		return out, fmt.Errorf("encode: %w", encErr)
	}

	out.total = time.Since(startTotal)
	out.voxels = slices.Len()

	return out, nil
}

// phantom builds a deterministic synthetic full-turn sinogram.
func phantom(p, r, c int) *volume.Volume[float32] {
	data := make([]float32, p*r*c)
	for i := range data {
		data[i] = float32(i%97) / 97
	}

	v, err := volume.NewOwned(data, p, r, c)
	if err != nil {
		fatalf("build phantom: %v", err)
	}

	return v
}

// spreadAngles spaces n angles evenly over the half turn.
func spreadAngles(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Pi * float64(i) / float64(n)
	}

	return out
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
