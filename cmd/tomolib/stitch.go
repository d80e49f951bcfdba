package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/example/go-tomolib/chunk"
	"github.com/example/go-tomolib/safetensors"
	"github.com/example/go-tomolib/sino"
	"github.com/example/go-tomolib/volume"
	"github.com/spf13/cobra"
)

func newStitchCmd() *cobra.Command {
	var in string
	var out string
	var overlap float64
	var rotation string

	cmd := &cobra.Command{
		Use:   "stitch",
		Short: "Stitch a 360-degree sinogram into its 180-degree equivalent",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			side, err := sino.ParseRotation(rotation)
			if err != nil {
				return err
			}

			data, angles, err := readScanInput(in, os.Stdin)
			if err != nil {
				return err
			}

			p, r, c := data.Dims()
			slog.Debug("stitching scan", "projections", p, "pairs", p/2, "rows", r, "columns", c, "overlap", overlap)

			result, err := runStitch(data, overlap, side, cfg.Chunk.MemoryBudget)
			if err != nil {
				return err
			}

			return writeScanOutput(out, result, stitchedAngles(angles, result), os.Stdout)
		},
	}

	cmd.Flags().StringVar(&in, "in", "", "Input volume path, .npy or .safetensors ('-' for NPY on stdin)")
	cmd.Flags().StringVar(&out, "out", "stitched.npy", "Output path, .npy or .safetensors ('-' for NPY on stdout)")
	cmd.Flags().Float64Var(&overlap, "overlap", 0, "Detector overlap of the two half turns in columns")
	cmd.Flags().StringVar(&rotation, "rotation", "left", "Side the second half turn overlaps (left|right)")

	return cmd
}

func isSafetensorsPath(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".safetensors")
}

// readScanInput loads a sinogram container. NPY files carry no angles;
// safetensors files may embed an angle vector next to the volume.
func readScanInput(inPath string, stdin io.Reader) (volume.Any, []float64, error) {
	if inPath == "" {
		return nil, nil, fmt.Errorf("--in is required")
	}
	if inPath == "-" {
		if stdin == nil {
			return nil, nil, fmt.Errorf("stdin reader is nil")
		}
		v, err := volume.DecodeNPY(stdin)
		return v, nil, err
	}
	if isSafetensorsPath(inPath) {
		return safetensors.ReadVolume(inPath)
	}
	v, err := volume.ReadNPY(inPath)
	return v, nil, err
}

// writeScanOutput stores the volume in the format the output path names.
// Angles are only representable in safetensors output and may be nil.
func writeScanOutput(outPath string, v volume.Any, angles []float64, stdout io.Writer) error {
	if outPath == "-" {
		if stdout == nil {
			return fmt.Errorf("stdout writer is nil")
		}
		return volume.EncodeNPY(stdout, v)
	}
	if isSafetensorsPath(outPath) {
		return safetensors.WriteFile(outPath, v, angles)
	}
	return volume.WriteNPY(outPath, v)
}

// stitchedAngles keeps the first half-turn of an embedded angle vector for
// the stitched scan. Without embedded angles there is nothing to carry over.
func stitchedAngles(embedded []float64, stitched volume.Any) []float64 {
	if stitched == nil || len(embedded) == 0 {
		return nil
	}

	p, _, _ := stitched.Dims()
	if len(embedded) < p {
		return nil
	}

	return embedded[:p]
}

// runStitch stitches data in one shot, or row batch by row batch when a
// memory budget is configured.
func runStitch(data volume.Any, overlap float64, rotation sino.Rotation, budget int64) (volume.Any, error) {
	if budget <= 0 {
		return sino.Stitch(data, overlap, rotation)
	}

	switch v := data.(type) {
	case *volume.Volume[float32]:
		return chunkedStitch(v, overlap, rotation, budget)
	case *volume.Volume[float64]:
		return chunkedStitch(v, overlap, rotation, budget)
	case *volume.Volume[uint8]:
		return chunkedStitch(v, overlap, rotation, budget)
	case *volume.Volume[uint16]:
		return chunkedStitch(v, overlap, rotation, budget)
	case *volume.Volume[uint32]:
		return chunkedStitch(v, overlap, rotation, budget)
	case *volume.Volume[uint64]:
		return chunkedStitch(v, overlap, rotation, budget)
	default:
		return nil, fmt.Errorf("unsupported volume type %T", data)
	}
}

func chunkedStitch[T volume.Scalar](in *volume.Volume[T], overlap float64, rotation sino.Rotation, budget int64) (volume.Any, error) {
	p, _, c := in.Dims()

	maxSlices, err := chunk.StitchEstimator{Overlap: overlap}.MaxSlices(p, c, in.DType().ItemSize(), budget)
	if err != nil {
		return nil, err
	}

	slog.Debug("stitching in row batches", "budget_bytes", budget, "rows_per_batch", maxSlices)

	out, err := chunk.Process(in, maxSlices, func(part *volume.Volume[T]) (*volume.Volume[T], error) {
		return sino.Sino360To180(part, overlap, rotation)
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}
