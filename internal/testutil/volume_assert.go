package testutil

import (
	"math"
	"testing"

	"github.com/example/go-tomolib/volume"
)

// SequentialVolume returns a (projections, rows, columns) float32 volume
// filled with 0, 1, 2, ... in storage order. Deterministic fixture for
// stitch and chunking tests.
func SequentialVolume(tb testing.TB, projections, rows, columns int) *volume.Volume[float32] {
	tb.Helper()

	data := make([]float32, projections*rows*columns)
	for i := range data {
		data[i] = float32(i)
	}

	v, err := volume.NewOwned(data, projections, rows, columns)
	if err != nil {
		tb.Fatalf("build sequential volume: %v", err)
	}

	return v
}

// AssertVolumeShape fails the test when v does not have the given dimensions.
func AssertVolumeShape(tb testing.TB, v volume.Any, projections, rows, columns int) {
	tb.Helper()

	if v == nil {
		tb.Fatal("volume is nil")
	}

	p, r, c := v.Dims()
	if p != projections || r != rows || c != columns {
		tb.Fatalf("volume dims = (%d, %d, %d); want (%d, %d, %d)", p, r, c, projections, rows, columns)
	}
}

// AssertVolumesAlmostEqual fails the test when got and want differ in shape
// or any element differs by more than tol.
func AssertVolumesAlmostEqual(tb testing.TB, got, want *volume.Volume[float32], tol float64) {
	tb.Helper()

	gp, gr, gc := got.Dims()
	wp, wr, wc := want.Dims()

	if gp != wp || gr != wr || gc != wc {
		tb.Fatalf("volume dims = (%d, %d, %d); want (%d, %d, %d)", gp, gr, gc, wp, wr, wc)
	}

	gd := got.RawData()
	wd := want.RawData()

	for i := range gd {
		if diff := math.Abs(float64(gd[i]) - float64(wd[i])); diff > tol {
			tb.Fatalf("volume element %d = %v; want %v (diff %g > tol %g)", i, gd[i], wd[i], diff, tol)
		}
	}
}

// AssertAllFinite fails the test when any element of v is NaN or infinite.
func AssertAllFinite(tb testing.TB, v *volume.Volume[float32]) {
	tb.Helper()

	for i, x := range v.RawData() {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			tb.Fatalf("volume element %d = %v; want a finite value", i, x)
		}
	}
}
