package chunk

import (
	"errors"
	"testing"
)

func TestStitchEstimator(t *testing.T) {
	e := StitchEstimator{Overlap: 200}

	// in = 1800*2560*4, out = 1800*2460*4, weights = 1600.
	got, err := e.MaxSlices(1800, 2560, 4, 8589934592)
	if err != nil {
		t.Fatalf("MaxSlices: %v", err)
	}
	if got != 237 {
		t.Fatalf("slices = %d, want 237", got)
	}
}

func TestStitchEstimatorFractionalOutput(t *testing.T) {
	// out = 3*(8-1)/2*2 = 21 bytes, not a whole number of elements per row.
	e := StitchEstimator{Overlap: 1}

	got, err := e.MaxSlices(3, 4, 2, 1000)
	if err != nil {
		t.Fatalf("MaxSlices: %v", err)
	}
	if got != 22 {
		t.Fatalf("slices = %d, want 22", got)
	}
}

func TestStitchEstimatorRoundsOverlapHalfToEven(t *testing.T) {
	const avail = 1 << 20

	for _, tc := range []struct {
		given, rounded float64
	}{
		{2.5, 2},
		{3.5, 4},
	} {
		a, err := StitchEstimator{Overlap: tc.given}.MaxSlices(16, 32, 4, avail)
		if err != nil {
			t.Fatalf("overlap %v: %v", tc.given, err)
		}
		b, err := StitchEstimator{Overlap: tc.rounded}.MaxSlices(16, 32, 4, avail)
		if err != nil {
			t.Fatalf("overlap %v: %v", tc.rounded, err)
		}
		if a != b {
			t.Fatalf("overlap %v gives %d slices, overlap %v gives %d", tc.given, a, tc.rounded, b)
		}
	}
}

func TestFBPEstimator(t *testing.T) {
	// in = 11520, filter = 36, freq = 12960, plan = 25920, filtered = 11520,
	// section = 1024.
	got, err := FBPEstimator{}.MaxSlices(180, 16, 4, 1000000)
	if err != nil {
		t.Fatalf("MaxSlices: %v", err)
	}
	if got != 15 {
		t.Fatalf("slices = %d, want 15", got)
	}

	// A larger grid shrinks the batch.
	got, err = FBPEstimator{ObjSize: 64}.MaxSlices(180, 16, 4, 1000000)
	if err != nil {
		t.Fatalf("MaxSlices: %v", err)
	}
	if got != 12 {
		t.Fatalf("slices = %d, want 12", got)
	}
}

func TestSIRTEstimator(t *testing.T) {
	// 4.5*11520 + 3.5*1024 = 55424 bytes per row.
	got, err := SIRTEstimator{}.MaxSlices(180, 16, 4, 1000000)
	if err != nil {
		t.Fatalf("MaxSlices: %v", err)
	}
	if got != 18 {
		t.Fatalf("slices = %d, want 18", got)
	}
}

func TestCGLSEstimator(t *testing.T) {
	// 4.5*11520 + 3.5*4096 = 66176 bytes per row.
	got, err := CGLSEstimator{ObjSize: 32}.MaxSlices(180, 16, 4, 1000000)
	if err != nil {
		t.Fatalf("MaxSlices: %v", err)
	}
	if got != 15 {
		t.Fatalf("slices = %d, want 15", got)
	}
}

func TestEstimatorsRejectTinyBudget(t *testing.T) {
	ests := []Estimator{
		StitchEstimator{Overlap: 200},
		FBPEstimator{},
		SIRTEstimator{},
		CGLSEstimator{},
	}

	for i, e := range ests {
		if _, err := e.MaxSlices(1800, 2560, 4, 100); !errors.Is(err, ErrBudget) {
			t.Fatalf("estimator %d error = %v, want ErrBudget", i, err)
		}
	}
}

func TestEstimatorsRejectBadDims(t *testing.T) {
	ests := []Estimator{
		StitchEstimator{},
		FBPEstimator{},
		SIRTEstimator{},
		CGLSEstimator{},
	}

	for i, e := range ests {
		if _, err := e.MaxSlices(4, 0, 4, 1<<30); !errors.Is(err, ErrDims) {
			t.Fatalf("estimator %d error = %v, want ErrDims", i, err)
		}
	}
}
