package recon

import (
	"context"
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"

	"github.com/example/go-tomolib/volume"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func spreadAngles(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Pi * float64(i) / float64(n)
	}

	return out
}

func sinogramVolume(t *testing.T, b []float64, p, c int) *volume.Volume[float32] {
	t.Helper()

	data := make([]float32, len(b))
	for i, v := range b {
		data[i] = float32(v)
	}

	v, err := volume.New(data, p, 1, c)
	if err != nil {
		t.Fatalf("volume.New: %v", err)
	}

	return v
}

// sliceRow0 flattens the first reconstructed cross-section to float64.
func sliceRow0(t *testing.T, v *volume.Volume[float32]) []float64 {
	t.Helper()

	_, r, c := v.Dims()

	out := make([]float64, r*c)
	for j := range r {
		row := v.RawRow(0, j)
		for k, x := range row {
			out[j*c+k] = float64(x)
		}
	}

	return out
}

func relResidual(proj *projector, x, b []float64) float64 {
	ax := make([]float64, len(b))
	proj.forward(x, ax)

	var num, den float64
	for i := range b {
		d := ax[i] - b[i]
		num += d * d
		den += b[i] * b[i]
	}

	return math.Sqrt(num / den)
}

// ---------------------------------------------------------------------------
// Projector
// ---------------------------------------------------------------------------

func TestProjectorAdjoint(t *testing.T) {
	geom := Geometry{
		DetectorCols: 8,
		DetectorRows: 1,
		CenterOffset: 0.3,
		Angles:       spreadAngles(5),
		ObjSize:      8,
	}
	proj := newProjector(geom)

	x := make([]float64, 64)
	for i := range x {
		x[i] = math.Sin(0.7*float64(i)) + 0.5
	}

	y := make([]float64, 5*8)
	for i := range y {
		y[i] = math.Cos(0.3*float64(i)) - 0.2
	}

	ax := make([]float64, len(y))
	proj.forward(x, ax)

	aty := make([]float64, len(x))
	proj.back(y, aty)

	lhs := floats.Dot(ax, y)
	rhs := floats.Dot(x, aty)

	if math.Abs(lhs-rhs) > 1e-9*math.Max(1, math.Abs(lhs)) {
		t.Fatalf("adjoint mismatch: <Ax,y> = %v, <x,Aty> = %v", lhs, rhs)
	}
}

func TestProjectorSplatWeights(t *testing.T) {
	geom := Geometry{
		DetectorCols: 6,
		DetectorRows: 1,
		CenterOffset: -0.25,
		Angles:       []float64{0, math.Pi / 3},
		ObjSize:      5,
	}
	proj := newProjector(geom)

	// A single pixel on the rotation axis projects onto the same spot for
	// every angle: axis = (6-1)/2 + 0.25 = 2.75.
	x := make([]float64, 25)
	x[2*5+2] = 2

	out := make([]float64, 2*6)
	proj.forward(x, out)

	for a := range 2 {
		if !almostEqual(out[a*6+2], 0.5, 1e-12) || !almostEqual(out[a*6+3], 1.5, 1e-12) {
			t.Fatalf("angle %d: bins = %v, want 0.5 at 2 and 1.5 at 3", a, out[a*6:(a+1)*6])
		}
	}
}

// ---------------------------------------------------------------------------
// FBP
// ---------------------------------------------------------------------------

func TestFBPPointPhantomPeaksAtCenter(t *testing.T) {
	const (
		p = 16
		c = 15
	)

	// A point on the rotation axis shows up as a constant column in the
	// sinogram. Default center for c=15 puts the axis exactly on bin 7.
	data := make([]float32, p*c)
	for pi := range p {
		data[pi*c+7] = 1
	}

	vol, err := volume.New(data, p, 1, c)
	if err != nil {
		t.Fatalf("volume.New: %v", err)
	}

	res, err := FBP(context.Background(), vol, spreadAngles(p))
	if err != nil {
		t.Fatalf("FBP: %v", err)
	}

	rp, rr, rc := res.Dims()
	if rp != 1 || rr != c || rc != c {
		t.Fatalf("result dims = (%d,%d,%d), want (1,%d,%d)", rp, rr, rc, c, c)
	}

	slice := sliceRow0(t, res)

	best := 0
	for i, v := range slice {
		if v > slice[best] {
			best = i
		}
	}

	if best != 7*c+7 {
		t.Fatalf("peak at index %d (pixel %d,%d), want pixel 7,7", best, best/c, best%c)
	}

	if slice[best] <= 0 {
		t.Fatalf("peak value = %v, want positive", slice[best])
	}
}

func TestFBPIdenticalRowsGiveIdenticalSlices(t *testing.T) {
	const (
		p = 8
		r = 3
		c = 8
	)

	data := make([]float32, p*r*c)
	for pi := range p {
		for j := range r {
			for k := range c {
				data[(pi*r+j)*c+k] = float32(math.Sin(float64(pi*c + k)))
			}
		}
	}

	vol, err := volume.New(data, p, r, c)
	if err != nil {
		t.Fatalf("volume.New: %v", err)
	}

	res, err := FBP(context.Background(), vol, spreadAngles(p))
	if err != nil {
		t.Fatalf("FBP: %v", err)
	}

	rp, rr, rc := res.Dims()
	if rp != r || rr != c || rc != c {
		t.Fatalf("result dims = (%d,%d,%d), want (%d,%d,%d)", rp, rr, rc, r, c, c)
	}

	for j := range rr {
		a := res.RawRow(0, j)
		b := res.RawRow(2, j)

		for k := range a {
			if a[k] != b[k] {
				t.Fatalf("slices 0 and 2 differ at (%d,%d): %v vs %v", j, k, a[k], b[k])
			}
		}
	}
}

// ---------------------------------------------------------------------------
// Iterative solvers
// ---------------------------------------------------------------------------

func blockPhantomData(proj *projector, p, c int) (xTrue, b []float64) {
	obj := proj.objSize

	xTrue = make([]float64, obj*obj)
	for iy := 3; iy <= 4; iy++ {
		for ix := 3; ix <= 4; ix++ {
			xTrue[iy*obj+ix] = 1
		}
	}

	b = make([]float64, p*c)
	proj.forward(xTrue, b)

	return xTrue, b
}

func TestSIRTFitsBlockPhantom(t *testing.T) {
	const (
		p = 12
		c = 8
	)

	geom := Geometry{
		DetectorCols: c,
		DetectorRows: 1,
		Angles:       spreadAngles(p),
		ObjSize:      c,
	}
	proj := newProjector(geom)
	_, b := blockPhantomData(proj, p, c)

	res, err := NewCPUBackend().SIRT(context.Background(), sinogramVolume(t, b, p, c), geom,
		IterParams{Iterations: 100, Nonnegativity: true})
	if err != nil {
		t.Fatalf("SIRT: %v", err)
	}

	xHat := sliceRow0(t, res)

	if rel := relResidual(proj, xHat, b); rel > 0.15 {
		t.Fatalf("relative residual = %v, want < 0.15", rel)
	}

	for i, v := range xHat {
		if v < 0 {
			t.Fatalf("negative voxel %d = %v with nonnegativity on", i, v)
		}
	}
}

func TestCGLSFitsBlockPhantom(t *testing.T) {
	const (
		p = 12
		c = 8
	)

	geom := Geometry{
		DetectorCols: c,
		DetectorRows: 1,
		Angles:       spreadAngles(p),
		ObjSize:      c,
	}
	proj := newProjector(geom)
	_, b := blockPhantomData(proj, p, c)

	res, err := NewCPUBackend().CGLS(context.Background(), sinogramVolume(t, b, p, c), geom,
		IterParams{Iterations: 20, Nonnegativity: true})
	if err != nil {
		t.Fatalf("CGLS: %v", err)
	}

	xHat := sliceRow0(t, res)

	if rel := relResidual(proj, xHat, b); rel > 0.1 {
		t.Fatalf("relative residual = %v, want < 0.1", rel)
	}
}

func TestSIRTNonnegativityClamp(t *testing.T) {
	const (
		p = 4
		c = 4
	)

	geom := Geometry{
		DetectorCols: c,
		DetectorRows: 1,
		Angles:       spreadAngles(p),
		ObjSize:      c,
	}

	b := make([]float64, p*c)
	for i := range b {
		b[i] = -1
	}

	clamped, err := NewCPUBackend().SIRT(context.Background(), sinogramVolume(t, b, p, c), geom,
		IterParams{Iterations: 5, Nonnegativity: true})
	if err != nil {
		t.Fatalf("SIRT: %v", err)
	}

	for i, v := range sliceRow0(t, clamped) {
		if v < 0 {
			t.Fatalf("voxel %d = %v, want clamped to zero", i, v)
		}
	}

	free, err := NewCPUBackend().SIRT(context.Background(), sinogramVolume(t, b, p, c), geom,
		IterParams{Iterations: 5, Nonnegativity: false})
	if err != nil {
		t.Fatalf("SIRT: %v", err)
	}

	neg := false
	for _, v := range sliceRow0(t, free) {
		if v < 0 {
			neg = true
			break
		}
	}

	if !neg {
		t.Fatal("no negative voxel with nonnegativity off, expected some")
	}
}

func TestCPUSolversRejectZeroIterations(t *testing.T) {
	geom := Geometry{
		DetectorCols: 4,
		DetectorRows: 1,
		Angles:       []float64{0, 1},
		ObjSize:      4,
	}
	data := reconInput(t, 2, 1, 4)
	b := NewCPUBackend()

	if _, err := b.SIRT(context.Background(), data, geom, IterParams{}); !errors.Is(err, ErrIterations) {
		t.Fatalf("SIRT error = %v, want ErrIterations", err)
	}

	if _, err := b.CGLS(context.Background(), data, geom, IterParams{}); !errors.Is(err, ErrIterations) {
		t.Fatalf("CGLS error = %v, want ErrIterations", err)
	}
}

func TestCPUHonorsCancellation(t *testing.T) {
	geom := Geometry{
		DetectorCols: 4,
		DetectorRows: 1,
		Angles:       []float64{0, 1},
		ObjSize:      4,
	}
	data := reconInput(t, 2, 1, 4)
	b := NewCPUBackend()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := b.SIRT(ctx, data, geom, IterParams{Iterations: 5}); !errors.Is(err, context.Canceled) {
		t.Fatalf("SIRT error = %v, want context.Canceled", err)
	}

	if _, err := b.FBP(ctx, data, geom); !errors.Is(err, context.Canceled) {
		t.Fatalf("FBP error = %v, want context.Canceled", err)
	}
}

// ---------------------------------------------------------------------------
// Filter helpers
// ---------------------------------------------------------------------------

func TestRampFilterShape(t *testing.T) {
	ramp := rampFilter(8)

	if ramp[0] != 0 {
		t.Fatalf("ramp[0] = %v, want 0", ramp[0])
	}

	if !almostEqual(ramp[4], 0.5, 1e-12) {
		t.Fatalf("ramp[4] = %v, want 0.5", ramp[4])
	}

	for k := 1; k < 4; k++ {
		if !almostEqual(ramp[k], ramp[8-k], 1e-12) {
			t.Fatalf("ramp asymmetric at %d: %v vs %v", k, ramp[k], ramp[8-k])
		}
	}
}

func TestNextPow2(t *testing.T) {
	cases := map[int]int{1: 1, 2: 2, 3: 4, 8: 8, 9: 16, 30: 32}
	for in, want := range cases {
		if got := nextPow2(in); got != want {
			t.Fatalf("nextPow2(%d) = %d, want %d", in, got, want)
		}
	}
}
