package recon

import (
	"context"
	"math"

	algofft "github.com/cwbudde/algo-fft"
	vecmath "github.com/cwbudde/algo-vecmath"
	"gonum.org/v1/gonum/floats"

	"github.com/example/go-tomolib/volume"
)

// cpuBackend is the pure Go parallel-beam reference engine. It favors
// verifiable arithmetic over speed: the projector pair is an exact adjoint
// and all solver state is kept in float64.
type cpuBackend struct{}

// NewCPUBackend returns the built-in reference backend.
func NewCPUBackend() Backend {
	return &cpuBackend{}
}

func (b *cpuBackend) Info() BackendInfo {
	return BackendInfo{
		Name:        "cpu",
		Description: "pure Go parallel-beam reference engine",
	}
}

func (b *cpuBackend) Available() bool {
	return true
}

// FBP ramp-filters every sinogram row in the frequency domain, then
// backprojects the filtered rows scaled by the angular step.
func (b *cpuBackend) FBP(ctx context.Context, data *volume.Volume[float32], geom Geometry) (*volume.Volume[float32], error) {
	p, r, c := data.Dims()
	proj := newProjector(geom)
	obj := geom.ObjSize

	fftSize := nextPow2(2 * c)

	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		return nil, err
	}

	ramp := rampFilter(fftSize)
	out := make([]float32, r*obj*obj)
	sino := make([]float64, p*c)
	slice := make([]float64, obj*obj)
	padded := make([]complex128, fftSize)
	freq := make([]complex128, fftSize)
	scale := math.Pi / float64(p)

	for j := range r {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		for pi := range p {
			row := data.RawRow(pi, j)
			for k := range padded {
				padded[k] = 0
			}

			for k, x := range row {
				padded[k] = complex(float64(x), 0)
			}

			if err := plan.Forward(freq, padded); err != nil {
				return nil, err
			}

			for k := range freq {
				freq[k] *= complex(ramp[k], 0)
			}

			if err := plan.Inverse(padded, freq); err != nil {
				return nil, err
			}

			for k := range c {
				sino[pi*c+k] = real(padded[k]) * scale
			}
		}

		proj.back(sino, slice)
		storeSlice(out, j, slice)
	}

	return volume.NewOwned(out, r, obj, obj)
}

// SIRT iterates x += C .* Aᵀ(R .* (b - A x)) with the classical row and
// column sum preconditioners.
func (b *cpuBackend) SIRT(ctx context.Context, data *volume.Volume[float32], geom Geometry, params IterParams) (*volume.Volume[float32], error) {
	if params.Iterations <= 0 {
		return nil, ErrIterations
	}

	p, r, c := data.Dims()
	proj := newProjector(geom)
	obj := geom.ObjSize
	nData := p * c
	nObj := obj * obj

	rowInv := make([]float64, nData)
	colInv := make([]float64, nObj)

	ones := make([]float64, nObj)
	for i := range ones {
		ones[i] = 1
	}
	proj.forward(ones, rowInv)
	invertWeights(rowInv)

	onesData := make([]float64, nData)
	for i := range onesData {
		onesData[i] = 1
	}
	proj.back(onesData, colInv)
	invertWeights(colInv)

	out := make([]float32, r*nObj)
	bvec := make([]float64, nData)
	x := make([]float64, nObj)
	resid := make([]float64, nData)
	upd := make([]float64, nObj)

	for j := range r {
		loadSinogram(data, j, bvec)

		for i := range x {
			x[i] = 0
		}

		for range params.Iterations {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			proj.forward(x, resid)
			floats.Scale(-1, resid)
			floats.Add(resid, bvec)
			vecmath.MulBlockInPlace(resid, rowInv)
			proj.back(resid, upd)
			vecmath.MulBlockInPlace(upd, colInv)
			floats.Add(x, upd)

			if params.Nonnegativity {
				clampNonnegative(x)
			}
		}

		storeSlice(out, j, x)
	}

	return volume.NewOwned(out, r, obj, obj)
}

// CGLS runs conjugate gradients on the normal equations via the projector
// pair without forming AᵀA.
func (b *cpuBackend) CGLS(ctx context.Context, data *volume.Volume[float32], geom Geometry, params IterParams) (*volume.Volume[float32], error) {
	if params.Iterations <= 0 {
		return nil, ErrIterations
	}

	p, r, c := data.Dims()
	proj := newProjector(geom)
	obj := geom.ObjSize
	nData := p * c
	nObj := obj * obj

	out := make([]float32, r*nObj)
	bvec := make([]float64, nData)
	x := make([]float64, nObj)
	resid := make([]float64, nData)
	s := make([]float64, nObj)
	d := make([]float64, nObj)
	q := make([]float64, nData)

	for j := range r {
		loadSinogram(data, j, bvec)

		for i := range x {
			x[i] = 0
		}
		copy(resid, bvec)
		proj.back(resid, s)
		copy(d, s)
		gamma := floats.Dot(s, s)

		for range params.Iterations {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			if gamma == 0 {
				break
			}

			proj.forward(d, q)

			qq := floats.Dot(q, q)
			if qq == 0 {
				break
			}

			alpha := gamma / qq
			floats.AddScaled(x, alpha, d)
			floats.AddScaled(resid, -alpha, q)
			proj.back(resid, s)

			gammaNext := floats.Dot(s, s)
			beta := gammaNext / gamma
			floats.Scale(beta, d)
			floats.Add(d, s)
			gamma = gammaNext
		}

		// The clamp runs once after the final iteration; interleaving it
		// with the updates would break the conjugacy of the directions.
		if params.Nonnegativity {
			clampNonnegative(x)
		}

		storeSlice(out, j, x)
	}

	return volume.NewOwned(out, r, obj, obj)
}

// projector evaluates the parallel-beam system matrix A and its transpose
// with matching linear interpolation weights, making back the exact adjoint
// of forward. The rotation axis projects onto detector bin
// (cols-1)/2 - CenterOffset.
type projector struct {
	cols    int
	objSize int
	axis    float64
	sin     []float64
	cos     []float64
}

func newProjector(geom Geometry) *projector {
	p := &projector{
		cols:    geom.DetectorCols,
		objSize: geom.ObjSize,
		axis:    float64(geom.DetectorCols-1)/2 - geom.CenterOffset,
		sin:     make([]float64, len(geom.Angles)),
		cos:     make([]float64, len(geom.Angles)),
	}

	for i, a := range geom.Angles {
		p.sin[i], p.cos[i] = math.Sincos(a)
	}

	return p
}

// forward overwrites out (angles*cols) with A·x.
func (p *projector) forward(x, out []float64) {
	for i := range out {
		out[i] = 0
	}

	half := float64(p.objSize-1) / 2

	for iy := range p.objSize {
		yc := float64(iy) - half

		for ix := range p.objSize {
			v := x[iy*p.objSize+ix]
			if v == 0 {
				continue
			}

			xc := float64(ix) - half

			for a := range p.sin {
				u := xc*p.cos[a] + yc*p.sin[a] + p.axis
				i0 := int(math.Floor(u))
				w := u - float64(i0)

				if i0 >= 0 && i0 < p.cols {
					out[a*p.cols+i0] += v * (1 - w)
				}

				if i0+1 >= 0 && i0+1 < p.cols {
					out[a*p.cols+i0+1] += v * w
				}
			}
		}
	}
}

// back overwrites out (objSize²) with Aᵀ·s.
func (p *projector) back(s, out []float64) {
	half := float64(p.objSize-1) / 2

	for iy := range p.objSize {
		yc := float64(iy) - half

		for ix := range p.objSize {
			xc := float64(ix) - half

			var acc float64

			for a := range p.sin {
				u := xc*p.cos[a] + yc*p.sin[a] + p.axis
				i0 := int(math.Floor(u))
				w := u - float64(i0)

				if i0 >= 0 && i0 < p.cols {
					acc += s[a*p.cols+i0] * (1 - w)
				}

				if i0+1 >= 0 && i0+1 < p.cols {
					acc += s[a*p.cols+i0+1] * w
				}
			}

			out[iy*p.objSize+ix] = acc
		}
	}
}

// rampFilter builds the Ram-Lak |f| response over the FFT bin frequencies.
func rampFilter(n int) []float64 {
	out := make([]float64, n)

	for m := range out {
		f := float64(m) / float64(n)
		if m > n/2 {
			f -= 1
		}

		out[m] = math.Abs(f)
	}

	return out
}

func nextPow2(n int) int {
	size := 1
	for size < n {
		size <<= 1
	}

	return size
}

func loadSinogram(data *volume.Volume[float32], row int, dst []float64) {
	p, _, c := data.Dims()
	for pi := range p {
		src := data.RawRow(pi, row)
		for k := range c {
			dst[pi*c+k] = float64(src[k])
		}
	}
}

func storeSlice(out []float32, row int, x []float64) {
	base := row * len(x)
	for i, v := range x {
		out[base+i] = float32(v)
	}
}

func invertWeights(w []float64) {
	for i, v := range w {
		if v > 1e-12 {
			w[i] = 1 / v
		} else {
			w[i] = 0
		}
	}
}

func clampNonnegative(x []float64) {
	for i, v := range x {
		if v < 0 {
			x[i] = 0
		}
	}
}
