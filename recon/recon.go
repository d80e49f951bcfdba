// Package recon reconstructs cross-section volumes from parallel-beam
// projection data.
//
// Three methods are exposed: filtered backprojection (FBP) and the two
// iterative solvers SIRT and CGLS. The entry points validate input, apply
// the conventional defaults (rotation center at cols/2, reconstruction grid
// matching the detector width) and hand the prepared geometry to the active
// Backend. A pure Go reference backend is built in; a native GPU toolkit
// backend can register itself to take over.
package recon

import (
	"context"

	"github.com/example/go-tomolib/volume"
)

const (
	// DefaultSIRTIterations is the SIRT iteration count when none is given.
	DefaultSIRTIterations = 300

	// DefaultCGLSIterations is the CGLS iteration count when none is given.
	DefaultCGLSIterations = 20
)

// Option configures a reconstruction call.
type Option func(*config)

type config struct {
	center        float64
	hasCenter     bool
	objSize       int
	hasObjSize    bool
	iterations    int
	hasIterations bool
	nonnegativity bool
	device        int
}

func defaultConfig() config {
	return config{nonnegativity: true}
}

// WithCenter sets the center of rotation in detector columns. The default is
// a crude guess at cols/2.
func WithCenter(center float64) Option {
	return func(c *config) {
		c.center = center
		c.hasCenter = true
	}
}

// WithObjSize sets the reconstruction grid size in pixels. The default
// matches the detector column count.
func WithObjSize(size int) Option {
	return func(c *config) {
		c.objSize = size
		c.hasObjSize = true
	}
}

// WithIterations sets the iteration count for the iterative solvers.
func WithIterations(n int) Option {
	return func(c *config) {
		c.iterations = n
		c.hasIterations = true
	}
}

// WithNonnegativity toggles the nonnegativity constraint of the iterative
// solvers. It is on unless disabled.
func WithNonnegativity(enabled bool) Option {
	return func(c *config) {
		c.nonnegativity = enabled
	}
}

// WithDevice selects the device index for backends that address several.
func WithDevice(index int) Option {
	return func(c *config) {
		c.device = index
	}
}

// FBP performs filtered backprojection of the data volume. angles are the
// projection angles in radians. The result has shape (rows, objSize,
// objSize): one reconstructed cross-section per detector row.
func FBP(ctx context.Context, data *volume.Volume[float32], angles []float64, opts ...Option) (*volume.Volume[float32], error) {
	geom, _, b, err := prepare(data, angles, 0, opts)
	if err != nil {
		return nil, err
	}

	return b.FBP(ctx, data, geom)
}

// SIRT performs a simultaneous iterative reconstruction of the data volume.
// It runs DefaultSIRTIterations unless WithIterations is given and clamps
// negative values unless WithNonnegativity(false) disables that.
func SIRT(ctx context.Context, data *volume.Volume[float32], angles []float64, opts ...Option) (*volume.Volume[float32], error) {
	geom, params, b, err := prepare(data, angles, DefaultSIRTIterations, opts)
	if err != nil {
		return nil, err
	}

	return b.SIRT(ctx, data, geom, params)
}

// CGLS performs a conjugate gradient least squares reconstruction of the
// data volume. It runs DefaultCGLSIterations unless WithIterations is
// given.
func CGLS(ctx context.Context, data *volume.Volume[float32], angles []float64, opts ...Option) (*volume.Volume[float32], error) {
	geom, params, b, err := prepare(data, angles, DefaultCGLSIterations, opts)
	if err != nil {
		return nil, err
	}

	return b.CGLS(ctx, data, geom, params)
}

// prepare validates the inputs, applies defaults and resolves the backend.
func prepare(data *volume.Volume[float32], angles []float64, defaultIterations int, opts []Option) (Geometry, IterParams, Backend, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if data == nil || data.Len() == 0 {
		return Geometry{}, IterParams{}, nil, ErrShape
	}

	p, r, c := data.Dims()
	if len(angles) != p {
		return Geometry{}, IterParams{}, nil, ErrAngleCount
	}

	center := cfg.center
	if !cfg.hasCenter {
		center = float64(c / 2)
	}

	objSize := cfg.objSize
	if !cfg.hasObjSize {
		objSize = c
	}

	if objSize <= 0 {
		return Geometry{}, IterParams{}, nil, ErrObjSize
	}

	iterations := cfg.iterations
	if !cfg.hasIterations {
		iterations = defaultIterations
	}

	if defaultIterations > 0 && iterations <= 0 {
		return Geometry{}, IterParams{}, nil, ErrIterations
	}

	b, err := resolveBackend()
	if err != nil {
		return Geometry{}, IterParams{}, nil, err
	}

	// The projector convention wants flipped angle signs and the rotation
	// axis expressed as an offset from the detector midline.
	flipped := make([]float64, len(angles))
	for i, a := range angles {
		flipped[i] = -a
	}

	geom := Geometry{
		DetectorCols: c,
		DetectorRows: r,
		CenterOffset: float64(c)/2 - center - 0.5,
		Angles:       flipped,
		ObjSize:      objSize,
		Device:       cfg.device,
	}

	return geom, IterParams{Iterations: iterations, Nonnegativity: cfg.nonnegativity}, b, nil
}
