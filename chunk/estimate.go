package chunk

import "math"

// Estimator computes how many detector rows of an operation's working set
// fit into a byte budget. Implementations model the peak allocation of one
// operation per input row; callers pick the estimator matching the
// operation they are about to run.
type Estimator interface {
	// MaxSlices reports the largest row batch that fits availableBytes for
	// an input with the given projection count, column count and element
	// size.
	MaxSlices(projections, columns, itemSize int, availableBytes int64) (int, error)
}

// StitchEstimator models a 360-to-180 stitch: one input row, one output row
// of 2*columns - overlap, and the float64 seam weight vector shared by all
// rows. Overlap is the caller-facing value before rounding.
type StitchEstimator struct {
	Overlap float64
}

func (e StitchEstimator) MaxSlices(projections, columns, itemSize int, availableBytes int64) (int, error) {
	if projections <= 0 || columns <= 0 || itemSize <= 0 {
		return 0, ErrDims
	}

	overlap := int(math.RoundToEven(e.Overlap))

	inSlice := float64(projections) * float64(columns) * float64(itemSize)
	outSlice := float64(projections) * float64(2*columns-overlap) / 2 * float64(itemSize)
	weights := float64(overlap) * 8

	avail := float64(availableBytes) - weights

	n := int(math.Floor(avail / (inSlice + outSlice)))
	if n <= 0 {
		return 0, ErrBudget
	}

	return n, nil
}

// FBPEstimator models filtered backprojection: the input row, its float32
// filtered copy, the spectrum and plan buffers of a real FFT over the
// columns, and the float32 output section. The frequency filter itself is
// shared across rows and comes off the budget once. ObjSize zero means the
// detector width.
type FBPEstimator struct {
	ObjSize int
}

func (e FBPEstimator) MaxSlices(projections, columns, itemSize int, availableBytes int64) (int, error) {
	if projections <= 0 || columns <= 0 || itemSize <= 0 {
		return 0, ErrDims
	}

	objSize := e.ObjSize
	if objSize <= 0 {
		objSize = columns
	}

	bins := int64(columns/2 + 1)
	inSlice := int64(projections) * int64(columns) * int64(itemSize)
	filter := bins * 4
	freq := int64(projections) * bins * 8
	fftPlan := 2 * freq
	filtered := int64(projections) * int64(columns) * 4
	outSection := int64(objSize) * int64(objSize) * 4

	avail := availableBytes - filter

	n := int(avail / (inSlice + filtered + freq + fftPlan + outSection))
	if n <= 0 {
		return 0, ErrBudget
	}

	return n, nil
}

// SIRTEstimator models the SIRT working set: sinogram and section in the
// input element size, the R and C preconditioners, the update term and a
// half-size allowance for projector scratch. ObjSize zero means the
// detector width.
type SIRTEstimator struct {
	ObjSize int
}

func (e SIRTEstimator) MaxSlices(projections, columns, itemSize int, availableBytes int64) (int, error) {
	if projections <= 0 || columns <= 0 || itemSize <= 0 {
		return 0, ErrDims
	}

	objSize := e.ObjSize
	if objSize <= 0 {
		objSize = columns
	}

	dataOut := float64(projections) * float64(columns) * float64(itemSize)
	xRec := float64(objSize) * float64(objSize) * float64(itemSize)
	rMat := dataOut
	cMat := xRec
	update := cMat + 2*rMat
	scratch := 0.5 * (xRec + dataOut)

	n := int(availableBytes / int64(dataOut+xRec+rMat+cMat+update+scratch))
	if n <= 0 {
		return 0, ErrBudget
	}

	return n, nil
}

// CGLSEstimator models the CGLS working set: sinogram and section, the
// direction and residual vectors, the two projection temporaries and the
// same projector scratch allowance as SIRT. ObjSize zero means the detector
// width.
type CGLSEstimator struct {
	ObjSize int
}

func (e CGLSEstimator) MaxSlices(projections, columns, itemSize int, availableBytes int64) (int, error) {
	if projections <= 0 || columns <= 0 || itemSize <= 0 {
		return 0, ErrDims
	}

	objSize := e.ObjSize
	if objSize <= 0 {
		objSize = columns
	}

	dataOut := float64(projections) * float64(columns) * float64(itemSize)
	xRec := float64(objSize) * float64(objSize) * float64(itemSize)
	d := xRec
	r := dataOut
	ad := 2 * dataOut
	s := xRec
	scratch := 0.5 * (xRec + dataOut)

	n := int(availableBytes / int64(dataOut+xRec+d+r+ad+s+scratch))
	if n <= 0 {
		return 0, ErrBudget
	}

	return n, nil
}
