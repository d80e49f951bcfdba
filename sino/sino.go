// Package sino converts 360-degree sinograms into their 180-degree
// equivalent by stitching opposing projection pairs across the detector
// seam.
//
// A full-turn scan records every ray twice: projection i and projection
// i+P/2 view the object from opposite sides, so their detector rows overlap
// in a band whose width depends on how far the rotation axis sits from the
// field-of-view center. Stitching folds the second half-turn onto the first,
// mirroring it and blending the shared band with a linear ramp.
package sino

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/example/go-tomolib/volume"
)

// Rotation tells which side of the field of view the rotation axis is
// closest to.
type Rotation string

const (
	RotationLeft  Rotation = "left"
	RotationRight Rotation = "right"
)

// ParseRotation maps a rotation side name to its Rotation.
func ParseRotation(s string) (Rotation, error) {
	switch Rotation(strings.ToLower(strings.TrimSpace(s))) {
	case RotationLeft:
		return RotationLeft, nil
	case RotationRight:
		return RotationRight, nil
	default:
		return "", ErrInvalidRotation
	}
}

// Sino360To180 converts a 0-360 degrees sinogram volume to its 0-180
// equivalent. If the number of projections is odd, the last projection is
// discarded.
//
// overlap is the number of detector columns shared by opposing projections;
// fractional values are rounded to the nearest integer (ties to even) and
// the result must lie in [0, columns). The output has dimensions
// (P/2, rows, 2*columns-overlap), keeps the element type of the input, and
// the input is never modified.
func Sino360To180[T volume.Scalar](data *volume.Volume[T], overlap float64, rotation Rotation) (*volume.Volume[T], error) {
	if data == nil {
		return nil, ErrShape
	}

	p, r, c := data.Dims()

	ov := int(math.RoundToEven(overlap))
	if ov >= c {
		return nil, ErrOverlapRange
	}

	if ov < 0 {
		return nil, ErrOverlapRange
	}

	if rotation != RotationLeft && rotation != RotationRight {
		return nil, ErrInvalidRotation
	}

	n := p / 2
	outC := 2*c - ov
	w := rampWeights(ov, rotation)
	out := make([]T, n*r*outC)

	if rotation == RotationLeft {
		stitchLeft(data, out, n, r, c, ov, outC, w)
	} else {
		stitchRight(data, out, n, r, c, ov, outC, w)
	}

	return volume.NewOwned(out, n, r, outC)
}

// rampWeights builds the blend ramp: ascending 0..1 for a left axis,
// descending 1..0 for a right axis. A single-column band degenerates to the
// ramp start.
func rampWeights(ov int, rotation Rotation) []float64 {
	if ov == 0 {
		return nil
	}

	start, stop := 0.0, 1.0
	if rotation == RotationRight {
		start, stop = 1.0, 0.0
	}

	w := make([]float64, ov)
	if ov == 1 {
		w[0] = start
		return w
	}

	floats.Span(w, start, stop)

	return w
}

// stitchLeft folds the second half-turn to the left of the first.
//
// Output columns split into three bands: [0, c-ov) holds the mirrored
// second half-turn, [c-ov, c) the blended seam, [c, 2c-ov) the first
// half-turn past the overlap.
func stitchLeft[T volume.Scalar](data *volume.Volume[T], out []T, n, r, c, ov, outC int, w []float64) {
	for i := range n {
		for j := range r {
			a := data.RawRow(i, j)
			b := data.RawRow(n+i, j)
			dst := out[(i*r+j)*outC : (i*r+j)*outC+outC]

			copy(dst[c:], a[ov:])

			for k := range c - ov {
				dst[k] = b[c-1-k]
			}

			for m := range ov {
				dst[c-ov+m] = T(w[m]*float64(a[m]) + w[ov-1-m]*float64(b[ov-1-m]))
			}
		}
	}
}

// stitchRight folds the second half-turn to the right of the first.
//
// Output columns split into three bands: [0, c-ov) holds the first
// half-turn before the overlap, [c-ov, c) the blended seam, [c, 2c-ov) the
// mirrored second half-turn.
func stitchRight[T volume.Scalar](data *volume.Volume[T], out []T, n, r, c, ov, outC int, w []float64) {
	for i := range n {
		for j := range r {
			a := data.RawRow(i, j)
			b := data.RawRow(n+i, j)
			dst := out[(i*r+j)*outC : (i*r+j)*outC+outC]

			copy(dst[:c-ov], a[:c-ov])

			for k := range c - ov {
				dst[c+k] = b[c-ov-1-k]
			}

			for m := range ov {
				dst[c-ov+m] = T(w[m]*float64(a[c-ov+m]) + w[ov-1-m]*float64(b[c-1-m]))
			}
		}
	}
}

// Stitch is Sino360To180 for volumes whose element type is only known at
// runtime, as returned by container readers.
func Stitch(data volume.Any, overlap float64, rotation Rotation) (volume.Any, error) {
	switch v := data.(type) {
	case *volume.Volume[float32]:
		return Sino360To180(v, overlap, rotation)
	case *volume.Volume[float64]:
		return Sino360To180(v, overlap, rotation)
	case *volume.Volume[uint8]:
		return Sino360To180(v, overlap, rotation)
	case *volume.Volume[uint16]:
		return Sino360To180(v, overlap, rotation)
	case *volume.Volume[uint32]:
		return Sino360To180(v, overlap, rotation)
	case *volume.Volume[uint64]:
		return Sino360To180(v, overlap, rotation)
	default:
		return nil, ErrShape
	}
}
