// Package volume provides dense, row-major 3-D arrays for tomography data.
//
// A Volume holds projection data with axes (projection, row, column): axis 0
// counts rotation angles, axis 1 detector rows (vertical), axis 2 detector
// columns (horizontal). Element types cover the acquisition dtypes seen in
// practice, from raw uint8 counts to float64.
package volume

import (
	"errors"
	"fmt"
	"math"
)

// Scalar is the set of element types a Volume can hold.
type Scalar interface {
	float32 | float64 | uint8 | uint16 | uint32 | uint64
}

// Volume is a dense, row-major 3-D array with axes (projection, row, column).
type Volume[T Scalar] struct {
	p, r, c int
	data    []T
}

// New creates a volume from data and dimensions. The data slice is copied.
func New[T Scalar](data []T, p, r, c int) (*Volume[T], error) {
	total, err := elemCount(p, r, c)
	if err != nil {
		return nil, err
	}

	if len(data) != total {
		return nil, fmt.Errorf("volume: data length %d does not match dims (%d, %d, %d) (%d elements)", len(data), p, r, c, total)
	}

	return &Volume[T]{p: p, r: r, c: c, data: append([]T(nil), data...)}, nil
}

// NewOwned creates a volume taking ownership of data without copying. The
// caller must not retain or modify data after this call.
func NewOwned[T Scalar](data []T, p, r, c int) (*Volume[T], error) {
	total, err := elemCount(p, r, c)
	if err != nil {
		return nil, err
	}

	if len(data) != total {
		return nil, fmt.Errorf("volume: data length %d does not match dims (%d, %d, %d) (%d elements)", len(data), p, r, c, total)
	}

	return newOwned(data, p, r, c), nil
}

// newOwned is NewOwned without the length validation; the caller must have
// established len(data) == p*r*c.
func newOwned[T Scalar](data []T, p, r, c int) *Volume[T] {
	return &Volume[T]{p: p, r: r, c: c, data: data}
}

// Zeros creates a zero-initialized volume.
func Zeros[T Scalar](p, r, c int) (*Volume[T], error) {
	total, err := elemCount(p, r, c)
	if err != nil {
		return nil, err
	}

	return &Volume[T]{p: p, r: r, c: c, data: make([]T, total)}, nil
}

// Full creates a volume filled with value.
func Full[T Scalar](p, r, c int, value T) (*Volume[T], error) {
	v, err := Zeros[T](p, r, c)
	if err != nil {
		return nil, err
	}

	for i := range v.data {
		v.data[i] = value
	}

	return v, nil
}

// Dims returns the (projection, row, column) dimensions.
func (v *Volume[T]) Dims() (p, r, c int) {
	if v == nil {
		return 0, 0, 0
	}

	return v.p, v.r, v.c
}

func (v *Volume[T]) Len() int {
	if v == nil {
		return 0
	}

	return len(v.data)
}

// DType reports the element type of the volume.
func (v *Volume[T]) DType() DType {
	return DTypeOf[T]()
}

// Data returns a copy of the underlying data in row-major order.
func (v *Volume[T]) Data() []T {
	if v == nil {
		return nil
	}

	return append([]T(nil), v.data...)
}

// RawData returns the underlying data slice.
// Callers must treat it as read-only.
func (v *Volume[T]) RawData() []T {
	if v == nil {
		return nil
	}

	return v.data
}

// RawRow returns the run of columns at projection i, row j.
// Callers must treat it as read-only.
func (v *Volume[T]) RawRow(i, j int) []T {
	base := (i*v.r + j) * v.c

	return v.data[base : base+v.c]
}

// At returns the element at (i, j, k). It panics if the index is out of range.
func (v *Volume[T]) At(i, j, k int) T {
	v.checkIndex(i, j, k)

	return v.data[(i*v.r+j)*v.c+k]
}

// Set stores value at (i, j, k). It panics if the index is out of range.
func (v *Volume[T]) Set(i, j, k int, value T) {
	v.checkIndex(i, j, k)

	v.data[(i*v.r+j)*v.c+k] = value
}

func (v *Volume[T]) checkIndex(i, j, k int) {
	if i < 0 || i >= v.p || j < 0 || j >= v.r || k < 0 || k >= v.c {
		panic(fmt.Sprintf("volume: index (%d, %d, %d) out of range for dims (%d, %d, %d)", i, j, k, v.p, v.r, v.c))
	}
}

// Clone returns a deep copy.
func (v *Volume[T]) Clone() *Volume[T] {
	if v == nil {
		return nil
	}

	return &Volume[T]{p: v.p, r: v.r, c: v.c, data: append([]T(nil), v.data...)}
}

// Float64s returns a copy of the data converted to float64, row-major.
func (v *Volume[T]) Float64s() []float64 {
	if v == nil {
		return nil
	}

	out := make([]float64, len(v.data))
	for i, x := range v.data {
		out[i] = float64(x)
	}

	return out
}

// NarrowRows returns a copy of rows [start, start+n) along the row axis.
func (v *Volume[T]) NarrowRows(start, n int) (*Volume[T], error) {
	if v == nil {
		return nil, errors.New("volume: narrow on nil volume")
	}

	if start < 0 || n < 0 || start+n > v.r {
		return nil, fmt.Errorf("volume: narrow rows [%d:%d] out of bounds for %d rows", start, start+n, v.r)
	}

	out := newOwned(make([]T, v.p*n*v.c), v.p, n, v.c)
	span := n * v.c

	for i := range v.p {
		srcBase := (i*v.r + start) * v.c
		copy(out.data[i*span:(i+1)*span], v.data[srcBase:srcBase+span])
	}

	return out, nil
}

// ConcatRows concatenates volumes along the row axis. All inputs must share
// projection and column counts.
func ConcatRows[T Scalar](vols ...*Volume[T]) (*Volume[T], error) {
	if len(vols) == 0 {
		return nil, errors.New("volume: concat requires at least one volume")
	}

	first := vols[0]
	if first == nil {
		return nil, errors.New("volume: concat volume 0 is nil")
	}

	rows := 0

	for i, v := range vols {
		if v == nil {
			return nil, fmt.Errorf("volume: concat volume %d is nil", i)
		}

		if v.p != first.p || v.c != first.c {
			return nil, fmt.Errorf("volume: concat volume %d dims (%d, %d, %d) do not match (%d, *, %d)", i, v.p, v.r, v.c, first.p, first.c)
		}

		rows += v.r
	}

	out := newOwned(make([]T, first.p*rows*first.c), first.p, rows, first.c)
	span := rows * first.c

	for i := range first.p {
		writePos := i * span

		for _, v := range vols {
			n := v.r * v.c
			srcBase := i * n
			copy(out.data[writePos:writePos+n], v.data[srcBase:srcBase+n])
			writePos += n
		}
	}

	return out, nil
}

// Stack concatenates volumes along the first axis. All inputs must share row
// and column counts.
func Stack[T Scalar](vols ...*Volume[T]) (*Volume[T], error) {
	if len(vols) == 0 {
		return nil, errors.New("volume: stack requires at least one volume")
	}

	first := vols[0]
	if first == nil {
		return nil, errors.New("volume: stack volume 0 is nil")
	}

	total := 0

	for i, v := range vols {
		if v == nil {
			return nil, fmt.Errorf("volume: stack volume %d is nil", i)
		}

		if v.r != first.r || v.c != first.c {
			return nil, fmt.Errorf("volume: stack volume %d dims (%d, %d, %d) do not match (*, %d, %d)", i, v.p, v.r, v.c, first.r, first.c)
		}

		total += v.p
	}

	out := newOwned(make([]T, total*first.r*first.c), total, first.r, first.c)
	pos := 0

	for _, v := range vols {
		pos += copy(out.data[pos:], v.data)
	}

	return out, nil
}

func elemCount(p, r, c int) (int, error) {
	for _, d := range [3]int{p, r, c} {
		if d < 0 {
			return 0, fmt.Errorf("volume: dims (%d, %d, %d) contain a negative dimension", p, r, c)
		}
	}

	total := int64(p) * int64(r)
	if r != 0 && total/int64(r) != int64(p) {
		return 0, fmt.Errorf("volume: dims (%d, %d, %d) too large", p, r, c)
	}

	total *= int64(c)
	if c != 0 && total/int64(c) != int64(p)*int64(r) {
		return 0, fmt.Errorf("volume: dims (%d, %d, %d) too large", p, r, c)
	}

	if total > int64(math.MaxInt) {
		return 0, fmt.Errorf("volume: dims (%d, %d, %d) exceed platform int size", p, r, c)
	}

	return int(total), nil
}
