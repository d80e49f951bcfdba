package volume

import "fmt"

// Any is the dtype-erased view of a Volume. Container readers return Any so
// callers can dispatch on DType when the element type is only known at
// runtime; a type switch over the Volume instantiations recovers the
// concrete type.
type Any interface {
	Dims() (p, r, c int)
	Len() int
	DType() DType
	Float64s() []float64
}

// ZerosAny creates a zero-initialized volume of the given runtime dtype.
func ZerosAny(d DType, p, r, c int) (Any, error) {
	switch d {
	case F32:
		return Zeros[float32](p, r, c)
	case F64:
		return Zeros[float64](p, r, c)
	case U8:
		return Zeros[uint8](p, r, c)
	case U16:
		return Zeros[uint16](p, r, c)
	case U32:
		return Zeros[uint32](p, r, c)
	case U64:
		return Zeros[uint64](p, r, c)
	default:
		return nil, fmt.Errorf("volume: cannot allocate dtype %v", d)
	}
}

// AsFloat32 returns v as a float32 volume, converting elementwise when the
// backing dtype differs. A volume that already holds float32 is returned
// unchanged, without copying.
func AsFloat32(v Any) (*Volume[float32], error) {
	switch t := v.(type) {
	case *Volume[float32]:
		return t, nil
	case *Volume[float64]:
		return convertF32(t)
	case *Volume[uint8]:
		return convertF32(t)
	case *Volume[uint16]:
		return convertF32(t)
	case *Volume[uint32]:
		return convertF32(t)
	case *Volume[uint64]:
		return convertF32(t)
	default:
		return nil, fmt.Errorf("volume: cannot convert %T to float32", v)
	}
}

func convertF32[T Scalar](v *Volume[T]) (*Volume[float32], error) {
	p, r, c := v.Dims()

	out := make([]float32, v.Len())
	for i, x := range v.data {
		out[i] = float32(x)
	}

	return NewOwned(out, p, r, c)
}
