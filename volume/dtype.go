package volume

import "fmt"

// DType identifies the element type of a volume at runtime.
type DType uint8

const (
	DTypeInvalid DType = iota
	F32
	F64
	U8
	U16
	U32
	U64
)

// DTypeOf returns the DType for a Scalar instantiation.
func DTypeOf[T Scalar]() DType {
	var z T

	switch any(z).(type) {
	case float32:
		return F32
	case float64:
		return F64
	case uint8:
		return U8
	case uint16:
		return U16
	case uint32:
		return U32
	case uint64:
		return U64
	default:
		return DTypeInvalid
	}
}

// ItemSize returns the element size in bytes.
func (d DType) ItemSize() int {
	switch d {
	case F32, U32:
		return 4
	case F64, U64:
		return 8
	case U8:
		return 1
	case U16:
		return 2
	default:
		return 0
	}
}

func (d DType) String() string {
	switch d {
	case F32:
		return "float32"
	case F64:
		return "float64"
	case U8:
		return "uint8"
	case U16:
		return "uint16"
	case U32:
		return "uint32"
	case U64:
		return "uint64"
	default:
		return fmt.Sprintf("DType(%d)", uint8(d))
	}
}

// ParseDType maps a dtype name to its DType. It accepts the String form.
func ParseDType(s string) (DType, error) {
	switch s {
	case "float32", "f32":
		return F32, nil
	case "float64", "f64":
		return F64, nil
	case "uint8", "u8":
		return U8, nil
	case "uint16", "u16":
		return U16, nil
	case "uint32", "u32":
		return U32, nil
	case "uint64", "u64":
		return U64, nil
	default:
		return DTypeInvalid, fmt.Errorf("volume: unknown dtype %q", s)
	}
}
