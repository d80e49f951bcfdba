package volume

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sbinet/npyio"
)

// ErrFortranOrder reports a NumPy file stored in column-major layout.
// Volumes are row-major; transpose on the producing side before exporting.
var ErrFortranOrder = errors.New("volume: npy file uses Fortran order")

// ReadNPY reads a 3-D NumPy ".npy" file into a volume of the matching
// element type.
func ReadNPY(path string) (Any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("volume: open npy: %w", err)
	}
	defer f.Close()

	v, err := DecodeNPY(f)
	if err != nil {
		return nil, fmt.Errorf("volume: read npy %s: %w", path, err)
	}

	return v, nil
}

// DecodeNPY reads a 3-D NumPy array from r into a volume of the matching
// element type.
func DecodeNPY(r io.Reader) (Any, error) {
	nr, err := npyio.NewReader(r)
	if err != nil {
		return nil, err
	}

	if nr.Header.Descr.Fortran {
		return nil, ErrFortranOrder
	}

	shape := nr.Header.Descr.Shape
	if len(shape) != 3 {
		return nil, fmt.Errorf("expected a 3-D array, got shape %v", shape)
	}

	d, err := dtypeOfDescr(nr.Header.Descr.Type)
	if err != nil {
		return nil, err
	}

	p, rows, c := shape[0], shape[1], shape[2]

	switch d {
	case F32:
		return decodeNPYInto[float32](nr, p, rows, c)
	case F64:
		return decodeNPYInto[float64](nr, p, rows, c)
	case U8:
		return decodeNPYInto[uint8](nr, p, rows, c)
	case U16:
		return decodeNPYInto[uint16](nr, p, rows, c)
	case U32:
		return decodeNPYInto[uint32](nr, p, rows, c)
	case U64:
		return decodeNPYInto[uint64](nr, p, rows, c)
	default:
		return nil, fmt.Errorf("cannot decode dtype %v", d)
	}
}

// NPYInfo describes a container header without its payload.
type NPYInfo struct {
	DType DType
	P     int
	R     int
	C     int
}

// ProbeNPY parses only the header of a 3-D NumPy ".npy" file. It reports the
// same layout errors as a full read without loading any voxel data.
func ProbeNPY(path string) (NPYInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return NPYInfo{}, fmt.Errorf("volume: open npy: %w", err)
	}
	defer f.Close()

	nr, err := npyio.NewReader(f)
	if err != nil {
		return NPYInfo{}, fmt.Errorf("volume: read npy %s: %w", path, err)
	}

	if nr.Header.Descr.Fortran {
		return NPYInfo{}, ErrFortranOrder
	}

	shape := nr.Header.Descr.Shape
	if len(shape) != 3 {
		return NPYInfo{}, fmt.Errorf("volume: read npy %s: expected a 3-D array, got shape %v", path, shape)
	}

	d, err := dtypeOfDescr(nr.Header.Descr.Type)
	if err != nil {
		return NPYInfo{}, fmt.Errorf("volume: read npy %s: %w", path, err)
	}

	return NPYInfo{DType: d, P: shape[0], R: shape[1], C: shape[2]}, nil
}

// WriteNPY writes a volume to path as a 3-D NumPy ".npy" file.
func WriteNPY(path string, v Any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("volume: create npy: %w", err)
	}

	if err := EncodeNPY(f, v); err != nil {
		f.Close()
		return fmt.Errorf("volume: write npy %s: %w", path, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("volume: write npy %s: %w", path, err)
	}

	return nil
}

// EncodeNPY writes a 3-D NumPy array to w in C order. npyio derives shapes
// reflectively and cannot express a runtime 3-D shape, so the header is
// emitted here in the canonical version 1.0 layout.
func EncodeNPY(w io.Writer, v Any) error {
	if v == nil {
		return errors.New("volume: encode nil volume")
	}

	descr, err := descrOfDType(v.DType())
	if err != nil {
		return err
	}

	p, r, c := v.Dims()
	if err := writeNPYHeader(w, descr, [3]int{p, r, c}); err != nil {
		return err
	}

	switch t := v.(type) {
	case *Volume[float32]:
		return binary.Write(w, binary.LittleEndian, t.data)
	case *Volume[float64]:
		return binary.Write(w, binary.LittleEndian, t.data)
	case *Volume[uint8]:
		return binary.Write(w, binary.LittleEndian, t.data)
	case *Volume[uint16]:
		return binary.Write(w, binary.LittleEndian, t.data)
	case *Volume[uint32]:
		return binary.Write(w, binary.LittleEndian, t.data)
	case *Volume[uint64]:
		return binary.Write(w, binary.LittleEndian, t.data)
	default:
		return fmt.Errorf("volume: cannot encode %T", v)
	}
}

func writeNPYHeader(w io.Writer, descr string, shape [3]int) error {
	meta := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': (%d, %d, %d), }",
		descr, shape[0], shape[1], shape[2])

	// Magic, version, and length prefix come to 10 bytes; the whole preamble
	// is space-padded to a 64-byte multiple and newline-terminated.
	pad := (64 - (10+len(meta)+1)%64) % 64

	var buf bytes.Buffer
	buf.WriteString("\x93NUMPY")
	buf.WriteByte(1)
	buf.WriteByte(0)

	var hlen [2]byte
	binary.LittleEndian.PutUint16(hlen[:], uint16(len(meta)+pad+1))
	buf.Write(hlen[:])

	buf.WriteString(meta)
	buf.WriteString(strings.Repeat(" ", pad))
	buf.WriteByte('\n')

	_, err := w.Write(buf.Bytes())

	return err
}

// WriteNPYVector writes values to path as a 1-D float64 ".npy" file.
func WriteNPYVector(path string, values []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("volume: create npy: %w", err)
	}

	if err := npyio.Write(f, values); err != nil {
		f.Close()
		return fmt.Errorf("volume: write npy %s: %w", path, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("volume: write npy %s: %w", path, err)
	}

	return nil
}

// ReadNPYVector reads a 1-D NumPy ".npy" file as float64 values, converting
// from the stored element type. Used for angle vectors.
func ReadNPYVector(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("volume: open npy: %w", err)
	}
	defer f.Close()

	nr, err := npyio.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("volume: read npy %s: %w", path, err)
	}

	shape := nr.Header.Descr.Shape
	if len(shape) != 1 {
		return nil, fmt.Errorf("volume: read npy %s: expected a 1-D array, got shape %v", path, shape)
	}

	d, err := dtypeOfDescr(nr.Header.Descr.Type)
	if err != nil {
		return nil, fmt.Errorf("volume: read npy %s: %w", path, err)
	}

	var values []float64

	switch d {
	case F64:
		if err := nr.Read(&values); err != nil {
			return nil, fmt.Errorf("volume: read npy %s: %w", path, err)
		}
	case F32:
		var f32 []float32
		if err := nr.Read(&f32); err != nil {
			return nil, fmt.Errorf("volume: read npy %s: %w", path, err)
		}

		values = make([]float64, len(f32))
		for i, x := range f32 {
			values[i] = float64(x)
		}
	default:
		return nil, fmt.Errorf("volume: read npy %s: vector dtype %v not supported", path, d)
	}

	return values, nil
}

func decodeNPYInto[T Scalar](nr *npyio.Reader, p, r, c int) (*Volume[T], error) {
	total, err := elemCount(p, r, c)
	if err != nil {
		return nil, err
	}

	var flat []T
	if err := nr.Read(&flat); err != nil {
		return nil, err
	}

	if len(flat) != total {
		return nil, fmt.Errorf("data length %d does not match shape (%d, %d, %d)", len(flat), p, r, c)
	}

	return newOwned(flat, p, r, c), nil
}

// descrOfDType maps a DType to the NumPy dtype descriptor used when writing.
func descrOfDType(d DType) (string, error) {
	switch d {
	case F32:
		return "<f4", nil
	case F64:
		return "<f8", nil
	case U8:
		return "|u1", nil
	case U16:
		return "<u2", nil
	case U32:
		return "<u4", nil
	case U64:
		return "<u8", nil
	default:
		return "", fmt.Errorf("volume: cannot encode dtype %v", d)
	}
}

// dtypeOfDescr maps a NumPy dtype descriptor to a DType. Big-endian files
// are rejected; volumes are little-endian like the container format.
func dtypeOfDescr(descr string) (DType, error) {
	base := descr
	if len(base) > 0 && strings.ContainsRune("<|=", rune(base[0])) {
		base = base[1:]
	} else if len(base) > 0 && base[0] == '>' {
		return DTypeInvalid, fmt.Errorf("big-endian dtype %q not supported", descr)
	}

	switch base {
	case "f4":
		return F32, nil
	case "f8":
		return F64, nil
	case "u1":
		return U8, nil
	case "u2":
		return U16, nil
	case "u4":
		return U32, nil
	case "u8":
		return U64, nil
	default:
		return DTypeInvalid, fmt.Errorf("unsupported dtype %q", descr)
	}
}
