// Package safetensors reads and writes tomography volumes in the
// safetensors container format: an 8-byte little-endian header length,
// a JSON header mapping tensor names to dtype, shape and data offsets,
// then the raw little-endian tensor payloads.
//
// Volume files store the projection data under the name "data" and may
// carry a 1-D float64 angle vector (radians) under "angles".
package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/example/go-tomolib/volume"
)

const (
	// VolumeTensor is the canonical name of the projection volume tensor.
	VolumeTensor = "data"

	// AnglesTensor is the canonical name of the optional angle vector.
	AnglesTensor = "angles"
)

// Info describes a stored tensor without decoding its payload.
type Info struct {
	DType volume.DType
	Shape []int64
}

// Store provides named access to the tensors of one container file.
type Store struct {
	raw     []byte
	entries map[string]storeEntry
	names   []string
}

type storeEntry struct {
	DType volume.DType
	Shape []int64
	Start int
	End   int
}

type storeHeaderEntry struct {
	DType   string  `json:"dtype"`
	Shape   []int64 `json:"shape"`
	Offsets [2]int  `json:"data_offsets"`
}

// Open reads a safetensors file into a Store.
func Open(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("safetensors: read %s: %w", path, err)
	}

	return OpenBytes(data)
}

// OpenBytes decodes a safetensors payload into a Store.
func OpenBytes(data []byte) (*Store, error) {
	headerEnd, header, err := decodeHeader(data)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(header))
	for name := range header {
		keys = append(keys, name)
	}

	sort.Strings(keys)

	entries := make(map[string]storeEntry, len(keys))
	names := make([]string, 0, len(keys))

	for _, name := range keys {
		if name == "__metadata__" {
			continue
		}

		var raw storeHeaderEntry
		if err := json.Unmarshal(header[name], &raw); err != nil {
			return nil, fmt.Errorf("safetensors: decode header entry %q: %w", name, err)
		}

		dtype, err := parseDType(raw.DType)
		if err != nil {
			return nil, fmt.Errorf("safetensors: tensor %q: %w", name, err)
		}

		if raw.Offsets[0] < 0 || raw.Offsets[1] < raw.Offsets[0] {
			return nil, fmt.Errorf("safetensors: tensor %q has invalid data offsets %v", name, raw.Offsets)
		}

		elemCount, err := shapeElementCount(raw.Shape)
		if err != nil {
			return nil, fmt.Errorf("safetensors: tensor %q: %w", name, err)
		}

		start := headerEnd + raw.Offsets[0]

		end := headerEnd + raw.Offsets[1]
		if start < headerEnd || end < start || end > len(data) {
			return nil, fmt.Errorf("safetensors: tensor %q data [%d:%d] exceeds file size %d", name, start, end, len(data))
		}

		if got, want := end-start, int(elemCount)*dtype.ItemSize(); got != want {
			return nil, fmt.Errorf("safetensors: tensor %q needs %d bytes but data has %d", name, want, got)
		}

		entries[name] = storeEntry{
			DType: dtype,
			Shape: append([]int64(nil), raw.Shape...),
			Start: start,
			End:   end,
		}
		names = append(names, name)
	}

	if len(entries) == 0 {
		return nil, errors.New("safetensors: no tensors found")
	}

	return &Store{raw: data, entries: entries, names: names}, nil
}

// Names lists the stored tensor names in sorted order.
func (s *Store) Names() []string {
	return append([]string(nil), s.names...)
}

func (s *Store) Has(name string) bool {
	_, ok := s.entries[name]
	return ok
}

// Info returns dtype and shape of a stored tensor without decoding it.
func (s *Store) Info(name string) (Info, error) {
	entry, ok := s.entries[name]
	if !ok {
		return Info{}, fmt.Errorf("safetensors: tensor %q not found (available: %s)", name, summarizeNames(s.names))
	}

	return Info{DType: entry.DType, Shape: append([]int64(nil), entry.Shape...)}, nil
}

// Volume decodes a stored 3-D tensor into a volume of its element type.
func (s *Store) Volume(name string) (volume.Any, error) {
	entry, ok := s.entries[name]
	if !ok {
		return nil, fmt.Errorf("safetensors: tensor %q not found (available: %s)", name, summarizeNames(s.names))
	}

	if len(entry.Shape) != 3 {
		return nil, fmt.Errorf("safetensors: tensor %q has %d-D shape %v, expected 3-D", name, len(entry.Shape), entry.Shape)
	}

	p, r, c := int(entry.Shape[0]), int(entry.Shape[1]), int(entry.Shape[2])
	raw := s.raw[entry.Start:entry.End]

	switch entry.DType {
	case volume.F32:
		return decodeVolume(raw, p, r, c, func(b []byte) float32 {
			return math.Float32frombits(binary.LittleEndian.Uint32(b))
		})
	case volume.F64:
		return decodeVolume(raw, p, r, c, func(b []byte) float64 {
			return math.Float64frombits(binary.LittleEndian.Uint64(b))
		})
	case volume.U8:
		return decodeVolume(raw, p, r, c, func(b []byte) uint8 { return b[0] })
	case volume.U16:
		return decodeVolume(raw, p, r, c, binary.LittleEndian.Uint16)
	case volume.U32:
		return decodeVolume(raw, p, r, c, binary.LittleEndian.Uint32)
	case volume.U64:
		return decodeVolume(raw, p, r, c, binary.LittleEndian.Uint64)
	default:
		return nil, fmt.Errorf("safetensors: tensor %q has undecodable dtype %v", name, entry.DType)
	}
}

// Vector decodes a stored 1-D tensor into float64 values, converting from
// the stored element type.
func (s *Store) Vector(name string) ([]float64, error) {
	entry, ok := s.entries[name]
	if !ok {
		return nil, fmt.Errorf("safetensors: tensor %q not found (available: %s)", name, summarizeNames(s.names))
	}

	if len(entry.Shape) != 1 {
		return nil, fmt.Errorf("safetensors: tensor %q has %d-D shape %v, expected 1-D", name, len(entry.Shape), entry.Shape)
	}

	n := int(entry.Shape[0])
	raw := s.raw[entry.Start:entry.End]
	out := make([]float64, n)

	switch entry.DType {
	case volume.F64:
		for i := range out {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
		}
	case volume.F32:
		for i := range out {
			out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:])))
		}
	default:
		return nil, fmt.Errorf("safetensors: tensor %q dtype %v cannot be read as a vector", name, entry.DType)
	}

	return out, nil
}

// Close releases the underlying buffer.
func (s *Store) Close() {
	s.raw = nil
	s.entries = nil
	s.names = nil
}

// ReadVolume reads a volume file: the "data" tensor plus the optional
// "angles" vector.
func ReadVolume(path string) (volume.Any, []float64, error) {
	store, err := Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer store.Close()

	v, err := store.Volume(VolumeTensor)
	if err != nil {
		return nil, nil, err
	}

	var angles []float64
	if store.Has(AnglesTensor) {
		angles, err = store.Vector(AnglesTensor)
		if err != nil {
			return nil, nil, err
		}
	}

	return v, angles, nil
}

// decodeVolume sizes the element slice from the verified payload length, so
// a header with inconsistent dims fails in NewOwned instead of allocating.
func decodeVolume[T volume.Scalar](raw []byte, p, r, c int, from func([]byte) T) (volume.Any, error) {
	size := volume.DTypeOf[T]().ItemSize()

	data := make([]T, len(raw)/size)
	for i := range data {
		data[i] = from(raw[i*size:])
	}

	return volume.NewOwned(data, p, r, c)
}

func decodeHeader(data []byte) (int, map[string]json.RawMessage, error) {
	if len(data) < 8 {
		return 0, nil, fmt.Errorf("safetensors: file too short (%d bytes)", len(data))
	}

	headerLen := binary.LittleEndian.Uint64(data[:8])

	headerEnd := 8 + int(headerLen)
	if headerLen > uint64(len(data)) || headerEnd > len(data) {
		return 0, nil, fmt.Errorf("safetensors: header length %d exceeds file size %d", headerLen, len(data))
	}

	var header map[string]json.RawMessage

	err := json.Unmarshal(data[8:headerEnd], &header)
	if err != nil {
		return 0, nil, fmt.Errorf("safetensors: parse header: %w", err)
	}

	return headerEnd, header, nil
}

func parseDType(s string) (volume.DType, error) {
	switch strings.ToUpper(s) {
	case "F32":
		return volume.F32, nil
	case "F64":
		return volume.F64, nil
	case "U8":
		return volume.U8, nil
	case "U16":
		return volume.U16, nil
	case "U32":
		return volume.U32, nil
	case "U64":
		return volume.U64, nil
	default:
		return volume.DTypeInvalid, fmt.Errorf("unsupported dtype %q", s)
	}
}

func dtypeName(d volume.DType) (string, error) {
	switch d {
	case volume.F32:
		return "F32", nil
	case volume.F64:
		return "F64", nil
	case volume.U8:
		return "U8", nil
	case volume.U16:
		return "U16", nil
	case volume.U32:
		return "U32", nil
	case volume.U64:
		return "U64", nil
	default:
		return "", fmt.Errorf("unsupported dtype %v", d)
	}
}

func shapeElementCount(shape []int64) (int64, error) {
	total := int64(1)

	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("negative dimension %d", d)
		}

		if d == 0 {
			return 0, nil
		}

		if total > math.MaxInt64/d {
			return 0, fmt.Errorf("shape %v overflows element count", shape)
		}

		total *= d
	}

	return total, nil
}

func summarizeNames(names []string) string {
	if len(names) == 0 {
		return "none"
	}

	const maxNames = 8
	if len(names) <= maxNames {
		return strings.Join(names, ", ")
	}

	return strings.Join(names[:maxNames], ", ") + ", ..."
}
