package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/example/go-tomolib/volume"
)

// Encode serializes a volume and an optional angle vector into the
// container format. angles may be nil.
func Encode(v volume.Any, angles []float64) ([]byte, error) {
	if v == nil || v.Len() == 0 {
		return nil, errors.New("safetensors: no volume to encode")
	}

	p, r, c := v.Dims()

	payload, err := encodePayload(v)
	if err != nil {
		return nil, err
	}

	name, err := dtypeName(v.DType())
	if err != nil {
		return nil, fmt.Errorf("safetensors: volume: %w", err)
	}

	header := map[string]storeHeaderEntry{
		VolumeTensor: {
			DType:   name,
			Shape:   []int64{int64(p), int64(r), int64(c)},
			Offsets: [2]int{0, len(payload)},
		},
	}

	if angles != nil {
		start := len(payload)

		payload = append(payload, make([]byte, 8*len(angles))...)
		for i, a := range angles {
			binary.LittleEndian.PutUint64(payload[start+i*8:], math.Float64bits(a))
		}

		header[AnglesTensor] = storeHeaderEntry{
			DType:   "F64",
			Shape:   []int64{int64(len(angles))},
			Offsets: [2]int{start, len(payload)},
		}
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("safetensors: encode header: %w", err)
	}

	out := make([]byte, 0, 8+len(headerJSON)+len(payload))
	lenPrefix := make([]byte, 8)
	binary.LittleEndian.PutUint64(lenPrefix, uint64(len(headerJSON)))
	out = append(out, lenPrefix...)
	out = append(out, headerJSON...)
	out = append(out, payload...)

	return out, nil
}

// WriteFile writes a volume and an optional angle vector to path.
func WriteFile(path string, v volume.Any, angles []float64) error {
	data, err := Encode(v, angles)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("safetensors: write %s: %w", path, err)
	}

	return nil
}

func encodePayload(v volume.Any) ([]byte, error) {
	switch vol := v.(type) {
	case *volume.Volume[float32]:
		return packLE(vol.RawData(), 4, func(b []byte, x float32) {
			binary.LittleEndian.PutUint32(b, math.Float32bits(x))
		}), nil
	case *volume.Volume[float64]:
		return packLE(vol.RawData(), 8, func(b []byte, x float64) {
			binary.LittleEndian.PutUint64(b, math.Float64bits(x))
		}), nil
	case *volume.Volume[uint8]:
		return append([]byte(nil), vol.RawData()...), nil
	case *volume.Volume[uint16]:
		return packLE(vol.RawData(), 2, binary.LittleEndian.PutUint16), nil
	case *volume.Volume[uint32]:
		return packLE(vol.RawData(), 4, binary.LittleEndian.PutUint32), nil
	case *volume.Volume[uint64]:
		return packLE(vol.RawData(), 8, binary.LittleEndian.PutUint64), nil
	default:
		return nil, fmt.Errorf("safetensors: cannot encode dtype %v", v.DType())
	}
}

func packLE[T volume.Scalar](values []T, size int, put func([]byte, T)) []byte {
	out := make([]byte, len(values)*size)
	for i, x := range values {
		put(out[i*size:], x)
	}

	return out
}
