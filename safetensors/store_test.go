package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/go-tomolib/volume"
)

// ---------------------------------------------------------------------------
// Helpers to build synthetic container blobs
// ---------------------------------------------------------------------------

// buildContainer creates a valid container blob from name → (dtype, shape,
// raw bytes) entries.
func buildContainer(t *testing.T, tensors map[string]struct {
	dtype string
	shape []int64
	data  []byte
}) []byte {
	t.Helper()

	header := make(map[string]storeHeaderEntry)
	var rawData []byte
	for name, info := range tensors {
		start := len(rawData)
		rawData = append(rawData, info.data...)
		header[name] = storeHeaderEntry{
			DType:   info.dtype,
			Shape:   info.shape,
			Offsets: [2]int{start, start + len(info.data)},
		}
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		t.Fatalf("marshal header: %v", err)
	}

	var buf []byte
	lenBuf := make([]byte, 8)
	binary.LittleEndian.PutUint64(lenBuf, uint64(len(headerJSON)))
	buf = append(buf, lenBuf...)
	buf = append(buf, headerJSON...)
	buf = append(buf, rawData...)
	return buf
}

func float32Bytes(vals []float32) []byte {
	buf := make([]byte, len(vals)*4)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func float64Bytes(vals []float64) []byte {
	buf := make([]byte, len(vals)*8)
	for i, v := range vals {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// ---------------------------------------------------------------------------
// Store decoding
// ---------------------------------------------------------------------------

func TestOpenBytes_VolumeF32(t *testing.T) {
	vals := []float32{1, 2, 3, 4, 5, 6}
	blob := buildContainer(t, map[string]struct {
		dtype string
		shape []int64
		data  []byte
	}{
		"data": {dtype: "F32", shape: []int64{1, 2, 3}, data: float32Bytes(vals)},
	})

	store, err := OpenBytes(blob)
	if err != nil {
		t.Fatalf("OpenBytes: %v", err)
	}
	defer store.Close()

	if names := store.Names(); strings.Join(names, "|") != "data" {
		t.Fatalf("Names() = %v; want [data]", names)
	}

	a, err := store.Volume("data")
	if err != nil {
		t.Fatalf("Volume(data): %v", err)
	}
	p, r, c := a.Dims()
	if p != 1 || r != 2 || c != 3 {
		t.Fatalf("dims = (%d, %d, %d); want (1, 2, 3)", p, r, c)
	}
	v := a.(*volume.Volume[float32])
	got := v.Data()
	for i := range vals {
		if got[i] != vals[i] {
			t.Fatalf("data = %v; want %v", got, vals)
		}
	}
}

func TestOpenBytes_InfoWithoutDecode(t *testing.T) {
	blob := buildContainer(t, map[string]struct {
		dtype string
		shape []int64
		data  []byte
	}{
		"data": {dtype: "U16", shape: []int64{2, 1, 2}, data: make([]byte, 8)},
	})

	store, err := OpenBytes(blob)
	if err != nil {
		t.Fatalf("OpenBytes: %v", err)
	}
	defer store.Close()

	info, err := store.Info("data")
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.DType != volume.U16 {
		t.Fatalf("dtype = %v; want uint16", info.DType)
	}
	if len(info.Shape) != 3 || info.Shape[0] != 2 || info.Shape[2] != 2 {
		t.Fatalf("shape = %v; want [2 1 2]", info.Shape)
	}
	if _, err := store.Info("ghost"); err == nil {
		t.Fatal("expected missing tensor error")
	}
}

func TestOpenBytes_VectorF64(t *testing.T) {
	angles := []float64{0, 0.1, 0.2, 0.3}
	blob := buildContainer(t, map[string]struct {
		dtype string
		shape []int64
		data  []byte
	}{
		"angles": {dtype: "F64", shape: []int64{4}, data: float64Bytes(angles)},
	})

	store, err := OpenBytes(blob)
	if err != nil {
		t.Fatalf("OpenBytes: %v", err)
	}
	defer store.Close()

	got, err := store.Vector("angles")
	if err != nil {
		t.Fatalf("Vector: %v", err)
	}
	for i := range angles {
		if got[i] != angles[i] {
			t.Fatalf("angles = %v; want %v", got, angles)
		}
	}
}

func TestOpenBytes_RankMismatch(t *testing.T) {
	blob := buildContainer(t, map[string]struct {
		dtype string
		shape []int64
		data  []byte
	}{
		"flat": {dtype: "F32", shape: []int64{3}, data: float32Bytes([]float32{1, 2, 3})},
		"cube": {dtype: "F32", shape: []int64{1, 1, 3}, data: float32Bytes([]float32{1, 2, 3})},
	})

	store, err := OpenBytes(blob)
	if err != nil {
		t.Fatalf("OpenBytes: %v", err)
	}
	defer store.Close()

	if _, err := store.Volume("flat"); err == nil {
		t.Fatal("Volume on 1-D tensor should fail")
	}
	if _, err := store.Vector("cube"); err == nil {
		t.Fatal("Vector on 3-D tensor should fail")
	}
}

// ---------------------------------------------------------------------------
// Corrupt inputs
// ---------------------------------------------------------------------------

func TestOpenBytes_Corrupt(t *testing.T) {
	if _, err := OpenBytes([]byte{1, 2, 3}); err == nil {
		t.Fatal("short file should fail")
	}

	// Header length pointing past the end of the file.
	huge := make([]byte, 16)
	binary.LittleEndian.PutUint64(huge, math.MaxUint64)
	if _, err := OpenBytes(huge); err == nil {
		t.Fatal("oversized header length should fail")
	}

	// Offsets past the end of the payload.
	blob := buildContainer(t, map[string]struct {
		dtype string
		shape []int64
		data  []byte
	}{
		"data": {dtype: "F32", shape: []int64{1, 1, 2}, data: float32Bytes([]float32{1, 2})},
	})
	if _, err := OpenBytes(blob[:len(blob)-4]); err == nil {
		t.Fatal("truncated payload should fail")
	}

	// Payload size disagreeing with dtype and shape.
	bad := buildContainer(t, map[string]struct {
		dtype string
		shape []int64
		data  []byte
	}{
		"data": {dtype: "F32", shape: []int64{1, 1, 3}, data: float32Bytes([]float32{1, 2})},
	})
	if _, err := OpenBytes(bad); err == nil {
		t.Fatal("byte count mismatch should fail")
	}

	// Model-weight dtypes are not acquisition dtypes.
	half := buildContainer(t, map[string]struct {
		dtype string
		shape []int64
		data  []byte
	}{
		"data": {dtype: "F16", shape: []int64{1, 1, 2}, data: make([]byte, 4)},
	})
	if _, err := OpenBytes(half); err == nil {
		t.Fatal("F16 dtype should fail")
	}
}

// ---------------------------------------------------------------------------
// Encode / roundtrip
// ---------------------------------------------------------------------------

func TestEncodeRoundtripWithAngles(t *testing.T) {
	vals := []float32{0, 1, 2, 3, 4, 5, 6, 7}
	v, err := volume.New(vals, 2, 2, 2)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	angles := []float64{0, math.Pi / 2}

	blob, err := Encode(v, angles)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	store, err := OpenBytes(blob)
	if err != nil {
		t.Fatalf("OpenBytes: %v", err)
	}
	defer store.Close()

	if names := store.Names(); strings.Join(names, "|") != "angles|data" {
		t.Fatalf("Names() = %v; want [angles data]", names)
	}

	back, err := store.Volume(VolumeTensor)
	if err != nil {
		t.Fatalf("Volume: %v", err)
	}
	got := back.(*volume.Volume[float32]).Data()
	for i := range vals {
		if got[i] != vals[i] {
			t.Fatalf("data = %v; want %v", got, vals)
		}
	}

	gotAngles, err := store.Vector(AnglesTensor)
	if err != nil {
		t.Fatalf("Vector: %v", err)
	}
	if len(gotAngles) != 2 || gotAngles[1] != math.Pi/2 {
		t.Fatalf("angles = %v; want %v", gotAngles, angles)
	}
}

func TestEncodeRoundtripUint16(t *testing.T) {
	v, err := volume.New([]uint16{100, 200, 300, 400}, 1, 2, 2)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	blob, err := Encode(v, nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	store, err := OpenBytes(blob)
	if err != nil {
		t.Fatalf("OpenBytes: %v", err)
	}
	defer store.Close()

	if store.Has(AnglesTensor) {
		t.Fatal("angles tensor should be absent")
	}

	back, err := store.Volume(VolumeTensor)
	if err != nil {
		t.Fatalf("Volume: %v", err)
	}
	if back.DType() != volume.U16 {
		t.Fatalf("dtype = %v; want uint16", back.DType())
	}
	if got := back.(*volume.Volume[uint16]).At(0, 1, 0); got != 300 {
		t.Fatalf("At(0,1,0) = %d; want 300", got)
	}
}

func TestWriteFileReadVolume(t *testing.T) {
	v, err := volume.New([]float64{1.5, 2.5, 3.5, 4.5}, 2, 1, 2)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	angles := []float64{0, math.Pi}

	path := filepath.Join(t.TempDir(), "vol.safetensors")
	if err := WriteFile(path, v, angles); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	back, gotAngles, err := ReadVolume(path)
	if err != nil {
		t.Fatalf("ReadVolume: %v", err)
	}
	if back.DType() != volume.F64 {
		t.Fatalf("dtype = %v; want float64", back.DType())
	}
	if len(gotAngles) != 2 || gotAngles[1] != math.Pi {
		t.Fatalf("angles = %v; want %v", gotAngles, angles)
	}
	if got := back.(*volume.Volume[float64]).At(1, 0, 1); got != 4.5 {
		t.Fatalf("At(1,0,1) = %v; want 4.5", got)
	}
}

func TestReadVolumeWithoutAngles(t *testing.T) {
	v, _ := volume.Full(1, 1, 2, float32(7))
	path := filepath.Join(t.TempDir(), "vol.safetensors")
	if err := WriteFile(path, v, nil); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	back, angles, err := ReadVolume(path)
	if err != nil {
		t.Fatalf("ReadVolume: %v", err)
	}
	if angles != nil {
		t.Fatalf("angles = %v; want nil", angles)
	}
	if back.Len() != 2 {
		t.Fatalf("len = %d; want 2", back.Len())
	}
}

func TestEncodeRejectsEmpty(t *testing.T) {
	if _, err := Encode(nil, nil); err == nil {
		t.Fatal("nil volume should fail")
	}
}

func TestOpenMissingFile(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing.safetensors")); err == nil {
		t.Fatal("missing file should fail")
	}
}
