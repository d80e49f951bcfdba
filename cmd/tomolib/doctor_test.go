package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/example/go-tomolib/internal/testutil"
	"github.com/example/go-tomolib/safetensors"
	"github.com/example/go-tomolib/volume"
)

func TestValidateContainerHeader_ValidVolume(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.npy")

	v := testutil.SequentialVolume(t, 2, 2, 3)
	if err := volume.WriteNPY(path, v); err != nil {
		t.Fatalf("WriteNPY: %v", err)
	}

	if err := validateContainerHeader(path); err != nil {
		t.Errorf("validateContainerHeader: %v", err)
	}
}

func TestValidateContainerHeader_RejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.npy")

	if err := os.WriteFile(path, []byte("not a numpy file"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := validateContainerHeader(path); err == nil {
		t.Error("expected error for a non-NPY file")
	}
}

func TestValidateContainerHeader_RejectsVector(t *testing.T) {
	// A 1-D angle vector is a valid NPY file but not a sinogram container.
	path := filepath.Join(t.TempDir(), "angles.npy")

	if err := volume.WriteNPYVector(path, []float64{0, 0.5, 1}); err != nil {
		t.Fatalf("WriteNPYVector: %v", err)
	}

	if err := validateContainerHeader(path); err == nil {
		t.Error("expected error for a 1-D array")
	}
}

func TestValidateContainerHeader_Safetensors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.safetensors")

	v := testutil.SequentialVolume(t, 2, 1, 3)
	if err := safetensors.WriteFile(path, v, nil); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := validateContainerHeader(path); err != nil {
		t.Errorf("validateContainerHeader: %v", err)
	}
}

func TestValidateContainerHeader_MissingFile(t *testing.T) {
	if err := validateContainerHeader(filepath.Join(t.TempDir(), "absent.npy")); err == nil {
		t.Error("expected error for a missing file")
	}
}
