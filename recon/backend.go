package recon

import (
	"context"
	"sync"

	"github.com/example/go-tomolib/volume"
)

// Geometry describes the parallel-beam acquisition handed to a backend. The
// orchestration layer fills it from the user-facing parameters: CenterOffset
// is cols/2 - center - 0.5 and Angles carry the flipped sign the projector
// convention expects.
type Geometry struct {
	DetectorCols int
	DetectorRows int
	CenterOffset float64
	Angles       []float64
	ObjSize      int
	Device       int
}

// IterParams carries the knobs shared by the iterative solvers.
type IterParams struct {
	Iterations    int
	Nonnegativity bool
}

// BackendInfo describes a backend implementation.
type BackendInfo struct {
	Name        string
	Version     string
	Description string
}

// Backend is implemented by reconstruction engines (the native GPU toolkit,
// the built-in CPU reference). Implementations receive validated input and
// return a volume of shape (DetectorRows, ObjSize, ObjSize).
type Backend interface {
	Info() BackendInfo
	Available() bool
	FBP(ctx context.Context, data *volume.Volume[float32], geom Geometry) (*volume.Volume[float32], error)
	SIRT(ctx context.Context, data *volume.Volume[float32], geom Geometry, params IterParams) (*volume.Volume[float32], error)
	CGLS(ctx context.Context, data *volume.Volume[float32], geom Geometry, params IterParams) (*volume.Volume[float32], error)
}

var (
	backendMu sync.RWMutex
	backend   Backend

	cpuFallback = NewCPUBackend()
)

// RegisterBackend registers a reconstruction backend. Passing nil restores
// the built-in CPU reference backend.
func RegisterBackend(b Backend) {
	backendMu.Lock()
	backend = b
	backendMu.Unlock()
}

// CurrentBackendInfo reports the backend reconstructions will run on.
func CurrentBackendInfo() BackendInfo {
	b, err := resolveBackend()
	if err != nil {
		return getBackend().Info()
	}

	return b.Info()
}

func getBackend() Backend {
	backendMu.RLock()
	b := backend
	backendMu.RUnlock()

	return b
}

func resolveBackend() (Backend, error) {
	b := getBackend()
	if b == nil {
		return cpuFallback, nil
	}

	if !b.Available() {
		return nil, ErrBackendUnavailable
	}

	return b, nil
}
