//go:build !(darwin || linux || freebsd)

package toolkit

import (
	"github.com/example/go-tomolib/recon"
)

// library is unavailable on platforms without dlopen support. The type is
// kept so the package API stays build-compatible.
type library struct{}

func openLibrary(path string) (*library, error) {
	return nil, ErrUnsupported
}

func (l *library) version() int32 {
	return 0
}

func (l *library) runFBP(data []float32, p, r, c int, geom recon.Geometry, out []float32) error {
	return ErrUnsupported
}

func (l *library) runSIRT(data []float32, p, r, c int, geom recon.Geometry, params recon.IterParams, out []float32) error {
	return ErrUnsupported
}

func (l *library) runCGLS(data []float32, p, r, c int, geom recon.Geometry, params recon.IterParams, out []float32) error {
	return ErrUnsupported
}

func (l *library) close() error {
	return nil
}
