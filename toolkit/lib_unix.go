//go:build darwin || linux || freebsd

package toolkit

import (
	"fmt"

	"github.com/ebitengine/purego"

	"github.com/example/go-tomolib/recon"
)

// library owns the dlopen handle and the registered entry points of the
// native reconstruction toolkit.
type library struct {
	handle uintptr

	versionFn func() int32
	fbpFn     func(data []float32, projections, rows, cols int32, angles []float64, angleCount int32, centerOffset float64, objSize, device int32, out []float32) int32
	sirtFn    func(data []float32, projections, rows, cols int32, angles []float64, angleCount int32, centerOffset float64, objSize, device, iterations, nonneg int32, out []float32) int32
	cglsFn    func(data []float32, projections, rows, cols int32, angles []float64, angleCount int32, centerOffset float64, objSize, device, iterations, nonneg int32, out []float32) int32
}

var requiredSymbols = []string{
	"tomorec_version",
	"tomorec_fbp",
	"tomorec_sirt",
	"tomorec_cgls",
}

func openLibrary(path string) (*library, error) {
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("toolkit: load %s: %w", path, err)
	}

	// RegisterLibFunc panics on a missing symbol, so probe them first.
	for _, sym := range requiredSymbols {
		if _, err := purego.Dlsym(handle, sym); err != nil {
			_ = purego.Dlclose(handle)
			return nil, fmt.Errorf("toolkit: %s lacks symbol %s: %w", path, sym, err)
		}
	}

	lib := &library{handle: handle}
	purego.RegisterLibFunc(&lib.versionFn, handle, "tomorec_version")
	purego.RegisterLibFunc(&lib.fbpFn, handle, "tomorec_fbp")
	purego.RegisterLibFunc(&lib.sirtFn, handle, "tomorec_sirt")
	purego.RegisterLibFunc(&lib.cglsFn, handle, "tomorec_cgls")

	return lib, nil
}

func (l *library) version() int32 {
	return l.versionFn()
}

func (l *library) runFBP(data []float32, p, r, c int, geom recon.Geometry, out []float32) error {
	rc := l.fbpFn(data, int32(p), int32(r), int32(c),
		geom.Angles, int32(len(geom.Angles)), geom.CenterOffset,
		int32(geom.ObjSize), int32(geom.Device), out)
	if rc != 0 {
		return fmt.Errorf("toolkit: fbp failed with code %d", rc)
	}

	return nil
}

func (l *library) runSIRT(data []float32, p, r, c int, geom recon.Geometry, params recon.IterParams, out []float32) error {
	rc := l.sirtFn(data, int32(p), int32(r), int32(c),
		geom.Angles, int32(len(geom.Angles)), geom.CenterOffset,
		int32(geom.ObjSize), int32(geom.Device),
		int32(params.Iterations), boolInt32(params.Nonnegativity), out)
	if rc != 0 {
		return fmt.Errorf("toolkit: sirt failed with code %d", rc)
	}

	return nil
}

func (l *library) runCGLS(data []float32, p, r, c int, geom recon.Geometry, params recon.IterParams, out []float32) error {
	rc := l.cglsFn(data, int32(p), int32(r), int32(c),
		geom.Angles, int32(len(geom.Angles)), geom.CenterOffset,
		int32(geom.ObjSize), int32(geom.Device),
		int32(params.Iterations), boolInt32(params.Nonnegativity), out)
	if rc != 0 {
		return fmt.Errorf("toolkit: cgls failed with code %d", rc)
	}

	return nil
}

func (l *library) close() error {
	if err := purego.Dlclose(l.handle); err != nil {
		return fmt.Errorf("toolkit: close library: %w", err)
	}

	return nil
}

func boolInt32(b bool) int32 {
	if b {
		return 1
	}

	return 0
}
