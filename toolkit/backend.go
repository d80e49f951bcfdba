package toolkit

import (
	"context"

	"github.com/example/go-tomolib/recon"
	"github.com/example/go-tomolib/volume"
)

// nativeBackend adapts a loaded library to recon.Backend. The native calls
// are not interruptible, so the context is only checked on entry.
type nativeBackend struct {
	lib  *library
	info recon.BackendInfo
}

func (b *nativeBackend) Info() recon.BackendInfo {
	return b.info
}

func (b *nativeBackend) Available() bool {
	return b.lib != nil
}

func (b *nativeBackend) FBP(ctx context.Context, data *volume.Volume[float32], geom recon.Geometry) (*volume.Volume[float32], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, r, c := data.Dims()
	out := make([]float32, r*geom.ObjSize*geom.ObjSize)

	if err := b.lib.runFBP(data.RawData(), p, r, c, geom, out); err != nil {
		return nil, err
	}

	return volume.NewOwned(out, r, geom.ObjSize, geom.ObjSize)
}

func (b *nativeBackend) SIRT(ctx context.Context, data *volume.Volume[float32], geom recon.Geometry, params recon.IterParams) (*volume.Volume[float32], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, r, c := data.Dims()
	out := make([]float32, r*geom.ObjSize*geom.ObjSize)

	if err := b.lib.runSIRT(data.RawData(), p, r, c, geom, params, out); err != nil {
		return nil, err
	}

	return volume.NewOwned(out, r, geom.ObjSize, geom.ObjSize)
}

func (b *nativeBackend) CGLS(ctx context.Context, data *volume.Volume[float32], geom recon.Geometry, params recon.IterParams) (*volume.Volume[float32], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, r, c := data.Dims()
	out := make([]float32, r*geom.ObjSize*geom.ObjSize)

	if err := b.lib.runCGLS(data.RawData(), p, r, c, geom, params, out); err != nil {
		return nil, err
	}

	return volume.NewOwned(out, r, geom.ObjSize, geom.ObjSize)
}
