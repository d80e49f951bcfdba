package recon

import "errors"

var (
	// ErrShape is returned when the projection data is missing or empty.
	ErrShape = errors.New("recon: projection data is not a non-empty 3-D volume")

	// ErrAngleCount is returned when the angle vector length does not match
	// the projection count.
	ErrAngleCount = errors.New("recon: angle count does not match projection count")

	// ErrIterations is returned for non-positive iteration counts.
	ErrIterations = errors.New("recon: iterations must be positive")

	// ErrObjSize is returned for non-positive reconstruction grid sizes.
	ErrObjSize = errors.New("recon: object size must be positive")

	// ErrBackendUnavailable is returned when the registered backend reports
	// itself unavailable on this system.
	ErrBackendUnavailable = errors.New("recon: backend unavailable")
)
