package sino

import "errors"

var (
	// ErrShape is returned when the input is not a 3-D projection volume.
	ErrShape = errors.New("sino: input is not a 3-D volume")

	// ErrOverlapRange is returned when the rounded overlap falls outside
	// [0, columns).
	ErrOverlapRange = errors.New("sino: overlap out of range")

	// ErrInvalidRotation is returned for rotation values other than
	// RotationLeft and RotationRight.
	ErrInvalidRotation = errors.New("sino: invalid rotation side")
)
