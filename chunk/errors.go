package chunk

import "errors"

// ErrDims is returned when a dimension or element size is not positive.
var ErrDims = errors.New("chunk: dimensions and item size must be positive")

// ErrBudget is returned when the byte budget cannot fit the working set of a
// single row.
var ErrBudget = errors.New("chunk: memory budget below a single-row working set")
