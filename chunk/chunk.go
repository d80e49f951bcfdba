// Package chunk splits row-axis work into batches that fit a memory budget.
//
// Working memory, not input size, is what limits sinogram pipelines. An
// Estimator computes how many detector rows of an operation fit into a byte
// budget, Plan turns a row count and that limit into contiguous batches,
// and the Process runners apply an operation batch by batch and join the
// partial results.
package chunk

import "github.com/example/go-tomolib/volume"

// Batch is a contiguous run of detector rows.
type Batch struct {
	Start int
	Count int
}

// Plan splits rows into contiguous batches of at most maxSlices rows each.
func Plan(rows, maxSlices int) ([]Batch, error) {
	if rows <= 0 {
		return nil, ErrDims
	}

	if maxSlices <= 0 {
		return nil, ErrBudget
	}

	batches := make([]Batch, 0, (rows+maxSlices-1)/maxSlices)
	for start := 0; start < rows; start += maxSlices {
		batches = append(batches, Batch{Start: start, Count: min(maxSlices, rows-start)})
	}

	return batches, nil
}

// Process applies op to row batches of at most maxSlices rows and joins the
// results along the row axis. It suits row-preserving operations such as
// stitching, where every input row yields exactly one output row.
func Process[T volume.Scalar](in *volume.Volume[T], maxSlices int, op func(*volume.Volume[T]) (*volume.Volume[T], error)) (*volume.Volume[T], error) {
	outs, err := runBatches(in, maxSlices, op)
	if err != nil {
		return nil, err
	}

	return volume.ConcatRows(outs...)
}

// ProcessStacked applies op to row batches of at most maxSlices rows and
// stacks the results along the first axis. It suits reconstruction, where a
// batch of n input rows yields an (n, objSize, objSize) output.
func ProcessStacked[T volume.Scalar](in *volume.Volume[T], maxSlices int, op func(*volume.Volume[T]) (*volume.Volume[T], error)) (*volume.Volume[T], error) {
	outs, err := runBatches(in, maxSlices, op)
	if err != nil {
		return nil, err
	}

	return volume.Stack(outs...)
}

func runBatches[T volume.Scalar](in *volume.Volume[T], maxSlices int, op func(*volume.Volume[T]) (*volume.Volume[T], error)) ([]*volume.Volume[T], error) {
	if in == nil {
		return nil, ErrDims
	}

	_, rows, _ := in.Dims()

	batches, err := Plan(rows, maxSlices)
	if err != nil {
		return nil, err
	}

	outs := make([]*volume.Volume[T], 0, len(batches))

	for _, b := range batches {
		part, err := in.NarrowRows(b.Start, b.Count)
		if err != nil {
			return nil, err
		}

		out, err := op(part)
		if err != nil {
			return nil, err
		}

		outs = append(outs, out)
	}

	return outs, nil
}
