package volume

import (
	"errors"
	"math"
	"sort"

	timestats "github.com/cwbudde/algo-dsp/stats/time"
	"gonum.org/v1/gonum/stat"
)

// Stats summarizes the value distribution of a volume.
type Stats struct {
	Count  int
	Min    float64
	Max    float64
	Mean   float64
	Median float64
	StdDev float64
	RMS    float64
	Sum    float64
}

// Summary computes distribution statistics over all elements of v.
func Summary(v Any) (Stats, error) {
	if v == nil || v.Len() == 0 {
		return Stats{}, errors.New("volume: summary of empty volume")
	}

	values := v.Float64s()
	ts := timestats.Calculate(values)

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	return Stats{
		Count:  ts.Length,
		Min:    ts.Min,
		Max:    ts.Max,
		Mean:   ts.DC,
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		StdDev: math.Sqrt(ts.Variance),
		RMS:    ts.RMS,
		Sum:    ts.DC * float64(ts.Length),
	}, nil
}
