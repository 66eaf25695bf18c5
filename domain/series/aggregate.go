package series

import (
	"episweep/domain/core"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
)

// AggregatedSeries is the elementwise mean of several runs of the same
// configuration under different seeds, with the spread across seeds.
type AggregatedSeries struct {
	Mean    *ResultSeries
	StdDev  *ResultSeries
	Median  *ResultSeries
	Samples int
}

// AverageOverSeeds averages runs elementwise per channel. All inputs must
// share length and channel set; otherwise it fails with ErrShapeMismatch
// before computing anything.
func AverageOverSeeds(list []*ResultSeries) (*AggregatedSeries, error) {
	if len(list) == 0 {
		return nil, core.NewShapeMismatchError("no series to average")
	}
	first := list[0]
	if first == nil {
		return nil, core.NewShapeMismatchError("series 0 is nil")
	}
	for i, s := range list[1:] {
		if s == nil {
			return nil, core.NewShapeMismatchError("series %d is nil", i+1)
		}
		if s.length != first.length {
			return nil, core.NewShapeMismatchError("series %d has %d rows, series 0 has %d", i+1, s.length, first.length)
		}
		if !s.SameShape(first) {
			return nil, core.NewShapeMismatchError("series %d channels %v differ from %v", i+1, s.sortedChannels(), first.sortedChannels())
		}
	}

	names := first.Channels()
	means := make([][]float64, len(names))
	sds := make([][]float64, len(names))
	medians := make([][]float64, len(names))
	sample := make([]float64, len(list))

	for c, name := range names {
		means[c] = make([]float64, first.length)
		sds[c] = make([]float64, first.length)
		medians[c] = make([]float64, first.length)
		for row := 0; row < first.length; row++ {
			for i, s := range list {
				sample[i] = s.channels[name][row]
			}
			if len(sample) > 1 {
				means[c][row], sds[c][row] = stat.MeanStdDev(sample, nil)
			} else {
				means[c][row] = sample[0]
			}
			med, err := stats.Median(sample)
			if err != nil {
				return nil, core.NewShapeMismatchError("median of %s row %d: %v", name, row, err)
			}
			medians[c][row] = med
		}
	}

	mean, err := FromColumns(names, means)
	if err != nil {
		return nil, err
	}
	sd, err := FromColumns(names, sds)
	if err != nil {
		return nil, err
	}
	median, err := FromColumns(names, medians)
	if err != nil {
		return nil, err
	}
	return &AggregatedSeries{Mean: mean, StdDev: sd, Median: median, Samples: len(list)}, nil
}

// MeanOf averages scalar endpoints (one per seed).
func MeanOf(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, core.NewShapeMismatchError("no values to average")
	}
	return stat.Mean(values, nil), nil
}
