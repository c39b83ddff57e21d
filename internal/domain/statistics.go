package domain

import (
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// BandStatistics summarizes the valid samples of a band.
type BandStatistics struct {
	Min, Max     float64
	Mean, StdDev float64
	ValidCount   int
	MissingCount int
}

// ComputeStatistics computes statistics over the samples selected by mask.
// It returns false when the band has no valid samples.
func ComputeStatistics(band Band, mask []bool) (BandStatistics, bool) {
	stats := BandStatistics{ValidCount: band.ValidCount, MissingCount: band.MissingCount}
	if band.ValidCount == 0 {
		return stats, false
	}

	valid := make([]float64, 0, band.ValidCount)
	for i, v := range band.Values {
		if mask[i] {
			valid = append(valid, float64(v))
		}
	}
	stats.Min = floats.Min(valid)
	stats.Max = floats.Max(valid)
	stats.Mean, stats.StdDev = stat.PopMeanStdDev(valid, nil)
	return stats, true
}

// Metadata renders the statistics as GDAL band metadata items.
func (s BandStatistics) Metadata() map[string]string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return map[string]string{
		"STATISTICS_MINIMUM":     f(s.Min),
		"STATISTICS_MAXIMUM":     f(s.Max),
		"STATISTICS_MEAN":        f(s.Mean),
		"STATISTICS_STDDEV":      f(s.StdDev),
		"STATISTICS_VALID_COUNT": strconv.Itoa(s.ValidCount),
	}
}
