package domain

import (
	"fmt"
	"math"
)

// Band is a rescaled raster band ready to be written.
type Band struct {
	Width        int
	Height       int
	Values       []int16 // row-major
	NoData       float64 // MISSING_VALUE as read, even outside the int16 range
	ValidCount   int
	MissingCount int
}

// IsMissing reports whether raw sample v matches the missing value within tolerance.
func IsMissing(v int16, missingValue int, tolerance float64) bool {
	return math.Abs(float64(v)-float64(missingValue)) <= tolerance
}

// ScaleSample divides a valid raw sample by the scaling factor and truncates
// the quotient toward zero, saturating at the int16 bounds.
func ScaleSample(v int16, scalingFactor float64) int16 {
	return saturateInt16(float64(v) / scalingFactor)
}

func saturateInt16(q float64) int16 {
	switch {
	case q >= math.MaxInt16:
		return math.MaxInt16
	case q <= math.MinInt16:
		return math.MinInt16
	default:
		return int16(q)
	}
}

// Rescale classifies every sample of grid as missing or valid and produces
// the output band. Missing samples keep the literal missing value; valid ones
// are scaled. The raw slice is not modified.
func Rescale(grid SourceGrid, tolerance float64) (Band, error) {
	if err := grid.Validate(); err != nil {
		return Band{}, err
	}
	if tolerance < 0 || math.IsNaN(tolerance) {
		return Band{}, fmt.Errorf("%w: tolerance %v must be non-negative", ErrConfiguration, tolerance)
	}

	missing := saturateInt16(float64(grid.MissingValue))
	band := Band{
		Width:  grid.Cols,
		Height: grid.Rows,
		Values: make([]int16, len(grid.Raw)),
		NoData: float64(grid.MissingValue),
	}
	for i, v := range grid.Raw {
		if IsMissing(v, grid.MissingValue, tolerance) {
			band.Values[i] = missing
			band.MissingCount++
			continue
		}
		band.Values[i] = ScaleSample(v, grid.ScalingFactor)
		band.ValidCount++
	}
	return band, nil
}

// Mask returns a per-sample flag that is true where the band holds a valid
// (non-missing) value, as classified against the raw grid.
func Mask(grid SourceGrid, tolerance float64) []bool {
	mask := make([]bool, len(grid.Raw))
	for i, v := range grid.Raw {
		mask[i] = !IsMissing(v, grid.MissingValue, tolerance)
	}
	return mask
}
