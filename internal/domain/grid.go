package domain

import (
	"fmt"
	"math"
	"strings"
)

// Attribute names read from the source container.
const (
	AttrProduct       = "PRODUCT"
	AttrRows          = "NL"
	AttrCols          = "NC"
	AttrFirstLat      = "FIRST_LAT"
	AttrFirstLon      = "FIRST_LON"
	AttrMissingValue  = "MISSING_VALUE"
	AttrScalingFactor = "SCALING_FACTOR"
)

// Profile defaults for DSSF-style products.
const (
	DefaultPixelSize = 0.05 // degrees
	DefaultTolerance = 0.1
)

// WGS84WKT is the geographic WGS 84 coordinate system in OGC WKT1 form.
const WGS84WKT = `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4326"]]`

// SourceGrid is the decoded content of one input container.
type SourceGrid struct {
	Product       string
	Rows          int
	Cols          int
	Raw           []int16 // row-major, Rows*Cols samples
	MissingValue  int
	ScalingFactor float64
	FirstLat      int // center of pixel (0,0)
	FirstLon      int
}

// Validate checks the grid for values the conversion cannot represent.
func (g SourceGrid) Validate() error {
	if g.Rows <= 0 || g.Cols <= 0 {
		return fmt.Errorf("%w: grid %dx%d", ErrInvalidAttribute, g.Rows, g.Cols)
	}
	if len(g.Raw) != g.Rows*g.Cols {
		return fmt.Errorf("%w: %d samples for %d rows x %d cols", ErrShapeMismatch, len(g.Raw), g.Rows, g.Cols)
	}
	if g.ScalingFactor == 0 || math.IsNaN(g.ScalingFactor) || math.IsInf(g.ScalingFactor, 0) {
		return fmt.Errorf("%w: %s=%v", ErrInvalidAttribute, AttrScalingFactor, g.ScalingFactor)
	}
	return nil
}

// DataType is the sample storage type of an output raster.
type DataType int

const (
	Int16 DataType = iota + 1
)

func (d DataType) String() string {
	switch d {
	case Int16:
		return "int16"
	default:
		return fmt.Sprintf("DataType(%d)", int(d))
	}
}

// ParseDataType maps a configuration string to a DataType.
func ParseDataType(s string) (DataType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "int16", "i16":
		return Int16, nil
	default:
		return 0, fmt.Errorf("%w: data type %q", ErrUnsupported, s)
	}
}

// GridProfile holds the per-product constants of a conversion.
type GridProfile struct {
	PixelSize float64  // degrees
	Tolerance float64  // missing-value match tolerance
	DataType  DataType // output sample type
	CRS       string   // WKT attached to every output
}

// DefaultGridProfile returns the DSSF profile: 0.05 degree pixels, tolerance
// 0.1, int16 samples, WGS 84.
func DefaultGridProfile() GridProfile {
	return GridProfile{
		PixelSize: DefaultPixelSize,
		Tolerance: DefaultTolerance,
		DataType:  Int16,
		CRS:       WGS84WKT,
	}
}

// Validate reports the first profile field that cannot be used.
func (p GridProfile) Validate() error {
	if !(p.PixelSize > 0) || math.IsInf(p.PixelSize, 0) {
		return fmt.Errorf("%w: pixel size %v must be positive", ErrConfiguration, p.PixelSize)
	}
	if p.Tolerance < 0 || math.IsNaN(p.Tolerance) {
		return fmt.Errorf("%w: tolerance %v must be non-negative", ErrConfiguration, p.Tolerance)
	}
	if p.DataType != Int16 {
		return fmt.Errorf("%w: data type %s", ErrUnsupported, p.DataType)
	}
	if strings.TrimSpace(p.CRS) == "" {
		return fmt.Errorf("%w: empty CRS", ErrConfiguration)
	}
	return nil
}
