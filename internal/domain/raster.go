package domain

// RasterWriter receives one single-band raster. Nothing is visible at the
// destination path until Close succeeds; after Close or Discard every method
// returns ErrClosed.
type RasterWriter interface {
	WriteBand(values []int16) error
	SetGeoTransform(gt GeoTransform) error
	SetProjection(wkt string) error
	SetNoDataValue(v float64) error
	SetMetadata(key, value string) error

	// Close flushes the raster and commits it to its final path.
	Close() error
	// Discard abandons the raster and removes anything written so far.
	Discard() error
}

// RasterCreator creates output rasters.
type RasterCreator interface {
	Create(path string, width, height int, dtype DataType) (RasterWriter, error)
}
