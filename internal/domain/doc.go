// Package domain models single-band gridded products distributed as HDF5
// containers (Geoland-2 DSSF and similar) and their conversion to
// georeferenced rasters.
//
// # Data Source
//
// Each input file holds one raster dataset below the root group. The root
// group carries the grid description and names the dataset; the dataset
// carries its own encoding attributes:
//
//	/                 PRODUCT="DSSF" NL=3201 NC=3201 FIRST_LAT=75 FIRST_LON=-75
//	/DSSF             MISSING_VALUE=-1 SCALING_FACTOR=10.0   int16[NL][NC]
//
// See [ReadSourceGrid] for the full attribute table and the error returned
// when an entry is absent.
//
// # Sample Encoding
//
// Samples are stored as scaled integers. A sample v is "missing" when
//
//	|v - MISSING_VALUE| <= tolerance
//
// and "valid" otherwise. Valid samples are divided by SCALING_FACTOR and
// truncated toward zero back into int16 storage; missing samples are written
// as the literal MISSING_VALUE, which also becomes the raster's no-data value.
// Quotients outside the int16 range saturate to the nearest bound.
//
// # Georeferencing
//
// FIRST_LAT and FIRST_LON locate the center of pixel (0,0). Rasters address
// the outer corner of that pixel, so the origin shifts by half a pixel:
//
//	originLon = FIRST_LON - pixelSize/2
//	originLat = FIRST_LAT + pixelSize/2
//	transform = [originLon, pixelSize, 0, originLat, 0, -pixelSize]
//
// The pixel size (0.05 degrees) and the geographic CRS (WGS 84) are fixed
// per product family and travel in a [GridProfile] instead of globals.
package domain
