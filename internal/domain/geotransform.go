package domain

import "github.com/ctessum/geom"

// GeoTransform is the affine mapping from pixel (col, row) to map coordinates:
//
//	x = gt[0] + col*gt[1] + row*gt[2]
//	y = gt[3] + col*gt[4] + row*gt[5]
//
// Coordinates address the outer corner of a pixel.
type GeoTransform [6]float64

// GeoTransformFromCenter builds a north-up transform from the center of pixel
// (0,0), shifting the origin half a pixel to the upper-left corner.
func GeoTransformFromCenter(firstLat, firstLon, pixelSize float64) GeoTransform {
	half := pixelSize / 2.0
	return GeoTransform{firstLon - half, pixelSize, 0, firstLat + half, 0, -pixelSize}
}

// NorthUp reports whether the transform has no rotation terms.
func (gt GeoTransform) NorthUp() bool {
	return gt[2] == 0 && gt[4] == 0
}

// Apply maps pixel corner coordinates to map coordinates.
func (gt GeoTransform) Apply(col, row float64) (x, y float64) {
	return gt[0] + col*gt[1] + row*gt[2], gt[3] + col*gt[4] + row*gt[5]
}

// Bounds returns the map-space extent covered by a width x height raster.
func (gt GeoTransform) Bounds(width, height int) *geom.Bounds {
	b := &geom.Bounds{
		Min: geom.Point{X: gt[0], Y: gt[3]},
		Max: geom.Point{X: gt[0], Y: gt[3]},
	}
	w, h := float64(width), float64(height)
	for _, c := range [][2]float64{{w, 0}, {0, h}, {w, h}} {
		x, y := gt.Apply(c[0], c[1])
		if x < b.Min.X {
			b.Min.X = x
		}
		if x > b.Max.X {
			b.Max.X = x
		}
		if y < b.Min.Y {
			b.Min.Y = y
		}
		if y > b.Max.Y {
			b.Max.Y = y
		}
	}
	return b
}
