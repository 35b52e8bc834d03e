package mosaic

import (
	"errors"
	"math"
)

var errSingularGeoTransform = errors.New("singular geo-transform")

// A GeoTransform is an affine transform from pixel space to native
// coordinates, in GDAL order: originX, pixelWidth, rotX, originY, rotY,
// pixelHeight.
//
//	x = gt[0] + col*gt[1] + row*gt[2]
//	y = gt[3] + col*gt[4] + row*gt[5]
//
// For north-up rasters gt[5] is negative.
type GeoTransform [6]float64

// GeoTransformFromSector returns a north-up GeoTransform that maps a
// width x height grid onto s with x = longitude and y = latitude.
func GeoTransformFromSector(s Sector, width, height int) GeoTransform {
	return GeoTransform{
		s.MinLon, s.DeltaLon() / float64(width), 0,
		s.MaxLat, 0, -s.DeltaLat() / float64(height),
	}
}

// IsNorthUp returns true if gt has no rotation or shear terms.
func (gt GeoTransform) IsNorthUp() bool {
	return gt[2] == 0 && gt[4] == 0
}

// Apply transforms the pixel coordinate (col, row) into native coordinates.
func (gt GeoTransform) Apply(col, row float64) (float64, float64) {
	return gt[0] + col*gt[1] + row*gt[2], gt[3] + col*gt[4] + row*gt[5]
}

// Invert returns the inverse of gt, mapping native coordinates to pixel
// coordinates.
func (gt GeoTransform) Invert() (GeoTransform, error) {
	if gt.IsNorthUp() {
		if gt[1] == 0 || gt[5] == 0 {
			return GeoTransform{}, errSingularGeoTransform
		}
		return GeoTransform{
			-gt[0] / gt[1], 1 / gt[1], 0,
			-gt[3] / gt[5], 0, 1 / gt[5],
		}, nil
	}
	det := gt[1]*gt[5] - gt[2]*gt[4]
	if math.Abs(det) < 1e-15 {
		return GeoTransform{}, errSingularGeoTransform
	}
	inv := 1 / det
	return GeoTransform{
		(gt[2]*gt[3] - gt[0]*gt[5]) * inv, gt[5] * inv, -gt[2] * inv,
		(-gt[1]*gt[3] + gt[0]*gt[4]) * inv, -gt[4] * inv, gt[1] * inv,
	}, nil
}

// Bounds returns the native-coordinate bounding box of a width x height
// grid.
func (gt GeoTransform) Bounds(width, height int) (minX, minY, maxX, maxY float64) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, corner := range [][2]float64{
		{0, 0},
		{float64(width), 0},
		{0, float64(height)},
		{float64(width), float64(height)},
	} {
		x, y := gt.Apply(corner[0], corner[1])
		minX, maxX = min(minX, x), max(maxX, x)
		minY, maxY = min(minY, y), max(maxY, y)
	}
	return
}

// Scaled returns the GeoTransform of the same extent resampled from
// fromWidth x fromHeight pixels to toWidth x toHeight pixels.
func (gt GeoTransform) Scaled(fromWidth, fromHeight, toWidth, toHeight int) GeoTransform {
	sx := float64(fromWidth) / float64(toWidth)
	sy := float64(fromHeight) / float64(toHeight)
	return GeoTransform{
		gt[0], gt[1] * sx, gt[2] * sy,
		gt[3], gt[4] * sx, gt[5] * sy,
	}
}
