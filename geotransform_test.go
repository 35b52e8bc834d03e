package mosaic

import (
	"math"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestGeoTransformInvert(t *testing.T) {
	for _, tc := range []struct {
		name string
		gt   GeoTransform
	}{
		{
			name: "north_up",
			gt:   GeoTransform{100, 0.01, 0, 20, 0, -0.01},
		},
		{
			name: "rotated",
			gt:   GeoTransform{100, 0.01 * math.Cos(0.3), -0.01 * math.Sin(0.3), 20, -0.01 * math.Sin(0.3), -0.01 * math.Cos(0.3)},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			inv, err := tc.gt.Invert()
			assert.NoError(t, err)
			for _, pixel := range [][2]float64{{0, 0}, {10, 20}, {1000, 3}, {0.5, 0.5}} {
				x, y := tc.gt.Apply(pixel[0], pixel[1])
				col, row := inv.Apply(x, y)
				assert.True(t, math.Abs(col-pixel[0]) < 1e-6)
				assert.True(t, math.Abs(row-pixel[1]) < 1e-6)
			}
		})
	}
}

func TestGeoTransformSingular(t *testing.T) {
	_, err := GeoTransform{0, 0, 0, 0, 0, -1}.Invert()
	assert.Equal(t, errSingularGeoTransform, err)
	_, err = GeoTransform{0, 1, 1, 0, 1, 1}.Invert()
	assert.Equal(t, errSingularGeoTransform, err)
}

func TestGeoTransformFromSector(t *testing.T) {
	gt := GeoTransformFromSector(Sector{MinLat: 10, MaxLat: 20, MinLon: 100, MaxLon: 110}, 3600, 3600)
	assert.True(t, gt.IsNorthUp())
	assert.True(t, gt[5] < 0)
	minX, minY, maxX, maxY := gt.Bounds(3600, 3600)
	assert.Equal(t, 100.0, minX)
	assert.True(t, math.Abs(maxX-110) < 1e-9)
	assert.True(t, math.Abs(minY-10) < 1e-9)
	assert.Equal(t, 20.0, maxY)

	scaled := gt.Scaled(3600, 3600, 900, 900)
	assert.Equal(t, 4*gt[1], scaled[1])
	assert.Equal(t, 4*gt[5], scaled[5])
}
