package mosaic_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/twpayne/go-mosaic"
)

func TestReadSourceList(t *testing.T) {
	specs, err := mosaic.ReadSourceList(strings.NewReader(`
sources:
  - path: srtm/N10E100.tif
    pixel_format: elevation
    nodata: -32768
  - path: aerial/ortho.png
    sector:
      min_lat: 46.5
      max_lat: 46.6
      min_lon: 7.1
      max_lon: 7.2
    resampling: nearest
    properties:
      band_order: "3,2,1"
  - path: eu_dem_v11_E40N20.TIF
    srid: 3035
`))
	assert.NoError(t, err)
	noData := -32768.0
	assert.Equal(t, []mosaic.SourceSpec{
		{
			Path:        "srtm/N10E100.tif",
			PixelFormat: mosaic.PixelFormatElevation,
			NoData:      &noData,
		},
		{
			Path: "aerial/ortho.png",
			Sector: &mosaic.Sector{
				MinLat: 46.5,
				MaxLat: 46.6,
				MinLon: 7.1,
				MaxLon: 7.2,
			},
			Resampling: mosaic.ResamplingNearest,
			Properties: map[string]string{
				"band_order": "3,2,1",
			},
		},
		{
			Path: "eu_dem_v11_E40N20.TIF",
			SRID: 3035,
		},
	}, specs)
}

func TestReadSourceListErrors(t *testing.T) {
	for _, tc := range []struct {
		name  string
		input string
	}{
		{
			name:  "missing_path",
			input: "sources:\n  - pixel_format: image\n",
		},
		{
			name:  "inverted_sector",
			input: "sources:\n  - path: a.tif\n    sector: {min_lat: 10, max_lat: 0, min_lon: 0, max_lon: 10}\n",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := mosaic.ReadSourceList(strings.NewReader(tc.input))
			assert.True(t, errors.Is(err, mosaic.ErrInvalidArgument))
		})
	}

	_, err := mosaic.ReadSourceList(strings.NewReader("sources:\n  - path: a.tif\n    pixel_format: hologram\n"))
	assert.Error(t, err)
}

func TestReadSourceListEmpty(t *testing.T) {
	specs, err := mosaic.ReadSourceList(strings.NewReader(""))
	assert.NoError(t, err)
	assert.Equal(t, 0, len(specs))
}
