package mosaic_test

import (
	"errors"
	"io/fs"
	"math"
	"os"
	"testing"
	"testing/fstest"

	"github.com/alecthomas/assert/v2"

	"github.com/twpayne/go-mosaic"
)

func TestEUDEMSources(t *testing.T) {
	fsys := fstest.MapFS{
		"eu_dem_v11_E40N20.TIF": &fstest.MapFile{},
		"eu_dem_v11_E00N20.TIF": &fstest.MapFile{},
		"eu_dem_v11_E0N20.TIF":  &fstest.MapFile{},
		"eu_dem_v11_E40N20.tfw": &fstest.MapFile{},
		"README.txt":            &fstest.MapFile{},
	}
	specs, err := mosaic.EUDEMSources(fsys)
	assert.NoError(t, err)
	assert.Equal(t, []mosaic.SourceSpec{
		{Path: "eu_dem_v11_E00N20.TIF", PixelFormat: mosaic.PixelFormatElevation, SRID: 3035},
		{Path: "eu_dem_v11_E40N20.TIF", PixelFormat: mosaic.PixelFormatElevation, SRID: 3035},
	}, specs)
}

func TestEUDEMElevationService_Elevation4326(t *testing.T) {
	if _, err := os.Stat("testdata/eu_dem"); errors.Is(err, fs.ErrNotExist) {
		t.Skip("missing eu_dem test data")
	}
	fsys := os.DirFS("testdata/eu_dem")
	euDEMElevationService, err := mosaic.NewEUDEMElevationService(t.Context(), fsys)
	assert.NoError(t, err)

	for _, tc := range []struct {
		name     string
		filename string
		coord    []float64
		expected float64
	}{
		{
			name:     "azores",
			filename: "eu_dem_v11_E00N20.TIF",
			coord:    []float64{-31.216667, 39.466667},
			expected: 836.89,
		},
		{
			name:     "la_plagne",
			filename: "eu_dem_v11_E40N20.TIF",
			coord:    []float64{6.6771972, 45.505288300000004},
			expected: 1985.50,
		},
		{
			name:     "null_island",
			coord:    []float64{0, 0},
			expected: math.NaN(),
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if tc.filename != "" {
				if _, err := fsys.(fs.StatFS).Stat(tc.filename); errors.Is(err, fs.ErrNotExist) {
					t.Skip(err)
				} else {
					assert.NoError(t, err)
				}
			}
			actual, err := euDEMElevationService.Elevation4326(t.Context(), [][]float64{tc.coord})
			assert.NoError(t, err)
			assert.Equal(t, 1, len(actual))
			if math.IsNaN(tc.expected) {
				assert.True(t, math.IsNaN(actual[0]))
			} else {
				// Bilinear weights depend on pixel-center conventions.
				assert.True(t, almostEqual(tc.expected, actual[0], 25))
			}
		})
	}
}
