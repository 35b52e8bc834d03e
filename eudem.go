package mosaic

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
)

// EUDEMSRID is the EPSG code of the European LAEA projection used by EU-DEM.
// EU-DEM files declare it as a user-defined CRS.
const EUDEMSRID = 3035

// EUDEMSources returns a SourceSpec for each EU-DEM v1.1 tile in the root of
// fsys.
func EUDEMSources(fsys fs.FS) ([]SourceSpec, error) {
	filenames, err := fs.Glob(fsys, "eu_dem_v11_E*N*.TIF")
	if err != nil {
		return nil, err
	}
	slices.Sort(filenames)
	specs := make([]SourceSpec, 0, len(filenames))
	for _, filename := range filenames {
		var e, n int
		if _, err := fmt.Sscanf(filename, "eu_dem_v11_E%02dN%02d.TIF", &e, &n); err != nil {
			continue
		}
		if filename != fmt.Sprintf("eu_dem_v11_E%02dN%02d.TIF", e, n) {
			continue
		}
		specs = append(specs, SourceSpec{
			Path:        filename,
			PixelFormat: PixelFormatElevation,
			SRID:        EUDEMSRID,
		})
	}
	return specs, nil
}

// An EUDEMElevationService returns elevations from EU-DEM tiles.
type EUDEMElevationService struct {
	compositor *Compositor
}

// NewEUDEMElevationService returns a new EUDEMElevationService reading
// EU-DEM tiles from fsys.
func NewEUDEMElevationService(ctx context.Context, fsys fs.FS, options ...GeoTIFFReaderOption) (*EUDEMElevationService, error) {
	specs, err := EUDEMSources(fsys)
	if err != nil {
		return nil, err
	}
	geoTIFFReader, err := NewGeoTIFFReader(options...)
	if err != nil {
		return nil, err
	}
	registry := NewReaderRegistry([]RasterReader{geoTIFFReader})
	catalog, err := NewCatalog(ctx, registry, specs, WithFS(fsys))
	if err != nil {
		return nil, err
	}
	return &EUDEMElevationService{
		compositor: NewCompositor(catalog),
	}, nil
}

// Elevation4326 returns the elevation at each of coords4326, which are
// longitude/latitude pairs. Coordinates outside EU-DEM are NaN.
func (s *EUDEMElevationService) Elevation4326(ctx context.Context, coords4326 [][]float64) ([]float64, error) {
	points := make([]LatLon, len(coords4326))
	for i, coord := range coords4326 {
		points[i] = LatLon{Lat: coord[1], Lon: coord[0]}
	}
	return s.compositor.Elevations(ctx, points)
}
