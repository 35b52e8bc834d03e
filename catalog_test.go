package mosaic_test

import (
	"context"
	"errors"
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/twpayne/go-mosaic"
)

func TestReaderRegistry(t *testing.T) {
	sources := map[string]*testSource{
		"a.tif": newTestSource(
			mosaic.MustNewSector(0, 1, 0, 1), 10, 10,
			mosaic.PixelFormatElevation, mosaic.DataTypeInt16, 1,
			constantSample(1),
		),
	}
	failing := &failingInitReader{
		testReader: testReader{
			sources: sources,
		},
	}
	working := newTestReader(sources)
	registry := mosaic.NewReaderRegistry([]mosaic.RasterReader{failing, working})
	assert.Equal(t, []mosaic.RasterReader{failing, working}, registry.Readers())

	source := mosaic.Source{SourceSpec: mosaic.SourceSpec{Path: "a.tif"}}
	for range 3 {
		reader, ok := registry.FindReaderFor(t.Context(), source)
		assert.True(t, ok)
		assert.Equal(t, "test", reader.Name())
	}
	assert.Equal(t, int64(1), failing.initCount.Load())
	assert.True(t, errors.Is(registry.Available(0), mosaic.ErrDecoderUnavailable))
	assert.NoError(t, registry.Available(1))
	assert.True(t, errors.Is(registry.Available(2), mosaic.ErrInvalidArgument))
	assert.True(t, errors.Is(registry.Available(-1), mosaic.ErrInvalidArgument))

	_, ok := registry.FindReaderFor(t.Context(), mosaic.Source{SourceSpec: mosaic.SourceSpec{Path: "b.tif"}})
	assert.False(t, ok)
}

// A valueReader is a reader with a non-comparable dynamic type.
type valueReader struct {
	paths map[string]bool
}

func (r valueReader) Name() string {
	return "value"
}

func (r valueReader) CanRead(ctx context.Context, source mosaic.Source) bool {
	return r.paths[source.Path]
}

func (r valueReader) ReadMetadata(ctx context.Context, source mosaic.Source) (*mosaic.Metadata, error) {
	return nil, errors.ErrUnsupported
}

func (r valueReader) Open(ctx context.Context, source mosaic.Source) (mosaic.Handle, error) {
	return nil, errors.ErrUnsupported
}

func TestReaderRegistryValueReaders(t *testing.T) {
	registry := mosaic.NewReaderRegistry([]mosaic.RasterReader{
		valueReader{paths: map[string]bool{"a.tif": true}},
		valueReader{paths: map[string]bool{"b.tif": true}},
	})
	assert.NoError(t, registry.Available(0))
	assert.NoError(t, registry.Available(1))
	reader, ok := registry.FindReaderFor(t.Context(), mosaic.Source{SourceSpec: mosaic.SourceSpec{Path: "b.tif"}})
	assert.True(t, ok)
	assert.Equal(t, "value", reader.Name())
}

func TestNewCatalog(t *testing.T) {
	noSector := newTestSource(
		mosaic.MustNewSector(20, 30, 20, 30), 10, 10,
		mosaic.PixelFormatImage, mosaic.DataTypeByte, 3,
		constantSample(1, 2, 3),
	)
	noSector.noSector = true
	screen := newTestSource(
		mosaic.MustNewSector(0, 1, 0, 1), 10, 10,
		mosaic.PixelFormatImage, mosaic.DataTypeByte, 3,
		constantSample(1, 2, 3),
	)
	screen.noSector = true
	screen.info.CoordinateSystem = mosaic.CoordinateSystemScreen
	reader := newTestReader(map[string]*testSource{
		"elevation.tif": newTestSource(
			mosaic.MustNewSector(0, 10, 0, 10), 10, 10,
			mosaic.PixelFormatElevation, mosaic.DataTypeInt16, 1,
			constantSample(1),
		),
		"decoded.png":  noSector,
		"screen.png":   screen,
		"override.png": screen,
	})
	registry := mosaic.NewReaderRegistry([]mosaic.RasterReader{reader})

	catalog, err := mosaic.NewCatalog(t.Context(), registry, []mosaic.SourceSpec{
		{
			Path:   "elevation.tif",
			NoData: ptr(-9999.0),
			SRID:   4258,
		},
		{
			Path: "missing.tif",
		},
		{
			Path: "decoded.png",
		},
		{
			Path: "screen.png",
		},
		{
			Path:   "override.png",
			Sector: ptr(mosaic.MustNewSector(40, 50, 40, 50)),
		},
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, catalog.Len())

	descriptors := catalog.Descriptors()
	assert.Equal(t, "elevation.tif", descriptors[0].Source.Path)
	assert.Equal(t, ptr(-9999.0), descriptors[0].NoData)
	assert.Equal(t, 4258, descriptors[0].SRID)
	assert.Equal(t, mosaic.PixelFormatElevation, descriptors[0].PixelFormat)
	assert.Equal(t, "decoded.png", descriptors[1].Source.Path)
	assert.Equal(t, mosaic.MustNewSector(20, 30, 20, 30), descriptors[1].Sector)
	assert.Equal(t, "override.png", descriptors[2].Source.Path)
	assert.Equal(t, mosaic.MustNewSector(40, 50, 40, 50), descriptors[2].Sector)

	coverage, ok := catalog.Coverage()
	assert.True(t, ok)
	assert.Equal(t, mosaic.MustNewSector(0, 50, 0, 50), coverage)

	intersecting := catalog.Intersecting(mosaic.MustNewSector(5, 25, 5, 25))
	assert.Equal(t, 2, len(intersecting))
	assert.Equal(t, "elevation.tif", intersecting[0].Source.Path)
	assert.Equal(t, "decoded.png", intersecting[1].Source.Path)
}

func TestEmptyCatalog(t *testing.T) {
	catalog, err := mosaic.NewCatalog(t.Context(), mosaic.NewReaderRegistry(nil), nil)
	assert.NoError(t, err)
	_, ok := catalog.Coverage()
	assert.False(t, ok)

	_, err = mosaic.NewCompositor(catalog).Compose(t.Context(), &mosaic.CompositionRequest{
		Sector:      ptr(mosaic.MustNewSector(0, 1, 0, 1)),
		Width:       1,
		Height:      1,
		PixelFormat: mosaic.PixelFormatImage,
	})
	assert.True(t, errors.Is(err, mosaic.ErrOutOfCoverage))
}

func TestCatalogSectorOverride(t *testing.T) {
	reader := newTestReader(map[string]*testSource{
		"a.tif": newTestSource(
			mosaic.MustNewSector(0, 10, 0, 10), 10, 10,
			mosaic.PixelFormatElevation, mosaic.DataTypeInt16, 1,
			constantSample(7),
		),
	})
	override := mosaic.MustNewSector(40, 50, 40, 50)
	registry := mosaic.NewReaderRegistry([]mosaic.RasterReader{reader})
	catalog, err := mosaic.NewCatalog(t.Context(), registry, []mosaic.SourceSpec{
		{
			Path:   "a.tif",
			Sector: &override,
		},
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, catalog.Len())

	descriptor := catalog.Descriptors()[0]
	assert.Equal(t, override, descriptor.Sector)
	assert.Equal(t, mosaic.CoordinateSystemScreen, descriptor.CoordinateSystem)
	coverage, ok := catalog.Coverage()
	assert.True(t, ok)
	assert.Equal(t, override, coverage)

	handle, err := descriptor.Open(t.Context())
	assert.NoError(t, err)
	assert.Equal(t, override, handle.Info().Sector)
	assert.Equal(t, mosaic.CoordinateSystemScreen, handle.Info().CoordinateSystem)
	assert.NoError(t, handle.Close())
	assert.Equal(t, int64(0), reader.openHandles.Load())

	compositor := mosaic.NewCompositor(catalog)
	raster, err := compositor.Compose(t.Context(), &mosaic.CompositionRequest{
		Sector:      &override,
		Width:       8,
		Height:      8,
		PixelFormat: mosaic.PixelFormatElevation,
	})
	assert.NoError(t, err)
	elevationRaster := raster.(*mosaic.ElevationRaster)
	for y := range 8 {
		for x := range 8 {
			assert.False(t, elevationRaster.IsNoData(x, y))
			assert.Equal(t, 7.0, elevationRaster.At(x, y))
		}
	}

	_, err = compositor.Compose(t.Context(), &mosaic.CompositionRequest{
		Sector:      ptr(mosaic.MustNewSector(0, 10, 0, 10)),
		Width:       8,
		Height:      8,
		PixelFormat: mosaic.PixelFormatElevation,
	})
	assert.True(t, errors.Is(err, mosaic.ErrOutOfCoverage))
}
