package mosaic_test

import (
	"encoding/binary"
	"image"
	"image/color"
	"testing"
	"testing/fstest"

	"github.com/alecthomas/assert/v2"

	"github.com/twpayne/go-mosaic"
)

// strippedGeoTIFF returns an 8x8 Int16 GeoTIFF covering [19,20]x[10,11] in
// three strips.
func strippedGeoTIFF() []byte {
	data := int16Samples(8, 8, func(x, y int) int16 {
		return int16(x + 10*y)
	})
	w := newTestTIFFWriter()
	entries := w.writeBlocks(273, 279, [][]byte{data[:48], data[48:96], data[96:]})
	entries = append(entries,
		shortEntry(256, 8),
		shortEntry(257, 8),
		shortEntry(258, 16),
		shortEntry(259, 1),
		shortEntry(262, 1),
		shortEntry(277, 1),
		shortEntry(278, 3),
		shortEntry(284, 1),
		shortEntry(339, 2),
		doubleEntry(33550, 0.125, 0.125, 0),
		doubleEntry(33922, 0, 0, 0, 10, 20, 0),
		geographicGeoKeys(),
		asciiEntry(42113, "-32768"),
	)
	w.writeIFD(entries)
	return w.bytes()
}

// tiledGeoTIFF returns a 32x32 UInt16 GeoTIFF with 16x16 deflated tiles, a
// sparse tile, a mask, and one overview.
func tiledGeoTIFF() []byte {
	w := newTestTIFFWriter()

	tiles := make([][]byte, 4)
	for i := range 3 {
		tileX, tileY := 16*(i%2), 16*(i/2)
		data := make([]byte, 0, 2*16*16)
		for y := range 16 {
			for x := range 16 {
				data = binary.LittleEndian.AppendUint16(data, uint16((tileX+x)*(tileY+y)))
			}
		}
		tiles[i] = deflate(horizontalDifferences(data, 16))
	}
	entries := w.writeBlocks(324, 325, tiles)
	entries = append(entries,
		shortEntry(256, 32),
		shortEntry(257, 32),
		shortEntry(258, 16),
		shortEntry(259, 8),
		shortEntry(262, 1),
		shortEntry(277, 1),
		shortEntry(284, 1),
		shortEntry(317, 2),
		shortEntry(322, 16),
		shortEntry(323, 16),
		shortEntry(339, 1),
		doubleEntry(34264,
			0.01, 0, 0, 5,
			0, -0.01, 0, 46,
			0, 0, 0, 0,
			0, 0, 0, 1,
		),
		geographicGeoKeys(),
		asciiEntry(42113, "7"),
	)
	w.writeIFD(entries)

	mask := w.writeBlocks(324, 325, [][]byte{make([]byte, 16*16)})
	mask = append(mask,
		longEntry(254, 5),
		shortEntry(256, 16),
		shortEntry(257, 16),
		shortEntry(258, 8),
		shortEntry(259, 1),
		shortEntry(262, 4),
		shortEntry(277, 1),
		shortEntry(322, 16),
		shortEntry(323, 16),
	)
	w.writeIFD(mask)

	overview := make([]byte, 0, 2*16*16)
	for range 16 {
		for x := range 16 {
			overview = binary.LittleEndian.AppendUint16(overview, uint16(1000+x))
		}
	}
	overviewEntries := w.writeBlocks(324, 325, [][]byte{overview})
	overviewEntries = append(overviewEntries,
		longEntry(254, 1),
		shortEntry(256, 16),
		shortEntry(257, 16),
		shortEntry(258, 16),
		shortEntry(259, 1),
		shortEntry(262, 1),
		shortEntry(277, 1),
		shortEntry(322, 16),
		shortEntry(323, 16),
		shortEntry(339, 1),
	)
	w.writeIFD(overviewEntries)

	return w.bytes()
}

// palettedTIFF returns a 4x4 paletted TIFF without georeferencing.
func palettedTIFF() []byte {
	data := make([]byte, 16)
	for i := range data {
		data[i] = byte(i % 2)
	}
	colorMap := make([]uint16, 3*256)
	colorMap[1] = 0xffff // Index 1 is red.
	colorMap[2*256] = 0xffff
	w := newTestTIFFWriter()
	entries := w.writeBlocks(273, 279, [][]byte{data})
	entries = append(entries,
		shortEntry(256, 4),
		shortEntry(257, 4),
		shortEntry(258, 8),
		shortEntry(259, 1),
		shortEntry(262, 3),
		shortEntry(277, 1),
		shortEntry(278, 4),
		shortEntry(320, colorMap...),
	)
	w.writeIFD(entries)
	return w.bytes()
}

func newGeoTIFFTestFS() fstest.MapFS {
	return fstest.MapFS{
		"stripped.tif": &fstest.MapFile{Data: strippedGeoTIFF()},
		"tiled.tif":    &fstest.MapFile{Data: tiledGeoTIFF()},
		"paletted.tif": &fstest.MapFile{Data: palettedTIFF()},
		"world.tif":    &fstest.MapFile{Data: palettedTIFF()},
		"world.tfw":    &fstest.MapFile{Data: []byte("1\n0\n0\n-1\n0.5\n3.5\n")},
		"notiff.tif":   &fstest.MapFile{Data: []byte("\x89PNG\r\n\x1a\n")},
		"stripped.png": &fstest.MapFile{Data: strippedGeoTIFF()},
	}
}

func newTestGeoTIFFReader(t *testing.T) *mosaic.GeoTIFFReader {
	t.Helper()
	reader, err := mosaic.NewGeoTIFFReader(
		mosaic.WithBlockCacheSize(1<<20),
		mosaic.WithLayoutCacheSize(2),
	)
	assert.NoError(t, err)
	return reader
}

func TestGeoTIFFReaderCanRead(t *testing.T) {
	fsys := newGeoTIFFTestFS()
	reader := newTestGeoTIFFReader(t)
	for _, tc := range []struct {
		path     string
		expected bool
	}{
		{path: "stripped.tif", expected: true},
		{path: "tiled.tif", expected: true},
		{path: "notiff.tif", expected: false},
		{path: "stripped.png", expected: false},
		{path: "missing.tif", expected: false},
	} {
		t.Run(tc.path, func(t *testing.T) {
			source := mosaic.Source{FS: fsys, SourceSpec: mosaic.SourceSpec{Path: tc.path}}
			assert.Equal(t, tc.expected, reader.CanRead(t.Context(), source))
		})
	}
}

func TestGeoTIFFReaderStripped(t *testing.T) {
	reader := newTestGeoTIFFReader(t)
	source := mosaic.Source{FS: newGeoTIFFTestFS(), SourceSpec: mosaic.SourceSpec{Path: "stripped.tif"}}

	metadata, err := reader.ReadMetadata(t.Context(), source)
	assert.NoError(t, err)
	assert.Equal(t, &mosaic.Metadata{
		Sector:           ptr(mosaic.MustNewSector(19, 20, 10, 11)),
		PixelFormat:      mosaic.PixelFormatElevation,
		DataType:         mosaic.DataTypeInt16,
		BandCount:        1,
		NoData:           ptr(-32768.0),
		SRID:             4326,
		CoordinateSystem: mosaic.CoordinateSystemGeographic,
		ColorModel:       mosaic.ColorModelGrayscale,
		Size:             mosaic.Size{Width: 8, Height: 8},
	}, metadata)

	handle, err := reader.Open(t.Context(), source)
	assert.NoError(t, err)
	defer func() {
		assert.NoError(t, handle.Close())
	}()
	assert.Equal(t, 1, handle.Info().LevelCount())
	assert.Equal(t, mosaic.GeoTransform{10, 0.125, 0, 20, 0, -0.125}, handle.Info().GeoTransform)

	// The window spans all three strips, including the short last one.
	rect := image.Rect(1, 2, 7, 8)
	window, err := handle.ReadWindow(t.Context(), 0, rect)
	assert.NoError(t, err)
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			assert.Equal(t, float32(x+10*y), window.At(x, y, 0))
		}
	}

	_, err = handle.ReadWindow(t.Context(), 0, image.Rect(0, 0, 9, 1))
	assert.IsError(t, err, mosaic.ErrInvalidArgument)
	_, err = handle.ReadWindow(t.Context(), 1, image.Rect(0, 0, 1, 1))
	assert.IsError(t, err, mosaic.ErrInvalidArgument)
}

func TestGeoTIFFReaderTiled(t *testing.T) {
	reader := newTestGeoTIFFReader(t)
	source := mosaic.Source{FS: newGeoTIFFTestFS(), SourceSpec: mosaic.SourceSpec{Path: "tiled.tif"}}

	handle, err := reader.Open(t.Context(), source)
	assert.NoError(t, err)
	defer func() {
		assert.NoError(t, handle.Close())
	}()

	info := handle.Info()
	assert.Equal(t, mosaic.DataTypeUInt16, info.DataType)
	assert.Equal(t, mosaic.PixelFormatElevation, info.PixelFormat)
	assert.Equal(t, []mosaic.Size{{Width: 16, Height: 16}}, info.Overviews)
	assert.Equal(t, ptr(7.0), info.NoData)
	assert.True(t, almostEqual(45.68, info.Sector.MinLat, 1e-9))
	assert.True(t, almostEqual(46, info.Sector.MaxLat, 1e-9))
	assert.True(t, almostEqual(5, info.Sector.MinLon, 1e-9))
	assert.True(t, almostEqual(5.32, info.Sector.MaxLon, 1e-9))

	// Read twice to exercise the block cache.
	for range 2 {
		window, err := handle.ReadWindow(t.Context(), 0, image.Rect(0, 0, 32, 32))
		assert.NoError(t, err)
		for y := range 32 {
			for x := range 32 {
				expected := float32(x * y)
				if x >= 16 && y >= 16 {
					expected = 7 // Sparse tile.
				}
				assert.Equal(t, expected, window.At(x, y, 0))
			}
		}
	}

	window, err := handle.ReadWindow(t.Context(), 1, image.Rect(2, 3, 5, 4))
	assert.NoError(t, err)
	assert.Equal(t, []float32{1002, 1003, 1004}, window.Samples)
}

func TestGeoTIFFReaderPaletted(t *testing.T) {
	reader := newTestGeoTIFFReader(t)
	fsys := newGeoTIFFTestFS()

	t.Run("world_file", func(t *testing.T) {
		handle, err := reader.Open(t.Context(), mosaic.Source{FS: fsys, SourceSpec: mosaic.SourceSpec{Path: "world.tif"}})
		assert.NoError(t, err)
		defer handle.Close()
		info := handle.Info()
		assert.Equal(t, mosaic.CoordinateSystemGeographic, info.CoordinateSystem)
		assert.Equal(t, mosaic.MustNewSector(0, 4, 0, 4), info.Sector)
		assert.Equal(t, mosaic.PixelFormatImage, info.PixelFormat)
		assert.Equal(t, mosaic.ColorModelPaletteIndexed, info.ColorModel)
		assert.Equal(t, 256, len(info.Palette))
		assert.Equal(t, color.Color(color.RGBA64{R: 0xffff, A: 0xffff}), info.Palette[1])
	})

	t.Run("sector_override", func(t *testing.T) {
		sector := mosaic.MustNewSector(40, 41, 2, 3)
		metadata, err := reader.ReadMetadata(t.Context(), mosaic.Source{FS: fsys, SourceSpec: mosaic.SourceSpec{
			Path:   "paletted.tif",
			Sector: &sector,
		}})
		assert.NoError(t, err)
		assert.Equal(t, mosaic.CoordinateSystemScreen, metadata.CoordinateSystem)
		assert.Equal(t, &sector, metadata.Sector)
	})

	t.Run("sector_override_georeferenced", func(t *testing.T) {
		sector := mosaic.MustNewSector(40, 41, 2, 3)
		handle, err := reader.Open(t.Context(), mosaic.Source{FS: fsys, SourceSpec: mosaic.SourceSpec{
			Path:   "world.tif",
			Sector: &sector,
		}})
		assert.NoError(t, err)
		defer handle.Close()
		info := handle.Info()
		assert.Equal(t, mosaic.CoordinateSystemScreen, info.CoordinateSystem)
		assert.Equal(t, sector, info.Sector)
		assert.Equal(t, mosaic.GeoTransformFromSector(sector, info.Width, info.Height), info.GeoTransform)
	})

	t.Run("no_georeferencing", func(t *testing.T) {
		metadata, err := reader.ReadMetadata(t.Context(), mosaic.Source{FS: fsys, SourceSpec: mosaic.SourceSpec{Path: "paletted.tif"}})
		assert.NoError(t, err)
		assert.Equal(t, mosaic.CoordinateSystemUnknown, metadata.CoordinateSystem)
		assert.Zero(t, metadata.Sector)
	})
}

func TestComposeGeoTIFF(t *testing.T) {
	reader := newTestGeoTIFFReader(t)
	registry := mosaic.NewReaderRegistry([]mosaic.RasterReader{reader})
	catalog, err := mosaic.NewCatalog(t.Context(), registry, []mosaic.SourceSpec{
		{Path: "stripped.tif"},
		{Path: "notiff.tif"},
	}, mosaic.WithFS(newGeoTIFFTestFS()))
	assert.NoError(t, err)
	assert.Equal(t, 1, catalog.Len())

	composed, err := mosaic.NewCompositor(catalog).Compose(t.Context(), &mosaic.CompositionRequest{
		Sector:      ptr(mosaic.MustNewSector(19, 20, 10, 11)),
		Width:       8,
		Height:      8,
		PixelFormat: mosaic.PixelFormatElevation,
	})
	assert.NoError(t, err)
	elevationRaster, ok := composed.(*mosaic.ElevationRaster)
	assert.True(t, ok)
	assert.Equal(t, mosaic.DataTypeInt16, elevationRaster.DataType)
	for y := range 8 {
		for x := range 8 {
			assert.Equal(t, float64(x+10*y), elevationRaster.At(x, y))
		}
	}
}
