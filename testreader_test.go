package mosaic_test

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"sync/atomic"

	"github.com/twpayne/go-mosaic"
)

var errTestOpen = errors.New("test open failure")

// A testSource is an in-memory raster whose samples are computed by sample.
type testSource struct {
	info      mosaic.HandleInfo
	sample    func(level, x, y, band int) float32
	failOpen  bool
	noSector  bool
	openCount atomic.Int64
}

func newTestSource(sector mosaic.Sector, width, height int, pixelFormat mosaic.PixelFormat, dataType mosaic.DataType, bandCount int, sample func(level, x, y, band int) float32) *testSource {
	return &testSource{
		info: mosaic.HandleInfo{
			Width:            width,
			Height:           height,
			DataType:         dataType,
			BandCount:        bandCount,
			SRID:             4326,
			CoordinateSystem: mosaic.CoordinateSystemGeographic,
			GeoTransform:     mosaic.GeoTransformFromSector(sector, width, height),
			Sector:           sector,
			PixelFormat:      pixelFormat,
		},
		sample: sample,
	}
}

func constantSample(values ...float32) func(level, x, y, band int) float32 {
	return func(level, x, y, band int) float32 {
		return values[band]
	}
}

// A testReader reads testSources by path.
type testReader struct {
	sources     map[string]*testSource
	openHandles atomic.Int64
}

func newTestReader(sources map[string]*testSource) *testReader {
	return &testReader{
		sources: sources,
	}
}

func (r *testReader) Name() string {
	return "test"
}

func (r *testReader) CanRead(ctx context.Context, source mosaic.Source) bool {
	_, ok := r.sources[source.Path]
	return ok
}

func (r *testReader) ReadMetadata(ctx context.Context, source mosaic.Source) (*mosaic.Metadata, error) {
	s, ok := r.sources[source.Path]
	if !ok {
		return nil, fmt.Errorf("%s: not found", source.Path)
	}
	metadata := &mosaic.Metadata{
		PixelFormat:      s.info.PixelFormat,
		DataType:         s.info.DataType,
		BandCount:        s.info.BandCount,
		NoData:           s.info.NoData,
		SRID:             s.info.SRID,
		CoordinateSystem: s.info.CoordinateSystem,
		ColorModel:       s.info.ColorModel,
		Size: mosaic.Size{
			Width:  s.info.Width,
			Height: s.info.Height,
		},
	}
	if !s.noSector {
		sector := s.info.Sector
		metadata.Sector = &sector
	}
	return metadata, nil
}

func (r *testReader) Open(ctx context.Context, source mosaic.Source) (mosaic.Handle, error) {
	s, ok := r.sources[source.Path]
	if !ok {
		return nil, fmt.Errorf("%s: not found", source.Path)
	}
	if s.failOpen {
		return nil, errTestOpen
	}
	s.openCount.Add(1)
	r.openHandles.Add(1)
	return &testHandle{
		reader: r,
		source: s,
	}, nil
}

type testHandle struct {
	reader *testReader
	source *testSource
	closed bool
}

func (h *testHandle) Info() *mosaic.HandleInfo {
	return &h.source.info
}

func (h *testHandle) ReadWindow(ctx context.Context, level int, rect image.Rectangle) (*mosaic.Window, error) {
	if h.closed {
		return nil, errors.New("closed")
	}
	size := h.source.info.LevelSize(level)
	if !rect.In(image.Rect(0, 0, size.Width, size.Height)) {
		return nil, fmt.Errorf("%v: outside level %d", rect, level)
	}
	window := mosaic.NewWindow(rect, h.source.info.BandCount)
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			offset := window.Offset(x, y)
			for band := range window.BandCount {
				window.Samples[offset+band] = h.source.sample(level, x, y, band)
			}
		}
	}
	return window, nil
}

func (h *testHandle) Close() error {
	if !h.closed {
		h.closed = true
		h.reader.openHandles.Add(-1)
	}
	return nil
}

// A failingInitReader is a reader whose backend never initializes.
type failingInitReader struct {
	testReader
	initCount atomic.Int64
}

func (r *failingInitReader) Name() string {
	return "failing"
}

func (r *failingInitReader) Init() error {
	r.initCount.Add(1)
	return errors.New("no backend")
}

func newTestCatalog(ctx context.Context, reader mosaic.RasterReader, paths ...string) (*mosaic.Catalog, error) {
	specs := make([]mosaic.SourceSpec, 0, len(paths))
	for _, path := range paths {
		specs = append(specs, mosaic.SourceSpec{
			Path: path,
		})
	}
	registry := mosaic.NewReaderRegistry([]mosaic.RasterReader{reader})
	return mosaic.NewCatalog(ctx, registry, specs)
}

func ptr[T any](value T) *T {
	return &value
}

func almostEqual(expected, actual, tolerance float64) bool {
	return math.Abs(expected-actual) <= tolerance
}
