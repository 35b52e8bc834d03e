// Package godalreader provides a mosaic.RasterReader backed by GDAL.
package godalreader

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/airbusgeo/godal"

	"github.com/twpayne/go-mosaic"
)

var registerAll = sync.OnceValue(func() error {
	godal.RegisterAll()
	return nil
})

// A Reader reads any raster that GDAL can open. Source paths are resolved
// relative to a root directory on the local filesystem.
type Reader struct {
	root string
}

// An Option sets an option on a Reader.
type Option func(*Reader)

// WithRoot sets the directory that source paths are resolved against.
func WithRoot(root string) Option {
	return func(r *Reader) {
		r.root = root
	}
}

// New returns a new Reader.
func New(options ...Option) *Reader {
	r := &Reader{
		root: ".",
	}
	for _, option := range options {
		option(r)
	}
	return r
}

// Init registers GDAL's drivers.
func (r *Reader) Init() error {
	return registerAll()
}

func (r *Reader) Name() string {
	return "gdal"
}

func (r *Reader) CanRead(ctx context.Context, source mosaic.Source) bool {
	dataset, err := godal.Open(r.filename(source))
	if err != nil {
		return false
	}
	defer dataset.Close()
	return dataset.Structure().NBands > 0
}

func (r *Reader) ReadMetadata(ctx context.Context, source mosaic.Source) (*mosaic.Metadata, error) {
	handle, err := r.open(source)
	if err != nil {
		return nil, err
	}
	defer handle.Close()
	info := handle.info
	metadata := &mosaic.Metadata{
		PixelFormat:      info.PixelFormat,
		DataType:         info.DataType,
		BandCount:        info.BandCount,
		NoData:           info.NoData,
		SRID:             info.SRID,
		CoordinateSystem: info.CoordinateSystem,
		ColorModel:       info.ColorModel,
		Size: mosaic.Size{
			Width:  info.Width,
			Height: info.Height,
		},
	}
	if info.CoordinateSystem != mosaic.CoordinateSystemUnknown {
		sector := info.Sector
		metadata.Sector = &sector
	}
	return metadata, nil
}

func (r *Reader) Open(ctx context.Context, source mosaic.Source) (mosaic.Handle, error) {
	return r.open(source)
}

func (r *Reader) filename(source mosaic.Source) string {
	return filepath.Join(r.root, filepath.FromSlash(source.Path))
}

func (r *Reader) open(source mosaic.Source) (*handle, error) {
	dataset, err := godal.Open(r.filename(source))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", mosaic.ErrSourceUnreadable, err)
	}
	h := &handle{
		dataset: dataset,
		bands:   dataset.Bands(),
	}
	if err := h.initInfo(source); err != nil {
		_ = dataset.Close()
		return nil, err
	}
	return h, nil
}

// A handle is an open GDAL dataset. It must only be used by one goroutine at
// a time.
type handle struct {
	dataset *godal.Dataset
	bands   []godal.Band
	info    mosaic.HandleInfo
}

func (h *handle) initInfo(source mosaic.Source) error {
	if len(h.bands) == 0 {
		return fmt.Errorf("%w: no bands", mosaic.ErrSourceUnreadable)
	}
	structure := h.dataset.Structure()
	band := h.bands[0]
	h.info = mosaic.HandleInfo{
		Width:     structure.SizeX,
		Height:    structure.SizeY,
		DataType:  dataType(band.Structure().DataType),
		BandCount: len(h.bands),
	}
	if h.info.DataType == mosaic.DataTypeUnknown {
		return fmt.Errorf("%w: unsupported data type %s", mosaic.ErrSourceUnreadable, band.Structure().DataType)
	}
	for _, overview := range band.Overviews() {
		overviewStructure := overview.Structure()
		h.info.Overviews = append(h.info.Overviews, mosaic.Size{
			Width:  overviewStructure.SizeX,
			Height: overviewStructure.SizeY,
		})
	}
	if noData, ok := band.NoData(); ok {
		h.info.NoData = &noData
	}
	if source.NoData != nil {
		h.info.NoData = source.NoData
	}

	h.info.ColorModel, h.info.Palette = colorModel(h.bands)
	switch {
	case source.PixelFormat != mosaic.PixelFormatUnspecified:
		h.info.PixelFormat = source.PixelFormat
	case h.info.ColorModel == mosaic.ColorModelPaletteIndexed || len(h.bands) >= 3 || h.info.DataType == mosaic.DataTypeByte:
		h.info.PixelFormat = mosaic.PixelFormatImage
	default:
		h.info.PixelFormat = mosaic.PixelFormatElevation
	}

	kind, srid := h.coordinateSystem()
	if source.SRID != 0 {
		srid = source.SRID
		switch {
		case srid == 4326:
			kind = mosaic.CoordinateSystemGeographic
		case kind != mosaic.CoordinateSystemGeographic:
			kind = mosaic.CoordinateSystemProjected
		}
	}
	gt, err := h.dataset.GeoTransform()
	switch {
	case source.Sector != nil:
		h.info.CoordinateSystem = mosaic.CoordinateSystemScreen
		h.info.GeoTransform = mosaic.GeoTransformFromSector(*source.Sector, h.info.Width, h.info.Height)
		h.info.Sector = *source.Sector
	case err == nil && kind.IsGeoreferenced():
		sector, err := mosaic.SectorFromGeoTransform(kind, srid, mosaic.GeoTransform(gt), h.info.Width, h.info.Height)
		if err != nil {
			return err
		}
		h.info.CoordinateSystem = kind
		h.info.SRID = srid
		h.info.GeoTransform = mosaic.GeoTransform(gt)
		h.info.Sector = sector
	default:
		h.info.CoordinateSystem = mosaic.CoordinateSystemUnknown
	}
	return nil
}

// coordinateSystem returns the kind and EPSG code of the dataset's spatial
// reference.
func (h *handle) coordinateSystem() (mosaic.CoordinateSystemKind, int) {
	spatialRef := h.dataset.SpatialRef()
	if spatialRef == nil {
		return mosaic.CoordinateSystemUnknown, 0
	}
	defer spatialRef.Close()
	srid, _ := strconv.Atoi(spatialRef.AuthorityCode(""))
	if spatialRef.Geographic() {
		if srid == 0 {
			srid = 4326
		}
		return mosaic.CoordinateSystemGeographic, srid
	}
	if srid == 0 {
		return mosaic.CoordinateSystemUnknown, 0
	}
	return mosaic.CoordinateSystemProjected, srid
}

func (h *handle) Info() *mosaic.HandleInfo {
	return &h.info
}

func (h *handle) ReadWindow(ctx context.Context, level int, rect image.Rectangle) (*mosaic.Window, error) {
	if level < 0 || level >= h.info.LevelCount() {
		return nil, fmt.Errorf("%w: level %d", mosaic.ErrInvalidArgument, level)
	}
	size := h.info.LevelSize(level)
	if rect.Empty() || !rect.In(image.Rect(0, 0, size.Width, size.Height)) {
		return nil, fmt.Errorf("%w: window %v at level %d", mosaic.ErrInvalidArgument, rect, level)
	}
	window := mosaic.NewWindow(rect, len(h.bands))
	buffer := make([]float32, rect.Dx()*rect.Dy())
	for bandIndex, band := range h.bands {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if level > 0 {
			overviews := band.Overviews()
			if level > len(overviews) {
				return nil, fmt.Errorf("%w: band %d has no overview %d", mosaic.ErrSourceUnreadable, bandIndex, level)
			}
			band = overviews[level-1]
		}
		if err := band.Read(rect.Min.X, rect.Min.Y, buffer, rect.Dx(), rect.Dy()); err != nil {
			return nil, fmt.Errorf("%w: %w", mosaic.ErrSourceUnreadable, err)
		}
		for i, value := range buffer {
			window.Samples[i*window.BandCount+bandIndex] = value
		}
	}
	return window, nil
}

func (h *handle) Close() error {
	return h.dataset.Close()
}

func dataType(dataType godal.DataType) mosaic.DataType {
	switch dataType {
	case godal.Byte:
		return mosaic.DataTypeByte
	case godal.UInt16:
		return mosaic.DataTypeUInt16
	case godal.Int16:
		return mosaic.DataTypeInt16
	case godal.UInt32:
		return mosaic.DataTypeUInt32
	case godal.Int32:
		return mosaic.DataTypeInt32
	case godal.Float32:
		return mosaic.DataTypeFloat32
	case godal.Float64:
		return mosaic.DataTypeFloat64
	default:
		return mosaic.DataTypeUnknown
	}
}

// colorModel returns the color model and palette of bands.
func colorModel(bands []godal.Band) (mosaic.ColorModelKind, color.Palette) {
	if len(bands) == 1 && bands[0].ColorInterp() == godal.CIPalette {
		colorTable := bands[0].ColorTable()
		palette := make(color.Palette, len(colorTable.Entries))
		for i, entry := range colorTable.Entries {
			palette[i] = color.NRGBA{
				R: uint8(entry[0]),
				G: uint8(entry[1]),
				B: uint8(entry[2]),
				A: uint8(entry[3]),
			}
		}
		return mosaic.ColorModelPaletteIndexed, palette
	}
	switch len(bands) {
	case 1:
		return mosaic.ColorModelGrayscale, nil
	case 2:
		return mosaic.ColorModelGrayscaleAlpha, nil
	case 3:
		return mosaic.ColorModelRGB, nil
	default:
		return mosaic.ColorModelRGBA, nil
	}
}
