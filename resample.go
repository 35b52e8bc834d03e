package mosaic

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math"
)

// DefaultMaxDimension is the default maximum width or height, in pixels, of
// a window read from a source.
const DefaultMaxDimension = 4096

// trivialAreaFraction is the fraction of a source's sector below which a
// request is served from full resolution without consulting overviews.
const trivialAreaFraction = 0.01

// Mask values.
const (
	MaskMissing = 0
	MaskPresent = 255
)

// A ResampleRequest is a destination grid.
type ResampleRequest struct {
	Sector      Sector
	Width       int
	Height      int
	PixelFormat PixelFormat
	Resampling  Resampling
	NoData      *float64 // Overrides the handle's nodata value.
}

// Resampled is a source resampled onto a destination grid. Samples are pixel
// interleaved, Width*Height*BandCount long. Mask is nil if every destination
// pixel is covered by the source, otherwise it holds one MaskMissing or
// MaskPresent value per destination pixel.
type Resampled struct {
	Width      int
	Height     int
	BandCount  int
	DataType   DataType
	Samples    []float32
	Mask       []uint8
	Level      int
	NoData     *float64
	ColorModel ColorModelKind
	Palette    color.Palette
}

// Missing returns true if destination pixel i is not covered.
func (r *Resampled) Missing(i int) bool {
	return r.Mask != nil && r.Mask[i] == MaskMissing
}

// A Resampler crops, warps, and resamples open handles onto destination
// grids. It is safe for concurrent use.
type Resampler struct {
	maxDimension    int
	noDataSentinels []float64
	logger          *slog.Logger
}

// A ResamplerOption sets an option on a Resampler.
type ResamplerOption func(*Resampler)

// WithMaxDimension sets the maximum width or height of a window read from a
// source.
func WithMaxDimension(maxDimension int) ResamplerOption {
	return func(r *Resampler) {
		r.maxDimension = maxDimension
	}
}

// WithNoDataSentinels sets the values that are treated as nodata in
// elevation sources that do not declare one.
func WithNoDataSentinels(sentinels []float64) ResamplerOption {
	return func(r *Resampler) {
		r.noDataSentinels = sentinels
	}
}

// WithResamplerLogger sets the resampler's logger.
func WithResamplerLogger(logger *slog.Logger) ResamplerOption {
	return func(r *Resampler) {
		r.logger = logger
	}
}

// NewResampler returns a new Resampler.
func NewResampler(options ...ResamplerOption) *Resampler {
	r := &Resampler{
		maxDimension:    DefaultMaxDimension,
		noDataSentinels: DefaultNoDataSentinels,
		logger:          slog.Default(),
	}
	for _, option := range options {
		option(r)
	}
	return r
}

// Resample resamples handle onto request's grid. It returns ErrOutOfCoverage
// if request does not intersect handle, and nil, nil if the intersection has
// zero area.
func (r *Resampler) Resample(ctx context.Context, handle Handle, request *ResampleRequest) (*Resampled, error) {
	if request.Width <= 0 || request.Height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidArgument, request.Width, request.Height)
	}
	info := handle.Info()

	intersection, ok := request.Sector.Intersection(info.Sector)
	if !ok {
		return nil, ErrOutOfCoverage
	}
	if intersection.DeltaLat() == 0 || intersection.DeltaLon() == 0 {
		return nil, nil
	}

	transformer, err := newNativeTransformer(info.CoordinateSystem, info.SRID)
	if err != nil {
		return nil, err
	}
	defer transformer.Close()

	baseMinX, baseMinY, baseMaxX, baseMaxY, err := r.pixelBounds(info, transformer, intersection)
	if err != nil {
		return nil, err
	}
	if baseMaxX <= baseMinX || baseMaxY <= baseMinY {
		return nil, nil
	}

	level := 0
	trivial := !info.CoordinateSystem.IsGeoreferenced() ||
		intersection.Area() <= trivialAreaFraction*info.Sector.Area()
	if !trivial {
		destinationPixelsX := intersection.DeltaLon() / request.Sector.DeltaLon() * float64(request.Width)
		destinationPixelsY := intersection.DeltaLat() / request.Sector.DeltaLat() * float64(request.Height)
		level = SelectLevel(info,
			(baseMaxX-baseMinX)/destinationPixelsX,
			(baseMaxY-baseMinY)/destinationPixelsY,
		)
	}

	rect := levelRect(info, level, baseMinX, baseMinY, baseMaxX, baseMaxY)
	if rect.Dx() > r.maxDimension || rect.Dy() > r.maxDimension {
		coarsest := coarsestLevel(info)
		coarsestRect := levelRect(info, coarsest, baseMinX, baseMinY, baseMaxX, baseMaxY)
		if coarsestRect.Dx() > r.maxDimension || coarsestRect.Dy() > r.maxDimension {
			return nil, fmt.Errorf("%w: %dx%d window exceeds %d pixels", ErrResourceExhausted, coarsestRect.Dx(), coarsestRect.Dy(), r.maxDimension)
		}
		sizeCapFallbacks.Inc()
		level, rect = coarsest, coarsestRect
	}
	if rect.Empty() {
		return nil, nil
	}
	pyramidLevels.Observe(float64(level))
	r.logger.Debug("resampling",
		"level", level,
		"window", rect.String(),
		"width", request.Width,
		"height", request.Height,
		"trivial", trivial,
	)

	window, err := handle.ReadWindow(ctx, level, rect)
	if err != nil {
		return nil, err
	}

	noData := request.NoData
	if noData == nil {
		noData = info.NoData
	}
	if request.PixelFormat == PixelFormatElevation || (request.PixelFormat == PixelFormatUnspecified && info.PixelFormat == PixelFormatElevation) {
		noData = detectNoData(noData, window, r.noDataSentinels)
	}

	levelSize := info.LevelSize(level)
	invLevelGT, err := info.GeoTransform.Scaled(info.Width, info.Height, levelSize.Width, levelSize.Height).Invert()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnreadable, err)
	}

	nearest := request.Resampling == ResamplingNearest || info.ColorModel == ColorModelPaletteIndexed

	resampled := &Resampled{
		Width:      request.Width,
		Height:     request.Height,
		BandCount:  window.BandCount,
		DataType:   info.DataType,
		Samples:    make([]float32, request.Width*request.Height*window.BandCount),
		Level:      level,
		NoData:     noData,
		ColorModel: info.ColorModel,
		Palette:    info.Palette,
	}
	// The footprints of rotated and projected sources are not axis-aligned
	// in longitude/latitude, so their sectors overstate coverage.
	if !info.Sector.Contains(request.Sector) || !info.GeoTransform.IsNorthUp() || info.CoordinateSystem == CoordinateSystemProjected {
		resampled.Mask = make([]uint8, request.Width*request.Height)
	}
	if err := r.warp(ctx, transformer, invLevelGT, levelSize, window, request, resampled, nearest); err != nil {
		return nil, err
	}
	return resampled, nil
}

// pixelBounds returns the bounding box, in full-resolution pixel space, of
// sector, clamped to the handle's extent.
func (r *Resampler) pixelBounds(info *HandleInfo, transformer nativeTransformer, sector Sector) (minX, minY, maxX, maxY float64, err error) {
	invGT, err := info.GeoTransform.Invert()
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrSourceUnreadable, err)
		return
	}

	var coords [][]float64
	if info.GeoTransform.IsNorthUp() && info.CoordinateSystem != CoordinateSystemProjected {
		coords = [][]float64{
			{sector.MinLon, sector.MinLat},
			{sector.MaxLon, sector.MinLat},
			{sector.MinLon, sector.MaxLat},
			{sector.MaxLon, sector.MaxLat},
		}
	} else {
		coords = densifiedSectorEdges(sector)
	}
	if err = transformer.Forward(coords); err != nil {
		return
	}

	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, coord := range coords {
		px, py := invGT.Apply(coord[0], coord[1])
		if math.IsNaN(px) || math.IsInf(px, 0) || math.IsNaN(py) || math.IsInf(py, 0) {
			continue
		}
		minX, maxX = min(minX, px), max(maxX, px)
		minY, maxY = min(minY, py), max(maxY, py)
	}
	minX, maxX = max(minX, 0), min(maxX, float64(info.Width))
	minY, maxY = max(minY, 0), min(maxY, float64(info.Height))
	return
}

// levelRect returns the window at level that covers the full-resolution
// pixel bounds, padded by one pixel for interpolation and clamped to the
// level's extent.
func levelRect(info *HandleInfo, level int, minX, minY, maxX, maxY float64) image.Rectangle {
	size := info.LevelSize(level)
	scaleX := float64(size.Width) / float64(info.Width)
	scaleY := float64(size.Height) / float64(info.Height)
	rect := image.Rect(
		int(math.Floor(minX*scaleX))-1,
		int(math.Floor(minY*scaleY))-1,
		int(math.Ceil(maxX*scaleX))+1,
		int(math.Ceil(maxY*scaleY))+1,
	)
	return rect.Intersect(image.Rect(0, 0, size.Width, size.Height))
}

// warp fills resampled by mapping the center of every destination pixel
// through transformer and invLevelGT into window.
func (r *Resampler) warp(ctx context.Context, transformer nativeTransformer, invLevelGT GeoTransform, levelSize Size, window *Window, request *ResampleRequest, resampled *Resampled, nearest bool) error {
	bandCount := window.BandCount
	var noData float32
	hasNoData := resampled.NoData != nil
	if hasNoData {
		noData = float32(*resampled.NoData)
	}

	pixelWidth := request.Sector.DeltaLon() / float64(request.Width)
	pixelHeight := request.Sector.DeltaLat() / float64(request.Height)
	coordsFlat := make([]float64, 2*request.Width)
	coords := make([][]float64, request.Width)
	for i := range coords {
		coords[i] = coordsFlat[2*i : 2*i+2]
	}

	for row := range request.Height {
		if row%64 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		lat := request.Sector.MaxLat - (float64(row)+0.5)*pixelHeight
		for col := range request.Width {
			coords[col][0] = request.Sector.MinLon + (float64(col)+0.5)*pixelWidth
			coords[col][1] = lat
		}
		if err := transformer.Forward(coords); err != nil {
			return err
		}
		for col, coord := range coords {
			i := row*request.Width + col
			samples := resampled.Samples[i*bandCount : (i+1)*bandCount]
			px, py := invLevelGT.Apply(coord[0], coord[1])
			inside := px >= 0 && px < float64(levelSize.Width) && py >= 0 && py < float64(levelSize.Height)
			if resampled.Mask != nil {
				if !inside {
					fillNoData(samples, noData)
					continue
				}
				nx, ny := nearestPixel(window.Rect, px, py)
				if hasNoData && isNoDataPixel(window, nx, ny, noData) {
					fillNoData(samples, noData)
					continue
				}
				resampled.Mask[i] = MaskPresent
			} else if math.IsNaN(px) || math.IsNaN(py) {
				fillNoData(samples, noData)
				continue
			}

			if !nearest {
				kernel := newBilinearKernel(window.Rect, px, py)
				if !hasNoData || !kernel.touches(window, noData) {
					for band := range samples {
						samples[band] = kernel.interpolate(window, band)
					}
					continue
				}
			}
			nx, ny := nearestPixel(window.Rect, px, py)
			copy(samples, window.Samples[window.Offset(nx, ny):window.Offset(nx, ny)+bandCount])
		}
	}
	return nil
}

func fillNoData(samples []float32, noData float32) {
	for i := range samples {
		samples[i] = noData
	}
}
