package mosaic

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
)

// maxCanvasPixels bounds the size of a single composition.
const maxCanvasPixels = 1 << 28

// A CompositionRequest is a request for a raster covering Sector at
// Width x Height pixels.
type CompositionRequest struct {
	Sector        *Sector
	Width         int
	Height        int
	PixelFormat   PixelFormat
	ByteOrder     binary.ByteOrder // Elevation only. Defaults to the compositor's.
	MaxPixelValue *float64         // Image only. Full-scale value of source samples.
	NoData        *float64         // Elevation only.

	// ElevationDataType is one of DataTypeInt16, DataTypeInt32, or
	// DataTypeFloat32. If unset it is derived from the sources.
	ElevationDataType DataType

	// ColorModel is the color model of image output. If unset the output is
	// RGBA, or palette-indexed if every source shares the same palette.
	ColorModel ColorModelKind
}

// Validate returns an error wrapping ErrInvalidArgument if r is malformed.
func (r *CompositionRequest) Validate() error {
	switch {
	case r.Sector == nil:
		return fmt.Errorf("%w: missing sector", ErrInvalidArgument)
	case r.Width <= 0 || r.Height <= 0:
		return fmt.Errorf("%w: %dx%d: invalid size", ErrInvalidArgument, r.Width, r.Height)
	case r.Width > maxCanvasPixels/r.Height:
		return fmt.Errorf("%w: %dx%d: too large", ErrInvalidArgument, r.Width, r.Height)
	}
	if err := r.Sector.Validate(); err != nil {
		return err
	}
	switch r.PixelFormat {
	case PixelFormatImage, PixelFormatElevation:
	default:
		return fmt.Errorf("%w: %s: invalid pixel format", ErrInvalidArgument, r.PixelFormat)
	}
	switch r.ElevationDataType {
	case DataTypeUnknown, DataTypeInt16, DataTypeInt32, DataTypeFloat32:
	default:
		return fmt.Errorf("%w: %s: unsupported elevation data type", ErrInvalidArgument, r.ElevationDataType)
	}
	if r.MaxPixelValue != nil && !(*r.MaxPixelValue > 0) {
		return fmt.Errorf("%w: %g: invalid maximum pixel value", ErrInvalidArgument, *r.MaxPixelValue)
	}
	return nil
}

// A Compositor composes rasters from a catalog. It is safe for concurrent
// use.
type Compositor struct {
	catalog     *Catalog
	resampler   *Resampler
	logger      *slog.Logger
	byteOrder   binary.ByteOrder
	parallelism int
}

// A CompositorOption sets an option on a Compositor.
type CompositorOption func(*Compositor)

// WithResampler sets the compositor's resampler.
func WithResampler(resampler *Resampler) CompositorOption {
	return func(c *Compositor) {
		c.resampler = resampler
	}
}

// WithLogger sets the compositor's logger.
func WithLogger(logger *slog.Logger) CompositorOption {
	return func(c *Compositor) {
		c.logger = logger
	}
}

// WithByteOrder sets the default byte order of elevation output.
func WithByteOrder(byteOrder binary.ByteOrder) CompositorOption {
	return func(c *Compositor) {
		c.byteOrder = byteOrder
	}
}

// WithParallelism sets the maximum number of sources resampled concurrently
// by a single composition.
func WithParallelism(parallelism int) CompositorOption {
	return func(c *Compositor) {
		c.parallelism = max(parallelism, 1)
	}
}

// NewCompositor returns a new Compositor that composes rasters from catalog.
func NewCompositor(catalog *Catalog, options ...CompositorOption) *Compositor {
	c := &Compositor{
		catalog:     catalog,
		logger:      slog.Default(),
		byteOrder:   binary.LittleEndian,
		parallelism: runtime.GOMAXPROCS(0),
	}
	for _, option := range options {
		option(c)
	}
	if c.resampler == nil {
		c.resampler = NewResampler(WithResamplerLogger(c.logger))
	}
	return c
}

// Catalog returns c's catalog.
func (c *Compositor) Catalog() *Catalog {
	return c.catalog
}

// Compose returns a new raster for request. Sources that fail are logged and
// skipped. If ctx is cancelled, Compose returns ctx.Err().
func (c *Compositor) Compose(ctx context.Context, request *CompositionRequest) (_ ComposedRaster, err error) {
	start := time.Now()
	defer func() {
		compositionDuration.Observe(time.Since(start).Seconds())
		compositions.WithLabelValues(compositionResult(err)).Inc()
	}()

	if err := request.Validate(); err != nil {
		return nil, err
	}
	coverage, ok := c.catalog.Coverage()
	if !ok || !coverage.Intersects(*request.Sector) {
		return nil, ErrOutOfCoverage
	}
	descriptors := c.intersecting(request)
	if len(descriptors) == 0 {
		return nil, ErrOutOfCoverage
	}

	var canvas canvas
	switch request.PixelFormat {
	case PixelFormatElevation:
		byteOrder := request.ByteOrder
		if byteOrder == nil {
			byteOrder = c.byteOrder
		}
		canvas = newElevationCanvas(request, byteOrder, descriptors)
	default:
		canvas = newImageCanvas(request, descriptors)
	}

	if err := c.resampleAll(ctx, request, descriptors, canvas.paint); err != nil {
		return nil, err
	}
	return canvas.raster(), nil
}

// intersecting returns the descriptors in c's catalog that intersect
// request's sector and have request's pixel format.
func (c *Compositor) intersecting(request *CompositionRequest) []*RasterDescriptor {
	var descriptors []*RasterDescriptor
	for _, descriptor := range c.catalog.Intersecting(*request.Sector) {
		if descriptor.PixelFormat != PixelFormatUnspecified && descriptor.PixelFormat != request.PixelFormat {
			continue
		}
		descriptors = append(descriptors, descriptor)
	}
	return descriptors
}

type resampleResult struct {
	resampled *Resampled
	err       error
}

// resampleAll resamples descriptors concurrently and calls paint with each
// result in catalog order.
func (c *Compositor) resampleAll(ctx context.Context, request *CompositionRequest, descriptors []*RasterDescriptor, paint func(*RasterDescriptor, *Resampled)) error {
	workerCtx, cancel := context.WithCancel(ctx)
	results := make([]resampleResult, len(descriptors))
	ready := make([]chan struct{}, len(descriptors))
	for i := range ready {
		ready[i] = make(chan struct{})
	}

	var g errgroup.Group
	g.SetLimit(c.parallelism)
	launched := make(chan struct{})
	go func() {
		defer close(launched)
		for i, descriptor := range descriptors {
			if err := workerCtx.Err(); err != nil {
				results[i].err = err
				close(ready[i])
				continue
			}
			g.Go(func() error {
				defer close(ready[i])
				results[i].resampled, results[i].err = c.resampleOne(workerCtx, descriptor, request)
				return nil
			})
		}
	}()
	defer func() {
		cancel()
		<-launched
		_ = g.Wait()
	}()

	for i, descriptor := range descriptors {
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ready[i]:
		}
		result := results[i]
		results[i] = resampleResult{}
		switch {
		case result.err != nil:
			if err := ctx.Err(); err != nil {
				return err
			}
			compositionSourcesSkipped.Inc()
			c.logger.Warn("skipping source", "path", descriptor.Source.Path, "err", result.err)
		case result.resampled == nil:
			c.logger.Debug("nothing to paint", "path", descriptor.Source.Path)
		default:
			paint(descriptor, result.resampled)
		}
	}
	return ctx.Err()
}

// resampleOne opens descriptor and resamples it onto request's grid. It
// returns nil, nil if there is nothing to paint.
func (c *Compositor) resampleOne(ctx context.Context, descriptor *RasterDescriptor, request *CompositionRequest) (*Resampled, error) {
	handle, err := descriptor.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer handle.Close()

	resampled, err := c.resampler.Resample(ctx, handle, &ResampleRequest{
		Sector:      *request.Sector,
		Width:       request.Width,
		Height:      request.Height,
		PixelFormat: request.PixelFormat,
		Resampling:  descriptor.Source.Resampling,
		NoData:      descriptor.NoData,
	})
	switch {
	case errors.Is(err, ErrOutOfCoverage):
		// The catalog sector is only an estimate of the decoded footprint.
		return nil, nil
	case err != nil:
		return nil, &SourceError{Path: descriptor.Source.Path, Err: err}
	default:
		return resampled, nil
	}
}

func compositionResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrOutOfCoverage):
		return "out_of_coverage"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
