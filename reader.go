package mosaic

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"io/fs"
	"log/slog"
	"sync"
)

// A Source is a SourceSpec resolved against the filesystem that holds it.
type Source struct {
	FS fs.FS
	SourceSpec
}

// Metadata is the cheap, catalog-level description of a source.
type Metadata struct {
	Sector           *Sector
	PixelFormat      PixelFormat
	DataType         DataType
	BandCount        int
	NoData           *float64
	SRID             int
	CoordinateSystem CoordinateSystemKind
	ColorModel       ColorModelKind
	Size             Size
}

// A RasterReader is a pluggable decoder.
type RasterReader interface {
	// Name returns the reader's name.
	Name() string

	// CanRead returns true if the reader can open source. It must be cheap
	// and must return false, not panic, on unreadable input.
	CanRead(ctx context.Context, source Source) bool

	// ReadMetadata returns the source's metadata without materializing its
	// pixel data.
	ReadMetadata(ctx context.Context, source Source) (*Metadata, error)

	// Open opens source. The caller owns the returned Handle and must close
	// it.
	Open(ctx context.Context, source Source) (Handle, error)
}

// An Initializer is a RasterReader with a backend that must be initialized
// before first use. Init is called at most once per registry.
type Initializer interface {
	Init() error
}

// HandleInfo describes an open raster dataset.
type HandleInfo struct {
	Width            int
	Height           int
	DataType         DataType
	BandCount        int
	SRID             int
	CoordinateSystem CoordinateSystemKind
	GeoTransform     GeoTransform
	Overviews        []Size // Finest to coarsest, excluding full resolution.
	Sector           Sector
	NoData           *float64
	PixelFormat      PixelFormat
	ColorModel       ColorModelKind
	Palette          color.Palette
}

// LevelCount returns the number of pyramid levels, including full
// resolution.
func (i *HandleInfo) LevelCount() int {
	return 1 + len(i.Overviews)
}

// LevelSize returns the size of pyramid level, where level 0 is full
// resolution and level n is i.Overviews[n-1]. Levels out of range have zero
// size.
func (i *HandleInfo) LevelSize(level int) Size {
	switch {
	case level == 0:
		return Size{Width: i.Width, Height: i.Height}
	case level < 0 || level > len(i.Overviews):
		return Size{}
	default:
		return i.Overviews[level-1]
	}
}

// A Handle is an open raster dataset. Handles wrap resources such as open
// files or native library objects and must be closed. A Handle is owned by
// the caller that opened it and must not be shared between goroutines.
type Handle interface {
	// Info returns the dataset's description.
	Info() *HandleInfo

	// ReadWindow reads rect, in the pixel space of level, which must lie
	// within the level's bounds.
	ReadWindow(ctx context.Context, level int, rect image.Rectangle) (*Window, error)

	// Close releases the handle's resources.
	Close() error
}

// A Window is a block of samples read from a Handle. Samples are pixel
// interleaved.
type Window struct {
	Rect      image.Rectangle
	BandCount int
	Samples   []float32
}

// NewWindow returns a new zero-filled Window.
func NewWindow(rect image.Rectangle, bandCount int) *Window {
	return &Window{
		Rect:      rect,
		BandCount: bandCount,
		Samples:   make([]float32, rect.Dx()*rect.Dy()*bandCount),
	}
}

// Offset returns the index of the first sample of pixel (x, y), in level
// coordinates.
func (w *Window) Offset(x, y int) int {
	return ((y-w.Rect.Min.Y)*w.Rect.Dx() + (x - w.Rect.Min.X)) * w.BandCount
}

// At returns band of pixel (x, y), in level coordinates.
func (w *Window) At(x, y, band int) float32 {
	return w.Samples[w.Offset(x, y)+band]
}

type registeredReader struct {
	reader    RasterReader
	available func() error
}

// A ReaderRegistry is an ordered list of readers. It is safe for concurrent
// use.
type ReaderRegistry struct {
	readers []registeredReader
	logger  *slog.Logger
}

// A ReaderRegistryOption sets an option on a ReaderRegistry.
type ReaderRegistryOption func(*ReaderRegistry)

// WithRegistryLogger sets the logger used to report reader initialization
// failures.
func WithRegistryLogger(logger *slog.Logger) ReaderRegistryOption {
	return func(r *ReaderRegistry) {
		r.logger = logger
	}
}

// NewReaderRegistry returns a new ReaderRegistry. Readers are consulted in
// order.
func NewReaderRegistry(readers []RasterReader, options ...ReaderRegistryOption) *ReaderRegistry {
	r := &ReaderRegistry{
		logger: slog.Default(),
	}
	for _, option := range options {
		option(r)
	}
	r.readers = make([]registeredReader, 0, len(readers))
	for _, reader := range readers {
		entry := registeredReader{
			reader: reader,
		}
		if initializer, ok := reader.(Initializer); ok {
			entry.available = sync.OnceValue(func() error {
				if err := initializer.Init(); err != nil {
					err = fmt.Errorf("%s: %w: %w", reader.Name(), ErrDecoderUnavailable, err)
					r.logger.Warn("reader disabled", "reader", reader.Name(), "err", err)
					return err
				}
				return nil
			})
		}
		r.readers = append(r.readers, entry)
	}
	return r
}

// Readers returns the readers in r, in order.
func (r *ReaderRegistry) Readers() []RasterReader {
	readers := make([]RasterReader, 0, len(r.readers))
	for _, entry := range r.readers {
		readers = append(readers, entry.reader)
	}
	return readers
}

// Available returns nil if the reader at index i of Readers initialized
// successfully, or an error wrapping ErrDecoderUnavailable.
func (r *ReaderRegistry) Available(i int) error {
	if i < 0 || i >= len(r.readers) {
		return fmt.Errorf("%w: reader %d: not registered", ErrInvalidArgument, i)
	}
	if available := r.readers[i].available; available != nil {
		return available()
	}
	return nil
}

// FindReaderFor returns the first available reader that can read source.
func (r *ReaderRegistry) FindReaderFor(ctx context.Context, source Source) (RasterReader, bool) {
	for _, entry := range r.readers {
		if entry.available != nil && entry.available() != nil {
			continue
		}
		if entry.reader.CanRead(ctx, source) {
			return entry.reader, true
		}
	}
	return nil, false
}
