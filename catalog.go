package mosaic

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
)

// A RasterDescriptor is a catalog entry for a single source. It is immutable
// once the catalog is built.
type RasterDescriptor struct {
	Source           Source
	Reader           RasterReader
	Sector           Sector
	PixelFormat      PixelFormat
	DataType         DataType
	BandCount        int
	NoData           *float64
	SRID             int
	CoordinateSystem CoordinateSystemKind
	ColorModel       ColorModelKind
}

// Open opens d's source with d's reader. If d's source has a sector
// override, the returned handle maps its pixels linearly onto that sector.
func (d *RasterDescriptor) Open(ctx context.Context) (Handle, error) {
	handle, err := d.Reader.Open(ctx, d.Source)
	if err != nil {
		return nil, &SourceError{Path: d.Source.Path, Err: err}
	}
	if d.Source.Sector == nil {
		return handle, nil
	}
	info := *handle.Info()
	info.CoordinateSystem = CoordinateSystemScreen
	info.GeoTransform = GeoTransformFromSector(*d.Source.Sector, info.Width, info.Height)
	info.Sector = *d.Source.Sector
	return &sectorOverrideHandle{
		Handle: handle,
		info:   info,
	}, nil
}

// A sectorOverrideHandle is a Handle whose sector is replaced.
type sectorOverrideHandle struct {
	Handle
	info HandleInfo
}

func (h *sectorOverrideHandle) Info() *HandleInfo {
	return &h.info
}

// A Catalog is an ordered list of raster descriptors. It is read-only after
// construction and safe for concurrent use.
type Catalog struct {
	fsys        fs.FS
	logger      *slog.Logger
	descriptors []*RasterDescriptor
	coverage    Sector
}

// A CatalogOption sets an option on a Catalog.
type CatalogOption func(*Catalog)

// WithFS sets the filesystem that source paths are resolved against. The
// default is the current directory.
func WithFS(fsys fs.FS) CatalogOption {
	return func(c *Catalog) {
		c.fsys = fsys
	}
}

// WithCatalogLogger sets the catalog's logger.
func WithCatalogLogger(logger *slog.Logger) CatalogOption {
	return func(c *Catalog) {
		c.logger = logger
	}
}

// NewCatalog builds a catalog from specs. Sources that no reader can read, or
// whose metadata or sector cannot be determined, are skipped with a warning.
func NewCatalog(ctx context.Context, registry *ReaderRegistry, specs []SourceSpec, options ...CatalogOption) (*Catalog, error) {
	c := &Catalog{
		logger: slog.Default(),
	}
	for _, option := range options {
		option(c)
	}
	if c.fsys == nil {
		c.fsys = os.DirFS(".")
	}

	for _, spec := range specs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		descriptor, err := c.newDescriptor(ctx, registry, spec)
		if err != nil {
			catalogSourcesSkipped.Inc()
			c.logger.Warn("skipping source", "path", spec.Path, "err", err)
			continue
		}
		if len(c.descriptors) == 0 {
			c.coverage = descriptor.Sector
		} else {
			c.coverage = c.coverage.Union(descriptor.Sector)
		}
		c.descriptors = append(c.descriptors, descriptor)
		c.logger.Debug("cataloged source",
			"path", spec.Path,
			"reader", descriptor.Reader.Name(),
			"sector", descriptor.Sector.String(),
			"pixelFormat", descriptor.PixelFormat.String(),
		)
	}
	return c, nil
}

func (c *Catalog) newDescriptor(ctx context.Context, registry *ReaderRegistry, spec SourceSpec) (*RasterDescriptor, error) {
	source := Source{
		FS:         c.fsys,
		SourceSpec: spec,
	}

	reader, ok := registry.FindReaderFor(ctx, source)
	if !ok {
		return nil, fmt.Errorf("%w: no reader found", ErrSourceUnreadable)
	}

	metadata, err := reader.ReadMetadata(ctx, source)
	if err != nil {
		return nil, &SourceError{Path: spec.Path, Err: err}
	}

	var sector Sector
	coordinateSystem := metadata.CoordinateSystem
	switch {
	case spec.Sector != nil:
		sector = *spec.Sector
		coordinateSystem = CoordinateSystemScreen
	case metadata.Sector != nil:
		sector = *metadata.Sector
	default:
		// Fall back to decoding the sector from the source itself.
		sector, err = c.decodeSector(ctx, reader, source)
		if err != nil {
			return nil, err
		}
	}
	if err := sector.Validate(); err != nil {
		return nil, err
	}

	pixelFormat := metadata.PixelFormat
	if spec.PixelFormat != PixelFormatUnspecified {
		pixelFormat = spec.PixelFormat
	}
	noData := metadata.NoData
	if spec.NoData != nil {
		noData = spec.NoData
	}
	srid := metadata.SRID
	if spec.SRID != 0 {
		srid = spec.SRID
	}

	return &RasterDescriptor{
		Source:           source,
		Reader:           reader,
		Sector:           sector,
		PixelFormat:      pixelFormat,
		DataType:         metadata.DataType,
		BandCount:        metadata.BandCount,
		NoData:           noData,
		SRID:             srid,
		CoordinateSystem: coordinateSystem,
		ColorModel:       metadata.ColorModel,
	}, nil
}

func (c *Catalog) decodeSector(ctx context.Context, reader RasterReader, source Source) (Sector, error) {
	handle, err := reader.Open(ctx, source)
	if err != nil {
		return Sector{}, &SourceError{Path: source.Path, Err: err}
	}
	defer handle.Close()
	info := handle.Info()
	if !info.CoordinateSystem.IsGeoreferenced() || info.Sector.IsEmpty() {
		return Sector{}, fmt.Errorf("%w: no sector", ErrSourceUnreadable)
	}
	return info.Sector, nil
}

// Descriptors returns c's descriptors in catalog order. The caller must not
// modify the returned slice.
func (c *Catalog) Descriptors() []*RasterDescriptor {
	return c.descriptors
}

// Len returns the number of descriptors in c.
func (c *Catalog) Len() int {
	return len(c.descriptors)
}

// Coverage returns the union of the sectors of all of c's descriptors. The
// second return value is false if c is empty.
func (c *Catalog) Coverage() (Sector, bool) {
	return c.coverage, len(c.descriptors) > 0
}

// Intersecting returns the descriptors whose sectors intersect sector, in
// catalog order.
func (c *Catalog) Intersecting(sector Sector) []*RasterDescriptor {
	var descriptors []*RasterDescriptor
	for _, descriptor := range c.descriptors {
		if descriptor.Sector.Intersects(sector) {
			descriptors = append(descriptors, descriptor)
		}
	}
	return descriptors
}
