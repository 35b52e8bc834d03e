package mosaic

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// A SourceSpec is one entry of a declarative source list.
type SourceSpec struct {
	// Path is the source's path relative to the catalog's filesystem.
	Path string `yaml:"path"`

	// Sector, if set, overrides the sector derived from the source. The
	// source's pixels are mapped linearly onto it.
	Sector *Sector `yaml:"sector,omitempty"`

	// PixelFormat, if set, overrides the reader's guess of whether the
	// source is imagery or elevation.
	PixelFormat PixelFormat `yaml:"pixel_format,omitempty"`

	// NoData, if set, overrides the source's nodata value.
	NoData *float64 `yaml:"nodata,omitempty"`

	// SRID, if non-zero, overrides the source's EPSG code. It is needed for
	// files whose CRS is user-defined, such as EU-DEM.
	SRID int `yaml:"srid,omitempty"`

	// Resampling selects the resampling kernel for this source.
	Resampling Resampling `yaml:"resampling,omitempty"`

	// MaxPixelValue, if set, is the sample value that maps to full intensity
	// when imagery is converted to 8 bits.
	MaxPixelValue *float64 `yaml:"max_pixel_value,omitempty"`

	// Properties holds decoder-specific passthrough values.
	Properties map[string]string `yaml:"properties,omitempty"`
}

// A SourceList is a declarative list of sources.
type SourceList struct {
	Sources []SourceSpec `yaml:"sources"`
}

// ReadSourceList reads a YAML source list from r.
func ReadSourceList(r io.Reader) ([]SourceSpec, error) {
	var sourceList SourceList
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&sourceList); err != nil && err != io.EOF {
		return nil, err
	}
	for i, spec := range sourceList.Sources {
		if spec.Path == "" {
			return nil, fmt.Errorf("source %d: %w: missing path", i, ErrInvalidArgument)
		}
		if spec.Sector != nil {
			if err := spec.Sector.Validate(); err != nil {
				return nil, fmt.Errorf("source %d: %s: %w", i, spec.Path, err)
			}
		}
	}
	return sourceList.Sources, nil
}

// Property returns the value of the property key, if present.
func (s SourceSpec) Property(key string) (string, bool) {
	value, ok := s.Properties[key]
	return value, ok
}
