package mosaic

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// A Sector is a geographic bounding box in degrees. Bounds are never
// inverted, but a Sector may have zero extent.
type Sector struct {
	MinLat float64 `json:"minLat" yaml:"min_lat"`
	MaxLat float64 `json:"maxLat" yaml:"max_lat"`
	MinLon float64 `json:"minLon" yaml:"min_lon"`
	MaxLon float64 `json:"maxLon" yaml:"max_lon"`
}

// A LatLon is a geographic position in degrees.
type LatLon struct {
	Lat float64
	Lon float64
}

// NewSector returns a new Sector, or an error wrapping ErrInvalidArgument if
// the bounds are inverted or not finite.
func NewSector(minLat, maxLat, minLon, maxLon float64) (Sector, error) {
	s := Sector{
		MinLat: minLat,
		MaxLat: maxLat,
		MinLon: minLon,
		MaxLon: maxLon,
	}
	if err := s.Validate(); err != nil {
		return Sector{}, err
	}
	return s, nil
}

// MustNewSector is like NewSector but panics on invalid bounds.
func MustNewSector(minLat, maxLat, minLon, maxLon float64) Sector {
	s, err := NewSector(minLat, maxLat, minLon, maxLon)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate returns an error if s has inverted or non-finite bounds.
func (s Sector) Validate() error {
	for _, v := range []float64{s.MinLat, s.MaxLat, s.MinLon, s.MaxLon} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite sector bound in %s", ErrInvalidArgument, s)
		}
	}
	if s.MinLat > s.MaxLat || s.MinLon > s.MaxLon {
		return fmt.Errorf("%w: inverted sector %s", ErrInvalidArgument, s)
	}
	return nil
}

// DeltaLat returns the latitude extent of s.
func (s Sector) DeltaLat() float64 {
	return s.MaxLat - s.MinLat
}

// DeltaLon returns the longitude extent of s.
func (s Sector) DeltaLon() float64 {
	return s.MaxLon - s.MinLon
}

// Area returns the area of s in square degrees.
func (s Sector) Area() float64 {
	return s.DeltaLat() * s.DeltaLon()
}

// IsEmpty returns true if s has zero extent along either axis.
func (s Sector) IsEmpty() bool {
	return s.DeltaLat() == 0 || s.DeltaLon() == 0
}

// Center returns the center of s.
func (s Sector) Center() LatLon {
	return LatLon{
		Lat: (s.MinLat + s.MaxLat) / 2,
		Lon: (s.MinLon + s.MaxLon) / 2,
	}
}

// Intersects returns true if s and other share at least one point. Sectors
// that only touch along an edge intersect.
func (s Sector) Intersects(other Sector) bool {
	return s.MinLat <= other.MaxLat && other.MinLat <= s.MaxLat &&
		s.MinLon <= other.MaxLon && other.MinLon <= s.MaxLon
}

// Intersection returns the intersection of s and other. The second return
// value is false if they do not intersect.
func (s Sector) Intersection(other Sector) (Sector, bool) {
	if !s.Intersects(other) {
		return Sector{}, false
	}
	return Sector{
		MinLat: max(s.MinLat, other.MinLat),
		MaxLat: min(s.MaxLat, other.MaxLat),
		MinLon: max(s.MinLon, other.MinLon),
		MaxLon: min(s.MaxLon, other.MaxLon),
	}, true
}

// Union returns the smallest Sector containing both s and other.
func (s Sector) Union(other Sector) Sector {
	return Sector{
		MinLat: min(s.MinLat, other.MinLat),
		MaxLat: max(s.MaxLat, other.MaxLat),
		MinLon: min(s.MinLon, other.MinLon),
		MaxLon: max(s.MaxLon, other.MaxLon),
	}
}

// Contains returns true if other lies entirely within s.
func (s Sector) Contains(other Sector) bool {
	return s.MinLat <= other.MinLat && other.MaxLat <= s.MaxLat &&
		s.MinLon <= other.MinLon && other.MaxLon <= s.MaxLon
}

// ContainsPoint returns true if p lies within s, including its edges.
func (s Sector) ContainsPoint(p LatLon) bool {
	return s.MinLat <= p.Lat && p.Lat <= s.MaxLat &&
		s.MinLon <= p.Lon && p.Lon <= s.MaxLon
}

func (s Sector) String() string {
	return fmt.Sprintf("[%g,%g]x[%g,%g]", s.MinLat, s.MaxLat, s.MinLon, s.MaxLon)
}

// ParseBBox parses a bounding box of the form minLat,minLon,maxLat,maxLon.
func ParseBBox(s string) (Sector, error) {
	fields := strings.Split(s, ",")
	if len(fields) != 4 {
		return Sector{}, fmt.Errorf("%w: %q: bbox must be minLat,minLon,maxLat,maxLon", ErrInvalidArgument, s)
	}
	var values [4]float64
	for i, field := range fields {
		value, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return Sector{}, fmt.Errorf("%w: bbox: %w", ErrInvalidArgument, err)
		}
		values[i] = value
	}
	return NewSector(values[0], values[2], values[1], values[3])
}
