package mosaic

import (
	"fmt"
	"math"
	"sync"

	"github.com/twpayne/go-proj/v10"
)

const densifyPoints = 16

// projAvailable checks once per process that PROJ can build a
// transformation. The outcome is cached.
var projAvailable = sync.OnceValue(func() error {
	pj, err := proj.NewCRSToCRS("EPSG:4326", "EPSG:3857", nil)
	if err != nil {
		return fmt.Errorf("%w: proj: %w", ErrDecoderUnavailable, err)
	}
	pj.Destroy()
	return nil
})

// A nativeTransformer converts between longitude/latitude and a source's
// native coordinates. Coordinates are [][]float64{{x, y}, ...} with x as
// longitude or easting. It is not safe for concurrent use.
type nativeTransformer interface {
	Forward(coords [][]float64) error
	Inverse(coords [][]float64) error
	Close()
}

// An identityTransformer is used for sources whose native coordinates are
// longitude and latitude.
type identityTransformer struct{}

func (identityTransformer) Forward([][]float64) error { return nil }
func (identityTransformer) Inverse([][]float64) error { return nil }
func (identityTransformer) Close()                    {}

// A projTransformer converts to and from a projected CRS with PROJ.
type projTransformer struct {
	pj *proj.PJ
}

// newProjTransformer returns a transformer from EPSG:4326 to EPSG:srid with
// both sides in x/y axis order.
func newProjTransformer(srid int) (*projTransformer, error) {
	if err := projAvailable(); err != nil {
		return nil, err
	}
	pj, err := proj.NewCRSToCRS("EPSG:4326", fmt.Sprintf("EPSG:%d", srid), nil)
	if err != nil {
		return nil, err
	}
	defer pj.Destroy()
	normalizedPJ, err := pj.NormalizeForVisualization()
	if err != nil {
		return nil, err
	}
	return &projTransformer{
		pj: normalizedPJ,
	}, nil
}

func (t *projTransformer) Forward(coords [][]float64) error {
	return t.pj.ForwardFloat64Slices(coords)
}

func (t *projTransformer) Inverse(coords [][]float64) error {
	return t.pj.InverseFloat64Slices(coords)
}

func (t *projTransformer) Close() {
	t.pj.Destroy()
}

// newNativeTransformer returns the transformer for a source with the given
// coordinate system. The caller must close it.
func newNativeTransformer(kind CoordinateSystemKind, srid int) (nativeTransformer, error) {
	if kind != CoordinateSystemProjected {
		return identityTransformer{}, nil
	}
	if srid == 0 {
		return nil, fmt.Errorf("%w: projected source without SRID", ErrSourceUnreadable)
	}
	return newProjTransformer(srid)
}

// SectorFromGeoTransform returns the geographic sector covered by a width x
// height grid with the given geo-transform. For projected coordinate systems
// the grid's edges are densified and transformed with PROJ.
func SectorFromGeoTransform(kind CoordinateSystemKind, srid int, gt GeoTransform, width, height int) (Sector, error) {
	coords := densifiedGridEdges(gt, width, height)
	if kind == CoordinateSystemProjected {
		transformer, err := newNativeTransformer(kind, srid)
		if err != nil {
			return Sector{}, err
		}
		defer transformer.Close()
		if err := transformer.Inverse(coords); err != nil {
			return Sector{}, err
		}
	}
	sector := Sector{
		MinLat: math.Inf(1),
		MaxLat: math.Inf(-1),
		MinLon: math.Inf(1),
		MaxLon: math.Inf(-1),
	}
	for _, coord := range coords {
		if math.IsNaN(coord[0]) || math.IsInf(coord[0], 0) || math.IsNaN(coord[1]) || math.IsInf(coord[1], 0) {
			continue
		}
		sector.MinLon = min(sector.MinLon, coord[0])
		sector.MaxLon = max(sector.MaxLon, coord[0])
		sector.MinLat = min(sector.MinLat, coord[1])
		sector.MaxLat = max(sector.MaxLat, coord[1])
	}
	if err := sector.Validate(); err != nil {
		return Sector{}, err
	}
	return sector, nil
}

// densifiedGridEdges returns native coordinates of points along the edges of
// a width x height grid.
func densifiedGridEdges(gt GeoTransform, width, height int) [][]float64 {
	coords := make([][]float64, 0, 4*densifyPoints)
	w, h := float64(width), float64(height)
	for i := range densifyPoints {
		f := float64(i) / densifyPoints
		for _, pixel := range [][2]float64{
			{f * w, 0},
			{w, f * h},
			{w - f*w, h},
			{0, h - f*h},
		} {
			x, y := gt.Apply(pixel[0], pixel[1])
			coords = append(coords, []float64{x, y})
		}
	}
	return coords
}

// densifiedSectorEdges returns longitude/latitude points along the edges of
// s.
func densifiedSectorEdges(s Sector) [][]float64 {
	coords := make([][]float64, 0, 4*densifyPoints)
	for i := range densifyPoints {
		f := float64(i) / densifyPoints
		coords = append(coords,
			[]float64{s.MinLon + f*s.DeltaLon(), s.MaxLat},
			[]float64{s.MaxLon, s.MaxLat - f*s.DeltaLat()},
			[]float64{s.MaxLon - f*s.DeltaLon(), s.MinLat},
			[]float64{s.MinLon, s.MinLat + f*s.DeltaLat()},
		)
	}
	return coords
}
