package mosaic

import (
	"encoding/binary"
	"image"
	"image/color"
	"math"
)

// A ComposedRaster is the result of a composition. Its buffer is exactly
// Width*Height*BandCount*bytes-per-sample long.
type ComposedRaster interface {
	PixelFormat() PixelFormat
	Size() Size
	Bytes() []byte
}

// An ImageRaster is a composed 8-bit image.
type ImageRaster struct {
	Width      int
	Height     int
	BandCount  int
	ColorModel ColorModelKind
	Palette    color.Palette // Only set if ColorModel is ColorModelPaletteIndexed.
	Pix        []byte
}

func (r *ImageRaster) PixelFormat() PixelFormat { return PixelFormatImage }
func (r *ImageRaster) Size() Size              { return Size{Width: r.Width, Height: r.Height} }
func (r *ImageRaster) Bytes() []byte           { return r.Pix }

// Image returns r as an image.Image sharing r's pixels.
func (r *ImageRaster) Image() image.Image {
	rect := image.Rect(0, 0, r.Width, r.Height)
	switch r.ColorModel {
	case ColorModelGrayscale:
		return &image.Gray{Pix: r.Pix, Stride: r.Width, Rect: rect}
	case ColorModelPaletteIndexed:
		return &image.Paletted{Pix: r.Pix, Stride: r.Width, Rect: rect, Palette: r.Palette}
	case ColorModelRGBA:
		return &image.NRGBA{Pix: r.Pix, Stride: 4 * r.Width, Rect: rect}
	default:
		// Expand the remaining models to NRGBA.
		img := image.NewNRGBA(rect)
		for i := range r.Width * r.Height {
			src := r.Pix[i*r.BandCount : (i+1)*r.BandCount]
			dst := img.Pix[4*i : 4*i+4]
			switch r.ColorModel {
			case ColorModelGrayscaleAlpha:
				dst[0], dst[1], dst[2], dst[3] = src[0], src[0], src[0], src[1]
			case ColorModelRGB:
				dst[0], dst[1], dst[2], dst[3] = src[0], src[1], src[2], 0xff
			}
		}
		return img
	}
}

// An ElevationRaster is a composed single-band elevation grid. Samples are
// encoded in ByteOrder, row by row from north to south.
type ElevationRaster struct {
	Width     int
	Height    int
	Sector    Sector
	ByteOrder binary.ByteOrder
	DataType  DataType
	NoData    float64
	Samples   []byte
}

func (r *ElevationRaster) PixelFormat() PixelFormat { return PixelFormatElevation }
func (r *ElevationRaster) Size() Size              { return Size{Width: r.Width, Height: r.Height} }
func (r *ElevationRaster) Bytes() []byte           { return r.Samples }

// newElevationRaster returns a new ElevationRaster encoding values.
func newElevationRaster(width, height int, sector Sector, byteOrder binary.ByteOrder, dataType DataType, noData float64, values []float32) *ElevationRaster {
	size := dataType.Size()
	samples := make([]byte, len(values)*size)
	for i, value := range values {
		b := samples[i*size : (i+1)*size]
		switch dataType {
		case DataTypeInt16:
			byteOrder.PutUint16(b, uint16(int16(clampRound(value, math.MinInt16, math.MaxInt16))))
		case DataTypeInt32:
			byteOrder.PutUint32(b, uint32(int32(clampRound(value, math.MinInt32, math.MaxInt32))))
		case DataTypeFloat32:
			byteOrder.PutUint32(b, math.Float32bits(value))
		}
	}
	return &ElevationRaster{
		Width:     width,
		Height:    height,
		Sector:    sector,
		ByteOrder: byteOrder,
		DataType:  dataType,
		NoData:    noData,
		Samples:   samples,
	}
}

// At returns the sample at (x, y).
func (r *ElevationRaster) At(x, y int) float64 {
	size := r.DataType.Size()
	b := r.Samples[(y*r.Width+x)*size : (y*r.Width+x+1)*size]
	switch r.DataType {
	case DataTypeInt16:
		return float64(int16(r.ByteOrder.Uint16(b)))
	case DataTypeInt32:
		return float64(int32(r.ByteOrder.Uint32(b)))
	case DataTypeFloat32:
		return float64(math.Float32frombits(r.ByteOrder.Uint32(b)))
	default:
		return math.NaN()
	}
}

// IsNoData returns true if the sample at (x, y) is nodata.
func (r *ElevationRaster) IsNoData(x, y int) bool {
	value := r.At(x, y)
	if r.DataType == DataTypeFloat32 {
		return value == float64(float32(r.NoData)) || math.IsNaN(r.NoData) && math.IsNaN(value)
	}
	return value == math.Round(r.NoData)
}

func clampRound(value float32, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, math.Round(float64(value))))
}
