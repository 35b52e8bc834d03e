package mosaic

import (
	"fmt"
	"math"
	"strings"
)

// A DataType is the type of a single sample.
type DataType int

const (
	DataTypeUnknown DataType = iota
	DataTypeByte
	DataTypeInt8
	DataTypeUInt16
	DataTypeInt16
	DataTypeUInt32
	DataTypeInt32
	DataTypeFloat32
	DataTypeFloat64
)

// Size returns the size of a single sample of type t in bytes.
func (t DataType) Size() int {
	switch t {
	case DataTypeByte, DataTypeInt8:
		return 1
	case DataTypeUInt16, DataTypeInt16:
		return 2
	case DataTypeUInt32, DataTypeInt32, DataTypeFloat32:
		return 4
	case DataTypeFloat64:
		return 8
	default:
		return 0
	}
}

// IsFloat returns true if t is a floating point type.
func (t DataType) IsFloat() bool {
	return t == DataTypeFloat32 || t == DataTypeFloat64
}

// MaxValue returns the largest value representable by t. Floating point types
// return 1, the conventional maximum of normalized imagery.
func (t DataType) MaxValue() float64 {
	switch t {
	case DataTypeByte:
		return math.MaxUint8
	case DataTypeInt8:
		return math.MaxInt8
	case DataTypeUInt16:
		return math.MaxUint16
	case DataTypeInt16:
		return math.MaxInt16
	case DataTypeUInt32:
		return math.MaxUint32
	case DataTypeInt32:
		return math.MaxInt32
	default:
		return 1
	}
}

func (t DataType) String() string {
	switch t {
	case DataTypeByte:
		return "Byte"
	case DataTypeInt8:
		return "Int8"
	case DataTypeUInt16:
		return "UInt16"
	case DataTypeInt16:
		return "Int16"
	case DataTypeUInt32:
		return "UInt32"
	case DataTypeInt32:
		return "Int32"
	case DataTypeFloat32:
		return "Float32"
	case DataTypeFloat64:
		return "Float64"
	default:
		return "Unknown"
	}
}

// A PixelFormat distinguishes imagery from elevation data.
type PixelFormat int

const (
	PixelFormatUnspecified PixelFormat = iota
	PixelFormatImage
	PixelFormatElevation
)

func (f PixelFormat) String() string {
	switch f {
	case PixelFormatImage:
		return "image"
	case PixelFormatElevation:
		return "elevation"
	default:
		return "unspecified"
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *PixelFormat) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "":
		*f = PixelFormatUnspecified
	case "image", "imagery":
		*f = PixelFormatImage
	case "elevation", "dem":
		*f = PixelFormatElevation
	default:
		return fmt.Errorf("%s: unknown pixel format", text)
	}
	return nil
}

// A CoordinateSystemKind classifies a source's spatial reference.
type CoordinateSystemKind int

const (
	CoordinateSystemUnknown CoordinateSystemKind = iota
	CoordinateSystemGeographic
	CoordinateSystemProjected
	CoordinateSystemScreen
)

// IsGeoreferenced returns true if k can be used to locate pixels on the
// earth.
func (k CoordinateSystemKind) IsGeoreferenced() bool {
	return k == CoordinateSystemGeographic || k == CoordinateSystemProjected
}

func (k CoordinateSystemKind) String() string {
	switch k {
	case CoordinateSystemGeographic:
		return "geographic"
	case CoordinateSystemProjected:
		return "projected"
	case CoordinateSystemScreen:
		return "screen"
	default:
		return "unknown"
	}
}

// A ColorModelKind is the color model of image data.
type ColorModelKind int

const (
	ColorModelUnspecified ColorModelKind = iota
	ColorModelRGB
	ColorModelRGBA
	ColorModelGrayscale
	ColorModelGrayscaleAlpha
	ColorModelPaletteIndexed
)

// BandCount returns the number of bands in model k.
func (k ColorModelKind) BandCount() int {
	switch k {
	case ColorModelRGB:
		return 3
	case ColorModelRGBA:
		return 4
	case ColorModelGrayscale, ColorModelPaletteIndexed:
		return 1
	case ColorModelGrayscaleAlpha:
		return 2
	default:
		return 0
	}
}

func (k ColorModelKind) String() string {
	switch k {
	case ColorModelRGB:
		return "rgb"
	case ColorModelRGBA:
		return "rgba"
	case ColorModelGrayscale:
		return "gray"
	case ColorModelGrayscaleAlpha:
		return "grayalpha"
	case ColorModelPaletteIndexed:
		return "palette"
	default:
		return "unspecified"
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ColorModelKind) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "":
		*k = ColorModelUnspecified
	case "rgb":
		*k = ColorModelRGB
	case "rgba":
		*k = ColorModelRGBA
	case "gray", "grey", "grayscale":
		*k = ColorModelGrayscale
	case "grayalpha", "grayscalealpha":
		*k = ColorModelGrayscaleAlpha
	case "palette", "paletted":
		*k = ColorModelPaletteIndexed
	default:
		return fmt.Errorf("%s: unknown color model", text)
	}
	return nil
}

// colorModelForBands returns the natural color model of non-paletted image
// data with bandCount bands.
func colorModelForBands(bandCount int) ColorModelKind {
	switch bandCount {
	case 1:
		return ColorModelGrayscale
	case 2:
		return ColorModelGrayscaleAlpha
	case 3:
		return ColorModelRGB
	case 4:
		return ColorModelRGBA
	default:
		return ColorModelUnspecified
	}
}

// A Resampling is a resampling kernel.
type Resampling int

const (
	ResamplingDefault Resampling = iota
	ResamplingNearest
	ResamplingBilinear
)

func (r Resampling) String() string {
	switch r {
	case ResamplingNearest:
		return "nearest"
	case ResamplingBilinear:
		return "bilinear"
	default:
		return "default"
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Resampling) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "", "default":
		*r = ResamplingDefault
	case "nearest", "near":
		*r = ResamplingNearest
	case "bilinear":
		*r = ResamplingBilinear
	default:
		return fmt.Errorf("%s: unknown resampling", text)
	}
	return nil
}

// A Size is a pixel size.
type Size struct {
	Width  int
	Height int
}
