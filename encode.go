package mosaic

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"strings"

	"github.com/gen2brain/webp"
)

const defaultQuality = 85

// An Encoder encodes a composed raster to bytes.
type Encoder interface {
	// Encode encodes raster.
	Encode(raster ComposedRaster) ([]byte, error)

	// Format returns the format name, e.g. "png".
	Format() string

	// ContentType returns the MIME type of the encoded bytes.
	ContentType() string

	// FileExtension returns the file extension, including the leading dot.
	FileExtension() string

	// PixelFormat returns the pixel format the encoder accepts.
	PixelFormat() PixelFormat
}

// Formats returns the names of all supported formats.
func Formats() []string {
	return []string{"png", "jpeg", "webp", "terrarium", "bil"}
}

// NewEncoder returns an Encoder for format. quality is used by lossy formats;
// zero selects a default.
func NewEncoder(format string, quality int) (Encoder, error) {
	if quality <= 0 {
		quality = defaultQuality
	}
	switch strings.ToLower(format) {
	case "png":
		return &PNGEncoder{}, nil
	case "jpeg", "jpg":
		return &JPEGEncoder{Quality: quality}, nil
	case "webp":
		return &WebPEncoder{Quality: quality}, nil
	case "terrarium":
		return &TerrariumEncoder{}, nil
	case "bil":
		return &BILEncoder{}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", ErrInvalidArgument, format)
	}
}

func imageFor(raster ComposedRaster) (image.Image, error) {
	imageRaster, ok := raster.(*ImageRaster)
	if !ok {
		return nil, fmt.Errorf("%w: %s raster cannot be encoded as an image", ErrInvalidArgument, raster.PixelFormat())
	}
	return imageRaster.Image(), nil
}

func elevationFor(raster ComposedRaster) (*ElevationRaster, error) {
	elevationRaster, ok := raster.(*ElevationRaster)
	if !ok {
		return nil, fmt.Errorf("%w: %s raster is not elevation", ErrInvalidArgument, raster.PixelFormat())
	}
	return elevationRaster, nil
}

// PNGEncoder encodes imagery as PNG.
type PNGEncoder struct{}

func (e *PNGEncoder) Encode(raster ComposedRaster) ([]byte, error) {
	img, err := imageFor(raster)
	if err != nil {
		return nil, err
	}
	return encodePNG(img)
}

func (e *PNGEncoder) Format() string           { return "png" }
func (e *PNGEncoder) ContentType() string      { return "image/png" }
func (e *PNGEncoder) FileExtension() string    { return ".png" }
func (e *PNGEncoder) PixelFormat() PixelFormat { return PixelFormatImage }

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	encoder := &png.Encoder{CompressionLevel: png.BestSpeed}
	if err := encoder.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// JPEGEncoder encodes imagery as JPEG. Alpha is discarded.
type JPEGEncoder struct {
	Quality int
}

func (e *JPEGEncoder) Encode(raster ComposedRaster) ([]byte, error) {
	img, err := imageFor(raster)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: e.Quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *JPEGEncoder) Format() string           { return "jpeg" }
func (e *JPEGEncoder) ContentType() string      { return "image/jpeg" }
func (e *JPEGEncoder) FileExtension() string    { return ".jpg" }
func (e *JPEGEncoder) PixelFormat() PixelFormat { return PixelFormatImage }

// WebPEncoder encodes imagery as lossy WebP.
type WebPEncoder struct {
	Quality int
}

func (e *WebPEncoder) Encode(raster ComposedRaster) ([]byte, error) {
	img, err := imageFor(raster)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, webp.Options{
		Quality: e.Quality,
	}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *WebPEncoder) Format() string           { return "webp" }
func (e *WebPEncoder) ContentType() string      { return "image/webp" }
func (e *WebPEncoder) FileExtension() string    { return ".webp" }
func (e *WebPEncoder) PixelFormat() PixelFormat { return PixelFormatImage }

// TerrariumEncoder encodes elevation as a Terrarium RGB PNG, where elevation
// = R*256 + G + B/256 - 32768. Nodata is transparent.
type TerrariumEncoder struct{}

func (e *TerrariumEncoder) Encode(raster ComposedRaster) ([]byte, error) {
	elevationRaster, err := elevationFor(raster)
	if err != nil {
		return nil, err
	}
	img := image.NewNRGBA(image.Rect(0, 0, elevationRaster.Width, elevationRaster.Height))
	for y := range elevationRaster.Height {
		for x := range elevationRaster.Width {
			if elevationRaster.IsNoData(x, y) {
				continue
			}
			img.SetNRGBA(x, y, ElevationToTerrarium(elevationRaster.At(x, y)))
		}
	}
	return encodePNG(img)
}

func (e *TerrariumEncoder) Format() string           { return "terrarium" }
func (e *TerrariumEncoder) ContentType() string      { return "image/png" }
func (e *TerrariumEncoder) FileExtension() string    { return ".png" }
func (e *TerrariumEncoder) PixelFormat() PixelFormat { return PixelFormatElevation }

// ElevationToTerrarium returns the Terrarium encoding of elevation.
func ElevationToTerrarium(elevation float64) color.NRGBA {
	if math.IsNaN(elevation) || math.IsInf(elevation, 0) {
		return color.NRGBA{}
	}
	value := min(max(elevation+32768, 0), 65535+255.0/256)
	r := math.Floor(value / 256)
	g := math.Floor(value - 256*r)
	b := math.Floor((value - 256*r - g) * 256)
	return color.NRGBA{R: uint8(r), G: uint8(g), B: uint8(b), A: 0xff}
}

// TerrariumToElevation returns the elevation encoded by c, or NaN if c is
// transparent.
func TerrariumToElevation(c color.NRGBA) float64 {
	if c.A == 0 {
		return math.NaN()
	}
	return 256*float64(c.R) + float64(c.G) + float64(c.B)/256 - 32768
}

// BILEncoder encodes elevation as raw band-interleaved samples in the
// raster's byte order and data type.
type BILEncoder struct{}

func (e *BILEncoder) Encode(raster ComposedRaster) ([]byte, error) {
	elevationRaster, err := elevationFor(raster)
	if err != nil {
		return nil, err
	}
	return bytes.Clone(elevationRaster.Samples), nil
}

func (e *BILEncoder) Format() string           { return "bil" }
func (e *BILEncoder) ContentType() string      { return "application/bil" }
func (e *BILEncoder) FileExtension() string    { return ".bil" }
func (e *BILEncoder) PixelFormat() PixelFormat { return PixelFormatElevation }
