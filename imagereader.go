package mosaic

import (
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var imageExtensions = map[string]bool{
	".bmp":  true,
	".gif":  true,
	".jpeg": true,
	".jpg":  true,
	".png":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// An ImageReader reads plain images, georeferenced by a world file or by the
// source's sector override. Images have no overviews.
type ImageReader struct{}

// NewImageReader returns a new ImageReader.
func NewImageReader() *ImageReader {
	return &ImageReader{}
}

func (r *ImageReader) Name() string {
	return "image"
}

func (r *ImageReader) CanRead(ctx context.Context, source Source) bool {
	if !imageExtensions[strings.ToLower(path.Ext(source.Path))] {
		return false
	}
	file, err := source.FS.Open(source.Path)
	if err != nil {
		return false
	}
	defer file.Close()
	_, _, err = image.DecodeConfig(file)
	return err == nil
}

func (r *ImageReader) ReadMetadata(ctx context.Context, source Source) (*Metadata, error) {
	file, err := source.FS.Open(source.Path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	config, _, err := image.DecodeConfig(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnreadable, err)
	}
	info, err := imageHandleInfo(config.Width, config.Height, config.ColorModel, source)
	if err != nil {
		return nil, err
	}
	return metadataFromInfo(info), nil
}

func (r *ImageReader) Open(ctx context.Context, source Source) (Handle, error) {
	file, err := source.FS.Open(source.Path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnreadable, err)
	}
	bounds := img.Bounds()
	info, err := imageHandleInfo(bounds.Dx(), bounds.Dy(), img.ColorModel(), source)
	if err != nil {
		return nil, err
	}
	return &imageHandle{
		info:   info,
		window: imageWindow(img, info.ColorModel),
	}, nil
}

// imageHandleInfo returns the HandleInfo of an image with the given size and
// color model.
func imageHandleInfo(width, height int, model color.Model, source Source) (*HandleInfo, error) {
	info := &HandleInfo{
		Width:       width,
		Height:      height,
		DataType:    DataTypeByte,
		PixelFormat: PixelFormatImage,
	}
	switch model := model.(type) {
	case color.Palette:
		info.ColorModel = ColorModelPaletteIndexed
		info.Palette = model
	default:
		switch model {
		case color.GrayModel:
			info.ColorModel = ColorModelGrayscale
		case color.Gray16Model:
			// 16-bit grayscale images are usually elevation.
			info.ColorModel = ColorModelGrayscale
			info.DataType = DataTypeUInt16
			info.PixelFormat = PixelFormatElevation
		case color.YCbCrModel, color.CMYKModel:
			info.ColorModel = ColorModelRGB
		default:
			info.ColorModel = ColorModelRGBA
		}
	}
	info.BandCount = info.ColorModel.BandCount()

	if source.PixelFormat != PixelFormatUnspecified {
		info.PixelFormat = source.PixelFormat
	}
	info.NoData = source.NoData

	if err := georeference(info, source, GeoTransform{}, false, CoordinateSystemUnknown, 0); err != nil {
		return nil, err
	}
	return info, nil
}

// imageWindow returns the full-resolution samples of img in colorModel.
func imageWindow(img image.Image, colorModel ColorModelKind) *Window {
	bounds := img.Bounds()
	window := NewWindow(image.Rect(0, 0, bounds.Dx(), bounds.Dy()), colorModel.BandCount())
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			switch colorModel {
			case ColorModelPaletteIndexed:
				window.Samples[i] = float32(img.(*image.Paletted).ColorIndexAt(x, y))
				i++
			case ColorModelGrayscale:
				if gray16, ok := img.(*image.Gray16); ok {
					window.Samples[i] = float32(gray16.Gray16At(x, y).Y)
				} else {
					window.Samples[i] = float32(color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y)
				}
				i++
			default:
				c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
				window.Samples[i] = float32(c.R)
				window.Samples[i+1] = float32(c.G)
				window.Samples[i+2] = float32(c.B)
				if colorModel == ColorModelRGBA {
					window.Samples[i+3] = float32(c.A)
				}
				i += window.BandCount
			}
		}
	}
	return window
}

// An imageHandle is a decoded image.
type imageHandle struct {
	info   *HandleInfo
	window *Window
}

func (h *imageHandle) Info() *HandleInfo {
	return h.info
}

func (h *imageHandle) ReadWindow(ctx context.Context, level int, rect image.Rectangle) (*Window, error) {
	if level != 0 {
		return nil, fmt.Errorf("%w: level %d", ErrInvalidArgument, level)
	}
	if rect.Empty() || !rect.In(h.window.Rect) {
		return nil, fmt.Errorf("%w: window %v outside %v", ErrInvalidArgument, rect, h.window.Rect)
	}
	window := NewWindow(rect, h.window.BandCount)
	n := rect.Dx() * window.BandCount
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		src := h.window.Offset(rect.Min.X, y)
		copy(window.Samples[window.Offset(rect.Min.X, y):], h.window.Samples[src:src+n])
	}
	return window, nil
}

func (h *imageHandle) Close() error {
	return nil
}

var _ Handle = (*imageHandle)(nil)
