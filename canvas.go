package mosaic

import (
	"encoding/binary"
	"image/color"
	"math"
	"slices"
)

// defaultElevationNoData is the nodata value of elevation output when
// neither the request nor any source declares one.
const defaultElevationNoData = -32768

// A canvas accumulates resampled sources into a composed raster.
type canvas interface {
	paint(descriptor *RasterDescriptor, resampled *Resampled)
	raster() ComposedRaster
}

type elevationCanvas struct {
	width     int
	height    int
	sector    Sector
	byteOrder binary.ByteOrder
	dataType  DataType
	noData    float64
	values    []float32
}

func newElevationCanvas(request *CompositionRequest, byteOrder binary.ByteOrder, descriptors []*RasterDescriptor) *elevationCanvas {
	dataType := request.ElevationDataType
	if dataType == DataTypeUnknown {
		dataType = elevationDataType(descriptors)
	}

	noData := float64(defaultElevationNoData)
	switch {
	case request.NoData != nil:
		noData = *request.NoData
	default:
		for _, descriptor := range descriptors {
			if descriptor.NoData != nil {
				noData = *descriptor.NoData
				break
			}
		}
	}
	if !dataType.IsFloat() && (math.IsNaN(noData) || noData < -dataType.MaxValue()-1 || noData > dataType.MaxValue()) {
		noData = defaultElevationNoData
	}

	values := make([]float32, request.Width*request.Height)
	for i := range values {
		values[i] = float32(noData)
	}
	return &elevationCanvas{
		width:     request.Width,
		height:    request.Height,
		sector:    *request.Sector,
		byteOrder: byteOrder,
		dataType:  dataType,
		noData:    noData,
		values:    values,
	}
}

// elevationDataType returns the narrowest output data type that can hold
// samples from all of descriptors.
func elevationDataType(descriptors []*RasterDescriptor) DataType {
	dataType := DataTypeInt16
	for _, descriptor := range descriptors {
		switch descriptor.DataType {
		case DataTypeFloat32, DataTypeFloat64:
			return DataTypeFloat32
		case DataTypeUInt16, DataTypeInt32, DataTypeUInt32:
			dataType = DataTypeInt32
		}
	}
	return dataType
}

// paint overwrites the canvas with every present, non-nodata sample of
// resampled.
func (c *elevationCanvas) paint(_ *RasterDescriptor, resampled *Resampled) {
	var noData float32
	hasNoData := resampled.NoData != nil
	if hasNoData {
		noData = float32(*resampled.NoData)
	}
	for i := range c.values {
		if resampled.Missing(i) {
			continue
		}
		value := resampled.Samples[i*resampled.BandCount]
		if hasNoData && value == noData || math.IsNaN(float64(value)) {
			continue
		}
		c.values[i] = value
	}
}

func (c *elevationCanvas) raster() ComposedRaster {
	return newElevationRaster(c.width, c.height, c.sector, c.byteOrder, c.dataType, c.noData, c.values)
}

type imageCanvas struct {
	width         int
	height        int
	maxPixelValue *float64
	colorModel    ColorModelKind

	// pix holds premultiplied RGBA in [0, 1].
	pix []float32

	// indices tracks palette indices while every painted source shares the
	// same palette.
	paletted bool
	palette  color.Palette
	indices  []uint8
	painted  []bool
}

func newImageCanvas(request *CompositionRequest, descriptors []*RasterDescriptor) *imageCanvas {
	c := &imageCanvas{
		width:         request.Width,
		height:        request.Height,
		maxPixelValue: request.MaxPixelValue,
		colorModel:    request.ColorModel,
		pix:           make([]float32, 4*request.Width*request.Height),
	}
	if request.ColorModel == ColorModelUnspecified || request.ColorModel == ColorModelPaletteIndexed {
		c.paletted = !slices.ContainsFunc(descriptors, func(descriptor *RasterDescriptor) bool {
			return descriptor.ColorModel != ColorModelPaletteIndexed
		})
	}
	if c.paletted {
		c.indices = make([]uint8, request.Width*request.Height)
		c.painted = make([]bool, request.Width*request.Height)
	}
	return c
}

// paint alpha-composites resampled over the canvas.
func (c *imageCanvas) paint(descriptor *RasterDescriptor, resampled *Resampled) {
	paletted := resampled.ColorModel == ColorModelPaletteIndexed && len(resampled.Palette) > 0
	if c.paletted {
		switch {
		case !paletted || len(resampled.Palette) > 256:
			c.paletted = false
		case c.palette == nil:
			c.palette = resampled.Palette
		case !samePalette(c.palette, resampled.Palette):
			c.paletted = false
		}
	}

	maxPixelValue := resampled.DataType.MaxValue()
	switch {
	case descriptor.Source.MaxPixelValue != nil:
		maxPixelValue = *descriptor.Source.MaxPixelValue
	case c.maxPixelValue != nil:
		maxPixelValue = *c.maxPixelValue
	}
	scale := float32(1 / maxPixelValue)

	colorModel := resampled.ColorModel
	if colorModel == ColorModelUnspecified || !paletted && colorModel == ColorModelPaletteIndexed {
		colorModel = colorModelForBands(min(resampled.BandCount, 4))
	}

	var noData float32
	hasNoData := resampled.NoData != nil
	if hasNoData {
		noData = float32(*resampled.NoData)
	}

	bandCount := resampled.BandCount
	for i := range c.width * c.height {
		if resampled.Missing(i) {
			continue
		}
		samples := resampled.Samples[i*bandCount : (i+1)*bandCount]
		if hasNoData && allEqual(samples, noData) {
			continue
		}

		var r, g, b, a float32
		switch colorModel {
		case ColorModelPaletteIndexed:
			index := int(samples[0])
			if index < 0 || index >= len(resampled.Palette) {
				continue
			}
			nrgba := color.NRGBAModel.Convert(resampled.Palette[index]).(color.NRGBA)
			r, g, b, a = float32(nrgba.R)/0xff, float32(nrgba.G)/0xff, float32(nrgba.B)/0xff, float32(nrgba.A)/0xff
			if c.paletted {
				c.indices[i] = uint8(index)
				c.painted[i] = true
			}
		case ColorModelGrayscale:
			r = unit(samples[0] * scale)
			g, b, a = r, r, 1
		case ColorModelGrayscaleAlpha:
			r = unit(samples[0] * scale)
			g, b, a = r, r, unit(samples[1]*scale)
		case ColorModelRGB:
			r, g, b, a = unit(samples[0]*scale), unit(samples[1]*scale), unit(samples[2]*scale), 1
		case ColorModelRGBA:
			r, g, b, a = unit(samples[0]*scale), unit(samples[1]*scale), unit(samples[2]*scale), unit(samples[3]*scale)
		default:
			continue
		}

		dst := c.pix[4*i : 4*i+4]
		dst[0] = r*a + dst[0]*(1-a)
		dst[1] = g*a + dst[1]*(1-a)
		dst[2] = b*a + dst[2]*(1-a)
		dst[3] = a + dst[3]*(1-a)
	}
}

func (c *imageCanvas) raster() ComposedRaster {
	if c.paletted && c.palette != nil && !slices.Contains(c.painted, false) {
		return &ImageRaster{
			Width:      c.width,
			Height:     c.height,
			BandCount:  1,
			ColorModel: ColorModelPaletteIndexed,
			Palette:    c.palette,
			Pix:        c.indices,
		}
	}

	colorModel := c.colorModel
	if colorModel == ColorModelUnspecified || colorModel == ColorModelPaletteIndexed {
		colorModel = ColorModelRGBA
	}
	bandCount := colorModel.BandCount()
	pix := make([]byte, c.width*c.height*bandCount)
	for i := range c.width * c.height {
		src := c.pix[4*i : 4*i+4]
		r, g, b, a := src[0], src[1], src[2], src[3]
		if a > 0 {
			r, g, b = r/a, g/a, b/a
		}
		dst := pix[i*bandCount : (i+1)*bandCount]
		switch colorModel {
		case ColorModelRGB:
			dst[0], dst[1], dst[2] = to8(r), to8(g), to8(b)
		case ColorModelRGBA:
			dst[0], dst[1], dst[2], dst[3] = to8(r), to8(g), to8(b), to8(a)
		case ColorModelGrayscale:
			dst[0] = to8(luminance(r, g, b))
		case ColorModelGrayscaleAlpha:
			dst[0], dst[1] = to8(luminance(r, g, b)), to8(a)
		}
	}
	return &ImageRaster{
		Width:      c.width,
		Height:     c.height,
		BandCount:  bandCount,
		ColorModel: colorModel,
		Pix:        pix,
	}
}

func samePalette(p, q color.Palette) bool {
	return slices.EqualFunc(p, q, func(c1, c2 color.Color) bool {
		r1, g1, b1, a1 := c1.RGBA()
		r2, g2, b2, a2 := c2.RGBA()
		return r1 == r2 && g1 == g2 && b1 == b2 && a1 == a2
	})
}

func allEqual(samples []float32, value float32) bool {
	for _, sample := range samples {
		if sample != value {
			return false
		}
	}
	return true
}

func luminance(r, g, b float32) float32 {
	return 0.299*r + 0.587*g + 0.114*b
}

func unit(x float32) float32 {
	return max(0, min(1, x))
}

func to8(x float32) uint8 {
	return uint8(math.Round(float64(unit(x)) * 0xff))
}
