package mosaic

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"io/fs"
	"math"
	"path"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/tiff"
	_ "github.com/google/tiff/bigtiff"
	_ "github.com/google/tiff/geotiff"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/maypok86/otter/v2"
	"golang.org/x/image/tiff/lzw"
)

// TIFF tags read directly from IFDs because their type varies between
// SHORT, LONG, and LONG8.
const (
	tagNewSubfileType  = 254
	tagImageWidth      = 256
	tagImageLength     = 257
	tagStripOffsets    = 273
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagTileWidth       = 322
	tagTileLength      = 323
	tagTileOffsets     = 324
	tagTileByteCounts  = 325
)

// TIFF field types.
const (
	fieldTypeByte  = 1
	fieldTypeShort = 3
	fieldTypeLong  = 4
	fieldTypeIFD   = 13
	fieldTypeLong8 = 16
	fieldTypeIFD8  = 18
)

const (
	compressionNone       = 1
	compressionLZW        = 5
	compressionDeflate    = 8
	compressionDeflateOld = 32946

	photometricWhiteIsZero = 0
	photometricBlackIsZero = 1
	photometricRGB         = 2
	photometricPalette     = 3

	predictorNone       = 1
	predictorHorizontal = 2

	sampleFormatUint  = 1
	sampleFormatInt   = 2
	sampleFormatFloat = 3

	subfileTypeReducedImage = 1
	subfileTypeMask         = 4
)

const (
	defaultBlockCacheSizeBytes = 128 << 20 // 128MB.
	defaultLayoutCacheSize     = 32
	typicalBlockSizeBytes      = 256 * 256 * 4
)

var (
	errShortRead = errors.New("short read")

	nextLayoutID atomic.Uint64
)

// A geoTIFFIFD is a struct into which github.com/google/tiff can unmarshal an
// IFD.
type geoTIFFIFD struct {
	BitsPerSample             []uint16  `tiff:"field,tag=258"`
	Compression               uint16    `tiff:"field,tag=259"`
	PhotometricInterpretation uint16    `tiff:"field,tag=262"`
	SamplesPerPixel           uint16    `tiff:"field,tag=277"`
	PlanarConfiguration       uint16    `tiff:"field,tag=284"`
	Predictor                 uint16    `tiff:"field,tag=317"`
	ColorMap                  []uint16  `tiff:"field,tag=320"`
	SampleFormat              []uint16  `tiff:"field,tag=339"`
	ModelPixelScaleTag        []float64 `tiff:"field,tag=33550"`
	ModelTiepointTag          []float64 `tiff:"field,tag=33922"`
	ModelTransformationTag    []float64 `tiff:"field,tag=34264"`
	GeoKeyDirectoryTag        []uint16  `tiff:"field,tag=34735"`
	GeoDoubleParamsTag        []float64 `tiff:"field,tag=34736"`
	GeoASCIIParamsTag         string    `tiff:"field,tag=34737"`
	GDALNoData                string    `tiff:"field,tag=42113"`
}

// A geoTIFFLevel is a single pyramid level of a GeoTIFF file, stored in one
// IFD.
type geoTIFFLevel struct {
	width           int
	height          int
	blockWidth      int
	blockHeight     int
	blocksAcross    int
	blocksDown      int
	offsets         []uint64
	byteCounts      []uint64
	compression     int
	predictor       int
	samplesPerPixel int
	bytesPerSample  int
	dataType        DataType
	subfileType     uint64
	tiled           bool
}

// A geoTIFFLayout is the parsed structure of a GeoTIFF file. It is immutable
// and shared between handles.
type geoTIFFLayout struct {
	id              uint64
	modTime         time.Time
	size            int64
	byteOrder       binary.ByteOrder
	levels          []*geoTIFFLevel // Full resolution first.
	geoTransform    GeoTransform
	hasGeoTransform bool
	kind            CoordinateSystemKind
	srid            int
	noData          *float64
	pixelFormat     PixelFormat
	colorModel      ColorModelKind
	palette         color.Palette
}

type blockKey struct {
	layoutID uint64
	level    int
	block    int
}

// A GeoTIFFReader reads tiled and stripped GeoTIFF and BigTIFF files. It is
// safe for concurrent use. Layouts are cached by path, so a GeoTIFFReader
// should only be used with a single filesystem.
type GeoTIFFReader struct {
	mutex               sync.Mutex
	blockCacheSizeBytes int
	layoutCacheSize     int
	layouts             *lru.Cache[string, *geoTIFFLayout]
	blocks              *otter.Cache[blockKey, []float32]
}

// A GeoTIFFReaderOption sets an option on a GeoTIFFReader.
type GeoTIFFReaderOption func(*GeoTIFFReader)

// WithBlockCacheSize sets the approximate size of the decoded block cache in
// bytes.
func WithBlockCacheSize(blockCacheSizeBytes int) GeoTIFFReaderOption {
	return func(r *GeoTIFFReader) {
		r.blockCacheSizeBytes = blockCacheSizeBytes
	}
}

// WithLayoutCacheSize sets the number of parsed file layouts to cache.
func WithLayoutCacheSize(layoutCacheSize int) GeoTIFFReaderOption {
	return func(r *GeoTIFFReader) {
		r.layoutCacheSize = layoutCacheSize
	}
}

// NewGeoTIFFReader returns a new GeoTIFFReader.
func NewGeoTIFFReader(options ...GeoTIFFReaderOption) (*GeoTIFFReader, error) {
	r := &GeoTIFFReader{
		blockCacheSizeBytes: defaultBlockCacheSizeBytes,
		layoutCacheSize:     defaultLayoutCacheSize,
	}
	for _, option := range options {
		option(r)
	}

	var err error
	r.layouts, err = lru.New[string, *geoTIFFLayout](max(r.layoutCacheSize, 1))
	if err != nil {
		return nil, err
	}
	r.blocks, err = otter.New(&otter.Options[blockKey, []float32]{
		MaximumSize: max(r.blockCacheSizeBytes/typicalBlockSizeBytes, 1),
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (r *GeoTIFFReader) Name() string {
	return "geotiff"
}

// CanRead returns true if source has a TIFF extension and starts with a TIFF
// or BigTIFF header.
func (r *GeoTIFFReader) CanRead(ctx context.Context, source Source) bool {
	switch strings.ToLower(path.Ext(source.Path)) {
	case ".tif", ".tiff", ".gtif", ".gtiff":
	default:
		return false
	}
	file, err := source.FS.Open(source.Path)
	if err != nil {
		return false
	}
	defer file.Close()
	var header [4]byte
	if _, err := io.ReadFull(file, header[:]); err != nil {
		return false
	}
	_, ok := tiffByteOrder(header[:])
	return ok
}

func (r *GeoTIFFReader) ReadMetadata(ctx context.Context, source Source) (*Metadata, error) {
	layout, err := r.getLayoutCached(source)
	if err != nil {
		return nil, err
	}
	info, err := r.handleInfo(layout, source)
	if err != nil {
		return nil, err
	}
	return metadataFromInfo(info), nil
}

func (r *GeoTIFFReader) Open(ctx context.Context, source Source) (Handle, error) {
	layout, err := r.getLayoutCached(source)
	if err != nil {
		return nil, err
	}
	info, err := r.handleInfo(layout, source)
	if err != nil {
		return nil, err
	}
	closer, readerAt, err := openReadAtSeeker(source.FS, source.Path)
	if err != nil {
		return nil, err
	}
	return &geoTIFFHandle{
		reader:   r,
		layout:   layout,
		closer:   closer,
		readerAt: readerAt,
		info:     info,
	}, nil
}

// getLayoutCached returns the layout of source, using r's cache if the file
// has not changed.
func (r *GeoTIFFReader) getLayoutCached(source Source) (*geoTIFFLayout, error) {
	fileInfo, err := fs.Stat(source.FS, source.Path)
	if err != nil {
		return nil, err
	}
	fresh := func(layout *geoTIFFLayout) bool {
		return layout.modTime.Equal(fileInfo.ModTime()) && layout.size == fileInfo.Size()
	}

	if layout, ok := r.layouts.Get(source.Path); ok && fresh(layout) {
		layoutCacheHits.Inc()
		return layout, nil
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if layout, ok := r.layouts.Get(source.Path); ok && fresh(layout) {
		layoutCacheHits.Inc()
		return layout, nil
	}

	layoutCacheMisses.Inc()

	layout, err := parseGeoTIFFLayout(source.FS, source.Path)
	if err != nil {
		return nil, err
	}
	layout.modTime = fileInfo.ModTime()
	layout.size = fileInfo.Size()

	if eviction := r.layouts.Add(source.Path, layout); eviction {
		layoutCacheEvictions.Inc()
	}

	return layout, nil
}

// handleInfo returns the HandleInfo of layout with source's overrides
// applied.
func (r *GeoTIFFReader) handleInfo(layout *geoTIFFLayout, source Source) (*HandleInfo, error) {
	base := layout.levels[0]
	info := &HandleInfo{
		Width:       base.width,
		Height:      base.height,
		DataType:    base.dataType,
		BandCount:   base.samplesPerPixel,
		NoData:      layout.noData,
		PixelFormat: layout.pixelFormat,
		ColorModel:  layout.colorModel,
		Palette:     layout.palette,
	}
	for _, level := range layout.levels[1:] {
		info.Overviews = append(info.Overviews, Size{Width: level.width, Height: level.height})
	}
	if source.PixelFormat != PixelFormatUnspecified {
		info.PixelFormat = source.PixelFormat
	}
	if source.NoData != nil {
		info.NoData = source.NoData
	}

	if err := georeference(info, source, layout.geoTransform, layout.hasGeoTransform, layout.kind, layout.srid); err != nil {
		return nil, err
	}
	return info, nil
}

// parseGeoTIFFLayout parses the structure of the GeoTIFF file name in fsys.
func parseGeoTIFFLayout(fsys fs.FS, name string) (*geoTIFFLayout, error) {
	closer, readAtSeeker, err := openReadAtSeeker(fsys, name)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	var header [4]byte
	if _, err := readAtSeeker.ReadAt(header[:], 0); err != nil {
		return nil, err
	}
	byteOrder, ok := tiffByteOrder(header[:])
	if !ok {
		return nil, fmt.Errorf("%w: not a TIFF file", ErrSourceUnreadable)
	}

	tiffTIFF, err := tiff.Parse(readAtSeeker, tiff.GetTagSpace("GeoTIFF"), nil)
	if err != nil {
		return nil, err
	}
	ifds := tiffTIFF.IFDs()
	if len(ifds) == 0 {
		return nil, fmt.Errorf("%w: no IFDs", ErrSourceUnreadable)
	}

	var ifd geoTIFFIFD
	if err := tiff.UnmarshalIFD(ifds[0], &ifd); err != nil {
		return nil, err
	}
	base, err := parseGeoTIFFLevel(ifds[0], &ifd)
	if err != nil {
		return nil, err
	}

	layout := &geoTIFFLayout{
		id:        nextLayoutID.Add(1),
		byteOrder: byteOrder,
		levels:    []*geoTIFFLevel{base},
	}

	for _, overviewIFD := range ifds[1:] {
		var overviewGeoTIFFIFD geoTIFFIFD
		if err := tiff.UnmarshalIFD(overviewIFD, &overviewGeoTIFFIFD); err != nil {
			continue
		}
		level, err := parseGeoTIFFLevel(overviewIFD, &overviewGeoTIFFIFD)
		if err != nil ||
			level.subfileType&subfileTypeMask != 0 ||
			level.samplesPerPixel != base.samplesPerPixel ||
			level.dataType != base.dataType ||
			level.width >= base.width {
			continue
		}
		layout.levels = append(layout.levels, level)
	}
	slices.SortStableFunc(layout.levels[1:], func(a, b *geoTIFFLevel) int {
		return b.width - a.width
	})

	if err := layout.parseGeoreferencing(&ifd); err != nil {
		return nil, err
	}
	layout.parseColor(&ifd, base)

	if noDataStr := strings.TrimSpace(strings.TrimRight(ifd.GDALNoData, "\x00")); noDataStr != "" {
		noData, err := strconv.ParseFloat(noDataStr, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: GDAL_NODATA: %w", ErrSourceUnreadable, err)
		}
		layout.noData = &noData
	}

	return layout, nil
}

// parseGeoreferencing sets l's geo-transform and coordinate system from ifd.
func (l *geoTIFFLayout) parseGeoreferencing(ifd *geoTIFFIFD) error {
	switch {
	case len(ifd.ModelTransformationTag) == 16:
		m := ifd.ModelTransformationTag
		l.geoTransform = GeoTransform{m[3], m[0], m[1], m[7], m[4], m[5]}
		l.hasGeoTransform = true
	case len(ifd.ModelPixelScaleTag) >= 2 && len(ifd.ModelTiepointTag) >= 6:
		scaleX, scaleY := ifd.ModelPixelScaleTag[0], ifd.ModelPixelScaleTag[1]
		i, j := ifd.ModelTiepointTag[0], ifd.ModelTiepointTag[1]
		x, y := ifd.ModelTiepointTag[3], ifd.ModelTiepointTag[4]
		l.geoTransform = GeoTransform{
			x - i*scaleX, scaleX, 0,
			y + j*scaleY, 0, -scaleY,
		}
		l.hasGeoTransform = true
	}

	if len(ifd.GeoKeyDirectoryTag) == 0 {
		return nil
	}
	parsedGeoKeys, err := ParseGeoKeys(ifd.GeoKeyDirectoryTag, ifd.GeoDoubleParamsTag, []byte(ifd.GeoASCIIParamsTag))
	if err != nil {
		return err
	}
	l.kind, l.srid = parsedGeoKeys.CoordinateSystem()
	if l.hasGeoTransform && parsedGeoKeys.PixelIsPoint() {
		// Tie points locate pixel centers.
		l.geoTransform[0] -= (l.geoTransform[1] + l.geoTransform[2]) / 2
		l.geoTransform[3] -= (l.geoTransform[4] + l.geoTransform[5]) / 2
	}
	return nil
}

// parseColor sets l's pixel format, color model, and palette.
func (l *geoTIFFLayout) parseColor(ifd *geoTIFFIFD, base *geoTIFFLevel) {
	switch {
	case ifd.PhotometricInterpretation == photometricPalette && base.samplesPerPixel == 1:
		l.colorModel = ColorModelPaletteIndexed
		if n := 1 << (8 * base.bytesPerSample); len(ifd.ColorMap) == 3*n && n <= 256 {
			l.palette = make(color.Palette, n)
			for i := range n {
				l.palette[i] = color.RGBA64{
					R: ifd.ColorMap[i],
					G: ifd.ColorMap[n+i],
					B: ifd.ColorMap[2*n+i],
					A: 0xffff,
				}
			}
		}
	case ifd.PhotometricInterpretation == photometricRGB && base.samplesPerPixel >= 4:
		l.colorModel = ColorModelRGBA
	case ifd.PhotometricInterpretation == photometricRGB && base.samplesPerPixel == 3:
		l.colorModel = ColorModelRGB
	default:
		l.colorModel = colorModelForBands(min(base.samplesPerPixel, 4))
	}

	switch {
	case l.colorModel == ColorModelPaletteIndexed || base.samplesPerPixel >= 3:
		l.pixelFormat = PixelFormatImage
	case base.dataType == DataTypeByte && (ifd.PhotometricInterpretation == photometricBlackIsZero || ifd.PhotometricInterpretation == photometricWhiteIsZero):
		l.pixelFormat = PixelFormatImage
	default:
		l.pixelFormat = PixelFormatElevation
	}
}

// parseGeoTIFFLevel parses the image structure of a single IFD.
func parseGeoTIFFLevel(tiffIFD tiff.IFD, ifd *geoTIFFIFD) (*geoTIFFLevel, error) {
	level := &geoTIFFLevel{
		width:           int(ifdUint(tiffIFD, tagImageWidth, 0)),
		height:          int(ifdUint(tiffIFD, tagImageLength, 0)),
		compression:     int(ifd.Compression),
		predictor:       int(ifd.Predictor),
		samplesPerPixel: max(int(ifd.SamplesPerPixel), 1),
		subfileType:     ifdUint(tiffIFD, tagNewSubfileType, 0),
	}
	if level.width <= 0 || level.height <= 0 {
		return nil, fmt.Errorf("%w: invalid image size", ErrSourceUnreadable)
	}
	if level.compression == 0 {
		level.compression = compressionNone
	}
	if level.predictor == 0 {
		level.predictor = predictorNone
	}
	if ifd.PlanarConfiguration == 2 && level.samplesPerPixel > 1 {
		return nil, fmt.Errorf("planar configuration 2: %w", errors.ErrUnsupported)
	}

	bitsPerSample := 1
	if len(ifd.BitsPerSample) > 0 {
		bitsPerSample = int(ifd.BitsPerSample[0])
		for _, bits := range ifd.BitsPerSample[1:] {
			if int(bits) != bitsPerSample {
				return nil, fmt.Errorf("mixed bits per sample: %w", errors.ErrUnsupported)
			}
		}
	}
	sampleFormat := sampleFormatUint
	if len(ifd.SampleFormat) > 0 {
		sampleFormat = int(ifd.SampleFormat[0])
	}
	level.dataType = tiffDataType(sampleFormat, bitsPerSample)
	if level.dataType == DataTypeUnknown {
		return nil, fmt.Errorf("sample format %d with %d bits: %w", sampleFormat, bitsPerSample, errors.ErrUnsupported)
	}
	level.bytesPerSample = level.dataType.Size()

	if tiffIFD.HasField(tagTileWidth) {
		level.tiled = true
		level.blockWidth = int(ifdUint(tiffIFD, tagTileWidth, 0))
		level.blockHeight = int(ifdUint(tiffIFD, tagTileLength, 0))
		level.offsets = ifdUints(tiffIFD, tagTileOffsets)
		level.byteCounts = ifdUints(tiffIFD, tagTileByteCounts)
	} else {
		level.blockWidth = level.width
		level.blockHeight = min(int(ifdUint(tiffIFD, tagRowsPerStrip, uint64(level.height))), level.height)
		level.offsets = ifdUints(tiffIFD, tagStripOffsets)
		level.byteCounts = ifdUints(tiffIFD, tagStripByteCounts)
	}
	if level.blockWidth <= 0 || level.blockHeight <= 0 {
		return nil, fmt.Errorf("%w: invalid block size", ErrSourceUnreadable)
	}
	level.blocksAcross = (level.width + level.blockWidth - 1) / level.blockWidth
	level.blocksDown = (level.height + level.blockHeight - 1) / level.blockHeight
	blocksPerImage := level.blocksAcross * level.blocksDown
	if len(level.offsets) != blocksPerImage || len(level.byteCounts) != blocksPerImage {
		return nil, fmt.Errorf("%w: incorrect number of block byte counts or offsets", ErrSourceUnreadable)
	}
	return level, nil
}

func tiffDataType(sampleFormat, bitsPerSample int) DataType {
	switch {
	case sampleFormat == sampleFormatUint && bitsPerSample == 8:
		return DataTypeByte
	case sampleFormat == sampleFormatInt && bitsPerSample == 8:
		return DataTypeInt8
	case sampleFormat == sampleFormatUint && bitsPerSample == 16:
		return DataTypeUInt16
	case sampleFormat == sampleFormatInt && bitsPerSample == 16:
		return DataTypeInt16
	case sampleFormat == sampleFormatUint && bitsPerSample == 32:
		return DataTypeUInt32
	case sampleFormat == sampleFormatInt && bitsPerSample == 32:
		return DataTypeInt32
	case sampleFormat == sampleFormatFloat && bitsPerSample == 32:
		return DataTypeFloat32
	case sampleFormat == sampleFormatFloat && bitsPerSample == 64:
		return DataTypeFloat64
	default:
		return DataTypeUnknown
	}
}

// ifdUints returns the values of an unsigned integer field of any width.
func ifdUints(ifd tiff.IFD, tagID uint16) []uint64 {
	if !ifd.HasField(tagID) {
		return nil
	}
	field := ifd.GetField(tagID)
	value := field.Value()
	order := value.Order()
	data := value.Bytes()
	count := int(field.Count())
	var size int
	switch field.Type().ID() {
	case fieldTypeByte:
		size = 1
	case fieldTypeShort:
		size = 2
	case fieldTypeLong, fieldTypeIFD:
		size = 4
	case fieldTypeLong8, fieldTypeIFD8:
		size = 8
	default:
		return nil
	}
	if len(data) < count*size {
		return nil
	}
	values := make([]uint64, count)
	for i := range values {
		b := data[i*size : (i+1)*size]
		switch size {
		case 1:
			values[i] = uint64(b[0])
		case 2:
			values[i] = uint64(order.Uint16(b))
		case 4:
			values[i] = uint64(order.Uint32(b))
		case 8:
			values[i] = order.Uint64(b)
		}
	}
	return values
}

// ifdUint returns the first value of an unsigned integer field, or
// defaultValue if it is absent.
func ifdUint(ifd tiff.IFD, tagID uint16, defaultValue uint64) uint64 {
	if values := ifdUints(ifd, tagID); len(values) > 0 {
		return values[0]
	}
	return defaultValue
}

func tiffByteOrder(header []byte) (binary.ByteOrder, bool) {
	switch {
	case len(header) < 4:
		return nil, false
	case header[0] == 'I' && header[1] == 'I' && (header[2] == 42 || header[2] == 43) && header[3] == 0:
		return binary.LittleEndian, true
	case header[0] == 'M' && header[1] == 'M' && header[2] == 0 && (header[3] == 42 || header[3] == 43):
		return binary.BigEndian, true
	default:
		return nil, false
	}
}

type readAtSeeker interface {
	io.ReaderAt
	io.ReadSeeker
}

// openReadAtSeeker opens name in fsys for random access. Files that do not
// support random access are read into memory.
func openReadAtSeeker(fsys fs.FS, name string) (io.Closer, readAtSeeker, error) {
	file, err := fsys.Open(name)
	if err != nil {
		return nil, nil, err
	}
	if r, ok := file.(readAtSeeker); ok {
		return file, r, nil
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, nil, err
	}
	return io.NopCloser(nil), bytes.NewReader(data), nil
}

// A geoTIFFHandle is an open GeoTIFF file.
type geoTIFFHandle struct {
	reader   *GeoTIFFReader
	layout   *geoTIFFLayout
	closer   io.Closer
	readerAt io.ReaderAt
	info     *HandleInfo
}

func (h *geoTIFFHandle) Info() *HandleInfo {
	return h.info
}

func (h *geoTIFFHandle) Close() error {
	return h.closer.Close()
}

func (h *geoTIFFHandle) ReadWindow(ctx context.Context, levelIndex int, rect image.Rectangle) (*Window, error) {
	if levelIndex < 0 || levelIndex >= len(h.layout.levels) {
		return nil, fmt.Errorf("%w: level %d", ErrInvalidArgument, levelIndex)
	}
	level := h.layout.levels[levelIndex]
	if rect.Empty() || !rect.In(image.Rect(0, 0, level.width, level.height)) {
		return nil, fmt.Errorf("%w: window %v outside %dx%d", ErrInvalidArgument, rect, level.width, level.height)
	}

	spp := level.samplesPerPixel
	window := NewWindow(rect, spp)
	for r := rect.Min.Y / level.blockHeight; r <= (rect.Max.Y-1)/level.blockHeight; r++ {
		for c := rect.Min.X / level.blockWidth; c <= (rect.Max.X-1)/level.blockWidth; c++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			blockSamples, err := h.getBlockSamplesCached(ctx, levelIndex, c+level.blocksAcross*r)
			if err != nil {
				return nil, err
			}
			blockRect := image.Rect(
				c*level.blockWidth, r*level.blockHeight,
				(c+1)*level.blockWidth, (r+1)*level.blockHeight,
			)
			intersection := rect.Intersect(blockRect)
			n := intersection.Dx() * spp
			for y := intersection.Min.Y; y < intersection.Max.Y; y++ {
				src := ((y-blockRect.Min.Y)*level.blockWidth + intersection.Min.X - blockRect.Min.X) * spp
				dst := window.Offset(intersection.Min.X, y)
				copy(window.Samples[dst:dst+n], blockSamples[src:src+n])
			}
		}
	}
	return window, nil
}

// getBlockSamplesCached returns the decoded samples of a block using the
// reader's cache.
func (h *geoTIFFHandle) getBlockSamplesCached(ctx context.Context, level, block int) ([]float32, error) {
	key := blockKey{
		layoutID: h.layout.id,
		level:    level,
		block:    block,
	}
	if blockSamples, ok := h.reader.blocks.GetIfPresent(key); ok {
		blockCacheHits.Inc()
		return blockSamples, nil
	}
	blockCacheMisses.Inc()
	return h.reader.blocks.Get(ctx, key, otter.LoaderFunc[blockKey, []float32](h.getBlockSamples))
}

// getBlockSamples reads, decompresses, and decodes a block.
func (h *geoTIFFHandle) getBlockSamples(ctx context.Context, key blockKey) ([]float32, error) {
	level := h.layout.levels[key.level]
	spp := level.samplesPerPixel
	blockSamples := make([]float32, level.blockWidth*level.blockHeight*spp)

	// The last strip may be short. Tiles are always padded.
	rows := level.blockHeight
	if !level.tiled {
		rows = min(rows, level.height-(key.block/level.blocksAcross)*level.blockHeight)
	}
	sampleCount := level.blockWidth * rows * spp

	byteCount := level.byteCounts[key.block]
	if byteCount == 0 {
		// Sparse block.
		if h.info.NoData != nil {
			fillNoData(blockSamples, float32(*h.info.NoData))
		}
		return blockSamples, nil
	}

	compressedData := make([]byte, byteCount)
	if n, err := h.readerAt.ReadAt(compressedData, int64(level.offsets[key.block])); n != int(byteCount) {
		if err == nil {
			err = errShortRead
		}
		return nil, err
	}

	blockData, err := decompressBlockData(level.compression, compressedData, sampleCount*level.bytesPerSample)
	if err != nil {
		return nil, err
	}
	if level.predictor == predictorHorizontal {
		if err := undoHorizontalDifferencing(blockData, level.blockWidth, spp, level.bytesPerSample, h.layout.byteOrder); err != nil {
			return nil, err
		}
	} else if level.predictor != predictorNone {
		return nil, fmt.Errorf("predictor %d: %w", level.predictor, errors.ErrUnsupported)
	}
	decodeSamples(blockSamples[:sampleCount], blockData, level.dataType, h.layout.byteOrder)
	return blockSamples, nil
}

// decompressBlockData decompresses compressedData into size bytes.
func decompressBlockData(compression int, compressedData []byte, size int) ([]byte, error) {
	var r io.Reader
	switch compression {
	case compressionNone:
		if len(compressedData) < size {
			return nil, errShortRead
		}
		return compressedData[:size], nil
	case compressionLZW:
		lzwReader := lzw.NewReader(bytes.NewReader(compressedData), lzw.MSB, 8)
		defer lzwReader.Close()
		r = lzwReader
	case compressionDeflate, compressionDeflateOld:
		zlibReader, err := zlib.NewReader(bytes.NewReader(compressedData))
		if err != nil {
			return nil, err
		}
		defer zlibReader.Close()
		r = zlibReader
	default:
		return nil, fmt.Errorf("compression %d: %w", compression, errors.ErrUnsupported)
	}
	blockData := make([]byte, size)
	if _, err := io.ReadFull(r, blockData); err != nil {
		return nil, err
	}
	return blockData, nil
}

// undoHorizontalDifferencing reverses TIFF predictor 2 in place.
func undoHorizontalDifferencing(data []byte, width, spp, bytesPerSample int, byteOrder binary.ByteOrder) error {
	rowSamples := width * spp
	rowBytes := rowSamples * bytesPerSample
	for rowStart := 0; rowStart+rowBytes <= len(data); rowStart += rowBytes {
		row := data[rowStart : rowStart+rowBytes]
		for i := spp; i < rowSamples; i++ {
			switch bytesPerSample {
			case 1:
				row[i] += row[i-spp]
			case 2:
				byteOrder.PutUint16(row[2*i:], byteOrder.Uint16(row[2*i:])+byteOrder.Uint16(row[2*(i-spp):]))
			case 4:
				byteOrder.PutUint32(row[4*i:], byteOrder.Uint32(row[4*i:])+byteOrder.Uint32(row[4*(i-spp):]))
			case 8:
				byteOrder.PutUint64(row[8*i:], byteOrder.Uint64(row[8*i:])+byteOrder.Uint64(row[8*(i-spp):]))
			default:
				return fmt.Errorf("predictor with %d byte samples: %w", bytesPerSample, errors.ErrUnsupported)
			}
		}
	}
	return nil
}

// decodeSamples decodes data into samples.
func decodeSamples(samples []float32, data []byte, dataType DataType, byteOrder binary.ByteOrder) {
	size := dataType.Size()
	for i := range samples {
		b := data[i*size : (i+1)*size]
		switch dataType {
		case DataTypeByte:
			samples[i] = float32(b[0])
		case DataTypeInt8:
			samples[i] = float32(int8(b[0]))
		case DataTypeUInt16:
			samples[i] = float32(byteOrder.Uint16(b))
		case DataTypeInt16:
			samples[i] = float32(int16(byteOrder.Uint16(b)))
		case DataTypeUInt32:
			samples[i] = float32(byteOrder.Uint32(b))
		case DataTypeInt32:
			samples[i] = float32(int32(byteOrder.Uint32(b)))
		case DataTypeFloat32:
			samples[i] = math.Float32frombits(byteOrder.Uint32(b))
		case DataTypeFloat64:
			samples[i] = float32(math.Float64frombits(byteOrder.Uint64(b)))
		}
	}
}
