package mosaic_test

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"math"
	"slices"
)

// TIFF field types used by testTIFFWriter.
const (
	testTIFFShort  = 3
	testTIFFLong   = 4
	testTIFFASCII  = 2
	testTIFFDouble = 12
)

// A testTIFFEntry is a single IFD entry.
type testTIFFEntry struct {
	tag       uint16
	fieldType uint16
	count     uint32
	data      []byte
}

func shortEntry(tag uint16, values ...uint16) testTIFFEntry {
	data := make([]byte, 2*len(values))
	for i, value := range values {
		binary.LittleEndian.PutUint16(data[2*i:], value)
	}
	return testTIFFEntry{tag: tag, fieldType: testTIFFShort, count: uint32(len(values)), data: data}
}

func longEntry(tag uint16, values ...uint32) testTIFFEntry {
	data := make([]byte, 4*len(values))
	for i, value := range values {
		binary.LittleEndian.PutUint32(data[4*i:], value)
	}
	return testTIFFEntry{tag: tag, fieldType: testTIFFLong, count: uint32(len(values)), data: data}
}

func doubleEntry(tag uint16, values ...float64) testTIFFEntry {
	data := make([]byte, 8*len(values))
	for i, value := range values {
		binary.LittleEndian.PutUint64(data[8*i:], math.Float64bits(value))
	}
	return testTIFFEntry{tag: tag, fieldType: testTIFFDouble, count: uint32(len(values)), data: data}
}

func asciiEntry(tag uint16, value string) testTIFFEntry {
	data := append([]byte(value), 0)
	return testTIFFEntry{tag: tag, fieldType: testTIFFASCII, count: uint32(len(data)), data: data}
}

// geographicGeoKeys returns GeoKey directory entries for EPSG:4326.
func geographicGeoKeys() testTIFFEntry {
	return shortEntry(34735,
		1, 1, 0, 3,
		1024, 0, 1, 2, // GTModelTypeGeoKey: geographic.
		1025, 0, 1, 1, // GTRasterTypeGeoKey: pixel is area.
		2048, 0, 1, 4326, // GeographicTypeGeoKey.
	)
}

// A testTIFFWriter writes little-endian classic TIFF files.
type testTIFFWriter struct {
	buf     bytes.Buffer
	nextIFD int
}

func newTestTIFFWriter() *testTIFFWriter {
	w := &testTIFFWriter{}
	w.buf.Write([]byte{'I', 'I', 42, 0, 0, 0, 0, 0})
	w.nextIFD = 4
	return w
}

// writeData writes data and returns its offset.
func (w *testTIFFWriter) writeData(data []byte) uint32 {
	if w.buf.Len()%2 != 0 {
		w.buf.WriteByte(0)
	}
	offset := uint32(w.buf.Len())
	w.buf.Write(data)
	return offset
}

// writeBlocks writes each block and returns the offsets and byte counts
// entries.
func (w *testTIFFWriter) writeBlocks(offsetsTag, byteCountsTag uint16, blocks [][]byte) []testTIFFEntry {
	offsets := make([]uint32, len(blocks))
	byteCounts := make([]uint32, len(blocks))
	for i, block := range blocks {
		if len(block) == 0 {
			continue
		}
		offsets[i] = w.writeData(block)
		byteCounts[i] = uint32(len(block))
	}
	return []testTIFFEntry{
		longEntry(offsetsTag, offsets...),
		longEntry(byteCountsTag, byteCounts...),
	}
}

// writeIFD writes an IFD and links it from the previous one.
func (w *testTIFFWriter) writeIFD(entries []testTIFFEntry) {
	entries = slices.Clone(entries)
	slices.SortFunc(entries, func(a, b testTIFFEntry) int {
		return int(a.tag) - int(b.tag)
	})
	values := make([][]byte, len(entries))
	for i, entry := range entries {
		if len(entry.data) > 4 {
			values[i] = binary.LittleEndian.AppendUint32(nil, w.writeData(entry.data))
		} else {
			values[i] = append(slices.Clone(entry.data), make([]byte, 4-len(entry.data))...)
		}
	}
	if w.buf.Len()%2 != 0 {
		w.buf.WriteByte(0)
	}
	offset := uint32(w.buf.Len())
	binary.LittleEndian.PutUint32(w.buf.Bytes()[w.nextIFD:], offset)

	var ifd []byte
	ifd = binary.LittleEndian.AppendUint16(ifd, uint16(len(entries)))
	for i, entry := range entries {
		ifd = binary.LittleEndian.AppendUint16(ifd, entry.tag)
		ifd = binary.LittleEndian.AppendUint16(ifd, entry.fieldType)
		ifd = binary.LittleEndian.AppendUint32(ifd, entry.count)
		ifd = append(ifd, values[i]...)
	}
	w.buf.Write(ifd)
	w.nextIFD = w.buf.Len()
	w.buf.Write([]byte{0, 0, 0, 0})
}

func (w *testTIFFWriter) bytes() []byte {
	return w.buf.Bytes()
}

func int16Samples(width, height int, sample func(x, y int) int16) []byte {
	data := make([]byte, 0, 2*width*height)
	for y := range height {
		for x := range width {
			data = binary.LittleEndian.AppendUint16(data, uint16(sample(x, y)))
		}
	}
	return data
}

// horizontalDifferences applies TIFF predictor 2 to rows of uint16 samples.
func horizontalDifferences(data []byte, width int) []byte {
	result := slices.Clone(data)
	for rowStart := 0; rowStart < len(data); rowStart += 2 * width {
		for x := width - 1; x > 0; x-- {
			i := rowStart + 2*x
			value := binary.LittleEndian.Uint16(data[i:]) - binary.LittleEndian.Uint16(data[i-2:])
			binary.LittleEndian.PutUint16(result[i:], value)
		}
	}
	return result
}

func deflate(data []byte) []byte {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, _ = w.Write(data)
	_ = w.Close()
	return buf.Bytes()
}
