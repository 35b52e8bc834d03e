//go:build gdal

package main

import (
	"github.com/twpayne/go-mosaic"
	"github.com/twpayne/go-mosaic/godalreader"
)

func gdalReaders(root string) []mosaic.RasterReader {
	return []mosaic.RasterReader{
		godalreader.New(godalreader.WithRoot(root)),
	}
}
