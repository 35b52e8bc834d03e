//go:build !gdal

package main

import "github.com/twpayne/go-mosaic"

func gdalReaders(string) []mosaic.RasterReader {
	return nil
}
