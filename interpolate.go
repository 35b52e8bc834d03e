package mosaic

import (
	"image"
	"math"
)

// A bilinearKernel is the four pixels surrounding a point and the point's
// fractional position between them. Pixel centers lie at half-integer
// coordinates.
type bilinearKernel struct {
	x0, y0 int
	x1, y1 int
	dx, dy float64
}

// newBilinearKernel returns the kernel for the pixel-space coordinate (x, y).
// Pixels outside rect are clamped to its edge.
func newBilinearKernel(rect image.Rectangle, x, y float64) bilinearKernel {
	fx, fy := x-0.5, y-0.5
	x0, y0 := math.Floor(fx), math.Floor(fy)
	k := bilinearKernel{
		x0: clampInt(int(x0), rect.Min.X, rect.Max.X-1),
		y0: clampInt(int(y0), rect.Min.Y, rect.Max.Y-1),
		x1: clampInt(int(x0)+1, rect.Min.X, rect.Max.X-1),
		y1: clampInt(int(y0)+1, rect.Min.Y, rect.Max.Y-1),
		dx: fx - x0,
		dy: fy - y0,
	}
	return k
}

// interpolate returns band of w interpolated with k.
func (k bilinearKernel) interpolate(w *Window, band int) float32 {
	return float32(0 +
		float64(w.At(k.x0, k.y0, band))*(1-k.dx)*(1-k.dy) +
		float64(w.At(k.x1, k.y0, band))*k.dx*(1-k.dy) +
		float64(w.At(k.x0, k.y1, band))*(1-k.dx)*k.dy +
		float64(w.At(k.x1, k.y1, band))*k.dx*k.dy)
}

// touches returns true if any of k's four pixels is nodata.
func (k bilinearKernel) touches(w *Window, noData float32) bool {
	return isNoDataPixel(w, k.x0, k.y0, noData) ||
		isNoDataPixel(w, k.x1, k.y0, noData) ||
		isNoDataPixel(w, k.x0, k.y1, noData) ||
		isNoDataPixel(w, k.x1, k.y1, noData)
}

// isNoDataPixel returns true if every band of pixel (x, y) equals noData.
func isNoDataPixel(w *Window, x, y int, noData float32) bool {
	offset := w.Offset(x, y)
	return allEqual(w.Samples[offset:offset+w.BandCount], noData)
}

// nearestPixel returns the pixel containing the pixel-space coordinate
// (x, y), clamped to rect.
func nearestPixel(rect image.Rectangle, x, y float64) (int, int) {
	return clampInt(int(math.Floor(x)), rect.Min.X, rect.Max.X-1),
		clampInt(int(math.Floor(y)), rect.Min.Y, rect.Max.Y-1)
}

// InterpolateBilinear returns band of w interpolated at each pixel-space
// coordinate in coords.
func InterpolateBilinear(w *Window, band int, coords [][]float64) []float64 {
	result := make([]float64, len(coords))
	for i, coord := range coords {
		result[i] = float64(newBilinearKernel(w.Rect, coord[0], coord[1]).interpolate(w, band))
	}
	return result
}

func clampInt(x, lo, hi int) int {
	switch {
	case x < lo:
		return lo
	case x > hi:
		return hi
	default:
		return x
	}
}
