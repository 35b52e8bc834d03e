package mosaic

import (
	"context"
	"image"
	"math"
)

// Elevations returns the elevation at each of points, bilinearly
// interpolated from full resolution data. Each point is served by the last
// elevation source in catalog order that covers it and has data there.
// Points with no data are NaN.
func (c *Compositor) Elevations(ctx context.Context, points []LatLon) ([]float64, error) {
	result := make([]float64, len(points))
	for i := range result {
		result[i] = math.NaN()
	}

	descriptors := c.catalog.Descriptors()
	for i := len(descriptors) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		descriptor := descriptors[i]
		if descriptor.PixelFormat != PixelFormatElevation {
			continue
		}
		var indexes []int
		for j, point := range points {
			if math.IsNaN(result[j]) && descriptor.Sector.ContainsPoint(point) {
				indexes = append(indexes, j)
			}
		}
		if len(indexes) == 0 {
			continue
		}
		if err := c.sampleElevations(ctx, descriptor, points, indexes, result); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			compositionSourcesSkipped.Inc()
			c.logger.Warn("skipping source", "path", descriptor.Source.Path, "err", err)
		}
	}
	return result, nil
}

// sampleElevations sets result[i] for each i in indexes to the elevation of
// points[i] in descriptor. Points outside the source or on nodata are left
// unchanged.
func (c *Compositor) sampleElevations(ctx context.Context, descriptor *RasterDescriptor, points []LatLon, indexes []int, result []float64) error {
	handle, err := descriptor.Open(ctx)
	if err != nil {
		return err
	}
	defer handle.Close()
	info := handle.Info()

	transformer, err := newNativeTransformer(info.CoordinateSystem, info.SRID)
	if err != nil {
		return &SourceError{Path: descriptor.Source.Path, Err: err}
	}
	defer transformer.Close()

	coords := make([][]float64, len(indexes))
	for k, i := range indexes {
		coords[k] = []float64{points[i].Lon, points[i].Lat}
	}
	if err := transformer.Forward(coords); err != nil {
		return &SourceError{Path: descriptor.Source.Path, Err: err}
	}
	invGT, err := info.GeoTransform.Invert()
	if err != nil {
		return &SourceError{Path: descriptor.Source.Path, Err: err}
	}

	noData := descriptor.NoData
	if noData == nil {
		noData = info.NoData
	}
	bounds := image.Rect(0, 0, info.Width, info.Height)
	for k, i := range indexes {
		px, py := invGT.Apply(coords[k][0], coords[k][1])
		if !(px >= 0 && px < float64(info.Width) && py >= 0 && py < float64(info.Height)) {
			continue
		}
		kernel := newBilinearKernel(bounds, px, py)
		window, err := handle.ReadWindow(ctx, 0, image.Rect(kernel.x0, kernel.y0, kernel.x1+1, kernel.y1+1))
		if err != nil {
			return &SourceError{Path: descriptor.Source.Path, Err: err}
		}
		pointNoData := detectNoData(noData, window, c.resampler.noDataSentinels)
		if pointNoData == nil || !kernel.touches(window, float32(*pointNoData)) {
			result[i] = InterpolateBilinear(window, 0, [][]float64{{px, py}})[0]
			continue
		}
		nx, ny := nearestPixel(window.Rect, px, py)
		if value := window.At(nx, ny, 0); value != float32(*pointNoData) {
			result[i] = float64(value)
		}
	}
	return nil
}
