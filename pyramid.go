package mosaic

// levelTolerance absorbs rounding in overview sizes, e.g. a 3601 pixel
// source with an 1801 pixel overview.
const levelTolerance = 1e-3

// SelectLevel returns the coarsest pyramid level of info whose downsampling
// factor does not exceed the requested number of source pixels per
// destination pixel along either axis. Level 0 is full resolution and is
// returned if no overview qualifies.
func SelectLevel(info *HandleInfo, sourcePixelsPerPixelX, sourcePixelsPerPixelY float64) int {
	level := 0
	for i, overview := range info.Overviews {
		if overview.Width <= 0 || overview.Height <= 0 {
			continue
		}
		factorX := float64(info.Width) / float64(overview.Width)
		factorY := float64(info.Height) / float64(overview.Height)
		if factorX > sourcePixelsPerPixelX*(1+levelTolerance) || factorY > sourcePixelsPerPixelY*(1+levelTolerance) {
			break
		}
		level = i + 1
	}
	return level
}

// coarsestLevel returns info's coarsest pyramid level.
func coarsestLevel(info *HandleInfo) int {
	return len(info.Overviews)
}
