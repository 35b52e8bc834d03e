package mosaic

import "math"

// DefaultNoDataSentinels are the values commonly used to mark missing
// elevation samples in sources that do not declare a nodata value.
var DefaultNoDataSentinels = []float64{-32767, -32768}

// detectNoData returns the nodata value of an elevation window. An explicit
// value wins. Otherwise, if the minimum of band 0 equals one of sentinels,
// that sentinel is assumed to be nodata. This is an approximation: a window
// that contains no missing samples but a genuine minimum equal to a sentinel
// is misclassified.
func detectNoData(explicit *float64, window *Window, sentinels []float64) *float64 {
	if explicit != nil {
		return explicit
	}
	if window == nil || len(window.Samples) == 0 || len(sentinels) == 0 {
		return nil
	}
	// NaN samples are ignored.
	minimum, found := float32(0), false
	for i := 0; i < len(window.Samples); i += window.BandCount {
		sample := window.Samples[i]
		if math.IsNaN(float64(sample)) {
			continue
		}
		if !found || sample < minimum {
			minimum, found = sample, true
		}
	}
	if !found {
		return nil
	}
	for _, sentinel := range sentinels {
		if minimum == float32(sentinel) {
			return &sentinel
		}
	}
	return nil
}
