package mosaic

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	catalogSourcesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mosaic_catalog_sources_skipped_total",
		Help: "The total number of sources skipped while building catalogs",
	})
	compositions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mosaic_compositions_total",
		Help: "The total number of compositions, by result",
	}, []string{"result"})
	compositionSourcesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mosaic_composition_sources_skipped_total",
		Help: "The total number of sources skipped during composition",
	})
	compositionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mosaic_composition_duration_seconds",
		Help:    "The duration of compositions",
		Buckets: prometheus.DefBuckets,
	})
	pyramidLevels = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mosaic_pyramid_level",
		Help:    "The pyramid level selected for each resampled source",
		Buckets: prometheus.LinearBuckets(0, 1, 12),
	})
	sizeCapFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mosaic_size_cap_fallbacks_total",
		Help: "The total number of times the size cap forced the coarsest overview",
	})
	blockCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mosaic_geotiff_block_cache_hits_total",
		Help: "The total number of hits on the GeoTIFF block cache",
	})
	blockCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mosaic_geotiff_block_cache_misses_total",
		Help: "The total number of misses on the GeoTIFF block cache",
	})
	layoutCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mosaic_geotiff_layout_cache_hits_total",
		Help: "The total number of hits on the GeoTIFF layout cache",
	})
	layoutCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mosaic_geotiff_layout_cache_misses_total",
		Help: "The total number of misses on the GeoTIFF layout cache",
	})
	layoutCacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mosaic_geotiff_layout_cache_evictions_total",
		Help: "The total number of evictions from the GeoTIFF layout cache",
	})
)
