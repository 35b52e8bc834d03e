// Package server serves composed rasters over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/karlseguin/ccache/v3"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/singleflight"

	"github.com/twpayne/go-mosaic"
)

const (
	defaultCacheSize = 1024
	defaultMaxPixels = 4096 * 4096
	defaultCacheTTL  = 10 * time.Minute
	defaultTileSize  = 256
	defaultTimeout   = 30 * time.Second
	maxZoom          = 24
)

// A Server serves composed rasters from a single compositor.
type Server struct {
	compositor *mosaic.Compositor
	logger     *slog.Logger
	cache      *ccache.Cache[[]byte]
	cacheSize  int64
	cacheTTL   time.Duration
	inflight   singleflight.Group
	tileSize   int
	maxPixels  int
	quality    int
	timeout    time.Duration
	version    string
	startTime  time.Time
}

// An Option sets an option on a Server.
type Option func(*Server)

// WithCacheSize sets the maximum number of encoded responses to cache.
func WithCacheSize(cacheSize int64) Option {
	return func(s *Server) {
		s.cacheSize = cacheSize
	}
}

// WithCacheTTL sets how long encoded responses are cached.
func WithCacheTTL(cacheTTL time.Duration) Option {
	return func(s *Server) {
		s.cacheTTL = cacheTTL
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMaxPixels sets the maximum number of pixels in a single response.
func WithMaxPixels(maxPixels int) Option {
	return func(s *Server) {
		s.maxPixels = maxPixels
	}
}

// WithQuality sets the default quality of lossy encodings.
func WithQuality(quality int) Option {
	return func(s *Server) {
		s.quality = quality
	}
}

// WithTileSize sets the size of web map tiles in pixels.
func WithTileSize(tileSize int) Option {
	return func(s *Server) {
		s.tileSize = tileSize
	}
}

// WithTimeout sets the request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		s.timeout = timeout
	}
}

// WithVersion sets the version reported by the health endpoint.
func WithVersion(version string) Option {
	return func(s *Server) {
		s.version = version
	}
}

// New returns a new Server. Call Close to release its cache.
func New(compositor *mosaic.Compositor, options ...Option) *Server {
	s := &Server{
		compositor: compositor,
		logger:     slog.Default(),
		cacheSize:  defaultCacheSize,
		cacheTTL:   defaultCacheTTL,
		tileSize:   defaultTileSize,
		maxPixels:  defaultMaxPixels,
		timeout:    defaultTimeout,
		version:    "devel",
		startTime:  time.Now(),
	}
	for _, option := range options {
		option(s)
	}
	s.cache = ccache.New(ccache.Configure[[]byte]().MaxSize(s.cacheSize).ItemsToPrune(uint32(max(s.cacheSize/16, 1))))
	return s
}

// Close stops the server's cache.
func (s *Server) Close() {
	s.cache.Stop()
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", s.handleHealth)
	r.Get("/catalog", s.handleCatalog)
	r.Get("/compose", s.handleCompose)
	r.Get("/tiles/{z}/{x}/{y}.{format}", s.handleTile)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  int    `json:"uptime"`
	Sources int    `json:"sources"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, &healthResponse{
		Status:  "healthy",
		Version: s.version,
		Uptime:  int(time.Since(s.startTime).Seconds()),
		Sources: s.compositor.Catalog().Len(),
	})
}

// handleCatalog returns the catalog's sources as a GeoJSON feature
// collection.
func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	featureCollection := geojson.NewFeatureCollection()
	for _, descriptor := range s.compositor.Catalog().Descriptors() {
		sector := descriptor.Sector
		bound := orb.Bound{
			Min: orb.Point{sector.MinLon, sector.MinLat},
			Max: orb.Point{sector.MaxLon, sector.MaxLat},
		}
		feature := geojson.NewFeature(bound.ToPolygon())
		feature.Properties["path"] = descriptor.Source.Path
		feature.Properties["reader"] = descriptor.Reader.Name()
		feature.Properties["pixelFormat"] = descriptor.PixelFormat.String()
		feature.Properties["srid"] = descriptor.SRID
		featureCollection.Append(feature)
	}
	w.Header().Set("Content-Type", "application/geo+json")
	if err := json.NewEncoder(w).Encode(featureCollection); err != nil {
		s.logger.Error("encoding catalog", "err", err)
	}
}

// handleCompose composes an arbitrary sector. Query parameters are
// bbox=minLat,minLon,maxLat,maxLon, width, height, format, and quality.
func (s *Server) handleCompose(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	sector, err := mosaic.ParseBBox(query.Get("bbox"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	width, err := parseInt(query, "width", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	height, err := parseInt(query, "height", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	format := query.Get("format")
	if format == "" {
		format = "png"
	}
	quality, err := parseInt(query, "quality", s.quality)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.render(w, r, sector, width, height, format, quality)
}

// handleTile composes a web map tile. The tile is rendered in
// longitude/latitude over the tile's bounds.
func (s *Server) handleTile(w http.ResponseWriter, r *http.Request) {
	z, errZ := strconv.Atoi(chi.URLParam(r, "z"))
	x, errX := strconv.Atoi(chi.URLParam(r, "x"))
	y, errY := strconv.Atoi(chi.URLParam(r, "y"))
	if err := errors.Join(errZ, errX, errY); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %w", mosaic.ErrInvalidArgument, err))
		return
	}
	if z < 0 || z > maxZoom || x < 0 || x >= 1<<z || y < 0 || y >= 1<<z {
		s.writeError(w, r, fmt.Errorf("%w: tile %d/%d/%d out of range", mosaic.ErrInvalidArgument, z, x, y))
		return
	}
	bound := maptile.New(uint32(x), uint32(y), maptile.Zoom(z)).Bound()
	sector, err := mosaic.NewSector(bound.Min.Lat(), bound.Max.Lat(), bound.Min.Lon(), bound.Max.Lon())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.render(w, r, sector, s.tileSize, s.tileSize, chi.URLParam(r, "format"), s.quality)
}

// render composes, encodes, and writes a raster. Identical concurrent
// requests are collapsed and encoded responses are cached.
func (s *Server) render(w http.ResponseWriter, r *http.Request, sector mosaic.Sector, width, height int, format string, quality int) {
	if width > 0 && height > 0 && width > s.maxPixels/height {
		s.writeError(w, r, fmt.Errorf("%w: %dx%d exceeds %d pixels", mosaic.ErrInvalidArgument, width, height, s.maxPixels))
		return
	}
	encoder, err := mosaic.NewEncoder(format, quality)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	request := &mosaic.CompositionRequest{
		Sector:      &sector,
		Width:       width,
		Height:      height,
		PixelFormat: encoder.PixelFormat(),
	}
	if err := request.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}

	key := fmt.Sprintf("%s/%dx%d/%s/%d", sector, width, height, encoder.Format(), quality)
	data, err := s.getEncodedCached(r.Context(), key, request, encoder)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", encoder.ContentType())
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Debug("writing response", "err", err)
	}
}

func (s *Server) getEncodedCached(ctx context.Context, key string, request *mosaic.CompositionRequest, encoder mosaic.Encoder) ([]byte, error) {
	if item := s.cache.Get(key); item != nil && !item.Expired() {
		return item.Value(), nil
	}
	value, err, _ := s.inflight.Do(key, func() (any, error) {
		raster, err := s.compositor.Compose(ctx, request)
		if err != nil {
			return nil, err
		}
		data, err := encoder.Encode(raster)
		if err != nil {
			return nil, err
		}
		s.cache.Set(key, data, s.cacheTTL)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]byte), nil
}

type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	statusCode, code := http.StatusInternalServerError, "INTERNAL_ERROR"
	switch {
	case errors.Is(err, mosaic.ErrInvalidArgument):
		statusCode, code = http.StatusBadRequest, "INVALID_ARGUMENT"
	case errors.Is(err, mosaic.ErrOutOfCoverage):
		statusCode, code = http.StatusNotFound, "OUT_OF_COVERAGE"
	case errors.Is(err, mosaic.ErrResourceExhausted):
		statusCode, code = http.StatusUnprocessableEntity, "RESOURCE_EXHAUSTED"
	case errors.Is(err, context.DeadlineExceeded):
		statusCode, code = http.StatusGatewayTimeout, "TIMEOUT"
	case errors.Is(err, context.Canceled):
		statusCode, code = http.StatusServiceUnavailable, "CANCELED"
	}
	if statusCode == http.StatusInternalServerError {
		s.logger.Error("request failed", "url", r.URL.String(), "err", err)
	}
	s.writeJSON(w, statusCode, &errorResponse{
		Error:     code,
		Message:   err.Error(),
		RequestID: middleware.GetReqID(r.Context()),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(value); err != nil {
		s.logger.Error("encoding response", "err", err)
	}
}

func parseInt(query map[string][]string, key string, defaultValue int) (int, error) {
	values := query[key]
	if len(values) == 0 || values[0] == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(values[0])
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", mosaic.ErrInvalidArgument, key, err)
	}
	return value, nil
}
