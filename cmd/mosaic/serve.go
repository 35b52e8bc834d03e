package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/twpayne/go-mosaic/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP composition server",
	Long: `Start an HTTP server that composes rasters on demand.

Endpoints:
  /health                        health check
  /catalog                       catalog as GeoJSON
  /compose?bbox=&width=&height=  arbitrary bounding box
  /tiles/{z}/{x}/{y}.{format}    web mercator tiles
  /metrics                       Prometheus metrics

Examples:
  mosaic --sources sources.yaml serve
  mosaic --sources sources.yaml serve --bind 0.0.0.0 --port 3000`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("bind", "b", "localhost", "bind address")
	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	serveCmd.Flags().Duration("timeout", 30*time.Second, "request timeout")
	serveCmd.Flags().Int64("cache-size", 1024, "maximum number of cached responses")
	serveCmd.Flags().Duration("cache-ttl", 10*time.Minute, "response cache TTL")
	serveCmd.Flags().Int("tile-size", 256, "tile size in pixels")
	serveCmd.Flags().Int("max-pixels", 4096*4096, "maximum number of pixels in a single response")
	serveCmd.Flags().Int("quality", 0, "default quality of lossy formats (0 for default)")

	for _, key := range []string{
		"bind",
		"port",
		"timeout",
		"cache-size",
		"cache-ttl",
		"tile-size",
		"max-pixels",
		"quality",
	} {
		cobra.CheckErr(viper.BindPFlag("server."+key, serveCmd.Flags().Lookup(key)))
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	compositor, err := newCompositor(ctx, logger)
	if err != nil {
		return err
	}

	timeout := viper.GetDuration("server.timeout")
	serverOptions := []server.Option{
		server.WithLogger(logger),
		server.WithCacheSize(viper.GetInt64("server.cache-size")),
		server.WithCacheTTL(viper.GetDuration("server.cache-ttl")),
		server.WithTileSize(viper.GetInt("server.tile-size")),
		server.WithMaxPixels(viper.GetInt("server.max-pixels")),
		server.WithTimeout(timeout),
		server.WithVersion(version),
	}
	if quality := viper.GetInt("server.quality"); quality > 0 {
		serverOptions = append(serverOptions, server.WithQuality(quality))
	}
	s := server.New(compositor, serverOptions...)
	defer s.Close()

	addr := fmt.Sprintf("%s:%d", viper.GetString("server.bind"), viper.GetInt("server.port"))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: timeout,
		WriteTimeout:      timeout + 5*time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", "err", err)
		}
	}()

	logger.Info("listening", "addr", addr, "version", version)
	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
