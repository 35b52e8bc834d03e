package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/twpayne/go-mosaic"
)

var (
	version = "dev"
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "mosaic",
	Short: "Compose imagery and elevation rasters for arbitrary geographic sectors",
	Long: `mosaic composes rasters from a catalog of GeoTIFF, image, and GDAL
sources into a single image or elevation grid covering a geographic sector.

Sources are listed in a YAML file:

  sources:
    - path: srtm/N46E007.tif
    - path: ortho/tile.png
      sector: {min_lat: 46, max_lat: 46.5, min_lon: 7, max_lon: 7.5}
      pixel_format: image

Examples:
  # Compose a PNG
  mosaic --sources sources.yaml compose --bbox 46,7,46.5,7.5 --width 512 --height 512 -o out.png

  # Look up elevations
  mosaic --eu-dem /data/eu_dem elevation 46.5 7.5

  # Start the HTTP server
  mosaic --sources sources.yaml serve --port 8080`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.mosaic.yaml)")
	rootCmd.PersistentFlags().String("sources", "", "YAML source list")
	rootCmd.PersistentFlags().String("root", ".", "directory that source paths are relative to")
	rootCmd.PersistentFlags().String("eu-dem", "", "directory of EU-DEM tiles, used instead of --sources")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text|json)")
	rootCmd.PersistentFlags().Int("block-cache-size", 128<<20, "GeoTIFF block cache size in bytes")
	rootCmd.PersistentFlags().Int("max-dimension", 0, "maximum source window dimension before falling back to an overview (0 for default)")
	rootCmd.PersistentFlags().Int("parallelism", 0, "maximum number of sources resampled concurrently (0 for GOMAXPROCS)")

	for _, key := range []string{
		"sources",
		"root",
		"eu-dem",
		"log-level",
		"log-format",
		"block-cache-size",
		"max-dimension",
		"parallelism",
	} {
		cobra.CheckErr(viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(key)))
	}
}

// initConfig reads in the config file and environment variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".mosaic")
	}

	viper.SetEnvPrefix("mosaic")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &configFileNotFoundError) {
			cobra.CheckErr(err)
		}
	}
}

func newLogger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log-level"))); err != nil {
		return nil, err
	}
	options := &slog.HandlerOptions{
		Level: level,
	}
	switch format := viper.GetString("log-format"); format {
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, options)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, options)), nil
	default:
		return nil, fmt.Errorf("%s: unknown log format", format)
	}
}

func sourceSpecs() ([]mosaic.SourceSpec, error) {
	if euDEM := viper.GetString("eu-dem"); euDEM != "" {
		return mosaic.EUDEMSources(os.DirFS(euDEM))
	}
	sources := viper.GetString("sources")
	if sources == "" {
		return nil, errors.New("no sources: use --sources or --eu-dem")
	}
	file, err := os.Open(sources)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return mosaic.ReadSourceList(file)
}

// newCompositor builds a compositor over the configured sources.
func newCompositor(ctx context.Context, logger *slog.Logger) (*mosaic.Compositor, error) {
	specs, err := sourceSpecs()
	if err != nil {
		return nil, err
	}
	root := viper.GetString("root")
	if euDEM := viper.GetString("eu-dem"); euDEM != "" {
		root = euDEM
	}

	geoTIFFReader, err := mosaic.NewGeoTIFFReader(
		mosaic.WithBlockCacheSize(viper.GetInt("block-cache-size")),
	)
	if err != nil {
		return nil, err
	}
	readers := []mosaic.RasterReader{geoTIFFReader}
	readers = append(readers, gdalReaders(root)...)
	readers = append(readers, mosaic.NewImageReader())
	registry := mosaic.NewReaderRegistry(readers, mosaic.WithRegistryLogger(logger))

	catalog, err := mosaic.NewCatalog(ctx, registry, specs,
		mosaic.WithFS(os.DirFS(root)),
		mosaic.WithCatalogLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	logger.Info("catalog loaded", "sources", len(specs), "descriptors", catalog.Len())

	resamplerOptions := []mosaic.ResamplerOption{
		mosaic.WithResamplerLogger(logger),
	}
	if maxDimension := viper.GetInt("max-dimension"); maxDimension > 0 {
		resamplerOptions = append(resamplerOptions, mosaic.WithMaxDimension(maxDimension))
	}
	compositorOptions := []mosaic.CompositorOption{
		mosaic.WithLogger(logger),
		mosaic.WithResampler(mosaic.NewResampler(resamplerOptions...)),
	}
	if parallelism := viper.GetInt("parallelism"); parallelism > 0 {
		compositorOptions = append(compositorOptions, mosaic.WithParallelism(parallelism))
	}
	return mosaic.NewCompositor(catalog, compositorOptions...), nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
