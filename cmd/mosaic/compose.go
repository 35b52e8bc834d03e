package main

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/twpayne/go-mosaic"
)

var composeCmd = &cobra.Command{
	Use:   "compose",
	Short: "Compose a raster for a bounding box",
	Long: `Compose a raster covering a bounding box and write it encoded in the
requested format. Image formats are png, jpeg, and webp. Elevation formats are
terrarium and bil.

Examples:
  mosaic --sources sources.yaml compose --bbox 46,7,46.5,7.5 --width 512 --height 512 -o out.png
  mosaic --eu-dem /data/eu_dem compose --bbox 46,7,46.5,7.5 --width 256 --height 256 -f bil -o out.bil`,
	Args: cobra.NoArgs,
	RunE: runCompose,
}

func init() {
	rootCmd.AddCommand(composeCmd)

	composeCmd.Flags().String("bbox", "", "bounding box as 'min-lat,min-lon,max-lat,max-lon'")
	composeCmd.Flags().Int("width", 256, "width in pixels")
	composeCmd.Flags().Int("height", 256, "height in pixels")
	composeCmd.Flags().StringP("format", "f", "png", "output format")
	composeCmd.Flags().Int("quality", 0, "quality of lossy formats (0 for default)")
	composeCmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	composeCmd.Flags().Float64("nodata", 0, "nodata value of elevation output")
	composeCmd.Flags().String("data-type", "", "elevation data type (int16|int32|float32)")
	composeCmd.Flags().Bool("big-endian", false, "write elevation samples big-endian")

	for _, key := range []string{
		"bbox",
		"width",
		"height",
		"format",
		"quality",
		"output",
		"nodata",
		"data-type",
		"big-endian",
	} {
		cobra.CheckErr(viper.BindPFlag("compose."+key, composeCmd.Flags().Lookup(key)))
	}
}

func runCompose(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}

	sector, err := mosaic.ParseBBox(viper.GetString("compose.bbox"))
	if err != nil {
		return err
	}
	encoder, err := mosaic.NewEncoder(viper.GetString("compose.format"), viper.GetInt("compose.quality"))
	if err != nil {
		return err
	}
	request := &mosaic.CompositionRequest{
		Sector:      &sector,
		Width:       viper.GetInt("compose.width"),
		Height:      viper.GetInt("compose.height"),
		PixelFormat: encoder.PixelFormat(),
	}
	if encoder.PixelFormat() == mosaic.PixelFormatElevation {
		if viper.IsSet("compose.nodata") {
			noData := viper.GetFloat64("compose.nodata")
			request.NoData = &noData
		}
		if viper.GetBool("compose.big-endian") {
			request.ByteOrder = binary.BigEndian
		}
		switch dataType := viper.GetString("compose.data-type"); dataType {
		case "":
		case "int16":
			request.ElevationDataType = mosaic.DataTypeInt16
		case "int32":
			request.ElevationDataType = mosaic.DataTypeInt32
		case "float32":
			request.ElevationDataType = mosaic.DataTypeFloat32
		default:
			return fmt.Errorf("%s: unsupported data type", dataType)
		}
	}
	if err := request.Validate(); err != nil {
		return err
	}

	compositor, err := newCompositor(cmd.Context(), logger)
	if err != nil {
		return err
	}
	raster, err := compositor.Compose(cmd.Context(), request)
	if err != nil {
		return err
	}
	data, err := encoder.Encode(raster)
	if err != nil {
		return err
	}

	if output := viper.GetString("compose.output"); output != "" {
		return os.WriteFile(output, data, 0o666)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
