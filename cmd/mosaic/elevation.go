package main

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/twpayne/go-mosaic"
)

var elevationCmd = &cobra.Command{
	Use:   "elevation latitude longitude [latitude longitude...]",
	Short: "Print the elevation at points",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 || len(args)%2 != 0 {
			return errors.New("requires latitude longitude pairs")
		}
		return nil
	},
	RunE: runElevation,
}

func init() {
	rootCmd.AddCommand(elevationCmd)
}

func runElevation(cmd *cobra.Command, args []string) error {
	points := make([]mosaic.LatLon, 0, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		lat, err := strconv.ParseFloat(args[i], 64)
		if err != nil {
			return err
		}
		lon, err := strconv.ParseFloat(args[i+1], 64)
		if err != nil {
			return err
		}
		points = append(points, mosaic.LatLon{Lat: lat, Lon: lon})
	}

	logger, err := newLogger()
	if err != nil {
		return err
	}
	compositor, err := newCompositor(cmd.Context(), logger)
	if err != nil {
		return err
	}
	elevations, err := compositor.Elevations(cmd.Context(), points)
	if err != nil {
		return err
	}
	for i, elevation := range elevations {
		if math.IsNaN(elevation) {
			fmt.Fprintf(cmd.OutOrStdout(), "%g %g -\n", points[i].Lat, points[i].Lon)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%g %g %g\n", points[i].Lat, points[i].Lon, elevation)
	}
	return nil
}
