package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List the rasters in the catalog",
	Args:  cobra.NoArgs,
	RunE:  runCatalog,
}

func init() {
	rootCmd.AddCommand(catalogCmd)
}

func runCatalog(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	compositor, err := newCompositor(cmd.Context(), logger)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "PATH\tREADER\tFORMAT\tTYPE\tBANDS\tSRID\tSECTOR")
	for _, descriptor := range compositor.Catalog().Descriptors() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			descriptor.Source.Path,
			descriptor.Reader.Name(),
			descriptor.PixelFormat,
			descriptor.DataType,
			descriptor.BandCount,
			descriptor.SRID,
			descriptor.Sector,
		)
	}
	if coverage, ok := compositor.Catalog().Coverage(); ok {
		fmt.Fprintf(w, "\ncoverage\t%s\n", coverage)
	}
	return w.Flush()
}
