package main

import (
	"fmt"
	"io"
	"slices"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/gen2brain/imageio/pixel"
	"github.com/gen2brain/imageio/tiff"
)

func formatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List the TIFF pixel formats and the Go types they decode into",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			printFormats(cmd.OutOrStdout(), tiff.SupportedFormats())
		},
	}
}

func printFormats(w io.Writer, entries []tiff.FormatEntry) {
	groups := lo.GroupBy(entries, func(e tiff.FormatEntry) pixel.Layout {
		return e.Format.Layout
	})

	layouts := lo.Keys(groups)
	slices.Sort(layouts)

	for _, l := range layouts {
		fmt.Fprintf(w, "%s:\n", l)
		for _, e := range groups[l] {
			note := ""
			if e.HDR {
				note = " (--hdr)"
			}
			fmt.Fprintf(w, "  %-18s %s%s\n", e.Format, e.Type, note)
		}
	}
}
