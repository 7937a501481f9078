package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/gen2brain/imageio"
)

func infoCmd() *cobra.Command {
	var opts imageio.ReadOptions

	cmd := &cobra.Command{
		Use:   "info FILE...",
		Short: "Print the header record of image files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var failed int
			for _, path := range args {
				info, err := imageio.ReadInfo(path, &opts)
				if err != nil {
					cmd.PrintErrln("imageio:", err)
					failed++
					continue
				}

				printInfo(cmd.OutOrStdout(), path, info)
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(args))
			}

			return nil
		},
	}

	cmd.Flags().IntVar(&opts.Directory, "directory", 0, "TIFF image directory to describe")
	cmd.Flags().BoolVar(&opts.TargaOrigin, "targa-origin", false, "accept Targa files stored top down or right to left")

	return cmd
}

func printInfo(w io.Writer, path string, info imageio.Info) {
	fmt.Fprintf(w, "File: %s\n", path)
	fmt.Fprintf(w, "Format: %s\n", info.Format)
	fmt.Fprintf(w, "Dimensions: %dx%d\n", info.Width, info.Height)

	pf := "unsupported"
	if info.Pixel.Bits != 0 {
		pf = info.Pixel.String()
	}
	fmt.Fprintf(w, "Pixel Format: %s\n", pf)

	if t := info.TIFF; t != nil {
		fmt.Fprintf(w, "Directories: %d\n", info.Directories)
		fmt.Fprintf(w, "Samples Per Pixel: %d\n", t.SamplesPerPixel)
		fmt.Fprintf(w, "Bits Per Sample: %v\n", t.BitsPerSamples)
		fmt.Fprintf(w, "Sample Format: %s\n", t.SampleFormat)
		fmt.Fprintf(w, "Photometric: %s\n", t.Photometric)
		fmt.Fprintf(w, "Planar Configuration: %s\n", t.PlanarConfiguration)
		fmt.Fprintf(w, "Compression: %s\n", t.Compression)
		if t.Predictor > 1 {
			fmt.Fprintf(w, "Predictor: %s\n", t.Predictor)
		}
		if t.Tiled() {
			fmt.Fprintf(w, "Tiles: %dx%d\n", t.TileWidth, t.TileLength)
		} else {
			fmt.Fprintf(w, "Rows Per Strip: %d\n", t.RowsPerStrip)
		}
		fmt.Fprintf(w, "Byte Order: %s\n", t.ByteOrder)
		if t.Software != "" {
			fmt.Fprintf(w, "Software: %s\n", t.Software)
		}
	}

	if h := info.Targa; h != nil {
		fmt.Fprintf(w, "Image Type: %d\n", h.ImageType)
		fmt.Fprintf(w, "Bits Per Pixel: %d\n", h.BitsPerPixel)
		fmt.Fprintf(w, "Descriptor: %#02x\n", h.Descriptor)
		fmt.Fprintf(w, "Origin: %d,%d\n", h.XOrigin, h.YOrigin)
		fmt.Fprintf(w, "Top To Bottom: %t\n", h.TopToBottom())
		if h.ID != "" {
			fmt.Fprintf(w, "ID: %q\n", h.ID)
		}
	}

	fmt.Fprintln(w)
}
