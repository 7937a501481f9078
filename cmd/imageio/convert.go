package main

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/gen2brain/imageio"
	"github.com/gen2brain/imageio/targa"
	"github.com/gen2brain/imageio/tiff"
)

type convertFlags struct {
	read         imageio.ReadOptions
	compression  string
	predictor    bool
	planar       bool
	rowsPerStrip int
	topLeft      bool
}

func (f *convertFlags) register(fs *pflag.FlagSet) {
	fs.IntVar(&f.read.Directory, "directory", 0, "TIFF image directory to read")
	fs.IntVar(&f.read.Concurrency, "concurrency", 0, "strips decoded in parallel (0 for GOMAXPROCS)")
	fs.BoolVar(&f.read.HDR, "hdr", false, "decode floating point RGB as HDR")
	fs.BoolVar(&f.read.TargaOrigin, "targa-origin", false, "accept Targa files stored top down or right to left")
	fs.StringVar(&f.compression, "compression", "none", "TIFF compression: none, deflate, packbits or zstd")
	fs.BoolVar(&f.predictor, "predictor", false, "apply the TIFF predictor")
	fs.BoolVar(&f.planar, "planar", false, "write TIFF planes separately")
	fs.IntVar(&f.rowsPerStrip, "rows-per-strip", 0, "TIFF strip height (0 for about 8 KiB strips)")
	fs.BoolVar(&f.topLeft, "top-left", false, "store Targa rows top down")
}

func convertCmd() *cobra.Command {
	var f convertFlags

	cmd := &cobra.Command{
		Use:   "convert IN OUT",
		Short: "Convert an image to TIFF, Targa or PNG",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return convert(args[0], args[1], &f)
		},
	}

	f.register(cmd.Flags())

	return cmd
}

func convert(in, out string, f *convertFlags) error {
	m, err := readImage(in, &f.read)
	if err != nil {
		return err
	}

	if strings.EqualFold(filepath.Ext(out), ".png") {
		return writePNG(out, m)
	}

	c, err := tiff.ParseCompression(f.compression)
	if err != nil {
		return err
	}

	return imageio.WriteFile(out, m, &imageio.WriteOptions{
		TIFF: &tiff.EncodeOptions{
			Compression:  c,
			Predictor:    f.predictor,
			Planar:       f.planar,
			RowsPerStrip: f.rowsPerStrip,
		},
		Targa: &targa.EncodeOptions{TopLeft: f.topLeft},
	})
}

// readImage decodes TIFF and Targa files with imageio and anything else
// with the decoders registered in the image package.
func readImage(path string, opts *imageio.ReadOptions) (image.Image, error) {
	m, _, err := imageio.ReadFile(path, opts)
	if err == nil || !errors.Is(err, imageio.ErrUnknownFormat) {
		return m, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	m, _, err = image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return m, nil
}

func writePNG(path string, m image.Image) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return err
	}

	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()

	return png.Encode(file, m)
}
