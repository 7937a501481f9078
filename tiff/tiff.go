// Package tiff reads and writes TIFF images into strongly typed pixel buffers.
//
// The pixel layout found in a file (samples per pixel, bits per sample,
// sample format and planar configuration) selects the in-memory buffer
// through a lookup table. Standard library types are used where one matches
// exactly; every other layout decodes into a buffer from the pixel package.
package tiff

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
)

// Standard error types for TIFF decoding and encoding.
var (
	ErrNoTIFF      = errors.New("not a TIFF file")
	ErrFormat      = errors.New("invalid format")
	ErrUnsupported = errors.New("unsupported format")
	ErrInternal    = errors.New("internal error")
)

// Options specifies decoding parameters.
type Options struct {
	// Directory selects the image directory (page) to decode, starting at 0.
	Directory int
	// Concurrency bounds the number of strips or tiles decoded in parallel.
	// Zero means GOMAXPROCS.
	Concurrency int
	// HDR decodes interleaved floating point RGB images into *hdr.RGB.
	HDR bool
}

// maxImageBytes bounds the size of a decoded image.
const maxImageBytes = 1 << 30

// Interface to check if a reader knows its remaining length.
type readerWithLen interface {
	Len() int
}

// readAllData reads data from r, pre-allocating if the size is known.
func readAllData(r io.Reader) ([]byte, error) {
	if rl, ok := r.(readerWithLen); ok {
		size := rl.Len()
		if size > 0 {
			data := make([]byte, size)
			_, err := io.ReadFull(r, data)
			if err != nil {
				return nil, fmt.Errorf("failed to read image data: %w", err)
			}

			return data, nil
		}
	}

	return io.ReadAll(r)
}

// readerAt returns r as an io.ReaderAt, reading it into memory if needed.
func readerAt(r io.Reader) (io.ReaderAt, error) {
	if ra, ok := r.(io.ReaderAt); ok {
		return ra, nil
	}

	data, err := readAllData(r)
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(data), nil
}

// Decode reads a TIFF image from r and returns it as an [image.Image].
// The concrete type depends on the pixel layout of the file; see
// SupportedFormats.
func Decode(r io.Reader, opts ...*Options) (image.Image, error) {
	ra, err := readerAt(r)
	if err != nil {
		return nil, err
	}

	d, err := NewReader(ra, opts...)
	if err != nil {
		return nil, err
	}

	return d.Read(context.Background())
}

// DecodeConfig returns the color model and dimensions of a TIFF image without
// decoding the pixel data.
func DecodeConfig(r io.Reader) (image.Config, error) {
	ra, err := readerAt(r)
	if err != nil {
		return image.Config{}, err
	}

	d, err := NewReader(ra)
	if err != nil {
		return image.Config{}, err
	}

	c, err := d.codec()
	if err != nil {
		return image.Config{}, err
	}

	return image.Config{
		ColorModel: c.alloc(image.Rectangle{}, d.info).ColorModel(),
		Width:      d.info.Width,
		Height:     d.info.Height,
	}, nil
}

// DecodeInfo returns the header record of the first image in r.
func DecodeInfo(r io.Reader) (ImageInfo, error) {
	ra, err := readerAt(r)
	if err != nil {
		return ImageInfo{}, err
	}

	d, err := NewReader(ra)
	if err != nil {
		return ImageInfo{}, err
	}

	return d.Info(), nil
}

// init registers the TIFF format with the standard library's image package.
func init() {
	decodeWrapper := func(r io.Reader) (image.Image, error) {
		return Decode(r)
	}

	image.RegisterFormat("tiff", leHeader, decodeWrapper, DecodeConfig)
	image.RegisterFormat("tiff", beHeader, decodeWrapper, DecodeConfig)
}
