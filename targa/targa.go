// Package targa reads and writes uncompressed true-color Targa images.
//
// Only image type 2 with 24 or 32 bits per pixel is supported. 24-bit files
// decode into a pixel.Image[uint8] with RGB layout and 32-bit files into an
// *image.NRGBA.
package targa

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/gen2brain/imageio/pixel"
)

// Standard error types for Targa decoding and encoding.
var (
	ErrFormat      = errors.New("invalid format")
	ErrUnsupported = errors.New("unsupported format")
)

// Options specifies decoding parameters.
type Options struct {
	// Origin accepts descriptors with the row or column order bits set and
	// honors them. By default only bottom-up, left-to-right files are read.
	Origin bool
}

// optionsOf returns the first non-nil options or the defaults.
func optionsOf(opts []*Options) Options {
	if len(opts) > 0 && opts[0] != nil {
		return *opts[0]
	}

	return Options{}
}

// maxImageBytes bounds the size of a decoded image.
const maxImageBytes = 1 << 30

// Interface to check if a reader knows its remaining length.
type readerWithLen interface {
	Len() int
}

// Decode reads a Targa image from r. Data after the last row, such as the
// TGA 2.0 footer, is not read.
func Decode(r io.Reader, opts ...*Options) (image.Image, error) {
	h, err := DecodeHeader(r, opts...)
	if err != nil {
		return nil, err
	}

	w, ht := int(h.Width), int(h.Height)
	n := int(h.BitsPerPixel) / 8
	rowBytes := w * n

	if int64(rowBytes)*int64(ht) > maxImageBytes {
		return nil, fmt.Errorf("%s: %w", "image too large", ErrUnsupported)
	}

	need := h.colorMapBytes() + rowBytes*ht
	if rl, ok := r.(readerWithLen); ok && rl.Len() < need {
		return nil, readError("pixel data", io.ErrUnexpectedEOF)
	}

	br := bufio.NewReader(r)
	if _, err := br.Discard(h.colorMapBytes()); err != nil {
		return nil, readError("color map", err)
	}

	rect := image.Rect(0, 0, w, ht)

	var (
		pix    []uint8
		stride int
		img    image.Image
	)

	if n == 4 {
		m := image.NewNRGBA(rect)
		pix, stride, img = m.Pix, m.Stride, m
	} else {
		m := pixel.NewImage[uint8](rect, pixel.RGB)
		pix, stride, img = m.Pix, m.Stride, m
	}

	row := make([]byte, rowBytes)
	for i := range ht {
		if _, err := io.ReadFull(br, row); err != nil {
			return nil, readError("pixel data", err)
		}

		y := ht - 1 - i
		if h.TopToBottom() {
			y = i
		}

		dst := pix[y*stride : y*stride+rowBytes]
		for x := range w {
			dx := x
			if h.RightToLeft() {
				dx = w - 1 - x
			}

			s, d := row[x*n:x*n+n], dst[dx*n:dx*n+n]
			d[0], d[1], d[2] = s[2], s[1], s[0]
			if n == 4 {
				d[3] = s[3]
			}
		}
	}

	return img, nil
}

// DecodeConfig returns the color model and dimensions of a Targa image
// without decoding the pixel data.
func DecodeConfig(r io.Reader, opts ...*Options) (image.Config, error) {
	h, err := DecodeHeader(r, opts...)
	if err != nil {
		return image.Config{}, err
	}

	cm := color.NRGBA64Model
	if h.BitsPerPixel == 32 {
		cm = color.NRGBAModel
	}

	return image.Config{
		ColorModel: cm,
		Width:      int(h.Width),
		Height:     int(h.Height),
	}, nil
}

// init registers the Targa format with the standard library's image package.
// Targa has no signature; the pattern matches any ID length, no color map
// and an uncompressed true-color image.
func init() {
	decodeWrapper := func(r io.Reader) (image.Image, error) {
		return Decode(r)
	}

	decodeConfigWrapper := func(r io.Reader) (image.Config, error) {
		return DecodeConfig(r)
	}

	image.RegisterFormat("tga", "?\x00\x02", decodeWrapper, decodeConfigWrapper)
}
