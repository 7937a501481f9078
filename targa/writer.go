package targa

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"

	"github.com/gen2brain/imageio/pixel"
)

// EncodeOptions specifies encoding parameters.
type EncodeOptions struct {
	// TopLeft stores the top row first. By default rows are stored bottom up.
	TopLeft bool
	// ID is an optional image identification of at most 255 bytes.
	ID string
}

// footer is the TGA 2.0 signature with empty extension and developer areas.
var footer = []byte("\x00\x00\x00\x00\x00\x00\x00\x00TRUEVISION-XFILE.\x00")

// Encode writes m to w in Targa format. RGB buffers with 8-bit samples and
// gray images are written with 24 bits per pixel; everything else is
// converted to non-premultiplied RGBA and written with 32 bits per pixel.
func Encode(w io.Writer, m image.Image, opts *EncodeOptions) error {
	var o EncodeOptions
	if opts != nil {
		o = *opts
	}

	b := m.Bounds()
	if b.Empty() {
		return fmt.Errorf("%s: %w", "empty image", ErrFormat)
	}

	if b.Dx() > math.MaxUint16 || b.Dy() > math.MaxUint16 {
		return fmt.Errorf("%s: %w", "image too large for targa", ErrUnsupported)
	}

	if len(o.ID) > math.MaxUint8 {
		return fmt.Errorf("%s: %w", "image id longer than 255 bytes", ErrFormat)
	}

	fill, bpp := rowWriter(m)

	h := Header{
		IDLength:     uint8(len(o.ID)),
		ImageType:    imageTypeRGB,
		Width:        uint16(b.Dx()),
		Height:       uint16(b.Dy()),
		BitsPerPixel: uint8(bpp),
		ID:           o.ID,
	}

	if bpp == 32 {
		h.Descriptor = 8
	}

	if o.TopLeft {
		h.Descriptor |= topToBottom
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.Write(h.marshal()); err != nil {
		return err
	}

	row := make([]byte, b.Dx()*bpp/8)
	for i := range b.Dy() {
		y := b.Max.Y - 1 - i
		if o.TopLeft {
			y = b.Min.Y + i
		}

		fill(row, y)
		if _, err := bw.Write(row); err != nil {
			return err
		}
	}

	if _, err := bw.Write(footer); err != nil {
		return err
	}

	return bw.Flush()
}

// rowWriter returns a function that stores row y of m in file order, and the
// bits per pixel it produces.
func rowWriter(m image.Image) (func(dst []byte, y int), int) {
	b := m.Bounds()

	switch src := m.(type) {
	case *pixel.Image[uint8]:
		switch src.Layout {
		case pixel.RGB:
			return func(dst []byte, y int) {
				s := src.Pix[src.PixOffset(b.Min.X, y):]
				for x := 0; x < len(dst); x += 3 {
					dst[x], dst[x+1], dst[x+2] = s[x+2], s[x+1], s[x]
				}
			}, 24
		case pixel.RGBA:
			return func(dst []byte, y int) {
				swapRGBA(dst, src.Pix[src.PixOffset(b.Min.X, y):])
			}, 32
		}
	case *image.NRGBA:
		return func(dst []byte, y int) {
			swapRGBA(dst, src.Pix[src.PixOffset(b.Min.X, y):])
		}, 32
	case *image.Gray:
		return func(dst []byte, y int) {
			s := src.Pix[src.PixOffset(b.Min.X, y):]
			for x := 0; x < len(dst)/3; x++ {
				dst[3*x], dst[3*x+1], dst[3*x+2] = s[x], s[x], s[x]
			}
		}, 24
	}

	return func(dst []byte, y int) {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(m.At(x, y)).(color.NRGBA)
			i := 4 * (x - b.Min.X)
			dst[i], dst[i+1], dst[i+2], dst[i+3] = c.B, c.G, c.R, c.A
		}
	}, 32
}

// swapRGBA converts a row of RGBA samples to BGRA.
func swapRGBA(dst, src []byte) {
	for x := 0; x < len(dst); x += 4 {
		dst[x], dst[x+1], dst[x+2], dst[x+3] = src[x+2], src[x+1], src[x], src[x+3]
	}
}
