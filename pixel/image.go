package pixel

import (
	"image"
	"image/color"

	"github.com/mdouchement/hdr"
)

// Buffer is an image whose sample layout is known at runtime.
type Buffer interface {
	image.Image
	Format() Format
}

// Image is an interleaved buffer: the samples of a pixel are adjacent.
type Image[T Sample] struct {
	// Pix holds the samples in row-major order, Layout.Channels() per pixel.
	Pix []T
	// Stride is the distance in samples between vertically adjacent pixels.
	Stride int
	Rect   image.Rectangle
	Layout Layout
}

// NewImage returns a new interleaved buffer with the given bounds and layout.
func NewImage[T Sample](r image.Rectangle, layout Layout) *Image[T] {
	stride := r.Dx() * layout.Channels()

	return &Image[T]{
		Pix:    make([]T, stride*r.Dy()),
		Stride: stride,
		Rect:   r,
		Layout: layout,
	}
}

func (p *Image[T]) Bounds() image.Rectangle { return p.Rect }

func (p *Image[T]) ColorModel() color.Model { return color.NRGBA64Model }

func (p *Image[T]) Format() Format {
	return Format{Layout: p.Layout, Kind: KindOf[T](), Bits: BitsOf[T]()}
}

// PixOffset returns the index of the first sample of the pixel at (x, y).
func (p *Image[T]) PixOffset(x, y int) int {
	return (y-p.Rect.Min.Y)*p.Stride + (x-p.Rect.Min.X)*p.Layout.Channels()
}

// Channel returns sample c of the pixel at (x, y).
func (p *Image[T]) Channel(x, y, c int) T {
	if !(image.Point{X: x, Y: y}.In(p.Rect)) {
		var zero T
		return zero
	}

	return p.Pix[p.PixOffset(x, y)+c]
}

// SetChannel sets sample c of the pixel at (x, y).
func (p *Image[T]) SetChannel(x, y, c int, v T) {
	if !(image.Point{X: x, Y: y}.In(p.Rect)) {
		return
	}

	p.Pix[p.PixOffset(x, y)+c] = v
}

func (p *Image[T]) At(x, y int) color.Color {
	if !(image.Point{X: x, Y: y}.In(p.Rect)) {
		return color.NRGBA64{}
	}

	i := p.PixOffset(x, y)

	return toNRGBA64(p.Layout, func(c int) uint16 { return unit16(p.Pix[i+c]) })
}

// Planar is a buffer that stores every channel in its own plane.
type Planar[T Sample] struct {
	// Planes holds one row-major plane per channel.
	Planes [][]T
	// Stride is the distance in samples between vertically adjacent pixels of a plane.
	Stride int
	Rect   image.Rectangle
	Layout Layout
}

// NewPlanar returns a new planar buffer with the given bounds and layout.
func NewPlanar[T Sample](r image.Rectangle, layout Layout) *Planar[T] {
	planes := make([][]T, layout.Channels())
	for i := range planes {
		planes[i] = make([]T, r.Dx()*r.Dy())
	}

	return &Planar[T]{
		Planes: planes,
		Stride: r.Dx(),
		Rect:   r,
		Layout: layout,
	}
}

func (p *Planar[T]) Bounds() image.Rectangle { return p.Rect }

func (p *Planar[T]) ColorModel() color.Model { return color.NRGBA64Model }

func (p *Planar[T]) Format() Format {
	return Format{Layout: p.Layout, Kind: KindOf[T](), Bits: BitsOf[T](), Planar: true}
}

// PixOffset returns the index of the pixel at (x, y) within each plane.
func (p *Planar[T]) PixOffset(x, y int) int {
	return (y-p.Rect.Min.Y)*p.Stride + (x - p.Rect.Min.X)
}

// Channel returns sample c of the pixel at (x, y).
func (p *Planar[T]) Channel(x, y, c int) T {
	if !(image.Point{X: x, Y: y}.In(p.Rect)) {
		var zero T
		return zero
	}

	return p.Planes[c][p.PixOffset(x, y)]
}

// SetChannel sets sample c of the pixel at (x, y).
func (p *Planar[T]) SetChannel(x, y, c int, v T) {
	if !(image.Point{X: x, Y: y}.In(p.Rect)) {
		return
	}

	p.Planes[c][p.PixOffset(x, y)] = v
}

func (p *Planar[T]) At(x, y int) color.Color {
	if !(image.Point{X: x, Y: y}.In(p.Rect)) {
		return color.NRGBA64{}
	}

	i := p.PixOffset(x, y)

	return toNRGBA64(p.Layout, func(c int) uint16 { return unit16(p.Planes[c][i]) })
}

// Bilevel is a 1-bit gray buffer. Eight pixels are packed per byte, most
// significant bit first; each row starts on a byte boundary.
type Bilevel struct {
	Pix []byte
	// Stride is the distance in bytes between vertically adjacent pixels.
	Stride int
	Rect   image.Rectangle
}

// NewBilevel returns a new bilevel buffer with the given bounds.
func NewBilevel(r image.Rectangle) *Bilevel {
	stride := (r.Dx() + 7) / 8

	return &Bilevel{
		Pix:    make([]byte, stride*r.Dy()),
		Stride: stride,
		Rect:   r,
	}
}

func (p *Bilevel) Bounds() image.Rectangle { return p.Rect }

func (p *Bilevel) ColorModel() color.Model { return color.GrayModel }

func (p *Bilevel) Format() Format {
	return Format{Layout: Gray, Kind: Uint, Bits: 1}
}

// Bit returns the raw sample (0 or 1) of the pixel at (x, y).
func (p *Bilevel) Bit(x, y int) uint8 {
	if !(image.Point{X: x, Y: y}.In(p.Rect)) {
		return 0
	}

	dx := x - p.Rect.Min.X
	b := p.Pix[(y-p.Rect.Min.Y)*p.Stride+dx/8]

	return (b >> (7 - uint(dx%8))) & 1
}

// SetBit sets the raw sample of the pixel at (x, y). Any non-zero v stores 1.
func (p *Bilevel) SetBit(x, y int, v uint8) {
	if !(image.Point{X: x, Y: y}.In(p.Rect)) {
		return
	}

	dx := x - p.Rect.Min.X
	i := (y-p.Rect.Min.Y)*p.Stride + dx/8
	mask := byte(0x80) >> uint(dx%8)
	if v != 0 {
		p.Pix[i] |= mask
	} else {
		p.Pix[i] &^= mask
	}
}

func (p *Bilevel) At(x, y int) color.Color {
	if p.Bit(x, y) != 0 {
		return color.Gray{Y: 0xff}
	}

	return color.Gray{}
}

func toNRGBA64(l Layout, ch func(c int) uint16) color.NRGBA64 {
	switch l {
	case GrayAlpha:
		g := ch(0)
		return color.NRGBA64{R: g, G: g, B: g, A: ch(1)}
	case RGB:
		return color.NRGBA64{R: ch(0), G: ch(1), B: ch(2), A: 0xffff}
	case RGBA:
		return color.NRGBA64{R: ch(0), G: ch(1), B: ch(2), A: ch(3)}
	default:
		g := ch(0)
		return color.NRGBA64{R: g, G: g, B: g, A: 0xffff}
	}
}

// FormatOf reports the Format of m. Besides the buffers of this package it
// knows the standard library types that have an exact sample layout.
func FormatOf(m image.Image) (Format, bool) {
	if b, ok := m.(Buffer); ok {
		return b.Format(), true
	}

	switch m.(type) {
	case *image.Gray:
		return Format{Layout: Gray, Kind: Uint, Bits: 8}, true
	case *image.Gray16:
		return Format{Layout: Gray, Kind: Uint, Bits: 16}, true
	case *image.NRGBA, *image.RGBA:
		return Format{Layout: RGBA, Kind: Uint, Bits: 8}, true
	case *image.NRGBA64, *image.RGBA64:
		return Format{Layout: RGBA, Kind: Uint, Bits: 16}, true
	case *image.Paletted:
		return Format{Layout: Indexed, Kind: Uint, Bits: 8}, true
	case *hdr.RGB:
		return Format{Layout: RGB, Kind: Float, Bits: 64}, true
	}

	return Format{}, false
}
