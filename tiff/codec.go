package tiff

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"slices"
	"sync"

	"github.com/mdouchement/hdr"
	"github.com/mdouchement/hdr/hdrcolor"
	"github.com/samber/lo"

	"github.com/gen2brain/imageio/pixel"
)

// layoutCodec moves pixel rows between decoded strip bytes and one in-memory
// buffer type. Coordinates passed to unpack and pack are relative to the
// buffer origin. A plane of -1 selects all channels interleaved.
type layoutCodec struct {
	format pixel.Format
	// typeName names the Go type the codec allocates.
	typeName string

	alloc  func(r image.Rectangle, info *ImageInfo) image.Image
	unpack func(m image.Image, src []byte, x0, y, n, plane int, bo binary.ByteOrder)
	pack   func(m image.Image, dst []byte, y, plane int, bo binary.ByteOrder)
}

// codecKey is the dispatch key.
type codecKey struct {
	layout pixel.Layout
	kind   pixel.Kind
	bits   int
	planar bool
	hdr    bool
}

func keyOf(f pixel.Format, float bool) codecKey {
	return codecKey{layout: f.Layout, kind: f.Kind, bits: f.Bits, planar: f.Planar, hdr: float}
}

var codecs = make(map[codecKey]*layoutCodec)

// bufferCodecs serve pixel.Image buffers whose format decodes into a
// standard library type. They are only used for encoding.
var bufferCodecs = make(map[codecKey]*layoutCodec)

func register(c *layoutCodec) {
	codecs[keyOf(c.format, false)] = c
}

// lookup returns the codec for f. With float set, the *hdr.RGB entries take
// precedence.
func lookup(f pixel.Format, float bool) (*layoutCodec, error) {
	if float {
		if c, ok := codecs[keyOf(f, true)]; ok {
			return c, nil
		}
	}

	c, ok := codecs[keyOf(f, false)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", "pixel format "+f.String(), ErrUnsupported)
	}

	return c, nil
}

// codecFor returns the format of m and the codec that packs its rows.
func codecFor(m image.Image) (pixel.Format, *layoutCodec, error) {
	f, ok := pixel.FormatOf(m)
	if !ok {
		return f, nil, fmt.Errorf("%s: %w", fmt.Sprintf("image type %T", m), ErrUnsupported)
	}

	if _, ok := m.(pixel.Buffer); ok {
		if c, ok := bufferCodecs[keyOf(f, false)]; ok {
			return f, c, nil
		}
	}

	_, isHDR := m.(*hdr.RGB)
	c, err := lookup(f, isHDR)

	return f, c, err
}

func init() {
	multi := []pixel.Layout{pixel.GrayAlpha, pixel.RGB, pixel.RGBA}

	registerTyped[int8](pixel.Gray, multi...)
	registerTyped[uint8](-1, pixel.GrayAlpha, pixel.RGB)
	registerTyped[uint16](-1, pixel.GrayAlpha, pixel.RGB)
	registerTyped[int16](pixel.Gray, multi...)
	registerTyped[uint32](pixel.Gray, multi...)
	registerTyped[int32](pixel.Gray, multi...)
	registerTyped[float32](pixel.Gray, multi...)
	registerTyped[float64](pixel.Gray, multi...)

	// Planar variants of the layouts served by the standard library types.
	// Single channel planar buffers are only ever written.
	for _, l := range []pixel.Layout{pixel.Gray, pixel.RGBA} {
		register(typedCodec[uint8](l, true))
		register(typedCodec[uint16](l, true))
	}

	register(bilevelCodec())
	register(std8Codec(pixel.Gray, "*image.Gray", func(r image.Rectangle, _ *ImageInfo) image.Image {
		return image.NewGray(r)
	}))
	register(std16Codec(pixel.Gray, "*image.Gray16", func(r image.Rectangle, _ *ImageInfo) image.Image {
		return image.NewGray16(r)
	}))
	register(std8Codec(pixel.RGBA, "*image.NRGBA", func(r image.Rectangle, info *ImageInfo) image.Image {
		if info != nil && info.associatedAlpha() {
			return image.NewRGBA(r)
		}

		return image.NewNRGBA(r)
	}))
	register(std16Codec(pixel.RGBA, "*image.NRGBA64", func(r image.Rectangle, info *ImageInfo) image.Image {
		if info != nil && info.associatedAlpha() {
			return image.NewRGBA64(r)
		}

		return image.NewNRGBA64(r)
	}))

	for _, bits := range []int{1, 2, 4, 8} {
		register(palettedCodec(bits))
	}

	for _, bits := range []int{32, 64} {
		for _, planar := range []bool{false, true} {
			c := hdrCodec(bits, planar)
			codecs[keyOf(c.format, true)] = c
		}
	}

	for _, c := range []*layoutCodec{
		typedCodec[uint8](pixel.Gray, false),
		typedCodec[uint8](pixel.RGBA, false),
		typedCodec[uint8](pixel.Indexed, false),
		typedCodec[uint16](pixel.Gray, false),
		typedCodec[uint16](pixel.RGBA, false),
	} {
		bufferCodecs[keyOf(c.format, false)] = c
	}
}

// registerTyped registers interleaved and planar codecs of T for every layout
// in multi, plus the single channel layout if gray is not negative.
func registerTyped[T pixel.Sample](gray pixel.Layout, multi ...pixel.Layout) {
	if gray >= 0 {
		register(typedCodec[T](gray, false))
		register(typedCodec[T](gray, true))
	}

	for _, l := range multi {
		register(typedCodec[T](l, false))
		register(typedCodec[T](l, true))
	}
}

// typedCodec serves pixel.Image[T] and pixel.Planar[T].
func typedCodec[T pixel.Sample](layout pixel.Layout, planar bool) *layoutCodec {
	ch := layout.Channels()
	size := pixel.BitsOf[T]() / 8
	c := &layoutCodec{
		format: pixel.Format{Layout: layout, Kind: pixel.KindOf[T](), Bits: pixel.BitsOf[T](), Planar: planar},
	}

	if planar {
		c.typeName = fmt.Sprintf("*pixel.Planar[%s]", typeName[T]())
		c.alloc = func(r image.Rectangle, _ *ImageInfo) image.Image {
			return pixel.NewPlanar[T](r, layout)
		}
		c.unpack = func(m image.Image, src []byte, x0, y, n, plane int, bo binary.ByteOrder) {
			p := m.(*pixel.Planar[T])
			i := y*p.Stride + x0
			decodeSamples(p.Planes[plane][i:i+n], src, bo)
		}
		c.pack = func(m image.Image, dst []byte, y, plane int, bo binary.ByteOrder) {
			p := m.(*pixel.Planar[T])
			w := p.Rect.Dx()
			i := y * p.Stride
			if plane >= 0 {
				encodeSamples(dst, p.Planes[plane][i:i+w], bo)

				return
			}

			row := make([]T, w*ch)
			for x := range w {
				for k := range ch {
					row[x*ch+k] = p.Planes[k][i+x]
				}
			}
			encodeSamples(dst, row, bo)
		}

		return c
	}

	c.typeName = fmt.Sprintf("*pixel.Image[%s]", typeName[T]())
	c.alloc = func(r image.Rectangle, _ *ImageInfo) image.Image {
		return pixel.NewImage[T](r, layout)
	}
	c.unpack = func(m image.Image, src []byte, x0, y, n, _ int, bo binary.ByteOrder) {
		p := m.(*pixel.Image[T])
		i := y*p.Stride + x0*ch
		decodeSamples(p.Pix[i:i+n*ch], src, bo)
	}
	c.pack = func(m image.Image, dst []byte, y, plane int, bo binary.ByteOrder) {
		p := m.(*pixel.Image[T])
		w := p.Rect.Dx()
		row := p.Pix[y*p.Stride : y*p.Stride+w*ch]
		if plane < 0 {
			encodeSamples(dst, row, bo)

			return
		}

		for x := range w {
			encodeSamples(dst[x*size:], row[x*ch+plane:x*ch+plane+1], bo)
		}
	}

	return c
}

func typeName[T pixel.Sample]() string {
	var zero T

	return fmt.Sprintf("%T", zero)
}

// pix8 returns the byte slice and stride backing a standard library image.
func pix8(m image.Image) ([]uint8, int) {
	switch m := m.(type) {
	case *image.Gray:
		return m.Pix, m.Stride
	case *image.Gray16:
		return m.Pix, m.Stride
	case *image.NRGBA:
		return m.Pix, m.Stride
	case *image.RGBA:
		return m.Pix, m.Stride
	case *image.NRGBA64:
		return m.Pix, m.Stride
	case *image.RGBA64:
		return m.Pix, m.Stride
	case *image.Paletted:
		return m.Pix, m.Stride
	}

	return nil, 0
}

// std8Codec serves the 8-bit standard library types.
func std8Codec(layout pixel.Layout, name string, alloc func(image.Rectangle, *ImageInfo) image.Image) *layoutCodec {
	ch := layout.Channels()

	return &layoutCodec{
		format:   pixel.Format{Layout: layout, Kind: pixel.Uint, Bits: 8},
		typeName: name,
		alloc:    alloc,
		unpack: func(m image.Image, src []byte, x0, y, n, _ int, _ binary.ByteOrder) {
			pix, stride := pix8(m)
			copy(pix[y*stride+x0*ch:y*stride+(x0+n)*ch], src)
		},
		pack: func(m image.Image, dst []byte, y, plane int, _ binary.ByteOrder) {
			pix, stride := pix8(m)
			w := m.Bounds().Dx()
			row := pix[y*stride : y*stride+w*ch]
			if plane < 0 {
				copy(dst, row)

				return
			}

			for x := range w {
				dst[x] = row[x*ch+plane]
			}
		},
	}
}

// std16Codec serves the 16-bit standard library types, which store samples
// big-endian regardless of the file byte order.
func std16Codec(layout pixel.Layout, name string, alloc func(image.Rectangle, *ImageInfo) image.Image) *layoutCodec {
	ch := layout.Channels()

	return &layoutCodec{
		format:   pixel.Format{Layout: layout, Kind: pixel.Uint, Bits: 16},
		typeName: name,
		alloc:    alloc,
		unpack: func(m image.Image, src []byte, x0, y, n, _ int, bo binary.ByteOrder) {
			pix, stride := pix8(m)
			row := pix[y*stride+2*x0*ch : y*stride+2*(x0+n)*ch]
			for i := 0; i < len(row); i += 2 {
				binary.BigEndian.PutUint16(row[i:], bo.Uint16(src[i:]))
			}
		},
		pack: func(m image.Image, dst []byte, y, plane int, bo binary.ByteOrder) {
			pix, stride := pix8(m)
			w := m.Bounds().Dx()
			row := pix[y*stride : y*stride+2*w*ch]
			if plane < 0 {
				for i := 0; i < len(row); i += 2 {
					bo.PutUint16(dst[i:], binary.BigEndian.Uint16(row[i:]))
				}

				return
			}

			for x := range w {
				bo.PutUint16(dst[2*x:], binary.BigEndian.Uint16(row[2*(x*ch+plane):]))
			}
		},
	}
}

// bilevelCodec serves pixel.Bilevel, whose rows match the packed file rows.
func bilevelCodec() *layoutCodec {
	return &layoutCodec{
		format:   pixel.Format{Layout: pixel.Gray, Kind: pixel.Uint, Bits: 1},
		typeName: "*pixel.Bilevel",
		alloc: func(r image.Rectangle, _ *ImageInfo) image.Image {
			return pixel.NewBilevel(r)
		},
		unpack: func(m image.Image, src []byte, x0, y, n, _ int, _ binary.ByteOrder) {
			p := m.(*pixel.Bilevel)
			row := p.Pix[y*p.Stride : (y+1)*p.Stride]
			if x0%8 == 0 {
				copy(row[x0/8:], src[:(n+7)/8])

				return
			}

			for i := range n {
				bit := (src[i/8] >> (7 - uint(i%8))) & 1
				x := x0 + i
				mask := byte(0x80) >> uint(x%8)
				if bit != 0 {
					row[x/8] |= mask
				} else {
					row[x/8] &^= mask
				}
			}
		},
		pack: func(m image.Image, dst []byte, y, _ int, _ binary.ByteOrder) {
			p := m.(*pixel.Bilevel)
			copy(dst, p.Pix[y*p.Stride:(y+1)*p.Stride])
		},
	}
}

// palettedCodec serves *image.Paletted for indices of the given width.
func palettedCodec(bits int) *layoutCodec {
	mask := byte(1<<bits - 1)

	return &layoutCodec{
		format:   pixel.Format{Layout: pixel.Indexed, Kind: pixel.Uint, Bits: bits},
		typeName: "*image.Paletted",
		alloc: func(r image.Rectangle, info *ImageInfo) image.Image {
			var palette color.Palette
			if info != nil {
				palette = info.ColorMap
			}

			if len(palette) == 0 {
				palette = grayPalette(bits)
			}

			return image.NewPaletted(r, palette)
		},
		unpack: func(m image.Image, src []byte, x0, y, n, _ int, _ binary.ByteOrder) {
			p := m.(*image.Paletted)
			row := p.Pix[y*p.Stride+x0 : y*p.Stride+x0+n]
			for i := range row {
				pos := i * bits
				row[i] = (src[pos/8] >> (8 - bits - pos%8)) & mask
			}
		},
		pack: func(m image.Image, dst []byte, y, _ int, _ binary.ByteOrder) {
			p := m.(*image.Paletted)
			w := p.Rect.Dx()
			row := p.Pix[y*p.Stride : y*p.Stride+w]
			clear(dst[:(w*bits+7)/8])
			for i, v := range row {
				pos := i * bits
				dst[pos/8] |= (v & mask) << (8 - bits - pos%8)
			}
		},
	}
}

func grayPalette(bits int) color.Palette {
	n := 1 << bits
	p := make(color.Palette, n)
	for i := range p {
		p[i] = color.Gray{Y: uint8(i * 255 / (n - 1))}
	}

	return p
}

// hdrCodec serves *hdr.RGB for float RGB stored interleaved or planar.
func hdrCodec(bits int, planar bool) *layoutCodec {
	size := bits / 8

	// Planes of one pixel are set by different blocks.
	var mu sync.Mutex

	return &layoutCodec{
		format:   pixel.Format{Layout: pixel.RGB, Kind: pixel.Float, Bits: bits, Planar: planar},
		typeName: "*hdr.RGB",
		alloc: func(r image.Rectangle, _ *ImageInfo) image.Image {
			return hdr.NewRGB(r)
		},
		unpack: func(m image.Image, src []byte, x0, y, n, plane int, bo binary.ByteOrder) {
			h := m.(*hdr.RGB)
			minX, minY := h.Bounds().Min.X, h.Bounds().Min.Y
			if planar {
				mu.Lock()
				defer mu.Unlock()
			}

			for i := range n {
				x := minX + x0 + i
				if planar {
					c := h.RGBAt(x, minY+y)
					v := [3]*float64{&c.R, &c.G, &c.B}
					*v[plane] = readFloat(src[i*size:], bits, bo)
					h.SetRGB(x, minY+y, c)

					continue
				}

				var c [3]float64
				for k := range c {
					c[k] = readFloat(src[(3*i+k)*size:], bits, bo)
				}

				h.SetRGB(x, minY+y, hdrcolor.RGB{R: c[0], G: c[1], B: c[2]})
			}
		},
		pack: func(m image.Image, dst []byte, y, plane int, bo binary.ByteOrder) {
			h := m.(*hdr.RGB)
			b := h.Bounds()
			for x := range b.Dx() {
				c := h.RGBAt(b.Min.X+x, b.Min.Y+y)
				v := [3]float64{c.R, c.G, c.B}
				if plane >= 0 {
					writeFloat(dst[x*size:], v[plane], bits, bo)

					continue
				}

				for k := range v {
					writeFloat(dst[(3*x+k)*size:], v[k], bits, bo)
				}
			}
		},
	}
}

func readFloat(src []byte, bits int, bo binary.ByteOrder) float64 {
	if bits == 32 {
		var v [1]float32
		decodeSamples(v[:], src, bo)

		return float64(v[0])
	}

	var v [1]float64
	decodeSamples(v[:], src, bo)

	return v[0]
}

func writeFloat(dst []byte, f float64, bits int, bo binary.ByteOrder) {
	if bits == 32 {
		encodeSamples(dst, []float32{float32(f)}, bo)

		return
	}

	encodeSamples(dst, []float64{f}, bo)
}

// FormatEntry describes one entry of the dispatch table.
type FormatEntry struct {
	Format pixel.Format
	// Type is the Go type the format decodes into.
	Type string
	// HDR is set for entries only selected by Options.HDR.
	HDR bool
}

// SupportedFormats lists the dispatch table ordered by layout, kind, bits and planarity.
func SupportedFormats() []FormatEntry {
	entries := lo.MapToSlice(codecs, func(k codecKey, c *layoutCodec) FormatEntry {
		return FormatEntry{Format: c.format, Type: c.typeName, HDR: k.hdr}
	})

	slices.SortFunc(entries, func(a, b FormatEntry) int {
		ka, kb := formatRank(a), formatRank(b)
		for i := range ka {
			if ka[i] != kb[i] {
				return ka[i] - kb[i]
			}
		}

		return 0
	})

	return entries
}

func formatRank(e FormatEntry) [5]int {
	f := e.Format

	return [5]int{int(f.Layout), int(f.Kind), f.Bits, lo.Ternary(f.Planar, 1, 0), lo.Ternary(e.HDR, 1, 0)}
}
