package targa

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"io"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gen2brain/imageio/pixel"
)

func rawHeader(mod func(h *Header)) []byte {
	h := Header{ImageType: imageTypeRGB, Width: 2, Height: 2, BitsPerPixel: 24}
	if mod != nil {
		mod(&h)
	}

	return h.marshal()
}

func TestDecodeHeaderErrors(t *testing.T) {
	tests := []struct {
		name string
		mod  func(h *Header)
		msg  string
		want error
	}{
		{"color map", func(h *Header) { h.ColorMapType = 1 }, "cannot read indexed targa files", ErrUnsupported},
		{"rle", func(h *Header) { h.ImageType = 10 }, "cannot read this targa image type", ErrUnsupported},
		{"gray", func(h *Header) { h.ImageType = 3 }, "cannot read this targa image type", ErrUnsupported},
		{"zero width", func(h *Header) { h.Width = 0 }, "invalid dimension for targa file", ErrFormat},
		{"zero height", func(h *Header) { h.Height = 0 }, "invalid dimension for targa file", ErrFormat},
		{"16 bit", func(h *Header) { h.BitsPerPixel = 16 }, "unsupported bit depth for targa file", ErrUnsupported},
		{"8 bit", func(h *Header) { h.BitsPerPixel = 8 }, "unsupported bit depth for targa file", ErrUnsupported},
		{"24 bit with alpha bits", func(h *Header) { h.Descriptor = 8 }, "unsupported descriptor for targa file", ErrUnsupported},
		{"32 bit without alpha bits", func(h *Header) { h.BitsPerPixel = 32 }, "unsupported descriptor for targa file", ErrUnsupported},
		{"interleaved", func(h *Header) { h.Descriptor = 0x40 }, "unsupported descriptor for targa file", ErrUnsupported},
		{"top to bottom", func(h *Header) { h.Descriptor = topToBottom }, "unsupported descriptor for targa file", ErrUnsupported},
		{"right to left", func(h *Header) { h.Descriptor = rightToLeft }, "unsupported descriptor for targa file", ErrUnsupported},
		{"32 bit top to bottom", func(h *Header) { h.BitsPerPixel = 32; h.Descriptor = 8 | topToBottom }, "unsupported descriptor for targa file", ErrUnsupported},
		// Checks run in header order.
		{"color map first", func(h *Header) { h.ColorMapType = 1; h.Width = 0 }, "cannot read indexed targa files", ErrUnsupported},
		{"dimension before depth", func(h *Header) { h.Height = 0; h.BitsPerPixel = 16 }, "invalid dimension for targa file", ErrFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeHeader(bytes.NewReader(rawHeader(tt.mod)))
			if !errors.Is(err, tt.want) {
				t.Fatalf("got error %v, want %v", err, tt.want)
			}

			if !strings.Contains(err.Error(), tt.msg) {
				t.Errorf("error %q does not contain %q", err, tt.msg)
			}
		})
	}
}

func TestDecodeHeaderTruncated(t *testing.T) {
	data := rawHeader(func(h *Header) { h.IDLength = 4 })

	for _, n := range []int{0, 5, headerSize, headerSize + 3} {
		_, err := DecodeHeader(bytes.NewReader(data[:min(n, len(data))]))
		if !errors.Is(err, ErrFormat) || !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Errorf("%d bytes: got error %v", n, err)
		}
	}
}

func TestDecodeHeaderOrigin(t *testing.T) {
	data := rawHeader(func(h *Header) { h.Descriptor = topToBottom | rightToLeft; h.XOrigin = 7 })

	h, err := DecodeHeader(bytes.NewReader(data), &Options{Origin: true})
	if err != nil {
		t.Fatal(err)
	}

	if !h.TopToBottom() || !h.RightToLeft() {
		t.Errorf("origin bits not reported: descriptor %#x", h.Descriptor)
	}

	if h.XOrigin != 7 || h.DataOffset() != headerSize {
		t.Errorf("got x origin %d and data offset %d", h.XOrigin, h.DataOffset())
	}

	// Other descriptor bits stay invalid.
	data = rawHeader(func(h *Header) { h.Descriptor = topToBottom | 0x40 })
	if _, err := DecodeHeader(bytes.NewReader(data), &Options{Origin: true}); !errors.Is(err, ErrUnsupported) {
		t.Errorf("interleaved with origin: got error %v, want %v", err, ErrUnsupported)
	}

	data = rawHeader(func(h *Header) { h.Descriptor = topToBottom | 8 })
	if _, err := DecodeHeader(bytes.NewReader(data), &Options{Origin: true}); !errors.Is(err, ErrUnsupported) {
		t.Errorf("24 bit with alpha bits and origin: got error %v, want %v", err, ErrUnsupported)
	}
}

func randomRGB(w, h int, rng *rand.Rand) *pixel.Image[uint8] {
	m := pixel.NewImage[uint8](image.Rect(0, 0, w, h), pixel.RGB)
	for i := range m.Pix {
		m.Pix[i] = uint8(rng.IntN(256))
	}

	return m
}

func randomNRGBA(w, h int, rng *rand.Rand) *image.NRGBA {
	m := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range m.Pix {
		m.Pix[i] = uint8(rng.IntN(256))
	}

	return m
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	tests := []struct {
		name string
		img  image.Image
		opts *EncodeOptions
	}{
		{"rgb24", randomRGB(9, 5, rng), nil},
		{"rgb24 top left", randomRGB(9, 5, rng), &EncodeOptions{TopLeft: true}},
		{"rgba32", randomNRGBA(7, 6, rng), nil},
		{"rgba32 top left with id", randomNRGBA(7, 6, rng), &EncodeOptions{TopLeft: true, ID: "imageio test"}},
		{"single pixel", randomNRGBA(1, 1, rng), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := Encode(&buf, tt.img, tt.opts); err != nil {
				t.Fatalf("Encode: %v", err)
			}

			if !bytes.HasSuffix(buf.Bytes(), footer) {
				t.Errorf("missing TGA 2.0 footer")
			}

			var opts *Options
			if tt.opts != nil && tt.opts.TopLeft {
				opts = &Options{Origin: true}

				if _, err := Decode(bytes.NewReader(buf.Bytes())); !errors.Is(err, ErrUnsupported) {
					t.Errorf("top-left file decoded without Origin: %v", err)
				}
			}

			got, err := Decode(bytes.NewReader(buf.Bytes()), opts)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}

			var diff string
			switch want := tt.img.(type) {
			case *pixel.Image[uint8]:
				diff = cmp.Diff(want, got)
			case *image.NRGBA:
				diff = cmp.Diff(want, got)
			}

			if diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}

			if tt.opts != nil && tt.opts.ID != "" {
				h, err := DecodeHeader(bytes.NewReader(buf.Bytes()), opts)
				if err != nil {
					t.Fatal(err)
				}

				if h.ID != tt.opts.ID {
					t.Errorf("got id %q, want %q", h.ID, tt.opts.ID)
				}
			}
		})
	}
}

func TestEncodeConversions(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 3, 2))
	for i := range gray.Pix {
		gray.Pix[i] = uint8(40 * i)
	}

	rgba := image.NewRGBA(image.Rect(0, 0, 2, 1))
	rgba.SetRGBA(0, 0, color.RGBA{R: 64, G: 32, B: 16, A: 128})
	rgba.SetRGBA(1, 0, color.RGBA{R: 10, G: 20, B: 30, A: 255})

	t.Run("gray", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Encode(&buf, gray, nil); err != nil {
			t.Fatal(err)
		}

		if bpp := buf.Bytes()[16]; bpp != 24 {
			t.Fatalf("got %d bits per pixel, want 24", bpp)
		}

		got, err := Decode(&buf)
		if err != nil {
			t.Fatal(err)
		}

		m := got.(*pixel.Image[uint8])
		for y := range 2 {
			for x := range 3 {
				v := gray.GrayAt(x, y).Y
				for c := range 3 {
					if m.Channel(x, y, c) != v {
						t.Fatalf("pixel %d,%d channel %d: got %d, want %d", x, y, c, m.Channel(x, y, c), v)
					}
				}
			}
		}
	})

	t.Run("premultiplied", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Encode(&buf, rgba, nil); err != nil {
			t.Fatal(err)
		}

		got, err := Decode(&buf)
		if err != nil {
			t.Fatal(err)
		}

		m := got.(*image.NRGBA)
		for x := range 2 {
			want := color.NRGBAModel.Convert(rgba.At(x, 0)).(color.NRGBA)
			if c := m.NRGBAAt(x, 0); c != want {
				t.Errorf("pixel %d: got %v, want %v", x, c, want)
			}
		}
	})
}

func TestDecodeOrigin(t *testing.T) {
	// 2x2 image stored right to left and bottom up.
	data := rawHeader(func(h *Header) { h.Descriptor = rightToLeft })
	data = append(data,
		1, 2, 3, 4, 5, 6, // bottom row, right pixel first
		7, 8, 9, 10, 11, 12, // top row
	)

	if _, err := Decode(bytes.NewReader(data)); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("got error %v without Origin, want %v", err, ErrUnsupported)
	}

	got, err := Decode(bytes.NewReader(data), &Options{Origin: true})
	if err != nil {
		t.Fatal(err)
	}

	want := []uint8{
		12, 11, 10, 9, 8, 7,
		6, 5, 4, 3, 2, 1,
	}

	if diff := cmp.Diff(want, got.(*pixel.Image[uint8]).Pix); diff != "" {
		t.Errorf("pixels mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeSkipsColorMap(t *testing.T) {
	// A color map may be present in a true-color file; it is skipped.
	data := rawHeader(func(h *Header) {
		h.Width, h.Height = 1, 1
		h.ColorMapLength, h.ColorMapDepth = 2, 24
	})
	data = append(data, 0, 0, 0, 0, 0, 0)
	data = append(data, 30, 20, 10)

	got, err := Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]uint8{10, 20, 30}, got.(*pixel.Image[uint8]).Pix); diff != "" {
		t.Errorf("pixels mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeTruncated(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, randomNRGBA(4, 4, rand.New(rand.NewPCG(3, 4))), nil); err != nil {
		t.Fatal(err)
	}

	data := buf.Bytes()[:headerSize+20]
	for name, r := range map[string]io.Reader{
		"bytes reader": bytes.NewReader(data),
		"plain reader": io.MultiReader(bytes.NewReader(data)),
	} {
		if _, err := Decode(r); !errors.Is(err, ErrFormat) || !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Errorf("%s: got error %v", name, err)
		}
	}
}

func TestDecodeConfig(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, randomNRGBA(5, 3, rand.New(rand.NewPCG(5, 6))), &EncodeOptions{ID: "x"}); err != nil {
		t.Fatal(err)
	}

	cfg, name, err := image.DecodeConfig(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}

	if name != "tga" || cfg.Width != 5 || cfg.Height != 3 || cfg.ColorModel != color.NRGBAModel {
		t.Errorf("got %q %+v", name, cfg)
	}
}

func TestEncodeErrors(t *testing.T) {
	tests := []struct {
		name string
		img  image.Image
		opts *EncodeOptions
		want error
	}{
		{"empty", image.NewNRGBA(image.Rect(0, 0, 0, 3)), nil, ErrFormat},
		{"too wide", image.NewGray(image.Rect(0, 0, 1<<16, 1)), nil, ErrUnsupported},
		{"long id", image.NewNRGBA(image.Rect(0, 0, 1, 1)), &EncodeOptions{ID: strings.Repeat("a", 256)}, ErrFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Encode(io.Discard, tt.img, tt.opts); !errors.Is(err, tt.want) {
				t.Errorf("got error %v, want %v", err, tt.want)
			}
		})
	}
}

func FuzzDecode(f *testing.F) {
	rng := rand.New(rand.NewPCG(7, 8))
	for _, m := range []image.Image{randomRGB(3, 2, rng), randomNRGBA(2, 3, rng)} {
		var buf bytes.Buffer
		if err := Encode(&buf, m, nil); err != nil {
			f.Fatal(err)
		}

		f.Add(buf.Bytes())
	}

	f.Fuzz(func(t *testing.T, data []byte) {
		cfg, err := DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return
		}

		m, err := Decode(bytes.NewReader(data))
		if err != nil {
			return
		}

		if b := m.Bounds(); b.Dx() != cfg.Width || b.Dy() != cfg.Height {
			t.Fatalf("bounds %v do not match config %dx%d", b, cfg.Width, cfg.Height)
		}
	})
}
