package tiff

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/mdouchement/hdr"
	"github.com/mdouchement/hdr/hdrcolor"
	xtiff "golang.org/x/image/tiff"

	"github.com/gen2brain/imageio/pixel"
)

// randomImage allocates a buffer through c and fills it with random samples.
// Float samples stay finite.
func randomImage(c *layoutCodec, w, h int, rng *rand.Rand) image.Image {
	img := c.alloc(image.Rect(0, 0, w, h), nil)
	f := c.format

	planes, samples := 1, f.Layout.Channels()
	if f.Planar {
		planes, samples = samples, 1
	}

	rowBytes := (w*samples*f.Bits + 7) / 8
	for p := range planes {
		for y := range h {
			row := make([]byte, rowBytes)
			fillSamples(row, f, rng)
			c.unpack(img, row, 0, y, w, p, binary.LittleEndian)
		}
	}

	return img
}

func fillSamples(row []byte, f pixel.Format, rng *rand.Rand) {
	switch {
	case f.Kind == pixel.Float && f.Bits == 32:
		for i := 0; i+4 <= len(row); i += 4 {
			binary.LittleEndian.PutUint32(row[i:], math.Float32bits(float32(rng.NormFloat64())))
		}
	case f.Kind == pixel.Float:
		for i := 0; i+8 <= len(row); i += 8 {
			binary.LittleEndian.PutUint64(row[i:], math.Float64bits(rng.NormFloat64()))
		}
	default:
		rng.Read(row)
	}
}

// packedRows serializes every row of m interleaved, in little-endian order.
func packedRows(t *testing.T, m image.Image) [][]byte {
	t.Helper()

	f, c, err := codecFor(m)
	if err != nil {
		t.Fatalf("no codec for %T: %v", m, err)
	}

	b := m.Bounds()
	rowBytes := (b.Dx()*f.Layout.Channels()*f.Bits + 7) / 8
	rows := make([][]byte, b.Dy())
	for y := range rows {
		rows[y] = make([]byte, rowBytes)
		c.pack(m, rows[y], y, -1, binary.LittleEndian)
	}

	return rows
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	compressions := []Compression{CompressionNone, CompressionDeflate, CompressionPackBits, CompressionZSTD}

	var sources []*layoutCodec
	for _, entry := range SupportedFormats() {
		if entry.HDR {
			continue
		}

		c, err := lookup(entry.Format, false)
		if err != nil {
			t.Fatalf("lookup %s: %v", entry.Format, err)
		}

		sources = append(sources, c)
	}

	// Typed buffers of formats that decode into standard library types.
	for _, c := range bufferCodecs {
		sources = append(sources, c)
	}

	for _, c := range sources {
		for _, comp := range compressions {
			for _, pred := range []bool{false, true} {
				name := fmt.Sprintf("%s/%s/%s/predictor=%v", c.format, c.typeName, comp, pred)
				t.Run(name, func(t *testing.T) {
					src := randomImage(c, 13, 7, rng)

					var buf bytes.Buffer
					opts := &EncodeOptions{Compression: comp, Predictor: pred, RowsPerStrip: 3}
					if err := Encode(&buf, src, opts); err != nil {
						t.Fatalf("Encode failed: %v", err)
					}

					got, err := Decode(bytes.NewReader(buf.Bytes()))
					if err != nil {
						t.Fatalf("Decode failed: %v", err)
					}

					if got.Bounds() != src.Bounds() {
						t.Fatalf("bounds: got %v, want %v", got.Bounds(), src.Bounds())
					}

					if diff := cmp.Diff(packedRows(t, src), packedRows(t, got)); diff != "" {
						t.Errorf("pixel mismatch (-want +got):\n%s", diff)
					}
				})
			}
		}
	}
}

func TestRoundTripPlanarOption(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	src := image.NewNRGBA64(image.Rect(0, 0, 9, 5))
	rng.Read(src.Pix)

	var buf bytes.Buffer
	if err := Encode(&buf, src, &EncodeOptions{Planar: true, Compression: CompressionDeflate}); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	info, err := DecodeInfo(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("DecodeInfo failed: %v", err)
	}

	if info.PlanarConfiguration != PlanarSeparate {
		t.Fatalf("planar configuration = %v, want separate", info.PlanarConfiguration)
	}

	got, err := Decode(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	p, ok := got.(*pixel.Planar[uint16])
	if !ok {
		t.Fatalf("decoded %T, want *pixel.Planar[uint16]", got)
	}

	for y := range 5 {
		for x := range 9 {
			c := src.NRGBA64At(x, y)
			want := []uint16{c.R, c.G, c.B, c.A}
			for k, v := range want {
				if p.Channel(x, y, k) != v {
					t.Fatalf("(%d,%d) channel %d = %d, want %d", x, y, k, p.Channel(x, y, k), v)
				}
			}
		}
	}
}

func TestAssociatedAlpha(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := range src.Pix {
		src.Pix[i] = uint8(i * 3)
	}
	// Keep the buffer a valid premultiplied image.
	for i := 0; i < len(src.Pix); i += 4 {
		src.Pix[i+3] = 0xff
	}

	var buf bytes.Buffer
	if err := Encode(&buf, src, nil); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	info, err := DecodeInfo(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("DecodeInfo failed: %v", err)
	}

	if diff := cmp.Diff([]int{extraAssociated}, info.ExtraSamples); diff != "" {
		t.Errorf("ExtraSamples mismatch (-want +got):\n%s", diff)
	}

	got, err := Decode(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	m, ok := got.(*image.RGBA)
	if !ok {
		t.Fatalf("decoded %T, want *image.RGBA", got)
	}

	if !bytes.Equal(m.Pix, src.Pix) {
		t.Errorf("pixel mismatch")
	}
}

func TestRoundTripHDR(t *testing.T) {
	r := image.Rect(0, 0, 6, 4)
	src := hdr.NewRGB(r)
	for y := range 4 {
		for x := range 6 {
			src.SetRGB(x, y, hdrcolor.RGB{R: float64(x) * 1.5, G: float64(y) * 100, B: -0.25})
		}
	}

	var buf bytes.Buffer
	if err := Encode(&buf, src, &EncodeOptions{Compression: CompressionZSTD, Predictor: true}); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	got, err := Decode(bytes.NewReader(buf.Bytes()), &Options{HDR: true})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	m, ok := got.(*hdr.RGB)
	if !ok {
		t.Fatalf("decoded %T, want *hdr.RGB", got)
	}

	for y := range 4 {
		for x := range 6 {
			if m.RGBAt(x, y) != src.RGBAt(x, y) {
				t.Fatalf("(%d,%d) = %v, want %v", x, y, m.RGBAt(x, y), src.RGBAt(x, y))
			}
		}
	}

	// Without the option the same file decodes into a typed buffer.
	plain, err := Decode(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	p, ok := plain.(*pixel.Image[float64])
	if !ok {
		t.Fatalf("decoded %T, want *pixel.Image[float64]", plain)
	}

	if p.Channel(4, 3, 0) != 6 || p.Channel(4, 3, 1) != 300 || p.Channel(4, 3, 2) != -0.25 {
		t.Errorf("unexpected samples at (4,3): %v %v %v", p.Channel(4, 3, 0), p.Channel(4, 3, 1), p.Channel(4, 3, 2))
	}
}

func TestRoundTripPlanarHDR(t *testing.T) {
	r := image.Rect(0, 0, 5, 3)
	src := pixel.NewPlanar[float32](r, pixel.RGB)
	for y := range 3 {
		for x := range 5 {
			src.SetChannel(x, y, 0, float32(x)+0.5)
			src.SetChannel(x, y, 1, float32(y)*-2)
			src.SetChannel(x, y, 2, float32(x*y)/4)
		}
	}

	var buf bytes.Buffer
	if err := Encode(&buf, src, &EncodeOptions{Compression: CompressionDeflate, RowsPerStrip: 2}); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	got, err := Decode(bytes.NewReader(buf.Bytes()), &Options{HDR: true})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	m, ok := got.(*hdr.RGB)
	if !ok {
		t.Fatalf("decoded %T, want *hdr.RGB", got)
	}

	for y := range 3 {
		for x := range 5 {
			want := hdrcolor.RGB{
				R: float64(src.Channel(x, y, 0)),
				G: float64(src.Channel(x, y, 1)),
				B: float64(src.Channel(x, y, 2)),
			}
			if c := m.RGBAt(x, y); c != want {
				t.Fatalf("(%d,%d) = %v, want %v", x, y, c, want)
			}
		}
	}
}

func TestFallbackConversion(t *testing.T) {
	src := image.NewYCbCr(image.Rect(0, 0, 4, 4), image.YCbCrSubsampleRatio444)
	for i := range src.Y {
		src.Y[i] = uint8(i * 10)
		src.Cb[i] = 128
		src.Cr[i] = 128
	}

	var buf bytes.Buffer
	if err := Encode(&buf, src, nil); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	got, err := Decode(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if _, ok := got.(*image.NRGBA64); !ok {
		t.Fatalf("decoded %T, want *image.NRGBA64", got)
	}

	for y := range 4 {
		for x := range 4 {
			want := color.NRGBA64Model.Convert(src.At(x, y))
			if got.At(x, y) != want {
				t.Fatalf("(%d,%d) = %v, want %v", x, y, got.At(x, y), want)
			}
		}
	}
}

func TestEncodeDecodedByReference(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	r := image.Rect(0, 0, 17, 11)

	gray := image.NewGray(r)
	rng.Read(gray.Pix)
	gray16 := image.NewGray16(r)
	rng.Read(gray16.Pix)
	nrgba := image.NewNRGBA(r)
	rng.Read(nrgba.Pix)
	paletted := image.NewPaletted(r, color.Palette{color.Black, color.White, color.RGBA{R: 0xff, A: 0xff}})
	for i := range paletted.Pix {
		paletted.Pix[i] = uint8(rng.Intn(3))
	}

	images := map[string]image.Image{"gray": gray, "gray16": gray16, "nrgba": nrgba, "paletted": paletted}
	for name, src := range images {
		for _, comp := range []Compression{CompressionNone, CompressionDeflate, CompressionPackBits} {
			t.Run(name+"/"+comp.String(), func(t *testing.T) {
				var buf bytes.Buffer
				if err := Encode(&buf, src, &EncodeOptions{Compression: comp, Predictor: name != "paletted"}); err != nil {
					t.Fatalf("Encode failed: %v", err)
				}

				got, err := xtiff.Decode(bytes.NewReader(buf.Bytes()))
				if err != nil {
					t.Fatalf("reference Decode failed: %v", err)
				}

				for y := r.Min.Y; y < r.Max.Y; y++ {
					for x := r.Min.X; x < r.Max.X; x++ {
						if !sameColor(src.At(x, y), got.At(x, y)) {
							t.Fatalf("(%d,%d) = %v, want %v", x, y, got.At(x, y), src.At(x, y))
						}
					}
				}
			})
		}
	}
}

func TestDecodeReferenceEncoded(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	r := image.Rect(0, 0, 21, 9)

	nrgba := image.NewNRGBA(r)
	rng.Read(nrgba.Pix)
	gray16 := image.NewGray16(r)
	rng.Read(gray16.Pix)

	for name, src := range map[string]image.Image{"nrgba": nrgba, "gray16": gray16} {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := xtiff.Encode(&buf, src, &xtiff.Options{Compression: xtiff.Deflate, Predictor: true}); err != nil {
				t.Fatalf("reference Encode failed: %v", err)
			}

			got, err := Decode(bytes.NewReader(buf.Bytes()))
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}

			if diff := cmp.Diff(packedRows(t, src), packedRows(t, got)); diff != "" {
				t.Errorf("pixel mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func sameColor(a, b color.Color) bool {
	r1, g1, b1, a1 := a.RGBA()
	r2, g2, b2, a2 := b.RGBA()

	return r1 == r2 && g1 == g2 && b1 == b2 && a1 == a2
}

func TestDecodeConfig(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, image.NewGray16(image.Rect(0, 0, 30, 20)), nil); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	cfg, err := DecodeConfig(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("DecodeConfig failed: %v", err)
	}

	if cfg.Width != 30 || cfg.Height != 20 || cfg.ColorModel != color.Gray16Model {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestDecodeInfo(t *testing.T) {
	var buf bytes.Buffer
	src := pixel.NewImage[int16](image.Rect(0, 0, 10, 300), pixel.RGB)
	if err := Encode(&buf, src, &EncodeOptions{Compression: CompressionPackBits, Predictor: true}); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	info, err := DecodeInfo(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("DecodeInfo failed: %v", err)
	}

	want := ImageInfo{
		Width:               10,
		Height:              300,
		SamplesPerPixel:     3,
		BitsPerSample:       16,
		BitsPerSamples:      []int{16, 16, 16},
		Compression:         CompressionPackBits,
		SampleFormat:        SampleFormatInt,
		PlanarConfiguration: PlanarContig,
		Photometric:         PhotometricRGB,
		RowsPerStrip:        defaultStripSize / 60,
		Predictor:           PredictorHorizontal,
		FillOrder:           fillOrderMSB,
		XResolution:         72,
		YResolution:         72,
		ResolutionUnit:      resUnitInch,
		Software:            software,
		ByteOrder:           binary.LittleEndian,
	}

	if diff := cmp.Diff(want, info, cmp.AllowUnexported(ImageInfo{})); diff != "" {
		t.Errorf("ImageInfo mismatch (-want +got):\n%s", diff)
	}

	f, err := info.Format()
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}

	if f.String() != "rgb16s" {
		t.Errorf("Format = %s, want rgb16s", f)
	}
}

func TestReadCancelled(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, image.NewGray(image.Rect(0, 0, 64, 64)), &EncodeOptions{RowsPerStrip: 1}); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	r, err := NewReader(bytes.NewReader(buf.Bytes()), &Options{Concurrency: 1})
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.Read(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Read error = %v, want context.Canceled", err)
	}
}

func TestEncodeUnsupportedCompression(t *testing.T) {
	err := Encode(&bytes.Buffer{}, image.NewGray(image.Rect(0, 0, 1, 1)), &EncodeOptions{Compression: CompressionLZW})
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("error = %v, want ErrUnsupported", err)
	}
}

// addFuzzCorpus adds encoded fixtures to the fuzzing seed corpus.
func addFuzzCorpus(f *testing.F) {
	f.Helper()

	rng := rand.New(rand.NewSource(5))
	for _, entry := range SupportedFormats()[:12] {
		c, _ := lookup(entry.Format, entry.HDR)
		var buf bytes.Buffer
		if err := Encode(&buf, randomImage(c, 5, 4, rng), &EncodeOptions{Compression: CompressionDeflate, Predictor: true}); err != nil {
			f.Fatalf("failed to encode %s: %v", entry.Format, err)
		}

		f.Add(buf.Bytes())
	}
}

// FuzzDecode tests the Decode function for panics with a variety of inputs.
func FuzzDecode(f *testing.F) {
	addFuzzCorpus(f)

	f.Fuzz(func(t *testing.T, data []byte) {
		_, _ = Decode(bytes.NewReader(data))
		_, _ = Decode(bytes.NewReader(data), &Options{HDR: true, Concurrency: 1})
	})
}

// FuzzDecodeConfig tests the DecodeConfig function for panics.
func FuzzDecodeConfig(f *testing.F) {
	addFuzzCorpus(f)

	f.Fuzz(func(t *testing.T, data []byte) {
		_, _ = DecodeConfig(bytes.NewReader(data))
	})
}
