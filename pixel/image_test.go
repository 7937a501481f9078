package pixel

import (
	"image"
	"image/color"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/mdouchement/hdr"
)

func TestFormatString(t *testing.T) {
	tests := []struct {
		format Format
		want   string
	}{
		{Format{Layout: Gray, Kind: Uint, Bits: 8}, "gray8"},
		{Format{Layout: Gray, Kind: Uint, Bits: 1}, "gray1"},
		{Format{Layout: RGB, Kind: Int, Bits: 16}, "rgb16s"},
		{Format{Layout: RGBA, Kind: Float, Bits: 32, Planar: true}, "rgba32f_planar"},
		{Format{Layout: Indexed, Kind: Uint, Bits: 4}, "indexed4"},
		{Format{Layout: GrayAlpha, Kind: Float, Bits: 64}, "graya64f"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.format.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKindAndBits(t *testing.T) {
	check := func(name string, kind Kind, bits int, wantKind Kind, wantBits int) {
		t.Helper()
		if kind != wantKind || bits != wantBits {
			t.Errorf("%s: got (%v, %d), want (%v, %d)", name, kind, bits, wantKind, wantBits)
		}
	}

	check("uint8", KindOf[uint8](), BitsOf[uint8](), Uint, 8)
	check("int8", KindOf[int8](), BitsOf[int8](), Int, 8)
	check("uint16", KindOf[uint16](), BitsOf[uint16](), Uint, 16)
	check("int16", KindOf[int16](), BitsOf[int16](), Int, 16)
	check("uint32", KindOf[uint32](), BitsOf[uint32](), Uint, 32)
	check("int32", KindOf[int32](), BitsOf[int32](), Int, 32)
	check("float32", KindOf[float32](), BitsOf[float32](), Float, 32)
	check("float64", KindOf[float64](), BitsOf[float64](), Float, 64)
}

func TestImageChannels(t *testing.T) {
	r := image.Rect(2, 3, 5, 5)
	m := NewImage[int16](r, RGB)

	if len(m.Pix) != 3*3*2 || m.Stride != 9 {
		t.Fatalf("unexpected geometry: len=%d stride=%d", len(m.Pix), m.Stride)
	}

	m.SetChannel(4, 4, 2, -7)
	if got := m.Channel(4, 4, 2); got != -7 {
		t.Errorf("Channel = %d, want -7", got)
	}

	if got := m.Pix[m.PixOffset(4, 4)+2]; got != -7 {
		t.Errorf("Pix at offset = %d, want -7", got)
	}

	// Out of bounds access is a no-op.
	m.SetChannel(0, 0, 0, 1)
	if got := m.Channel(0, 0, 0); got != 0 {
		t.Errorf("out of bounds Channel = %d, want 0", got)
	}

	if got := m.At(0, 0); got != (color.NRGBA64{}) {
		t.Errorf("out of bounds At = %v, want zero", got)
	}

	want := Format{Layout: RGB, Kind: Int, Bits: 16}
	if diff := cmp.Diff(want, m.Format()); diff != "" {
		t.Errorf("Format mismatch (-want +got):\n%s", diff)
	}
}

func TestImageAt(t *testing.T) {
	g := NewImage[int8](image.Rect(0, 0, 2, 1), Gray)
	g.Pix[0] = -128
	g.Pix[1] = 127

	if got := g.At(0, 0).(color.NRGBA64); got.R != 0 || got.A != 0xffff {
		t.Errorf("int8 min: got %v", got)
	}

	if got := g.At(1, 0).(color.NRGBA64); got.R != 0xffff {
		t.Errorf("int8 max: got %v", got)
	}

	f := NewImage[float32](image.Rect(0, 0, 3, 1), RGBA)
	copy(f.Pix, []float32{-1, 0.5, 2, 1})

	got := f.At(0, 0).(color.NRGBA64)
	want := color.NRGBA64{R: 0, G: 0x8000, B: 0xffff, A: 0xffff}
	if got != want {
		t.Errorf("float clamp: got %v, want %v", got, want)
	}
}

func TestPlanar(t *testing.T) {
	m := NewPlanar[uint32](image.Rect(0, 0, 4, 2), GrayAlpha)

	if len(m.Planes) != 2 || len(m.Planes[1]) != 8 || m.Stride != 4 {
		t.Fatalf("unexpected geometry: planes=%d stride=%d", len(m.Planes), m.Stride)
	}

	m.SetChannel(3, 1, 1, 0xffffffff)
	m.SetChannel(3, 1, 0, 0x80000000)

	if got := m.Planes[1][7]; got != 0xffffffff {
		t.Errorf("alpha plane = %#x", got)
	}

	c := m.At(3, 1).(color.NRGBA64)
	if c.R != 0x8000 || c.A != 0xffff {
		t.Errorf("At = %v", c)
	}

	if !m.Format().Planar {
		t.Errorf("planar buffer reports interleaved format")
	}
}

func TestBilevel(t *testing.T) {
	m := NewBilevel(image.Rect(0, 0, 10, 2))
	if m.Stride != 2 || len(m.Pix) != 4 {
		t.Fatalf("unexpected geometry: stride=%d len=%d", m.Stride, len(m.Pix))
	}

	m.SetBit(0, 0, 1)
	m.SetBit(9, 1, 1)

	if m.Pix[0] != 0x80 || m.Pix[3] != 0x40 {
		t.Errorf("packed bits = %x", m.Pix)
	}

	if m.Bit(9, 1) != 1 || m.Bit(8, 1) != 0 {
		t.Errorf("Bit mismatch")
	}

	m.SetBit(0, 0, 0)
	if m.Pix[0] != 0 {
		t.Errorf("clear bit: got %#x", m.Pix[0])
	}

	if got := m.At(9, 1); got != (color.Gray{Y: 0xff}) {
		t.Errorf("At = %v", got)
	}
}

func TestFormatOf(t *testing.T) {
	r := image.Rect(0, 0, 1, 1)
	tests := []struct {
		name string
		img  image.Image
		want string
	}{
		{"gray", image.NewGray(r), "gray8"},
		{"gray16", image.NewGray16(r), "gray16"},
		{"nrgba", image.NewNRGBA(r), "rgba8"},
		{"rgba", image.NewRGBA(r), "rgba8"},
		{"rgba64", image.NewRGBA64(r), "rgba16"},
		{"paletted", image.NewPaletted(r, color.Palette{color.Black}), "indexed8"},
		{"hdr", hdr.NewRGB(r), "rgb64f"},
		{"bilevel", NewBilevel(r), "gray1"},
		{"image", NewImage[float64](r, GrayAlpha), "graya64f"},
		{"planar", NewPlanar[uint8](r, RGB), "rgb8_planar"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, ok := FormatOf(tt.img)
			if !ok {
				t.Fatalf("FormatOf reported unknown")
			}

			if f.String() != tt.want {
				t.Errorf("got %s, want %s", f, tt.want)
			}
		})
	}

	if _, ok := FormatOf(image.NewYCbCr(r, image.YCbCrSubsampleRatio420)); ok {
		t.Errorf("YCbCr should not have a sample format")
	}
}
