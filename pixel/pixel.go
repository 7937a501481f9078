// Package pixel provides the strongly typed in-memory buffers that the codec
// packages decode into and encode from.
//
// A buffer is described at runtime by a Format: the channel layout, the kind
// and width of each sample, and whether channels are interleaved or stored in
// separate planes. Formats that have an exact counterpart in the standard
// library (gray8, gray16, rgba8, rgba16, indexed8) are served by the image
// package types; every other combination uses Image[T] or Planar[T].
package pixel

import (
	"fmt"
	"math"
)

// Sample is the set of Go types a single channel value can have.
type Sample interface {
	uint8 | int8 | uint16 | int16 | uint32 | int32 | float32 | float64
}

// Layout is the channel layout of a pixel.
type Layout int

const (
	// Gray is a single luminance channel.
	Gray Layout = iota
	// GrayAlpha is luminance followed by alpha.
	GrayAlpha
	// RGB is red, green, blue.
	RGB
	// RGBA is red, green, blue, alpha.
	RGBA
	// Indexed is a single palette index channel.
	Indexed
)

// Channels returns the number of samples per pixel for the layout.
func (l Layout) Channels() int {
	switch l {
	case GrayAlpha:
		return 2
	case RGB:
		return 3
	case RGBA:
		return 4
	default:
		return 1
	}
}

func (l Layout) String() string {
	switch l {
	case Gray:
		return "gray"
	case GrayAlpha:
		return "graya"
	case RGB:
		return "rgb"
	case RGBA:
		return "rgba"
	case Indexed:
		return "indexed"
	}

	return fmt.Sprintf("layout(%d)", int(l))
}

// Kind is the numeric interpretation of a sample.
type Kind int

const (
	// Uint is an unsigned integer sample.
	Uint Kind = iota
	// Int is a two's complement signed integer sample.
	Int
	// Float is an IEEE floating point sample.
	Float
)

func (k Kind) String() string {
	switch k {
	case Uint:
		return "uint"
	case Int:
		return "int"
	case Float:
		return "float"
	}

	return fmt.Sprintf("kind(%d)", int(k))
}

// Format is the runtime descriptor of a pixel buffer.
type Format struct {
	Layout Layout
	Kind   Kind
	Bits   int  // Bits per sample.
	Planar bool // Channels are stored in separate planes.
}

// String returns a compact name such as "rgb16s" or "rgba32f_planar".
func (f Format) String() string {
	s := fmt.Sprintf("%s%d", f.Layout, f.Bits)
	switch f.Kind {
	case Int:
		s += "s"
	case Float:
		s += "f"
	}

	if f.Planar {
		s += "_planar"
	}

	return s
}

// KindOf returns the Kind of the sample type T.
func KindOf[T Sample]() Kind {
	var zero T
	switch any(zero).(type) {
	case int8, int16, int32:
		return Int
	case float32, float64:
		return Float
	default:
		return Uint
	}
}

// BitsOf returns the width in bits of the sample type T.
func BitsOf[T Sample]() int {
	var zero T
	switch any(zero).(type) {
	case uint8, int8:
		return 8
	case uint16, int16:
		return 16
	case uint32, int32, float32:
		return 32
	default:
		return 64
	}
}

// unit16 maps a sample onto the 16-bit range used by color.NRGBA64.
// Signed samples are offset by their minimum; floats are clamped to [0, 1].
func unit16[T Sample](v T) uint16 {
	switch s := any(v).(type) {
	case uint8:
		return uint16(s) * 0x101
	case int8:
		return uint16(uint8(int16(s)+128)) * 0x101
	case uint16:
		return s
	case int16:
		return uint16(int32(s) + 32768)
	case uint32:
		return uint16(s >> 16)
	case int32:
		return uint16((int64(s) + 1<<31) >> 16)
	case float32:
		return unitFloat(float64(s))
	case float64:
		return unitFloat(s)
	}

	return 0
}

func unitFloat(f float64) uint16 {
	if math.IsNaN(f) || f <= 0 {
		return 0
	}

	if f >= 1 {
		return 0xffff
	}

	return uint16(f*0xffff + 0.5)
}
