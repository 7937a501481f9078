package tiff

import (
	"encoding/binary"
	"math"

	"github.com/gen2brain/imageio/pixel"
)

// decodeSamples converts len(dst) samples from src, stored in byte order bo.
func decodeSamples[T pixel.Sample](dst []T, src []byte, bo binary.ByteOrder) {
	switch d := any(dst).(type) {
	case []uint8:
		copy(d, src[:len(d)])
	case []int8:
		for i := range d {
			d[i] = int8(src[i])
		}
	case []uint16:
		for i := range d {
			d[i] = bo.Uint16(src[2*i:])
		}
	case []int16:
		for i := range d {
			d[i] = int16(bo.Uint16(src[2*i:]))
		}
	case []uint32:
		for i := range d {
			d[i] = bo.Uint32(src[4*i:])
		}
	case []int32:
		for i := range d {
			d[i] = int32(bo.Uint32(src[4*i:]))
		}
	case []float32:
		for i := range d {
			d[i] = math.Float32frombits(bo.Uint32(src[4*i:]))
		}
	case []float64:
		for i := range d {
			d[i] = math.Float64frombits(bo.Uint64(src[8*i:]))
		}
	}
}

// encodeSamples stores src into dst in byte order bo.
func encodeSamples[T pixel.Sample](dst []byte, src []T, bo binary.ByteOrder) {
	switch s := any(src).(type) {
	case []uint8:
		copy(dst, s)
	case []int8:
		for i, v := range s {
			dst[i] = uint8(v)
		}
	case []uint16:
		for i, v := range s {
			bo.PutUint16(dst[2*i:], v)
		}
	case []int16:
		for i, v := range s {
			bo.PutUint16(dst[2*i:], uint16(v))
		}
	case []uint32:
		for i, v := range s {
			bo.PutUint32(dst[4*i:], v)
		}
	case []int32:
		for i, v := range s {
			bo.PutUint32(dst[4*i:], uint32(v))
		}
	case []float32:
		for i, v := range s {
			bo.PutUint32(dst[4*i:], math.Float32bits(v))
		}
	case []float64:
		for i, v := range s {
			bo.PutUint64(dst[8*i:], math.Float64bits(v))
		}
	}
}

// encodeSample stores a single sample at the start of dst.
func encodeSample[T pixel.Sample](dst []byte, v T, bo binary.ByteOrder) {
	encodeSamples(dst, []T{v}, bo)
}
