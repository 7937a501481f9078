package targa

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/gen2brain/imageio/pixel"
)

// headerSize is the size of the fixed part of a Targa header.
const headerSize = 18

const (
	colorMapNone  = 0
	imageTypeRGB  = 2
	rightToLeft   = 1 << 4
	topToBottom   = 1 << 5
)

// Header is the Targa file header, followed by the optional image ID.
type Header struct {
	IDLength       uint8
	ColorMapType   uint8
	ImageType      uint8
	ColorMapStart  uint16
	ColorMapLength uint16
	ColorMapDepth  uint8
	XOrigin        uint16
	YOrigin        uint16
	Width          uint16
	Height         uint16
	BitsPerPixel   uint8
	Descriptor     uint8

	ID string
}

// TopToBottom reports whether the first stored row is the top of the image.
func (h *Header) TopToBottom() bool {
	return h.Descriptor&topToBottom != 0
}

// RightToLeft reports whether stored rows run from right to left.
func (h *Header) RightToLeft() bool {
	return h.Descriptor&rightToLeft != 0
}

// DataOffset returns the file offset of the color map or, when there is
// none, of the pixel data.
func (h *Header) DataOffset() int {
	return headerSize + int(h.IDLength)
}

// colorMapBytes is the size of the color map that precedes the pixels.
func (h *Header) colorMapBytes() int {
	return int(h.ColorMapLength) * ((int(h.ColorMapDepth) + 7) / 8)
}

// Format returns the pixel format Decode produces for the header.
func (h *Header) Format() pixel.Format {
	if h.BitsPerPixel == 32 {
		return pixel.Format{Layout: pixel.RGBA, Kind: pixel.Uint, Bits: 8}
	}

	return pixel.Format{Layout: pixel.RGB, Kind: pixel.Uint, Bits: 8}
}

// validate checks the header against the subset of Targa this package reads.
// The descriptor must be exactly 0 for 24-bit and 8 for 32-bit images unless
// origin is set, which also accepts the row and column order bits.
func (h *Header) validate(origin bool) error {
	if h.ColorMapType != colorMapNone {
		return fmt.Errorf("%s: %w", "cannot read indexed targa files", ErrUnsupported)
	}

	if h.ImageType != imageTypeRGB {
		return fmt.Errorf("%s: %w", "cannot read this targa image type", ErrUnsupported)
	}

	if h.Width < 1 || h.Height < 1 {
		return fmt.Errorf("%s: %w", "invalid dimension for targa file", ErrFormat)
	}

	if h.BitsPerPixel != 24 && h.BitsPerPixel != 32 {
		return fmt.Errorf("%s: %w", "unsupported bit depth for targa file", ErrUnsupported)
	}

	attr := uint8(0)
	if h.BitsPerPixel == 32 {
		attr = 8
	}

	d := h.Descriptor
	if origin {
		d &^= rightToLeft | topToBottom
	}

	if d != attr {
		return fmt.Errorf("%s: %w", "unsupported descriptor for targa file", ErrUnsupported)
	}

	return nil
}

// marshal returns the on-disk form of the header and its ID.
func (h *Header) marshal() []byte {
	b := make([]byte, headerSize, headerSize+len(h.ID))
	b[0] = h.IDLength
	b[1] = h.ColorMapType
	b[2] = h.ImageType
	binary.LittleEndian.PutUint16(b[3:], h.ColorMapStart)
	binary.LittleEndian.PutUint16(b[5:], h.ColorMapLength)
	b[7] = h.ColorMapDepth
	binary.LittleEndian.PutUint16(b[8:], h.XOrigin)
	binary.LittleEndian.PutUint16(b[10:], h.YOrigin)
	binary.LittleEndian.PutUint16(b[12:], h.Width)
	binary.LittleEndian.PutUint16(b[14:], h.Height)
	b[16] = h.BitsPerPixel
	b[17] = h.Descriptor

	return append(b, h.ID...)
}

// readHeader reads the header and the image ID without validating them.
func readHeader(r io.Reader) (Header, error) {
	var b [headerSize]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return Header{}, readError("header", err)
	}

	h := Header{
		IDLength:       b[0],
		ColorMapType:   b[1],
		ImageType:      b[2],
		ColorMapStart:  binary.LittleEndian.Uint16(b[3:]),
		ColorMapLength: binary.LittleEndian.Uint16(b[5:]),
		ColorMapDepth:  b[7],
		XOrigin:        binary.LittleEndian.Uint16(b[8:]),
		YOrigin:        binary.LittleEndian.Uint16(b[10:]),
		Width:          binary.LittleEndian.Uint16(b[12:]),
		Height:         binary.LittleEndian.Uint16(b[14:]),
		BitsPerPixel:   b[16],
		Descriptor:     b[17],
	}

	if h.IDLength > 0 {
		id := make([]byte, h.IDLength)
		if _, err := io.ReadFull(r, id); err != nil {
			return Header{}, readError("image id", err)
		}

		h.ID = string(id)
	}

	return h, nil
}

// DecodeHeader reads the header of a Targa file and checks that Decode can
// read the image with the same options. On return r is positioned after the
// image ID.
func DecodeHeader(r io.Reader, opts ...*Options) (Header, error) {
	h, err := readHeader(r)
	if err != nil {
		return Header{}, err
	}

	if err := h.validate(optionsOf(opts).Origin); err != nil {
		return Header{}, err
	}

	return h, nil
}

// readError wraps a failed read of part of the file.
func readError(what string, err error) error {
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}

	return fmt.Errorf("%s: %w: %w", "reading targa "+what, ErrFormat, err)
}
