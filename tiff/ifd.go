package tiff

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	// maxDirectories bounds the length of an IFD chain.
	maxDirectories = 1024
	// maxFieldSize bounds the value bytes of a single IFD entry.
	maxFieldSize = 64 << 20
)

// field is one decoded IFD entry. Values are kept in file byte order.
type field struct {
	typ   uint16
	count uint32
	data  []byte
}

// directory is a parsed Image File Directory.
type directory struct {
	bo     binary.ByteOrder
	fields map[uint16]field
	next   int64
}

// ifdReader reads IFDs from a TIFF container.
type ifdReader struct {
	ra io.ReaderAt
	bo binary.ByteOrder
}

// readAt fills p from off, reporting short reads as a format error.
func readAt(ra io.ReaderAt, p []byte, off int64) error {
	if off < 0 {
		return fmt.Errorf("%s: %w", "negative offset", ErrFormat)
	}

	n, err := ra.ReadAt(p, off)
	if n == len(p) {
		return nil
	}

	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}

	return fmt.Errorf("%w: %w", ErrFormat, err)
}

// readHeader checks the byte order marker and magic number and returns the
// offset of the first IFD.
func readHeader(ra io.ReaderAt) (binary.ByteOrder, int64, error) {
	var p [8]byte
	if err := readAt(ra, p[:], 0); err != nil {
		return nil, 0, ErrNoTIFF
	}

	var bo binary.ByteOrder
	switch string(p[0:4]) {
	case leHeader:
		bo = binary.LittleEndian
	case beHeader:
		bo = binary.BigEndian
	default:
		return nil, 0, ErrNoTIFF
	}

	off := int64(bo.Uint32(p[4:8]))
	if off < 8 {
		return nil, 0, fmt.Errorf("%s: %w", "invalid IFD offset", ErrFormat)
	}

	return bo, off, nil
}

// walk follows the IFD chain from first and returns the offset of every
// directory in order. Loops and over-long chains are reported as errors.
func (r *ifdReader) walk(first int64) ([]int64, error) {
	seen := make(map[int64]bool)
	var offsets []int64

	for off := first; off != 0; {
		if seen[off] {
			return nil, fmt.Errorf("%s: %w", "loop in IFD chain", ErrFormat)
		}

		if len(offsets) == maxDirectories {
			return nil, fmt.Errorf("%s: %w", "too many directories", ErrFormat)
		}

		seen[off] = true
		offsets = append(offsets, off)

		var p [4]byte
		if err := readAt(r.ra, p[:2], off); err != nil {
			return nil, err
		}

		n := int64(r.bo.Uint16(p[:2]))
		if err := readAt(r.ra, p[:], off+2+n*ifdLen); err != nil {
			// A missing next pointer ends the chain.
			break
		}

		off = int64(r.bo.Uint32(p[:]))
	}

	if len(offsets) == 0 {
		return nil, fmt.Errorf("%s: %w", "no image directory", ErrFormat)
	}

	return offsets, nil
}

// readDirectory parses the IFD at off.
func (r *ifdReader) readDirectory(off int64) (*directory, error) {
	var p [2]byte
	if err := readAt(r.ra, p[:], off); err != nil {
		return nil, err
	}

	numEntries := int(r.bo.Uint16(p[:]))
	entries := make([]byte, numEntries*ifdLen+4)
	if err := readAt(r.ra, entries[:numEntries*ifdLen], off+2); err != nil {
		return nil, err
	}

	d := &directory{bo: r.bo, fields: make(map[uint16]field, numEntries)}
	if err := readAt(r.ra, entries[numEntries*ifdLen:], off+2+int64(numEntries*ifdLen)); err == nil {
		d.next = int64(r.bo.Uint32(entries[numEntries*ifdLen:]))
	}

	for i := 0; i < numEntries; i++ {
		e := entries[i*ifdLen : (i+1)*ifdLen]
		tag := r.bo.Uint16(e[0:2])
		dt := r.bo.Uint16(e[2:4])
		count := r.bo.Uint32(e[4:8])

		size := typeSize(dt)
		if size == 0 {
			// Unknown types are skipped, as readers are required to do.
			continue
		}

		dataSize := uint64(count) * uint64(size)
		if dataSize > maxFieldSize {
			return nil, fmt.Errorf("%s: %w", fmt.Sprintf("tag %d count too large", tag), ErrFormat)
		}

		f := field{typ: dt, count: count}

		// For values > 4 bytes, the value field contains an offset.
		if dataSize <= 4 {
			f.data = append([]byte(nil), e[8:8+dataSize]...)
		} else {
			f.data = make([]byte, dataSize)
			if err := readAt(r.ra, f.data, int64(r.bo.Uint32(e[8:12]))); err != nil {
				return nil, fmt.Errorf("tag %d: %w", tag, err)
			}
		}

		d.fields[tag] = f
	}

	return d, nil
}

// has reports whether tag is present.
func (d *directory) has(tag uint16) bool {
	_, ok := d.fields[tag]

	return ok
}

// uints returns the values of an integer tag. Signed types are sign extended
// before conversion; non-integer types yield nil.
func (d *directory) uints(tag uint16) []uint64 {
	f, ok := d.fields[tag]
	if !ok {
		return nil
	}

	v := make([]uint64, f.count)
	for i := range v {
		switch f.typ {
		case dtByte, dtUndefined:
			v[i] = uint64(f.data[i])
		case dtSByte:
			v[i] = uint64(int8(f.data[i]))
		case dtShort:
			v[i] = uint64(d.bo.Uint16(f.data[2*i:]))
		case dtSShort:
			v[i] = uint64(int16(d.bo.Uint16(f.data[2*i:])))
		case dtLong:
			v[i] = uint64(d.bo.Uint32(f.data[4*i:]))
		case dtSLong:
			v[i] = uint64(int32(d.bo.Uint32(f.data[4*i:])))
		default:
			return nil
		}
	}

	return v
}

// uint returns the first value of an integer tag, or def if the tag is absent.
func (d *directory) uint(tag uint16, def uint64) uint64 {
	v := d.uints(tag)
	if len(v) == 0 {
		return def
	}

	return v[0]
}

// floats returns the values of a numeric tag as float64.
func (d *directory) floats(tag uint16) []float64 {
	f, ok := d.fields[tag]
	if !ok {
		return nil
	}

	v := make([]float64, f.count)
	for i := range v {
		switch f.typ {
		case dtRational:
			num, den := d.bo.Uint32(f.data[8*i:]), d.bo.Uint32(f.data[8*i+4:])
			if den != 0 {
				v[i] = float64(num) / float64(den)
			}
		case dtSRational:
			num, den := int32(d.bo.Uint32(f.data[8*i:])), int32(d.bo.Uint32(f.data[8*i+4:]))
			if den != 0 {
				v[i] = float64(num) / float64(den)
			}
		case dtFloat:
			v[i] = float64(math.Float32frombits(d.bo.Uint32(f.data[4*i:])))
		case dtDouble:
			v[i] = math.Float64frombits(d.bo.Uint64(f.data[8*i:]))
		default:
			u := d.uints(tag)
			if u == nil {
				return nil
			}

			v[i] = float64(u[i])
		}
	}

	return v
}

// bytes returns the raw value bytes of tag.
func (d *directory) bytes(tag uint16) []byte {
	return d.fields[tag].data
}

// string returns the value of an ASCII tag without its terminating NUL.
func (d *directory) string(tag uint16) string {
	f, ok := d.fields[tag]
	if !ok || f.typ != dtASCII {
		return ""
	}

	end := 0
	for end < len(f.data) && f.data[end] != 0 {
		end++
	}

	return string(f.data[:end])
}
