package tiff

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"math/bits"
	"slices"
	"sync"

	"github.com/gen2brain/jpegn"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/image/ccitt"
	"golang.org/x/image/tiff/lzw"
)

// bufferPool holds byte slices for compressed and decoded blocks.
var bufferPool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, 0, 64<<10)

		return &b
	},
}

// getBuffer returns a pooled slice of length n.
func getBuffer(n int) []byte {
	bp := bufferPool.Get().(*[]byte)
	if cap(*bp) < n {
		return make([]byte, n)
	}

	return (*bp)[:n]
}

func putBuffer(b []byte) {
	b = b[:0]
	bufferPool.Put(&b)
}

var (
	zstdDecoder = sync.OnceValues(func() (*zstd.Decoder, error) {
		return zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	})
	zstdEncoder = sync.OnceValues(func() (*zstd.Encoder, error) {
		return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	})
)

// decodeBlock reads one strip or tile and returns its decompressed rows with
// any predictor undone. The result comes from the buffer pool.
func (r *Reader) decodeBlock(b block) ([]byte, error) {
	info := r.info
	off, count := r.blockOffsets[b.index], r.blockCounts[b.index]
	if count > maxImageBytes {
		return nil, fmt.Errorf("%s: %w", "strip byte count too large", ErrFormat)
	}

	raw, err := readBlock(r.ra, int64(off), int(count))
	if err != nil {
		return nil, err
	}
	defer putBuffer(raw)

	if info.FillOrder == fillOrderLSB && info.Compression != CompressionG3 && info.Compression != CompressionG4 {
		reverseBits(raw)
	}

	rowBytes := info.rowBytes(b.w)
	want := rowBytes * b.h
	dst := getBuffer(want)

	if err := r.decompress(dst, raw, b); err != nil {
		putBuffer(dst)

		return nil, err
	}

	if err := undoPredictor(info, dst, rowBytes, b.h); err != nil {
		putBuffer(dst)

		return nil, err
	}

	return dst, nil
}

// blockChunk is the read size for blocks too large for one pooled buffer.
const blockChunk = 1 << 20

// readBlock reads count bytes at off. Large blocks grow chunk by chunk, so a
// byte count pointing past the end of the file fails before it is allocated.
func readBlock(ra io.ReaderAt, off int64, count int) ([]byte, error) {
	if count <= blockChunk {
		b := getBuffer(count)
		if err := readAt(ra, b, off); err != nil {
			putBuffer(b)

			return nil, err
		}

		return b, nil
	}

	b := make([]byte, 0, blockChunk)
	for len(b) < count {
		n := min(blockChunk, count-len(b))
		b = slices.Grow(b, n)
		if err := readAt(ra, b[len(b):len(b)+n], off+int64(len(b))); err != nil {
			return nil, err
		}

		b = b[:len(b)+n]
	}

	return b, nil
}

// decompress fills dst with the decoded bytes of raw.
func (r *Reader) decompress(dst, raw []byte, b block) error {
	info := r.info

	var src io.Reader
	switch info.Compression {
	case CompressionNone:
		if len(raw) < len(dst) {
			return fmt.Errorf("%s: %w", "short strip", ErrFormat)
		}

		copy(dst, raw)

		return nil
	case CompressionPackBits:
		return unpackBits(dst, raw)
	case CompressionLZW:
		rc := lzw.NewReader(bytes.NewReader(raw), lzw.MSB, 8)
		defer rc.Close()
		src = rc
	case CompressionDeflate, CompressionDeflateOld:
		rc, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return fmt.Errorf("%w: %w", ErrFormat, err)
		}
		defer rc.Close()
		src = rc
	case CompressionZSTD:
		dec, err := zstdDecoder()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInternal, err)
		}

		out, err := dec.DecodeAll(raw, nil)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrFormat, err)
		}

		if len(out) < len(dst) {
			return fmt.Errorf("%s: %w", "short strip", ErrFormat)
		}

		copy(dst, out)

		return nil
	case CompressionG3, CompressionG4:
		if info.BitsPerSample != 1 || info.SamplesPerPixel != 1 {
			return fmt.Errorf("%s: %w", "CCITT compression needs 1-bit samples", ErrUnsupported)
		}

		if info.Compression == CompressionG3 && info.t4Options&t4TwoDimensional != 0 {
			return fmt.Errorf("%s: %w", "2-D Group 3 compression", ErrUnsupported)
		}

		sf := ccitt.Group3
		if info.Compression == CompressionG4 {
			sf = ccitt.Group4
		}

		order := ccitt.MSB
		if info.FillOrder == fillOrderLSB {
			order = ccitt.LSB
		}

		opts := &ccitt.Options{Invert: info.Photometric == PhotometricWhiteIsZero}
		src = ccitt.NewReader(bytes.NewReader(raw), order, sf, b.w, b.h, opts)
	case CompressionJPEG:
		return decodeJPEG(dst, raw, info.jpegTables, b.w, b.h, info.SamplesPerPixel)
	default:
		return fmt.Errorf("%s: %w", "compression "+info.Compression.String(), ErrUnsupported)
	}

	if _, err := io.ReadFull(src, dst); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%s: %w", "short strip", ErrFormat)
		}

		return fmt.Errorf("%w: %w", ErrFormat, err)
	}

	return nil
}

// decodeJPEG decodes one JPEG compressed block into interleaved 8-bit
// samples. Shared tables from the JPEGTables tag are merged into the stream.
func decodeJPEG(dst, raw, tables []byte, w, h, spp int) error {
	data := raw
	if len(tables) > 4 && len(raw) > 2 {
		// Drop the EOI of the tables and the SOI of the block.
		data = make([]byte, 0, len(tables)+len(raw)-4)
		data = append(data, tables[:len(tables)-2]...)
		data = append(data, raw[2:]...)
	}

	m, err := jpegn.Decode(bytes.NewReader(data), &jpegn.Options{ToRGBA: true})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFormat, err)
	}

	b := m.Bounds()
	if b.Empty() {
		return fmt.Errorf("%s: %w", "empty JPEG block", ErrFormat)
	}

	// The last strip may be encoded shorter than the block.
	rows, cols := min(h, b.Dy()), min(w, b.Dx())
	for y := range rows {
		row := dst[y*w*spp : (y+1)*w*spp]
		switch m := m.(type) {
		case *image.Gray:
			for x := range cols {
				row[x*spp] = m.Pix[y*m.Stride+x]
				if spp == 3 {
					row[x*3+1], row[x*3+2] = row[x*3], row[x*3]
				}
			}
		case *image.RGBA:
			copyRGB(row, m.Pix[y*m.Stride:], cols, spp)
		case *image.NRGBA:
			copyRGB(row, m.Pix[y*m.Stride:], cols, spp)
		default:
			for x := range cols {
				c := color.RGBAModel.Convert(m.At(b.Min.X+x, b.Min.Y+y)).(color.RGBA)
				row[x*spp] = c.R
				if spp == 3 {
					row[x*3+1], row[x*3+2] = c.G, c.B
				}
			}
		}
	}

	return nil
}

// copyRGB copies n RGBA pixels into spp-sample pixels.
func copyRGB(dst, src []byte, n, spp int) {
	for x := range n {
		if spp == 1 {
			dst[x] = src[4*x]

			continue
		}

		copy(dst[3*x:3*x+3], src[4*x:4*x+3])
	}
}

// unpackBits decodes PackBits data into dst.
func unpackBits(dst, src []byte) error {
	i, j := 0, 0
	for j < len(dst) {
		if i >= len(src) {
			return fmt.Errorf("%s: %w", "short PackBits strip", ErrFormat)
		}

		n := int(int8(src[i]))
		i++
		switch {
		case n >= 0:
			// Copy the next n+1 bytes literally.
			if i+n+1 > len(src) {
				return fmt.Errorf("%s: %w", "short PackBits literal", ErrFormat)
			}

			j += copy(dst[j:], src[i:i+n+1])
			i += n + 1
		case n != -128:
			// Repeat the next byte 1-n times.
			if i >= len(src) {
				return fmt.Errorf("%s: %w", "short PackBits run", ErrFormat)
			}

			v := src[i]
			i++
			for k := 0; k < 1-n && j < len(dst); k++ {
				dst[j] = v
				j++
			}
		}
	}

	return nil
}

// packBits appends the PackBits encoding of src to dst.
func packBits(dst, src []byte) []byte {
	for i := 0; i < len(src); {
		// Find a run of identical bytes.
		run := 1
		for i+run < len(src) && run < 128 && src[i+run] == src[i] {
			run++
		}

		if run > 1 {
			dst = append(dst, byte(int8(1-run)), src[i])
			i += run

			continue
		}

		// Collect literals until a run of at least three starts.
		lit := 1
		for i+lit < len(src) && lit < 128 {
			if i+lit+2 < len(src) && src[i+lit] == src[i+lit+1] && src[i+lit] == src[i+lit+2] {
				break
			}

			lit++
		}

		dst = append(dst, byte(lit-1))
		dst = append(dst, src[i:i+lit]...)
		i += lit
	}

	return dst
}

// reverseBits reverses the bit order of every byte in b.
func reverseBits(b []byte) {
	for i, v := range b {
		b[i] = bits.Reverse8(v)
	}
}
