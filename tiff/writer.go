package tiff

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/draw"
	"io"
	"math"
	"runtime"
	"slices"

	"github.com/klauspost/compress/zlib"
	"golang.org/x/sync/errgroup"

	"github.com/gen2brain/imageio/pixel"
)

// EncodeOptions specifies encoding parameters.
type EncodeOptions struct {
	// Compression is one of CompressionNone, CompressionDeflate,
	// CompressionPackBits or CompressionZSTD. Zero means none.
	Compression Compression
	// Predictor enables horizontal differencing for integer samples and the
	// floating point predictor for float samples.
	Predictor bool
	// Planar stores every channel in its own plane. Planar buffers are always
	// written planar.
	Planar bool
	// RowsPerStrip sets the strip height. Zero selects strips of about 8 KiB.
	RowsPerStrip int
}

const (
	defaultStripSize = 8 << 10
	software         = "imageio"
)

// Encode writes m to w in TIFF format. Buffers whose pixel format is in the
// dispatch table are written as is; any other image is converted to 16-bit
// RGBA first.
func Encode(w io.Writer, m image.Image, opts *EncodeOptions) error {
	var o EncodeOptions
	if opts != nil {
		o = *opts
	}

	switch o.Compression {
	case 0:
		o.Compression = CompressionNone
	case CompressionNone, CompressionDeflate, CompressionDeflateOld, CompressionPackBits, CompressionZSTD:
	default:
		return fmt.Errorf("%s: %w", "writing compression "+o.Compression.String(), ErrUnsupported)
	}

	b := m.Bounds()
	if b.Empty() {
		return fmt.Errorf("%s: %w", "empty image", ErrFormat)
	}

	m, f, c := encoderCodec(m)
	e := &encoder{
		m:      m,
		format: f,
		codec:  c,
		opts:   o,
		bo:     binary.LittleEndian,
		width:  b.Dx(),
		height: b.Dy(),
	}

	return e.encode(w)
}

// encoderCodec returns the image to write, its format and its codec.
func encoderCodec(m image.Image) (image.Image, pixel.Format, *layoutCodec) {
	if f, c, err := codecFor(m); err == nil {
		return m, f, c
	}

	b := m.Bounds()
	dst := image.NewNRGBA64(b)
	draw.Draw(dst, b, m, b.Min, draw.Src)

	f, _ := pixel.FormatOf(dst)
	c, _ := lookup(f, false)

	return dst, f, c
}

type encoder struct {
	m      image.Image
	format pixel.Format
	codec  *layoutCodec
	opts   EncodeOptions
	bo     binary.ByteOrder

	width, height int
}

func (e *encoder) channels() int {
	return e.format.Layout.Channels()
}

func (e *encoder) planes() int {
	if (e.format.Planar || e.opts.Planar) && e.channels() > 1 {
		return e.channels()
	}

	return 1
}

func (e *encoder) rowBytes() int {
	samples := e.channels()
	if e.planes() > 1 {
		samples = 1
	}

	return (e.width*samples*e.format.Bits + 7) / 8
}

func (e *encoder) predictor() Predictor {
	if !e.opts.Predictor || e.format.Bits < 8 || e.format.Layout == pixel.Indexed {
		return PredictorNone
	}

	if e.format.Kind == pixel.Float {
		return PredictorFloatingPoint
	}

	return PredictorHorizontal
}

func (e *encoder) encode(w io.Writer) error {
	rowBytes := e.rowBytes()

	rps := e.opts.RowsPerStrip
	if rps <= 0 {
		rps = max(1, defaultStripSize/rowBytes)
	}
	rps = min(rps, e.height)

	perPlane := (e.height + rps - 1) / rps
	strips := make([][]byte, perPlane*e.planes())

	g := new(errgroup.Group)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i := range strips {
		g.Go(func() error {
			p, s := i/perPlane, i%perPlane
			plane := -1
			if e.planes() > 1 {
				plane = p
			}

			y0 := s * rps
			rows := min(rps, e.height-y0)

			data, err := e.encodeStrip(y0, rows, plane, rowBytes)
			if err != nil {
				return err
			}

			strips[i] = data

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	return e.writeFile(w, strips, rps)
}

// encodeStrip packs, predicts and compresses rows of one plane.
func (e *encoder) encodeStrip(y0, rows, plane, rowBytes int) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: %w", fmt.Sprint(r), ErrInternal)
		}
	}()

	data := make([]byte, rows*rowBytes)
	stride := e.channels()
	if plane >= 0 {
		stride = 1
	}

	var tmp []byte
	if e.predictor() == PredictorFloatingPoint {
		tmp = make([]byte, rowBytes)
	}

	for k := range rows {
		row := data[k*rowBytes : (k+1)*rowBytes]
		e.codec.pack(e.m, row, y0+k, plane, e.bo)

		switch e.predictor() {
		case PredictorHorizontal:
			horizontalEncode(row, stride, e.format.Bits/8, e.bo)
		case PredictorFloatingPoint:
			floatEncode(row, tmp, stride, e.format.Bits/8, e.bo)
		}
	}

	return compressStrip(e.opts.Compression, data, rowBytes)
}

// compressStrip compresses the rows of one strip.
func compressStrip(c Compression, data []byte, rowBytes int) ([]byte, error) {
	switch c {
	case CompressionDeflate, CompressionDeflateOld:
		var buf bytes.Buffer
		zw, err := zlib.NewWriterLevel(&buf, zlib.DefaultCompression)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInternal, err)
		}

		if _, err := zw.Write(data); err != nil {
			return nil, err
		}

		if err := zw.Close(); err != nil {
			return nil, err
		}

		return buf.Bytes(), nil
	case CompressionPackBits:
		// Runs never cross row boundaries.
		out := make([]byte, 0, len(data)+len(data)/128+1)
		for i := 0; i < len(data); i += rowBytes {
			out = packBits(out, data[i:i+rowBytes])
		}

		return out, nil
	case CompressionZSTD:
		enc, err := zstdEncoder()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInternal, err)
		}

		return enc.EncodeAll(data, nil), nil
	default:
		return data, nil
	}
}

// writeFile writes the header, the strips and the image directory.
func (e *encoder) writeFile(w io.Writer, strips [][]byte, rps int) error {
	offsets := make([]uint32, len(strips))
	counts := make([]uint32, len(strips))

	pos := int64(8)
	for i, s := range strips {
		offsets[i] = uint32(pos)
		counts[i] = uint32(len(s))
		pos += int64(len(s))
		pos += pos & 1 // Word alignment.
	}

	entries := e.entries(offsets, counts, rps)
	if pos+ifdSize(entries) > math.MaxUint32 {
		return fmt.Errorf("%s: %w", "file exceeds 4 GiB", ErrUnsupported)
	}

	bw := bufio.NewWriter(w)

	header := []byte(leHeader + "\x00\x00\x00\x00")
	e.bo.PutUint32(header[4:], uint32(pos))
	if _, err := bw.Write(header); err != nil {
		return err
	}

	for _, s := range strips {
		if _, err := bw.Write(s); err != nil {
			return err
		}

		if len(s)&1 != 0 {
			if err := bw.WriteByte(0); err != nil {
				return err
			}
		}
	}

	if err := writeIFD(bw, e.bo, entries, uint32(pos)); err != nil {
		return err
	}

	return bw.Flush()
}

// entries returns the IFD entries describing the image.
func (e *encoder) entries(offsets, counts []uint32, rps int) []ifdEntry {
	f := e.format
	spp := f.Layout.Channels()

	bps := make([]uint16, spp)
	sf := make([]uint16, spp)
	for i := range spp {
		bps[i] = uint16(f.Bits)
		switch f.Kind {
		case pixel.Int:
			sf[i] = uint16(SampleFormatInt)
		case pixel.Float:
			sf[i] = uint16(SampleFormatFloat)
		default:
			sf[i] = uint16(SampleFormatUint)
		}
	}

	var photometric Photometric
	switch f.Layout {
	case pixel.Gray, pixel.GrayAlpha:
		photometric = PhotometricBlackIsZero
	case pixel.RGB, pixel.RGBA:
		photometric = PhotometricRGB
	case pixel.Indexed:
		photometric = PhotometricPalette
	}

	planar := PlanarContig
	if e.planes() > 1 {
		planar = PlanarSeparate
	}

	entries := []ifdEntry{
		longEntry(tImageWidth, uint32(e.width)),
		longEntry(tImageLength, uint32(e.height)),
		shortEntry(tBitsPerSample, bps...),
		shortEntry(tCompression, uint16(e.opts.Compression)),
		shortEntry(tPhotometricInterpretation, uint16(photometric)),
		longEntry(tStripOffsets, offsets...),
		shortEntry(tSamplesPerPixel, uint16(spp)),
		longEntry(tRowsPerStrip, uint32(rps)),
		longEntry(tStripByteCounts, counts...),
		rationalEntry(tXResolution, 72, 1),
		rationalEntry(tYResolution, 72, 1),
		shortEntry(tPlanarConfiguration, uint16(planar)),
		shortEntry(tResolutionUnit, resUnitInch),
		asciiEntry(tSoftware, software),
		shortEntry(tSampleFormat, sf...),
	}

	if p := e.predictor(); p != PredictorNone {
		entries = append(entries, shortEntry(tPredictor, uint16(p)))
	}

	if f.Layout == pixel.GrayAlpha || f.Layout == pixel.RGBA {
		extra := uint16(extraUnassociated)
		switch e.m.(type) {
		case *image.RGBA, *image.RGBA64:
			extra = extraAssociated
		}

		entries = append(entries, shortEntry(tExtraSamples, extra))
	}

	if f.Layout == pixel.Indexed {
		palette := grayPalette(f.Bits)
		if p, ok := e.m.(*image.Paletted); ok {
			palette = p.Palette
		}

		n := 1 << f.Bits
		cm := make([]uint16, 3*n)
		for i, c := range palette {
			if i >= n {
				break
			}

			r, g, b, _ := c.RGBA()
			cm[i], cm[i+n], cm[i+2*n] = uint16(r), uint16(g), uint16(b)
		}

		entries = append(entries, shortEntry(tColorMap, cm...))
	}

	slices.SortFunc(entries, func(a, b ifdEntry) int {
		return int(a.tag) - int(b.tag)
	})

	return entries
}

// ifdEntry is an IFD entry to be written. data holds the little-endian values.
type ifdEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

func shortEntry(tag uint16, v ...uint16) ifdEntry {
	data := make([]byte, 2*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint16(data[2*i:], x)
	}

	return ifdEntry{tag: tag, typ: dtShort, count: uint32(len(v)), data: data}
}

func longEntry(tag uint16, v ...uint32) ifdEntry {
	data := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(data[4*i:], x)
	}

	return ifdEntry{tag: tag, typ: dtLong, count: uint32(len(v)), data: data}
}

func rationalEntry(tag uint16, num, den uint32) ifdEntry {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint32(data, num)
	binary.LittleEndian.PutUint32(data[4:], den)

	return ifdEntry{tag: tag, typ: dtRational, count: 1, data: data}
}

func asciiEntry(tag uint16, s string) ifdEntry {
	data := append([]byte(s), 0)

	return ifdEntry{tag: tag, typ: dtASCII, count: uint32(len(data)), data: data}
}

// ifdSize returns the size of the IFD and its out-of-line values.
func ifdSize(entries []ifdEntry) int64 {
	n := int64(2 + ifdLen*len(entries) + 4)
	for _, e := range entries {
		if len(e.data) > 4 {
			n += int64(len(e.data) + len(e.data)&1)
		}
	}

	return n
}

// writeIFD writes entries as a single IFD at offset off, followed by the
// values that do not fit in an entry.
func writeIFD(w io.Writer, bo binary.ByteOrder, entries []ifdEntry, off uint32) error {
	buf := make([]byte, 2+ifdLen*len(entries)+4)
	bo.PutUint16(buf, uint16(len(entries)))

	var extra []byte
	next := off + uint32(len(buf))
	for i, e := range entries {
		p := buf[2+ifdLen*i : 2+ifdLen*(i+1)]
		bo.PutUint16(p[0:2], e.tag)
		bo.PutUint16(p[2:4], e.typ)
		bo.PutUint32(p[4:8], e.count)

		if len(e.data) <= 4 {
			copy(p[8:], e.data)

			continue
		}

		bo.PutUint32(p[8:], next+uint32(len(extra)))
		extra = append(extra, e.data...)
		if len(e.data)&1 != 0 {
			extra = append(extra, 0)
		}
	}

	// The next IFD offset stays zero.
	if _, err := w.Write(buf); err != nil {
		return err
	}

	_, err := w.Write(extra)

	return err
}
