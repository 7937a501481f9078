package tiff

import (
	"context"
	"fmt"
	"image"
	"io"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Reader decodes one image directory of a TIFF file. It reads strips and
// tiles on demand through an io.ReaderAt, so the file is never loaded whole.
type Reader struct {
	ra   io.ReaderAt
	opts Options

	offsets []int64 // Offsets of every IFD in the chain.
	dir     *directory
	info    *ImageInfo

	blockOffsets []uint64
	blockCounts  []uint64

	// The last strip decoded by ReadScanline.
	mu          sync.Mutex
	cachedStrip int
	cachedData  []byte
}

// block is one strip or tile of one plane.
type block struct {
	index  int
	plane  int
	x0, y0 int // Origin in the image.
	w, h   int // Stored size, including padding for tiles.
}

// NewReader parses the header and the selected image directory of ra.
// A nil or missing Options value means defaults.
func NewReader(ra io.ReaderAt, opts ...*Options) (*Reader, error) {
	r := &Reader{ra: ra, cachedStrip: -1}
	if len(opts) > 0 && opts[0] != nil {
		r.opts = *opts[0]
	}

	bo, first, err := readHeader(ra)
	if err != nil {
		return nil, err
	}

	ir := &ifdReader{ra: ra, bo: bo}
	r.offsets, err = ir.walk(first)
	if err != nil {
		return nil, err
	}

	if r.opts.Directory < 0 || r.opts.Directory >= len(r.offsets) {
		return nil, fmt.Errorf("%s: %w", fmt.Sprintf("directory %d out of range", r.opts.Directory), ErrFormat)
	}

	r.dir, err = ir.readDirectory(r.offsets[r.opts.Directory])
	if err != nil {
		return nil, err
	}

	r.info, err = newImageInfo(r.dir, r.opts.Directory)
	if err != nil {
		return nil, err
	}

	offTag, countTag := uint16(tStripOffsets), uint16(tStripByteCounts)
	if r.info.Tiled() {
		offTag, countTag = tTileOffsets, tTileByteCounts
	}

	r.blockOffsets = r.dir.uints(offTag)
	r.blockCounts = r.dir.uints(countTag)

	n := r.blocksPerPlane() * r.info.planes()
	if len(r.blockOffsets) < n {
		return nil, fmt.Errorf("%s: %w", "missing strip or tile offsets", ErrFormat)
	}

	if len(r.blockCounts) < n {
		// Uncompressed single strip files may omit the byte counts.
		if r.info.Compression != CompressionNone || n != 1 {
			return nil, fmt.Errorf("%s: %w", "missing strip or tile byte counts", ErrFormat)
		}

		r.blockCounts = []uint64{uint64(r.info.rowBytes(r.info.Width) * r.info.Height)}
	}

	return r, nil
}

// Info returns the header record of the selected directory.
func (r *Reader) Info() ImageInfo {
	return *r.info
}

// DirectoryCount returns the number of image directories in the file.
func (r *Reader) DirectoryCount() int {
	return len(r.offsets)
}

// codec returns the dispatch table entry for the image.
func (r *Reader) codec() (*layoutCodec, error) {
	f, err := r.info.Format()
	if err != nil {
		return nil, err
	}

	return lookup(f, r.opts.HDR)
}

func (r *Reader) blocksAcross() int {
	if r.info.Tiled() {
		return (r.info.Width + r.info.TileWidth - 1) / r.info.TileWidth
	}

	return 1
}

func (r *Reader) blocksDown() int {
	if r.info.Tiled() {
		return (r.info.Height + r.info.TileLength - 1) / r.info.TileLength
	}

	return (r.info.Height + r.info.RowsPerStrip - 1) / r.info.RowsPerStrip
}

func (r *Reader) blocksPerPlane() int {
	return r.blocksAcross() * r.blocksDown()
}

// blocks returns every strip or tile of the image in file order.
func (r *Reader) blocks() []block {
	info := r.info
	perPlane := r.blocksPerPlane()
	across := r.blocksAcross()

	out := make([]block, 0, perPlane*info.planes())
	for p := range info.planes() {
		for i := range perPlane {
			b := block{index: p*perPlane + i, plane: p}
			if info.Tiled() {
				b.x0 = (i % across) * info.TileWidth
				b.y0 = (i / across) * info.TileLength
				b.w, b.h = info.TileWidth, info.TileLength
			} else {
				b.y0 = i * info.RowsPerStrip
				b.w = info.Width
				b.h = min(info.RowsPerStrip, info.Height-b.y0)
			}

			out = append(out, b)
		}
	}

	return out
}

// Read decodes the image into a newly allocated buffer. Strips or tiles are
// decoded concurrently; ctx cancels the remaining work.
func (r *Reader) Read(ctx context.Context) (image.Image, error) {
	c, err := r.codec()
	if err != nil {
		return nil, err
	}

	info := r.info
	size := int64(info.Width) * int64(info.Height) * int64(info.SamplesPerPixel) * int64(max(info.BitsPerSample, 8)/8)
	if size > maxImageBytes {
		return nil, fmt.Errorf("%s: %w", "image too large", ErrUnsupported)
	}

	img := c.alloc(image.Rect(0, 0, info.Width, info.Height), info)

	limit := r.opts.Concurrency
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, b := range r.blocks() {
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			data, err := r.decodeBlock(b)
			if err != nil {
				return fmt.Errorf("block %d: %w", b.index, err)
			}
			defer putBuffer(data)

			return r.unpackBlock(c, img, b, data)
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return img, nil
}

// unpackBlock copies the in-bounds rows of a decoded block into img.
func (r *Reader) unpackBlock(c *layoutCodec, img image.Image, b block, data []byte) (err error) {
	defer func() {
		if e := recover(); e != nil {
			err = fmt.Errorf("%s: %w", fmt.Sprint(e), ErrFormat)
		}
	}()

	rowBytes := r.info.rowBytes(b.w)
	n := min(b.w, r.info.Width-b.x0)
	rows := min(b.h, r.info.Height-b.y0)

	plane := b.plane
	if r.info.planes() == 1 {
		plane = 0
	}

	for k := range rows {
		c.unpack(img, data[k*rowBytes:(k+1)*rowBytes], b.x0, b.y0+k, n, plane, r.info.ByteOrder)
	}

	return nil
}

// ScanlineSize returns the size in bytes of one decoded row of one plane.
func (r *Reader) ScanlineSize() int {
	return r.info.rowBytes(r.info.Width)
}

// ReadScanline decodes row of the given plane into dst, which must hold at
// least ScanlineSize bytes. The samples are left in file byte order. Tiled
// images do not support scanline access.
func (r *Reader) ReadScanline(dst []byte, row, plane int) error {
	info := r.info
	if info.Tiled() {
		return fmt.Errorf("%s: %w", "scanline access to a tiled image", ErrUnsupported)
	}

	if row < 0 || row >= info.Height || plane < 0 || plane >= info.planes() {
		return fmt.Errorf("%s: %w", fmt.Sprintf("row %d plane %d out of range", row, plane), ErrFormat)
	}

	size := r.ScanlineSize()
	if len(dst) < size {
		return io.ErrShortBuffer
	}

	s := row / info.RowsPerStrip
	b := block{
		index: plane*r.blocksPerPlane() + s,
		plane: plane,
		y0:    s * info.RowsPerStrip,
		w:     info.Width,
	}
	b.h = min(info.RowsPerStrip, info.Height-b.y0)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cachedStrip != b.index {
		data, err := r.decodeBlock(b)
		if err != nil {
			return err
		}

		if r.cachedData != nil {
			putBuffer(r.cachedData)
		}

		r.cachedStrip, r.cachedData = b.index, data
	}

	k := row - b.y0
	copy(dst, r.cachedData[k*size:(k+1)*size])

	return nil
}
