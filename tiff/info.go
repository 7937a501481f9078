package tiff

import (
	"encoding/binary"
	"fmt"
	"image/color"

	"github.com/gen2brain/imageio/pixel"
)

// ImageInfo is the header record of one image directory. Absent tags take
// the default values a TIFF reader is required to assume.
type ImageInfo struct {
	Width  int
	Height int

	SamplesPerPixel int
	// BitsPerSample is the width of the first sample.
	BitsPerSample int
	// BitsPerSamples holds the width of every sample.
	BitsPerSamples []int

	Compression         Compression
	SampleFormat        SampleFormat
	PlanarConfiguration PlanarConfiguration
	Photometric         Photometric

	RowsPerStrip int
	TileWidth    int // Zero for stripped images.
	TileLength   int

	Predictor    Predictor
	FillOrder    int
	ExtraSamples []int
	ColorMap     color.Palette

	XResolution    float64
	YResolution    float64
	ResolutionUnit int
	Software       string

	// SubfileType holds the NewSubfileType flags: 1 for a reduced
	// resolution image, 2 for a page of a multi-page image, 4 for a mask.
	SubfileType int

	ByteOrder binary.ByteOrder
	// Directory is the index of the IFD in the file.
	Directory int

	jpegTables []byte
	t4Options  int
}

// newImageInfo builds the info record of directory d.
func newImageInfo(d *directory, index int) (*ImageInfo, error) {
	info := &ImageInfo{
		Width:               int(d.uint(tImageWidth, 0)),
		Height:              int(d.uint(tImageLength, 0)),
		SamplesPerPixel:     int(d.uint(tSamplesPerPixel, 1)),
		Compression:         Compression(d.uint(tCompression, uint64(CompressionNone))),
		SampleFormat:        SampleFormat(d.uint(tSampleFormat, uint64(SampleFormatUint))),
		PlanarConfiguration: PlanarConfiguration(d.uint(tPlanarConfiguration, uint64(PlanarContig))),
		Predictor:           Predictor(d.uint(tPredictor, uint64(PredictorNone))),
		FillOrder:           int(d.uint(tFillOrder, fillOrderMSB)),
		ResolutionUnit:      int(d.uint(tResolutionUnit, resUnitInch)),
		Software:            d.string(tSoftware),
		SubfileType:         int(d.uint(tNewSubfileType, 0)),
		ByteOrder:           d.bo,
		Directory:           index,
	}

	if info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("%s: %w", "invalid image dimensions", ErrFormat)
	}

	if info.SamplesPerPixel < 1 || info.SamplesPerPixel > 16 {
		return nil, fmt.Errorf("%s: %w", fmt.Sprintf("invalid samples per pixel %d", info.SamplesPerPixel), ErrFormat)
	}

	if info.Compression == 0 {
		info.Compression = CompressionNone
	}

	// A single value applies to every sample.
	bps := d.uints(tBitsPerSample)
	if len(bps) == 0 {
		bps = []uint64{1}
	}

	info.BitsPerSamples = make([]int, info.SamplesPerPixel)
	for i := range info.BitsPerSamples {
		b := bps[0]
		if i < len(bps) {
			b = bps[i]
		}

		info.BitsPerSamples[i] = int(b)
		if info.BitsPerSamples[i] < 1 || info.BitsPerSamples[i] > 64 {
			return nil, fmt.Errorf("%s: %w", fmt.Sprintf("invalid bits per sample %d", info.BitsPerSamples[i]), ErrFormat)
		}
	}
	info.BitsPerSample = info.BitsPerSamples[0]

	if d.has(tPhotometricInterpretation) {
		info.Photometric = Photometric(d.uint(tPhotometricInterpretation, 0))
	} else {
		switch info.SamplesPerPixel {
		case 1, 2:
			info.Photometric = PhotometricBlackIsZero
		default:
			info.Photometric = PhotometricRGB
		}
	}

	info.RowsPerStrip = int(d.uint(tRowsPerStrip, uint64(info.Height)))
	if info.RowsPerStrip <= 0 || info.RowsPerStrip > info.Height {
		info.RowsPerStrip = info.Height
	}

	if d.has(tTileWidth) {
		info.TileWidth = int(d.uint(tTileWidth, 0))
		info.TileLength = int(d.uint(tTileLength, 0))
		if info.TileWidth <= 0 || info.TileLength <= 0 {
			return nil, fmt.Errorf("%s: %w", "invalid tile dimensions", ErrFormat)
		}
	}

	for _, v := range d.uints(tExtraSamples) {
		info.ExtraSamples = append(info.ExtraSamples, int(v))
	}

	if r := d.floats(tXResolution); len(r) > 0 {
		info.XResolution = r[0]
	}

	if r := d.floats(tYResolution); len(r) > 0 {
		info.YResolution = r[0]
	}

	if info.Photometric == PhotometricPalette {
		if info.BitsPerSample > 8 {
			return nil, fmt.Errorf("%s: %w", "palette index wider than 8 bits", ErrFormat)
		}

		cm := d.uints(tColorMap)
		n := 1 << info.BitsPerSample
		if len(cm) < 3*n {
			return nil, fmt.Errorf("%s: %w", "bad ColorMap length", ErrFormat)
		}

		info.ColorMap = make(color.Palette, n)
		for i := range info.ColorMap {
			info.ColorMap[i] = color.RGBA{
				R: uint8(cm[i] >> 8),
				G: uint8(cm[i+n] >> 8),
				B: uint8(cm[i+2*n] >> 8),
				A: 0xff,
			}
		}
	}

	info.jpegTables = d.bytes(tJPEGTables)
	info.t4Options = int(d.uint(tT4Options, 0))

	return info, nil
}

// Tiled reports whether the image is organized in tiles.
func (info ImageInfo) Tiled() bool {
	return info.TileWidth > 0
}

func (info ImageInfo) associatedAlpha() bool {
	return len(info.ExtraSamples) > 0 && info.ExtraSamples[0] == extraAssociated
}

// Format returns the in-memory pixel format the image decodes into.
func (info ImageInfo) Format() (pixel.Format, error) {
	for _, b := range info.BitsPerSamples {
		if b != info.BitsPerSample {
			return pixel.Format{}, fmt.Errorf("%s: %w", "mixed bits per sample", ErrUnsupported)
		}
	}

	var kind pixel.Kind
	switch info.SampleFormat {
	case SampleFormatUint, SampleFormatVoid:
		kind = pixel.Uint
	case SampleFormatInt:
		kind = pixel.Int
	case SampleFormatFloat:
		kind = pixel.Float
	default:
		return pixel.Format{}, fmt.Errorf("%s: %w", "sample format "+info.SampleFormat.String(), ErrUnsupported)
	}

	spp := info.SamplesPerPixel
	layout := pixel.Layout(-1)
	switch info.Photometric {
	case PhotometricWhiteIsZero, PhotometricBlackIsZero:
		switch spp {
		case 1:
			layout = pixel.Gray
		case 2:
			layout = pixel.GrayAlpha
		}
	case PhotometricRGB:
		switch spp {
		case 3:
			layout = pixel.RGB
		case 4:
			layout = pixel.RGBA
		}
	case PhotometricYCbCr:
		// The JPEG codec converts to RGB on its own.
		if info.Compression == CompressionJPEG && spp == 3 {
			layout = pixel.RGB
		}
	case PhotometricPalette:
		if spp == 1 {
			layout = pixel.Indexed
		}
	}

	if layout < 0 {
		msg := fmt.Sprintf("photometric %s with %d samples", info.Photometric, spp)

		return pixel.Format{}, fmt.Errorf("%s: %w", msg, ErrUnsupported)
	}

	if info.Compression == CompressionJPEG {
		if info.BitsPerSample != 8 || (spp != 1 && spp != 3) {
			return pixel.Format{}, fmt.Errorf("%s: %w", "JPEG compression needs 8-bit gray or RGB", ErrUnsupported)
		}

		// JPEG data is always interleaved.
		return pixel.Format{Layout: layout, Kind: kind, Bits: 8}, nil
	}

	return pixel.Format{
		Layout: layout,
		Kind:   kind,
		Bits:   info.BitsPerSample,
		Planar: info.PlanarConfiguration == PlanarSeparate && spp > 1,
	}, nil
}

// planes returns the number of sample planes stored separately in the file.
func (info ImageInfo) planes() int {
	if info.PlanarConfiguration == PlanarSeparate && info.Compression != CompressionJPEG {
		return info.SamplesPerPixel
	}

	return 1
}

// rowBytes returns the size of one decoded row of width pixels of one plane.
func (info ImageInfo) rowBytes(width int) int {
	samples := info.SamplesPerPixel
	if info.planes() > 1 {
		samples = 1
	}

	return (width*samples*info.BitsPerSample + 7) / 8
}
