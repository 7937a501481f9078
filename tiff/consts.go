package tiff

import "fmt"

const (
	leHeader = "II\x2A\x00" // Header for little-endian files.
	beHeader = "MM\x00\x2A" // Header for big-endian files.

	ifdLen = 12 // Length of an IFD entry in bytes.
)

// Data types.
const (
	dtByte      = 1
	dtASCII     = 2
	dtShort     = 3
	dtLong      = 4
	dtRational  = 5
	dtSByte     = 6
	dtUndefined = 7
	dtSShort    = 8
	dtSLong     = 9
	dtSRational = 10
	dtFloat     = 11
	dtDouble    = 12
)

// typeSize returns the size in bytes of one value of data type dt,
// or 0 for an unknown type.
func typeSize(dt uint16) int {
	switch dt {
	case dtByte, dtASCII, dtSByte, dtUndefined:
		return 1
	case dtShort, dtSShort:
		return 2
	case dtLong, dtSLong, dtFloat:
		return 4
	case dtRational, dtSRational, dtDouble:
		return 8
	default:
		return 0
	}
}

// Tags.
const (
	tNewSubfileType            = 254
	tImageWidth                = 256
	tImageLength               = 257
	tBitsPerSample             = 258
	tCompression               = 259
	tPhotometricInterpretation = 262
	tFillOrder                 = 266
	tStripOffsets              = 273
	tSamplesPerPixel           = 277
	tRowsPerStrip              = 278
	tStripByteCounts           = 279
	tXResolution               = 282
	tYResolution               = 283
	tPlanarConfiguration       = 284
	tT4Options                 = 292
	tResolutionUnit            = 296
	tSoftware                  = 305
	tPredictor                 = 317
	tColorMap                  = 320
	tTileWidth                 = 322
	tTileLength                = 323
	tTileOffsets               = 324
	tTileByteCounts            = 325
	tExtraSamples              = 338
	tSampleFormat              = 339
	tJPEGTables                = 347
)

// Compression is the value of the Compression tag.
type Compression uint16

// Compression schemes.
const (
	CompressionNone       Compression = 1
	CompressionCCITT      Compression = 2
	CompressionG3         Compression = 3
	CompressionG4         Compression = 4
	CompressionLZW        Compression = 5
	CompressionOldJPEG    Compression = 6
	CompressionJPEG       Compression = 7
	CompressionDeflate    Compression = 8
	CompressionPackBits   Compression = 32773
	CompressionDeflateOld Compression = 32946
	CompressionZSTD       Compression = 50000
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionCCITT:
		return "ccitt"
	case CompressionG3:
		return "g3"
	case CompressionG4:
		return "g4"
	case CompressionLZW:
		return "lzw"
	case CompressionOldJPEG:
		return "ojpeg"
	case CompressionJPEG:
		return "jpeg"
	case CompressionDeflate, CompressionDeflateOld:
		return "deflate"
	case CompressionPackBits:
		return "packbits"
	case CompressionZSTD:
		return "zstd"
	}

	return fmt.Sprintf("compression(%d)", uint16(c))
}

// ParseCompression returns the compression scheme for a name accepted by the
// writer: "none", "deflate", "packbits" or "zstd".
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "none":
		return CompressionNone, nil
	case "deflate", "zip":
		return CompressionDeflate, nil
	case "packbits":
		return CompressionPackBits, nil
	case "zstd":
		return CompressionZSTD, nil
	}

	return 0, fmt.Errorf("%s: %w", "unknown compression "+name, ErrUnsupported)
}

// Photometric is the value of the PhotometricInterpretation tag.
type Photometric uint16

// Photometric interpretations.
const (
	PhotometricWhiteIsZero Photometric = 0
	PhotometricBlackIsZero Photometric = 1
	PhotometricRGB         Photometric = 2
	PhotometricPalette     Photometric = 3
	PhotometricMask        Photometric = 4
	PhotometricSeparated   Photometric = 5
	PhotometricYCbCr       Photometric = 6
	PhotometricCIELab      Photometric = 8
	PhotometricICCLab      Photometric = 9
	PhotometricITULab      Photometric = 10
	PhotometricLogL        Photometric = 32844
	PhotometricLogLuv      Photometric = 32845
)

func (p Photometric) String() string {
	switch p {
	case PhotometricWhiteIsZero:
		return "min-is-white"
	case PhotometricBlackIsZero:
		return "min-is-black"
	case PhotometricRGB:
		return "rgb"
	case PhotometricPalette:
		return "palette"
	case PhotometricMask:
		return "mask"
	case PhotometricSeparated:
		return "separated"
	case PhotometricYCbCr:
		return "ycbcr"
	case PhotometricCIELab:
		return "cielab"
	case PhotometricICCLab:
		return "icclab"
	case PhotometricITULab:
		return "itulab"
	case PhotometricLogL:
		return "logl"
	case PhotometricLogLuv:
		return "logluv"
	}

	return fmt.Sprintf("photometric(%d)", uint16(p))
}

// SampleFormat is the value of the SampleFormat tag.
type SampleFormat uint16

// Sample formats.
const (
	SampleFormatUint  SampleFormat = 1
	SampleFormatInt   SampleFormat = 2
	SampleFormatFloat SampleFormat = 3
	SampleFormatVoid  SampleFormat = 4
)

func (s SampleFormat) String() string {
	switch s {
	case SampleFormatUint:
		return "uint"
	case SampleFormatInt:
		return "int"
	case SampleFormatFloat:
		return "float"
	case SampleFormatVoid:
		return "void"
	}

	return fmt.Sprintf("sampleformat(%d)", uint16(s))
}

// PlanarConfiguration is the value of the PlanarConfiguration tag.
type PlanarConfiguration uint16

// Planar configurations.
const (
	PlanarContig   PlanarConfiguration = 1
	PlanarSeparate PlanarConfiguration = 2
)

func (p PlanarConfiguration) String() string {
	switch p {
	case PlanarContig:
		return "contig"
	case PlanarSeparate:
		return "separate"
	}

	return fmt.Sprintf("planar(%d)", uint16(p))
}

// Predictor is the value of the Predictor tag.
type Predictor uint16

// Predictors.
const (
	PredictorNone          Predictor = 1
	PredictorHorizontal    Predictor = 2
	PredictorFloatingPoint Predictor = 3
)

func (p Predictor) String() string {
	switch p {
	case PredictorNone:
		return "none"
	case PredictorHorizontal:
		return "horizontal"
	case PredictorFloatingPoint:
		return "floating-point"
	}

	return fmt.Sprintf("predictor(%d)", uint16(p))
}

// Values of the ExtraSamples tag.
const (
	extraAssociated   = 1
	extraUnassociated = 2
)

// Values of the FillOrder tag.
const (
	fillOrderMSB = 1
	fillOrderLSB = 2
)

// resUnitInch is the inch value of the ResolutionUnit tag.
const resUnitInch = 2

// t4TwoDimensional is the T4Options bit marking 2-D coded Group 3 data.
const t4TwoDimensional = 1
