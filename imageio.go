// Package imageio reads and writes TIFF and Targa files.
//
// The codecs live in the tiff and targa packages; this package picks one by
// file signature or extension and works on paths. Files are memory mapped
// for reading, so TIFF strips are read in place.
package imageio

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
)

// ErrUnknownFormat is returned when neither the signature nor the file
// extension identify a supported format.
var ErrUnknownFormat = errors.New("imageio: unknown format")

// Format is a file format handled by this package.
type Format int

const (
	FormatUnknown Format = iota
	FormatTIFF
	FormatTarga
)

func (f Format) String() string {
	switch f {
	case FormatTIFF:
		return "TIFF"
	case FormatTarga:
		return "Targa"
	default:
		return "unknown"
	}
}

var (
	tiffLE = []byte("II\x2a\x00")
	tiffBE = []byte("MM\x00\x2a")
)

var extensions = map[string]Format{
	".tif":   FormatTIFF,
	".tiff":  FormatTIFF,
	".tga":   FormatTarga,
	".targa": FormatTarga,
	".icb":   FormatTarga,
	".vda":   FormatTarga,
	".vst":   FormatTarga,
}

// DetectFormat identifies the format of a file from its first bytes and,
// when they are inconclusive, from the extension of name.
func DetectFormat(head []byte, name string) (Format, error) {
	if bytes.HasPrefix(head, tiffLE) || bytes.HasPrefix(head, tiffBE) {
		return FormatTIFF, nil
	}

	// Targa has no signature. An uncompressed true-color header without a
	// color map and with a depth of 24 or 32 bits is taken as one.
	if len(head) >= 18 && head[1] == 0 && head[2] == 2 && (head[16] == 24 || head[16] == 32) {
		return FormatTarga, nil
	}

	return formatFromName(name)
}

// formatFromName maps the extension of name to a Format.
func formatFromName(name string) (Format, error) {
	if f, ok := extensions[strings.ToLower(filepath.Ext(name))]; ok {
		return f, nil
	}

	return FormatUnknown, ErrUnknownFormat
}
