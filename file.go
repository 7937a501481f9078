package imageio

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/exp/mmap"

	"github.com/gen2brain/imageio/pixel"
	"github.com/gen2brain/imageio/targa"
	"github.com/gen2brain/imageio/tiff"
)

// ReadOptions specifies decoding parameters.
type ReadOptions struct {
	// Directory selects the TIFF image directory (page), starting at 0.
	Directory int
	// Concurrency bounds the number of strips decoded in parallel.
	Concurrency int
	// HDR decodes floating point RGB into *hdr.RGB.
	HDR bool
	// TargaOrigin accepts Targa files stored top down or right to left.
	TargaOrigin bool
}

// WriteOptions specifies encoding parameters.
type WriteOptions struct {
	// Format overrides the format chosen from the file extension.
	Format Format
	// TIFF and Targa hold the codec options of each format.
	TIFF  *tiff.EncodeOptions
	Targa *targa.EncodeOptions
}

// Info describes an image file without its pixel data.
type Info struct {
	Format Format
	Width  int
	Height int
	// Pixel is the sample layout the file decodes to. It is the zero value
	// when the layout is not supported.
	Pixel pixel.Format
	// Directories is the number of images in a TIFF file and 1 otherwise.
	Directories int

	TIFF  *tiff.ImageInfo
	Targa *targa.Header
}

// sectionReader is an io.SectionReader that reports the bytes left to read.
type sectionReader struct {
	*io.SectionReader
}

func (s sectionReader) Len() int {
	pos, _ := s.Seek(0, io.SeekCurrent)

	return int(s.Size() - pos)
}

// openFile maps path into memory and detects its format.
func openFile(path string) (*mmap.ReaderAt, Format, error) {
	ra, err := mmap.Open(path)
	if err != nil {
		return nil, FormatUnknown, err
	}

	head := make([]byte, 18)
	n, _ := ra.ReadAt(head, 0)

	f, err := DetectFormat(head[:n], path)
	if err != nil {
		ra.Close()
		return nil, FormatUnknown, fmt.Errorf("%s: %w", path, err)
	}

	return ra, f, nil
}

// ReadFile decodes the image stored at path.
func ReadFile(path string, opts *ReadOptions) (image.Image, Format, error) {
	return ReadFileContext(context.Background(), path, opts)
}

// ReadFileContext is like ReadFile, with ctx cancelling the decoding of TIFF
// strips.
func ReadFileContext(ctx context.Context, path string, opts *ReadOptions) (image.Image, Format, error) {
	var o ReadOptions
	if opts != nil {
		o = *opts
	}

	ra, f, err := openFile(path)
	if err != nil {
		return nil, FormatUnknown, err
	}
	defer ra.Close()

	var m image.Image
	switch f {
	case FormatTIFF:
		var r *tiff.Reader
		r, err = tiff.NewReader(ra, &tiff.Options{
			Directory:   o.Directory,
			Concurrency: o.Concurrency,
			HDR:         o.HDR,
		})
		if err == nil {
			m, err = r.Read(ctx)
		}
	case FormatTarga:
		m, err = targa.Decode(sectionReader{io.NewSectionReader(ra, 0, int64(ra.Len()))}, &targa.Options{Origin: o.TargaOrigin})
	}

	if err != nil {
		return nil, f, fmt.Errorf("%s: %w", path, err)
	}

	return m, f, nil
}

// ReadInfo returns the header record of the image stored at path. Only the
// Directory and TargaOrigin fields of opts are used.
func ReadInfo(path string, opts ...*ReadOptions) (Info, error) {
	var o ReadOptions
	if len(opts) > 0 && opts[0] != nil {
		o = *opts[0]
	}

	ra, f, err := openFile(path)
	if err != nil {
		return Info{}, err
	}
	defer ra.Close()

	info := Info{Format: f, Directories: 1}

	switch f {
	case FormatTIFF:
		r, err := tiff.NewReader(ra, &tiff.Options{Directory: o.Directory})
		if err != nil {
			return Info{}, fmt.Errorf("%s: %w", path, err)
		}

		ti := r.Info()
		info.TIFF = &ti
		info.Width, info.Height = ti.Width, ti.Height
		info.Directories = r.DirectoryCount()
		if pf, err := ti.Format(); err == nil {
			info.Pixel = pf
		}
	case FormatTarga:
		h, err := targa.DecodeHeader(io.NewSectionReader(ra, 0, int64(ra.Len())), &targa.Options{Origin: o.TargaOrigin})
		if err != nil {
			return Info{}, fmt.Errorf("%s: %w", path, err)
		}

		info.Targa = &h
		info.Width, info.Height = int(h.Width), int(h.Height)
		info.Pixel = h.Format()
	}

	return info, nil
}

// WriteFile encodes m to path. The format comes from opts.Format or from
// the extension of path. The image is written to a temporary file in the
// same directory that replaces path once complete.
func WriteFile(path string, m image.Image, opts *WriteOptions) (err error) {
	var o WriteOptions
	if opts != nil {
		o = *opts
	}

	f := o.Format
	if f == FormatUnknown {
		if f, err = formatFromName(path); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	switch f {
	case FormatTIFF:
		err = tiff.Encode(tmp, m, o.TIFF)
	case FormatTarga:
		err = targa.Encode(tmp, m, o.Targa)
	default:
		err = ErrUnknownFormat
	}

	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	if err = tmp.Chmod(0o644); err != nil {
		return err
	}

	if err = tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}
