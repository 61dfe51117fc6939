package imageio

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"github.com/h2non/filetype"
	"github.com/nfnt/resize"
	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/tiff"
)

var (
	ErrEmptyFile         = errors.New("imageio: empty file")
	ErrUnsupportedScheme = errors.New("imageio: unsupported reference scheme")
)

const (
	MimeJPEG = "image/jpeg"
	MimePNG  = "image/png"
	MimeTIFF = "image/tiff"

	// MimeUnknown is reported for content that matches no known signature.
	MimeUnknown = "application/octet-stream"

	exifColorSpaceSRGB = 1

	sniffLen = 261 // all filetype needs to match a header
)

// UnsupportedTypeError rejects a file whose content isn't an accepted image type.
type UnsupportedTypeError struct {
	MimeType string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("imageio: unsupported type %q", e.MimeType)
}

// ReadError is any failure to open, read or decode the referenced file.
type ReadError struct {
	Ref string
	Err error
}

func (e *ReadError) Error() string { return fmt.Sprintf("imageio: read %s: %v", e.Ref, e.Err) }
func (e *ReadError) Unwrap() error { return e.Err }

type Options struct {
	ScreenMaxSize int      // Downsample so neither dimension is much larger than this; 0 to disable
	AcceptedTypes []string // MIME types; defaults to just JPEG
}

// Decoded is the result of a successful import.
type Decoded struct {
	Bitmap      *Bitmap
	MimeType    string
	SRGB        bool // The EXIF ColorSpace tag said sRGB
	DisplayName string
	Path        string
}

// Import resolves the reference (a plain path or a file:// URI), checks what
// kind of file it is, and decodes it.
func Import(ref string, opts Options) (*Decoded, error) {
	path, err := resolve(ref)
	if err != nil {
		return nil, &ReadError{Ref: ref, Err: err}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &ReadError{Ref: ref, Err: err}
	}
	defer f.Close()

	mimeType, err := sniff(f)
	if err != nil {
		return nil, &ReadError{Ref: ref, Err: err}
	}
	if !accepted(mimeType, opts.AcceptedTypes) {
		return nil, &UnsupportedTypeError{MimeType: mimeType}
	}

	var img image.Image
	if mimeType == MimeTIFF {
		img, err = tiff.Decode(f)
	} else {
		img, _, err = image.Decode(f)
	}
	if err != nil {
		return nil, &ReadError{Ref: ref, Err: fmt.Errorf("decode %s: %w", mimeType, err)}
	}

	return &Decoded{
		Bitmap:      FromImage(downsample(img, opts.ScreenMaxSize)),
		MimeType:    mimeType,
		SRGB:        isSRGB(f),
		DisplayName: DisplayName(ref),
		Path:        path,
	}, nil
}

// DisplayName is the last path segment of the reference.
func DisplayName(ref string) string {
	if u, err := url.Parse(ref); err == nil && u.Scheme == "file" {
		return filepath.Base(u.Path)
	}
	return filepath.Base(ref)
}

func resolve(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil || u.Scheme == "" {
		return ref, nil
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	return u.Path, nil
}

// sniff reads the file header to find the MIME type, leaving the file rewound.
func sniff(f io.ReadSeeker) (string, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", err
	}
	if n == 0 {
		return "", ErrEmptyFile
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	kind, err := filetype.Match(head[:n])
	if err != nil || kind == filetype.Unknown {
		return MimeUnknown, nil
	}
	return kind.MIME.Value, nil
}

func accepted(mimeType string, types []string) bool {
	if len(types) == 0 {
		types = []string{MimeJPEG}
	}
	for _, t := range types {
		if t == mimeType {
			return true
		}
	}
	return false
}

// isSRGB is false unless the EXIF data positively says sRGB; files with no
// EXIF block count as uncalibrated.
func isSRGB(f io.ReadSeeker) bool {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return false
	}
	ex, err := exif.Decode(f)
	if err != nil {
		return false
	}
	tag, err := ex.Get(exif.ColorSpace)
	if err != nil {
		return false
	}
	val, err := tag.Int(0)
	return err == nil && val == exifColorSpaceSRGB
}

// downsample shrinks by a whole factor, so the larger dimension ends up
// around maxSize.
func downsample(img image.Image, maxSize int) image.Image {
	if maxSize <= 0 {
		return img
	}
	b := img.Bounds()
	maxDim := b.Dx()
	if b.Dy() > maxDim {
		maxDim = b.Dy()
	}
	factor := maxDim / maxSize
	if factor <= 1 {
		return img
	}
	return resize.Resize(uint(b.Dx()/factor), uint(b.Dy()/factor), img, resize.Bilinear)
}
