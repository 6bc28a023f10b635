// Package imagefile writes rendered frames to disk in a format picked from the file name.
package imagefile

import (
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

var ErrUnknownFormat = errors.New("unknown image format")

type Encoder interface {
	Encode(w io.Writer, img *image.RGBA) error
}

type EncoderFunc func(w io.Writer, img *image.RGBA) error

func (f EncoderFunc) Encode(w io.Writer, img *image.RGBA) error { return f(w, img) }

var (
	PNG = EncoderFunc(func(w io.Writer, img *image.RGBA) error {
		return png.Encode(w, img)
	})
	BMP = EncoderFunc(func(w io.Writer, img *image.RGBA) error {
		return bmp.Encode(w, img)
	})
	TIFF = EncoderFunc(func(w io.Writer, img *image.RGBA) error {
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	})
	RawLZ4 = EncoderFunc(EncodeRaw)
)

var encoders = map[string]Encoder{
	".png":      PNG,
	".bmp":      BMP,
	".tif":      TIFF,
	".tiff":     TIFF,
	".rgba.lz4": RawLZ4,
}

// Extensions lists the file name suffixes ForPath understands.
func Extensions() []string {
	var out []string
	for ext := range encoders {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// ForPath picks the encoder matching the longest known suffix of path.
func ForPath(path string) (Encoder, error) {
	lower := strings.ToLower(filepath.Base(path))

	var match string
	for ext := range encoders {
		if strings.HasSuffix(lower, ext) && len(ext) > len(match) {
			match = ext
		}
	}
	if match == "" {
		return nil, errors.Wrapf(ErrUnknownFormat, "%s (known: %s)", path, strings.Join(Extensions(), ", "))
	}
	return encoders[match], nil
}

// File is an image destination on disk. Writes go to a temporary file beside Path that
// is renamed into place once the encoder succeeds.
type File struct {
	Path    string
	Encoder Encoder
}

func NewFile(path string) (*File, error) {
	encoder, err := ForPath(path)
	if err != nil {
		return nil, err
	}
	return &File{Path: path, Encoder: encoder}, nil
}

func (f *File) String() string { return f.Path }

func (f *File) WriteImage(img *image.RGBA) (err error) {
	dir, base := filepath.Split(f.Path)
	if dir == "" {
		dir = "."
	}

	tmp, err := os.CreateTemp(dir, "."+base+".*")
	if err != nil {
		return errors.Wrapf(err, "creating temporary file for %s", f.Path)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err := f.Encoder.Encode(tmp, img); err != nil {
		return errors.Wrapf(err, "encoding %s", f.Path)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "closing %s", tmp.Name())
	}
	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		return errors.Wrapf(err, "renaming %s", tmp.Name())
	}
	return nil
}
