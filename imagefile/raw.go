package imagefile

import (
	"encoding/binary"
	"image"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/pierrec/lz4"
)

var rawMagic = [4]byte{'R', 'G', 'B', 'A'}

type rawHeader struct {
	Magic  [4]byte
	Width  uint32
	Height uint32
}

// EncodeRaw writes an lz4 stream holding a small header followed by the packed rows.
func EncodeRaw(w io.Writer, img *image.RGBA) error {
	bounds := img.Bounds()
	writer := lz4.NewWriter(w)

	header := rawHeader{Magic: rawMagic, Width: uint32(bounds.Dx()), Height: uint32(bounds.Dy())}
	if err := binary.Write(writer, binary.LittleEndian, header); err != nil {
		return errors.Wrap(err, "writing raw header")
	}

	rowBytes := bounds.Dx() * 4
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		start := img.PixOffset(bounds.Min.X, y)
		if _, err := writer.Write(img.Pix[start : start+rowBytes]); err != nil {
			return errors.Wrap(err, "writing raw rows")
		}
	}

	return writer.Close()
}

// DecodeRaw reads an image written by EncodeRaw.
func DecodeRaw(r io.Reader) (*image.RGBA, error) {
	reader := lz4.NewReader(r)

	var header rawHeader
	if err := binary.Read(reader, binary.LittleEndian, &header); err != nil {
		return nil, errors.Wrap(err, "reading raw header")
	}
	if header.Magic != rawMagic {
		return nil, errors.Newf("bad raw magic %q", header.Magic[:])
	}

	img := image.NewRGBA(image.Rect(0, 0, int(header.Width), int(header.Height)))
	if _, err := io.ReadFull(reader, img.Pix); err != nil {
		return nil, errors.Wrap(err, "reading raw rows")
	}
	return img, nil
}
