package frame

import (
	"image"

	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/offscreen/gpu"
)

// LinearView reads rows out of mapped linear image memory. Every access is checked
// against the mapping.
type LinearView struct {
	data     []byte
	layout   gpu.SubresourceLayout
	extent   gpu.Extent2D
	format   gpu.Format
	rowBytes int
}

func NewLinearView(data []byte, layout gpu.SubresourceLayout, extent gpu.Extent2D, format gpu.Format) (*LinearView, error) {
	bpp := format.BytesPerPixel()
	if bpp == 0 {
		return nil, errors.Wrapf(gpu.ErrFormatUnsupported, "cannot read back %s", format)
	}
	if extent.Width <= 0 || extent.Height <= 0 {
		return nil, errors.Newf("empty extent %s", extent)
	}

	rowBytes := extent.Width * bpp
	if layout.RowPitch < rowBytes {
		return nil, errors.Newf("row pitch %d is shorter than a %d byte row", layout.RowPitch, rowBytes)
	}
	if layout.Offset < 0 {
		return nil, errors.Newf("negative subresource offset %d", layout.Offset)
	}
	end := layout.Offset + layout.RowPitch*(extent.Height-1) + rowBytes
	if end > len(data) {
		return nil, errors.Newf("image ends at byte %d but only %d are mapped", end, len(data))
	}

	return &LinearView{
		data:     data,
		layout:   layout,
		extent:   extent,
		format:   format,
		rowBytes: rowBytes,
	}, nil
}

// Row returns the texels of row y without the row padding.
func (v *LinearView) Row(y int) ([]byte, error) {
	if y < 0 || y >= v.extent.Height {
		return nil, errors.Newf("row %d outside image of height %d", y, v.extent.Height)
	}
	start := v.layout.Offset + y*v.layout.RowPitch
	return v.data[start : start+v.rowBytes], nil
}

// RGBA copies the view into a tightly packed image.
func (v *LinearView) RGBA() (*image.RGBA, error) {
	img := image.NewRGBA(image.Rect(0, 0, v.extent.Width, v.extent.Height))
	for y := 0; y < v.extent.Height; y++ {
		row, err := v.Row(y)
		if err != nil {
			return nil, err
		}
		dst := img.Pix[y*img.Stride : y*img.Stride+v.rowBytes]
		copy(dst, row)

		if v.format == gpu.FormatB8G8R8A8Unorm {
			for x := 0; x < len(dst); x += 4 {
				dst[x], dst[x+2] = dst[x+2], dst[x]
			}
		}
	}
	return img, nil
}
