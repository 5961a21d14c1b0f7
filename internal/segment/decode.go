package segment

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"

	_ "github.com/ftrvxmtrx/tga"
	xdraw "golang.org/x/image/draw"
)

// DecodeImage decodes a base64 mask or inpaint crop into NRGBA. Format is
// picked up by registration (PNG for masks, JPEG for inpaint crops; TGA is
// accepted for tooling that feeds textures straight through).
func DecodeImage(b64 string) (*image.NRGBA, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("segment: base64 decode: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("segment: image decode: %w", err)
	}
	return toNRGBA(img), nil
}

// EncodeImageBase64 is the inverse used by tooling: raw encoded bytes to the
// wire form.
func EncodeImageBase64(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}

// Scale resizes an image to w×h with bilinear filtering.
func Scale(src image.Image, w, h int) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Over, nil)
	return dst
}

// InpaintImage decodes a mask's inpaint crop at its InpaintBBox size. The
// service stores the crop downscaled by inpaint_scale, so it is blown back
// up before use as a patch texture.
func InpaintImage(m Mask) (*image.NRGBA, error) {
	img, err := DecodeImage(m.InpaintData)
	if err != nil {
		return nil, err
	}
	if len(m.InpaintBBox) == 4 {
		w := m.InpaintBBox[2] - m.InpaintBBox[0]
		h := m.InpaintBBox[3] - m.InpaintBBox[1]
		if w > 0 && h > 0 && (img.Bounds().Dx() != w || img.Bounds().Dy() != h) {
			img = Scale(img, w, h)
		}
	}
	return img, nil
}

// TightBounds returns the smallest rectangle containing every mask pixel
// (luminance above half), and false when the mask is empty.
func TightBounds(m *image.NRGBA) (image.Rectangle, bool) {
	b := m.Bounds()
	minX, minY := b.Max.X, b.Max.Y
	maxX, maxY := b.Min.X-1, b.Min.Y-1
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			i := m.PixOffset(x, y)
			if m.Pix[i] > 127 {
				if x < minX {
					minX = x
				}
				if y < minY {
					minY = y
				}
				if x > maxX {
					maxX = x
				}
				if y > maxY {
					maxY = y
				}
			}
		}
	}
	if maxX < minX {
		return image.Rectangle{}, false
	}
	return image.Rect(minX, minY, maxX+1, maxY+1), true
}

func toNRGBA(src image.Image) *image.NRGBA {
	if n, ok := src.(*image.NRGBA); ok {
		return n
	}
	b := src.Bounds()
	dst := image.NewNRGBA(b)
	draw.Draw(dst, b, src, b.Min, draw.Src)
	return dst
}
