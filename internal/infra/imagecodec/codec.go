// Package imagecodec decodes stored frame images and encodes new ones in the
// configured output format.
package imagecodec

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const DefaultQuality = 90

// Codec implements port.ImageCodec.
type Codec struct {
	quality int
}

func New(quality int) *Codec {
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}
	return &Codec{quality: quality}
}

// Decode reads any registered format (jpeg, png, gif, webp, bmp, tiff).
func (c *Codec) Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

func (c *Codec) Encode(img image.Image, format string) ([]byte, error) {
	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "webp":
		if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(c.quality)}); err != nil {
			return nil, fmt.Errorf("encode webp: %w", err)
		}
	default:
		f, err := imaging.FormatFromExtension(format)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", format, err)
		}
		if err := imaging.Encode(&buf, img, f, imaging.JPEGQuality(c.quality)); err != nil {
			return nil, fmt.Errorf("encode %s: %w", format, err)
		}
	}
	return buf.Bytes(), nil
}

// CorrectAspect stretches the width of a frame whose pixels are not square so
// that the stored original shows the intended display aspect ratio.
func CorrectAspect(img image.Image, pixelAspect float64) image.Image {
	if pixelAspect <= 0 || math.Abs(pixelAspect-1) < 1e-3 {
		return img
	}
	b := img.Bounds()
	w := int(math.Round(float64(b.Dx()) * pixelAspect))
	if w < 1 {
		w = 1
	}
	if w == b.Dx() {
		return img
	}
	return imaging.Resize(img, w, b.Dy(), imaging.Lanczos)
}

// ResizeToWidth scales img to exactly width pixels wide, keeping the aspect
// ratio to within one pixel of rounding.
func ResizeToWidth(img image.Image, width int) image.Image {
	b := img.Bounds()
	h := ScaledHeight(b.Dx(), b.Dy(), width)
	return imaging.Resize(img, width, h, imaging.Lanczos)
}

// ScaledHeight returns the height matching width for a w x h source.
func ScaledHeight(w, h, width int) int {
	if w <= 0 {
		return 1
	}
	out := int(math.Round(float64(width) * float64(h) / float64(w)))
	if out < 1 {
		out = 1
	}
	return out
}

// Clone copies img into a fresh NRGBA buffer.
func Clone(img image.Image) *image.NRGBA {
	return imaging.Clone(img)
}
