package poster

import (
	"bytes"
	"fmt"
	"image"
	"io"

	"github.com/chai2010/webp"
	"golang.org/x/image/draw"
)

const (
	DefaultMaxWidth = 640
	DefaultQuality  = 80
)

type Encoder struct {
	webpEnc  WebPEncoder
	maxWidth int
	quality  int
}

type chaiEncoder struct{}

func (chaiEncoder) Encode(img image.Image, quality int, w io.Writer) error {
	return webp.Encode(w, img, &webp.Options{Quality: float32(quality)})
}

// NewEncoder returns an Encoder backed by libwebp. A nil enc selects the default.
func NewEncoder(enc WebPEncoder) *Encoder {
	if enc == nil {
		enc = chaiEncoder{}
	}
	return &Encoder{
		webpEnc:  enc,
		maxWidth: DefaultMaxWidth,
		quality:  DefaultQuality,
	}
}

// Encode scales img down to the configured width, keeping its aspect ratio, and returns lossy WebP bytes.
// Images already narrow enough are encoded as-is.
func (e *Encoder) Encode(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("poster: nil image")
	}

	scaled := Scale(img, e.maxWidth)

	buf := &bytes.Buffer{}
	if err := e.webpEnc.Encode(scaled, e.quality, buf); err != nil {
		return nil, fmt.Errorf("poster: failed to encode WebP: %w", err)
	}
	return buf.Bytes(), nil
}

// Scale resizes img so its width is at most maxWidth.
func Scale(img image.Image, maxWidth int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxWidth <= 0 || w <= maxWidth || w == 0 {
		return img
	}

	nh := h * maxWidth / w
	if nh < 1 {
		nh = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
