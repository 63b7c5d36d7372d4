package poster

import (
	"image"
	"io"
)

type WebPEncoder interface {
	Encode(img image.Image, quality int, w io.Writer) error
}
