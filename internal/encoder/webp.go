package encoder

import (
	"bytes"
	"image"

	"github.com/AnyUserName/imgcrush/internal/config"
	"github.com/chai2010/webp"
)

// WebPEncoder encodes images to WebP through libwebp (cgo).
// Quality 100 switches to lossless mode.
type WebPEncoder struct{}

func (e *WebPEncoder) Format() config.Format { return config.FormatWebP }
func (e *WebPEncoder) Available() bool       { return true }

func (e *WebPEncoder) Encode(img image.Image, quality int) ([]byte, error) {
	quality = max(0, min(quality, 100))

	var buf bytes.Buffer
	opts := &webp.Options{Lossless: quality == 100, Quality: float32(quality)}
	if err := webp.Encode(&buf, img, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
