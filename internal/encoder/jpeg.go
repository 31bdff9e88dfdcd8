package encoder

import (
	"bytes"
	"image"
	"image/jpeg"

	"github.com/AnyUserName/imgcrush/internal/config"
)

// JPEGEncoder encodes images to JPEG using Go's standard library.
type JPEGEncoder struct{}

func (e *JPEGEncoder) Format() config.Format { return config.FormatJPEG }
func (e *JPEGEncoder) Available() bool       { return true }

// Encode maps quality 0 to 1, the strongest compression image/jpeg offers.
func (e *JPEGEncoder) Encode(img image.Image, quality int) ([]byte, error) {
	quality = max(1, min(quality, 100))

	var buf bytes.Buffer
	buf.Grow(256 * 1024) // pre-alloc 256KB — avoids repeated grow for typical photos

	err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
