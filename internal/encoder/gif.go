package encoder

import (
	"bytes"
	"image"
	"image/gif"

	"github.com/AnyUserName/imgcrush/internal/config"
)

// GIFEncoder writes a single-frame GIF. Quality selects the palette size,
// from 2 colors at 0 to 256 at 100.
type GIFEncoder struct{}

func (e *GIFEncoder) Format() config.Format { return config.FormatGIF }
func (e *GIFEncoder) Available() bool       { return true }

func (e *GIFEncoder) Encode(img image.Image, quality int) ([]byte, error) {
	quality = max(0, min(quality, 100))
	colors := 2 + quality*254/100

	var buf bytes.Buffer
	if err := gif.Encode(&buf, img, &gif.Options{NumColors: colors}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
