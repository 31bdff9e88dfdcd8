package decoder

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/AnyUserName/imgcrush/internal/config"
	"github.com/AnyUserName/imgcrush/internal/raster"
	"github.com/chai2010/webp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(x * 255 / w),
				G: uint8(y * 255 / h),
				B: 128,
				A: 255,
			})
		}
	}
	return img
}

func encodeWith(t *testing.T, fn func(*bytes.Buffer) error) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, fn(&buf))
	return buf.Bytes()
}

func fixtures(t *testing.T) map[config.Format][]byte {
	src := gradient(40, 30)
	return map[config.Format][]byte{
		config.FormatPNG: encodeWith(t, func(b *bytes.Buffer) error { return png.Encode(b, src) }),
		config.FormatJPEG: encodeWith(t, func(b *bytes.Buffer) error {
			return jpeg.Encode(b, src, &jpeg.Options{Quality: 90})
		}),
		config.FormatGIF:  encodeWith(t, func(b *bytes.Buffer) error { return gif.Encode(b, src, nil) }),
		config.FormatBMP:  encodeWith(t, func(b *bytes.Buffer) error { return bmp.Encode(b, src) }),
		config.FormatTIFF: encodeWith(t, func(b *bytes.Buffer) error { return tiff.Encode(b, src, nil) }),
		config.FormatWebP: encodeWith(t, func(b *bytes.Buffer) error {
			return webp.Encode(b, src, &webp.Options{Lossless: true})
		}),
	}
}

func TestDetectAndDecode(t *testing.T) {
	for format, data := range fixtures(t) {
		t.Run(format.String(), func(t *testing.T) {
			got, err := Detect(data)
			require.NoError(t, err)
			assert.Equal(t, format, got)

			info, err := Probe(data)
			require.NoError(t, err)
			assert.Equal(t, Info{Format: format, Width: 40, Height: 30}, info)
			assert.Equal(t, uint64(1200), info.Pixels())

			img, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, uint32(40), img.Width)
			assert.Equal(t, uint32(30), img.Height)
			assert.Equal(t, raster.RGBA, img.Channels)
			assert.Equal(t, raster.Depth8, img.Depth)
			assert.NoError(t, img.Validate())
		})
	}
}

func TestLosslessDecodeIsExact(t *testing.T) {
	src := gradient(16, 16)
	data := encodeWith(t, func(b *bytes.Buffer) error { return png.Encode(b, src) })

	img, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, src.Pix, img.Samples)
}

func TestGrayWidensToOpaqueRGBA(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 2, 1))
	g.SetGray(0, 0, color.Gray{Y: 10})
	g.SetGray(1, 0, color.Gray{Y: 250})
	data := encodeWith(t, func(b *bytes.Buffer) error { return png.Encode(b, g) })

	img, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, []byte{10, 10, 10, 255, 250, 250, 250, 255}, img.Samples)
	assert.False(t, img.HasAlpha())
}

func TestUnknownSignature(t *testing.T) {
	random := []byte{0x13, 0x37, 0xde, 0xad, 0xbe, 0xef, 0x00, 0x42, 0x99, 0x01}

	_, err := Detect(random)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Decode(random)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Probe(nil)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestTruncatedStreams(t *testing.T) {
	for _, format := range []config.Format{config.FormatPNG, config.FormatJPEG} {
		data := fixtures(t)[format]
		cut := data[:len(data)/2]

		img, err := Decode(cut)
		assert.ErrorIs(t, err, ErrMalformed, format)
		assert.Nil(t, img)
	}
}

func TestHeaderOnlyPNGIsMalformed(t *testing.T) {
	_, err := Probe([]byte("\x89PNG\r\n\x1a\n"))
	assert.ErrorIs(t, err, ErrMalformed)
}
