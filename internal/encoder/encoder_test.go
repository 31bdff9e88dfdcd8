package encoder

import (
	"bytes"
	"errors"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/AnyUserName/imgcrush/internal/config"
	"github.com/AnyUserName/imgcrush/internal/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/webp"
)

func gradient(w, h uint32, alpha bool) *raster.Image {
	img, _ := raster.New(w, h, raster.RGBA, raster.Depth8)
	for y := uint32(0); y < h; y++ {
		for x := uint32(0); x < w; x++ {
			i := (y*w + x) * 4
			a := byte(255)
			if alpha {
				a = byte(x * 255 / w)
			}
			img.Samples[i] = byte(x * 255 / w)
			img.Samples[i+1] = byte(y * 255 / h)
			img.Samples[i+2] = 128
			img.Samples[i+3] = a
		}
	}
	return img
}

func builtins() *Registry {
	return NewRegistry(&WebPEncoder{}, &JPEGEncoder{}, &PNGEncoder{}, &GIFEncoder{})
}

func TestEncodeProducesParseableOutput(t *testing.T) {
	r := builtins()
	src := gradient(48, 32, false)

	decoders := map[config.Format]func([]byte) (image.Image, error){
		config.FormatJPEG: func(b []byte) (image.Image, error) { return jpeg.Decode(bytes.NewReader(b)) },
		config.FormatPNG:  func(b []byte) (image.Image, error) { return png.Decode(bytes.NewReader(b)) },
		config.FormatGIF:  func(b []byte) (image.Image, error) { return gif.Decode(bytes.NewReader(b)) },
		config.FormatWebP: func(b []byte) (image.Image, error) { return webp.Decode(bytes.NewReader(b)) },
	}

	for format, decode := range decoders {
		for _, q := range []int{0, 50, 100} {
			data, err := r.Encode(src, format, q)
			require.NoError(t, err, "%s q=%d", format, q)

			img, err := decode(data)
			require.NoError(t, err, "%s q=%d", format, q)
			assert.Equal(t, 48, img.Bounds().Dx())
			assert.Equal(t, 32, img.Bounds().Dy())
		}
	}
}

func TestEncodeDeterministic(t *testing.T) {
	r := builtins()
	src := gradient(64, 64, true)

	for _, format := range []config.Format{config.FormatJPEG, config.FormatPNG, config.FormatWebP, config.FormatGIF} {
		a, err := r.Encode(src, format, 80)
		require.NoError(t, err)
		b, err := r.Encode(src, format, 80)
		require.NoError(t, err)
		assert.Equal(t, a, b, format)
	}
}

func TestPNGRoundTripIsLossless(t *testing.T) {
	src := gradient(20, 10, true)

	data, err := builtins().Encode(src, config.FormatPNG, 0)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	nrgba, ok := img.(*image.NRGBA)
	require.True(t, ok, "translucent PNG decodes as NRGBA, got %T", img)
	assert.Equal(t, src.Samples, nrgba.Pix)
}

func TestPNGIgnoresQuality(t *testing.T) {
	r := builtins()
	src := gradient(16, 16, false)

	low, err := r.Encode(src, config.FormatPNG, 0)
	require.NoError(t, err)
	high, err := r.Encode(src, config.FormatPNG, 100)
	require.NoError(t, err)
	assert.Equal(t, low, high)
}

func TestJPEGQualityShrinksOutput(t *testing.T) {
	r := builtins()
	src := gradient(128, 128, false)

	low, err := r.Encode(src, config.FormatJPEG, 0)
	require.NoError(t, err)
	high, err := r.Encode(src, config.FormatJPEG, 100)
	require.NoError(t, err)
	assert.Less(t, len(low), len(high))
}

func TestEncodeErrors(t *testing.T) {
	r := builtins()

	_, err := r.Encode(&raster.Image{Width: 0, Height: 4, Channels: raster.RGBA, Depth: raster.Depth8}, config.FormatPNG, 80)
	assert.ErrorIs(t, err, ErrInvalidDimensions)

	_, err = r.Encode(nil, config.FormatPNG, 80)
	assert.ErrorIs(t, err, ErrInvalidDimensions)

	_, err = r.Encode(gradient(4, 4, false), config.FormatAVIF, 80)
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = r.Encode(gradient(4, 4, false), config.FormatBMP, 80)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestAVIFUnavailableWithoutAvifenc(t *testing.T) {
	enc := &AVIFEncoder{lookPath: func(string) (string, error) { return "", errors.New("not found") }}
	assert.False(t, enc.Available())

	_, err := enc.Encode(image.NewNRGBA(image.Rect(0, 0, 1, 1)), 50)
	assert.ErrorIs(t, err, ErrUnsupported)

	r := NewRegistry(enc, &PNGEncoder{})
	assert.Nil(t, r.Get(config.FormatAVIF))
	assert.Equal(t, []config.Format{config.FormatPNG}, r.Available())
	assert.Equal(t, "encoders: png", r.String())
}

func TestAVIFQuantizer(t *testing.T) {
	assert.Equal(t, 63, avifQuantizer(0))
	assert.Equal(t, 0, avifQuantizer(100))
	assert.Equal(t, 32, avifQuantizer(50))
}

func TestInitIsIdempotent(t *testing.T) {
	a := Init()
	b := Init()
	assert.Same(t, a, b)
	assert.True(t, Ready())
	assert.NotNil(t, a.Get(config.FormatJPEG))
}

func TestSharedEncode(t *testing.T) {
	data, err := Encode(gradient(20, 10, false), config.FormatPNG, 80)
	require.NoError(t, err)
	assert.True(t, Ready())

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 20, 10), img.Bounds())

	_, err = Encode(gradient(4, 4, false), config.FormatTIFF, 80)
	assert.ErrorIs(t, err, ErrUnsupported)
	_, err = Encode(nil, config.FormatJPEG, 80)
	assert.ErrorIs(t, err, ErrInvalidDimensions)
}

func TestResolveFormats(t *testing.T) {
	r := builtins()
	tests := []struct {
		name      string
		requested []config.Format
		alpha     bool
		want      []config.Format
	}{
		{"keeps order", []config.Format{config.FormatWebP, config.FormatJPEG}, false, []config.Format{config.FormatWebP, config.FormatJPEG}},
		{"drops unavailable", []config.Format{config.FormatAVIF, config.FormatWebP}, false, []config.Format{config.FormatWebP}},
		{"dedupes", []config.Format{config.FormatJPEG, config.FormatJPEG}, false, []config.Format{config.FormatJPEG}},
		{"opaque fallback", []config.Format{config.FormatAVIF}, false, []config.Format{config.FormatJPEG}},
		{"alpha adds png", []config.Format{config.FormatWebP}, true, []config.Format{config.FormatWebP, config.FormatPNG}},
		{"alpha keeps png once", []config.Format{config.FormatPNG}, true, []config.Format{config.FormatPNG}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.ResolveFormats(tt.requested, tt.alpha))
		})
	}
}
