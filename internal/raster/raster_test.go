package raster

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSatisfiesInvariant(t *testing.T) {
	for _, ch := range []Channels{Gray, GrayAlpha, RGB, RGBA} {
		for _, d := range []Depth{Depth8, Depth16} {
			img, err := New(7, 3, ch, d)
			require.NoError(t, err)
			assert.Len(t, img.Samples, 7*3*ch.Count()*d.Bytes())
			assert.NoError(t, img.Validate())
		}
	}
}

func TestNewRejectsBadLayout(t *testing.T) {
	_, err := New(1, 1, Channels(5), Depth8)
	assert.Error(t, err)
	_, err = New(1, 1, RGB, Depth(12))
	assert.Error(t, err)
}

func TestValidateDetectsShortBuffer(t *testing.T) {
	img := &Image{Width: 2, Height: 2, Channels: RGBA, Depth: Depth8, Samples: make([]byte, 15)}
	assert.Error(t, img.Validate())
}

func TestFromNRGBASharesPackedBuffer(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 4, 2))
	src.SetNRGBA(1, 1, color.NRGBA{R: 9, G: 8, B: 7, A: 6})

	img := FromNRGBA(src)
	require.NoError(t, img.Validate())
	assert.Equal(t, uint32(4), img.Width)
	assert.Equal(t, uint32(2), img.Height)
	assert.Same(t, &src.Pix[0], &img.Samples[0])
}

func TestFromNRGBACopiesSubImage(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	src.SetNRGBA(2, 2, color.NRGBA{R: 200, A: 255})
	sub := src.SubImage(image.Rect(1, 1, 3, 3)).(*image.NRGBA)

	img := FromNRGBA(sub)
	require.NoError(t, img.Validate())
	assert.Equal(t, uint32(2), img.Width)
	got := img.Image().(*image.NRGBA).NRGBAAt(1, 1)
	assert.Equal(t, color.NRGBA{R: 200, A: 255}, got)
}

func TestImageExpandsLayouts(t *testing.T) {
	rgb := &Image{Width: 1, Height: 1, Channels: RGB, Depth: Depth8, Samples: []byte{1, 2, 3}}
	assert.Equal(t, color.NRGBA{R: 1, G: 2, B: 3, A: 255}, rgb.Image().(*image.NRGBA).NRGBAAt(0, 0))

	ga := &Image{Width: 1, Height: 1, Channels: GrayAlpha, Depth: Depth8, Samples: []byte{50, 60}}
	assert.Equal(t, color.NRGBA{R: 50, G: 50, B: 50, A: 60}, ga.Image().(*image.NRGBA).NRGBAAt(0, 0))

	g16 := &Image{Width: 1, Height: 1, Channels: Gray, Depth: Depth16, Samples: []byte{0x12, 0x34}}
	assert.Equal(t, color.Gray16{Y: 0x1234}, g16.Image().(*image.Gray16).Gray16At(0, 0))

	rgb16 := &Image{Width: 1, Height: 1, Channels: RGB, Depth: Depth16, Samples: []byte{0, 1, 0, 2, 0, 3}}
	assert.Equal(t, color.NRGBA64{R: 1, G: 2, B: 3, A: 0xffff}, rgb16.Image().(*image.NRGBA64).NRGBA64At(0, 0))
}

func TestHasAlpha(t *testing.T) {
	opaque := &Image{Width: 2, Height: 1, Channels: RGBA, Depth: Depth8, Samples: []byte{1, 2, 3, 255, 4, 5, 6, 255}}
	assert.False(t, opaque.HasAlpha())

	translucent := &Image{Width: 2, Height: 1, Channels: RGBA, Depth: Depth8, Samples: []byte{1, 2, 3, 255, 4, 5, 6, 128}}
	assert.True(t, translucent.HasAlpha())

	rgb := &Image{Width: 1, Height: 1, Channels: RGB, Depth: Depth8, Samples: []byte{0, 0, 0}}
	assert.False(t, rgb.HasAlpha())
}
