// Package raster holds decoded pixel data in a flat, row-major layout.
package raster

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
)

// Channels is the per-pixel sample layout.
type Channels uint8

const (
	Gray      Channels = 1
	GrayAlpha Channels = 2
	RGB       Channels = 3
	RGBA      Channels = 4
)

// Count returns the number of samples per pixel.
func (c Channels) Count() int { return int(c) }

func (c Channels) String() string {
	switch c {
	case Gray:
		return "gray"
	case GrayAlpha:
		return "gray+alpha"
	case RGB:
		return "rgb"
	case RGBA:
		return "rgba"
	}
	return fmt.Sprintf("channels(%d)", uint8(c))
}

// Depth is the bit depth of one sample.
type Depth uint8

const (
	Depth8  Depth = 8
	Depth16 Depth = 16
)

// Bytes returns the storage size of one sample.
func (d Depth) Bytes() int { return int(d) / 8 }

// Image is a decoded raster. Samples are non-premultiplied and, for 16-bit
// depth, big-endian. The invariant
//
//	len(Samples) == Width*Height*Channels.Count()*Depth.Bytes()
//
// holds for every Image produced by this package.
type Image struct {
	Width    uint32
	Height   uint32
	Channels Channels
	Depth    Depth
	Samples  []byte
}

// New allocates a zeroed raster.
func New(width, height uint32, ch Channels, depth Depth) (*Image, error) {
	if err := checkLayout(ch, depth); err != nil {
		return nil, err
	}
	n := int(width) * int(height) * ch.Count() * depth.Bytes()
	return &Image{
		Width:    width,
		Height:   height,
		Channels: ch,
		Depth:    depth,
		Samples:  make([]byte, n),
	}, nil
}

func checkLayout(ch Channels, depth Depth) error {
	switch ch {
	case Gray, GrayAlpha, RGB, RGBA:
	default:
		return fmt.Errorf("raster: invalid channel layout %d", ch)
	}
	if depth != Depth8 && depth != Depth16 {
		return fmt.Errorf("raster: invalid bit depth %d", depth)
	}
	return nil
}

// Validate checks the sample buffer length invariant.
func (m *Image) Validate() error {
	if err := checkLayout(m.Channels, m.Depth); err != nil {
		return err
	}
	want := m.Pixels() * uint64(m.Channels.Count()*m.Depth.Bytes())
	if uint64(len(m.Samples)) != want {
		return fmt.Errorf("raster: %dx%d %s/%d needs %d samples bytes, have %d",
			m.Width, m.Height, m.Channels, m.Depth, want, len(m.Samples))
	}
	return nil
}

// Pixels returns Width*Height.
func (m *Image) Pixels() uint64 { return uint64(m.Width) * uint64(m.Height) }

// Empty reports whether either side is zero.
func (m *Image) Empty() bool { return m.Width == 0 || m.Height == 0 }

// Stride returns the byte length of one row.
func (m *Image) Stride() int {
	return int(m.Width) * m.Channels.Count() * m.Depth.Bytes()
}

// HasAlpha reports whether any pixel is not fully opaque.
func (m *Image) HasAlpha() bool {
	if m.Channels != RGBA && m.Channels != GrayAlpha {
		return false
	}
	step := m.Channels.Count() * m.Depth.Bytes()
	off := step - m.Depth.Bytes()
	for i := off; i < len(m.Samples); i += step {
		if m.Samples[i] != 0xff {
			return true
		}
		if m.Depth == Depth16 && m.Samples[i+1] != 0xff {
			return true
		}
	}
	return false
}

// FromNRGBA wraps an 8-bit RGBA image. The pixel buffer is shared when it is
// already tightly packed and anchored at the origin; otherwise it is copied.
func FromNRGBA(src *image.NRGBA) *Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	out := &Image{
		Width:    uint32(w),
		Height:   uint32(h),
		Channels: RGBA,
		Depth:    Depth8,
	}
	if b.Min == (image.Point{}) && src.Stride == w*4 && len(src.Pix) == w*h*4 {
		out.Samples = src.Pix
		return out
	}
	out.Samples = make([]byte, w*h*4)
	for y := 0; y < h; y++ {
		i := src.PixOffset(b.Min.X, b.Min.Y+y)
		copy(out.Samples[y*w*4:(y+1)*w*4], src.Pix[i:i+w*4])
	}
	return out
}

// Image returns a standard library view of the raster. RGBA8, Gray8 and
// Gray16 share the sample buffer; the other layouts are expanded into a new
// *image.NRGBA or *image.NRGBA64.
func (m *Image) Image() image.Image {
	w, h := int(m.Width), int(m.Height)
	rect := image.Rect(0, 0, w, h)

	switch {
	case m.Channels == RGBA && m.Depth == Depth8:
		return &image.NRGBA{Pix: m.Samples, Stride: w * 4, Rect: rect}
	case m.Channels == RGBA && m.Depth == Depth16:
		return &image.NRGBA64{Pix: m.Samples, Stride: w * 8, Rect: rect}
	case m.Channels == Gray && m.Depth == Depth8:
		return &image.Gray{Pix: m.Samples, Stride: w, Rect: rect}
	case m.Channels == Gray && m.Depth == Depth16:
		return &image.Gray16{Pix: m.Samples, Stride: w * 2, Rect: rect}
	}

	if m.Depth == Depth8 {
		dst := image.NewNRGBA(rect)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				dst.SetNRGBA(x, y, m.nrgbaAt(x, y))
			}
		}
		return dst
	}
	dst := image.NewNRGBA64(rect)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.SetNRGBA64(x, y, m.nrgba64At(x, y))
		}
	}
	return dst
}

func (m *Image) nrgbaAt(x, y int) color.NRGBA {
	n := m.Channels.Count()
	i := (y*int(m.Width) + x) * n
	s := m.Samples[i : i+n]
	switch m.Channels {
	case GrayAlpha:
		return color.NRGBA{R: s[0], G: s[0], B: s[0], A: s[1]}
	case RGB:
		return color.NRGBA{R: s[0], G: s[1], B: s[2], A: 0xff}
	case Gray:
		return color.NRGBA{R: s[0], G: s[0], B: s[0], A: 0xff}
	}
	return color.NRGBA{R: s[0], G: s[1], B: s[2], A: s[3]}
}

func (m *Image) nrgba64At(x, y int) color.NRGBA64 {
	n := m.Channels.Count()
	i := (y*int(m.Width) + x) * n * 2
	at := func(k int) uint16 { return binary.BigEndian.Uint16(m.Samples[i+2*k:]) }
	switch m.Channels {
	case GrayAlpha:
		return color.NRGBA64{R: at(0), G: at(0), B: at(0), A: at(1)}
	case RGB:
		return color.NRGBA64{R: at(0), G: at(1), B: at(2), A: 0xffff}
	case Gray:
		return color.NRGBA64{R: at(0), G: at(0), B: at(0), A: 0xffff}
	}
	return color.NRGBA64{R: at(0), G: at(1), B: at(2), A: at(3)}
}
