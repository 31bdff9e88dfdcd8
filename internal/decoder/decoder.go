// Package decoder sniffs encoded image bytes and decodes them into rasters.
package decoder

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/AnyUserName/imgcrush/internal/config"
	"github.com/AnyUserName/imgcrush/internal/raster"
	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

var (
	// ErrUnsupportedFormat is returned when no known signature matches or
	// the detected format has no decoder.
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrMalformed is returned for truncated or corrupt streams.
	ErrMalformed = errors.New("malformed image data")
)

type codec struct {
	decode func(io.Reader) (image.Image, error)
	config func(io.Reader) (image.Config, error)
}

// codecs maps a detected format to its decoder. AVIF is detected but has no
// entry, so it reports ErrUnsupportedFormat.
var codecs = map[config.Format]codec{
	config.FormatJPEG: {jpeg.Decode, jpeg.DecodeConfig},
	config.FormatPNG:  {png.Decode, png.DecodeConfig},
	config.FormatGIF:  {gif.Decode, gif.DecodeConfig},
	config.FormatWebP: {webp.Decode, webp.DecodeConfig},
	config.FormatBMP:  {bmp.Decode, bmp.DecodeConfig},
	config.FormatTIFF: {tiff.Decode, tiff.DecodeConfig},
}

// signatures lists the MIME types we map to formats, checked against the
// detected type and its parents (so APNG resolves to png).
var signatures = []struct {
	mime   string
	format config.Format
}{
	{"image/jpeg", config.FormatJPEG},
	{"image/png", config.FormatPNG},
	{"image/gif", config.FormatGIF},
	{"image/webp", config.FormatWebP},
	{"image/bmp", config.FormatBMP},
	{"image/tiff", config.FormatTIFF},
	{"image/avif", config.FormatAVIF},
}

// Info is the header-level description of an encoded image.
type Info struct {
	Format config.Format
	Width  uint32
	Height uint32
}

// Pixels returns Width*Height.
func (i Info) Pixels() uint64 { return uint64(i.Width) * uint64(i.Height) }

// Detect identifies the format from the leading magic bytes only.
func Detect(data []byte) (config.Format, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty input", ErrUnsupportedFormat)
	}
	for m := mimetype.Detect(data); m != nil; m = m.Parent() {
		for _, s := range signatures {
			if m.Is(s.mime) {
				return s.format, nil
			}
		}
	}
	return "", ErrUnsupportedFormat
}

func lookup(data []byte) (config.Format, codec, error) {
	f, err := Detect(data)
	if err != nil {
		return "", codec{}, err
	}
	c, ok := codecs[f]
	if !ok {
		return f, codec{}, fmt.Errorf("%w: no decoder for %s", ErrUnsupportedFormat, f)
	}
	return f, c, nil
}

// Probe reads only the image header. It lets callers reject oversized
// images before any pixel buffer is allocated.
func Probe(data []byte) (Info, error) {
	f, c, err := lookup(data)
	if err != nil {
		return Info{}, err
	}
	var cfg image.Config
	err = recoverMalformed(func() error {
		var derr error
		cfg, derr = c.config(bytes.NewReader(data))
		return derr
	})
	if err != nil {
		return Info{}, wrapMalformed(f, err)
	}
	if cfg.Width < 0 || cfg.Height < 0 {
		return Info{}, fmt.Errorf("%w: %s: negative dimensions", ErrMalformed, f)
	}
	return Info{Format: f, Width: uint32(cfg.Width), Height: uint32(cfg.Height)}, nil
}

// Decode decodes data into an 8-bit RGBA raster. Gray, paletted and RGB
// sources are widened losslessly (opaque alpha, replicated channels);
// 16-bit sources are narrowed to their high byte. GIF yields its first frame.
func Decode(data []byte) (*raster.Image, error) {
	f, c, err := lookup(data)
	if err != nil {
		return nil, err
	}
	var img image.Image
	err = recoverMalformed(func() error {
		var derr error
		img, derr = c.decode(bytes.NewReader(data))
		return derr
	})
	if err != nil {
		return nil, wrapMalformed(f, err)
	}
	return raster.FromNRGBA(imaging.Clone(img)), nil
}

func wrapMalformed(f config.Format, err error) error {
	if errors.Is(err, ErrMalformed) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrMalformed, f, err)
}

// recoverMalformed turns a decoder panic on hostile input into ErrMalformed.
func recoverMalformed(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: decoder panic: %v", ErrMalformed, r)
		}
	}()
	return fn()
}
