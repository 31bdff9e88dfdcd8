package config

import (
	"fmt"
	"strings"
)

// Format names an image codec. Decoding recognises every constant below;
// only jpeg, png, webp, avif and gif are valid output formats.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
	FormatAVIF Format = "avif"
	FormatGIF  Format = "gif"
	FormatBMP  Format = "bmp"
	FormatTIFF Format = "tiff"
)

// OutputFormats lists encodable formats in priority order.
var OutputFormats = []Format{FormatAVIF, FormatWebP, FormatJPEG, FormatPNG, FormatGIF}

var formatAliases = map[string]Format{
	"jpeg":       FormatJPEG,
	"jpg":        FormatJPEG,
	"image/jpeg": FormatJPEG,
	"png":        FormatPNG,
	"image/png":  FormatPNG,
	"webp":       FormatWebP,
	"image/webp": FormatWebP,
	"avif":       FormatAVIF,
	"image/avif": FormatAVIF,
	"gif":        FormatGIF,
	"image/gif":  FormatGIF,
	"bmp":        FormatBMP,
	"image/bmp":  FormatBMP,
	"tiff":       FormatTIFF,
	"tif":        FormatTIFF,
	"image/tiff": FormatTIFF,
}

// ParseFormat accepts a format name, a common extension or a MIME type.
func ParseFormat(s string) (Format, error) {
	f, ok := formatAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("unknown format: %q", s)
	}
	return f, nil
}

func (f Format) String() string { return string(f) }

// MIMEType returns the IANA media type for the format.
func (f Format) MIMEType() string { return "image/" + string(f) }

// Extension returns the file extension without dot.
func (f Format) Extension() string {
	if f == FormatJPEG {
		return "jpg"
	}
	return string(f)
}

// Lossless reports whether encoding to f never discards information.
func (f Format) Lossless() bool {
	return f == FormatPNG || f == FormatBMP || f == FormatTIFF
}

// Encodable reports whether f is a valid output format.
func (f Format) Encodable() bool {
	for _, o := range OutputFormats {
		if o == f {
			return true
		}
	}
	return false
}

func (f *Format) UnmarshalText(text []byte) error {
	parsed, err := ParseFormat(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

func (f Format) MarshalText() ([]byte, error) {
	return []byte(f), nil
}
