// Package encoder turns rasters back into self-contained image files.
package encoder

import (
	"errors"
	"image"

	"github.com/AnyUserName/imgcrush/internal/config"
)

var (
	// ErrInvalidDimensions is returned for a raster with a zero side.
	ErrInvalidDimensions = errors.New("invalid image dimensions")
	// ErrUnsupported is returned for formats without an available encoder.
	ErrUnsupported = errors.New("unsupported output format")
)

// Encoder encodes an image to a specific format.
type Encoder interface {
	// Format returns the output format.
	Format() config.Format

	// Encode converts the image to bytes at the given quality (0-100).
	// Lossless encoders ignore quality. Identical input must produce
	// identical bytes.
	Encode(img image.Image, quality int) ([]byte, error)

	// Available returns true if the encoder is ready to use.
	// External encoders (avifenc) may not be installed.
	Available() bool
}
