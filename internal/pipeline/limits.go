package pipeline

import (
	"fmt"

	"github.com/caarlos0/env/v8"
)

// Limits bounds the memory one Run may use. Zero disables a limit.
type Limits struct {
	MaxInputBytes int64  `env:"IMGCRUSH_MAX_INPUT_BYTES" envDefault:"67108864"`
	MaxPixels     uint64 `env:"IMGCRUSH_MAX_PIXELS" envDefault:"100000000"`
}

// DefaultLimits returns 64 MiB of input and 100 megapixels.
func DefaultLimits() Limits {
	return Limits{
		MaxInputBytes: 64 << 20,
		MaxPixels:     100_000_000,
	}
}

// LoadLimits reads limits from the environment, falling back to defaults.
func LoadLimits() (Limits, error) {
	l := Limits{}
	if err := env.Parse(&l); err != nil {
		return Limits{}, fmt.Errorf("parse limits: %w", err)
	}
	return l, nil
}

func (l Limits) checkInput(n int) error {
	if l.MaxInputBytes > 0 && int64(n) > l.MaxInputBytes {
		return fmt.Errorf("%w: input is %d bytes, limit is %d", ErrResourceLimitExceeded, n, l.MaxInputBytes)
	}
	return nil
}

func (l Limits) checkPixels(w, h uint32) error {
	px := uint64(w) * uint64(h)
	if l.MaxPixels > 0 && px > l.MaxPixels {
		return fmt.Errorf("%w: %dx%d is %d pixels, limit is %d", ErrResourceLimitExceeded, w, h, px, l.MaxPixels)
	}
	return nil
}
