package encoder

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/AnyUserName/imgcrush/internal/config"
	"github.com/AnyUserName/imgcrush/internal/raster"
)

// Registry holds all available encoders keyed by format.
// It is read-only once built and safe for concurrent use.
type Registry struct {
	encoders map[config.Format]Encoder
}

// NewRegistry creates a registry from the given encoders, probing each
// for availability. With no arguments the built-in set is used.
func NewRegistry(all ...Encoder) *Registry {
	r := &Registry{
		encoders: make(map[config.Format]Encoder),
	}

	if len(all) == 0 {
		all = []Encoder{
			&AVIFEncoder{},
			&WebPEncoder{},
			&JPEGEncoder{},
			&PNGEncoder{},
			&GIFEncoder{},
		}
	}

	// Register all encoders. Only available ones will be used.
	for _, enc := range all {
		if enc.Available() {
			r.encoders[enc.Format()] = enc
		}
	}

	return r
}

// Get returns an encoder for the given format, or nil if unavailable.
func (r *Registry) Get(format config.Format) Encoder {
	return r.encoders[format]
}

// Available returns all available format names.
func (r *Registry) Available() []config.Format {
	var result []config.Format
	// Maintain priority order.
	for _, f := range config.OutputFormats {
		if _, ok := r.encoders[f]; ok {
			result = append(result, f)
		}
	}
	return result
}

// ResolveFormats keeps the requested formats that have an encoder, in order.
// Inputs with transparency always get a PNG fallback, and an empty result
// falls back to PNG or JPEG depending on alpha.
func (r *Registry) ResolveFormats(requested []config.Format, hasAlpha bool) []config.Format {
	var resolved []config.Format
	seen := map[config.Format]bool{}

	for _, f := range requested {
		if _, ok := r.encoders[f]; ok && !seen[f] {
			resolved = append(resolved, f)
			seen[f] = true
		}
	}

	fallback := config.FormatJPEG
	if hasAlpha {
		fallback = config.FormatPNG
	}
	if (len(resolved) == 0 || hasAlpha) && !seen[fallback] && r.encoders[fallback] != nil {
		resolved = append(resolved, fallback)
	}
	return resolved
}

// Encode validates the raster and encodes it with the registered encoder.
// The returned slice is owned by the caller.
func (r *Registry) Encode(img *raster.Image, format config.Format, quality int) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil raster", ErrInvalidDimensions)
	}
	if img.Empty() {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, img.Width, img.Height)
	}
	if err := img.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDimensions, err)
	}

	enc := r.Get(format)
	if enc == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, format)
	}

	data, err := enc.Encode(img.Image(), quality)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", format, err)
	}
	return data, nil
}

// String returns a summary of available encoders.
func (r *Registry) String() string {
	avail := r.Available()
	if len(avail) == 0 {
		return "no encoders available"
	}
	names := make([]string, len(avail))
	for i, f := range avail {
		names[i] = f.String()
	}
	return fmt.Sprintf("encoders: %s", strings.Join(names, ", "))
}

var (
	initOnce sync.Once
	ready    atomic.Bool
	shared   *Registry
)

// Init builds the process-wide registry. It is idempotent and safe to call
// from several goroutines; later calls wait for the first to finish.
func Init() *Registry {
	initOnce.Do(func() {
		shared = NewRegistry()
		ready.Store(true)
	})
	return shared
}

// Ready reports whether Init has completed. It never blocks.
func Ready() bool {
	return ready.Load()
}

// Encode encodes with the process-wide registry, initialising it if needed.
func Encode(img *raster.Image, format config.Format, quality int) ([]byte, error) {
	return Init().Encode(img, format, quality)
}
