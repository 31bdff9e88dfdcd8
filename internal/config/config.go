// Package config defines the per-invocation settings of the image pipeline.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ResizeMode controls how the source box maps onto the target box.
type ResizeMode string

const (
	ResizeFit     ResizeMode = "fit"
	ResizeFill    ResizeMode = "fill"
	ResizeStretch ResizeMode = "stretch"
)

// ParseResizeMode parses a resize mode name.
func ParseResizeMode(s string) (ResizeMode, error) {
	switch m := ResizeMode(strings.ToLower(s)); m {
	case ResizeFit, ResizeFill, ResizeStretch:
		return m, nil
	}
	return "", fmt.Errorf("unknown resize mode: %q", s)
}

// Filter selects the resampling kernel.
type Filter string

const (
	FilterNearest    Filter = "nearest"
	FilterTriangle   Filter = "triangle"
	FilterCatmullRom Filter = "catmull-rom"
	FilterGaussian   Filter = "gaussian"
	FilterLanczos3   Filter = "lanczos3"
)

// ParseFilter parses a resampling filter name.
func ParseFilter(s string) (Filter, error) {
	switch f := Filter(strings.ToLower(s)); f {
	case FilterNearest, FilterTriangle, FilterCatmullRom, FilterGaussian, FilterLanczos3:
		return f, nil
	}
	return "", fmt.Errorf("unknown filter: %q", s)
}

// PipelineConfig holds everything one pipeline invocation needs.
// It is passed by value and never modified once handed to the pipeline.
type PipelineConfig struct {
	// MaxWidth and MaxHeight bound the output box. Nil means unbounded;
	// a pointer to zero is rejected by Validate.
	MaxWidth  *uint32 `json:"maxWidth,omitempty" validate:"omitempty,min=1"`
	MaxHeight *uint32 `json:"maxHeight,omitempty" validate:"omitempty,min=1"`

	// ScaleRatio scales the source box before the bounds are applied.
	ScaleRatio *float64 `json:"scaleRatio,omitempty" validate:"omitempty,gt=0,lte=1"`

	// Quality is ignored by lossless encoders.
	Quality             int        `json:"quality" validate:"min=0,max=100"`
	OutputFormat        Format     `json:"outputFormat" validate:"required,oneof=jpeg png webp avif gif"`
	PreserveAspectRatio bool       `json:"preserveAspectRatio"`
	ResizeMode          ResizeMode `json:"resizeMode,omitempty" validate:"omitempty,oneof=fit fill stretch"`
	Filter              Filter     `json:"filter,omitempty" validate:"omitempty,oneof=nearest triangle catmull-rom gaussian lanczos3"`
	Debug               bool       `json:"debug,omitempty"`
}

// Default returns the configuration used when a caller supplies nothing.
func Default() PipelineConfig {
	return PipelineConfig{
		Quality:             80,
		OutputFormat:        FormatJPEG,
		PreserveAspectRatio: true,
		ResizeMode:          ResizeFit,
		Filter:              FilterLanczos3,
	}
}

// Bound is a helper for filling MaxWidth and MaxHeight.
func Bound(v uint32) *uint32 { return &v }

// Ratio is a helper for filling ScaleRatio.
func Ratio(v float64) *float64 { return &v }

// WithBounds returns a copy of c bounded to w x h.
func (c PipelineConfig) WithBounds(w, h uint32) PipelineConfig {
	c.MaxWidth = Bound(w)
	c.MaxHeight = Bound(h)
	return c
}

// Mode returns the resize policy actually applied. Disabling aspect ratio
// preservation always means stretch.
func (c PipelineConfig) Mode() ResizeMode {
	if !c.PreserveAspectRatio {
		return ResizeStretch
	}
	if c.ResizeMode == "" {
		return ResizeFit
	}
	return c.ResizeMode
}

// ResampleFilter returns the configured filter or lanczos3.
func (c PipelineConfig) ResampleFilter() Filter {
	if c.Filter == "" {
		return FilterLanczos3
	}
	return c.Filter
}

// HasBounds reports whether any resize is requested.
func (c PipelineConfig) HasBounds() bool {
	return c.MaxWidth != nil || c.MaxHeight != nil || c.ScaleRatio != nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validate checks option ranges. The returned error lists every violation.
func (c PipelineConfig) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %v", fe.Field(), fe.Param(), fe.Value())
	case "min":
		return fmt.Sprintf("%s must be >= %s, got %v", fe.Field(), fe.Param(), fe.Value())
	case "gt":
		return fmt.Sprintf("%s must be > %s, got %v", fe.Field(), fe.Param(), fe.Value())
	case "max", "lte":
		return fmt.Sprintf("%s must be <= %s, got %v", fe.Field(), fe.Param(), fe.Value())
	}
	return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
}
