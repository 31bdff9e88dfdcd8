// Package resizer maps a source raster onto the box requested by a
// PipelineConfig.
package resizer

import (
	"errors"
	"fmt"
	"math"

	"github.com/AnyUserName/imgcrush/internal/config"
	"github.com/AnyUserName/imgcrush/internal/raster"
	"github.com/disintegration/imaging"
)

var (
	// ErrDegenerateTarget is returned when a computed side rounds to zero.
	ErrDegenerateTarget = errors.New("degenerate resize target")
	// ErrEmptySource is returned for a source with a zero side.
	ErrEmptySource = errors.New("empty source image")
)

// Plan is the resolved geometry of one resize.
type Plan struct {
	Width  uint32
	Height uint32
	// Crop is set when the source is scaled to cover the box and the
	// overflow is cut away around the center.
	Crop bool
}

// Identity reports whether the plan leaves a w x h source untouched.
func (p Plan) Identity(w, h uint32) bool {
	return p.Width == w && p.Height == h
}

// Target computes the output geometry for a w x h source.
//
// Rounding: the constraining axis lands exactly on its bound and the other
// axis is rounded half up. ScaleRatio, when present, is applied first with
// math.Round.
func Target(w, h uint32, cfg config.PipelineConfig) (Plan, error) {
	if w == 0 || h == 0 {
		return Plan{}, fmt.Errorf("%w: %dx%d", ErrEmptySource, w, h)
	}

	sw, sh := uint64(w), uint64(h)
	if cfg.ScaleRatio != nil {
		r := *cfg.ScaleRatio
		sw = uint64(math.Round(float64(w) * r))
		sh = uint64(math.Round(float64(h) * r))
	}

	var mw, mh uint64
	if cfg.MaxWidth != nil {
		mw = uint64(*cfg.MaxWidth)
	}
	if cfg.MaxHeight != nil {
		mh = uint64(*cfg.MaxHeight)
	}

	var p Plan
	switch cfg.Mode() {
	case config.ResizeStretch:
		p = Plan{Width: uint32(orDefault(mw, sw)), Height: uint32(orDefault(mh, sh))}
	case config.ResizeFill:
		p = fill(sw, sh, mw, mh)
	default:
		p = fit(sw, sh, mw, mh)
	}

	if p.Width == 0 || p.Height == 0 {
		return Plan{}, fmt.Errorf("%w: %dx%d -> %dx%d", ErrDegenerateTarget, w, h, p.Width, p.Height)
	}
	return p, nil
}

func orDefault(v, def uint64) uint64 {
	if v == 0 {
		return def
	}
	return v
}

// scaleTo returns round(v * num / den) for den > 0.
func scaleTo(v, num, den uint64) uint64 {
	return (v*num + den/2) / den
}

// fit scales down only, preserving aspect ratio.
func fit(sw, sh, mw, mh uint64) Plan {
	if sw == 0 || sh == 0 {
		return Plan{Width: uint32(sw), Height: uint32(sh)}
	}
	if (mw == 0 || sw <= mw) && (mh == 0 || sh <= mh) {
		return Plan{Width: uint32(sw), Height: uint32(sh)}
	}
	// Width constrains when sw/mw >= sh/mh.
	if mh == 0 || (mw != 0 && sw*mh >= sh*mw) {
		return Plan{Width: uint32(mw), Height: uint32(scaleTo(sh, mw, sw))}
	}
	return Plan{Width: uint32(scaleTo(sw, mh, sh)), Height: uint32(mh)}
}

// fill covers the box, preserving aspect ratio, and crops the overflow.
func fill(sw, sh, mw, mh uint64) Plan {
	switch {
	case sw == 0 || sh == 0:
		return Plan{Width: uint32(sw), Height: uint32(sh)}
	case mw != 0 && mh != 0:
		return Plan{Width: uint32(mw), Height: uint32(mh), Crop: mw*sh != mh*sw}
	case mw != 0:
		return Plan{Width: uint32(mw), Height: uint32(scaleTo(sh, mw, sw))}
	case mh != 0:
		return Plan{Width: uint32(scaleTo(sw, mh, sh)), Height: uint32(mh)}
	}
	return Plan{Width: uint32(sw), Height: uint32(sh)}
}

var filters = map[config.Filter]imaging.ResampleFilter{
	config.FilterNearest:    imaging.NearestNeighbor,
	config.FilterTriangle:   imaging.Linear,
	config.FilterCatmullRom: imaging.CatmullRom,
	config.FilterGaussian:   imaging.Gaussian,
	config.FilterLanczos3:   imaging.Lanczos,
}

// Resize returns a new raster sized per cfg. When the plan is the identity
// the source itself is returned. The source is never modified.
func Resize(img *raster.Image, cfg config.PipelineConfig) (*raster.Image, error) {
	if img == nil {
		return nil, ErrEmptySource
	}
	if !cfg.HasBounds() && !img.Empty() {
		return img, nil
	}

	plan, err := Target(img.Width, img.Height, cfg)
	if err != nil {
		return nil, err
	}
	if plan.Identity(img.Width, img.Height) {
		return img, nil
	}

	filter, ok := filters[cfg.ResampleFilter()]
	if !ok {
		filter = imaging.Lanczos
	}

	src := img.Image()
	w, h := int(plan.Width), int(plan.Height)
	if plan.Crop {
		return raster.FromNRGBA(imaging.Fill(src, w, h, imaging.Center, filter)), nil
	}
	return raster.FromNRGBA(imaging.Resize(src, w, h, filter)), nil
}
