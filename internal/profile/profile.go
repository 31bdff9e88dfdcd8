// Package profile holds named presets for batch builds.
package profile

import (
	"sort"

	"github.com/AnyUserName/imgcrush/internal/config"
)

// Profile defines the variants generated for every source in a build.
type Profile struct {
	Name    string
	Widths  []uint32        // target widths for resize
	Formats []config.Format // output formats in priority order
	Quality int             // encoding quality 0-100
	Retina  bool            // generate 2x variants for retina
	Mode    config.ResizeMode
	Filter  config.Filter
}

// Built-in profiles.
var profiles = map[string]Profile{
	"web": {
		Name:    "web",
		Widths:  []uint32{320, 640, 960, 1280},
		Formats: []config.Format{config.FormatWebP, config.FormatJPEG},
		Quality: 82,
		Retina:  true,
	},
	"web-hq": {
		Name:    "web-hq",
		Widths:  []uint32{320, 640, 960, 1280, 1920},
		Formats: []config.Format{config.FormatAVIF, config.FormatWebP, config.FormatJPEG},
		Quality: 85,
		Retina:  true,
	},
	"minimal": {
		Name:    "minimal",
		Widths:  []uint32{320, 640},
		Formats: []config.Format{config.FormatWebP, config.FormatJPEG},
		Quality: 78,
	},
	"thumbnail": {
		Name:    "thumbnail",
		Widths:  []uint32{96, 192},
		Formats: []config.Format{config.FormatWebP, config.FormatJPEG},
		Quality: 70,
		Mode:    config.ResizeFill,
		Filter:  config.FilterCatmullRom,
	},
}

// DefaultName is used when no profile is requested.
const DefaultName = "web"

// Get returns a profile by name. Unknown names get the default profile
// under the requested name.
func Get(name string) Profile {
	if p, ok := profiles[name]; ok {
		return p
	}
	p := profiles[DefaultName]
	p.Name = name
	return p
}

// Names lists the built-in profiles.
func Names() []string {
	names := make([]string, 0, len(profiles))
	for n := range profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// EffectiveWidths returns all widths including retina variants, never
// wider than the original.
func (p Profile) EffectiveWidths(originalWidth uint32) []uint32 {
	seen := map[uint32]bool{}
	var result []uint32

	for _, w := range p.Widths {
		if w > originalWidth {
			continue
		}
		if !seen[w] {
			seen[w] = true
			result = append(result, w)
		}
		if p.Retina {
			w2 := w * 2
			if w2 <= originalWidth && !seen[w2] {
				seen[w2] = true
				result = append(result, w2)
			}
		}
	}

	if len(result) == 0 && originalWidth > 0 {
		result = append(result, originalWidth)
	}

	return result
}

// Config returns the pipeline settings for one variant. Fill variants are
// square; the others bound only the width.
func (p Profile) Config(format config.Format, width uint32) config.PipelineConfig {
	cfg := config.Default()
	cfg.OutputFormat = format
	cfg.Quality = p.Quality
	cfg.MaxWidth = config.Bound(width)
	if p.Mode != "" {
		cfg.ResizeMode = p.Mode
	}
	if p.Filter != "" {
		cfg.Filter = p.Filter
	}
	if cfg.ResizeMode == config.ResizeFill {
		cfg.MaxHeight = config.Bound(width)
	}
	return cfg
}
