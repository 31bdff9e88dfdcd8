package manifest

import "github.com/AnyUserName/imgcrush/internal/config"

// FileName is the manifest's name inside a build's output directory.
const FileName = "imgcrush.manifest.json"

// Manifest is the top-level output of a batch build.
type Manifest struct {
	Version     int              `json:"version"`
	GeneratedAt string           `json:"generated_at"`
	Profile     string           `json:"profile"`
	BasePath    string           `json:"base_path"`
	BuildInfo   *BuildInfo       `json:"build_info,omitempty"`
	Assets      map[string]Asset `json:"assets"`
	Stats       Stats            `json:"stats"`
}

// BuildInfo captures build-time parameters for diagnostics.
type BuildInfo struct {
	Workers       int    `json:"workers"`
	Encoders      string `json:"encoders,omitempty"`
	MaxInputBytes int64  `json:"max_input_bytes,omitempty"`
	MaxPixels     uint64 `json:"max_pixels,omitempty"`
}

// Asset describes a single source image and all its generated variants.
type Asset struct {
	Original    OriginalInfo `json:"original"`
	ThumbHash   string       `json:"thumbhash"` // base64 ThumbHash of the decoded source
	AspectRatio float64      `json:"aspect_ratio"`
	AvgColor    *[3]uint8    `json:"avg_color,omitempty"`
	Variants    []Variant    `json:"variants"`
}

// OriginalInfo holds metadata about the source image. Format is the sniffed
// format, not the file extension.
type OriginalInfo struct {
	Width    uint32        `json:"width"`
	Height   uint32        `json:"height"`
	Format   config.Format `json:"format"`
	Size     int64         `json:"size"`
	HasAlpha bool          `json:"has_alpha"`
}

// Variant is one encoded output of an asset at a specific size and format.
type Variant struct {
	Format config.Format `json:"format"`
	Width  uint32        `json:"width"`
	Height uint32        `json:"height"`
	Size   int64         `json:"size"` // bytes on disk
	Hash   string        `json:"hash"` // 16 hex chars of xxhash64
	Path   string        `json:"path"` // relative to base_path
}

// Stats aggregates build metrics.
type Stats struct {
	TotalInputBytes  int64 `json:"total_input_bytes"`
	TotalOutputBytes int64 `json:"total_output_bytes"`
	TotalAssets      int   `json:"total_assets"`
	TotalVariants    int   `json:"total_variants"`
	SkippedRegress   int   `json:"skipped_regress,omitempty"`
	Failed           int   `json:"failed,omitempty"`
}

// SupportedManifestVersion is the current schema version.
const SupportedManifestVersion = 1
