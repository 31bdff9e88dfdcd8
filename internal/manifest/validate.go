package manifest

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/AnyUserName/imgcrush/internal/hasher"
	"github.com/AnyUserName/imgcrush/internal/thumbhash"
)

// Validate checks the manifest against itself and against the files under
// baseDir. It returns one message per problem, sorted by asset key.
func (m *Manifest) Validate(baseDir string) []string {
	var errs []string

	if m.Version != SupportedManifestVersion {
		errs = append(errs, fmt.Sprintf("unsupported manifest version: %d", m.Version))
	}

	keys := make([]string, 0, len(m.Assets))
	for k := range m.Assets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	variantCount := 0
	for _, key := range keys {
		asset := m.Assets[key]
		variantCount += len(asset.Variants)

		if asset.Original.Width == 0 || asset.Original.Height == 0 {
			errs = append(errs, fmt.Sprintf("asset %q: invalid original dimensions %dx%d",
				key, asset.Original.Width, asset.Original.Height))
		}
		errs = append(errs, checkThumbHash(key, asset)...)
		if asset.AspectRatio <= 0 {
			errs = append(errs, fmt.Sprintf("asset %q: invalid aspect ratio %.4f", key, asset.AspectRatio))
		}
		if len(asset.Variants) == 0 {
			errs = append(errs, fmt.Sprintf("asset %q: no variants", key))
		}

		seenPaths := map[string]bool{}
		for i, v := range asset.Variants {
			if !v.Format.Encodable() {
				errs = append(errs, fmt.Sprintf("asset %q variant[%d]: bad format %q", key, i, v.Format))
			}
			if v.Width == 0 || v.Height == 0 {
				errs = append(errs, fmt.Sprintf("asset %q variant[%d]: invalid dimensions %dx%d",
					key, i, v.Width, v.Height))
			}
			if v.Hash == "" {
				errs = append(errs, fmt.Sprintf("asset %q variant[%d]: missing hash", key, i))
			}
			if v.Path == "" {
				errs = append(errs, fmt.Sprintf("asset %q variant[%d]: missing path", key, i))
				continue
			}

			if seenPaths[v.Path] {
				errs = append(errs, fmt.Sprintf("asset %q variant[%d]: duplicate path %q", key, i, v.Path))
			}
			seenPaths[v.Path] = true

			full := filepath.Join(baseDir, filepath.FromSlash(v.Path))
			info, err := os.Stat(full)
			if err != nil {
				errs = append(errs, fmt.Sprintf("asset %q variant[%d]: file not found: %s", key, i, v.Path))
				continue
			}
			if v.Size > 0 && info.Size() != v.Size {
				errs = append(errs, fmt.Sprintf("asset %q variant[%d]: size mismatch: manifest=%d, disk=%d",
					key, i, v.Size, info.Size()))
			}
			if v.Hash != "" {
				if sum, err := fileHash(full, len(v.Hash)); err != nil {
					errs = append(errs, fmt.Sprintf("asset %q variant[%d]: %v", key, i, err))
				} else if sum != v.Hash {
					errs = append(errs, fmt.Sprintf("asset %q variant[%d]: hash mismatch: manifest=%s, disk=%s",
						key, i, v.Hash, sum))
				}
			}
		}
	}

	if m.Stats.TotalAssets != len(m.Assets) {
		errs = append(errs, fmt.Sprintf("stats.total_assets mismatch: %d != %d", m.Stats.TotalAssets, len(m.Assets)))
	}
	if m.Stats.TotalVariants != variantCount {
		errs = append(errs, fmt.Sprintf("stats.total_variants mismatch: %d != %d", m.Stats.TotalVariants, variantCount))
	}

	return errs
}

func checkThumbHash(key string, asset Asset) []string {
	if asset.ThumbHash == "" {
		return []string{fmt.Sprintf("asset %q: missing thumbhash", key)}
	}
	raw, err := base64.StdEncoding.DecodeString(asset.ThumbHash)
	if err != nil {
		return []string{fmt.Sprintf("asset %q: thumbhash is not base64: %v", key, err)}
	}
	hd, err := thumbhash.ParseHeader(raw)
	if err != nil {
		return []string{fmt.Sprintf("asset %q: %v", key, err)}
	}
	if hd.HasAlpha != asset.Original.HasAlpha {
		return []string{fmt.Sprintf("asset %q: thumbhash alpha=%t, original has_alpha=%t", key, hd.HasAlpha, asset.Original.HasAlpha)}
	}
	return nil
}

func fileHash(path string, hexLen int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return hasher.ContentHashReader(f, hexLen)
}
