package manifest

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnyUserName/imgcrush/internal/config"
	"github.com/AnyUserName/imgcrush/internal/hasher"
	"github.com/AnyUserName/imgcrush/internal/raster"
	"github.com/AnyUserName/imgcrush/internal/thumbhash"
)

func opaqueThumbHash(t *testing.T) string {
	t.Helper()
	img, err := raster.New(8, 6, raster.RGBA, raster.Depth8)
	require.NoError(t, err)
	for i := 3; i < len(img.Samples); i += 4 {
		img.Samples[i] = 0xff
	}
	hash, err := thumbhash.Encode(img)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(hash)
}

func sample(t *testing.T, dir string) *Manifest {
	t.Helper()
	m := New("test-profile")
	m.BuildInfo = &BuildInfo{Workers: 4, Encoders: "encoders: webp, jpeg"}
	m.Assets["test/image"] = Asset{
		Original: OriginalInfo{
			Width: 800, Height: 600,
			Format: config.FormatJPEG, Size: 100000,
		},
		ThumbHash:   opaqueThumbHash(t),
		AspectRatio: 1.3333,
		AvgColor:    &[3]uint8{10, 20, 30},
		Variants: []Variant{
			{Format: config.FormatWebP, Width: 320, Height: 240, Size: 5, Hash: hasher.ContentHash([]byte("12345"), hasher.HexLen), Path: "test/image.320.240.abcd1234.webp"},
		},
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "test"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test", "image.320.240.abcd1234.webp"), []byte("12345"), 0o644))
	return m
}

func TestManifestRoundtrip(t *testing.T) {
	dir := t.TempDir()
	m := sample(t, dir)
	m.Stats.SkippedRegress = 2
	path := filepath.Join(dir, FileName)
	require.NoError(t, WriteJSON(m, path))

	m2, resolved, err := Read(dir)
	require.NoError(t, err)
	assert.Equal(t, path, resolved)

	assert.Equal(t, SupportedManifestVersion, m2.Version)
	assert.Equal(t, "test-profile", m2.Profile)
	require.NotNil(t, m2.BuildInfo)
	assert.Equal(t, 4, m2.BuildInfo.Workers)

	a, ok := m2.Assets["test/image"]
	require.True(t, ok)
	assert.Equal(t, config.FormatJPEG, a.Original.Format)
	require.Len(t, a.Variants, 1)
	assert.Equal(t, config.FormatWebP, a.Variants[0].Format)
	assert.Equal(t, [3]uint8{10, 20, 30}, *a.AvgColor)

	assert.Equal(t, 1, m2.Stats.TotalAssets)
	assert.Equal(t, 1, m2.Stats.TotalVariants)
	assert.Equal(t, int64(100000), m2.Stats.TotalInputBytes)
	assert.Equal(t, int64(5), m2.Stats.TotalOutputBytes)
	assert.Equal(t, 2, m2.Stats.SkippedRegress)

	assert.Empty(t, m2.Validate(dir))
}

func TestManifestKeysSorted(t *testing.T) {
	m := New("p")
	m.Assets["b"] = Asset{}
	m.Assets["a"] = Asset{}
	data, err := Marshal(m)
	require.NoError(t, err)
	s := string(data)
	assert.Less(t, strings.Index(s, `"a"`), strings.Index(s, `"b"`))
	assert.Equal(t, byte('\n'), data[len(data)-1])
}

func TestManifestIgnoresUnknownFields(t *testing.T) {
	raw := `{
		"version": 1,
		"generated_at": "2025-01-01T00:00:00Z",
		"profile": "test",
		"base_path": "./",
		"future_field": "should be ignored",
		"build_info": { "workers": 8, "new_flag": true },
		"assets": {},
		"stats": { "total_input_bytes": 0, "total_output_bytes": 0, "total_assets": 0, "total_variants": 0, "new_stat": 42 }
	}`
	path := filepath.Join(t.TempDir(), "m.json")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	m, _, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Version)
	require.NotNil(t, m.BuildInfo)
	assert.Equal(t, 8, m.BuildInfo.Workers)
}

func TestReadErrors(t *testing.T) {
	_, _, err := Read(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	_, _, err = Read(path)
	assert.ErrorContains(t, err, "parse manifest")
}

func TestValidateFindsProblems(t *testing.T) {
	dir := t.TempDir()
	m := sample(t, dir)
	m.Version = 9
	a := m.Assets["test/image"]
	a.Variants = append(a.Variants,
		Variant{Format: config.FormatWebP, Width: 1, Height: 1, Hash: "x", Path: "test/image.320.240.abcd1234.webp"},
		Variant{Format: "bmp", Width: 0, Height: 1, Hash: "", Path: "gone.png"},
	)
	a.Variants[0].Size = 99
	m.Assets["test/image"] = a
	m.Assets["empty"] = Asset{}

	errs := m.Validate(dir)
	joined := strings.Join(errs, "\n")
	assert.Contains(t, joined, "unsupported manifest version: 9")
	assert.Contains(t, joined, `asset "empty": invalid original dimensions 0x0`)
	assert.Contains(t, joined, `asset "empty": no variants`)
	assert.Contains(t, joined, "size mismatch: manifest=99, disk=5")
	assert.Contains(t, joined, "duplicate path")
	assert.Contains(t, joined, `bad format "bmp"`)
	assert.Contains(t, joined, "missing hash")
	assert.Contains(t, joined, "file not found: gone.png")
	assert.Contains(t, joined, `asset "empty": missing thumbhash`)
	assert.Contains(t, joined, "stats.total_assets mismatch: 0 != 2")
}

func TestValidateThumbHash(t *testing.T) {
	dir := t.TempDir()
	m := sample(t, dir)
	m.ComputeStats()
	require.Empty(t, m.Validate(dir))

	tests := []struct {
		name   string
		mutate func(a *Asset)
		want   string
	}{
		{"not base64", func(a *Asset) { a.ThumbHash = "***" }, "not base64"},
		{"truncated", func(a *Asset) { a.ThumbHash = base64.StdEncoding.EncodeToString([]byte{1, 2, 3}) }, "truncated"},
		{"hash mismatch", func(a *Asset) { a.Variants[0].Hash = "0000000000000000" }, "hash mismatch: manifest=0000000000000000"},
		{"alpha mismatch", func(a *Asset) { a.Original.HasAlpha = true }, "thumbhash alpha=false, original has_alpha=true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := sample(t, dir)
			a := m.Assets["test/image"]
			tt.mutate(&a)
			m.Assets["test/image"] = a
			m.ComputeStats()
			assert.Contains(t, strings.Join(m.Validate(dir), "\n"), tt.want)
		})
	}
}
