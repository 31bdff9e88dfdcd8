package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnyUserName/imgcrush/internal/config"
	"github.com/AnyUserName/imgcrush/internal/manifest"
	"github.com/AnyUserName/imgcrush/internal/profile"
	"github.com/AnyUserName/imgcrush/internal/thumbhash"
)

func writePNG(t *testing.T, path string, w, h int, fill func(x, y int) color.NRGBA) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, fill(x, y))
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func noisy(x, y int) color.NRGBA {
	return color.NRGBA{R: uint8(x * 7), G: uint8(y * 13), B: uint8(x * y), A: 255}
}

func newBatch(t *testing.T, in, out string, prof profile.Profile, noRegress bool) *Batch {
	t.Helper()
	b, err := NewBatch(context.Background(), BatchConfig{
		InputDir:      in,
		OutputDir:     out,
		Profile:       prof,
		Workers:       2,
		NoRegressSize: noRegress,
		Limits:        DefaultLimits(),
		Registerer:    prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	return b
}

func testProfile() profile.Profile {
	return profile.Profile{
		Name:    "test",
		Widths:  []uint32{16, 32},
		Formats: []config.Format{config.FormatWebP, config.FormatJPEG},
		Quality: 80,
	}
}

func TestBatchBuild(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writePNG(t, filepath.Join(in, "hero.png"), 64, 32, noisy)
	writePNG(t, filepath.Join(in, "icons", "logo.png"), 20, 20, func(x, y int) color.NRGBA {
		return color.NRGBA{R: 200, A: uint8(x * 12)}
	})
	writePNG(t, filepath.Join(in, ".cache", "skip.png"), 8, 8, noisy)
	require.NoError(t, os.WriteFile(filepath.Join(in, "broken.jpg"), []byte("definitely not a jpeg"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(in, "notes.txt"), []byte("ignored"), 0o644))

	m, err := newBatch(t, in, out, testProfile(), false).Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, m.Assets, 2)
	assert.Equal(t, 1, m.Stats.Failed)
	assert.NotContains(t, m.Assets, ".cache/skip")

	hero := m.Assets["hero"]
	assert.Equal(t, uint32(64), hero.Original.Width)
	assert.Equal(t, config.FormatPNG, hero.Original.Format)
	assert.False(t, hero.Original.HasAlpha)
	assert.InDelta(t, 2.0, hero.AspectRatio, 1e-9)
	require.Len(t, hero.Variants, 4)
	assert.Equal(t, uint32(16), hero.Variants[0].Width)
	assert.Equal(t, uint32(8), hero.Variants[0].Height)
	assert.Equal(t, config.FormatWebP, hero.Variants[0].Format)
	assert.Regexp(t, `^hero\.16\.8\.[0-9a-f]{8}\.webp$`, hero.Variants[0].Path)

	// Only 16 fits under 20; alpha adds a PNG fallback.
	logo := m.Assets["icons/logo"]
	assert.True(t, logo.Original.HasAlpha)
	var formats []config.Format
	for _, v := range logo.Variants {
		formats = append(formats, v.Format)
		assert.Equal(t, uint32(16), v.Width)
		assert.Regexp(t, `^icons/logo\.16\.16\.`, v.Path)
	}
	assert.Equal(t, []config.Format{config.FormatWebP, config.FormatJPEG, config.FormatPNG}, formats)

	for key, a := range m.Assets {
		raw, err := base64.StdEncoding.DecodeString(a.ThumbHash)
		require.NoError(t, err, key)
		hd, err := thumbhash.ParseHeader(raw)
		require.NoError(t, err, key)
		assert.Equal(t, a.Original.HasAlpha, hd.HasAlpha, key)
		if key == "hero" {
			assert.True(t, hd.Landscape)
			assert.Equal(t, 7, hd.LX)
			assert.Equal(t, 4, hd.LY)
		}
	}

	require.NoError(t, manifest.WriteJSON(m, filepath.Join(out, manifest.FileName)))
	assert.Empty(t, m.Validate(out))
}

func TestBatchNoRegressSize(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writePNG(t, filepath.Join(in, "flat.png"), 64, 64, func(int, int) color.NRGBA {
		return color.NRGBA{R: 10, G: 20, B: 30, A: 255}
	})
	prof := testProfile()
	prof.Formats = []config.Format{config.FormatJPEG}
	prof.Quality = 100

	m, err := newBatch(t, in, out, prof, true).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, m.Assets["flat"].Variants)
	assert.Equal(t, 2, m.Stats.SkippedRegress)
	assert.Equal(t, [3]uint8{10, 20, 30}, *m.Assets["flat"].AvgColor)
}

func TestBatchErrors(t *testing.T) {
	empty := t.TempDir()
	_, err := newBatch(t, empty, t.TempDir(), testProfile(), false).Run(context.Background())
	assert.ErrorContains(t, err, "no images found")

	bad := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(bad, "a.png"), []byte("nope"), 0o644))
	_, err = newBatch(t, bad, t.TempDir(), testProfile(), false).Run(context.Background())
	assert.ErrorContains(t, err, "all 1 images failed")

	ok := t.TempDir()
	writePNG(t, filepath.Join(ok, "a.png"), 8, 8, noisy)
	ctx, cancel := context.WithCancel(context.Background())
	b := newBatch(t, ok, t.TempDir(), testProfile(), false)
	cancel()
	_, err = b.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScanImagesSorted(t *testing.T) {
	in := t.TempDir()
	for _, name := range []string{"b.PNG", "a/c.jpeg", "a.webp", "z.txt"} {
		p := filepath.Join(in, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}
	sources, err := ScanImages(in)
	require.NoError(t, err)

	var keys []string
	for _, s := range sources {
		keys = append(keys, s.Key)
	}
	assert.Equal(t, []string{"a", "a/c", "b"}, keys)
	assert.Equal(t, "a/c.jpeg", sources[1].RelPath)
	assert.Equal(t, int64(1), sources[1].Size)
	assert.Equal(t, config.FormatJPEG, extensionFormat(sources[1].RelPath))
	assert.Equal(t, config.Format(""), extensionFormat("x.txt"))
}
