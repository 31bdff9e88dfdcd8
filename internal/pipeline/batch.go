package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/AnyUserName/imgcrush/internal/decoder"
	"github.com/AnyUserName/imgcrush/internal/encoder"
	"github.com/AnyUserName/imgcrush/internal/hasher"
	"github.com/AnyUserName/imgcrush/internal/manifest"
	"github.com/AnyUserName/imgcrush/internal/profile"
	"github.com/AnyUserName/imgcrush/internal/raster"
	"github.com/AnyUserName/imgcrush/internal/thumbhash"
)

// BatchConfig holds all parameters for a directory build.
type BatchConfig struct {
	InputDir      string
	OutputDir     string
	Profile       profile.Profile
	Workers       int
	NoRegressSize bool // skip variants larger than the source file
	Limits        Limits
	Logger        *zap.Logger
	Registerer    prometheus.Registerer
}

// Batch builds every image under a directory with a fixed pool of
// orchestrators, one per worker.
type Batch struct {
	cfg      BatchConfig
	log      *zap.Logger
	registry *encoder.Registry
	pool     chan *Orchestrator
}

// NewBatch creates a batch with cfg.Workers ready orchestrators.
func NewBatch(ctx context.Context, cfg BatchConfig) (*Batch, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Registerer == nil {
		cfg.Registerer = prometheus.DefaultRegisterer
	}

	b := &Batch{
		cfg:      cfg,
		log:      cfg.Logger,
		registry: encoder.Init(),
		pool:     make(chan *Orchestrator, cfg.Workers),
	}
	for i := 0; i < cfg.Workers; i++ {
		o := New(
			WithLogger(cfg.Logger.With(zap.Int("worker", i))),
			WithLimits(cfg.Limits),
			WithRegisterer(cfg.Registerer),
		)
		if err := o.Init(ctx); err != nil {
			return nil, err
		}
		b.pool <- o
	}
	return b, nil
}

type processResult struct {
	key            string
	asset          manifest.Asset
	err            error
	skippedRegress int
}

// Run builds all sources and returns the manifest. Individual failures are
// logged and counted; Run fails only when every source failed or ctx ended.
func (b *Batch) Run(ctx context.Context) (*manifest.Manifest, error) {
	b.log.Debug("registry", zap.Stringer("encoders", b.registry))

	sources, err := ScanImages(b.cfg.InputDir)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no images found in %s", b.cfg.InputDir)
	}
	b.log.Debug("found images", zap.Int("count", len(sources)))

	results := make([]processResult, len(sources))
	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(idx int, s Source) {
			defer wg.Done()

			var o *Orchestrator
			select {
			case o = <-b.pool:
			case <-ctx.Done():
				results[idx] = processResult{key: s.Key, err: ctx.Err()}
				return
			}
			defer func() { b.pool <- o }()

			b.log.Debug("processing", zap.String("key", s.Key))
			results[idx] = b.processImage(ctx, o, s)
			if results[idx].err == nil {
				b.log.Debug("done", zap.String("key", s.Key), zap.Int("variants", len(results[idx].asset.Variants)))
			}
		}(i, src)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("build interrupted: %w", err)
	}

	m := manifest.New(b.cfg.Profile.Name)
	var failed, skipped int
	for _, r := range results {
		if r.err != nil {
			failed++
			b.log.Error("image failed", zap.String("key", r.key), zap.String("kind", KindOf(r.err)), zap.Error(r.err))
			continue
		}
		m.Assets[r.key] = r.asset
		skipped += r.skippedRegress
	}
	if failed == len(sources) {
		return nil, fmt.Errorf("all %d images failed to process", failed)
	}
	if failed > 0 {
		b.log.Warn("some images had errors", zap.Int("failed", failed), zap.Int("total", len(sources)))
	}

	m.BuildInfo = &manifest.BuildInfo{
		Workers:       b.cfg.Workers,
		Encoders:      b.registry.String(),
		MaxInputBytes: b.cfg.Limits.MaxInputBytes,
		MaxPixels:     b.cfg.Limits.MaxPixels,
	}
	m.Stats.SkippedRegress = skipped
	m.Stats.Failed = failed
	m.ComputeStats()
	return m, nil
}

// processImage reads one source, records its metadata and writes every
// width and format variant the profile asks for.
func (b *Batch) processImage(ctx context.Context, o *Orchestrator, src Source) processResult {
	result := processResult{key: src.Key}
	log := b.log.With(zap.String("key", src.Key))

	data, err := os.ReadFile(src.AbsPath)
	if err != nil {
		result.err = fmt.Errorf("read %s: %w", src.RelPath, err)
		return result
	}
	if err := b.cfg.Limits.checkInput(len(data)); err != nil {
		result.err = &Error{Err: err}
		return result
	}

	info, err := decoder.Probe(data)
	if err != nil {
		result.err = stageError(StageDecode, err)
		return result
	}
	if err := b.cfg.Limits.checkPixels(info.Width, info.Height); err != nil {
		result.err = &Error{Err: err}
		return result
	}
	if ext := extensionFormat(src.RelPath); ext != "" && ext != info.Format {
		log.Debug("extension does not match content", zap.Stringer("extension", ext), zap.Stringer("content", info.Format))
	}

	img, err := decoder.Decode(data)
	if err != nil {
		result.err = stageError(StageDecode, err)
		return result
	}
	hasAlpha := img.HasAlpha()
	avg := averageColor(img)
	thumb, err := thumbhash.Encode(img)
	if err != nil {
		result.err = fmt.Errorf("thumbhash %s: %w", src.RelPath, err)
		return result
	}

	result.asset = manifest.Asset{
		Original: manifest.OriginalInfo{
			Width:    info.Width,
			Height:   info.Height,
			Format:   info.Format,
			Size:     src.Size,
			HasAlpha: hasAlpha,
		},
		ThumbHash:   base64.StdEncoding.EncodeToString(thumb),
		AspectRatio: float64(info.Width) / float64(info.Height),
		AvgColor:    &avg,
	}

	keyDir := path.Dir(src.Key)
	if keyDir != "." {
		if err := os.MkdirAll(filepath.Join(b.cfg.OutputDir, filepath.FromSlash(keyDir)), 0o755); err != nil {
			result.err = fmt.Errorf("create %s: %w", keyDir, err)
			return result
		}
	}

	widths := b.cfg.Profile.EffectiveWidths(info.Width)
	formats := b.registry.ResolveFormats(b.cfg.Profile.Formats, hasAlpha)

	for _, w := range widths {
		for _, format := range formats {
			cfg := b.cfg.Profile.Config(format, w)
			res, err := o.Run(ctx, data, cfg)
			if rerr := o.Reset(); rerr != nil {
				log.Debug("reset", zap.Error(rerr))
			}
			if err != nil {
				if errors.Is(err, ErrCancelled) {
					result.err = err
					return result
				}
				log.Warn("variant failed", zap.Uint32("width", w), zap.Stringer("format", format), zap.Error(err))
				continue
			}

			if b.cfg.NoRegressSize && int64(len(res.Data)) >= src.Size {
				log.Debug("skip variant larger than source",
					zap.Uint32("width", res.Width),
					zap.Uint32("height", res.Height),
					zap.Stringer("format", format),
					zap.Int("encoded", len(res.Data)),
					zap.Int64("original", src.Size),
				)
				result.skippedRegress++
				continue
			}

			hash := hasher.ContentHash(res.Data, hasher.HexLen)
			relPath := path.Join(keyDir, hasher.FileName(src.Key, res.Width, res.Height, hash, format.Extension()))
			if err := os.WriteFile(filepath.Join(b.cfg.OutputDir, filepath.FromSlash(relPath)), res.Data, 0o644); err != nil {
				result.err = fmt.Errorf("write %s: %w", relPath, err)
				return result
			}

			result.asset.Variants = append(result.asset.Variants, manifest.Variant{
				Format: format,
				Width:  res.Width,
				Height: res.Height,
				Size:   int64(len(res.Data)),
				Hash:   hash,
				Path:   relPath,
			})
		}
	}

	return result
}

// averageColor is the mean RGB of an 8-bit RGBA raster.
func averageColor(img *raster.Image) [3]uint8 {
	count := img.Pixels()
	if count == 0 || img.Channels != raster.RGBA || img.Depth != raster.Depth8 {
		return [3]uint8{}
	}
	var r, g, bl uint64
	for i := 0; i+3 < len(img.Samples); i += 4 {
		r += uint64(img.Samples[i])
		g += uint64(img.Samples[i+1])
		bl += uint64(img.Samples[i+2])
	}
	return [3]uint8{uint8(r / count), uint8(g / count), uint8(bl / count)}
}
