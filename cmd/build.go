package cmd

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/AnyUserName/imgcrush/internal/config"
	"github.com/AnyUserName/imgcrush/internal/manifest"
	"github.com/AnyUserName/imgcrush/internal/pipeline"
	"github.com/AnyUserName/imgcrush/internal/profile"
)

var (
	buildOutDir    string
	buildProfile   string
	buildWorkers   int
	buildWidths    []uint
	buildFormats   []string
	buildQuality   int
	buildNoRegress bool
	buildMaxBytes  int64
	buildMaxPixels uint64
)

var buildCmd = &cobra.Command{
	Use:   "build <input_dir>",
	Short: "Process a directory of images into resized variants and a manifest",
	Long: `Scans the input directory for images, generates resized variants in the
profile's formats and writes ` + manifest.FileName + `.

Output filenames are content-addressed: <key>.<w>.<h>.<hash>.ext`,
	Args: cobra.ExactArgs(1),
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringVarP(&buildOutDir, "out", "o", "./imgcrush_out", "output directory")
	buildCmd.Flags().StringVarP(&buildProfile, "profile", "p", profile.DefaultName,
		"processing profile ("+strings.Join(profile.Names(), ", ")+")")
	buildCmd.Flags().IntVarP(&buildWorkers, "workers", "w", 0, "parallel workers (0 = NumCPU)")
	buildCmd.Flags().UintSliceVar(&buildWidths, "widths", nil, "custom widths (overrides profile)")
	buildCmd.Flags().StringSliceVar(&buildFormats, "formats", nil, "output formats in priority order (overrides profile)")
	buildCmd.Flags().IntVarP(&buildQuality, "quality", "q", -1, "quality 0-100 (-1 = profile default)")
	buildCmd.Flags().BoolVar(&buildNoRegress, "no-regress-size", true, "skip variants larger than original file")
	addLimitFlags(buildCmd, &buildMaxBytes, &buildMaxPixels)
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	start := time.Now()

	absInput, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolve input path: %w", err)
	}
	absOutput, err := filepath.Abs(buildOutDir)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	prof := profile.Get(buildProfile)
	if buildWidths != nil {
		if prof.Widths, err = parseWidths(buildWidths); err != nil {
			return err
		}
	}
	if buildFormats != nil {
		prof.Formats = nil
		for _, s := range buildFormats {
			f, err := config.ParseFormat(s)
			if err != nil {
				return err
			}
			prof.Formats = append(prof.Formats, f)
		}
	}
	if buildQuality >= 0 {
		prof.Quality = buildQuality
	}

	limits, err := loadLimits(cmd, buildMaxBytes, buildMaxPixels)
	if err != nil {
		return err
	}

	logger.Debug("build",
		zap.String("input", absInput),
		zap.String("output", absOutput),
		zap.String("profile", prof.Name),
		zap.Any("widths", prof.Widths),
		zap.Int("quality", prof.Quality),
	)

	if err := os.MkdirAll(absOutput, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	b, err := pipeline.NewBatch(cmd.Context(), pipeline.BatchConfig{
		InputDir:      absInput,
		OutputDir:     absOutput,
		Profile:       prof,
		Workers:       buildWorkers,
		NoRegressSize: buildNoRegress,
		Limits:        limits,
		Logger:        logger,
		Registerer:    metrics,
	})
	if err != nil {
		return err
	}

	m, err := b.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	manifestPath := filepath.Join(absOutput, manifest.FileName)
	if err := manifest.WriteJSON(m, manifestPath); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	printBuildReport(m, time.Since(start))
	return nil
}

func printBuildReport(m *manifest.Manifest, elapsed time.Duration) {
	fmt.Println()
	fmt.Println("  imgcrush build complete")
	fmt.Println()

	stats := m.Stats
	ratio := float64(0)
	if stats.TotalInputBytes > 0 {
		ratio = float64(stats.TotalOutputBytes) / float64(stats.TotalInputBytes) * 100
	}

	fmt.Printf("  Assets:      %d\n", stats.TotalAssets)
	fmt.Printf("  Variants:    %d\n", stats.TotalVariants)
	fmt.Printf("  Input size:  %s\n", formatBytes(stats.TotalInputBytes))
	fmt.Printf("  Output size: %s\n", formatBytes(stats.TotalOutputBytes))
	fmt.Printf("  Ratio:       %.1f%% of original\n", ratio)
	if stats.SkippedRegress > 0 {
		fmt.Printf("  Skipped:     %d variants (larger than original)\n", stats.SkippedRegress)
	}
	if stats.Failed > 0 {
		fmt.Printf("  Failed:      %d images\n", stats.Failed)
	}
	fmt.Printf("  Time:        %s\n", elapsed.Round(time.Millisecond))
	if m.BuildInfo != nil {
		fmt.Printf("  Workers:     %d  (%s)\n", m.BuildInfo.Workers, m.BuildInfo.Encoders)
	}
	fmt.Println()

	if len(m.Assets) > 0 {
		type assetSize struct {
			key        string
			inputSize  int64
			outputSize int64
		}
		var items []assetSize
		for key, a := range m.Assets {
			var outSum int64
			for _, v := range a.Variants {
				outSum += v.Size
			}
			items = append(items, assetSize{key, a.Original.Size, outSum})
		}
		sort.Slice(items, func(i, j int) bool {
			return items[i].inputSize > items[j].inputSize
		})
		n := min(len(items), 10)
		fmt.Printf("  Top %d heaviest (original -> optimized):\n", n)
		for _, it := range items[:n] {
			saved := float64(0)
			if it.inputSize > 0 {
				saved = (1 - float64(it.outputSize)/float64(it.inputSize)) * 100
			}
			fmt.Printf("    %-40s %8s -> %8s  (-%.0f%%)\n",
				truncKey(it.key, 40),
				formatBytes(it.inputSize),
				formatBytes(it.outputSize),
				saved,
			)
		}
		fmt.Println()
	}

	fmts := detectOutputFormats(m)
	fmt.Printf("  Formats:     %s\n", strings.Join(fmts, ", "))
	fmt.Printf("  Manifest:    %s\n", manifest.FileName)
	fmt.Println()
}

func detectOutputFormats(m *manifest.Manifest) []string {
	set := map[config.Format]bool{}
	for _, a := range m.Assets {
		for _, v := range a.Variants {
			set[v.Format] = true
		}
	}
	var out []string
	for _, f := range config.OutputFormats {
		if set[f] {
			out = append(out, f.String())
		}
	}
	return out
}

func formatBytes(b int64) string {
	switch {
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

func truncKey(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max+3:]
}

// parseWidths narrows --widths values, rejecting zero and anything that does
// not fit a uint32 pixel count.
func parseWidths(in []uint) ([]uint32, error) {
	out := make([]uint32, 0, len(in))
	for _, w := range in {
		if w == 0 || uint64(w) > math.MaxUint32 {
			return nil, fmt.Errorf("invalid --widths value %d: must be between 1 and %d", w, uint64(math.MaxUint32))
		}
		out = append(out, uint32(w))
	}
	return out, nil
}
