package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/AnyUserName/imgcrush/internal/config"
	"github.com/AnyUserName/imgcrush/internal/manifest"
)

var statsCmd = &cobra.Command{
	Use:   "stats <out_dir_or_manifest>",
	Short: "Display statistics for a built asset directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(_ *cobra.Command, args []string) error {
	m, _, err := manifest.Read(args[0])
	if err != nil {
		return err
	}
	printStats(m)
	return nil
}

func printStats(m *manifest.Manifest) {
	fmt.Println()
	fmt.Printf("  Manifest version: %d\n", m.Version)
	fmt.Printf("  Generated:        %s\n", m.GeneratedAt)
	fmt.Printf("  Profile:          %s\n", m.Profile)
	if bi := m.BuildInfo; bi != nil {
		fmt.Printf("  Workers:          %d\n", bi.Workers)
		if bi.Encoders != "" {
			fmt.Printf("  Encoders:         %s\n", bi.Encoders)
		}
		if bi.MaxInputBytes > 0 || bi.MaxPixels > 0 {
			fmt.Printf("  Limits:           %s input, %d pixels\n", formatBytes(bi.MaxInputBytes), bi.MaxPixels)
		}
	}
	fmt.Println()

	s := m.Stats
	fmt.Printf("  Total assets:     %d\n", s.TotalAssets)
	fmt.Printf("  Total variants:   %d\n", s.TotalVariants)
	fmt.Printf("  Input size:       %s\n", formatBytes(s.TotalInputBytes))
	fmt.Printf("  Output size:      %s\n", formatBytes(s.TotalOutputBytes))
	if s.TotalInputBytes > 0 {
		ratio := float64(s.TotalOutputBytes) / float64(s.TotalInputBytes) * 100
		fmt.Printf("  Compression:      %.1f%% of original\n", ratio)
	}
	fmt.Println()

	formatStats := map[config.Format]struct {
		count int
		bytes int64
	}{}
	widthStats := map[uint32]int{}
	sources := map[config.Format]int{}
	var alpha, thumbs int
	for _, a := range m.Assets {
		sources[a.Original.Format]++
		if a.ThumbHash != "" {
			thumbs++
		}
		if a.Original.HasAlpha {
			alpha++
		}
		for _, v := range a.Variants {
			fs := formatStats[v.Format]
			fs.count++
			fs.bytes += v.Size
			formatStats[v.Format] = fs
			widthStats[v.Width]++
		}
	}

	fmt.Println("  Format breakdown:")
	for _, f := range config.OutputFormats {
		if fs, ok := formatStats[f]; ok {
			kind := "lossy"
			if f.Lossless() {
				kind = "lossless"
			}
			fmt.Printf("    %-6s  %4d files  %-10s %s\n", f, fs.count, formatBytes(fs.bytes), kind)
		}
	}
	fmt.Println()

	widths := make([]uint32, 0, len(widthStats))
	for w := range widthStats {
		widths = append(widths, w)
	}
	sort.Slice(widths, func(i, j int) bool { return widths[i] < widths[j] })
	fmt.Println("  Width breakdown:")
	for _, w := range widths {
		fmt.Printf("    %5dpx  %4d variants\n", w, widthStats[w])
	}
	fmt.Println()

	fmt.Println("  Source formats:")
	var names []string
	for f := range sources {
		names = append(names, f.String())
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Printf("    %-6s  %4d\n", n, sources[config.Format(n)])
	}
	fmt.Printf("  With alpha:       %d / %d assets\n", alpha, len(m.Assets))
	fmt.Printf("  ThumbHash:        %d / %d assets\n", thumbs, len(m.Assets))

	var warnings []string
	for key, a := range m.Assets {
		if len(a.Variants) == 0 {
			warnings = append(warnings, fmt.Sprintf("asset %q has no variants", key))
		}
	}
	if s.Failed > 0 {
		warnings = append(warnings, fmt.Sprintf("%d source images failed to build", s.Failed))
	}
	if len(warnings) > 0 {
		sort.Strings(warnings)
		fmt.Println()
		fmt.Printf("  Warnings (%d):\n", len(warnings))
		for _, w := range warnings {
			fmt.Printf("    ! %s\n", w)
		}
	}
	fmt.Println()
}
