package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/AnyUserName/imgcrush/internal/config"
	"github.com/AnyUserName/imgcrush/internal/pipeline"
)

var (
	procOut       string
	procWidth     uint32
	procHeight    uint32
	procScale     float64
	procQuality   int
	procFormat    string
	procMode      string
	procFilter    string
	procNoAspect  bool
	procDebug     bool
	procMaxBytes  int64
	procMaxPixels uint64
)

var processCmd = &cobra.Command{
	Use:   "process <input|->",
	Short: "Resize and recompress a single image",
	Long: `Reads one image (or stdin with "-"), resizes it to fit the given bounds
and writes it in the requested format. --format accepts a name, an
extension or a MIME type (jpeg, jpg, image/webp, ...).`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

func init() {
	f := processCmd.Flags()
	f.StringVarP(&procOut, "out", "o", "", `output file ("-" for stdout, default <input>.<ext>)`)
	f.Uint32Var(&procWidth, "width", 0, "maximum output width")
	f.Uint32Var(&procHeight, "height", 0, "maximum output height")
	f.Float64Var(&procScale, "scale", 0, "scale ratio in (0, 1] applied before the bounds")
	f.IntVarP(&procQuality, "quality", "q", config.Default().Quality, "quality 0-100")
	f.StringVarP(&procFormat, "format", "f", string(config.FormatJPEG), "output format")
	f.StringVarP(&procMode, "mode", "m", string(config.ResizeFit), "resize mode: fit, fill or stretch")
	f.StringVar(&procFilter, "filter", string(config.FilterLanczos3), "resampling filter: nearest, triangle, catmull-rom, gaussian, lanczos3")
	f.BoolVar(&procNoAspect, "no-preserve-aspect", false, "ignore aspect ratio (same as --mode stretch)")
	f.BoolVar(&procDebug, "debug", false, "log every pipeline stage")
	addLimitFlags(processCmd, &procMaxBytes, &procMaxPixels)
	rootCmd.AddCommand(processCmd)
}

// processConfig builds the pipeline config from flags. Bounds are only set
// when their flag was given so that an explicit 0 is rejected by validation.
func processConfig(cmd *cobra.Command) (config.PipelineConfig, error) {
	cfg := config.Default()
	cfg.Quality = procQuality
	cfg.PreserveAspectRatio = !procNoAspect
	cfg.Debug = procDebug

	format, err := config.ParseFormat(procFormat)
	if err != nil {
		return cfg, err
	}
	cfg.OutputFormat = format
	if cfg.ResizeMode, err = config.ParseResizeMode(procMode); err != nil {
		return cfg, err
	}
	if cfg.Filter, err = config.ParseFilter(procFilter); err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("width") {
		cfg.MaxWidth = config.Bound(procWidth)
	}
	if flags.Changed("height") {
		cfg.MaxHeight = config.Bound(procHeight)
	}
	if flags.Changed("scale") {
		cfg.ScaleRatio = config.Ratio(procScale)
	}
	return cfg, nil
}

func runProcess(cmd *cobra.Command, args []string) error {
	cfg, err := processConfig(cmd)
	if err != nil {
		return err
	}
	limits, err := loadLimits(cmd, procMaxBytes, procMaxPixels)
	if err != nil {
		return err
	}

	input := args[0]
	var data []byte
	if input == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(input)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", input, err)
	}

	orch := pipeline.New(
		pipeline.WithLogger(logger),
		pipeline.WithLimits(limits),
		pipeline.WithRegisterer(metrics),
	)
	if err := orch.Init(cmd.Context()); err != nil {
		return err
	}
	res, err := orch.Run(cmd.Context(), data, cfg)
	if err != nil {
		return err
	}

	out := procOut
	if out == "" {
		out = defaultOutput(input, res.Format)
	}
	if out == "-" {
		_, err = cmd.OutOrStdout().Write(res.Data)
		return err
	}
	if err := os.WriteFile(out, res.Data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	logger.Info("wrote",
		zap.String("path", out),
		zap.Uint32("width", res.Width),
		zap.Uint32("height", res.Height),
		zap.String("size", formatBytes(int64(len(res.Data)))),
	)
	return nil
}

// defaultOutput places the result next to the input. Inputs already in the
// target format get a ".out" infix so they are not overwritten.
func defaultOutput(input string, f config.Format) string {
	if input == "-" {
		return "-"
	}
	ext := filepath.Ext(input)
	stem := strings.TrimSuffix(input, ext)
	out := stem + "." + f.Extension()
	if out == input {
		out = stem + ".out." + f.Extension()
	}
	return out
}
