package cmd

import (
	"context"
	"fmt"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/AnyUserName/imgcrush/internal/logging"
	"github.com/AnyUserName/imgcrush/internal/pipeline"
)

var (
	version     = "0.1.0"
	verbose     bool
	metricsFile string

	logger  = logging.New(false)
	metrics = prometheus.NewRegistry()
)

var rootCmd = &cobra.Command{
	Use:   "imgcrush",
	Short: "Read, resize and recompress images",
	Long: `imgcrush decodes JPEG, PNG, WebP, GIF, BMP and TIFF input, resizes it
(fit, fill or stretch) and re-encodes it as JPEG, PNG, WebP, GIF or AVIF.

Formats are detected from content, never from file names. Memory per image
is bounded by IMGCRUSH_MAX_INPUT_BYTES and IMGCRUSH_MAX_PIXELS.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(*cobra.Command, []string) {
		logger = logging.New(verbose)
	},
	PersistentPostRunE: func(*cobra.Command, []string) error {
		_ = logger.Sync()
		if metricsFile == "" {
			return nil
		}
		if err := prometheus.WriteToTextfile(metricsFile, metrics); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
		return nil
	},
}

// Execute runs the CLI. Cancelling ctx stops work at the next stage boundary.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		logger.Error("command failed", zap.String("kind", pipeline.KindOf(err)), zap.Error(err))
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"imgcrush %s (%s/%s, %s)\n",
		version, runtime.GOOS, runtime.GOARCH, runtime.Version(),
	))
}

// loadLimits reads limits from the environment and applies flag overrides.
func loadLimits(cmd *cobra.Command, maxBytes int64, maxPixels uint64) (pipeline.Limits, error) {
	limits, err := pipeline.LoadLimits()
	if err != nil {
		return pipeline.Limits{}, err
	}
	if cmd.Flags().Changed("max-input-bytes") {
		limits.MaxInputBytes = maxBytes
	}
	if cmd.Flags().Changed("max-pixels") {
		limits.MaxPixels = maxPixels
	}
	return limits, nil
}

func addLimitFlags(cmd *cobra.Command, maxBytes *int64, maxPixels *uint64) {
	cmd.Flags().Int64Var(maxBytes, "max-input-bytes", 0, "reject inputs larger than this (0 = unlimited, default from env)")
	cmd.Flags().Uint64Var(maxPixels, "max-pixels", 0, "reject images with more pixels than this (0 = unlimited, default from env)")
}
