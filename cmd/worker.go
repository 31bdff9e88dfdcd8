package cmd

import (
	"github.com/spf13/cobra"

	"github.com/AnyUserName/imgcrush/internal/pipeline"
	"github.com/AnyUserName/imgcrush/internal/worker"
)

var (
	workerMaxBytes  int64
	workerMaxPixels uint64
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Serve requests as newline-delimited JSON on stdin/stdout",
	Long: `Reads one JSON request per line:

  {"id": "...", "file": "<base64>", "config": {"maxWidth": 800, "outputFormat": "image/webp", ...}}

and writes one JSON response per request, in order. The first line written
is {"status":"initialized"}. Responses carry status "success" (with base64
data, width, height and format) or "error" (with message and kind).`,
	Args: cobra.NoArgs,
	RunE: runWorker,
}

func init() {
	addLimitFlags(workerCmd, &workerMaxBytes, &workerMaxPixels)
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, _ []string) error {
	limits, err := loadLimits(cmd, workerMaxBytes, workerMaxPixels)
	if err != nil {
		return err
	}
	orch := pipeline.New(
		pipeline.WithLogger(logger),
		pipeline.WithLimits(limits),
		pipeline.WithRegisterer(metrics),
	)
	return worker.Serve(cmd.Context(), orch, cmd.InOrStdin(), cmd.OutOrStdout(), logger)
}
