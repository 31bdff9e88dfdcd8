package cmd

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/AnyUserName/imgcrush/internal/config"
	"github.com/AnyUserName/imgcrush/internal/decoder"
)

var probeJSON bool

var probeCmd = &cobra.Command{
	Use:   "probe <file>...",
	Short: "Detect format and dimensions from file content",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runProbe,
}

func init() {
	probeCmd.Flags().BoolVar(&probeJSON, "json", false, "print one JSON object per file")
	rootCmd.AddCommand(probeCmd)
}

type probeResult struct {
	Path   string        `json:"path"`
	Format config.Format `json:"format,omitempty"`
	MIME   string        `json:"mime,omitempty"`
	Width  uint32        `json:"width,omitempty"`
	Height uint32        `json:"height,omitempty"`
	Pixels uint64        `json:"pixels,omitempty"`
	Size   int           `json:"size"`
	Error  string        `json:"error,omitempty"`
}

func probeFile(path string) probeResult {
	r := probeResult{Path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		r.Error = err.Error()
		return r
	}
	r.Size = len(data)
	info, err := decoder.Probe(data)
	if err != nil {
		r.Error = err.Error()
		return r
	}
	r.Format = info.Format
	r.MIME = info.Format.MIMEType()
	r.Width = info.Width
	r.Height = info.Height
	r.Pixels = info.Pixels()
	return r
}

func runProbe(cmd *cobra.Command, args []string) error {
	enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(cmd.OutOrStdout())
	var failed int
	for _, path := range args {
		r := probeFile(path)
		if r.Error != "" {
			failed++
		}
		if probeJSON {
			if err := enc.Encode(r); err != nil {
				return err
			}
			continue
		}
		if r.Error != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", path, r.Error)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s %dx%d (%s)\n", path, r.MIME, r.Width, r.Height, formatBytes(int64(r.Size)))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files could not be probed", failed, len(args))
	}
	return nil
}
