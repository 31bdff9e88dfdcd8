package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/AnyUserName/imgcrush/internal/manifest"
)

var validateCmd = &cobra.Command{
	Use:   "validate <manifest_or_out_dir>",
	Short: "Validate a manifest and check referenced files exist",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(_ *cobra.Command, args []string) error {
	m, path, err := manifest.Read(args[0])
	if err != nil {
		return err
	}

	problems := m.Validate(filepath.Dir(path))
	if len(problems) == 0 {
		fmt.Println("  OK  manifest is valid")
		fmt.Printf("  OK  %d assets, %d variants, all files present\n", m.Stats.TotalAssets, m.Stats.TotalVariants)
		return nil
	}

	fmt.Printf("  manifest has %d error(s):\n", len(problems))
	for _, p := range problems {
		fmt.Printf("    - %s\n", p)
	}
	return fmt.Errorf("validation failed with %d errors", len(problems))
}
