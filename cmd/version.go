package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/conneroisu/docsite/internal/version"
)

var (
	versionFormat   string
	versionDetailed bool
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Display version information for docsite.

Examples:
  docsite version               # Short version
  docsite version --detailed    # Commit, build time, Go and templ versions
  docsite version --format json # Output as JSON`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeVersion(cmd.OutOrStdout(), version.Get(), versionFormat, versionDetailed)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().StringVarP(&versionFormat, "format", "f", "text", "Output format (text, json)")
	versionCmd.Flags().BoolVar(&versionDetailed, "detailed", false, "Show detailed version information")
}

func writeVersion(out io.Writer, info *version.Info, format string, detailed bool) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(info)
	case "text":
		if detailed {
			_, err := fmt.Fprintln(out, info.Detailed())
			return err
		}
		_, err := fmt.Fprintf(out, "docsite %s\n", info.Version)
		return err
	default:
		return fmt.Errorf("unsupported format: %s (supported: text, json)", format)
	}
}
