package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/docsite/internal/config"
	"github.com/conneroisu/docsite/internal/i18n"
	"github.com/conneroisu/docsite/internal/redirects"
)

var routesFormat string

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Show the redirect table and the language catalog",
	Long: `Show the permanent redirects and the languages the server will use.

Examples:
  docsite routes                # Tables
  docsite routes --format json  # Machine readable`,
	RunE: runRoutes,
}

func init() {
	rootCmd.AddCommand(routesCmd)

	routesCmd.Flags().StringVarP(&routesFormat, "format", "f", "table", "Output format (table, json, yaml)")
}

// routesReport is what `docsite routes` prints.
type routesReport struct {
	Redirects []redirects.Entry `json:"redirects" yaml:"redirects"`
	Languages []i18n.Language   `json:"languages" yaml:"languages"`
}

func runRoutes(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	catalog, err := i18n.Load(cfg.Site.Languages)
	if err != nil {
		return err
	}
	table, err := redirects.Load(cfg.Site.Redirects)
	if err != nil {
		return err
	}

	report := routesReport{Redirects: table.Entries(), Languages: catalog.Languages()}

	return writeRoutes(cmd.OutOrStdout(), routesFormat, report)
}

func writeRoutes(out io.Writer, format string, report routesReport) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	case "yaml":
		encoder := yaml.NewEncoder(out)
		defer encoder.Close()
		return encoder.Encode(report)
	case "table":
		return writeRoutesTable(out, report)
	default:
		return fmt.Errorf("unsupported format: %s (supported: table, json, yaml)", format)
	}
}

func writeRoutesTable(out io.Writer, report routesReport) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "LANGUAGE\tNAME\tTITLE\n")
	for _, lang := range report.Languages {
		fmt.Fprintf(w, "%s\t%s\t%s\n", lang.Locale, lang.Name, lang.Title)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "SOURCE\tTARGET\n")
	for _, e := range report.Redirects {
		fmt.Fprintf(w, "%s\t%s\n", e.Source, e.Target)
	}

	return w.Flush()
}
