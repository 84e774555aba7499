package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/ingest"
	"github.com/salacoste/openapi-mcp-swagger-sub001/pkg/types"
)

func (c *cli) ingestCommand() *cobra.Command {
	var (
		output    string
		name      string
		overwrite bool
	)

	cmd := &cobra.Command{
		Use:   "ingest <spec.json>",
		Short: "Parse a specification file into a queryable store",
		Long: `Ingest streams an OpenAPI 3.x JSON document through the parser and writes
endpoints, schemas, and categories into the store under the output
directory as a single transaction.

Examples:
  swagger-mcp ingest api.json -o ./data
  swagger-mcp ingest api.json -o ./data --name performance --overwrite`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig("")
			if err != nil {
				return err
			}

			report, err := ingest.Ingest(cmd.Context(), cfg, c.logger(), args[0], output,
				ingest.Options{Name: name, Overwrite: overwrite})
			if err != nil {
				return err
			}

			printIngestReport(cmd.OutOrStdout(), report)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "store directory to write (defaults to the configured data dir)")
	cmd.Flags().StringVar(&name, "name", "", "api name override (defaults to the source file name)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing api of the same name")
	return cmd
}

func printIngestReport(w io.Writer, report *types.IngestReport) {
	verb := "Ingested"
	if report.Replaced {
		verb = "Replaced"
	}
	_, _ = successColor.Fprintf(w, "✓ %s %q in %s\n\n", verb, report.Name,
		(time.Duration(report.DurationMS) * time.Millisecond).String())

	table := tablewriter.NewWriter(w)
	table.Header("Field", "Value")
	_ = table.Append([]string{"Title", report.Title})
	_ = table.Append([]string{"Version", report.Version})
	_ = table.Append([]string{"Endpoints", strconv.Itoa(report.Endpoints)})
	_ = table.Append([]string{"Schemas", strconv.Itoa(report.Schemas)})
	_ = table.Append([]string{"Categories", strconv.Itoa(report.Categories)})
	_ = table.Append([]string{"Digest", shortDigest(report.Digest)})
	_ = table.Render()

	if len(report.Warnings) > 0 {
		_, _ = warnColor.Fprintf(w, "\n%d warning(s):\n", len(report.Warnings))
		for _, warning := range report.Warnings {
			line := warning.Message
			if warning.Path != "" {
				line = fmt.Sprintf("%s (%s)", line, warning.Path)
			}
			_, _ = warnColor.Fprintf(w, "  - %s\n", line)
		}
	}
}

func shortDigest(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}
