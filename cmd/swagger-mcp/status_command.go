package main

import (
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/ingest"
	"github.com/salacoste/openapi-mcp-swagger-sub001/pkg/types"
)

func (c *cli) statusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [dir]",
		Short: "Show what an ingested store contains",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			cfg, err := c.loadConfig(dir)
			if err != nil {
				return err
			}

			report, err := ingest.Status(cmd.Context(), cfg, c.logger(), "")
			if err != nil {
				return err
			}

			printStatusReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
	return cmd
}

func printStatusReport(w io.Writer, report *types.StatusReport) {
	table := tablewriter.NewWriter(w)
	table.Header("Field", "Value")
	_ = table.Append([]string{"Directory", report.Dir})
	_ = table.Append([]string{"Schema version", strconv.Itoa(report.SchemaVersion)})
	if report.Name == "" {
		_ = table.Append([]string{"API", "(none ingested)"})
		_ = table.Render()
		return
	}
	_ = table.Append([]string{"API", report.Name})
	_ = table.Append([]string{"Title", report.Title})
	_ = table.Append([]string{"Version", report.Version})
	_ = table.Append([]string{"Endpoints", strconv.Itoa(report.Endpoints)})
	_ = table.Append([]string{"Schemas", strconv.Itoa(report.Schemas)})
	_ = table.Append([]string{"Categories", strconv.Itoa(report.Categories)})
	_ = table.Append([]string{"Ingested at", report.IngestedAt.Format("2006-01-02 15:04:05 MST")})
	_ = table.Append([]string{"Digest", shortDigest(report.Digest)})
	_ = table.Render()
}
