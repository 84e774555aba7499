package main

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/config"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/logging"
)

var (
	successColor = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed, color.Bold)
)

// cli carries the persistent flags shared by every subcommand.
type cli struct {
	verbose bool
}

func newRootCommand() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "swagger-mcp",
		Short: "Ingest OpenAPI specifications and inspect the resulting stores",
		Long: `swagger-mcp turns OpenAPI 3.x documents into queryable documentation
stores served to AI assistants by the companion server binary.

Typical flow:
  swagger-mcp validate api.yaml              # check the document first
  swagger-mcp convert api.yaml -o api.json   # ingest reads JSON
  swagger-mcp ingest api.json -o ./data      # parse into a store
  swagger-mcp status ./data                  # inspect what was written
  swagger-mcp docs ./data                    # browse it locally`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		c.ingestCommand(),
		c.statusCommand(),
		c.categoriesCommand(),
		c.validateCommand(),
		c.convertCommand(),
		c.migrateCommand(),
		c.docsCommand(),
	)
	return root
}

// logger builds the CLI logger. Commands print their own results, so logs
// stay on warnings unless --verbose asks for the full trace.
func (c *cli) logger() logging.Logger {
	level := logging.LevelWarn
	if c.verbose {
		level = logging.LevelDebug
	}
	return logging.New(level).WithComponent("cli")
}

// loadConfig reads the environment configuration, optionally pointing the
// store at dir.
func (c *cli) loadConfig(dir string) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if dir != "" {
		cfg.Storage.DataDir = dir
	}
	return cfg, nil
}
