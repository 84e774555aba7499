package main

import (
	"github.com/spf13/cobra"

	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/storage"
)

func (c *cli) migrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate [dir]",
		Short: "Apply pending store migrations",
		Long: `Opening a store applies any pending schema migrations; migrate does only
that and reports the resulting schema version. Useful after upgrading the
binaries against a store written by an older version.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			cfg, err := c.loadConfig(dir)
			if err != nil {
				return err
			}

			store, err := storage.Open(cmd.Context(), cfg, c.logger())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			version, err := store.SchemaVersion(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = successColor.Fprintf(cmd.OutOrStdout(), "✓ store at %s is at schema version %d\n",
				cfg.Storage.DataDir, version)
			return nil
		},
	}
	return cmd
}
