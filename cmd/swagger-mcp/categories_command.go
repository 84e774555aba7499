package main

import (
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/search"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/storage"
	"github.com/salacoste/openapi-mcp-swagger-sub001/pkg/types"
)

func (c *cli) categoriesCommand() *cobra.Command {
	var (
		sortBy       string
		group        string
		includeEmpty bool
	)

	cmd := &cobra.Command{
		Use:   "categories [dir]",
		Short: "List the endpoint categories of an ingested store",
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
			logger := c.logger()

			store, err := storage.Open(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			svc := search.NewService(store, cfg.Search, logger)
			api, err := svc.ActiveAPI(cmd.Context())
			if err != nil {
				return err
			}
			catalog, err := svc.GetEndpointCategories(cmd.Context(), api.ID, &types.GetEndpointCategoriesRequest{
				SortBy:        sortBy,
				CategoryGroup: group,
				IncludeEmpty:  includeEmpty,
			})
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			table := tablewriter.NewWriter(w)
			table.Header("Category", "Group", "Endpoints", "Methods")
			for _, cat := range catalog.Categories {
				name := cat.Name
				if cat.DisplayName != "" && cat.DisplayName != cat.Name {
					name = cat.Name + " (" + cat.DisplayName + ")"
				}
				_ = table.Append([]string{
					name,
					cat.Group,
					strconv.Itoa(cat.EndpointCount),
					strings.Join(cat.Methods, ", "),
				})
			}
			_ = table.Render()
			_, _ = successColor.Fprintf(w, "%d categories, %d endpoints\n",
				catalog.Metadata.TotalCategories, catalog.Metadata.TotalEndpoints)
			return nil
		},
	}

	cmd.Flags().StringVar(&sortBy, "sort", types.SortByName, "sort key: name, endpointCount, or group")
	cmd.Flags().StringVar(&group, "group", "", "only categories in this tag group")
	cmd.Flags().BoolVar(&includeEmpty, "include-empty", false, "include categories with no endpoints")
	return cmd
}
