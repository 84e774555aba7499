package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/docs"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/search"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/storage"
)

func (c *cli) docsCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "docs [dir]",
		Short: "Serve a local documentation preview of an ingested store",
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

			site := docs.NewSite(search.NewService(store, cfg.Search, logger), logger)

			router := mux.NewRouter()
			router.PathPrefix("/docs").Handler(site)
			router.Handle("/", http.RedirectHandler("/docs", http.StatusTemporaryRedirect))

			srv := &http.Server{
				Addr:         addr,
				Handler:      router,
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 30 * time.Second,
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			errCh := make(chan error, 1)
			go func() {
				fmt.Fprintf(cmd.OutOrStdout(), "Serving documentation at http://localhost%s/docs (ctrl-c to stop)\n", addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8081", "listen address")
	return cmd
}
