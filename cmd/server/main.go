// server exposes an ingested OpenAPI dataset to AI assistants over the MCP
// protocol, speaking stdio for editor integrations and HTTP (JSON-RPC, SSE,
// WebSocket) for everything else.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fredcamaral/gomcp-sdk/transport"

	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/config"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/di"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/logging"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/mcp"
)

func main() {
	var (
		mode = flag.String("mode", "stdio", "transport: stdio or http")
		addr = flag.String("addr", "", "listen address for http mode (overrides config)")
		data = flag.String("data", "", "data directory holding an ingested specification (overrides config)")
	)
	flag.Parse()

	if err := run(*mode, *addr, *data); err != nil {
		fmt.Fprintln(os.Stderr, "server:", err)
		os.Exit(1)
	}
}

func run(mode, addr, dataDir string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if dataDir != "" {
		cfg.Storage.DataDir = dataDir
	}

	// Logs go to stderr, keeping stdout clean for the stdio protocol.
	logger := logging.New(logging.ParseLevel(cfg.Logging.Level)).WithComponent("server")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	container, err := di.NewContainer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := container.Shutdown(); err != nil {
			logger.Error("shutdown", "error", err.Error())
		}
	}()

	switch mode {
	case "stdio":
		return runStdio(ctx, container, logger)
	case "http":
		if addr == "" {
			addr = fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		}
		return runHTTP(ctx, container, addr, logger)
	default:
		return fmt.Errorf("unknown mode %q, use stdio or http", mode)
	}
}

func runStdio(ctx context.Context, c *di.Container, logger logging.Logger) error {
	logger.Info("serving on stdio", "server", mcp.ServerName, "version", mcp.ServerVersion)

	srv := c.MCP.MCPServer()
	srv.SetTransport(transport.NewStdioTransport())
	if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runHTTP(ctx context.Context, c *di.Container, addr string, logger logging.Logger) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           c.Router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Duration(c.Config.Server.ReadTimeout) * time.Second,
		WriteTimeout:      time.Duration(c.Config.Server.WriteTimeout) * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving http",
			"addr", addr,
			"rpc", "/rpc",
			"mcp", "/mcp",
			"sse", "/sse",
			"ws", "/ws",
			"docs", "/docs")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// The parent context is already cancelled, shutdown needs a fresh one.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	logger.Info("shutting down http server")
	return httpServer.Shutdown(shutdownCtx)
}
