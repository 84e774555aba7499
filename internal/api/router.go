// Package api serves the retrieval plane over HTTP: MCP JSON-RPC at /mcp,
// the four retrieval methods as plain JSON-RPC at /rpc, an SSE heartbeat
// stream, a WebSocket bridge, the rendered documentation pages, and health.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/config"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/docs"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/logging"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/mcp"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/ratelimit"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/storage"
)

const maxRequestBody = 10 * 1024 * 1024

// Router is the HTTP surface over one MCP server instance.
type Router struct {
	cfg        *config.Config
	mux        *chi.Mux
	mcp        *mcp.Server
	dispatcher *mcp.Dispatcher
	store      storage.Store
	site       *docs.Site
	limiter    ratelimit.Limiter
	inFlight   chan struct{}
	logger     logging.Logger
}

// NewRouter wires the transport endpoints and middleware stack. limiter may
// be nil when rate limiting is disabled.
func NewRouter(cfg *config.Config, mcpServer *mcp.Server, store storage.Store, site *docs.Site, limiter ratelimit.Limiter, logger logging.Logger) *Router {
	r := &Router{
		cfg:        cfg,
		mux:        chi.NewRouter(),
		mcp:        mcpServer,
		dispatcher: mcp.NewDispatcher(mcpServer, logger),
		store:      store,
		site:       site,
		limiter:    limiter,
		inFlight:   make(chan struct{}, cfg.Server.MaxInFlight),
		logger:     logger.WithComponent("http"),
	}
	r.setupMiddleware()
	r.setupRoutes()
	return r
}

// Handler returns the assembled HTTP handler.
func (r *Router) Handler() http.Handler {
	return r.mux
}

func (r *Router) setupMiddleware() {
	r.mux.Use(chimiddleware.Recoverer)
	r.mux.Use(chimiddleware.RequestSize(maxRequestBody))
	r.mux.Use(chimiddleware.Heartbeat("/ping"))
	r.mux.Use(r.requestLogger)
	r.mux.Use(r.cors)
}

func (r *Router) setupRoutes() {
	// Health stays outside auth and rate limiting so load balancers can
	// always reach it.
	r.mux.Get("/health", r.handleHealth)

	r.mux.Group(func(g chi.Router) {
		if r.cfg.Auth.APIKeyHash != "" {
			g.Use(r.apiKeyAuth)
		}
		if r.limiter != nil {
			g.Use(r.rateLimit)
		}
		g.Use(r.concurrencyLimit)

		g.Post("/mcp", r.handleMCP)
		g.Post("/rpc", r.handleRPC)
		g.Get("/sse", r.handleSSEStream)
		g.Post("/sse", r.handleMCP)
		g.Get("/ws", r.handleWebSocket)
		g.Get("/docs", r.site.ServeHTTP)
		g.Get("/docs/*", r.site.ServeHTTP)
	})
}
