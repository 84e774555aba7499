// Package di wires the service graph in dependency order.
package di

import (
	"context"
	"fmt"
	"time"

	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/api"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/circuitbreaker"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/config"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/docs"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/logging"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/mcp"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/ratelimit"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/render"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/search"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/storage"
)

// Container holds the application dependencies. Fields are populated by
// NewContainer and stay fixed for the process lifetime.
type Container struct {
	Config   *config.Config
	Logger   logging.Logger
	Store    storage.Store
	Search   *search.Service
	Renderer *render.Renderer
	MCP      *mcp.Server
	Site     *docs.Site
	Limiter  ratelimit.Limiter
	Router   *api.Router
}

// NewContainer builds the full service graph on top of an already ingested
// data directory. The context bounds storage open and migrations.
func NewContainer(ctx context.Context, cfg *config.Config, logger logging.Logger) (*Container, error) {
	c := &Container{
		Config: cfg,
		Logger: logger,
	}

	// Initialize in dependency order.
	if err := c.initializeStorage(ctx); err != nil {
		return nil, fmt.Errorf("initialize storage: %w", err)
	}
	c.initializeServices()
	c.initializeTransport()

	return c, nil
}

// initializeStorage opens the configured backend and layers the reliability
// wrappers on top: retry first, circuit breaker outermost so exhausted
// retries count as a single trip.
func (c *Container) initializeStorage(ctx context.Context) error {
	base, err := storage.Open(ctx, c.Config, c.Logger)
	if err != nil {
		return err
	}

	retryStore := storage.NewRetryableStore(base, storage.DefaultRetryConfig(c.Config.Storage.RetryAttempts))
	c.Store = storage.NewCircuitBreakerStore(retryStore, breakerConfig(c.Config.Breaker))
	return nil
}

func (c *Container) initializeServices() {
	c.Search = search.NewService(c.Store, c.Config.Search, c.Logger)
	c.Renderer = render.NewRenderer(c.Store, c.Logger)
	c.MCP = mcp.NewServer(c.Store, c.Search, c.Renderer, c.Config, c.Logger)
}

// initializeTransport builds the HTTP surface. A broken rate limiter is
// logged and skipped rather than failing startup: stdio mode never uses it
// and http mode degrades to unlimited.
func (c *Container) initializeTransport() {
	c.Site = docs.NewSite(c.Search, c.Logger)

	if c.Config.RateLimit.Enabled {
		limiter, err := ratelimit.New(c.Config.RateLimit)
		if err != nil {
			c.Logger.Warn("rate limiter unavailable, serving without limits", "error", err.Error())
		} else {
			c.Limiter = limiter
		}
	}

	c.Router = api.NewRouter(c.Config, c.MCP, c.Store, c.Site, c.Limiter, c.Logger)
}

func breakerConfig(cfg config.BreakerConfig) *circuitbreaker.Config {
	out := circuitbreaker.DefaultConfig()
	if cfg.FailureThreshold > 0 {
		out.FailureThreshold = cfg.FailureThreshold
	}
	if cfg.SuccessThreshold > 0 {
		out.SuccessThreshold = cfg.SuccessThreshold
	}
	if cfg.OpenSeconds > 0 {
		out.OpenTimeout = time.Duration(cfg.OpenSeconds) * time.Second
	}
	return out
}

// HealthCheck reports whether the backing store is reachable.
func (c *Container) HealthCheck(ctx context.Context) error {
	if err := c.Store.Ping(ctx); err != nil {
		return fmt.Errorf("store ping: %w", err)
	}
	return nil
}

// Shutdown releases held resources. The store closes last so requests
// draining through the router still see a live database.
func (c *Container) Shutdown() error {
	if c.Limiter != nil {
		if err := c.Limiter.Close(); err != nil {
			c.Logger.Warn("close rate limiter", "error", err.Error())
		}
	}
	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			return fmt.Errorf("close store: %w", err)
		}
	}
	return nil
}
