package storage

import (
	"context"
	"errors"

	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/apperrors"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/circuitbreaker"
	"github.com/salacoste/openapi-mcp-swagger-sub001/pkg/types"
)

// CircuitBreakerStore guards a Store with one breaker per operation kind, so
// a failing search path does not block ingests and vice versa. An open
// circuit fails fast with store-unavailable instead of touching the database.
type CircuitBreakerStore struct {
	store    Store
	breakers *circuitbreaker.Registry
}

// NewCircuitBreakerStore wraps a store. A nil config uses the registry
// defaults with domain rejections excluded from trip accounting.
func NewCircuitBreakerStore(store Store, config *circuitbreaker.Config) *CircuitBreakerStore {
	if config == nil {
		config = circuitbreaker.DefaultConfig()
	}
	if config.ShouldTrip == nil {
		config.ShouldTrip = shouldTripStore
	}
	return &CircuitBreakerStore{
		store:    store,
		breakers: circuitbreaker.NewRegistry(config),
	}
}

// shouldTripStore keeps expected outcomes from opening the circuit. A miss
// or a bad request says nothing about database health.
func shouldTripStore(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	switch apperrors.KindOf(err) {
	case apperrors.KindNotFound, apperrors.KindInvalidArgument, apperrors.KindInvalidSpecification:
		return false
	}
	return true
}

func (c *CircuitBreakerStore) execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	err := c.breakers.Execute(ctx, operation, fn)
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyConcurrentRequests) {
		return apperrors.NewStoreUnavailable("storage circuit open for "+operation, err)
	}
	return err
}

// BreakerStats exposes per-operation breaker counters for health reporting.
func (c *CircuitBreakerStore) BreakerStats() map[string]circuitbreaker.Stats {
	return c.breakers.Stats()
}

func (c *CircuitBreakerStore) ReplaceAPI(ctx context.Context, api *types.API, endpoints []*types.Endpoint, schemas []*types.Schema, categories []*types.Category) (*ReplaceResult, error) {
	var out *ReplaceResult
	err := c.execute(ctx, "replace_api", func(ctx context.Context) error {
		var err error
		out, err = c.store.ReplaceAPI(ctx, api, endpoints, schemas, categories)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CircuitBreakerStore) ListAPIs(ctx context.Context) ([]*types.API, error) {
	var out []*types.API
	err := c.execute(ctx, "list_apis", func(ctx context.Context) error {
		var err error
		out, err = c.store.ListAPIs(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CircuitBreakerStore) GetAPI(ctx context.Context, id int64) (*types.API, error) {
	var out *types.API
	err := c.execute(ctx, "get_api", func(ctx context.Context) error {
		var err error
		out, err = c.store.GetAPI(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CircuitBreakerStore) GetAPIByName(ctx context.Context, name string) (*types.API, error) {
	var out *types.API
	err := c.execute(ctx, "get_api", func(ctx context.Context) error {
		var err error
		out, err = c.store.GetAPIByName(ctx, name)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CircuitBreakerStore) SearchEndpoints(ctx context.Context, apiID int64, query *SearchQuery) ([]*types.EndpointSummary, int, error) {
	var (
		out   []*types.EndpointSummary
		total int
	)
	err := c.execute(ctx, "search_endpoints", func(ctx context.Context) error {
		var err error
		out, total, err = c.store.SearchEndpoints(ctx, apiID, query)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (c *CircuitBreakerStore) GetEndpointByID(ctx context.Context, apiID, endpointID int64) (*types.Endpoint, error) {
	var out *types.Endpoint
	err := c.execute(ctx, "get_endpoint", func(ctx context.Context) error {
		var err error
		out, err = c.store.GetEndpointByID(ctx, apiID, endpointID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CircuitBreakerStore) GetEndpointsByPath(ctx context.Context, apiID int64, path string) ([]*types.Endpoint, error) {
	var out []*types.Endpoint
	err := c.execute(ctx, "get_endpoint", func(ctx context.Context) error {
		var err error
		out, err = c.store.GetEndpointsByPath(ctx, apiID, path)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CircuitBreakerStore) GetSchemaByName(ctx context.Context, apiID int64, name string) (*types.Schema, error) {
	var out *types.Schema
	err := c.execute(ctx, "get_schema", func(ctx context.Context) error {
		var err error
		out, err = c.store.GetSchemaByName(ctx, apiID, name)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CircuitBreakerStore) GetSchemasByNames(ctx context.Context, apiID int64, names []string) (map[string]*types.Schema, error) {
	var out map[string]*types.Schema
	err := c.execute(ctx, "get_schema", func(ctx context.Context) error {
		var err error
		out, err = c.store.GetSchemasByNames(ctx, apiID, names)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CircuitBreakerStore) GetSchemaUsage(ctx context.Context, apiID int64, name string) ([]types.SchemaUsage, error) {
	var out []types.SchemaUsage
	err := c.execute(ctx, "get_schema", func(ctx context.Context) error {
		var err error
		out, err = c.store.GetSchemaUsage(ctx, apiID, name)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CircuitBreakerStore) ListCategories(ctx context.Context, apiID int64, includeEmpty bool) ([]*types.Category, error) {
	var out []*types.Category
	err := c.execute(ctx, "list_categories", func(ctx context.Context) error {
		var err error
		out, err = c.store.ListCategories(ctx, apiID, includeEmpty)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CircuitBreakerStore) CountEndpoints(ctx context.Context, apiID int64) (int, error) {
	var out int
	err := c.execute(ctx, "list_categories", func(ctx context.Context) error {
		var err error
		out, err = c.store.CountEndpoints(ctx, apiID)
		return err
	})
	if err != nil {
		return 0, err
	}
	return out, nil
}

func (c *CircuitBreakerStore) Counts(ctx context.Context, apiID int64) (*Counts, error) {
	var out *Counts
	err := c.execute(ctx, "list_categories", func(ctx context.Context) error {
		var err error
		out, err = c.store.Counts(ctx, apiID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CircuitBreakerStore) SchemaVersion(ctx context.Context) (int, error) {
	var out int
	err := c.execute(ctx, "ping", func(ctx context.Context) error {
		var err error
		out, err = c.store.SchemaVersion(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	return out, nil
}

func (c *CircuitBreakerStore) Ping(ctx context.Context) error {
	return c.execute(ctx, "ping", func(ctx context.Context) error {
		return c.store.Ping(ctx)
	})
}

func (c *CircuitBreakerStore) Close() error {
	return c.store.Close()
}
