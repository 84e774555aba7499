package storage

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/apperrors"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/retry"
	"github.com/salacoste/openapi-mcp-swagger-sub001/pkg/types"
)

// RetryableStore wraps a Store with bounded retries on transient failures.
// Lock contention and connection drops are retried with backoff; once the
// attempts are exhausted the error surfaces as store-unavailable. Domain
// outcomes (not found, invalid argument) pass through untouched.
type RetryableStore struct {
	store   Store
	retrier *retry.Retrier
}

// NewRetryableStore wraps a store. A nil config uses the storage defaults.
func NewRetryableStore(store Store, config *retry.Config) *RetryableStore {
	if config == nil {
		config = DefaultRetryConfig(3)
	}
	return &RetryableStore{store: store, retrier: retry.New(config)}
}

// DefaultRetryConfig builds the standard store retry policy with the given
// attempt budget.
func DefaultRetryConfig(attempts int) *retry.Config {
	if attempts < 1 {
		attempts = 1
	}
	return &retry.Config{
		MaxAttempts:     attempts,
		InitialDelay:    100 * time.Millisecond,
		MaxDelay:        2 * time.Second,
		Multiplier:      2.0,
		RandomizeFactor: 0.1,
		RetryIf:         isTransientStoreError,
	}
}

// isTransientStoreError reports whether an error is worth another attempt.
func isTransientStoreError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	switch apperrors.KindOf(err) {
	case apperrors.KindNotFound, apperrors.KindInvalidArgument, apperrors.KindInvalidSpecification:
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}

	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"database is locked",
		"database table is locked",
		"database schema is locked",
		"connection refused",
		"connection reset",
		"broken pipe",
		"i/o timeout",
		"too many connections",
		"the database system is starting up",
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

func (r *RetryableStore) finish(operation string, result *retry.Result) error {
	if result.Err == nil {
		return nil
	}
	if isTransientStoreError(result.Err) {
		return apperrors.NewStoreUnavailable(
			fmt.Sprintf("%s failed after %d attempts", operation, result.Attempts), result.Err)
	}
	return result.Err
}

// ReplaceAPI retries the whole transaction; SQLite lock contention during an
// ingest resolves on a later attempt once the competing writer finishes.
func (r *RetryableStore) ReplaceAPI(ctx context.Context, api *types.API, endpoints []*types.Endpoint, schemas []*types.Schema, categories []*types.Category) (*ReplaceResult, error) {
	var out *ReplaceResult
	result := r.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = r.store.ReplaceAPI(ctx, api, endpoints, schemas, categories)
		return err
	})
	if err := r.finish("replace api", result); err != nil {
		return nil, err
	}
	return out, nil
}

// ListAPIs retries transient failures.
func (r *RetryableStore) ListAPIs(ctx context.Context) ([]*types.API, error) {
	var out []*types.API
	result := r.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = r.store.ListAPIs(ctx)
		return err
	})
	if err := r.finish("list apis", result); err != nil {
		return nil, err
	}
	return out, nil
}

// GetAPI retries transient failures.
func (r *RetryableStore) GetAPI(ctx context.Context, id int64) (*types.API, error) {
	var out *types.API
	result := r.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = r.store.GetAPI(ctx, id)
		return err
	})
	if err := r.finish("get api", result); err != nil {
		return nil, err
	}
	return out, nil
}

// GetAPIByName retries transient failures.
func (r *RetryableStore) GetAPIByName(ctx context.Context, name string) (*types.API, error) {
	var out *types.API
	result := r.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = r.store.GetAPIByName(ctx, name)
		return err
	})
	if err := r.finish("get api by name", result); err != nil {
		return nil, err
	}
	return out, nil
}

// SearchEndpoints retries transient failures.
func (r *RetryableStore) SearchEndpoints(ctx context.Context, apiID int64, query *SearchQuery) ([]*types.EndpointSummary, int, error) {
	var (
		out   []*types.EndpointSummary
		total int
	)
	result := r.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		out, total, err = r.store.SearchEndpoints(ctx, apiID, query)
		return err
	})
	if err := r.finish("search endpoints", result); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// GetEndpointByID retries transient failures.
func (r *RetryableStore) GetEndpointByID(ctx context.Context, apiID, endpointID int64) (*types.Endpoint, error) {
	var out *types.Endpoint
	result := r.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = r.store.GetEndpointByID(ctx, apiID, endpointID)
		return err
	})
	if err := r.finish("get endpoint", result); err != nil {
		return nil, err
	}
	return out, nil
}

// GetEndpointsByPath retries transient failures.
func (r *RetryableStore) GetEndpointsByPath(ctx context.Context, apiID int64, path string) ([]*types.Endpoint, error) {
	var out []*types.Endpoint
	result := r.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = r.store.GetEndpointsByPath(ctx, apiID, path)
		return err
	})
	if err := r.finish("get endpoints by path", result); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSchemaByName retries transient failures.
func (r *RetryableStore) GetSchemaByName(ctx context.Context, apiID int64, name string) (*types.Schema, error) {
	var out *types.Schema
	result := r.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = r.store.GetSchemaByName(ctx, apiID, name)
		return err
	})
	if err := r.finish("get schema", result); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSchemasByNames retries transient failures.
func (r *RetryableStore) GetSchemasByNames(ctx context.Context, apiID int64, names []string) (map[string]*types.Schema, error) {
	var out map[string]*types.Schema
	result := r.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = r.store.GetSchemasByNames(ctx, apiID, names)
		return err
	})
	if err := r.finish("get schemas", result); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSchemaUsage retries transient failures.
func (r *RetryableStore) GetSchemaUsage(ctx context.Context, apiID int64, name string) ([]types.SchemaUsage, error) {
	var out []types.SchemaUsage
	result := r.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = r.store.GetSchemaUsage(ctx, apiID, name)
		return err
	})
	if err := r.finish("get schema usage", result); err != nil {
		return nil, err
	}
	return out, nil
}

// ListCategories retries transient failures.
func (r *RetryableStore) ListCategories(ctx context.Context, apiID int64, includeEmpty bool) ([]*types.Category, error) {
	var out []*types.Category
	result := r.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = r.store.ListCategories(ctx, apiID, includeEmpty)
		return err
	})
	if err := r.finish("list categories", result); err != nil {
		return nil, err
	}
	return out, nil
}

// CountEndpoints retries transient failures.
func (r *RetryableStore) CountEndpoints(ctx context.Context, apiID int64) (int, error) {
	var out int
	result := r.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = r.store.CountEndpoints(ctx, apiID)
		return err
	})
	if err := r.finish("count endpoints", result); err != nil {
		return 0, err
	}
	return out, nil
}

// Counts retries transient failures.
func (r *RetryableStore) Counts(ctx context.Context, apiID int64) (*Counts, error) {
	var out *Counts
	result := r.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = r.store.Counts(ctx, apiID)
		return err
	})
	if err := r.finish("counts", result); err != nil {
		return nil, err
	}
	return out, nil
}

// SchemaVersion retries transient failures.
func (r *RetryableStore) SchemaVersion(ctx context.Context) (int, error) {
	var out int
	result := r.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = r.store.SchemaVersion(ctx)
		return err
	})
	if err := r.finish("schema version", result); err != nil {
		return 0, err
	}
	return out, nil
}

// Ping retries transient failures.
func (r *RetryableStore) Ping(ctx context.Context) error {
	result := r.retrier.Do(ctx, func(ctx context.Context) error {
		return r.store.Ping(ctx)
	})
	return r.finish("ping", result)
}

// Close closes the underlying store without retrying.
func (r *RetryableStore) Close() error {
	return r.store.Close()
}
