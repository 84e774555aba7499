// Package storage persists ingested specifications and serves the read-only
// repositories behind search, schema resolution, and the category catalog.
// Two backends implement the same Store interface: an embedded SQLite database
// with an FTS5 index (the default, one directory per specification) and
// PostgreSQL with a tsvector search column. Writes are single-writer and fully
// transactional; a re-ingest replaces every row of the affected API or leaves
// the prior contents intact.
package storage

import (
	"context"
	"fmt"

	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/config"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/logging"
	"github.com/salacoste/openapi-mcp-swagger-sub001/pkg/types"
)

// DatabaseFile is the relational database file created inside the output
// directory of an ingest.
const DatabaseFile = "swagger_mcp.db"

// SchemaVersionKey is the api_metadata row holding the migration version.
const SchemaVersionKey = "schema_version"

// SearchQuery is the storage-level endpoint search. Validation and filter
// normalization happen in the search service; by the time a query reaches a
// backend the method list is upper-cased and at most one of Category and
// CategoryGroup is set.
type SearchQuery struct {
	// Keywords is the raw keyword string; empty means enumerate by filters
	// only, ordered by (path, method).
	Keywords string
	// Methods restricts results to the given HTTP methods.
	Methods []string
	// Category filters by category name, case-insensitive.
	Category string
	// CategoryTag, when non-empty, additionally requires the stored tag
	// list to contain this exact tag. Clearing it drops the second
	// condition and leaves plain name equality.
	CategoryTag string
	// CategoryGroup filters by category group, case-insensitive.
	CategoryGroup string
	Limit         int
	Offset        int
}

// ReplaceResult reports the outcome of a wholesale API replacement.
type ReplaceResult struct {
	APIID    int64
	Replaced bool
}

// Counts summarizes the persisted rows of one API.
type Counts struct {
	Endpoints  int
	Schemas    int
	Categories int
}

// Store is the persistence contract shared by both backends and by the
// reliability wrappers layered on top of them.
type Store interface {
	// ReplaceAPI persists an API and all of its endpoints, schemas, and
	// categories in a single transaction. An existing API with the same
	// name is deleted first, cascading to its rows and index entries.
	ReplaceAPI(ctx context.Context, api *types.API, endpoints []*types.Endpoint, schemas []*types.Schema, categories []*types.Category) (*ReplaceResult, error)

	ListAPIs(ctx context.Context) ([]*types.API, error)
	GetAPI(ctx context.Context, id int64) (*types.API, error)
	GetAPIByName(ctx context.Context, name string) (*types.API, error)

	// SearchEndpoints returns one page of matches plus the total count
	// before pagination.
	SearchEndpoints(ctx context.Context, apiID int64, query *SearchQuery) ([]*types.EndpointSummary, int, error)
	GetEndpointByID(ctx context.Context, apiID, endpointID int64) (*types.Endpoint, error)
	GetEndpointsByPath(ctx context.Context, apiID int64, path string) ([]*types.Endpoint, error)

	GetSchemaByName(ctx context.Context, apiID int64, name string) (*types.Schema, error)
	GetSchemasByNames(ctx context.Context, apiID int64, names []string) (map[string]*types.Schema, error)
	// GetSchemaUsage lists the endpoints that directly reference the named
	// component in a request body or response.
	GetSchemaUsage(ctx context.Context, apiID int64, name string) ([]types.SchemaUsage, error)

	ListCategories(ctx context.Context, apiID int64, includeEmpty bool) ([]*types.Category, error)
	CountEndpoints(ctx context.Context, apiID int64) (int, error)

	Counts(ctx context.Context, apiID int64) (*Counts, error)
	SchemaVersion(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

// Open creates the backend selected by the configuration, running migrations
// before returning. The reliability wrappers are layered by the caller.
func Open(ctx context.Context, cfg *config.Config, logger logging.Logger) (Store, error) {
	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		return OpenPostgres(ctx, cfg, logger)
	case config.BackendSQLite:
		return OpenSQLite(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
