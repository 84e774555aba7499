package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/apperrors"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/config"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/logging"
	"github.com/salacoste/openapi-mcp-swagger-sub001/pkg/types"
)

// PostgresStore is the server-backed alternative to SQLite. Full-text search
// uses a weighted tsvector column maintained after each ingest; ingests are
// serialized per API name with an advisory transaction lock.
type PostgresStore struct {
	db     *sql.DB
	logger logging.Logger
}

var postgresDialect = dialect{
	metadataDDL:   `CREATE TABLE IF NOT EXISTS api_metadata (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
	selectVersion: `SELECT value FROM api_metadata WHERE key = $1`,
	upsertVersion: `INSERT INTO api_metadata (key, value) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
}

var postgresMigrations = []migration{
	{
		version: 1,
		name:    "core tables",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS apis (
				id BIGSERIAL PRIMARY KEY,
				name TEXT NOT NULL UNIQUE,
				title TEXT NOT NULL DEFAULT '',
				version TEXT NOT NULL DEFAULT '',
				description TEXT NOT NULL DEFAULT '',
				digest TEXT NOT NULL DEFAULT '',
				servers_json TEXT NOT NULL DEFAULT '[]',
				security_json TEXT NOT NULL DEFAULT '{}',
				created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,
			`CREATE TABLE IF NOT EXISTS endpoints (
				id BIGSERIAL PRIMARY KEY,
				api_id BIGINT NOT NULL REFERENCES apis(id) ON DELETE CASCADE,
				path TEXT NOT NULL,
				method TEXT NOT NULL,
				operation_id TEXT NOT NULL DEFAULT '',
				summary TEXT NOT NULL DEFAULT '',
				description TEXT NOT NULL DEFAULT '',
				tags_json TEXT NOT NULL DEFAULT '[]',
				tags_text TEXT NOT NULL DEFAULT '',
				deprecated BOOLEAN NOT NULL DEFAULT FALSE,
				category TEXT NOT NULL DEFAULT '',
				category_group TEXT NOT NULL DEFAULT '',
				category_display_name TEXT NOT NULL DEFAULT '',
				parameters_json TEXT NOT NULL DEFAULT '[]',
				request_body_json TEXT,
				responses_json TEXT NOT NULL DEFAULT '{}',
				security_json TEXT,
				search_vector tsvector,
				UNIQUE(api_id, path, method)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_endpoints_api ON endpoints(api_id)`,
			`CREATE INDEX IF NOT EXISTS idx_endpoints_category ON endpoints(api_id, category)`,
			`CREATE INDEX IF NOT EXISTS idx_endpoints_method ON endpoints(api_id, method)`,
			`CREATE INDEX IF NOT EXISTS idx_endpoints_search ON endpoints USING GIN (search_vector)`,
			`CREATE TABLE IF NOT EXISTS schemas (
				id BIGSERIAL PRIMARY KEY,
				api_id BIGINT NOT NULL REFERENCES apis(id) ON DELETE CASCADE,
				name TEXT NOT NULL,
				body_json TEXT NOT NULL DEFAULT '{}',
				references_json TEXT NOT NULL DEFAULT '[]',
				UNIQUE(api_id, name)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_schemas_api ON schemas(api_id)`,
			`CREATE TABLE IF NOT EXISTS endpoint_categories (
				id BIGSERIAL PRIMARY KEY,
				api_id BIGINT NOT NULL REFERENCES apis(id) ON DELETE CASCADE,
				name TEXT NOT NULL,
				display_name TEXT NOT NULL DEFAULT '',
				description TEXT NOT NULL DEFAULT '',
				category_group TEXT NOT NULL DEFAULT '',
				endpoint_count INTEGER NOT NULL DEFAULT 0,
				methods_json TEXT NOT NULL DEFAULT '[]',
				UNIQUE(api_id, name)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_categories_api ON endpoint_categories(api_id)`,
			`CREATE TABLE IF NOT EXISTS endpoint_schema_refs (
				id BIGSERIAL PRIMARY KEY,
				api_id BIGINT NOT NULL REFERENCES apis(id) ON DELETE CASCADE,
				endpoint_id BIGINT NOT NULL REFERENCES endpoints(id) ON DELETE CASCADE,
				schema_name TEXT NOT NULL,
				usage TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_schema_refs_lookup ON endpoint_schema_refs(api_id, schema_name)`,
		},
	},
}

// OpenPostgres connects with the configured DSN and applies pending
// migrations.
func OpenPostgres(ctx context.Context, cfg *config.Config, logger logging.Logger) (*PostgresStore, error) {
	if cfg.Storage.PostgresDSN == "" {
		return nil, fmt.Errorf("postgres backend selected but no DSN configured")
	}
	db, err := sql.Open("postgres", cfg.Storage.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	pool := clampReadPool(cfg.Storage.ReadPoolSize)
	db.SetMaxOpenConns(pool + 1)
	db.SetMaxIdleConns(pool / 2)
	db.SetConnMaxLifetime(time.Hour)

	s := &PostgresStore{db: db, logger: logger.WithComponent("storage.postgres")}
	if err := runMigrations(ctx, db, postgresDialect, postgresMigrations, s.logger); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s.logger.Debug("opened postgres store", "pool", pool+1)
	return s, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error { return s.db.Close() }

// Ping verifies the connection answers.
func (s *PostgresStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// SchemaVersion reports the applied migration version.
func (s *PostgresStore) SchemaVersion(ctx context.Context) (int, error) {
	return readSchemaVersion(ctx, s.db, postgresDialect)
}

// ReplaceAPI persists the full record set of one API in a single transaction,
// serialized against concurrent ingests of the same name by an advisory lock.
func (s *PostgresStore) ReplaceAPI(ctx context.Context, api *types.API, endpoints []*types.Endpoint, schemas []*types.Schema, categories []*types.Category) (*ReplaceResult, error) {
	started := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin replace: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, api.Name); err != nil {
		return nil, fmt.Errorf("acquire ingest lock: %w", err)
	}

	var oldID int64
	replaced := true
	err = tx.QueryRowContext(ctx, `SELECT id FROM apis WHERE name = $1`, api.Name).Scan(&oldID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		replaced = false
	case err != nil:
		return nil, fmt.Errorf("lookup existing api: %w", err)
	default:
		if _, err := tx.ExecContext(ctx, `DELETE FROM apis WHERE id = $1`, oldID); err != nil {
			return nil, fmt.Errorf("delete existing api: %w", err)
		}
	}

	apiID, err := s.insertAPI(ctx, tx, api)
	if err != nil {
		return nil, err
	}
	if err := s.insertEndpoints(ctx, tx, apiID, endpoints); err != nil {
		return nil, err
	}
	if err := s.insertSchemas(ctx, tx, apiID, schemas); err != nil {
		return nil, err
	}
	if err := s.insertCategories(ctx, tx, apiID, categories); err != nil {
		return nil, err
	}
	if err := s.insertSchemaRefs(ctx, tx, apiID, endpoints); err != nil {
		return nil, err
	}

	// recompute the weighted search vector from the stored rows
	if _, err := tx.ExecContext(ctx, `
		UPDATE endpoints SET search_vector =
			setweight(to_tsvector('english', coalesce(path, '')), 'A') ||
			setweight(to_tsvector('english', coalesce(summary, '')), 'B') ||
			setweight(to_tsvector('english', coalesce(description, '')), 'C') ||
			setweight(to_tsvector('english', coalesce(operation_id, '') || ' ' || coalesce(tags_text, '') || ' ' || coalesce(category, '')), 'D')
		WHERE api_id = $1`, apiID); err != nil {
		return nil, fmt.Errorf("rebuild search vectors: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit replace: %w", err)
	}

	s.logger.Info("replaced api",
		"api", api.Name,
		"endpoints", len(endpoints),
		"schemas", len(schemas),
		"categories", len(categories),
		"replaced", replaced,
		"took", time.Since(started).String())
	return &ReplaceResult{APIID: apiID, Replaced: replaced}, nil
}

func (s *PostgresStore) insertAPI(ctx context.Context, tx *sql.Tx, api *types.API) (int64, error) {
	serversJSON, err := jsonArray(api.Servers)
	if err != nil {
		return 0, fmt.Errorf("marshal servers: %w", err)
	}
	securityJSON, err := json.Marshal(api.Security)
	if err != nil {
		return 0, fmt.Errorf("marshal security: %w", err)
	}
	if api.CreatedAt.IsZero() {
		api.CreatedAt = time.Now().UTC()
	}

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO apis (name, title, version, description, digest, servers_json, security_json, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		api.Name, api.Title, api.Version, api.Description, api.Digest,
		serversJSON, string(securityJSON), api.CreatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert api: %w", err)
	}
	api.ID = id
	return id, nil
}

func (s *PostgresStore) insertEndpoints(ctx context.Context, tx *sql.Tx, apiID int64, endpoints []*types.Endpoint) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO endpoints (api_id, path, method, operation_id, summary, description,
			tags_json, tags_text, deprecated, category, category_group, category_display_name,
			parameters_json, request_body_json, responses_json, security_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id`)
	if err != nil {
		return fmt.Errorf("prepare endpoint insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, ep := range endpoints {
		tagsJSON, err := jsonArray(ep.Tags)
		if err != nil {
			return fmt.Errorf("marshal tags for %s %s: %w", ep.Method, ep.Path, err)
		}
		paramsJSON := "[]"
		if len(ep.Parameters) > 0 {
			b, err := json.Marshal(ep.Parameters)
			if err != nil {
				return fmt.Errorf("marshal parameters for %s %s: %w", ep.Method, ep.Path, err)
			}
			paramsJSON = string(b)
		}
		var bodyJSON sql.NullString
		if ep.RequestBody != nil {
			b, err := json.Marshal(ep.RequestBody)
			if err != nil {
				return fmt.Errorf("marshal request body for %s %s: %w", ep.Method, ep.Path, err)
			}
			bodyJSON = sql.NullString{String: string(b), Valid: true}
		}
		responsesJSON := "{}"
		if len(ep.Responses) > 0 {
			b, err := json.Marshal(ep.Responses)
			if err != nil {
				return fmt.Errorf("marshal responses for %s %s: %w", ep.Method, ep.Path, err)
			}
			responsesJSON = string(b)
		}
		var securityJSON sql.NullString
		if ep.Security != nil {
			b, err := json.Marshal(ep.Security)
			if err != nil {
				return fmt.Errorf("marshal security for %s %s: %w", ep.Method, ep.Path, err)
			}
			securityJSON = sql.NullString{String: string(b), Valid: true}
		}

		var id int64
		err = stmt.QueryRowContext(ctx,
			apiID, ep.Path, ep.Method, ep.OperationID, ep.Summary, ep.Description,
			tagsJSON, strings.Join(ep.Tags, " "), ep.Deprecated, ep.Category, ep.CategoryGroup,
			ep.CategoryDisplayName, paramsJSON, bodyJSON, responsesJSON, securityJSON).Scan(&id)
		if err != nil {
			return fmt.Errorf("insert endpoint %s %s: %w", ep.Method, ep.Path, err)
		}
		ep.ID = id
		ep.APIID = apiID
	}
	return nil
}

func (s *PostgresStore) insertSchemas(ctx context.Context, tx *sql.Tx, apiID int64, schemas []*types.Schema) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO schemas (api_id, name, body_json, references_json) VALUES ($1, $2, $3, $4) RETURNING id`)
	if err != nil {
		return fmt.Errorf("prepare schema insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, sc := range schemas {
		body := "{}"
		if len(sc.Body) > 0 {
			body = string(sc.Body)
		}
		refsJSON, err := jsonArray(sc.References)
		if err != nil {
			return fmt.Errorf("marshal references for %s: %w", sc.Name, err)
		}
		var id int64
		if err := stmt.QueryRowContext(ctx, apiID, sc.Name, body, refsJSON).Scan(&id); err != nil {
			return fmt.Errorf("insert schema %s: %w", sc.Name, err)
		}
		sc.ID = id
		sc.APIID = apiID
	}
	return nil
}

func (s *PostgresStore) insertCategories(ctx context.Context, tx *sql.Tx, apiID int64, categories []*types.Category) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO endpoint_categories (api_id, name, display_name, description, category_group, endpoint_count, methods_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`)
	if err != nil {
		return fmt.Errorf("prepare category insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, cat := range categories {
		methodsJSON, err := jsonArray(cat.Methods)
		if err != nil {
			return fmt.Errorf("marshal methods for %s: %w", cat.Name, err)
		}
		var id int64
		if err := stmt.QueryRowContext(ctx, apiID, cat.Name, cat.DisplayName, cat.Description,
			cat.Group, cat.EndpointCount, methodsJSON).Scan(&id); err != nil {
			return fmt.Errorf("insert category %s: %w", cat.Name, err)
		}
		cat.ID = id
		cat.APIID = apiID
	}
	return nil
}

func (s *PostgresStore) insertSchemaRefs(ctx context.Context, tx *sql.Tx, apiID int64, endpoints []*types.Endpoint) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO endpoint_schema_refs (api_id, endpoint_id, schema_name, usage) VALUES ($1, $2, $3, $4)`)
	if err != nil {
		return fmt.Errorf("prepare schema ref insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, ep := range endpoints {
		if ep.RequestBody != nil && ep.RequestBody.SchemaRef != "" {
			if _, err := stmt.ExecContext(ctx, apiID, ep.ID, ep.RequestBody.SchemaRef, types.UsageRequest); err != nil {
				return fmt.Errorf("insert request ref for %s %s: %w", ep.Method, ep.Path, err)
			}
		}
		seen := make(map[string]bool)
		for _, resp := range ep.Responses {
			if resp.SchemaRef == "" || seen[resp.SchemaRef] {
				continue
			}
			seen[resp.SchemaRef] = true
			if _, err := stmt.ExecContext(ctx, apiID, ep.ID, resp.SchemaRef, types.UsageResponse); err != nil {
				return fmt.Errorf("insert response ref for %s %s: %w", ep.Method, ep.Path, err)
			}
		}
	}
	return nil
}

// pgArgs numbers placeholders while collecting their values.
type pgArgs struct {
	values []interface{}
}

func (a *pgArgs) add(v interface{}) string {
	a.values = append(a.values, v)
	return fmt.Sprintf("$%d", len(a.values))
}

func (s *PostgresStore) searchConditions(apiID int64, query *SearchQuery, args *pgArgs) []string {
	conds := []string{"e.api_id = " + args.add(apiID)}

	if len(query.Methods) > 0 {
		placeholders := make([]string, len(query.Methods))
		for i, m := range query.Methods {
			placeholders[i] = args.add(m)
		}
		conds = append(conds, fmt.Sprintf("e.method IN (%s)", strings.Join(placeholders, ",")))
	}
	if query.Category != "" {
		conds = append(conds, "LOWER(e.category) = LOWER("+args.add(query.Category)+")")
		if query.CategoryTag != "" {
			conds = append(conds,
				"EXISTS (SELECT 1 FROM jsonb_array_elements_text(e.tags_json::jsonb) AS t(v) WHERE t.v = "+args.add(query.CategoryTag)+")")
		}
	}
	if query.CategoryGroup != "" {
		conds = append(conds, "LOWER(e.category_group) = LOWER("+args.add(query.CategoryGroup)+")")
	}
	return conds
}

// SearchEndpoints runs a ranked tsvector query, or a filter enumeration when
// the keyword string has nothing tokenizable.
func (s *PostgresStore) SearchEndpoints(ctx context.Context, apiID int64, query *SearchQuery) ([]*types.EndpointSummary, int, error) {
	if BuildMatchQuery(query.Keywords) == "" {
		return s.enumerateEndpoints(ctx, apiID, query)
	}

	args := &pgArgs{}
	tsq := "plainto_tsquery('english', " + args.add(query.Keywords) + ")"
	conds := s.searchConditions(apiID, query, args)
	conds = append(conds, "e.search_vector @@ "+tsq)
	where := strings.Join(conds, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM endpoints e WHERE `+where, args.values...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count matches: %w", err)
	}

	listSQL := `SELECT e.id, e.path, e.method, e.summary, e.tags_json, e.category, e.deprecated,
			ts_rank(e.search_vector, ` + tsq + `) AS score
		FROM endpoints e WHERE ` + where + `
		ORDER BY score DESC, e.path, e.method
		LIMIT ` + args.add(query.Limit) + ` OFFSET ` + args.add(query.Offset)
	rows, err := s.db.QueryContext(ctx, listSQL, args.values...)
	if err != nil {
		return nil, 0, fmt.Errorf("search endpoints: %w", err)
	}
	defer func() { _ = rows.Close() }()

	summaries, err := scanSummaries(rows)
	if err != nil {
		return nil, 0, err
	}
	return summaries, total, nil
}

func (s *PostgresStore) enumerateEndpoints(ctx context.Context, apiID int64, query *SearchQuery) ([]*types.EndpointSummary, int, error) {
	args := &pgArgs{}
	where := strings.Join(s.searchConditions(apiID, query, args), " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM endpoints e WHERE `+where, args.values...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count endpoints: %w", err)
	}

	listSQL := `SELECT e.id, e.path, e.method, e.summary, e.tags_json, e.category, e.deprecated, 0.0 AS score
		FROM endpoints e WHERE ` + where + `
		ORDER BY e.path, e.method
		LIMIT ` + args.add(query.Limit) + ` OFFSET ` + args.add(query.Offset)
	rows, err := s.db.QueryContext(ctx, listSQL, args.values...)
	if err != nil {
		return nil, 0, fmt.Errorf("enumerate endpoints: %w", err)
	}
	defer func() { _ = rows.Close() }()

	summaries, err := scanSummaries(rows)
	if err != nil {
		return nil, 0, err
	}
	return summaries, total, nil
}

const pgEndpointColumns = `id, api_id, path, method, operation_id, summary, description,
	tags_json, deprecated, category, category_group, category_display_name,
	parameters_json, request_body_json, responses_json, security_json`

// ListAPIs returns every ingested API, newest first.
func (s *PostgresStore) ListAPIs(ctx context.Context) ([]*types.API, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+apiColumns+` FROM apis ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list apis: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var apis []*types.API
	for rows.Next() {
		api, err := scanAPI(rows)
		if err != nil {
			return nil, err
		}
		apis = append(apis, api)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate apis: %w", err)
	}
	return apis, nil
}

// GetAPI returns one API by surrogate id.
func (s *PostgresStore) GetAPI(ctx context.Context, id int64) (*types.API, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+apiColumns+` FROM apis WHERE id = $1`, id)
	api, err := scanAPI(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("api %d not found", id)
	}
	return api, err
}

// GetAPIByName returns one API by its identifying name.
func (s *PostgresStore) GetAPIByName(ctx context.Context, name string) (*types.API, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+apiColumns+` FROM apis WHERE name = $1`, name)
	api, err := scanAPI(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("api %q not found", name)
	}
	return api, err
}

// GetEndpointByID returns the full endpoint row.
func (s *PostgresStore) GetEndpointByID(ctx context.Context, apiID, endpointID int64) (*types.Endpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+pgEndpointColumns+` FROM endpoints WHERE api_id = $1 AND id = $2`, apiID, endpointID)
	ep, err := scanEndpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("endpoint %d not found", endpointID)
	}
	return ep, err
}

// GetEndpointsByPath returns every method registered on a path, lowest
// surrogate id first.
func (s *PostgresStore) GetEndpointsByPath(ctx context.Context, apiID int64, path string) ([]*types.Endpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+pgEndpointColumns+` FROM endpoints WHERE api_id = $1 AND path = $2 ORDER BY id`, apiID, path)
	if err != nil {
		return nil, fmt.Errorf("endpoints by path: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var endpoints []*types.Endpoint
	for rows.Next() {
		ep, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, ep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate endpoints: %w", err)
	}
	return endpoints, nil
}

// GetSchemaByName returns one component definition.
func (s *PostgresStore) GetSchemaByName(ctx context.Context, apiID int64, name string) (*types.Schema, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, api_id, name, body_json, references_json FROM schemas WHERE api_id = $1 AND name = $2`, apiID, name)
	sc, err := scanSchema(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("schema component %q not found", name)
	}
	return sc, err
}

// GetSchemasByNames returns the named components that exist, keyed by name.
func (s *PostgresStore) GetSchemasByNames(ctx context.Context, apiID int64, names []string) (map[string]*types.Schema, error) {
	out := make(map[string]*types.Schema, len(names))
	if len(names) == 0 {
		return out, nil
	}

	args := &pgArgs{}
	apiPh := args.add(apiID)
	placeholders := make([]string, len(names))
	for i, name := range names {
		placeholders[i] = args.add(name)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, api_id, name, body_json, references_json FROM schemas
		 WHERE api_id = `+apiPh+` AND name IN (`+strings.Join(placeholders, ",")+`)`, args.values...)
	if err != nil {
		return nil, fmt.Errorf("schemas by names: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		sc, err := scanSchema(rows)
		if err != nil {
			return nil, err
		}
		out[sc.Name] = sc
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schemas: %w", err)
	}
	return out, nil
}

// GetSchemaUsage lists the endpoints directly referencing a component.
func (s *PostgresStore) GetSchemaUsage(ctx context.Context, apiID int64, name string) ([]types.SchemaUsage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.endpoint_id, e.path, e.method, r.usage
		FROM endpoint_schema_refs r
		JOIN endpoints e ON e.id = r.endpoint_id
		WHERE r.api_id = $1 AND r.schema_name = $2
		ORDER BY e.path, e.method, r.usage`, apiID, name)
	if err != nil {
		return nil, fmt.Errorf("schema usage: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var usages []types.SchemaUsage
	for rows.Next() {
		var u types.SchemaUsage
		if err := rows.Scan(&u.EndpointID, &u.Path, &u.Method, &u.Usage); err != nil {
			return nil, fmt.Errorf("scan schema usage: %w", err)
		}
		usages = append(usages, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schema usage: %w", err)
	}
	return usages, nil
}

// ListCategories returns the category roll-up, name-sorted.
func (s *PostgresStore) ListCategories(ctx context.Context, apiID int64, includeEmpty bool) ([]*types.Category, error) {
	listSQL := `SELECT id, api_id, name, display_name, description, category_group, endpoint_count, methods_json
		FROM endpoint_categories WHERE api_id = $1`
	if !includeEmpty {
		listSQL += ` AND endpoint_count > 0`
	}
	listSQL += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, listSQL, apiID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var categories []*types.Category
	for rows.Next() {
		var cat types.Category
		var methodsJSON string
		if err := rows.Scan(&cat.ID, &cat.APIID, &cat.Name, &cat.DisplayName, &cat.Description,
			&cat.Group, &cat.EndpointCount, &methodsJSON); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		if err := json.Unmarshal([]byte(methodsJSON), &cat.Methods); err != nil {
			return nil, fmt.Errorf("unmarshal methods for %s: %w", cat.Name, err)
		}
		categories = append(categories, &cat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return categories, nil
}

// CountEndpoints returns the endpoint count of one API.
func (s *PostgresStore) CountEndpoints(ctx context.Context, apiID int64) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM endpoints WHERE api_id = $1`, apiID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count endpoints: %w", err)
	}
	return n, nil
}

// Counts returns the row counts of one API.
func (s *PostgresStore) Counts(ctx context.Context, apiID int64) (*Counts, error) {
	var c Counts
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM endpoints WHERE api_id = $1),
			(SELECT COUNT(*) FROM schemas WHERE api_id = $1),
			(SELECT COUNT(*) FROM endpoint_categories WHERE api_id = $1)`,
		apiID).Scan(&c.Endpoints, &c.Schemas, &c.Categories)
	if err != nil {
		return nil, fmt.Errorf("count rows: %w", err)
	}
	return &c, nil
}
