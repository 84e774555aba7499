package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/config"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/logging"
	"github.com/salacoste/openapi-mcp-swagger-sub001/pkg/types"
)

// SQLiteStore is the embedded backend. It keeps two handles on the same
// database file: a single-connection write handle, which serializes ingests,
// and a pooled read handle for the retrieval plane.
type SQLiteStore struct {
	writeDB *sql.DB
	readDB  *sql.DB
	path    string
	weights config.RankWeights
	logger  logging.Logger
}

var sqliteDialect = dialect{
	metadataDDL:   `CREATE TABLE IF NOT EXISTS api_metadata (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
	selectVersion: `SELECT value FROM api_metadata WHERE key = ?`,
	upsertVersion: `INSERT INTO api_metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
}

var sqliteMigrations = []migration{
	{
		version: 1,
		name:    "core tables",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS apis (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL UNIQUE,
				title TEXT NOT NULL DEFAULT '',
				version TEXT NOT NULL DEFAULT '',
				description TEXT NOT NULL DEFAULT '',
				digest TEXT NOT NULL DEFAULT '',
				servers_json TEXT NOT NULL DEFAULT '[]',
				security_json TEXT NOT NULL DEFAULT '{}',
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE TABLE IF NOT EXISTS endpoints (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				api_id INTEGER NOT NULL REFERENCES apis(id) ON DELETE CASCADE,
				path TEXT NOT NULL,
				method TEXT NOT NULL,
				operation_id TEXT NOT NULL DEFAULT '',
				summary TEXT NOT NULL DEFAULT '',
				description TEXT NOT NULL DEFAULT '',
				tags_json TEXT NOT NULL DEFAULT '[]',
				deprecated INTEGER NOT NULL DEFAULT 0,
				category TEXT NOT NULL DEFAULT '',
				category_group TEXT NOT NULL DEFAULT '',
				category_display_name TEXT NOT NULL DEFAULT '',
				parameters_json TEXT NOT NULL DEFAULT '[]',
				request_body_json TEXT,
				responses_json TEXT NOT NULL DEFAULT '{}',
				security_json TEXT,
				UNIQUE(api_id, path, method)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_endpoints_api ON endpoints(api_id)`,
			`CREATE INDEX IF NOT EXISTS idx_endpoints_category ON endpoints(api_id, category)`,
			`CREATE INDEX IF NOT EXISTS idx_endpoints_method ON endpoints(api_id, method)`,
			`CREATE INDEX IF NOT EXISTS idx_endpoints_path ON endpoints(api_id, path)`,
			`CREATE TABLE IF NOT EXISTS schemas (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				api_id INTEGER NOT NULL REFERENCES apis(id) ON DELETE CASCADE,
				name TEXT NOT NULL,
				body_json TEXT NOT NULL DEFAULT '{}',
				references_json TEXT NOT NULL DEFAULT '[]',
				UNIQUE(api_id, name)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_schemas_api ON schemas(api_id)`,
			`CREATE TABLE IF NOT EXISTS endpoint_categories (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				api_id INTEGER NOT NULL REFERENCES apis(id) ON DELETE CASCADE,
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
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				api_id INTEGER NOT NULL REFERENCES apis(id) ON DELETE CASCADE,
				endpoint_id INTEGER NOT NULL REFERENCES endpoints(id) ON DELETE CASCADE,
				schema_name TEXT NOT NULL,
				usage TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_schema_refs_lookup ON endpoint_schema_refs(api_id, schema_name)`,
		},
	},
	{
		version: 2,
		name:    "full-text index",
		statements: []string{
			`CREATE VIRTUAL TABLE IF NOT EXISTS endpoints_fts USING fts5(
				endpoint_id UNINDEXED,
				path, summary, description, operation_id, tags, category,
				tokenize = 'unicode61'
			)`,
		},
	},
}

// OpenSQLite opens (creating if needed) the database under the configured
// data directory and applies pending migrations.
func OpenSQLite(ctx context.Context, cfg *config.Config, logger logging.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	path := filepath.Join(cfg.Storage.DataDir, DatabaseFile)
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_sync=NORMAL&_cache_size=10000&_busy_timeout=%d&_foreign_keys=on",
		path, cfg.Storage.BusyTimeoutMS)

	writeDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	writeDB.SetMaxOpenConns(1)
	writeDB.SetMaxIdleConns(1)
	writeDB.SetConnMaxLifetime(time.Hour)

	readDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		_ = writeDB.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	pool := clampReadPool(cfg.Storage.ReadPoolSize)
	readDB.SetMaxOpenConns(pool)
	readDB.SetMaxIdleConns(pool / 2)
	readDB.SetConnMaxLifetime(time.Hour)

	s := &SQLiteStore{
		writeDB: writeDB,
		readDB:  readDB,
		path:    path,
		weights: cfg.Search.Weights,
		logger:  logger.WithComponent("storage.sqlite"),
	}
	if err := runMigrations(ctx, writeDB, sqliteDialect, sqliteMigrations, s.logger); err != nil {
		_ = s.Close()
		return nil, err
	}
	s.logger.Debug("opened sqlite store", "path", path, "read_pool", pool)
	return s, nil
}

// Read pool stays between 5 and 20 connections regardless of configuration.
func clampReadPool(n int) int {
	if n < 5 {
		return 5
	}
	if n > 20 {
		return 20
	}
	return n
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string { return s.path }

// Close releases both handles.
func (s *SQLiteStore) Close() error {
	var first error
	if err := s.readDB.Close(); err != nil {
		first = err
	}
	if err := s.writeDB.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

// Ping verifies the read handle answers.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.readDB.PingContext(ctx)
}

// SchemaVersion reports the applied migration version.
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int, error) {
	return readSchemaVersion(ctx, s.readDB, sqliteDialect)
}

// ReplaceAPI persists the full record set of one API in a single write
// transaction: delete any previous API with the same name (cascading), insert
// the new rows, then rebuild the full-text index by reading the endpoints
// back. A failure at any point rolls back to the prior contents.
func (s *SQLiteStore) ReplaceAPI(ctx context.Context, api *types.API, endpoints []*types.Endpoint, schemas []*types.Schema, categories []*types.Category) (*ReplaceResult, error) {
	started := time.Now()

	tx, err := s.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin replace: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	replaced, err := s.deleteExisting(ctx, tx, api.Name)
	if err != nil {
		return nil, err
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
	if err := s.rebuildFTS(ctx, tx, apiID); err != nil {
		return nil, err
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

func (s *SQLiteStore) deleteExisting(ctx context.Context, tx *sql.Tx, name string) (bool, error) {
	var oldID int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM apis WHERE name = ?`, name).Scan(&oldID)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup existing api: %w", err)
	}

	// the FTS table has no foreign key, clear it by hand before the cascade
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM endpoints_fts WHERE endpoint_id IN (SELECT id FROM endpoints WHERE api_id = ?)`, oldID); err != nil {
		return false, fmt.Errorf("clear fts rows: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM apis WHERE id = ?`, oldID); err != nil {
		return false, fmt.Errorf("delete existing api: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) insertAPI(ctx context.Context, tx *sql.Tx, api *types.API) (int64, error) {
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
	res, err := tx.ExecContext(ctx, `
		INSERT INTO apis (name, title, version, description, digest, servers_json, security_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		api.Name, api.Title, api.Version, api.Description, api.Digest,
		serversJSON, string(securityJSON), api.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert api: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("api id: %w", err)
	}
	api.ID = id
	return id, nil
}

func (s *SQLiteStore) insertEndpoints(ctx context.Context, tx *sql.Tx, apiID int64, endpoints []*types.Endpoint) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO endpoints (api_id, path, method, operation_id, summary, description,
			tags_json, deprecated, category, category_group, category_display_name,
			parameters_json, request_body_json, responses_json, security_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
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

		res, err := stmt.ExecContext(ctx,
			apiID, ep.Path, ep.Method, ep.OperationID, ep.Summary, ep.Description,
			tagsJSON, ep.Deprecated, ep.Category, ep.CategoryGroup, ep.CategoryDisplayName,
			paramsJSON, bodyJSON, responsesJSON, securityJSON)
		if err != nil {
			return fmt.Errorf("insert endpoint %s %s: %w", ep.Method, ep.Path, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("endpoint id: %w", err)
		}
		ep.ID = id
		ep.APIID = apiID
	}
	return nil
}

func (s *SQLiteStore) insertSchemas(ctx context.Context, tx *sql.Tx, apiID int64, schemas []*types.Schema) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO schemas (api_id, name, body_json, references_json) VALUES (?, ?, ?, ?)`)
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
		res, err := stmt.ExecContext(ctx, apiID, sc.Name, body, refsJSON)
		if err != nil {
			return fmt.Errorf("insert schema %s: %w", sc.Name, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("schema id: %w", err)
		}
		sc.ID = id
		sc.APIID = apiID
	}
	return nil
}

func (s *SQLiteStore) insertCategories(ctx context.Context, tx *sql.Tx, apiID int64, categories []*types.Category) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO endpoint_categories (api_id, name, display_name, description, category_group, endpoint_count, methods_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare category insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, cat := range categories {
		methodsJSON, err := jsonArray(cat.Methods)
		if err != nil {
			return fmt.Errorf("marshal methods for %s: %w", cat.Name, err)
		}
		res, err := stmt.ExecContext(ctx, apiID, cat.Name, cat.DisplayName, cat.Description,
			cat.Group, cat.EndpointCount, methodsJSON)
		if err != nil {
			return fmt.Errorf("insert category %s: %w", cat.Name, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("category id: %w", err)
		}
		cat.ID = id
		cat.APIID = apiID
	}
	return nil
}

func (s *SQLiteStore) insertSchemaRefs(ctx context.Context, tx *sql.Tx, apiID int64, endpoints []*types.Endpoint) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO endpoint_schema_refs (api_id, endpoint_id, schema_name, usage) VALUES (?, ?, ?, ?)`)
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

// rebuildFTS populates the full-text index from the freshly inserted rows,
// reading them back so the index always mirrors what was actually persisted.
func (s *SQLiteStore) rebuildFTS(ctx context.Context, tx *sql.Tx, apiID int64) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, path, summary, description, operation_id, tags_json, category
		FROM endpoints WHERE api_id = ?`, apiID)
	if err != nil {
		return fmt.Errorf("read back endpoints: %w", err)
	}

	type ftsRow struct {
		id                                            int64
		path, summary, description, opID, tags, categ string
	}
	var buffered []ftsRow
	for rows.Next() {
		var r ftsRow
		var tagsJSON string
		if err := rows.Scan(&r.id, &r.path, &r.summary, &r.description, &r.opID, &tagsJSON, &r.categ); err != nil {
			_ = rows.Close()
			return fmt.Errorf("scan endpoint for fts: %w", err)
		}
		var tags []string
		if err := json.Unmarshal([]byte(tagsJSON), &tags); err != nil {
			_ = rows.Close()
			return fmt.Errorf("unmarshal tags for fts: %w", err)
		}
		r.tags = strings.Join(tags, " ")
		buffered = append(buffered, r)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return fmt.Errorf("iterate endpoints for fts: %w", err)
	}
	_ = rows.Close()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO endpoints_fts (endpoint_id, path, summary, description, operation_id, tags, category)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare fts insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range buffered {
		if _, err := stmt.ExecContext(ctx, r.id, r.path, r.summary, r.description, r.opID, r.tags, r.categ); err != nil {
			return fmt.Errorf("index endpoint %d: %w", r.id, err)
		}
	}
	return nil
}

// jsonArray marshals a string slice, mapping nil to the empty array so the
// stored text is always valid JSON.
func jsonArray(values []string) (string, error) {
	if len(values) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
