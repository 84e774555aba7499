package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/apperrors"
	"github.com/salacoste/openapi-mcp-swagger-sub001/pkg/types"
)

const apiColumns = `id, name, title, version, description, digest, servers_json, security_json, created_at`

const endpointColumns = `id, api_id, path, method, operation_id, summary, description,
	tags_json, deprecated, category, category_group, category_display_name,
	parameters_json, request_body_json, responses_json, security_json`

// ListAPIs returns every ingested API, newest first.
func (s *SQLiteStore) ListAPIs(ctx context.Context) ([]*types.API, error) {
	rows, err := s.readDB.QueryContext(ctx,
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
func (s *SQLiteStore) GetAPI(ctx context.Context, id int64) (*types.API, error) {
	row := s.readDB.QueryRowContext(ctx, `SELECT `+apiColumns+` FROM apis WHERE id = ?`, id)
	api, err := scanAPI(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("api %d not found", id)
	}
	return api, err
}

// GetAPIByName returns one API by its identifying name.
func (s *SQLiteStore) GetAPIByName(ctx context.Context, name string) (*types.API, error) {
	row := s.readDB.QueryRowContext(ctx, `SELECT `+apiColumns+` FROM apis WHERE name = ?`, name)
	api, err := scanAPI(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("api %q not found", name)
	}
	return api, err
}

// SearchEndpoints runs either a ranked full-text query or, with empty
// keywords, a filter enumeration ordered by (path, method). The returned total
// counts all matches before pagination.
func (s *SQLiteStore) SearchEndpoints(ctx context.Context, apiID int64, query *SearchQuery) ([]*types.EndpointSummary, int, error) {
	conds := []string{"e.api_id = ?"}
	args := []interface{}{apiID}

	if len(query.Methods) > 0 {
		placeholders := make([]string, len(query.Methods))
		for i, m := range query.Methods {
			placeholders[i] = "?"
			args = append(args, m)
		}
		conds = append(conds, fmt.Sprintf("e.method IN (%s)", strings.Join(placeholders, ",")))
	}
	if query.Category != "" {
		conds = append(conds, "LOWER(e.category) = LOWER(?)")
		args = append(args, query.Category)
		if query.CategoryTag != "" {
			conds = append(conds, "EXISTS (SELECT 1 FROM json_each(e.tags_json) WHERE json_each.value = ?)")
			args = append(args, query.CategoryTag)
		}
	}
	if query.CategoryGroup != "" {
		conds = append(conds, "LOWER(e.category_group) = LOWER(?)")
		args = append(args, query.CategoryGroup)
	}
	where := strings.Join(conds, " AND ")

	match := BuildMatchQuery(query.Keywords)
	if match == "" {
		return s.enumerateEndpoints(ctx, where, args, query.Limit, query.Offset)
	}
	return s.searchFTS(ctx, match, where, args, query.Limit, query.Offset)
}

func (s *SQLiteStore) enumerateEndpoints(ctx context.Context, where string, args []interface{}, limit, offset int) ([]*types.EndpointSummary, int, error) {
	var total int
	if err := s.readDB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM endpoints e WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count endpoints: %w", err)
	}

	listSQL := `SELECT e.id, e.path, e.method, e.summary, e.tags_json, e.category, e.deprecated, 0.0 AS score
		FROM endpoints e WHERE ` + where + ` ORDER BY e.path, e.method LIMIT ? OFFSET ?`
	rows, err := s.readDB.QueryContext(ctx, listSQL, append(append([]interface{}{}, args...), limit, offset)...)
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

func (s *SQLiteStore) searchFTS(ctx context.Context, match, where string, args []interface{}, limit, offset int) ([]*types.EndpointSummary, int, error) {
	// weights come from configuration, not user input; the leading zero
	// covers the unindexed endpoint_id column
	w := s.weights
	rank := fmt.Sprintf("bm25(endpoints_fts, 0, %g, %g, %g, %g, %g, %g)",
		w.Path, w.Summary, w.Description, w.OperationID, w.Tags, w.Category)

	ftsArgs := append([]interface{}{match}, args...)

	var total int
	countSQL := `SELECT COUNT(*) FROM endpoints_fts
		JOIN endpoints e ON e.id = endpoints_fts.endpoint_id
		WHERE endpoints_fts MATCH ? AND ` + where
	if err := s.readDB.QueryRowContext(ctx, countSQL, ftsArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count matches: %w", err)
	}

	listSQL := `SELECT e.id, e.path, e.method, e.summary, e.tags_json, e.category, e.deprecated, -` + rank + ` AS score
		FROM endpoints_fts
		JOIN endpoints e ON e.id = endpoints_fts.endpoint_id
		WHERE endpoints_fts MATCH ? AND ` + where + `
		ORDER BY ` + rank + `, e.path, e.method LIMIT ? OFFSET ?`
	rows, err := s.readDB.QueryContext(ctx, listSQL, append(append([]interface{}{}, ftsArgs...), limit, offset)...)
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

// GetEndpointByID returns the full endpoint row.
func (s *SQLiteStore) GetEndpointByID(ctx context.Context, apiID, endpointID int64) (*types.Endpoint, error) {
	row := s.readDB.QueryRowContext(ctx,
		`SELECT `+endpointColumns+` FROM endpoints WHERE api_id = ? AND id = ?`, apiID, endpointID)
	ep, err := scanEndpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("endpoint %d not found", endpointID)
	}
	return ep, err
}

// GetEndpointsByPath returns every method registered on a path, lowest
// surrogate id first.
func (s *SQLiteStore) GetEndpointsByPath(ctx context.Context, apiID int64, path string) ([]*types.Endpoint, error) {
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT `+endpointColumns+` FROM endpoints WHERE api_id = ? AND path = ? ORDER BY id`, apiID, path)
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
func (s *SQLiteStore) GetSchemaByName(ctx context.Context, apiID int64, name string) (*types.Schema, error) {
	row := s.readDB.QueryRowContext(ctx,
		`SELECT id, api_id, name, body_json, references_json FROM schemas WHERE api_id = ? AND name = ?`, apiID, name)
	sc, err := scanSchema(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("schema component %q not found", name)
	}
	return sc, err
}

// GetSchemasByNames returns the named components that exist, keyed by name.
// Missing names are absent from the map, not an error.
func (s *SQLiteStore) GetSchemasByNames(ctx context.Context, apiID int64, names []string) (map[string]*types.Schema, error) {
	out := make(map[string]*types.Schema, len(names))
	if len(names) == 0 {
		return out, nil
	}

	placeholders := make([]string, len(names))
	args := make([]interface{}, 0, len(names)+1)
	args = append(args, apiID)
	for i, name := range names {
		placeholders[i] = "?"
		args = append(args, name)
	}
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT id, api_id, name, body_json, references_json FROM schemas
		 WHERE api_id = ? AND name IN (`+strings.Join(placeholders, ",")+`)`, args...)
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
func (s *SQLiteStore) GetSchemaUsage(ctx context.Context, apiID int64, name string) ([]types.SchemaUsage, error) {
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT r.endpoint_id, e.path, e.method, r.usage
		FROM endpoint_schema_refs r
		JOIN endpoints e ON e.id = r.endpoint_id
		WHERE r.api_id = ? AND r.schema_name = ?
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

// ListCategories returns the category roll-up, name-sorted. Zero-count
// categories are filtered out unless includeEmpty is set.
func (s *SQLiteStore) ListCategories(ctx context.Context, apiID int64, includeEmpty bool) ([]*types.Category, error) {
	listSQL := `SELECT id, api_id, name, display_name, description, category_group, endpoint_count, methods_json
		FROM endpoint_categories WHERE api_id = ?`
	if !includeEmpty {
		listSQL += ` AND endpoint_count > 0`
	}
	listSQL += ` ORDER BY name`

	rows, err := s.readDB.QueryContext(ctx, listSQL, apiID)
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
func (s *SQLiteStore) CountEndpoints(ctx context.Context, apiID int64) (int, error) {
	var n int
	if err := s.readDB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM endpoints WHERE api_id = ?`, apiID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count endpoints: %w", err)
	}
	return n, nil
}

// Counts returns the row counts of one API.
func (s *SQLiteStore) Counts(ctx context.Context, apiID int64) (*Counts, error) {
	var c Counts
	err := s.readDB.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM endpoints WHERE api_id = ?),
			(SELECT COUNT(*) FROM schemas WHERE api_id = ?),
			(SELECT COUNT(*) FROM endpoint_categories WHERE api_id = ?)`,
		apiID, apiID, apiID).Scan(&c.Endpoints, &c.Schemas, &c.Categories)
	if err != nil {
		return nil, fmt.Errorf("count rows: %w", err)
	}
	return &c, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAPI(row rowScanner) (*types.API, error) {
	var api types.API
	var serversJSON, securityJSON string
	err := row.Scan(&api.ID, &api.Name, &api.Title, &api.Version, &api.Description,
		&api.Digest, &serversJSON, &securityJSON, &api.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan api: %w", err)
	}
	if err := json.Unmarshal([]byte(serversJSON), &api.Servers); err != nil {
		return nil, fmt.Errorf("unmarshal servers: %w", err)
	}
	if err := json.Unmarshal([]byte(securityJSON), &api.Security); err != nil {
		return nil, fmt.Errorf("unmarshal security: %w", err)
	}
	return &api, nil
}

func scanEndpoint(row rowScanner) (*types.Endpoint, error) {
	var ep types.Endpoint
	var tagsJSON, paramsJSON, responsesJSON string
	var bodyJSON, securityJSON sql.NullString
	err := row.Scan(&ep.ID, &ep.APIID, &ep.Path, &ep.Method, &ep.OperationID, &ep.Summary,
		&ep.Description, &tagsJSON, &ep.Deprecated, &ep.Category, &ep.CategoryGroup,
		&ep.CategoryDisplayName, &paramsJSON, &bodyJSON, &responsesJSON, &securityJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan endpoint: %w", err)
	}
	if err := json.Unmarshal([]byte(tagsJSON), &ep.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	if err := json.Unmarshal([]byte(paramsJSON), &ep.Parameters); err != nil {
		return nil, fmt.Errorf("unmarshal parameters: %w", err)
	}
	if bodyJSON.Valid {
		ep.RequestBody = &types.RequestBody{}
		if err := json.Unmarshal([]byte(bodyJSON.String), ep.RequestBody); err != nil {
			return nil, fmt.Errorf("unmarshal request body: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(responsesJSON), &ep.Responses); err != nil {
		return nil, fmt.Errorf("unmarshal responses: %w", err)
	}
	if securityJSON.Valid {
		if err := json.Unmarshal([]byte(securityJSON.String), &ep.Security); err != nil {
			return nil, fmt.Errorf("unmarshal security: %w", err)
		}
	}
	return &ep, nil
}

func scanSchema(row rowScanner) (*types.Schema, error) {
	var sc types.Schema
	var body, refsJSON string
	err := row.Scan(&sc.ID, &sc.APIID, &sc.Name, &body, &refsJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan schema: %w", err)
	}
	sc.Body = json.RawMessage(body)
	if err := json.Unmarshal([]byte(refsJSON), &sc.References); err != nil {
		return nil, fmt.Errorf("unmarshal references: %w", err)
	}
	return &sc, nil
}

func scanSummaries(rows *sql.Rows) ([]*types.EndpointSummary, error) {
	var summaries []*types.EndpointSummary
	for rows.Next() {
		var sum types.EndpointSummary
		var tagsJSON string
		if err := rows.Scan(&sum.EndpointID, &sum.Path, &sum.Method, &sum.Summary,
			&tagsJSON, &sum.Category, &sum.Deprecated, &sum.Score); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		if err := json.Unmarshal([]byte(tagsJSON), &sum.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal tags: %w", err)
		}
		summaries = append(summaries, &sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summaries: %w", err)
	}
	return summaries, nil
}

// BuildMatchQuery sanitizes a raw keyword string into a full-text query:
// tokens keep letters, digits, underscores, and hyphens, each is quoted, and
// all must match. Returns "" when nothing tokenizable remains.
func BuildMatchQuery(keywords string) string {
	fields := strings.FieldsFunc(keywords, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-'
	})
	if len(fields) == 0 {
		return ""
	}
	quoted := make([]string, 0, len(fields))
	for _, f := range fields {
		quoted = append(quoted, `"`+f+`"`)
	}
	return strings.Join(quoted, " ")
}
