// Package search implements the retrieval operations over an ingested
// specification: ranked endpoint search, schema resolution with bounded
// reference expansion, and the category catalog.
package search

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/apperrors"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/categorize"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/config"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/logging"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/storage"
	"github.com/salacoste/openapi-mcp-swagger-sub001/pkg/types"
)

// Depth bounds for schema reference expansion.
const (
	DefaultMaxDepth = 5
	MaxDepthLimit   = 10
)

// Service executes the read-only retrieval operations. All methods are safe
// for concurrent use; the store handles pooling underneath.
type Service struct {
	store  storage.Store
	cfg    config.SearchConfig
	logger logging.Logger
}

// NewService creates a retrieval service on top of an opened store.
func NewService(store storage.Store, cfg config.SearchConfig, logger logging.Logger) *Service {
	if cfg.DefaultPerPage <= 0 {
		cfg.DefaultPerPage = 20
	}
	if cfg.MaxPerPage <= 0 {
		cfg.MaxPerPage = 500
	}
	return &Service{
		store:  store,
		cfg:    cfg,
		logger: logger.WithComponent("search"),
	}
}

// ActiveAPI resolves the specification retrieval operates on: the most
// recently ingested one. Returns NotFound when the store is empty.
func (s *Service) ActiveAPI(ctx context.Context) (*types.API, error) {
	apis, err := s.store.ListAPIs(ctx)
	if err != nil {
		return nil, apperrors.FromContext("listApis", err)
	}
	if len(apis) == 0 {
		return nil, apperrors.NewNotFound("no specification has been ingested")
	}
	return apis[0], nil
}

// SearchEndpoints runs the endpoint search: keyword ranking via the full-text
// index, optional method / category / group filters, and pagination. Category
// and group are mutually exclusive.
func (s *Service) SearchEndpoints(ctx context.Context, apiID int64, req *types.SearchEndpointsRequest) (*types.SearchEndpointsResult, error) {
	keywords := strings.TrimSpace(req.Keywords)
	category := strings.TrimSpace(req.Category)
	group := strings.TrimSpace(req.CategoryGroup)

	if category != "" && group != "" {
		return nil, apperrors.NewInvalidArgument("category",
			"category and categoryGroup are mutually exclusive")
	}

	methods, err := normalizeMethods(req.HTTPMethods)
	if err != nil {
		return nil, err
	}

	page := req.Page
	if page == 0 {
		page = 1
	}
	if page < 1 {
		return nil, apperrors.NewInvalidArgument("page", "page must be at least 1, got %d", req.Page)
	}
	perPage := req.PerPage
	if perPage == 0 {
		perPage = s.cfg.DefaultPerPage
	}
	if perPage < 1 {
		return nil, apperrors.NewInvalidArgument("perPage", "perPage must be at least 1, got %d", req.PerPage)
	}
	if perPage > s.cfg.MaxPerPage {
		perPage = s.cfg.MaxPerPage
	}

	query := &storage.SearchQuery{
		Keywords:      keywords,
		Methods:       methods,
		Category:      category,
		CategoryGroup: group,
		Limit:         perPage,
		Offset:        (page - 1) * perPage,
	}
	if category != "" {
		query.CategoryTag = categorize.TagFromCategory(category)
	}

	summaries, total, err := s.store.SearchEndpoints(ctx, apiID, query)
	if err != nil {
		return nil, apperrors.FromContext("searchEndpoints", err)
	}

	// The transformed-tag condition isolates categories whose names overlap
	// as substrings. When it eliminates everything, fall back to plain
	// case-insensitive name equality so tag-less stores still answer.
	if total == 0 && query.CategoryTag != "" {
		query.CategoryTag = ""
		summaries, total, err = s.store.SearchEndpoints(ctx, apiID, query)
		if err != nil {
			return nil, apperrors.FromContext("searchEndpoints", err)
		}
	}

	endpoints := make([]types.EndpointSummary, 0, len(summaries))
	for _, sum := range summaries {
		endpoints = append(endpoints, *sum)
	}

	return &types.SearchEndpointsResult{
		Endpoints: endpoints,
		Total:     total,
		Filters: types.SearchFilters{
			Keywords:      keywords,
			HTTPMethods:   methods,
			Category:      category,
			CategoryGroup: group,
		},
		Pagination: types.Pagination{Page: page, PerPage: perPage},
	}, nil
}

// normalizeMethods upper-cases and validates the method filter.
func normalizeMethods(methods []string) ([]string, error) {
	if len(methods) == 0 {
		return nil, nil
	}
	out := make([]string, 0, len(methods))
	seen := make(map[string]bool, len(methods))
	for _, m := range methods {
		trimmed := strings.TrimSpace(m)
		if trimmed == "" {
			continue
		}
		if !types.IsHTTPMethod(trimmed) {
			return nil, apperrors.NewInvalidArgument("httpMethods",
				"unsupported HTTP method %q", m)
		}
		upper := strings.ToUpper(trimmed)
		if !seen[upper] {
			seen[upper] = true
			out = append(out, upper)
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// GetSchema resolves a component and expands its references breadth-first up
// to the requested depth. Cycles terminate expansion; the root never repeats
// in the referenced map.
func (s *Service) GetSchema(ctx context.Context, apiID int64, req *types.GetSchemaRequest) (*types.GetSchemaResult, error) {
	name := strings.TrimSpace(req.ComponentName)
	if name == "" {
		return nil, apperrors.NewInvalidArgument("componentName", "componentName is required")
	}
	depth := req.MaxDepth
	if depth == 0 {
		depth = DefaultMaxDepth
	}
	if depth < 1 {
		depth = 1
	}
	if depth > MaxDepthLimit {
		depth = MaxDepthLimit
	}
	includeExamples := req.IncludeExamples == nil || *req.IncludeExamples

	root, err := s.store.GetSchemaByName(ctx, apiID, name)
	if err != nil {
		return nil, apperrors.FromContext("getSchema", err)
	}

	visited := map[string]bool{name: true}
	referenced := make(map[string]json.RawMessage)
	frontier := uniqueUnvisited(root.References, visited)

	for level := 0; level < depth && len(frontier) > 0; level++ {
		batch, err := s.store.GetSchemasByNames(ctx, apiID, frontier)
		if err != nil {
			return nil, apperrors.FromContext("getSchema", err)
		}
		var next []string
		for _, refName := range frontier {
			sc, ok := batch[refName]
			if !ok {
				// dangling reference, nothing stored under that name
				continue
			}
			referenced[refName] = schemaBody(sc.Body, includeExamples)
			next = append(next, uniqueUnvisited(sc.References, visited)...)
		}
		frontier = next
	}

	usages, err := s.store.GetSchemaUsage(ctx, apiID, name)
	if err != nil {
		return nil, apperrors.FromContext("getSchema", err)
	}
	if usages == nil {
		usages = []types.SchemaUsage{}
	}

	return &types.GetSchemaResult{
		ComponentName:     name,
		Schema:            schemaBody(root.Body, includeExamples),
		ReferencedSchemas: referenced,
		UsedBy:            usages,
		MaxDepth:          depth,
	}, nil
}

// uniqueUnvisited filters names already seen, marking the rest visited.
func uniqueUnvisited(names []string, visited map[string]bool) []string {
	var out []string
	for _, n := range names {
		if visited[n] {
			continue
		}
		visited[n] = true
		out = append(out, n)
	}
	return out
}

// schemaBody returns the stored body, with example values stripped when the
// caller opted out of them. Bodies that fail to re-parse pass through as is.
func schemaBody(body json.RawMessage, includeExamples bool) json.RawMessage {
	if includeExamples || len(body) == 0 {
		return body
	}
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return body
	}
	stripped, err := json.Marshal(stripExamples(doc))
	if err != nil {
		return body
	}
	return stripped
}

func stripExamples(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for key, val := range t {
			if key == "example" || key == "examples" {
				delete(t, key)
				continue
			}
			t[key] = stripExamples(val)
		}
		return t
	case []interface{}:
		for i, val := range t {
			t[i] = stripExamples(val)
		}
		return t
	default:
		return v
	}
}

// GetEndpointCategories returns the category catalog with the aggregated
// group view and totals.
func (s *Service) GetEndpointCategories(ctx context.Context, apiID int64, req *types.GetEndpointCategoriesRequest) (*types.GetEndpointCategoriesResult, error) {
	sortBy := strings.TrimSpace(req.SortBy)
	if sortBy == "" {
		sortBy = types.SortByName
	}
	switch sortBy {
	case types.SortByName, types.SortByEndpointCount, types.SortByGroup:
	default:
		return nil, apperrors.NewInvalidArgument("sortBy",
			"sortBy must be one of %q, %q, %q", types.SortByName, types.SortByEndpointCount, types.SortByGroup)
	}
	groupFilter := strings.TrimSpace(req.CategoryGroup)

	stored, err := s.store.ListCategories(ctx, apiID, req.IncludeEmpty)
	if err != nil {
		return nil, apperrors.FromContext("getEndpointCategories", err)
	}

	categories := make([]types.CategorySummary, 0, len(stored))
	for _, cat := range stored {
		if groupFilter != "" && !strings.EqualFold(cat.Group, groupFilter) {
			continue
		}
		methods := cat.Methods
		if methods == nil {
			methods = []string{}
		}
		categories = append(categories, types.CategorySummary{
			Name:          cat.Name,
			DisplayName:   cat.DisplayName,
			Description:   cat.Description,
			Group:         cat.Group,
			EndpointCount: cat.EndpointCount,
			Methods:       methods,
		})
	}

	sortCategories(categories, sortBy)

	totalEndpoints, err := s.store.CountEndpoints(ctx, apiID)
	if err != nil {
		return nil, apperrors.FromContext("getEndpointCategories", err)
	}

	return &types.GetEndpointCategoriesResult{
		Categories: categories,
		Groups:     groupView(categories),
		Metadata: types.CatalogMetadata{
			TotalEndpoints:  totalEndpoints,
			TotalCategories: len(categories),
		},
	}, nil
}

// sortCategories orders the catalog by the requested key. Name sorts are
// case-insensitive ascending; endpointCount sorts descending with a name
// tiebreak; group sorts grouped categories first, then by group and name.
func sortCategories(categories []types.CategorySummary, sortBy string) {
	switch sortBy {
	case types.SortByEndpointCount:
		sort.SliceStable(categories, func(i, j int) bool {
			if categories[i].EndpointCount != categories[j].EndpointCount {
				return categories[i].EndpointCount > categories[j].EndpointCount
			}
			return lessName(categories[i].Name, categories[j].Name)
		})
	case types.SortByGroup:
		sort.SliceStable(categories, func(i, j int) bool {
			gi, gj := categories[i].Group, categories[j].Group
			if (gi == "") != (gj == "") {
				return gi != ""
			}
			if !strings.EqualFold(gi, gj) {
				return strings.ToLower(gi) < strings.ToLower(gj)
			}
			return lessName(categories[i].Name, categories[j].Name)
		})
	default:
		sort.SliceStable(categories, func(i, j int) bool {
			return lessName(categories[i].Name, categories[j].Name)
		})
	}
}

func lessName(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	if la != lb {
		return la < lb
	}
	return a < b
}

// groupView aggregates the member categories of each named group.
func groupView(categories []types.CategorySummary) []types.GroupSummary {
	members := make(map[string][]string)
	for _, cat := range categories {
		if cat.Group == "" {
			continue
		}
		members[cat.Group] = append(members[cat.Group], cat.Name)
	}

	groups := make([]types.GroupSummary, 0, len(members))
	for name, cats := range members {
		sort.Strings(cats)
		groups = append(groups, types.GroupSummary{Name: name, Categories: cats})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	return groups
}
