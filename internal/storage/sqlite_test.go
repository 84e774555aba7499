package storage

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/apperrors"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/config"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/logging"
	"github.com/salacoste/openapi-mcp-swagger-sub001/pkg/types"
)

func openStoreAt(t *testing.T, dir string) *SQLiteStore {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.DataDir = dir
	store, err := OpenSQLite(context.Background(), cfg, logging.NewNoOp())
	require.NoError(t, err)
	return store
}

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := openStoreAt(t, t.TempDir())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func performanceAPI() *types.API {
	return &types.API{
		Name:    "performance",
		Title:   "Performance API",
		Version: "2.0.0",
		Digest:  "sha256:aabbcc",
		Servers: []string{"https://api.performance.example"},
		Security: types.APISecurity{
			Schemes: map[string]types.SecurityScheme{
				"api_key": {Name: "api_key", Type: "apiKey", In: "header", ParamName: "Api-Key"},
			},
			Requirements: []types.SecurityRequirement{{"api_key": {}}},
		},
	}
}

func performanceEndpoints() []*types.Endpoint {
	return []*types.Endpoint{
		{
			Path: "/api/client/campaign", Method: "GET",
			OperationID: "ListCampaigns", Summary: "List campaigns",
			Tags: []string{"Campaign"}, Category: "Campaign", CategoryGroup: "Promotion",
			CategoryDisplayName: "Кампании",
			Responses: map[string]types.Response{
				"200": {Description: "OK", ContentType: "application/json", SchemaRef: "CampaignList"},
			},
		},
		{
			Path: "/api/client/campaign", Method: "POST",
			OperationID: "CreateCampaign", Summary: "Create campaign",
			Tags: []string{"Campaign"}, Category: "Campaign", CategoryGroup: "Promotion",
			CategoryDisplayName: "Кампании",
			RequestBody: &types.RequestBody{
				Required: true, ContentType: "application/json", SchemaRef: "Campaign",
			},
			Responses: map[string]types.Response{
				"200": {Description: "Created", ContentType: "application/json", SchemaRef: "Campaign"},
			},
		},
		{
			Path: "/api/client/campaign/{campaignId}", Method: "GET",
			OperationID: "GetCampaign", Summary: "Get campaign by id",
			Tags: []string{"Campaign"}, Category: "Campaign", CategoryGroup: "Promotion",
			Parameters: []types.Parameter{
				{Name: "campaignId", In: "path", Required: true, Schema: json.RawMessage(`{"type":"integer"}`)},
			},
		},
		{
			Path: "/api/client/statistics", Method: "GET",
			OperationID: "ListReports", Summary: "List statistics reports",
			Tags: []string{"Statistics"}, Category: "Statistics", CategoryGroup: "Analytics",
		},
		{
			Path: "/api/client/statistics", Method: "POST",
			OperationID: "SubmitReport", Summary: "Submit statistics request",
			Tags: []string{"Statistics"}, Category: "Statistics", CategoryGroup: "Analytics",
			RequestBody: &types.RequestBody{ContentType: "application/json", SchemaRef: "StatisticsRequest"},
		},
		{
			Path: "/api/client/statistics/video", Method: "GET",
			OperationID: "VideoReport", Summary: "Video statistics report",
			Tags: []string{"Statistics"}, Category: "Statistics", CategoryGroup: "Analytics",
		},
		{
			Path: "/api/client/ad/products", Method: "POST",
			OperationID: "AddAdProducts", Summary: "Add products to an ad",
			Tags: []string{"Ad"}, Category: "Ad",
		},
		{
			Path: "/api/client/limits", Method: "GET",
			OperationID: "AccountLimits", Summary: "Account limits",
			Category: "client",
		},
	}
}

func performanceSchemas() []*types.Schema {
	return []*types.Schema{
		{Name: "Campaign", Body: json.RawMessage(`{"type":"object","properties":{"id":{"type":"integer"}}}`)},
		{Name: "CampaignList", Body: json.RawMessage(`{"type":"object"}`), References: []string{"Campaign"}},
		{Name: "StatisticsRequest", Body: json.RawMessage(`{"type":"object"}`)},
	}
}

func performanceCategories() []*types.Category {
	return []*types.Category{
		{Name: "Ad", EndpointCount: 1, Methods: []string{"POST"}},
		{Name: "Campaign", DisplayName: "Кампании", Group: "Promotion", EndpointCount: 3, Methods: []string{"GET", "POST"}},
		{Name: "Statistics", Group: "Analytics", EndpointCount: 3, Methods: []string{"GET", "POST"}},
		{Name: "Vendor", EndpointCount: 0, Methods: []string{}},
		{Name: "client", EndpointCount: 1, Methods: []string{"GET"}},
	}
}

func ingestFixture(t *testing.T, store *SQLiteStore) int64 {
	t.Helper()
	res, err := store.ReplaceAPI(context.Background(),
		performanceAPI(), performanceEndpoints(), performanceSchemas(), performanceCategories())
	require.NoError(t, err)
	require.False(t, res.Replaced)
	return res.APIID
}

func TestOpenSQLite_MigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	store := openStoreAt(t, dir)
	ctx := context.Background()
	version, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
	apiID := ingestFixture(t, store)
	require.NoError(t, store.Close())

	// Reopen the same directory: migrations are no-ops, data survives.
	store = openStoreAt(t, dir)
	defer func() { _ = store.Close() }()
	version, err = store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
	require.NoError(t, store.Ping(ctx))

	api, err := store.GetAPI(ctx, apiID)
	require.NoError(t, err)
	assert.Equal(t, "performance", api.Name)
	assert.Equal(t, "https://api.performance.example", api.BaseURL())
	assert.Contains(t, api.Security.Schemes, "api_key")
}

func TestReplaceAPI_RoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	apiID := ingestFixture(t, store)

	counts, err := store.Counts(ctx, apiID)
	require.NoError(t, err)
	assert.Equal(t, 8, counts.Endpoints)
	assert.Equal(t, 3, counts.Schemas)
	assert.Equal(t, 5, counts.Categories)

	eps, err := store.GetEndpointsByPath(ctx, apiID, "/api/client/campaign")
	require.NoError(t, err)
	require.Len(t, eps, 2)
	assert.Equal(t, "GET", eps[0].Method)
	assert.Equal(t, "POST", eps[1].Method)
	assert.Less(t, eps[0].ID, eps[1].ID)

	post := eps[1]
	assert.Equal(t, []string{"Campaign"}, post.Tags)
	assert.Equal(t, "Кампании", post.CategoryDisplayName)
	require.NotNil(t, post.RequestBody)
	assert.Equal(t, "Campaign", post.RequestBody.SchemaRef)
	assert.Equal(t, "Campaign", post.Responses["200"].SchemaRef)

	full, err := store.GetEndpointByID(ctx, apiID, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "CreateCampaign", full.OperationID)
}

func TestReplaceAPI_ReIngestReplacesWholesale(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	oldID := ingestFixture(t, store)

	// Second ingest of the same name keeps only the campaign endpoints.
	api := performanceAPI()
	api.Version = "2.1.0"
	api.Digest = "sha256:ddeeff"
	endpoints := performanceEndpoints()[:3]
	schemas := performanceSchemas()[:2]
	categories := []*types.Category{
		{Name: "Campaign", DisplayName: "Кампании", Group: "Promotion", EndpointCount: 3, Methods: []string{"GET", "POST"}},
	}
	res, err := store.ReplaceAPI(ctx, api, endpoints, schemas, categories)
	require.NoError(t, err)
	assert.True(t, res.Replaced)
	assert.NotEqual(t, oldID, res.APIID)

	got, err := store.GetAPIByName(ctx, "performance")
	require.NoError(t, err)
	assert.Equal(t, "2.1.0", got.Version)
	assert.Equal(t, "sha256:ddeeff", got.Digest)

	counts, err := store.Counts(ctx, res.APIID)
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Endpoints)
	assert.Equal(t, 2, counts.Schemas)
	assert.Equal(t, 1, counts.Categories)

	// The previous generation is gone, cascades included.
	_, err = store.GetAPI(ctx, oldID)
	assert.True(t, apperrors.IsNotFound(err))
	oldCounts, err := store.Counts(ctx, oldID)
	require.NoError(t, err)
	assert.Zero(t, oldCounts.Endpoints)
	assert.Zero(t, oldCounts.Schemas)
	assert.Zero(t, oldCounts.Categories)

	// Full-text rows of the dropped endpoints left with them.
	sums, total, err := store.SearchEndpoints(ctx, res.APIID, &SearchQuery{Keywords: "statistics", Limit: 10})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, sums)
}

func TestSearchEndpoints_KeywordRanking(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	apiID := ingestFixture(t, store)

	sums, total, err := store.SearchEndpoints(ctx, apiID, &SearchQuery{Keywords: "statistics", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, sums, 3)
	for _, sum := range sums {
		assert.Equal(t, "Statistics", sum.Category)
		assert.Positive(t, sum.Score)
	}

	// Multiple keywords must all match.
	sums, total, err = store.SearchEndpoints(ctx, apiID, &SearchQuery{Keywords: "video statistics", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, sums, 1)
	assert.Equal(t, "/api/client/statistics/video", sums[0].Path)
}

func TestSearchEndpoints_TotalBeforePagination(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	apiID := ingestFixture(t, store)

	sums, total, err := store.SearchEndpoints(ctx, apiID, &SearchQuery{Keywords: "statistics", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, sums, 2)

	rest, total, err := store.SearchEndpoints(ctx, apiID, &SearchQuery{Keywords: "statistics", Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, rest, 1)
}

func TestSearchEndpoints_CategoryDoubleCheck(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	apiID := ingestFixture(t, store)

	// Name match plus exact tag membership.
	_, total, err := store.SearchEndpoints(ctx, apiID, &SearchQuery{
		Category: "statistics", CategoryTag: "Statistics", Limit: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	// A tag that no endpoint carries yields nothing.
	_, total, err = store.SearchEndpoints(ctx, apiID, &SearchQuery{
		Category: "statistics", CategoryTag: "Statistika", Limit: 10,
	})
	require.NoError(t, err)
	assert.Zero(t, total)

	// Clearing the tag falls back to plain name equality.
	_, total, err = store.SearchEndpoints(ctx, apiID, &SearchQuery{
		Category: "statistics", Limit: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
}

func TestSearchEndpoints_MethodAndGroupFilters(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	apiID := ingestFixture(t, store)

	sums, total, err := store.SearchEndpoints(ctx, apiID, &SearchQuery{
		Methods: []string{"POST"}, Category: "Statistics", CategoryTag: "Statistics", Limit: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, sums, 1)
	assert.Equal(t, "POST", sums[0].Method)
	assert.Equal(t, "/api/client/statistics", sums[0].Path)

	_, total, err = store.SearchEndpoints(ctx, apiID, &SearchQuery{CategoryGroup: "analytics", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	sums, total, err = store.SearchEndpoints(ctx, apiID, &SearchQuery{
		Keywords: "campaign", Methods: []string{"GET", "POST"}, Limit: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, sums, 3)
}

func TestSearchEndpoints_EmptyKeywordsOrderedByPathMethod(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	apiID := ingestFixture(t, store)

	sums, total, err := store.SearchEndpoints(ctx, apiID, &SearchQuery{Limit: 100})
	require.NoError(t, err)
	assert.Equal(t, 8, total)
	require.Len(t, sums, 8)

	wantOrder := [][2]string{
		{"/api/client/ad/products", "POST"},
		{"/api/client/campaign", "GET"},
		{"/api/client/campaign", "POST"},
		{"/api/client/campaign/{campaignId}", "GET"},
		{"/api/client/limits", "GET"},
		{"/api/client/statistics", "GET"},
		{"/api/client/statistics", "POST"},
		{"/api/client/statistics/video", "GET"},
	}
	for i, want := range wantOrder {
		assert.Equal(t, want[0], sums[i].Path, "position %d", i)
		assert.Equal(t, want[1], sums[i].Method, "position %d", i)
		assert.Zero(t, sums[i].Score)
	}
}

func TestGetSchemas(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	apiID := ingestFixture(t, store)

	sc, err := store.GetSchemaByName(ctx, apiID, "CampaignList")
	require.NoError(t, err)
	assert.Equal(t, []string{"Campaign"}, sc.References)
	assert.JSONEq(t, `{"type":"object"}`, string(sc.Body))

	byName, err := store.GetSchemasByNames(ctx, apiID, []string{"Campaign", "Ghost", "StatisticsRequest"})
	require.NoError(t, err)
	assert.Len(t, byName, 2)
	assert.Contains(t, byName, "Campaign")
	assert.Contains(t, byName, "StatisticsRequest")
	assert.NotContains(t, byName, "Ghost")

	_, err = store.GetSchemaByName(ctx, apiID, "Ghost")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestGetSchemaUsage(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	apiID := ingestFixture(t, store)

	usages, err := store.GetSchemaUsage(ctx, apiID, "Campaign")
	require.NoError(t, err)
	require.Len(t, usages, 2)
	assert.Equal(t, "/api/client/campaign", usages[0].Path)
	assert.Equal(t, "POST", usages[0].Method)
	assert.Equal(t, types.UsageRequest, usages[0].Usage)
	assert.Equal(t, types.UsageResponse, usages[1].Usage)

	usages, err = store.GetSchemaUsage(ctx, apiID, "CampaignList")
	require.NoError(t, err)
	require.Len(t, usages, 1)
	assert.Equal(t, "GET", usages[0].Method)

	usages, err = store.GetSchemaUsage(ctx, apiID, "Unreferenced")
	require.NoError(t, err)
	assert.Empty(t, usages)
}

func TestListCategories(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	apiID := ingestFixture(t, store)

	cats, err := store.ListCategories(ctx, apiID, false)
	require.NoError(t, err)
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = c.Name
	}
	assert.Equal(t, []string{"Ad", "Campaign", "Statistics", "client"}, names)

	withEmpty, err := store.ListCategories(ctx, apiID, true)
	require.NoError(t, err)
	names = names[:0]
	for _, c := range withEmpty {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"Ad", "Campaign", "Statistics", "Vendor", "client"}, names)

	campaign := withEmpty[1]
	assert.Equal(t, "Кампании", campaign.DisplayName)
	assert.Equal(t, "Promotion", campaign.Group)
	assert.Equal(t, 3, campaign.EndpointCount)
	assert.Equal(t, []string{"GET", "POST"}, campaign.Methods)
}

func TestNotFoundMappings(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	apiID := ingestFixture(t, store)

	_, err := store.GetAPIByName(ctx, "ghost")
	assert.True(t, apperrors.IsNotFound(err))

	_, err = store.GetAPI(ctx, 99999)
	assert.True(t, apperrors.IsNotFound(err))

	_, err = store.GetEndpointByID(ctx, apiID, 99999)
	assert.True(t, apperrors.IsNotFound(err))

	eps, err := store.GetEndpointsByPath(ctx, apiID, "/nope")
	require.NoError(t, err)
	assert.Empty(t, eps)
}

func TestListAPIs_NewestFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	ingestFixture(t, store)

	second := performanceAPI()
	second.Name = "seller"
	second.Title = "Seller API"
	_, err := store.ReplaceAPI(ctx, second, nil, nil, nil)
	require.NoError(t, err)

	apis, err := store.ListAPIs(ctx)
	require.NoError(t, err)
	require.Len(t, apis, 2)
	assert.Equal(t, "seller", apis[0].Name)
	assert.Equal(t, "performance", apis[1].Name)
}

func TestBuildMatchQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"video statistics", `"video" "statistics"`},
		{"campaign-list_v2", `"campaign-list_v2"`},
		{"  spaced   out  ", `"spaced" "out"`},
		{"кампании", `"кампании"`},
		{`"quoted" AND (grouped)`, `"quoted" "AND" "grouped"`},
		{"", ""},
		{"   ", ""},
		{"()*&^", ""},
	}
	for _, test := range tests {
		assert.Equal(t, test.want, BuildMatchQuery(test.in), "input: %q", test.in)
	}
}

func TestClampReadPool(t *testing.T) {
	assert.Equal(t, 5, clampReadPool(0))
	assert.Equal(t, 5, clampReadPool(4))
	assert.Equal(t, 10, clampReadPool(10))
	assert.Equal(t, 20, clampReadPool(64))
}
