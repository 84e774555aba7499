package categorize

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salacoste/openapi-mcp-swagger-sub001/pkg/types"
)

func tagTable() []types.TagDefinition {
	return []types.TagDefinition{
		{Name: "Campaign", Description: "Campaign management", DisplayName: "Кампании"},
		{Name: "Statistics", Description: "Performance reports"},
		{Name: "Ad", Description: "Ad objects"},
		{Name: "Product", Description: "Products"},
		{Name: "Search-Promo", Description: "Search promotion"},
		{Name: "Vendor", Description: "Vendor operations"},
	}
}

func groupTable() []types.TagGroupDefinition {
	return []types.TagGroupDefinition{
		{Name: "Promotion", Tags: []string{"Campaign", "Ad", "Search-Promo"}},
		{Name: "Analytics", Tags: []string{"Statistics"}},
	}
}

func TestCategorize_FirstTagWins(t *testing.T) {
	c := New(tagTable(), groupTable())

	ep := &types.Endpoint{
		Path:   "/api/client/statistics/video",
		Method: "POST",
		Tags:   []string{"Statistics", "Video"},
	}
	a := c.Categorize(ep)

	assert.Equal(t, "Statistics", a.Name)
	assert.Equal(t, "Analytics", a.Group)
	assert.Equal(t, "Performance reports", a.Description)
}

func TestCategorize_TagMetadataCopied(t *testing.T) {
	c := New(tagTable(), groupTable())

	a := c.Categorize(&types.Endpoint{Path: "/api/client/campaign", Method: "GET", Tags: []string{"Campaign"}})

	assert.Equal(t, "Campaign", a.Name)
	assert.Equal(t, "Кампании", a.DisplayName)
	assert.Equal(t, "Promotion", a.Group)
}

func TestCategorize_UndeclaredTagStillCategorizes(t *testing.T) {
	c := New(tagTable(), groupTable())

	a := c.Categorize(&types.Endpoint{Path: "/x", Method: "GET", Tags: []string{"Internal"}})

	assert.Equal(t, "Internal", a.Name)
	assert.Empty(t, a.Group)
	assert.Empty(t, a.DisplayName)
	assert.Empty(t, a.Description)
}

func TestCategorize_PathFallback(t *testing.T) {
	c := New(nil, nil)

	a := c.Categorize(&types.Endpoint{Path: "/api/client/campaign", Method: "GET"})
	assert.Equal(t, "client", a.Name)
	assert.Empty(t, a.Group)
}

func TestCategorize_Uncategorized(t *testing.T) {
	c := New(tagTable(), groupTable())

	for _, path := range []string{"/", "/{id}", "/v1", ""} {
		a := c.Categorize(&types.Endpoint{Path: path, Method: "GET"})
		assert.Equal(t, types.UncategorizedName, a.Name, "path %q", path)
		assert.Empty(t, a.Group)
	}
}

func TestCategoryFromPath(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"/api/client/campaign", "client"},
		{"/api/v1/products/{id}", "products"},
		{"/v2/statistics/video", "statistics"},
		{"/v1/products", "products"},
		{"/users", "users"},
		{"/Search_Promo/bids", "bids"},
		{"/api/search_promo", "search_promo"},
		{"/api/Client", "client"},
		{"/api/v3", "api"},
		{"/{campaignId}/objects", "objects"},
		{"/v1", ""},
		{"/{id}", ""},
		{"/", ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, CategoryFromPath(tt.path))
		})
	}
}

func TestApply_WritesAssignment(t *testing.T) {
	c := New(tagTable(), groupTable())

	ep := &types.Endpoint{Path: "/api/client/ad", Method: "POST", Tags: []string{"Ad"}}
	c.Apply(ep)

	assert.Equal(t, "Ad", ep.Category)
	assert.Equal(t, "Promotion", ep.CategoryGroup)
}

func catalogEndpoints() []*types.Endpoint {
	counts := []struct {
		tag     string
		n       int
		methods []string
	}{
		{"Campaign", 4, []string{"GET", "POST", "GET", "POST"}},
		{"Statistics", 13, []string{"POST"}},
		{"Ad", 5, []string{"GET", "POST", "PUT", "GET", "DELETE"}},
		{"Product", 5, []string{"GET"}},
		{"Search-Promo", 9, []string{"POST", "GET"}},
		{"Vendor", 4, []string{"GET", "PATCH"}},
	}

	var out []*types.Endpoint
	for _, c := range counts {
		for i := 0; i < c.n; i++ {
			out = append(out, &types.Endpoint{
				Path:   fmt.Sprintf("/api/client/%s/op%d", c.tag, i),
				Method: c.methods[i%len(c.methods)],
				Tags:   []string{c.tag},
			})
		}
	}
	return out
}

func TestRollup_CatalogShape(t *testing.T) {
	c := New(tagTable(), groupTable())

	endpoints := catalogEndpoints()
	for _, ep := range endpoints {
		c.Apply(ep)
	}
	categories := c.Rollup(endpoints)

	require.Len(t, categories, 6)
	assert.Equal(t, "Ad", categories[0].Name)

	total := 0
	names := make([]string, 0, len(categories))
	for _, cat := range categories {
		total += cat.EndpointCount
		names = append(names, cat.Name)
	}
	assert.Equal(t, 40, total)
	assert.Equal(t, []string{"Ad", "Campaign", "Product", "Search-Promo", "Statistics", "Vendor"}, names)

	byName := make(map[string]*types.Category)
	for _, cat := range categories {
		byName[cat.Name] = cat
	}
	assert.Equal(t, 13, byName["Statistics"].EndpointCount)
	assert.Equal(t, []string{"POST"}, byName["Statistics"].Methods)
	assert.Equal(t, []string{"DELETE", "GET", "POST", "PUT"}, byName["Ad"].Methods)
	assert.Equal(t, "Кампании", byName["Campaign"].DisplayName)
	assert.Equal(t, "Promotion", byName["Campaign"].Group)
	assert.Equal(t, "Analytics", byName["Statistics"].Group)
}

func TestRollup_DeclaredTagWithoutEndpointsHasZeroCount(t *testing.T) {
	c := New(tagTable(), groupTable())

	endpoints := []*types.Endpoint{
		{Path: "/api/client/campaign", Method: "GET", Tags: []string{"Campaign"}},
	}
	for _, ep := range endpoints {
		c.Apply(ep)
	}
	categories := c.Rollup(endpoints)

	require.Len(t, categories, 6)
	byName := make(map[string]*types.Category)
	for _, cat := range categories {
		byName[cat.Name] = cat
	}
	assert.Equal(t, 1, byName["Campaign"].EndpointCount)
	assert.Equal(t, 0, byName["Vendor"].EndpointCount)
	assert.Empty(t, byName["Vendor"].Methods)
}

func TestRollup_UncategorizedBucket(t *testing.T) {
	c := New(nil, nil)

	endpoints := []*types.Endpoint{
		{Path: "/", Method: "GET"},
		{Path: "/{id}", Method: "DELETE"},
	}
	for _, ep := range endpoints {
		c.Apply(ep)
	}
	categories := c.Rollup(endpoints)

	require.Len(t, categories, 1)
	assert.Equal(t, types.UncategorizedName, categories[0].Name)
	assert.Equal(t, 2, categories[0].EndpointCount)
	assert.Equal(t, []string{"DELETE", "GET"}, categories[0].Methods)
}

func TestTagFromCategory(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"statistics", "Statistics"},
		{"search_promo", "Search-promo"},
		{"Search-Promo", "Search-Promo"},
		{"ad", "Ad"},
		{"продвижение", "Продвижение"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, TagFromCategory(tt.in), "input %q", tt.in)
	}
}
