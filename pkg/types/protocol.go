package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// EndpointID is the polymorphic endpoint identifier accepted over the wire:
// either the numeric surrogate key or the canonical path string. A string of
// digits is treated as the numeric form so "1" and 1 resolve identically.
type EndpointID struct {
	Num     int64
	Path    string
	Numeric bool
}

// NumericEndpointID builds the numeric form.
func NumericEndpointID(id int64) EndpointID {
	return EndpointID{Num: id, Numeric: true}
}

// PathEndpointID builds the path form.
func PathEndpointID(path string) EndpointID {
	return EndpointID{Path: path}
}

// ParseEndpointID normalizes a decoded JSON value into an EndpointID.
// Accepted forms: JSON numbers, numeric strings, and path strings.
func ParseEndpointID(v interface{}) (EndpointID, error) {
	switch t := v.(type) {
	case nil:
		return EndpointID{}, fmt.Errorf("endpointId is required")
	case float64:
		if t != float64(int64(t)) {
			return EndpointID{}, fmt.Errorf("endpointId must be an integer, got %v", t)
		}
		return NumericEndpointID(int64(t)), nil
	case int:
		return NumericEndpointID(int64(t)), nil
	case int64:
		return NumericEndpointID(t), nil
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return EndpointID{}, fmt.Errorf("endpointId must be an integer, got %s", t.String())
		}
		return NumericEndpointID(n), nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return EndpointID{}, fmt.Errorf("endpointId is required")
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return NumericEndpointID(n), nil
		}
		return PathEndpointID(s), nil
	case EndpointID:
		return t, nil
	default:
		return EndpointID{}, fmt.Errorf("endpointId must be a number or string, got %T", v)
	}
}

// UnmarshalJSON accepts both wire forms.
func (e *EndpointID) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return err
	}
	parsed, err := ParseEndpointID(v)
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// MarshalJSON writes the form the identifier was given in.
func (e EndpointID) MarshalJSON() ([]byte, error) {
	if e.Numeric {
		return json.Marshal(e.Num)
	}
	return json.Marshal(e.Path)
}

// String renders the identifier for messages.
func (e EndpointID) String() string {
	if e.Numeric {
		return strconv.FormatInt(e.Num, 10)
	}
	return e.Path
}

// EndpointSummary is one search hit.
type EndpointSummary struct {
	EndpointID int64    `json:"endpoint_id"`
	Path       string   `json:"path"`
	Method     string   `json:"method"`
	Summary    string   `json:"summary,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Category   string   `json:"category"`
	Deprecated bool     `json:"deprecated,omitempty"`
	Score      float64  `json:"score"`
}

// SearchEndpointsRequest carries the searchEndpoints parameters.
type SearchEndpointsRequest struct {
	Keywords      string   `json:"keywords" mapstructure:"keywords"`
	HTTPMethods   []string `json:"httpMethods,omitempty" mapstructure:"httpMethods"`
	Category      string   `json:"category,omitempty" mapstructure:"category"`
	CategoryGroup string   `json:"categoryGroup,omitempty" mapstructure:"categoryGroup"`
	Page          int      `json:"page,omitempty" mapstructure:"page"`
	PerPage       int      `json:"perPage,omitempty" mapstructure:"perPage"`
}

// SearchFilters echoes the filters a search ran with.
type SearchFilters struct {
	Keywords      string   `json:"keywords"`
	HTTPMethods   []string `json:"httpMethods,omitempty"`
	Category      string   `json:"category,omitempty"`
	CategoryGroup string   `json:"categoryGroup,omitempty"`
}

// Pagination echoes the window a search returned.
type Pagination struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// SearchEndpointsResult is the searchEndpoints response.
type SearchEndpointsResult struct {
	Endpoints  []EndpointSummary `json:"endpoints"`
	Total      int               `json:"total"`
	Filters    SearchFilters     `json:"filters"`
	Pagination Pagination        `json:"pagination"`
}

// GetSchemaRequest carries the getSchema parameters.
type GetSchemaRequest struct {
	ComponentName   string `json:"componentName" mapstructure:"componentName"`
	MaxDepth        int    `json:"maxDepth,omitempty" mapstructure:"maxDepth"`
	IncludeExamples *bool  `json:"includeExamples,omitempty" mapstructure:"includeExamples"`
}

// SchemaUsage records one endpoint that references the requested schema and
// where the reference sits.
type SchemaUsage struct {
	EndpointID int64  `json:"endpoint_id"`
	Path       string `json:"path"`
	Method     string `json:"method"`
	Usage      string `json:"usage"`
}

// Schema usage sites.
const (
	UsageRequest  = "request"
	UsageResponse = "response"
)

// GetSchemaResult is the getSchema response: the root schema plus every
// schema reachable within maxDepth, keyed by component name.
type GetSchemaResult struct {
	ComponentName     string                     `json:"componentName"`
	Schema            json.RawMessage            `json:"schema"`
	ReferencedSchemas map[string]json.RawMessage `json:"referencedSchemas"`
	UsedBy            []SchemaUsage              `json:"usedBy"`
	MaxDepth          int                        `json:"maxDepth"`
}

// GetExampleRequest carries the getExample parameters.
type GetExampleRequest struct {
	EndpointID EndpointID `json:"endpointId"`
	Language   string     `json:"language,omitempty" mapstructure:"language"`
}

// ExampleMetadata describes how to run a rendered example.
type ExampleMetadata struct {
	AuthScheme   string   `json:"authScheme,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
	Notes        string   `json:"notes,omitempty"`
}

// GetExampleResult is the getExample response.
type GetExampleResult struct {
	EndpointID int64           `json:"endpointId"`
	Path       string          `json:"path"`
	Method     string          `json:"method"`
	Language   string          `json:"language"`
	Code       string          `json:"code"`
	Metadata   ExampleMetadata `json:"metadata"`
}

// GetEndpointCategoriesRequest carries the getEndpointCategories parameters.
type GetEndpointCategoriesRequest struct {
	CategoryGroup string `json:"categoryGroup,omitempty" mapstructure:"categoryGroup"`
	IncludeEmpty  bool   `json:"includeEmpty,omitempty" mapstructure:"includeEmpty"`
	SortBy        string `json:"sortBy,omitempty" mapstructure:"sortBy"`
}

// Category catalog sort keys.
const (
	SortByName          = "name"
	SortByEndpointCount = "endpointCount"
	SortByGroup         = "group"
)

// CategorySummary is one catalog entry.
type CategorySummary struct {
	Name          string   `json:"name"`
	DisplayName   string   `json:"display_name,omitempty"`
	Description   string   `json:"description,omitempty"`
	Group         string   `json:"group,omitempty"`
	EndpointCount int      `json:"endpoint_count"`
	Methods       []string `json:"methods"`
}

// GroupSummary lists the member categories of one group.
type GroupSummary struct {
	Name       string   `json:"name"`
	Categories []string `json:"categories"`
}

// CatalogMetadata carries the catalog totals.
type CatalogMetadata struct {
	TotalEndpoints  int `json:"totalEndpoints"`
	TotalCategories int `json:"totalCategories"`
}

// GetEndpointCategoriesResult is the getEndpointCategories response.
type GetEndpointCategoriesResult struct {
	Categories []CategorySummary `json:"categories"`
	Groups     []GroupSummary    `json:"groups"`
	Metadata   CatalogMetadata   `json:"metadata"`
}
