// Package types provides the shared data structures for the swagger-mcp
// service: parsed specification records, persisted rows, and the shapes
// exchanged over the retrieval protocol.
package types

import (
	"encoding/json"
	"strings"
	"time"
)

// UncategorizedName is the reserved category for endpoints that declare no
// tags and whose path yields no usable segment.
const UncategorizedName = "Uncategorized"

// HTTP methods recognized inside a path item. Anything else is skipped by
// the parser with a warning.
const (
	MethodGet     = "GET"
	MethodPost    = "POST"
	MethodPut     = "PUT"
	MethodPatch   = "PATCH"
	MethodDelete  = "DELETE"
	MethodHead    = "HEAD"
	MethodOptions = "OPTIONS"
)

var knownMethods = map[string]bool{
	MethodGet:     true,
	MethodPost:    true,
	MethodPut:     true,
	MethodPatch:   true,
	MethodDelete:  true,
	MethodHead:    true,
	MethodOptions: true,
}

// IsHTTPMethod reports whether s names a supported HTTP method,
// case-insensitively.
func IsHTTPMethod(s string) bool {
	return knownMethods[strings.ToUpper(strings.TrimSpace(s))]
}

// APIInfo is the parser's record of the specification's info block plus the
// root-level fields the renderer needs (servers, security requirements).
type APIInfo struct {
	Title       string                `json:"title"`
	Version     string                `json:"version"`
	Description string                `json:"description,omitempty"`
	Servers     []string              `json:"servers,omitempty"`
	Security    []SecurityRequirement `json:"security,omitempty"`
}

// SecurityRequirement maps a security scheme name to its required scopes.
type SecurityRequirement map[string][]string

// SecurityScheme is one entry from components.securitySchemes.
type SecurityScheme struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Scheme       string `json:"scheme,omitempty"`
	In           string `json:"in,omitempty"`
	ParamName    string `json:"param_name,omitempty"`
	BearerFormat string `json:"bearer_format,omitempty"`
	Description  string `json:"description,omitempty"`
}

// APISecurity bundles the declared schemes with the root-level requirements
// so both persist in a single column.
type APISecurity struct {
	Schemes      map[string]SecurityScheme `json:"schemes,omitempty"`
	Requirements []SecurityRequirement     `json:"requirements,omitempty"`
}

// TagDefinition is one entry from the specification's top-level tags array.
type TagDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// TagGroupDefinition is one entry from the x-tagGroups extension.
type TagGroupDefinition struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

// Parameter is a single operation parameter kept inline on the endpoint.
type Parameter struct {
	Name        string          `json:"name"`
	In          string          `json:"in"`
	Description string          `json:"description,omitempty"`
	Required    bool            `json:"required,omitempty"`
	Schema      json.RawMessage `json:"schema,omitempty"`
}

// RequestBody records an operation's request body: either a component
// reference or an inline schema, with the first content type seen.
type RequestBody struct {
	Description string          `json:"description,omitempty"`
	Required    bool            `json:"required,omitempty"`
	ContentType string          `json:"content_type,omitempty"`
	SchemaRef   string          `json:"schema_ref,omitempty"`
	Schema      json.RawMessage `json:"schema,omitempty"`
}

// Response is one entry of an operation's response map, keyed by status
// string on the endpoint.
type Response struct {
	Description string          `json:"description,omitempty"`
	ContentType string          `json:"content_type,omitempty"`
	SchemaRef   string          `json:"schema_ref,omitempty"`
	Schema      json.RawMessage `json:"schema,omitempty"`
}

// Endpoint is one (path, method) operation. The parser emits it without
// surrogate keys or category fields; the categorizer and store fill those in.
type Endpoint struct {
	ID                  int64                 `json:"id" db:"id"`
	APIID               int64                 `json:"api_id" db:"api_id"`
	Path                string                `json:"path" db:"path"`
	Method              string                `json:"method" db:"method"`
	OperationID         string                `json:"operation_id,omitempty" db:"operation_id"`
	Summary             string                `json:"summary,omitempty" db:"summary"`
	Description         string                `json:"description,omitempty" db:"description"`
	Tags                []string              `json:"tags,omitempty" db:"tags_json"`
	Deprecated          bool                  `json:"deprecated,omitempty" db:"deprecated"`
	Category            string                `json:"category" db:"category"`
	CategoryGroup       string                `json:"category_group,omitempty" db:"category_group"`
	CategoryDisplayName string                `json:"category_display_name,omitempty" db:"category_display_name"`
	Parameters          []Parameter           `json:"parameters,omitempty" db:"parameters_json"`
	RequestBody         *RequestBody          `json:"request_body,omitempty" db:"request_body_json"`
	Responses           map[string]Response   `json:"responses,omitempty" db:"responses_json"`
	Security            []SecurityRequirement `json:"security,omitempty"`
}

// Schema is a named component definition with its outgoing references
// captured as an adjacency list of component names.
type Schema struct {
	ID         int64           `json:"id" db:"id"`
	APIID      int64           `json:"api_id" db:"api_id"`
	Name       string          `json:"name" db:"name"`
	Body       json.RawMessage `json:"body" db:"body_json"`
	References []string        `json:"references,omitempty" db:"references_json"`
}

// Category is the materialized per-API roll-up of one category name.
type Category struct {
	ID            int64    `json:"id" db:"id"`
	APIID         int64    `json:"api_id" db:"api_id"`
	Name          string   `json:"name" db:"name"`
	DisplayName   string   `json:"display_name,omitempty" db:"display_name"`
	Description   string   `json:"description,omitempty" db:"description"`
	Group         string   `json:"group,omitempty" db:"category_group"`
	EndpointCount int      `json:"endpoint_count" db:"endpoint_count"`
	Methods       []string `json:"methods" db:"methods_json"`
}

// API is one ingested specification, parent of every other row.
type API struct {
	ID          int64       `json:"id" db:"id"`
	Name        string      `json:"name" db:"name"`
	Title       string      `json:"title" db:"title"`
	Version     string      `json:"version" db:"version"`
	Description string      `json:"description,omitempty" db:"description"`
	Digest      string      `json:"digest" db:"digest"`
	Servers     []string    `json:"servers,omitempty" db:"servers_json"`
	Security    APISecurity `json:"security,omitempty" db:"security_json"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
}

// DefaultBaseURL is substituted when a specification declares no servers.
const DefaultBaseURL = "https://api.example.com"

// BaseURL returns the first declared server URL, trimmed of trailing
// slashes, or DefaultBaseURL when the specification declares none.
func (a *API) BaseURL() string {
	if len(a.Servers) > 0 && strings.TrimSpace(a.Servers[0]) != "" {
		return strings.TrimRight(strings.TrimSpace(a.Servers[0]), "/")
	}
	return DefaultBaseURL
}
