// Package render produces runnable request examples for stored endpoints in
// several client languages. Rendering is deterministic: the same endpoint and
// language always yield the same code string.
package render

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/apperrors"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/logging"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/storage"
	"github.com/salacoste/openapi-mcp-swagger-sub001/pkg/types"
)

// Supported language tags.
const (
	LanguageCurl       = "curl"
	LanguageJavaScript = "javascript"
	LanguageTypeScript = "typescript"
	LanguagePython     = "python"
)

// SupportedLanguages lists the accepted language tags in display order.
var SupportedLanguages = []string{LanguageCurl, LanguageJavaScript, LanguageTypeScript, LanguagePython}

// How many reference levels the body builder follows before emitting an
// empty object.
const bodyRefDepth = 2

// Renderer resolves endpoints and renders request examples.
type Renderer struct {
	store  storage.Store
	logger logging.Logger
}

// NewRenderer creates a renderer on top of an opened store.
func NewRenderer(store storage.Store, logger logging.Logger) *Renderer {
	return &Renderer{store: store, logger: logger.WithComponent("render")}
}

// GetExample renders a request example for one endpoint. The identifier is
// accepted in both wire forms: the numeric surrogate key or the path string.
// A path naming several methods resolves to the lowest surrogate id.
func (r *Renderer) GetExample(ctx context.Context, apiID int64, req *types.GetExampleRequest) (*types.GetExampleResult, error) {
	language, err := normalizeLanguage(req.Language)
	if err != nil {
		return nil, err
	}

	endpoint, err := r.resolveEndpoint(ctx, apiID, req.EndpointID)
	if err != nil {
		return nil, apperrors.FromContext("getExample", err)
	}
	api, err := r.store.GetAPI(ctx, apiID)
	if err != nil {
		return nil, apperrors.FromContext("getExample", err)
	}

	parts := r.buildParts(ctx, api, endpoint)
	code := renderCode(language, parts)

	return &types.GetExampleResult{
		EndpointID: endpoint.ID,
		Path:       endpoint.Path,
		Method:     endpoint.Method,
		Language:   language,
		Code:       code,
		Metadata:   buildMetadata(language, parts),
	}, nil
}

func normalizeLanguage(language string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(language))
	if normalized == "" {
		return LanguageCurl, nil
	}
	for _, supported := range SupportedLanguages {
		if normalized == supported {
			return normalized, nil
		}
	}
	return "", apperrors.NewInvalidArgument("language",
		"unsupported language %q, supported: %s", language, strings.Join(SupportedLanguages, ", "))
}

func (r *Renderer) resolveEndpoint(ctx context.Context, apiID int64, id types.EndpointID) (*types.Endpoint, error) {
	if id.Numeric {
		return r.store.GetEndpointByID(ctx, apiID, id.Num)
	}
	if id.Path == "" {
		return nil, apperrors.NewInvalidArgument("endpointId", "endpointId is required")
	}
	endpoints, err := r.store.GetEndpointsByPath(ctx, apiID, id.Path)
	if err != nil {
		return nil, err
	}
	if len(endpoints) == 0 {
		return nil, apperrors.NewNotFound("endpoint %q not found", id.Path)
	}
	return endpoints[0], nil
}

// exampleParts is the language-neutral request: everything the per-language
// renderers need, already resolved and ordered.
type exampleParts struct {
	Method     string
	URL        string
	Headers    [][2]string
	Body       interface{}
	HasBody    bool
	AuthScheme string
}

func (r *Renderer) buildParts(ctx context.Context, api *types.API, endpoint *types.Endpoint) exampleParts {
	parts := exampleParts{
		Method: endpoint.Method,
		URL:    api.BaseURL() + substitutePathParams(endpoint.Path, endpoint.Parameters),
	}
	if query := requiredQueryString(endpoint.Parameters); query != "" {
		parts.URL += "?" + query
	}

	if endpoint.RequestBody != nil {
		parts.HasBody = true
		parts.Body = r.buildBody(ctx, api.ID, endpoint.RequestBody)
		contentType := endpoint.RequestBody.ContentType
		if contentType == "" {
			contentType = "application/json"
		}
		parts.Headers = append(parts.Headers, [2]string{"Content-Type", contentType})
	}

	scheme, header, queryParam := resolveAuth(api, endpoint)
	parts.AuthScheme = scheme
	if header != [2]string{} {
		parts.Headers = append(parts.Headers, header)
	}
	if queryParam != "" {
		separator := "?"
		if strings.Contains(parts.URL, "?") {
			separator = "&"
		}
		parts.URL += separator + queryParam
	}
	return parts
}

// substitutePathParams replaces {param} segments with placeholder values
// derived from the declared parameter schema: integers become 1, strings
// "example".
func substitutePathParams(path string, params []types.Parameter) string {
	declared := make(map[string]string)
	for _, p := range params {
		if p.In == "path" {
			declared[p.Name] = placeholderString(p.Schema)
		}
	}

	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if !strings.HasPrefix(seg, "{") || !strings.HasSuffix(seg, "}") {
			continue
		}
		name := seg[1 : len(seg)-1]
		if value, ok := declared[name]; ok {
			segments[i] = value
		} else {
			segments[i] = "example"
		}
	}
	return strings.Join(segments, "/")
}

// requiredQueryString renders the required query parameters in declaration
// order.
func requiredQueryString(params []types.Parameter) string {
	var pairs []string
	for _, p := range params {
		if p.In == "query" && p.Required {
			pairs = append(pairs, p.Name+"="+placeholderString(p.Schema))
		}
	}
	return strings.Join(pairs, "&")
}

// placeholderString picks the in-URL placeholder for a parameter schema.
func placeholderString(schema json.RawMessage) string {
	switch schemaType(schema) {
	case "integer", "number":
		return "1"
	case "boolean":
		return "true"
	default:
		return "example"
	}
}

func schemaType(schema json.RawMessage) string {
	if len(schema) == 0 {
		return ""
	}
	var node struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(schema, &node); err != nil {
		return ""
	}
	return node.Type
}

// resolveAuth picks the endpoint's security scheme: the endpoint's own
// requirements win over the root-level ones, and the first declared scheme
// is the last resort. Returns the scheme label plus either a header or a
// query pair to attach.
func resolveAuth(api *types.API, endpoint *types.Endpoint) (scheme string, header [2]string, queryParam string) {
	name := firstRequirementName(endpoint.Security)
	if name == "" {
		name = firstRequirementName(api.Security.Requirements)
	}

	var def types.SecurityScheme
	var ok bool
	if name != "" {
		def, ok = api.Security.Schemes[name]
	}
	if !ok {
		names := make([]string, 0, len(api.Security.Schemes))
		for n := range api.Security.Schemes {
			names = append(names, n)
		}
		if len(names) == 0 {
			return "", [2]string{}, ""
		}
		sort.Strings(names)
		def = api.Security.Schemes[names[0]]
	}

	switch {
	case def.Type == "apiKey" && def.In == "query":
		param := def.ParamName
		if param == "" {
			param = "api_key"
		}
		return "apiKey", [2]string{}, param + "=YOUR_API_KEY"
	case def.Type == "apiKey":
		headerName := def.ParamName
		if headerName == "" {
			headerName = "X-Api-Key"
		}
		return "apiKey", [2]string{headerName, "YOUR_API_KEY"}, ""
	case def.Type == "http" && strings.EqualFold(def.Scheme, "bearer"):
		return "bearer", [2]string{"Authorization", "Bearer YOUR_ACCESS_TOKEN"}, ""
	case def.Type == "http" && strings.EqualFold(def.Scheme, "basic"):
		return "basic", [2]string{"Authorization", "Basic YOUR_CREDENTIALS"}, ""
	case def.Type != "":
		// oauth2, openIdConnect and friends all present as bearer tokens
		return def.Type, [2]string{"Authorization", "Bearer YOUR_ACCESS_TOKEN"}, ""
	default:
		return "", [2]string{}, ""
	}
}

func firstRequirementName(requirements []types.SecurityRequirement) string {
	for _, requirement := range requirements {
		names := make([]string, 0, len(requirement))
		for name := range requirement {
			names = append(names, name)
		}
		if len(names) == 0 {
			continue
		}
		sort.Strings(names)
		return names[0]
	}
	return ""
}

// buildMetadata lists auth scheme, client dependencies, and usage notes.
func buildMetadata(language string, parts exampleParts) types.ExampleMetadata {
	metadata := types.ExampleMetadata{AuthScheme: parts.AuthScheme}
	switch language {
	case LanguagePython:
		metadata.Dependencies = []string{"requests"}
	case LanguageTypeScript:
		metadata.Dependencies = []string{"node-fetch@3"}
	}
	if parts.AuthScheme != "" {
		metadata.Notes = "Replace the credential placeholder with a real value before running."
	}
	return metadata
}
