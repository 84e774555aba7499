package parser

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/salacoste/openapi-mcp-swagger-sub001/pkg/types"
)

// Wire shapes decoded from bounded subtrees of the document.

type infoJSON struct {
	Title       string `json:"title"`
	Version     string `json:"version"`
	Description string `json:"description"`
}

type serverJSON struct {
	URL string `json:"url"`
}

type tagJSON struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	DisplayName string `json:"x-displayName"`
}

type tagGroupJSON struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

type parameterJSON struct {
	Name        string          `json:"name"`
	In          string          `json:"in"`
	Description string          `json:"description"`
	Required    bool            `json:"required"`
	Schema      json.RawMessage `json:"schema"`
}

type mediaTypeJSON struct {
	Schema json.RawMessage `json:"schema"`
}

type requestBodyJSON struct {
	Description string                   `json:"description"`
	Required    bool                     `json:"required"`
	Content     map[string]mediaTypeJSON `json:"content"`
}

type responseJSON struct {
	Description string                   `json:"description"`
	Content     map[string]mediaTypeJSON `json:"content"`
}

type operationJSON struct {
	Summary     string                      `json:"summary"`
	Description string                      `json:"description"`
	OperationID string                      `json:"operationId"`
	Tags        []string                    `json:"tags"`
	Deprecated  bool                        `json:"deprecated"`
	Parameters  []parameterJSON             `json:"parameters"`
	RequestBody *requestBodyJSON            `json:"requestBody"`
	Responses   map[string]responseJSON     `json:"responses"`
	Security    []types.SecurityRequirement `json:"security"`
}

type securitySchemeJSON struct {
	Type         string `json:"type"`
	Scheme       string `json:"scheme"`
	In           string `json:"in"`
	ParamName    string `json:"name"`
	BearerFormat string `json:"bearerFormat"`
	Description  string `json:"description"`
}

func buildEndpoint(path, method string, op *operationJSON) *types.Endpoint {
	ep := &types.Endpoint{
		Path:        path,
		Method:      method,
		OperationID: op.OperationID,
		Summary:     op.Summary,
		Description: op.Description,
		Tags:        op.Tags,
		Deprecated:  op.Deprecated,
		Parameters:  convertParameters(op.Parameters),
		Security:    op.Security,
	}

	if op.RequestBody != nil {
		contentType, media := pickContent(op.RequestBody.Content)
		body := &types.RequestBody{
			Description: op.RequestBody.Description,
			Required:    op.RequestBody.Required,
			ContentType: contentType,
		}
		fillSchema(&body.SchemaRef, &body.Schema, media)
		ep.RequestBody = body
	}

	if len(op.Responses) > 0 {
		ep.Responses = make(map[string]types.Response, len(op.Responses))
		for status, resp := range op.Responses {
			contentType, media := pickContent(resp.Content)
			out := types.Response{
				Description: resp.Description,
				ContentType: contentType,
			}
			fillSchema(&out.SchemaRef, &out.Schema, media)
			ep.Responses[status] = out
		}
	}

	return ep
}

func convertParameters(params []parameterJSON) []types.Parameter {
	if len(params) == 0 {
		return nil
	}
	out := make([]types.Parameter, 0, len(params))
	for _, p := range params {
		if p.Name == "" {
			continue
		}
		out = append(out, types.Parameter{
			Name:        p.Name,
			In:          p.In,
			Description: p.Description,
			Required:    p.Required,
			Schema:      p.Schema,
		})
	}
	return out
}

// pickContent selects one media type deterministically: application/json
// when present, otherwise the lexicographically first key.
func pickContent(content map[string]mediaTypeJSON) (string, json.RawMessage) {
	if len(content) == 0 {
		return "", nil
	}
	if media, ok := content["application/json"]; ok {
		return "application/json", media.Schema
	}
	keys := make([]string, 0, len(content))
	for k := range content {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys[0], content[keys[0]].Schema
}

// fillSchema splits a media schema into a component reference or an inline
// body.
func fillSchema(ref *string, schema *json.RawMessage, raw json.RawMessage) {
	if len(raw) == 0 {
		return
	}
	if name := topLevelRef(raw); name != "" {
		*ref = name
		return
	}
	*schema = raw
}

// topLevelRef returns the component name when raw is an object whose $ref
// points into components/schemas.
func topLevelRef(raw json.RawMessage) string {
	var probe struct {
		Ref string `json:"$ref"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	return RefName(probe.Ref)
}

// RefName extracts the component name from a local schema reference, or ""
// for anything else (external refs stay unresolved).
func RefName(ref string) string {
	const prefix = "#/components/schemas/"
	if strings.HasPrefix(ref, prefix) {
		return ref[len(prefix):]
	}
	return ""
}

// CollectRefs walks a schema body and returns the referenced component
// names in first-seen order, deduplicated.
func CollectRefs(body json.RawMessage) []string {
	if len(body) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(body, &v); err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var out []string
	var walk func(node interface{})
	walk = func(node interface{}) {
		switch n := node.(type) {
		case map[string]interface{}:
			keys := make([]string, 0, len(n))
			for k := range n {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				if k == "$ref" {
					if s, ok := n[k].(string); ok {
						if name := RefName(s); name != "" && !seen[name] {
							seen[name] = true
							out = append(out, name)
						}
					}
					continue
				}
				walk(n[k])
			}
		case []interface{}:
			for _, e := range n {
				walk(e)
			}
		}
	}
	walk(v)
	return out
}
