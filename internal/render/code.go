package render

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/parser"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/storage"
	"github.com/salacoste/openapi-mcp-swagger-sub001/pkg/types"
)

// buildBody materializes an example literal for the request body: component
// references are resolved through the store, inline schemas used directly.
func (r *Renderer) buildBody(ctx context.Context, apiID int64, body *types.RequestBody) interface{} {
	builder := &bodyBuilder{ctx: ctx, store: r.store, apiID: apiID}
	if body.SchemaRef != "" {
		return builder.fromRef(body.SchemaRef, bodyRefDepth)
	}
	if len(body.Schema) > 0 {
		return builder.fromRaw(body.Schema, bodyRefDepth)
	}
	return map[string]interface{}{}
}

type bodyBuilder struct {
	ctx   context.Context
	store storage.Store
	apiID int64
}

func (b *bodyBuilder) fromRef(name string, depth int) interface{} {
	if depth <= 0 {
		return map[string]interface{}{}
	}
	schema, err := b.store.GetSchemaByName(b.ctx, b.apiID, name)
	if err != nil {
		return map[string]interface{}{}
	}
	return b.fromRaw(schema.Body, depth-1)
}

func (b *bodyBuilder) fromRaw(raw json.RawMessage, depth int) interface{} {
	var node map[string]interface{}
	if err := json.Unmarshal(raw, &node); err != nil {
		return map[string]interface{}{}
	}
	return b.valueFor(node, depth)
}

// valueFor derives an example value from a schema node: a declared example
// wins, then a default, then a type-based placeholder. Reference resolution
// is bounded by depth; past the budget nested objects flatten to {}.
func (b *bodyBuilder) valueFor(node map[string]interface{}, depth int) interface{} {
	if example, ok := node["example"]; ok {
		return example
	}
	if def, ok := node["default"]; ok {
		return def
	}
	if ref, ok := node["$ref"].(string); ok {
		if name := parser.RefName(ref); name != "" {
			return b.fromRef(name, depth)
		}
		return map[string]interface{}{}
	}
	if allOf, ok := node["allOf"].([]interface{}); ok {
		merged := make(map[string]interface{})
		for _, part := range allOf {
			partNode, ok := part.(map[string]interface{})
			if !ok {
				continue
			}
			if obj, ok := b.valueFor(partNode, depth).(map[string]interface{}); ok {
				for key, value := range obj {
					merged[key] = value
				}
			}
		}
		return merged
	}

	switch node["type"] {
	case "integer":
		return 1
	case "number":
		return float64(1)
	case "boolean":
		return true
	case "string":
		return "example"
	case "array":
		items, ok := node["items"].(map[string]interface{})
		if !ok {
			return []interface{}{}
		}
		return []interface{}{b.valueFor(items, depth)}
	default:
		properties, ok := node["properties"].(map[string]interface{})
		if !ok {
			return map[string]interface{}{}
		}
		out := make(map[string]interface{}, len(properties))
		for name, prop := range properties {
			propNode, ok := prop.(map[string]interface{})
			if !ok {
				continue
			}
			out[name] = b.valueFor(propNode, depth)
		}
		return out
	}
}

// renderCode dispatches to the per-language emitters.
func renderCode(language string, parts exampleParts) string {
	switch language {
	case LanguageJavaScript:
		return renderJavaScript(parts, false)
	case LanguageTypeScript:
		return renderJavaScript(parts, true)
	case LanguagePython:
		return renderPython(parts)
	default:
		return renderCurl(parts)
	}
}

func jsonBody(body interface{}, prefix string) string {
	encoded, err := json.MarshalIndent(body, prefix, "  ")
	if err != nil {
		return "{}"
	}
	return string(encoded)
}

func renderCurl(parts exampleParts) string {
	var b strings.Builder
	fmt.Fprintf(&b, "curl -X %s \"%s\"", parts.Method, parts.URL)
	for _, header := range parts.Headers {
		fmt.Fprintf(&b, " \\\n  -H \"%s: %s\"", header[0], header[1])
	}
	if parts.HasBody {
		fmt.Fprintf(&b, " \\\n  -d '%s'", jsonBody(parts.Body, ""))
	}
	b.WriteString("\n")
	return b.String()
}

func renderJavaScript(parts exampleParts, typescript bool) string {
	var b strings.Builder
	if typescript {
		b.WriteString("import fetch from \"node-fetch\";\n\n")
	}
	fmt.Fprintf(&b, "const url = \"%s\";\n\n", parts.URL)

	needsOptions := parts.Method != "GET" || len(parts.Headers) > 0 || parts.HasBody
	if !needsOptions {
		b.WriteString("const response = await fetch(url);\n")
	} else {
		b.WriteString("const response = await fetch(url, {\n")
		fmt.Fprintf(&b, "  method: \"%s\",\n", parts.Method)
		if len(parts.Headers) > 0 {
			b.WriteString("  headers: {\n")
			for _, header := range parts.Headers {
				fmt.Fprintf(&b, "    \"%s\": \"%s\",\n", header[0], header[1])
			}
			b.WriteString("  },\n")
		}
		if parts.HasBody {
			fmt.Fprintf(&b, "  body: JSON.stringify(%s),\n", jsonBody(parts.Body, "  "))
		}
		b.WriteString("});\n")
	}

	b.WriteString("\nconst data = await response.json();\nconsole.log(data);\n")
	return b.String()
}

func renderPython(parts exampleParts) string {
	var b strings.Builder
	b.WriteString("import requests\n\n")
	fmt.Fprintf(&b, "url = \"%s\"\n", parts.URL)
	if len(parts.Headers) > 0 {
		b.WriteString("headers = {\n")
		for _, header := range parts.Headers {
			fmt.Fprintf(&b, "    \"%s\": \"%s\",\n", header[0], header[1])
		}
		b.WriteString("}\n")
	}
	if parts.HasBody {
		fmt.Fprintf(&b, "payload = %s\n", pythonValue(parts.Body, ""))
	}

	args := []string{"url"}
	if len(parts.Headers) > 0 {
		args = append(args, "headers=headers")
	}
	if parts.HasBody {
		args = append(args, "json=payload")
	}
	fmt.Fprintf(&b, "\nresponse = requests.%s(%s)\nprint(response.json())\n",
		strings.ToLower(parts.Method), strings.Join(args, ", "))
	return b.String()
}

// pythonValue renders a decoded JSON value as a Python literal: keys sorted,
// booleans and null in Python spelling.
func pythonValue(v interface{}, indent string) string {
	switch t := v.(type) {
	case nil:
		return "None"
	case bool:
		if t {
			return "True"
		}
		return "False"
	case string:
		return strconv.Quote(t)
	case int:
		return strconv.Itoa(t)
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'g', -1, 64)
	case []interface{}:
		if len(t) == 0 {
			return "[]"
		}
		var b strings.Builder
		b.WriteString("[\n")
		for _, item := range t {
			b.WriteString(indent + "    " + pythonValue(item, indent+"    ") + ",\n")
		}
		b.WriteString(indent + "]")
		return b.String()
	case map[string]interface{}:
		if len(t) == 0 {
			return "{}"
		}
		keys := make([]string, 0, len(t))
		for key := range t {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteString("{\n")
		for _, key := range keys {
			fmt.Fprintf(&b, "%s    %s: %s,\n", indent, strconv.Quote(key), pythonValue(t[key], indent+"    "))
		}
		b.WriteString(indent + "}")
		return b.String()
	default:
		return strconv.Quote(fmt.Sprintf("%v", t))
	}
}
