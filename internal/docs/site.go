// Package docs renders the ingested catalog as browsable HTML: an index of
// categories and one page per category listing its endpoints. Description
// fields are treated as markdown and converted with goldmark.
package docs

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/apperrors"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/logging"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/search"
	"github.com/salacoste/openapi-mcp-swagger-sub001/pkg/types"
)

// Site serves the documentation pages for the active specification.
type Site struct {
	search *search.Service
	md     goldmark.Markdown
	tmpl   *template.Template
	logger logging.Logger
}

// NewSite builds the documentation site over the search service.
func NewSite(searchSvc *search.Service, logger logging.Logger) *Site {
	tmpl := template.New("docs").Funcs(template.FuncMap{
		"categoryURL": CategoryURL,
		"join":        strings.Join,
	})
	return &Site{
		search: searchSvc,
		md:     goldmark.New(),
		tmpl:   template.Must(tmpl.Parse(pageTemplate)),
		logger: logger.WithComponent("docs"),
	}
}

// ServeHTTP routes /docs and /docs/{category}.
func (s *Site) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/docs")
	path = strings.Trim(path, "/")

	var err error
	switch {
	case path == "":
		err = s.serveIndex(w, r)
	default:
		category, unescapeErr := url.PathUnescape(path)
		if unescapeErr != nil {
			category = path
		}
		err = s.serveCategory(w, r, category)
	}
	if err != nil {
		s.logger.Warn("docs page failed", "path", r.URL.Path, "error", err.Error())
		http.Error(w, err.Error(), apperrors.ToHTTPStatus(err))
	}
}

type indexData struct {
	API         *types.API
	Description template.HTML
	Catalog     *types.GetEndpointCategoriesResult
}

func (s *Site) serveIndex(w http.ResponseWriter, r *http.Request) error {
	api, err := s.search.ActiveAPI(r.Context())
	if err != nil {
		return err
	}
	catalog, err := s.search.GetEndpointCategories(r.Context(), api.ID, &types.GetEndpointCategoriesRequest{})
	if err != nil {
		return err
	}
	return s.renderPage(w, "index", indexData{
		API:         api,
		Description: s.markdown(api.Description),
		Catalog:     catalog,
	})
}

type categoryData struct {
	API         *types.API
	Category    types.CategorySummary
	Description template.HTML
	Endpoints   []types.EndpointSummary
}

func (s *Site) serveCategory(w http.ResponseWriter, r *http.Request, name string) error {
	api, err := s.search.ActiveAPI(r.Context())
	if err != nil {
		return err
	}
	summary, err := s.findCategory(r.Context(), api.ID, name)
	if err != nil {
		return err
	}
	result, err := s.search.SearchEndpoints(r.Context(), api.ID, &types.SearchEndpointsRequest{
		Category: summary.Name,
		PerPage:  categoryPageSize,
	})
	if err != nil {
		return err
	}
	return s.renderPage(w, "category", categoryData{
		API:         api,
		Category:    summary,
		Description: s.markdown(summary.Description),
		Endpoints:   result.Endpoints,
	})
}

// categoryPageSize bounds a category listing to one store page.
const categoryPageSize = 500

func (s *Site) findCategory(ctx context.Context, apiID int64, name string) (types.CategorySummary, error) {
	catalog, err := s.search.GetEndpointCategories(ctx, apiID, &types.GetEndpointCategoriesRequest{})
	if err != nil {
		return types.CategorySummary{}, err
	}
	for _, cat := range catalog.Categories {
		if strings.EqualFold(cat.Name, name) {
			return cat, nil
		}
	}
	return types.CategorySummary{}, apperrors.NewNotFound("category %q not found", name)
}

// markdown converts a description to HTML. Raw HTML inside the source is
// dropped by goldmark's default renderer.
func (s *Site) markdown(source string) template.HTML {
	if strings.TrimSpace(source) == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := s.md.Convert([]byte(source), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(source))
	}
	// #nosec G203 -- goldmark's default renderer escapes raw source HTML.
	return template.HTML(buf.String())
}

func (s *Site) renderPage(w http.ResponseWriter, name string, data interface{}) error {
	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return apperrors.NewInternal(fmt.Sprintf("render %s page", name), err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, err := w.Write(buf.Bytes())
	return err
}

// CategoryURL builds the docs link for a category name.
func CategoryURL(name string) string {
	return "/docs/" + url.PathEscape(name)
}

const pageTemplate = `
{{define "head"}}<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.}}</title>
<style>
body { font-family: -apple-system, "Segoe UI", Helvetica, Arial, sans-serif; margin: 2rem auto; max-width: 56rem; padding: 0 1rem; color: #1f2328; }
h1 small { color: #59636e; font-weight: normal; }
table { border-collapse: collapse; width: 100%; margin: 1rem 0; }
th, td { text-align: left; padding: 0.4rem 0.6rem; border-bottom: 1px solid #d1d9e0; }
code, .method { font-family: ui-monospace, SFMono-Regular, Menlo, monospace; font-size: 0.9em; }
.method { font-weight: 600; }
.deprecated { text-decoration: line-through; color: #59636e; }
.group { color: #59636e; font-size: 0.9em; }
a { color: #0969da; text-decoration: none; }
a:hover { text-decoration: underline; }
</style>
</head>
<body>
{{end}}

{{define "foot"}}</body>
</html>
{{end}}

{{define "index"}}{{template "head" .API.Title}}
<h1>{{.API.Title}} <small>{{.API.Version}}</small></h1>
{{with .Description}}<div>{{.}}</div>{{end}}
<p>{{.Catalog.Metadata.TotalEndpoints}} endpoints in {{.Catalog.Metadata.TotalCategories}} categories.</p>
<table>
<tr><th>Category</th><th>Group</th><th>Endpoints</th><th>Methods</th></tr>
{{range .Catalog.Categories}}
<tr>
<td><a href="{{categoryURL .Name}}">{{.Name}}</a>{{with .DisplayName}} <span class="group">{{.}}</span>{{end}}</td>
<td class="group">{{.Group}}</td>
<td>{{.EndpointCount}}</td>
<td><code>{{join .Methods ", "}}</code></td>
</tr>
{{end}}
</table>
{{template "foot"}}{{end}}

{{define "category"}}{{template "head" .Category.Name}}
<p><a href="/docs">&larr; {{.API.Title}}</a></p>
<h1>{{.Category.Name}}{{with .Category.DisplayName}} <small>{{.}}</small>{{end}}</h1>
{{with .Category.Group}}<p class="group">Group: {{.}}</p>{{end}}
{{with .Description}}<div>{{.}}</div>{{end}}
<table>
<tr><th>Method</th><th>Path</th><th>Summary</th></tr>
{{range .Endpoints}}
<tr{{if .Deprecated}} class="deprecated"{{end}}>
<td class="method">{{.Method}}</td>
<td><code>{{.Path}}</code></td>
<td>{{.Summary}}</td>
</tr>
{{end}}
</table>
{{template "foot"}}{{end}}
`
