// Package mcp exposes the retrieval plane over the Model Context Protocol:
// four tools backed by the search and render services, plus read-only
// resources for browsing the stored specifications. A thin dispatcher serves
// the same four methods as plain JSON-RPC for clients that skip the MCP
// session envelope.
package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	mcp "github.com/fredcamaral/gomcp-sdk"
	"github.com/fredcamaral/gomcp-sdk/protocol"
	"github.com/fredcamaral/gomcp-sdk/server"
	"github.com/go-viper/mapstructure/v2"

	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/apperrors"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/config"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/logging"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/render"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/search"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/storage"
	"github.com/salacoste/openapi-mcp-swagger-sub001/pkg/types"
)

// Server identity reported during the MCP handshake.
const (
	ServerName    = "swagger-mcp"
	ServerVersion = "1.0.0"
)

// Retrieval method names, shared by the MCP tools and the plain dispatcher.
const (
	MethodSearchEndpoints       = "searchEndpoints"
	MethodGetSchema             = "getSchema"
	MethodGetEndpointCategories = "getEndpointCategories"
	MethodGetExample            = "getExample"
)

const resourceScheme = "swagger://"

// Server wires the retrieval services into an MCP server instance.
type Server struct {
	store    storage.Store
	search   *search.Service
	render   *render.Renderer
	timeouts config.TimeoutConfig
	logger   logging.Logger

	mcpServer *server.Server
}

// NewServer builds the MCP server and registers its tools and resources.
func NewServer(store storage.Store, searchSvc *search.Service, renderer *render.Renderer, cfg *config.Config, logger logging.Logger) *Server {
	s := &Server{
		store:    store,
		search:   searchSvc,
		render:   renderer,
		timeouts: cfg.Timeouts,
		logger:   logger.WithComponent("mcp"),
	}
	s.mcpServer = mcp.NewServer(ServerName, ServerVersion)
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying protocol server for transports.
func (s *Server) MCPServer() *server.Server {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool(
		MethodSearchEndpoints,
		"Search the ingested API's endpoints by keywords with optional HTTP method, category, and category group filters. Returns one page of matches plus the total count.",
		mcp.ObjectSchema("Endpoint search parameters", map[string]interface{}{
			"keywords": mcp.StringParam("Free-text keywords matched against path, summary, description, operationId, and tags. Empty lists endpoints in path order.", false),
			"httpMethods": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "Restrict results to these HTTP methods, e.g. [\"GET\", \"POST\"].",
			},
			"category":      mcp.StringParam("Filter by category name (case-insensitive). Mutually exclusive with categoryGroup.", false),
			"categoryGroup": mcp.StringParam("Filter by category group name (case-insensitive). Mutually exclusive with category.", false),
			"page":          mcp.NumberParam("Result page, starting at 1.", false),
			"perPage":       mcp.NumberParam("Results per page, capped by the server.", false),
		}, nil),
	), mcp.ToolHandlerFunc(s.handleSearchEndpoints))

	s.mcpServer.AddTool(mcp.NewTool(
		MethodGetSchema,
		"Fetch a schema component with every schema it references expanded up to maxDepth levels, plus the endpoints that use it.",
		mcp.ObjectSchema("Schema resolution parameters", map[string]interface{}{
			"componentName":   mcp.StringParam("Component schema name as declared under components.schemas.", true),
			"maxDepth":        mcp.NumberParam("Reference expansion depth, 1 to 10, default 5.", false),
			"includeExamples": mcp.BooleanParam("Keep example values in the returned schema bodies. Default true.", false),
		}, []string{"componentName"}),
	), mcp.ToolHandlerFunc(s.handleGetSchema))

	s.mcpServer.AddTool(mcp.NewTool(
		MethodGetEndpointCategories,
		"List the endpoint category catalog: per-category counts and methods, group membership, and totals.",
		mcp.ObjectSchema("Category catalog parameters", map[string]interface{}{
			"categoryGroup": mcp.StringParam("Only categories belonging to this group.", false),
			"includeEmpty":  mcp.BooleanParam("Include declared categories that have no endpoints. Default false.", false),
			"sortBy": map[string]interface{}{
				"type":        "string",
				"enum":        []string{types.SortByName, types.SortByEndpointCount, types.SortByGroup},
				"description": "Catalog order: name (default), endpointCount (descending), or group.",
			},
		}, nil),
	), mcp.ToolHandlerFunc(s.handleGetEndpointCategories))

	s.mcpServer.AddTool(mcp.NewTool(
		MethodGetExample,
		"Render a runnable request example for one endpoint in curl, javascript, typescript, or python.",
		mcp.ObjectSchema("Example rendering parameters", map[string]interface{}{
			"endpointId": map[string]interface{}{
				"description": "Endpoint identifier: the numeric id from a search result, or the path string such as /api/client/campaign.",
			},
			"language": map[string]interface{}{
				"type":        "string",
				"enum":        render.SupportedLanguages,
				"description": "Example language, default curl.",
			},
		}, []string{"endpointId"}),
	), mcp.ToolHandlerFunc(s.handleGetExample))
}

func (s *Server) registerResources() {
	resources := []struct {
		uri         string
		name        string
		description string
	}{
		{
			uri:         "swagger://apis",
			name:        "Ingested APIs",
			description: "Every specification stored in this instance, newest first",
		},
		{
			uri:         "swagger://{api}/info",
			name:        "API Info",
			description: "Title, version, servers, and security schemes of one API",
		},
		{
			uri:         "swagger://{api}/categories",
			name:        "Category Catalog",
			description: "Endpoint categories of one API with counts and groups",
		},
	}
	for _, res := range resources {
		s.mcpServer.AddResource(
			mcp.NewResource(res.uri, res.name, res.description, "application/json"),
			mcp.ResourceHandlerFunc(s.handleResourceRead),
		)
	}
}

// retrievalContext bounds one retrieval call by the configured deadline.
func (s *Server) retrievalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeouts.RetrievalSeconds <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, time.Duration(s.timeouts.RetrievalSeconds)*time.Second)
}

// activeAPI picks the specification retrieval operates on.
func (s *Server) activeAPI(ctx context.Context) (int64, error) {
	api, err := s.search.ActiveAPI(ctx)
	if err != nil {
		return 0, err
	}
	return api.ID, nil
}

func decodeArgs(args map[string]interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{Result: out})
	if err != nil {
		return apperrors.NewInternal("build decoder", err)
	}
	if err := dec.Decode(args); err != nil {
		return apperrors.NewInvalidArgument("params", "malformed parameters: %v", err)
	}
	return nil
}

func (s *Server) handleSearchEndpoints(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	var req types.SearchEndpointsRequest
	if err := decodeArgs(args, &req); err != nil {
		return nil, err
	}
	ctx, cancel := s.retrievalContext(ctx)
	defer cancel()

	apiID, err := s.activeAPI(ctx)
	if err != nil {
		return nil, err
	}
	return s.search.SearchEndpoints(ctx, apiID, &req)
}

func (s *Server) handleGetSchema(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	var req types.GetSchemaRequest
	if err := decodeArgs(args, &req); err != nil {
		return nil, err
	}
	ctx, cancel := s.retrievalContext(ctx)
	defer cancel()

	apiID, err := s.activeAPI(ctx)
	if err != nil {
		return nil, err
	}
	return s.search.GetSchema(ctx, apiID, &req)
}

func (s *Server) handleGetEndpointCategories(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	var req types.GetEndpointCategoriesRequest
	if err := decodeArgs(args, &req); err != nil {
		return nil, err
	}
	ctx, cancel := s.retrievalContext(ctx)
	defer cancel()

	apiID, err := s.activeAPI(ctx)
	if err != nil {
		return nil, err
	}
	return s.search.GetEndpointCategories(ctx, apiID, &req)
}

func (s *Server) handleGetExample(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	id, err := types.ParseEndpointID(args["endpointId"])
	if err != nil {
		return nil, apperrors.NewInvalidArgument("endpointId", "%v", err)
	}
	req := &types.GetExampleRequest{EndpointID: id}
	if language, ok := args["language"].(string); ok {
		req.Language = language
	}
	ctx, cancel := s.retrievalContext(ctx)
	defer cancel()

	apiID, err := s.activeAPI(ctx)
	if err != nil {
		return nil, err
	}
	return s.render.GetExample(ctx, apiID, req)
}

// handleResourceRead serves the swagger:// resource tree. Concrete URIs of
// the form swagger://apis, swagger://{api}/info, and
// swagger://{api}/categories resolve against the store.
func (s *Server) handleResourceRead(ctx context.Context, uri string) ([]protocol.Content, error) {
	ctx, cancel := s.retrievalContext(ctx)
	defer cancel()

	rest, ok := strings.CutPrefix(uri, resourceScheme)
	if !ok {
		return nil, apperrors.NewNotFound("unknown resource %q", uri)
	}

	if rest == "apis" {
		apis, err := s.store.ListAPIs(ctx)
		if err != nil {
			return nil, apperrors.FromContext("resource", err)
		}
		return jsonContent(apis)
	}

	name, section, found := strings.Cut(rest, "/")
	if !found || name == "" {
		return nil, apperrors.NewNotFound("unknown resource %q", uri)
	}
	api, err := s.store.GetAPIByName(ctx, name)
	if err != nil {
		return nil, apperrors.FromContext("resource", err)
	}

	switch section {
	case "info":
		return jsonContent(api)
	case "categories":
		catalog, err := s.search.GetEndpointCategories(ctx, api.ID, &types.GetEndpointCategoriesRequest{})
		if err != nil {
			return nil, err
		}
		return jsonContent(catalog)
	default:
		return nil, apperrors.NewNotFound("unknown resource %q", uri)
	}
}

func jsonContent(v interface{}) ([]protocol.Content, error) {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, apperrors.NewInternal("encode resource", err)
	}
	return []protocol.Content{protocol.NewContent(string(encoded))}, nil
}
