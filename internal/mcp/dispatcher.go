package mcp

import (
	"context"
	"encoding/json"

	"github.com/fredcamaral/gomcp-sdk/protocol"

	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/apperrors"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/logging"
)

// Dispatcher answers plain JSON-RPC 2.0 calls that name the four retrieval
// methods directly, bypassing the MCP session envelope. Domain failures map
// onto the error bands: -32602 for invalid parameters, -32000 with a subcode
// for not-found, store-unavailable, cancelled, and timeout.
type Dispatcher struct {
	server *Server
	logger logging.Logger
}

// NewDispatcher creates a dispatcher over the server's tool handlers.
func NewDispatcher(server *Server, logger logging.Logger) *Dispatcher {
	return &Dispatcher{server: server, logger: logger.WithComponent("rpc")}
}

// Handle decodes one raw JSON-RPC request and dispatches it.
func (d *Dispatcher) Handle(ctx context.Context, raw []byte) *protocol.JSONRPCResponse {
	var req protocol.JSONRPCRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return &protocol.JSONRPCResponse{
			JSONRPC: "2.0",
			Error:   protocol.NewJSONRPCError(protocol.ParseError, "request is not valid JSON", err.Error()),
		}
	}
	return d.HandleRequest(ctx, &req)
}

// HandleRequest dispatches one decoded request.
func (d *Dispatcher) HandleRequest(ctx context.Context, req *protocol.JSONRPCRequest) *protocol.JSONRPCResponse {
	if req.JSONRPC != "" && req.JSONRPC != "2.0" {
		return &protocol.JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   protocol.NewJSONRPCError(protocol.InvalidRequest, "unsupported JSON-RPC version", req.JSONRPC),
		}
	}

	args, err := requestArgs(req.Params)
	if err != nil {
		return apperrors.ToJSONRPCError(req.ID, err)
	}

	var handler func(context.Context, map[string]interface{}) (interface{}, error)
	switch req.Method {
	case MethodSearchEndpoints:
		handler = d.server.handleSearchEndpoints
	case MethodGetSchema:
		handler = d.server.handleGetSchema
	case MethodGetEndpointCategories:
		handler = d.server.handleGetEndpointCategories
	case MethodGetExample:
		handler = d.server.handleGetExample
	default:
		return &protocol.JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   protocol.NewJSONRPCError(protocol.MethodNotFound, "unknown method", req.Method),
		}
	}

	result, err := handler(ctx, args)
	if err != nil {
		d.logger.Warn("request failed", "method", req.Method, "error", err.Error())
		return apperrors.ToJSONRPCError(req.ID, err)
	}
	return &protocol.JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: result}
}

// requestArgs normalizes the params field: absent params become an empty
// argument map, positional params are rejected.
func requestArgs(params interface{}) (map[string]interface{}, error) {
	switch t := params.(type) {
	case nil:
		return map[string]interface{}{}, nil
	case map[string]interface{}:
		return t, nil
	default:
		return nil, apperrors.NewInvalidArgument("params", "params must be an object")
	}
}
