package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fredcamaral/gomcp-sdk/protocol"

	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/mcp"
)

// handleMCP serves MCP-framed JSON-RPC (initialize, tools/*, resources/*)
// over plain POST.
func (r *Router) handleMCP(w http.ResponseWriter, req *http.Request) {
	var rpcReq protocol.JSONRPCRequest
	if err := json.NewDecoder(req.Body).Decode(&rpcReq); err != nil {
		writeJSONError(w, http.StatusBadRequest, "request is not valid JSON")
		return
	}
	resp := r.mcp.MCPServer().HandleRequest(req.Context(), &rpcReq)
	writeRPCResponse(w, r, resp)
}

// handleRPC serves the four retrieval methods as plain JSON-RPC.
func (r *Router) handleRPC(w http.ResponseWriter, req *http.Request) {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "read request body")
		return
	}
	resp := r.dispatcher.Handle(req.Context(), body)
	writeRPCResponse(w, r, resp)
}

func writeRPCResponse(w http.ResponseWriter, r *Router, resp *protocol.JSONRPCResponse) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		r.logger.Error("encode response", "error", err.Error())
	}
}

// sseHeartbeatInterval paces keepalive events on the stream.
const sseHeartbeatInterval = 30 * time.Second

// handleSSEStream holds the connection open and emits heartbeats so clients
// behind proxies can detect a dead server.
func (r *Router) handleSSEStream(w http.ResponseWriter, req *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// The server-wide write timeout would sever the stream mid-life. Clear it
	// for this connection and let the heartbeat cadence expose dead peers.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	_, _ = fmt.Fprintf(w, "data: {\"type\":\"connected\",\"server\":%q,\"protocols\":[\"json-rpc\",\"sse\"]}\n\n", mcp.ServerName)
	flusher.Flush()

	ticker := time.NewTicker(sseHeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_, _ = fmt.Fprintf(w, "data: {\"type\":\"heartbeat\",\"timestamp\":%q}\n\n",
				time.Now().UTC().Format(time.RFC3339))
			flusher.Flush()
		case <-req.Context().Done():
			return
		}
	}
}

type healthStatus struct {
	Status  string `json:"status"`
	Server  string `json:"server"`
	Version string `json:"version"`
	Store   string `json:"store"`
}

// handleHealth reports liveness plus a store ping.
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	status := healthStatus{
		Status:  "ok",
		Server:  mcp.ServerName,
		Version: mcp.ServerVersion,
		Store:   "ok",
	}
	code := http.StatusOK
	if err := r.store.Ping(req.Context()); err != nil {
		status.Status = "degraded"
		status.Store = err.Error()
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}
