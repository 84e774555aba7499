package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/config"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/docs"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/ingest"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/logging"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/mcp"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/ratelimit"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/render"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/search"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/storage"
	"github.com/salacoste/openapi-mcp-swagger-sub001/pkg/types"
)

const routerDoc = `{
  "openapi": "3.0.1",
  "info": {"title": "Performance API", "version": "2.0.0"},
  "servers": [{"url": "https://api.performance.example"}],
  "tags": [{"name": "Campaign"}],
  "paths": {
    "/api/client/campaign": {
      "get": {"summary": "List campaigns", "tags": ["Campaign"]},
      "post": {"summary": "Create campaign", "tags": ["Campaign"]}
    },
    "/api/client/statistics": {
      "post": {"summary": "Request statistics report", "tags": ["Statistics"]}
    }
  }
}`

type routerFixture struct {
	router *Router
	store  storage.Store
}

func newTestRouter(t *testing.T, mutate func(*config.Config), limiter ratelimit.Limiter) *routerFixture {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.DataDir = t.TempDir()
	if mutate != nil {
		mutate(cfg)
	}

	store, err := storage.OpenSQLite(context.Background(), cfg, logging.NewNoOp())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	pipeline := ingest.NewPipeline(store, logging.NewNoOp())
	_, err = pipeline.Run(context.Background(), strings.NewReader(routerDoc), "performance")
	require.NoError(t, err)

	searchSvc := search.NewService(store, cfg.Search, logging.NewNoOp())
	renderer := render.NewRenderer(store, logging.NewNoOp())
	mcpServer := mcp.NewServer(store, searchSvc, renderer, cfg, logging.NewNoOp())
	site := docs.NewSite(searchSvc, logging.NewNoOp())

	return &routerFixture{
		router: NewRouter(cfg, mcpServer, store, site, limiter, logging.NewNoOp()),
		store:  store,
	}
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

type rpcEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	} `json:"error"`
}

func TestRPCEndpoint(t *testing.T) {
	f := newTestRouter(t, nil, nil)

	rec := doJSON(t, f.router.Handler(), http.MethodPost, "/rpc",
		`{"jsonrpc": "2.0", "id": 1, "method": "searchEndpoints", "params": {"keywords": "statistics"}}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope rpcEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Nil(t, envelope.Error)

	var result types.SearchEndpointsResult
	require.NoError(t, json.Unmarshal(envelope.Result, &result))
	assert.Equal(t, 1, result.Total)
	require.Len(t, result.Endpoints, 1)
	assert.Equal(t, "/api/client/statistics", result.Endpoints[0].Path)
}

func TestRPCEndpointDomainError(t *testing.T) {
	f := newTestRouter(t, nil, nil)

	rec := doJSON(t, f.router.Handler(), http.MethodPost, "/rpc",
		`{"jsonrpc": "2.0", "id": 2, "method": "getSchema", "params": {"componentName": "Missing"}}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope rpcEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, -32000, envelope.Error.Code)
	assert.Contains(t, string(envelope.Error.Data), `"subcode":1`)
}

func TestMCPEndpointToolsList(t *testing.T) {
	f := newTestRouter(t, nil, nil)

	rec := doJSON(t, f.router.Handler(), http.MethodPost, "/mcp",
		`{"jsonrpc": "2.0", "id": 3, "method": "tools/list"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope rpcEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Nil(t, envelope.Error)

	var result struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(envelope.Result, &result))
	assert.Len(t, result.Tools, 4)
}

func TestMCPEndpointRejectsBadJSON(t *testing.T) {
	f := newTestRouter(t, nil, nil)

	rec := doJSON(t, f.router.Handler(), http.MethodPost, "/mcp", `{"jsonrpc":`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	f := newTestRouter(t, nil, nil)

	rec := doJSON(t, f.router.Handler(), http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var status healthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, "ok", status.Store)
	assert.Equal(t, mcp.ServerName, status.Server)
}

func TestHealthDegradedWhenStoreIsDown(t *testing.T) {
	f := newTestRouter(t, nil, nil)
	require.NoError(t, f.store.Close())

	rec := doJSON(t, f.router.Handler(), http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var status healthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "degraded", status.Status)
}

func TestAPIKeyAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	f := newTestRouter(t, func(cfg *config.Config) {
		cfg.Auth.APIKeyHash = string(hash)
	}, nil)
	handler := f.router.Handler()

	body := `{"jsonrpc": "2.0", "id": 1, "method": "searchEndpoints"}`

	rec := doJSON(t, handler, http.MethodPost, "/rpc", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/rpc", body, map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/rpc", body, map[string]string{"X-API-Key": "s3cret"})
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health bypasses authentication.
	rec = doJSON(t, handler, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitRejectsOverBudget(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(1, time.Minute)
	f := newTestRouter(t, nil, limiter)
	handler := f.router.Handler()

	body := `{"jsonrpc": "2.0", "id": 1, "method": "searchEndpoints"}`

	rec := doJSON(t, handler, http.MethodPost, "/rpc", body, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/rpc", body, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Health is not rate limited.
	rec = doJSON(t, handler, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestConcurrencyLimitShedsLoad(t *testing.T) {
	f := newTestRouter(t, func(cfg *config.Config) {
		cfg.Server.MaxInFlight = 1
	}, nil)

	// Occupy the only slot.
	f.router.inFlight <- struct{}{}
	defer func() { <-f.router.inFlight }()

	rec := doJSON(t, f.router.Handler(), http.MethodPost, "/rpc",
		`{"jsonrpc": "2.0", "id": 1, "method": "searchEndpoints"}`, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestCORSPreflight(t *testing.T) {
	f := newTestRouter(t, nil, nil)

	rec := doJSON(t, f.router.Handler(), http.MethodOptions, "/mcp", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestDocsPageServed(t *testing.T) {
	f := newTestRouter(t, nil, nil)

	rec := doJSON(t, f.router.Handler(), http.MethodGet, "/docs", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Performance API")

	rec = doJSON(t, f.router.Handler(), http.MethodGet, "/docs/Campaign", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/api/client/campaign")
}

func TestSSEStreamSendsConnectedEvent(t *testing.T) {
	f := newTestRouter(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/sse", nil)
	ctx, cancel := context.WithCancel(req.Context())
	cancel()
	req = req.WithContext(ctx)

	rec := httptest.NewRecorder()
	f.router.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"type":"connected"`)
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	f := newTestRouter(t, nil, nil)

	rec := doJSON(t, f.router.Handler(), http.MethodGet, "/ws", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebSocketBridge(t *testing.T) {
	f := newTestRouter(t, nil, nil)
	srv := httptest.NewServer(f.router.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	defer func() { _ = resp.Body.Close() }()

	err = conn.WriteMessage(websocket.TextMessage, []byte(
		`{"jsonrpc": "2.0", "id": 1, "method": "searchEndpoints", "params": {"keywords": "campaign"}}`))
	require.NoError(t, err)

	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var envelope rpcEnvelope
	require.NoError(t, json.Unmarshal(payload, &envelope))
	require.Nil(t, envelope.Error)

	var result types.SearchEndpointsResult
	require.NoError(t, json.Unmarshal(envelope.Result, &result))
	assert.Equal(t, 2, result.Total)

	// A second request on the same connection.
	err = conn.WriteMessage(websocket.TextMessage, []byte(
		`{"jsonrpc": "2.0", "id": 2, "method": "nope"}`))
	require.NoError(t, err)

	_, payload, err = conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(payload, &envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, -32601, envelope.Error.Code)
}
