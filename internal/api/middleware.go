package api

import (
	"net"
	"net/http"
	"strconv"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/logging"
)

// requestLogger tags each request with a trace id and logs its outcome.
// Health probes are skipped to keep the log readable.
func (r *Router) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		traceID := req.Header.Get("X-Request-ID")
		if traceID == "" {
			traceID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", traceID)
		req = req.WithContext(logging.WithTraceID(req.Context(), traceID))

		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, req.ProtoMajor)
		next.ServeHTTP(ww, req)

		if req.URL.Path == "/health" || req.URL.Path == "/ping" {
			return
		}
		r.logger.WithTraceID(traceID).Info("request",
			"method", req.Method,
			"path", req.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"remote", clientKey(req),
		)
	})
}

// cors answers preflight requests and marks every response for cross-origin
// tooling such as MCP inspectors.
func (r *Router) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Cache-Control, X-API-Key, X-Request-ID")
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// apiKeyAuth compares the X-API-Key header against the configured bcrypt
// hash. Installed only when a hash is configured.
func (r *Router) apiKeyAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		key := req.Header.Get("X-API-Key")
		if key == "" {
			writeJSONError(w, http.StatusUnauthorized, "missing API key")
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(r.cfg.Auth.APIKeyHash), []byte(key)); err != nil {
			writeJSONError(w, http.StatusUnauthorized, "invalid API key")
			return
		}
		next.ServeHTTP(w, req)
	})
}

// rateLimit applies the sliding-window limiter per client address. A limiter
// failure lets the request through: rejecting traffic because Redis is down
// would turn a soft dependency into a hard one.
func (r *Router) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		decision, err := r.limiter.Allow(req.Context(), clientKey(req))
		if err != nil {
			r.logger.Warn("rate limit check failed", "error", err.Error())
			next.ServeHTTP(w, req)
			return
		}
		if !decision.Allowed {
			seconds := int(decision.RetryAfter.Seconds())
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, req)
	})
}

// concurrencyLimit bounds in-flight requests; beyond the bound the server
// sheds load instead of queueing.
func (r *Router) concurrencyLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		select {
		case r.inFlight <- struct{}{}:
			defer func() { <-r.inFlight }()
			next.ServeHTTP(w, req)
		default:
			w.Header().Set("Retry-After", "1")
			writeJSONError(w, http.StatusServiceUnavailable, "server is at capacity")
		}
	})
}

// clientKey extracts the client address without the ephemeral port.
func clientKey(req *http.Request) string {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error": ` + strconv.Quote(message) + `}`))
}
