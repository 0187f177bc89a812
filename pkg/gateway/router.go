package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/marmos91/storage-gateway/internal/logger"
	"github.com/marmos91/storage-gateway/pkg/edgecache"
)

// Deps bundles everything NewRouter needs to wire the object routes and the
// admin surface. CacheStats is nil when no cache diagnostics are
// available; Interceptor is non-nil only in interceptor mode.
type Deps struct {
	Dispatcher  *Dispatcher
	Interceptor *edgecache.Interceptor
	CacheStats  CacheStats
}

// CacheStats reports diagnostics for the /debug/cache/stats admin endpoint.
// Implemented by the configured cachestore.Store when it supports it (e.g.
// pkg/cachestore/memory.Store.Len); nil when unavailable.
type CacheStats interface {
	Len() int
}

// NewRouter builds the gateway's chi router: the object CRUD surface at the
// path root, plus an admin/diagnostic surface, wrapped in the same
// middleware stack ordering as the rest of this codebase's HTTP servers.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(otelhttp.NewMiddleware("storage-gateway"))
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", handleLiveness)
	r.Get("/readyz", deps.handleReadiness)
	r.Get("/debug/cache/stats", deps.handleCacheStats)

	r.Route("/", func(r chi.Router) {
		if deps.Interceptor != nil {
			r.Use(deps.cacheInterceptorMiddleware)
		}

		r.Get("/*", deps.Dispatcher.ServeGet)
		r.Head("/*", deps.Dispatcher.ServeHead)
		r.Put("/*", deps.Dispatcher.ServePut)
		r.Delete("/*", deps.Dispatcher.ServeDelete)
	})

	return r
}

// requestLogger logs request start at DEBUG and request completion at INFO,
// mirroring the rest of this codebase's HTTP request logging.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.DebugCtx(r.Context(), "gateway: request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.InfoCtx(r.Context(), "gateway: request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		)
	})
}

func handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (d Deps) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if d.Dispatcher == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (d Deps) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if d.CacheStats == nil {
		writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"enabled": true, "entries": d.CacheStats.Len()})
}

// cacheInterceptorMiddleware applies the interceptor mode's on_request/
// on_response hooks around the object routes, independent of the
// dispatcher's own handler code, per spec.md §4.8.
func (d Deps) cacheInterceptorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		outcome := d.Interceptor.OnRequest(r)

		if outcome.ShortCircuit {
			for k, vs := range outcome.Headers {
				for _, v := range vs {
					w.Header().Add(k, v)
				}
			}
			w.WriteHeader(outcome.Status)
			if outcome.Status != http.StatusNotModified {
				_, _ = w.Write(outcome.Body)
			}
			return
		}

		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK, header: make(http.Header)}
		next.ServeHTTP(rec, r)

		headers, body, _ := d.Interceptor.OnResponse(rec.status, r.Method, outcome.Key, rec.header, rec.body.Bytes())

		for k, vs := range headers {
			for _, v := range vs {
				w.Header().Set(k, v)
			}
		}
		w.WriteHeader(rec.status)
		_, _ = w.Write(body)
	})
}

// responseRecorder buffers a handler's response so cacheInterceptorMiddleware
// can pass the full status/headers/body to OnResponse before anything
// reaches the client, since on_response may rewrite headers (Last-Modified,
// Cache-Control, ETag) on the cached path.
type responseRecorder struct {
	http.ResponseWriter
	header      http.Header
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (r *responseRecorder) Header() http.Header {
	return r.header
}

func (r *responseRecorder) WriteHeader(status int) {
	if r.wroteHeader {
		return
	}
	r.status = status
	r.wroteHeader = true
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	return r.body.Write(b)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
