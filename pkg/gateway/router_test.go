package gateway_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/storage-gateway/pkg/cachestore/memory"
	"github.com/marmos91/storage-gateway/pkg/edgecache"
	"github.com/marmos91/storage-gateway/pkg/gateway"
	"github.com/marmos91/storage-gateway/pkg/storagerpc/storagerpctest"
)

func objectKeyFromPath(r *http.Request) string {
	return strings.TrimPrefix(r.URL.Path, "/")
}

func TestRouter_Liveness(t *testing.T) {
	rpc := storagerpctest.New()
	cache := memory.New()
	d := gateway.New(rpc, cache, edgecache.NewInternal(cache, rpc, true), testThresholds())
	r := gateway.NewRouter(gateway.Deps{Dispatcher: d, CacheStats: cache})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestRouter_Readiness(t *testing.T) {
	rpc := storagerpctest.New()
	cache := memory.New()
	d := gateway.New(rpc, cache, edgecache.NewInternal(cache, rpc, true), testThresholds())
	r := gateway.NewRouter(gateway.Deps{Dispatcher: d, CacheStats: cache})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_CacheStats(t *testing.T) {
	rpc := storagerpctest.New()
	cache := memory.New()
	d := gateway.New(rpc, cache, edgecache.NewInternal(cache, rpc, true), testThresholds())
	r := gateway.NewRouter(gateway.Deps{Dispatcher: d, CacheStats: cache})

	putReq := httptest.NewRequest(http.MethodPut, "/a", bytes.NewReader([]byte("x")))
	putReq.ContentLength = 1
	r.ServeHTTP(httptest.NewRecorder(), putReq)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/cache/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, true, body["enabled"])
	assert.EqualValues(t, 1, body["entries"])
}

func TestRouter_CacheStats_DisabledWhenNil(t *testing.T) {
	rpc := storagerpctest.New()
	cache := memory.New()
	d := gateway.New(rpc, cache, edgecache.NewInternal(cache, rpc, true), testThresholds())
	r := gateway.NewRouter(gateway.Deps{Dispatcher: d})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/cache/stats", nil))

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, false, body["enabled"])
}

func TestRouter_ObjectRoutes_PutGetDelete(t *testing.T) {
	rpc := storagerpctest.New()
	cache := memory.New()
	d := gateway.New(rpc, cache, edgecache.NewInternal(cache, rpc, true), testThresholds())
	r := gateway.NewRouter(gateway.Deps{Dispatcher: d, CacheStats: cache})

	putReq := httptest.NewRequest(http.MethodPut, "/greeting", bytes.NewReader([]byte("hi there")))
	putReq.ContentLength = int64(len("hi there"))
	putRec := httptest.NewRecorder()
	r.ServeHTTP(putRec, putReq)
	require.Equal(t, http.StatusOK, putRec.Code)

	getRec := httptest.NewRecorder()
	r.ServeHTTP(getRec, httptest.NewRequest(http.MethodGet, "/greeting", nil))
	require.Equal(t, http.StatusOK, getRec.Code)
	assert.Equal(t, "hi there", getRec.Body.String())

	delRec := httptest.NewRecorder()
	r.ServeHTTP(delRec, httptest.NewRequest(http.MethodDelete, "/greeting", nil))
	assert.Equal(t, http.StatusNoContent, delRec.Code)

	getAfterDelete := httptest.NewRecorder()
	r.ServeHTTP(getAfterDelete, httptest.NewRequest(http.MethodGet, "/greeting", nil))
	assert.Equal(t, http.StatusNotFound, getAfterDelete.Code)
}

func TestRouter_InterceptorMode_CachesAndServesConditionalGet(t *testing.T) {
	rpc := storagerpctest.New()
	cache := memory.New()
	d := gateway.New(rpc, cache, nil, testThresholds())

	interceptor := edgecache.NewInterceptor(cache, objectKeyFromPath, edgecache.InterceptorConfig{
		Expire:        time.Hour,
		MaxContentLen: 1 << 20,
		ContentTypes:  []string{"application/octet-stream"},
	})
	r := gateway.NewRouter(gateway.Deps{Dispatcher: d, Interceptor: interceptor, CacheStats: cache})

	putReq := httptest.NewRequest(http.MethodPut, "/doc", bytes.NewReader([]byte("cacheable body")))
	putReq.ContentLength = int64(len("cacheable body"))
	r.ServeHTTP(httptest.NewRecorder(), putReq)

	first := httptest.NewRecorder()
	r.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/doc", nil))
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "cacheable body", first.Body.String())
	assert.Empty(t, first.Header().Get("X-From-Cache"), "X-From-Cache is an internal-mode-only header; interceptor mode uses Age")
	lastModified := first.Header().Get("Last-Modified")
	require.NotEmpty(t, lastModified)

	second := httptest.NewRecorder()
	r.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/doc", nil))
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "cacheable body", second.Body.String())
	assert.Empty(t, second.Header().Get("X-From-Cache"))
	assert.NotEmpty(t, second.Header().Get("Age"), "a cache hit should report Age instead")

	condReq := httptest.NewRequest(http.MethodGet, "/doc", nil)
	condReq.Header.Set("If-Modified-Since", lastModified)
	condRec := httptest.NewRecorder()
	r.ServeHTTP(condRec, condReq)
	assert.Equal(t, http.StatusNotModified, condRec.Code)
}

func TestRouter_InterceptorMode_PassesThroughUncacheableContentType(t *testing.T) {
	rpc := storagerpctest.New()
	cache := memory.New()
	d := gateway.New(rpc, cache, nil, testThresholds())

	interceptor := edgecache.NewInterceptor(cache, objectKeyFromPath, edgecache.InterceptorConfig{
		Expire:       time.Hour,
		PathPatterns: []*regexp.Regexp{regexp.MustCompile(`^static/`)},
	})
	r := gateway.NewRouter(gateway.Deps{Dispatcher: d, Interceptor: interceptor})

	putReq := httptest.NewRequest(http.MethodPut, "/dynamic", bytes.NewReader([]byte("not cached")))
	putReq.ContentLength = int64(len("not cached"))
	r.ServeHTTP(httptest.NewRecorder(), putReq)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dynamic", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "not cached", rec.Body.String())
	assert.Empty(t, rec.Header().Get("X-From-Cache"), "X-From-Cache is an internal-mode-only header")

	_, hit := cache.Get("dynamic")
	assert.False(t, hit, "path not matching the allow-list must not be cached")
}
