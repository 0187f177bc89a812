package edgecache

import (
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/marmos91/storage-gateway/pkg/cachestore"
	"github.com/marmos91/storage-gateway/pkg/digest"
)

// KeyFunc derives the cache key for a request. cmd/gatewayd supplies the
// actual implementation (the object key embedded in the URL path); tests
// can substitute a trivial one.
type KeyFunc func(req *http.Request) string

// Interceptor is the reverse-proxy edge-cache mode described in spec.md
// §4.8: a pair of hooks evaluated around the normal handler rather than
// consulted inline by it. Used when cache_method != "inner".
type Interceptor struct {
	cache  cachestore.Store
	keyFn  KeyFunc
	expire time.Duration

	maxContentLen int64
	pathPatterns  []*regexp.Regexp
	contentTypes  map[string]struct{}
}

// InterceptorConfig configures cachability for on_response.
type InterceptorConfig struct {
	Expire        time.Duration
	MaxContentLen int64
	PathPatterns  []*regexp.Regexp
	ContentTypes  []string
}

// NewInterceptor returns an Interceptor backed by cache, deriving keys via
// keyFn and applying cfg's cachability rules.
func NewInterceptor(cache cachestore.Store, keyFn KeyFunc, cfg InterceptorConfig) *Interceptor {
	var types map[string]struct{}
	if len(cfg.ContentTypes) > 0 {
		types = make(map[string]struct{}, len(cfg.ContentTypes))
		for _, t := range cfg.ContentTypes {
			types[t] = struct{}{}
		}
	}
	return &Interceptor{
		cache:         cache,
		keyFn:         keyFn,
		expire:        cfg.Expire,
		maxContentLen: cfg.MaxContentLen,
		pathPatterns:  cfg.PathPatterns,
		contentTypes:  types,
	}
}

// RequestOutcome is the result of on_request: either short-circuit the
// handler with a ready-made response, or pass through to it.
type RequestOutcome struct {
	// ShortCircuit is true when the caller should write Status/Headers/Body
	// directly and never invoke the wrapped handler.
	ShortCircuit bool
	Status       int
	Headers      http.Header
	Body         []byte

	// Key is always populated (even on a miss or pass-through) so
	// on_response can reuse it without recomputing.
	Key string
}

// OnRequest implements spec.md §4.8's on_request hook. Only GET requests
// are eligible; every other method passes through untouched.
func (ic *Interceptor) OnRequest(req *http.Request) RequestOutcome {
	key := ic.keyFn(req)
	if req.Method != http.MethodGet {
		return RequestOutcome{Key: key}
	}

	entry, hit := ic.cache.Get(key)
	if !hit {
		return RequestOutcome{Key: key}
	}

	if age := time.Since(entry.Mtime); age > ic.expire {
		_ = ic.cache.Delete(key)
		return RequestOutcome{Key: key}
	}

	headers := cacheHeaders(entry, ic.expire)

	if ims := req.Header.Get("If-Modified-Since"); ims != "" {
		if t, err := http.ParseTime(ims); err == nil && t.Unix() == entry.Mtime.Unix() {
			return RequestOutcome{ShortCircuit: true, Status: http.StatusNotModified, Headers: headers, Key: key}
		}
	}

	return RequestOutcome{ShortCircuit: true, Status: http.StatusOK, Headers: headers, Body: entry.Body, Key: key}
}

// cacheHeaders builds the Last-Modified/Content-Type/Age/ETag/Cache-Control
// header set for a served-from-cache response.
func cacheHeaders(entry cachestore.CachedEntry, expire time.Duration) http.Header {
	h := make(http.Header)
	h.Set("Last-Modified", entry.Mtime.UTC().Format(http.TimeFormat))
	if entry.ContentType != "" {
		h.Set("Content-Type", entry.ContentType)
	}
	h.Set("Age", formatAge(time.Since(entry.Mtime)))
	if entry.Etag != "" {
		h.Set("ETag", `"`+entry.Etag+`"`)
	}
	h.Set("Cache-Control", "max-age="+formatAge(expire))
	return h
}

func formatAge(d time.Duration) string {
	secs := int64(d / time.Second)
	if secs < 0 {
		secs = 0
	}
	return strconv.FormatInt(secs, 10)
}

// OnResponse implements spec.md §4.8's on_response hook. Returns the
// (possibly rewritten) headers and body the caller should actually send,
// plus whether the entry was cached. Only 200-OK GET responses are ever
// considered; every other response passes through unchanged.
func (ic *Interceptor) OnResponse(status int, method string, key string, headers http.Header, body []byte) (http.Header, []byte, bool) {
	if status != http.StatusOK || method != http.MethodGet {
		return headers, body, false
	}

	if !ic.cachable(key, headers, body) {
		return headers, body, false
	}

	now := time.Now()
	etag := digest.ETag(digest.Sum(body))
	contentType := headers.Get("Content-Type")

	if err := ic.cache.Put(key, cachestore.CachedEntry{
		Mtime:       now,
		Etag:        etag,
		ContentType: contentType,
		Body:        body,
		Size:        int64(len(body)),
	}); err != nil {
		return headers, body, false
	}

	out := headers.Clone()
	out.Del("Last-Modified")
	out.Set("Last-Modified", now.UTC().Format(http.TimeFormat))
	out.Set("Cache-Control", "max-age="+formatAge(ic.expire))
	out.Set("ETag", `"`+etag+`"`)

	return out, body, true
}

// cachable applies spec.md §4.8's three on_response predicates in
// conjunction: no existing Cache-Control and a non-empty, size-bounded
// body; an allowed path; an allowed content type.
func (ic *Interceptor) cachable(key string, headers http.Header, body []byte) bool {
	if headers.Get("Cache-Control") != "" {
		return false
	}
	if len(body) == 0 {
		return false
	}
	if ic.maxContentLen > 0 && int64(len(body)) >= ic.maxContentLen {
		return false
	}

	if len(ic.pathPatterns) > 0 {
		matched := false
		for _, re := range ic.pathPatterns {
			if re.MatchString(key) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if ic.contentTypes != nil {
		if _, ok := ic.contentTypes[headers.Get("Content-Type")]; !ok {
			return false
		}
	}

	return true
}
