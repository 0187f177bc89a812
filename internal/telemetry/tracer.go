package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for gateway spans, following OpenTelemetry semantic
// conventions where applicable.
const (
	AttrClientIP   = "client.ip"
	AttrClientAddr = "client.address"
	AttrRequestID  = "http.request_id"
	AttrMethod     = "http.method"
	AttrPath       = "http.path"
	AttrStatus     = "http.status_code"

	AttrKey        = "storage.key"
	AttrChunkIndex = "storage.chunk_index"
	AttrCNumber    = "storage.cnumber"
	AttrBucket     = "storage.bucket"
	AttrRegion     = "storage.region"
	AttrSize       = "storage.size"

	AttrCacheHit    = "cache.hit"
	AttrCacheSource = "cache.source"
	AttrCacheMode   = "cache.mode"
)

// Span names for internal operations.
const (
	SpanHTTPRequest = "http.request"
	SpanStorageGet  = "storage.get"
	SpanStorageHead = "storage.head"
	SpanStoragePut  = "storage.put"
	SpanStorageDel  = "storage.delete"
	SpanCacheGet    = "cache.get"
	SpanCachePut    = "cache.put"
	SpanCacheDel    = "cache.delete"
)

// ClientIP returns an attribute for the client's IP address.
func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

// ClientAddr returns an attribute for the client's full address (IP:port).
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// RequestID returns an attribute for the per-request correlation ID.
func RequestID(id string) attribute.KeyValue {
	return attribute.String(AttrRequestID, id)
}

// Method returns an attribute for the HTTP method.
func Method(method string) attribute.KeyValue {
	return attribute.String(AttrMethod, method)
}

// Path returns an attribute for the HTTP request path.
func Path(path string) attribute.KeyValue {
	return attribute.String(AttrPath, path)
}

// StatusCode returns an attribute for the HTTP response status.
func StatusCode(status int) attribute.KeyValue {
	return attribute.Int(AttrStatus, status)
}

// Key returns an attribute for a storage-cluster object key.
func Key(key string) attribute.KeyValue {
	return attribute.String(AttrKey, key)
}

// ChunkIndex returns an attribute for a chunk's 1-based index.
func ChunkIndex(index uint32) attribute.KeyValue {
	return attribute.Int64(AttrChunkIndex, int64(index))
}

// CNumber returns an attribute for a manifest's child count.
func CNumber(cnumber int64) attribute.KeyValue {
	return attribute.Int64(AttrCNumber, cnumber)
}

// Bucket returns an attribute for the S3 bucket backing the cluster.
func Bucket(name string) attribute.KeyValue {
	return attribute.String(AttrBucket, name)
}

// Region returns an attribute for the storage cluster's region.
func Region(region string) attribute.KeyValue {
	return attribute.String(AttrRegion, region)
}

// Size returns an attribute for an object or chunk's byte size.
func Size(size int64) attribute.KeyValue {
	return attribute.Int64(AttrSize, size)
}

// CacheHit returns an attribute recording whether a cache lookup hit.
func CacheHit(hit bool) attribute.KeyValue {
	return attribute.Bool(AttrCacheHit, hit)
}

// CacheSource returns an attribute for where a cache hit was served from
// ("memory" or "disk").
func CacheSource(source string) attribute.KeyValue {
	return attribute.String(AttrCacheSource, source)
}

// CacheMode returns an attribute for the active edge-cache mode
// ("internal" or "interceptor").
func CacheMode(mode string) attribute.KeyValue {
	return attribute.String(AttrCacheMode, mode)
}

// StartHTTPSpan starts the root span for one HTTP request.
func StartHTTPSpan(ctx context.Context, method, path string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{Method(method), Path(path)}, attrs...)
	return StartSpan(ctx, SpanHTTPRequest, trace.WithAttributes(allAttrs...))
}

// StartStorageSpan starts a span for a StorageRpc call against key.
func StartStorageSpan(ctx context.Context, operation, key string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{Key(key)}, attrs...)
	return StartSpan(ctx, "storage."+operation, trace.WithAttributes(allAttrs...))
}

// StartCacheSpan starts a span for a CacheStore operation.
func StartCacheSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, "cache."+operation, trace.WithAttributes(attrs...))
}
