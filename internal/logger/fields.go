package logger

import (
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so that log
// aggregation and querying stay uniform between the dispatcher, the edge
// cache and the storage RPC client.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// HTTP Request
	// ========================================================================
	KeyMethod    = "method"     // HTTP method: GET, PUT, HEAD, DELETE
	KeyPath      = "path"       // Request path
	KeyStatus    = "status"     // HTTP status code returned to the client
	KeyRequestID = "request_id" // chi request ID

	// ========================================================================
	// I/O Operations
	// ========================================================================
	KeyOffset       = "offset"        // Byte offset for ranged reads
	KeyLength       = "length"        // Byte length requested
	KeyBytesRead    = "bytes_read"    // Actual bytes read
	KeyBytesWritten = "bytes_written" // Actual bytes written

	// ========================================================================
	// Client Identification
	// ========================================================================
	KeyClientIP = "client_ip" // Client IP address

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeySource     = "source"      // memory, cluster, chunk_store
	KeyOperation  = "operation"   // Sub-operation type for complex operations

	// ========================================================================
	// Storage Cluster (StorageRpc)
	// ========================================================================
	KeyKey        = "key"         // Storage cluster object key
	KeyBucket     = "bucket"      // Backing bucket/namespace name
	KeyChunkIndex = "chunk_index" // 1-based chunk index
	KeyCNumber    = "cnumber"     // Number of direct children
	KeyAttempt    = "attempt"     // Retry attempt number

	// ========================================================================
	// Edge Cache
	// ========================================================================
	KeyCacheHit    = "cache_hit"    // Cache hit indicator
	KeyCacheMode   = "cache_mode"   // internal | interceptor
	KeyCacheViaFmt = "cache_via"    // memory | disk
	KeyAge         = "age"          // Age of a cached response, in seconds
	KeyEvicted     = "evicted"      // Number of entries evicted
)

// ============================================================================
// Field constructors for type safety
// ============================================================================

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// Method returns a slog.Attr for the HTTP method
func Method(m string) slog.Attr {
	return slog.String(KeyMethod, m)
}

// Path returns a slog.Attr for the request path
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// Status returns a slog.Attr for the HTTP status code
func Status(code int) slog.Attr {
	return slog.Int(KeyStatus, code)
}

// RequestID returns a slog.Attr for the request ID
func RequestID(id string) slog.Attr {
	return slog.String(KeyRequestID, id)
}

// Offset returns a slog.Attr for a byte offset
func Offset(off int64) slog.Attr {
	return slog.Int64(KeyOffset, off)
}

// Length returns a slog.Attr for a byte length
func Length(n int64) slog.Attr {
	return slog.Int64(KeyLength, n)
}

// BytesRead returns a slog.Attr for actual bytes read
func BytesRead(n int) slog.Attr {
	return slog.Int(KeyBytesRead, n)
}

// BytesWritten returns a slog.Attr for actual bytes written
func BytesWritten(n int) slog.Attr {
	return slog.Int(KeyBytesWritten, n)
}

// ClientIP returns a slog.Attr for the client IP address
func ClientIP(addr string) slog.Attr {
	return slog.String(KeyClientIP, addr)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Source returns a slog.Attr for the data source that answered a request
func Source(src string) slog.Attr {
	return slog.String(KeySource, src)
}

// Operation returns a slog.Attr for a sub-operation name
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Key returns a slog.Attr for a storage cluster object key
func Key(k string) slog.Attr {
	return slog.String(KeyKey, k)
}

// Bucket returns a slog.Attr for the backing bucket name
func Bucket(name string) slog.Attr {
	return slog.String(KeyBucket, name)
}

// ChunkIndex returns a slog.Attr for a 1-based chunk index
func ChunkIndex(i uint32) slog.Attr {
	return slog.Any(KeyChunkIndex, i)
}

// CNumber returns a slog.Attr for a child count
func CNumber(n uint32) slog.Attr {
	return slog.Any(KeyCNumber, n)
}

// Attempt returns a slog.Attr for a retry attempt number
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// CacheHit returns a slog.Attr for a cache hit indicator
func CacheHit(hit bool) slog.Attr {
	return slog.Bool(KeyCacheHit, hit)
}

// CacheMode returns a slog.Attr for the edge cache mode
func CacheMode(mode string) slog.Attr {
	return slog.String(KeyCacheMode, mode)
}

// CacheVia returns a slog.Attr for whether a hit was served from memory or disk
func CacheVia(via string) slog.Attr {
	return slog.String(KeyCacheViaFmt, via)
}

// Age returns a slog.Attr for the age of a cached response
func Age(seconds int64) slog.Attr {
	return slog.Int64(KeyAge, seconds)
}

// Evicted returns a slog.Attr for the number of entries evicted
func Evicted(n int) slog.Attr {
	return slog.Int(KeyEvicted, n)
}
