// Package edgecache sits in front of the storage cluster on the GET and
// small-object PUT paths, in one of two mutually exclusive modes: internal
// (inline, consulted directly by the dispatcher) or interceptor
// (reverse-proxy style on_request/on_response hooks, independent of
// handler code). Exactly one mode is active per gateway configuration.
package edgecache

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/marmos91/storage-gateway/internal/logger"
	"github.com/marmos91/storage-gateway/pkg/cachestore"
	"github.com/marmos91/storage-gateway/pkg/digest"
	"github.com/marmos91/storage-gateway/pkg/storagerpc"
	"github.com/marmos91/storage-gateway/pkg/stream"
)

// chunkSeparator is the byte chunkkey.Derive uses to join a parent key to
// a chunk index. Its presence in a key identifies a chunk of a large
// object, which the internal cache never stores (large bodies are
// reconstructed on demand by pkg/stream instead).
const chunkSeparator = 0x0A

// Internal is the inline edge-cache mode: GET and small-object PUT consult
// CacheStore directly, with no interception of the HTTP response.
type Internal struct {
	cache   cachestore.Store
	rpc     storagerpc.RPC
	enabled bool
}

// NewInternal returns an Internal cache. enabled gates whether small-object
// PUTs populate the cache; GET always consults it regardless, since a
// disabled cache is simply empty.
func NewInternal(cache cachestore.Store, rpc storagerpc.RPC, enabled bool) *Internal {
	return &Internal{cache: cache, rpc: rpc, enabled: enabled}
}

// Result describes how a GET should be satisfied.
type Result struct {
	// Status is left zero by GetObject; every Result it returns is a 200
	// response, and failure paths return an error instead.
	Status int

	// FromCache records the X-From-Cache header value to send, or "" if
	// the response did not come from the cache.
	FromCache string

	// FilePath is set when the cache entry is backed by a file on disk:
	// the caller should zero-copy sendfile it rather than read Body.
	FilePath string
	Size     int64

	// Body is the inline response body. Populated for in-memory cache
	// hits and fresh leaf fetches; left nil when FilePath is set or when
	// Stream is set (the large-object path writes directly to the
	// response writer instead of buffering).
	Body []byte

	ContentType  string
	ETag         string
	LastModified time.Time

	// Stream is set for a fresh multi-chunk object: the caller must invoke
	// it with the response writer to reconstruct the object, since large
	// objects are never held in memory or cached whole.
	Stream func(ctx context.Context, w io.Writer) error
}

// GetObject implements spec.md §4.7's inline GET path: consult the cache
// first; on a hit, ask the storage cluster to revalidate with the cached
// etag as a hint. A Match means the cached body is still current and is
// served as-is (from disk or memory). A non-match means the cluster holds
// a newer version, which is served fresh and — for leaf objects only —
// recached.
func (c *Internal) GetObject(ctx context.Context, key string) (Result, error) {
	entry, hit := c.cache.Get(key)
	if !hit {
		return c.fetchFresh(ctx, key)
	}

	res, err := c.rpc.Get(ctx, key, storagerpc.GetOptions{EtagHint: entry.Etag})
	if err != nil {
		return Result{}, err
	}

	if res.Matched {
		if entry.FilePath != "" {
			logger.DebugCtx(ctx, "edgecache: internal hit via disk", "key", key)
			return Result{FromCache: "True/via disk", FilePath: entry.FilePath, Size: entry.Size, ContentType: entry.ContentType, ETag: entry.Etag, LastModified: entry.Mtime}, nil
		}
		logger.DebugCtx(ctx, "edgecache: internal hit via memory", "key", key)
		return Result{FromCache: "True/via memory", Body: entry.Body, Size: entry.Size, ContentType: entry.ContentType, ETag: entry.Etag, LastModified: entry.Mtime}, nil
	}

	return c.serveFresh(ctx, key, res)
}

// fetchFresh handles a cache miss: fetch the object metadata and, for a
// leaf, its body; recache leaves, stream manifests.
func (c *Internal) fetchFresh(ctx context.Context, key string) (Result, error) {
	res, err := c.rpc.Get(ctx, key, storagerpc.GetOptions{})
	if err != nil {
		return Result{}, err
	}
	return c.serveFresh(ctx, key, res)
}

func (c *Internal) serveFresh(ctx context.Context, key string, res storagerpc.GetResult) (Result, error) {
	if res.Metadata.CNumber > 0 {
		total := uint32(res.Metadata.CNumber)
		streamer := stream.New(c.rpc, c.cache)
		return Result{
			Size:         res.Metadata.DSize,
			ContentType:  "application/octet-stream",
			ETag:         fmt.Sprintf("%032x", new(big.Int).SetBytes(res.Metadata.Checksum)),
			LastModified: time.Unix(res.Metadata.Timestamp, 0).UTC(),
			Stream: func(ctx context.Context, w io.Writer) error {
				return streamer.StreamAll(ctx, key, total, w)
			},
		}, nil
	}

	etag := digest.ETag(digest.Sum(res.Body))
	mtime := time.Now().UTC()
	if c.enabled && !strings.ContainsRune(key, chunkSeparator) {
		if err := c.cache.Put(key, cachestore.CachedEntry{
			Mtime:       mtime,
			Etag:        etag,
			ContentType: "application/octet-stream",
			Body:        res.Body,
			Size:        int64(len(res.Body)),
		}); err != nil {
			logger.DebugCtx(ctx, "edgecache: internal recache failed", "key", key, "error", err)
		}
	}

	return Result{Body: res.Body, Size: int64(len(res.Body)), ContentType: "application/octet-stream", ETag: etag, LastModified: mtime}, nil
}

// PutSmallObject implements spec.md §4.7's small-object PUT caching rule:
// cache the new entry iff internal caching is enabled and key is not a
// chunk of a larger object.
func (c *Internal) PutSmallObject(ctx context.Context, key string, body []byte) {
	if !c.enabled || strings.ContainsRune(key, chunkSeparator) {
		return
	}
	if err := c.cache.Put(key, cachestore.CachedEntry{
		Mtime:       time.Now(),
		Etag:        digest.ETag(digest.Sum(body)),
		ContentType: "application/octet-stream",
		Body:        body,
		Size:        int64(len(body)),
	}); err != nil {
		logger.DebugCtx(ctx, "edgecache: internal put failed", "key", key, "error", err)
	}
}
