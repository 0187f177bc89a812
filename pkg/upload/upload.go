// Package upload drives a streaming PUT of an object larger than the
// gateway's small-object threshold: chunking the request body, maintaining
// a rolling MD5 across committed chunks, and rolling back on any failure.
package upload

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/storage-gateway/internal/logger"
	"github.com/marmos91/storage-gateway/pkg/cachestore"
	"github.com/marmos91/storage-gateway/pkg/chunkkey"
	"github.com/marmos91/storage-gateway/pkg/digest"
	"github.com/marmos91/storage-gateway/pkg/storagerpc"
)

// ChunkError records the failure of a single chunk put.
type ChunkError struct {
	Index uint32
	Cause error
}

// FailedChunksError aggregates every ChunkError accumulated during a
// session. Returned by Commit when at least one chunk failed.
type FailedChunksError struct {
	Chunks []ChunkError
}

func (e *FailedChunksError) Error() string {
	parts := make([]string, len(e.Chunks))
	for i, c := range e.Chunks {
		parts[i] = fmt.Sprintf("chunk %d: %v", c.Index, c.Cause)
	}
	return fmt.Sprintf("%d chunk(s) failed: %s", len(e.Chunks), strings.Join(parts, "; "))
}

// Session coordinates one large-object upload. A Session is created by
// Open, driven by a single writer via PutChunk, and terminated by exactly
// one of Commit (success path) or Rollback (failure path). It is never
// shared across goroutines — it is pinned to the HTTP handler task that
// opened it.
type Session struct {
	// ID is a correlation identifier for log lines spanning this upload;
	// it has no meaning to the storage cluster.
	ID string

	parentKey string
	rpc       storagerpc.RPC
	cache     cachestore.Store

	digest *digest.Rolling
	errs   []ChunkError
}

// Open begins a new upload session for parentKey.
func Open(parentKey string, rpc storagerpc.RPC, cache cachestore.Store) *Session {
	return &Session{
		ID:        uuid.NewString(),
		parentKey: parentKey,
		rpc:       rpc,
		cache:     cache,
		digest:    digest.New(),
	}
}

// PutChunk stores chunk index (1-based) of size bytes of body. On success
// the rolling digest advances and the chunk is best-effort mirrored into
// the cache. On failure the cause is recorded against index and returned;
// the digest is left untouched so that it always equals the MD5 of exactly
// the chunk bodies that were actually committed, in order.
func (s *Session) PutChunk(ctx context.Context, index uint32, size int64, body []byte) error {
	key := chunkkey.DeriveString(s.parentKey, index)

	_, err := s.rpc.Put(ctx, key, body, storagerpc.PutOptions{
		Leaf: &storagerpc.LeafPut{ChunkIndex: index, Size: size},
	})
	if err != nil {
		s.errs = append(s.errs, ChunkError{Index: index, Cause: err})
		return err
	}

	s.digest.Update(body)

	if putErr := s.cache.Put(key, cachestore.CachedEntry{
		Body:        body,
		Mtime:       time.Now(),
		Etag:        s.digest.ETag(),
		ContentType: "application/octet-stream",
		Size:        int64(len(body)),
	}); putErr != nil {
		logger.DebugCtx(ctx, "upload: cache put failed", "session", s.ID, "key", key, "error", putErr)
	}

	return nil
}

// Commit finalizes the session. If every chunk put succeeded it returns the
// digest of all committed chunk bodies concatenated in ascending index
// order; otherwise it returns a *FailedChunksError aggregating every chunk
// failure. Commit does not write the manifest record — the caller does
// that with the returned digest.
func (s *Session) Commit() (sum [16]byte, err error) {
	if len(s.errs) > 0 {
		return sum, &FailedChunksError{Chunks: s.errs}
	}
	return s.digest.Sum(), nil
}

// Rollback deletes chunk keys totalChunks, totalChunks-1, …, 1 from both the
// cache and the storage cluster, best-effort: every deletion is attempted
// even if an earlier one failed, and failures are only logged. Clears the
// session's recorded errors afterward, since the upload as a whole has now
// been undone.
func (s *Session) Rollback(ctx context.Context, totalChunks uint32) {
	for i := totalChunks; i >= 1; i-- {
		key := chunkkey.DeriveString(s.parentKey, i)

		if err := s.cache.Delete(key); err != nil {
			logger.DebugCtx(ctx, "upload: rollback cache delete failed", "session", s.ID, "key", key, "error", err)
		}
		if err := s.rpc.Delete(ctx, key); err != nil && storagerpc.GetKind(err) != storagerpc.KindNotFound {
			logger.WarnCtx(ctx, "upload: rollback storage delete failed", "session", s.ID, "key", key, "error", err)
		}
	}

	s.errs = nil
}
