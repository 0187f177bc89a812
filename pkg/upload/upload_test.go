package upload_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/marmos91/storage-gateway/pkg/cachestore/memory"
	"github.com/marmos91/storage-gateway/pkg/chunkkey"
	"github.com/marmos91/storage-gateway/pkg/digest"
	"github.com/marmos91/storage-gateway/pkg/storagerpc/storagerpctest"
	"github.com/marmos91/storage-gateway/pkg/upload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_CommitDigestMatchesWholeBody(t *testing.T) {
	ctx := context.Background()
	rpc := storagerpctest.New()
	cache := memory.New()

	body := bytes.Repeat([]byte{0x41}, 10*1024*1024)
	const chunkSize = 2 * 1024 * 1024

	s := upload.Open("a/b", rpc, cache)

	var index uint32
	for off := 0; off < len(body); off += chunkSize {
		index++
		end := off + chunkSize
		if end > len(body) {
			end = len(body)
		}
		require.NoError(t, s.PutChunk(ctx, index, int64(end-off), body[off:end]))
	}

	sum, err := s.Commit()
	require.NoError(t, err)
	assert.Equal(t, digest.Sum(body), sum)
	assert.Equal(t, "8b8378787c0925f42ccb829f6cc2fb97", digest.ETag(sum))

	for i := uint32(1); i <= index; i++ {
		assert.True(t, rpc.Exists(chunkkey.DeriveString("a/b", i)))
	}
}

func TestSession_PutChunk_CachesBestEffort(t *testing.T) {
	ctx := context.Background()
	rpc := storagerpctest.New()
	cache := memory.New()

	s := upload.Open("a/b", rpc, cache)
	require.NoError(t, s.PutChunk(ctx, 1, 5, []byte("hello")))

	entry, ok := cache.Get(chunkkey.DeriveString("a/b", 1))
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), entry.Body)
	assert.Equal(t, "application/octet-stream", entry.ContentType)
}

func TestSession_PutChunk_FailureRecordedAndDigestNotAdvanced(t *testing.T) {
	ctx := context.Background()
	rpc := storagerpctest.New()
	rpc.FailPut = func(key string) error { return errors.New("simulated outage") }
	cache := memory.New()

	s := upload.Open("a/b", rpc, cache)
	err := s.PutChunk(ctx, 1, 5, []byte("hello"))
	assert.Error(t, err)

	_, commitErr := s.Commit()
	require.Error(t, commitErr)
	var failed *upload.FailedChunksError
	require.ErrorAs(t, commitErr, &failed)
	require.Len(t, failed.Chunks, 1)
	assert.Equal(t, uint32(1), failed.Chunks[0].Index)
}

func TestSession_Commit_OnlySuccessfulChunksAdvanceDigest(t *testing.T) {
	ctx := context.Background()
	rpc := storagerpctest.New()
	cache := memory.New()

	s := upload.Open("a/b", rpc, cache)
	require.NoError(t, s.PutChunk(ctx, 1, 5, []byte("hello")))
	require.NoError(t, s.PutChunk(ctx, 2, 5, []byte("world")))

	sum, err := s.Commit()
	require.NoError(t, err)

	want := digest.New()
	want.Update([]byte("hello"))
	want.Update([]byte("world"))
	assert.Equal(t, want.Sum(), sum)
}

func TestSession_Rollback_DeletesChunksFromCacheAndStorage(t *testing.T) {
	ctx := context.Background()
	rpc := storagerpctest.New()
	cache := memory.New()

	s := upload.Open("a/b", rpc, cache)
	for i := uint32(1); i <= 3; i++ {
		require.NoError(t, s.PutChunk(ctx, i, 1, []byte{byte('0' + i)}))
	}

	s.Rollback(ctx, 3)

	for i := uint32(1); i <= 3; i++ {
		key := chunkkey.DeriveString("a/b", i)
		assert.False(t, rpc.Exists(key))
		_, ok := cache.Get(key)
		assert.False(t, ok)
	}
}

func TestSession_Rollback_BestEffortContinuesOnStorageDeleteFailure(t *testing.T) {
	ctx := context.Background()
	rpc := storagerpctest.New()
	cache := memory.New()

	s := upload.Open("a/b", rpc, cache)
	require.NoError(t, s.PutChunk(ctx, 1, 1, []byte("a")))
	require.NoError(t, s.PutChunk(ctx, 2, 1, []byte("b")))

	// Chunk 2 was never actually stored (simulate an already-missing chunk);
	// rollback must still proceed to delete chunk 1.
	require.NoError(t, rpc.Delete(ctx, chunkkey.DeriveString("a/b", 2)))

	assert.NotPanics(t, func() { s.Rollback(ctx, 2) })

	_, ok := cache.Get(chunkkey.DeriveString("a/b", 1))
	assert.False(t, ok)
}

func TestSession_ID_IsUnique(t *testing.T) {
	rpc := storagerpctest.New()
	cache := memory.New()

	a := upload.Open("a/b", rpc, cache)
	b := upload.Open("a/b", rpc, cache)
	assert.NotEqual(t, a.ID, b.ID)
}

