package stream_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/marmos91/storage-gateway/pkg/cachestore"
	"github.com/marmos91/storage-gateway/pkg/cachestore/memory"
	"github.com/marmos91/storage-gateway/pkg/chunkkey"
	"github.com/marmos91/storage-gateway/pkg/storagerpc"
	"github.com/marmos91/storage-gateway/pkg/storagerpc/storagerpctest"
	"github.com/marmos91/storage-gateway/pkg/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func putLeaf(t *testing.T, rpc *storagerpctest.Fake, key string, body []byte) {
	t.Helper()
	_, err := rpc.Put(context.Background(), key, body, storagerpc.PutOptions{Leaf: &storagerpc.LeafPut{Size: int64(len(body))}})
	require.NoError(t, err)
}

func putManifest(t *testing.T, rpc *storagerpctest.Fake, key string, totalChunks uint32, totalSize int64) {
	t.Helper()
	_, err := rpc.Put(context.Background(), key, nil, storagerpc.PutOptions{
		Manifest: &storagerpc.ManifestPut{TotalSize: totalSize, TotalChunks: totalChunks},
	})
	require.NoError(t, err)
}

func TestStreamAll_FlatObject(t *testing.T) {
	rpc := storagerpctest.New()
	cache := memory.New()

	putLeaf(t, rpc, chunkkey.DeriveString("a/b", 1), []byte("AAAAA"))
	putLeaf(t, rpc, chunkkey.DeriveString("a/b", 2), []byte("BBBBB"))
	putLeaf(t, rpc, chunkkey.DeriveString("a/b", 3), []byte("CCCCC"))

	var buf bytes.Buffer
	s := stream.New(rpc, cache)
	require.NoError(t, s.StreamAll(context.Background(), "a/b", 3, &buf))

	assert.Equal(t, "AAAAABBBBBCCCCC", buf.String())
}

func TestStreamAll_PreOrderOverNestedManifest(t *testing.T) {
	rpc := storagerpctest.New()
	cache := memory.New()

	grandchild := chunkkey.DeriveString("a/b", 2)
	putManifest(t, rpc, grandchild, 2, 10)
	putLeaf(t, rpc, chunkkey.DeriveString(grandchild, 1), []byte("11111"))
	putLeaf(t, rpc, chunkkey.DeriveString(grandchild, 2), []byte("22222"))

	putLeaf(t, rpc, chunkkey.DeriveString("a/b", 1), []byte("AAAAA"))
	putLeaf(t, rpc, chunkkey.DeriveString("a/b", 3), []byte("CCCCC"))

	var buf bytes.Buffer
	s := stream.New(rpc, cache)
	require.NoError(t, s.StreamAll(context.Background(), "a/b", 3, &buf))

	assert.Equal(t, "AAAAA1111122222CCCCC", buf.String())
}

func TestStreamAll_CacheHitServesWithoutRPC(t *testing.T) {
	rpc := storagerpctest.New()
	cache := memory.New()

	key := chunkkey.DeriveString("a/b", 1)
	require.NoError(t, cache.Put(key, cachestore.CachedEntry{Body: []byte("cached")}))

	var buf bytes.Buffer
	s := stream.New(rpc, cache)
	require.NoError(t, s.StreamAll(context.Background(), "a/b", 1, &buf))

	assert.Equal(t, "cached", buf.String())
}

func TestStreamAll_RpcErrorAbortsStream(t *testing.T) {
	rpc := storagerpctest.New()
	cache := memory.New()
	putLeaf(t, rpc, chunkkey.DeriveString("a/b", 1), []byte("AAAAA"))
	// chunk 2 intentionally missing

	var buf bytes.Buffer
	s := stream.New(rpc, cache)
	err := s.StreamAll(context.Background(), "a/b", 2, &buf)
	assert.Error(t, err)
}

func TestStreamRange_WholeChunkOverlap(t *testing.T) {
	rpc := storagerpctest.New()
	cache := memory.New()

	putLeaf(t, rpc, chunkkey.DeriveString("a/b", 1), bytes.Repeat([]byte{0x41}, 5*1024*1024))

	var buf bytes.Buffer
	s := stream.New(rpc, cache)
	require.NoError(t, s.StreamRange(context.Background(), "a/b", 1, 0, 5*1024*1024-1, &buf))

	assert.Len(t, buf.Bytes(), 5*1024*1024)
}

func TestStreamRange_PartialOverlapAcrossChunks(t *testing.T) {
	rpc := storagerpctest.New()
	cache := memory.New()

	// 5 chunks of 2MiB each, matching spec.md scenario 1/3.
	for i := uint32(1); i <= 5; i++ {
		putLeaf(t, rpc, chunkkey.DeriveString("a/b", i), bytes.Repeat([]byte{0x41}, 2*1024*1024))
	}

	var buf bytes.Buffer
	s := stream.New(rpc, cache)
	// bytes 5242880-5242883 fall inside chunk 3 (offset 4194304..6291455).
	require.NoError(t, s.StreamRange(context.Background(), "a/b", 5, 5242880, 5242883, &buf))

	assert.Equal(t, bytes.Repeat([]byte{0x41}, 4), buf.Bytes())
}

func TestStreamRange_SkipsChunksEntirelyBeforeStart(t *testing.T) {
	rpc := storagerpctest.New()
	cache := memory.New()

	putLeaf(t, rpc, chunkkey.DeriveString("a/b", 1), []byte("11111"))
	putLeaf(t, rpc, chunkkey.DeriveString("a/b", 2), []byte("22222"))

	var buf bytes.Buffer
	s := stream.New(rpc, cache)
	require.NoError(t, s.StreamRange(context.Background(), "a/b", 2, 5, 9, &buf))

	assert.Equal(t, "22222", buf.String())
}

func TestStreamRange_StopsEarlyOnceCurPosExceedsEnd(t *testing.T) {
	rpc := storagerpctest.New()
	cache := memory.New()

	putLeaf(t, rpc, chunkkey.DeriveString("a/b", 1), []byte("11111"))
	putLeaf(t, rpc, chunkkey.DeriveString("a/b", 2), []byte("22222"))
	// chunk 3 deliberately absent; reaching it would error the stream.

	var buf bytes.Buffer
	s := stream.New(rpc, cache)
	require.NoError(t, s.StreamRange(context.Background(), "a/b", 3, 0, 9, &buf))

	assert.Equal(t, "1111122222", buf.String())
}

func TestNormalizeRange_EndZeroMeansToEOF(t *testing.T) {
	start, end := stream.NormalizeRange(1000, 10, 0)
	assert.Equal(t, int64(10), start)
	assert.Equal(t, int64(999), end)
}

func TestNormalizeRange_NegativeEndIsSuffixLength(t *testing.T) {
	start, end := stream.NormalizeRange(1000, 0, -100)
	assert.Equal(t, int64(900), start)
	assert.Equal(t, int64(999), end)
}
