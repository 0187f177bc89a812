package gateway_test

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/storage-gateway/internal/bytesize"
	"github.com/marmos91/storage-gateway/pkg/cachestore/memory"
	"github.com/marmos91/storage-gateway/pkg/chunkkey"
	"github.com/marmos91/storage-gateway/pkg/edgecache"
	"github.com/marmos91/storage-gateway/pkg/gateway"
	"github.com/marmos91/storage-gateway/pkg/storagerpc/storagerpctest"
)

func testThresholds() gateway.Thresholds {
	return gateway.Thresholds{
		ThresholdObjLen: 1 * bytesize.MiB,
		ChunkedObjLen:   256 * bytesize.KiB,
		MaxLenForObj:    64 * bytesize.MiB,
	}
}

func TestServePut_SmallObject_RoundTrip(t *testing.T) {
	rpc := storagerpctest.New()
	cache := memory.New()
	internal := edgecache.NewInternal(cache, rpc, true)
	d := gateway.New(rpc, cache, internal, testThresholds())

	req := httptest.NewRequest(http.MethodPut, "/hello", bytes.NewReader([]byte("hello world")))
	req.ContentLength = int64(len("hello world"))
	rec := httptest.NewRecorder()

	d.ServePut(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("ETag"))

	getReq := httptest.NewRequest(http.MethodGet, "/hello", nil)
	getRec := httptest.NewRecorder()
	d.ServeGet(getRec, getReq)

	require.Equal(t, http.StatusOK, getRec.Code)
	assert.Equal(t, "hello world", getRec.Body.String())
}

func TestServePut_LargeObject_ChunkedEtagMatchesWholeBodyDigest(t *testing.T) {
	rpc := storagerpctest.New()
	cache := memory.New()
	internal := edgecache.NewInternal(cache, rpc, true)
	d := gateway.New(rpc, cache, internal, testThresholds())

	body := bytes.Repeat([]byte{0x41}, 10*1024*1024)
	req := httptest.NewRequest(http.MethodPut, "/big-object", bytes.NewReader(body))
	req.ContentLength = int64(len(body))
	rec := httptest.NewRecorder()

	d.ServePut(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `"8b8378787c0925f42ccb829f6cc2fb97"`, rec.Header().Get("ETag"))

	headRec := httptest.NewRecorder()
	d.ServeHead(headRec, httptest.NewRequest(http.MethodHead, "/big-object", nil))
	require.Equal(t, http.StatusOK, headRec.Code)
	assert.Equal(t, fmt.Sprintf("%d", len(body)), headRec.Header().Get("Content-Length"))
}

func TestServePut_RejectsBodyOverMaxLen(t *testing.T) {
	rpc := storagerpctest.New()
	cache := memory.New()
	th := testThresholds()
	th.MaxLenForObj = 10 * bytesize.B
	d := gateway.New(rpc, cache, nil, th)

	req := httptest.NewRequest(http.MethodPut, "/too-big", bytes.NewReader(bytes.Repeat([]byte{'a'}, 20)))
	req.ContentLength = 20
	rec := httptest.NewRecorder()

	d.ServePut(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeGet_RangeRead_SingleChunkLeaf(t *testing.T) {
	rpc := storagerpctest.New()
	cache := memory.New()
	d := gateway.New(rpc, cache, nil, testThresholds())

	body := []byte("0123456789")
	putReq := httptest.NewRequest(http.MethodPut, "/leaf", bytes.NewReader(body))
	putReq.ContentLength = int64(len(body))
	d.ServePut(httptest.NewRecorder(), putReq)

	getReq := httptest.NewRequest(http.MethodGet, "/leaf", nil)
	getReq.Header.Set("Range", "bytes=2-4")
	rec := httptest.NewRecorder()

	d.ServeGet(rec, getReq)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "234", rec.Body.String())
}

func TestServeGet_RangeRead_MultiChunkObject(t *testing.T) {
	rpc := storagerpctest.New()
	cache := memory.New()
	d := gateway.New(rpc, cache, nil, testThresholds())

	body := bytes.Repeat([]byte{0x42}, 10*1024*1024)
	putReq := httptest.NewRequest(http.MethodPut, "/chunked", bytes.NewReader(body))
	putReq.ContentLength = int64(len(body))
	d.ServePut(httptest.NewRecorder(), putReq)

	getReq := httptest.NewRequest(http.MethodGet, "/chunked", nil)
	getReq.Header.Set("Range", "bytes=5242880-5242883")
	rec := httptest.NewRecorder()

	d.ServeGet(rec, getReq)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 4, rec.Body.Len())
	assert.Equal(t, body[5242880:5242884], rec.Body.Bytes())
}

func TestServeGet_NotFound(t *testing.T) {
	rpc := storagerpctest.New()
	cache := memory.New()
	d := gateway.New(rpc, cache, nil, testThresholds())

	rec := httptest.NewRecorder()
	d.ServeGet(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeDelete_AbsentKeyIsSuccess(t *testing.T) {
	rpc := storagerpctest.New()
	cache := memory.New()
	d := gateway.New(rpc, cache, nil, testThresholds())

	rec := httptest.NewRecorder()
	d.ServeDelete(rec, httptest.NewRequest(http.MethodDelete, "/missing", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestServeDelete_ExistingKey(t *testing.T) {
	rpc := storagerpctest.New()
	cache := memory.New()
	d := gateway.New(rpc, cache, nil, testThresholds())

	putReq := httptest.NewRequest(http.MethodPut, "/obj", bytes.NewReader([]byte("x")))
	putReq.ContentLength = 1
	d.ServePut(httptest.NewRecorder(), putReq)

	rec := httptest.NewRecorder()
	d.ServeDelete(rec, httptest.NewRequest(http.MethodDelete, "/obj", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, rpc.Exists("obj"))
}

func TestServePut_RollsBackOnChunkFailureMidUpload(t *testing.T) {
	rpc := storagerpctest.New()
	cache := memory.New()
	th := testThresholds()
	th.ChunkedObjLen = 1 * bytesize.MiB
	d := gateway.New(rpc, cache, nil, th)

	var calls int
	rpc.FailPut = func(key string) error {
		calls++
		// Let the first two chunks (manifest key itself excluded) succeed,
		// fail the third.
		if calls == 3 {
			return fmt.Errorf("simulated chunk outage")
		}
		return nil
	}

	body := bytes.Repeat([]byte{0x43}, 5*1024*1024)
	req := httptest.NewRequest(http.MethodPut, "/rolled-back", bytes.NewReader(body))
	req.ContentLength = int64(len(body))
	rec := httptest.NewRecorder()

	d.ServePut(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	for i := uint32(1); i <= 5; i++ {
		assert.False(t, rpc.Exists(chunkkey.DeriveString("rolled-back", i)), "chunk %d should have been rolled back", i)
	}

	headRec := httptest.NewRecorder()
	d.ServeHead(headRec, httptest.NewRequest(http.MethodHead, "/rolled-back", nil))
	assert.Equal(t, http.StatusNotFound, headRec.Code)
}

func TestServePut_RollsBackOnClientDisconnectMidUpload(t *testing.T) {
	rpc := storagerpctest.New()
	cache := memory.New()
	th := testThresholds()
	th.ChunkedObjLen = 1 * bytesize.MiB
	d := gateway.New(rpc, cache, nil, th)

	// The body only actually contains 3 of the 5 MiB it declares via
	// Content-Length, simulating a client that disconnects mid-upload
	// after chunk 3 of 5 (spec.md §8 scenario 5).
	actual := bytes.Repeat([]byte{0x45}, 3*1024*1024)
	req := httptest.NewRequest(http.MethodPut, "/disconnected", bytes.NewReader(actual))
	req.ContentLength = 5 * 1024 * 1024
	rec := httptest.NewRecorder()

	d.ServePut(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	for i := uint32(1); i <= 3; i++ {
		assert.False(t, rpc.Exists(chunkkey.DeriveString("disconnected", i)), "chunk %d should have been rolled back", i)
	}

	headRec := httptest.NewRecorder()
	d.ServeHead(headRec, httptest.NewRequest(http.MethodHead, "/disconnected", nil))
	assert.Equal(t, http.StatusNotFound, headRec.Code)
}

func TestInternalCache_PopulatedOnSmallPut_ServedFromMemory(t *testing.T) {
	rpc := storagerpctest.New()
	cache := memory.New()
	internal := edgecache.NewInternal(cache, rpc, true)
	d := gateway.New(rpc, cache, internal, testThresholds())

	req := httptest.NewRequest(http.MethodPut, "/small", bytes.NewReader([]byte("cached")))
	req.ContentLength = int64(len("cached"))
	d.ServePut(httptest.NewRecorder(), req)

	_, ok := cache.Get("small")
	assert.True(t, ok, "small object PUT should populate the internal cache")

	getRec := httptest.NewRecorder()
	d.ServeGet(getRec, httptest.NewRequest(http.MethodGet, "/small", nil))
	assert.Equal(t, "True/via memory", getRec.Header().Get("X-From-Cache"))
}

func TestInternalCache_LargePutDoesNotCacheParentKey(t *testing.T) {
	rpc := storagerpctest.New()
	cache := memory.New()
	internal := edgecache.NewInternal(cache, rpc, true)
	d := gateway.New(rpc, cache, internal, testThresholds())

	body := bytes.Repeat([]byte{0x44}, 2*1024*1024)
	req := httptest.NewRequest(http.MethodPut, "/big", bytes.NewReader(body))
	req.ContentLength = int64(len(body))
	d.ServePut(httptest.NewRecorder(), req)

	_, ok := cache.Get("big")
	assert.False(t, ok, "manifest keys are not cached by the internal mode's small-object path")
}
