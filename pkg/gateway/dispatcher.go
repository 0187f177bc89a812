// Package gateway wires the storage-cluster HTTP surface: it dispatches
// GET/HEAD/PUT/DELETE against pkg/storagerpc, brokering the small-vs-large
// object decision and (in internal mode) the edge cache, and renders
// pkg/storagerpc errors as HTTP responses per spec.md §7.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/marmos91/storage-gateway/internal/bytesize"
	"github.com/marmos91/storage-gateway/internal/logger"
	"github.com/marmos91/storage-gateway/internal/telemetry"
	"github.com/marmos91/storage-gateway/pkg/bufpool"
	"github.com/marmos91/storage-gateway/pkg/cachestore"
	"github.com/marmos91/storage-gateway/pkg/digest"
	"github.com/marmos91/storage-gateway/pkg/edgecache"
	"github.com/marmos91/storage-gateway/pkg/storagerpc"
	"github.com/marmos91/storage-gateway/pkg/stream"
	"github.com/marmos91/storage-gateway/pkg/upload"
)

// Thresholds bundles the three size cutoffs from spec.md §6's http_options
// that drive the small/large PUT decision.
type Thresholds struct {
	// ThresholdObjLen is the body size at/above which the large-object path
	// engages.
	ThresholdObjLen bytesize.ByteSize

	// ChunkedObjLen is the chunk window size used to split a large upload.
	ChunkedObjLen bytesize.ByteSize

	// MaxLenForObj is the absolute upper bound on any request body.
	MaxLenForObj bytesize.ByteSize
}

// Dispatcher implements spec.md §4.9's RequestDispatcher: it routes each
// verb, decides small-vs-large on PUT, and composes the configured cache
// mode with storagerpc.RPC. Exactly one of internal/interceptor is non-nil;
// when interceptor is set, the dispatcher never touches the cache itself —
// the interceptor's on_request/on_response hooks run around it in the
// router's middleware stack instead.
type Dispatcher struct {
	rpc   storagerpc.RPC
	cache cachestore.Store

	internal *edgecache.Internal

	thresholds Thresholds
}

// New returns a Dispatcher. internal may be nil when the gateway runs in
// interceptor mode.
func New(rpc storagerpc.RPC, cache cachestore.Store, internal *edgecache.Internal, thresholds Thresholds) *Dispatcher {
	return &Dispatcher{rpc: rpc, cache: cache, internal: internal, thresholds: thresholds}
}

// ServeGet handles GET, including ranged reads.
func (d *Dispatcher) ServeGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := objectKey(r)

	if rng := r.Header.Get("Range"); rng != "" {
		d.serveRange(ctx, w, r, key, rng)
		return
	}

	var (
		res edgecache.Result
		err error
	)
	if d.internal != nil {
		res, err = d.internal.GetObject(ctx, key)
	} else {
		res, err = d.fetchPlain(ctx, key)
	}
	if err != nil {
		d.writeError(w, r.Method, err)
		return
	}

	d.writeResult(w, r, res)
}

// ServeHead handles HEAD: metadata only, no body.
func (d *Dispatcher) ServeHead(w http.ResponseWriter, r *http.Request) {
	ctx, span := telemetry.StartStorageSpan(r.Context(), "head", objectKey(r))
	defer span.End()
	key := objectKey(r)

	meta, err := d.rpc.Head(ctx, key)
	if err != nil {
		telemetry.RecordError(ctx, err)
		d.writeError(w, r.Method, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(meta.DSize, 10))
	w.Header().Set("ETag", quoteETag(fmt.Sprintf("%032x", new(big.Int).SetBytes(meta.Checksum))))
	w.Header().Set("Last-Modified", time.Unix(meta.Timestamp, 0).UTC().Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
}

// ServeDelete handles DELETE. A delete of an absent key is reported as
// success per spec.md §6/§7.
func (d *Dispatcher) ServeDelete(w http.ResponseWriter, r *http.Request) {
	key := objectKey(r)
	ctx, span := telemetry.StartStorageSpan(r.Context(), "delete", key)
	defer span.End()

	if err := d.rpc.Delete(ctx, key); err != nil {
		telemetry.RecordError(ctx, err)
		d.writeError(w, r.Method, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ServePut handles PUT, choosing the small or large path per spec.md §4.9.
func (d *Dispatcher) ServePut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := objectKey(r)

	if r.ContentLength >= 0 && r.ContentLength >= d.thresholds.MaxLenForObj.Int64() {
		http.Error(w, "request body exceeds max_len_for_obj", http.StatusBadRequest)
		return
	}

	if r.ContentLength >= 0 && r.ContentLength >= d.thresholds.ThresholdObjLen.Int64() {
		d.putLarge(ctx, w, r, key)
		return
	}

	body, err := readBounded(r.Body, d.thresholds.MaxLenForObj.Int64())
	if err != nil {
		http.Error(w, "request body exceeds max_len_for_obj", http.StatusBadRequest)
		return
	}

	spanCtx, span := telemetry.StartStorageSpan(ctx, "put", key, telemetry.Size(int64(len(body))))
	etag, err := d.rpc.Put(spanCtx, key, body, storagerpc.PutOptions{
		Leaf: &storagerpc.LeafPut{Size: int64(len(body))},
	})
	if err != nil {
		telemetry.RecordError(spanCtx, err)
		span.End()
		d.writeError(w, r.Method, err)
		return
	}
	span.End()

	if d.internal != nil {
		d.internal.PutSmallObject(ctx, key, body)
	}

	w.Header().Set("ETag", quoteETag(etag))
	w.WriteHeader(http.StatusOK)
}

// putLarge drives a streaming chunked upload via pkg/upload, committing a
// manifest on success and rolling back committed chunks on any failure or
// client disconnect, per spec.md §4.5/§8 scenario 5.
func (d *Dispatcher) putLarge(ctx context.Context, w http.ResponseWriter, r *http.Request, key string) {
	chunkSize := d.thresholds.ChunkedObjLen.Int64()
	if chunkSize <= 0 {
		chunkSize = int64(bytesize.MiB)
	}

	session := upload.Open(key, d.rpc, d.cache)
	buf := bufpool.Get(int(chunkSize))
	defer bufpool.Put(buf)

	var (
		index     uint32 = 1
		totalSize int64
		aborted   bool
	)

	for {
		n, rerr := io.ReadFull(r.Body, buf)
		if n > 0 {
			// PutChunk (and the session's best-effort cache mirror) retain
			// body by reference, so each chunk needs its own backing array
			// rather than the shared read buffer.
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			_ = session.PutChunk(ctx, index, int64(n), chunk)
			totalSize += int64(n)
			index++
		}

		if rerr == nil {
			continue
		}
		if rerr == io.EOF {
			break
		}
		if rerr == io.ErrUnexpectedEOF {
			// The declared Content-Length still had bytes outstanding when
			// the body closed — the same signal a genuine client disconnect
			// produces. totalSize is checked against Content-Length below,
			// so this always falls through to the abort path rather than
			// silently committing a short upload.
			break
		}

		logger.WarnCtx(ctx, "gateway: upload body read failed", "key", key, "error", rerr)
		aborted = true
		break
	}

	totalChunks := index - 1

	if r.ContentLength >= 0 && totalSize != r.ContentLength {
		aborted = true
	}

	if aborted {
		session.Rollback(ctx, totalChunks)
		d.writeError(w, r.Method, storagerpc.New(storagerpc.KindInternalError, errors.New("client disconnected mid-upload")))
		return
	}

	sum, err := session.Commit()
	if err != nil {
		session.Rollback(ctx, totalChunks)
		d.writeError(w, r.Method, storagerpc.New(storagerpc.KindInternalError, err))
		return
	}

	checksum := digest.BigInt(sum).Bytes()
	spanCtx, span := telemetry.StartStorageSpan(ctx, "put", key, telemetry.Size(totalSize), telemetry.CNumber(int64(totalChunks)))
	_, err = d.rpc.Put(spanCtx, key, nil, storagerpc.PutOptions{
		Manifest: &storagerpc.ManifestPut{
			TotalSize:   totalSize,
			ChunkSize:   chunkSize,
			TotalChunks: totalChunks,
			Digest:      checksum,
		},
	})
	span.End()
	if err != nil {
		telemetry.RecordError(spanCtx, err)
		session.Rollback(ctx, totalChunks)
		d.writeError(w, r.Method, err)
		return
	}

	w.Header().Set("ETag", quoteETag(digest.ETag(sum)))
	w.WriteHeader(http.StatusOK)
}

// fetchPlain performs a cache-free fresh GET, used in interceptor mode where
// the response cache is populated by the router's middleware instead of the
// handler itself.
func (d *Dispatcher) fetchPlain(ctx context.Context, key string) (edgecache.Result, error) {
	spanCtx, span := telemetry.StartStorageSpan(ctx, "get", key)
	res, err := d.rpc.Get(spanCtx, key, storagerpc.GetOptions{})
	span.End()
	if err != nil {
		telemetry.RecordError(spanCtx, err)
		return edgecache.Result{}, err
	}

	if res.Metadata.CNumber > 0 {
		total := uint32(res.Metadata.CNumber)
		streamer := stream.New(d.rpc, d.cache)
		return edgecache.Result{
			Size:         res.Metadata.DSize,
			ContentType:  "application/octet-stream",
			ETag:         fmt.Sprintf("%032x", new(big.Int).SetBytes(res.Metadata.Checksum)),
			LastModified: time.Unix(res.Metadata.Timestamp, 0).UTC(),
			Stream: func(ctx context.Context, w io.Writer) error {
				return streamer.StreamAll(ctx, key, total, w)
			},
		}, nil
	}

	return edgecache.Result{
		Body:         res.Body,
		Size:         int64(len(res.Body)),
		ContentType:  "application/octet-stream",
		ETag:         digest.ETag(digest.Sum(res.Body)),
		LastModified: time.Now().UTC(),
	}, nil
}

// serveRange handles a Range header: single-chunk leaf objects are served
// via a direct ranged RPC get, multi-chunk objects via pkg/stream's
// tree-aware StreamRange. Multiple comma-separated ranges are concatenated
// into one chunked 200 response rather than a multipart/byteranges 206 —
// the fixed policy spec.md §9 calls out as an open question resolved in
// favor of matching the documented source behavior.
func (d *Dispatcher) serveRange(ctx context.Context, w http.ResponseWriter, r *http.Request, key, rangeHeader string) {
	headCtx, headSpan := telemetry.StartStorageSpan(ctx, "head", key)
	meta, err := d.rpc.Head(headCtx, key)
	headSpan.End()
	if err != nil {
		telemetry.RecordError(headCtx, err)
		d.writeError(w, r.Method, err)
		return
	}

	ranges, err := parseRanges(rangeHeader, meta.DSize)
	if err != nil {
		d.writeError(w, r.Method, storagerpc.New(storagerpc.KindBadRange, err))
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("ETag", quoteETag(fmt.Sprintf("%032x", new(big.Int).SetBytes(meta.Checksum))))
	w.Header().Set("Last-Modified", time.Unix(meta.Timestamp, 0).UTC().Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)

	streamer := stream.New(d.rpc, d.cache)

	for _, rg := range ranges {
		if meta.CNumber == 0 {
			getCtx, getSpan := telemetry.StartStorageSpan(ctx, "get", key, telemetry.Size(rg.end-rg.start+1))
			res, err := d.rpc.Get(getCtx, key, storagerpc.GetOptions{HasRange: true, Start: rg.start, End: rg.end})
			getSpan.End()
			if err != nil {
				telemetry.RecordError(getCtx, err)
				logger.WarnCtx(ctx, "gateway: ranged get failed mid-response", "key", key, "error", err)
				return
			}
			if _, err := w.Write(res.Body); err != nil {
				return
			}
			continue
		}

		if err := streamer.StreamRange(ctx, key, uint32(meta.CNumber), rg.start, rg.end, w); err != nil {
			logger.WarnCtx(ctx, "gateway: ranged stream failed mid-response", "key", key, "error", err)
			return
		}
	}
}

// writeResult renders a GetObject result: body/stream, headers, and the
// X-From-Cache header internal mode sets on a cache hit.
func (d *Dispatcher) writeResult(w http.ResponseWriter, r *http.Request, res edgecache.Result) {
	h := w.Header()
	if res.ContentType != "" {
		h.Set("Content-Type", res.ContentType)
	}
	if res.ETag != "" {
		h.Set("ETag", quoteETag(res.ETag))
	}
	if !res.LastModified.IsZero() {
		h.Set("Last-Modified", res.LastModified.Format(http.TimeFormat))
	}
	if res.FromCache != "" {
		h.Set("X-From-Cache", res.FromCache)
	}

	switch {
	case res.Stream != nil:
		w.WriteHeader(http.StatusOK)
		if err := res.Stream(r.Context(), w); err != nil {
			logger.WarnCtx(r.Context(), "gateway: stream aborted", "error", err)
		}
	case res.FilePath != "":
		http.ServeFile(w, r, res.FilePath)
	default:
		if res.Size > 0 {
			h.Set("Content-Length", strconv.FormatInt(res.Size, 10))
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(res.Body)
	}
}

type byteRange struct {
	start, end int64
}

// parseRanges parses an HTTP Range header of the form "bytes=a-b,c-d" into
// normalized, validated inclusive ranges against an object of size
// objectSize.
func parseRanges(header string, objectSize int64) ([]byteRange, error) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return nil, fmt.Errorf("unsupported range unit in %q", header)
	}

	specs := strings.Split(strings.TrimPrefix(header, prefix), ",")
	ranges := make([]byteRange, 0, len(specs))

	for _, spec := range specs {
		spec = strings.TrimSpace(spec)
		dash := strings.IndexByte(spec, '-')
		if dash < 0 {
			return nil, fmt.Errorf("malformed range spec %q", spec)
		}

		left, right := spec[:dash], spec[dash+1:]

		var start, end int64
		switch {
		case left == "" && right == "":
			return nil, fmt.Errorf("empty range spec")
		case left == "":
			n, err := strconv.ParseInt(right, 10, 64)
			if err != nil {
				return nil, err
			}
			start, end = 0, -n
		case right == "":
			n, err := strconv.ParseInt(left, 10, 64)
			if err != nil {
				return nil, err
			}
			start, end = n, 0
		default:
			s, err := strconv.ParseInt(left, 10, 64)
			if err != nil {
				return nil, err
			}
			e, err := strconv.ParseInt(right, 10, 64)
			if err != nil {
				return nil, err
			}
			start, end = s, e
		}

		start, end = stream.NormalizeRange(objectSize, start, end)
		if start < 0 || end < start || end >= objectSize {
			return nil, fmt.Errorf("range %q out of bounds for size %d", spec, objectSize)
		}

		ranges = append(ranges, byteRange{start: start, end: end})
	}

	return ranges, nil
}

// readBounded reads r fully, failing once more than limit bytes have been
// read. Used for the small-object PUT path, where Content-Length may be
// absent or lie.
func readBounded(r io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(r, limit+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("body exceeds limit of %d bytes", limit)
	}
	return body, nil
}

func quoteETag(etag string) string {
	return `"` + etag + `"`
}

func objectKey(r *http.Request) string {
	return strings.TrimPrefix(r.URL.Path, "/")
}
