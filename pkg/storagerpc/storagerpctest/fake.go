// Package storagerpctest provides an in-memory storagerpc.RPC fake for unit
// tests of pkg/upload, pkg/stream, and pkg/gateway, so those packages don't
// need a live S3-compatible endpoint to exercise chunk put/get/delete
// sequencing.
package storagerpctest

import (
	"context"
	"sync"
	"time"

	"github.com/marmos91/storage-gateway/pkg/digest"
	"github.com/marmos91/storage-gateway/pkg/storagerpc"
)

type object struct {
	meta storagerpc.ObjectMetadata
	body []byte
}

// Fake is a storagerpc.RPC backed by an in-process map. Safe for concurrent
// use. Deleted keys are removed outright (no tombstone retained), matching
// what pkg/upload's rollback and pkg/stream's tests need to observe.
type Fake struct {
	mu      sync.Mutex
	objects map[string]object

	// FailPut, when non-nil, is consulted before every Put; return a
	// non-nil error to make that put fail, for rollback/error-path tests.
	FailPut func(key string) error
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{objects: make(map[string]object)}
}

// Get implements storagerpc.RPC.
func (f *Fake) Get(_ context.Context, key string, opts storagerpc.GetOptions) (storagerpc.GetResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	obj, ok := f.objects[key]
	if !ok {
		return storagerpc.GetResult{}, storagerpc.New(storagerpc.KindNotFound, nil)
	}

	if opts.EtagHint != "" && opts.EtagHint == etagOf(obj) {
		return storagerpc.GetResult{Matched: true}, nil
	}

	body := obj.body
	if opts.HasRange {
		start, end := opts.Start, opts.End
		if start < 0 || start >= int64(len(body)) {
			return storagerpc.GetResult{Metadata: obj.meta, Body: []byte{}}, nil
		}
		if end >= int64(len(body)) {
			end = int64(len(body)) - 1
		}
		body = body[start : end+1]
	}

	return storagerpc.GetResult{Metadata: obj.meta, Body: append([]byte(nil), body...)}, nil
}

// Head implements storagerpc.RPC.
func (f *Fake) Head(_ context.Context, key string) (storagerpc.ObjectMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	obj, ok := f.objects[key]
	if !ok {
		return storagerpc.ObjectMetadata{}, storagerpc.New(storagerpc.KindNotFound, nil)
	}
	return obj.meta, nil
}

// Put implements storagerpc.RPC.
func (f *Fake) Put(_ context.Context, key string, body []byte, opts storagerpc.PutOptions) (string, error) {
	if f.FailPut != nil {
		if err := f.FailPut(key); err != nil {
			return "", err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	sum := digest.Sum(body)
	etag := digest.ETag(sum)

	var meta storagerpc.ObjectMetadata
	switch {
	case opts.Manifest != nil:
		meta = storagerpc.ObjectMetadata{
			Checksum:  opts.Manifest.Digest,
			Timestamp: time.Now().Unix(),
			DSize:     opts.Manifest.TotalSize,
			CNumber:   int64(opts.Manifest.TotalChunks),
		}
	case opts.Leaf != nil:
		meta = storagerpc.ObjectMetadata{
			Checksum:  sum[:],
			Timestamp: time.Now().Unix(),
			DSize:     opts.Leaf.Size,
		}
	default:
		meta = storagerpc.ObjectMetadata{Checksum: sum[:], Timestamp: time.Now().Unix(), DSize: int64(len(body))}
	}

	f.objects[key] = object{meta: meta, body: append([]byte(nil), body...)}
	return etag, nil
}

// Delete implements storagerpc.RPC.
func (f *Fake) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.objects[key]; !ok {
		return storagerpc.New(storagerpc.KindNotFound, nil)
	}
	delete(f.objects, key)
	return nil
}

// Exists reports whether key is currently stored, for test assertions.
func (f *Fake) Exists(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, ok := f.objects[key]
	return ok
}

func etagOf(obj object) string {
	if len(obj.meta.Checksum) == 0 {
		return ""
	}
	var sum [16]byte
	copy(sum[:], obj.meta.Checksum)
	return digest.ETag(sum)
}
