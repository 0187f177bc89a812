// Package storagerpc defines the contract between the gateway and the
// remote content-addressed storage cluster: get/head/put/delete of objects
// identified by opaque keys, with cnumber-aware metadata for chunked
// objects.
package storagerpc

import (
	"context"
	"errors"
)

// Kind distinguishes the error categories the dispatcher maps to HTTP
// status codes (see pkg/gateway/errors.go). CacheMiss is internal — it is
// used by callers that layer a conditional get on top of RPC.Get and must
// never reach the HTTP response.
type Kind int

const (
	// KindNone marks a non-error Kind zero value; never set on a returned error.
	KindNone Kind = iota
	KindNotFound
	KindTimeout
	KindInternalError
	KindBadRange
	KindBadRequest
	KindRolledBackUpload
	KindCacheMiss
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindTimeout:
		return "Timeout"
	case KindInternalError:
		return "InternalError"
	case KindBadRange:
		return "BadRange"
	case KindBadRequest:
		return "BadRequest"
	case KindRolledBackUpload:
		return "RolledBackUpload"
	case KindCacheMiss:
		return "CacheMiss"
	default:
		return "None"
	}
}

// Error wraps an underlying cause with the Kind the dispatcher needs to
// choose an HTTP status. Use New to construct one and As/errors.As (or
// GetKind) to recover the Kind from an arbitrary error chain.
type Error struct {
	Kind  Kind
	Cause error
}

// New builds an *Error. Cause may be nil when the kind alone is enough
// context (e.g. a plain NotFound).
func New(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error { return e.Cause }

// GetKind recovers the Kind carried by err, or KindInternalError if err does
// not wrap a *storagerpc.Error — an error from this package should always
// carry a Kind, so an unattributed error is treated as internal rather than
// silently passed through as a 200.
func GetKind(err error) Kind {
	if err == nil {
		return KindNone
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternalError
}

// ObjectMetadata is returned by Head and by Get on a hit.
type ObjectMetadata struct {
	// Checksum is the object's digest, as the big-endian unsigned integer
	// form produced by pkg/digest.BigInt.
	Checksum []byte

	// Timestamp is seconds since epoch of the object's last write.
	Timestamp int64

	// DSize is the logical byte size of the object (sum of chunk sizes for
	// a manifest, body length for a leaf).
	DSize int64

	// CNumber is the number of direct children; 0 means a leaf object.
	CNumber int64

	// Del is the tombstone flag; false (0) means live.
	Del bool
}

// GetResult is the outcome of Get: Metadata and Body are both set unless
// Matched is true, in which case both are zero-valued.
type GetResult struct {
	// Matched is true only when an EtagHint was supplied and the stored
	// object's ETag still equals it — the caller's cached copy is fresh.
	Matched bool

	Metadata ObjectMetadata
	Body     []byte
}

// GetOptions modifies a Get call. The zero value performs a plain whole-body
// get. Set EtagHint for a conditional get, or Start/End (inclusive, both
// required together) for a byte-range get on a leaf chunk.
type GetOptions struct {
	EtagHint string

	HasRange bool
	Start    int64
	End      int64
}

// PutOptions distinguishes a leaf put from a manifest put — the two
// overload spec.md's single `put` contract on the same wire op, but this
// interface keeps them as two explicitly named shapes instead of inferring
// which one the caller meant from which optional fields happen to be set.
type PutOptions struct {
	// Leaf puts a single chunk (or small object, when ChunkIndex == 0) with
	// Body as its content.
	Leaf *LeafPut

	// Manifest puts a header record for a large object that references
	// TotalChunks children; Body must be empty/nil in this case.
	Manifest *ManifestPut
}

// LeafPut describes a leaf (non-manifest) put. ChunkIndex 0 means a small
// object put directly under its own key rather than a numbered chunk.
type LeafPut struct {
	ChunkIndex uint32
	Size       int64
}

// ManifestPut describes a manifest put for a large object.
type ManifestPut struct {
	TotalSize   int64
	ChunkSize   int64
	TotalChunks uint32
	Digest      []byte
}

// RPC is the remote storage cluster client the gateway brokers requests
// through. Every method takes a bounded context; callers must translate a
// context deadline into a Timeout-kind Error at the call site that enforces
// the bound (see the 30s middleware.Timeout in pkg/gateway's router).
type RPC interface {
	// Get retrieves key. With a zero GetOptions it always returns a body;
	// with EtagHint set it may instead report Matched; with HasRange set it
	// returns only the inclusive byte range [Start, End] of a leaf chunk's
	// body (may be empty if the range is out of bounds).
	Get(ctx context.Context, key string, opts GetOptions) (GetResult, error)

	// Head returns metadata for key without its body.
	Head(ctx context.Context, key string) (ObjectMetadata, error)

	// Put writes key per opts. Returns the object's ETag (hex MD5) on
	// success.
	Put(ctx context.Context, key string, body []byte, opts PutOptions) (string, error)

	// Delete removes key. Deleting an absent key returns a NotFound-kind
	// Error, distinct from CacheStore.Delete's idempotent semantics.
	Delete(ctx context.Context, key string) error
}
