// Package digest maintains the rolling MD5 checksum of an object assembled
// from a sequence of chunk bodies, and renders it as an ETag.
package digest

import (
	"crypto/md5"
	"fmt"
	"hash"
	"math/big"
)

// Rolling accumulates an MD5 digest across chunk bodies supplied in strict
// ascending index order. It must only be advanced on chunks that were
// successfully committed to storage — never speculatively, and never rolled
// back — so that the final digest always equals MD5(concat(committed
// chunk bytes)).
type Rolling struct {
	h hash.Hash
}

// New returns a fresh Rolling digest with no bytes consumed yet.
func New() *Rolling {
	return &Rolling{h: md5.New()}
}

// Update folds body into the digest. Update never fails: hash.Hash.Write on
// an MD5 state is defined never to return an error.
func (r *Rolling) Update(body []byte) {
	r.h.Write(body)
}

// Sum returns the current 16-byte MD5 digest without finalizing the
// underlying hash state, so further Update calls remain valid.
func (r *Rolling) Sum() [16]byte {
	var out [16]byte
	copy(out[:], r.h.Sum(nil))
	return out
}

// ETag renders the current digest as the 32 lowercase hex character form
// used for the HTTP ETag header, equivalent to formatting the 128-bit
// digest as "%032x".
func (r *Rolling) ETag() string {
	return ETag(r.Sum())
}

// ETag formats a 16-byte MD5 digest as a 32-character lowercase hex ETag.
func ETag(sum [16]byte) string {
	return fmt.Sprintf("%032x", sum[:])
}

// BigInt converts a 16-byte MD5 digest into the big-endian unsigned integer
// representation used internally as the object's checksum, per spec.md's
// manifest-commit step.
func BigInt(sum [16]byte) *big.Int {
	return new(big.Int).SetBytes(sum[:])
}

// Sum computes the MD5 digest of a single byte slice in one call, for
// callers (e.g. the interceptor cache) that hash a whole body at once
// rather than incrementally.
func Sum(body []byte) [16]byte {
	return md5.Sum(body)
}
