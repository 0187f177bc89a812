// Package chunkkey derives per-chunk storage keys from a parent object key
// and a 1-based chunk index.
package chunkkey

import (
	"bytes"
	"strconv"
)

// Separator is the byte that joins a parent key to its chunk index suffix.
// Fixed at line feed so that chunk keys never collide with a flat key
// namespace that otherwise only ever contains printable object names.
const Separator = 0x0A

// Derive returns the storage key for chunk i (1-based) of parent.
//
// The layout is parent || Separator || ascii(i), with i encoded as a plain
// decimal with no leading zeros.
func Derive(parent []byte, i uint32) []byte {
	key := make([]byte, 0, len(parent)+1+10)
	key = append(key, parent...)
	key = append(key, Separator)
	key = strconv.AppendUint(key, uint64(i), 10)
	return key
}

// DeriveString is the string-keyed convenience form of Derive.
func DeriveString(parent string, i uint32) string {
	return string(Derive([]byte(parent), i))
}

// ContainsSeparator reports whether key contains the chunk-key separator
// byte anywhere in its bytes. Such a key must never be written into the
// edge cache: a collision with the chunk-key namespace would let a chunk
// lookup return an unrelated top-level object.
func ContainsSeparator(key []byte) bool {
	return bytes.IndexByte(key, Separator) >= 0
}

// ContainsSeparatorString is the string-keyed form of ContainsSeparator.
func ContainsSeparatorString(key string) bool {
	return bytes.IndexByte([]byte(key), Separator) >= 0
}

// ParseIndex extracts the trailing decimal chunk index from a derived key,
// for callers that only hold the encoded key. It returns false if key does
// not contain the separator or the suffix is not a valid chunk index.
func ParseIndex(key []byte) (uint32, bool) {
	pos := bytes.LastIndexByte(key, Separator)
	if pos < 0 || pos == len(key)-1 {
		return 0, false
	}
	n, err := strconv.ParseUint(string(key[pos+1:]), 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}
