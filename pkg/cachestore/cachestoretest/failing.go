// Package cachestoretest provides cachestore.Store fixtures for exercising
// the best-effort contract: callers elsewhere in the gateway must tolerate a
// cache that fails every operation without failing the request it backs.
package cachestoretest

import (
	"errors"

	"github.com/marmos91/storage-gateway/pkg/cachestore"
)

// ErrInjected is returned by every FailingStore operation.
var ErrInjected = errors.New("cachestoretest: injected failure")

// FailingStore is a cachestore.Store whose every operation fails. Get always
// misses; Put and Delete always return ErrInjected.
type FailingStore struct{}

// Get always reports a miss.
func (FailingStore) Get(string) (cachestore.CachedEntry, bool) {
	return cachestore.CachedEntry{}, false
}

// Put always fails.
func (FailingStore) Put(string, cachestore.CachedEntry) error {
	return ErrInjected
}

// Delete always fails.
func (FailingStore) Delete(string) error {
	return ErrInjected
}
