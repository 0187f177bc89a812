package s3

import (
	"encoding/json"
	"errors"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/marmos91/storage-gateway/internal/logger"
	"github.com/marmos91/storage-gateway/pkg/storagerpc"
)

// MetaIndex is a local embedded-KV cache of storagerpc.ObjectMetadata,
// keyed by full S3 object key. It accelerates Head calls (used by range
// reads' chunk-tree walk) by avoiding an S3 round trip when a recent
// metadata snapshot is already indexed. Get calls refresh the index but
// always fetch from S3.
//
// MetaIndex is strictly an accelerator, never a source of truth: a miss or
// any internal error here just means the caller falls through to S3. It is
// not the edge cache (pkg/cachestore) and holds no object bodies, so it
// does not participate in the cache-best-effort or cache_method split
// described for CacheStore.
type MetaIndex struct {
	db *badger.DB
}

// OpenMetaIndex opens (creating if absent) a badger database at dir for use
// as a MetaIndex. Pass "" for an in-memory-only index (useful in tests or
// when disk persistence of the accelerator isn't wanted).
func OpenMetaIndex(dir string) (*MetaIndex, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &MetaIndex{db: db}, nil
}

// Close releases the underlying badger database.
func (m *MetaIndex) Close() error {
	return m.db.Close()
}

// Get returns the indexed metadata for key, if present.
func (m *MetaIndex) Get(key string) (storagerpc.ObjectMetadata, bool) {
	var meta storagerpc.ObjectMetadata
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		})
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			logger.Debug("storagerpc/s3: metaindex get failed", "key", key, "error", err)
		}
		return storagerpc.ObjectMetadata{}, false
	}
	return meta, true
}

// Put indexes meta under key, overwriting any existing entry. Failures are
// logged and otherwise ignored: the index is an accelerator, not a ledger.
func (m *MetaIndex) Put(key string, meta storagerpc.ObjectMetadata) {
	val, err := json.Marshal(meta)
	if err != nil {
		logger.Debug("storagerpc/s3: metaindex marshal failed", "key", key, "error", err)
		return
	}

	err = m.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), val)
	})
	if err != nil {
		logger.Debug("storagerpc/s3: metaindex put failed", "key", key, "error", err)
	}
}

// Delete removes key from the index. Failures are logged and otherwise
// ignored.
func (m *MetaIndex) Delete(key string) {
	err := m.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		logger.Debug("storagerpc/s3: metaindex delete failed", "key", key, "error", err)
	}
}
