// Package blobcache memoizes resolved skill content (SkillRef.File /
// SkillRef.URL bodies) by content key in a BadgerDB, so repeated readiness
// ticks don't re-read disk or re-fetch a URL for every role lookup.
// Grounded on the reference fleet's content-addressed block store
// (services/blockchain/store/kv_store.go): same idea — a badger.DB keyed by
// a stable hash — applied to skill bytes instead of chain blocks.
package blobcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"path/filepath"

	badger "github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Cache wraps a BadgerDB keyed by SHA-256(key) -> value.
type Cache struct {
	db    *badger.DB
	hits  metric.Int64Counter
	misses metric.Int64Counter
}

// Open opens (creating if absent) a badger store rooted at path.
func Open(path string) (*Cache, error) {
	opts := badger.DefaultOptions(filepath.Clean(path)).WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	m := otel.Meter("workgraph-identity")
	hits, _ := m.Int64Counter("workgraph_skill_cache_hits_total")
	misses, _ := m.Int64Counter("workgraph_skill_cache_misses_total")
	return &Cache{db: db, hits: hits, misses: misses}, nil
}

// Close releases the underlying database.
func (c *Cache) Close() error { return c.db.Close() }

func encodeKey(key string) []byte {
	sum := sha256.Sum256([]byte(key))
	return []byte(hex.EncodeToString(sum[:]))
}

// Get returns the cached value for key, if present.
func (c *Cache) Get(key string) ([]byte, bool) {
	var out []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(encodeKey(key))
		if err != nil {
			return err
		}
		v, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			c.misses.Add(context.Background(), 1)
		}
		return nil, false
	}
	c.hits.Add(context.Background(), 1)
	return out, true
}

// Put stores value under key, overwriting any existing entry.
func (c *Cache) Put(key string, value []byte) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(encodeKey(key), value)
	})
}
