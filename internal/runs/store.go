package runs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bbolt "go.etcd.io/bbolt"
)

// Index is a bbolt-backed catalog of run metadata, so List resolves runs
// without a directory scan + per-run meta.json read. It is a
// secondary index only: the JSONL snapshots under runs/run-NNN/ remain the
// source of truth; Index rebuilds cleanly from them via Reindex.
type Index struct {
	db *bbolt.DB
}

var bucketRuns = []byte("runs")

// OpenIndex opens (creating it and the runs directory if absent) the bbolt
// index at <wgDir>/runs/index.bbolt.
func OpenIndex(wgDir string) (*Index, error) {
	dir := filepath.Join(wgDir, "runs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("runs: create %s: %w", dir, err)
	}
	path := filepath.Join(dir, "index.bbolt")
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("runs: open index: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRuns)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("runs: create runs bucket: %w", err)
	}
	return &Index{db: db}, nil
}

// Close releases the underlying database.
func (idx *Index) Close() error { return idx.db.Close() }

// Put records meta in the index, keyed by run id.
func (idx *Index) Put(meta Meta) error {
	b, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("runs: marshal meta: %w", err)
	}
	return idx.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRuns).Put([]byte(meta.ID), b)
	})
}

// Get looks up a run's metadata by id.
func (idx *Index) Get(runID string) (Meta, bool, error) {
	var meta Meta
	found := false
	err := idx.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketRuns).Get([]byte(runID))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &meta)
	})
	if err != nil {
		return Meta{}, false, fmt.Errorf("runs: get %s: %w", runID, err)
	}
	return meta, found, nil
}

// List returns every indexed run's metadata, in id order.
func (idx *Index) List() ([]Meta, error) {
	var metas []Meta
	err := idx.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRuns).ForEach(func(k, v []byte) error {
			var m Meta
			if err := json.Unmarshal(v, &m); err != nil {
				return nil // skip corrupt entry, matches spec's per-record fault tolerance
			}
			metas = append(metas, m)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("runs: list: %w", err)
	}
	return metas, nil
}

// Reindex rebuilds the bbolt index from the on-disk run-NNN/meta.json
// files, in case the index file is lost or out of sync.
func Reindex(wgDir string) error {
	ids, err := ListRuns(wgDir)
	if err != nil {
		return err
	}
	idx, err := OpenIndex(wgDir)
	if err != nil {
		return err
	}
	defer idx.Close()
	for _, id := range ids {
		meta, err := LoadMeta(wgDir, id)
		if err != nil {
			continue // best-effort: a corrupt meta.json doesn't block the rest
		}
		if err := idx.Put(meta); err != nil {
			return err
		}
	}
	return nil
}
