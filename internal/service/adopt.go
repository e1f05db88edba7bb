package service

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	bbolt "go.etcd.io/bbolt"
)

// UnreapedHandle is one subprocess the coordinator could not reap before a
// shutdown grace period elapsed (spec.md 4.7 "Cancellation": "PIDs of
// children not yet reaped are recorded in the state file so a fresh daemon
// can adopt them via PID").
type UnreapedHandle struct {
	TaskID     string `json:"task_id"`
	PID        int    `json:"pid"`
	RecordedAt string `json:"recorded_at"`
}

var bucketUnreaped = []byte("unreaped")

// AdoptionLedger is a small bbolt-backed record of unreaped child PIDs
// across daemon restarts, the same embedded-KV approach internal/runs uses
// for its run index (SPEC_FULL.md §2: bbolt also backs this ledger for
// crash-adoption diagnostics).
type AdoptionLedger struct {
	db *bbolt.DB
}

// OpenAdoptionLedger opens (creating if absent) the ledger at
// <wgDir>/service/adoption.bbolt.
func OpenAdoptionLedger(wgDir string) (*AdoptionLedger, error) {
	path := filepath.Join(wgDir, "service", "adoption.bbolt")
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("service: open adoption ledger: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketUnreaped)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("service: create unreaped bucket: %w", err)
	}
	return &AdoptionLedger{db: db}, nil
}

// Close releases the underlying database.
func (l *AdoptionLedger) Close() error { return l.db.Close() }

// RecordUnreaped persists the PIDs of handles still alive after a shutdown
// grace period, keyed by task id, overwriting any prior record for the same
// task.
func (l *AdoptionLedger) RecordUnreaped(handles map[string]int) error {
	now := Now().Format(time.RFC3339)
	return l.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketUnreaped)
		for taskID, pid := range handles {
			rec := UnreapedHandle{TaskID: taskID, PID: pid, RecordedAt: now}
			v, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(taskID), v); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListUnreaped returns every recorded unreaped handle, for a fresh daemon to
// probe (via pidAlive) and decide whether to adopt or reopen the task.
func (l *AdoptionLedger) ListUnreaped() ([]UnreapedHandle, error) {
	var out []UnreapedHandle
	err := l.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketUnreaped).ForEach(func(k, v []byte) error {
			var rec UnreapedHandle
			if err := json.Unmarshal(v, &rec); err != nil {
				return nil // skip corrupt entry, best-effort diagnostics only
			}
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("service: list unreaped: %w", err)
	}
	return out, nil
}

// Clear removes a task's unreaped record, once a fresh daemon has adopted
// or given up on it.
func (l *AdoptionLedger) Clear(taskID string) error {
	return l.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketUnreaped).Delete([]byte(taskID))
	})
}
