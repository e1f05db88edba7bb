// Package graphstore persists a graph.Graph to the line-delimited
// graph.jsonl log, guarded by an advisory exclusive file lock and written
// via temp-file-then-rename for crash safety (spec.md 4.1).
package graphstore

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/wgraph/engine/internal/graph"
)

// ParseError carries the 1-based line number of a malformed graph.jsonl
// entry, matching spec.md 4.1's error contract.
type ParseError struct {
	Line   int
	Source error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("graphstore: parse error at line %d: %v", e.Line, e.Source)
}

func (e *ParseError) Unwrap() error { return e.Source }

// lockFileName is the literal sibling lock file spec.md:101/:281 name
// ("graph.lock"), not a suffix on the target path. Other readers, such as
// federation's direct-read fallback, take it through Load.
const lockFileName = "graph.lock"

// lockFile acquires an exclusive advisory lock on the sibling "graph.lock"
// file next to path, creating it if needed, and returns a release function
// that is always safe to call.
func lockFile(path string) (func(), error) {
	lockPath := filepath.Join(filepath.Dir(path), lockFileName)
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("graphstore: open lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("graphstore: acquire lock: %w", err)
	}
	return func() {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		_ = f.Close()
	}, nil
}

// Load reads graph.jsonl at path under an exclusive lock. Blank lines and
// lines starting with "#" are ignored; legacy "kind":"actor" lines are
// silently skipped; duplicate IDs are last-wins with a stderr warning.
func Load(path string) (*graph.Graph, error) {
	unlock, err := lockFile(path)
	if err != nil {
		return nil, err
	}
	defer unlock()

	g := graph.New()
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return g, nil
	}
	if err != nil {
		return nil, fmt.Errorf("graphstore: open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var n graph.Node
		if err := json.Unmarshal([]byte(line), &n); err != nil {
			return nil, &ParseError{Line: lineNo, Source: err}
		}
		if n.Kind == graph.NodeKindActor {
			continue
		}
		if existing := g.GetNode(n.ID()); existing != nil {
			slog.Warn("graphstore: duplicate node id, last-wins", "id", n.ID(), "line", lineNo)
		}
		g.AddNode(&n)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("graphstore: read %s: %w", path, err)
	}
	return g, nil
}

// Save writes g to path atomically: a sibling temp file is written, flushed,
// fsynced, then renamed over the target. On any error the temp file is
// removed and the original is untouched.
func Save(g *graph.Graph, path string) (err error) {
	unlock, err := lockFile(path)
	if err != nil {
		return err
	}
	defer unlock()

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, fmt.Sprintf(".graph.tmp.%d-*", os.Getpid()))
	if err != nil {
		return fmt.Errorf("graphstore: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	var buf bytes.Buffer
	for _, n := range g.Nodes() {
		line, mErr := json.Marshal(n)
		if mErr != nil {
			tmp.Close()
			return fmt.Errorf("graphstore: marshal node %s: %w", n.ID(), mErr)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	if _, err = io.Copy(tmp, &buf); err != nil {
		tmp.Close()
		return fmt.Errorf("graphstore: write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("graphstore: fsync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("graphstore: close temp file: %w", err)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("graphstore: rename temp file over %s: %w", path, err)
	}
	return nil
}
