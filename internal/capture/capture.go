// Package capture snapshots a completed task's output into
// <wg_dir>/output/<task_id>/ (spec.md 4.5): a git diff, an artifact
// manifest, and the task's log. Every step is best-effort — failure in one
// never blocks the others, matching the reference fleet's capture-output
// philosophy in services/audit-trail (write *something* even on failure).
package capture

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/wgraph/engine/internal/graph"
)

// ArtifactEntry is one entry of artifacts.json.
type ArtifactEntry struct {
	Path string `json:"path"`
	Size *int64 `json:"size,omitempty"`
}

// CaptureTaskOutput writes changes.patch, artifacts.json, and log.json into
// <wgDir>/output/<task.ID>/. repoRoot is the git working tree to diff.
func CaptureTaskOutput(wgDir, repoRoot string, t *graph.Task) error {
	dir := filepath.Join(wgDir, "output", t.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("capture: create output dir: %w", err)
	}

	writeChangesPatch(dir, repoRoot, t)
	writeArtifactsJSON(dir, repoRoot, t)
	writeLogJSON(dir, t)
	return nil
}

func writeChangesPatch(dir, repoRoot string, t *graph.Task) {
	path := filepath.Join(dir, "changes.patch")
	base := "HEAD"
	if t.StartedAt != nil {
		if rev, err := baseRevBefore(repoRoot, *t.StartedAt); err == nil && rev != "" {
			base = rev
		}
	}
	out, err := runGit(repoRoot, "diff", base)
	if err != nil {
		_ = os.WriteFile(path, []byte(fmt.Sprintf("# git diff failed: %v\n", err)), 0o644)
		return
	}
	if len(strings.TrimSpace(string(out))) == 0 {
		_ = os.WriteFile(path, []byte("# no changes\n"), 0o644)
		return
	}
	_ = os.WriteFile(path, out, 0o644)
}

// baseRevBefore finds the HEAD commit at or before startedAt, via
// `git rev-list -1 --before=<ts> HEAD`.
func baseRevBefore(repoRoot, startedAt string) (string, error) {
	out, err := runGit(repoRoot, "rev-list", "-1", "--before="+startedAt, "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func runGit(repoRoot string, args ...string) ([]byte, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = repoRoot
	return cmd.Output()
}

func writeArtifactsJSON(dir, repoRoot string, t *graph.Task) {
	entries := make([]ArtifactEntry, 0, len(t.Artifacts))
	for _, a := range t.Artifacts {
		path := a
		if !filepath.IsAbs(path) {
			path = filepath.Join(repoRoot, path)
		}
		entry := ArtifactEntry{Path: a}
		if info, err := os.Stat(path); err == nil {
			size := info.Size()
			entry.Size = &size
		}
		entries = append(entries, entry)
	}
	b, err := json.Marshal(entries)
	if err != nil {
		_ = os.WriteFile(filepath.Join(dir, "artifacts.json"), []byte("[]"), 0o644)
		return
	}
	_ = os.WriteFile(filepath.Join(dir, "artifacts.json"), b, 0o644)
}

func writeLogJSON(dir string, t *graph.Task) {
	b, err := json.MarshalIndent(t.Log, "", "  ")
	if err != nil {
		_ = os.WriteFile(filepath.Join(dir, "log.json"), []byte("[]"), 0o644)
		return
	}
	_ = os.WriteFile(filepath.Join(dir, "log.json"), b, 0o644)
}
