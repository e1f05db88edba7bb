package federation

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// expandHome expands a leading "~/" to the user's home directory.
func expandHome(reference string) (string, error) {
	suffix, ok := strings.CutPrefix(reference, "~/")
	if !ok {
		return reference, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("federation: cannot determine home directory: %w", err)
	}
	return filepath.Join(home, suffix), nil
}

func toAbs(path string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("federation: getwd: %w", err)
	}
	return filepath.Join(cwd, path), nil
}

func canonicalize(path string) string {
	if real, err := filepath.EvalSymlinks(path); err == nil {
		return real
	}
	return path
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// ResolveStore resolves a store reference string (an agency dir, a bare
// identity dir, or a project root) to the concrete identity store root,
// checking three candidate locations in order: the path itself, path/identity,
// and path/.workgraph/identity. If none already has a roles/ subdirectory,
// it returns a best-guess path for a not-yet-created store rather than an
// error, so callers doing a push can create it (spec.md 4.9).
func ResolveStore(reference string) (string, error) {
	expanded, err := expandHome(reference)
	if err != nil {
		return "", err
	}
	abs, err := toAbs(expanded)
	if err != nil {
		return "", err
	}
	path := canonicalize(abs)

	if isDir(filepath.Join(path, "roles")) {
		return path, nil
	}
	identitySub := filepath.Join(path, "identity")
	if isDir(filepath.Join(identitySub, "roles")) {
		return identitySub, nil
	}
	wgAgency := filepath.Join(path, ".workgraph", "identity")
	if isDir(filepath.Join(wgAgency, "roles")) {
		return wgAgency, nil
	}

	if isDir(filepath.Join(path, ".workgraph")) {
		return wgAgency, nil
	}
	if filepath.Base(path) == "identity" {
		return path, nil
	}
	return identitySub, nil
}

// ResolveStoreWithRemotes checks named remotes in federation.yaml before
// falling back to ResolveStore's filesystem resolution.
func ResolveStoreWithRemotes(reference string, wgDir string) (string, error) {
	cfg, err := Load(wgDir)
	if err != nil {
		return "", err
	}
	if remote, ok := cfg.Remotes[reference]; ok {
		return ResolveStore(remote.Path)
	}
	return ResolveStore(reference)
}

// ResolvedPeer is a peer workgraph project's root and .workgraph directory.
type ResolvedPeer struct {
	ProjectPath   string
	WorkgraphDir string
}

// ResolvePeer resolves a peer reference string to a concrete project,
// checking named peers in federation.yaml first (spec.md 4.9).
func ResolvePeer(reference, wgDir string) (ResolvedPeer, error) {
	cfg, err := Load(wgDir)
	if err != nil {
		return ResolvedPeer{}, err
	}
	rawPath := reference
	if peer, ok := cfg.Peers[reference]; ok {
		rawPath = peer.Path
	}
	expanded, err := expandHome(rawPath)
	if err != nil {
		return ResolvedPeer{}, err
	}
	abs, err := toAbs(expanded)
	if err != nil {
		return ResolvedPeer{}, err
	}
	projectPath := canonicalize(abs)

	wg := filepath.Join(projectPath, ".workgraph")
	if !isDir(wg) {
		return ResolvedPeer{}, fmt.Errorf("federation: no .workgraph directory found at %q, is this a workgraph project?", projectPath)
	}
	return ResolvedPeer{ProjectPath: projectPath, WorkgraphDir: wg}, nil
}
