package federation

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExpandHomeExpandsTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory in this sandbox: %v", err)
	}
	got, err := expandHome("~/agency")
	if err != nil {
		t.Fatalf("expandHome: %v", err)
	}
	want := filepath.Join(home, "agency")
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestExpandHomeLeavesOtherPathsAlone(t *testing.T) {
	got, err := expandHome("/abs/path")
	if err != nil {
		t.Fatalf("expandHome: %v", err)
	}
	if got != "/abs/path" {
		t.Fatalf("got %q", got)
	}
}

func TestResolveStoreFindsNestedIdentityDir(t *testing.T) {
	root := t.TempDir()
	rolesDir := filepath.Join(root, "identity", "roles")
	if err := os.MkdirAll(rolesDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	resolved, err := ResolveStore(root)
	if err != nil {
		t.Fatalf("ResolveStore: %v", err)
	}
	want := filepath.Join(root, "identity")
	if resolved != want {
		t.Fatalf("got %q, want %q", resolved, want)
	}
}

func TestResolveStoreFindsWorkgraphIdentityDir(t *testing.T) {
	root := t.TempDir()
	rolesDir := filepath.Join(root, ".workgraph", "identity", "roles")
	if err := os.MkdirAll(rolesDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	resolved, err := ResolveStore(root)
	if err != nil {
		t.Fatalf("ResolveStore: %v", err)
	}
	want := filepath.Join(root, ".workgraph", "identity")
	if resolved != want {
		t.Fatalf("got %q, want %q", resolved, want)
	}
}

func TestResolveStoreBestGuessForUninitializedWorkgraphProject(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, ".workgraph"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	resolved, err := ResolveStore(root)
	if err != nil {
		t.Fatalf("ResolveStore: %v", err)
	}
	want := filepath.Join(root, ".workgraph", "identity")
	if resolved != want {
		t.Fatalf("got %q, want %q", resolved, want)
	}
}

func TestResolveStoreWithRemotesPrefersNamedRemote(t *testing.T) {
	wgDir := t.TempDir()
	storeRoot := t.TempDir()
	if err := os.MkdirAll(filepath.Join(storeRoot, "roles"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := Save(wgDir, Config{Remotes: map[string]Remote{"staging": {Path: storeRoot}}}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	resolved, err := ResolveStoreWithRemotes("staging", wgDir)
	if err != nil {
		t.Fatalf("ResolveStoreWithRemotes: %v", err)
	}
	if resolved != storeRoot {
		t.Fatalf("got %q, want %q", resolved, storeRoot)
	}
}

func TestResolveStoreWithRemotesFallsBackToFilesystem(t *testing.T) {
	wgDir := t.TempDir()
	storeRoot := t.TempDir()
	if err := os.MkdirAll(filepath.Join(storeRoot, "roles"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	resolved, err := ResolveStoreWithRemotes(storeRoot, wgDir)
	if err != nil {
		t.Fatalf("ResolveStoreWithRemotes: %v", err)
	}
	if resolved != storeRoot {
		t.Fatalf("got %q, want %q", resolved, storeRoot)
	}
}

func TestResolvePeerByNamedReference(t *testing.T) {
	wgDir := t.TempDir()
	peerProject := t.TempDir()
	if err := os.Mkdir(filepath.Join(peerProject, ".workgraph"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := Save(wgDir, Config{Peers: map[string]Peer{"p": {Path: peerProject}}}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	resolved, err := ResolvePeer("p", wgDir)
	if err != nil {
		t.Fatalf("ResolvePeer: %v", err)
	}
	if resolved.ProjectPath != peerProject {
		t.Fatalf("ProjectPath = %q, want %q", resolved.ProjectPath, peerProject)
	}
	if resolved.WorkgraphDir != filepath.Join(peerProject, ".workgraph") {
		t.Fatalf("WorkgraphDir = %q", resolved.WorkgraphDir)
	}
}

func TestResolvePeerMissingWorkgraphDirErrors(t *testing.T) {
	wgDir := t.TempDir()
	notAPeer := t.TempDir()
	if _, err := ResolvePeer(notAPeer, wgDir); err == nil {
		t.Fatal("expected an error when the referenced path has no .workgraph directory")
	}
}
