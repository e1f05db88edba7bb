// Package federation implements cross-repo agency transfer: resolving a
// store or peer reference to a concrete path, merging roles/objectives/
// agents/rewards between two identity stores, and resolving a remote task's
// status via IPC or a direct graph.jsonl read (spec.md 4.9).
package federation

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Remote is a named remote agency store reference.
type Remote struct {
	Path        string  `yaml:"path"`
	Description *string `yaml:"description,omitempty"`
	LastSync    *string `yaml:"last_sync,omitempty"`
}

// Peer is a named peer workgraph instance (another repo with its own
// .workgraph/).
type Peer struct {
	Path        string  `yaml:"path"`
	Description *string `yaml:"description,omitempty"`
}

// Config is the top-level shape of <wgDir>/federation.yaml (spec.md
// SPEC_FULL.md supplemented feature #7).
type Config struct {
	Remotes map[string]Remote `yaml:"remotes,omitempty"`
	Peers   map[string]Peer   `yaml:"peers,omitempty"`
}

const configFilename = "federation.yaml"

// Load reads <wgDir>/federation.yaml, returning an empty Config if the file
// does not exist.
func Load(wgDir string) (Config, error) {
	path := filepath.Join(wgDir, configFilename)
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("federation: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("federation: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to <wgDir>/federation.yaml.
func Save(wgDir string, cfg Config) error {
	path := filepath.Join(wgDir, configFilename)
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("federation: marshal %s: %w", path, err)
	}
	return os.WriteFile(path, b, 0o644)
}

// TouchRemoteSync stamps a named remote's last_sync with now, a no-op if the
// remote is not configured.
func TouchRemoteSync(wgDir, name string, now time.Time) error {
	cfg, err := Load(wgDir)
	if err != nil {
		return err
	}
	remote, ok := cfg.Remotes[name]
	if !ok {
		return nil
	}
	ts := now.UTC().Format(time.RFC3339)
	remote.LastSync = &ts
	cfg.Remotes[name] = remote
	return Save(wgDir, cfg)
}
