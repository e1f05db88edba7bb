package identity

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Cache is the narrow interface identity needs from blobcache.Cache, kept
// here so this package does not import badger directly.
type Cache interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte) error
}

// ResolveSkill resolves a single skill reference to its content. Name is a
// tag and resolves to itself. File reads from disk (expanding "~" and
// resolving relative paths against root). URL performs an HTTP GET. When
// cache is non-nil, File and URL results are looked up in and memoized to it,
// keyed by resolved path or URL. Inline returns its value verbatim.
func ResolveSkill(skill SkillRef, root string, cache Cache) (ResolvedSkill, error) {
	switch skill.Kind {
	case SkillName:
		return ResolvedSkill{Name: skill.Name, Content: skill.Name}, nil
	case SkillInline:
		return ResolvedSkill{Name: skill.Value, Content: skill.Value}, nil
	case SkillFile:
		path := expandTilde(skill.Path)
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, path)
		}
		if cache != nil {
			if b, ok := cache.Get("file:" + path); ok {
				return ResolvedSkill{Name: skill.Path, Content: string(b)}, nil
			}
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return ResolvedSkill{}, fmt.Errorf("identity: resolve file skill %s: %w", skill.Path, err)
		}
		if cache != nil {
			if err := cache.Put("file:"+path, b); err != nil {
				slog.Warn("identity: skill cache put failed", "path", path, "error", err)
			}
		}
		return ResolvedSkill{Name: skill.Path, Content: string(b)}, nil
	case SkillURL:
		if cache != nil {
			if b, ok := cache.Get("url:" + skill.URL); ok {
				return ResolvedSkill{Name: skill.URL, Content: string(b)}, nil
			}
		}
		client := &http.Client{Timeout: 10 * time.Second}
		resp, err := client.Get(skill.URL)
		if err != nil {
			return ResolvedSkill{}, fmt.Errorf("identity: fetch url skill %s: %w", skill.URL, err)
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return ResolvedSkill{}, fmt.Errorf("identity: read url skill %s: %w", skill.URL, err)
		}
		if cache != nil {
			if err := cache.Put("url:"+skill.URL, b); err != nil {
				slog.Warn("identity: skill cache put failed", "url", skill.URL, "error", err)
			}
		}
		return ResolvedSkill{Name: skill.URL, Content: string(b)}, nil
	default:
		return ResolvedSkill{}, fmt.Errorf("identity: unknown skill kind %q", skill.Kind)
	}
}

// ResolveAllSkills resolves every skill, returning only successes. Failures
// are logged and otherwise never abort the caller (spec.md 4.3).
func ResolveAllSkills(skills []SkillRef, root string, cache Cache) []ResolvedSkill {
	out := make([]ResolvedSkill, 0, len(skills))
	for _, s := range skills {
		resolved, err := ResolveSkill(s, root, cache)
		if err != nil {
			slog.Warn("identity: skill resolution failed", "error", err)
			continue
		}
		out = append(out, resolved)
	}
	return out
}

func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
