// Package prompt loads markdown prompt assets from a directory, caching
// content in memory and optionally invalidating the cache when files change
// on disk.
package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Loader reads prompt markdown files by identifier (the file stem) and
// caches them until invalidated.
type Loader struct {
	mu    sync.RWMutex
	root  string
	cache map[string]string
}

// NewLoader creates a loader rooted at dir.
func NewLoader(dir string) *Loader {
	return &Loader{
		root:  dir,
		cache: make(map[string]string),
	}
}

// Dir returns the prompt directory.
func (l *Loader) Dir() string {
	return l.root
}

// List returns the available prompt identifiers sorted lexicographically.
func (l *Loader) List() ([]string, error) {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		return nil, fmt.Errorf("reading prompts directory %s: %w", l.root, err)
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(entry.Name(), ".md"))
	}
	sort.Strings(ids)
	return ids, nil
}

// Load returns prompt text, reading from disk on first use.
func (l *Loader) Load(id string) (string, error) {
	l.mu.RLock()
	content, ok := l.cache[id]
	l.mu.RUnlock()
	if ok {
		return content, nil
	}

	path := filepath.Join(l.root, id+".md")
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("loading prompt %s: %w", id, err)
	}

	l.mu.Lock()
	l.cache[id] = string(raw)
	l.mu.Unlock()
	return string(raw), nil
}

// LoadAll reads every prompt under the root, keyed by identifier.
func (l *Loader) LoadAll() (map[string]string, error) {
	ids, err := l.List()
	if err != nil {
		return nil, err
	}
	all := make(map[string]string, len(ids))
	for _, id := range ids {
		content, err := l.Load(id)
		if err != nil {
			return nil, err
		}
		all[id] = content
	}
	return all, nil
}

// Invalidate drops the cached content so the next Load re-reads from disk.
// An empty id drops the whole cache.
func (l *Loader) Invalidate(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if id == "" {
		l.cache = make(map[string]string)
		return
	}
	delete(l.cache, id)
}
