package domainclient

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Cache stores the last verification status per domain.
type Cache interface {
	Get(key string) (Status, bool)
	Set(key string, value Status) error
	Delete(key string) error
}

// =============================================================================
// MemoryCache
// =============================================================================

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]Status
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]Status)}
}

func (c *MemoryCache) Get(key string) (Status, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.entries[key]
	return s, ok
}

func (c *MemoryCache) Set(key string, value Status) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	return nil
}

func (c *MemoryCache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// =============================================================================
// FileCache
// =============================================================================

// FileCache persists entries as a YAML document so statuses survive between
// CLI invocations.
type FileCache struct {
	path string

	mu      sync.Mutex
	entries map[string]Status
}

type cacheFile struct {
	Domains map[string]Status `yaml:"domains"`
}

// OpenFileCache loads path, creating an empty cache if it does not exist.
func OpenFileCache(path string) (*FileCache, error) {
	c := &FileCache{path: path, entries: make(map[string]Status)}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return c, nil
		}
		return nil, fmt.Errorf("read cache file: %w", err)
	}

	var f cacheFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse cache file %s: %w", path, err)
	}
	for k, v := range f.Domains {
		c.entries[k] = v
	}
	return c, nil
}

func (c *FileCache) Get(key string) (Status, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.entries[key]
	return s, ok
}

func (c *FileCache) Set(key string, value Status) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	return c.flush()
}

func (c *FileCache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		return nil
	}
	delete(c.entries, key)
	return c.flush()
}

// flush rewrites the file through a rename. Caller holds mu.
func (c *FileCache) flush() error {
	data, err := yaml.Marshal(cacheFile{Domains: c.entries})
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(c.path), ".domains-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace cache file: %w", err)
	}
	return nil
}
