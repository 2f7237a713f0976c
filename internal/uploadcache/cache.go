// Package uploadcache persists a small mapping from content hashes to
// uploaded-file handles so multimodal attachments are not re-uploaded to a
// vendor's file store within the handle's validity window.
//
// The cache is a single JSON file: {key: {"value": str, "expires_at":
// float}}. Expired entries are dropped on save. Concurrent readers are
// safe; concurrent writers of the same key are last-write-wins, which is
// acceptable because the values are interchangeable handles for the same
// content.
package uploadcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry is one cached handle.
type Entry struct {
	Value     string  `json:"value"`
	ExpiresAt float64 `json:"expires_at"`
}

// Cache is a file-backed expiring key/value store.
type Cache struct {
	mu   sync.RWMutex
	path string
	now  func() time.Time
}

// New creates a cache at path. When the directory is not writable the
// cache falls back to the OS temp directory so a read-only install still
// works (handles are simply re-created after restarts).
func New(path string) *Cache {
	dir := filepath.Dir(path)
	if !dirWritable(dir) {
		path = filepath.Join(os.TempDir(), filepath.Base(path))
	}
	c := &Cache{path: path, now: time.Now}
	c.ensureFile()
	return c
}

func dirWritable(dir string) bool {
	probe, err := os.CreateTemp(dir, ".cirrus-cache-probe-*")
	if err != nil {
		return false
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return true
}

func (c *Cache) ensureFile() {
	if _, err := os.Stat(c.path); os.IsNotExist(err) {
		_ = os.WriteFile(c.path, []byte("{}"), 0o644)
	}
}

func (c *Cache) load() map[string]Entry {
	b, err := os.ReadFile(c.path)
	if err != nil {
		return map[string]Entry{}
	}
	var entries map[string]Entry
	if err := json.Unmarshal(b, &entries); err != nil || entries == nil {
		return map[string]Entry{}
	}
	return entries
}

func (c *Cache) save(entries map[string]Entry) {
	nowSecs := float64(c.now().UnixNano()) / float64(time.Second)
	cleaned := make(map[string]Entry, len(entries))
	for k, v := range entries {
		if v.ExpiresAt > nowSecs {
			cleaned[k] = v
		}
	}
	b, err := json.Marshal(cleaned)
	if err != nil {
		return
	}
	_ = os.WriteFile(c.path, b, 0o644)
}

// Get returns the cached value for key when present and unexpired.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries := c.load()
	entry, ok := entries[key]
	if !ok {
		return "", false
	}
	if entry.ExpiresAt <= float64(c.now().UnixNano())/float64(time.Second) {
		return "", false
	}
	return entry.Value, true
}

// Set stores value under key with the given time-to-live.
func (c *Cache) Set(key, value string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.load()
	entries[key] = Entry{
		Value:     value,
		ExpiresAt: float64(c.now().Add(ttl).UnixNano()) / float64(time.Second),
	}
	c.save(entries)
}

// Path returns the backing file location (after any temp-dir fallback).
func (c *Cache) Path() string { return c.path }

// ContentKey derives a cache key from file bytes.
func ContentKey(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
