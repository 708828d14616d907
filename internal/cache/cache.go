package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

const entryExt = ".json"

// Entry is one cached model response.
type Entry struct {
	Key       string    `json:"key"`
	Response  string    `json:"response"`
	CreatedAt time.Time `json:"createdAt"`
}

// Cache stores model responses on disk. A disabled cache misses every Get and
// ignores every Put. Safe for concurrent use: writes go through a temp file
// and an atomic rename.
type Cache struct {
	dir     string
	ttl     time.Duration
	enabled bool
	now     func() time.Time
}

// New creates a cache rooted at dir, or the default directory when dir is
// empty. A zero ttl keeps entries forever.
func New(enabled bool, dir string, ttl time.Duration) (*Cache, error) {
	if !enabled {
		return &Cache{enabled: false, now: time.Now}, nil
	}
	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &Cache{dir: dir, ttl: ttl, enabled: true, now: time.Now}, nil
}

// Key hashes the parts that identify a response into a cache key.
func Key(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		fmt.Fprintf(h, "%d:%s\x00", len(p), p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached response for key. Expired entries are removed.
func (c *Cache) Get(key string) (string, bool) {
	if c == nil || !c.enabled {
		return "", false
	}
	path := c.entryPath(key)
	entry, err := readEntry(path)
	if err != nil {
		return "", false
	}
	if c.expired(entry) {
		os.Remove(path)
		return "", false
	}
	return entry.Response, true
}

// Put stores response under key.
func (c *Cache) Put(key, response string) error {
	if c == nil || !c.enabled {
		return nil
	}
	data, err := json.Marshal(Entry{Key: key, Response: response, CreatedAt: c.now()})
	if err != nil {
		return fmt.Errorf("marshaling cache entry: %w", err)
	}
	tmp, err := os.CreateTemp(c.dir, ".entry-*")
	if err != nil {
		return fmt.Errorf("creating cache entry: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.entryPath(key)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("storing cache entry: %w", err)
	}
	return nil
}

// Clear removes every entry and returns how many were removed.
func (c *Cache) Clear() (int, error) {
	return c.remove(func(Entry) bool { return true })
}

// Prune removes expired entries and returns how many were removed.
func (c *Cache) Prune() (int, error) {
	return c.remove(c.expired)
}

func (c *Cache) remove(match func(Entry) bool) (int, error) {
	if c == nil || !c.enabled || c.dir == "" {
		return 0, nil
	}
	var removed int
	err := c.walk(func(path string, _ fs.FileInfo, e Entry) {
		if match(e) && os.Remove(path) == nil {
			removed++
		}
	})
	return removed, err
}

// Stats describes the cache contents.
type Stats struct {
	Dir        string `json:"dir"`
	Entries    int    `json:"entries"`
	TotalBytes int64  `json:"totalBytes"`
	Expired    int    `json:"expired"`
	// Oldest is the creation time of the oldest entry, zero when empty.
	Oldest time.Time `json:"oldest,omitzero"`
}

// Stats scans the cache directory.
func (c *Cache) Stats() (Stats, error) {
	stats := Stats{Dir: c.Dir()}
	if c == nil || !c.enabled || c.dir == "" {
		return stats, nil
	}
	err := c.walk(func(_ string, info fs.FileInfo, e Entry) {
		stats.Entries++
		stats.TotalBytes += info.Size()
		if c.expired(e) {
			stats.Expired++
		}
		if stats.Oldest.IsZero() || e.CreatedAt.Before(stats.Oldest) {
			stats.Oldest = e.CreatedAt
		}
	})
	return stats, err
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	if c == nil {
		return ""
	}
	return c.dir
}

// Enabled reports whether caching is on.
func (c *Cache) Enabled() bool {
	return c != nil && c.enabled
}

func (c *Cache) walk(fn func(path string, info fs.FileInfo, e Entry)) error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading cache directory: %w", err)
	}
	for _, de := range entries {
		if de.IsDir() || filepath.Ext(de.Name()) != entryExt {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(c.dir, de.Name())
		e, err := readEntry(path)
		if err != nil {
			continue
		}
		fn(path, info, e)
	}
	return nil
}

func (c *Cache) expired(e Entry) bool {
	return c.ttl > 0 && c.now().Sub(e.CreatedAt) > c.ttl
}

func (c *Cache) entryPath(key string) string {
	// Keys from Key are already hex; anything else is hashed to a safe name.
	name := key
	if len(name) != sha256.Size*2 {
		name = Key(key)
	}
	return filepath.Join(c.dir, name+entryExt)
}

func readEntry(path string) (Entry, error) {
	var e Entry
	data, err := os.ReadFile(path)
	if err != nil {
		return e, err
	}
	err = json.Unmarshal(data, &e)
	return e, err
}

// DefaultDir returns the OS-appropriate cache directory for quorum.
func DefaultDir() (string, error) {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "quorum"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Caches", "quorum"), nil
	case "windows":
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return filepath.Join(localAppData, "quorum", "cache"), nil
		}
		return filepath.Join(home, "AppData", "Local", "quorum", "cache"), nil
	default:
		return filepath.Join(home, ".cache", "quorum"), nil
	}
}
