// Package completion provides tab completion for summoner names.
// Names that resolved successfully are remembered in a small file-based
// cache so completions are instant and never call the game API.
package completion

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// RecentSummoner is a summoner name that resolved successfully.
type RecentSummoner struct {
	Name     string    `json:"name"`
	Level    int64     `json:"level,omitempty"`
	LookedUp time.Time `json:"looked_up"`
	Lookups  int       `json:"lookups"`
}

// Cache is the on-disk completion data.
type Cache struct {
	Summoners []RecentSummoner `json:"summoners,omitempty"`
	UpdatedAt time.Time        `json:"updated_at"`
	Version   int              `json:"version"` // Schema version for future migrations
}

const (
	// CacheVersion is the current cache schema version.
	CacheVersion = 1

	// CacheFileName is the default cache file name.
	CacheFileName = "completion.json"

	// DefaultMaxEntries bounds the number of remembered names.
	DefaultMaxEntries = 50
)

// Store handles reading and writing the completion cache.
type Store struct {
	dir        string
	maxEntries int
	now        func() time.Time
	mu         sync.RWMutex
}

// NewStore creates a store under dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir, maxEntries: DefaultMaxEntries, now: time.Now}
}

// Dir returns the cache directory path.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the full path to the cache file.
func (s *Store) Path() string {
	return filepath.Join(s.dir, CacheFileName)
}

// Load reads the cache from disk. A missing or corrupt file yields an empty
// cache.
func (s *Store) Load() (*Cache, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.loadUnsafe()
}

func (s *Store) loadUnsafe() (*Cache, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return &Cache{Version: CacheVersion}, nil
		}
		return nil, err
	}

	var cache Cache
	if err := json.Unmarshal(data, &cache); err != nil {
		return &Cache{Version: CacheVersion}, nil //nolint:nilerr // graceful degradation for corrupted cache
	}
	return &cache, nil
}

// saveUnsafe writes the cache atomically via a temp file.
func (s *Store) saveUnsafe(cache *Cache) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return err
	}

	cache.Version = CacheVersion
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return err
	}

	tmpPath := s.Path() + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.Path())
}

// Record remembers a successful lookup of name. Names are stored as typed;
// an existing entry is matched exactly and moved to the front. The file is
// locked so concurrent kurisu processes do not drop each other's entries.
func (s *Store) Record(name string, level int64) error {
	if strings.TrimSpace(name) == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return err
	}
	lock := flock.New(s.Path() + ".lock")
	if err := lock.Lock(); err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	cache, err := s.loadUnsafe()
	if err != nil {
		cache = &Cache{Version: CacheVersion}
	}

	now := s.now()
	entry := RecentSummoner{Name: name, Level: level, LookedUp: now, Lookups: 1}
	kept := make([]RecentSummoner, 0, len(cache.Summoners)+1)
	for _, r := range cache.Summoners {
		if r.Name == name {
			entry.Lookups = r.Lookups + 1
			continue
		}
		kept = append(kept, r)
	}
	cache.Summoners = append([]RecentSummoner{entry}, kept...)
	if len(cache.Summoners) > s.maxEntries {
		cache.Summoners = cache.Summoners[:s.maxEntries]
	}
	cache.UpdatedAt = now
	return s.saveUnsafe(cache)
}

// Summoners returns remembered names, most recent first.
func (s *Store) Summoners() []RecentSummoner {
	cache, err := s.Load()
	if err != nil {
		return nil
	}
	ranked := make([]RecentSummoner, len(cache.Summoners))
	copy(ranked, cache.Summoners)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].LookedUp.After(ranked[j].LookedUp)
	})
	return ranked
}

// Clear removes the cache file.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.Path())
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
