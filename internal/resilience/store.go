// Package resilience guards upstream calls with a burst limiter, a
// persisted long-window rate limiter, an in-process bulkhead and a
// persisted circuit breaker. It plugs into the riot client as gating hooks.
package resilience

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/gofrs/flock"
)

const (
	// StateFileName is the state file inside the store directory.
	StateFileName = "state.json"

	// DefaultDirName is the subdirectory within the cache dir.
	DefaultDirName = "resilience"
)

// LockTimeout bounds the wait for the state lock. Past it, operations run
// unlocked rather than stall a reply.
const LockTimeout = 100 * time.Millisecond

// Store reads and writes State under an exclusive file lock.
type Store struct {
	dir string
}

// NewStore creates a store in dir, or in the user cache dir when empty.
func NewStore(dir string) *Store {
	if dir == "" {
		dir = DefaultStateDir()
	}
	return &Store{dir: dir}
}

// DefaultStateDir returns <user cache dir>/kurisu/resilience.
func DefaultStateDir() string {
	if cacheDir := os.Getenv("XDG_CACHE_HOME"); cacheDir != "" {
		return filepath.Join(cacheDir, "kurisu", DefaultDirName)
	}
	if cacheDir, err := os.UserCacheDir(); err == nil && cacheDir != "" {
		return filepath.Join(cacheDir, "kurisu", DefaultDirName)
	}
	return filepath.Join(os.TempDir(), "kurisu", DefaultDirName)
}

func (s *Store) Dir() string { return s.dir }

// Path returns the state file path.
func (s *Store) Path() string {
	return filepath.Join(s.dir, StateFileName)
}

// lock takes the directory lock. A nil unlock func with a nil error means
// the lock timed out and the caller proceeds unlocked.
func (s *Store) lock() (func(), error) {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return nil, err
	}

	fl := flock.New(filepath.Join(s.dir, ".lock"))

	ctx, cancel := context.WithTimeout(context.Background(), LockTimeout)
	defer cancel()

	locked, err := fl.TryLockContext(ctx, 10*time.Millisecond)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, nil
		}
		return nil, err
	}
	if !locked {
		return nil, nil
	}
	return func() { _ = fl.Unlock() }, nil
}

// Load reads the state. A missing or corrupt file yields a fresh state.
func (s *Store) Load() (*State, error) {
	unlock, err := s.lock()
	if err != nil {
		return nil, err
	}
	if unlock != nil {
		defer unlock()
	}
	return s.read()
}

func (s *Store) read() (*State, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return NewState(), nil
		}
		return nil, err
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil || state.Version != StateVersion {
		return NewState(), nil
	}
	return &state, nil
}

func (s *Store) write(state *State) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}
	state.Version = StateVersion

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	// Unique temp name: two unlocked writers must not share a file.
	tmpPath := fmt.Sprintf("%s.%d.%d.tmp", s.Path(), os.Getpid(), time.Now().UnixNano())
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return err
	}

	if runtime.GOOS == "windows" {
		_ = os.Remove(s.Path())
	}
	if err := os.Rename(tmpPath, s.Path()); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// Update runs fn over the current state and saves the result, holding the
// lock for the whole read-modify-write.
func (s *Store) Update(fn func(*State) error) error {
	unlock, err := s.lock()
	if err != nil {
		return err
	}
	if unlock != nil {
		defer unlock()
	}

	state, err := s.read()
	if err != nil {
		return err
	}
	if err := fn(state); err != nil {
		return err
	}
	return s.write(state)
}

// Clear removes the state file.
func (s *Store) Clear() error {
	unlock, err := s.lock()
	if err != nil {
		return err
	}
	if unlock != nil {
		defer unlock()
	}

	err = os.Remove(s.Path())
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
