package completion

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) (*Store, *time.Time) {
	t.Helper()
	now := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
	s := NewStore(t.TempDir())
	s.now = func() time.Time { return now }
	return s, &now
}

func TestStore_LoadMissingFile(t *testing.T) {
	store := NewStore(t.TempDir())

	cache, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cache.Summoners) != 0 {
		t.Errorf("Expected empty cache, got %d summoners", len(cache.Summoners))
	}
	if cache.Version != CacheVersion {
		t.Errorf("Expected version %d, got %d", CacheVersion, cache.Version)
	}
}

func TestStore_LoadCorruptFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, CacheFileName), []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}

	cache, err := NewStore(dir).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cache.Summoners) != 0 {
		t.Error("Expected corrupt cache to load as empty")
	}
}

func TestStore_RecordMovesToFront(t *testing.T) {
	store, now := newTestStore(t)

	if err := store.Record("Ari", 30); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	*now = now.Add(time.Minute)
	if err := store.Record("Faker", 500); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	*now = now.Add(time.Minute)
	if err := store.Record("Ari", 31); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	got := store.Summoners()
	if len(got) != 2 {
		t.Fatalf("Expected 2 summoners, got %d", len(got))
	}
	if got[0].Name != "Ari" || got[0].Level != 31 || got[0].Lookups != 2 {
		t.Errorf("Unexpected first entry: %+v", got[0])
	}
	if got[1].Name != "Faker" {
		t.Errorf("Expected Faker second, got %q", got[1].Name)
	}
}

func TestStore_RecordKeepsCase(t *testing.T) {
	store, _ := newTestStore(t)

	_ = store.Record("Ari", 0)
	_ = store.Record("ari", 0)

	if got := store.Summoners(); len(got) != 2 {
		t.Errorf("Expected names differing in case to be kept apart, got %d entries", len(got))
	}
}

func TestStore_RecordIgnoresBlank(t *testing.T) {
	store, _ := newTestStore(t)

	if err := store.Record("   ", 1); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if _, err := os.Stat(store.Path()); !os.IsNotExist(err) {
		t.Error("Expected no cache file for a blank name")
	}
}

func TestStore_RecordCapsEntries(t *testing.T) {
	store, now := newTestStore(t)
	store.maxEntries = 3

	for _, name := range []string{"a", "b", "c", "d"} {
		*now = now.Add(time.Second)
		if err := store.Record(name, 0); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	got := store.Summoners()
	if len(got) != 3 {
		t.Fatalf("Expected 3 summoners, got %d", len(got))
	}
	if got[0].Name != "d" || got[2].Name != "b" {
		t.Errorf("Expected oldest entry dropped, got %v", got)
	}
}

func TestStore_Clear(t *testing.T) {
	store, _ := newTestStore(t)
	_ = store.Record("Ari", 0)

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear on missing file failed: %v", err)
	}
	if len(store.Summoners()) != 0 {
		t.Error("Expected empty cache after Clear")
	}
}
