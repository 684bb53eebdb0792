// Package lookup resolves summoner names to champion masteries through two
// independently cached stages:
//  1. display name -> summoner identity
//  2. summoner id -> mastery collection
//
// Each stage is cache-aside: a fresh entry is served from memory, anything
// else goes to the upstream and the result is written back. Upstream errors
// are returned unchanged and never replaced by a stale entry.
package lookup

import (
	"context"
	"io"
	"slices"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/quilldev/kurisu/internal/cache"
	"github.com/quilldev/kurisu/internal/riot"
)

// Default TTLs per cache.
const (
	DefaultSummonerTTL = 30 * time.Minute
	DefaultMasteryTTL  = 10 * time.Minute
	DefaultVersionTTL  = 45 * time.Minute
)

// Cache names reported to a CacheObserver.
const (
	CacheSummoner = "summoner"
	CacheMastery  = "mastery"
	CacheVersion  = "version"
)

// Upstream is the subset of riot.Client the resolver depends on.
type Upstream interface {
	FetchGameVersion(ctx context.Context) (string, error)
	FetchSummoner(ctx context.Context, name string) (*riot.Summoner, error)
	FetchMasteries(ctx context.Context, summonerID string) ([]riot.ChampionMastery, error)
	DownloadBundle(ctx context.Context, gameVersion string, w io.Writer) (int64, error)
}

// CacheObserver is told about every cache lookup the resolver makes.
type CacheObserver interface {
	ObserveLookup(cacheName string, hit bool)
	ObserveSweep(cacheName string, removed int)
}

// Profile is a resolved summoner with its masteries in upstream order.
type Profile struct {
	Summoner  *riot.Summoner
	Masteries []riot.ChampionMastery
}

// Resolver is the cache-aside orchestrator. Construct one per process and
// share it; it is safe for concurrent use.
type Resolver struct {
	upstream  Upstream
	summoners *cache.Cache[string, riot.Summoner]
	masteries *cache.Cache[string, []riot.ChampionMastery]
	version   *cache.Cell[string]

	dedupe   bool
	group    singleflight.Group
	observer CacheObserver
	logger   *zap.Logger
}

// Option configures a Resolver.
type Option func(*settings)

type settings struct {
	summonerTTL time.Duration
	masteryTTL  time.Duration
	versionTTL  time.Duration
	clock       func() time.Time
	capacity    int
	dedupe      bool
	observer    CacheObserver
	logger      *zap.Logger
}

// WithSummonerTTL sets the identity cache TTL.
func WithSummonerTTL(d time.Duration) Option { return func(s *settings) { s.summonerTTL = d } }

// WithMasteryTTL sets the mastery cache TTL.
func WithMasteryTTL(d time.Duration) Option { return func(s *settings) { s.masteryTTL = d } }

// WithVersionTTL sets the game-version cell TTL.
func WithVersionTTL(d time.Duration) Option { return func(s *settings) { s.versionTTL = d } }

// WithClock overrides the time source of every cache.
func WithClock(now func() time.Time) Option { return func(s *settings) { s.clock = now } }

// WithCapacity bounds each keyed cache to n entries with LRU eviction.
func WithCapacity(n int) Option { return func(s *settings) { s.capacity = n } }

// WithDedupe collapses concurrent misses for the same key into a single
// upstream call.
func WithDedupe(enabled bool) Option { return func(s *settings) { s.dedupe = enabled } }

// WithObserver reports cache hits, misses and sweeps.
func WithObserver(o CacheObserver) Option { return func(s *settings) { s.observer = o } }

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option { return func(s *settings) { s.logger = l } }

// NewResolver creates a resolver on top of upstream.
func NewResolver(upstream Upstream, opts ...Option) *Resolver {
	s := settings{
		summonerTTL: DefaultSummonerTTL,
		masteryTTL:  DefaultMasteryTTL,
		versionTTL:  DefaultVersionTTL,
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	cacheOpts := []cache.Option{cache.WithClock(s.clock), cache.WithCapacity(s.capacity)}
	return &Resolver{
		upstream:  upstream,
		summoners: cache.New[string, riot.Summoner](s.summonerTTL, cacheOpts...),
		masteries: cache.New[string, []riot.ChampionMastery](s.masteryTTL, cacheOpts...),
		version:   cache.NewCell[string](s.versionTTL, cache.WithClock(s.clock)),
		dedupe:    s.dedupe,
		observer:  s.observer,
		logger:    s.logger,
	}
}

// ResolveSummoner returns the identity for name. The name is used as the
// cache key exactly as given; matching rules belong to the upstream. Each
// call gets its own copy of the cached identity.
func (r *Resolver) ResolveSummoner(ctx context.Context, name string) (*riot.Summoner, error) {
	s, err := load(ctx, r, CacheSummoner, name,
		func() (riot.Summoner, bool) { return r.summoners.Fresh(name) },
		func(s riot.Summoner) { r.summoners.Set(name, s) },
		func(ctx context.Context) (riot.Summoner, error) {
			s, err := r.upstream.FetchSummoner(ctx, name)
			if err != nil {
				return riot.Summoner{}, err
			}
			return *s, nil
		},
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Masteries returns the mastery collection for a summoner id. The returned
// slice is a copy the caller may modify.
func (r *Resolver) Masteries(ctx context.Context, summonerID string) ([]riot.ChampionMastery, error) {
	m, err := load(ctx, r, CacheMastery, summonerID,
		func() ([]riot.ChampionMastery, bool) { return r.masteries.Fresh(summonerID) },
		func(m []riot.ChampionMastery) { r.masteries.Set(summonerID, slices.Clone(m)) },
		func(ctx context.Context) ([]riot.ChampionMastery, error) {
			return r.upstream.FetchMasteries(ctx, summonerID)
		},
	)
	if err != nil {
		return nil, err
	}
	return slices.Clone(m), nil
}

// ResolveProfile runs both stages for name. Stage 2 is keyed by the id the
// current identity carries, so a refreshed identity with a new id re-keys
// the mastery lookup.
func (r *Resolver) ResolveProfile(ctx context.Context, name string) (*Profile, error) {
	summoner, err := r.ResolveSummoner(ctx, name)
	if err != nil {
		return nil, err
	}
	masteries, err := r.Masteries(ctx, summoner.ID)
	if err != nil {
		return nil, err
	}
	return &Profile{Summoner: summoner, Masteries: masteries}, nil
}

// ResolveMasteriesByName resolves name to its mastery collection. The
// collection is in upstream order and may be empty; callers wanting the
// highest score first should use riot.SortByPoints.
func (r *Resolver) ResolveMasteriesByName(ctx context.Context, name string) ([]riot.ChampionMastery, error) {
	p, err := r.ResolveProfile(ctx, name)
	if err != nil {
		return nil, err
	}
	return p.Masteries, nil
}

// GameVersion returns the latest game version from the single-value cell.
func (r *Resolver) GameVersion(ctx context.Context) (string, error) {
	return load(ctx, r, CacheVersion, "",
		r.version.Get,
		r.version.Set,
		r.upstream.FetchGameVersion,
	)
}

// Sweep drops expired entries from the keyed caches and returns the total
// number removed.
func (r *Resolver) Sweep() int {
	s := r.summoners.Sweep()
	m := r.masteries.Sweep()
	if r.observer != nil {
		r.observer.ObserveSweep(CacheSummoner, s)
		r.observer.ObserveSweep(CacheMastery, m)
	}
	if s+m > 0 {
		r.logger.Debug("cache sweep", zap.Int("summoners", s), zap.Int("masteries", m))
	}
	return s + m
}

// Reset drops every cached value.
func (r *Resolver) Reset() {
	r.summoners.Purge()
	r.masteries.Purge()
	r.version.Expire()
}

// Stats reports the number of stored entries per keyed cache, expired
// ones included.
func (r *Resolver) Stats() map[string]int {
	return map[string]int{
		CacheSummoner: r.summoners.Len(),
		CacheMastery:  r.masteries.Len(),
	}
}

type result[V any] struct {
	val V
	err error
}

// load is the cache-aside step shared by every stage.
//
// The upstream call and the cache write run on a context that ignores the
// caller's cancellation. A caller that gives up gets ctx.Err() right away
// while the fetch keeps going and fills the cache for the next request.
func load[V any](
	ctx context.Context,
	r *Resolver,
	cacheName, key string,
	fresh func() (V, bool),
	store func(V),
	fetch func(context.Context) (V, error),
) (V, error) {
	var zero V

	if v, ok := fresh(); ok {
		r.observe(cacheName, true)
		return v, nil
	}
	r.observe(cacheName, false)

	if err := ctx.Err(); err != nil {
		return zero, err
	}

	detached := context.WithoutCancel(ctx)
	run := func() (V, error) {
		v, err := fetch(detached)
		if err != nil {
			r.logger.Debug("upstream fetch failed",
				zap.String("cache", cacheName), zap.String("key", key), zap.Error(err))
			return zero, err
		}
		store(v)
		return v, nil
	}

	done := make(chan result[V], 1)
	if r.dedupe {
		ch := r.group.DoChan(cacheName+"\x00"+key, func() (any, error) {
			v, err := run()
			return v, err
		})
		go func() {
			res := <-ch
			v, _ := res.Val.(V)
			done <- result[V]{val: v, err: res.Err}
		}()
	} else {
		go func() {
			v, err := run()
			done <- result[V]{val: v, err: err}
		}()
	}

	select {
	case <-ctx.Done():
		r.logger.Debug("caller cancelled, fetch continues in background",
			zap.String("cache", cacheName), zap.String("key", key))
		return zero, ctx.Err()
	case res := <-done:
		return res.val, res.err
	}
}

func (r *Resolver) observe(cacheName string, hit bool) {
	if r.observer != nil {
		r.observer.ObserveLookup(cacheName, hit)
	}
}
