package lookup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/quilldev/kurisu/internal/output"
	"github.com/quilldev/kurisu/internal/riot"
)

type mockUpstream struct {
	mock.Mock
}

func (m *mockUpstream) FetchGameVersion(ctx context.Context) (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

func (m *mockUpstream) FetchSummoner(ctx context.Context, name string) (*riot.Summoner, error) {
	args := m.Called(name)
	s, _ := args.Get(0).(*riot.Summoner)
	return s, args.Error(1)
}

func (m *mockUpstream) FetchMasteries(ctx context.Context, summonerID string) ([]riot.ChampionMastery, error) {
	args := m.Called(summonerID)
	ms, _ := args.Get(0).([]riot.ChampionMastery)
	return ms, args.Error(1)
}

func (m *mockUpstream) DownloadBundle(ctx context.Context, gameVersion string, w io.Writer) (int64, error) {
	args := m.Called(gameVersion, w)
	return args.Get(0).(int64), args.Error(1)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to start + d.
func (c *clock) Set(start time.Time, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = start.Add(d)
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type countingObserver struct {
	mu     sync.Mutex
	hits   map[string]int
	misses map[string]int
	swept  map[string]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{hits: map[string]int{}, misses: map[string]int{}, swept: map[string]int{}}
}

func (o *countingObserver) ObserveLookup(name string, hit bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if hit {
		o.hits[name]++
	} else {
		o.misses[name]++
	}
}

func (o *countingObserver) ObserveSweep(name string, removed int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.swept[name] += removed
}

func (o *countingObserver) missCount(name string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.misses[name]
}

var (
	ari       = &riot.Summoner{ID: "S1", Name: "Ari", SummonerLevel: 30}
	masteries = []riot.ChampionMastery{
		{ChampionID: 103, ChampionPoints: 500},
		{ChampionID: 266, ChampionPoints: 900},
	}
)

func TestScenarioUpstreamCallCounts(t *testing.T) {
	clk := newClock()
	start := clk.Now()
	up := &mockUpstream{}
	up.On("FetchSummoner", "Ari").Return(ari, nil)
	up.On("FetchMasteries", "S1").Return(masteries, nil)

	r := NewResolver(up,
		WithSummonerTTL(30*time.Minute),
		WithMasteryTTL(10*time.Minute),
		WithClock(clk.Now),
	)

	steps := []struct {
		at        time.Duration
		summoners int
		masteries int
	}{
		{0, 1, 1},
		{5 * time.Minute, 1, 1},
		{15 * time.Minute, 1, 2},
		{35 * time.Minute, 2, 3},
	}

	for _, step := range steps {
		clk.Set(start, step.at)
		got, err := r.ResolveMasteriesByName(context.Background(), "Ari")
		require.NoError(t, err)
		assert.Equal(t, masteries, got)
		up.AssertNumberOfCalls(t, "FetchSummoner", step.summoners)
		up.AssertNumberOfCalls(t, "FetchMasteries", step.masteries)
	}
}

func TestSecondCallFullyCached(t *testing.T) {
	up := &mockUpstream{}
	up.On("FetchSummoner", "Ari").Return(ari, nil).Once()
	up.On("FetchMasteries", "S1").Return(masteries, nil).Once()
	obs := newCountingObserver()

	r := NewResolver(up, WithObserver(obs))

	for i := 0; i < 2; i++ {
		_, err := r.ResolveMasteriesByName(context.Background(), "Ari")
		require.NoError(t, err)
	}

	up.AssertExpectations(t)
	assert.Equal(t, 1, obs.hits[CacheSummoner])
	assert.Equal(t, 1, obs.hits[CacheMastery])
	assert.Equal(t, 1, obs.misses[CacheSummoner])
}

func TestNotFoundSkipsMasteries(t *testing.T) {
	up := &mockUpstream{}
	up.On("FetchSummoner", "Nobody").Return(nil, output.ErrNotFound("summoner", "Nobody"))

	r := NewResolver(up)

	_, err := r.ResolveMasteriesByName(context.Background(), "Nobody")
	assert.True(t, output.IsCode(err, output.CodeNotFound))
	up.AssertNotCalled(t, "FetchMasteries", mock.Anything)
}

func TestErrorsPropagateUnchanged(t *testing.T) {
	errs := []*output.Error{
		output.ErrRateLimit(10),
		output.ErrUnauthorized(401),
		output.ErrTransport(errors.New("connection reset")),
	}

	for _, want := range errs {
		t.Run(want.Code, func(t *testing.T) {
			up := &mockUpstream{}
			up.On("FetchSummoner", "Ari").Return(ari, nil)
			up.On("FetchMasteries", "S1").Return(nil, want)

			r := NewResolver(up)
			_, err := r.ResolveMasteriesByName(context.Background(), "Ari")
			assert.Same(t, want, err)
		})
	}
}

func TestFailureDoesNotPopulateCache(t *testing.T) {
	up := &mockUpstream{}
	up.On("FetchSummoner", "Ari").Return(nil, output.ErrRateLimit(1)).Once()
	up.On("FetchSummoner", "Ari").Return(ari, nil).Once()
	up.On("FetchMasteries", "S1").Return(masteries, nil)

	r := NewResolver(up)

	_, err := r.ResolveMasteriesByName(context.Background(), "Ari")
	require.Error(t, err)

	got, err := r.ResolveMasteriesByName(context.Background(), "Ari")
	require.NoError(t, err)
	assert.Equal(t, masteries, got)
	up.AssertNumberOfCalls(t, "FetchSummoner", 2)
}

func TestNoStaleIdentityOnRefreshFailure(t *testing.T) {
	clk := newClock()
	up := &mockUpstream{}
	up.On("FetchSummoner", "Ari").Return(ari, nil).Once()
	up.On("FetchSummoner", "Ari").Return(nil, output.ErrTransport(errors.New("timeout"))).Once()
	up.On("FetchMasteries", "S1").Return(masteries, nil)

	r := NewResolver(up, WithClock(clk.Now))

	_, err := r.ResolveMasteriesByName(context.Background(), "Ari")
	require.NoError(t, err)

	clk.Advance(DefaultSummonerTTL + time.Second)

	_, err = r.ResolveMasteriesByName(context.Background(), "Ari")
	assert.True(t, output.IsCode(err, output.CodeTransport))
	up.AssertNumberOfCalls(t, "FetchMasteries", 1)
}

func TestIdentityRefetchWhileMasteriesFresh(t *testing.T) {
	clk := newClock()
	up := &mockUpstream{}
	up.On("FetchSummoner", "Ari").Return(ari, nil)
	up.On("FetchMasteries", "S1").Return(masteries, nil)

	r := NewResolver(up,
		WithSummonerTTL(10*time.Minute),
		WithMasteryTTL(time.Hour),
		WithClock(clk.Now),
	)

	_, err := r.ResolveMasteriesByName(context.Background(), "Ari")
	require.NoError(t, err)

	clk.Advance(11 * time.Minute)

	_, err = r.ResolveMasteriesByName(context.Background(), "Ari")
	require.NoError(t, err)
	up.AssertNumberOfCalls(t, "FetchSummoner", 2)
	up.AssertNumberOfCalls(t, "FetchMasteries", 1)
}

func TestIdentityRefetchRekeysMasteries(t *testing.T) {
	clk := newClock()
	renamed := &riot.Summoner{ID: "S2", Name: "Ari"}
	other := []riot.ChampionMastery{{ChampionID: 1, ChampionPoints: 1}}

	up := &mockUpstream{}
	up.On("FetchSummoner", "Ari").Return(ari, nil).Once()
	up.On("FetchSummoner", "Ari").Return(renamed, nil).Once()
	up.On("FetchMasteries", "S1").Return(masteries, nil)
	up.On("FetchMasteries", "S2").Return(other, nil)

	r := NewResolver(up,
		WithSummonerTTL(10*time.Minute),
		WithMasteryTTL(time.Hour),
		WithClock(clk.Now),
	)

	_, err := r.ResolveMasteriesByName(context.Background(), "Ari")
	require.NoError(t, err)

	clk.Advance(11 * time.Minute)

	got, err := r.ResolveMasteriesByName(context.Background(), "Ari")
	require.NoError(t, err)
	assert.Equal(t, other, got)
	up.AssertCalled(t, "FetchMasteries", "S2")
}

func TestNamesAreCaseSensitiveKeys(t *testing.T) {
	up := &mockUpstream{}
	up.On("FetchSummoner", "Ari").Return(ari, nil).Once()
	up.On("FetchSummoner", "ari").Return(ari, nil).Once()

	r := NewResolver(up)

	_, err := r.ResolveSummoner(context.Background(), "Ari")
	require.NoError(t, err)
	_, err = r.ResolveSummoner(context.Background(), "ari")
	require.NoError(t, err)

	up.AssertExpectations(t)
}

func TestEmptyCollectionIsCached(t *testing.T) {
	up := &mockUpstream{}
	up.On("FetchMasteries", "S1").Return([]riot.ChampionMastery{}, nil).Once()

	r := NewResolver(up)

	for i := 0; i < 3; i++ {
		got, err := r.Masteries(context.Background(), "S1")
		require.NoError(t, err)
		assert.Empty(t, got)
	}
	up.AssertExpectations(t)
}

func TestCancellationStillPopulatesCache(t *testing.T) {
	release := make(chan time.Time)
	up := &mockUpstream{}
	up.On("FetchSummoner", "Ari").WaitUntil(release).Return(ari, nil).Once()

	r := NewResolver(up)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := r.ResolveSummoner(ctx, "Ari")
		errc <- err
	}()

	// Let the fetch start, then abandon the caller.
	time.Sleep(20 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)

	close(release)

	assert.Eventually(t, func() bool {
		return !r.summoners.IsExpired("Ari")
	}, time.Second, 5*time.Millisecond)

	got, err := r.ResolveSummoner(context.Background(), "Ari")
	require.NoError(t, err)
	assert.Equal(t, ari, got)
	up.AssertNumberOfCalls(t, "FetchSummoner", 1)
}

func TestAlreadyCancelledContextServesHit(t *testing.T) {
	up := &mockUpstream{}
	up.On("FetchSummoner", "Ari").Return(ari, nil).Once()

	r := NewResolver(up)
	_, err := r.ResolveSummoner(context.Background(), "Ari")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := r.ResolveSummoner(ctx, "Ari")
	require.NoError(t, err, "a fresh entry needs no upstream work")
	assert.Equal(t, ari, got)

	_, err = r.ResolveSummoner(ctx, "Bob")
	assert.ErrorIs(t, err, context.Canceled)
	up.AssertNotCalled(t, "FetchSummoner", "Bob")
}

func TestDedupeCollapsesConcurrentMisses(t *testing.T) {
	release := make(chan time.Time)
	up := &mockUpstream{}
	up.On("FetchSummoner", "Ari").WaitUntil(release).Return(ari, nil)
	obs := newCountingObserver()

	r := NewResolver(up, WithDedupe(true), WithObserver(obs))

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*riot.Summoner, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := r.ResolveSummoner(context.Background(), "Ari")
			assert.NoError(t, err)
			results[i] = s
		}(i)
	}

	require.Eventually(t, func() bool {
		return obs.missCount(CacheSummoner) == callers
	}, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	up.AssertNumberOfCalls(t, "FetchSummoner", 1)
	for _, s := range results {
		assert.Equal(t, ari, s)
	}
}

func TestGameVersionCell(t *testing.T) {
	clk := newClock()
	up := &mockUpstream{}
	up.On("FetchGameVersion").Return("14.1.1", nil).Once()
	up.On("FetchGameVersion").Return("14.2.1", nil).Once()

	r := NewResolver(up, WithClock(clk.Now))

	v, err := r.GameVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "14.1.1", v)

	clk.Advance(44 * time.Minute)
	v, err = r.GameVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "14.1.1", v)

	clk.Advance(2 * time.Minute)
	v, err = r.GameVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "14.2.1", v)

	up.AssertExpectations(t)
}

func TestSweepAndReset(t *testing.T) {
	clk := newClock()
	up := &mockUpstream{}
	up.On("FetchSummoner", mock.Anything).Return(ari, nil)
	up.On("FetchMasteries", "S1").Return(masteries, nil)
	up.On("FetchGameVersion").Return("14.1.1", nil)
	obs := newCountingObserver()

	r := NewResolver(up, WithClock(clk.Now), WithObserver(obs))

	for i := 0; i < 3; i++ {
		_, err := r.ResolveMasteriesByName(context.Background(), fmt.Sprintf("name-%d", i))
		require.NoError(t, err)
	}
	_, err := r.GameVersion(context.Background())
	require.NoError(t, err)

	assert.Equal(t, map[string]int{CacheSummoner: 3, CacheMastery: 1}, r.Stats())

	clk.Advance(DefaultMasteryTTL + time.Second)
	assert.Equal(t, 1, r.Sweep())
	assert.Equal(t, 1, obs.swept[CacheMastery])
	assert.Equal(t, 3, r.summoners.Len())

	r.Reset()
	assert.Equal(t, map[string]int{CacheSummoner: 0, CacheMastery: 0}, r.Stats())
	assert.True(t, r.version.Expired())
}

func TestCapacityBoundsSummonerCache(t *testing.T) {
	up := &mockUpstream{}
	up.On("FetchSummoner", mock.Anything).Return(ari, nil)

	r := NewResolver(up, WithCapacity(2))

	for _, name := range []string{"a", "b", "c"} {
		_, err := r.ResolveSummoner(context.Background(), name)
		require.NoError(t, err)
	}

	assert.Equal(t, 2, r.summoners.Len())
	assert.True(t, r.summoners.IsExpired("a"))
}

func TestCallerChangesDoNotReachCache(t *testing.T) {
	up := &mockUpstream{}
	up.On("FetchSummoner", "Ari").Return(&riot.Summoner{ID: "S1", Name: "Ari"}, nil).Once()
	up.On("FetchMasteries", "S1").Return([]riot.ChampionMastery{
		{ChampionID: 103, ChampionPoints: 500},
		{ChampionID: 266, ChampionPoints: 900},
	}, nil).Once()

	r := NewResolver(up)
	ctx := context.Background()

	s, err := r.ResolveSummoner(ctx, "Ari")
	require.NoError(t, err)
	s.ID = "S9"

	m, err := r.Masteries(ctx, "S1")
	require.NoError(t, err)
	m[0], m[1] = m[1], m[0]
	m[1].ChampionPoints = 0

	p, err := r.ResolveProfile(ctx, "Ari")
	require.NoError(t, err)
	assert.Equal(t, "S1", p.Summoner.ID)
	require.Len(t, p.Masteries, 2)
	assert.Equal(t, int64(103), p.Masteries[0].ChampionID)
	assert.Equal(t, 500, p.Masteries[0].ChampionPoints)
	assert.Equal(t, 900, p.Masteries[1].ChampionPoints)
	up.AssertExpectations(t)
}
