package riot

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quilldev/kurisu/internal/output"
)

const testKey = "RGAPI-test"

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	opts = append([]Option{WithPlatformURL(srv.URL), WithDataDragonURL(srv.URL)}, opts...)
	return NewClient(testKey, opts...)
}

func TestFetchSummoner(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/lol/summoner/v4/summoners/by-name/Ari Main", r.URL.Path)
		assert.Equal(t, testKey, r.Header.Get("X-Riot-Token"))
		w.Write([]byte(`{"id":"S1","accountId":"A1","puuid":"P1","name":"Ari Main","profileIconId":4,"revisionDate":1700000000000,"summonerLevel":212}`))
	})

	s, err := c.FetchSummoner(context.Background(), "Ari Main")
	require.NoError(t, err)
	assert.Equal(t, "S1", s.ID)
	assert.Equal(t, "A1", s.AccountID)
	assert.Equal(t, "P1", s.PUUID)
	assert.Equal(t, 4, s.ProfileIconID)
	assert.Equal(t, int64(212), s.SummonerLevel)
	assert.Equal(t, int64(1700000000000), s.Revised().UnixMilli())
}

func TestFetchMasteriesKeepsUpstreamOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/lol/champion-mastery/v4/champion-masteries/by-summoner/S1", r.URL.Path)
		w.Write([]byte(`[
			{"championId":103,"championLevel":7,"championPoints":500,"chestGranted":true,"summonerId":"S1"},
			{"championId":266,"championLevel":5,"championPoints":900,"tokensEarned":2,"summonerId":"S1"}
		]`))
	})

	ms, err := c.FetchMasteries(context.Background(), "S1")
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, int64(103), ms[0].ChampionID)
	assert.True(t, ms[0].ChestGranted)
	assert.Equal(t, int64(266), ms[1].ChampionID)
	assert.Equal(t, 2, ms[1].TokensEarned)
}

func TestFetchMasteriesEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})

	ms, err := c.FetchMasteries(context.Background(), "S1")
	require.NoError(t, err)
	assert.NotNil(t, ms)
	assert.Empty(t, ms)
}

func TestFetchGameVersion(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/versions.json", r.URL.Path)
		assert.Empty(t, r.Header.Get("X-Riot-Token"), "Data Dragon is unauthenticated")
		w.Write([]byte(`["14.2.1","14.1.1","13.24.1"]`))
	})

	v, err := c.FetchGameVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "14.2.1", v)
}

func TestFetchGameVersionEmptyList(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})

	_, err := c.FetchGameVersion(context.Background())
	assert.True(t, output.IsCode(err, output.CodeAPI))
}

func TestDownloadBundle(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 4096)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cdn/dragontail-14.2.1.tgz", r.URL.Path)
		w.Write(payload)
	})

	var buf bytes.Buffer
	n, err := c.DownloadBundle(context.Background(), "14.2.1", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), n)
	assert.Equal(t, payload, buf.Bytes())
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		header     map[string]string
		body       string
		code       string
		retryAfter int
		message    string
	}{
		{name: "not found", status: 404, code: output.CodeNotFound},
		{name: "rate limited", status: 429, header: map[string]string{"Retry-After": "12"}, code: output.CodeRateLimit, retryAfter: 12},
		{name: "rate limited no header", status: 429, code: output.CodeRateLimit},
		{name: "unauthorized", status: 401, code: output.CodeAuth},
		{name: "forbidden", status: 403, code: output.CodeAuth},
		{name: "server error with status message", status: 503, body: `{"status":{"message":"Service unavailable","status_code":503}}`, code: output.CodeAPI, message: "Service unavailable"},
		{name: "bad request plain body", status: 400, body: "nope", code: output.CodeAPI, message: "Request failed (HTTP 400)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := c.FetchSummoner(context.Background(), "Ari")
			require.Error(t, err)

			e := output.AsError(err)
			assert.Equal(t, tt.code, e.Code)
			assert.Equal(t, tt.status, e.HTTPStatus)
			assert.Equal(t, tt.retryAfter, e.RetryAfter)
			if tt.message != "" {
				assert.Equal(t, tt.message, e.Message)
			}
		})
	}
}

func TestNotFoundNamesResource(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.FetchSummoner(context.Background(), "Nobody")
	assert.EqualError(t, err, "summoner not found: Nobody")
}

func TestMalformedBodyIsTransport(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":`))
	})

	_, err := c.FetchSummoner(context.Background(), "Ari")
	assert.True(t, output.IsCode(err, output.CodeTransport))
}

func TestNetworkFailureIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(testKey, WithPlatformURL(url))
	_, err := c.FetchSummoner(context.Background(), "Ari")
	assert.True(t, output.IsCode(err, output.CodeTransport))
}

func TestTimeoutIsTransport(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
	}, WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}))
	defer close(release)

	_, err := c.FetchSummoner(context.Background(), "Ari")
	assert.True(t, output.IsCode(err, output.CodeTransport))
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 0, parseRetryAfter(""))
	assert.Equal(t, 5, parseRetryAfter("5"))
	assert.Equal(t, 0, parseRetryAfter("-1"))
	assert.Equal(t, 0, parseRetryAfter("Wed, 21 Oct 2015 07:28:00 GMT"))
}

func TestSortByPoints(t *testing.T) {
	in := []ChampionMastery{
		{ChampionID: 1, ChampionPoints: 10},
		{ChampionID: 2, ChampionPoints: 30},
		{ChampionID: 3, ChampionPoints: 10},
		{ChampionID: 4, ChampionPoints: 20},
	}

	out := SortByPoints(in)

	var ids []int64
	for _, m := range out {
		ids = append(ids, m.ChampionID)
	}
	assert.Equal(t, []int64{2, 4, 1, 3}, ids)
	assert.Equal(t, int64(1), in[0].ChampionID, "input is not modified")
}

// recordingHooks captures hook calls.
type recordingHooks struct {
	mu      sync.Mutex
	events  []string
	gateErr error
	lastErr error
	results []RequestResult
}

func (h *recordingHooks) record(e string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, e)
}

func (h *recordingHooks) OnOperationGate(ctx context.Context, op OperationInfo) (context.Context, error) {
	h.record("gate:" + op.Service + "." + op.Operation)
	return ctx, h.gateErr
}

func (h *recordingHooks) OnOperationStart(ctx context.Context, op OperationInfo) context.Context {
	h.record("start:" + op.Service + "." + op.Operation)
	return ctx
}

func (h *recordingHooks) OnOperationEnd(_ context.Context, op OperationInfo, err error, _ time.Duration) {
	h.mu.Lock()
	h.lastErr = err
	h.mu.Unlock()
	h.record("end:" + op.Service + "." + op.Operation)
}

func (h *recordingHooks) OnRequestStart(ctx context.Context, info RequestInfo) context.Context {
	h.record("request:" + info.Method)
	return ctx
}

func (h *recordingHooks) OnRequestEnd(_ context.Context, _ RequestInfo, result RequestResult) {
	h.mu.Lock()
	h.results = append(h.results, result)
	h.mu.Unlock()
	h.record("response")
}

func TestHooksOrder(t *testing.T) {
	hooks := &recordingHooks{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"S1"}`))
	}, WithHooks(hooks))

	_, err := c.FetchSummoner(context.Background(), "Ari")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"gate:Summoner.ByName",
		"start:Summoner.ByName",
		"request:GET",
		"response",
		"end:Summoner.ByName",
	}, hooks.events)
	require.Len(t, hooks.results, 1)
	assert.Equal(t, 200, hooks.results[0].StatusCode)
}

func TestHooksSeeRetryAfter(t *testing.T) {
	hooks := &recordingHooks{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
	}, WithHooks(hooks))

	_, err := c.FetchMasteries(context.Background(), "S1")
	require.Error(t, err)

	require.Len(t, hooks.results, 1)
	assert.Equal(t, 3, hooks.results[0].RetryAfter)
	assert.Equal(t, err, hooks.lastErr)
}

func TestGateRejectionSkipsRequest(t *testing.T) {
	called := false
	hooks := &recordingHooks{gateErr: ErrCircuitOpen}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	}, WithHooks(hooks))

	_, err := c.FetchSummoner(context.Background(), "Ari")
	assert.True(t, errors.Is(err, ErrCircuitOpen))
	assert.True(t, output.IsCode(err, output.CodeRateLimit))
	assert.False(t, called)
	assert.Equal(t, []string{"gate:Summoner.ByName"}, hooks.events)
}

func TestChainHooks(t *testing.T) {
	first := &recordingHooks{}
	second := &recordingHooks{gateErr: ErrBulkheadFull}
	third := &recordingHooks{}
	chain := NewChainHooks(first, nil, second, third)

	_, err := chain.OnOperationGate(context.Background(), OperationInfo{Service: "S", Operation: "O"})
	assert.ErrorIs(t, err, ErrBulkheadFull)
	assert.Len(t, first.events, 1)
	assert.Len(t, second.events, 1)
	assert.Empty(t, third.events, "gates stop at the first rejection")

	chain.OnOperationEnd(context.Background(), OperationInfo{Service: "S", Operation: "O"}, nil, 0)
	assert.Equal(t, "end:S.O", first.events[len(first.events)-1])
	assert.Equal(t, "end:S.O", third.events[len(third.events)-1])
}
