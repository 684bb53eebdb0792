package appctx

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quilldev/kurisu/internal/config"
	"github.com/quilldev/kurisu/internal/output"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.CacheDir = t.TempDir()
	cfg.APIKey = "RGAPI-test"
	cfg.LogFormat = "console"
	return cfg
}

func testApp(t *testing.T, cfg *config.Config) (*App, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	app, err := NewAppWithIO(cfg, &stdout, &stderr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })
	return app, &stdout, &stderr
}

func TestNewApp(t *testing.T) {
	cfg := testConfig(t)
	app, _, _ := testApp(t, cfg)

	assert.Same(t, cfg, app.Config)
	assert.NotNil(t, app.Logger)
	assert.NotNil(t, app.Client)
	assert.NotNil(t, app.Resolver)
	assert.NotNil(t, app.Output)
	assert.NotNil(t, app.Collector)
	assert.NotNil(t, app.Metrics)
	assert.NotNil(t, app.Gate)
	assert.Nil(t, app.Tracing)
}

func TestNewAppRejectsBadLogLevel(t *testing.T) {
	cfg := testConfig(t)
	cfg.LogLevel = "chatty"

	_, err := NewAppWithIO(cfg, &bytes.Buffer{}, &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, output.IsCode(err, output.CodeUsage))
}

func TestWithAppAndFromContext(t *testing.T) {
	app, _, _ := testApp(t, testConfig(t))

	ctx := WithApp(context.Background(), app)
	assert.Same(t, app, FromContext(ctx))
	assert.Nil(t, FromContext(context.Background()))
}

func TestApplyFlagsFormats(t *testing.T) {
	tests := []struct {
		name     string
		flags    GlobalFlags
		config   string
		want     string
		envelope bool
	}{
		{"json flag", GlobalFlags{JSON: true}, "", `"name": "Ari"`, true},
		{"quiet flag wins over json", GlobalFlags{JSON: true, Quiet: true}, "", `"name": "Ari"`, false},
		{"config quiet", GlobalFlags{}, "quiet", `"name": "Ari"`, false},
		{"jq", GlobalFlags{JQ: ".name"}, "", "Ari\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Format = tt.config
			app, stdout, _ := testApp(t, cfg)
			app.Flags = tt.flags
			require.NoError(t, app.ApplyFlags())

			require.NoError(t, app.OK(map[string]string{"name": "Ari"}))
			assert.Contains(t, stdout.String(), tt.want)
			assert.Equal(t, tt.envelope, strings.Contains(stdout.String(), `"ok": true`))
		})
	}
}

func TestApplyFlagsVerbose(t *testing.T) {
	app, _, _ := testApp(t, testConfig(t))
	app.Flags.Verbose = 2
	require.NoError(t, app.ApplyFlags())
	assert.Equal(t, 2, app.Hooks.Level())
}

func TestApplyFlagsDebugEnv(t *testing.T) {
	t.Setenv("KURISU_DEBUG", "true")
	app, _, _ := testApp(t, testConfig(t))
	require.NoError(t, app.ApplyFlags())
	assert.Equal(t, 2, app.Hooks.Level())
}

func TestAppOKWithStats(t *testing.T) {
	app, stdout, _ := testApp(t, testConfig(t))
	app.Flags = GlobalFlags{JSON: true, Stats: true}
	require.NoError(t, app.ApplyFlags())

	require.NoError(t, app.OK(map[string]string{"test": "data"}))

	var resp map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &resp))
	meta, ok := resp["meta"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, meta, "stats")
}

func TestAppErrPrintsStatsToStderr(t *testing.T) {
	app, stdout, stderr := testApp(t, testConfig(t))
	app.Flags = GlobalFlags{JSON: true, Stats: true}
	require.NoError(t, app.ApplyFlags())

	require.NoError(t, app.Err(output.ErrNotFound("summoner", "Nobody")))

	assert.Contains(t, stdout.String(), `"code": "not_found"`)
	assert.Contains(t, stderr.String(), "Stats:")
}

func TestAppErrMachineOutputNoStats(t *testing.T) {
	app, _, stderr := testApp(t, testConfig(t))
	app.Flags = GlobalFlags{Quiet: true, Stats: true}
	require.NoError(t, app.ApplyFlags())

	require.NoError(t, app.Err(output.ErrUsage("bad")))
	assert.NotContains(t, stderr.String(), "Stats:")
}

func TestWiredPipeline(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "RGAPI-test", r.Header.Get("X-Riot-Token"))
		switch r.URL.Path {
		case "/lol/summoner/v4/summoners/by-name/Ari":
			_, _ = w.Write([]byte(`{"id":"S1","name":"Ari","summonerLevel":30}`))
		case "/lol/champion-mastery/v4/champion-masteries/by-summoner/S1":
			_, _ = w.Write([]byte(`[{"championId":103,"championLevel":7,"championPoints":1000}]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.PlatformURL = srv.URL
	app, _, stderr := testApp(t, cfg)
	app.Flags.Verbose = 1
	require.NoError(t, app.ApplyFlags())

	for i := 0; i < 3; i++ {
		ms, err := app.Resolver.ResolveMasteriesByName(context.Background(), "Ari")
		require.NoError(t, err)
		require.Len(t, ms, 1)
		assert.Equal(t, int64(103), ms[0].ChampionID)
	}

	assert.Equal(t, int32(2), calls.Load(), "later calls are served from cache")
	s := app.Collector.Summary()
	assert.Equal(t, 2, s.TotalRequests)
	assert.Equal(t, 4, s.CacheHits)
	assert.Equal(t, 2, s.CacheMisses)
	assert.Contains(t, stderr.String(), "Calling Summoner.ByName Ari")
}

func TestTraceFlagRewiresClient(t *testing.T) {
	app, _, _ := testApp(t, testConfig(t))
	before := app.Client

	app.Flags.Trace = true
	require.NoError(t, app.ApplyFlags())

	assert.NotNil(t, app.Tracing)
	assert.NotSame(t, before, app.Client)
	require.NoError(t, app.Close(context.Background()))
}
