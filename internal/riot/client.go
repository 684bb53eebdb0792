// Package riot is an HTTP client for the Riot Games platform API and the
// Data Dragon static-data CDN.
//
// The client maps HTTP outcomes onto the output error taxonomy and reports
// every call through Hooks. It neither caches nor retries; both concerns
// belong to callers.
package riot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/quilldev/kurisu/internal/output"
	"github.com/quilldev/kurisu/internal/version"
)

const (
	DefaultPlatformURL   = "https://na1.api.riotgames.com"
	DefaultDataDragonURL = "https://ddragon.leagueoflegends.com"

	tokenHeader    = "X-Riot-Token"
	defaultTimeout = 30 * time.Second
)

// Client talks to the upstream game-statistics service.
type Client struct {
	httpClient    *http.Client
	apiKey        string
	platformURL   string
	dataDragonURL string
	userAgent     string
	hooks         Hooks
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithPlatformURL sets the regional platform host, e.g. https://euw1.api.riotgames.com.
func WithPlatformURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.platformURL = strings.TrimRight(u, "/")
		}
	}
}

// WithDataDragonURL sets the static-data CDN host.
func WithDataDragonURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.dataDragonURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHooks installs observability or gating hooks. If h also implements
// GatingHooks its gate runs before every operation.
func WithHooks(h Hooks) Option {
	return func(c *Client) {
		if h != nil {
			c.hooks = h
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// NewClient creates a client authenticating with apiKey.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: defaultTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		apiKey:        apiKey,
		platformURL:   DefaultPlatformURL,
		dataDragonURL: DefaultDataDragonURL,
		userAgent:     version.UserAgent(),
		hooks:         NoopHooks{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchGameVersion returns the latest published game version. Data Dragon
// lists versions newest first.
func (c *Client) FetchGameVersion(ctx context.Context) (string, error) {
	op := OperationInfo{Service: "DataDragon", Operation: "Versions", ResourceType: "version"}

	var latest string
	err := c.operation(ctx, op, func(ctx context.Context) error {
		var versions []string
		if err := c.getJSON(ctx, c.dataDragonURL+"/api/versions.json", false, op, &versions); err != nil {
			return err
		}
		if len(versions) == 0 {
			return output.ErrAPI(http.StatusOK, "Data Dragon returned an empty version list")
		}
		latest = versions[0]
		return nil
	})
	return latest, err
}

// FetchSummoner resolves a display name to a summoner identity.
func (c *Client) FetchSummoner(ctx context.Context, name string) (*Summoner, error) {
	op := OperationInfo{Service: "Summoner", Operation: "ByName", ResourceType: "summoner", Resource: name}

	var s Summoner
	err := c.operation(ctx, op, func(ctx context.Context) error {
		u := c.platformURL + "/lol/summoner/v4/summoners/by-name/" + url.PathEscape(name)
		return c.getJSON(ctx, u, true, op, &s)
	})
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// FetchMasteries returns every champion mastery for a summoner id, in the
// order the upstream sends them.
func (c *Client) FetchMasteries(ctx context.Context, summonerID string) ([]ChampionMastery, error) {
	op := OperationInfo{Service: "Mastery", Operation: "BySummoner", ResourceType: "mastery", Resource: summonerID}

	var masteries []ChampionMastery
	err := c.operation(ctx, op, func(ctx context.Context) error {
		u := c.platformURL + "/lol/champion-mastery/v4/champion-masteries/by-summoner/" + url.PathEscape(summonerID)
		return c.getJSON(ctx, u, true, op, &masteries)
	})
	if err != nil {
		return nil, err
	}
	if masteries == nil {
		masteries = []ChampionMastery{}
	}
	return masteries, nil
}

// DownloadBundle streams the dragontail archive for gameVersion into w and
// returns the number of bytes written.
func (c *Client) DownloadBundle(ctx context.Context, gameVersion string, w io.Writer) (int64, error) {
	op := OperationInfo{Service: "DataDragon", Operation: "Bundle", ResourceType: "bundle", Resource: gameVersion}

	var written int64
	err := c.operation(ctx, op, func(ctx context.Context) error {
		u := c.dataDragonURL + "/cdn/dragontail-" + url.PathEscape(gameVersion) + ".tgz"
		resp, err := c.send(ctx, u, false, op)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		written, err = io.Copy(w, resp.Body)
		if err != nil {
			return output.ErrTransport(err)
		}
		return nil
	})
	return written, err
}

// operation wraps fn with the gate and operation hooks.
func (c *Client) operation(ctx context.Context, op OperationInfo, fn func(context.Context) error) (err error) {
	if g, ok := c.hooks.(GatingHooks); ok {
		ctx, err = g.OnOperationGate(ctx, op)
		if err != nil {
			return err
		}
	}

	ctx = c.hooks.OnOperationStart(ctx, op)
	start := time.Now()
	defer func() {
		c.hooks.OnOperationEnd(ctx, op, err, time.Since(start))
	}()

	return fn(ctx)
}

func (c *Client) getJSON(ctx context.Context, u string, authenticated bool, op OperationInfo, v any) error {
	resp, err := c.send(ctx, u, authenticated, op)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return output.ErrTransport(err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return output.ErrDecode(err)
	}
	return nil
}

// send performs a GET and returns the response only for 200 OK. Any other
// status is drained, closed and translated into an *output.Error.
func (c *Client) send(ctx context.Context, u string, authenticated bool, op OperationInfo) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, output.ErrTransport(err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if authenticated {
		req.Header.Set(tokenHeader, c.apiKey)
	}

	info := RequestInfo{Method: http.MethodGet, URL: u, Attempt: 1}
	ctx = c.hooks.OnRequestStart(ctx, info)
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = output.ErrTransport(err)
		c.hooks.OnRequestEnd(ctx, info, RequestResult{Duration: time.Since(start), Error: err, Retryable: true})
		return nil, err
	}

	result := RequestResult{StatusCode: resp.StatusCode, Duration: time.Since(start)}
	if resp.StatusCode == http.StatusOK {
		c.hooks.OnRequestEnd(ctx, info, result)
		return resp, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()

	apiErr := errorForStatus(resp, body, op)
	result.Error = apiErr
	result.Retryable = apiErr.Retryable
	result.RetryAfter = apiErr.RetryAfter
	c.hooks.OnRequestEnd(ctx, info, result)
	return nil, apiErr
}

// errorForStatus maps a non-200 response onto the error taxonomy.
func errorForStatus(resp *http.Response, body []byte, op OperationInfo) *output.Error {
	switch resp.StatusCode {
	case http.StatusNotFound: // 404
		return output.ErrNotFound(op.ResourceType, op.Resource)

	case http.StatusTooManyRequests: // 429
		return output.ErrRateLimit(parseRetryAfter(resp.Header.Get("Retry-After")))

	case http.StatusUnauthorized, http.StatusForbidden: // 401, 403
		return output.ErrUnauthorized(resp.StatusCode)

	default:
		msg := gjson.GetBytes(body, "status.message").String()
		if msg == "" {
			msg = fmt.Sprintf("Request failed (HTTP %d)", resp.StatusCode)
		}
		return output.ErrAPI(resp.StatusCode, msg)
	}
}

// parseRetryAfter parses the Retry-After header value in seconds.
func parseRetryAfter(header string) int {
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && seconds > 0 {
		return seconds
	}
	return 0
}
