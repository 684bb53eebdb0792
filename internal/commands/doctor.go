package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/quilldev/kurisu/internal/appctx"
	"github.com/quilldev/kurisu/internal/config"
	"github.com/quilldev/kurisu/internal/output"
	"github.com/quilldev/kurisu/internal/resilience"
	"github.com/quilldev/kurisu/internal/version"
)

// Check statuses.
const (
	statusPass = "pass"
	statusFail = "fail"
	statusWarn = "warn"
	statusSkip = "skip"
)

// Check represents a single diagnostic check result.
type Check struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// DoctorResult holds the complete diagnostic results.
type DoctorResult struct {
	Checks  []Check `json:"checks"`
	Passed  int     `json:"passed"`
	Failed  int     `json:"failed"`
	Warned  int     `json:"warned"`
	Skipped int     `json:"skipped"`
}

// Summary returns a human-readable summary of the results.
func (r *DoctorResult) Summary() string {
	if r.Failed == 0 && r.Warned == 0 && r.Passed > 0 {
		if r.Skipped > 0 {
			return fmt.Sprintf("All %d checks passed, %d skipped", r.Passed, r.Skipped)
		}
		return fmt.Sprintf("All %d checks passed", r.Passed)
	}
	parts := []string{}
	if r.Passed > 0 {
		parts = append(parts, fmt.Sprintf("%d passed", r.Passed))
	}
	if r.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", r.Failed))
	}
	if r.Warned > 0 {
		parts = append(parts, fmt.Sprintf("%d %s", r.Warned, pluralize(r.Warned, "warning", "warnings")))
	}
	if r.Skipped > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped", r.Skipped))
	}
	return strings.Join(parts, ", ")
}

// RenderText prints one line per check with hints under failures.
func (r *DoctorResult) RenderText(w io.Writer) error {
	icons := map[string]string{statusPass: "ok", statusFail: "FAIL", statusWarn: "warn", statusSkip: "skip"}
	for _, c := range r.Checks {
		fmt.Fprintf(w, "  [%-4s] %-18s %s\n", icons[c.Status], c.Name, c.Message)
		if c.Hint != "" && (c.Status == statusFail || c.Status == statusWarn) {
			fmt.Fprintf(w, "         -> %s\n", c.Hint)
		}
	}
	fmt.Fprintln(w)
	return nil
}

// NewDoctorCmd creates the doctor command.
func NewDoctorCmd() *cobra.Command {
	var (
		verbose bool
		offline bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check setup and diagnose issues",
		Long: `Run diagnostic checks on configuration, credentials, upstream
reachability, local throttling state and the cache directory.

Examples:
  kurisu doctor              # Run all diagnostic checks
  kurisu doctor --json       # Output results as JSON
  kurisu doctor --offline    # Skip network checks`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			result := summarizeChecks(runDoctorChecks(cmd.Context(), app, verbose, offline))
			return app.OK(result, output.WithSummary(result.Summary()))
		},
	}

	cmd.Flags().BoolVar(&verbose, "verbose", false, "Show additional debug information")
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip checks that reach the network")

	return cmd
}

// runDoctorChecks executes all diagnostic checks.
func runDoctorChecks(ctx context.Context, app *appctx.App, verbose, offline bool) []Check {
	checks := []Check{checkVersion()}
	if verbose {
		checks = append(checks, checkRuntime())
	}

	checks = append(checks, checkConfigFiles(verbose)...)
	checks = append(checks, checkCredentials(app.Config)...)
	checks = append(checks, checkThrottle(app.Config))

	if offline {
		checks = append(checks, Check{Name: "Data Dragon", Status: statusSkip, Message: "Skipped (--offline)"})
	} else {
		checks = append(checks, checkDataDragon(ctx, app))
	}

	checks = append(checks, checkCacheDir(app.Config, verbose))
	checks = append(checks, checkBundleSchedule(app.Config, time.Now().UTC()))
	return checks
}

func checkBundleSchedule(cfg *config.Config, now time.Time) Check {
	if err := cfg.ValidateSchedule(); err != nil {
		e := output.AsError(err)
		return Check{Name: "Bundle refresh", Status: statusFail, Message: e.Message, Hint: e.Hint}
	}
	if cfg.BundleSchedule == "" {
		if cfg.BundleInterval <= 0 {
			return Check{Name: "Bundle refresh", Status: statusSkip, Message: "At startup only"}
		}
		return Check{Name: "Bundle refresh", Status: statusPass, Message: "Every " + cfg.BundleInterval.String()}
	}
	next, err := cfg.NextBundleRefresh(now)
	if err != nil {
		return Check{Name: "Bundle refresh", Status: statusWarn, Message: "Cannot compute next run", Hint: err.Error()}
	}
	return Check{
		Name:    "Bundle refresh",
		Status:  statusPass,
		Message: fmt.Sprintf("%s (next %s)", cfg.BundleSchedule, next.Format(time.RFC3339)),
	}
}

func checkVersion() Check {
	return Check{Name: "Version", Status: statusPass, Message: version.Full()}
}

func checkRuntime() Check {
	return Check{
		Name:    "Runtime",
		Status:  statusPass,
		Message: fmt.Sprintf("Go %s (%s/%s)", runtime.Version(), runtime.GOOS, runtime.GOARCH),
	}
}

// checkConfigFiles validates the config files that exist. Missing files are
// not an error.
func checkConfigFiles(verbose bool) []Check {
	var checks []Check
	candidates := []struct{ name, path string }{
		{"Global config", filepath.Join(config.GlobalConfigDir(), "config.yaml")},
		{"Local config", filepath.Join(".kurisu", "config.yaml")},
	}
	for _, c := range candidates {
		if _, err := os.Stat(c.path); err != nil {
			continue
		}
		checks = append(checks, validateConfigFile(c.path, c.name, verbose))
	}
	if len(checks) == 0 {
		checks = append(checks, Check{Name: "Config", Status: statusPass, Message: "No config files (using defaults and environment)"})
	}
	return checks
}

func validateConfigFile(path, name string, verbose bool) Check {
	data, err := os.ReadFile(path) //nolint:gosec // G304: Path is from trusted config locations
	if err != nil {
		return Check{
			Name:    name,
			Status:  statusFail,
			Message: fmt.Sprintf("Cannot read: %s", path),
			Hint:    fmt.Sprintf("Check file permissions: %v", err),
		}
	}

	var cfg map[string]any
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Check{
			Name:    name,
			Status:  statusFail,
			Message: fmt.Sprintf("Invalid YAML: %s", path),
			Hint:    fmt.Sprintf("YAML error: %v", err),
		}
	}

	msg := path
	if verbose {
		msg = fmt.Sprintf("%s (%d keys)", path, len(cfg))
	}
	return Check{Name: name, Status: statusPass, Message: msg}
}

func checkCredentials(cfg *config.Config) []Check {
	apiKey := Check{Name: "API key", Status: statusPass, Message: "Set (from " + cfg.Source("api_key") + ")"}
	if cfg.APIKey == "" {
		apiKey = Check{
			Name:    "API key",
			Status:  statusFail,
			Message: "Not configured",
			Hint:    "Set " + config.EnvAPIKey,
		}
	}

	token := Check{Name: "Bot token", Status: statusPass, Message: "Set (from " + cfg.Source("token") + ")"}
	if cfg.Token == "" {
		token = Check{
			Name:    "Bot token",
			Status:  statusWarn,
			Message: "Not configured (required by serve)",
			Hint:    "Set " + config.EnvToken,
		}
	}
	return []Check{apiKey, token}
}

// checkThrottle reports persisted circuit breaker and rate limiter state.
func checkThrottle(cfg *config.Config) Check {
	store := resilience.NewStore(cfg.StateDir())
	rc := resilience.DefaultConfig()

	state, err := resilience.NewCircuitBreaker(store, rc.CircuitBreaker).State()
	if err != nil {
		return Check{Name: "Throttle", Status: statusWarn, Message: "Cannot read state", Hint: err.Error()}
	}
	if state == resilience.CircuitOpen {
		return Check{
			Name:    "Throttle",
			Status:  statusWarn,
			Message: "Circuit breaker open after repeated upstream failures",
			Hint:    fmt.Sprintf("Requests resume within %s", rc.CircuitBreaker.OpenTimeout),
		}
	}

	rl := resilience.NewRateLimiter(store, rc.RateLimiter)
	if wait, err := rl.RetryAfterRemaining(); err == nil && wait > 0 {
		return Check{
			Name:    "Throttle",
			Status:  statusWarn,
			Message: fmt.Sprintf("Rate limited by upstream for another %s", wait.Round(time.Second)),
		}
	}
	tokens, _ := rl.Tokens()
	return Check{
		Name:    "Throttle",
		Status:  statusPass,
		Message: fmt.Sprintf("Circuit %s, %.0f of %.0f request tokens available", state, tokens, rc.RateLimiter.MaxTokens),
	}
}

func checkDataDragon(ctx context.Context, app *appctx.App) Check {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	start := time.Now()
	v, err := app.Resolver.GameVersion(ctx)
	if err != nil {
		e := output.AsError(err)
		return Check{Name: "Data Dragon", Status: statusFail, Message: e.Message, Hint: e.Hint}
	}
	return Check{
		Name:    "Data Dragon",
		Status:  statusPass,
		Message: fmt.Sprintf("Game version %s (%dms)", v, time.Since(start).Milliseconds()),
	}
}

func checkCacheDir(cfg *config.Config, verbose bool) Check {
	check := Check{Name: "Cache"}

	dir := cfg.CacheDir
	if dir == "" {
		check.Status = statusWarn
		check.Message = "Cache directory not configured"
		return check
	}

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			check.Status = statusPass
			check.Message = fmt.Sprintf("%s (will be created on first use)", dir)
			return check
		}
		check.Status = statusWarn
		check.Message = fmt.Sprintf("Cannot access: %s", dir)
		check.Hint = fmt.Sprintf("Error: %v", err)
		return check
	}
	if !info.IsDir() {
		check.Status = statusFail
		check.Message = fmt.Sprintf("%s exists but is not a directory", dir)
		return check
	}

	var totalSize int64
	var bundles int
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // Best-effort counting, continue on errors
		}
		if d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			totalSize += info.Size()
		}
		if strings.HasSuffix(d.Name(), ".tgz") {
			bundles++
		}
		return nil
	})

	check.Status = statusPass
	check.Message = dir
	if verbose || bundles > 0 {
		sizeMB := float64(totalSize) / (1024 * 1024)
		check.Message = fmt.Sprintf("%s (%.1f MB, %d %s)", dir, sizeMB, bundles, pluralize(bundles, "bundle", "bundles"))
	}
	return check
}

func summarizeChecks(checks []Check) *DoctorResult {
	result := &DoctorResult{Checks: checks}
	for _, c := range checks {
		switch c.Status {
		case statusPass:
			result.Passed++
		case statusFail:
			result.Failed++
		case statusWarn:
			result.Warned++
		case statusSkip:
			result.Skipped++
		}
	}
	return result
}

// pluralize returns singular or plural form based on count.
func pluralize(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}
