// Package config provides layered configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"gopkg.in/yaml.v3"

	"github.com/quilldev/kurisu/internal/output"
	"github.com/quilldev/kurisu/internal/riot"
)

// Environment variables for the two startup credentials. The KURISU_
// spellings are accepted as aliases.
const (
	EnvAPIKey      = "RIOT_API_KEY"
	EnvAPIKeyAlias = "KURISU_API_KEY"
	EnvToken       = "TOKEN"
	EnvTokenAlias  = "KURISU_TOKEN"
)

// Config holds the resolved configuration.
type Config struct {
	// Credentials
	APIKey string `yaml:"api_key" json:"-"`
	Token  string `yaml:"token" json:"-"`

	// Upstream
	PlatformURL   string `yaml:"platform_url" json:"platform_url"`
	DataDragonURL string `yaml:"data_dragon_url" json:"data_dragon_url"`

	// Cache
	CacheDir      string        `yaml:"cache_dir" json:"cache_dir"`
	SummonerTTL   time.Duration `yaml:"summoner_ttl" json:"summoner_ttl"`
	MasteryTTL    time.Duration `yaml:"mastery_ttl" json:"mastery_ttl"`
	VersionTTL    time.Duration `yaml:"version_ttl" json:"version_ttl"`
	CacheCapacity int           `yaml:"cache_capacity" json:"cache_capacity"`
	Dedupe        bool          `yaml:"dedupe" json:"dedupe"`

	// Serve
	InteractionTimeout time.Duration `yaml:"interaction_timeout" json:"interaction_timeout"`
	SweepInterval      time.Duration `yaml:"sweep_interval" json:"sweep_interval"`
	BundleInterval     time.Duration `yaml:"bundle_interval" json:"bundle_interval"`
	BundleSchedule     string        `yaml:"bundle_schedule" json:"bundle_schedule,omitempty"` // cron expression; overrides BundleInterval
	MetricsAddr        string        `yaml:"metrics_addr" json:"metrics_addr"`

	// Output
	Format    string `yaml:"format" json:"format"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
	LogFormat string `yaml:"log_format" json:"log_format"`

	// Sources tracks where each value came from (for debugging).
	Sources map[string]string `yaml:"-" json:"-"`
}

// Source indicates where a config value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceSystem  Source = "system"
	SourceGlobal  Source = "global"
	SourceLocal   Source = "local"
	SourceEnv     Source = "env"
	SourceFlag    Source = "flag"
)

// FlagOverrides holds command-line flag values. Empty fields are ignored.
type FlagOverrides struct {
	PlatformURL string
	CacheDir    string
	Format      string
	LogLevel    string
	MetricsAddr string
	Dedupe      *bool
}

// Default returns the default configuration.
func Default() *Config {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, _ := os.UserHomeDir()
		cacheDir = filepath.Join(home, ".cache")
	}

	return &Config{
		PlatformURL:        riot.DefaultPlatformURL,
		DataDragonURL:      riot.DefaultDataDragonURL,
		CacheDir:           filepath.Join(cacheDir, "kurisu"),
		SummonerTTL:        30 * time.Minute,
		MasteryTTL:         10 * time.Minute,
		VersionTTL:         45 * time.Minute,
		InteractionTimeout: 10 * time.Second,
		SweepInterval:      5 * time.Minute,
		BundleInterval:     time.Hour,
		Format:             "auto",
		LogLevel:           "info",
		LogFormat:          "json",
		Sources:            make(map[string]string),
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence: flags > env > local > global > system > defaults
func Load(overrides FlagOverrides) (*Config, error) {
	cfg := Default()

	loadFromFile(cfg, systemConfigPath(), SourceSystem)
	loadFromFile(cfg, globalConfigPath(), SourceGlobal)
	if p := localConfigPath(); p != "" {
		loadFromFile(cfg, p, SourceLocal)
	}

	LoadFromEnv(cfg)
	ApplyOverrides(cfg, overrides)

	return cfg, nil
}

func loadFromFile(cfg *Config, path string, source Source) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: Path is from trusted config locations
	if err != nil {
		return
	}

	// JSON files parse too; JSON is a subset of YAML.
	var fileCfg map[string]any
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		fmt.Fprintf(os.Stderr, "warning: skipping malformed config at %s: %v\n", path, err)
		return
	}

	// Credentials and upstream URLs decide where the API key is sent, so a
	// config dropped into the working directory may not set them.
	untrusted := source == SourceLocal
	set := func(key string, apply func()) {
		apply()
		cfg.Sources[key] = string(source)
	}

	for _, key := range []string{"api_key", "token", "platform_url", "data_dragon_url"} {
		v, ok := fileCfg[key].(string)
		if !ok || v == "" {
			continue
		}
		if untrusted {
			fmt.Fprintf(os.Stderr, "warning: ignoring %s from %s config at %s (authority keys are not trusted from local config)\n", key, source, path)
			continue
		}
		switch key {
		case "api_key":
			set(key, func() { cfg.APIKey = v })
		case "token":
			set(key, func() { cfg.Token = v })
		case "platform_url":
			set(key, func() { cfg.PlatformURL = NormalizeBaseURL(v) })
		case "data_dragon_url":
			set(key, func() { cfg.DataDragonURL = NormalizeBaseURL(v) })
		}
	}

	stringKeys := map[string]*string{
		"cache_dir":       &cfg.CacheDir,
		"metrics_addr":    &cfg.MetricsAddr,
		"format":          &cfg.Format,
		"log_level":       &cfg.LogLevel,
		"log_format":      &cfg.LogFormat,
		"bundle_schedule": &cfg.BundleSchedule,
	}
	for key, dst := range stringKeys {
		if v, ok := fileCfg[key].(string); ok && v != "" {
			set(key, func() { *dst = v })
		}
	}

	durations := map[string]*time.Duration{
		"summoner_ttl":        &cfg.SummonerTTL,
		"mastery_ttl":         &cfg.MasteryTTL,
		"version_ttl":         &cfg.VersionTTL,
		"interaction_timeout": &cfg.InteractionTimeout,
		"sweep_interval":      &cfg.SweepInterval,
		"bundle_interval":     &cfg.BundleInterval,
	}
	for key, dst := range durations {
		raw, ok := fileCfg[key]
		if !ok {
			continue
		}
		d, err := parseDuration(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: ignoring %s in %s: %v\n", key, path, err)
			continue
		}
		set(key, func() { *dst = d })
	}

	if v, ok := fileCfg["cache_capacity"].(int); ok && v >= 0 {
		set("cache_capacity", func() { cfg.CacheCapacity = v })
	}
	if v, ok := fileCfg["dedupe"].(bool); ok {
		set("dedupe", func() { cfg.Dedupe = v })
	}
}

// parseDuration accepts Go duration strings ("30m") or whole seconds.
func parseDuration(raw any) (time.Duration, error) {
	switch v := raw.(type) {
	case string:
		return time.ParseDuration(v)
	case int:
		return time.Duration(v) * time.Second, nil
	default:
		return 0, fmt.Errorf("unsupported duration %v", raw)
	}
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv(cfg *Config) {
	if v := firstEnv(EnvAPIKey, EnvAPIKeyAlias); v != "" {
		cfg.APIKey = v
		cfg.Sources["api_key"] = string(SourceEnv)
	}
	if v := firstEnv(EnvToken, EnvTokenAlias); v != "" {
		cfg.Token = v
		cfg.Sources["token"] = string(SourceEnv)
	}
	if v := os.Getenv("KURISU_PLATFORM_URL"); v != "" {
		cfg.PlatformURL = NormalizeBaseURL(v)
		cfg.Sources["platform_url"] = string(SourceEnv)
	}
	if v := os.Getenv("KURISU_DATA_DRAGON_URL"); v != "" {
		cfg.DataDragonURL = NormalizeBaseURL(v)
		cfg.Sources["data_dragon_url"] = string(SourceEnv)
	}
	if v := os.Getenv("KURISU_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
		cfg.Sources["cache_dir"] = string(SourceEnv)
	}
	if v := os.Getenv("KURISU_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
		cfg.Sources["metrics_addr"] = string(SourceEnv)
	}
	if v := os.Getenv("KURISU_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
		cfg.Sources["log_level"] = string(SourceEnv)
	}
	if v := os.Getenv("KURISU_BUNDLE_SCHEDULE"); v != "" {
		cfg.BundleSchedule = v
		cfg.Sources["bundle_schedule"] = string(SourceEnv)
	}
	if v := os.Getenv("KURISU_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
		cfg.Sources["log_format"] = string(SourceEnv)
	}
	if v := os.Getenv("KURISU_DEDUPE"); v != "" {
		if b, ok := parseEnvBool(v); ok {
			cfg.Dedupe = b
			cfg.Sources["dedupe"] = string(SourceEnv)
		}
	}
	if v := os.Getenv("KURISU_CACHE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.CacheCapacity = n
			cfg.Sources["cache_capacity"] = string(SourceEnv)
		}
	}
	if v := os.Getenv("KURISU_INTERACTION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.InteractionTimeout = d
			cfg.Sources["interaction_timeout"] = string(SourceEnv)
		}
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// parseEnvBool parses a boolean environment variable strictly.
func parseEnvBool(v string) (bool, bool) {
	switch strings.ToLower(v) {
	case "true", "1":
		return true, true
	case "false", "0":
		return false, true
	default:
		return false, false
	}
}

// ApplyOverrides applies non-empty flag overrides to cfg.
func ApplyOverrides(cfg *Config, o FlagOverrides) {
	if o.PlatformURL != "" {
		cfg.PlatformURL = NormalizeBaseURL(o.PlatformURL)
		cfg.Sources["platform_url"] = string(SourceFlag)
	}
	if o.CacheDir != "" {
		cfg.CacheDir = o.CacheDir
		cfg.Sources["cache_dir"] = string(SourceFlag)
	}
	if o.Format != "" {
		cfg.Format = o.Format
		cfg.Sources["format"] = string(SourceFlag)
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
		cfg.Sources["log_level"] = string(SourceFlag)
	}
	if o.MetricsAddr != "" {
		cfg.MetricsAddr = o.MetricsAddr
		cfg.Sources["metrics_addr"] = string(SourceFlag)
	}
	if o.Dedupe != nil {
		cfg.Dedupe = *o.Dedupe
		cfg.Sources["dedupe"] = string(SourceFlag)
	}
}

// Validate checks that required credentials are present and that durations
// are usable. requireToken is set for commands that talk to the messaging
// platform.
func (cfg *Config) Validate(requireToken bool) error {
	if cfg.APIKey == "" {
		return output.ErrNotConfigured("Riot API key", EnvAPIKey)
	}
	if requireToken && cfg.Token == "" {
		return output.ErrNotConfigured("Messaging token", EnvToken)
	}
	for key, d := range map[string]time.Duration{
		"summoner_ttl": cfg.SummonerTTL,
		"mastery_ttl":  cfg.MasteryTTL,
		"version_ttl":  cfg.VersionTTL,
	} {
		if d <= 0 {
			return output.ErrUsageHint(fmt.Sprintf("%s must be positive, got %s", key, d), "Use a duration such as 30m")
		}
	}
	return nil
}

// ValidateSchedule checks bundle_schedule. Only the standard five-field
// form and descriptors are accepted.
func (cfg *Config) ValidateSchedule() error {
	if cfg.BundleSchedule == "" {
		return nil
	}
	gron := gronx.New()
	if len(strings.Fields(cfg.BundleSchedule)) > 5 || !gron.IsValid(cfg.BundleSchedule) {
		return output.ErrUsageHint(
			fmt.Sprintf("bundle_schedule %q is not a valid cron expression", cfg.BundleSchedule),
			`Use five fields, e.g. "0 */6 * * *", or a descriptor such as @hourly`)
	}
	return nil
}

// NextBundleRefresh returns when bundle_schedule next fires after now.
func (cfg *Config) NextBundleRefresh(now time.Time) (time.Time, error) {
	return gronx.NextTickAfter(cfg.BundleSchedule, now, false)
}

// Source returns where key was set, or "default".
func (cfg *Config) Source(key string) string {
	if s, ok := cfg.Sources[key]; ok {
		return s
	}
	return string(SourceDefault)
}

// BundleDir is where Data Dragon bundles are stored.
func (cfg *Config) BundleDir() string {
	return filepath.Join(cfg.CacheDir, "bundles")
}

// StateDir is where resilience state is stored.
func (cfg *Config) StateDir() string {
	return filepath.Join(cfg.CacheDir, "resilience")
}

// Path helpers

func systemConfigPath() string {
	return "/etc/kurisu/config.yaml"
}

func globalConfigPath() string {
	return filepath.Join(GlobalConfigDir(), "config.yaml")
}

// localConfigPath returns ./.kurisu/config.yaml if it exists. Only the
// working directory is consulted; parents are never walked.
func localConfigPath() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	p := filepath.Join(dir, ".kurisu", "config.yaml")
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

// GlobalConfigDir returns the global config directory path.
func GlobalConfigDir() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "kurisu")
}

// NormalizeBaseURL ensures consistent URL format (no trailing slash).
func NormalizeBaseURL(url string) string {
	return strings.TrimSuffix(url, "/")
}
