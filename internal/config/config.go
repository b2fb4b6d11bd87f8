package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/edvin/domains/internal/core"
	"github.com/edvin/domains/internal/hostname"
	"github.com/edvin/domains/internal/router"
)

const (
	ModeProduction  = "production"
	ModeDevelopment = "development"
)

// Config is read once at startup. Values come from built-in defaults, then
// the YAML file named by DOMAINS_CONFIG_FILE, then environment variables.
type Config struct {
	ServiceName string `yaml:"-"`
	Mode        string `yaml:"mode"`
	LogLevel    string `yaml:"log_level"`

	HTTPListenAddr    string `yaml:"http_listen_addr"`
	EdgeListenAddr    string `yaml:"edge_listen_addr"`
	MetricsListenAddr string `yaml:"metrics_listen_addr"`

	CoreDatabaseURL string `yaml:"core_database_url"`
	// RedisURL enables the cluster-wide verification lock. Empty means
	// single-replica.
	RedisURL string `yaml:"redis_url"`

	PlatformRoot string   `yaml:"platform_root"`
	DevAliases   []string `yaml:"dev_aliases"`
	// UpstreamURL is the page renderer the edge proxies to.
	UpstreamURL string `yaml:"upstream_url"`
	// VerifyAPIURL is the domains-api base URL used by a standalone edge.
	VerifyAPIURL string `yaml:"verify_api_url"`
	CheckScheme  string `yaml:"check_scheme"`

	AttemptBudget    time.Duration `yaml:"attempt_budget"`
	AttemptTimeout   time.Duration `yaml:"attempt_timeout"`
	TransientRetries int           `yaml:"transient_retries"`
	RetryDelay       time.Duration `yaml:"retry_delay"`
	LookupTimeout    time.Duration `yaml:"lookup_timeout"`

	WatchInterval     time.Duration `yaml:"watch_interval"`
	WatchTTL          time.Duration `yaml:"watch_ttl"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`
	SweepConcurrency  int           `yaml:"sweep_concurrency"`
	SweepLimit        int           `yaml:"sweep_limit"`
	HealthCheckActive bool          `yaml:"health_check_active"`
	FailedCooldown    time.Duration `yaml:"failed_cooldown"`
	LockTTL           time.Duration `yaml:"lock_ttl"`
}

func defaults() *Config {
	return &Config{
		Mode:              ModeProduction,
		LogLevel:          "info",
		HTTPListenAddr:    ":8090",
		EdgeListenAddr:    ":8080",
		MetricsListenAddr: ":9090",
		PlatformRoot:      "tiny.pm",
		DevAliases:        []string{"localhost", "127.0.0.1", ".localhost"},
		UpstreamURL:       "http://localhost:3000",
		CheckScheme:       "https",
		AttemptBudget:     48 * time.Hour,
		AttemptTimeout:    15 * time.Second,
		TransientRetries:  2,
		RetryDelay:        2 * time.Second,
		LookupTimeout:     2 * time.Second,
		WatchInterval:     10 * time.Second,
		WatchTTL:          2 * time.Minute,
		SweepInterval:     5 * time.Minute,
		SweepConcurrency:  8,
		SweepLimit:        500,
		LockTTL:           2 * time.Minute,
	}
}

func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("DOMAINS_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.Mode = getEnv("DOMAINS_MODE", cfg.Mode)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.HTTPListenAddr = getEnv("HTTP_LISTEN_ADDR", cfg.HTTPListenAddr)
	cfg.EdgeListenAddr = getEnv("EDGE_LISTEN_ADDR", cfg.EdgeListenAddr)
	cfg.MetricsListenAddr = getEnv("METRICS_LISTEN_ADDR", cfg.MetricsListenAddr)
	cfg.CoreDatabaseURL = getEnv("CORE_DATABASE_URL", cfg.CoreDatabaseURL)
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.PlatformRoot = getEnv("PLATFORM_ROOT", cfg.PlatformRoot)
	cfg.UpstreamURL = getEnv("UPSTREAM_URL", cfg.UpstreamURL)
	cfg.VerifyAPIURL = getEnv("VERIFY_API_URL", cfg.VerifyAPIURL)
	cfg.CheckScheme = getEnv("CHECK_SCHEME", cfg.CheckScheme)
	if v := os.Getenv("DEV_ALIASES"); v != "" {
		cfg.DevAliases = splitList(v)
	}

	var errs []string
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"ATTEMPT_BUDGET", &cfg.AttemptBudget},
		{"ATTEMPT_TIMEOUT", &cfg.AttemptTimeout},
		{"RETRY_DELAY", &cfg.RetryDelay},
		{"LOOKUP_TIMEOUT", &cfg.LookupTimeout},
		{"WATCH_INTERVAL", &cfg.WatchInterval},
		{"WATCH_TTL", &cfg.WatchTTL},
		{"SWEEP_INTERVAL", &cfg.SweepInterval},
		{"FAILED_COOLDOWN", &cfg.FailedCooldown},
		{"LOCK_TTL", &cfg.LockTTL},
	}
	for _, d := range durations {
		if err := getDuration(d.key, d.dst); err != nil {
			errs = append(errs, err.Error())
		}
	}
	ints := []struct {
		key string
		dst *int
	}{
		{"TRANSIENT_RETRIES", &cfg.TransientRetries},
		{"SWEEP_CONCURRENCY", &cfg.SweepConcurrency},
		{"SWEEP_LIMIT", &cfg.SweepLimit},
	}
	for _, i := range ints {
		if err := getInt(i.key, i.dst); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if err := getBool("HEALTH_CHECK_ACTIVE", &cfg.HealthCheckActive); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// Validate checks that everything service needs is present and sane.
// attemptCeiling is the longest one verification attempt can run.
func (c *Config) attemptCeiling() time.Duration {
	retries := max(c.TransientRetries, 0)
	return c.AttemptTimeout*time.Duration(retries+1) + c.RetryDelay*time.Duration(retries)
}

func (c *Config) Validate(service string) error {
	var missing []string
	var invalid []string

	switch service {
	case "domains-api":
		if c.CoreDatabaseURL == "" {
			missing = append(missing, "CORE_DATABASE_URL")
		}
		if c.HTTPListenAddr == "" {
			missing = append(missing, "HTTP_LISTEN_ADDR")
		}
		// The cluster lock has to outlive the slowest attempt it guards.
		if c.RedisURL != "" && c.LockTTL <= c.attemptCeiling() {
			invalid = append(invalid, fmt.Sprintf("LOCK_TTL must exceed %s (attempt timeout and retries)", c.attemptCeiling()))
		}
	case "edge-router":
		if c.VerifyAPIURL == "" {
			missing = append(missing, "VERIFY_API_URL")
		} else if !isHTTPURL(c.VerifyAPIURL) {
			invalid = append(invalid, "VERIFY_API_URL must be an http(s) URL")
		}
	}

	if c.PlatformRoot == "" {
		missing = append(missing, "PLATFORM_ROOT")
	} else if err := hostname.Validate(hostname.Normalize(c.PlatformRoot)); err != nil {
		invalid = append(invalid, fmt.Sprintf("PLATFORM_ROOT: %v", err))
	}
	if c.EdgeListenAddr == "" {
		missing = append(missing, "EDGE_LISTEN_ADDR")
	}
	if c.UpstreamURL == "" {
		missing = append(missing, "UPSTREAM_URL")
	} else if !isHTTPURL(c.UpstreamURL) {
		invalid = append(invalid, "UPSTREAM_URL must be an http(s) URL")
	}
	if c.Mode != ModeProduction && c.Mode != ModeDevelopment {
		invalid = append(invalid, fmt.Sprintf("DOMAINS_MODE must be %q or %q", ModeProduction, ModeDevelopment))
	}
	if c.CheckScheme != "http" && c.CheckScheme != "https" {
		invalid = append(invalid, "CHECK_SCHEME must be http or https")
	}
	if c.AttemptBudget <= 0 || c.AttemptTimeout <= 0 || c.LookupTimeout <= 0 {
		invalid = append(invalid, "ATTEMPT_BUDGET, ATTEMPT_TIMEOUT and LOOKUP_TIMEOUT must be positive")
	}
	if c.WatchInterval <= 0 || c.SweepInterval <= 0 {
		invalid = append(invalid, "WATCH_INTERVAL and SWEEP_INTERVAL must be positive")
	}
	if c.TransientRetries < 0 || c.FailedCooldown < 0 {
		invalid = append(invalid, "TRANSIENT_RETRIES and FAILED_COOLDOWN must not be negative")
	}

	var problems []string
	if len(missing) > 0 {
		problems = append(problems, "missing required config: "+strings.Join(missing, ", "))
	}
	problems = append(problems, invalid...)
	if len(problems) > 0 {
		return fmt.Errorf("%s config: %s", service, strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) DevMode() bool {
	return c.Mode == ModeDevelopment
}

func (c *Config) HostnamePolicy() hostname.Policy {
	return hostname.Policy{
		Root:       c.PlatformRoot,
		DevAliases: append([]string(nil), c.DevAliases...),
		DevMode:    c.DevMode(),
	}
}

func (c *Config) VerificationPolicy() core.VerificationPolicy {
	return core.VerificationPolicy{
		AttemptBudget:    c.AttemptBudget,
		AttemptTimeout:   c.AttemptTimeout,
		TransientRetries: c.TransientRetries,
		RetryDelay:       c.RetryDelay,
		LookupTimeout:    c.LookupTimeout,
	}
}

func (c *Config) SchedulerPolicy() core.SchedulerPolicy {
	return core.SchedulerPolicy{
		WatchInterval:     c.WatchInterval,
		WatchTTL:          c.WatchTTL,
		SweepInterval:     c.SweepInterval,
		SweepConcurrency:  c.SweepConcurrency,
		SweepLimit:        c.SweepLimit,
		HealthCheckActive: c.HealthCheckActive,
		FailedCooldown:    c.FailedCooldown,
		LockTTL:           c.LockTTL,
	}
}

func (c *Config) RouterPolicy() router.Policy {
	return router.Policy{LookupTimeout: c.LookupTimeout}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func getInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func getBool(key string, dst *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
