// Package config loads service settings from the environment (and an optional .env file).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port           string
	DatabaseURL    string
	AllowedOrigins []string
	LogLevel       string

	GatewayToken string
	CronSecret   string
	AdminHandles []string

	GitHub GitHubConfig
	Spar   SparConfig
	Stats  StatsConfig
	Stripe StripeConfig
	R2     R2Config
}

type GitHubConfig struct {
	Token         string
	APIURL        string
	EventsPerPage int
	Timeout       time.Duration
}

type SparConfig struct {
	GracePeriod      time.Duration
	SweepInterval    time.Duration
	SchedulerEnabled bool
	PaymentsEnabled  bool
	EntryFeeCents    int
}

// StatsConfig drives the developer leaderboard sync. It runs on the spar scheduler switch.
type StatsConfig struct {
	SyncInterval time.Duration
	Pause        time.Duration
}

type StripeConfig struct {
	WebhookSecret string
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	Endpoint        string
	CDNBaseURL      string
}

// Enabled reports whether enough settings are present to archive results.
func (c R2Config) Enabled() bool {
	return c.Bucket != "" && c.AccessKeyID != "" && c.AccessKeySecret != "" &&
		(c.Endpoint != "" || c.AccountID != "")
}

// Load reads .env (if present) and the process environment.
// The returned bool is false when no .env file was found.
func Load() (*Config, bool, error) {
	loadedEnv := godotenv.Load() == nil
	cfg, err := FromLookup(os.LookupEnv)
	return cfg, loadedEnv, err
}

// FromLookup builds a Config from an arbitrary variable source.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	r := reader{lookup: lookup}

	cfg := &Config{
		Port:           r.str("PORT", "5200"),
		DatabaseURL:    r.str("DATABASE_URL", ""),
		AllowedOrigins: r.list("ALLOWED_ORIGINS", "http://localhost:3000"),
		LogLevel:       r.str("LOG_LEVEL", "info"),
		GatewayToken:   r.str("GATEWAY_TOKEN", ""),
		CronSecret:     r.str("CRON_SECRET", ""),
		AdminHandles:   r.list("ADMIN_GITHUB_USERS", ""),
		GitHub: GitHubConfig{
			Token:         r.str("GITHUB_TOKEN", ""),
			APIURL:        strings.TrimRight(r.str("GITHUB_API_URL", "https://api.github.com"), "/"),
			EventsPerPage: r.int("GITHUB_EVENTS_PER_PAGE", 100),
			Timeout:       r.duration("GITHUB_TIMEOUT", 30*time.Second),
		},
		Spar: SparConfig{
			GracePeriod:      r.duration("SPAR_GRACE_PERIOD", 5*time.Minute),
			SweepInterval:    r.duration("SPAR_SWEEP_INTERVAL", time.Minute),
			SchedulerEnabled: r.bool("SPAR_SCHEDULER_ENABLED", true),
			PaymentsEnabled:  r.bool("SPAR_PAYMENTS_ENABLED", false),
			EntryFeeCents:    r.int("SPAR_ENTRY_FEE_CENTS", 999),
		},
		Stats: StatsConfig{
			SyncInterval: r.duration("STATS_SYNC_INTERVAL", 6*time.Hour),
			Pause:        r.duration("STATS_SYNC_PAUSE", 500*time.Millisecond),
		},
		Stripe: StripeConfig{
			WebhookSecret: r.str("STRIPE_WEBHOOK_SECRET", ""),
		},
		R2: R2Config{
			AccountID:       r.str("CLOUDFLARE_ACCOUNT_ID", ""),
			AccessKeyID:     r.str("R2_ACCESS_KEY_ID", ""),
			AccessKeySecret: r.str("R2_ACCESS_KEY_SECRET", ""),
			Bucket:          r.str("R2_BUCKET_NAME", ""),
			Endpoint:        r.str("R2_ENDPOINT", ""),
			CDNBaseURL:      r.str("CDN_BASE_URL", ""),
		},
	}

	if cfg.GitHub.EventsPerPage < 1 || cfg.GitHub.EventsPerPage > 100 {
		cfg.GitHub.EventsPerPage = 100
	}

	if len(r.errs) > 0 {
		return nil, errors.Join(r.errs...)
	}
	return cfg, nil
}

// Validate checks settings required to serve traffic.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL environment variable not set")
	}
	if c.Spar.GracePeriod < 0 {
		return errors.New("SPAR_GRACE_PERIOD must not be negative")
	}
	if c.Spar.SweepInterval <= 0 {
		return errors.New("SPAR_SWEEP_INTERVAL must be positive")
	}
	if c.Stats.SyncInterval <= 0 {
		return errors.New("STATS_SYNC_INTERVAL must be positive")
	}
	if c.Stats.Pause < 0 {
		return errors.New("STATS_SYNC_PAUSE must not be negative")
	}
	if c.Spar.PaymentsEnabled && c.Stripe.WebhookSecret == "" {
		return errors.New("STRIPE_WEBHOOK_SECRET is required when SPAR_PAYMENTS_ENABLED=true")
	}
	return nil
}

type reader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *reader) str(key, def string) string {
	if v, ok := r.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (r *reader) list(key, def string) []string {
	var out []string
	for _, item := range strings.Split(r.str(key, def), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (r *reader) int(key string, def int) int {
	raw := r.str(key, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (r *reader) bool(key string, def bool) bool {
	raw := r.str(key, "")
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	raw := r.str(key, "")
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}
