package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

// Config is the full runtime configuration, loaded from environment
// variables. Duration-valued settings are Go duration strings ("2s", "1h")
// parsed by Load into the corresponding Duration fields.
type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`

	MailEndpoint string `env:"MAIL_ENDPOINT,required=true"`
	MailFrom     string `env:"MAIL_FROM,default=\"Habits for Good\" <noreply@habitsforgood.org>"`

	JWTSecret     string `env:"JWT_SECRET,required=true"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL,default=http://localhost:8080/api"`

	APIPort  int    `env:"API_PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`

	WorkerConcurrency int `env:"WORKER_CONCURRENCY,default=5"`
	TargetLocalHour   int `env:"TARGET_LOCAL_HOUR,default=21"`
	MaxAttempts       int `env:"MAX_ATTEMPTS,default=3"`
	RateLimitPerSec   int `env:"RATE_LIMIT_PER_SEC,default=50"`

	// SkipAlreadyNotified makes a manual trigger skip recipients that
	// already have a sent daily-reminder entry for the current UTC day.
	SkipAlreadyNotified bool `env:"SKIP_ALREADY_NOTIFIED,default=false"`

	RawMailTimeout       string `env:"MAIL_TIMEOUT,default=10s"`
	RawTickInterval      string `env:"TICK_INTERVAL,default=1h"`
	RawLeasePollInterval string `env:"LEASE_POLL_INTERVAL,default=1s"`
	RawLeaseTTL          string `env:"LEASE_TTL,default=30s"`
	RawRetryBaseDelay    string `env:"RETRY_BASE_DELAY,default=2s"`
	RawFailedRetention   string `env:"FAILED_RETENTION,default=24h"`
	RawPurgeInterval     string `env:"PURGE_INTERVAL,default=1h"`

	MailTimeout       time.Duration
	TickInterval      time.Duration
	LeasePollInterval time.Duration
	LeaseTTL          time.Duration
	RetryBaseDelay    time.Duration
	FailedRetention   time.Duration
	PurgeInterval     time.Duration
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.TargetLocalHour < 0 || cfg.TargetLocalHour > 23 {
		return nil, fmt.Errorf("TARGET_LOCAL_HOUR must be between 0 and 23, got %d", cfg.TargetLocalHour)
	}

	for name, field := range map[string]struct {
		raw  string
		dest *time.Duration
	}{
		"MAIL_TIMEOUT":        {cfg.RawMailTimeout, &cfg.MailTimeout},
		"TICK_INTERVAL":       {cfg.RawTickInterval, &cfg.TickInterval},
		"LEASE_POLL_INTERVAL": {cfg.RawLeasePollInterval, &cfg.LeasePollInterval},
		"LEASE_TTL":           {cfg.RawLeaseTTL, &cfg.LeaseTTL},
		"RETRY_BASE_DELAY":    {cfg.RawRetryBaseDelay, &cfg.RetryBaseDelay},
		"FAILED_RETENTION":    {cfg.RawFailedRetention, &cfg.FailedRetention},
		"PURGE_INTERVAL":      {cfg.RawPurgeInterval, &cfg.PurgeInterval},
	} {
		d, err := time.ParseDuration(field.raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", name, field.raw, err)
		}
		*field.dest = d
	}

	return &cfg, nil
}
