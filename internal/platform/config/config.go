package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces every environment variable, e.g. DOWNLOADGATE_SERVER_ADDR.
const EnvPrefix = "DOWNLOADGATE"

// Config is the full gateway configuration.
type Config struct {
	Server    Server          `envconfig:"SERVER"`
	Logging   LoggingConfig   `envconfig:"LOG"`
	License   LicenseConfig   `envconfig:"LICENSE"`
	RateLimit RateLimitConfig `envconfig:"RATELIMIT"`
	Redis     RedisConfig     `envconfig:"REDIS"`
	Session   SessionConfig   `envconfig:"SESSION"`
	Freshness FreshnessConfig `envconfig:"FRESHNESS"`
	Download  DownloadConfig  `envconfig:"DOWNLOAD"`
	Catalog   CatalogConfig   `envconfig:"CATALOG"`
	Blob      BlobConfig      `envconfig:"BLOB"`
	Audit     AuditConfig     `envconfig:"AUDIT"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr              string        `envconfig:"ADDR" default:":3001"`
	ReadHeaderTimeout time.Duration `envconfig:"READ_HEADER_TIMEOUT" default:"5s"`
	RequestTimeout    time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	ShutdownTimeout   time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	// TrustProxy honours X-Forwarded-For / X-Real-IP for client identity.
	TrustProxy bool `envconfig:"TRUST_PROXY" default:"false"`
	// CORSOrigins lists browser origins allowed to call the API.
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`
}

type LoggingConfig struct {
	Level  string `envconfig:"LEVEL" default:"info"`
	Format string `envconfig:"FORMAT" default:"json"`
}

// LicenseConfig selects the license record store.
type LicenseConfig struct {
	Driver  string        `envconfig:"DRIVER" default:"sqlite"`
	DSN     string        `envconfig:"DSN" default:"file:marengo.db"`
	Timeout time.Duration `envconfig:"TIMEOUT" default:"3s"`
	Migrate bool          `envconfig:"MIGRATE" default:"true"`
}

// RateLimitConfig holds the fixed-window thresholds per endpoint class.
type RateLimitConfig struct {
	Backend        string        `envconfig:"BACKEND" default:"memory"`
	VerifyLimit    int           `envconfig:"VERIFY_LIMIT" default:"10"`
	VerifyWindow   time.Duration `envconfig:"VERIFY_WINDOW" default:"15m"`
	DownloadLimit  int           `envconfig:"DOWNLOAD_LIMIT" default:"20"`
	DownloadWindow time.Duration `envconfig:"DOWNLOAD_WINDOW" default:"15m"`
	Disabled       bool          `envconfig:"DISABLED" default:"false"`
}

// RedisConfig is used by the Redis-backed bucket and replay stores.
type RedisConfig struct {
	URL          string        `envconfig:"URL"`
	PoolSize     int           `envconfig:"POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"3s"`
}

type SessionConfig struct {
	TTL             time.Duration `envconfig:"TTL" default:"15m"`
	JanitorInterval time.Duration `envconfig:"JANITOR_INTERVAL" default:"1m"`
}

type FreshnessConfig struct {
	Backend    string        `envconfig:"BACKEND" default:"memory"`
	SkewWindow time.Duration `envconfig:"SKEW_WINDOW" default:"5m"`
}

type DownloadConfig struct {
	URLTTL      time.Duration `envconfig:"URL_TTL" default:"60s"`
	SignTimeout time.Duration `envconfig:"SIGN_TIMEOUT" default:"5s"`
}

type CatalogConfig struct {
	ManifestPath    string        `envconfig:"MANIFEST" default:"catalog.yaml"`
	RefreshInterval time.Duration `envconfig:"REFRESH_INTERVAL" default:"5m"`
	RefreshTimeout  time.Duration `envconfig:"REFRESH_TIMEOUT" default:"30s"`
}

// BlobConfig selects the object store that mints download URLs.
type BlobConfig struct {
	Backend      string `envconfig:"BACKEND" default:"s3"`
	Bucket       string `envconfig:"BUCKET" default:"rythenox-downloads"`
	Region       string `envconfig:"REGION" default:"us-east-1"`
	Endpoint     string `envconfig:"ENDPOINT"`
	UsePathStyle bool   `envconfig:"USE_PATH_STYLE" default:"false"`
	// SigningSecret is only used by the in-memory backend.
	SigningSecret string `envconfig:"SIGNING_SECRET" default:"dev-download-secret-change-me"`
	BaseURL       string `envconfig:"BASE_URL" default:"http://localhost:3001/blob"`
	// Dir seeds the in-memory backend from a local directory.
	Dir string `envconfig:"DIR"`
}

// AuditConfig selects where download audit records are appended.
type AuditConfig struct {
	Sink         string        `envconfig:"SINK" default:"memory"`
	PostgresDSN  string        `envconfig:"POSTGRES_DSN"`
	KafkaBrokers []string      `envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string        `envconfig:"KAFKA_TOPIC" default:"download-audit"`
	Timeout      time.Duration `envconfig:"TIMEOUT" default:"3s"`
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate rejects configurations the gateway cannot run with.
func (c *Config) Validate() error {
	var errs []error
	positive := map[string]time.Duration{
		"RATELIMIT_VERIFY_WINDOW":   c.RateLimit.VerifyWindow,
		"RATELIMIT_DOWNLOAD_WINDOW": c.RateLimit.DownloadWindow,
		"SESSION_TTL":               c.Session.TTL,
		"FRESHNESS_SKEW_WINDOW":     c.Freshness.SkewWindow,
		"DOWNLOAD_URL_TTL":          c.Download.URLTTL,
		"DOWNLOAD_SIGN_TIMEOUT":     c.Download.SignTimeout,
		"LICENSE_TIMEOUT":           c.License.Timeout,
		"AUDIT_TIMEOUT":             c.Audit.Timeout,
	}
	for name, d := range positive {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.RateLimit.VerifyLimit <= 0 || c.RateLimit.DownloadLimit <= 0 {
		errs = append(errs, errors.New("rate limits must be positive"))
	}
	if !oneOf(c.License.Driver, "sqlite", "postgres", "memory") {
		errs = append(errs, fmt.Errorf("unknown license driver %q", c.License.Driver))
	}
	if !oneOf(c.RateLimit.Backend, "memory", "redis") {
		errs = append(errs, fmt.Errorf("unknown rate limit backend %q", c.RateLimit.Backend))
	}
	if !oneOf(c.Freshness.Backend, "memory", "redis") {
		errs = append(errs, fmt.Errorf("unknown freshness backend %q", c.Freshness.Backend))
	}
	if (c.RateLimit.Backend == "redis" || c.Freshness.Backend == "redis") && c.Redis.URL == "" {
		errs = append(errs, errors.New("REDIS_URL is required for redis backends"))
	}
	if !oneOf(c.Blob.Backend, "s3", "memory") {
		errs = append(errs, fmt.Errorf("unknown blob backend %q", c.Blob.Backend))
	}
	switch c.Audit.Sink {
	case "memory":
	case "postgres":
		if c.Audit.PostgresDSN == "" {
			errs = append(errs, errors.New("AUDIT_POSTGRES_DSN is required for the postgres sink"))
		}
	case "kafka":
		if len(c.Audit.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("AUDIT_KAFKA_BROKERS is required for the kafka sink"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown audit sink %q", c.Audit.Sink))
	}
	return errors.Join(errs...)
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}
