package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	apperrors "finsight/internal/errors"
)

// Config holds application configuration. It is built once by Load and
// passed explicitly to every component that needs it.
type Config struct {
	Env      string
	LogLevel string

	// Server
	Port   string
	APIKey string

	// Database
	DatabaseURL    string
	DBMaxOpenConns int

	// Shared limiter and cache store
	RedisURL string

	// Upstream providers keyed by registry name.
	Providers map[string]ProviderSettings

	// Transport stack
	RefillInterval time.Duration
	PollInterval   time.Duration
	CacheTTL       time.Duration
	HTTPTimeout    time.Duration

	// Ingestion
	Concurrency   int
	FetchProfiles bool

	MetricsNamespace string
}

// ProviderSettings holds credentials and quota for one upstream provider.
type ProviderSettings struct {
	APIKey            string
	BaseURL           string
	RateLimit         int64 // bucket capacity
	RequestsPerMinute int64 // tokens added per refill interval
}

// DefaultProvider is the provider used when none is named.
const DefaultProvider = "fmp"

// Load loads configuration from environment variables, validating required
// values. A missing or invalid credential or database URL returns
// ErrConfiguration.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}
	return FromEnv()
}

// FromEnv builds the configuration from the current process environment
// without touching .env files.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Env:              getEnv("ENV", "development"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		Port:             getEnv("PORT", "8080"),
		APIKey:           os.Getenv("API_KEY"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         getEnv("REDIS_URL", "redis://localhost:6379/0"),
		MetricsNamespace: getEnv("METRICS_NAMESPACE", "finsight"),
	}

	if err := validateDatabaseURL(cfg.DatabaseURL); err != nil {
		return nil, err
	}
	if _, err := url.Parse(cfg.RedisURL); err != nil {
		return nil, configError("REDIS_URL is not a valid URL: %v", err)
	}

	fmp, err := loadFMP()
	if err != nil {
		return nil, err
	}
	cfg.Providers = map[string]ProviderSettings{DefaultProvider: fmp}

	if cfg.DBMaxOpenConns, err = parseInt("DB_MAX_OPEN_CONNS", 25); err != nil {
		return nil, err
	}
	if cfg.RefillInterval, err = parseDuration("RATE_LIMIT_REFILL_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = parseDuration("RATE_LIMIT_POLL_INTERVAL", time.Second); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = parseDuration("CACHE_TTL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = parseDuration("HTTP_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.Concurrency, err = parseInt("INGEST_CONCURRENCY", 10); err != nil {
		return nil, err
	}
	if cfg.Concurrency < 1 {
		return nil, configError("INGEST_CONCURRENCY must be at least 1, got %d", cfg.Concurrency)
	}
	if cfg.FetchProfiles, err = parseBool("INGEST_FETCH_PROFILES", false); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Provider returns the settings for the named provider.
func (c *Config) Provider(name string) (ProviderSettings, error) {
	p, ok := c.Providers[name]
	if !ok {
		return ProviderSettings{}, configError("no settings for provider %q", name)
	}
	return p, nil
}

func loadFMP() (ProviderSettings, error) {
	s := ProviderSettings{
		APIKey:  os.Getenv("FMP_API_KEY"),
		BaseURL: getEnv("FMP_BASE_URL", "https://financialmodelingprep.com/stable"),
	}
	if strings.TrimSpace(s.APIKey) == "" {
		return s, configError("FMP_API_KEY is required")
	}

	rate, err := parseInt("FMP_RATE_LIMIT", 300)
	if err != nil {
		return s, err
	}
	rpm, err := parseInt("FMP_REQUESTS_PER_MINUTE", 300)
	if err != nil {
		return s, err
	}
	if rate < 1 || rpm < 1 {
		return s, configError("FMP_RATE_LIMIT and FMP_REQUESTS_PER_MINUTE must be positive")
	}
	s.RateLimit = int64(rate)
	s.RequestsPerMinute = int64(rpm)
	return s, nil
}

func validateDatabaseURL(raw string) error {
	if raw == "" {
		return configError("DATABASE_URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return configError("DATABASE_URL is not a valid URL: %v", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return configError("DATABASE_URL must use the postgres scheme, got %q", u.Scheme)
	}
	return nil
}

func configError(format string, args ...any) error {
	return apperrors.WithMessagef(apperrors.ErrConfiguration, format, args...)
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, configError("invalid %s %q: %v", key, v, err)
	}
	if d <= 0 {
		return 0, configError("%s must be positive, got %s", key, v)
	}
	return d, nil
}

func parseInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, configError("invalid %s %q: %v", key, v, err)
	}
	return n, nil
}

func parseBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, configError("invalid %s %q: %v", key, v, err)
	}
	return b, nil
}

// String renders the configuration with secrets masked, for startup logs.
func (c *Config) String() string {
	return fmt.Sprintf("env=%s port=%s providers=%d concurrency=%d cache_ttl=%s refill_interval=%s",
		c.Env, c.Port, len(c.Providers), c.Concurrency, c.CacheTTL, c.RefillInterval)
}
