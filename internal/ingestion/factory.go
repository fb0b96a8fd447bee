// Package ingestion fetches provider data for one or many tickers and stores
// it under the period-record natural key.
package ingestion

import (
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"finsight/internal/config"
	apperrors "finsight/internal/errors"
	"finsight/internal/logger"
	"finsight/internal/normalize"
	"finsight/internal/observability"
	"finsight/internal/provider"
	"finsight/internal/ratelimit"
	"finsight/internal/services"
	"finsight/internal/transport"
)

// Shared-store keys. Every process that talks to the same provider account
// must use the same limiter key.
const (
	LimiterKey  = "fmp_api"
	CachePrefix = "fmp_cache"
)

// FactoryOptions configures NewFactory.
type FactoryOptions struct {
	DB       *gorm.DB
	Registry *provider.Registry
	Provider string
	Settings config.ProviderSettings

	// Limiter and Store are shared by every task; all other collaborators are
	// rebuilt per task.
	Limiter transport.Waiter
	Store   redis.Cmdable
	Client  transport.ClientOptions

	FetchProfiles bool
	Metrics       *observability.Metrics
	Now           func() time.Time
}

// Factory builds fresh Tasks. It is safe for concurrent use.
type Factory struct {
	opts FactoryOptions
}

// NewFactory validates opts and fills defaults.
func NewFactory(opts FactoryOptions) (*Factory, error) {
	if opts.DB == nil {
		return nil, apperrors.WithMessage(apperrors.ErrConfiguration, "ingestion requires a database")
	}
	if opts.Limiter == nil || opts.Store == nil {
		return nil, apperrors.WithMessage(apperrors.ErrConfiguration, "ingestion requires a shared limiter and cache store")
	}
	if opts.Registry == nil {
		opts.Registry = provider.DefaultRegistry()
	}
	if opts.Provider == "" {
		opts.Provider = config.DefaultProvider
	}
	if opts.Client.LimiterKey == "" {
		opts.Client.LimiterKey = LimiterKey
	}
	if opts.Client.CachePrefix == "" {
		opts.Client.CachePrefix = CachePrefix
	}
	if opts.Client.Metrics == nil {
		opts.Client.Metrics = opts.Metrics
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Factory{opts: opts}, nil
}

// FromConfig wires a Factory from application configuration. The limiter is
// sized from the default provider's quota.
func FromConfig(cfg *config.Config, db *gorm.DB, rdb redis.Cmdable, metrics *observability.Metrics) (*Factory, error) {
	settings, err := cfg.Provider(config.DefaultProvider)
	if err != nil {
		return nil, err
	}

	limiter := ratelimit.New(rdb, ratelimit.Settings{
		MaxTokens:      settings.RateLimit,
		RefillAmount:   settings.RequestsPerMinute,
		RefillInterval: cfg.RefillInterval,
	}, ratelimit.WithMetrics(metrics))

	return NewFactory(FactoryOptions{
		DB:       db,
		Provider: config.DefaultProvider,
		Settings: settings,
		Limiter:  limiter,
		Store:    rdb,
		Client: transport.ClientOptions{
			PollInterval: cfg.PollInterval,
			CacheTTL:     cfg.CacheTTL,
			Timeout:      cfg.HTTPTimeout,
		},
		FetchProfiles: cfg.FetchProfiles,
		Metrics:       metrics,
	})
}

// NewTask builds a task with its own HTTP client, normalizer, adapter and
// services. Only the limiter counters and the cache store are shared.
func (f *Factory) NewTask() (*Task, error) {
	o := f.opts

	client := transport.NewClient(o.Limiter, o.Store, o.Client)
	normalizer := normalize.New(normalize.WithClock(o.Now), normalize.WithMetrics(o.Metrics))

	adapter, err := o.Registry.New(o.Provider, provider.Deps{
		Settings:   o.Settings,
		Client:     client,
		Normalizer: normalizer,
		Metrics:    o.Metrics,
	})
	if err != nil {
		return nil, err
	}

	records := services.NewFinancialDataService(o.DB, o.Metrics)
	return &Task{
		adapter:       adapter,
		records:       records,
		companies:     services.NewCompanyService(o.DB, records),
		completeness:  services.NewCompletenessService(o.DB, o.Now),
		fetchProfiles: o.FetchProfiles,
		now:           o.Now,
		log:           logger.Named("ingestion"),
	}, nil
}

// Now returns the factory's clock reading.
func (f *Factory) Now() time.Time { return f.opts.Now() }
