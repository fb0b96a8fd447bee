package database

import (
	"time"

	"finsight/internal/config"
)

// Config holds database connection settings.
type Config struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsDir   string
}

// NewConfig derives the database configuration from the application config.
func NewConfig(cfg *config.Config) *Config {
	maxOpen := cfg.DBMaxOpenConns
	if maxOpen < 1 {
		maxOpen = 25
	}
	return &Config{
		URL:             cfg.DatabaseURL,
		MaxOpenConns:    maxOpen,
		MaxIdleConns:    maxOpen / 2,
		ConnMaxLifetime: time.Hour,
		MigrationsDir:   "migrations",
	}
}

// DSN returns the PostgreSQL connection string
func (c *Config) DSN() string {
	return c.URL
}
