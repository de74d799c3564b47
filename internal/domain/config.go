package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Environment    string               `mapstructure:"environment"`
	Nomenclature   NomenclatureConfig   `mapstructure:"nomenclature"`
	Storage        StorageConfig        `mapstructure:"storage"`
	Cache          CacheConfig          `mapstructure:"cache"`
	AmbiguityCodes AmbiguityCodesConfig `mapstructure:"ambiguity_codes"`
	Logging        LoggingConfig        `mapstructure:"logging"`
}

// NomenclatureConfig selects the reference data release used by default
type NomenclatureConfig struct {
	DefaultVersion string `mapstructure:"default_version"`
}

// StorageConfig selects and configures the raw fact repository
type StorageConfig struct {
	Driver         string         `mapstructure:"driver"` // "sqlite", "postgres"
	SQLitePath     string         `mapstructure:"sqlite_path"`
	MigrationsPath string         `mapstructure:"migrations_path"`
	Postgres       DatabaseConfig `mapstructure:"postgres"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// CacheConfig represents cache configuration. An empty RedisURL disables the shared tier.
type CacheConfig struct {
	MemorySize  int           `mapstructure:"memory_size"`
	RedisURL    string        `mapstructure:"redis_url"`
	KeyPrefix   string        `mapstructure:"key_prefix"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
}

// AmbiguityCodesConfig configures the MAC dictionary. FilePath takes precedence over BaseURL.
type AmbiguityCodesConfig struct {
	FilePath        string        `mapstructure:"file_path"`
	BaseURL         string        `mapstructure:"base_url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	RateLimit       int           `mapstructure:"rate_limit"`
	BreakerRequests uint32        `mapstructure:"breaker_requests"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
