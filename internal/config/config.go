package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultDatasetPath is where the cleaned workbook is expected when
// DATASET_PATH is not set.
const DefaultDatasetPath = "data/Cardiacfailure_cleaned.xlsx"

type Config struct {
	Port               string        `mapstructure:"PORT"`
	Env                string        `mapstructure:"ENV"`
	LogLevel           string        `mapstructure:"LOG_LEVEL"`
	DatasetPath        string        `mapstructure:"DATASET_PATH"`
	DatasetSource      string        `mapstructure:"DATASET_SOURCE"`
	DatabaseURL        string        `mapstructure:"DATABASE_URL"`
	DatasetSchema      string        `mapstructure:"DATASET_SCHEMA"`
	DBMaxConns         int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns         int32         `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins        []string      `mapstructure:"CORS_ORIGINS"`
	AuthSigningKey     string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer         string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience       string        `mapstructure:"AUTH_AUDIENCE"`
	RateLimitRPS       float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst     int           `mapstructure:"RATE_LIMIT_BURST"`
	DashboardCacheSize int           `mapstructure:"DASHBOARD_CACHE_SIZE"`
	RequestTimeout     time.Duration `mapstructure:"REQUEST_TIMEOUT"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DATASET_PATH", DefaultDatasetPath)
	v.SetDefault("DATASET_SOURCE", "") // inferred from DATASET_PATH
	v.SetDefault("DATASET_SCHEMA", "public")
	v.SetDefault("DB_MAX_CONNS", 4)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("CORS_ORIGINS", "http://localhost:8501")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("DASHBOARD_CACHE_SIZE", 256)
	v.SetDefault("REQUEST_TIMEOUT", "15s")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "LOG_LEVEL",
		"DATASET_PATH", "DATASET_SOURCE", "DATABASE_URL", "DATASET_SCHEMA",
		"DB_MAX_CONNS", "DB_MIN_CONNS", "CORS_ORIGINS",
		"AUTH_SIGNING_KEY", "AUTH_ISSUER", "AUTH_AUDIENCE",
		"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "DASHBOARD_CACHE_SIZE", "REQUEST_TIMEOUT",
	} {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	if cfg.CORSOrigins == nil {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}
	cfg.DatasetSource = strings.ToLower(strings.TrimSpace(cfg.DatasetSource))

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// UsesPostgres reports whether the dataset is read from a database.
func (c *Config) UsesPostgres() bool {
	return c.DatasetSource == "postgres"
}

// Validate checks that the configuration is safe to run. Outside development
// AUTH_SIGNING_KEY must be set so that bearer tokens are enforced.
func (c *Config) Validate() error {
	switch c.DatasetSource {
	case "", "xlsx", "csv", "postgres":
	default:
		return fmt.Errorf("DATASET_SOURCE must be \"xlsx\", \"csv\" or \"postgres\", got %q", c.DatasetSource)
	}
	if c.UsesPostgres() && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required when DATASET_SOURCE is \"postgres\"")
	}
	if !c.UsesPostgres() && c.DatasetPath == "" {
		return fmt.Errorf("DATASET_PATH is required")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}

	if !c.IsDev() && c.AuthSigningKey == "" {
		return fmt.Errorf(
			"AUTH_SIGNING_KEY must be set when ENV=%q. "+
				"Refusing to start without authentication configuration", c.Env)
	}
	if c.AuthSigningKey != "" && len(c.AuthSigningKey) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 characters, got %d", len(c.AuthSigningKey))
	}

	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be non-negative")
	}
	if c.DashboardCacheSize < 0 {
		return fmt.Errorf("DASHBOARD_CACHE_SIZE must be non-negative, got %d", c.DashboardCacheSize)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be non-negative, got %s", c.RequestTimeout)
	}
	return nil
}
