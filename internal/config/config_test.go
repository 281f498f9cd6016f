package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATASET_PATH", "")
	t.Setenv("DATASET_SOURCE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != "8000" {
		t.Errorf("expected default port 8000, got %s", cfg.Port)
	}
	if cfg.RateLimitRPS != 50 || cfg.RateLimitBurst != 100 {
		t.Errorf("expected rate limit 50/100, got %v/%d", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	if cfg.DashboardCacheSize != 256 {
		t.Errorf("expected cache size 256, got %d", cfg.DashboardCacheSize)
	}
	if cfg.RequestTimeout != 15*time.Second {
		t.Errorf("expected 15s timeout, got %s", cfg.RequestTimeout)
	}
	if cfg.DatasetSchema != "public" {
		t.Errorf("expected schema public, got %s", cfg.DatasetSchema)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("DATASET_PATH", "/srv/hf.xlsx")
	t.Setenv("DATASET_SOURCE", " XLSX ")
	t.Setenv("DASHBOARD_CACHE_SIZE", "16")
	t.Setenv("REQUEST_TIMEOUT", "2s")
	t.Setenv("CORS_ORIGINS", "http://a.example,http://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DatasetPath != "/srv/hf.xlsx" {
		t.Errorf("expected DATASET_PATH from env, got %s", cfg.DatasetPath)
	}
	if cfg.DatasetSource != "xlsx" {
		t.Errorf("expected normalized source xlsx, got %q", cfg.DatasetSource)
	}
	if cfg.DashboardCacheSize != 16 {
		t.Errorf("expected cache size 16, got %d", cfg.DashboardCacheSize)
	}
	if cfg.RequestTimeout != 2*time.Second {
		t.Errorf("expected 2s, got %s", cfg.RequestTimeout)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Errorf("expected 2 CORS origins, got %v", cfg.CORSOrigins)
	}
}

func TestConfig_IsDev(t *testing.T) {
	c := &Config{Env: "development"}
	if !c.IsDev() {
		t.Error("expected IsDev() to return true for development")
	}

	c.Env = "production"
	if c.IsDev() {
		t.Error("expected IsDev() to return false for production")
	}
}

func validConfig() *Config {
	return &Config{
		Env:                "development",
		DatasetPath:        DefaultDatasetPath,
		DBMaxConns:         4,
		DBMinConns:         1,
		RateLimitRPS:       50,
		RateLimitBurst:     100,
		DashboardCacheSize: 256,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid dev", func(*Config) {}, ""},
		{"postgres without url", func(c *Config) { c.DatasetSource = "postgres" }, "DATABASE_URL"},
		{"postgres with url", func(c *Config) {
			c.DatasetSource = "postgres"
			c.DatabaseURL = "postgres://localhost/hf"
		}, ""},
		{"unknown source", func(c *Config) { c.DatasetSource = "parquet" }, "DATASET_SOURCE"},
		{"no path", func(c *Config) { c.DatasetPath = "" }, "DATASET_PATH"},
		{"production without key", func(c *Config) { c.Env = "production" }, "AUTH_SIGNING_KEY"},
		{"short key", func(c *Config) { c.AuthSigningKey = "short" }, "at least 32"},
		{"production with key", func(c *Config) {
			c.Env = "production"
			c.AuthSigningKey = strings.Repeat("k", 32)
		}, ""},
		{"negative cache", func(c *Config) { c.DashboardCacheSize = -1 }, "DASHBOARD_CACHE_SIZE"},
		{"negative rate", func(c *Config) { c.RateLimitRPS = -1 }, "RATE_LIMIT"},
		{"min over max conns", func(c *Config) { c.DBMinConns = 10 }, "DB_MIN_CONNS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
