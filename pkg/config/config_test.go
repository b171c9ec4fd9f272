package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 || cfg.Search.QueueSize != 64 || cfg.Search.DateDetection != "type" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.Kafka.Topics.DatasetChanged != "dataset-changed" {
		t.Errorf("dataset topic = %q", cfg.Kafka.Topics.DatasetChanged)
	}
	if cfg.Source.Default != "postgres" || cfg.Source.FactoryColumn != "factory" {
		t.Errorf("source = %+v", cfg.Source)
	}
	if cfg.Analytics.BatchSize != 100 || cfg.Analytics.FlushInterval != 5*time.Second {
		t.Errorf("analytics = %+v", cfg.Analytics)
	}
}

func TestLoadYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
server:
  port: 8181
search:
  queueSize: 16
  dateDetection: name
  timezone: UTC
  requestTimeout: 2s
redis:
  enabled: true
  snapshotKeyPrefix: "snap:"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SP_SERVER_PORT", "9191")
	t.Setenv("SP_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("SP_SEARCH_CACHE_MAX_ENTRIES", "500")
	t.Setenv("SP_SERVER_CORS_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("SP_SERVER_RATE_LIMIT", "120")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9191 {
		t.Errorf("port = %d, env should win", cfg.Server.Port)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.RateLimit != 120 {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Search.QueueSize != 16 || cfg.Search.DateDetection != "name" {
		t.Errorf("search = %+v", cfg.Search)
	}
	if cfg.Search.RequestTimeout != 2*time.Second {
		t.Errorf("requestTimeout = %v", cfg.Search.RequestTimeout)
	}
	if cfg.Search.CacheMaxEntries != 500 {
		t.Errorf("cacheMaxEntries = %d", cfg.Search.CacheMaxEntries)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("brokers = %v", cfg.Kafka.Brokers)
	}
	if !cfg.Redis.Enabled || cfg.Redis.SnapshotKeyPrefix != "snap:" {
		t.Errorf("redis = %+v", cfg.Redis)
	}
	if cfg.Postgres.Host != "localhost" {
		t.Errorf("unset sections should keep defaults, host = %q", cfg.Postgres.Host)
	}
	loc, err := cfg.Search.Location()
	if err != nil || loc != time.UTC {
		t.Errorf("Location() = %v, %v", loc, err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"bad queue", func(c *Config) { c.Search.QueueSize = 0 }},
		{"negative rate limit", func(c *Config) { c.Server.RateLimit = -1 }},
		{"bad detection", func(c *Config) { c.Search.DateDetection = "guess" }},
		{"bad timezone", func(c *Config) { c.Search.Timezone = "Mars/Olympus" }},
		{"bad source", func(c *Config) { c.Source.Default = "mongo" }},
		{"kafka without brokers", func(c *Config) {
			c.Kafka.Enabled = true
			c.Kafka.Brokers = nil
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5433, User: "u", Password: "p", Database: "d", SSLMode: "require"}
	want := "host=db port=5433 user=u password=p dbname=d sslmode=require"
	if p.DSN() != want {
		t.Errorf("DSN() = %q", p.DSN())
	}
}

func TestLoadDevelopmentConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "development.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Postgres.Enabled || cfg.Kafka.Enabled || cfg.Redis.Enabled {
		t.Error("development config should not need external services")
	}
	if cfg.Search.Timezone != "Asia/Kolkata" || cfg.Source.DispatchView != "dispatches" {
		t.Errorf("search = %+v, source = %+v", cfg.Search, cfg.Source)
	}
}
