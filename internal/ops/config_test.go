package ops

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Monitor.Interval)
	assert.Equal(t, QuoteFeedRedis, cfg.QuoteFeed.Kind)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, 30*time.Minute, cfg.Postgres.ConnMaxLifetime)
	assert.Equal(t, 64, cfg.Snapshot.QueueSize)
	assert.True(t, cfg.Snapshot.Store)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("MONITOR_INTERVAL", "250ms")
	t.Setenv("MONITOR_ACCOUNT_LIMIT", "3")
	t.Setenv("QUOTEFEED_KIND", "WS")
	t.Setenv("QUOTEFEED_URL", "ws://quotes:9000/stream")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.Monitor.Interval)
	assert.Equal(t, 3, cfg.Monitor.AccountLimit)
	assert.Equal(t, QuoteFeedWS, cfg.QuoteFeed.Kind)
	assert.Equal(t, "ws://quotes:9000/stream", cfg.QuoteFeed.URL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
monitor:
  interval: 1s
  wait_for_first_cycle: true
postgres:
  host: db.internal
  database: risk
snapshot:
  dir: /var/lib/snapshots
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.Monitor.Interval)
	assert.True(t, cfg.Monitor.WaitForFirstCycle)
	assert.Equal(t, "db.internal", cfg.Postgres.Option().Host)
	assert.Equal(t, "risk", cfg.Postgres.Option().Database)
	assert.Equal(t, "/var/lib/snapshots", cfg.Snapshot.Dir)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Monitor:   MonitorConfig{Interval: time.Second},
			Postgres:  PostgresConfig{Host: "localhost"},
			QuoteFeed: QuoteFeedConfig{Kind: QuoteFeedRedis},
			Redis:     RedisConfig{Addr: "localhost:6379"},
			Snapshot:  SnapshotConfig{QueueSize: 1},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "no feed", mutate: func(c *Config) { c.QuoteFeed.Kind = QuoteFeedNone; c.Redis.Addr = "" }},
		{name: "zero interval", mutate: func(c *Config) { c.Monitor.Interval = 0 }, wantErr: true},
		{name: "negative limit", mutate: func(c *Config) { c.Monitor.AccountLimit = -1 }, wantErr: true},
		{name: "no postgres host", mutate: func(c *Config) { c.Postgres.Host = "" }, wantErr: true},
		{name: "conn string only", mutate: func(c *Config) { c.Postgres.Host = ""; c.Postgres.ConnString = "postgres://db" }},
		{name: "redis without addr", mutate: func(c *Config) { c.Redis.Addr = "" }, wantErr: true},
		{name: "ws without url", mutate: func(c *Config) { c.QuoteFeed.Kind = QuoteFeedWS }, wantErr: true},
		{name: "unknown feed", mutate: func(c *Config) { c.QuoteFeed.Kind = "grpc" }, wantErr: true},
		{name: "kafka without topic", mutate: func(c *Config) { c.Kafka.Brokers = []string{"k1:9092"} }, wantErr: true},
		{name: "zero queue", mutate: func(c *Config) { c.Snapshot.QueueSize = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
