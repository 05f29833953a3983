// Package ops loads the process configuration.
package ops

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"positionmonitor/pkg/conn"
)

const (
	QuoteFeedRedis = "redis"
	QuoteFeedWS    = "ws"
	QuoteFeedNone  = "none"
)

// Config is the full process configuration.
type Config struct {
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	QuoteFeed QuoteFeedConfig `mapstructure:"quotefeed"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Snapshot  SnapshotConfig  `mapstructure:"snapshot"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Pyroscope PyroscopeConfig `mapstructure:"pyroscope"`
}

type MonitorConfig struct {
	Interval          time.Duration `mapstructure:"interval"`
	AccountLimit      int           `mapstructure:"account_limit"`
	WaitForFirstCycle bool          `mapstructure:"wait_for_first_cycle"`
}

type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"sslmode"`
	ConnString      string        `mapstructure:"conn_string"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SlowQuery       time.Duration `mapstructure:"slow_query"`
}

// QuoteFeedConfig selects the quote transport. Kind is redis, ws or none.
type QuoteFeedConfig struct {
	Kind          string        `mapstructure:"kind"`
	URL           string        `mapstructure:"url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	ChannelPrefix string        `mapstructure:"channel_prefix"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// KafkaConfig enables the kafka snapshot sink when Brokers is set.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type SnapshotConfig struct {
	// Dir enables the file sink when set.
	Dir       string `mapstructure:"dir"`
	QueueSize int    `mapstructure:"queue_size"`
	Store     bool   `mapstructure:"store"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// PyroscopeConfig enables profiling when ServerAddress is set.
type PyroscopeConfig struct {
	ServerAddress   string `mapstructure:"server_address"`
	ApplicationName string `mapstructure:"application_name"`
}

var defaults = map[string]any{
	"monitor.interval":             "5s",
	"monitor.account_limit":        0,
	"monitor.wait_for_first_cycle": false,

	"postgres.host":              "localhost",
	"postgres.port":              5432,
	"postgres.user":              "",
	"postgres.password":          "",
	"postgres.database":          "positions",
	"postgres.sslmode":           "disable",
	"postgres.conn_string":       "",
	"postgres.max_open_conns":    10,
	"postgres.max_idle_conns":    2,
	"postgres.conn_max_lifetime": "30m",
	"postgres.slow_query":        "200ms",

	"quotefeed.kind":           QuoteFeedRedis,
	"quotefeed.url":            "",
	"quotefeed.timeout":        "5s",
	"quotefeed.channel_prefix": "prices.",

	"redis.addr":         "localhost:6379",
	"redis.password":     "",
	"redis.db":           0,
	"redis.dial_timeout": "5s",

	"kafka.brokers": []string{},
	"kafka.topic":   "portfolio_snapshots",

	"snapshot.dir":        "",
	"snapshot.queue_size": 64,
	"snapshot.store":      true,

	"http.addr": ":8080",

	"pyroscope.server_address":   "",
	"pyroscope.application_name": "position-monitor",
}

// Load reads path when set, then .env, then the environment. Env keys are
// the upper-cased config keys with "." replaced by "_", e.g. MONITOR_INTERVAL.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil {
		logs.Info("no .env file found, relying on environment variables")
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrap(err, "read config file").With("path", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) withDefaults() Config {
	if c.Monitor.Interval == 0 {
		c.Monitor.Interval = 5 * time.Second
	}
	if c.QuoteFeed.Kind == "" {
		c.QuoteFeed.Kind = QuoteFeedRedis
	}
	c.QuoteFeed.Kind = strings.ToLower(c.QuoteFeed.Kind)
	if c.Snapshot.QueueSize == 0 {
		c.Snapshot.QueueSize = 64
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	var brokers []string
	for _, b := range c.Kafka.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	c.Kafka.Brokers = brokers
	return c
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	if c.Monitor.Interval <= 0 {
		return errors.New("invalid config: monitor.interval must be > 0")
	}
	if c.Monitor.AccountLimit < 0 {
		return errors.New("invalid config: monitor.account_limit must be >= 0")
	}
	if c.Postgres.ConnString == "" && c.Postgres.Host == "" {
		return errors.New("invalid config: postgres.host is empty")
	}
	switch c.QuoteFeed.Kind {
	case QuoteFeedRedis:
		if c.Redis.Addr == "" {
			return errors.New("invalid config: redis.addr is empty")
		}
	case QuoteFeedWS:
		if c.QuoteFeed.URL == "" {
			return errors.New("invalid config: quotefeed.url is empty")
		}
	case QuoteFeedNone:
	default:
		return errors.Errorf("invalid config: unknown quotefeed.kind %q", c.QuoteFeed.Kind)
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return errors.New("invalid config: kafka.topic is empty")
	}
	if c.Snapshot.QueueSize <= 0 {
		return errors.New("invalid config: snapshot.queue_size must be > 0")
	}
	return nil
}

// Option converts the section into a connection option.
func (c PostgresConfig) Option() conn.Option {
	return conn.Option{
		Host:            c.Host,
		Port:            c.Port,
		User:            c.User,
		Password:        c.Password,
		Database:        c.Database,
		SSLMode:         c.SSLMode,
		ConnString:      c.ConnString,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
		SlowQuery:       c.SlowQuery,
	}
}

func (c RedisConfig) Option() conn.RedisOption {
	return conn.RedisOption{
		Addr:        c.Addr,
		Password:    c.Password,
		DB:          c.DB,
		DialTimeout: c.DialTimeout,
	}
}
