package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// WorkerConfig controls the job pollers and the settlement simulation.
type WorkerConfig struct {
	PollInterval    time.Duration `mapstructure:"poll_interval"`     // per-queue tick period
	StaggerDelay    time.Duration `mapstructure:"stagger_delay"`     // initial offset between queue pollers
	HeartbeatTTL    time.Duration `mapstructure:"heartbeat_ttl"`     // liveness key expiry
	JobStatusTTL    time.Duration `mapstructure:"job_status_ttl"`    // ledger entry retention
	TestMode        bool          `mapstructure:"test_mode"`         // deterministic outcomes + fixed delay
	TestSuccess     bool          `mapstructure:"test_success"`      // forced payment outcome in test mode
	TestProcessTime time.Duration `mapstructure:"test_process_time"` // fixed settlement delay in test mode
}

// WebhookConfig controls outbound delivery and the retry scheduler.
type WebhookConfig struct {
	Timeout           time.Duration `mapstructure:"timeout"` // socket timeout per delivery attempt
	MaxAttempts       int           `mapstructure:"max_attempts"`
	RetryTestMode     bool          `mapstructure:"retry_test_mode"`    // use the short backoff table
	SchedulerInterval time.Duration `mapstructure:"scheduler_interval"` // retry scan period
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: APG_ (Async Payment Gateway).
// Nested keys use underscore: APG_DATABASE_HOST, APG_WORKER_TEST_MODE, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "payment_gateway")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("worker.poll_interval", "500ms")
	v.SetDefault("worker.stagger_delay", "500ms")
	v.SetDefault("worker.heartbeat_ttl", "30s")
	v.SetDefault("worker.job_status_ttl", "24h")
	v.SetDefault("worker.test_mode", false)
	v.SetDefault("worker.test_success", true)
	v.SetDefault("worker.test_process_time", "1s")
	v.SetDefault("webhook.timeout", "5s")
	v.SetDefault("webhook.max_attempts", 5)
	v.SetDefault("webhook.retry_test_mode", false)
	v.SetDefault("webhook.scheduler_interval", "10s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: APG_DATABASE_HOST -> database.host
	v.SetEnvPrefix("APG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required — env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
