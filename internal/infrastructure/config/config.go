// Package config loads service configuration from config.toml, .env and
// STOCKLEDGER_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App            AppConfig
	Log            LogConfig
	Database       DatabaseConfig
	Redis          RedisConfig
	Kafka          KafkaConfig
	Ledger         LedgerConfig
	HTTP           HTTPConfig
	Reconciliation ReconciliationConfig
}

type AppConfig struct {
	Name string
	Env  string
	Port string
}

type LogConfig struct {
	Level       string // debug, info, warn, error
	Development bool
}

type DatabaseConfig struct {
	// URL is a PostgreSQL connection string. Empty selects the in-memory store.
	URL             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	// StatementTimeout caps each statement of a ledger write; zero keeps the server default.
	StatementTimeout time.Duration
	// AutoMigrate applies pending migrations on startup.
	AutoMigrate bool
}

type RedisConfig struct {
	// Addr is host:port. Empty disables the snapshot cache.
	Addr              string
	Password          string
	DB                int
	TTL               time.Duration
	CompressThreshold int
}

type KafkaConfig struct {
	Brokers        []string
	GroupID        string
	MovementsTopic string
	ResetsTopic    string
	MinBytes       int
	MaxBytes       int
	MaxWait        time.Duration
}

type LedgerConfig struct {
	// ClockSkew is how far in the future a movement or reset may be stamped.
	ClockSkew time.Duration
	PageSize  int
	// Workers bounds per-product fan-out of catalog-wide queries.
	Workers int
}

type HTTPConfig struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// QueryTimeout is the deadline given to every report request.
	QueryTimeout time.Duration
}

type ReconciliationConfig struct {
	// FiscalRule and PhysicalRule are CEL expressions over a movement.
	FiscalRule   string
	PhysicalRule string
}

// UseMemory reports whether the in-memory store is selected.
func (c *Config) UseMemory() bool {
	return c.Database.URL == ""
}

// Load reads configuration.
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/stockledger")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("STOCKLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Log: LogConfig{
			Level:       v.GetString("log.level"),
			Development: v.GetBool("log.development"),
		},
		Database: DatabaseConfig{
			URL:              v.GetString("database.url"),
			MaxConns:         v.GetInt32("database.max_conns"),
			MinConns:         v.GetInt32("database.min_conns"),
			MaxConnLifetime:  v.GetDuration("database.max_conn_lifetime"),
			MaxConnIdleTime:  v.GetDuration("database.max_conn_idle_time"),
			StatementTimeout: v.GetDuration("database.statement_timeout"),
			AutoMigrate:      v.GetBool("database.auto_migrate"),
		},
		Redis: RedisConfig{
			Addr:              v.GetString("redis.addr"),
			Password:          v.GetString("redis.password"),
			DB:                v.GetInt("redis.db"),
			TTL:               v.GetDuration("redis.ttl"),
			CompressThreshold: v.GetInt("redis.compress_threshold"),
		},
		Kafka: KafkaConfig{
			Brokers:        v.GetStringSlice("kafka.brokers"),
			GroupID:        v.GetString("kafka.group_id"),
			MovementsTopic: v.GetString("kafka.movements_topic"),
			ResetsTopic:    v.GetString("kafka.resets_topic"),
			MinBytes:       v.GetInt("kafka.min_bytes"),
			MaxBytes:       v.GetInt("kafka.max_bytes"),
			MaxWait:        v.GetDuration("kafka.max_wait"),
		},
		Ledger: LedgerConfig{
			ClockSkew: v.GetDuration("ledger.clock_skew"),
			PageSize:  v.GetInt("ledger.page_size"),
			Workers:   v.GetInt("ledger.workers"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:  v.GetDuration("http.read_timeout"),
			WriteTimeout: v.GetDuration("http.write_timeout"),
			IdleTimeout:  v.GetDuration("http.idle_timeout"),
			QueryTimeout: v.GetDuration("http.query_timeout"),
		},
		Reconciliation: ReconciliationConfig{
			FiscalRule:   v.GetString("reconciliation.fiscal_rule"),
			PhysicalRule: v.GetString("reconciliation.physical_rule"),
		},
	}

	// Comma-separated env value arrives as a single element.
	if len(cfg.Kafka.Brokers) == 1 && strings.Contains(cfg.Kafka.Brokers[0], ",") {
		cfg.Kafka.Brokers = strings.Split(cfg.Kafka.Brokers[0], ",")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "stockledger")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", time.Hour)
	v.SetDefault("database.max_conn_idle_time", 30*time.Minute)
	v.SetDefault("database.statement_timeout", 30*time.Second)
	v.SetDefault("database.auto_migrate", false)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", time.Hour)
	v.SetDefault("redis.compress_threshold", 1024)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.group_id", "stockledger")
	v.SetDefault("kafka.movements_topic", "stock.movement")
	v.SetDefault("kafka.resets_topic", "stock.reset")
	v.SetDefault("kafka.min_bytes", 1)
	v.SetDefault("kafka.max_bytes", 10<<20)
	v.SetDefault("kafka.max_wait", time.Second)

	v.SetDefault("ledger.clock_skew", 5*time.Minute)
	v.SetDefault("ledger.page_size", 500)
	v.SetDefault("ledger.workers", 8)

	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 60*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)
	v.SetDefault("http.query_timeout", 30*time.Second)

	v.SetDefault("reconciliation.fiscal_rule", `source == "invoice"`)
	v.SetDefault("reconciliation.physical_rule", `source == "manual"`)
}

func (c *Config) validate() error {
	if c.Database.MaxConns <= 0 {
		return fmt.Errorf("database.max_conns must be positive")
	}
	if c.Database.MinConns < 0 || c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("database.min_conns (%d) must be between 0 and database.max_conns (%d)",
			c.Database.MinConns, c.Database.MaxConns)
	}
	if c.Database.StatementTimeout < 0 {
		return fmt.Errorf("database.statement_timeout cannot be negative")
	}
	if c.Ledger.ClockSkew < 0 {
		return fmt.Errorf("ledger.clock_skew cannot be negative")
	}
	if c.Ledger.PageSize <= 0 || c.Ledger.PageSize > 10_000 {
		return fmt.Errorf("ledger.page_size must be between 1 and 10000, got %d", c.Ledger.PageSize)
	}
	if c.Ledger.Workers <= 0 {
		return fmt.Errorf("ledger.workers must be positive")
	}
	if c.HTTP.QueryTimeout <= 0 {
		return fmt.Errorf("http.query_timeout must be positive")
	}

	if c.App.Env == "production" && c.UseMemory() {
		return fmt.Errorf("database.url is required in production")
	}
	return nil
}
