package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Tracking TrackingConfig `yaml:"tracking"`
	Cache    CacheConfig    `yaml:"cache"`
	Menu     MenuConfig     `yaml:"menu"`
	Log      LogConfig      `yaml:"log"`
	SeedPath string         `yaml:"seed_path"`
}

type ServerConfig struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	// Order submissions per second accepted by the intake endpoint.
	OrderRateLimit float64 `yaml:"order_rate_limit"`
	OrderRateBurst int     `yaml:"order_rate_burst"`
}

type DatabaseConfig struct {
	Driver      string `yaml:"driver"` // sqlite or postgres
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresURL string `yaml:"postgres_url"`
}

type RedisConfig struct {
	Address     string        `yaml:"address"`
	DB          int           `yaml:"db"`
	SnapshotTTL time.Duration `yaml:"snapshot_ttl"`
	RecentLimit int           `yaml:"recent_limit"`
}

type KafkaConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Brokers     []string `yaml:"brokers"`
	GroupID     string   `yaml:"group_id"`
	OrdersTopic string   `yaml:"orders_topic"`
}

type DispatchConfig struct {
	BatchSize            int           `yaml:"batch_size"`
	Interval             time.Duration `yaml:"interval"`
	PermutationThreshold int           `yaml:"permutation_threshold"`
	ReturnToStart        bool          `yaml:"return_to_start"`
	RouteWorkers         int           `yaml:"route_workers"`
}

type TrackingConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

type CacheConfig struct {
	RecentOrderCapacity int `yaml:"recent_order_capacity"`
}

type MenuConfig struct {
	SuggestionLimit int `yaml:"suggestion_limit"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              8080,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
			OrderRateLimit:    50,
			OrderRateBurst:    100,
		},
		Database: DatabaseConfig{
			Driver:     "sqlite",
			SQLitePath: "data/dispatch.db",
		},
		Redis: RedisConfig{
			SnapshotTTL: 24 * time.Hour,
			RecentLimit: 50,
		},
		Kafka: KafkaConfig{
			GroupID:     "delivery-dispatch",
			OrdersTopic: "orders.created",
		},
		Dispatch: DispatchConfig{
			BatchSize:            20,
			Interval:             10 * time.Second,
			PermutationThreshold: 8,
			ReturnToStart:        true,
			RouteWorkers:         4,
		},
		Tracking: TrackingConfig{RefreshInterval: 30 * time.Second},
		Cache:    CacheConfig{RecentOrderCapacity: 50},
		Menu:     MenuConfig{SuggestionLimit: 5},
		Log:      LogConfig{Level: "info"},
		SeedPath: "data/seeds/dispatch.json",
	}
}

// Load reads path over Defaults and applies environment overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("load config: read %q: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("load config: parse %q: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("env PORT: %w", err)
		}
		c.Server.Port = p
	}
	c.Database.Driver = Get("DB_DRIVER", c.Database.Driver)
	c.Database.SQLitePath = Get("DB_PATH", c.Database.SQLitePath)
	c.Database.PostgresURL = Get("DATABASE_URL", c.Database.PostgresURL)
	c.Redis.Address = Get("REDIS_URL", c.Redis.Address)
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	c.SeedPath = Get("SEED_PATH", c.SeedPath)
	c.Log.Level = Get("LOG_LEVEL", c.Log.Level)
	return nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Database.Driver == "postgres" && strings.TrimSpace(c.Database.PostgresURL) == "" {
		return errors.New("database.postgres_url (DATABASE_URL) is required for postgres")
	}
	if c.Dispatch.BatchSize < 1 {
		return fmt.Errorf("dispatch.batch_size must be >= 1, got %d", c.Dispatch.BatchSize)
	}
	if c.Dispatch.PermutationThreshold < 0 {
		return fmt.Errorf("dispatch.permutation_threshold must be >= 0, got %d", c.Dispatch.PermutationThreshold)
	}
	if c.Cache.RecentOrderCapacity < 1 {
		return fmt.Errorf("cache.recent_order_capacity must be >= 1, got %d", c.Cache.RecentOrderCapacity)
	}
	if c.Tracking.RefreshInterval <= 0 {
		return errors.New("tracking.refresh_interval must be positive")
	}
	return nil
}

// DSN returns the data source for the configured driver.
func (c *Config) DSN() string {
	if c.Database.Driver == "postgres" {
		return c.Database.PostgresURL
	}
	return c.Database.SQLitePath
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Get returns the environment value for key, or fallback when unset.
func Get(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
