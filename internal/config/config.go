// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"mentor-points/pkg/db" // Import db package for its Config struct
)

// Lock backends.
const (
	LockBackendMemory = "memory"
	LockBackendRedis  = "redis"
)

// AppConfig holds all application-wide configurations.
type AppConfig struct {
	ServerPort string       `toml:"server_port"`
	LogLevel   string       `toml:"log_level"` // debug, info, warn, error
	DB         db.Config    `toml:"database"`
	Ledger     LedgerConfig `toml:"ledger"`
	Sweep      SweepConfig  `toml:"sweep"`
	Redis      RedisConfig  `toml:"redis"`
	AMQP       AMQPConfig   `toml:"amqp"`
}

// LedgerConfig holds the ledger's business rules and locking.
type LedgerConfig struct {
	AllowNegativeBalance bool          `toml:"allow_negative_balance"`
	LockTimeout          time.Duration `toml:"lock_timeout"`
	LockBackend          string        `toml:"lock_backend"`
}

// SweepConfig controls the background expiration sweep.
type SweepConfig struct {
	Enabled   bool          `toml:"enabled"`
	Interval  time.Duration `toml:"interval"`
	BatchSize int           `toml:"batch_size"`
}

// RedisConfig is only used by the redis lock backend.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// AMQPConfig enables ledger events when URL is set.
type AMQPConfig struct {
	URL      string `toml:"url"`
	Exchange string `toml:"exchange"`
}

// Default returns the configuration used when nothing is set.
func Default() *AppConfig {
	return &AppConfig{
		ServerPort: "8080",
		LogLevel:   "info",
		DB: db.Config{
			Driver:          db.DriverPostgres,
			Host:            "localhost",
			Port:            5432,
			User:            "user",
			Password:        "password",
			DBName:          "pointsdb",
			SSLMode:         "disable",
			Path:            "points.db",
			MaxOpenConns:    25,
			MaxIdleConns:    10,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Ledger: LedgerConfig{
			LockTimeout: 5 * time.Second,
			LockBackend: LockBackendMemory,
		},
		Sweep: SweepConfig{
			Enabled:   true,
			Interval:  time.Hour,
			BatchSize: 100,
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
		AMQP:  AMQPConfig{Exchange: "points.events"},
	}
}

// LoadConfig builds the configuration in layers: defaults, then the TOML
// file at path (skipped when path is empty), then environment variables. A
// .env file in the working directory, if present, is loaded into the
// environment first and never overrides variables that are already set.
func LoadConfig(path string) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *AppConfig) applyEnv() error {
	c.ServerPort = getEnv("SERVER_PORT", c.ServerPort)
	c.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", c.LogLevel))

	c.DB.Driver = getEnv("DB_DRIVER", c.DB.Driver)
	c.DB.Host = getEnv("DB_HOST", c.DB.Host)
	port, err := getEnvAsInt("DB_PORT", c.DB.Port)
	if err != nil {
		return err
	}
	c.DB.Port = port
	c.DB.User = getEnv("DB_USER", c.DB.User)
	c.DB.Password = getEnv("DB_PASSWORD", c.DB.Password)
	c.DB.DBName = getEnv("DB_NAME", c.DB.DBName)
	c.DB.SSLMode = getEnv("DB_SSLMODE", c.DB.SSLMode)
	c.DB.Path = getEnv("DB_PATH", c.DB.Path)
	if c.DB.AutoMigrate, err = getEnvAsBool("DB_AUTO_MIGRATE", c.DB.AutoMigrate); err != nil {
		return err
	}

	if c.Ledger.AllowNegativeBalance, err = getEnvAsBool("LEDGER_ALLOW_NEGATIVE_BALANCE", c.Ledger.AllowNegativeBalance); err != nil {
		return err
	}
	if c.Ledger.LockTimeout, err = getEnvAsDuration("LEDGER_LOCK_TIMEOUT", c.Ledger.LockTimeout); err != nil {
		return err
	}
	c.Ledger.LockBackend = getEnv("LEDGER_LOCK_BACKEND", c.Ledger.LockBackend)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	if c.Redis.DB, err = getEnvAsInt("REDIS_DB", c.Redis.DB); err != nil {
		return err
	}

	if c.Sweep.Enabled, err = getEnvAsBool("SWEEP_ENABLED", c.Sweep.Enabled); err != nil {
		return err
	}
	if c.Sweep.Interval, err = getEnvAsDuration("SWEEP_INTERVAL", c.Sweep.Interval); err != nil {
		return err
	}
	if c.Sweep.BatchSize, err = getEnvAsInt("SWEEP_BATCH_SIZE", c.Sweep.BatchSize); err != nil {
		return err
	}

	c.AMQP.URL = getEnv("AMQP_URL", c.AMQP.URL)
	c.AMQP.Exchange = getEnv("AMQP_EXCHANGE", c.AMQP.Exchange)
	return nil
}

// Validate checks the configuration for values the service cannot start with.
func (c *AppConfig) Validate() error {
	if c.ServerPort == "" {
		return fmt.Errorf("server port cannot be empty")
	}

	switch c.DB.Driver {
	case db.DriverPostgres:
		if c.DB.Host == "" || c.DB.DBName == "" {
			return fmt.Errorf("postgres requires DB_HOST and DB_NAME")
		}
	case db.DriverSQLite:
		if c.DB.Path == "" {
			return fmt.Errorf("sqlite requires DB_PATH")
		}
	default:
		return fmt.Errorf("invalid DB_DRIVER %q (must be postgres or sqlite)", c.DB.Driver)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	if c.Ledger.LockTimeout <= 0 {
		return fmt.Errorf("lock timeout must be positive, got %s", c.Ledger.LockTimeout)
	}
	switch c.Ledger.LockBackend {
	case LockBackendMemory:
	case LockBackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis lock backend requires REDIS_ADDR")
		}
	default:
		return fmt.Errorf("invalid lock backend %q (must be memory or redis)", c.Ledger.LockBackend)
	}

	if c.Sweep.Enabled && c.Sweep.Interval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %s", c.Sweep.Interval)
	}
	if c.Sweep.BatchSize <= 0 {
		return fmt.Errorf("sweep batch size must be positive, got %d", c.Sweep.BatchSize)
	}

	if c.AMQP.URL != "" && c.AMQP.Exchange == "" {
		return fmt.Errorf("AMQP_EXCHANGE cannot be empty when AMQP_URL is set")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) (bool, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}
