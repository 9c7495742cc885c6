// Package config loads the order desk settings from a YAML file and lets
// environment variables of the same name override them.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/gartstein/orderdesk/internal/orders/db"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where the commands look for the configuration file.
const DefaultPath = "internal/orders/config/config.yaml"

// Config struct for YAML configuration
type Config struct {
	DBDriver       string        `yaml:"DB_DRIVER" env:"DB_DRIVER"`
	DBPath         string        `yaml:"DB_PATH" env:"DB_PATH"`
	DBHost         string        `yaml:"DB_HOST" env:"DB_HOST"`
	DBPort         int           `yaml:"DB_PORT" env:"DB_PORT"`
	DBUser         string        `yaml:"DB_USER" env:"DB_USER"`
	DBPassword     string        `yaml:"DB_PASSWORD" env:"DB_PASSWORD"`
	DBName         string        `yaml:"DB_NAME" env:"DB_NAME"`
	DBSSLMode      string        `yaml:"DB_SSLMODE" env:"DB_SSLMODE"`
	DBBusyTimeout  time.Duration `yaml:"DB_BUSY_TIMEOUT" env:"DB_BUSY_TIMEOUT"`
	DBMaxOpenConns int           `yaml:"DB_MAX_OPEN_CONNS" env:"DB_MAX_OPEN_CONNS"`
	DBLogLevel     string        `yaml:"DB_LOG_LEVEL" env:"DB_LOG_LEVEL"`

	AdminPassword string `yaml:"ADMIN_PASSWORD" env:"ADMIN_PASSWORD"`
	BcryptCost    int    `yaml:"BCRYPT_COST" env:"BCRYPT_COST"`

	JWTSecret string        `yaml:"JWT_SECRET" env:"JWT_SECRET"`
	TokenTTL  time.Duration `yaml:"TOKEN_TTL" env:"TOKEN_TTL"`

	OperationTimeout time.Duration `yaml:"OPERATION_TIMEOUT" env:"OPERATION_TIMEOUT"`
	MaxRetries       uint64        `yaml:"MAX_RETRIES" env:"MAX_RETRIES"`

	KafkaBrokers []string `yaml:"KAFKA_BROKERS" env:"KAFKA_BROKERS" envSeparator:","`
	Topic        string   `yaml:"TOPIC" env:"TOPIC"`
}

// Default returns the settings used for keys absent from both the file and
// the environment.
func Default() Config {
	return Config{
		DBDriver:         db.DriverSQLite,
		DBPath:           "orderdesk.db",
		DBSSLMode:        "disable",
		DBBusyTimeout:    5 * time.Second,
		DBLogLevel:       "silent",
		TokenTTL:         12 * time.Hour,
		OperationTimeout: 10 * time.Second,
		MaxRetries:       3,
		Topic:            "orderdesk.events",
	}
}

// Load reads path on top of Default, then applies environment overrides.
// A missing file is not an error: the defaults and environment still apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	file, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(file, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case !os.IsNotExist(err):
		return nil, err
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the store cannot start with.
func (c *Config) Validate() error {
	if c.AdminPassword == "" {
		return fmt.Errorf("ADMIN_PASSWORD must be set")
	}
	if c.DBDriver == db.DriverPostgres && (c.DBHost == "" || c.DBName == "") {
		return fmt.Errorf("DB_HOST and DB_NAME are required for the postgres driver")
	}
	if c.OperationTimeout <= 0 {
		return fmt.Errorf("OPERATION_TIMEOUT must be positive")
	}
	return nil
}

// Database builds the store configuration.
func (c *Config) Database() *db.Config {
	return &db.Config{
		Driver:       c.DBDriver,
		Path:         c.DBPath,
		Host:         c.DBHost,
		Port:         c.DBPort,
		User:         c.DBUser,
		Password:     c.DBPassword,
		DBName:       c.DBName,
		SSLMode:      c.DBSSLMode,
		BusyTimeout:  c.DBBusyTimeout,
		MaxOpenConns: c.DBMaxOpenConns,
		LogLevel:     c.DBLogLevel,
		Admin: db.AdminSeed{
			Password: c.AdminPassword,
			Cost:     c.BcryptCost,
		},
	}
}
