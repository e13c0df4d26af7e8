package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is loaded from an optional YAML file, then overridden by
// environment variables, so deployments can ship a base file and tweak
// single knobs per environment.
type Config struct {
	HTTPAddr     string   `yaml:"http_addr"`
	MySQLDSN     string   `yaml:"mysql_dsn"`
	RedisAddr    string   `yaml:"redis_addr"`
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`

	RunLockTTL time.Duration `yaml:"run_lock_ttl"`
	LogLevel   string        `yaml:"log_level"`

	// Business rules
	MaxPerCustomer     int `yaml:"max_per_customer"`
	PickupDeadlineHour int `yaml:"pickup_deadline_hour"`
	// WaitingPeriodDays is declared for a future waitlist expiry policy.
	WaitingPeriodDays int `yaml:"waiting_period_days"`
}

func Default() Config {
	return Config{
		HTTPAddr:           ":8080",
		MySQLDSN:           "root:root@tcp(localhost:3306)/chickflow?parseTime=true",
		RedisAddr:          "localhost:6379",
		KafkaTopic:         "chickflow.notifications",
		RunLockTTL:         5 * time.Minute,
		LogLevel:           "info",
		MaxPerCustomer:     1000,
		PickupDeadlineHour: 14,
		WaitingPeriodDays:  7,
	}
}

// Load reads the YAML file at path (skipped when empty), applies env
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.HTTPAddr, "HTTP_ADDR")
	setString(&c.MySQLDSN, "MYSQL_DSN")
	setString(&c.RedisAddr, "REDIS_ADDR")
	setString(&c.KafkaTopic, "KAFKA_TOPIC")
	setString(&c.LogLevel, "LOG_LEVEL")
	setInt(&c.MaxPerCustomer, "MAX_PER_CUSTOMER")
	setInt(&c.PickupDeadlineHour, "PICKUP_DEADLINE_HOUR")
	setInt(&c.WaitingPeriodDays, "WAITING_PERIOD_DAYS")

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.KafkaBrokers = strings.Split(v, ",")
	}
}

func (c *Config) validate() error {
	if c.MaxPerCustomer <= 0 {
		return fmt.Errorf("max_per_customer must be positive, got %d", c.MaxPerCustomer)
	}
	if c.PickupDeadlineHour < 0 || c.PickupDeadlineHour > 23 {
		return fmt.Errorf("pickup_deadline_hour must be 0-23, got %d", c.PickupDeadlineHour)
	}
	if c.WaitingPeriodDays < 0 {
		return fmt.Errorf("waiting_period_days must not be negative, got %d", c.WaitingPeriodDays)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
