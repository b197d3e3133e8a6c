package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	Database struct {
		Host     string
		Port     int
		User     string
		Password string
		Name     string // YAML key: "database"
	}
	RabbitMQ struct {
		Host     string
		Port     int
		User     string
		Password string
	}
	Service struct {
		Port int
	}
	Gateway struct {
		QueueCapacity int
	}
	Dispatch struct {
		SweepIntervalSeconds int
		MaxSearchWaitSeconds int
		MaxAssignAttempts    int
	}
	JWT struct {
		SecretKey        string
		AccessTTLMinutes int
	}
}

// LoadFromFile loads config from a YAML file to a Config struct, applies
// defaults, and validates required fields.
func LoadFromFile(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := parseYAML(file, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// ApplyEnv overrides secrets from the environment (populated from .env in
// development) so they never have to live in config.yaml.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("RABBITMQ_PASSWORD"); v != "" {
		c.RabbitMQ.Password = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.JWT.SecretKey = v
	}
}

// SweepInterval returns the dispatch sweep period as a duration.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Dispatch.SweepIntervalSeconds) * time.Second
}

// MaxSearchWait returns the searching-order wait ceiling as a duration.
func (c *Config) MaxSearchWait() time.Duration {
	return time.Duration(c.Dispatch.MaxSearchWaitSeconds) * time.Second
}

// AccessTTL returns the JWT access token lifetime.
func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.JWT.AccessTTLMinutes) * time.Minute
}

// applyDefaults sets safe defaults for some fields.
func applyDefaults(cfg *Config) {
	// Database
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}

	// RabbitMQ
	if cfg.RabbitMQ.Host == "" {
		cfg.RabbitMQ.Host = "localhost"
	}
	if cfg.RabbitMQ.Port == 0 {
		cfg.RabbitMQ.Port = 5672
	}

	// Service
	if cfg.Service.Port == 0 {
		cfg.Service.Port = 3000
	}

	// Gateway
	if cfg.Gateway.QueueCapacity == 0 {
		cfg.Gateway.QueueCapacity = 16
	}

	// Dispatch
	if cfg.Dispatch.SweepIntervalSeconds == 0 {
		cfg.Dispatch.SweepIntervalSeconds = 2
	}
	if cfg.Dispatch.MaxSearchWaitSeconds == 0 {
		cfg.Dispatch.MaxSearchWaitSeconds = 120
	}
	if cfg.Dispatch.MaxAssignAttempts == 0 {
		cfg.Dispatch.MaxAssignAttempts = 3
	}

	if cfg.JWT.AccessTTLMinutes == 0 {
		cfg.JWT.AccessTTLMinutes = 60
	}
	if cfg.JWT.SecretKey == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			// fallback: time-based bytes
			key = []byte(fmt.Sprintf("%d", time.Now().UnixNano()))
		}
		cfg.JWT.SecretKey = base64.StdEncoding.EncodeToString(key)
	}
}

// validate checks required fields and basic ranges.
func (c *Config) validate() error {
	var problems []string

	// DB
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		problems = append(problems, "database.port must be in 1..65535")
	}
	if c.Database.User == "" {
		problems = append(problems, "database.user is required")
	}
	if c.Database.Password == "" {
		problems = append(problems, "database.password is required")
	}
	if c.Database.Name == "" {
		problems = append(problems, "database.name is required")
	}

	// RabbitMQ
	if c.RabbitMQ.Port <= 0 || c.RabbitMQ.Port > 65535 {
		problems = append(problems, "rabbitmq.port must be in 1..65535")
	}
	if c.RabbitMQ.User == "" {
		problems = append(problems, "rabbitmq.user is required")
	}
	if c.RabbitMQ.Password == "" {
		problems = append(problems, "rabbitmq.password is required")
	}

	// Service
	if c.Service.Port <= 0 || c.Service.Port > 65535 {
		problems = append(problems, "service.port must be in 1..65535")
	}

	// Gateway
	if c.Gateway.QueueCapacity < 0 {
		problems = append(problems, "gateway.queue_capacity must be non-negative")
	}

	// Dispatch
	if c.Dispatch.SweepIntervalSeconds < 0 {
		problems = append(problems, "dispatch.sweep_interval_seconds must be non-negative")
	}
	if c.Dispatch.MaxSearchWaitSeconds < 0 {
		problems = append(problems, "dispatch.max_search_wait_seconds must be non-negative")
	}
	if c.Dispatch.MaxAssignAttempts < 0 {
		problems = append(problems, "dispatch.max_assign_attempts must be non-negative")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
