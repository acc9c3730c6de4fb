// Package config provides configuration management and environment variable handling for the application
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the service
type Config struct {
	Database DatabaseConfig `json:"database"`
	Server   ServerConfig   `json:"server"`
	Gateway  GatewayConfig  `json:"gateway"`
	Dispatch DispatchConfig `json:"dispatch"`
	Cache    CacheConfig    `json:"cache"`
	Logging  LoggingConfig  `json:"logging"`
}

type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
}

type ServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	BodyLimit       int           `json:"body_limit"`
	EnableMetrics   bool          `json:"enable_metrics"`
}

// GatewayConfig configures the WhatsApp Cloud API client
type GatewayConfig struct {
	BaseURL           string        `json:"base_url"`
	AccessToken       string        `json:"access_token"`
	PhoneNumberID     string        `json:"phone_number_id"`
	BusinessAccountID string        `json:"business_account_id"`
	VerifyToken       string        `json:"verify_token"`
	RequestTimeout    time.Duration `json:"request_timeout"`
	TemplateCacheTTL  time.Duration `json:"template_cache_ttl"`
}

// DispatchConfig tunes the dispatcher and scheduler loops
type DispatchConfig struct {
	BatchSize         int           `json:"batch_size"`
	SendDelay         time.Duration `json:"send_delay"`
	SchedulerInterval time.Duration `json:"scheduler_interval"`
	SchedulerPageSize int           `json:"scheduler_page_size"`
}

type CacheConfig struct {
	Enabled   bool          `json:"enabled"`
	RedisURL  string        `json:"redis_url"`
	KeyPrefix string        `json:"key_prefix"`
	CountsTTL time.Duration `json:"counts_ttl"`
}

type LoggingConfig struct {
	Dir        string `json:"dir"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
}

// Load reads configuration from the environment (and an optional .env file)
func Load() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvString("DB_NAME", "whatsflow"),
			User:            getEnvString("DB_USER", "postgres"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 15*time.Minute),
		},
		Server: ServerConfig{
			Host:            getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			BodyLimit:       getEnvInt("SERVER_BODY_LIMIT", 4*1024*1024),
			EnableMetrics:   getEnvBool("SERVER_ENABLE_METRICS", true),
		},
		Gateway: GatewayConfig{
			BaseURL:           getEnvString("WHATSAPP_BASE_URL", "https://graph.facebook.com/v18.0"),
			AccessToken:       getEnvString("WHATSAPP_ACCESS_TOKEN", ""),
			PhoneNumberID:     getEnvString("WHATSAPP_PHONE_NUMBER_ID", ""),
			BusinessAccountID: getEnvString("WHATSAPP_BUSINESS_ACCOUNT_ID", ""),
			VerifyToken:       getEnvString("WHATSAPP_VERIFY_TOKEN", ""),
			RequestTimeout:    getEnvDuration("WHATSAPP_REQUEST_TIMEOUT", 30*time.Second),
			TemplateCacheTTL:  getEnvDuration("WHATSAPP_TEMPLATE_CACHE_TTL", 10*time.Minute),
		},
		Dispatch: DispatchConfig{
			BatchSize:         getEnvInt("DISPATCH_BATCH_SIZE", 100),
			SendDelay:         getEnvDuration("DISPATCH_SEND_DELAY", 1*time.Second),
			SchedulerInterval: getEnvDuration("SCHEDULER_INTERVAL", 60*time.Second),
			SchedulerPageSize: getEnvInt("SCHEDULER_PAGE_SIZE", 20),
		},
		Cache: CacheConfig{
			Enabled:   getEnvBool("CACHE_ENABLED", false),
			RedisURL:  getEnvString("CACHE_REDIS_URL", "redis://localhost:6379/0"),
			KeyPrefix: getEnvString("CACHE_KEY_PREFIX", "whatsflow"),
			CountsTTL: getEnvDuration("CACHE_COUNTS_TTL", 30*time.Second),
		},
		Logging: LoggingConfig{
			Dir:        getEnvString("LOG_DIR", "data"),
			MaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 50),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 30),
			Compress:   getEnvBool("LOG_COMPRESS", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the loaded configuration for obvious misconfiguration
func (c *Config) Validate() error {
	if c.Database.Host == "" || c.Database.Name == "" {
		return fmt.Errorf("database host and name are required")
	}
	if c.Dispatch.BatchSize <= 0 {
		return fmt.Errorf("dispatch batch size must be positive")
	}
	if c.Dispatch.SendDelay < 0 {
		return fmt.Errorf("dispatch send delay cannot be negative")
	}
	if c.Dispatch.SchedulerInterval <= 0 {
		return fmt.Errorf("scheduler interval must be positive")
	}
	return nil
}

// loadEnvFile loads KEY=VALUE pairs from .env when present. Existing
// environment variables are never overridden.
func loadEnvFile() error {
	f, err := os.Open(".env")
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
	return scanner.Err()
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
