package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	SMTP         SMTPConfig
	Detection    DetectionConfig
	Notification NotificationConfig
	Logging      LoggingConfig
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	Environment     string
	CORSOrigins     []string
}

// DatabaseConfig contains database configuration
type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// For SQLite
	Path string
}

// SMTPConfig contains email delivery configuration
type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromAddress string
	FromName    string
}

// DetectionConfig contains change detection scheduling configuration
type DetectionConfig struct {
	Enabled      bool
	SweepSpec    string // cron spec for the detection sweep
	DailySpec    string // cron spec for daily digests
	WeeklySpec   string // cron spec for weekly digests
	CacheMaxAge  time.Duration
	SiteTimeout  time.Duration
}

// NotificationConfig contains queue processing configuration
type NotificationConfig struct {
	ProcessSpec  string // cron spec for queue processing
	MaxRetries   int
	BackoffBase  time.Duration
	BackoffCap   time.Duration
	StaleTimeout time.Duration
	BatchSize    int
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string
	Format string // json or console
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors as it's optional)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			Environment:     getEnv("ENVIRONMENT", "development"),
			CORSOrigins:     getEnvAsSlice("CORS_ORIGINS", []string{"http://localhost:3000"}),
		},
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", "sqlite"),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			Name:            getEnv("DB_NAME", "permwatch"),
			User:            getEnv("DB_USER", ""),
			Password:        getEnv("DB_PASSWORD", ""),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			Path:            getEnv("DB_PATH", "./permwatch.db"),
		},
		SMTP: SMTPConfig{
			Host:        getEnv("SMTP_HOST", "localhost"),
			Port:        getEnvAsInt("SMTP_PORT", 587),
			Username:    getEnv("SMTP_USERNAME", ""),
			Password:    getEnv("SMTP_PASSWORD", ""),
			FromAddress: getEnv("SMTP_FROM_ADDRESS", "permwatch@localhost"),
			FromName:    getEnv("SMTP_FROM_NAME", "PermWatch"),
		},
		Detection: DetectionConfig{
			Enabled:     getEnvAsBool("DETECTION_ENABLED", true),
			SweepSpec:   getEnv("DETECTION_SWEEP_SPEC", "@every 1h"),
			DailySpec:   getEnv("DETECTION_DAILY_SPEC", "0 8 * * *"),
			WeeklySpec:  getEnv("DETECTION_WEEKLY_SPEC", "0 8 * * 1"),
			CacheMaxAge: getEnvAsDuration("DETECTION_CACHE_MAX_AGE", time.Hour),
			SiteTimeout: getEnvAsDuration("DETECTION_SITE_TIMEOUT", 5*time.Minute),
		},
		Notification: NotificationConfig{
			ProcessSpec:  getEnv("NOTIFICATION_PROCESS_SPEC", "@every 1m"),
			MaxRetries:   getEnvAsInt("NOTIFICATION_MAX_RETRIES", 3),
			BackoffBase:  getEnvAsDuration("NOTIFICATION_BACKOFF_BASE", time.Minute),
			BackoffCap:   getEnvAsDuration("NOTIFICATION_BACKOFF_CAP", time.Hour),
			StaleTimeout: getEnvAsDuration("NOTIFICATION_STALE_TIMEOUT", 15*time.Minute),
			BatchSize:    getEnvAsInt("NOTIFICATION_BATCH_SIZE", 50),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if c.Notification.MaxRetries < 0 {
		return fmt.Errorf("invalid max retries: %d", c.Notification.MaxRetries)
	}

	if c.Notification.BatchSize < 1 {
		return fmt.Errorf("invalid notification batch size: %d", c.Notification.BatchSize)
	}

	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
