package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	Database DatabaseConfig
	Feed     FeedConfig
	Routing  RoutingConfig
	Server   ServerConfig
	Logging  LoggingConfig
}

type DatabaseConfig struct {
	Driver                string `validate:"oneof=postgres sqlite none"`
	Host                  string `validate:"required_if=Driver postgres"`
	Port                  string `validate:"required_if=Driver postgres"`
	User                  string `validate:"required_if=Driver postgres"`
	Password              string
	DBName                string `validate:"required_if=Driver postgres"`
	SQLitePath            string `validate:"required_if=Driver sqlite"`
	KeepInactiveSnapshots int    `validate:"gte=0"`
}

// FeedConfig describes where the station feed comes from. File wins over URL.
type FeedConfig struct {
	URL             string        `validate:"omitempty,url"`
	File            string
	Timeout         time.Duration `validate:"gt=0"`
	RefreshInterval time.Duration `validate:"gte=0"`
}

type RoutingConfig struct {
	MinutesPerSegment  float64 `validate:"gt=0"`
	MinutesPerTransfer float64 `validate:"gt=0"`
	TransferPolicy     string  `validate:"oneof=curated proximity both"`
	TransferThreshold  float64 `validate:"gt=0"`
	PatchFile          string
	RouteCacheSize     int `validate:"gte=0"`
}

type ServerConfig struct {
	Port           string `validate:"required,numeric"`
	AllowedOrigins []string
	AdminAPIKey    string
}

type LoggingConfig struct {
	Level      string
	FilePath   string
	DiscordURL string
}

func Load() (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			Driver:                getEnv("DB_DRIVER", "sqlite"),
			Host:                  getEnv("DB_HOST", "localhost"),
			Port:                  getEnv("DB_PORT", "5432"),
			User:                  getEnv("DB_USER", "postgres"),
			Password:              getEnv("DB_PASSWORD", ""),
			DBName:                getEnv("DB_NAME", "metropath"),
			SQLitePath:            getEnv("SQLITE_DATABASE", "metropath.db"),
			KeepInactiveSnapshots: getIntEnv("KEEP_INACTIVE_SNAPSHOTS", 1),
		},
		Feed: FeedConfig{
			URL:             getEnv("FEED_URL", "https://api.hh.ru/metro/1"),
			File:            getEnv("FEED_FILE", ""),
			Timeout:         getDurationEnv("FEED_TIMEOUT", 30*time.Second),
			RefreshInterval: getDurationEnv("REFRESH_INTERVAL", 24*time.Hour),
		},
		Routing: RoutingConfig{
			MinutesPerSegment:  getFloatEnv("MINUTES_PER_SEGMENT", 3),
			MinutesPerTransfer: getFloatEnv("MINUTES_PER_TRANSFER", 6),
			TransferPolicy:     getEnv("TRANSFER_POLICY", "curated"),
			TransferThreshold:  getFloatEnv("TRANSFER_THRESHOLD_DEG", 0.001),
			PatchFile:          getEnv("PATCH_FILE", ""),
			RouteCacheSize:     getIntEnv("ROUTE_CACHE_SIZE", 1024),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			AllowedOrigins: splitList(getEnv("CORS_ORIGINS", "*")),
			AdminAPIKey:    getEnv("ADMIN_API_KEY", ""),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			FilePath:   getEnv("LOG_FILE", "metropath.log"),
			DiscordURL: getEnv("DISCORD_WEBHOOK_URL", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Feed.URL == "" && c.Feed.File == "" {
		return fmt.Errorf("invalid configuration: one of FEED_URL or FEED_FILE is required")
	}
	return nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.DBName)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
