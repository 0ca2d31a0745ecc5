// Package config loads runtime configuration from environment variables.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"blobvault/internal/quota"
	"blobvault/internal/storage"
)

// Config holds everything the service needs at startup.
type Config struct {
	Port   string
	AppEnv string

	Storage storage.Config

	// Daily byte budgets per client, parsed from strings like "5GB".
	DailyUploadLimit   int64
	DailyDownloadLimit int64

	// Eviction settings.
	InactivityPeriod string
	CleanupInterval  time.Duration

	// Counter store.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Load reads configuration from a .env file (if present) and the environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, reading from environment")
	}

	return &Config{
		Port:   getEnv("PORT", "8080"),
		AppEnv: getEnv("APP_ENV", "development"),

		Storage: storage.Config{
			Provider: getEnv("BLOBVAULT_PROVIDER", "local"),
			DataDir:  getEnv("BLOBVAULT_DATA_DIR", "./data"),
			Object: storage.ObjectStoreConfig{
				Endpoint:  getEnv("STORAGE_ENDPOINT", ""),
				AccessKey: getEnv("STORAGE_ACCESS_KEY", ""),
				SecretKey: getEnv("STORAGE_SECRET_KEY", ""),
				Bucket:    getEnv("STORAGE_BUCKET", ""),
				UseSSL:    getEnv("STORAGE_USE_SSL", "false") == "true",
			},
		},

		DailyUploadLimit:   quota.ParseSize(getEnv("DAILY_UPLOAD_LIMIT", "5GB")),
		DailyDownloadLimit: quota.ParseSize(getEnv("DAILY_DOWNLOAD_LIMIT", "10GB")),

		InactivityPeriod: getEnv("INACTIVITY_PERIOD", "30d"),
		CleanupInterval:  getDuration("CLEANUP_INTERVAL", time.Hour),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getInt("REDIS_DB", 0),
	}
}

// IsProduction reports whether the app runs in production mode. Outside
// production, error responses carry internal detail strings.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		slog.Warn("ignoring unparsable integer in environment", "key", key, "value", v)
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		slog.Warn("ignoring unparsable duration in environment", "key", key, "value", v)
	}
	return fallback
}
