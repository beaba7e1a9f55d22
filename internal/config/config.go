// Package config handles loading application configuration from environment variables.
// All settings have sensible defaults for running on the device.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application settings loaded from environment variables.
type Config struct {
	Port         string
	DatabasePath string
	DataDir      string
	StagingDir   string
	DeviceName   string

	MaxUploadBytes     int64
	UploadIdleTimeout  time.Duration
	AssociationTimeout time.Duration
	OperationTTL       time.Duration
	SweepInterval      time.Duration
	WatermarkInterval  time.Duration

	RateLimitPerMinute int
	CORSAllowedOrigins []string
	TrustedProxies     []string
	WatchLibrary       bool
}

// Load reads configuration from environment variables, using defaults where not set.
func Load() *Config {
	dataDir := getEnv("DATA_DIR", "./data")
	corsOrigins := getStringSliceEnv("CORS_ALLOWED_ORIGINS")
	if corsOrigins == nil {
		corsOrigins = []string{"http://localhost:5173", "http://localhost:3000"}
	}
	return &Config{
		Port:         getEnv("PORT", "8080"),
		DatabasePath: getEnv("DATABASE_PATH", "./tonebox.db"),
		DataDir:      dataDir,
		StagingDir:   getEnv("STAGING_DIR", dataDir+"/staging"),
		DeviceName:   getEnv("DEVICE_NAME", ""),

		MaxUploadBytes:     getInt64Env("MAX_UPLOAD_BYTES", 200<<20),
		UploadIdleTimeout:  getDurationEnv("UPLOAD_IDLE_TIMEOUT", 10*time.Minute),
		AssociationTimeout: getDurationEnv("ASSOCIATION_TIMEOUT", 60*time.Second),
		OperationTTL:       getDurationEnv("OPERATION_TTL", 30*time.Second),
		SweepInterval:      getDurationEnv("SWEEP_INTERVAL", 5*time.Second),
		WatermarkInterval:  getDurationEnv("WATERMARK_INTERVAL", 10*time.Second),

		RateLimitPerMinute: getIntEnv("RATE_LIMIT_PER_MINUTE", 30),
		CORSAllowedOrigins: corsOrigins,
		TrustedProxies:     getStringSliceEnv("TRUSTED_PROXIES"),
		WatchLibrary:       getBoolEnv("WATCH_LIBRARY", true),
	}
}

func getStringSliceEnv(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var result []string
	for _, s := range strings.Split(value, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			result = append(result, s)
		}
	}
	return result
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
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
