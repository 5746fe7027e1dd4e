// Package config provides configuration for the VodVault status board.
package config

import (
	"os"
	"time"
)

// Config holds the status board configuration.
type Config struct {
	// Server connection
	ServerURL string
	APIKey    string

	// Refresh intervals
	StatusRefresh time.Duration
	NoticeRefresh time.Duration
}

// Load returns configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		ServerURL:     getEnv("VODVAULT_URL", "http://localhost:9173"),
		APIKey:        getEnv("VODVAULT_API_KEY", ""),
		StatusRefresh: getDuration("VODVAULT_STATUS_REFRESH", 2*time.Second),
		NoticeRefresh: getDuration("VODVAULT_NOTICE_REFRESH", 5*time.Second),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
