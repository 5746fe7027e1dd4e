package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Library  LibraryConfig  `yaml:"library"`
	Tools    ToolsConfig    `yaml:"tools"`
	Download DownloadConfig `yaml:"download"`
	Metadata MetadataConfig `yaml:"metadata"`
	Notify   NotifyConfig   `yaml:"notify"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `yaml:"host" envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port         int           `yaml:"port" envconfig:"SERVER_PORT" default:"9173"`
	APIKey       string        `yaml:"api_key" envconfig:"API_KEY"`
	ReadTimeout  time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT" default:"5m"`
}

// LibraryConfig holds library storage configuration.
type LibraryConfig struct {
	// Dir is the library directory all artifacts are written into. It may be
	// empty at startup; download requests are rejected until it is set.
	Dir          string `yaml:"dir" envconfig:"LIBRARY_DIR"`
	DatabasePath string `yaml:"database_path" envconfig:"LIBRARY_DB_PATH" default:"vodvault.db"`
	// MinFreeBytes rejects dispatch when the library volume has less free
	// space than this. 0 disables the check.
	MinFreeBytes int64 `yaml:"min_free_bytes" envconfig:"LIBRARY_MIN_FREE_BYTES" default:"1073741824"`
	// WatchDebounce batches filesystem change bursts before an integrity run.
	WatchDebounce time.Duration `yaml:"watch_debounce" envconfig:"LIBRARY_WATCH_DEBOUNCE" default:"2s"`
}

// ToolsConfig holds the external worker tool paths.
type ToolsConfig struct {
	YTDLPPath          string `yaml:"ytdlp_path" envconfig:"TOOL_YTDLP_PATH" default:"yt-dlp"`
	ChatDownloaderPath string `yaml:"chat_downloader_path" envconfig:"TOOL_CHAT_DOWNLOADER_PATH" default:"chat_downloader"`
	FFprobePath        string `yaml:"ffprobe_path" envconfig:"TOOL_FFPROBE_PATH" default:"ffprobe"`
	CookiesPath        string `yaml:"cookies_path" envconfig:"TOOL_COOKIES_PATH"`
	// CookiesPassphrase decrypts an encrypted cookies file at startup. Set it
	// via environment only.
	CookiesPassphrase string `yaml:"-" envconfig:"TOOL_COOKIES_PASSPHRASE"`
}

// DownloadConfig holds media download configuration.
type DownloadConfig struct {
	Quality       string  `yaml:"quality" envconfig:"DOWNLOAD_QUALITY" default:"best"`
	RateLimitMBps float64 `yaml:"rate_limit_mbps" envconfig:"DOWNLOAD_RATE_LIMIT_MBPS"`
	Fragments     int     `yaml:"fragments" envconfig:"DOWNLOAD_FRAGMENTS" default:"10"`
	// JobTimeout bounds how long a worker job may run before the engine
	// treats it as hung. 0 disables the watchdog.
	JobTimeout time.Duration `yaml:"job_timeout" envconfig:"DOWNLOAD_JOB_TIMEOUT" default:"0"`
}

// MetadataConfig holds metadata queue configuration.
type MetadataConfig struct {
	// WaitTimeout bounds the synchronous metadata-resolution wait performed
	// before an ad-hoc download of an unresolved item.
	WaitTimeout time.Duration `yaml:"wait_timeout" envconfig:"METADATA_WAIT_TIMEOUT" default:"15s"`
	// CoalesceWindow batches field updates for the same item into one patch.
	CoalesceWindow time.Duration `yaml:"coalesce_window" envconfig:"METADATA_COALESCE_WINDOW" default:"250ms"`
	// DispatchDelay defers metadata dispatch off the command path.
	DispatchDelay time.Duration `yaml:"dispatch_delay" envconfig:"METADATA_DISPATCH_DELAY" default:"50ms"`
}

// NotifyConfig holds notice service configuration.
type NotifyConfig struct {
	RingSize      int    `yaml:"ring_size" envconfig:"NOTIFY_RING_SIZE" default:"500"`
	HistoryPath   string `yaml:"history_path" envconfig:"NOTIFY_HISTORY_PATH"`
	RetentionDays int    `yaml:"retention_days" envconfig:"NOTIFY_RETENTION_DAYS" default:"30"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Load from YAML file if provided
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// Override with environment variables
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.Server.APIKey == "" {
		return fmt.Errorf("API_KEY is required")
	}
	if c.Library.DatabasePath == "" {
		return fmt.Errorf("LIBRARY_DB_PATH is required")
	}
	if c.Metadata.WaitTimeout <= 0 {
		return fmt.Errorf("METADATA_WAIT_TIMEOUT must be positive")
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
