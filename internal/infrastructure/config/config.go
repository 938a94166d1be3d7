package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Generator GeneratorConfig
	Sync      SyncConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port           string   `envconfig:"PORT" default:"8000"`
	Host           string   `envconfig:"HOST" default:"0.0.0.0"`
	MaxUploadBytes int64    `envconfig:"MAX_UPLOAD_BYTES" default:"16777216"`
	AllowedOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`
}

// StoreConfig holds applet storage configuration.
type StoreConfig struct {
	Root string `envconfig:"APPLET_ROOT" default:"applets"`
}

// GeneratorConfig holds the external generation service settings.
type GeneratorConfig struct {
	URL                string        `envconfig:"GENERATOR_URL" default:"https://api.groq.com/openai/v1"`
	APIKey             string        `envconfig:"GENERATOR_API_KEY"`
	ChatModel          string        `envconfig:"GENERATOR_CHAT_MODEL" default:"llama-3.1-70b-versatile"`
	TranscriptionModel string        `envconfig:"GENERATOR_TRANSCRIPTION_MODEL" default:"whisper-large-v3"`
	Timeout            time.Duration `envconfig:"GENERATOR_TIMEOUT" default:"2m"`
}

// SyncConfig holds sync engine settings used by the headless host.
type SyncConfig struct {
	ServerURL     string        `envconfig:"APPLET_SERVER" default:"http://localhost:8000"`
	Interval      time.Duration `envconfig:"SYNC_INTERVAL" default:"333ms"`
	Timeout       time.Duration `envconfig:"SYNC_TIMEOUT" default:"10s"`
	UploadTimeout time.Duration `envconfig:"SYNC_UPLOAD_TIMEOUT" default:"2m"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8000",
			Host:           "0.0.0.0",
			MaxUploadBytes: 16 << 20,
			AllowedOrigins: []string{"*"},
		},
		Store: StoreConfig{
			Root: "applets",
		},
		Generator: GeneratorConfig{
			URL:                "https://api.groq.com/openai/v1",
			ChatModel:          "llama-3.1-70b-versatile",
			TranscriptionModel: "whisper-large-v3",
			Timeout:            2 * time.Minute,
		},
		Sync: SyncConfig{
			ServerURL:     "http://localhost:8000",
			Interval:      333 * time.Millisecond,
			Timeout:       10 * time.Second,
			UploadTimeout: 2 * time.Minute,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
