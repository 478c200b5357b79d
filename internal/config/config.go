// Package config handles application configuration loading and management.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig
	Cache     CacheConfig
	DocDB     DocDBConfig
	Business  BusinessConfig
	Responder ResponderConfig
	Vault     VaultConfig
	Chat      ChatConfig
	Log       LogConfig
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Host            string
	Port            int
	GinMode         string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// CacheConfig holds cache-related configuration.
type CacheConfig struct {
	Type     string
	Host     string
	Port     string
	Password string
	DB       int
	TTL      time.Duration
}

// DocDBConfig holds the history archive configuration.
type DocDBConfig struct {
	Type     string
	URI      string
	Database string
}

// BusinessConfig holds the business context store configuration.
type BusinessConfig struct {
	Driver string
	DSN    string
}

// ResponderConfig selects and configures the reply backend.
type ResponderConfig struct {
	Type string
	// APIKey is either a literal key or a vault reference such as dotenv://OPENAI_API_KEY.
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int
	Timeout   time.Duration
}

// VaultConfig holds secrets configuration.
type VaultConfig struct {
	Type string
}

// ChatConfig holds the chat session timings and limits.
type ChatConfig struct {
	JoinGrace        time.Duration
	ResolveTimeout   time.Duration
	HistoryLimit     int
	TypingTimeout    time.Duration
	InactivityWindow time.Duration
	SweepInterval    time.Duration
	MaxMessageLength int
	QueueSize        int
	SendBuffer       int
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			GinMode:         getEnv("GIN_MODE", "debug"),
			AllowedOrigins:  getEnvAsList("ALLOWED_ORIGINS", nil),
			ShutdownTimeout: time.Duration(getEnvAsInt("SHUTDOWN_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		Cache: CacheConfig{
			Type:     getEnv("CACHE_TYPE", "redis"),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			TTL:      time.Duration(getEnvAsInt("CACHE_TTL_SECONDS", 180)) * time.Second,
		},
		DocDB: DocDBConfig{
			Type:     getEnv("DOCDB_TYPE", "mongodb"),
			URI:      getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database: getEnv("MONGODB_DATABASE", "livechat"),
		},
		Business: BusinessConfig{
			Driver: getEnv("BUSINESS_DB_DRIVER", "sqlite"),
			DSN:    getEnv("BUSINESS_DB_DSN", "data/business.db"),
		},
		Responder: ResponderConfig{
			Type:      getEnv("RESPONDER_TYPE", "echo"),
			APIKey:    getEnv("RESPONDER_API_KEY", ""),
			Model:     getEnv("RESPONDER_MODEL", ""),
			BaseURL:   getEnv("RESPONDER_BASE_URL", ""),
			MaxTokens: getEnvAsInt("RESPONDER_MAX_TOKENS", 1024),
			Timeout:   time.Duration(getEnvAsInt("RESPONDER_TIMEOUT_SECONDS", 20)) * time.Second,
		},
		Vault: VaultConfig{
			Type: getEnv("VAULT_TYPE", "dotenv"),
		},
		Chat: ChatConfig{
			JoinGrace:        time.Duration(getEnvAsInt("CHAT_JOIN_GRACE_SECONDS", 10)) * time.Second,
			ResolveTimeout:   time.Duration(getEnvAsInt("CHAT_RESOLVE_TIMEOUT_SECONDS", 5)) * time.Second,
			HistoryLimit:     getEnvAsInt("CHAT_HISTORY_LIMIT", 20),
			TypingTimeout:    time.Duration(getEnvAsInt("CHAT_TYPING_TIMEOUT_SECONDS", 3)) * time.Second,
			InactivityWindow: time.Duration(getEnvAsInt("CHAT_INACTIVITY_MINUTES", 30)) * time.Minute,
			SweepInterval:    time.Duration(getEnvAsInt("CHAT_SWEEP_INTERVAL_MINUTES", 5)) * time.Minute,
			MaxMessageLength: getEnvAsInt("CHAT_MAX_MESSAGE_LENGTH", 1000),
			QueueSize:        getEnvAsInt("CHAT_QUEUE_SIZE", 8),
			SendBuffer:       getEnvAsInt("CHAT_SEND_BUFFER", 64),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Responder.Type {
	case "openai", "anthropic", "http", "echo":
	default:
		return fmt.Errorf("unsupported RESPONDER_TYPE: %s", c.Responder.Type)
	}
	if c.Responder.Type == "http" && c.Responder.BaseURL == "" {
		return fmt.Errorf("RESPONDER_BASE_URL is required for the http responder")
	}
	switch c.Business.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported BUSINESS_DB_DRIVER: %s", c.Business.Driver)
	}
	if c.Chat.MaxMessageLength <= 0 || c.Chat.HistoryLimit <= 0 {
		return fmt.Errorf("CHAT_MAX_MESSAGE_LENGTH and CHAT_HISTORY_LIMIT must be positive")
	}
	return nil
}

// getEnv gets an environment variable with a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value.
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma separated environment variable.
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
