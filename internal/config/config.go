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
	Server     ServerConfig
	Cache      CacheConfig
	DocDB      DocDBConfig
	Vault      VaultConfig
	Identity   IdentityConfig
	Completion CompletionConfig
	Session    SessionConfig
	Oracle     OracleConfig
	Log        LogConfig
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Host        string
	Port        int
	GinMode     string
	Environment string
	CORSOrigins []string
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsProduction reports whether the service runs in production.
func (c ServerConfig) IsProduction() bool {
	return c.Environment == "production"
}

// CacheConfig holds cache-related configuration.
type CacheConfig struct {
	Type           string
	Host           string
	Port           string
	Password       string
	DB             int
	TTL            time.Duration
	KeyPrefix      string
	ConnectTimeout time.Duration
}

// DocDBConfig holds document database configuration.
type DocDBConfig struct {
	Type           string
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

// VaultConfig holds vault configuration.
type VaultConfig struct {
	Type          string
	EncryptionKey string
}

// IdentityConfig holds identity backend configuration.
// Empty secrets are resolved through the vault at startup.
type IdentityConfig struct {
	URL        string
	AnonKey    string
	JWTSecret  string
	Timeout    time.Duration
	SiteURL    string
	LoginRate  int
	LoginBurst int
}

// CompletionConfig holds completion backend configuration.
type CompletionConfig struct {
	Type         string
	APIBase      string
	APIKey       string
	Model        string
	URL          string
	SystemPrompt string
	Temperature  float32
	MaxTokens    int
	HealthCheck  time.Duration
}

// MissingVars lists the environment variables the configured completion
// backend needs but did not get.
func (c CompletionConfig) MissingVars() []string {
	missing := []string{}
	switch c.Type {
	case "http":
		if c.URL == "" {
			missing = append(missing, "COMPLETION_URL")
		}
	default:
		if c.APIKey == "" {
			missing = append(missing, "LLM_API_KEY")
		}
		if c.Model == "" {
			missing = append(missing, "LLM_MODEL")
		}
	}
	return missing
}

// SessionConfig is the single source for every session lifecycle threshold.
type SessionConfig struct {
	InactivityWarning time.Duration
	InactivityLogout  time.Duration
	RefreshThreshold  time.Duration
	ExpiryWarning     time.Duration
	PollInterval      time.Duration
	AccessTokenTTL    time.Duration
	RefreshTokenTTL   time.Duration
	ActivityTTL       time.Duration
	ContextIdleTTL    time.Duration
	MaxContexts       int
	SecureCookies     bool
}

// OracleConfig holds streaming query configuration.
type OracleConfig struct {
	MaxQuestionLength int
	PersistRetries    int
	PersistBackoff    time.Duration
	HistoryLimit      int64
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	environment := getEnv("APP_ENV", "development")

	cfg := &Config{
		Server: ServerConfig{
			Host:        getEnv("SERVER_HOST", "0.0.0.0"),
			Port:        getEnvAsInt("SERVER_PORT", 8080),
			GinMode:     getEnv("GIN_MODE", "debug"),
			Environment: environment,
			CORSOrigins: getEnvAsList("CORS_ORIGINS", nil),
		},
		Cache: CacheConfig{
			Type:           getEnv("CACHE_TYPE", "redis"),
			Host:           getEnv("REDIS_HOST", "localhost"),
			Port:           getEnv("REDIS_PORT", "6379"),
			Password:       getEnv("REDIS_PASSWORD", ""),
			DB:             getEnvAsInt("REDIS_DB", 0),
			TTL:            time.Duration(getEnvAsInt("CACHE_TTL_SECONDS", 3600)) * time.Second,
			KeyPrefix:      getEnv("CACHE_KEY_PREFIX", "oracle:"),
			ConnectTimeout: getEnvAsDuration("REDIS_CONNECT_TIMEOUT", 5*time.Second),
		},
		DocDB: DocDBConfig{
			Type:           getEnv("DOCDB_TYPE", "mongodb"),
			URI:            getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database:       getEnv("MONGODB_DATABASE", "oracle"),
			ConnectTimeout: getEnvAsDuration("MONGODB_CONNECT_TIMEOUT", 10*time.Second),
		},
		Vault: VaultConfig{
			Type:          getEnv("VAULT_TYPE", "dotenv"),
			EncryptionKey: getEnv("SECRETS_ENCRYPTION_KEY", ""),
		},
		Identity: IdentityConfig{
			URL:        getEnv("IDENTITY_URL", ""),
			AnonKey:    getEnv("IDENTITY_ANON_KEY", ""),
			JWTSecret:  getEnv("IDENTITY_JWT_SECRET", ""),
			Timeout:    getEnvAsDuration("IDENTITY_TIMEOUT", 15*time.Second),
			SiteURL:    getEnv("SITE_URL", "http://localhost:8080"),
			LoginRate:  getEnvAsInt("AUTH_LOGIN_RATE", 10),
			LoginBurst: getEnvAsInt("AUTH_LOGIN_BURST", 5),
		},
		Completion: CompletionConfig{
			Type:         getEnv("COMPLETION_TYPE", "openai"),
			APIBase:      getEnv("LLM_API_BASE", ""),
			APIKey:       getEnv("LLM_API_KEY", ""),
			Model:        getEnv("LLM_MODEL", ""),
			URL:          getEnv("COMPLETION_URL", ""),
			SystemPrompt: getEnv("ORACLE_SYSTEM_PROMPT", defaultSystemPrompt),
			Temperature:  float32(getEnvAsFloat("LLM_TEMPERATURE", 0.8)),
			MaxTokens:    getEnvAsInt("LLM_MAX_TOKENS", 500),
			HealthCheck:  getEnvAsDuration("LLM_HEALTH_TIMEOUT", 5*time.Second),
		},
		Session: SessionConfig{
			InactivityWarning: getEnvAsDuration("SESSION_INACTIVITY_WARNING", 15*time.Minute),
			InactivityLogout:  getEnvAsDuration("SESSION_INACTIVITY_LOGOUT", 20*time.Minute),
			RefreshThreshold:  getEnvAsDuration("SESSION_REFRESH_THRESHOLD", 30*time.Minute),
			ExpiryWarning:     getEnvAsDuration("SESSION_EXPIRY_WARNING", 5*time.Minute),
			PollInterval:      getEnvAsDuration("SESSION_POLL_INTERVAL", 60*time.Second),
			AccessTokenTTL:    getEnvAsDuration("SESSION_ACCESS_TOKEN_TTL", time.Hour),
			RefreshTokenTTL:   getEnvAsDuration("SESSION_REFRESH_TOKEN_TTL", 30*24*time.Hour),
			ActivityTTL:       getEnvAsDuration("SESSION_ACTIVITY_TTL", 24*time.Hour),
			ContextIdleTTL:    getEnvAsDuration("SESSION_CONTEXT_IDLE_TTL", 2*time.Hour),
			MaxContexts:       getEnvAsInt("SESSION_MAX_CONTEXTS", 10000),
			SecureCookies:     getEnvAsBool("SESSION_SECURE_COOKIES", environment == "production"),
		},
		Oracle: OracleConfig{
			MaxQuestionLength: getEnvAsInt("ORACLE_MAX_QUESTION_LENGTH", 2000),
			PersistRetries:    getEnvAsInt("ORACLE_PERSIST_RETRIES", 3),
			PersistBackoff:    getEnvAsDuration("ORACLE_PERSIST_BACKOFF", 500*time.Millisecond),
			HistoryLimit:      int64(getEnvAsInt("ORACLE_HISTORY_LIMIT", 50)),
		},
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "json"),
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  getEnvAsInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 3),
			MaxAgeDays: getEnvAsInt("LOG_MAX_AGE_DAYS", 28),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the session thresholds are coherent.
func (c *Config) Validate() error {
	s := c.Session
	if s.InactivityWarning <= 0 || s.InactivityLogout <= 0 {
		return fmt.Errorf("inactivity thresholds must be positive")
	}
	if s.InactivityWarning >= s.InactivityLogout {
		return fmt.Errorf("inactivity warning (%s) must be shorter than logout (%s)", s.InactivityWarning, s.InactivityLogout)
	}
	if s.ExpiryWarning >= s.RefreshThreshold {
		return fmt.Errorf("expiry warning (%s) must be shorter than refresh threshold (%s)", s.ExpiryWarning, s.RefreshThreshold)
	}
	if s.PollInterval <= 0 {
		return fmt.Errorf("session poll interval must be positive")
	}
	if c.Identity.Timeout < 10*time.Second || c.Identity.Timeout > 30*time.Second {
		return fmt.Errorf("identity timeout must be between 10s and 30s, got %s", c.Identity.Timeout)
	}
	switch c.Completion.Type {
	case "openai", "http":
	default:
		return fmt.Errorf("unsupported completion type: %s", c.Completion.Type)
	}
	return nil
}

const defaultSystemPrompt = "You are a mystical oracle. Answer the seeker's question with warmth, " +
	"symbolism and practical guidance. Keep answers under 300 words."

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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("90s", "15m") or plain seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
