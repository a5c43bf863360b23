package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadFromEnv loads configuration from environment variables
// Parameters:
// - configDir: Directory containing config files (or empty for default ~/.linkmark)
// - configFilePath: Path to .env file (or empty for default)
func LoadFromEnv(configDir string, configFilePath string) (*Config, error) {
	cfg := New()

	// If configDir is empty, use the default
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".linkmark")

		if err := os.MkdirAll(configDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	cfg.configDir = configDir

	// Use provided config file path or default
	if configFilePath == "" {
		configFilePath = filepath.Join(configDir, ".env")
	}

	// Check if ENV_FILE_PATH is set to load from a custom .env file
	envFilePath := getEnvString("ENV_FILE_PATH", "")
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			return nil, fmt.Errorf("failed to load env file from %s: %w", envFilePath, err)
		}
	} else {
		// Try the config directory first, then the current directory
		if err := godotenv.Load(configFilePath); err != nil {
			_ = godotenv.Load() // Ignore errors if file doesn't exist
		}
	}

	cfg.Server = ServerConfig{
		URL:        strings.TrimSuffix(getEnvString("LINKMARK_SERVER_URL", ""), "/"),
		Token:      getEnvString("LINKMARK_SERVER_TOKEN", ""),
		Timeout:    getEnvDuration("LINKMARK_SERVER_TIMEOUT", 30*time.Second),
		ClientName: getEnvString("LINKMARK_CLIENT_NAME", "linkmark-cli"),
	}

	cfg.Sync = SyncConfig{
		Mode:           getEnvString("LINKMARK_SYNC_MODE", "manual"),
		MaxRetries:     getEnvInt("LINKMARK_SYNC_MAX_RETRIES", 3),
		BaseDelay:      getEnvDuration("LINKMARK_SYNC_BASE_DELAY", time.Second),
		MaxConcurrency: getEnvInt("LINKMARK_SYNC_MAX_CONCURRENCY", 3),
		RequestsPerMin: getEnvInt("LINKMARK_SYNC_REQUESTS_PER_MIN", 120),
		RateBurst:      getEnvInt("LINKMARK_SYNC_RATE_BURST", 10),
	}

	cfg.Database = DatabaseConfig{
		Path:            getEnvString("LINKMARK_DB_PATH", filepath.Join(configDir, "linkmark.db")),
		JournalMode:     getEnvString("LINKMARK_DB_JOURNAL_MODE", "WAL"),
		SynchronousMode: getEnvString("LINKMARK_DB_SYNCHRONOUS", "NORMAL"),
		BusyTimeout:     getEnvInt("LINKMARK_DB_BUSY_TIMEOUT", 5000),
		ForeignKeys:     getEnvBool("LINKMARK_DB_FOREIGN_KEYS", true),
		ConnMaxLife:     getEnvDuration("LINKMARK_DB_CONN_MAX_LIFE", time.Hour),
	}

	cfg.Logging = LoggingConfig{
		Level:      getEnvString("LINKMARK_LOG_LEVEL", "info"),
		Format:     getEnvString("LINKMARK_LOG_FORMAT", "text"),
		Output:     getEnvString("LINKMARK_LOG_OUTPUT", filepath.Join(configDir, "linkmark.log")),
		AddSource:  getEnvBool("LINKMARK_LOG_ADD_SOURCE", false),
		TimeFormat: getEnvString("LINKMARK_LOG_TIME_FORMAT", time.RFC3339),
	}

	return cfg, nil
}

func getEnvString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
