package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

type Config struct {
	// HTTP Server
	Port               string
	RateLimitPerMinute int

	// Local store
	StoreBackend          string
	SQLiteDBPath          string
	StoreKey              string
	NuclearReset          bool
	DefaultCategoriesFile string

	// Remote document store
	RemoteBackend string
	DatabaseURL   string

	// AMQP change feed
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets export
	GoogleSpreadsheetID   string
	GoogleSheetName       string
	GoogleOAuthClientFile string
	GoogleOAuthTokenFile  string
	GoogleOAuthClientJSON string
	GoogleOAuthTokenJSON  string

	// Domain limits
	MaxTransactionAmount    float64
	MonthlyExpenseSoftLimit float64

	// Scheduler
	WeatherTriggerHour int
	WeatherCity        string
	PollInterval       time.Duration

	// Replication write queue
	WriteQueueCapacity   int
	WriteQueueMaxRetries int

	// Analytics summary cache
	SummaryCacheSize int
	SummaryCacheTTL  time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	cfg := &Config{
		Port:               getEnv("PORT", "8081"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),

		StoreBackend:          getEnv("STORE_BACKEND", BackendSQLite),
		SQLiteDBPath:          getEnv("SQLITE_DB_PATH", "./data/famledger.db"),
		StoreKey:              getEnv("STORE_KEY", "famledger-storage"),
		NuclearReset:          getEnvBool("NUCLEAR_RESET", false),
		DefaultCategoriesFile: getEnv("DEFAULT_CATEGORIES_FILE", ""),

		RemoteBackend: getEnv("REMOTE_BACKEND", BackendMemory),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "famledger.changes"),
		AMQPQueue:    getEnv("AMQP_QUEUE", ""),

		GoogleSpreadsheetID:   getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:       getEnv("GOOGLE_SHEET_NAME", "Summary"),
		GoogleOAuthClientFile: getEnv("GOOGLE_OAUTH_CLIENT_FILE", ""),
		GoogleOAuthTokenFile:  getEnv("GOOGLE_OAUTH_TOKEN_FILE", ""),
		GoogleOAuthClientJSON: getEnv("GOOGLE_OAUTH_CLIENT_JSON", ""),
		GoogleOAuthTokenJSON:  getEnv("GOOGLE_OAUTH_TOKEN_JSON", ""),

		MaxTransactionAmount:    getEnvFloat("MAX_TRANSACTION_AMOUNT", 100_000_000_000),
		MonthlyExpenseSoftLimit: getEnvFloat("MONTHLY_EXPENSE_SOFT_LIMIT", 20_000_000),

		WeatherTriggerHour: getEnvInt("WEATHER_TRIGGER_HOUR", 8),
		WeatherCity:        getEnv("WEATHER_CITY", "Hanoi"),
		PollInterval:       getEnvDuration("POLL_INTERVAL", 60*time.Second),

		WriteQueueCapacity:   getEnvInt("WRITE_QUEUE_CAPACITY", 256),
		WriteQueueMaxRetries: getEnvInt("WRITE_QUEUE_MAX_RETRIES", 5),

		SummaryCacheSize: getEnvInt("SUMMARY_CACHE_SIZE", 64),
		SummaryCacheTTL:  getEnvDuration("SUMMARY_CACHE_TTL", 5*time.Minute),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	return cfg
}

// SheetsEnabled reports whether the Google Sheets export is configured.
func (c *Config) SheetsEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	storeBackends := []string{BackendMemory, BackendSQLite}
	if !slices.Contains(storeBackends, c.StoreBackend) {
		errors = append(errors, fmt.Sprintf("invalid store backend '%s': must be one of %v", c.StoreBackend, storeBackends))
	}

	if c.StoreBackend == BackendSQLite {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite store")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if strings.TrimSpace(c.StoreKey) == "" {
		errors = append(errors, "store key cannot be empty")
	}

	if c.DefaultCategoriesFile != "" {
		if _, err := os.Stat(c.DefaultCategoriesFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("default categories file does not exist: %s", c.DefaultCategoriesFile))
		}
	}

	remoteBackends := []string{BackendMemory, BackendPostgres}
	if !slices.Contains(remoteBackends, c.RemoteBackend) {
		errors = append(errors, fmt.Sprintf("invalid remote backend '%s': must be one of %v", c.RemoteBackend, remoteBackends))
	}
	if c.RemoteBackend == BackendPostgres && c.DatabaseURL == "" {
		errors = append(errors, "DATABASE_URL is required when using postgres remote backend")
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	if c.SheetsEnabled() {
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google Sheet name is required when sheets export is enabled")
		}
		if c.GoogleOAuthClientFile == "" && c.GoogleOAuthClientJSON == "" {
			errors = append(errors, "either GOOGLE_OAUTH_CLIENT_FILE or GOOGLE_OAUTH_CLIENT_JSON must be provided for sheets export")
		}
		if c.GoogleOAuthTokenFile == "" && c.GoogleOAuthTokenJSON == "" {
			errors = append(errors, "either GOOGLE_OAUTH_TOKEN_FILE or GOOGLE_OAUTH_TOKEN_JSON must be provided for sheets export")
		}
	}

	if c.MaxTransactionAmount <= 0 {
		errors = append(errors, fmt.Sprintf("invalid max transaction amount %v: must be positive", c.MaxTransactionAmount))
	}
	if c.MonthlyExpenseSoftLimit <= 0 {
		errors = append(errors, fmt.Sprintf("invalid monthly expense soft limit %v: must be positive", c.MonthlyExpenseSoftLimit))
	}

	if c.WeatherTriggerHour < 0 || c.WeatherTriggerHour > 23 {
		errors = append(errors, fmt.Sprintf("invalid weather trigger hour %d: must be between 0 and 23", c.WeatherTriggerHour))
	}

	if c.PollInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid poll interval %v: must be at least 1 second", c.PollInterval))
	} else if c.PollInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid poll interval %v: must be at most 24 hours", c.PollInterval))
	}

	if c.WriteQueueCapacity < 1 {
		errors = append(errors, fmt.Sprintf("invalid write queue capacity %d: must be at least 1", c.WriteQueueCapacity))
	}
	if c.WriteQueueMaxRetries < 0 {
		errors = append(errors, fmt.Sprintf("invalid write queue max retries %d: must not be negative", c.WriteQueueMaxRetries))
	}

	if c.SummaryCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid summary cache size %d: must be at least 1", c.SummaryCacheSize))
	}

	logFormats := []string{"text", "json", "console"}
	if !slices.Contains(logFormats, strings.ToLower(c.LogFormat)) {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be one of %v", c.LogFormat, logFormats))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
