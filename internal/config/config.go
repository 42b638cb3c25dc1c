package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port               string
	AllowedOrigins     []string
	RateLimitPerMinute int
	TrustProxy         bool

	// Database
	DBDriver     string
	SQLiteDBPath string
	DatabaseURL  string

	// Auth
	JWTSecret string
	JWTTTL    time.Duration

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Redis
	RedisAddr string

	// Insights
	GeminiAPIKey     string
	GeminiModel      string
	InsightsCacheTTL time.Duration

	// Object storage
	ObjectStore         string
	ObjectDir           string
	ObjectPublicBaseURL string
	GCSBucket           string

	// Google Sheets
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string

	// Goals
	GoalStatusPolicy  string
	GoalSweepInterval time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	cfg := &Config{
		Port:               getEnv("PORT", "8081"),
		AllowedOrigins:     getEnvList("ALLOWED_ORIGINS"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		TrustProxy:         getEnvBool("TRUST_PROXY", false),

		DBDriver:     getEnv("DB_DRIVER", "sqlite"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/finsight.db"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTTTL:    getEnvDuration("JWT_TTL", 24*time.Hour),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "finsight"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "finsight_sheets_mirror"),

		RedisAddr: getEnv("REDIS_ADDR", ""),

		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		GeminiModel:      getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		InsightsCacheTTL: getEnvDuration("INSIGHTS_CACHE_TTL", 10*time.Minute),

		ObjectStore:         getEnv("OBJECT_STORE", "local"),
		ObjectDir:           getEnv("OBJECT_DIR", "./data/objects"),
		ObjectPublicBaseURL: getEnv("OBJECT_PUBLIC_BASE_URL", "http://localhost:8081/objects"),
		GCSBucket:           getEnv("GCS_BUCKET", ""),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Transactions"),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),

		GoalStatusPolicy:  getEnv("GOAL_STATUS_POLICY", "manual"),
		GoalSweepInterval: getEnvDuration("GOAL_SWEEP_INTERVAL", time.Hour),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	return cfg
}

// SheetsEnabled reports whether a spreadsheet is configured.
func (c *Config) SheetsEnabled() bool {
	return strings.TrimSpace(c.GoogleSpreadsheetID) != ""
}

// Validate validates the configuration and returns an error listing every
// problem found.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch c.DBDriver {
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite driver")
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
	case "postgres":
		if c.DatabaseURL == "" {
			errors = append(errors, "DATABASE_URL is required when using postgres driver")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid database driver '%s': must be one of [sqlite postgres]", c.DBDriver))
	}

	if len(c.JWTSecret) < 16 {
		errors = append(errors, "JWT_SECRET must be at least 16 characters")
	}
	if c.JWTTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid JWT TTL %v: must be at least 1 minute", c.JWTTTL))
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

	switch c.ObjectStore {
	case "local":
		if c.ObjectDir == "" {
			errors = append(errors, "OBJECT_DIR is required when using local object store")
		}
	case "gcs":
		if c.GCSBucket == "" {
			errors = append(errors, "GCS_BUCKET is required when using gcs object store")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid object store '%s': must be one of [local gcs]", c.ObjectStore))
	}
	if u, err := url.Parse(c.ObjectPublicBaseURL); c.ObjectStore == "local" && (err != nil || u.Scheme == "" || u.Host == "") {
		errors = append(errors, fmt.Sprintf("invalid object public base URL '%s'", c.ObjectPublicBaseURL))
	}

	if c.GoogleServiceAccountFile != "" {
		if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
		}
	}

	switch c.GoalStatusPolicy {
	case "manual", "automatic":
	default:
		errors = append(errors, fmt.Sprintf("invalid goal status policy '%s': must be one of [manual automatic]", c.GoalStatusPolicy))
	}
	if c.GoalSweepInterval < time.Minute || c.GoalSweepInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid goal sweep interval %v: must be between 1 minute and 24 hours", c.GoalSweepInterval))
	}

	if c.InsightsCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid insights cache TTL %v: must not be negative", c.InsightsCacheTTL))
	}
	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 per minute", c.RateLimitPerMinute))
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ValidateWorker checks only what the worker needs.
func (c *Config) ValidateWorker() error {
	var errors []string
	if c.AMQPURL == "" {
		errors = append(errors, "AMQP_URL is required for the worker")
	}
	if c.AMQPQueue == "" {
		errors = append(errors, "AMQP queue name cannot be empty for the worker")
	}
	if c.DBDriver == "postgres" && c.DatabaseURL == "" {
		errors = append(errors, "DATABASE_URL is required when using postgres driver")
	}
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// ClientConfig configures the terminal client.
type ClientConfig struct {
	BaseURL   string
	Home      string
	KVBackend string
	RedisAddr string
	Debounce  time.Duration
	LogLevel  string
}

func LoadClient() *ClientConfig {
	home := getEnv("FINSIGHT_HOME", "")
	if home == "" {
		if dir, err := os.UserConfigDir(); err == nil {
			home = filepath.Join(dir, "finsight")
		} else {
			home = ".finsight"
		}
	}
	return &ClientConfig{
		BaseURL:   strings.TrimRight(getEnv("FINSIGHT_URL", "http://localhost:8081"), "/"),
		Home:      home,
		KVBackend: getEnv("FINSIGHT_KV", "file"),
		RedisAddr: getEnv("REDIS_ADDR", ""),
		Debounce:  getEnvDuration("REALTIME_DEBOUNCE", 250*time.Millisecond),
		LogLevel:  getEnv("LOG_LEVEL", "warn"),
	}
}

func (c *ClientConfig) Validate() error {
	var errors []string
	if u, err := url.Parse(c.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errors = append(errors, fmt.Sprintf("invalid FINSIGHT_URL '%s': must be an http(s) URL", c.BaseURL))
	}
	switch c.KVBackend {
	case "file", "memory":
	case "redis":
		if c.RedisAddr == "" {
			errors = append(errors, "REDIS_ADDR is required when FINSIGHT_KV=redis")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid FINSIGHT_KV '%s': must be one of [file redis memory]", c.KVBackend))
	}
	if c.Debounce < 0 || c.Debounce > 10*time.Second {
		errors = append(errors, fmt.Sprintf("invalid realtime debounce %v: must be between 0 and 10 seconds", c.Debounce))
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
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

// getEnvList splits a comma-separated variable, dropping empty items.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
