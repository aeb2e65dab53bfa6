package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"damai-scraper/utils"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"

	DefaultSearchURL = "https://search.damai.cn/search.html"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	DBDriver         string
	DatabaseURL      string
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
	SQLitePath       string

	MaxConcurrency int
	RateLimitMs    int
	MaxRetries     int
	RetryBackoffMs int

	SearchURL      string
	PageLoadWaitMs int
	FetchTimeoutMs int
	ChromeBin      string

	SnapshotDir string
	HTTPAddr    string
	LogLevel    string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		DBDriver:         getEnv("DB_DRIVER", DriverPostgres),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "damai"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "damai123"),
		PostgresDB:       getEnv("POSTGRES_DB", "damai"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		SQLitePath:       getEnv("SQLITE_PATH", "./data/damai.db"),

		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 2),
		RateLimitMs:    getEnvInt("RATE_LIMIT_MS", 2000),
		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		RetryBackoffMs: getEnvInt("RETRY_BACKOFF_MS", 1000),

		SearchURL:      getEnv("SEARCH_URL", DefaultSearchURL),
		PageLoadWaitMs: getEnvInt("PAGE_LOAD_WAIT_MS", 10000),
		FetchTimeoutMs: getEnvInt("FETCH_TIMEOUT_MS", 60000),
		ChromeBin:      getEnv("CHROME_BIN", ""),

		SnapshotDir: getEnv("SNAPSHOT_DIR", ""),
		HTTPAddr:    getEnv("HTTP_ADDR", ":8000"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
	}
}

// DSN returns the connection string for the configured driver.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	if c.DBDriver == DriverSQLite {
		return c.SQLitePath
	}
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

// RetryPolicy returns the bounded retry policy shared by duplicate checks and commits.
func (c *Config) RetryPolicy(logger *utils.Logger) *utils.RetryPolicy {
	return &utils.RetryPolicy{
		MaxAttempts: c.MaxRetries,
		Backoff:     time.Duration(c.RetryBackoffMs) * time.Millisecond,
		Logger:      logger,
	}
}

// Logger builds the application logger at the configured level.
func (c *Config) Logger() *utils.Logger {
	return utils.NewLeveledLogger(utils.ParseLevel(c.LogLevel))
}

func (c *Config) RateLimit() time.Duration {
	return time.Duration(c.RateLimitMs) * time.Millisecond
}

func (c *Config) PageLoadWait() time.Duration {
	return time.Duration(c.PageLoadWaitMs) * time.Millisecond
}

func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutMs) * time.Millisecond
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}
