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

// Config holds all configuration for the screener
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database (optional; scans can run without Postgres)
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Market data / universe
	MarketData MarketDataConfig
	Universe   UniverseConfig

	// Scanning
	Scan     ScanConfig
	Schedule ScheduleConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// MarketDataConfig configures the price history source
type MarketDataConfig struct {
	Source            string // http, postgres, synthetic
	BaseURL           string
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerSecond float64
	MinBars           int
	CacheTTL          time.Duration
}

// UniverseConfig configures the symbol universe provider
type UniverseConfig struct {
	Source     string // static, postgres, html
	ListingURL string
	Markets    []string
	ExcludeST  bool
	Symbols    []string
}

// ScanConfig holds scanner defaults
type ScanConfig struct {
	Workers    int
	MinScore   float64
	MaxResults int
	BatchSize  int
	Rules      []string
	RulesFile  string
}

// ScheduleConfig holds the cron spec for scheduled scans
type ScheduleConfig struct {
	ScanCron string
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit .env file. An empty path searches the
// default locations.
func LoadFile(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", path, err)
		}
	} else {
		loadEnvFile()
	}

	cfg := &Config{
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		MarketData: MarketDataConfig{
			Source:            getEnv("MARKETDATA_SOURCE", "synthetic"),
			BaseURL:           getEnv("MARKETDATA_BASE_URL", "https://fchart.stock.naver.com"),
			Timeout:           getEnvAsDuration("MARKETDATA_TIMEOUT", "10s"),
			MaxRetries:        getEnvAsInt("MARKETDATA_MAX_RETRIES", 3),
			RequestsPerSecond: getEnvAsFloat("MARKETDATA_RPS", 5),
			MinBars:           getEnvAsInt("MARKETDATA_MIN_BARS", 300),
			CacheTTL:          getEnvAsDuration("MARKETDATA_CACHE_TTL", "1h"),
		},

		Universe: UniverseConfig{
			Source:     getEnv("UNIVERSE_SOURCE", "static"),
			ListingURL: getEnv("UNIVERSE_LISTING_URL", ""),
			Markets:    getEnvAsList("UNIVERSE_MARKETS", nil),
			ExcludeST:  getEnvAsBool("UNIVERSE_EXCLUDE_ST", true),
			Symbols:    getEnvAsList("UNIVERSE_SYMBOLS", nil),
		},

		Scan: ScanConfig{
			Workers:    getEnvAsInt("SCAN_WORKERS", 5),
			MinScore:   getEnvAsFloat("SCAN_MIN_SCORE", 60),
			MaxResults: getEnvAsInt("SCAN_MAX_RESULTS", 50),
			BatchSize:  getEnvAsInt("SCAN_BATCH_SIZE", 100),
			Rules:      getEnvAsList("SCAN_RULES", []string{"GoldenPit", "TrendBreakout"}),
			RulesFile:  getEnv("SCAN_RULES_FILE", ""),
		},

		Schedule: ScheduleConfig{
			ScanCron: getEnv("SCHEDULE_SCAN_CRON", "0 30 16 * * 1-5"),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks that configuration values are usable
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Scan.Workers < 1 || c.Scan.Workers > 32 {
		return fmt.Errorf("SCAN_WORKERS must be between 1 and 32, got %d", c.Scan.Workers)
	}

	if c.Scan.MinScore < 0 || c.Scan.MinScore > 100 {
		return fmt.Errorf("SCAN_MIN_SCORE must be between 0 and 100, got %.2f", c.Scan.MinScore)
	}

	if c.Scan.MaxResults <= 0 {
		return fmt.Errorf("SCAN_MAX_RESULTS must be positive, got %d", c.Scan.MaxResults)
	}

	if c.Scan.BatchSize <= 0 {
		return fmt.Errorf("SCAN_BATCH_SIZE must be positive, got %d", c.Scan.BatchSize)
	}

	switch c.MarketData.Source {
	case "http", "postgres", "synthetic":
	default:
		return fmt.Errorf("MARKETDATA_SOURCE must be one of: http, postgres, synthetic")
	}

	switch c.Universe.Source {
	case "static", "postgres", "html":
	default:
		return fmt.Errorf("UNIVERSE_SOURCE must be one of: static, postgres, html")
	}

	if c.MarketData.MinBars <= 0 {
		return fmt.Errorf("MARKETDATA_MIN_BARS must be positive, got %d", c.MarketData.MinBars)
	}

	return nil
}

// RedisAddr returns host:port for the Redis client
func (c *Config) RedisAddr() string {
	return c.Redis.Host + ":" + c.Redis.Port
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}

// getEnvAsList splits a comma separated value, dropping empty items
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
