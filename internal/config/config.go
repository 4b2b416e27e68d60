package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends understood by STORE_BACKEND.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StoreBigQuery = "bigquery"
)

const minJWTSecretLen = 16

// Config holds all runtime configuration. Values come from the environment,
// optionally seeded from a .env file.
type Config struct {
	// Core settings
	Port       string
	LogLevel   string
	LogJSON    bool
	CORSOrigin string

	// Model
	GeminiAPIKey     string
	ModelName        string
	MaxPromptChars   int
	ModelCallTimeout time.Duration
	RunTimeout       time.Duration

	// Security
	JWTSecret string

	// Storage
	StoreBackend    string
	SQLitePath      string
	BigQueryProject string
	BigQueryDataset string
	GCSBucket       string

	// Uploads and listing
	MaxUploadSizeBytes int64
	DedupWindow        time.Duration
	ListLimit          int

	// Workers
	Workers   int
	QueueSize int

	// Rate limiting of submissions, per user
	SubmitRatePerMinute float64
	SubmitBurst         int

	// Stale run reporting
	StaleAfter         time.Duration
	StaleCheckSchedule string
}

// Load reads configuration from a .env file (current or parent directory, if present)
// and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// Running from a subdirectory such as cmd/api is common in development.
		_ = godotenv.Load("../.env")
	}

	p := &parser{}
	cfg := &Config{
		Port:       getEnv("PORT", "8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		LogJSON:    p.bool("LOG_JSON", false),
		CORSOrigin: getEnv("CORS_ORIGIN", "*"),

		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		ModelName:        getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		MaxPromptChars:   p.int("MAX_PROMPT_CHARS", 30000),
		ModelCallTimeout: p.duration("MODEL_CALL_TIMEOUT", 120*time.Second),
		RunTimeout:       p.duration("RUN_TIMEOUT", 5*time.Minute),

		JWTSecret: getEnv("JWT_SECRET", ""),

		StoreBackend:    strings.ToLower(getEnv("STORE_BACKEND", StoreMemory)),
		SQLitePath:      getEnv("SQLITE_PATH", "spendiq.db"),
		BigQueryProject: getEnv("BIGQUERY_PROJECT", ""),
		BigQueryDataset: getEnv("BIGQUERY_DATASET", "spendiq"),
		GCSBucket:       getEnv("GCS_BUCKET", ""),

		MaxUploadSizeBytes: p.int64("MAX_UPLOAD_SIZE_BYTES", 10*1024*1024),
		DedupWindow:        p.duration("DEDUP_WINDOW", 10*time.Minute),
		ListLimit:          p.int("LIST_LIMIT", 50),

		Workers:   p.int("WORKERS", 4),
		QueueSize: p.int("QUEUE_SIZE", 100),

		SubmitRatePerMinute: p.float("SUBMIT_RATE_PER_MINUTE", 6),
		SubmitBurst:         p.int("SUBMIT_BURST", 3),

		StaleAfter:         p.duration("STALE_AFTER", 15*time.Minute),
		StaleCheckSchedule: getEnv("STALE_CHECK_SCHEDULE", "@every 5m"),
	}

	if len(p.errs) > 0 {
		return nil, fmt.Errorf("config: %w", errors.Join(p.errs...))
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// RequireServer checks the settings that only the API server needs.
func (c *Config) RequireServer() error {
	if strings.TrimSpace(c.GeminiAPIKey) == "" {
		return fmt.Errorf("config: GEMINI_API_KEY is required")
	}
	if len(c.JWTSecret) < minJWTSecretLen {
		return fmt.Errorf("config: JWT_SECRET must be at least %d bytes", minJWTSecretLen)
	}
	return nil
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case StoreMemory, StoreSQLite:
	case StoreBigQuery:
		if c.BigQueryProject == "" {
			return fmt.Errorf("BIGQUERY_PROJECT is required when STORE_BACKEND=bigquery")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	if c.MaxUploadSizeBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_SIZE_BYTES must be positive")
	}
	if c.MaxPromptChars <= 0 {
		return fmt.Errorf("MAX_PROMPT_CHARS must be positive")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("WORKERS must be positive")
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("QUEUE_SIZE must be positive")
	}
	if c.ListLimit <= 0 {
		return fmt.Errorf("LIST_LIMIT must be positive")
	}
	if c.SubmitRatePerMinute <= 0 || c.SubmitBurst <= 0 {
		return fmt.Errorf("SUBMIT_RATE_PER_MINUTE and SUBMIT_BURST must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// parser collects conversion errors so Load can report all of them at once.
type parser struct {
	errs []error
}

func (p *parser) int(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid integer for %s: %q", key, valueStr))
		return fallback
	}
	return value
}

func (p *parser) int64(key string, fallback int64) int64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid integer for %s: %q", key, valueStr))
		return fallback
	}
	return value
}

func (p *parser) float(key string, fallback float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid number for %s: %q", key, valueStr))
		return fallback
	}
	return value
}

func (p *parser) bool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid boolean for %s: %q", key, valueStr))
		return fallback
	}
	return value
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid duration for %s: %q", key, valueStr))
		return fallback
	}
	return value
}
