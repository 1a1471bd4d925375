package infra

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"aistudio/internal/domain"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv   string
	Port     string
	LogLevel string

	GeneratorBaseURL    string
	StreamMethod        string
	MaxAttemptsPerImage int
	AttemptTimeout      time.Duration
	RetryDelay          time.Duration
	ImageDelay          time.Duration

	ReportDir   string
	DatabaseURL string
	DBMaxConns  int

	CORSAllowedOrigins []string
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:              getEnv("APP_ENV", "development"),
		Port:                getEnv("PORT", "8080"),
		LogLevel:            os.Getenv("LOG_LEVEL"),
		GeneratorBaseURL:    getEnv("GENERATOR_BASE_URL", "http://127.0.0.1:8000"),
		StreamMethod:        strings.ToUpper(getEnv("STREAM_METHOD", "GET")),
		MaxAttemptsPerImage: getEnvInt("MAX_ATTEMPTS_PER_IMAGE", 3),
		AttemptTimeout:      time.Second * time.Duration(getEnvInt("ATTEMPT_TIMEOUT_SECONDS", 300)),
		RetryDelay:          time.Millisecond * time.Duration(getEnvInt("RETRY_DELAY_MS", 1000)),
		ImageDelay:          time.Millisecond * time.Duration(getEnvInt("IMAGE_DELAY_MS", 400)),
		ReportDir:           getEnv("REPORT_DIR", "reports"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		DBMaxConns:          getEnvInt("DB_MAX_CONNS", 4),
		CORSAllowedOrigins:  splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		HTTPReadTimeout:     time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:    time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:     time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:     getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	if u, err := url.Parse(cfg.GeneratorBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("GENERATOR_BASE_URL must be an absolute URL, got %q", cfg.GeneratorBaseURL)
	}
	if cfg.StreamMethod != "GET" && cfg.StreamMethod != "POST" {
		return nil, fmt.Errorf("STREAM_METHOD must be GET or POST, got %q", cfg.StreamMethod)
	}
	if cfg.MaxAttemptsPerImage < 0 {
		return nil, fmt.Errorf("MAX_ATTEMPTS_PER_IMAGE must be >= 0, got %d", cfg.MaxAttemptsPerImage)
	}
	if cfg.DBMaxConns < 1 {
		return nil, fmt.Errorf("DB_MAX_CONNS must be >= 1, got %d", cfg.DBMaxConns)
	}
	if cfg.AttemptTimeout <= 0 {
		return nil, fmt.Errorf("ATTEMPT_TIMEOUT_SECONDS must be positive")
	}

	return cfg, nil
}

// AttemptBudget returns the per-image budget; 0 configures unbounded retries.
func (c *Config) AttemptBudget() (domain.AttemptBudget, error) {
	return domain.ParseAttemptBudget(c.MaxAttemptsPerImage)
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
