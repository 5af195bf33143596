package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Auth deployment modes
const (
	AuthModeBearer = "bearer"
	AuthModeCookie = "cookie"
)

// Config holds process configuration read from the environment
type Config struct {
	Port        string
	Env         string
	APIURL      string
	AuthMode    string
	DatabaseURL string
	StatePath   string
	HTTPTimeout time.Duration
	RankingSize int

	// PollInterval pins the feed period; zero follows the saved settings
	PollInterval time.Duration

	// DemoMode serves synthetic incidents instead of polling the API
	DemoMode bool
}

// Load reads an optional .env file and then the environment
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using system environment")
	}

	mode := strings.ToLower(getEnv("AUTH_MODE", AuthModeBearer))
	if mode != AuthModeCookie {
		mode = AuthModeBearer
	}

	return &Config{
		Port:         getEnv("PORT", "8080"),
		Env:          getEnv("GO_ENV", "development"),
		APIURL:       strings.TrimRight(getEnv("API_URL", "http://localhost:8000"), "/"),
		AuthMode:     mode,
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		StatePath:    getEnv("STATE_PATH", "racc-state.db"),
		PollInterval: getDuration("POLL_INTERVAL", 0),
		HTTPTimeout:  getDuration("HTTP_TIMEOUT", 30*time.Second),
		RankingSize:  getInt("RANKING_SIZE", 10),
		DemoMode:     getBool("DEMO_MODE", false),
	}
}

// IsProduction reports whether GO_ENV selects production behaviour
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// NewLogger returns the process logger: JSON in production, text otherwise
func (c *Config) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if !c.IsProduction() {
		opts.Level = slog.LevelDebug
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	// Bare numbers are seconds
	if n, err := strconv.Atoi(value); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	slog.Warn("Invalid duration, using default", "key", key, "value", value)
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		slog.Warn("Invalid integer, using default", "key", key, "value", value)
		return defaultValue
	}
	return n
}

func getBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		slog.Warn("Invalid boolean, using default", "key", key, "value", value)
		return defaultValue
	}
	return b
}
