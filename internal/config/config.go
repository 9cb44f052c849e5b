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
	Port     string
	Env      string
	LogLevel string

	// Fallback file store and uploads
	DataFile       string
	UploadDir      string
	PublicDir      string
	MaxUploadBytes int64

	// Distributed store
	StoreHost          string
	StorePort          int
	StoreAddrs         []string // enables the universal (cluster/sentinel) dialer
	StorePassword      string
	StoreDB            int
	StoreDialTimeout   time.Duration
	StoreOpTimeout     time.Duration
	StoreRetryInterval time.Duration
	StoreDisabled      bool

	// Room index: Postgres when DatabaseURL is set, SQLite otherwise
	DatabaseURL   string
	RoomIndexPath string

	// Rate limiting
	RateLimitWhitelist []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled   bool     // Enable auto-blocking after repeated violations
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// It panics on malformed values and, in production, on a missing store address.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:     getEnv("PORT", "4000"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DataFile:       getEnv("DATA_FILE", "data/messages.json"),
		UploadDir:      getEnv("UPLOAD_DIR", "uploads"),
		PublicDir:      getEnv("PUBLIC_DIR", "public"),
		MaxUploadBytes: int64(getInt("MAX_UPLOAD_BYTES", 25*1024*1024)),

		StoreHost:          getEnv("STORE_HOST", "127.0.0.1"),
		StorePort:          getInt("STORE_PORT", 6379),
		StoreAddrs:         getList("STORE_ADDRS"),
		StorePassword:      os.Getenv("STORE_PASSWORD"),
		StoreDB:            getInt("STORE_DB", 0),
		StoreDialTimeout:   getDuration("STORE_DIAL_TIMEOUT", 2*time.Second),
		StoreOpTimeout:     getDuration("STORE_OP_TIMEOUT", 3*time.Second),
		StoreRetryInterval: getDuration("STORE_RETRY_INTERVAL", 5*time.Second),
		StoreDisabled:      getEnv("STORE_DISABLED", "false") == "true",

		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RoomIndexPath: getEnv("ROOM_INDEX_PATH", "data/rooms.db"),

		RateLimitWhitelist: getList("RATE_LIMIT_WHITELIST"),
		AutoBlockEnabled:   getEnv("AUTO_BLOCK_ENABLED", "false") == "true",
	}

	// In production, the distributed store address must be explicit
	if cfg.Env == "production" && !cfg.StoreDisabled {
		if os.Getenv("STORE_HOST") == "" && len(cfg.StoreAddrs) == 0 {
			panic("STORE_HOST or STORE_ADDRS is required in production (or set STORE_DISABLED=true)")
		}
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		panic(fmt.Sprintf("%s must be an integer, got %q", key, value))
	}
	return n
}

// getDuration accepts Go durations ("1500ms") or plain milliseconds.
func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		panic(fmt.Sprintf("%s must be a duration, got %q", key, value))
	}
	return d
}

// getList parses a comma-separated value.
func getList(key string) []string {
	var out []string
	for _, entry := range strings.Split(os.Getenv(key), ",") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			out = append(out, entry)
		}
	}
	return out
}
