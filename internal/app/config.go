package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const defaultAPIBaseURL = "https://backend-ix5u.onrender.com"

type Config struct {
	HTTPAddr       string
	LogLevel       string
	LogFormat      string
	APIBaseURL     string
	APIBaseURLSet  bool
	RequestTimeout time.Duration
	SearchDebounce time.Duration
	CacheTTL       time.Duration
	CacheSize      int
	CacheDisabled  bool
	CatalogRateRPS float64
	RedisURL       string
	RecordsBackend string
	MongoURI       string
	MongoDB        string
	SessionIdleTTL time.Duration
	PersistTimeout time.Duration
	ReadOnly       bool
	OTLPEndpoint   string
	HTTPRateLimit  float64
	HTTPRateBurst  int
}

func LoadConfig() Config {
	baseURL := strings.TrimSpace(os.Getenv("API_BASE_URL"))
	return Config{
		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:      strings.ToLower(getEnv("LOG_FORMAT", "text")),
		APIBaseURL:     getEnv("API_BASE_URL", defaultAPIBaseURL),
		APIBaseURLSet:  baseURL != "",
		RequestTimeout: time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 15)) * time.Second,
		SearchDebounce: time.Duration(getEnvInt("SEARCH_DEBOUNCE_MS", 700)) * time.Millisecond,
		CacheTTL:       time.Duration(getEnvInt("SEARCH_CACHE_TTL_MINUTES", 5)) * time.Minute,
		CacheSize:      getEnvInt("SEARCH_CACHE_SIZE", 512),
		CacheDisabled:  getEnvBool("SEARCH_CACHE_DISABLED", false),
		CatalogRateRPS: getEnvFloat("CATALOG_RATE_LIMIT_RPS", 10),
		RedisURL:       getEnv("REDIS_URL", ""),
		RecordsBackend: normalizeBackend(getEnv("RECORDS_BACKEND", "http")),
		MongoURI:       getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:        getEnv("MONGO_DB", "moviesync"),
		SessionIdleTTL: time.Duration(getEnvInt("SESSION_IDLE_TTL_MINUTES", 30)) * time.Minute,
		PersistTimeout: time.Duration(getEnvInt("PERSIST_TIMEOUT_SECONDS", 10)) * time.Second,
		ReadOnly:       getEnvBool("CATALOG_READ_ONLY", false),
		OTLPEndpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		HTTPRateLimit:  getEnvFloat("HTTP_RATE_LIMIT_RPS", 50),
		HTTPRateBurst:  getEnvInt("HTTP_RATE_LIMIT_BURST", 100),
	}
}

func normalizeBackend(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "mongo", "mongodb":
		return "mongo"
	default:
		return "http"
	}
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
