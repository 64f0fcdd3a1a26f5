package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Cache backends
const (
	CacheMemory   = "memory"
	CacheRedis    = "redis"
	CacheMemcache = "memcache"
)

// Config represents the application configuration
type Config struct {
	// HTTP API configuration
	HTTPAddr           string
	AllowedOrigins     []string
	RateLimitPerSecond float64

	// Currency configuration
	ReferenceCurrency string
	FallbackRates     map[string]float64
	RatesURL          string
	RatesRefresh      string

	// Fetch configuration
	FetchDeadline  time.Duration
	RequestTimeout time.Duration
	MinDelay       time.Duration
	MaxDelay       time.Duration
	MaxConcurrency int
	SourceBlock    time.Duration
	SourcesFile    string

	// Cache configuration
	CacheBackend string
	CacheTTL     time.Duration

	// Redis configuration
	RedisAddr            string
	RedisDB              int
	RedisStream          string
	RedisStreamMaxLength int

	// Memcache configuration
	MemcacheAddr string

	// Persistence; empty disables it
	DatabaseURL string

	// Cache warmer schedule; empty disables it
	WarmSchedule string

	// Environment
	Environment string
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() *Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	streamMaxLength, _ := strconv.Atoi(getEnv("REDIS_STREAM_MAX_LENGTH", "1000"))
	deadline, _ := strconv.Atoi(getEnv("FETCH_DEADLINE_SECONDS", "20"))
	requestTimeout, _ := strconv.Atoi(getEnv("REQUEST_TIMEOUT_SECONDS", "10"))
	minDelay, _ := strconv.Atoi(getEnv("MIN_DELAY_MS", "1000"))
	maxDelay, _ := strconv.Atoi(getEnv("MAX_DELAY_MS", "3000"))
	maxConcurrency, _ := strconv.Atoi(getEnv("MAX_CONCURRENCY", "4"))
	sourceBlock, _ := strconv.Atoi(getEnv("SOURCE_BLOCK_SECONDS", "300"))
	cacheTTL, _ := strconv.Atoi(getEnv("CACHE_TTL_SECONDS", "3600"))
	rateLimit, _ := strconv.ParseFloat(getEnv("RATE_LIMIT_PER_SECOND", "5"), 64)

	return &Config{
		HTTPAddr:             getEnv("HTTP_ADDR", ":8080"),
		AllowedOrigins:       splitList(getEnv("ALLOWED_ORIGINS", "*")),
		RateLimitPerSecond:   rateLimit,
		ReferenceCurrency:    strings.ToUpper(getEnv("REFERENCE_CURRENCY", "USD")),
		FallbackRates:        parseRates(getEnv("FALLBACK_RATES", "KES=130")),
		RatesURL:             getEnv("RATES_URL", "https://open.er-api.com/v6/latest/USD"),
		RatesRefresh:         getEnv("RATES_REFRESH", "@every 1h"),
		FetchDeadline:        time.Duration(deadline) * time.Second,
		RequestTimeout:       time.Duration(requestTimeout) * time.Second,
		MinDelay:             time.Duration(minDelay) * time.Millisecond,
		MaxDelay:             time.Duration(maxDelay) * time.Millisecond,
		MaxConcurrency:       maxConcurrency,
		SourceBlock:          time.Duration(sourceBlock) * time.Second,
		SourcesFile:          os.Getenv("SOURCES_FILE"),
		CacheBackend:         strings.ToLower(getEnv("CACHE_BACKEND", CacheMemory)),
		CacheTTL:             time.Duration(cacheTTL) * time.Second,
		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:              redisDB,
		RedisStream:          os.Getenv("REDIS_STREAM"),
		RedisStreamMaxLength: streamMaxLength,
		MemcacheAddr:         getEnv("MEMCACHE_ADDR", "localhost:11211"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		WarmSchedule:         os.Getenv("WARM_SCHEDULE"),
		Environment:          getEnv("PRICESCOUT_ENVIRONMENT", "development"),
	}
}

// Validate checks that the configuration can run the service
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("HTTP_ADDR is required")
	}
	if len(c.ReferenceCurrency) != 3 {
		return fmt.Errorf("REFERENCE_CURRENCY must be a 3-letter code, got %q", c.ReferenceCurrency)
	}
	for code, rate := range c.FallbackRates {
		if len(code) != 3 || rate <= 0 {
			return fmt.Errorf("FALLBACK_RATES entry %s=%v is invalid", code, rate)
		}
	}
	if c.FetchDeadline <= 0 {
		return fmt.Errorf("FETCH_DEADLINE_SECONDS must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT_SECONDS must be positive")
	}
	if c.MinDelay < 0 || c.MaxDelay < c.MinDelay {
		return fmt.Errorf("delay range %v..%v is invalid", c.MinDelay, c.MaxDelay)
	}
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("MAX_CONCURRENCY must be positive")
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL_SECONDS must be positive")
	}
	if c.RateLimitPerSecond <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_SECOND must be positive")
	}
	switch c.CacheBackend {
	case CacheMemory, CacheRedis, CacheMemcache:
	default:
		return fmt.Errorf("CACHE_BACKEND %q is not one of memory, redis, memcache", c.CacheBackend)
	}
	if c.RedisStream != "" && c.RedisStreamMaxLength <= 0 {
		return fmt.Errorf("REDIS_STREAM_MAX_LENGTH must be positive")
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseRates reads "KES=130,EUR=0.92". Malformed entries are kept with a zero
// rate so Validate reports them.
func parseRates(value string) map[string]float64 {
	rates := make(map[string]float64)
	for _, part := range splitList(value) {
		code, raw, _ := strings.Cut(part, "=")
		rate, _ := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		rates[strings.ToUpper(strings.TrimSpace(code))] = rate
	}
	return rates
}
