// Package config loads cachify's runtime configuration from the
// environment, mirroring every option the orchestrator, backplane,
// request-cache workflow, and similarity subsystem recognize.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every recognized cachify option.
type Config struct {
	// Server
	Addr            string
	Env             string
	GracefulTimeout time.Duration

	// Redis (backs the L2 store and, optionally, the backplane transport)
	RedisURL string

	// Cache-wide
	KeyPrefix          string
	DefaultTTL         time.Duration
	JitterRatio        float64
	FailFastOnL2Errors bool

	Resilience ResilienceConfig
	Backplane  BackplaneConfig
	Request    RequestCacheConfig
	Similarity SimilarityConfig

	// Body limit for the demo HTTP surface.
	MaxBodyBytes int64

	LogLevel string
}

// ResilienceConfig holds fail-safe and timeout settings.
type ResilienceConfig struct {
	FailSafeMaxDuration     time.Duration
	SoftTimeout             time.Duration
	HardTimeout             time.Duration
	EnableBackgroundRefresh bool
}

// BackplaneConfig holds cross-instance invalidation settings.
type BackplaneConfig struct {
	Enabled     bool
	ChannelName string
	InstanceID  string
	BatchSize   int
	BatchWindow time.Duration
}

// RequestCacheConfig holds HTTP request-cache middleware settings.
type RequestCacheConfig struct {
	Mode                        string // "Exact" | "Similarity"
	DefaultDuration             time.Duration
	LowercasePath               bool
	CacheableMethods            []string
	CacheableStatusCodes        []int
	AllowedRequestContentTypes  []string
	AllowedResponseContentTypes []string
	IncludedPaths               []string
	ExcludedPaths               []string
	VaryByHeaders                []string
	IncludeBody                  bool
	MaxRequestBodySizeBytes      int64
	MaxResponseBodySizeBytes     int64
	CacheAuthenticatedResponses  bool
	RespectRequestCacheControl   bool
	RespectResponseCacheControl  bool
	AllowSetCookieResponses      bool
	EnableResponseBuffering      bool
	ResponseHeaders              ResponseHeaderConfig
}

// ResponseHeaderConfig controls which cache metadata headers are emitted.
type ResponseHeaderConfig struct {
	Enabled           bool
	CacheStatusHeader string
	CacheStaleHeader  string
	SimilarityHeader  string
	CacheKeyHeader    string
	IncludeCacheKey   bool
}

// SimilarityConfig holds similarity-index and scoring settings.
type SimilarityConfig struct {
	Enabled            bool
	MinSimilarity      float64
	MaxEntryAge        time.Duration
	MaxIndexEntries    int
	MaxCandidates      int
	MaxCanonicalLength int
	MaxTokens          int
	IgnoredJSONFields  []string
	RequiredHeaders    []string
	OnlyIfCostly       []string
	UseEmbeddingScorer bool
	MaxEmbeddingLength int
}

// Load reads configuration from the environment and an optional .env file.
func Load() *Config {
	_ = godotenv.Load()

	gracefulSec := getEnvInt("CACHIFY_GRACEFUL_TIMEOUT_SEC", 15)

	cfg := &Config{
		Addr:            getEnv("CACHIFY_ADDR", ":8080"),
		Env:             getEnv("ENV", "development"),
		GracefulTimeout: time.Duration(gracefulSec) * time.Second,
		RedisURL:        getEnv("REDIS_URL", "redis://redis:6379"),

		KeyPrefix:          getEnv("CACHIFY_KEY_PREFIX", ""),
		DefaultTTL:         time.Duration(getEnvInt("CACHIFY_DEFAULT_TTL_SEC", 300)) * time.Second,
		JitterRatio:        getEnvFloat("CACHIFY_JITTER_RATIO", 0.1),
		FailFastOnL2Errors: getEnvBool("CACHIFY_FAIL_FAST_ON_L2_ERRORS", false),

		Resilience: ResilienceConfig{
			FailSafeMaxDuration:     time.Duration(getEnvInt("CACHIFY_FAIL_SAFE_MAX_DURATION_SEC", 120)) * time.Second,
			SoftTimeout:             time.Duration(getEnvInt("CACHIFY_SOFT_TIMEOUT_MS", 0)) * time.Millisecond,
			HardTimeout:             time.Duration(getEnvInt("CACHIFY_HARD_TIMEOUT_MS", 2000)) * time.Millisecond,
			EnableBackgroundRefresh: getEnvBool("CACHIFY_ENABLE_BACKGROUND_REFRESH", true),
		},

		Backplane: BackplaneConfig{
			Enabled:     getEnvBool("CACHIFY_BACKPLANE_ENABLED", false),
			ChannelName: getEnv("CACHIFY_BACKPLANE_CHANNEL", "cachify:invalidation"),
			InstanceID:  getEnv("CACHIFY_BACKPLANE_INSTANCE_ID", ""),
			BatchSize:   getEnvInt("CACHIFY_BACKPLANE_BATCH_SIZE", 1),
			BatchWindow: time.Duration(getEnvInt("CACHIFY_BACKPLANE_BATCH_WINDOW_MS", 100)) * time.Millisecond,
		},

		Request: RequestCacheConfig{
			Mode:                        getEnv("CACHIFY_REQUEST_MODE", "Exact"),
			DefaultDuration:             time.Duration(getEnvInt("CACHIFY_REQUEST_DURATION_SEC", 60)) * time.Second,
			CacheableMethods:            []string{"GET", "POST"},
			CacheableStatusCodes:        []int{200},
			AllowedRequestContentTypes:  []string{"application/json"},
			AllowedResponseContentTypes: []string{"application/json"},
			IncludedPaths:               nil,
			ExcludedPaths:               nil,
			VaryByHeaders:               nil,
			IncludeBody:                 true,
			MaxRequestBodySizeBytes:     int64(getEnvInt("CACHIFY_MAX_REQUEST_BODY_BYTES", 64*1024)),
			MaxResponseBodySizeBytes:    int64(getEnvInt("CACHIFY_MAX_RESPONSE_BODY_BYTES", 1024*1024)),
			CacheAuthenticatedResponses: getEnvBool("CACHIFY_CACHE_AUTHENTICATED_RESPONSES", false),
			RespectRequestCacheControl:  getEnvBool("CACHIFY_RESPECT_REQUEST_CACHE_CONTROL", true),
			RespectResponseCacheControl: getEnvBool("CACHIFY_RESPECT_RESPONSE_CACHE_CONTROL", true),
			AllowSetCookieResponses:     getEnvBool("CACHIFY_ALLOW_SET_COOKIE_RESPONSES", false),
			EnableResponseBuffering:     true,
			ResponseHeaders: ResponseHeaderConfig{
				Enabled:           true,
				CacheStatusHeader: "X-Cachify-Cache",
				CacheStaleHeader:  "X-Cachify-Cache-Stale",
				SimilarityHeader:  "X-Cachify-Cache-Similarity",
				CacheKeyHeader:    "X-Cachify-Cache-Key",
				IncludeCacheKey:   getEnvBool("CACHIFY_INCLUDE_CACHE_KEY_HEADER", false),
			},
		},

		Similarity: SimilarityConfig{
			Enabled:            getEnvBool("CACHIFY_SIMILARITY_ENABLED", false),
			MinSimilarity:      getEnvFloat("CACHIFY_SIMILARITY_MIN", 0.95),
			MaxEntryAge:        time.Duration(getEnvInt("CACHIFY_SIMILARITY_MAX_ENTRY_AGE_SEC", 600)) * time.Second,
			MaxIndexEntries:    getEnvInt("CACHIFY_SIMILARITY_MAX_INDEX_ENTRIES", 1024),
			MaxCandidates:      getEnvInt("CACHIFY_SIMILARITY_MAX_CANDIDATES", 64),
			MaxCanonicalLength: getEnvInt("CACHIFY_SIMILARITY_MAX_CANONICAL_LENGTH", 16*1024),
			MaxTokens:          getEnvInt("CACHIFY_SIMILARITY_MAX_TOKENS", 512),
			IgnoredJSONFields:  []string{"id", "timestamp", "created_at", "updated_at"},
			RequiredHeaders:    nil,
			OnlyIfCostly:       nil,
			UseEmbeddingScorer: false,
			MaxEmbeddingLength: getEnvInt("CACHIFY_SIMILARITY_MAX_EMBEDDING_LENGTH", 512),
		},

		MaxBodyBytes: int64(getEnvInt("CACHIFY_MAX_BODY_BYTES", 4*1024*1024)),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
	}
	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
