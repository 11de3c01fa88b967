package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	DatabaseURL   string
	ShutdownGrace time.Duration

	// Catalog
	CatalogSeedPath string

	// Matcher tunables
	EmbeddingProvider       string
	EmbeddingDimensions     int
	BedrockEmbeddingModelID string
	HNSWNeighbors           int
	HNSWEfSearch            int
	MatchAmbiguityMargin    float64
	MatchConfidentScore     float64
	MatchFuzzyFloor         float64
	MatchSemanticFloor      float64
	MatchSemanticTopK       int

	// Checkout / orders
	PaymentMethod       string
	Currency            string
	OrderIdempotencyTTL time.Duration
	OrderEventsQueueURL string
	OutboxPollInterval  time.Duration
	OutboxBatchSize     int
	MaxQuantityPerLine  int

	// HTTP surface
	AdminJWTSecret     string
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// AWS
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		ShutdownGrace: getEnvAsDuration("SHUTDOWN_GRACE", 30*time.Second),

		CatalogSeedPath: getEnv("CATALOG_SEED_PATH", "testdata/catalog.yaml"),

		EmbeddingProvider:       strings.ToLower(strings.TrimSpace(getEnv("EMBEDDING_PROVIDER", "hash"))),
		EmbeddingDimensions:     getEnvAsInt("EMBEDDING_DIMENSIONS", 384),
		BedrockEmbeddingModelID: getEnv("BEDROCK_EMBEDDING_MODEL_ID", ""),
		HNSWNeighbors:           getEnvAsInt("HNSW_M", 16),
		HNSWEfSearch:            getEnvAsInt("HNSW_EF_SEARCH", 32),
		MatchAmbiguityMargin:    getEnvAsFloat("MATCH_AMBIGUITY_MARGIN", 0.05),
		MatchConfidentScore:     getEnvAsFloat("MATCH_CONFIDENT_SCORE", 0.80),
		MatchFuzzyFloor:         getEnvAsFloat("MATCH_FUZZY_FLOOR", 0.75),
		MatchSemanticFloor:      getEnvAsFloat("MATCH_SEMANTIC_FLOOR", 0.30),
		MatchSemanticTopK:       getEnvAsInt("MATCH_SEMANTIC_TOP_K", 5),

		PaymentMethod:       getEnv("PAYMENT_METHOD", "cash_on_delivery"),
		Currency:            getEnv("CURRENCY", "USD"),
		OrderIdempotencyTTL: getEnvAsDuration("ORDER_IDEMPOTENCY_TTL", 24*time.Hour),
		OrderEventsQueueURL: getEnv("ORDER_EVENTS_QUEUE_URL", ""),
		OutboxPollInterval:  getEnvAsDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		OutboxBatchSize:     getEnvAsInt("OUTBOX_BATCH_SIZE", 25),
		MaxQuantityPerLine:  getEnvAsInt("MAX_QUANTITY_PER_LINE", 999),

		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 20),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
