package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI     string
	DBName       string
	GeminiAPIKey string
	Port         string
	GinMode      string
	CORSOrigins  []string

	// Upload handling
	MaxFileSize    int64
	AllowedTypes   []string
	FileStorageDir string

	// Redis Configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Rate limiting (HTTP surface)
	RateLimitReqs   int
	RateLimitWindow int

	// Pipeline
	MaxAttempts     int
	PipelineTimeout time.Duration

	// Extraction / OCR
	OCRTextThreshold   int // min chars of native text before a page is sent to OCR
	OCRMaxConcurrency  int
	OCRThrottleMs      int
	OCRModel           string
	CompleteOnDeadline bool // deadline during OCR completes with partial text instead of failing

	// Chunking
	MaxChunkChars int
	ChunkOverlap  int

	// Embeddings
	EmbeddingsModel  string
	EmbedBatchSize   int
	VectorDimensions int
	GeminiTier       string

	// Search
	SearchDefaultTopK   int
	SearchMinSimilarity float64
	QueryEmbedCacheTTL  time.Duration

	// Health monitoring
	StallMediumMin      int
	StallHighMin        int
	StallCriticalMin    int
	HealthSweepInterval time.Duration

	// Telemetry
	OTLPEndpoint     string
	TelemetryEnabled bool
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		MongoURI:     getEnv("MONGO_URI", "mongodb://localhost:27017/knowledge_ingest"),
		DBName:       getEnv("DB_NAME", "knowledge_ingest"),
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		Port:         getEnv("PORT", "8080"),
		GinMode:      getEnv("GIN_MODE", "debug"),
		CORSOrigins:  strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),

		MaxFileSize:    getEnvInt64("MAX_FILE_SIZE", 104857600), // 100MB
		AllowedTypes:   strings.Split(getEnv("ALLOWED_FILE_TYPES", "application/pdf,text/plain,text/markdown,image/png,image/jpeg"), ","),
		FileStorageDir: getEnv("FILE_STORAGE_DIR", "./storage"),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		MaxAttempts:     getEnvInt("MAX_ATTEMPTS", 3),
		PipelineTimeout: time.Duration(getEnvInt("PIPELINE_TIMEOUT_SECONDS", 150)) * time.Second,

		OCRTextThreshold:   getEnvInt("OCR_TEXT_THRESHOLD", 200),
		OCRMaxConcurrency:  getEnvInt("OCR_MAX_CONCURRENCY", 5),
		OCRThrottleMs:      getEnvInt("OCR_THROTTLE_MS", 200),
		OCRModel:           getEnv("OCR_MODEL", "gemini-2.0-flash"),
		CompleteOnDeadline: getEnvBool("COMPLETE_ON_DEADLINE", true),

		MaxChunkChars: getEnvInt("MAX_CHUNK_CHARS", 2000),
		ChunkOverlap:  getEnvInt("CHUNK_OVERLAP", 200),

		EmbeddingsModel:  getEnv("EMBEDDINGS_MODEL", "text-embedding-004"),
		EmbedBatchSize:   getEnvInt("EMBED_BATCH_SIZE", 16),
		VectorDimensions: getEnvInt("VECTOR_DIM", 768),
		GeminiTier:       getEnv("GEMINI_TIER", "free"),

		SearchDefaultTopK:   getEnvInt("SEARCH_DEFAULT_TOP_K", 5),
		SearchMinSimilarity: getEnvFloat64("SEARCH_MIN_SIMILARITY", 0.0),
		QueryEmbedCacheTTL:  time.Duration(getEnvInt("QUERY_EMBED_CACHE_TTL_SECONDS", 3600)) * time.Second,

		StallMediumMin:      getEnvInt("STALL_MEDIUM_MINUTES", 15),
		StallHighMin:        getEnvInt("STALL_HIGH_MINUTES", 30),
		StallCriticalMin:    getEnvInt("STALL_CRITICAL_MINUTES", 60),
		HealthSweepInterval: time.Duration(getEnvInt("HEALTH_SWEEP_MINUTES", 15)) * time.Minute,

		OTLPEndpoint:     getEnv("OTLP_ENDPOINT", "localhost:4317"),
		TelemetryEnabled: getEnvBool("TELEMETRY_ENABLED", false),
	}

	// Validate required fields
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required - set it in .env file")
	}

	if cfg.MaxChunkChars <= cfg.ChunkOverlap {
		return nil, fmt.Errorf("MAX_CHUNK_CHARS (%d) must exceed CHUNK_OVERLAP (%d)", cfg.MaxChunkChars, cfg.ChunkOverlap)
	}

	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("MAX_ATTEMPTS must be at least 1")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
