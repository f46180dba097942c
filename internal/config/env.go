package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL  string
	QueueDir     string
	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string
	AIAPIKey     string
	EmbedModel   string
	EmbedDim     int
	GenModel     string
	RerankerURL  string
	RerankModel  string
	JWTSecret    string
	Port         string

	ChunkSize   int
	OverlapSize int
	BatchSize   int
	TopK        int
	FetchK      int
	SessionTTL  time.Duration
}

// LoadConfig loads the environment variables and returns the config.
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		QueueDir:     getEnv("QUEUE_DIR", "queue_data"),
		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", "artikate-docs"),
		AIAPIKey:     getEnv("GEMINI_API_KEY", ""),
		EmbedModel:   getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:     getEnvInt("EMBED_DIM", 768),
		GenModel:     getEnv("GEN_MODEL", "gemini-2.5-flash"),
		RerankerURL:  getEnv("RERANKER_URL", "http://localhost:8787"),
		RerankModel:  getEnv("RERANK_MODEL", "cross-encoder/ms-marco-MiniLM-L-6-v2"),
		JWTSecret:    getEnv("JWT_SECRET", ""),
		Port:         getEnv("PORT", "8080"),

		ChunkSize:   getEnvInt("CHUNK_SIZE", 500),
		OverlapSize: getEnvInt("OVERLAP_SIZE", 200),
		BatchSize:   getEnvInt("BATCH_SIZE", 64),
		TopK:        getEnvInt("TOP_K", 5),
		FetchK:      getEnvInt("FETCH_K", 20),
		SessionTTL:  time.Duration(getEnvInt("SESSION_TTL_SECONDS", 3600)) * time.Second,
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}
	if cfg.OverlapSize >= cfg.ChunkSize {
		log.Fatalf("OVERLAP_SIZE (%d) must be smaller than CHUNK_SIZE (%d)", cfg.OverlapSize, cfg.ChunkSize)
	}

	return cfg
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}
