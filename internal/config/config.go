package config

import (
	"os"
	"strconv"
	"strings"
)

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// MinIOConfig holds object storage settings for the artifact blob cache.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// RedisConfig holds connection settings for the redis registry store.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// LogConfig controls the zap logger and its optional rolling file sink.
type LogConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// ProcessingConfig locates the remote Document Processing Service.
type ProcessingConfig struct {
	BaseURL    string
	TimeoutSec int
}

// PipelineConfig bounds what a single upload batch may contain.
// MaxFileSizeBytes is the one authoritative per-file cap.
type PipelineConfig struct {
	MaxFileSizeBytes int64
	MaxBatchSize     int
}

// RegistryConfig selects where the document registry is persisted.
// Store is one of "file", "redis" or "postgres".
type RegistryConfig struct {
	Store string
	File  string
	Key   string
}

// ArtifactConfig controls artifact spooling and the optional blob cache ("none" or "minio").
type ArtifactConfig struct {
	SpoolDir string
	Cache    string
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost            string
	Port               string
	CORSAllowOrigins   string
	RateLimitPerMinute int
	Processing         ProcessingConfig
	Pipeline           PipelineConfig
	Registry           RegistryConfig
	Artifact           ArtifactConfig
	Database           DatabaseConfig
	MinIO              MinIOConfig
	Redis              RedisConfig
	Log                LogConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
func Load() *AppConfig {
	return &AppConfig{
		AppHost:            getEnv("APP_HOST", "localhost:8080"),
		Port:               getEnv("PORT", "8080"),
		CORSAllowOrigins:   getEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		Processing: ProcessingConfig{
			BaseURL:    getEnv("PROCESSING_BASE_URL", "http://localhost:8000/api/v1"),
			TimeoutSec: getEnvInt("PROCESSING_TIMEOUT_SEC", 120),
		},
		Pipeline: PipelineConfig{
			MaxFileSizeBytes: getEnvInt64("MAX_FILE_SIZE_BYTES", 5*1024*1024),
			MaxBatchSize:     getEnvInt("MAX_BATCH_SIZE", 5),
		},
		Registry: RegistryConfig{
			Store: strings.ToLower(getEnv("REGISTRY_STORE", "file")),
			File:  getEnv("REGISTRY_FILE", "./data/registry.json"),
			Key:   getEnv("REGISTRY_KEY", "documents"),
		},
		Artifact: ArtifactConfig{
			SpoolDir: getEnv("ARTIFACT_SPOOL_DIR", os.TempDir()),
			Cache:    strings.ToLower(getEnv("ARTIFACT_CACHE", "none")),
		},
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", ""),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Log: LogConfig{
			Level:      strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Path:       getEnv("LOG_PATH", ""),
			MaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
			MaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 7),
			Compress:   getEnvBool("LOG_COMPRESS", false),
		},
	}
}

// AllowedOrigins splits CORSAllowOrigins into trimmed, non-empty entries.
func (c *AppConfig) AllowedOrigins() []string {
	var out []string
	for _, p := range strings.Split(c.CORSAllowOrigins, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			return i
		}
	}
	return def
}
