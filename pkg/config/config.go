package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	LLMProviderGigaChat = "gigachat"
	LLMProviderVertex   = "vertex"

	BlobBackendLocal = "local"
	BlobBackendGCS   = "gcs"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	LLM      LLMConfig
	Blob     BlobConfig
	Pipeline PipelineConfig
	Logger   LoggerConfig
}

type LoggerConfig struct {
	Level string
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BodyLimit    int
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
	MinConns int32
	Migrate  bool
}

type JWTConfig struct {
	SecretKey  string
	Expiration time.Duration
}

// LLMConfig selects and configures the reasoning engine provider.
type LLMConfig struct {
	Provider    string
	APIKey      string
	Model       string
	Timeout     time.Duration
	Temperature float64

	// GigaChat
	Scope              string
	InsecureSkipVerify bool

	// Vertex AI
	ProjectID string
	Region    string
}

type BlobConfig struct {
	Backend      string
	LocalDir     string
	PublicURL    string
	GCSBucket    string
	UploadURLTTL time.Duration
}

type PipelineConfig struct {
	ExtractTimeout time.Duration
	AnalyzeTimeout time.Duration
	PersistTimeout time.Duration
	Workers        int
	QueueSize      int
	BatchSize      int
}

func Load() (*Config, error) {
	// .env is optional; plain environment variables work for Docker/K8s
	envFiles := []string{".env", "../.env", "../../.env"}
	for _, envFile := range envFiles {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	readTimeout, _ := strconv.Atoi(getEnv("SERVER_READ_TIMEOUT", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("SERVER_WRITE_TIMEOUT", "30"))
	bodyLimitMB, _ := strconv.Atoi(getEnv("SERVER_BODY_LIMIT_MB", "20"))
	jwtExp, _ := strconv.Atoi(getEnv("JWT_EXPIRATION_HOURS", "24"))
	maxConns, _ := strconv.Atoi(getEnv("DB_MAX_CONNS", "10"))
	minConns, _ := strconv.Atoi(getEnv("DB_MIN_CONNS", "1"))
	temperature, err := strconv.ParseFloat(getEnv("LLM_TEMPERATURE", "0"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_TEMPERATURE: %w", err)
	}
	workers, _ := strconv.Atoi(getEnv("PIPELINE_WORKERS", "4"))
	queueSize, _ := strconv.Atoi(getEnv("PIPELINE_QUEUE_SIZE", "256"))
	batchSize, _ := strconv.Atoi(getEnv("PIPELINE_BATCH_SIZE", "100"))

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  time.Duration(readTimeout) * time.Second,
			WriteTimeout: time.Duration(writeTimeout) * time.Second,
			BodyLimit:    bodyLimitMB * 1024 * 1024,
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "fin_analyzer"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: int32(maxConns),
			MinConns: int32(minConns),
			Migrate:  getBool("DB_MIGRATE", true),
		},
		JWT: JWTConfig{
			SecretKey:  getEnv("JWT_SECRET_KEY", "your-secret-key-change-in-production"),
			Expiration: time.Duration(jwtExp) * time.Hour,
		},
		LLM: LLMConfig{
			Provider:           strings.ToLower(getEnv("LLM_PROVIDER", LLMProviderGigaChat)),
			APIKey:             getEnv("LLM_API_KEY", os.Getenv("GIGACHAT_API_KEY")),
			Model:              getEnv("LLM_MODEL", ""),
			Timeout:            getDuration("LLM_TIMEOUT", 90*time.Second),
			Temperature:        temperature,
			Scope:              getEnv("GIGACHAT_SCOPE", "GIGACHAT_API_PERS"),
			InsecureSkipVerify: getBool("GIGACHAT_INSECURE_SKIP_VERIFY", true),
			ProjectID:          getEnv("VERTEX_PROJECT_ID", ""),
			Region:             getEnv("VERTEX_REGION", "us-central1"),
		},
		Blob: BlobConfig{
			Backend:      strings.ToLower(getEnv("BLOB_BACKEND", BlobBackendLocal)),
			LocalDir:     getEnv("BLOB_LOCAL_DIR", "uploads"),
			PublicURL:    strings.TrimRight(getEnv("BLOB_PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
			GCSBucket:    getEnv("BLOB_GCS_BUCKET", ""),
			UploadURLTTL: getDuration("BLOB_UPLOAD_URL_TTL", 15*time.Minute),
		},
		Pipeline: PipelineConfig{
			ExtractTimeout: getDuration("PIPELINE_EXTRACT_TIMEOUT", 2*time.Minute),
			AnalyzeTimeout: getDuration("PIPELINE_ANALYZE_TIMEOUT", 3*time.Minute),
			PersistTimeout: getDuration("PIPELINE_PERSIST_TIMEOUT", 10*time.Second),
			Workers:        workers,
			QueueSize:      queueSize,
			BatchSize:      batchSize,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if cfg.LLM.Model == "" {
		cfg.LLM.Model = defaultModel(cfg.LLM.Provider)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case LLMProviderGigaChat:
	case LLMProviderVertex:
		if c.LLM.ProjectID == "" {
			return fmt.Errorf("VERTEX_PROJECT_ID is required for the %q provider", LLMProviderVertex)
		}
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLM.Provider)
	}

	switch c.Blob.Backend {
	case BlobBackendLocal:
		if c.Blob.LocalDir == "" {
			return fmt.Errorf("BLOB_LOCAL_DIR must not be empty")
		}
	case BlobBackendGCS:
		if c.Blob.GCSBucket == "" {
			return fmt.Errorf("BLOB_GCS_BUCKET is required for the %q backend", BlobBackendGCS)
		}
	default:
		return fmt.Errorf("unknown BLOB_BACKEND %q", c.Blob.Backend)
	}

	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("PIPELINE_WORKERS must be positive, got %d", c.Pipeline.Workers)
	}
	if c.Pipeline.QueueSize <= 0 {
		return fmt.Errorf("PIPELINE_QUEUE_SIZE must be positive, got %d", c.Pipeline.QueueSize)
	}
	if c.Pipeline.ExtractTimeout <= 0 || c.Pipeline.AnalyzeTimeout <= 0 {
		return fmt.Errorf("pipeline stage timeouts must be positive")
	}
	if c.Database.MaxConns <= 0 {
		return fmt.Errorf("DB_MAX_CONNS must be positive, got %d", c.Database.MaxConns)
	}
	return nil
}

func defaultModel(provider string) string {
	if provider == LLMProviderVertex {
		return "gemini-2.5-flash"
	}
	return "GigaChat"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(defaultValue)))
	if err != nil {
		return defaultValue
	}
	return value
}

// getDuration accepts Go durations ("90s") or a bare number of seconds.
func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
