package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	aws_pkg "product-importer/pkg/aws"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Queue broker names.
const (
	BrokerRedis = "redis"
	BrokerSQS   = "sqs"
	BrokerNone  = "none"
)

// Config holds all configuration for the importer API and worker.
type Config struct {
	AppName string
	AppEnv  string
	Port    string

	DatabaseURL      string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     string
	PostgresSSLMode  string
	PostgresTimeZone string

	RedisURL string

	QueueBroker     string
	ImportQueueName string
	SQSQueueURL     string

	BulkStorageDir  string
	StagingS3Bucket string
	StagingS3Prefix string

	MaxFileSizeMB      int
	UploadRatePerMin   int
	UploadRateBurst    int
	ImportChunkSize    int
	ProgressTTL        time.Duration
	StreamPollInterval time.Duration
	StreamMaxMisses    int
	WebhookTimeout     time.Duration

	EventsSNSTopicARN string
	CloudWatchEnabled bool
	CORSAllowOrigins  []string
}

// MaxFileSizeBytes is the upload limit in bytes.
func (c *Config) MaxFileSizeBytes() int64 {
	return int64(c.MaxFileSizeMB) * 1024 * 1024
}

// PostgresDSN builds the gorm/pgx DSN, preferring DATABASE_URL when set.
func (c *Config) PostgresDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		c.PostgresHost, c.PostgresUser, c.PostgresPassword, c.PostgresDB,
		c.PostgresPort, c.PostgresSSLMode, c.PostgresTimeZone,
	)
}

// LoadConfig reads configuration from .env and environment variables with an optional
// Secrets Manager override for the database credentials.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		zap.L().Debug("No .env file found, using system environment variables")
	}

	cfg := &Config{
		AppName: getEnv("APP_NAME", "Product Importer"),
		AppEnv:  getEnv("APP_ENV", "development"),
		Port:    getEnv("PORT", "8000"),

		DatabaseURL:      os.Getenv("DATABASE_URL"),
		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		PostgresTimeZone: getEnv("POSTGRES_TIMEZONE", "UTC"),

		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		QueueBroker:     strings.ToLower(getEnv("QUEUE_BROKER", BrokerRedis)),
		ImportQueueName: getEnv("IMPORT_QUEUE_NAME", "product-imports"),
		SQSQueueURL:     os.Getenv("SQS_QUEUE_URL"),

		BulkStorageDir:  getEnv("BULK_STORAGE_DIR", "./data/bulk_imports"),
		StagingS3Bucket: os.Getenv("STAGING_S3_BUCKET"),
		StagingS3Prefix: getEnv("STAGING_S3_PREFIX", "imports/"),

		MaxFileSizeMB:      getEnvInt("MAX_FILE_SIZE_MB", 100),
		UploadRatePerMin:   getEnvInt("UPLOAD_RATE_PER_MINUTE", 30),
		UploadRateBurst:    getEnvInt("UPLOAD_RATE_BURST", 10),
		ImportChunkSize:    getEnvInt("IMPORT_CHUNK_SIZE", 1000),
		ProgressTTL:        time.Duration(getEnvInt("PROGRESS_TTL_SECONDS", 3600)) * time.Second,
		StreamPollInterval: time.Duration(getEnvInt("STREAM_POLL_INTERVAL_MS", 300)) * time.Millisecond,
		StreamMaxMisses:    getEnvInt("STREAM_MAX_MISSES", 5),
		WebhookTimeout:     time.Duration(getEnvInt("WEBHOOK_TIMEOUT_SECONDS", 10)) * time.Second,

		EventsSNSTopicARN: os.Getenv("EVENTS_SNS_TOPIC_ARN"),
		CloudWatchEnabled: os.Getenv("CLOUDWATCH_ENABLED") == "true",
		CORSAllowOrigins:  splitList(getEnv("CORS_ALLOW_ORIGINS", "*")),
	}

	// Override DB credentials from Secrets Manager when running on AWS
	if os.Getenv("AWS_USE_SECRETS") == "true" {
		applySecrets(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings the importer cannot start without.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" && (c.PostgresUser == "" || c.PostgresPassword == "" || c.PostgresDB == "") {
		return fmt.Errorf("database config incomplete: set DATABASE_URL or POSTGRES_USER, POSTGRES_PASSWORD and POSTGRES_DB")
	}
	switch c.QueueBroker {
	case BrokerRedis, BrokerSQS, BrokerNone:
	default:
		return fmt.Errorf("unknown QUEUE_BROKER %q", c.QueueBroker)
	}
	if c.MaxFileSizeMB <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE_MB must be positive")
	}
	if c.ImportChunkSize <= 0 {
		return fmt.Errorf("IMPORT_CHUNK_SIZE must be positive")
	}
	if c.StreamMaxMisses <= 0 {
		return fmt.Errorf("STREAM_MAX_MISSES must be positive")
	}
	return nil
}

func applySecrets(cfg *Config) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	awsCfg, err := aws_pkg.LoadAWSConfig(ctx)
	if err != nil {
		zap.L().Warn("AWS config unavailable, skipping secrets override", zap.Error(err))
		return
	}
	sm := aws_pkg.NewSecretsClient(awsCfg)
	creds, err := sm.GetSecretMap(ctx, "product-importer/DB_CREDENTIALS")
	if err != nil {
		zap.L().Warn("Failed to load DB credentials secret", zap.Error(err))
		return
	}
	overrideFromSecret(cfg, creds)
}

func overrideFromSecret(cfg *Config, m map[string]string) {
	if v := m["POSTGRES_USER"]; v != "" {
		cfg.PostgresUser = v
	}
	if v := m["POSTGRES_PASSWORD"]; v != "" {
		cfg.PostgresPassword = v
	}
	if v := m["POSTGRES_DB"]; v != "" {
		cfg.PostgresDB = v
	}
	if v := m["POSTGRES_HOST"]; v != "" {
		cfg.PostgresHost = v
	}
	if v := m["POSTGRES_PORT"]; v != "" {
		cfg.PostgresPort = v
	}
	if v := m["DATABASE_URL"]; v != "" {
		cfg.DatabaseURL = v
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		zap.L().Warn("Invalid integer setting, using default",
			zap.String("key", key), zap.String("value", val), zap.Int("default", fallback))
		return fallback
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
