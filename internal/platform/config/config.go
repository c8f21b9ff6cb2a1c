// Package config loads runtime configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EventsMode selects the event publisher backend.
type EventsMode string

const (
	// EventsMemory keeps events in process; used for local runs and tests.
	EventsMemory EventsMode = "memory"
	// EventsKafka publishes directly to Kafka after each committed transition.
	EventsKafka EventsMode = "kafka"
	// EventsOutbox writes events to the Postgres outbox inside the transition
	// transaction; a relay forwards them to Kafka.
	EventsOutbox EventsMode = "outbox"
)

// Config holds all runtime configuration.
type Config struct {
	Environment    string
	RegulatedMode  bool
	SubjectHashKey string
	Server         ServerConfig
	Database       DatabaseConfig
	Redis          RedisConfig
	Kafka          KafkaConfig
	Storage        StorageConfig
	Registry       RegistryConfig
	OCR            OCRConfig
	Analysis       AnalysisConfig
	Risk           RiskConfig
	EventsMode     EventsMode
}

type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// DatabaseConfig is empty-URL-disabled: stores fall back to memory.
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	HistoryTTL   time.Duration
}

type KafkaConfig struct {
	Brokers            []string
	ClientID           string
	ConsumerGroup      string
	VerificationTopic  string
	FraudTopic         string
	TransactionTopic   string
	OutboxPollInterval time.Duration
}

// StorageConfig configures document image storage. An empty bucket keeps
// images in memory.
type StorageConfig struct {
	Bucket          string
	Region          string
	EndpointURL     string
	AccessKeyID     string
	SecretAccessKey string
}

type RegistryConfig struct {
	BaseURL          string
	Timeout          time.Duration
	RatePerSecond    float64
	Burst            int
	FailureThreshold int
	Cooldown         time.Duration
	CacheTTL         time.Duration
}

type OCRConfig struct {
	URL     string
	Timeout time.Duration
}

// AnalysisConfig bounds CPU-heavy image work and holds acceptance thresholds.
type AnalysisConfig struct {
	Workers               int
	StageTimeout          time.Duration
	CascadePath           string
	MinDocumentConfidence float64
	LivenessThreshold     float64
	FaceMatchThreshold    float64
}

type RiskConfig struct {
	RulesPath    string
	BatchWorkers int
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	return Config{
		Environment:    getEnv("APP_ENV", "development"),
		RegulatedMode:  getEnvBool("REGULATED_MODE", false),
		SubjectHashKey: getEnv("PII_HASH_KEY", "identrisk-dev-key"),
		Server: ServerConfig{
			Addr:            getEnv("IDENTRISK_ADDR", ":8080"),
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			URL:          getEnv("DATABASE_URL", ""),
			MaxOpenConns: getEnvInt("DATABASE_MAX_OPEN_CONNS", 20),
			MaxIdleConns: getEnvInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Redis: RedisConfig{
			URL:          getEnv("REDIS_URL", ""),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			HistoryTTL:   getEnvDuration("REDIS_HISTORY_TTL", 90*24*time.Hour),
		},
		Kafka: KafkaConfig{
			Brokers:            splitList(getEnv("KAFKA_BROKERS", "")),
			ClientID:           getEnv("KAFKA_CLIENT_ID", "identrisk"),
			ConsumerGroup:      getEnv("KAFKA_CONSUMER_GROUP", "identrisk-history"),
			VerificationTopic:  getEnv("KAFKA_VERIFICATION_TOPIC", "identity.verification.events"),
			FraudTopic:         getEnv("KAFKA_FRAUD_TOPIC", "fraud.score.events"),
			TransactionTopic:   getEnv("KAFKA_TRANSACTION_TOPIC", "transaction.events"),
			OutboxPollInterval: getEnvDuration("OUTBOX_POLL_INTERVAL", time.Second),
		},
		Storage: StorageConfig{
			Bucket:          getEnv("S3_BUCKET_NAME", ""),
			Region:          getEnv("AWS_REGION", "ap-southeast-3"),
			EndpointURL:     getEnv("AWS_ENDPOINT_URL", ""),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		},
		Registry: RegistryConfig{
			BaseURL:          getEnv("REGISTRY_BASE_URL", "http://localhost:8081"),
			Timeout:          getEnvDuration("REGISTRY_TIMEOUT", 5*time.Second),
			RatePerSecond:    getEnvFloat("REGISTRY_RATE_PER_SECOND", 20),
			Burst:            getEnvInt("REGISTRY_BURST", 5),
			FailureThreshold: getEnvInt("REGISTRY_FAILURE_THRESHOLD", 5),
			Cooldown:         getEnvDuration("REGISTRY_COOLDOWN", 30*time.Second),
			CacheTTL:         getEnvDuration("REGISTRY_CACHE_TTL", 5*time.Minute),
		},
		OCR: OCRConfig{
			URL:     getEnv("OCR_URL", "http://localhost:8082/v1/recognize"),
			Timeout: getEnvDuration("OCR_TIMEOUT", 15*time.Second),
		},
		Analysis: AnalysisConfig{
			Workers:               getEnvInt("ANALYSIS_WORKERS", 4),
			StageTimeout:          getEnvDuration("ANALYSIS_STAGE_TIMEOUT", 20*time.Second),
			CascadePath:           getEnv("FACE_CASCADE_PATH", "./assets/facefinder"),
			MinDocumentConfidence: getEnvFloat("MIN_DOCUMENT_CONFIDENCE", 0.7),
			LivenessThreshold:     getEnvFloat("LIVENESS_THRESHOLD", 0.5),
			FaceMatchThreshold:    getEnvFloat("FACE_MATCH_THRESHOLD", 0.8),
		},
		Risk: RiskConfig{
			RulesPath:    getEnv("RISK_RULES_PATH", ""),
			BatchWorkers: getEnvInt("RISK_BATCH_WORKERS", 8),
		},
		EventsMode: EventsMode(getEnv("EVENTS_MODE", string(EventsMemory))),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
