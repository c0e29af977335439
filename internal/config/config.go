package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Credential verification.
	JWTSecret string

	// Calculation store.
	DatabaseURL string

	// Engine invocation.
	EngineCommand        string
	EngineArgs           []string
	EngineTimeout        time.Duration
	MaxConcurrentEngines int // 0 = unbounded

	// Kafka calculation events (feature-flagged via KAFKA_BROKERS / KAFKA_ENABLED).
	KafkaBrokers []string
	KafkaTopic   string
	KafkaEnabled bool

	// Raw output archive (feature-flagged via ARCHIVE_ENDPOINT / ARCHIVE_ENABLED).
	ArchiveEndpoint  string
	ArchiveAccessKey string
	ArchiveSecretKey string
	ArchiveBucket    string
	ArchiveUseSSL    bool
	ArchiveEnabled   bool
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	engineTimeout, err := parseDuration("ENGINE_TIMEOUT", "120s")
	if err != nil {
		return nil, err
	}

	maxEngines, err := parseMaxConcurrentEngines()
	if err != nil {
		return nil, err
	}

	kafkaBrokers := parseBrokers(os.Getenv("KAFKA_BROKERS"))
	kafkaEnabled := len(kafkaBrokers) > 0
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	archiveEndpoint := os.Getenv("ARCHIVE_ENDPOINT")
	archiveEnabled := archiveEndpoint != ""
	if v := os.Getenv("ARCHIVE_ENABLED"); v != "" {
		archiveEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		JWTSecret:   os.Getenv("JWT_SECRET"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		EngineCommand:        envOrDefault("ENGINE_COMMAND", "python3"),
		EngineArgs:           strings.Fields(envOrDefault("ENGINE_ARGS", "calculate_indices.py")),
		EngineTimeout:        engineTimeout,
		MaxConcurrentEngines: maxEngines,

		KafkaBrokers: kafkaBrokers,
		KafkaTopic:   envOrDefault("KAFKA_EVENTS_TOPIC", "calculation-events"),
		KafkaEnabled: kafkaEnabled,

		ArchiveEndpoint:  archiveEndpoint,
		ArchiveAccessKey: os.Getenv("ARCHIVE_ACCESS_KEY"),
		ArchiveSecretKey: os.Getenv("ARCHIVE_SECRET_KEY"),
		ArchiveBucket:    envOrDefault("ARCHIVE_BUCKET", "engine-output"),
		ArchiveUseSSL:    os.Getenv("ARCHIVE_USE_SSL") == "true",
		ArchiveEnabled:   archiveEnabled,
	}

	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.EngineCommand == "" {
		return nil, errors.New("ENGINE_COMMAND must not be empty")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}
	if cfg.ArchiveEnabled && (cfg.ArchiveAccessKey == "" || cfg.ArchiveSecretKey == "") {
		return nil, errors.New("archive is enabled but ARCHIVE_ACCESS_KEY or ARCHIVE_SECRET_KEY is not set")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseBrokers(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}

func parseMaxConcurrentEngines() (int, error) {
	s := os.Getenv("MAX_CONCURRENT_CALCULATIONS")
	if s == "" {
		return 4, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.New("invalid MAX_CONCURRENT_CALCULATIONS")
	}
	return n, nil
}
