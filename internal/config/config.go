package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

type Config struct {
	Port                   string
	DatabaseURL            string
	StoreBackend           string
	SeedDemoData           bool
	MigrationsPath         string
	LogLevel               string
	RedisURL               string
	EstimateCacheTTL       time.Duration
	PredictorURL           string
	PredictorTimeout       time.Duration
	KafkaBrokers           []string
	KafkaTopic             string
	RelayInterval          time.Duration
	RelayBatchSize         int
	RealtimeEnabled        bool
	AdminAPIKey            string
	RateLimitPerMinute     int
	RateLimitBurst         int
	UserRateLimitPerMinute int
	UserRateLimitBurst     int
	TracingEndpoint        string
	TracingInsecure        bool
	TraceSampleRatio       float64
}

func Load() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	databaseURL := os.Getenv("DB_DSN")

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("STORE_BACKEND")))
	if backend == "" {
		backend = BackendMemory
		if databaseURL != "" {
			backend = BackendPostgres
		}
	}

	return Config{
		Port:                   port,
		DatabaseURL:            databaseURL,
		StoreBackend:           backend,
		SeedDemoData:           readBool("SEED_DEMO_DATA", backend == BackendMemory),
		MigrationsPath:         readString("MIGRATIONS_PATH", "migrations"),
		LogLevel:               readString("LOG_LEVEL", "info"),
		RedisURL:               os.Getenv("REDIS_URL"),
		EstimateCacheTTL:       readDurationSeconds("ESTIMATE_CACHE_TTL_SECONDS", 30),
		PredictorURL:           os.Getenv("PREDICTOR_URL"),
		PredictorTimeout:       readDurationMillis("PREDICTOR_TIMEOUT_MS", 2000),
		KafkaBrokers:           readList("KAFKA_BROKERS"),
		KafkaTopic:             readString("KAFKA_TOPIC", "queue-events"),
		RelayInterval:          readDurationSeconds("RELAY_INTERVAL_SECONDS", 2),
		RelayBatchSize:         readInt("RELAY_BATCH_SIZE", 100),
		RealtimeEnabled:        readBool("REALTIME_ENABLED", true),
		AdminAPIKey:            os.Getenv("ADMIN_API_KEY"),
		RateLimitPerMinute:     readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:         readInt("RATE_LIMIT_BURST", 30),
		UserRateLimitPerMinute: readInt("USER_RATE_LIMIT_PER_MIN", 60),
		UserRateLimitBurst:     readInt("USER_RATE_LIMIT_BURST", 20),
		TracingEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TracingInsecure:        readBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		TraceSampleRatio:       readFloat("TRACE_SAMPLE_RATIO", 1),
	}
}

func readString(key, fallback string) string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	return raw
}

func readList(key string) []string {
	var values []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	return values
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readDurationMillis(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Millisecond
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return value
}

func readBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}
