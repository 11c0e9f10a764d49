package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "DB_DSN", "STORE_BACKEND", "SEED_DEMO_DATA", "KAFKA_BROKERS", "PREDICTOR_TIMEOUT_MS"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %q", cfg.Port)
	}
	if cfg.StoreBackend != BackendMemory {
		t.Fatalf("expected memory backend, got %q", cfg.StoreBackend)
	}
	if !cfg.SeedDemoData {
		t.Fatalf("expected demo data seeded by default for memory backend")
	}
	if cfg.PredictorTimeout != 2*time.Second {
		t.Fatalf("expected 2s predictor timeout, got %v", cfg.PredictorTimeout)
	}
	if len(cfg.KafkaBrokers) != 0 {
		t.Fatalf("expected no brokers, got %v", cfg.KafkaBrokers)
	}
}

func TestLoadPostgresFromDSN(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("SEED_DEMO_DATA", "")
	t.Setenv("DB_DSN", "postgres://localhost/qfree")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("RATE_LIMIT_PER_MIN", "not-a-number")

	cfg := Load()
	if cfg.StoreBackend != BackendPostgres {
		t.Fatalf("expected postgres backend, got %q", cfg.StoreBackend)
	}
	if cfg.SeedDemoData {
		t.Fatalf("expected no seed by default for postgres")
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	if cfg.RateLimitPerMinute != 120 {
		t.Fatalf("expected fallback rate limit, got %d", cfg.RateLimitPerMinute)
	}
}

func TestLoadRealtimeToggle(t *testing.T) {
	t.Setenv("REALTIME_ENABLED", "")
	if !Load().RealtimeEnabled {
		t.Fatalf("expected realtime feed on by default")
	}
	t.Setenv("REALTIME_ENABLED", "false")
	if Load().RealtimeEnabled {
		t.Fatalf("expected realtime feed disabled")
	}
}

func TestLoadTracing(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel-collector:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "true")
	t.Setenv("TRACE_SAMPLE_RATIO", "0.25")
	cfg := Load()
	if cfg.TracingEndpoint != "otel-collector:4317" || !cfg.TracingInsecure {
		t.Fatalf("unexpected tracing settings %q %v", cfg.TracingEndpoint, cfg.TracingInsecure)
	}
	if cfg.TraceSampleRatio != 0.25 {
		t.Fatalf("expected 0.25 sample ratio, got %v", cfg.TraceSampleRatio)
	}

	t.Setenv("TRACE_SAMPLE_RATIO", "most")
	if got := Load().TraceSampleRatio; got != 1 {
		t.Fatalf("expected fallback ratio 1, got %v", got)
	}
}
