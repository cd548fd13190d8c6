// Package config provides hierarchical configuration loading for the push broker.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the push broker.
type Config struct {
	Server  Server  `yaml:"server"`
	Stream  Stream  `yaml:"stream"`
	Push    Push    `yaml:"push"`
	NATS    NATS    `yaml:"nats"`
	Cache   Cache   `yaml:"cache"`
	Rate    Rate    `yaml:"rate"`
	Logging Logging `yaml:"logging"`
	OTEL    OTEL    `yaml:"otel"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port              string        `yaml:"port"`
	CORSOrigin        string        `yaml:"cors_origin"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// Stream holds settings for the long-lived client streams.
type Stream struct {
	Retry            time.Duration `yaml:"retry"`             // Reconnect hint sent in the handshake (default: 5s)
	WriteTimeout     time.Duration `yaml:"write_timeout"`     // Per-event write bound (default: 10s)
	Heartbeat        time.Duration `yaml:"heartbeat"`         // Keep-alive interval; 0 disables (default: 30s)
	HandshakeMessage string        `yaml:"handshake_message"` // Payload of the first event (default: "connected")
}

// Push holds dispatcher settings.
type Push struct {
	MaxParallel  int   `yaml:"max_parallel"`   // Concurrent writes per batch or broadcast (default: 64)
	MaxBodyBytes int64 `yaml:"max_body_bytes"` // Request body limit for POST /api/v1/push (default: 1 MiB)
}

// NATS holds the trigger subscriber configuration. An empty URL disables it.
type NATS struct {
	URL string `yaml:"url"`
	// KVBucket names the JetStream KV bucket that shares dedupe keys between
	// replicas. Empty keeps dedupe in-process only.
	KVBucket        string        `yaml:"kv_bucket"`
	BreakerFailures int           `yaml:"breaker_failures"` // Consecutive KV failures before falling back to L1 (default: 5)
	BreakerTimeout  time.Duration `yaml:"breaker_timeout"`  // How long the KV stays bypassed (default: 30s)
}

// Cache holds the in-process cache configuration.
type Cache struct {
	L1MaxSizeMB    int64         `yaml:"l1_max_size_mb"`
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
}

// Rate holds the per-IP rate limiter configuration for connect endpoints.
type Rate struct {
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval"`
	MaxIdleTime       time.Duration `yaml:"max_idle_time"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// OTEL holds OpenTelemetry exporter configuration.
type OTEL struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
	Insecure    bool   `yaml:"insecure"`
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:              "8080",
			CORSOrigin:        "http://localhost:3000",
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Stream: Stream{
			Retry:            5 * time.Second,
			WriteTimeout:     10 * time.Second,
			Heartbeat:        30 * time.Second,
			HandshakeMessage: "connected",
		},
		Push: Push{
			MaxParallel:  64,
			MaxBodyBytes: 1 << 20,
		},
		NATS: NATS{
			KVBucket:        "ssepush_dedupe",
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		Cache: Cache{
			L1MaxSizeMB:    16,
			IdempotencyTTL: 10 * time.Minute,
		},
		Rate: Rate{
			RequestsPerSecond: 10,
			Burst:             100,
			CleanupInterval:   5 * time.Minute,
			MaxIdleTime:       10 * time.Minute,
		},
		Logging: Logging{
			Level:   "info",
			Service: "ssepush",
		},
		OTEL: OTEL{
			Endpoint:    "localhost:4317",
			ServiceName: "ssepush",
			Insecure:    true,
		},
	}
}
