package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "ssepush.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	path := DefaultConfigFile
	if v := os.Getenv("SSEPUSH_CONFIG"); v != "" {
		path = v
	}
	return LoadFrom(path)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML decodes the YAML file over cfg. Unknown keys are rejected so a
// misspelled setting does not silently fall back to its default.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied path
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "SSEPUSH_PORT")
	setString(&cfg.Server.CORSOrigin, "SSEPUSH_CORS_ORIGIN")
	setDuration(&cfg.Server.ReadHeaderTimeout, "SSEPUSH_READ_HEADER_TIMEOUT")
	setDuration(&cfg.Server.ShutdownTimeout, "SSEPUSH_SHUTDOWN_TIMEOUT")

	// Stream
	setDuration(&cfg.Stream.Retry, "SSEPUSH_STREAM_RETRY")
	setDuration(&cfg.Stream.WriteTimeout, "SSEPUSH_STREAM_WRITE_TIMEOUT")
	setDuration(&cfg.Stream.Heartbeat, "SSEPUSH_STREAM_HEARTBEAT")
	setString(&cfg.Stream.HandshakeMessage, "SSEPUSH_STREAM_HANDSHAKE_MESSAGE")

	// Push
	setInt(&cfg.Push.MaxParallel, "SSEPUSH_PUSH_MAX_PARALLEL")
	setInt64(&cfg.Push.MaxBodyBytes, "SSEPUSH_PUSH_MAX_BODY_BYTES")

	// NATS
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.KVBucket, "SSEPUSH_NATS_KV_BUCKET")
	setInt(&cfg.NATS.BreakerFailures, "SSEPUSH_NATS_BREAKER_FAILURES")
	setDuration(&cfg.NATS.BreakerTimeout, "SSEPUSH_NATS_BREAKER_TIMEOUT")

	// Cache
	setInt64(&cfg.Cache.L1MaxSizeMB, "SSEPUSH_CACHE_L1_SIZE_MB")
	setDuration(&cfg.Cache.IdempotencyTTL, "SSEPUSH_IDEMPOTENCY_TTL")

	// Rate
	setFloat64(&cfg.Rate.RequestsPerSecond, "SSEPUSH_RATE_RPS")
	setInt(&cfg.Rate.Burst, "SSEPUSH_RATE_BURST")
	setDuration(&cfg.Rate.CleanupInterval, "SSEPUSH_RATE_CLEANUP_INTERVAL")
	setDuration(&cfg.Rate.MaxIdleTime, "SSEPUSH_RATE_MAX_IDLE_TIME")

	// Logging
	setString(&cfg.Logging.Level, "SSEPUSH_LOG_LEVEL")
	setString(&cfg.Logging.Service, "SSEPUSH_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "SSEPUSH_LOG_ASYNC")

	// OpenTelemetry
	setBool(&cfg.OTEL.Enabled, "SSEPUSH_OTEL_ENABLED")
	setString(&cfg.OTEL.Endpoint, "SSEPUSH_OTEL_ENDPOINT")
	setString(&cfg.OTEL.ServiceName, "SSEPUSH_OTEL_SERVICE_NAME")
	setBool(&cfg.OTEL.Insecure, "SSEPUSH_OTEL_INSECURE")
}

// validate reports every invalid field at once, joined into one error.
func validate(cfg *Config) error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}

	check(cfg.Server.Port != "", "server.port is required")
	check(cfg.Stream.Retry >= 0, "stream.retry must be >= 0")
	check(cfg.Stream.WriteTimeout > 0, "stream.write_timeout must be > 0")
	check(cfg.Stream.Heartbeat >= 0, "stream.heartbeat must be >= 0")
	check(cfg.Push.MaxParallel >= 1, "push.max_parallel must be >= 1")
	check(cfg.Push.MaxBodyBytes >= 1, "push.max_body_bytes must be >= 1")
	check(cfg.NATS.BreakerFailures >= 1, "nats.breaker_failures must be >= 1")
	check(cfg.Cache.L1MaxSizeMB >= 1, "cache.l1_max_size_mb must be >= 1")
	check(cfg.Rate.RequestsPerSecond > 0, "rate.requests_per_second must be > 0")
	check(cfg.Rate.Burst >= 1, "rate.burst must be >= 1")
	check(!cfg.OTEL.Enabled || cfg.OTEL.Endpoint != "", "otel.endpoint is required when otel is enabled")

	return errors.Join(errs...)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
