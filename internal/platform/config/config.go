package config

import (
	"os"
	"time"
)

// Issuance captures configuration for the issuance service.
type Issuance struct {
	Addr          string
	DatabaseURL   string
	WorkerID      string
	JWTSigningKey string
	KafkaBrokers  string
	Environment   string
}

// Verification captures configuration for the verification service.
type Verification struct {
	Addr             string
	DatabaseURL      string
	WorkerID         string
	IssuerURL        string
	FetchTimeout     time.Duration
	RedisURL         string
	SnapshotCacheTTL time.Duration
	KafkaBrokers     string
	Environment      string
}

// IssuanceFromEnv builds the issuance config from environment variables so
// main stays lean.
func IssuanceFromEnv() Issuance {
	return Issuance{
		Addr:          envOr("ISSUANCE_ADDR", ":3000"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		WorkerID:      WorkerID(),
		JWTSigningKey: os.Getenv("JWT_SIGNING_KEY"),
		KafkaBrokers:  os.Getenv("KAFKA_BROKERS"),
		Environment:   envOr("ENVIRONMENT", "development"),
	}
}

// VerificationFromEnv builds the verification config from environment variables.
func VerificationFromEnv() Verification {
	return Verification{
		Addr:             envOr("VERIFICATION_ADDR", ":3001"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		WorkerID:         WorkerID(),
		IssuerURL:        envOr("ISSUANCE_SERVICE_URL", "http://issuance-service:3000"),
		FetchTimeout:     durationOr("ISSUER_FETCH_TIMEOUT", 3*time.Second),
		RedisURL:         os.Getenv("REDIS_URL"),
		SnapshotCacheTTL: durationOr("SNAPSHOT_CACHE_TTL", 2*time.Second),
		KafkaBrokers:     os.Getenv("KAFKA_BROKERS"),
		Environment:      envOr("ENVIRONMENT", "development"),
	}
}

// WorkerID resolves the identity of this process instance. It is injected
// into services at construction and recorded on every issued credential and
// verification log entry; it is observability metadata, never a correctness
// input.
func WorkerID() string {
	if id := os.Getenv("WORKER_ID"); id != "" {
		return id
	}
	if id := os.Getenv("HOSTNAME"); id != "" {
		return id
	}
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return host
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
