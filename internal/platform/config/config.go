package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr          string
	RegulatedMode bool
	LogLevel      string

	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string

	// DatabaseURL selects Postgres stores; empty keeps everything in memory.
	DatabaseURL string

	Redis RedisConfig
	Kafka KafkaConfig

	VerificationCacheTTL time.Duration
	ConsentPolicyVersion string
	AttestationVersion   string
	RateLimitRPS         float64
	RateLimitBurst       int
	CORSAllowedOrigins   []string
	// TrustedProxies lists proxy CIDRs whose forwarding headers are believed.
	// Empty means the socket peer is always the client.
	TrustedProxies       []string
	AuditQueueSize       int
	ShutdownTimeout      time.Duration
	RequestTimeout       time.Duration
}

// RedisConfig configures the verification cache. An empty URL selects the
// in-memory cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures audit fan-out. No brokers disables it.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Development default; production deployments must override it.
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Server{
		Addr:          envOr("LEXLINK_ADDR", ":8080"),
		RegulatedMode: os.Getenv("REGULATED_MODE") == "true",
		LogLevel:      envOr("LOG_LEVEL", "info"),

		JWTSigningKey: jwtSigningKey,
		JWTIssuer:     envOr("JWT_ISSUER", "lexlink-identity"),
		JWTAudience:   envOr("JWT_AUDIENCE", "lexlink-api"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:    splitList(os.Getenv("KAFKA_BROKERS")),
			AuditTopic: envOr("KAFKA_AUDIT_TOPIC", "lexlink.audit.compliance"),
		},

		VerificationCacheTTL: envDuration("VERIFICATION_CACHE_TTL", 24*time.Hour),
		ConsentPolicyVersion: envOr("CONSENT_POLICY_VERSION", "1.0"),
		AttestationVersion:   envOr("ATTESTATION_VERSION", "1.0"),
		RateLimitRPS:         envFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst:       envInt("RATE_LIMIT_BURST", 20),
		CORSAllowedOrigins:   splitList(envOr("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		TrustedProxies:       splitList(os.Getenv("TRUSTED_PROXIES")),
		AuditQueueSize:       envInt("AUDIT_QUEUE_SIZE", 1024),
		ShutdownTimeout:      envDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		RequestTimeout:       envDuration("REQUEST_TIMEOUT", 30*time.Second),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
