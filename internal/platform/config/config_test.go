package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("LEXLINK_ADDR", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("TRUSTED_PROXIES", "")

	cfg := FromEnv()

	assert.Equal(t, ":8080", cfg.Addr)
	assert.False(t, cfg.RegulatedMode)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, "1.0", cfg.ConsentPolicyVersion)
	assert.Equal(t, 24*time.Hour, cfg.VerificationCacheTTL)
	assert.NotEmpty(t, cfg.JWTSigningKey)
	assert.Empty(t, cfg.TrustedProxies)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("LEXLINK_ADDR", ":9090")
	t.Setenv("REGULATED_MODE", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("VERIFICATION_CACHE_TTL", "90m")
	t.Setenv("RATE_LIMIT_BURST", "not-a-number")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 172.16.0.5")

	cfg := FromEnv()

	assert.Equal(t, ":9090", cfg.Addr)
	assert.True(t, cfg.RegulatedMode)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 90*time.Minute, cfg.VerificationCacheTTL)
	assert.Equal(t, 20, cfg.RateLimitBurst)
	assert.Equal(t, []string{"10.0.0.0/8", "172.16.0.5"}, cfg.TrustedProxies)
}
