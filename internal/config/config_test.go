package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadRateLimitConfigDefaults(t *testing.T) {
	cfg := LoadRateLimitConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 60, cfg.Capacity)
	assert.Equal(t, time.Second, cfg.RefillInterval)
	assert.InDelta(t, 1.0, cfg.PerSecond(), 0.0001)
}

func TestLoadRateLimitConfigClampsTTL(t *testing.T) {
	t.Setenv("RATE_LIMIT_REFILL_EVERY", "10s")
	t.Setenv("RATE_LIMIT_TTL", "1s")
	t.Setenv("RATE_LIMIT_BURST", "5")

	cfg := LoadRateLimitConfig()
	assert.Equal(t, 5, cfg.Capacity)
	assert.Equal(t, 1, cfg.RefillTokens)
	assert.Equal(t, 50*time.Second, cfg.TTL)
}

func TestEnvBool(t *testing.T) {
	t.Setenv("X_FLAG", "Yes")
	assert.True(t, envBool("X_FLAG", false))
	t.Setenv("X_FLAG", "off")
	assert.False(t, envBool("X_FLAG", true))
	t.Setenv("X_FLAG", "maybe")
	assert.True(t, envBool("X_FLAG", true))
}

func TestLoadBrokerConfig(t *testing.T) {
	t.Setenv("RABBITMQ_URL", "")
	t.Setenv("AMQP_URL", "amqp://x")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")

	cfg := LoadBrokerConfig()
	assert.Equal(t, "amqp://x", cfg.RabbitURL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "marketplace-ledger", cfg.KafkaTopic)
}

func TestLoadPaymentConfigDefaults(t *testing.T) {
	cfg := LoadPaymentConfig()
	assert.Equal(t, "ngn", cfg.Currency)
	assert.Equal(t, int64(500), cfg.PlatformFeeBPS)
	assert.Equal(t, 24*time.Hour, cfg.DepositExpiry)
}
