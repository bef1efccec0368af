package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "0.0.0.0:5000", cfg.Listen.Addr())
	assert.Equal(t, "nats://localhost:4222", cfg.Nats.URL())
	assert.Equal(t, 20, cfg.Queue.Prefetch)
	assert.Equal(t, 3, cfg.Queue.MaxDeliver)
	assert.Equal(t, 5*time.Minute, cfg.Queue.AckWait)
	assert.Equal(t, 10000, cfg.RateLimit.RequestsPerMinute)
	assert.False(t, cfg.PgSql.Enabled())
	assert.False(t, cfg.Redis.Enabled())
	assert.False(t, cfg.GCS.Enabled())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("NATS_URL", "nats://queue:4222")
	t.Setenv("QUEUE_PREFETCH", "5")
	t.Setenv("QUEUE_ACK_WAIT", "90s")
	t.Setenv("COLLECT_TIMEOUT", "1500")
	t.Setenv("CRAWL_BUSINESS_MODE", "true")
	t.Setenv("BROWSER_CONTROL_URL", "ws://chrome:9222")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("GCS_STORAGE_BUCKET", "dead-letters")

	cfg := DefaultConfig()
	cfg.LoadFromEnv()

	assert.Equal(t, "0.0.0.0:8080", cfg.Listen.Addr())
	assert.Equal(t, "nats://queue:4222", cfg.Nats.URL())
	assert.Equal(t, 5, cfg.Queue.Prefetch)
	assert.Equal(t, 90*time.Second, cfg.Queue.AckWait)
	assert.Equal(t, 1500*time.Millisecond, cfg.Queue.CollectTimeout)
	assert.True(t, cfg.Crawl.BusinessMode)
	assert.Equal(t, "ws://chrome:9222", cfg.Crawl.BrowserURL)
	assert.True(t, cfg.Redis.Enabled())
	assert.True(t, cfg.GCS.Enabled())
}

func TestLoadFromEnvIgnoresMalformedValues(t *testing.T) {
	t.Setenv("QUEUE_PREFETCH", "many")
	t.Setenv("POSTGRES_PORT", "-1")
	t.Setenv("CRAWL_BUSINESS_MODE", "sometimes")

	cfg := DefaultConfig()
	cfg.LoadFromEnv()

	assert.Equal(t, 20, cfg.Queue.Prefetch)
	assert.Equal(t, uint(5432), cfg.PgSql.Port)
	assert.False(t, cfg.Crawl.BusinessMode)
}
