package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":3001", cfg.Server.Addr)
	assert.Equal(t, 10, cfg.RateLimit.VerifyLimit)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.VerifyWindow)
	assert.Equal(t, 20, cfg.RateLimit.DownloadLimit)
	assert.Equal(t, 15*time.Minute, cfg.Session.TTL)
	assert.Equal(t, 5*time.Minute, cfg.Freshness.SkewWindow)
	assert.Equal(t, 60*time.Second, cfg.Download.URLTTL)
	assert.Equal(t, "rythenox-downloads", cfg.Blob.Bucket)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DOWNLOADGATE_SERVER_ADDR", ":9000")
	t.Setenv("DOWNLOADGATE_RATELIMIT_VERIFY_LIMIT", "3")
	t.Setenv("DOWNLOADGATE_AUDIT_SINK", "kafka")
	t.Setenv("DOWNLOADGATE_AUDIT_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 3, cfg.RateLimit.VerifyLimit)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Audit.KafkaBrokers)
}

func TestValidate(t *testing.T) {
	t.Run("redis backend requires url", func(t *testing.T) {
		t.Setenv("DOWNLOADGATE_RATELIMIT_BACKEND", "redis")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "REDIS_URL")
	})

	t.Run("unknown license driver", func(t *testing.T) {
		t.Setenv("DOWNLOADGATE_LICENSE_DRIVER", "oracle")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "oracle")
	})

	t.Run("non-positive ttl", func(t *testing.T) {
		t.Setenv("DOWNLOADGATE_DOWNLOAD_URL_TTL", "0s")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "DOWNLOAD_URL_TTL")
	})
}
