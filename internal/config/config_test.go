// ABOUTME: Tests for environment configuration loading
// ABOUTME: Defaults, overrides, and validation failures

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

	assert.Equal(t, "http://localhost:8080", cfg.GatewayBaseURL)
	assert.Equal(t, "events.test", cfg.Subject)
	assert.NotEmpty(t, cfg.Hostname)
	assert.Equal(t, 2*time.Second, cfg.PublishInterval)
	assert.Equal(t, 5*time.Second, cfg.PublishTimeout)
	assert.Equal(t, 30*time.Second, cfg.ReceiveTimeout)
	assert.Equal(t, 0, cfg.MaxMessages)
	assert.Equal(t, 60*time.Second, cfg.MetricsInterval)
	assert.Equal(t, uint(5), cfg.MaxReconnects)
	assert.Equal(t, 2*time.Second, cfg.ReconnectDelay)
	assert.True(t, cfg.ReconnectBackoff)
	assert.False(t, cfg.Durable())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("GATEWAY_BASE_URL", "https://gw.example.com")
	t.Setenv("NATS_SUBJECT", "orders.>")
	t.Setenv("STREAM_NAME", "ORDERS")
	t.Setenv("CONSUMER_NAME", "billing")
	t.Setenv("PUBLISH_INTERVAL", "250ms")
	t.Setenv("MAX_MESSAGES", "100")
	t.Setenv("MAX_RECONNECTS", "9")
	t.Setenv("RECONNECT_BACKOFF", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://gw.example.com", cfg.GatewayBaseURL)
	assert.Equal(t, "orders.>", cfg.Subject)
	assert.Equal(t, "ORDERS", cfg.StreamName)
	assert.Equal(t, "billing", cfg.ConsumerName)
	assert.Equal(t, 250*time.Millisecond, cfg.PublishInterval)
	assert.Equal(t, 100, cfg.MaxMessages)
	assert.Equal(t, uint(9), cfg.MaxReconnects)
	assert.False(t, cfg.ReconnectBackoff)
	assert.True(t, cfg.Durable())
}

func TestLoadEmptySubject(t *testing.T) {
	t.Setenv("NATS_SUBJECT", "")
	// AutomaticEnv treats an empty variable as unset, so the default
	// applies; Load never returns an empty subject either way.
	cfg, err := Load()
	if err == nil {
		assert.NotEmpty(t, cfg.Subject)
	}
}

func TestLoadRejectsNonPositiveIntervals(t *testing.T) {
	t.Setenv("METRICS_INTERVAL", "0")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "METRICS_INTERVAL")

	t.Setenv("METRICS_INTERVAL", "60s")
	t.Setenv("PUBLISH_INTERVAL", "0s")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PUBLISH_INTERVAL")
}

func TestDurableNeedsBothNames(t *testing.T) {
	assert.False(t, Config{StreamName: "EVENTS"}.Durable())
	assert.False(t, Config{ConsumerName: "worker"}.Durable())
	assert.True(t, Config{StreamName: "EVENTS", ConsumerName: "worker"}.Durable())
}
