// ABOUTME: Environment-driven configuration for the bridge CLI
// ABOUTME: Viper bindings with defaults matching the gateway deployment

// Package config loads the bridge configuration from environment variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds everything the publish and subscribe loops need.
type Config struct {
	GatewayBaseURL string
	Subject        string
	Hostname       string

	// Durable subscription target; both set selects durable mode.
	StreamName   string
	ConsumerName string

	PublishInterval time.Duration
	PublishTimeout  time.Duration
	ReceiveTimeout  time.Duration
	MaxMessages     int
	MetricsInterval time.Duration

	MaxReconnects    uint
	ReconnectDelay   time.Duration
	ReconnectBackoff bool
}

// Durable reports whether the subscription addresses a durable consumer.
func (c Config) Durable() bool {
	return c.StreamName != "" && c.ConsumerName != ""
}

// Load reads configuration from the environment with sane defaults.
func Load() (Config, error) {
	v := viper.New()

	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "natsgate"
	}

	v.SetDefault("GATEWAY_BASE_URL", "http://localhost:8080")
	v.SetDefault("NATS_SUBJECT", "events.test")
	v.SetDefault("HOSTNAME", host)
	v.SetDefault("STREAM_NAME", "")
	v.SetDefault("CONSUMER_NAME", "")
	v.SetDefault("PUBLISH_INTERVAL", "2s")
	v.SetDefault("PUBLISH_TIMEOUT", "5s")
	v.SetDefault("RECEIVE_TIMEOUT", "30s")
	v.SetDefault("MAX_MESSAGES", 0)
	v.SetDefault("METRICS_INTERVAL", "60s")
	v.SetDefault("MAX_RECONNECTS", 5)
	v.SetDefault("RECONNECT_DELAY", "2s")
	v.SetDefault("RECONNECT_BACKOFF", true)
	v.AutomaticEnv()

	cfg := Config{
		GatewayBaseURL:   v.GetString("GATEWAY_BASE_URL"),
		Subject:          v.GetString("NATS_SUBJECT"),
		Hostname:         v.GetString("HOSTNAME"),
		StreamName:       v.GetString("STREAM_NAME"),
		ConsumerName:     v.GetString("CONSUMER_NAME"),
		PublishInterval:  v.GetDuration("PUBLISH_INTERVAL"),
		PublishTimeout:   v.GetDuration("PUBLISH_TIMEOUT"),
		ReceiveTimeout:   v.GetDuration("RECEIVE_TIMEOUT"),
		MaxMessages:      v.GetInt("MAX_MESSAGES"),
		MetricsInterval:  v.GetDuration("METRICS_INTERVAL"),
		MaxReconnects:    v.GetUint("MAX_RECONNECTS"),
		ReconnectDelay:   v.GetDuration("RECONNECT_DELAY"),
		ReconnectBackoff: v.GetBool("RECONNECT_BACKOFF"),
	}

	if _, err := url.Parse(cfg.GatewayBaseURL); err != nil {
		return Config{}, fmt.Errorf("invalid GATEWAY_BASE_URL %q: %w", cfg.GatewayBaseURL, err)
	}
	if cfg.Subject == "" {
		return Config{}, fmt.Errorf("NATS_SUBJECT must not be empty")
	}
	if cfg.PublishInterval <= 0 {
		return Config{}, fmt.Errorf("PUBLISH_INTERVAL must be positive, got %s", cfg.PublishInterval)
	}
	if cfg.MetricsInterval <= 0 {
		return Config{}, fmt.Errorf("METRICS_INTERVAL must be positive, got %s", cfg.MetricsInterval)
	}
	return cfg, nil
}
