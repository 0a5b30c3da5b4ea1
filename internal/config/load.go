package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			EmbeddingDim: 1536,
		},
		Channel: ChannelConfig{
			BaseURL:    "http://localhost:3000",
			TimeoutSec: 30,
		},
		LLM: LLMConfig{
			Model:           "gpt-4o-mini",
			EmbeddingModel:  "text-embedding-3-small",
			ChatTimeoutSec:  60,
			EmbedTimeoutSec: 20,
			KeyCacheTTL:     5 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			MessagesPerMinute: 20,
			MessagesPerHour:   400,
		},
		Pipeline: PipelineConfig{
			QueueSize:    1024,
			Workers:      8,
			BudgetSec:    60,
			DedupeTTLMin: 20,
			DedupeMax:    5000,
		},
		Scheduler: SchedulerConfig{
			Enabled:           true,
			IntervalSec:       60,
			RescueIntervalSec: 120,
			RescueStagesMin:   []int{10, 20, 30, 45},
			RescueTimeoutMin:  60,
		},
		Campaign: CampaignConfig{
			PacingSec:       10,
			PollIntervalSec: 30,
		},
		Qualify: QualifyConfig{
			CooldownHours: 24,
		},
		Analytics: AnalyticsConfig{
			QueueSize:         4096,
			SessionWindowMin:  60,
			RollupIntervalMin: 60,
		},
		Telemetry: TelemetryConfig{
			Service: "leadflow",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error; env alone is a valid configuration.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	envStr("DB_URL", &c.Database.DSN)
	envStr("DB_KEY", &c.Database.ServiceKey)
	envStr("API_KEY_ENCRYPTION_KEY", &c.Database.EncryptionKey)

	envStr("CHANNEL_API_URL", &c.Channel.BaseURL)
	envStr("CHANNEL_API_TOKEN", &c.Channel.APIToken)

	envStr("LLM_API_KEY", &c.LLM.DefaultAPIKey)
	envStr("LLM_API_URL", &c.LLM.BaseURL)
	envStr("LLM_MODEL", &c.LLM.Model)

	envInt("RATE_LIMIT_PER_MINUTE", &c.RateLimit.MessagesPerMinute)
	envInt("RATE_LIMIT_PER_HOUR", &c.RateLimit.MessagesPerHour)

	envStr("CALENDLY_DISCOVERY_CALL_URL", &c.Qualify.DiscoveryCallURL)

	if v := os.Getenv("SCHEDULER_ENABLED"); v != "" {
		c.Scheduler.Enabled = v == "1" || v == "true" || v == "yes"
	}
	// With multiple web processes the in-process scheduler must not run in
	// each of them; the advisory lock guards double-fires but disabling
	// avoids the contention entirely.
	if v := os.Getenv("WEB_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 1 {
			c.Scheduler.Enabled = false
		}
	}

	envStr("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Telemetry.Endpoint)
	if c.Telemetry.Endpoint != "" {
		c.Telemetry.Enabled = true
	}
}
