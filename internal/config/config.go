// Package config holds the root configuration for the conversation engine.
// Values come from an optional JSON5 file overlaid with environment
// variables; env always wins. Secrets (DSN, keys) are env-only and never
// written back to the file.
package config

import "time"

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database,omitempty"`
	Channel   ChannelConfig   `json:"channel"`
	LLM       LLMConfig       `json:"llm"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Pipeline  PipelineConfig  `json:"pipeline"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Campaign  CampaignConfig  `json:"campaign"`
	Qualify   QualifyConfig   `json:"qualify"`
	Analytics AnalyticsConfig `json:"analytics"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
}

// ServerConfig configures the webhook HTTP listener.
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// DatabaseConfig configures Postgres. DSN is env-only (DB_URL).
type DatabaseConfig struct {
	DSN string `json:"-"` // from env DB_URL only
	// ServiceKey authenticates hosted datastores that take a key besides
	// the DSN. Env-only (DB_KEY).
	ServiceKey string `json:"-"`
	// EncryptionKey seals api_keys.encrypted_secret. Env-only
	// (API_KEY_ENCRYPTION_KEY).
	EncryptionKey string `json:"-"`
	EmbeddingDim  int    `json:"embedding_dim,omitempty"`
}

// ChannelConfig configures the chat-channel gateway client.
type ChannelConfig struct {
	BaseURL  string `json:"base_url"`
	APIToken string `json:"-"` // from env CHANNEL_API_TOKEN only
	// TimeoutSec bounds one outbound gateway call.
	TimeoutSec int `json:"timeout_sec"`
}

// LLMConfig configures the LLM provider client.
type LLMConfig struct {
	// DefaultAPIKey serves tenants without a tenant-specific key.
	// Env-only (LLM_API_KEY).
	DefaultAPIKey   string `json:"-"`
	BaseURL         string `json:"base_url,omitempty"`
	Model           string `json:"model"`
	EmbeddingModel  string `json:"embedding_model"`
	ChatTimeoutSec  int    `json:"chat_timeout_sec"`
	EmbedTimeoutSec int    `json:"embed_timeout_sec"`
	// KeyCacheTTL bounds how long decrypted tenant keys stay cached.
	KeyCacheTTL time.Duration `json:"-"`
}

// RateLimitConfig is the per-tenant outbound token bucket.
type RateLimitConfig struct {
	MessagesPerMinute int `json:"messages_per_minute"`
	MessagesPerHour   int `json:"messages_per_hour"`
}

// PipelineConfig tunes the inbound processing workers.
type PipelineConfig struct {
	QueueSize int `json:"queue_size"`
	Workers   int `json:"workers"`
	// BudgetSec is the per-event processing budget; overruns are recorded
	// as timeout samples but the reply is still sent.
	BudgetSec    int `json:"budget_sec"`
	DedupeTTLMin int `json:"dedupe_ttl_min"`
	DedupeMax    int `json:"dedupe_max"`
}

// SchedulerConfig tunes the scheduled-message and rescue worker.
type SchedulerConfig struct {
	Enabled           bool `json:"enabled"`
	IntervalSec       int  `json:"interval_sec"`
	RescueIntervalSec int  `json:"rescue_interval_sec"`
	// RescueStagesMin are the progressive-update marks in minutes since
	// handover; RescueTimeoutMin re-enables the bot.
	RescueStagesMin  []int `json:"rescue_stages_min"`
	RescueTimeoutMin int   `json:"rescue_timeout_min"`
}

// CampaignConfig tunes the bulk send loop.
type CampaignConfig struct {
	PacingSec int `json:"pacing_sec"`
	// PollIntervalSec is how often pending campaigns are claimed.
	PollIntervalSec int `json:"poll_interval_sec"`
}

// QualifyConfig tunes lead qualification.
type QualifyConfig struct {
	CooldownHours    int    `json:"cooldown_hours"`
	DiscoveryCallURL string `json:"discovery_call_url,omitempty"`
}

// AnalyticsConfig tunes the async sink.
type AnalyticsConfig struct {
	QueueSize         int `json:"queue_size"`
	SessionWindowMin  int `json:"session_window_min"`
	RollupIntervalMin int `json:"rollup_interval_min"`
}

// TelemetryConfig configures the optional OTLP trace exporter.
type TelemetryConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint,omitempty"` // host:port for OTLP/HTTP
	Service  string `json:"service,omitempty"`
}
