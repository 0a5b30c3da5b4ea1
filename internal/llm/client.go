// Package llm adapts the OpenAI-compatible chat-completions and
// embeddings APIs with per-tenant API key resolution.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/hashicorp/golang-lru/v2/expirable"
	openai "github.com/sashabaranov/go-openai"

	"github.com/nextlevelbuilder/leadflow/internal/store"
)

const (
	// maxEmbedChars bounds embedding input; longer text is truncated.
	maxEmbedChars = 8000
	keyCacheSize  = 512
)

// ChatMessage is one turn handed to the completion API.
type ChatMessage struct {
	Role    string
	Content string
}

// ChatParams are the model knobs chosen by the caller per response.
type ChatParams struct {
	Model       string
	MaxTokens   int
	Temperature float32
}

// Usage reports token consumption for one completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Config holds provider defaults.
type Config struct {
	DefaultAPIKey  string
	BaseURL        string
	Model          string
	EmbeddingModel string
	ChatTimeout    time.Duration
	EmbedTimeout   time.Duration
	KeyCacheTTL    time.Duration
}

// Client resolves the tenant's LLM key, caches it for a short TTL, and
// issues chat-completion and embedding calls.
type Client struct {
	cfg    Config
	keys   store.APIKeyStore
	cache  *expirable.LRU[string, string]
	logger *slog.Logger
}

// NewClient creates an LLM client. keys may serve tenant-specific keys;
// tenants without one fall back to cfg.DefaultAPIKey.
func NewClient(cfg Config, keys store.APIKeyStore, logger *slog.Logger) *Client {
	if cfg.ChatTimeout <= 0 {
		cfg.ChatTimeout = 60 * time.Second
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = 20 * time.Second
	}
	ttl := cfg.KeyCacheTTL
	if ttl <= 0 || ttl > 5*time.Minute {
		ttl = 5 * time.Minute
	}
	return &Client{
		cfg:    cfg,
		keys:   keys,
		cache:  expirable.NewLRU[string, string](keyCacheSize, nil, ttl),
		logger: logger,
	}
}

// apiFor builds a provider client authenticated for the tenant.
func (c *Client) apiFor(ctx context.Context, tenantID string) (*openai.Client, error) {
	key, err := c.resolveKey(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	conf := openai.DefaultConfig(key)
	if c.cfg.BaseURL != "" {
		conf.BaseURL = c.cfg.BaseURL
	}
	return openai.NewClientWithConfig(conf), nil
}

func (c *Client) resolveKey(ctx context.Context, tenantID string) (string, error) {
	if key, ok := c.cache.Get(tenantID); ok {
		return key, nil
	}

	key, err := c.keys.ActiveSecret(ctx, tenantID, store.APIKeyLLM)
	switch {
	case err == nil:
		c.cache.Add(tenantID, key)
		return key, nil
	case errors.Is(err, store.ErrNotFound):
		if c.cfg.DefaultAPIKey == "" {
			return "", fmt.Errorf("no llm key for tenant %s", tenantID)
		}
		c.cache.Add(tenantID, c.cfg.DefaultAPIKey)
		return c.cfg.DefaultAPIKey, nil
	default:
		return "", fmt.Errorf("resolve llm key: %w", err)
	}
}

// InvalidateKey drops the cached key so the next call re-reads the
// store; used after an auth failure.
func (c *Client) InvalidateKey(tenantID string) {
	c.cache.Remove(tenantID)
}

// CompleteChat runs one chat completion for the tenant.
func (c *Client) CompleteChat(ctx context.Context, tenantID string, messages []ChatMessage, params ChatParams) (string, *Usage, error) {
	api, err := c.apiFor(ctx, tenantID)
	if err != nil {
		return "", nil, err
	}

	model := params.Model
	if model == "" {
		model = c.cfg.Model
	}
	req := openai.ChatCompletionRequest{
		Model:       model,
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ChatTimeout)
	defer cancel()

	resp, err := api.CreateChatCompletion(ctx, req)
	if err != nil {
		if isAuthError(err) {
			c.InvalidateKey(tenantID)
		}
		return "", nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil, fmt.Errorf("chat completion: empty choices")
	}

	usage := &Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), usage, nil
}

// Embed computes one embedding vector, truncating oversized input and
// retrying transient provider failures.
func (c *Client) Embed(ctx context.Context, tenantID, text string) ([]float32, error) {
	api, err := c.apiFor(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if len(text) > maxEmbedChars {
		text = text[:maxEmbedChars]
	}

	var vector []float32
	err = retry.Do(
		func() error {
			ctx, cancel := context.WithTimeout(ctx, c.cfg.EmbedTimeout)
			defer cancel()

			resp, err := api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
				Model: openai.EmbeddingModel(c.cfg.EmbeddingModel),
				Input: []string{text},
			})
			if err != nil {
				return err
			}
			if len(resp.Data) == 0 {
				return fmt.Errorf("empty embedding response")
			}
			vector = resp.Data[0].Embedding
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(func(err error) bool { return !isAuthError(err) }),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("embedding retry", "tenant_id", tenantID, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		if isAuthError(err) {
			c.InvalidateKey(tenantID)
		}
		return nil, fmt.Errorf("embed: %w", err)
	}
	return vector, nil
}

// isAuthError detects provider 401/403 responses.
func isAuthError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 401 || apiErr.HTTPStatusCode == 403
	}
	return false
}
