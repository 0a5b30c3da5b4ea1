// Package channel implements the HTTP client for the chat-channel
// gateway: outbound sends, directory listings, and session status, with
// retry, classification, and per-tenant rate limiting.
package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

// MediaKind enumerates the media payloads the gateway accepts.
type MediaKind string

const (
	MediaImage    MediaKind = "image"
	MediaVideo    MediaKind = "video"
	MediaDocument MediaKind = "document"
	MediaAudio    MediaKind = "audio"
)

// SendResult is the gateway's acknowledgement of one outbound message.
type SendResult struct {
	ChannelMessageID string
	Status           string
}

// Group is a chat group visible to the channel session.
type Group struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Participants int    `json:"participants"`
}

// DirectoryContact is a contact known to the channel session.
type DirectoryContact struct {
	Phone string `json:"phone"`
	Name  string `json:"name"`
}

// SessionStatus reports whether the channel session is paired and live.
type SessionStatus struct {
	Connected bool   `json:"connected"`
	State     string `json:"state"`
	Phone     string `json:"phone,omitempty"`
}

// Client talks to the chat-channel HTTP gateway. All sends pass through
// the per-tenant rate limiter before hitting the wire.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *TenantLimiter
	logger  *slog.Logger
}

// NewClient creates a gateway client.
func NewClient(baseURL, token string, timeout time.Duration, limiter *TenantLimiter, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
		limiter: limiter,
		logger:  logger,
	}
}

// SendText sends one text fragment to a canonical phone number.
func (c *Client) SendText(ctx context.Context, tenantID, to, body string) (*SendResult, error) {
	return c.send(ctx, tenantID, map[string]any{"to": to, "text": body})
}

// SendMedia sends a media message with an optional caption.
func (c *Client) SendMedia(ctx context.Context, tenantID, to string, kind MediaKind, url, caption string) (*SendResult, error) {
	payload := map[string]any{"to": to}
	switch kind {
	case MediaImage:
		payload["imageUrl"] = url
	case MediaVideo:
		payload["videoUrl"] = url
	case MediaDocument:
		payload["documentUrl"] = url
	case MediaAudio:
		payload["audioUrl"] = url
	default:
		return nil, &Error{Kind: KindInvalidRecipient, Err: fmt.Errorf("unknown media kind %q", kind)}
	}
	if caption != "" {
		payload["text"] = caption
	}
	return c.send(ctx, tenantID, payload)
}

func (c *Client) send(ctx context.Context, tenantID string, payload map[string]any) (*SendResult, error) {
	if err := c.limiter.Wait(ctx, tenantID); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	var result *SendResult
	err := retry.Do(
		func() error {
			var err error
			result, err = c.post(ctx, "/send-message", payload)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxJitter(500*time.Millisecond),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.RetryIf(IsRetryable),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			delay := retryAfter(err)
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
				}
			}
			c.logger.Warn("channel send retry", "tenant_id", tenantID, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// retryAfter extracts the gateway-advertised delay from a rate-limit
// error, defaulting to 10s for 429s without a Retry-After header.
func retryAfter(err error) time.Duration {
	var ce *Error
	if !errors.As(err, &ce) || ce.Kind != KindRateLimited {
		return 0
	}
	if ce.RetryAfterSec > 0 {
		return time.Duration(ce.RetryAfterSec) * time.Second
	}
	return 10 * time.Second
}

func (c *Client) post(ctx context.Context, path string, payload map[string]any) (*SendResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindTransient, Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err := classifyStatus(resp, raw); err != nil {
		return nil, err
	}

	var envelope struct {
		Success bool `json:"success"`
		Data    struct {
			MsgID  string `json:"msgId"`
			Status string `json:"status"`
		} `json:"data"`
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, &Error{Kind: KindTransient, Err: fmt.Errorf("decode response: %w", err)}
	}
	if !envelope.Success {
		return nil, classifyFailure(envelope.Error)
	}
	return &SendResult{ChannelMessageID: envelope.Data.MsgID, Status: envelope.Data.Status}, nil
}

// classifyStatus maps HTTP status codes to typed errors.
func classifyStatus(resp *http.Response, raw []byte) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &Error{Kind: KindUnauthorized, Err: fmt.Errorf("gateway returned %d", resp.StatusCode)}
	case resp.StatusCode == http.StatusTooManyRequests:
		sec := 0
		if v := resp.Header.Get("Retry-After"); v != "" {
			sec, _ = strconv.Atoi(v)
		}
		return &Error{Kind: KindRateLimited, RetryAfterSec: sec, Err: fmt.Errorf("gateway returned 429")}
	case resp.StatusCode >= 500:
		return &Error{Kind: KindTransient, Err: fmt.Errorf("gateway returned %d: %s", resp.StatusCode, truncate(raw, 200))}
	default:
		return classifyFailure(string(truncate(raw, 200)))
	}
}

// classifyFailure maps gateway failure bodies to typed errors.
func classifyFailure(msg string) error {
	lower := strings.ToLower(msg)
	switch {
	case contains(lower, "not registered", "invalid number", "invalid recipient", "not found on"):
		return &Error{Kind: KindInvalidRecipient, Err: fmt.Errorf("gateway rejected recipient: %s", msg)}
	case contains(lower, "not connected", "disconnected", "session closed", "scan qr"):
		return &Error{Kind: KindSessionDisconnected, Err: fmt.Errorf("channel session down: %s", msg)}
	case contains(lower, "unauthorized", "invalid token"):
		return &Error{Kind: KindUnauthorized, Err: fmt.Errorf("gateway auth failed: %s", msg)}
	default:
		return &Error{Kind: KindTransient, Err: fmt.Errorf("gateway failure: %s", msg)}
	}
}

// ListGroups returns the groups visible to the channel session.
func (c *Client) ListGroups(ctx context.Context) ([]Group, error) {
	var out struct {
		Success bool    `json:"success"`
		Data    []Group `json:"data"`
	}
	if err := c.get(ctx, "/groups", &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// ListContacts returns the contacts known to the channel session.
func (c *Client) ListContacts(ctx context.Context) ([]DirectoryContact, error) {
	var out struct {
		Success bool               `json:"success"`
		Data    []DirectoryContact `json:"data"`
	}
	if err := c.get(ctx, "/contacts", &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// GetSessionStatus reports whether the channel session is live.
func (c *Client) GetSessionStatus(ctx context.Context) (*SessionStatus, error) {
	var out struct {
		Success bool          `json:"success"`
		Data    SessionStatus `json:"data"`
	}
	if err := c.get(ctx, "/status", &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (c *Client) get(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Kind: KindTransient, Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err := classifyStatus(resp, raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &Error{Kind: KindTransient, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func contains(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
