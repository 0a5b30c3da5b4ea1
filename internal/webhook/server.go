// Package webhook is the inbound HTTP surface: the channel event
// router and the health endpoint.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nextlevelbuilder/leadflow/internal/bus"
	"github.com/nextlevelbuilder/leadflow/internal/pipeline"
	"github.com/nextlevelbuilder/leadflow/internal/store"
)

// Events the router understands.
const (
	EventMessageUpsert = "messages.upsert"
	EventMessageSent   = "message.sent"
	EventReceiptUpdate = "message-receipt.update"
	EventMessageUpdate = "messages.update"
)

// envelope is the webhook body shape.
type envelope struct {
	Event    string          `json:"event"`
	TenantID string          `json:"tenant_id"`
	Data     json.RawMessage `json:"data"`
}

// inboundData is the payload of messages.upsert.
type inboundData struct {
	From             string `json:"from"`
	ChannelMessageID string `json:"id"`
	Text             string `json:"text"`
	MediaURL         string `json:"mediaUrl"`
	Timestamp        int64  `json:"timestamp"`
	FromMe           bool   `json:"fromMe"`
}

// receiptData is the payload of status events.
type receiptData struct {
	ChannelMessageID string `json:"id"`
	Status           string `json:"status"`
}

// Server hosts the webhook routes.
type Server struct {
	pipeline *pipeline.Pipeline
	events   store.EventStore
	ping     store.Pinger
	logger   *slog.Logger
}

// NewServer creates the webhook server. ping may be nil; the health
// endpoint then reports liveness only.
func NewServer(p *pipeline.Pipeline, events store.EventStore, ping store.Pinger, logger *slog.Logger) *Server {
	return &Server{pipeline: p, events: events, ping: ping, logger: logger}
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.handleHealth)
	r.POST("/webhook", s.handleWebhook)
	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.ping != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		if err := s.ping.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": "database unreachable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

func (s *Server) handleWebhook(c *gin.Context) {
	var env envelope
	if err := c.ShouldBindJSON(&env); err != nil || env.Event == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "invalid payload"})
		return
	}

	audit := &store.WebhookEvent{
		TenantID: env.TenantID,
		Kind:     env.Event,
		Payload:  env.Data,
	}
	if err := s.events.Append(c.Request.Context(), audit); err != nil {
		s.logger.Warn("webhook audit failed", "event", env.Event, "error", err)
	}

	switch env.Event {
	case EventMessageUpsert:
		s.handleInbound(c, env, audit)
	case EventMessageSent:
		s.handleReceipt(c, env, audit, store.StatusSent)
	case EventReceiptUpdate:
		s.handleReceipt(c, env, audit, "")
	case EventMessageUpdate:
		// Edits are audited only; the original message stands.
		s.finish(c, audit, "logged")
		c.JSON(http.StatusOK, gin.H{"status": "success", "event_type": env.Event})
	default:
		s.finish(c, audit, "ignored")
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "event_type": env.Event})
	}
}

func (s *Server) handleInbound(c *gin.Context, env envelope, audit *store.WebhookEvent) {
	var data inboundData
	if err := json.Unmarshal(env.Data, &data); err != nil || data.From == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "invalid message data"})
		s.finish(c, audit, "rejected")
		return
	}

	phone, err := store.CanonicalPhone(data.From)
	if err != nil {
		s.logger.Warn("uncanonical sender, ignoring", "from", data.From, "error", err)
		s.finish(c, audit, "ignored")
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "event_type": env.Event})
		return
	}

	ts := time.Now()
	if data.Timestamp > 0 {
		ts = time.Unix(data.Timestamp, 0)
	}
	ev := bus.InboundEvent{
		TenantID:         env.TenantID,
		From:             phone,
		ChannelMessageID: data.ChannelMessageID,
		Text:             data.Text,
		MediaURL:         data.MediaURL,
		Timestamp:        ts,
		FromSelf:         data.FromMe,
	}

	result, err := s.pipeline.Ingest(c.Request.Context(), ev)
	if err != nil {
		if errors.Is(err, pipeline.ErrQueueFull) {
			s.finish(c, audit, "deferred")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "busy"})
			return
		}
		s.logger.Error("webhook ingest failed", "tenant_id", env.TenantID, "error", err)
		s.finish(c, audit, "failed")
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error"})
		return
	}

	s.finish(c, audit, string(result))
	c.JSON(http.StatusOK, gin.H{"status": "success", "event_type": env.Event, "result": result})
}

// handleReceipt advances a message status by channel id; monotonicity
// is enforced by the store, so stale receipts are ignored there.
func (s *Server) handleReceipt(c *gin.Context, env envelope, audit *store.WebhookEvent, fixed store.MessageStatus) {
	var data receiptData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "invalid receipt data"})
		s.finish(c, audit, "rejected")
		return
	}

	status := fixed
	if status == "" {
		switch data.Status {
		case "delivered":
			status = store.StatusDelivered
		case "read":
			status = store.StatusRead
		case "failed":
			status = store.StatusFailed
		default:
			s.finish(c, audit, "ignored")
			c.JSON(http.StatusOK, gin.H{"status": "ignored", "event_type": env.Event})
			return
		}
	}

	// A missing channel id is tolerated: audit only.
	if data.ChannelMessageID != "" {
		if err := s.pipeline.UpdateMessageStatus(c.Request.Context(), env.TenantID, data.ChannelMessageID, status); err != nil {
			s.logger.Warn("receipt update failed",
				"tenant_id", env.TenantID, "channel_message_id", data.ChannelMessageID, "error", err)
		}
	}

	s.finish(c, audit, "processed")
	c.JSON(http.StatusOK, gin.H{"status": "success", "event_type": env.Event})
}

func (s *Server) finish(c *gin.Context, audit *store.WebhookEvent, status string) {
	if err := s.events.SetStatus(c.Request.Context(), audit.ID, status); err != nil {
		s.logger.Warn("webhook audit status failed", "error", err)
	}
}
