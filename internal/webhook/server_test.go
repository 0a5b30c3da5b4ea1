package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/leadflow/internal/bus"
	"github.com/nextlevelbuilder/leadflow/internal/contact"
	"github.com/nextlevelbuilder/leadflow/internal/pipeline"
	"github.com/nextlevelbuilder/leadflow/internal/store"
)

type stubContactStore struct{}

func (stubContactStore) GetOrCreate(ctx context.Context, tenantID, phone string) (*store.Contact, error) {
	return &store.Contact{ID: store.GenID(), TenantID: tenantID, Phone: phone}, nil
}

func (stubContactStore) Get(ctx context.Context, tenantID, phone string) (*store.Contact, error) {
	return nil, store.ErrNotFound
}

func (stubContactStore) GetByID(ctx context.Context, id uuid.UUID) (*store.Contact, error) {
	return nil, store.ErrNotFound
}

func (stubContactStore) Update(ctx context.Context, tenantID, phone string, upd store.ContactUpdate) (*store.Contact, error) {
	return &store.Contact{TenantID: tenantID, Phone: phone}, nil
}

func (stubContactStore) State(ctx context.Context, contactID uuid.UUID) (*store.ConversationState, error) {
	return nil, store.ErrNotFound
}

func (stubContactStore) SaveState(ctx context.Context, st *store.ConversationState) error {
	return nil
}

type stubConversationStore struct{}

func (stubConversationStore) GetOrCreate(ctx context.Context, tenantID string, contactID uuid.UUID) (*store.Conversation, error) {
	return &store.Conversation{ID: store.GenID(), TenantID: tenantID, ContactID: contactID, BotEnabled: true}, nil
}

func (stubConversationStore) Get(ctx context.Context, id uuid.UUID) (*store.Conversation, error) {
	return nil, store.ErrNotFound
}

func (stubConversationStore) SetBotEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	return nil
}

func (stubConversationStore) RequestHandover(ctx context.Context, id uuid.UUID, at time.Time) error {
	return nil
}

func (stubConversationStore) ResolveHandover(ctx context.Context, id uuid.UUID, at time.Time, reason string) error {
	return nil
}

func (stubConversationStore) MarkHandoverUpdate(ctx context.Context, id uuid.UUID, stageTag string, at time.Time) (bool, error) {
	return true, nil
}

func (stubConversationStore) PendingHandovers(ctx context.Context) ([]store.Conversation, error) {
	return nil, nil
}

func (stubConversationStore) TouchLastMessage(ctx context.Context, id uuid.UUID, at time.Time) error {
	return nil
}

type stubMessageStore struct {
	statuses []string
}

func (s *stubMessageStore) Append(ctx context.Context, m *store.Message) error { return nil }

func (s *stubMessageStore) UpdateStatus(ctx context.Context, id uuid.UUID, status store.MessageStatus, reason string) error {
	return nil
}

func (s *stubMessageStore) UpdateStatusByChannelID(ctx context.Context, tenantID, channelMessageID string, status store.MessageStatus, reason string) error {
	s.statuses = append(s.statuses, channelMessageID+":"+string(status))
	return nil
}

func (s *stubMessageStore) SeenChannelID(ctx context.Context, tenantID, channelMessageID string) (bool, error) {
	return false, nil
}

func (s *stubMessageStore) History(ctx context.Context, conversationID uuid.UUID, limit int) ([]store.Message, error) {
	return nil, nil
}

type stubEventStore struct {
	appended []store.WebhookEvent
	statuses []string
}

func (s *stubEventStore) Append(ctx context.Context, e *store.WebhookEvent) error {
	e.ID = store.GenID()
	s.appended = append(s.appended, *e)
	return nil
}

func (s *stubEventStore) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	s.statuses = append(s.statuses, status)
	return nil
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(ctx context.Context) error { return s.err }

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestServer(t *testing.T) (*Server, *stubEventStore, *stubMessageStore) {
	t.Helper()
	msgs := &stubMessageStore{}
	events := &stubEventStore{}
	svc := contact.NewService(stubContactStore{}, discard())
	p := pipeline.New(pipeline.Config{}, svc,
		pipeline.Stores{Conversations: stubConversationStore{}, Messages: msgs},
		nil, nil, nil, nil, nil,
		bus.NewDedupeCache(time.Minute, 1024), nil, discard())
	return NewServer(p, events, nil, discard()), events, msgs
}

func post(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	srv.Router().ServeHTTP(w, req)
	return w
}

func TestHealthOK(t *testing.T) {
	srv, _, _ := newTestServer(t)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthDegradedWhenDatabaseDown(t *testing.T) {
	srv, _, _ := newTestServer(t)
	srv.ping = stubPinger{err: errors.New("connection refused")}

	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "degraded")
}

func TestWebhookRejectsBadPayload(t *testing.T) {
	srv, _, _ := newTestServer(t)

	assert.Equal(t, http.StatusBadRequest, post(t, srv, "not json").Code)
	assert.Equal(t, http.StatusBadRequest, post(t, srv, `{"tenant_id": "t1"}`).Code, "missing event")
}

func TestWebhookInboundMessage(t *testing.T) {
	srv, events, _ := newTestServer(t)

	body := `{"event": "messages.upsert", "tenant_id": "t1", "data": {"from": "+1 555 123 4567", "id": "m1", "text": "hello", "timestamp": 1756000000}}`
	w := post(t, srv, body)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp["status"])
	assert.Equal(t, "queued", resp["result"])

	require.Len(t, events.appended, 1)
	assert.Equal(t, EventMessageUpsert, events.appended[0].Kind)
	assert.Equal(t, []string{"queued"}, events.statuses)
}

func TestWebhookInboundSelfEcho(t *testing.T) {
	srv, _, _ := newTestServer(t)

	body := `{"event": "messages.upsert", "tenant_id": "t1", "data": {"from": "15551234567", "id": "m1", "text": "hi", "fromMe": true}}`
	w := post(t, srv, body)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ignored", resp["result"])
}

func TestWebhookInboundBadSender(t *testing.T) {
	srv, _, _ := newTestServer(t)

	missing := `{"event": "messages.upsert", "tenant_id": "t1", "data": {"text": "hi"}}`
	assert.Equal(t, http.StatusBadRequest, post(t, srv, missing).Code)

	uncanonical := `{"event": "messages.upsert", "tenant_id": "t1", "data": {"from": "not-a-phone", "text": "hi"}}`
	w := post(t, srv, uncanonical)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ignored")
}

func TestWebhookReceiptUpdate(t *testing.T) {
	srv, _, msgs := newTestServer(t)

	body := `{"event": "message-receipt.update", "tenant_id": "t1", "data": {"id": "m1", "status": "read"}}`
	w := post(t, srv, body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"m1:read"}, msgs.statuses)
}

func TestWebhookReceiptUnknownStatusIgnored(t *testing.T) {
	srv, _, msgs := newTestServer(t)

	body := `{"event": "message-receipt.update", "tenant_id": "t1", "data": {"id": "m1", "status": "teleported"}}`
	w := post(t, srv, body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ignored")
	assert.Empty(t, msgs.statuses)
}

func TestWebhookSentEvent(t *testing.T) {
	srv, _, msgs := newTestServer(t)

	body := `{"event": "message.sent", "tenant_id": "t1", "data": {"id": "m1"}}`
	w := post(t, srv, body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"m1:sent"}, msgs.statuses)
}

func TestWebhookUnknownEventIgnored(t *testing.T) {
	srv, events, _ := newTestServer(t)

	w := post(t, srv, `{"event": "presence.update", "tenant_id": "t1", "data": {}}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ignored")
	assert.Equal(t, []string{"ignored"}, events.statuses)
}
