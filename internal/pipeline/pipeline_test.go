package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/leadflow/internal/bus"
	"github.com/nextlevelbuilder/leadflow/internal/contact"
	"github.com/nextlevelbuilder/leadflow/internal/store"
)

type fakeContactStore struct {
	err   error
	calls int
}

func (f *fakeContactStore) GetOrCreate(ctx context.Context, tenantID, phone string) (*store.Contact, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &store.Contact{ID: store.GenID(), TenantID: tenantID, Phone: phone}, nil
}

func (f *fakeContactStore) Get(ctx context.Context, tenantID, phone string) (*store.Contact, error) {
	return nil, store.ErrNotFound
}

func (f *fakeContactStore) GetByID(ctx context.Context, id uuid.UUID) (*store.Contact, error) {
	return nil, store.ErrNotFound
}

func (f *fakeContactStore) Update(ctx context.Context, tenantID, phone string, upd store.ContactUpdate) (*store.Contact, error) {
	return &store.Contact{TenantID: tenantID, Phone: phone}, nil
}

func (f *fakeContactStore) State(ctx context.Context, contactID uuid.UUID) (*store.ConversationState, error) {
	return nil, store.ErrNotFound
}

func (f *fakeContactStore) SaveState(ctx context.Context, st *store.ConversationState) error {
	return nil
}

type fakeConversationStore struct {
	touched int
}

func (f *fakeConversationStore) GetOrCreate(ctx context.Context, tenantID string, contactID uuid.UUID) (*store.Conversation, error) {
	return &store.Conversation{ID: store.GenID(), TenantID: tenantID, ContactID: contactID, BotEnabled: true}, nil
}

func (f *fakeConversationStore) Get(ctx context.Context, id uuid.UUID) (*store.Conversation, error) {
	return nil, store.ErrNotFound
}

func (f *fakeConversationStore) SetBotEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	return nil
}

func (f *fakeConversationStore) RequestHandover(ctx context.Context, id uuid.UUID, at time.Time) error {
	return nil
}

func (f *fakeConversationStore) ResolveHandover(ctx context.Context, id uuid.UUID, at time.Time, reason string) error {
	return nil
}

func (f *fakeConversationStore) MarkHandoverUpdate(ctx context.Context, id uuid.UUID, stageTag string, at time.Time) (bool, error) {
	return true, nil
}

func (f *fakeConversationStore) PendingHandovers(ctx context.Context) ([]store.Conversation, error) {
	return nil, nil
}

func (f *fakeConversationStore) TouchLastMessage(ctx context.Context, id uuid.UUID, at time.Time) error {
	f.touched++
	return nil
}

type fakeMessageStore struct {
	mu        sync.Mutex
	appended  []store.Message
	appendErr error
	seen      bool
	seenErr   error
	statuses  []string
}

func (f *fakeMessageStore) Append(ctx context.Context, m *store.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended = append(f.appended, *m)
	return nil
}

func (f *fakeMessageStore) UpdateStatus(ctx context.Context, id uuid.UUID, status store.MessageStatus, reason string) error {
	return nil
}

func (f *fakeMessageStore) UpdateStatusByChannelID(ctx context.Context, tenantID, channelMessageID string, status store.MessageStatus, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, channelMessageID+":"+string(status))
	return nil
}

func (f *fakeMessageStore) SeenChannelID(ctx context.Context, tenantID, channelMessageID string) (bool, error) {
	return f.seen, f.seenErr
}

func (f *fakeMessageStore) History(ctx context.Context, conversationID uuid.UUID, limit int) ([]store.Message, error) {
	return nil, nil
}

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestPipeline(contacts *fakeContactStore, convs *fakeConversationStore, msgs *fakeMessageStore) *Pipeline {
	svc := contact.NewService(contacts, discard())
	return New(Config{}, svc, Stores{Conversations: convs, Messages: msgs},
		nil, nil, nil, nil, nil,
		bus.NewDedupeCache(time.Minute, 1024), nil, discard())
}

func inboundEvent(id string) bus.InboundEvent {
	return bus.InboundEvent{
		TenantID:         "t1",
		From:             "15551234567",
		ChannelMessageID: id,
		Text:             "hello",
		Timestamp:        time.Now(),
	}
}

func TestIngestIgnoresSelfAndEmpty(t *testing.T) {
	p := newTestPipeline(&fakeContactStore{}, &fakeConversationStore{}, &fakeMessageStore{})

	ev := inboundEvent("m1")
	ev.FromSelf = true
	res, err := p.Ingest(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, IngestIgnored, res)

	empty := inboundEvent("m2")
	empty.Text = ""
	res, err = p.Ingest(context.Background(), empty)
	require.NoError(t, err)
	assert.Equal(t, IngestIgnored, res)
}

func TestIngestQueuesAndPersists(t *testing.T) {
	convs := &fakeConversationStore{}
	msgs := &fakeMessageStore{}
	p := newTestPipeline(&fakeContactStore{}, convs, msgs)

	res, err := p.Ingest(context.Background(), inboundEvent("m1"))
	require.NoError(t, err)
	assert.Equal(t, IngestQueued, res)

	require.Len(t, msgs.appended, 1)
	assert.Equal(t, store.RoleUser, msgs.appended[0].Role)
	assert.Equal(t, "m1", msgs.appended[0].ChannelMessageID)
	assert.Equal(t, store.StatusDelivered, msgs.appended[0].Status)
	assert.Equal(t, 1, convs.touched)
}

func TestIngestDeduplicatesRedelivery(t *testing.T) {
	msgs := &fakeMessageStore{}
	p := newTestPipeline(&fakeContactStore{}, &fakeConversationStore{}, msgs)

	res, err := p.Ingest(context.Background(), inboundEvent("m1"))
	require.NoError(t, err)
	assert.Equal(t, IngestQueued, res)

	res, err = p.Ingest(context.Background(), inboundEvent("m1"))
	require.NoError(t, err)
	assert.Equal(t, IngestDuplicate, res)
	assert.Len(t, msgs.appended, 1, "redelivery never reaches the store")
}

func TestIngestDurableDuplicateCheck(t *testing.T) {
	// Fresh cache, but the message id is already persisted (replica restart).
	msgs := &fakeMessageStore{seen: true}
	p := newTestPipeline(&fakeContactStore{}, &fakeConversationStore{}, msgs)

	res, err := p.Ingest(context.Background(), inboundEvent("m1"))
	require.NoError(t, err)
	assert.Equal(t, IngestDuplicate, res)
	assert.Empty(t, msgs.appended)
}

func TestIngestAppendRaceIsDuplicate(t *testing.T) {
	msgs := &fakeMessageStore{appendErr: store.ErrDuplicate}
	p := newTestPipeline(&fakeContactStore{}, &fakeConversationStore{}, msgs)

	res, err := p.Ingest(context.Background(), inboundEvent("m1"))
	require.NoError(t, err)
	assert.Equal(t, IngestDuplicate, res)
}

func TestIngestStoreErrorAllowsRetry(t *testing.T) {
	contacts := &fakeContactStore{err: errors.New("pg down")}
	p := newTestPipeline(contacts, &fakeConversationStore{}, &fakeMessageStore{})

	_, err := p.Ingest(context.Background(), inboundEvent("m1"))
	require.Error(t, err)

	// The dedupe entry was rolled back, so the upstream retry goes through.
	contacts.err = nil
	res, err := p.Ingest(context.Background(), inboundEvent("m1"))
	require.NoError(t, err)
	assert.Equal(t, IngestQueued, res)
}

func TestIngestQueueFull(t *testing.T) {
	p := newTestPipeline(&fakeContactStore{}, &fakeConversationStore{}, &fakeMessageStore{})

	// Workers are not started, so the queue only drains on overflow.
	for i := 0; i < 1024; i++ {
		res, err := p.Ingest(context.Background(), inboundEvent(fmt.Sprintf("m%d", i)))
		require.NoError(t, err)
		require.Equal(t, IngestQueued, res)
	}

	_, err := p.Ingest(context.Background(), inboundEvent("overflow"))
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestUpdateMessageStatus(t *testing.T) {
	msgs := &fakeMessageStore{}
	p := newTestPipeline(&fakeContactStore{}, &fakeConversationStore{}, msgs)

	require.NoError(t, p.UpdateMessageStatus(context.Background(), "t1", "m1", store.StatusRead))
	assert.Equal(t, []string{"m1:read"}, msgs.statuses)
}

func TestIsNewSession(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		last time.Time
		at   time.Time
		want bool
	}{
		{"first message ever", time.Time{}, base, true},
		{"reply two minutes later", base, base.Add(2 * time.Minute), false},
		{"exactly at the gap", base, base.Add(time.Hour), false},
		{"back after the gap", base, base.Add(time.Hour + time.Second), true},
		{"back the next day", base, base.Add(26 * time.Hour), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isNewSession(tt.last, tt.at))
		})
	}
}
