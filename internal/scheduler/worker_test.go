package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/leadflow/internal/channel"
	"github.com/nextlevelbuilder/leadflow/internal/store"
)

type fakeScheduledStore struct {
	results     []store.MessageResult
	completed   bool
	rescheduled *time.Time
	sent        int
	failed      int
}

func (f *fakeScheduledStore) Create(ctx context.Context, m *store.ScheduledMessage) error { return nil }

func (f *fakeScheduledStore) Get(ctx context.Context, id uuid.UUID) (*store.ScheduledMessage, error) {
	return nil, store.ErrNotFound
}

func (f *fakeScheduledStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]store.ScheduledMessage, error) {
	return nil, nil
}

func (f *fakeScheduledStore) Reschedule(ctx context.Context, id uuid.UUID, next time.Time, sentAt time.Time, sent, failed int) error {
	f.rescheduled = &next
	f.sent, f.failed = sent, failed
	return nil
}

func (f *fakeScheduledStore) Complete(ctx context.Context, id uuid.UUID, sentAt time.Time, sent, failed int) error {
	f.completed = true
	f.sent, f.failed = sent, failed
	return nil
}

func (f *fakeScheduledStore) Fail(ctx context.Context, id uuid.UUID, reason string) error {
	return nil
}

func (f *fakeScheduledStore) Cancel(ctx context.Context, id uuid.UUID) error { return nil }

func (f *fakeScheduledStore) AddResult(ctx context.Context, r *store.MessageResult) error {
	f.results = append(f.results, *r)
	return nil
}

type fakeConversations struct {
	marked   []string
	claimOK  bool
	resolved []string
}

func (f *fakeConversations) GetOrCreate(ctx context.Context, tenantID string, contactID uuid.UUID) (*store.Conversation, error) {
	return nil, store.ErrNotFound
}

func (f *fakeConversations) Get(ctx context.Context, id uuid.UUID) (*store.Conversation, error) {
	return nil, store.ErrNotFound
}

func (f *fakeConversations) SetBotEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	return nil
}

func (f *fakeConversations) RequestHandover(ctx context.Context, id uuid.UUID, at time.Time) error {
	return nil
}

func (f *fakeConversations) ResolveHandover(ctx context.Context, id uuid.UUID, at time.Time, reason string) error {
	f.resolved = append(f.resolved, reason)
	return nil
}

func (f *fakeConversations) MarkHandoverUpdate(ctx context.Context, id uuid.UUID, stageTag string, at time.Time) (bool, error) {
	f.marked = append(f.marked, stageTag)
	return f.claimOK, nil
}

func (f *fakeConversations) PendingHandovers(ctx context.Context) ([]store.Conversation, error) {
	return nil, nil
}

func (f *fakeConversations) TouchLastMessage(ctx context.Context, id uuid.UUID, at time.Time) error {
	return nil
}

type fakeContacts struct{}

func (fakeContacts) GetOrCreate(ctx context.Context, tenantID, phone string) (*store.Contact, error) {
	return nil, store.ErrNotFound
}

func (fakeContacts) Get(ctx context.Context, tenantID, phone string) (*store.Contact, error) {
	return nil, store.ErrNotFound
}

func (fakeContacts) GetByID(ctx context.Context, id uuid.UUID) (*store.Contact, error) {
	return &store.Contact{ID: id, TenantID: "t1", Phone: "15551234567"}, nil
}

func (fakeContacts) Update(ctx context.Context, tenantID, phone string, upd store.ContactUpdate) (*store.Contact, error) {
	return nil, store.ErrNotFound
}

func (fakeContacts) State(ctx context.Context, contactID uuid.UUID) (*store.ConversationState, error) {
	return nil, store.ErrNotFound
}

func (fakeContacts) SaveState(ctx context.Context, st *store.ConversationState) error { return nil }

type fakeMessages struct {
	appended []store.Message
}

func (f *fakeMessages) Append(ctx context.Context, m *store.Message) error {
	f.appended = append(f.appended, *m)
	return nil
}

func (f *fakeMessages) UpdateStatus(ctx context.Context, id uuid.UUID, status store.MessageStatus, reason string) error {
	return nil
}

func (f *fakeMessages) UpdateStatusByChannelID(ctx context.Context, tenantID, channelMessageID string, status store.MessageStatus, reason string) error {
	return nil
}

func (f *fakeMessages) SeenChannelID(ctx context.Context, tenantID, channelMessageID string) (bool, error) {
	return false, nil
}

func (f *fakeMessages) History(ctx context.Context, conversationID uuid.UUID, limit int) ([]store.Message, error) {
	return nil, nil
}

type fakeLocker struct {
	allow bool
	held  int
}

func (f *fakeLocker) TryLock(ctx context.Context, key int64) (bool, error) {
	if f.allow {
		f.held++
	}
	return f.allow, nil
}

func (f *fakeLocker) Unlock(ctx context.Context, key int64) error {
	f.held--
	return nil
}

type fakeChannelSender struct {
	texts  []string
	media  []string
	failed bool
}

func (f *fakeChannelSender) SendText(ctx context.Context, tenantID, to, body string) (*channel.SendResult, error) {
	if f.failed {
		return nil, errors.New("gateway down")
	}
	f.texts = append(f.texts, body)
	return &channel.SendResult{}, nil
}

func (f *fakeChannelSender) SendMedia(ctx context.Context, tenantID, to string, kind channel.MediaKind, url, caption string) (*channel.SendResult, error) {
	f.media = append(f.media, string(kind)+":"+url)
	return &channel.SendResult{}, nil
}

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestWorker(sched *fakeScheduledStore, convs *fakeConversations, msgs *fakeMessages, sender *fakeChannelSender) *Worker {
	return NewWorker(Config{RescueTimeout: time.Hour}, sched, convs, fakeContacts{}, msgs, &fakeLocker{allow: true}, sender, discard())
}

func TestSendScheduledOneShot(t *testing.T) {
	sched := &fakeScheduledStore{}
	sender := &fakeChannelSender{}
	w := newTestWorker(sched, &fakeConversations{}, &fakeMessages{}, sender)

	job := &store.ScheduledMessage{
		ID:             store.GenID(),
		TenantID:       "t1",
		MessageContent: "reminder",
		TargetGroups:   []string{"15551234567", "not-a-phone"},
	}
	require.NoError(t, w.sendScheduled(context.Background(), job))

	assert.True(t, sched.completed)
	assert.Nil(t, sched.rescheduled)
	assert.Equal(t, 1, sched.sent)
	assert.Equal(t, 1, sched.failed)

	require.Len(t, sched.results, 2)
	assert.Equal(t, store.ResultSent, sched.results[0].Outcome)
	assert.Equal(t, store.ResultSkipped, sched.results[1].Outcome)
	assert.Equal(t, []string{"reminder"}, sender.texts)
}

func TestSendScheduledRecurringRearms(t *testing.T) {
	sched := &fakeScheduledStore{}
	w := newTestWorker(sched, &fakeConversations{}, &fakeMessages{}, &fakeChannelSender{})

	job := &store.ScheduledMessage{
		ID:               store.GenID(),
		TenantID:         "t1",
		MessageContent:   "weekly digest",
		TargetGroups:     []string{"15551234567"},
		RecurringPattern: "weekly",
	}
	require.NoError(t, w.sendScheduled(context.Background(), job))

	assert.False(t, sched.completed)
	require.NotNil(t, sched.rescheduled)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 7), *sched.rescheduled, time.Minute)
}

func TestSendScheduledMedia(t *testing.T) {
	sender := &fakeChannelSender{}
	w := newTestWorker(&fakeScheduledStore{}, &fakeConversations{}, &fakeMessages{}, sender)

	job := &store.ScheduledMessage{
		ID:             store.GenID(),
		TenantID:       "t1",
		MessageContent: "see attached",
		MediaURL:       "https://cdn.example.com/brochure.png",
		TargetGroups:   []string{"15551234567"},
	}
	require.NoError(t, w.sendScheduled(context.Background(), job))
	assert.Equal(t, []string{"image:https://cdn.example.com/brochure.png"}, sender.media)
	assert.Empty(t, sender.texts)
}

func TestRescueOneSendsHighestDueStage(t *testing.T) {
	convs := &fakeConversations{claimOK: true}
	sender := &fakeChannelSender{}
	msgs := &fakeMessages{}
	w := newTestWorker(&fakeScheduledStore{}, convs, msgs, sender)

	conv := &store.Conversation{ID: store.GenID(), TenantID: "t1", ContactID: store.GenID()}
	require.NoError(t, w.rescueOne(context.Background(), conv, 25*time.Minute))

	assert.Equal(t, []string{"20m"}, convs.marked)
	require.Len(t, sender.texts, 1)
	assert.Equal(t, stageMessages["20m"], sender.texts[0])
	require.Len(t, msgs.appended, 1)
	assert.Equal(t, store.RoleAssistant, msgs.appended[0].Role)
}

func TestRescueOneSkipsAlreadySentStage(t *testing.T) {
	convs := &fakeConversations{claimOK: false}
	sender := &fakeChannelSender{}
	w := newTestWorker(&fakeScheduledStore{}, convs, &fakeMessages{}, sender)

	conv := &store.Conversation{ID: store.GenID(), TenantID: "t1", ContactID: store.GenID()}
	require.NoError(t, w.rescueOne(context.Background(), conv, 25*time.Minute))

	assert.Equal(t, []string{"20m"}, convs.marked)
	assert.Empty(t, sender.texts, "another replica already sent this stage")
}

func TestRescueOneBeforeFirstStage(t *testing.T) {
	convs := &fakeConversations{claimOK: true}
	sender := &fakeChannelSender{}
	w := newTestWorker(&fakeScheduledStore{}, convs, &fakeMessages{}, sender)

	conv := &store.Conversation{ID: store.GenID(), TenantID: "t1", ContactID: store.GenID()}
	require.NoError(t, w.rescueOne(context.Background(), conv, 5*time.Minute))

	assert.Empty(t, convs.marked)
	assert.Empty(t, sender.texts)
}

func TestRescueOneTimeout(t *testing.T) {
	convs := &fakeConversations{claimOK: true}
	sender := &fakeChannelSender{}
	w := newTestWorker(&fakeScheduledStore{}, convs, &fakeMessages{}, sender)

	conv := &store.Conversation{ID: store.GenID(), TenantID: "t1", ContactID: store.GenID()}
	require.NoError(t, w.rescueOne(context.Background(), conv, 2*time.Hour))

	assert.Equal(t, []string{rescueResolution}, convs.resolved)
	require.Len(t, sender.texts, 1)
	assert.Equal(t, rescueApology, sender.texts[0])
	assert.Empty(t, convs.marked, "timeout supersedes progressive updates")
}

func TestWithLockDenied(t *testing.T) {
	locker := &fakeLocker{allow: false}
	w := NewWorker(Config{}, &fakeScheduledStore{}, &fakeConversations{}, fakeContacts{}, &fakeMessages{}, locker, &fakeChannelSender{}, discard())

	ran := false
	w.withLock(context.Background(), lockScheduled, func(ctx context.Context) { ran = true })
	assert.False(t, ran)
}
