package analytics

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/leadflow/internal/store"
)

type fakeAnalyticsStore struct {
	mu       sync.Mutex
	active   *store.ConversationSession
	sessions []store.ConversationSession
	messages []store.MessageAnalytics
	samples  []store.PerformanceSample
	scores   []store.LeadScore
}

func (f *fakeAnalyticsStore) ActiveSession(ctx context.Context, tenantID string, contactID uuid.UUID, since time.Time) (*store.ConversationSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active == nil {
		return nil, store.ErrNotFound
	}
	copied := *f.active
	return &copied, nil
}

func (f *fakeAnalyticsStore) UpsertSession(ctx context.Context, s *store.ConversationSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, *s)
	return nil
}

func (f *fakeAnalyticsStore) InsertMessageAnalytics(ctx context.Context, m *store.MessageAnalytics) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, *m)
	return nil
}

func (f *fakeAnalyticsStore) UpsertLeadScore(ctx context.Context, s *store.LeadScore) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scores = append(f.scores, *s)
	return nil
}

func (f *fakeAnalyticsStore) InsertPerformanceSample(ctx context.Context, p *store.PerformanceSample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples = append(f.samples, *p)
	return nil
}

func (f *fakeAnalyticsStore) UpsertDailyRollup(ctx context.Context, r *store.DailyRollup) error {
	return nil
}

func (f *fakeAnalyticsStore) RollupDay(ctx context.Context, tenantID string, day time.Time) (*store.DailyRollup, error) {
	return &store.DailyRollup{TenantID: tenantID, Day: day}, nil
}

func (f *fakeAnalyticsStore) Tenants(ctx context.Context) ([]string, error) { return nil, nil }

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestEnqueueDropsOldestOnOverflow(t *testing.T) {
	s := NewSink(&fakeAnalyticsStore{}, 2, time.Hour, discard())

	s.MessageAnalytics(&store.MessageAnalytics{BusinessCategory: "first"})
	s.MessageAnalytics(&store.MessageAnalytics{BusinessCategory: "second"})
	s.MessageAnalytics(&store.MessageAnalytics{BusinessCategory: "third"})

	s.mu.Lock()
	defer s.mu.Unlock()
	require.Len(t, s.queue, 2)
	assert.Equal(t, 1, s.dropped)
	assert.Equal(t, "second", s.queue[0].message.BusinessCategory)
	assert.Equal(t, "third", s.queue[1].message.BusinessCategory)
}

func TestStopFlushesQueuedWrites(t *testing.T) {
	st := &fakeAnalyticsStore{}
	s := NewSink(st, 100, time.Hour, discard())
	s.Start(context.Background())

	s.MessageAnalytics(&store.MessageAnalytics{TenantID: "t1"})
	s.PerformanceSample(&store.PerformanceSample{TenantID: "t1", Endpoint: "respond"})
	s.LeadScore(&store.LeadScore{TenantID: "t1", Overall: 85})
	s.Stop()

	st.mu.Lock()
	defer st.mu.Unlock()
	assert.Len(t, st.messages, 1)
	assert.Len(t, st.samples, 1)
	assert.Len(t, st.scores, 1)
}

func TestTouchSessionOpensNewSession(t *testing.T) {
	st := &fakeAnalyticsStore{}
	s := NewSink(st, 100, time.Hour, discard())

	now := time.Now()
	err := s.touchSession(context.Background(), &sessionTouch{
		tenantID:     "t1",
		contactID:    store.GenID(),
		at:           now,
		role:         store.RoleUser,
		journeyStage: "discovery",
		leadScore:    40,
	})
	require.NoError(t, err)

	require.Len(t, st.sessions, 1)
	sess := st.sessions[0]
	assert.Equal(t, now, sess.StartedAt)
	assert.Equal(t, "discovery", sess.JourneyStart)
	assert.Equal(t, "discovery", sess.JourneyEnd)
	assert.Equal(t, 1, sess.UserMessages)
	assert.Zero(t, sess.BotMessages)
	assert.Equal(t, 40, sess.LeadScore)
	assert.InDelta(t, 1.0, sess.EngagementRate, 1e-9)
	assert.False(t, sess.HandoverFlag)
}

func TestTouchSessionUpdatesActiveSession(t *testing.T) {
	st := &fakeAnalyticsStore{
		active: &store.ConversationSession{
			SessionID:    store.GenID(),
			TenantID:     "t1",
			JourneyStart: "discovery",
			UserMessages: 2,
			BotMessages:  2,
			LeadScore:    50,
		},
	}
	s := NewSink(st, 100, time.Hour, discard())

	err := s.touchSession(context.Background(), &sessionTouch{
		tenantID:     "t1",
		contactID:    store.GenID(),
		at:           time.Now(),
		role:         store.RoleAssistant,
		journeyStage: "interest",
		leadScore:    30,
		handover:     true,
	})
	require.NoError(t, err)

	require.Len(t, st.sessions, 1)
	sess := st.sessions[0]
	assert.Equal(t, "discovery", sess.JourneyStart, "start stage is fixed at open")
	assert.Equal(t, "interest", sess.JourneyEnd)
	assert.Equal(t, 3, sess.BotMessages)
	assert.Equal(t, 50, sess.LeadScore, "lead score only moves up")
	assert.True(t, sess.HandoverFlag)
	assert.InDelta(t, 0.4, sess.EngagementRate, 1e-9)
}

func TestTouchSessionRaisesLeadScore(t *testing.T) {
	st := &fakeAnalyticsStore{
		active: &store.ConversationSession{SessionID: store.GenID(), LeadScore: 50},
	}
	s := NewSink(st, 100, time.Hour, discard())

	err := s.touchSession(context.Background(), &sessionTouch{
		tenantID:  "t1",
		contactID: store.GenID(),
		at:        time.Now(),
		role:      store.RoleUser,
		leadScore: 80,
	})
	require.NoError(t, err)
	assert.Equal(t, 80, st.sessions[0].LeadScore)
}

func TestSessionActivityFlowsThroughDrain(t *testing.T) {
	st := &fakeAnalyticsStore{}
	s := NewSink(st, 100, time.Hour, discard())
	s.Start(context.Background())

	s.SessionActivity("t1", store.GenID(), store.RoleUser, "discovery", 0, false)
	s.Stop()

	st.mu.Lock()
	defer st.mu.Unlock()
	require.Len(t, st.sessions, 1)
	assert.Equal(t, 1, st.sessions[0].UserMessages)
}
