// Package analytics is the fire-and-forget sink for session, message,
// lead-score, and performance records, plus the daily rollup job.
package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/leadflow/internal/store"
)

// event is one queued write.
type event struct {
	message *store.MessageAnalytics
	sample  *store.PerformanceSample
	score   *store.LeadScore
	session *sessionTouch
}

// sessionTouch folds one message into the contact's active session.
type sessionTouch struct {
	tenantID     string
	contactID    uuid.UUID
	at           time.Time
	role         store.MessageRole
	journeyStage string
	leadScore    int
	handover     bool
}

// Sink buffers analytics writes behind a bounded queue. The hot path
// never blocks: on overflow the oldest record is dropped and counted.
type Sink struct {
	store         store.AnalyticsStore
	logger        *slog.Logger
	sessionWindow time.Duration

	mu      sync.Mutex
	queue   []event
	maxSize int
	dropped int
	notify  chan struct{}

	stopOnce sync.Once
	stopped  chan struct{}
	done     chan struct{}
}

// NewSink creates the sink. queueSize bounds the in-memory buffer;
// sessionWindow is the inactivity gap that opens a new session.
func NewSink(st store.AnalyticsStore, queueSize int, sessionWindow time.Duration, logger *slog.Logger) *Sink {
	if queueSize <= 0 {
		queueSize = 4096
	}
	if sessionWindow <= 0 {
		sessionWindow = time.Hour
	}
	return &Sink{
		store:         st,
		logger:        logger,
		sessionWindow: sessionWindow,
		maxSize:       queueSize,
		notify:        make(chan struct{}, 1),
		stopped:       make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Start launches the drain worker.
func (s *Sink) Start(ctx context.Context) {
	go s.drain(ctx)
}

// Stop flushes and stops the drain worker.
func (s *Sink) Stop() {
	s.stopOnce.Do(func() { close(s.stopped) })
	<-s.done
}

func (s *Sink) enqueue(e event) {
	s.mu.Lock()
	if len(s.queue) >= s.maxSize {
		// Drop oldest; the hot path must not block on analytics.
		s.queue = s.queue[1:]
		s.dropped++
		if s.dropped%100 == 1 {
			s.logger.Warn("analytics queue overflow", "dropped_total", s.dropped)
		}
	}
	s.queue = append(s.queue, e)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// MessageAnalytics queues one per-message record.
func (s *Sink) MessageAnalytics(m *store.MessageAnalytics) {
	s.enqueue(event{message: m})
}

// PerformanceSample queues one timing sample.
func (s *Sink) PerformanceSample(p *store.PerformanceSample) {
	s.enqueue(event{sample: p})
}

// LeadScore queues one lead-score upsert.
func (s *Sink) LeadScore(sc *store.LeadScore) {
	s.enqueue(event{score: sc})
}

// SessionActivity folds one message into the contact's session window.
func (s *Sink) SessionActivity(tenantID string, contactID uuid.UUID, role store.MessageRole, journeyStage string, leadScore int, handover bool) {
	s.enqueue(event{session: &sessionTouch{
		tenantID:     tenantID,
		contactID:    contactID,
		at:           time.Now(),
		role:         role,
		journeyStage: journeyStage,
		leadScore:    leadScore,
		handover:     handover,
	}})
}

func (s *Sink) drain(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			s.flush(context.Background())
			return
		case <-s.stopped:
			s.flush(context.Background())
			return
		case <-s.notify:
			s.flush(ctx)
		}
	}
}

func (s *Sink) flush(ctx context.Context) {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		batch := s.queue
		s.queue = nil
		s.mu.Unlock()

		for _, e := range batch {
			s.write(ctx, e)
		}
	}
}

func (s *Sink) write(ctx context.Context, e event) {
	var err error
	switch {
	case e.message != nil:
		err = s.store.InsertMessageAnalytics(ctx, e.message)
	case e.sample != nil:
		err = s.store.InsertPerformanceSample(ctx, e.sample)
	case e.score != nil:
		err = s.store.UpsertLeadScore(ctx, e.score)
	case e.session != nil:
		err = s.touchSession(ctx, e.session)
	}
	if err != nil {
		s.logger.Warn("analytics write failed", "error", err)
	}
}

// touchSession updates the active session or opens a new one when the
// inactivity window has passed.
func (s *Sink) touchSession(ctx context.Context, t *sessionTouch) error {
	since := t.at.Add(-s.sessionWindow)
	sess, err := s.store.ActiveSession(ctx, t.tenantID, t.contactID, since)
	if err != nil {
		if err != store.ErrNotFound {
			return err
		}
		sess = &store.ConversationSession{
			SessionID:    store.GenID(),
			TenantID:     t.tenantID,
			ContactID:    t.contactID,
			StartedAt:    t.at,
			JourneyStart: t.journeyStage,
		}
	}

	sess.LastActivityAt = t.at
	sess.JourneyEnd = t.journeyStage
	switch t.role {
	case store.RoleUser:
		sess.UserMessages++
	case store.RoleAssistant:
		sess.BotMessages++
	}
	if t.leadScore > sess.LeadScore {
		sess.LeadScore = t.leadScore
	}
	if t.handover {
		sess.HandoverFlag = true
	}
	if total := sess.UserMessages + sess.BotMessages; total > 0 {
		sess.EngagementRate = float64(sess.UserMessages) / float64(total)
	}
	return s.store.UpsertSession(ctx, sess)
}
