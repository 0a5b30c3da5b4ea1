package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/leadflow/internal/store"
)

// PGAnalyticsStore implements store.AnalyticsStore backed by Postgres.
type PGAnalyticsStore struct {
	db *sql.DB
}

func NewPGAnalyticsStore(db *sql.DB) *PGAnalyticsStore {
	return &PGAnalyticsStore{db: db}
}

func (s *PGAnalyticsStore) ActiveSession(ctx context.Context, tenantID string, contactID uuid.UUID, since time.Time) (*store.ConversationSession, error) {
	var sess store.ConversationSession
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, tenant_id, contact_id, started_at, last_activity_at,
		        journey_start, journey_end, user_messages, bot_messages,
		        lead_score, engagement_rate, handover_flag
		 FROM conversation_sessions
		 WHERE tenant_id = $1 AND contact_id = $2 AND last_activity_at >= $3
		 ORDER BY last_activity_at DESC LIMIT 1`,
		tenantID, contactID, since,
	).Scan(&sess.SessionID, &sess.TenantID, &sess.ContactID, &sess.StartedAt,
		&sess.LastActivityAt, &sess.JourneyStart, &sess.JourneyEnd,
		&sess.UserMessages, &sess.BotMessages, &sess.LeadScore,
		&sess.EngagementRate, &sess.HandoverFlag)
	if err != nil {
		if noRows(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("active session: %w", err)
	}
	return &sess, nil
}

func (s *PGAnalyticsStore) UpsertSession(ctx context.Context, sess *store.ConversationSession) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_sessions
			(session_id, tenant_id, contact_id, started_at, last_activity_at,
			 journey_start, journey_end, user_messages, bot_messages,
			 lead_score, engagement_rate, handover_flag)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (session_id) DO UPDATE SET
			last_activity_at = EXCLUDED.last_activity_at,
			journey_end = EXCLUDED.journey_end,
			user_messages = EXCLUDED.user_messages,
			bot_messages = EXCLUDED.bot_messages,
			lead_score = EXCLUDED.lead_score,
			engagement_rate = EXCLUDED.engagement_rate,
			handover_flag = EXCLUDED.handover_flag`,
		sess.SessionID, sess.TenantID, sess.ContactID, sess.StartedAt, sess.LastActivityAt,
		sess.JourneyStart, sess.JourneyEnd, sess.UserMessages, sess.BotMessages,
		sess.LeadScore, sess.EngagementRate, sess.HandoverFlag)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func (s *PGAnalyticsStore) InsertMessageAnalytics(ctx context.Context, m *store.MessageAnalytics) error {
	if m.RecordedAt.IsZero() {
		m.RecordedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO message_analytics
			(message_id, tenant_id, contact_id, role, length, handler_kind,
			 rag_docs, rag_latency_ms, personalization_level, response_strategy,
			 communication_style, intents, business_category, urgency,
			 latency_ms, prompt_tokens, completion_tokens, cost_estimate,
			 sentiment, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		m.MessageID, m.TenantID, m.ContactID, m.Role, m.Length, m.HandlerKind,
		m.RAGDocs, m.RAGLatencyMS, nilStr(m.PersonalizationLevel), nilStr(m.ResponseStrategy),
		nilStr(m.CommunicationStyle), jsonList(m.Intents), nilStr(m.BusinessCategory), nilStr(m.Urgency),
		m.LatencyMS, m.PromptTokens, m.CompletionTokens, m.CostEstimate,
		m.Sentiment, m.RecordedAt)
	if err != nil {
		return fmt.Errorf("insert message analytics: %w", err)
	}
	return nil
}

func (s *PGAnalyticsStore) UpsertLeadScore(ctx context.Context, sc *store.LeadScore) error {
	if sc.CalculatedAt.IsZero() {
		sc.CalculatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lead_scores
			(tenant_id, contact_id, overall, engagement, intent, fit, timing, behavior, calculated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (tenant_id, contact_id) DO UPDATE SET
			overall = EXCLUDED.overall,
			engagement = EXCLUDED.engagement,
			intent = EXCLUDED.intent,
			fit = EXCLUDED.fit,
			timing = EXCLUDED.timing,
			behavior = EXCLUDED.behavior,
			calculated_at = EXCLUDED.calculated_at`,
		sc.TenantID, sc.ContactID, sc.Overall, sc.Engagement, sc.Intent, sc.Fit,
		sc.Timing, nilStr(sc.Behavior), sc.CalculatedAt)
	if err != nil {
		return fmt.Errorf("upsert lead score: %w", err)
	}
	return nil
}

func (s *PGAnalyticsStore) InsertPerformanceSample(ctx context.Context, p *store.PerformanceSample) error {
	if p.RecordedAt.IsZero() {
		p.RecordedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO performance_samples
			(tenant_id, endpoint, op, latency_ms, status, model, tokens, cost, error_reason, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.TenantID, p.Endpoint, p.Op, p.LatencyMS, p.Status,
		nilStr(p.Model), p.Tokens, p.Cost, nilStr(p.ErrorReason), p.RecordedAt)
	if err != nil {
		return fmt.Errorf("insert performance sample: %w", err)
	}
	return nil
}

func (s *PGAnalyticsStore) UpsertDailyRollup(ctx context.Context, r *store.DailyRollup) error {
	journey, _ := json.Marshal(r.JourneyMix)
	handler, _ := json.Marshal(r.HandlerMix)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO daily_rollups
			(tenant_id, day, sessions, user_messages, bot_messages, handovers,
			 qualified_leads, journey_mix, handler_mix, avg_latency_ms,
			 error_count, total_tokens, total_cost_usd, conversion_rate, computed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 ON CONFLICT (tenant_id, day) DO UPDATE SET
			sessions = EXCLUDED.sessions,
			user_messages = EXCLUDED.user_messages,
			bot_messages = EXCLUDED.bot_messages,
			handovers = EXCLUDED.handovers,
			qualified_leads = EXCLUDED.qualified_leads,
			journey_mix = EXCLUDED.journey_mix,
			handler_mix = EXCLUDED.handler_mix,
			avg_latency_ms = EXCLUDED.avg_latency_ms,
			error_count = EXCLUDED.error_count,
			total_tokens = EXCLUDED.total_tokens,
			total_cost_usd = EXCLUDED.total_cost_usd,
			conversion_rate = EXCLUDED.conversion_rate,
			computed_at = EXCLUDED.computed_at`,
		r.TenantID, r.Day, r.Sessions, r.UserMessages, r.BotMessages, r.Handovers,
		r.QualifiedLeads, journey, handler, r.AvgLatencyMS,
		r.ErrorCount, r.TotalTokens, r.TotalCostUSD, r.ConversionRate, r.ComputedAt)
	if err != nil {
		return fmt.Errorf("upsert daily rollup: %w", err)
	}
	return nil
}

// RollupDay aggregates one tenant day from the raw analytics tables.
func (s *PGAnalyticsStore) RollupDay(ctx context.Context, tenantID string, day time.Time) (*store.DailyRollup, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	r := &store.DailyRollup{
		TenantID:   tenantID,
		Day:        dayStart,
		JourneyMix: map[string]int{},
		HandlerMix: map[string]int{},
		ComputedAt: time.Now(),
	}

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(user_messages), 0),
		        COALESCE(SUM(bot_messages), 0),
		        COALESCE(SUM(CASE WHEN handover_flag THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN lead_score >= 80 THEN 1 ELSE 0 END), 0)
		 FROM conversation_sessions
		 WHERE tenant_id = $1 AND started_at >= $2 AND started_at < $3`,
		tenantID, dayStart, dayEnd,
	).Scan(&r.Sessions, &r.UserMessages, &r.BotMessages, &r.Handovers, &r.QualifiedLeads)
	if err != nil {
		return nil, fmt.Errorf("rollup sessions: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(AVG(latency_ms), 0),
		        COALESCE(SUM(prompt_tokens + completion_tokens), 0),
		        COALESCE(SUM(cost_estimate), 0)
		 FROM message_analytics
		 WHERE tenant_id = $1 AND recorded_at >= $2 AND recorded_at < $3`,
		tenantID, dayStart, dayEnd,
	).Scan(&avgScanner{&r.AvgLatencyMS}, &r.TotalTokens, &r.TotalCostUSD)
	if err != nil {
		return nil, fmt.Errorf("rollup messages: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM performance_samples
		 WHERE tenant_id = $1 AND recorded_at >= $2 AND recorded_at < $3
		   AND status IN ('error', 'timeout')`,
		tenantID, dayStart, dayEnd,
	).Scan(&r.ErrorCount)
	if err != nil {
		return nil, fmt.Errorf("rollup errors: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT journey_end, COUNT(*) FROM conversation_sessions
		 WHERE tenant_id = $1 AND started_at >= $2 AND started_at < $3
		 GROUP BY journey_end`, tenantID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("rollup journey mix: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var stage string
		var n int
		if err := rows.Scan(&stage, &n); err != nil {
			return nil, err
		}
		r.JourneyMix[stage] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hrows, err := s.db.QueryContext(ctx,
		`SELECT handler_kind, COUNT(*) FROM message_analytics
		 WHERE tenant_id = $1 AND recorded_at >= $2 AND recorded_at < $3 AND role = 'assistant'
		 GROUP BY handler_kind`, tenantID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("rollup handler mix: %w", err)
	}
	defer hrows.Close()
	for hrows.Next() {
		var kind string
		var n int
		if err := hrows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		r.HandlerMix[kind] = n
	}
	if err := hrows.Err(); err != nil {
		return nil, err
	}

	if r.Sessions > 0 {
		r.ConversionRate = float64(r.QualifiedLeads) / float64(r.Sessions)
	}
	return r, nil
}

func (s *PGAnalyticsStore) Tenants(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT tenant_id FROM conversation_sessions`)
	if err != nil {
		return nil, fmt.Errorf("analytics tenants: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
