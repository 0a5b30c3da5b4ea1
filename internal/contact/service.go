// Package contact maintains per-contact enhanced context: journey
// stage, behavioral patterns, and the ephemeral conversation state the
// personalization engine reads.
package contact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/leadflow/internal/store"
)

// Service wraps the contact store with the context-update policy.
type Service struct {
	contacts store.ContactStore
	logger   *slog.Logger
}

// NewService creates a contact service.
func NewService(contacts store.ContactStore, logger *slog.Logger) *Service {
	return &Service{contacts: contacts, logger: logger}
}

// GetOrCreate resolves the contact for a canonical phone, creating it
// with defaults on first contact.
func (s *Service) GetOrCreate(ctx context.Context, tenantID, phone string) (*store.Contact, error) {
	return s.contacts.GetOrCreate(ctx, tenantID, phone)
}

// Update applies a partial update; list fields are set-merged.
func (s *Service) Update(ctx context.Context, tenantID, phone string, upd store.ContactUpdate) (*store.Contact, error) {
	return s.contacts.Update(ctx, tenantID, phone, upd)
}

// ObserveUtterance folds one inbound utterance into the contact:
// journey advancement (forward only), behavioral patterns, and the
// interaction counter. newSession additionally bumps the conversation
// counter, once per session. Returns the updated contact.
func (s *Service) ObserveUtterance(ctx context.Context, c *store.Contact, utterance string, responseTimeSec float64, newSession bool) (*store.Contact, error) {
	upd := store.ContactUpdate{
		IncrementInteractions:  true,
		IncrementConversations: newSession,
	}

	if next, moved := AdvanceJourney(c.JourneyStage, utterance); moved {
		upd.JourneyStage = &next
		s.logger.Info("journey advanced",
			"tenant_id", c.TenantID, "phone", c.Phone,
			"from", c.JourneyStage, "to", next)
	}

	b := AnalyzeBehavior(utterance, responseTimeSec)
	if b.EngagementLevel != "" {
		upd.EngagementLevel = &b.EngagementLevel
	}
	if b.InformationPreference != "" {
		upd.InformationPreference = &b.InformationPreference
	}
	if b.ResponseTimePattern != "" {
		upd.ResponseTimePattern = &b.ResponseTimePattern
	}
	if b.DecisionMakingStyle != "" {
		upd.DecisionMakingStyle = &b.DecisionMakingStyle
	}

	updated, err := s.contacts.Update(ctx, c.TenantID, c.Phone, upd)
	if err != nil {
		return nil, fmt.Errorf("observe utterance: %w", err)
	}
	return updated, nil
}

// State returns the conversation state, empty when none exists yet.
func (s *Service) State(ctx context.Context, contactID uuid.UUID) (*store.ConversationState, error) {
	st, err := s.contacts.State(ctx, contactID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &store.ConversationState{ContactID: contactID}, nil
		}
		return nil, err
	}
	return st, nil
}

// StateUpdate mutates the conversation state in one upsert.
type StateUpdate struct {
	Topic            *string
	AddQuestions     []string
	ResolveQuestions []string
	AddActionItems   []string
	MergeContinuity  map[string]string
}

// UpdateState applies a state update and stamps last activity.
func (s *Service) UpdateState(ctx context.Context, contactID uuid.UUID, upd StateUpdate) (*store.ConversationState, error) {
	st, err := s.State(ctx, contactID)
	if err != nil {
		return nil, err
	}

	if upd.Topic != nil {
		st.CurrentTopic = *upd.Topic
	}
	st.UnresolvedQuestions = store.MergeSet(st.UnresolvedQuestions, upd.AddQuestions)
	if len(upd.ResolveQuestions) > 0 {
		resolved := make(map[string]bool, len(upd.ResolveQuestions))
		for _, q := range upd.ResolveQuestions {
			resolved[q] = true
		}
		kept := st.UnresolvedQuestions[:0]
		for _, q := range st.UnresolvedQuestions {
			if !resolved[q] {
				kept = append(kept, q)
			}
		}
		st.UnresolvedQuestions = kept
	}
	st.ActionItems = store.MergeSet(st.ActionItems, upd.AddActionItems)
	if len(upd.MergeContinuity) > 0 {
		if st.ContextContinuity == nil {
			st.ContextContinuity = map[string]string{}
		}
		for k, v := range upd.MergeContinuity {
			st.ContextContinuity[k] = v
		}
	}
	st.LastMessageAt = time.Now()

	if err := s.contacts.SaveState(ctx, st); err != nil {
		return nil, fmt.Errorf("update state: %w", err)
	}
	return st, nil
}
