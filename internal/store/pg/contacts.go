package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/leadflow/internal/store"
)

// PGContactStore implements store.ContactStore backed by Postgres.
type PGContactStore struct {
	db *sql.DB
}

func NewPGContactStore(db *sql.DB) *PGContactStore {
	return &PGContactStore{db: db}
}

const contactCols = `id, tenant_id, phone, name, company, email, position,
	lead_status, journey_stage, engagement_level,
	information_preference, response_time_pattern, decision_making_style,
	technical_level, response_urgency, decision_maker,
	budget_range, timeline, industry_focus, company_size, prefer_as_examples,
	topics_discussed, questions_asked, pain_points_mentioned,
	goals_expressed, competitors_mentioned, current_tools,
	conversation_count, total_interactions, last_offer_at,
	first_contact_at, updated_at`

func (s *PGContactStore) GetOrCreate(ctx context.Context, tenantID, phone string) (*store.Contact, error) {
	c, err := s.Get(ctx, tenantID, phone)
	if err == nil {
		return c, nil
	}
	if err != store.ErrNotFound {
		return nil, err
	}

	now := time.Now()
	id := store.GenID()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO contacts (id, tenant_id, phone, lead_status, journey_stage, engagement_level,
			topics_discussed, questions_asked, pain_points_mentioned, goals_expressed,
			competitors_mentioned, current_tools, first_contact_at, updated_at)
		 VALUES ($1, $2, $3, 'new', $4, 'medium', '[]', '[]', '[]', '[]', '[]', '[]', $5, $5)
		 ON CONFLICT (tenant_id, phone) DO NOTHING`,
		id, tenantID, phone, store.StageDiscovery, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create contact: %w", err)
	}
	// Re-read: the insert may have lost a race to a concurrent creator.
	return s.Get(ctx, tenantID, phone)
}

func (s *PGContactStore) Get(ctx context.Context, tenantID, phone string) (*store.Contact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+contactCols+` FROM contacts WHERE tenant_id = $1 AND phone = $2`,
		tenantID, phone)
	c, err := scanContact(row)
	if err != nil {
		if noRows(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get contact: %w", err)
	}
	return c, nil
}

func (s *PGContactStore) GetByID(ctx context.Context, id uuid.UUID) (*store.Contact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+contactCols+` FROM contacts WHERE id = $1`, id)
	c, err := scanContact(row)
	if err != nil {
		if noRows(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get contact by id: %w", err)
	}
	return c, nil
}

// Update applies a partial update inside a transaction so list set-merges
// are read-modify-write safe against concurrent writers of other fields.
func (s *PGContactStore) Update(ctx context.Context, tenantID, phone string, upd store.ContactUpdate) (*store.Contact, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+contactCols+` FROM contacts WHERE tenant_id = $1 AND phone = $2 FOR UPDATE`,
		tenantID, phone)
	c, err := scanContact(row)
	if err != nil {
		if noRows(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("lock contact: %w", err)
	}

	applyContactUpdate(c, upd)
	c.UpdatedAt = time.Now()

	_, err = tx.ExecContext(ctx,
		`UPDATE contacts SET
			name = $1, company = $2, email = $3, position = $4,
			lead_status = $5, journey_stage = $6, engagement_level = $7,
			information_preference = $8, response_time_pattern = $9, decision_making_style = $10,
			technical_level = $11, response_urgency = $12, decision_maker = $13,
			budget_range = $14, timeline = $15, industry_focus = $16, company_size = $17,
			topics_discussed = $18, questions_asked = $19, pain_points_mentioned = $20,
			goals_expressed = $21, competitors_mentioned = $22, current_tools = $23,
			conversation_count = $24, total_interactions = $25, last_offer_at = $26,
			updated_at = $27
		 WHERE tenant_id = $28 AND phone = $29`,
		nilStr(c.Name), nilStr(c.Company), nilStr(c.Email), nilStr(c.Position),
		c.LeadStatus, c.JourneyStage, c.EngagementLevel,
		nilStr(c.InformationPreference), nilStr(c.ResponseTimePattern), nilStr(c.DecisionMakingStyle),
		nilStr(c.TechnicalLevel), nilStr(c.ResponseUrgency), c.DecisionMaker,
		nilStr(c.BudgetRange), nilStr(c.Timeline), nilStr(c.IndustryFocus), nilStr(c.CompanySize),
		jsonList(c.TopicsDiscussed), jsonList(c.QuestionsAsked), jsonList(c.PainPointsMentioned),
		jsonList(c.GoalsExpressed), jsonList(c.CompetitorsMentioned), jsonList(c.CurrentTools),
		c.ConversationCount, c.TotalInteractions, nilTime(c.LastOfferAt),
		c.UpdatedAt, tenantID, phone,
	)
	if err != nil {
		return nil, fmt.Errorf("update contact: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return c, nil
}

func applyContactUpdate(c *store.Contact, upd store.ContactUpdate) {
	setStr := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	setStr(&c.Name, upd.Name)
	setStr(&c.Company, upd.Company)
	setStr(&c.Email, upd.Email)
	setStr(&c.Position, upd.Position)
	setStr(&c.LeadStatus, upd.LeadStatus)
	if upd.JourneyStage != nil {
		c.JourneyStage = *upd.JourneyStage
	}
	setStr(&c.EngagementLevel, upd.EngagementLevel)
	setStr(&c.InformationPreference, upd.InformationPreference)
	setStr(&c.ResponseTimePattern, upd.ResponseTimePattern)
	setStr(&c.DecisionMakingStyle, upd.DecisionMakingStyle)
	setStr(&c.TechnicalLevel, upd.TechnicalLevel)
	setStr(&c.ResponseUrgency, upd.ResponseUrgency)
	if upd.DecisionMaker != nil {
		c.DecisionMaker = *upd.DecisionMaker
	}
	setStr(&c.BudgetRange, upd.BudgetRange)
	setStr(&c.Timeline, upd.Timeline)
	setStr(&c.IndustryFocus, upd.IndustryFocus)
	setStr(&c.CompanySize, upd.CompanySize)

	c.TopicsDiscussed = store.MergeSet(c.TopicsDiscussed, upd.TopicsDiscussed)
	c.QuestionsAsked = store.MergeSet(c.QuestionsAsked, upd.QuestionsAsked)
	c.PainPointsMentioned = store.MergeSet(c.PainPointsMentioned, upd.PainPointsMentioned)
	c.GoalsExpressed = store.MergeSet(c.GoalsExpressed, upd.GoalsExpressed)
	c.CompetitorsMentioned = store.MergeSet(c.CompetitorsMentioned, upd.CompetitorsMentioned)
	c.CurrentTools = store.MergeSet(c.CurrentTools, upd.CurrentTools)

	if upd.IncrementConversations {
		c.ConversationCount++
	}
	if upd.IncrementInteractions {
		c.TotalInteractions++
	}
	if upd.LastOfferAt != nil {
		c.LastOfferAt = upd.LastOfferAt
	}
}

func (s *PGContactStore) State(ctx context.Context, contactID uuid.UUID) (*store.ConversationState, error) {
	var st store.ConversationState
	var topic *string
	var questions, items, continuity []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT contact_id, current_topic, unresolved_questions, action_items,
		        context_continuity, last_message_at
		 FROM conversation_states WHERE contact_id = $1`, contactID,
	).Scan(&st.ContactID, &topic, &questions, &items, &continuity, &st.LastMessageAt)
	if err != nil {
		if noRows(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get conversation state: %w", err)
	}
	st.CurrentTopic = derefStr(topic)
	st.UnresolvedQuestions = scanList(questions)
	st.ActionItems = scanList(items)
	st.ContextContinuity = scanMap(continuity)
	return &st, nil
}

func (s *PGContactStore) SaveState(ctx context.Context, st *store.ConversationState) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_states
			(contact_id, current_topic, unresolved_questions, action_items, context_continuity, last_message_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (contact_id) DO UPDATE SET
			current_topic = EXCLUDED.current_topic,
			unresolved_questions = EXCLUDED.unresolved_questions,
			action_items = EXCLUDED.action_items,
			context_continuity = EXCLUDED.context_continuity,
			last_message_at = EXCLUDED.last_message_at`,
		st.ContactID, nilStr(st.CurrentTopic), jsonList(st.UnresolvedQuestions),
		jsonList(st.ActionItems), jsonMap(st.ContextContinuity), st.LastMessageAt,
	)
	if err != nil {
		return fmt.Errorf("save conversation state: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanContact(row rowScanner) (*store.Contact, error) {
	var c store.Contact
	var name, company, email, position *string
	var infoPref, respPattern, decStyle, techLevel, urgency *string
	var budget, timeline, industry, companySize *string
	var topics, questions, pains, goals, competitors, tools []byte
	var lastOffer sql.NullTime

	err := row.Scan(
		&c.ID, &c.TenantID, &c.Phone, &name, &company, &email, &position,
		&c.LeadStatus, &c.JourneyStage, &c.EngagementLevel,
		&infoPref, &respPattern, &decStyle, &techLevel, &urgency, &c.DecisionMaker,
		&budget, &timeline, &industry, &companySize, &c.PreferAsExamples,
		&topics, &questions, &pains, &goals, &competitors, &tools,
		&c.ConversationCount, &c.TotalInteractions, &lastOffer,
		&c.FirstContactAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Name = derefStr(name)
	c.Company = derefStr(company)
	c.Email = derefStr(email)
	c.Position = derefStr(position)
	c.InformationPreference = derefStr(infoPref)
	c.ResponseTimePattern = derefStr(respPattern)
	c.DecisionMakingStyle = derefStr(decStyle)
	c.TechnicalLevel = derefStr(techLevel)
	c.ResponseUrgency = derefStr(urgency)
	c.BudgetRange = derefStr(budget)
	c.Timeline = derefStr(timeline)
	c.IndustryFocus = derefStr(industry)
	c.CompanySize = derefStr(companySize)
	c.TopicsDiscussed = scanList(topics)
	c.QuestionsAsked = scanList(questions)
	c.PainPointsMentioned = scanList(pains)
	c.GoalsExpressed = scanList(goals)
	c.CompetitorsMentioned = scanList(competitors)
	c.CurrentTools = scanList(tools)
	if lastOffer.Valid {
		t := lastOffer.Time
		c.LastOfferAt = &t
	}
	return &c, nil
}
