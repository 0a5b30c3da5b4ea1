package contact

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/leadflow/internal/store"
)

type recordingContactStore struct {
	updates []store.ContactUpdate
}

func (f *recordingContactStore) GetOrCreate(ctx context.Context, tenantID, phone string) (*store.Contact, error) {
	return &store.Contact{TenantID: tenantID, Phone: phone}, nil
}

func (f *recordingContactStore) Get(ctx context.Context, tenantID, phone string) (*store.Contact, error) {
	return &store.Contact{TenantID: tenantID, Phone: phone}, nil
}

func (f *recordingContactStore) GetByID(ctx context.Context, id uuid.UUID) (*store.Contact, error) {
	return &store.Contact{ID: id}, nil
}

func (f *recordingContactStore) Update(ctx context.Context, tenantID, phone string, upd store.ContactUpdate) (*store.Contact, error) {
	f.updates = append(f.updates, upd)
	return &store.Contact{TenantID: tenantID, Phone: phone}, nil
}

func (f *recordingContactStore) State(ctx context.Context, contactID uuid.UUID) (*store.ConversationState, error) {
	return nil, store.ErrNotFound
}

func (f *recordingContactStore) SaveState(ctx context.Context, st *store.ConversationState) error {
	return nil
}

func TestObserveUtteranceCounters(t *testing.T) {
	fake := &recordingContactStore{}
	s := NewService(fake, slog.New(slog.DiscardHandler))
	c := &store.Contact{TenantID: "t1", Phone: "+15550001", JourneyStage: store.StageDiscovery}

	// Mid-session message: interactions only.
	_, err := s.ObserveUtterance(context.Background(), c, "hello there", -1, false)
	require.NoError(t, err)
	require.Len(t, fake.updates, 1)
	assert.True(t, fake.updates[0].IncrementInteractions)
	assert.False(t, fake.updates[0].IncrementConversations)

	// First message of a new session bumps the conversation counter too.
	_, err = s.ObserveUtterance(context.Background(), c, "hello again", -1, true)
	require.NoError(t, err)
	require.Len(t, fake.updates, 2)
	assert.True(t, fake.updates[1].IncrementInteractions)
	assert.True(t, fake.updates[1].IncrementConversations)
}
