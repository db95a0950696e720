package store

import (
	"context"
	"sync"

	"lexlink/internal/consent/models"
	id "lexlink/pkg/domain"
	"lexlink/pkg/platform/sentinel"
	"lexlink/pkg/platform/tx"
)

// InMemoryStore keeps the consent snapshot of each user. Saves register an
// undo callback with the surrounding unit of work.
type InMemoryStore struct {
	mu       sync.RWMutex
	consents map[id.UserID]models.Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{consents: make(map[id.UserID]models.Record)}
}

func (s *InMemoryStore) FindByUser(_ context.Context, user id.UserID) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.consents[user]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &record, nil
}

// FindByUserForUpdate is FindByUser; the runner already serializes the user.
func (s *InMemoryStore) FindByUserForUpdate(ctx context.Context, user id.UserID) (*models.Record, error) {
	return s.FindByUser(ctx, user)
}

func (s *InMemoryStore) Save(ctx context.Context, user id.UserID, record models.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, existed := s.consents[user]
	s.consents[user] = record

	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if existed {
			s.consents[user] = previous
		} else {
			delete(s.consents, user)
		}
	})
	return nil
}
