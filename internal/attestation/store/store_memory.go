package store

import (
	"context"
	"sort"
	"sync"

	"lexlink/internal/attestation/models"
	id "lexlink/pkg/domain"
	"lexlink/pkg/platform/sentinel"
	"lexlink/pkg/platform/tx"
)

// InMemoryStore keeps one record per owner. Writes register undo callbacks so
// a failed unit of work restores the previous record.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[id.UserID]*models.Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[id.UserID]*models.Record)}
}

func (s *InMemoryStore) FindByOwner(_ context.Context, owner id.UserID) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[owner]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *record
	return &clone, nil
}

// FindByOwnerForUpdate is FindByOwner; the transaction runner already holds
// the owner's lock.
func (s *InMemoryStore) FindByOwnerForUpdate(ctx context.Context, owner id.UserID) (*models.Record, error) {
	return s.FindByOwner(ctx, owner)
}

func (s *InMemoryStore) Upsert(ctx context.Context, record *models.Record) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, exists := s.records[record.OwnerID]
	clone := *record
	if exists {
		clone.CreatedAt = previous.CreatedAt
		record.CreatedAt = previous.CreatedAt
	}
	s.records[record.OwnerID] = &clone

	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if exists {
			s.records[record.OwnerID] = previous
		} else {
			delete(s.records, record.OwnerID)
		}
	})
	return !exists, nil
}

func (s *InMemoryStore) List(_ context.Context, filter models.ListFilter) ([]*models.Record, int, error) {
	s.mu.RLock()
	matched := make([]*models.Record, 0, len(s.records))
	for _, r := range s.records {
		if filter.Verified != nil && r.Verified != *filter.Verified {
			continue
		}
		clone := *r
		matched = append(matched, &clone)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].SubmittedAt.Equal(matched[j].SubmittedAt) {
			return matched[i].OwnerID.String() < matched[j].OwnerID.String()
		}
		return matched[i].SubmittedAt.After(matched[j].SubmittedAt)
	})

	total := len(matched)
	if filter.Offset >= total {
		return []*models.Record{}, total, nil
	}
	end := total
	if filter.Limit > 0 && filter.Offset+filter.Limit < total {
		end = filter.Offset + filter.Limit
	}
	return matched[filter.Offset:end], total, nil
}
