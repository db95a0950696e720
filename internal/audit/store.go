package audit

import (
	"context"
	"sort"
	"sync"

	"lexlink/pkg/platform/tx"
)

// Store is the append-only ledger. Implementations never update or delete.
type Store interface {
	Append(ctx context.Context, event Event) error
	List(ctx context.Context, q Query) ([]Event, error)
}

// InMemoryStore keeps events per owner in insertion order.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[string][]Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[string][]Event)}
}

func (s *InMemoryStore) Append(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := event.OwnerID.String()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[key] = append(s.events[key], event)

	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		list := s.events[key]
		for i := len(list) - 1; i >= 0; i-- {
			if list[i].ID == event.ID {
				s.events[key] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	})
	return nil
}

func (s *InMemoryStore) List(_ context.Context, q Query) ([]Event, error) {
	s.mu.RLock()
	var out []Event
	for _, e := range s.events[q.OwnerID.String()] {
		if q.Matches(e) {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()

	// Newest first; among equal timestamps the later append wins.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}
