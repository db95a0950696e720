package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lexlink/internal/attestation/models"
	id "lexlink/pkg/domain"
	"lexlink/pkg/platform/sentinel"
	"lexlink/pkg/platform/tx"
)

var base = time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)

func newRecord(owner id.UserID, at time.Time, verified bool) *models.Record {
	return &models.Record{
		OwnerID:     owner,
		LegalName:   "Jane Doe",
		BarNumber:   "AB1234",
		Verified:    verified,
		Version:     "1.0",
		SubmittedAt: at,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
}

func TestInMemoryStore_UpsertReportsInsertThenUpdate(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	owner := id.UserID(uuid.New())

	inserted, err := s.Upsert(ctx, newRecord(owner, base, true))
	require.NoError(t, err)
	assert.True(t, inserted)

	second := newRecord(owner, base.Add(time.Hour), false)
	second.LegalName = "Jane Q. Doe"
	second.CreatedAt = base.Add(time.Hour)
	inserted, err = s.Upsert(ctx, second)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, base, second.CreatedAt, "created_at survives replacement")

	got, err := s.FindByOwner(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, "Jane Q. Doe", got.LegalName)
	assert.False(t, got.Verified)
	assert.Equal(t, base, got.CreatedAt)

	_, total, err := s.List(ctx, models.ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestInMemoryStore_FindMissing(t *testing.T) {
	_, err := NewInMemoryStore().FindByOwner(context.Background(), id.UserID(uuid.New()))
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestInMemoryStore_ReturnedRecordsAreCopies(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	owner := id.UserID(uuid.New())
	_, err := s.Upsert(ctx, newRecord(owner, base, true))
	require.NoError(t, err)

	got, err := s.FindByOwner(ctx, owner)
	require.NoError(t, err)
	got.LegalName = "mutated"

	again, err := s.FindByOwner(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", again.LegalName)
}

func TestInMemoryStore_RollbackRestoresPrevious(t *testing.T) {
	s := NewInMemoryStore()
	runner := tx.NewShardedRunner()
	ctx := context.Background()
	existing := id.UserID(uuid.New())
	fresh := id.UserID(uuid.New())
	_, err := s.Upsert(ctx, newRecord(existing, base, true))
	require.NoError(t, err)

	err = runner.RunInTx(ctx, existing.String(), func(ctx context.Context) error {
		replacement := newRecord(existing, base.Add(time.Hour), false)
		replacement.LegalName = "Replaced"
		if _, err := s.Upsert(ctx, replacement); err != nil {
			return err
		}
		if _, err := s.Upsert(ctx, newRecord(fresh, base, true)); err != nil {
			return err
		}
		return errors.New("audit failed")
	})
	require.Error(t, err)

	got, err := s.FindByOwner(ctx, existing)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", got.LegalName)
	_, err = s.FindByOwner(ctx, fresh)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestInMemoryStore_ConcurrentUpsertsKeepOneRecord(t *testing.T) {
	s := NewInMemoryStore()
	runner := tx.NewShardedRunner()
	owner := id.UserID(uuid.New())

	var wg sync.WaitGroup
	var mu sync.Mutex
	inserts := 0
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := runner.RunInTx(context.Background(), owner.String(), func(ctx context.Context) error {
				inserted, err := s.Upsert(ctx, newRecord(owner, base.Add(time.Duration(i)*time.Second), true))
				if inserted {
					mu.Lock()
					inserts++
					mu.Unlock()
				}
				return err
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, inserts)
	_, total, err := s.List(context.Background(), models.ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestInMemoryStore_List(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	owners := make([]id.UserID, 5)
	for i := range owners {
		owners[i] = id.UserID(uuid.New())
		_, err := s.Upsert(ctx, newRecord(owners[i], base.Add(time.Duration(i)*time.Minute), i%2 == 0))
		require.NoError(t, err)
	}

	t.Run("newest first with paging", func(t *testing.T) {
		page, total, err := s.List(ctx, models.ListFilter{Limit: 2, Offset: 1})
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		require.Len(t, page, 2)
		assert.Equal(t, owners[3], page[0].OwnerID)
		assert.Equal(t, owners[2], page[1].OwnerID)
	})

	t.Run("verified filter", func(t *testing.T) {
		verified := true
		page, total, err := s.List(ctx, models.ListFilter{Limit: 10, Verified: &verified})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		for _, r := range page {
			assert.True(t, r.Verified)
		}
	})

	t.Run("offset past end", func(t *testing.T) {
		page, total, err := s.List(ctx, models.ListFilter{Limit: 10, Offset: 50})
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		assert.Empty(t, page)
	})
}
