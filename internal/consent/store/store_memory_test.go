package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lexlink/internal/consent/models"
	id "lexlink/pkg/domain"
	"lexlink/pkg/platform/sentinel"
	"lexlink/pkg/platform/tx"
)

var at = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func granted(marketing bool) models.Record {
	return models.Record{
		Terms:          true,
		Privacy:        true,
		DataProcessing: true,
		Marketing:      marketing,
		Version:        "1.0",
		UpdatedAt:      at,
	}
}

func TestInMemoryStore_SaveAndFind(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	user := id.UserID(uuid.New())

	_, err := s.FindByUser(ctx, user)
	require.ErrorIs(t, err, sentinel.ErrNotFound)

	require.NoError(t, s.Save(ctx, user, granted(false)))
	require.NoError(t, s.Save(ctx, user, granted(true)))

	got, err := s.FindByUser(ctx, user)
	require.NoError(t, err)
	assert.True(t, got.Marketing)
	assert.True(t, got.IsValid())

	got.Terms = false
	again, err := s.FindByUserForUpdate(ctx, user)
	require.NoError(t, err)
	assert.True(t, again.Terms, "returned records are copies")
}

func TestInMemoryStore_RollbackRestoresConsent(t *testing.T) {
	s := NewInMemoryStore()
	runner := tx.NewShardedRunner()
	ctx := context.Background()
	existing := id.UserID(uuid.New())
	fresh := id.UserID(uuid.New())
	require.NoError(t, s.Save(ctx, existing, granted(true)))

	err := runner.RunInTx(ctx, existing.String(), func(ctx context.Context) error {
		if err := s.Save(ctx, existing, granted(false)); err != nil {
			return err
		}
		if err := s.Save(ctx, fresh, granted(true)); err != nil {
			return err
		}
		return errors.New("ledger unavailable")
	})
	require.Error(t, err)

	got, err := s.FindByUser(ctx, existing)
	require.NoError(t, err)
	assert.True(t, got.Marketing)
	_, err = s.FindByUser(ctx, fresh)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestInMemoryStore_SaveHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, NewInMemoryStore().Save(ctx, id.UserID(uuid.New()), granted(false)))
}
