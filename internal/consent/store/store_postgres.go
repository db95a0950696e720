package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"lexlink/internal/consent/models"
	id "lexlink/pkg/domain"
	"lexlink/pkg/platform/sentinel"
	"lexlink/pkg/platform/tx"
)

// PostgresStore keeps consent in the consent_* columns of users. A user row
// whose consent_updated_at is NULL has never given consent.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindByUser(ctx context.Context, user id.UserID) (*models.Record, error) {
	return s.findByUser(ctx, user, "")
}

// FindByUserForUpdate locks the user row for the transaction on ctx.
func (s *PostgresStore) FindByUserForUpdate(ctx context.Context, user id.UserID) (*models.Record, error) {
	return s.findByUser(ctx, user, " FOR UPDATE")
}

func (s *PostgresStore) findByUser(ctx context.Context, user id.UserID, suffix string) (*models.Record, error) {
	query := `
		SELECT consent_terms, consent_privacy, consent_data_processing,
			consent_marketing, consent_version, consent_updated_at
		FROM users
		WHERE id = $1` + suffix

	var (
		terms, privacy, processing, marketing sql.NullBool
		version                               sql.NullString
		updatedAt                             sql.NullTime
	)
	err := tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(user)).
		Scan(&terms, &privacy, &processing, &marketing, &version, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find consent by user: %w", err)
	}
	if !updatedAt.Valid {
		return nil, sentinel.ErrNotFound
	}
	return &models.Record{
		Terms:          terms.Bool,
		Privacy:        privacy.Bool,
		DataProcessing: processing.Bool,
		Marketing:      marketing.Bool,
		Version:        version.String,
		UpdatedAt:      updatedAt.Time.UTC(),
	}, nil
}

// Save writes the consent snapshot, creating the user row when the identity
// provider has not synced it yet.
func (s *PostgresStore) Save(ctx context.Context, user id.UserID, record models.Record) error {
	query := `
		INSERT INTO users (
			id, consent_terms, consent_privacy, consent_data_processing,
			consent_marketing, consent_version, consent_updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			consent_terms = EXCLUDED.consent_terms,
			consent_privacy = EXCLUDED.consent_privacy,
			consent_data_processing = EXCLUDED.consent_data_processing,
			consent_marketing = EXCLUDED.consent_marketing,
			consent_version = EXCLUDED.consent_version,
			consent_updated_at = EXCLUDED.consent_updated_at`
	_, err := tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(user),
		record.Terms,
		record.Privacy,
		record.DataProcessing,
		record.Marketing,
		record.Version,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save consent: %w", err)
	}
	return nil
}
