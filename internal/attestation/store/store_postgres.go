package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"lexlink/internal/attestation/models"
	id "lexlink/pkg/domain"
	"lexlink/pkg/platform/sentinel"
	"lexlink/pkg/platform/tx"
)

// PostgresStore persists attestations. UNIQUE(owner_id) guarantees a single
// record per owner even when two submissions race.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const selectColumns = `
	owner_id, legal_name, bar_number,
	is_licensed, in_good_standing, no_disciplinary_history,
	profile_accurate, will_update_changes, understands_liability,
	externally_verified, version, submitted_at, ip_address, user_agent,
	created_at, updated_at`

func (s *PostgresStore) FindByOwner(ctx context.Context, owner id.UserID) (*models.Record, error) {
	return s.findByOwner(ctx, owner, "")
}

// FindByOwnerForUpdate locks the owner's row for the rest of the
// transaction on ctx.
func (s *PostgresStore) FindByOwnerForUpdate(ctx context.Context, owner id.UserID) (*models.Record, error) {
	return s.findByOwner(ctx, owner, " FOR UPDATE")
}

func (s *PostgresStore) findByOwner(ctx context.Context, owner id.UserID, suffix string) (*models.Record, error) {
	query := `SELECT` + selectColumns + ` FROM attestations WHERE owner_id = $1` + suffix
	row := tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(owner))
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find attestation by owner: %w", err)
	}
	return record, nil
}

// Upsert inserts or fully replaces the owner's record and reports whether a
// new row was created. created_at is kept from the original insert.
func (s *PostgresStore) Upsert(ctx context.Context, record *models.Record) (bool, error) {
	query := `
		INSERT INTO attestations (
			owner_id, legal_name, bar_number,
			is_licensed, in_good_standing, no_disciplinary_history,
			profile_accurate, will_update_changes, understands_liability,
			externally_verified, version, submitted_at, ip_address, user_agent,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (owner_id) DO UPDATE SET
			legal_name = EXCLUDED.legal_name,
			bar_number = EXCLUDED.bar_number,
			is_licensed = EXCLUDED.is_licensed,
			in_good_standing = EXCLUDED.in_good_standing,
			no_disciplinary_history = EXCLUDED.no_disciplinary_history,
			profile_accurate = EXCLUDED.profile_accurate,
			will_update_changes = EXCLUDED.will_update_changes,
			understands_liability = EXCLUDED.understands_liability,
			externally_verified = EXCLUDED.externally_verified,
			version = EXCLUDED.version,
			submitted_at = EXCLUDED.submitted_at,
			ip_address = EXCLUDED.ip_address,
			user_agent = EXCLUDED.user_agent,
			updated_at = EXCLUDED.updated_at
		RETURNING (xmax = 0) AS inserted, created_at
	`
	var inserted bool
	err := tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query,
		uuid.UUID(record.OwnerID),
		record.LegalName,
		record.BarNumber,
		record.IsLicensed,
		record.InGoodStanding,
		record.NoDisciplinaryHistory,
		record.ProfileAccurate,
		record.WillUpdateChanges,
		record.UnderstandsLiability,
		record.Verified,
		record.Version,
		record.SubmittedAt,
		record.IPAddress,
		record.UserAgent,
		record.CreatedAt,
		record.UpdatedAt,
	).Scan(&inserted, &record.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("upsert attestation: %w", err)
	}
	return inserted, nil
}

func (s *PostgresStore) List(ctx context.Context, filter models.ListFilter) ([]*models.Record, int, error) {
	where := ""
	var args []any
	if filter.Verified != nil {
		args = append(args, *filter.Verified)
		where = " WHERE externally_verified = $1"
	}

	exec := tx.ExecutorFrom(ctx, s.db)
	var total int
	if err := exec.QueryRowContext(ctx, `SELECT COUNT(*) FROM attestations`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count attestations: %w", err)
	}

	query := `SELECT` + selectColumns + ` FROM attestations` + where +
		` ORDER BY submitted_at DESC, owner_id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}
	args = append(args, filter.Offset)
	query += ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list attestations: %w", err)
	}
	defer rows.Close()

	records := []*models.Record{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan attestation: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate attestations: %w", err)
	}
	return records, total, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*models.Record, error) {
	var (
		r     models.Record
		owner uuid.UUID
	)
	err := row.Scan(
		&owner,
		&r.LegalName,
		&r.BarNumber,
		&r.IsLicensed,
		&r.InGoodStanding,
		&r.NoDisciplinaryHistory,
		&r.ProfileAccurate,
		&r.WillUpdateChanges,
		&r.UnderstandsLiability,
		&r.Verified,
		&r.Version,
		&r.SubmittedAt,
		&r.IPAddress,
		&r.UserAgent,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.OwnerID = id.UserID(owner)
	r.SubmittedAt = r.SubmittedAt.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return &r, nil
}
