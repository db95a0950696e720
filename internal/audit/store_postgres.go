package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "lexlink/pkg/domain"
	"lexlink/pkg/platform/tx"
)

// PostgresStore persists events in the audit_events table. A trigger on the
// table rejects UPDATE and DELETE.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Append inserts event, joining the transaction on ctx when one is active.
func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	metadata := event.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadataBytes, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}

	actorID := ""
	if !event.ActorID.IsNil() {
		actorID = event.ActorID.String()
	}

	query := `
		INSERT INTO audit_events (
			id, owner_id, kind, version, occurred_at,
			ip_address, user_agent, actor_id, request_id, metadata
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(event.ID),
		uuid.UUID(event.OwnerID),
		string(event.Kind),
		event.Version,
		event.Timestamp,
		event.IP,
		event.UserAgent,
		actorID,
		event.RequestID,
		metadataBytes,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// List returns the owner's events newest first. Events sharing a timestamp
// come back in reverse append order, matching the in-memory store.
func (s *PostgresStore) List(ctx context.Context, q Query) ([]Event, error) {
	var (
		sb   strings.Builder
		args = []any{uuid.UUID(q.OwnerID)}
	)
	sb.WriteString(`
		SELECT id, owner_id, kind, version, occurred_at,
			   ip_address, user_agent, actor_id, request_id, metadata
		FROM audit_events
		WHERE owner_id = $1`)

	if len(q.Kinds) > 0 {
		kinds := make([]string, len(q.Kinds))
		for i, k := range q.Kinds {
			kinds[i] = string(k)
		}
		args = append(args, pq.Array(kinds))
		sb.WriteString(" AND kind = ANY($" + strconv.Itoa(len(args)) + ")")
	}
	if q.From != nil {
		args = append(args, *q.From)
		sb.WriteString(" AND occurred_at >= $" + strconv.Itoa(len(args)))
	}
	if q.To != nil {
		args = append(args, *q.To)
		sb.WriteString(" AND occurred_at <= $" + strconv.Itoa(len(args)))
	}
	sb.WriteString(" ORDER BY occurred_at DESC, seq DESC")
	if q.Limit > 0 {
		args = append(args, q.Limit)
		sb.WriteString(" LIMIT $" + strconv.Itoa(len(args)))
	}

	rows, err := tx.ExecutorFrom(ctx, s.db).QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var (
			event         Event
			eventID       uuid.UUID
			ownerID       uuid.UUID
			kind          string
			actorID       string
			metadataBytes []byte
		)
		err := rows.Scan(
			&eventID,
			&ownerID,
			&kind,
			&event.Version,
			&event.Timestamp,
			&event.IP,
			&event.UserAgent,
			&actorID,
			&event.RequestID,
			&metadataBytes,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.ID = id.EventID(eventID)
		event.OwnerID = id.UserID(ownerID)
		event.Kind = Kind(kind)
		if actorID != "" {
			if parsed, err := id.ParseUserID(actorID); err == nil {
				event.ActorID = parsed
			}
		}
		if len(metadataBytes) > 0 {
			if err := json.Unmarshal(metadataBytes, &event.Metadata); err != nil {
				return nil, fmt.Errorf("decode audit metadata: %w", err)
			}
			if len(event.Metadata) == 0 {
				event.Metadata = nil
			}
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
