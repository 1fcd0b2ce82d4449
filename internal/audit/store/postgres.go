package store

import (
	"context"
	"database/sql"
	"fmt"

	"cratekeeper/internal/audit"
	id "cratekeeper/pkg/domain"
	"cratekeeper/pkg/platform/tx"
)

// Postgres appends audit records to the audit_trail table. Appends resolve
// the context transaction, so a record commits atomically with the transition
// that produced it.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Append(ctx context.Context, record audit.Record) error {
	q := tx.Resolve(ctx, s.db)
	_, err := q.ExecContext(ctx, `
		INSERT INTO audit_trail (
			occurred_at, actor, role, action, entity, entity_id, unit_id,
			previous_status, new_status, reason, ip_address, user_agent, request_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		record.Timestamp, record.Actor.String(), string(record.Role),
		record.Action, record.Entity, record.EntityID, record.UnitID.String(),
		record.PreviousStatus, record.NewStatus, record.Reason,
		record.IPAddress, record.UserAgent, record.RequestID,
	)
	if err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}
	return nil
}

func (s *Postgres) ListByEntity(ctx context.Context, entity, entityID string) ([]audit.Record, error) {
	q := tx.Resolve(ctx, s.db)
	rows, err := q.QueryContext(ctx, `
		SELECT occurred_at, actor, role, action, entity, entity_id, unit_id,
			previous_status, new_status, reason, ip_address, user_agent, request_id
		FROM audit_trail
		WHERE entity = $1 AND entity_id = $2
		ORDER BY occurred_at
	`, entity, entityID)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	defer rows.Close()

	var out []audit.Record
	for rows.Next() {
		var (
			record            audit.Record
			rawActor, rawUnit string
			rawRole           string
		)
		if err := rows.Scan(
			&record.Timestamp, &rawActor, &rawRole, &record.Action,
			&record.Entity, &record.EntityID, &rawUnit,
			&record.PreviousStatus, &record.NewStatus, &record.Reason,
			&record.IPAddress, &record.UserAgent, &record.RequestID,
		); err != nil {
			return nil, fmt.Errorf("list audit records: %w", err)
		}
		if record.Actor, err = id.ParseUserID(rawActor); err != nil {
			return nil, err
		}
		if record.UnitID, err = id.ParseUnitID(rawUnit); err != nil {
			return nil, err
		}
		record.Role = id.Role(rawRole)
		out = append(out, record)
	}
	return out, rows.Err()
}
