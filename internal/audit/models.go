package audit

import (
	"context"
	"time"

	id "cratekeeper/pkg/domain"
)

// Record is one immutable line of the audit trail: who did what to which
// entity, and the status movement it caused. Client metadata comes from the
// request context so every committed transition is attributable.
type Record struct {
	Timestamp      time.Time `json:"timestamp"`
	Actor          id.UserID `json:"actor"`
	Role           id.Role   `json:"role"`
	Action         string    `json:"action"`
	Entity         string    `json:"entity"`
	EntityID       string    `json:"entity_id"`
	UnitID         id.UnitID `json:"unit_id"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	NewStatus      string    `json:"new_status"`
	Reason         string    `json:"reason,omitempty"`
	IPAddress      string    `json:"ip_address,omitempty"`
	UserAgent      string    `json:"user_agent,omitempty"`
	RequestID      string    `json:"request_id,omitempty"`
}

// Store is the primary, transactional audit sink. Append runs inside the
// transition's transaction: if it fails, the transition fails with it.
type Store interface {
	Append(ctx context.Context, record Record) error
	ListByEntity(ctx context.Context, entity, entityID string) ([]Record, error)
}

// Sink receives best-effort copies of committed records (the Kafka mirror).
type Sink interface {
	Write(ctx context.Context, record Record) error
}
