package audit

import (
	"context"
	"log/slog"

	"cratekeeper/pkg/requestcontext"
)

// Publisher writes audit records. The primary store append is synchronous and
// transactional; a copy is then handed to the mirror channel without ever
// blocking the caller.
type Publisher struct {
	store  Store
	mirror chan<- Record
	logger *slog.Logger
}

// NewPublisher builds a publisher. mirror may be nil when no mirror sink is
// configured.
func NewPublisher(store Store, mirror chan<- Record, logger *slog.Logger) *Publisher {
	return &Publisher{store: store, mirror: mirror, logger: logger}
}

// Emit fills in timestamp and client metadata from the context and appends
// the record. An append failure propagates: no state change without an audit
// trail.
func (p *Publisher) Emit(ctx context.Context, record Record) error {
	if record.Timestamp.IsZero() {
		record.Timestamp = requestcontext.Now(ctx)
	}
	if record.IPAddress == "" {
		record.IPAddress = requestcontext.ClientIP(ctx)
	}
	if record.UserAgent == "" {
		record.UserAgent = requestcontext.UserAgent(ctx)
	}
	if record.RequestID == "" {
		record.RequestID = requestcontext.RequestID(ctx)
	}

	if err := p.store.Append(ctx, record); err != nil {
		return err
	}

	if p.mirror != nil {
		select {
		case p.mirror <- record:
		default:
			// The mirror is best-effort; the committed store record is the
			// trail of record.
			p.logger.WarnContext(ctx, "audit mirror channel full, dropping record",
				"action", record.Action,
				"entity_id", record.EntityID,
			)
		}
	}
	return nil
}

// List returns the audit trail for one entity.
func (p *Publisher) List(ctx context.Context, entity, entityID string) ([]Record, error) {
	return p.store.ListByEntity(ctx, entity, entityID)
}
