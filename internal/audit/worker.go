package audit

import (
	"context"
	"log/slog"
)

// Worker drains mirrored audit records from its inbox into a sink. Sink
// failures are logged and skipped; the primary store already holds the
// record.
type Worker struct {
	sink   Sink
	inbox  <-chan Record
	logger *slog.Logger
}

func NewWorker(sink Sink, inbox <-chan Record, logger *slog.Logger) *Worker {
	return &Worker{sink: sink, inbox: inbox, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case record := <-w.inbox:
			if err := w.sink.Write(ctx, record); err != nil {
				w.logger.ErrorContext(ctx, "audit mirror write failed",
					"error", err,
					"action", record.Action,
					"entity_id", record.EntityID,
				)
			}
		}
	}
}
