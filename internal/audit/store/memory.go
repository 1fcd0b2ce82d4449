// Package store provides the audit sinks: in-memory for tests and single
// node runs, PostgreSQL for the transactional trail, Kafka for the mirror.
package store

import (
	"context"
	"sync"

	"cratekeeper/internal/audit"
)

// Memory keeps audit records in append order.
type Memory struct {
	mu      sync.RWMutex
	records []audit.Record
}

func NewMemory() *Memory {
	return &Memory{}
}

func (s *Memory) Append(_ context.Context, record audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

func (s *Memory) ListByEntity(_ context.Context, entity, entityID string) ([]audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Record
	for _, record := range s.records {
		if record.Entity == entity && record.EntityID == entityID {
			out = append(out, record)
		}
	}
	return out, nil
}

// All returns every record in append order. Test helper.
func (s *Memory) All() []audit.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]audit.Record, len(s.records))
	copy(out, s.records)
	return out
}
