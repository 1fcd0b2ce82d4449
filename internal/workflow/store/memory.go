package store

import (
	"context"
	"slices"
	"sort"
	"sync"

	"cratekeeper/internal/workflow/models"
	id "cratekeeper/pkg/domain"
	"cratekeeper/pkg/platform/sentinel"
)

// MemoryRequestStore keeps requests in a map. Snapshots are copied on the way
// in and out so callers never alias stored state.
type MemoryRequestStore struct {
	mu       sync.RWMutex
	requests map[id.RequestID]*models.Request
}

func NewMemoryRequestStore() *MemoryRequestStore {
	return &MemoryRequestStore{requests: make(map[id.RequestID]*models.Request)}
}

func (s *MemoryRequestStore) Create(_ context.Context, request *models.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[request.ID]; exists {
		return sentinel.ErrAlreadyExists
	}
	s.requests[request.ID] = copyRequest(request)
	return nil
}

func (s *MemoryRequestStore) Get(_ context.Context, requestID id.RequestID) (*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	request, ok := s.requests[requestID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyRequest(request), nil
}

func (s *MemoryRequestStore) Update(_ context.Context, request *models.Request, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.requests[request.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if stored.Version != expectedVersion {
		return sentinel.ErrConflict
	}
	s.requests[request.ID] = copyRequest(request)
	return nil
}

func (s *MemoryRequestStore) List(_ context.Context, filter RequestFilter) ([]*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Request
	for _, request := range s.requests {
		if filter.UnitID != nil && request.UnitID != *filter.UnitID {
			continue
		}
		if filter.Type != nil && request.Type != *filter.Type {
			continue
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, request.Status) {
			continue
		}
		out = append(out, copyRequest(request))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func copyRequest(r *models.Request) *models.Request {
	cp := *r
	cp.CrateID = copyPtr(r.CrateID)
	cp.ExpectedReturnDate = copyPtr(r.ExpectedReturnDate)
	cp.ApprovedBy = copyPtr(r.ApprovedBy)
	cp.AllocatedBy = copyPtr(r.AllocatedBy)
	cp.IssuedBy = copyPtr(r.IssuedBy)
	cp.ReturnedBy = copyPtr(r.ReturnedBy)
	cp.ApprovedAt = copyPtr(r.ApprovedAt)
	cp.AllocatedAt = copyPtr(r.AllocatedAt)
	cp.IssuedAt = copyPtr(r.IssuedAt)
	cp.ReturnedAt = copyPtr(r.ReturnedAt)
	cp.CompletedAt = copyPtr(r.CompletedAt)
	return &cp
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// MemoryCrateStore keeps crates in a map.
type MemoryCrateStore struct {
	mu     sync.RWMutex
	crates map[id.CrateID]*models.Crate
}

func NewMemoryCrateStore() *MemoryCrateStore {
	return &MemoryCrateStore{crates: make(map[id.CrateID]*models.Crate)}
}

func (s *MemoryCrateStore) Create(_ context.Context, crate *models.Crate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.crates[crate.ID]; exists {
		return sentinel.ErrAlreadyExists
	}
	s.crates[crate.ID] = copyCrate(crate)
	return nil
}

func (s *MemoryCrateStore) Get(_ context.Context, crateID id.CrateID) (*models.Crate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	crate, ok := s.crates[crateID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyCrate(crate), nil
}

func (s *MemoryCrateStore) Update(_ context.Context, crate *models.Crate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.crates[crate.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.crates[crate.ID] = copyCrate(crate)
	return nil
}

func (s *MemoryCrateStore) List(_ context.Context, unitID *id.UnitID) ([]*models.Crate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Crate
	for _, crate := range s.crates {
		if unitID != nil && crate.UnitID != *unitID {
			continue
		}
		out = append(out, copyCrate(crate))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func copyCrate(c *models.Crate) *models.Crate {
	cp := *c
	cp.StorageLocation = copyPtr(c.StorageLocation)
	return &cp
}

// MemorySendBackStore keeps send-back records in insertion order.
type MemorySendBackStore struct {
	mu      sync.RWMutex
	records []*models.SendBack
}

func NewMemorySendBackStore() *MemorySendBackStore {
	return &MemorySendBackStore{}
}

func (s *MemorySendBackStore) Create(_ context.Context, sendBack *models.SendBack) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sendBack
	s.records = append(s.records, &cp)
	return nil
}

func (s *MemorySendBackStore) ListByRequest(_ context.Context, requestID id.RequestID) ([]*models.SendBack, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.SendBack
	for _, record := range s.records {
		if record.RequestID == requestID {
			cp := *record
			out = append(out, &cp)
		}
	}
	return out, nil
}
