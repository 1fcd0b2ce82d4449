package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"cratekeeper/internal/workflow/models"
	id "cratekeeper/pkg/domain"
	"cratekeeper/pkg/platform/sentinel"
)

type RequestStoreSuite struct {
	suite.Suite
	store *MemoryRequestStore
	ctx   context.Context
}

func (s *RequestStoreSuite) SetupTest() {
	s.store = NewMemoryRequestStore()
	s.ctx = context.Background()
}

func TestRequestStoreSuite(t *testing.T) {
	suite.Run(t, new(RequestStoreSuite))
}

func (s *RequestStoreSuite) newRequest(requestType id.RequestType, unitID id.UnitID) *models.Request {
	return models.NewRequest(requestType, unitID, id.NewUserID(), time.Now())
}

func (s *RequestStoreSuite) TestCreateAndGet() {
	s.Run("round-trips a request", func() {
		request := s.newRequest(id.TypeStorage, id.NewUnitID())
		s.Require().NoError(s.store.Create(s.ctx, request))

		found, err := s.store.Get(s.ctx, request.ID)
		s.Require().NoError(err)
		s.Equal(request.ID, found.ID)
		s.Equal(id.StatusPending, found.Status)
	})

	s.Run("returns ErrNotFound for unknown id", func() {
		_, err := s.store.Get(s.ctx, id.NewRequestID())
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("rejects duplicate id", func() {
		request := s.newRequest(id.TypeStorage, id.NewUnitID())
		s.Require().NoError(s.store.Create(s.ctx, request))
		s.Require().ErrorIs(s.store.Create(s.ctx, request), sentinel.ErrAlreadyExists)
	})

	s.Run("get returns a copy, not the stored record", func() {
		request := s.newRequest(id.TypeWithdrawal, id.NewUnitID())
		s.Require().NoError(s.store.Create(s.ctx, request))

		found, err := s.store.Get(s.ctx, request.ID)
		s.Require().NoError(err)
		found.Status = id.StatusApproved

		again, err := s.store.Get(s.ctx, request.ID)
		s.Require().NoError(err)
		s.Equal(id.StatusPending, again.Status)
	})
}

func (s *RequestStoreSuite) TestVersionedUpdate() {
	s.Run("update succeeds when version matches", func() {
		request := s.newRequest(id.TypeWithdrawal, id.NewUnitID())
		s.Require().NoError(s.store.Create(s.ctx, request))

		updated := *request
		updated.Status = id.StatusApproved
		updated.Version = 2
		s.Require().NoError(s.store.Update(s.ctx, &updated, 1))

		found, err := s.store.Get(s.ctx, request.ID)
		s.Require().NoError(err)
		s.Equal(id.StatusApproved, found.Status)
		s.EqualValues(2, found.Version)
	})

	s.Run("update fails with ErrConflict on stale version", func() {
		request := s.newRequest(id.TypeWithdrawal, id.NewUnitID())
		s.Require().NoError(s.store.Create(s.ctx, request))

		updated := *request
		updated.Version = 2
		s.Require().NoError(s.store.Update(s.ctx, &updated, 1))

		again := *request
		again.Version = 2
		s.Require().ErrorIs(s.store.Update(s.ctx, &again, 1), sentinel.ErrConflict)
	})

	s.Run("concurrent updates: exactly one wins", func() {
		request := s.newRequest(id.TypeWithdrawal, id.NewUnitID())
		s.Require().NoError(s.store.Create(s.ctx, request))

		const attempts = 8
		var wg sync.WaitGroup
		errs := make([]error, attempts)
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				updated := *request
				updated.Version = 2
				errs[i] = s.store.Update(s.ctx, &updated, 1)
			}(i)
		}
		wg.Wait()

		var wins, conflicts int
		for _, err := range errs {
			switch {
			case err == nil:
				wins++
			default:
				s.Require().ErrorIs(err, sentinel.ErrConflict)
				conflicts++
			}
		}
		s.Equal(1, wins)
		s.Equal(attempts-1, conflicts)
	})
}

func (s *RequestStoreSuite) TestList() {
	unitA := id.NewUnitID()
	unitB := id.NewUnitID()

	reqA := s.newRequest(id.TypeStorage, unitA)
	reqB := s.newRequest(id.TypeWithdrawal, unitA)
	reqC := s.newRequest(id.TypeWithdrawal, unitB)
	for _, r := range []*models.Request{reqA, reqB, reqC} {
		s.Require().NoError(s.store.Create(s.ctx, r))
	}

	s.Run("filters by unit", func() {
		out, err := s.store.List(s.ctx, RequestFilter{UnitID: &unitA})
		s.Require().NoError(err)
		s.Len(out, 2)
	})

	s.Run("filters by type and unit", func() {
		withdrawal := id.TypeWithdrawal
		out, err := s.store.List(s.ctx, RequestFilter{UnitID: &unitA, Type: &withdrawal})
		s.Require().NoError(err)
		s.Require().Len(out, 1)
		s.Equal(reqB.ID, out[0].ID)
	})

	s.Run("empty filter returns everything", func() {
		out, err := s.store.List(s.ctx, RequestFilter{})
		s.Require().NoError(err)
		s.Len(out, 3)
	})
}

type CrateStoreSuite struct {
	suite.Suite
	store *MemoryCrateStore
	ctx   context.Context
}

func (s *CrateStoreSuite) SetupTest() {
	s.store = NewMemoryCrateStore()
	s.ctx = context.Background()
}

func TestCrateStoreSuite(t *testing.T) {
	suite.Run(t, new(CrateStoreSuite))
}

func (s *CrateStoreSuite) TestCrateLifecyclePersistence() {
	crate := models.NewCrate(id.NewUnitID(), false, time.Now())
	s.Require().NoError(s.store.Create(s.ctx, crate))

	crate.ApplyAllocation("A-01-17", time.Now())
	s.Require().NoError(s.store.Update(s.ctx, crate))

	found, err := s.store.Get(s.ctx, crate.ID)
	s.Require().NoError(err)
	s.Equal(id.CrateArchived, found.Status)
	s.Require().NotNil(found.StorageLocation)
	s.Equal("A-01-17", *found.StorageLocation)
}

func (s *CrateStoreSuite) TestUpdateUnknownCrate() {
	crate := models.NewCrate(id.NewUnitID(), false, time.Now())
	s.Require().ErrorIs(s.store.Update(s.ctx, crate), sentinel.ErrNotFound)
}

func TestSendBackStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySendBackStore()
	requestID := id.NewRequestID()
	actor := id.NewUserID()

	first, err := models.NewSendBack(requestID, "missing inventory sheet", actor, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	second, err := models.NewSendBack(requestID, "wrong crate label", actor, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Create(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := store.Create(ctx, second); err != nil {
		t.Fatal(err)
	}

	records, err := store.ListByRequest(ctx, requestID)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Reason != "missing inventory sheet" {
		t.Fatalf("expected insertion order, got %q first", records[0].Reason)
	}

	other, err := store.ListByRequest(ctx, id.NewRequestID())
	if err != nil {
		t.Fatal(err)
	}
	if len(other) != 0 {
		t.Fatalf("expected no records for other request, got %d", len(other))
	}
}
