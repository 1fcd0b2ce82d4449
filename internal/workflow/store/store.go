// Package store persists the workflow aggregates. Implementations are pure
// I/O: they report facts via sentinel errors and leave domain error
// translation to the service.
package store

import (
	"context"

	"cratekeeper/internal/workflow/models"
	id "cratekeeper/pkg/domain"
)

// RequestFilter narrows List results. Nil or empty fields match everything;
// Statuses matches any of the listed statuses.
type RequestFilter struct {
	UnitID   *id.UnitID
	Type     *id.RequestType
	Statuses []id.RequestStatus
}

// RequestStore persists requests.
//
// Update performs a compare-and-swap on expectedVersion: the row is written
// only if its stored version still equals expectedVersion, otherwise
// sentinel.ErrConflict. The request passed in already carries the bumped
// version.
type RequestStore interface {
	Create(ctx context.Context, request *models.Request) error
	Get(ctx context.Context, requestID id.RequestID) (*models.Request, error)
	Update(ctx context.Context, request *models.Request, expectedVersion int64) error
	List(ctx context.Context, filter RequestFilter) ([]*models.Request, error)
}

// CrateStore persists crates. Crate writes happen inside the owning request's
// transaction, so they carry no version of their own.
type CrateStore interface {
	Create(ctx context.Context, crate *models.Crate) error
	Get(ctx context.Context, crateID id.CrateID) (*models.Crate, error)
	Update(ctx context.Context, crate *models.Crate) error
	List(ctx context.Context, unitID *id.UnitID) ([]*models.Crate, error)
}

// SendBackStore persists send-back records. Records are append-only.
type SendBackStore interface {
	Create(ctx context.Context, sendBack *models.SendBack) error
	ListByRequest(ctx context.Context, requestID id.RequestID) ([]*models.SendBack, error)
}
