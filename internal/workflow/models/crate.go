package models

import (
	"time"

	id "cratekeeper/pkg/domain"
	dErrors "cratekeeper/pkg/domain-errors"
)

// Crate is the physical container. Its status is a derived side effect of
// request transitions: storage allocation archives it, issue withdraws it,
// return reactivates it, confirmed destruction destroys it (terminal).
//
// ToCentral marks a crate held in the central archive on behalf of another
// unit; events about such crates fan out to both the owning unit and the
// central unit.
type Crate struct {
	ID              id.CrateID     `json:"id"`
	Status          id.CrateStatus `json:"status"`
	StorageLocation *string        `json:"storage_location,omitempty"`
	UnitID          id.UnitID      `json:"unit_id"`
	ToCentral       bool           `json:"to_central"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func NewCrate(unitID id.UnitID, toCentral bool, now time.Time) *Crate {
	return &Crate{
		ID:        id.NewCrateID(),
		Status:    id.CrateActive,
		UnitID:    unitID,
		ToCentral: toCentral,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CanWithdraw checks the crate can be handed out. Active and Archived crates
// can be withdrawn; a crate already out or destroyed cannot.
func (c *Crate) CanWithdraw() error {
	switch c.Status {
	case id.CrateActive, id.CrateArchived:
		return nil
	}
	return dErrors.New(dErrors.CodeConflict, "crate is not available for withdrawal")
}

// ApplyWithdrawal marks the crate as physically out of storage.
func (c *Crate) ApplyWithdrawal(now time.Time) {
	c.Status = id.CrateWithdrawn
	c.UpdatedAt = now
}

// CanReturn checks the crate is currently withdrawn.
func (c *Crate) CanReturn() error {
	if c.Status != id.CrateWithdrawn {
		return dErrors.New(dErrors.CodeConflict, "crate is not withdrawn")
	}
	return nil
}

// ApplyReturn puts a withdrawn crate back in circulation.
func (c *Crate) ApplyReturn(now time.Time) {
	c.Status = id.CrateActive
	c.UpdatedAt = now
}

// CanAllocate checks the crate can be placed into archive storage.
func (c *Crate) CanAllocate() error {
	switch c.Status {
	case id.CrateActive, id.CrateArchived:
		return nil
	}
	return dErrors.New(dErrors.CodeConflict, "crate cannot be allocated in its current status")
}

// ApplyAllocation records the crate's storage location and archives it.
func (c *Crate) ApplyAllocation(location string, now time.Time) {
	c.StorageLocation = &location
	c.Status = id.CrateArchived
	c.UpdatedAt = now
}

// CanDestroy checks the crate has not already been destroyed.
func (c *Crate) CanDestroy() error {
	if c.Status == id.CrateDestroyed {
		return dErrors.New(dErrors.CodeConflict, "crate is already destroyed")
	}
	return nil
}

// ApplyDestruction is terminal; the crate is never mutated again.
func (c *Crate) ApplyDestruction(now time.Time) {
	c.Status = id.CrateDestroyed
	c.UpdatedAt = now
}
