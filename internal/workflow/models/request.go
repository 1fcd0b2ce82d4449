package models

import (
	"time"

	id "cratekeeper/pkg/domain"
	dErrors "cratekeeper/pkg/domain-errors"
)

// Request is the aggregate root for one crate lifecycle case.
//
// Invariants:
//   - Status moves only along the edges in transitions.go
//   - Version increases by exactly one per committed transition
//   - Actor and timestamp fields are set once by their transition and never
//     cleared (a resubmitted request keeps its original SubmittedBy)
//   - Terminal statuses (Rejected, Completed) accept no further transitions
//
// A Request is never deleted; terminal status is the only end state.
type Request struct {
	ID      id.RequestID     `json:"id"`
	Type    id.RequestType   `json:"type"`
	Status  id.RequestStatus `json:"status"`
	UnitID  id.UnitID        `json:"unit_id"`
	CrateID *id.CrateID      `json:"crate_id,omitempty"`
	Version int64            `json:"version"`

	Purpose            string     `json:"purpose,omitempty"`
	ExpectedReturnDate *time.Time `json:"expected_return_date,omitempty"`

	SubmittedBy id.UserID  `json:"submitted_by"`
	ApprovedBy  *id.UserID `json:"approved_by,omitempty"`
	AllocatedBy *id.UserID `json:"allocated_by,omitempty"`
	IssuedBy    *id.UserID `json:"issued_by,omitempty"`
	ReturnedBy  *id.UserID `json:"returned_by,omitempty"`

	SubmittedAt time.Time  `json:"submitted_at"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	AllocatedAt *time.Time `json:"allocated_at,omitempty"`
	IssuedAt    *time.Time `json:"issued_at,omitempty"`
	ReturnedAt  *time.Time `json:"returned_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewRequest constructs a pending request. The crate reference is required for
// withdrawal and destruction (they act on an existing crate) and set during
// storage creation when the crate row is inserted alongside.
func NewRequest(requestType id.RequestType, unitID id.UnitID, submittedBy id.UserID, now time.Time) *Request {
	return &Request{
		ID:          id.NewRequestID(),
		Type:        requestType,
		Status:      id.StatusPending,
		UnitID:      unitID,
		Version:     1,
		SubmittedBy: submittedBy,
		SubmittedAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// CanApply checks the request is in the source status of the transition.
// Role checks belong to the capability table; this is the state-machine
// backstop that no code path can route around.
func (r *Request) CanApply(transition id.Transition) error {
	edge, ok := edgeFor(transition)
	if !ok {
		return dErrors.New(dErrors.CodeInvariantViolation, "unknown transition")
	}
	if r.Status != edge.from {
		return dErrors.New(dErrors.CodeInvariantViolation,
			"request status does not permit this transition")
	}
	return nil
}

// Apply moves the request along the transition's edge, bumps the version, and
// stamps the relevant actor and timestamp fields. Call CanApply first.
func (r *Request) Apply(transition id.Transition, actor id.UserID, now time.Time) {
	edge, _ := edgeFor(transition)
	r.Status = edge.to
	r.Version++
	r.UpdatedAt = now

	switch transition {
	case id.TransitionSubmit:
		// Resubmission keeps the original submitter; only the clock moves.
		r.SubmittedAt = now
	case id.TransitionApprove:
		r.ApprovedBy = &actor
		r.ApprovedAt = &now
	case id.TransitionAllocateStorage:
		r.AllocatedBy = &actor
		r.AllocatedAt = &now
	case id.TransitionIssue:
		r.IssuedBy = &actor
		r.IssuedAt = &now
	case id.TransitionReturnDocs:
		r.ReturnedBy = &actor
		r.ReturnedAt = &now
	case id.TransitionComplete, id.TransitionConfirmDestruction:
		r.CompletedAt = &now
	}
}

// Overdue reports whether an issued withdrawal has passed its expected return
// date.
func (r *Request) Overdue(now time.Time) bool {
	if r.Type != id.TypeWithdrawal || r.Status != id.StatusIssued {
		return false
	}
	if r.ExpectedReturnDate == nil {
		return false
	}
	return now.After(*r.ExpectedReturnDate)
}
