package domain

import dErrors "cratekeeper/pkg/domain-errors"

// RequestType distinguishes the three crate lifecycle workflows.
type RequestType string

const (
	TypeStorage     RequestType = "Storage"
	TypeWithdrawal  RequestType = "Withdrawal"
	TypeDestruction RequestType = "Destruction"
)

func ParseRequestType(s string) (RequestType, error) {
	switch RequestType(s) {
	case TypeStorage, TypeWithdrawal, TypeDestruction:
		return RequestType(s), nil
	}
	return "", dErrors.New(dErrors.CodeInvalidInput, "unknown request type")
}

func (t RequestType) String() string { return string(t) }

// RequestStatus is the shared status set for all request types. Not every
// status is reachable by every type; the transition table in
// internal/workflow/models defines the reachable edges.
type RequestStatus string

const (
	StatusPending   RequestStatus = "Pending"
	StatusSentBack  RequestStatus = "Sent Back"
	StatusApproved  RequestStatus = "Approved"
	StatusAllocated RequestStatus = "Allocated"
	StatusIssued    RequestStatus = "Issued"
	StatusReturned  RequestStatus = "Returned"
	StatusRejected  RequestStatus = "Rejected"
	StatusCompleted RequestStatus = "Completed"
)

func ParseRequestStatus(s string) (RequestStatus, error) {
	switch RequestStatus(s) {
	case StatusPending, StatusSentBack, StatusApproved, StatusAllocated,
		StatusIssued, StatusReturned, StatusRejected, StatusCompleted:
		return RequestStatus(s), nil
	}
	return "", dErrors.New(dErrors.CodeInvalidInput, "unknown request status")
}

// Terminal reports whether no further transitions exist from this status.
func (s RequestStatus) Terminal() bool {
	return s == StatusRejected || s == StatusCompleted
}

func (s RequestStatus) String() string { return string(s) }

// CrateStatus tracks the physical container independent of any one request.
type CrateStatus string

const (
	CrateActive    CrateStatus = "Active"
	CrateWithdrawn CrateStatus = "Withdrawn"
	CrateArchived  CrateStatus = "Archived"
	// CrateDestroyed is terminal; a destroyed crate is never reactivated.
	CrateDestroyed CrateStatus = "Destroyed"
)

func (s CrateStatus) String() string { return string(s) }

// Transition names a workflow operation. The capability table maps
// (role, request type, current status) to the transitions it permits.
type Transition string

const (
	TransitionSubmit             Transition = "submit"
	TransitionApprove            Transition = "approve"
	TransitionReject             Transition = "reject"
	TransitionSendBack           Transition = "send_back"
	TransitionAllocateStorage    Transition = "allocate_storage"
	TransitionIssue              Transition = "issue"
	TransitionReturnDocs         Transition = "return_docs"
	TransitionComplete           Transition = "complete"
	TransitionConfirmDestruction Transition = "confirm_destruction"
)

func (t Transition) String() string { return string(t) }
