// Package capability holds the static table mapping role, request type, and
// current status to the set of permitted transitions. The table is data, not
// conditionals: the workflow service consults it and nothing else decides who
// may do what.
package capability

import (
	id "cratekeeper/pkg/domain"
)

type key struct {
	role   id.Role
	rtype  id.RequestType
	status id.RequestStatus
}

var allTypes = []id.RequestType{id.TypeStorage, id.TypeWithdrawal, id.TypeDestruction}

// table is built once at init. Roles absent from the table (System Admin) hold
// no transition capabilities; they are read-only.
var table = buildTable()

func buildTable() map[key][]id.Transition {
	t := make(map[key][]id.Transition)

	grant := func(role id.Role, rtype id.RequestType, status id.RequestStatus, transitions ...id.Transition) {
		t[key{role, rtype, status}] = append(t[key{role, rtype, status}], transitions...)
	}

	for _, rtype := range allTypes {
		// Section Heads review every pending request of their unit.
		grant(id.RoleSectionHead, rtype, id.StatusPending,
			id.TransitionApprove, id.TransitionReject, id.TransitionSendBack)
		// Only the original submitter may resubmit, enforced by the
		// SubmitterOnly constraint on top of this grant.
		grant(id.RoleUser, rtype, id.StatusSentBack, id.TransitionSubmit)
	}

	// Store Heads run the physical side of storage and withdrawal.
	grant(id.RoleStoreHead, id.TypeStorage, id.StatusApproved, id.TransitionAllocateStorage)
	grant(id.RoleStoreHead, id.TypeWithdrawal, id.StatusApproved, id.TransitionAllocateStorage)
	grant(id.RoleStoreHead, id.TypeWithdrawal, id.StatusAllocated, id.TransitionIssue)
	grant(id.RoleStoreHead, id.TypeWithdrawal, id.StatusIssued, id.TransitionReturnDocs)
	grant(id.RoleStoreHead, id.TypeWithdrawal, id.StatusReturned, id.TransitionComplete)

	// The requesting user confirms the physical destruction took place.
	grant(id.RoleUser, id.TypeDestruction, id.StatusApproved, id.TransitionConfirmDestruction)

	return t
}

// Allowed returns the transitions the role may perform on a request of the
// given type in the given status. The returned slice must not be mutated.
func Allowed(role id.Role, rtype id.RequestType, status id.RequestStatus) []id.Transition {
	return table[key{role, rtype, status}]
}

// Can reports whether the role may perform the transition on a request of the
// given type in the given status.
func Can(role id.Role, rtype id.RequestType, status id.RequestStatus, transition id.Transition) bool {
	for _, allowed := range table[key{role, rtype, status}] {
		if allowed == transition {
			return true
		}
	}
	return false
}

// SignatureGated reports whether the transition requires a verified
// secondary credential before it may commit.
func SignatureGated(transition id.Transition) bool {
	switch transition {
	case id.TransitionApprove, id.TransitionReject, id.TransitionConfirmDestruction:
		return true
	}
	return false
}

// SubmitterOnly reports whether the transition is restricted to the request's
// original submitter on top of its role grant.
func SubmitterOnly(transition id.Transition) bool {
	return transition == id.TransitionSubmit
}

// CanCreate reports whether the role may open a new request of the given
// type. System Admins observe; they do not file requests.
func CanCreate(role id.Role, _ id.RequestType) bool {
	switch role {
	case id.RoleUser, id.RoleSectionHead, id.RoleStoreHead:
		return true
	}
	return false
}
