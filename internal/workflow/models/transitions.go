package models

import (
	id "cratekeeper/pkg/domain"
)

// edge is one legal move in the request state machine.
type edge struct {
	from id.RequestStatus
	to   id.RequestStatus
}

// edges is the complete request state machine. Which roles and request types
// may traverse an edge is the capability table's concern; the edge set itself
// is type-independent.
var edges = map[id.Transition]edge{
	id.TransitionSubmit:             {from: id.StatusSentBack, to: id.StatusPending},
	id.TransitionApprove:            {from: id.StatusPending, to: id.StatusApproved},
	id.TransitionReject:             {from: id.StatusPending, to: id.StatusRejected},
	id.TransitionSendBack:           {from: id.StatusPending, to: id.StatusSentBack},
	id.TransitionAllocateStorage:    {from: id.StatusApproved, to: id.StatusAllocated},
	id.TransitionIssue:              {from: id.StatusAllocated, to: id.StatusIssued},
	id.TransitionReturnDocs:         {from: id.StatusIssued, to: id.StatusReturned},
	id.TransitionComplete:           {from: id.StatusReturned, to: id.StatusCompleted},
	id.TransitionConfirmDestruction: {from: id.StatusApproved, to: id.StatusCompleted},
}

func edgeFor(transition id.Transition) (edge, bool) {
	e, ok := edges[transition]
	return e, ok
}

// TargetStatus returns the status a transition lands on.
func TargetStatus(transition id.Transition) (id.RequestStatus, bool) {
	e, ok := edges[transition]
	return e.to, ok
}
