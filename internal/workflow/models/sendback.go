package models

import (
	"time"

	id "cratekeeper/pkg/domain"
	dErrors "cratekeeper/pkg/domain-errors"
)

// SendBack records why a request was returned to its submitter. Created on
// the send_back transition (and on reject, preserving the reviewer's reason);
// never mutated afterwards.
type SendBack struct {
	ID        id.SendBackID `json:"id"`
	RequestID id.RequestID  `json:"request_id"`
	Reason    string        `json:"reason"`
	CreatedBy id.UserID     `json:"created_by"`
	CreatedAt time.Time     `json:"created_at"`
}

func NewSendBack(requestID id.RequestID, reason string, createdBy id.UserID, now time.Time) (*SendBack, error) {
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "a reason is required")
	}
	if len(reason) > 1000 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "reason must be 1000 characters or less")
	}
	return &SendBack{
		ID:        id.NewSendBackID(),
		RequestID: requestID,
		Reason:    reason,
		CreatedBy: createdBy,
		CreatedAt: now,
	}, nil
}
