package handler

import (
	"cratekeeper/internal/audit"
	"cratekeeper/internal/workflow/models"
)

// ListRequestsResponse is the envelope for GET /requests.
type ListRequestsResponse struct {
	Requests []*models.Request `json:"requests"`
}

// ListCratesResponse is the envelope for GET /crates.
type ListCratesResponse struct {
	Crates []*models.Crate `json:"crates"`
}

// ListSendBacksResponse is the envelope for GET /requests/{id}/send-backs.
type ListSendBacksResponse struct {
	SendBacks []*models.SendBack `json:"send_backs"`
}

// AuditTrailResponse is the envelope for GET /requests/{id}/audit.
type AuditTrailResponse struct {
	Records []audit.Record `json:"records"`
}
