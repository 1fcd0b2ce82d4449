package handler

import (
	"strings"
	"time"

	"cratekeeper/internal/signature"
	"cratekeeper/internal/workflow/service"
	id "cratekeeper/pkg/domain"
	dErrors "cratekeeper/pkg/domain-errors"
)

const maxPurposeLength = 500

// CreateStorageRequest is the body for POST /requests/storage.
type CreateStorageRequest struct {
	Purpose   string `json:"purpose"`
	ToCentral bool   `json:"to_central"`
}

func (r *CreateStorageRequest) Validate() error {
	r.Purpose = strings.TrimSpace(r.Purpose)
	if r.Purpose == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "purpose is required")
	}
	if len(r.Purpose) > maxPurposeLength {
		return dErrors.New(dErrors.CodeInvalidInput, "purpose must be at most 500 characters")
	}
	return nil
}

// CreateWithdrawalRequest is the body for POST /requests/withdrawal.
type CreateWithdrawalRequest struct {
	CrateID            string    `json:"crate_id"`
	Purpose            string    `json:"purpose"`
	ExpectedReturnDate time.Time `json:"expected_return_date"`

	parsedCrateID id.CrateID
}

func (r *CreateWithdrawalRequest) Validate() error {
	r.Purpose = strings.TrimSpace(r.Purpose)
	if r.Purpose == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "purpose is required")
	}
	if len(r.Purpose) > maxPurposeLength {
		return dErrors.New(dErrors.CodeInvalidInput, "purpose must be at most 500 characters")
	}
	if r.ExpectedReturnDate.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "expected_return_date is required")
	}
	crateID, err := id.ParseCrateID(r.CrateID)
	if err != nil {
		return err
	}
	r.parsedCrateID = crateID
	return nil
}

// CreateDestructionRequest is the body for POST /requests/destruction.
type CreateDestructionRequest struct {
	CrateID string `json:"crate_id"`
	Purpose string `json:"purpose"`

	parsedCrateID id.CrateID
}

func (r *CreateDestructionRequest) Validate() error {
	r.Purpose = strings.TrimSpace(r.Purpose)
	if r.Purpose == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "purpose is required")
	}
	if len(r.Purpose) > maxPurposeLength {
		return dErrors.New(dErrors.CodeInvalidInput, "purpose must be at most 500 characters")
	}
	crateID, err := id.ParseCrateID(r.CrateID)
	if err != nil {
		return err
	}
	r.parsedCrateID = crateID
	return nil
}

// TransitionRequest is the body shared by all transition endpoints. Reason,
// storage location, and password only matter to specific transitions; the
// service ignores the rest.
type TransitionRequest struct {
	ExpectedVersion int64  `json:"expected_version"`
	Reason          string `json:"reason,omitempty"`
	StorageLocation string `json:"storage_location,omitempty"`
	Password        string `json:"password,omitempty"`
}

func (r *TransitionRequest) Validate() error {
	if r.ExpectedVersion < 1 {
		return dErrors.New(dErrors.CodeInvalidInput, "expected_version is required and must be at least 1")
	}
	r.Reason = strings.TrimSpace(r.Reason)
	r.StorageLocation = strings.TrimSpace(r.StorageLocation)
	return nil
}

func (r *TransitionRequest) toInput() service.TransitionInput {
	return service.TransitionInput{
		ExpectedVersion: r.ExpectedVersion,
		Reason:          r.Reason,
		StorageLocation: r.StorageLocation,
		Proof:           signature.Proof{Password: r.Password},
	}
}
