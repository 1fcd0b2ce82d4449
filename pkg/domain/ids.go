package domain

import (
	"github.com/google/uuid"

	dErrors "cratekeeper/pkg/domain-errors"
)

// Typed UUID wrappers so a RequestID can never be passed where a CrateID is
// expected. Parse helpers enforce the invariant that IDs are valid, non-nil
// UUIDs at trust boundaries.
type (
	RequestID  uuid.UUID
	CrateID    uuid.UUID
	UnitID     uuid.UUID
	UserID     uuid.UUID
	SendBackID uuid.UUID
)

func (id RequestID) String() string { return uuid.UUID(id).String() }
func (id CrateID) String() string { return uuid.UUID(id).String() }
func (id UnitID) String() string { return uuid.UUID(id).String() }
func (id UserID) String() string { return uuid.UUID(id).String() }
func (id SendBackID) String() string { return uuid.UUID(id).String() }

func (id RequestID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id CrateID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id UnitID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id SendBackID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id is required")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must be a valid UUID")
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be the nil UUID")
	}
	return parsed, nil
}

func ParseRequestID(s string) (RequestID, error) {
	parsed, err := parseUUID(s)
	if err != nil {
		return RequestID{}, err
	}
	return RequestID(parsed), nil
}

func ParseCrateID(s string) (CrateID, error) {
	parsed, err := parseUUID(s)
	if err != nil {
		return CrateID{}, err
	}
	return CrateID(parsed), nil
}

func ParseUnitID(s string) (UnitID, error) {
	parsed, err := parseUUID(s)
	if err != nil {
		return UnitID{}, err
	}
	return UnitID(parsed), nil
}

func ParseSendBackID(s string) (SendBackID, error) {
	parsed, err := parseUUID(s)
	if err != nil {
		return SendBackID{}, err
	}
	return SendBackID(parsed), nil
}

func ParseUserID(s string) (UserID, error) {
	parsed, err := parseUUID(s)
	if err != nil {
		return UserID{}, err
	}
	return UserID(parsed), nil
}

func NewRequestID() RequestID { return RequestID(uuid.New()) }
func NewCrateID() CrateID { return CrateID(uuid.New()) }
func NewUnitID() UnitID { return UnitID(uuid.New()) }
func NewUserID() UserID { return UserID(uuid.New()) }
func NewSendBackID() SendBackID { return SendBackID(uuid.New()) }
