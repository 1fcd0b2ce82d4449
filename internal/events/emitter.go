// Package events turns committed workflow transitions into the DomainEvents
// the broadcast hub fans out. The emitter is pure: it never touches storage,
// and payloads carry identifiers and the new status only; subscribers fetch
// anything else through the query endpoints, which keeps the hub decoupled
// from the storage schema.
package events

import (
	"time"

	"cratekeeper/internal/workflow/models"
	id "cratekeeper/pkg/domain"
)

// Scope names one broadcast channel. Events are scoped per owning unit.
type Scope string

// UnitScope is the scope for one unit's subscribers.
func UnitScope(unitID id.UnitID) Scope {
	return Scope("unit:" + unitID.String())
}

// Payload is the minimal event body: id and new status, nothing derived.
type Payload struct {
	ID     string `json:"id"`
	Status string `json:"status,omitempty"`
}

// DomainEvent is an ephemeral notification of a committed change. Sequence
// numbers are assigned per scope by the hub at publish time.
type DomainEvent struct {
	Entity    string    `json:"entity"`
	Action    string    `json:"action"`
	Data      Payload   `json:"data"`
	Timestamp time.Time `json:"timestamp"`
	Scopes    []Scope   `json:"-"`
}

const (
	ActionCreated = "created"
	ActionUpdated = "updated"
)

// Emitter builds DomainEvents and decides their delivery scopes. Crates held
// centrally on behalf of a unit fan out to both that unit and the central
// unit.
type Emitter struct {
	centralUnit id.UnitID
}

func NewEmitter(centralUnit id.UnitID) *Emitter {
	return &Emitter{centralUnit: centralUnit}
}

// ForRequest emits the event for a committed request transition or creation.
// crate may be nil when the request has no crate linked yet.
func (e *Emitter) ForRequest(action string, request *models.Request, crate *models.Crate, now time.Time) DomainEvent {
	return DomainEvent{
		Entity:    "request",
		Action:    action,
		Data:      Payload{ID: request.ID.String(), Status: string(request.Status)},
		Timestamp: now,
		Scopes:    e.scopesFor(request.UnitID, crate),
	}
}

// ForCrate emits the event for a crate side effect committed alongside a
// request transition.
func (e *Emitter) ForCrate(crate *models.Crate, now time.Time) DomainEvent {
	return DomainEvent{
		Entity:    "crate",
		Action:    ActionUpdated,
		Data:      Payload{ID: crate.ID.String(), Status: string(crate.Status)},
		Timestamp: now,
		Scopes:    e.scopesFor(crate.UnitID, crate),
	}
}

// ForSendBack announces a new send-back record to the request's unit.
func (e *Emitter) ForSendBack(sendBack *models.SendBack, unitID id.UnitID, now time.Time) DomainEvent {
	return DomainEvent{
		Entity:    "sendback",
		Action:    ActionCreated,
		Data:      Payload{ID: sendBack.ID.String()},
		Timestamp: now,
		Scopes:    []Scope{UnitScope(unitID)},
	}
}

// scopesFor returns the owning unit's scope, plus the central unit's scope
// for centrally held crates owned elsewhere.
func (e *Emitter) scopesFor(unitID id.UnitID, crate *models.Crate) []Scope {
	scopes := []Scope{UnitScope(unitID)}
	if crate != nil && crate.ToCentral && !e.centralUnit.IsNil() && e.centralUnit != unitID {
		scopes = append(scopes, UnitScope(e.centralUnit))
	}
	return scopes
}
