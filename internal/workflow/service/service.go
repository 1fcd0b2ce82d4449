// Package service is the workflow engine. Every request mutation funnels
// through it: scope, capability, state, version, and signature checks run in
// a fixed order, the write commits transactionally with its audit record, and
// only committed changes are announced to the hub.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"cratekeeper/internal/audit"
	"cratekeeper/internal/capability"
	"cratekeeper/internal/events"
	"cratekeeper/internal/signature"
	"cratekeeper/internal/workflow/metrics"
	"cratekeeper/internal/workflow/models"
	"cratekeeper/internal/workflow/store"
	id "cratekeeper/pkg/domain"
	dErrors "cratekeeper/pkg/domain-errors"
	"cratekeeper/pkg/platform/sentinel"
	"cratekeeper/pkg/platform/tx"
	"cratekeeper/pkg/requestcontext"
)

// EventPublisher fans committed domain events out to live subscribers.
type EventPublisher interface {
	Publish(event events.DomainEvent)
}

// Deps wires the service. Audit and Publisher are required; a transition
// without an audit record or an announcement is a bug, not a configuration.
type Deps struct {
	Requests  store.RequestStore
	Crates    store.CrateStore
	SendBacks store.SendBackStore
	Runner    tx.Runner
	Verifier  signature.Verifier
	Audit     *audit.Publisher
	Emitter   *events.Emitter
	Publisher EventPublisher
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

type Service struct {
	requests  store.RequestStore
	crates    store.CrateStore
	sendBacks store.SendBackStore
	runner    tx.Runner
	verifier  signature.Verifier
	audit     *audit.Publisher
	emitter   *events.Emitter
	publisher EventPublisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	tracer    trace.Tracer
	clock     func() time.Time
}

func New(deps Deps) *Service {
	return &Service{
		requests:  deps.Requests,
		crates:    deps.Crates,
		sendBacks: deps.SendBacks,
		runner:    deps.Runner,
		verifier:  deps.Verifier,
		audit:     deps.Audit,
		emitter:   deps.Emitter,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		tracer:    otel.Tracer("cratekeeper/internal/workflow"),
		clock:     time.Now,
	}
}

// actor is the authenticated principal taken from the request context.
type actor struct {
	userID id.UserID
	unitID id.UnitID
	role   id.Role
}

func actorFrom(ctx context.Context) (actor, error) {
	act := actor{
		userID: requestcontext.UserID(ctx),
		unitID: requestcontext.UnitID(ctx),
		role:   requestcontext.Role(ctx),
	}
	if act.userID.IsNil() || act.unitID.IsNil() {
		return actor{}, dErrors.New(dErrors.CodeUnauthorized, "no authenticated user in context")
	}
	return act, nil
}

// translate maps storage sentinels onto domain errors; domain errors pass
// through untouched.
func translate(err error, notFoundMessage string) error {
	var domainErr *dErrors.Error
	switch {
	case errors.As(err, &domainErr):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, notFoundMessage)
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "the record was modified concurrently, reload and retry")
	case errors.Is(err, sentinel.ErrAlreadyExists):
		return dErrors.New(dErrors.CodeConflict, "the record already exists")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "storage failure")
}

// CreateStorageInput opens a storage request. The crate row is created
// alongside it; the physical location is assigned later by allocation.
type CreateStorageInput struct {
	Purpose   string
	ToCentral bool
}

func (s *Service) CreateStorage(ctx context.Context, input CreateStorageInput) (*models.Request, error) {
	act, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	if !capability.CanCreate(act.role, id.TypeStorage) {
		return nil, dErrors.New(dErrors.CodeForbidden, "role may not create requests")
	}

	now := s.clock()
	crate := models.NewCrate(act.unitID, input.ToCentral, now)
	request := models.NewRequest(id.TypeStorage, act.unitID, act.userID, now)
	crateID := crate.ID
	request.CrateID = &crateID
	request.Purpose = input.Purpose

	err = s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.crates.Create(ctx, crate); err != nil {
			return err
		}
		if err := s.requests.Create(ctx, request); err != nil {
			return err
		}
		return s.audit.Emit(ctx, s.creationRecord(request, act))
	})
	if err != nil {
		return nil, translate(err, "request not found")
	}

	s.metrics.RequestsCreated.WithLabelValues(id.TypeStorage.String()).Inc()
	s.publisher.Publish(s.emitter.ForRequest(events.ActionCreated, request, crate, now))
	return request, nil
}

// CreateWithdrawalInput opens a withdrawal request against an existing crate.
type CreateWithdrawalInput struct {
	CrateID            id.CrateID
	Purpose            string
	ExpectedReturnDate time.Time
}

func (s *Service) CreateWithdrawal(ctx context.Context, input CreateWithdrawalInput) (*models.Request, error) {
	act, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	if !capability.CanCreate(act.role, id.TypeWithdrawal) {
		return nil, dErrors.New(dErrors.CodeForbidden, "role may not create requests")
	}

	now := s.clock()
	if !input.ExpectedReturnDate.After(now) {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "expected return date must be in the future")
	}

	crate, err := s.crateInScope(ctx, input.CrateID, act)
	if err != nil {
		return nil, err
	}
	if err := crate.CanWithdraw(); err != nil {
		return nil, err
	}

	request := models.NewRequest(id.TypeWithdrawal, act.unitID, act.userID, now)
	request.CrateID = &input.CrateID
	request.Purpose = input.Purpose
	returnDate := input.ExpectedReturnDate
	request.ExpectedReturnDate = &returnDate

	err = s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.requests.Create(ctx, request); err != nil {
			return err
		}
		return s.audit.Emit(ctx, s.creationRecord(request, act))
	})
	if err != nil {
		return nil, translate(err, "request not found")
	}

	s.metrics.RequestsCreated.WithLabelValues(id.TypeWithdrawal.String()).Inc()
	s.publisher.Publish(s.emitter.ForRequest(events.ActionCreated, request, crate, now))
	return request, nil
}

// CreateDestructionInput opens a destruction request against an existing
// crate.
type CreateDestructionInput struct {
	CrateID id.CrateID
	Purpose string
}

func (s *Service) CreateDestruction(ctx context.Context, input CreateDestructionInput) (*models.Request, error) {
	act, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	if !capability.CanCreate(act.role, id.TypeDestruction) {
		return nil, dErrors.New(dErrors.CodeForbidden, "role may not create requests")
	}

	crate, err := s.crateInScope(ctx, input.CrateID, act)
	if err != nil {
		return nil, err
	}
	if err := crate.CanDestroy(); err != nil {
		return nil, err
	}

	now := s.clock()
	request := models.NewRequest(id.TypeDestruction, act.unitID, act.userID, now)
	request.CrateID = &input.CrateID
	request.Purpose = input.Purpose

	err = s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.requests.Create(ctx, request); err != nil {
			return err
		}
		return s.audit.Emit(ctx, s.creationRecord(request, act))
	})
	if err != nil {
		return nil, translate(err, "request not found")
	}

	s.metrics.RequestsCreated.WithLabelValues(id.TypeDestruction.String()).Inc()
	s.publisher.Publish(s.emitter.ForRequest(events.ActionCreated, request, crate, now))
	return request, nil
}

func (s *Service) creationRecord(request *models.Request, act actor) audit.Record {
	return audit.Record{
		Actor:     act.userID,
		Role:      act.role,
		Action:    "create",
		Entity:    "request",
		EntityID:  request.ID.String(),
		UnitID:    request.UnitID,
		NewStatus: request.Status.String(),
	}
}

// TransitionInput carries everything a transition can need. ExpectedVersion
// is mandatory; the rest applies only to specific transitions.
type TransitionInput struct {
	ExpectedVersion int64
	Reason          string
	StorageLocation string
	Proof           signature.Proof
}

// Transition applies one lifecycle transition. Checks run in a fixed order so
// a caller failing multiple preconditions always sees the same error: scope,
// capability, state machine, version, signature. Nothing is written until
// every check has passed.
func (s *Service) Transition(ctx context.Context, requestID id.RequestID, transition id.Transition, input TransitionInput) (*models.Request, error) {
	act, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "workflow.transition",
		trace.WithAttributes(
			attribute.String("transition", transition.String()),
			attribute.String("request_id", requestID.String()),
		))
	defer span.End()
	started := s.clock()

	request, err := s.applyTransition(ctx, requestID, transition, input, act)
	outcome := "success"
	if err != nil {
		outcome = string(dErrors.CodeOf(err))
		span.RecordError(err)
		if dErrors.HasCode(err, dErrors.CodeConflict) {
			s.metrics.VersionConflicts.Inc()
		}
	}
	s.metrics.TransitionsTotal.WithLabelValues(transition.String(), outcome).Inc()
	s.metrics.TransitionDuration.WithLabelValues(transition.String()).
		Observe(s.clock().Sub(started).Seconds())
	return request, err
}

func (s *Service) applyTransition(ctx context.Context, requestID id.RequestID, transition id.Transition, input TransitionInput, act actor) (*models.Request, error) {
	request, err := s.requests.Get(ctx, requestID)
	if err != nil {
		return nil, translate(err, "request not found")
	}
	if request.UnitID != act.unitID {
		// Cross-unit visibility (System Admin) never extends to mutation.
		return nil, dErrors.New(dErrors.CodeScope, "request belongs to another unit")
	}

	if !capability.Can(act.role, request.Type, request.Status, transition) {
		return nil, dErrors.New(dErrors.CodeForbidden, "role may not perform this transition")
	}
	if capability.SubmitterOnly(transition) && request.SubmittedBy != act.userID {
		return nil, dErrors.New(dErrors.CodeForbidden, "only the original submitter may resubmit")
	}
	if err := request.CanApply(transition); err != nil {
		return nil, err
	}
	if request.Version != input.ExpectedVersion {
		return nil, dErrors.New(dErrors.CodeConflict, "the request was modified concurrently, reload and retry")
	}
	if capability.SignatureGated(transition) {
		if err := s.verifier.Verify(ctx, act.userID, input.Proof); err != nil {
			return nil, err
		}
	}

	now := s.clock()

	crate, crateDirty, err := s.prepareCrate(ctx, request, transition, input, now)
	if err != nil {
		return nil, err
	}

	var sendBack *models.SendBack
	switch {
	case transition == id.TransitionSendBack:
		sendBack, err = models.NewSendBack(request.ID, input.Reason, act.userID, now)
	case transition == id.TransitionReject && input.Reason != "":
		sendBack, err = models.NewSendBack(request.ID, input.Reason, act.userID, now)
	}
	if err != nil {
		return nil, err
	}

	previousStatus := request.Status
	request.Apply(transition, act.userID, now)

	err = s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.requests.Update(ctx, request, input.ExpectedVersion); err != nil {
			return err
		}
		if crateDirty {
			if err := s.crates.Update(ctx, crate); err != nil {
				return err
			}
		}
		if sendBack != nil {
			if err := s.sendBacks.Create(ctx, sendBack); err != nil {
				return err
			}
		}
		return s.audit.Emit(ctx, audit.Record{
			Actor:          act.userID,
			Role:           act.role,
			Action:         transition.String(),
			Entity:         "request",
			EntityID:       request.ID.String(),
			UnitID:         request.UnitID,
			PreviousStatus: previousStatus.String(),
			NewStatus:      request.Status.String(),
			Reason:         input.Reason,
		})
	})
	if err != nil {
		return nil, translate(err, "request not found")
	}

	s.logger.InfoContext(ctx, "transition committed",
		"transition", transition.String(),
		"request_id", request.ID.String(),
		"from", previousStatus.String(),
		"to", request.Status.String(),
		"version", request.Version,
	)

	s.publisher.Publish(s.emitter.ForRequest(events.ActionUpdated, request, crate, now))
	if crateDirty {
		s.publisher.Publish(s.emitter.ForCrate(crate, now))
	}
	if sendBack != nil {
		s.publisher.Publish(s.emitter.ForSendBack(sendBack, request.UnitID, now))
	}
	return request, nil
}

// prepareCrate loads the crate a transition acts on, validates the side
// effect, and applies it to the in-memory copy. The caller persists the copy
// in the same transaction as the request when crateDirty is true.
func (s *Service) prepareCrate(ctx context.Context, request *models.Request, transition id.Transition, input TransitionInput, now time.Time) (*models.Crate, bool, error) {
	switch transition {
	case id.TransitionAllocateStorage, id.TransitionIssue,
		id.TransitionReturnDocs, id.TransitionConfirmDestruction:
	default:
		return nil, false, nil
	}

	if request.CrateID == nil {
		return nil, false, dErrors.New(dErrors.CodeInvariantViolation, "request has no crate linked")
	}
	crate, err := s.crates.Get(ctx, *request.CrateID)
	if err != nil {
		return nil, false, translate(err, "crate not found")
	}

	switch transition {
	case id.TransitionAllocateStorage:
		if request.Type != id.TypeStorage {
			// Withdrawal allocation reserves the crate without moving it.
			return crate, false, nil
		}
		if input.StorageLocation == "" {
			return nil, false, dErrors.New(dErrors.CodeInvalidInput, "a storage location is required")
		}
		if err := crate.CanAllocate(); err != nil {
			return nil, false, err
		}
		crate.ApplyAllocation(input.StorageLocation, now)
	case id.TransitionIssue:
		if err := crate.CanWithdraw(); err != nil {
			return nil, false, err
		}
		crate.ApplyWithdrawal(now)
	case id.TransitionReturnDocs:
		if err := crate.CanReturn(); err != nil {
			return nil, false, err
		}
		crate.ApplyReturn(now)
	case id.TransitionConfirmDestruction:
		if err := crate.CanDestroy(); err != nil {
			return nil, false, err
		}
		crate.ApplyDestruction(now)
	}
	return crate, true, nil
}

// GetRequest returns one request visible to the actor.
func (s *Service) GetRequest(ctx context.Context, requestID id.RequestID) (*models.Request, error) {
	act, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	request, err := s.requests.Get(ctx, requestID)
	if err != nil {
		return nil, translate(err, "request not found")
	}
	if !act.role.CrossUnit() && request.UnitID != act.unitID {
		return nil, dErrors.New(dErrors.CodeScope, "request belongs to another unit")
	}
	return request, nil
}

// ListOptions narrows request listings. Unit applies only to cross-unit
// roles; everyone else is pinned to their own unit.
type ListOptions struct {
	UnitID   *id.UnitID
	Type     *id.RequestType
	Statuses []id.RequestStatus
}

func (s *Service) ListRequests(ctx context.Context, options ListOptions) ([]*models.Request, error) {
	act, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	filter := store.RequestFilter{Type: options.Type, Statuses: options.Statuses}
	if act.role.CrossUnit() {
		filter.UnitID = options.UnitID
	} else {
		unit := act.unitID
		filter.UnitID = &unit
	}
	requests, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, translate(err, "request not found")
	}
	return requests, nil
}

// GetCrate returns one crate visible to the actor.
func (s *Service) GetCrate(ctx context.Context, crateID id.CrateID) (*models.Crate, error) {
	act, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	crate, err := s.crates.Get(ctx, crateID)
	if err != nil {
		return nil, translate(err, "crate not found")
	}
	if !act.role.CrossUnit() && crate.UnitID != act.unitID {
		return nil, dErrors.New(dErrors.CodeScope, "crate belongs to another unit")
	}
	return crate, nil
}

func (s *Service) ListCrates(ctx context.Context) ([]*models.Crate, error) {
	act, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	var unit *id.UnitID
	if !act.role.CrossUnit() {
		u := act.unitID
		unit = &u
	}
	crates, err := s.crates.List(ctx, unit)
	if err != nil {
		return nil, translate(err, "crate not found")
	}
	return crates, nil
}

// ListSendBacks returns the send-back history of a request the actor can see.
func (s *Service) ListSendBacks(ctx context.Context, requestID id.RequestID) ([]*models.SendBack, error) {
	if _, err := s.GetRequest(ctx, requestID); err != nil {
		return nil, err
	}
	sendBacks, err := s.sendBacks.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, translate(err, "request not found")
	}
	return sendBacks, nil
}

// AuditTrail returns the audit records of a request the actor can see.
func (s *Service) AuditTrail(ctx context.Context, requestID id.RequestID) ([]audit.Record, error) {
	if _, err := s.GetRequest(ctx, requestID); err != nil {
		return nil, err
	}
	records, err := s.audit.List(ctx, "request", requestID.String())
	if err != nil {
		return nil, translate(err, "request not found")
	}
	return records, nil
}

// crateInScope loads a crate and checks it belongs to the actor's unit.
func (s *Service) crateInScope(ctx context.Context, crateID id.CrateID, act actor) (*models.Crate, error) {
	crate, err := s.crates.Get(ctx, crateID)
	if err != nil {
		return nil, translate(err, "crate not found")
	}
	if crate.UnitID != act.unitID {
		return nil, dErrors.New(dErrors.CodeScope, "crate belongs to another unit")
	}
	return crate, nil
}
