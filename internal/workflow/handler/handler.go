// Package handler exposes the workflow over HTTP. Handlers decode and
// validate, delegate to the service, and translate coded errors into status
// codes; no business rules live here.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"cratekeeper/internal/audit"
	"cratekeeper/internal/workflow/models"
	"cratekeeper/internal/workflow/service"
	id "cratekeeper/pkg/domain"
	dErrors "cratekeeper/pkg/domain-errors"
	"cratekeeper/pkg/platform/httputil"
	"cratekeeper/pkg/requestcontext"
)

// Service is the workflow surface the handlers need.
type Service interface {
	CreateStorage(ctx context.Context, input service.CreateStorageInput) (*models.Request, error)
	CreateWithdrawal(ctx context.Context, input service.CreateWithdrawalInput) (*models.Request, error)
	CreateDestruction(ctx context.Context, input service.CreateDestructionInput) (*models.Request, error)
	Transition(ctx context.Context, requestID id.RequestID, transition id.Transition, input service.TransitionInput) (*models.Request, error)
	GetRequest(ctx context.Context, requestID id.RequestID) (*models.Request, error)
	ListRequests(ctx context.Context, options service.ListOptions) ([]*models.Request, error)
	GetCrate(ctx context.Context, crateID id.CrateID) (*models.Crate, error)
	ListCrates(ctx context.Context) ([]*models.Crate, error)
	ListSendBacks(ctx context.Context, requestID id.RequestID) ([]*models.SendBack, error)
	AuditTrail(ctx context.Context, requestID id.RequestID) ([]audit.Record, error)
}

type Handler struct {
	workflow Service
	logger   *slog.Logger
}

func New(workflow Service, logger *slog.Logger) *Handler {
	return &Handler{workflow: workflow, logger: logger}
}

// transitionRoutes maps URL path segments onto transitions. One handler
// serves them all; the capability table differentiates.
var transitionRoutes = map[string]id.Transition{
	"submit":              id.TransitionSubmit,
	"approve":             id.TransitionApprove,
	"reject":              id.TransitionReject,
	"send-back":           id.TransitionSendBack,
	"allocate":            id.TransitionAllocateStorage,
	"issue":               id.TransitionIssue,
	"return":              id.TransitionReturnDocs,
	"complete":            id.TransitionComplete,
	"confirm-destruction": id.TransitionConfirmDestruction,
}

// Register mounts the workflow routes. Authentication middleware is applied
// by the caller.
func (h *Handler) Register(r chi.Router) {
	r.Route("/requests", func(r chi.Router) {
		r.Post("/storage", h.handleCreateStorage)
		r.Post("/withdrawal", h.handleCreateWithdrawal)
		r.Post("/destruction", h.handleCreateDestruction)
		r.Get("/", h.handleListRequests)

		r.Route("/{requestID}", func(r chi.Router) {
			r.Get("/", h.handleGetRequest)
			r.Get("/send-backs", h.handleListSendBacks)
			r.Get("/audit", h.handleAuditTrail)
			for segment := range transitionRoutes {
				r.Post("/"+segment, h.handleTransition)
			}
		})
	})
	r.Route("/crates", func(r chi.Router) {
		r.Get("/", h.handleListCrates)
		r.Get("/{crateID}", h.handleGetCrate)
	})
}

func (h *Handler) handleCreateStorage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, ok := httputil.DecodeAndPrepare[CreateStorageRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	request, err := h.workflow.CreateStorage(ctx, service.CreateStorageInput{
		Purpose:   body.Purpose,
		ToCentral: body.ToCentral,
	})
	if err != nil {
		h.writeServiceError(w, r, "create storage request", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, request)
}

func (h *Handler) handleCreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, ok := httputil.DecodeAndPrepare[CreateWithdrawalRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	request, err := h.workflow.CreateWithdrawal(ctx, service.CreateWithdrawalInput{
		CrateID:            body.parsedCrateID,
		Purpose:            body.Purpose,
		ExpectedReturnDate: body.ExpectedReturnDate,
	})
	if err != nil {
		h.writeServiceError(w, r, "create withdrawal request", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, request)
}

func (h *Handler) handleCreateDestruction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, ok := httputil.DecodeAndPrepare[CreateDestructionRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	request, err := h.workflow.CreateDestruction(ctx, service.CreateDestructionInput{
		CrateID: body.parsedCrateID,
		Purpose: body.Purpose,
	})
	if err != nil {
		h.writeServiceError(w, r, "create destruction request", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, request)
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	requestID, err := id.ParseRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	segment := lastSegment(r.URL.Path)
	transition, ok := transitionRoutes[segment]
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "unknown transition"))
		return
	}

	body, ok := httputil.DecodeAndPrepare[TransitionRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	request, err := h.workflow.Transition(ctx, requestID, transition, body.toInput())
	if err != nil {
		h.writeServiceError(w, r, transition.String(), err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, request)
}

func (h *Handler) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	requestID, err := id.ParseRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	request, err := h.workflow.GetRequest(r.Context(), requestID)
	if err != nil {
		h.writeServiceError(w, r, "get request", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, request)
}

func (h *Handler) handleListRequests(w http.ResponseWriter, r *http.Request) {
	options := service.ListOptions{}
	if raw := r.URL.Query().Get("type"); raw != "" {
		requestType, err := id.ParseRequestType(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		options.Type = &requestType
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status, err := id.ParseRequestStatus(strings.TrimSpace(part))
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			options.Statuses = append(options.Statuses, status)
		}
	}
	if raw := r.URL.Query().Get("unit_id"); raw != "" {
		unitID, err := id.ParseUnitID(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		options.UnitID = &unitID
	}

	requests, err := h.workflow.ListRequests(r.Context(), options)
	if err != nil {
		h.writeServiceError(w, r, "list requests", err)
		return
	}
	if requests == nil {
		requests = []*models.Request{}
	}
	httputil.WriteJSON(w, http.StatusOK, ListRequestsResponse{Requests: requests})
}

func (h *Handler) handleGetCrate(w http.ResponseWriter, r *http.Request) {
	crateID, err := id.ParseCrateID(chi.URLParam(r, "crateID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	crate, err := h.workflow.GetCrate(r.Context(), crateID)
	if err != nil {
		h.writeServiceError(w, r, "get crate", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, crate)
}

func (h *Handler) handleListCrates(w http.ResponseWriter, r *http.Request) {
	crates, err := h.workflow.ListCrates(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "list crates", err)
		return
	}
	if crates == nil {
		crates = []*models.Crate{}
	}
	httputil.WriteJSON(w, http.StatusOK, ListCratesResponse{Crates: crates})
}

func (h *Handler) handleListSendBacks(w http.ResponseWriter, r *http.Request) {
	requestID, err := id.ParseRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	sendBacks, err := h.workflow.ListSendBacks(r.Context(), requestID)
	if err != nil {
		h.writeServiceError(w, r, "list send backs", err)
		return
	}
	if sendBacks == nil {
		sendBacks = []*models.SendBack{}
	}
	httputil.WriteJSON(w, http.StatusOK, ListSendBacksResponse{SendBacks: sendBacks})
}

func (h *Handler) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	requestID, err := id.ParseRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	records, err := h.workflow.AuditTrail(r.Context(), requestID)
	if err != nil {
		h.writeServiceError(w, r, "audit trail", err)
		return
	}
	if records == nil {
		records = []audit.Record{}
	}
	httputil.WriteJSON(w, http.StatusOK, AuditTrailResponse{Records: records})
}

// writeServiceError logs server-side failures and lets coded errors pass to
// the client untouched.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	ctx := r.Context()
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "workflow operation failed",
			"operation", operation,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}

// lastSegment returns the final path element, the transition name on
// transition routes.
func lastSegment(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}
