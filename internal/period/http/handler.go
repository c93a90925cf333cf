package periodhttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/labdesk/labdesk/internal/period"
	"github.com/labdesk/labdesk/internal/platform/httpx"
	"github.com/labdesk/labdesk/internal/shared"
)

type periodService interface {
	ListPeriods(ctx context.Context) ([]period.Period, error)
	GetPeriod(ctx context.Context, id string) (period.Period, error)
	Roster(ctx context.Context, periodID string) ([]period.MemberPeriod, error)
	CreatePeriod(ctx context.Context, actor string, in period.CreatePeriodInput) (period.Period, error)
	Activate(ctx context.Context, actor, id string) (period.Period, error)
	Close(ctx context.Context, actor, id string, in period.ClosePeriodInput) (period.CloseResult, error)
	Delete(ctx context.Context, actor, id string) error
	Enroll(ctx context.Context, actor, periodID string, in period.EnrollInput) error
}

var errorMappings = []httpx.Mapping{
	{Err: period.ErrNotFound, Class: httpx.ErrNotFound},
	{Err: period.ErrDuplicateCode, Class: httpx.ErrDuplicate},
	{Err: period.ErrAlreadyEnrolled, Class: httpx.ErrDuplicate},
	{Err: period.ErrInvalidInput, Class: httpx.ErrValidation},
	{Err: period.ErrDatesRequired, Class: httpx.ErrValidation},
	{Err: period.ErrDateRange, Class: httpx.ErrValidation},
	{Err: period.ErrSamePeriod, Class: httpx.ErrValidation},
	{Err: period.ErrUnknownMember, Class: httpx.ErrValidation},
	{Err: period.ErrArchived, Class: httpx.ErrForbidden},
	{Err: period.ErrNotActive, Class: httpx.ErrConflict},
	{Err: period.ErrAlreadyActive, Class: httpx.ErrConflict},
	{Err: period.ErrNotArchived, Class: httpx.ErrConflict},
	{Err: period.ErrSuccessorNotPending, Class: httpx.ErrConflict},
	{Err: period.ErrSuccessorNotEmpty, Class: httpx.ErrConflict},
	{Err: period.ErrTransitionLocked, Class: httpx.ErrConflict},
	{Err: shared.ErrUnauthorized, Class: httpx.ErrUnauthorized},
}

// Handler exposes the period lifecycle as a JSON API.
type Handler struct {
	logger       *slog.Logger
	service      periodService
	requireAdmin func(http.Handler) http.Handler
}

// NewHandler constructs a period HTTP handler. requireAdmin guards every
// mutating route; nil leaves them open.
func NewHandler(logger *slog.Logger, service periodService, requireAdmin func(http.Handler) http.Handler) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if requireAdmin == nil {
		requireAdmin = func(next http.Handler) http.Handler { return next }
	}
	return &Handler{logger: logger, service: service, requireAdmin: requireAdmin}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/periods", func(r chi.Router) {
		r.Get("/", h.listPeriods)
		r.Get("/{id}", h.getPeriod)
		r.Get("/{id}/members", h.listMembers)
		r.Group(func(r chi.Router) {
			r.Use(h.requireAdmin)
			r.Post("/", h.createPeriod)
			r.Post("/{id}/activate", h.activate)
			r.Post("/{id}/close", h.closePeriod)
			r.Post("/{id}/members", h.enroll)
			r.Delete("/{id}", h.deletePeriod)
		})
	})
}

func (h *Handler) listPeriods(w http.ResponseWriter, r *http.Request) {
	periods, err := h.service.ListPeriods(r.Context())
	if err != nil {
		h.fail(w, "list periods", err)
		return
	}
	httpx.JSON(w, http.StatusOK, periods)
}

func (h *Handler) getPeriod(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GetPeriod(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get period", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) listMembers(w http.ResponseWriter, r *http.Request) {
	roster, err := h.service.Roster(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "list period members", err)
		return
	}
	httpx.JSON(w, http.StatusOK, roster)
}

func (h *Handler) createPeriod(w http.ResponseWriter, r *http.Request) {
	var in period.CreatePeriodInput
	if !h.decode(w, r, &in) {
		return
	}
	created, err := h.service.CreatePeriod(r.Context(), shared.ActorFromContext(r.Context()), in)
	if err != nil {
		h.fail(w, "create period", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) activate(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Activate(r.Context(), shared.ActorFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "activate period", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) closePeriod(w http.ResponseWriter, r *http.Request) {
	var in period.ClosePeriodInput
	if !h.decode(w, r, &in) {
		return
	}
	result, err := h.service.Close(r.Context(), shared.ActorFromContext(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		h.fail(w, "close period", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) enroll(w http.ResponseWriter, r *http.Request) {
	var in period.EnrollInput
	if !h.decode(w, r, &in) {
		return
	}
	if err := h.service.Enroll(r.Context(), shared.ActorFromContext(r.Context()), chi.URLParam(r, "id"), in); err != nil {
		h.fail(w, "enroll member", err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) deletePeriod(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), shared.ActorFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.fail(w, "delete period", err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	class := httpx.Classify(err, errorMappings...)
	if class == err && !errors.Is(err, context.Canceled) {
		h.logger.Error(op, slog.Any("error", err))
	} else {
		h.logger.Warn(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err, errorMappings...)
}
