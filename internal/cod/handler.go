package cod

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/kirana-commerce/kirana-commerce/internal/platform/httpx"
	"github.com/kirana-commerce/kirana-commerce/internal/shared"
)

// CollectionRequest confirms cash collection by the courier.
type CollectionRequest struct {
	Courier string `json:"courier,omitempty" validate:"omitempty,max=200"`
}

// NotReceivedRequest flags missing cash.
type NotReceivedRequest struct {
	Reason string `json:"reason" validate:"required,min=5,max=500"`
}

// Handler exposes the settlement flow over HTTP.
type Handler struct {
	service  *Service
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler constructs the settlement handler.
func NewHandler(service *Service, validate *validator.Validate, logger *slog.Logger) *Handler {
	return &Handler{service: service, validate: validate, logger: logger}
}

// MountRoutes registers settlement endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/cod", func(gr chi.Router) {
		gr.Get("/outstanding", h.handleOutstanding)
		gr.Get("/{id}", h.handleStatus)
		gr.Post("/{id}/collected", h.handleCollected)
		gr.Post("/{id}/remitted", h.handleRemitted)
		gr.Post("/{id}/settled", h.handleSettled)
		gr.Post("/{id}/not-received", h.handleNotReceived)
	})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	view, err := h.service.Status(r.Context(), id)
	if err != nil {
		h.respondError(w, "cod status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) handleOutstanding(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	list, total, err := h.service.ListOutstanding(r.Context(), limit, offset)
	if err != nil {
		h.respondError(w, "cod outstanding", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"orders": list,
		"total":  total,
	})
}

func (h *Handler) handleCollected(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req CollectionRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
			return
		}
		if err := h.validate.Struct(req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
	}
	actor := shared.ActorFromContext(r.Context())
	view, err := h.service.ConfirmCollection(r.Context(), actor, id, req.Courier)
	if err != nil {
		h.respondError(w, "confirm collection", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) handleRemitted(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	view, err := h.service.ConfirmRemittance(r.Context(), actor, id)
	if err != nil {
		h.respondError(w, "confirm remittance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) handleSettled(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	view, err := h.service.ConfirmSettled(r.Context(), actor, id)
	if err != nil {
		h.respondError(w, "confirm settled", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) handleNotReceived(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req NotReceivedRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor := shared.ActorFromContext(r.Context())
	view, err := h.service.ReportNotReceived(r.Context(), actor, id, req.Reason)
	if err != nil {
		h.respondError(w, "report not received", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrOrderNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrNotFound, err))
	case errors.Is(err, ErrIllegalTransition):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrConflict, err))
	case errors.Is(err, ErrNotCOD), errors.Is(err, shared.ErrActorRequired):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
	default:
		h.logger.Error(op+" failed", "error", err)
		httpx.RespondError(w, err)
	}
}

func parseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid order id", httpx.ErrValidation)
	}
	return id, nil
}
