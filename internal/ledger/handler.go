package ledger

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

// AdjustRequest applies a manual balance adjustment.
type AdjustRequest struct {
	SubjectType string  `json:"subject_type" validate:"required,oneof=stock cod_cash"`
	SubjectID   string  `json:"subject_id" validate:"required,max=100"`
	Action      Action  `json:"action" validate:"required"`
	Delta       float64 `json:"delta" validate:"required"`
	Note        string  `json:"note,omitempty" validate:"omitempty,max=500"`
	RefKey      string  `json:"ref_key,omitempty" validate:"omitempty,max=200"`
}

// Handler exposes ledger operations over HTTP.
type Handler struct {
	service  *Service
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler constructs the ledger handler.
func NewHandler(service *Service, validate *validator.Validate, logger *slog.Logger) *Handler {
	return &Handler{service: service, validate: validate, logger: logger}
}

// MountRoutes registers ledger endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/ledger", func(gr chi.Router) {
		gr.Post("/adjust", h.handleAdjust)
		gr.Get("/{subjectType}/{subjectID}/entries", h.handleEntries)
		gr.Get("/{subjectType}/{subjectID}/balance", h.handleBalance)
		gr.Get("/{subjectType}/{subjectID}/replay", h.handleReplay)
		gr.Get("/{subjectType}/integrity", h.handleIntegrity)
	})
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	var req AdjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if actor.ID == 0 {
		httpx.RespondError(w, fmt.Errorf("%w: actor required", httpx.ErrValidation))
		return
	}
	entry, err := h.service.Append(r.Context(), AppendInput{
		SubjectType: req.SubjectType,
		SubjectID:   req.SubjectID,
		Action:      req.Action,
		Delta:       req.Delta,
		ActorID:     actor.ID,
		Note:        req.Note,
		RefKey:      req.RefKey,
	})
	if err != nil {
		h.respondError(w, "ledger adjust", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleEntries(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.service.Entries(r.Context(),
		chi.URLParam(r, "subjectType"), chi.URLParam(r, "subjectID"), limit)
	if err != nil {
		h.respondError(w, "ledger entries", err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	subjectType := chi.URLParam(r, "subjectType")
	subjectID := chi.URLParam(r, "subjectID")
	balance, err := h.service.CurrentBalance(r.Context(), subjectType, subjectID)
	if err != nil {
		h.respondError(w, "ledger balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"subject_type": subjectType,
		"subject_id":   subjectID,
		"balance":      balance,
	})
}

func (h *Handler) handleReplay(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Replay(r.Context(),
		chi.URLParam(r, "subjectType"), chi.URLParam(r, "subjectID"))
	if err != nil {
		h.respondError(w, "ledger replay", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"result":  result,
		"in_sync": result.InSync(),
	})
}

func (h *Handler) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	drifted, err := h.service.ScanSubjects(r.Context(), chi.URLParam(r, "subjectType"))
	if err != nil {
		h.respondError(w, "ledger integrity scan", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"drifted": drifted,
		"clean":   len(drifted) == 0,
	})
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrBalanceNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrNotFound, err))
	case errors.Is(err, ErrDuplicateRef):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrDuplicate, err))
	case errors.Is(err, ErrNegativeBalance), errors.Is(err, ErrInvalidDelta), errors.Is(err, ErrInvalidAction):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
	default:
		h.logger.Error(op+" failed", "error", err)
		httpx.RespondError(w, err)
	}
}
