package invoices

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/kirana-commerce/kirana-commerce/internal/platform/httpx"
	"github.com/kirana-commerce/kirana-commerce/internal/shared"
)

// Handler exposes the invoice register over HTTP.
type Handler struct {
	service  *Service
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler constructs the invoice handler.
func NewHandler(service *Service, validate *validator.Validate, logger *slog.Logger) *Handler {
	return &Handler{service: service, validate: validate, logger: logger}
}

// MountRoutes registers invoice endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/invoices", func(gr chi.Router) {
		gr.Get("/", h.handleList)
		gr.Post("/proforma", h.handleManualProforma)
		gr.Get("/{id}", h.handleGet)
		gr.Post("/{id}/void", h.handleVoid)
	})
	r.Post("/orders/{id}/proforma", h.handleRegenerateProforma)
	r.Post("/orders/{id}/final-invoice", h.handleEnsureFinal)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	req, err := parseListRequest(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	resp, err := h.service.List(r.Context(), req)
	if err != nil {
		h.respondError(w, "list invoices", err)
		return
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleManualProforma(w http.ResponseWriter, r *http.Request) {
	var req ManualProformaRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor := shared.ActorFromContext(r.Context())
	inv, err := h.service.CreateManualProforma(r.Context(), actor, req)
	if err != nil {
		h.respondError(w, "manual proforma", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) handleRegenerateProforma(w http.ResponseWriter, r *http.Request) {
	orderID, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	number, err := h.service.IssueProforma(r.Context(), orderID, actor.ID)
	if err != nil {
		h.respondError(w, "regenerate proforma", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]string{"invoice_number": number})
}

func (h *Handler) handleEnsureFinal(w http.ResponseWriter, r *http.Request) {
	orderID, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	number, err := h.service.EnsureFinal(r.Context(), orderID, actor.ID)
	if err != nil {
		h.respondError(w, "ensure final invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"invoice_number": number})
}

func (h *Handler) handleVoid(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req VoidRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor := shared.ActorFromContext(r.Context())
	inv, err := h.service.Void(r.Context(), actor, id, req)
	if err != nil {
		h.respondError(w, "void invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrOrderNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrNotFound, err))
	case errors.Is(err, ErrFinalExists), errors.Is(err, ErrAlreadyVoided):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrConflict, err))
	case errors.Is(err, ErrNotDelivered),
		errors.Is(err, ErrEmptyLines),
		errors.Is(err, shared.ErrActorRequired):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
	case errors.Is(err, ErrTotalsMismatch):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrIntegrity, err))
	default:
		h.logger.Error(op+" failed", "error", err)
		httpx.RespondError(w, err)
	}
}

func parseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id", httpx.ErrValidation)
	}
	return id, nil
}

func parseListRequest(r *http.Request) (ListRequest, error) {
	q := r.URL.Query()
	var req ListRequest

	if raw := q.Get("type"); raw != "" {
		t := InvoiceType(raw)
		if !t.IsValid() {
			return ListRequest{}, fmt.Errorf("%w: unknown invoice type %s", httpx.ErrValidation, raw)
		}
		req.InvoiceType = &t
	}
	if raw := q.Get("order_id"); raw != "" {
		orderID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || orderID <= 0 {
			return ListRequest{}, fmt.Errorf("%w: invalid order_id", httpx.ErrValidation)
		}
		req.OrderID = &orderID
	}
	if raw := q.Get("from"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return ListRequest{}, fmt.Errorf("%w: invalid from date", httpx.ErrValidation)
		}
		req.DateFrom = &parsed
	}
	if raw := q.Get("to"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return ListRequest{}, fmt.Errorf("%w: invalid to date", httpx.ErrValidation)
		}
		end := parsed.AddDate(0, 0, 1)
		req.DateTo = &end
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return ListRequest{}, fmt.Errorf("%w: invalid limit", httpx.ErrValidation)
		}
		req.Limit = limit
	}
	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return ListRequest{}, fmt.Errorf("%w: invalid offset", httpx.ErrValidation)
		}
		req.Offset = offset
	}
	return req, nil
}
