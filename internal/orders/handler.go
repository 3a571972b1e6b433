package orders

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

// Handler exposes order operations over HTTP.
type Handler struct {
	service  *Service
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler constructs the order handler.
func NewHandler(service *Service, validate *validator.Validate, logger *slog.Logger) *Handler {
	return &Handler{service: service, validate: validate, logger: logger}
}

// MountRoutes registers order endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/orders", func(gr chi.Router) {
		gr.Post("/", h.handleCreate)
		gr.Get("/", h.handleList)
		gr.Get("/{id}", h.handleGet)
		gr.Post("/{id}/transition", h.handleTransition)
		gr.Post("/{id}/cancel", h.handleCancel)
		gr.Delete("/{id}", h.handleDelete)
	})
	r.Post("/payments/confirm", h.handleConfirmPayment)
}

// MountStorefrontRoutes registers the storefront-facing subset: checkout
// confirmation and the payment gateway callback.
func (h *Handler) MountStorefrontRoutes(r chi.Router) {
	r.Post("/orders", h.handleCreate)
	r.Post("/payments/confirm", h.handleConfirmPayment)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor := shared.ActorFromContext(r.Context())
	order, err := h.service.Create(r.Context(), actor, req)
	if err != nil {
		h.respondError(w, "create order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	req, err := parseListRequest(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	resp, err := h.service.List(r.Context(), req)
	if err != nil {
		h.respondError(w, "list orders", err)
		return
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req TransitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	actor := shared.ActorFromContext(r.Context())
	order, err := h.service.Transition(r.Context(), actor, id, req)
	if err != nil {
		h.respondError(w, "transition order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req CancelRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor := shared.ActorFromContext(r.Context())
	order, err := h.service.Cancel(r.Context(), actor, id, req)
	if err != nil {
		h.respondError(w, "cancel order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if err := h.service.Delete(r.Context(), actor, id); err != nil {
		h.respondError(w, "delete order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) handleConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var conf PaymentConfirmation
	if err := httpx.DecodeJSON(r, &conf); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(conf); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	order, err := h.service.ConfirmPayment(r.Context(), conf)
	if err != nil {
		h.respondError(w, "confirm payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrNotFound, err))
	case errors.Is(err, ErrIllegalTransition),
		errors.Is(err, ErrCannotCancel),
		errors.Is(err, ErrAlreadyPaid):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrConflict, err))
	case errors.Is(err, ErrEmptyItems),
		errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrShippingDetailsRequired),
		errors.Is(err, ErrUnknownProduct),
		errors.Is(err, ErrPaymentAmountMismatch),
		errors.Is(err, ErrNotOnlineOrder),
		errors.Is(err, shared.ErrActorRequired):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
	case errors.Is(err, ErrAmountMismatch):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrIntegrity, err))
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

func parseListRequest(r *http.Request) (ListRequest, error) {
	q := r.URL.Query()
	var req ListRequest

	if raw := q.Get("status"); raw != "" {
		status := Status(raw)
		if !status.IsValid() {
			return ListRequest{}, fmt.Errorf("%w: unknown status %s", httpx.ErrValidation, raw)
		}
		req.Status = &status
	}
	if raw := q.Get("payment_method"); raw != "" {
		method := PaymentMethod(raw)
		if !method.IsValid() {
			return ListRequest{}, fmt.Errorf("%w: unknown payment method %s", httpx.ErrValidation, raw)
		}
		req.PaymentMethod = &method
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
