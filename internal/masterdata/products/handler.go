package products

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/kirana-commerce/kirana-commerce/internal/platform/httpx"
	"github.com/kirana-commerce/kirana-commerce/internal/shared"
)

type productRequest struct {
	Code           string   `json:"code" validate:"required,max=50"`
	Name           string   `json:"name" validate:"required,max=200"`
	Price          float64  `json:"price" validate:"gte=0"`
	CostPrice      float64  `json:"cost_price" validate:"gte=0"`
	GSTRatePercent *float64 `json:"gst_rate_percent,omitempty" validate:"omitempty,gte=0,lte=100"`
	IsActive       bool     `json:"is_active"`
}

type Handler struct {
	service  *Service
	validate *validator.Validate
	logger   *slog.Logger
}

func NewHandler(service *Service, validate *validator.Validate, logger *slog.Logger) *Handler {
	return &Handler{service: service, validate: validate, logger: logger}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/products", func(gr chi.Router) {
		gr.Get("/", h.handleList)
		gr.Post("/", h.handleCreate)
		gr.Get("/{id}", h.handleGet)
		gr.Put("/{id}", h.handleUpdate)
		gr.Delete("/{id}", h.handleDeactivate)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := ListFilters{Search: q.Get("search")}
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	filters.Limit, _ = strconv.Atoi(q.Get("limit"))
	if raw := q.Get("is_active"); raw != "" {
		active := raw == "true"
		filters.IsActive = &active
	}
	list, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.respondError(w, "list products", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"products": list, "total": total})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	p, err := h.service.Create(r.Context(), Product{
		Code:           req.Code,
		Name:           req.Name,
		Price:          req.Price,
		CostPrice:      req.CostPrice,
		GSTRatePercent: req.GSTRatePercent,
		IsActive:       req.IsActive,
	})
	if err != nil {
		h.respondError(w, "create product", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	var req productRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	err := h.service.Update(r.Context(), id, Product{
		Code:           req.Code,
		Name:           req.Name,
		Price:          req.Price,
		CostPrice:      req.CostPrice,
		GSTRatePercent: req.GSTRatePercent,
		IsActive:       req.IsActive,
	})
	if err != nil {
		h.respondError(w, "update product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err := h.service.Deactivate(r.Context(), id); err != nil {
		h.respondError(w, "deactivate product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, shared.ErrNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
		return
	}
	h.logger.Error(op+" failed", "error", err)
	httpx.RespondError(w, err)
}
