// Package accountinghttp serves the back-office report endpoints.
package accountinghttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kirana-commerce/kirana-commerce/internal/accounting"
	"github.com/kirana-commerce/kirana-commerce/internal/accounting/export"
	"github.com/kirana-commerce/kirana-commerce/internal/platform/httpx"
)

const requestTimeout = 5 * time.Second

// ReportService defines the report data contract used by the handler.
type ReportService interface {
	Sales(ctx context.Context, from, to time.Time) (accounting.SalesSummary, error)
	Tax(ctx context.Context, from, to time.Time) (accounting.TaxSummary, error)
	CODExposure(ctx context.Context) (accounting.CODExposure, error)
	Profit(ctx context.Context, from, to time.Time) (accounting.ProfitSummary, error)
	Collection(ctx context.Context, from, to time.Time) (accounting.CollectionSummary, error)
	Trend(ctx context.Context, from, to time.Time) ([]accounting.TrendPoint, error)
	Invalidate(ctx context.Context) error
}

// Handler coordinates HTTP requests for accounting reports. Identical
// concurrent report loads collapse into one database round trip through the
// singleflight group.
type Handler struct {
	logger  *slog.Logger
	service ReportService
	group   singleflight.Group
	csvPool sync.Pool
	now     func() time.Time
}

// NewHandler constructs the report handler.
func NewHandler(logger *slog.Logger, service ReportService) *Handler {
	h := &Handler{
		logger:  logger,
		service: service,
		now:     time.Now,
	}
	h.csvPool.New = func() interface{} { return new(bytes.Buffer) }
	return h
}

// WithNow overrides the handler clock for testing.
func (h *Handler) WithNow(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

// parseRange reads from/to query dates, defaulting to the last 30 days. The
// upper bound is exclusive and advanced by a day so "to" behaves inclusively
// for callers passing dates.
func (h *Handler) parseRange(r *http.Request) (time.Time, time.Time, error) {
	now := h.now().UTC().Truncate(24 * time.Hour)
	from := now.AddDate(0, 0, -30)
	to := now.AddDate(0, 0, 1)

	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: invalid from date", httpx.ErrValidation)
		}
		from = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: invalid to date", httpx.ErrValidation)
		}
		to = parsed.AddDate(0, 0, 1)
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: from must be before to", httpx.ErrValidation)
	}
	return from, to, nil
}

func (h *Handler) handleSales(w http.ResponseWriter, r *http.Request) {
	from, to, err := h.parseRange(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	key := fmt.Sprintf("sales:%s:%s", from.Format("2006-01-02"), to.Format("2006-01-02"))
	result, err, _ := h.group.Do(key, func() (interface{}, error) {
		return h.service.Sales(ctx, from, to)
	})
	if err != nil {
		h.serverError(w, "sales report", err)
		return
	}
	summary := result.(accounting.SalesSummary)

	if r.URL.Query().Get("format") == "csv" {
		h.writeCSV(w, "sales.csv", func(buf *bytes.Buffer) error {
			return export.WriteSalesCSV(buf, summary)
		})
		return
	}
	httpx.JSON(w, http.StatusOK, accounting.NewSalesSummaryVM(summary))
}

func (h *Handler) handleTax(w http.ResponseWriter, r *http.Request) {
	from, to, err := h.parseRange(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	key := fmt.Sprintf("tax:%s:%s", from.Format("2006-01-02"), to.Format("2006-01-02"))
	result, err, _ := h.group.Do(key, func() (interface{}, error) {
		return h.service.Tax(ctx, from, to)
	})
	if err != nil {
		h.serverError(w, "tax report", err)
		return
	}
	summary := result.(accounting.TaxSummary)

	if r.URL.Query().Get("format") == "csv" {
		h.writeCSV(w, "gst-summary.csv", func(buf *bytes.Buffer) error {
			return export.WriteTaxCSV(buf, summary)
		})
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) handleCODExposure(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	exposure, err := h.service.CODExposure(ctx)
	if err != nil {
		h.serverError(w, "cod exposure", err)
		return
	}
	httpx.JSON(w, http.StatusOK, accounting.NewCODExposureVM(exposure))
}

func (h *Handler) handleProfit(w http.ResponseWriter, r *http.Request) {
	from, to, err := h.parseRange(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	key := fmt.Sprintf("profit:%s:%s", from.Format("2006-01-02"), to.Format("2006-01-02"))
	result, err, _ := h.group.Do(key, func() (interface{}, error) {
		return h.service.Profit(ctx, from, to)
	})
	if err != nil {
		h.serverError(w, "profit report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, accounting.NewProfitSummaryVM(result.(accounting.ProfitSummary)))
}

func (h *Handler) handleCollection(w http.ResponseWriter, r *http.Request) {
	from, to, err := h.parseRange(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	key := fmt.Sprintf("collection:%s:%s", from.Format("2006-01-02"), to.Format("2006-01-02"))
	result, err, _ := h.group.Do(key, func() (interface{}, error) {
		return h.service.Collection(ctx, from, to)
	})
	if err != nil {
		h.serverError(w, "collection report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, accounting.NewCollectionSummaryVM(result.(accounting.CollectionSummary)))
}

func (h *Handler) handleTrend(w http.ResponseWriter, r *http.Request) {
	from, to, err := h.parseRange(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	key := fmt.Sprintf("trend:%s:%s", from.Format("2006-01-02"), to.Format("2006-01-02"))
	result, err, _ := h.group.Do(key, func() (interface{}, error) {
		return h.service.Trend(ctx, from, to)
	})
	if err != nil {
		h.serverError(w, "trend report", err)
		return
	}
	points := result.([]accounting.TrendPoint)

	if r.URL.Query().Get("format") == "csv" {
		h.writeCSV(w, "sales-trend.csv", func(buf *bytes.Buffer) error {
			return export.WriteTrendCSV(buf, points)
		})
		return
	}
	httpx.JSON(w, http.StatusOK, points)
}

func (h *Handler) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Invalidate(r.Context()); err != nil {
		h.serverError(w, "invalidate report cache", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) writeCSV(w http.ResponseWriter, filename string, write func(*bytes.Buffer) error) {
	buf := h.csvPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer h.csvPool.Put(buf)

	if err := write(buf); err != nil {
		h.serverError(w, "csv export", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) serverError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, accounting.ErrInvalidRange) {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	h.logger.Error(op+" failed", "error", err)
	httpx.RespondError(w, err)
}
