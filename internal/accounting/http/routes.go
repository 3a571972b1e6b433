package accountinghttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

// MountRoutes registers report endpoints onto the router. Exports are rate
// limited; the rollups behind them are the most expensive queries the app
// runs.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(10, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)

	r.Route("/reports", func(gr chi.Router) {
		gr.Use(limiter)
		gr.Get("/sales", h.handleSales)
		gr.Get("/tax", h.handleTax)
		gr.Get("/cod", h.handleCODExposure)
		gr.Get("/profit", h.handleProfit)
		gr.Get("/collection", h.handleCollection)
		gr.Get("/trend", h.handleTrend)
		gr.Post("/cache/invalidate", h.handleInvalidate)
	})
}
