package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	accountinghttp "github.com/kirana-commerce/kirana-commerce/internal/accounting/http"
	"github.com/kirana-commerce/kirana-commerce/internal/cod"
	"github.com/kirana-commerce/kirana-commerce/internal/invoices"
	"github.com/kirana-commerce/kirana-commerce/internal/ledger"
	"github.com/kirana-commerce/kirana-commerce/internal/masterdata/products"
	"github.com/kirana-commerce/kirana-commerce/internal/orders"
	"github.com/kirana-commerce/kirana-commerce/internal/shared"
	"github.com/kirana-commerce/kirana-commerce/jobs"
)

// Storefront and admin actors. The storefront service and back-office UI are
// machine callers; human attribution for admin actions arrives once real user
// accounts exist.
var (
	actorStorefront = shared.Actor{ID: 1, Name: "storefront", Role: "storefront"}
	actorAdmin      = shared.Actor{ID: 2, Name: "back-office", Role: "admin"}
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	OrdersHandler     *orders.Handler
	CODHandler        *cod.Handler
	InvoicesHandler   *invoices.Handler
	LedgerHandler     *ledger.Handler
	ProductsHandler   *products.Handler
	AccountingHandler *accountinghttp.Handler
	JobsHandler       *jobs.Handler
}

// NewRouter constructs the chi.Router. The storefront group carries only
// checkout and payment confirmation; everything else is back-office.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Route("/storefront", func(storefront chi.Router) {
			storefront.Use(APIKeyAuth(params.Config.StorefrontAPIKeyHash, actorStorefront, params.Logger))
			params.OrdersHandler.MountStorefrontRoutes(storefront)
		})

		api.Group(func(admin chi.Router) {
			admin.Use(APIKeyAuth(params.Config.AdminAPIKeyHash, actorAdmin, params.Logger))
			params.OrdersHandler.MountRoutes(admin)
			params.CODHandler.MountRoutes(admin)
			params.InvoicesHandler.MountRoutes(admin)
			params.LedgerHandler.MountRoutes(admin)
			params.ProductsHandler.MountRoutes(admin)
			params.AccountingHandler.MountRoutes(admin)
			if params.JobsHandler != nil {
				params.JobsHandler.MountRoutes(admin)
			}
		})
	})

	return r
}
