package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/billfold/billfold/internal/clients"
	"github.com/billfold/billfold/internal/guest"
	"github.com/billfold/billfold/internal/invoices"
	"github.com/billfold/billfold/internal/payments"
	"github.com/billfold/billfold/internal/quotes"
	"github.com/billfold/billfold/internal/series"
	"github.com/billfold/billfold/internal/settings"
	"github.com/billfold/billfold/internal/taxrates"
	"github.com/billfold/billfold/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	ClientsHandler  *clients.Handler
	InvoicesHandler *invoices.Handler
	QuotesHandler   *quotes.Handler
	PaymentsHandler *payments.Handler
	TaxRatesHandler *taxrates.Handler
	SeriesHandler   *series.Handler
	SettingsHandler *settings.Handler
	GuestHandler    *guest.Handler
	JobsHandler     *jobs.Handler
}

// NewRouter constructs the chi.Router. Authenticated endpoints live under
// /api behind the actor middleware; guest document access is key-addressed
// and mounts without it.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(ActorRequired(params.Logger))

		r.Route("/clients", params.ClientsHandler.MountRoutes)
		r.Route("/invoices", params.InvoicesHandler.MountRoutes)
		r.Route("/quotes", params.QuotesHandler.MountRoutes)
		r.Route("/payments", params.PaymentsHandler.MountRoutes)
		r.Route("/tax-rates", params.TaxRatesHandler.MountRoutes)
		r.Route("/series", params.SeriesHandler.MountRoutes)
		r.Route("/settings", params.SettingsHandler.MountRoutes)
		if params.JobsHandler != nil {
			r.Route("/jobs", params.JobsHandler.MountRoutes)
		}
	})

	r.Route("/guest", params.GuestHandler.MountRoutes)

	return r
}
