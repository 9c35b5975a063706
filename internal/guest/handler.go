package guest

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/billfold/billfold/internal/platform/httpx"
)

// Handler exposes the unauthenticated guest routes.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers guest routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/invoices/{urlKey}", h.invoice)
	r.Get("/quotes/{urlKey}", h.quote)
	r.Post("/quotes/{urlKey}/approve", h.approveQuote)
	r.Post("/quotes/{urlKey}/reject", h.rejectQuote)
}

func (h *Handler) invoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.service.Invoice(r.Context(), chi.URLParam(r, "urlKey"), r.URL.Query().Get("password"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": inv})
}

func (h *Handler) quote(w http.ResponseWriter, r *http.Request) {
	q, err := h.service.Quote(r.Context(), chi.URLParam(r, "urlKey"), r.URL.Query().Get("password"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": q})
}

func (h *Handler) approveQuote(w http.ResponseWriter, r *http.Request) {
	q, err := h.service.ApproveQuote(r.Context(), chi.URLParam(r, "urlKey"), r.URL.Query().Get("password"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": q})
}

func (h *Handler) rejectQuote(w http.ResponseWriter, r *http.Request) {
	q, err := h.service.RejectQuote(r.Context(), chi.URLParam(r, "urlKey"), r.URL.Query().Get("password"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": q})
}
