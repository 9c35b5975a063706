package settings

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/billfold/billfold/internal/platform/httpx"
	"github.com/billfold/billfold/internal/shared"
)

// Handler manages settings endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers settings routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Put("/{key}", h.set)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	values, err := h.service.All(r.Context(), actor.CompanyID)
	if err != nil {
		h.logger.Error("list settings", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": values})
}

type setSettingRequest struct {
	Value    string `json:"value"`
	Category string `json:"category"`
}

func (h *Handler) set(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		httpx.RespondError(w, fmt.Errorf("%w: setting key required", shared.ErrValidation))
		return
	}

	var req setSettingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}
	if req.Category == "" {
		req.Category = "general"
	}

	actor := shared.ActorFromContext(r.Context())
	setting := Setting{CompanyID: actor.CompanyID, Key: key, Value: req.Value, Category: req.Category}
	if err := h.service.Set(r.Context(), setting); err != nil {
		h.logger.Error("set setting", slog.Any("error", err), slog.String("key", key))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": setting})
}
