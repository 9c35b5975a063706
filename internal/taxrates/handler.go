package taxrates

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/billfold/billfold/internal/platform/httpx"
	"github.com/billfold/billfold/internal/shared"
)

// Handler manages tax rate endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers tax rate routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.show)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.remove)
}

type taxRateRequest struct {
	Name      string  `json:"name" validate:"required"`
	Percent   float64 `json:"percent" validate:"gte=0,lte=100"`
	IsDefault bool    `json:"is_default"`
	IsActive  bool    `json:"is_active"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	rates, err := h.service.List(r.Context(), actor.CompanyID)
	if err != nil {
		h.logger.Error("list tax rates", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": rates})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid tax rate id", shared.ErrValidation))
		return
	}
	actor := shared.ActorFromContext(r.Context())
	rate, err := h.service.Get(r.Context(), actor.CompanyID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": rate})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req taxRateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}

	actor := shared.ActorFromContext(r.Context())
	rate, err := h.service.Create(r.Context(), TaxRate{
		CompanyID: actor.CompanyID,
		Name:      req.Name,
		Percent:   req.Percent,
		IsDefault: req.IsDefault,
		IsActive:  req.IsActive,
	})
	if err != nil {
		h.logger.Error("create tax rate", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"data": rate})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid tax rate id", shared.ErrValidation))
		return
	}

	var req taxRateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}

	actor := shared.ActorFromContext(r.Context())
	if err := h.service.Update(r.Context(), TaxRate{
		ID:        id,
		CompanyID: actor.CompanyID,
		Name:      req.Name,
		Percent:   req.Percent,
		IsDefault: req.IsDefault,
		IsActive:  req.IsActive,
	}); err != nil {
		h.logger.Error("update tax rate", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid tax rate id", shared.ErrValidation))
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if err := h.service.Delete(r.Context(), actor.CompanyID, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true})
}
