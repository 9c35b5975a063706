package series

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

// Handler manages number series endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers number series routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.show)
	r.Get("/{id}/preview", h.preview)
	r.Put("/{id}", h.update)
	r.Post("/{id}/default", h.setDefault)
	r.Delete("/{id}", h.remove)
}

type seriesRequest struct {
	Name             string `json:"name" validate:"required"`
	DocumentType     string `json:"document_type" validate:"omitempty,oneof=invoice quotation both"`
	IdentifierFormat string `json:"identifier_format" validate:"required"`
	NextID           int64  `json:"next_id" validate:"gte=0"`
	LeftPad          int    `json:"left_pad" validate:"gte=0,lte=10"`
	IsDefault        bool   `json:"is_default"`
	IsActive         bool   `json:"is_active"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	docType := DocumentType(r.URL.Query().Get("type"))
	out, err := h.service.List(r.Context(), actor.CompanyID, docType)
	if err != nil {
		h.logger.Error("list number series", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": out})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	ns, err := h.service.Get(r.Context(), actor.CompanyID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": ns})
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	number, err := h.service.Preview(r.Context(), actor.CompanyID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": map[string]string{"number": number}})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	req, err := h.decode(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	ns, err := h.service.Create(r.Context(), NumberSeries{
		CompanyID:        actor.CompanyID,
		Name:             req.Name,
		DocumentType:     DocumentType(req.DocumentType),
		IdentifierFormat: req.IdentifierFormat,
		NextID:           req.NextID,
		LeftPad:          req.LeftPad,
		IsDefault:        req.IsDefault,
		IsActive:         req.IsActive,
	})
	if err != nil {
		h.logger.Error("create number series", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"data": ns})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	req, err := h.decode(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if err := h.service.Update(r.Context(), NumberSeries{
		ID:               id,
		CompanyID:        actor.CompanyID,
		Name:             req.Name,
		DocumentType:     DocumentType(req.DocumentType),
		IdentifierFormat: req.IdentifierFormat,
		LeftPad:          req.LeftPad,
		IsDefault:        req.IsDefault,
		IsActive:         req.IsActive,
	}); err != nil {
		h.logger.Error("update number series", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) setDefault(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if err := h.service.SetDefault(r.Context(), actor.CompanyID, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if err := h.service.Delete(r.Context(), actor.CompanyID, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) decode(r *http.Request) (*seriesRequest, error) {
	var req seriesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	if req.DocumentType == "" {
		req.DocumentType = string(DocTypeBoth)
	}
	if err := h.validator.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	return &req, nil
}

func parseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid series id", shared.ErrValidation)
	}
	return id, nil
}
