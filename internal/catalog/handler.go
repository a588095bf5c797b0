package catalog

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/platform/httpx"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// Handler serves the catalog item endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers the catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Patch("/{id}", h.rename)
	r.Delete("/{id}", h.archive)
}

type createItemRequest struct {
	ID       string          `json:"id" validate:"required"`
	Type     string          `json:"type"`
	Name     string          `json:"name" validate:"required"`
	Currency string          `json:"currency" validate:"required,len=3"`
	UnitCost decimal.Decimal `json:"unit_cost"`
	Taxable  *bool           `json:"taxable"`
}

type renameItemRequest struct {
	Name string `json:"name" validate:"required"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context(), shared.TenantFromContext(r.Context()))
	if err != nil {
		h.logger.Error("list catalog items failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []Item{}
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	item, err := h.service.Get(r.Context(), shared.TenantFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	item := Item{
		ID:       req.ID,
		TenantID: shared.TenantFromContext(r.Context()),
		Type:     req.Type,
		Name:     req.Name,
		Currency: req.Currency,
		UnitCost: req.UnitCost,
		Taxable:  true,
	}
	if req.Taxable != nil {
		item.Taxable = *req.Taxable
	}
	created, err := h.service.Create(r.Context(), item)
	if err != nil {
		h.logger.Error("create catalog item failed", "id", req.ID, "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) rename(w http.ResponseWriter, r *http.Request) {
	var req renameItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.service.Rename(r.Context(), shared.TenantFromContext(r.Context()), id, req.Name); err != nil {
		h.logger.Error("rename catalog item failed", "id", id, "error", err)
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) archive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.Delete(r.Context(), shared.TenantFromContext(r.Context()), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
