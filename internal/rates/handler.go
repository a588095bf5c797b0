package rates

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/platform/httpx"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// Handler serves the rate masterdata endpoints.
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

// MountRoutes registers the rate routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Patch("/{id}", h.update)
	r.Delete("/{id}", h.archive)
}

type rateRequest struct {
	ID        string          `json:"id" validate:"required"`
	Kind      Kind            `json:"kind" validate:"required,oneof=discount tax shipping"`
	Name      string          `json:"name" validate:"required"`
	Currency  string          `json:"currency" validate:"omitempty,len=3"`
	IsPercent bool            `json:"is_percent"`
	Value     decimal.Decimal `json:"value"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	kind := Kind(r.URL.Query().Get("kind"))
	rates, err := h.service.List(r.Context(), shared.TenantFromContext(r.Context()), kind)
	if err != nil {
		h.logger.Error("list rates failed", "kind", kind, "error", err)
		httpx.RespondError(w, err)
		return
	}
	if rates == nil {
		rates = []Rate{}
	}
	httpx.JSON(w, http.StatusOK, rates)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	rate, err := h.service.Get(r.Context(), shared.TenantFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rate)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req rateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	rate, err := h.service.Create(r.Context(), Rate{
		ID:        req.ID,
		TenantID:  shared.TenantFromContext(r.Context()),
		Kind:      req.Kind,
		Name:      req.Name,
		Currency:  req.Currency,
		IsPercent: req.IsPercent,
		Value:     req.Value,
	})
	if err != nil {
		h.logger.Error("create rate failed", "id", req.ID, "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rate)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req rateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	req.ID = chi.URLParam(r, "id")
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	rate := Rate{
		ID:        req.ID,
		TenantID:  shared.TenantFromContext(r.Context()),
		Kind:      req.Kind,
		Name:      req.Name,
		Currency:  req.Currency,
		IsPercent: req.IsPercent,
		Value:     req.Value,
	}
	if err := h.service.Update(r.Context(), rate); err != nil {
		h.logger.Error("update rate failed", "id", req.ID, "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rate)
}

func (h *Handler) archive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.Archive(r.Context(), shared.TenantFromContext(r.Context()), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
