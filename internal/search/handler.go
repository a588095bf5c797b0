package search

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ledgerline/ledgerline/internal/platform/httpx"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// Handler serves the document search endpoint.
type Handler struct {
	logger  *slog.Logger
	indexer *Indexer
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, indexer *Indexer) *Handler {
	return &Handler{logger: logger, indexer: indexer}
}

// MountRoutes registers the search routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.search)
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("q")
	results, err := h.indexer.Search(r.Context(), shared.TenantFromContext(r.Context()), term)
	if err != nil {
		h.logger.Error("search failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"query":   term,
		"results": results,
	})
}
