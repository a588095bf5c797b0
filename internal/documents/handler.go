package documents

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ledgerline/ledgerline/internal/platform/httpx"
)

// Handler serves the receivable document endpoints.
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

// MountRoutes registers the per-kind document routes.
func (h *Handler) MountRoutes(r chi.Router) {
	mount := func(path string, kind Kind) {
		r.Route(path, func(r chi.Router) {
			r.Get("/", h.list(kind))
			r.Post("/", h.create(kind))
			r.Get("/{id}", h.get(kind))
			r.Patch("/{id}", h.update(kind))
			r.Delete("/{id}", h.remove(kind))
			r.Post("/{id}/issue", h.issue(kind))
			r.Post("/{id}/void", h.void(kind))
			r.Post("/{id}/close", h.close(kind))
			r.Post("/{id}/reopen", h.reopen(kind))
			r.Post("/{id}/bad_debt", h.markBadDebt(kind))
			r.Delete("/{id}/bad_debt", h.clearBadDebt(kind))
			r.Get("/{id}/transactions", h.listTransactions(kind))
			r.Post("/{id}/transactions", h.applyTransaction(kind))
			r.Post("/{id}/client_id", h.refreshClientID(kind))
		})
	}
	mount("/invoices", KindInvoice)
	mount("/credit_notes", KindCreditNote)
	mount("/estimates", KindEstimate)

	r.Get("/invoices/{id}/payment_plan", h.getPaymentPlan)
	r.Post("/invoices/{id}/payment_plan", h.attachPaymentPlan)
	r.Post("/estimates/{id}/invoice", h.convertEstimate)
}

// MountPublicRoutes registers the unauthenticated client-id lookup used by
// hosted document pages.
func (h *Handler) MountPublicRoutes(r chi.Router) {
	r.Get("/documents/{clientID}", h.getByClientID)
}

func (h *Handler) list(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := ListRequest{Kind: kind}
		q := r.URL.Query()
		if cid := q.Get("customer_id"); cid != "" {
			req.CustomerID, _ = strconv.ParseInt(cid, 10, 64)
		}
		if s := q.Get("status"); s != "" {
			req.Status = Status(s)
		}
		req.Page, _ = strconv.Atoi(q.Get("page"))
		req.PerPage, _ = strconv.Atoi(q.Get("per_page"))
		if req.Page < 1 {
			req.Page = 1
		}
		if req.PerPage <= 0 {
			req.PerPage = 25
		}

		docs, total, err := h.service.List(r.Context(), req)
		if err != nil {
			h.logger.Error("list documents failed", "kind", kind, "error", err)
			httpx.RespondError(w, err)
			return
		}
		if docs == nil {
			docs = []Document{}
		}
		httpx.JSON(w, http.StatusOK, documentListResponse{
			Documents: docs,
			Total:     total,
			Page:      req.Page,
			PerPage:   req.PerPage,
		})
	}
}

func (h *Handler) create(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createDocumentRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
			return
		}
		if err := h.validate.Struct(req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}

		doc, _, err := h.service.Create(r.Context(), req.toInput(kind))
		if err != nil {
			h.logger.Error("create document failed", "kind", kind, "error", err)
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, doc)
	}
}

func (h *Handler) get(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.docID(w, r)
		if !ok {
			return
		}
		doc, err := h.service.Get(r.Context(), kind, id)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, doc)
	}
}

func (h *Handler) update(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.docID(w, r)
		if !ok {
			return
		}
		var req updateDocumentRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
			return
		}
		if err := h.validate.Struct(req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}

		doc, _, err := h.service.Update(r.Context(), kind, id, req.toInput())
		if err != nil {
			h.logger.Error("update document failed", "kind", kind, "id", id, "error", err)
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, doc)
	}
}

func (h *Handler) remove(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.docID(w, r)
		if !ok {
			return
		}
		if _, err := h.service.Delete(r.Context(), kind, id); err != nil {
			httpx.RespondError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) issue(kind Kind) http.HandlerFunc {
	return h.lifecycle(kind, "issue", func(r *http.Request, kind Kind, id int64) (*Document, error) {
		doc, _, err := h.service.Issue(r.Context(), kind, id)
		return doc, err
	})
}

func (h *Handler) void(kind Kind) http.HandlerFunc {
	return h.lifecycle(kind, "void", func(r *http.Request, kind Kind, id int64) (*Document, error) {
		doc, _, err := h.service.Void(r.Context(), kind, id)
		return doc, err
	})
}

func (h *Handler) close(kind Kind) http.HandlerFunc {
	return h.lifecycle(kind, "close", func(r *http.Request, kind Kind, id int64) (*Document, error) {
		doc, _, err := h.service.Close(r.Context(), kind, id)
		return doc, err
	})
}

func (h *Handler) reopen(kind Kind) http.HandlerFunc {
	return h.lifecycle(kind, "reopen", func(r *http.Request, kind Kind, id int64) (*Document, error) {
		doc, _, err := h.service.Reopen(r.Context(), kind, id)
		return doc, err
	})
}

func (h *Handler) markBadDebt(kind Kind) http.HandlerFunc {
	return h.lifecycle(kind, "bad debt", func(r *http.Request, kind Kind, id int64) (*Document, error) {
		doc, _, err := h.service.MarkBadDebt(r.Context(), kind, id)
		return doc, err
	})
}

func (h *Handler) clearBadDebt(kind Kind) http.HandlerFunc {
	return h.lifecycle(kind, "clear bad debt", func(r *http.Request, kind Kind, id int64) (*Document, error) {
		doc, _, err := h.service.ClearBadDebt(r.Context(), kind, id)
		return doc, err
	})
}

func (h *Handler) lifecycle(kind Kind, action string, fn func(*http.Request, Kind, int64) (*Document, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.docID(w, r)
		if !ok {
			return
		}
		doc, err := fn(r, kind, id)
		if err != nil {
			h.logger.Error("document transition failed", "kind", kind, "id", id, "action", action, "error", err)
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, doc)
	}
}

func (h *Handler) listTransactions(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.docID(w, r)
		if !ok {
			return
		}
		txns, err := h.service.ListTransactions(r.Context(), kind, id)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		if txns == nil {
			txns = []Transaction{}
		}
		httpx.JSON(w, http.StatusOK, txns)
	}
}

func (h *Handler) applyTransaction(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.docID(w, r)
		if !ok {
			return
		}
		var req applyTransactionRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
			return
		}
		if err := h.validate.Struct(req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}

		txn := Transaction{
			DocumentID: id,
			Kind:       kind,
			Type:       req.Type,
			Status:     req.Status,
			Amount:     req.Amount,
			GatewayRef: req.GatewayRef,
		}
		if req.Status == "" {
			txn.Status = TransactionSucceeded
		}
		if req.Date != nil {
			txn.Date = *req.Date
		}

		doc, _, err := h.service.ApplyTransaction(r.Context(), txn)
		if err != nil {
			h.logger.Error("apply transaction failed", "kind", kind, "id", id, "type", req.Type, "error", err)
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, doc)
	}
}

func (h *Handler) refreshClientID(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.docID(w, r)
		if !ok {
			return
		}
		ttl := 30 * 24 * time.Hour
		if days := r.URL.Query().Get("ttl_days"); days != "" {
			if n, err := strconv.Atoi(days); err == nil && n > 0 {
				ttl = time.Duration(n) * 24 * time.Hour
			}
		}
		doc, err := h.service.RefreshClientID(r.Context(), kind, id, ttl)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{
			"client_id": doc.ClientID,
			"expires":   doc.ClientIDExpires,
		})
	}
}

func (h *Handler) getPaymentPlan(w http.ResponseWriter, r *http.Request) {
	id, ok := h.docID(w, r)
	if !ok {
		return
	}
	plan, err := h.service.GetPaymentPlan(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, plan)
}

func (h *Handler) attachPaymentPlan(w http.ResponseWriter, r *http.Request) {
	id, ok := h.docID(w, r)
	if !ok {
		return
	}
	var req paymentPlanRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	installments := make([]Installment, 0, len(req.Installments))
	for _, in := range req.Installments {
		installments = append(installments, Installment{Date: in.Date, Amount: in.Amount})
	}
	plan, err := h.service.AttachPaymentPlan(r.Context(), id, installments)
	if err != nil {
		h.logger.Error("attach payment plan failed", "invoice_id", id, "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, plan)
}

func (h *Handler) convertEstimate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.docID(w, r)
	if !ok {
		return
	}
	inv, _, err := h.service.ConvertEstimate(r.Context(), id)
	if err != nil {
		h.logger.Error("convert estimate failed", "estimate_id", id, "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) getByClientID(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	doc, err := h.service.GetByClientID(r.Context(), clientID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) docID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid document id")
		return 0, false
	}
	return id, true
}
