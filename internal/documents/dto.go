package documents

import (
	"time"

	"github.com/ledgerline/ledgerline/internal/rates"
)

type createDocumentRequest struct {
	CustomerID int64             `json:"customer_id" validate:"required,gt=0"`
	Currency   string            `json:"currency" validate:"omitempty,len=3"`
	Number     string            `json:"number" validate:"omitempty,max=64"`
	Date       *time.Time        `json:"date"`
	Name       string            `json:"name" validate:"max=255"`
	Notes      string            `json:"notes"`
	Draft      *bool             `json:"draft"`
	Items      []LineItemInput   `json:"items"`
	Discounts  []rates.Input     `json:"discounts"`
	Taxes      []rates.Input     `json:"taxes"`
	Shipping   []rates.Input     `json:"shipping"`
	Metadata   map[string]string `json:"metadata"`
}

func (req createDocumentRequest) toInput(kind Kind) CreateDocumentInput {
	draft := true
	if req.Draft != nil {
		draft = *req.Draft
	}
	return CreateDocumentInput{
		Kind:       kind,
		CustomerID: req.CustomerID,
		Currency:   req.Currency,
		Number:     req.Number,
		Date:       req.Date,
		Name:       req.Name,
		Notes:      req.Notes,
		Draft:      draft,
		Items:      req.Items,
		Discounts:  req.Discounts,
		Taxes:      req.Taxes,
		Shipping:   req.Shipping,
		Metadata:   req.Metadata,
	}
}

type updateDocumentRequest struct {
	Currency  *string           `json:"currency" validate:"omitempty,len=3"`
	Number    *string           `json:"number" validate:"omitempty,max=64"`
	Date      *time.Time        `json:"date"`
	Name      *string           `json:"name" validate:"omitempty,max=255"`
	Notes     *string           `json:"notes"`
	Sent      *bool             `json:"sent"`
	Chase     *bool             `json:"chase"`
	Items     []LineItemInput   `json:"items"`
	Discounts []rates.Input     `json:"discounts"`
	Taxes     []rates.Input     `json:"taxes"`
	Shipping  []rates.Input     `json:"shipping"`
	Metadata  map[string]string `json:"metadata"`
}

func (req updateDocumentRequest) toInput() UpdateDocumentInput {
	return UpdateDocumentInput{
		Currency:  req.Currency,
		Number:    req.Number,
		Date:      req.Date,
		Name:      req.Name,
		Notes:     req.Notes,
		Sent:      req.Sent,
		Chase:     req.Chase,
		Items:     req.Items,
		Discounts: req.Discounts,
		Taxes:     req.Taxes,
		Shipping:  req.Shipping,
		Metadata:  req.Metadata,
	}
}

type applyTransactionRequest struct {
	Type       TransactionType   `json:"type" validate:"required,oneof=payment refund adjustment credit_note deposit"`
	Status     TransactionStatus `json:"status" validate:"omitempty,oneof=pending succeeded failed"`
	Amount     int64             `json:"amount" validate:"required,gt=0"`
	Date       *time.Time        `json:"date"`
	GatewayRef string            `json:"gateway_ref" validate:"max=255"`
}

type paymentPlanRequest struct {
	Installments []installmentRequest `json:"installments" validate:"required,min=1,dive"`
}

type installmentRequest struct {
	Date   time.Time `json:"date" validate:"required"`
	Amount int64     `json:"amount" validate:"required,gt=0"`
}

type documentListResponse struct {
	Documents []Document `json:"documents"`
	Total     int        `json:"total"`
	Page      int        `json:"page"`
	PerPage   int        `json:"per_page"`
}
