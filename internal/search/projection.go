package search

import (
	"strings"
	"time"

	"github.com/ledgerline/ledgerline/internal/documents"
)

// Projection is the flattened, stable search record for a document. It is
// what the index stores and what queries return; the full document stays in
// postgres.
type Projection struct {
	ID         int64             `json:"id"`
	TenantID   int64             `json:"tenant_id"`
	Kind       string            `json:"kind"`
	Number     string            `json:"number"`
	CustomerID int64             `json:"customer_id"`
	Currency   string            `json:"currency"`
	Status     string            `json:"status"`
	Name       string            `json:"name,omitempty"`
	Notes      string            `json:"notes,omitempty"`
	Total      int64             `json:"total"`
	Balance    int64             `json:"balance"`
	Date       time.Time         `json:"date"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Project flattens a document into its search record.
func Project(doc *documents.Document) Projection {
	p := Projection{
		ID:         doc.ID,
		TenantID:   doc.TenantID,
		Kind:       string(doc.Kind),
		Number:     doc.Number,
		CustomerID: doc.CustomerID,
		Currency:   doc.Currency,
		Status:     string(doc.Status()),
		Name:       doc.Name,
		Notes:      doc.Notes,
		Total:      doc.Total,
		Balance:    doc.Balance,
		Date:       doc.Date,
		UpdatedAt:  doc.UpdatedAt,
	}
	if len(doc.Metadata) > 0 {
		p.Metadata = make(map[string]string, len(doc.Metadata))
		for k, v := range doc.Metadata {
			p.Metadata[k] = v
		}
	}
	return p
}

// Matches reports whether the projection contains the term in any of its
// searchable text fields. Matching is case-insensitive substring.
func (p Projection) Matches(term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	for _, field := range []string{p.Number, p.Name, p.Notes} {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	for _, v := range p.Metadata {
		if strings.Contains(strings.ToLower(v), term) {
			return true
		}
	}
	return false
}
