package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/ledgerline/ledgerline/internal/documents"
	"github.com/ledgerline/ledgerline/internal/search"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskDocumentEvent carries one post-save document event for fan-out.
	TaskDocumentEvent = "document:event"
	// TaskSearchReindex rebuilds a tenant's whole search index.
	TaskSearchReindex = "search:reindex"
)

// DocumentEventPayload is the wire form of a post-save event. Kind and
// DocumentID are lifted out of the event so handlers do not have to dig
// through the snapshot map.
type DocumentEventPayload struct {
	TenantID   int64           `json:"tenant_id"`
	Kind       documents.Kind  `json:"kind"`
	DocumentID int64           `json:"document_id"`
	Event      documents.Event `json:"event"`
}

// SearchReindexPayload names the tenant whose index is rebuilt.
type SearchReindexPayload struct {
	TenantID int64 `json:"tenant_id"`
}

// NewDocumentEventTask constructs an Asynq task for one document event.
func NewDocumentEventTask(payload DocumentEventPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDocumentEvent, data), nil
}

// NewSearchReindexTask constructs a tenant reindex task.
func NewSearchReindexTask(payload SearchReindexPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSearchReindex, data), nil
}

// NewDocumentEventHandler processes TaskDocumentEvent tasks: the search
// projection is refreshed from the authoritative row (or dropped on delete).
func NewDocumentEventHandler(indexer *search.Indexer, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload DocumentEventPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}

		logger.Info("document event",
			"tenant_id", payload.TenantID,
			"kind", payload.Kind,
			"document_id", payload.DocumentID,
			"type", payload.Event.Type,
		)

		if payload.Event.Type == documents.EventDeleted {
			return indexer.Remove(ctx, payload.TenantID, payload.Kind, payload.DocumentID)
		}
		return indexer.Refresh(ctx, payload.TenantID, payload.Kind, payload.DocumentID)
	}
}

// DocumentLister pages through a tenant's documents for reindexing.
type DocumentLister interface {
	List(ctx context.Context, tenantID int64, req documents.ListRequest) ([]documents.Document, int, error)
}

// reindexPageSize must not exceed the repository's per-page cap or the
// pagination walk would terminate early.
const reindexPageSize = 100

// NewSearchReindexHandler processes TaskSearchReindex tasks, walking every
// document kind page by page.
func NewSearchReindexHandler(lister DocumentLister, indexer *search.Indexer, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SearchReindexPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}

		total := 0
		for _, kind := range []documents.Kind{documents.KindInvoice, documents.KindCreditNote, documents.KindEstimate} {
			for page := 1; ; page++ {
				docs, _, err := lister.List(ctx, payload.TenantID, documents.ListRequest{
					Kind:    kind,
					Page:    page,
					PerPage: reindexPageSize,
				})
				if err != nil {
					return err
				}
				if len(docs) == 0 {
					break
				}
				if err := indexer.Reindex(ctx, docs); err != nil {
					return err
				}
				total += len(docs)
				if len(docs) < reindexPageSize {
					break
				}
			}
		}
		logger.Info("search reindex complete", "tenant_id", payload.TenantID, "documents", total)
		return nil
	}
}
