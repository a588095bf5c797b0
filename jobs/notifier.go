package jobs

import (
	"context"
	"log/slog"

	"github.com/ledgerline/ledgerline/internal/documents"
)

// Notifier enqueues one task per emitted document event. It satisfies the
// document service's notifier port; enqueue failures are logged, never
// surfaced, so a slow queue cannot fail a save.
type Notifier struct {
	client *Client
	logger *slog.Logger
}

// NewNotifier constructs a Notifier.
func NewNotifier(client *Client, logger *slog.Logger) *Notifier {
	return &Notifier{client: client, logger: logger}
}

// DocumentSaved fans each event out to the queue.
func (n *Notifier) DocumentSaved(ctx context.Context, tenantID int64, events []documents.Event) {
	for _, ev := range events {
		payload := DocumentEventPayload{
			TenantID:   tenantID,
			Kind:       eventKind(ev),
			DocumentID: eventDocumentID(ev),
			Event:      ev,
		}
		if _, err := n.client.EnqueueDocumentEvent(ctx, payload); err != nil {
			n.logger.Error("enqueue document event",
				"tenant_id", tenantID,
				"type", ev.Type,
				"document_id", payload.DocumentID,
				"error", err,
			)
		}
	}
}

func eventKind(ev documents.Event) documents.Kind {
	kind, _ := ev.Object["kind"].(string)
	return documents.Kind(kind)
}

func eventDocumentID(ev documents.Event) int64 {
	id, _ := ev.Object["id"].(int64)
	return id
}
