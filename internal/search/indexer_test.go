package search

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline/internal/documents"
	"github.com/ledgerline/ledgerline/internal/shared"
)

type memorySource struct {
	mu   sync.Mutex
	docs map[string]*documents.Document
	gets int
}

func newMemorySource() *memorySource {
	return &memorySource{docs: make(map[string]*documents.Document)}
}

func (s *memorySource) put(doc *documents.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[fmt.Sprintf("%d/%s/%d", doc.TenantID, doc.Kind, doc.ID)] = doc
}

func (s *memorySource) Get(_ context.Context, tenantID int64, kind documents.Kind, id int64) (*documents.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	doc, ok := s.docs[fmt.Sprintf("%d/%s/%d", tenantID, kind, id)]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return doc, nil
}

func testIndexer(t *testing.T) (*Indexer, *memorySource) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	source := newMemorySource()
	return NewIndexer(client, source, slog.Default()), source
}

func sampleInvoice(id int64, number, notes string) *documents.Document {
	return &documents.Document{
		ID:         id,
		TenantID:   1,
		Kind:       documents.KindInvoice,
		CustomerID: 55,
		Currency:   "USD",
		Number:     number,
		Notes:      notes,
		Total:      5000,
		Balance:    5000,
		Date:       time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestRefreshAndSearch(t *testing.T) {
	ix, source := testIndexer(t)
	ctx := context.Background()

	source.put(sampleInvoice(1, "INV-00001", "spring order"))
	source.put(sampleInvoice(2, "INV-00002", "autumn order"))
	require.NoError(t, ix.Refresh(ctx, 1, documents.KindInvoice, 1))
	require.NoError(t, ix.Refresh(ctx, 1, documents.KindInvoice, 2))

	results, err := ix.Search(ctx, 1, "spring")
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "INV-00001", results[0].Number)
	require.Equal(t, "open", results[0].Status)

	// Number matching is case-insensitive.
	results, err = ix.Search(ctx, 1, "inv-00002")
	require.NoError(t, err)
	require.Len(t, results, 1)

	// Empty term returns everything for the tenant.
	results, err = ix.Search(ctx, 1, "")
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Other tenants see nothing.
	results, err = ix.Search(ctx, 2, "order")
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestRefreshOfMissingDocumentRemoves(t *testing.T) {
	ix, source := testIndexer(t)
	ctx := context.Background()

	doc := sampleInvoice(1, "INV-00001", "")
	source.put(doc)
	require.NoError(t, ix.Refresh(ctx, 1, documents.KindInvoice, 1))

	source.mu.Lock()
	source.docs = map[string]*documents.Document{}
	source.mu.Unlock()

	require.NoError(t, ix.Refresh(ctx, 1, documents.KindInvoice, 1))
	results, err := ix.Search(ctx, 1, "")
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestSearchMatchesMetadata(t *testing.T) {
	ix, source := testIndexer(t)
	ctx := context.Background()

	doc := sampleInvoice(1, "INV-00001", "")
	doc.Metadata = map[string]string{"po_number": "PO-7781"}
	source.put(doc)
	require.NoError(t, ix.Refresh(ctx, 1, documents.KindInvoice, 1))

	results, err := ix.Search(ctx, 1, "po-7781")
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "PO-7781", results[0].Metadata["po_number"])
}

func TestReindexBatch(t *testing.T) {
	ix, _ := testIndexer(t)
	ctx := context.Background()

	docs := make([]documents.Document, 0, 20)
	for i := int64(1); i <= 20; i++ {
		docs = append(docs, *sampleInvoice(i, documents.FormatNumber(documents.KindInvoice, i), ""))
	}
	require.NoError(t, ix.Reindex(ctx, docs))

	results, err := ix.Search(ctx, 1, "INV-000")
	require.NoError(t, err)
	require.Len(t, results, 20)
}

func TestConcurrentRefreshesCollapse(t *testing.T) {
	ix, source := testIndexer(t)
	ctx := context.Background()
	source.put(sampleInvoice(1, "INV-00001", ""))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, ix.Refresh(ctx, 1, documents.KindInvoice, 1))
		}()
	}
	wg.Wait()

	source.mu.Lock()
	gets := source.gets
	source.mu.Unlock()
	require.LessOrEqual(t, gets, 16)
	require.GreaterOrEqual(t, gets, 1)

	results, err := ix.Search(ctx, 1, "")
	require.NoError(t, err)
	require.Len(t, results, 1)
}
