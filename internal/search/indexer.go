package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ledgerline/ledgerline/internal/documents"
	"github.com/ledgerline/ledgerline/internal/shared"
)

const reindexConcurrency = 8

// DocumentSource reads the authoritative document when a refresh is due.
type DocumentSource interface {
	Get(ctx context.Context, tenantID int64, kind documents.Kind, id int64) (*documents.Document, error)
}

// Indexer maintains the redis-backed document search index. Refreshes re-read
// the document from the source so stale job payloads cannot overwrite a newer
// save.
type Indexer struct {
	client *redis.Client
	source DocumentSource
	logger *slog.Logger
	group  singleflight.Group
}

// NewIndexer constructs an Indexer.
func NewIndexer(client *redis.Client, source DocumentSource, logger *slog.Logger) *Indexer {
	return &Indexer{client: client, source: source, logger: logger}
}

func projectionKey(tenantID int64, kind documents.Kind, id int64) string {
	return fmt.Sprintf("search:%d:%s:%d", tenantID, kind, id)
}

func tenantSetKey(tenantID int64) string {
	return fmt.Sprintf("search:%d:docs", tenantID)
}

// Refresh re-projects one document into the index. Concurrent refreshes of
// the same document collapse to a single read. A document that no longer
// exists is removed from the index instead.
func (ix *Indexer) Refresh(ctx context.Context, tenantID int64, kind documents.Kind, id int64) error {
	key := projectionKey(tenantID, kind, id)
	_, err, _ := ix.group.Do(key, func() (any, error) {
		doc, err := ix.source.Get(ctx, tenantID, kind, id)
		if errors.Is(err, shared.ErrNotFound) {
			return nil, ix.Remove(ctx, tenantID, kind, id)
		}
		if err != nil {
			return nil, fmt.Errorf("search: load document: %w", err)
		}
		return nil, ix.store(ctx, Project(doc))
	})
	return err
}

// Remove drops a document from the index.
func (ix *Indexer) Remove(ctx context.Context, tenantID int64, kind documents.Kind, id int64) error {
	key := projectionKey(tenantID, kind, id)
	pipe := ix.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, tenantSetKey(tenantID), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("search: remove %s: %w", key, err)
	}
	return nil
}

// Reindex rebuilds projections for a batch of documents in parallel. Used by
// the backfill job after schema or projection changes.
func (ix *Indexer) Reindex(ctx context.Context, docs []documents.Document) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(reindexConcurrency)
	for i := range docs {
		doc := docs[i]
		g.Go(func() error {
			return ix.store(ctx, Project(&doc))
		})
	}
	return g.Wait()
}

// Search returns the tenant's projections matching the term, most recently
// updated first is not guaranteed; callers sort as needed.
func (ix *Indexer) Search(ctx context.Context, tenantID int64, term string) ([]Projection, error) {
	keys, err := ix.client.SMembers(ctx, tenantSetKey(tenantID)).Result()
	if err != nil {
		return nil, fmt.Errorf("search: list index: %w", err)
	}
	if len(keys) == 0 {
		return []Projection{}, nil
	}

	values, err := ix.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("search: load projections: %w", err)
	}

	results := []Projection{}
	for i, raw := range values {
		str, ok := raw.(string)
		if !ok {
			// Projection expired or was deleted out of band; heal the set.
			ix.client.SRem(ctx, tenantSetKey(tenantID), keys[i])
			continue
		}
		var p Projection
		if err := json.Unmarshal([]byte(str), &p); err != nil {
			ix.logger.Warn("search: corrupt projection", "key", keys[i], "error", err)
			continue
		}
		if p.Matches(term) {
			results = append(results, p)
		}
	}
	return results, nil
}

func (ix *Indexer) store(ctx context.Context, p Projection) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("search: marshal projection: %w", err)
	}
	key := projectionKey(p.TenantID, documents.Kind(p.Kind), p.ID)
	pipe := ix.client.TxPipeline()
	pipe.Set(ctx, key, payload, 0)
	pipe.SAdd(ctx, tenantSetKey(p.TenantID), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("search: store %s: %w", key, err)
	}
	return nil
}
