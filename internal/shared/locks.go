package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLockHeld indicates another request currently holds the document lock.
var ErrLockHeld = errors.New("document lock held")

// DocumentLockKey builds redis keys for per-document critical sections.
// Balance updates and status flips must serialize per document.
func DocumentLockKey(tenantID int64, kind string, docID int64) string {
	return fmt.Sprintf("receivables:%d:%s:%d:lock", tenantID, kind, docID)
}

// SequenceLockKey builds redis keys guarding numbering sequences.
func SequenceLockKey(tenantID int64, kind string) string {
	return fmt.Sprintf("receivables:%d:seq:%s:lock", tenantID, kind)
}

// DocumentLocker serializes mutations against a single document across
// concurrent requests using a redis SET NX lease.
type DocumentLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDocumentLocker constructs the locker.
func NewDocumentLocker(client *redis.Client, ttl time.Duration) *DocumentLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &DocumentLocker{client: client, ttl: ttl}
}

// WithLock runs fn while holding the named lock, retrying acquisition until
// ctx expires. The locker degrades to a no-op when redis is not configured
// (single-process test setups).
func (l *DocumentLocker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if l == nil || l.client == nil {
		return fn(ctx)
	}
	token := fmt.Sprintf("%d", time.Now().UnixNano())
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("shared: acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return ErrLockHeld
		case <-time.After(25 * time.Millisecond):
		}
	}
	defer func() {
		// Release only our own lease.
		const script = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`
		_ = l.client.Eval(context.WithoutCancel(ctx), script, []string{key}, token).Err()
	}()
	return fn(ctx)
}
