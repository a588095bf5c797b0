package documents

import (
	"context"
	"fmt"
)

// SequencePort provides the per-tenant, per-kind numbering counter.
// Implementations must make NextNumber an atomic increment.
type SequencePort interface {
	NextNumber(ctx context.Context, tenantID int64, kind Kind) (int64, error)
	SetNext(ctx context.Context, tenantID int64, kind Kind, next int64) error
}

// FormatNumber renders a sequence value into the kind's document number.
func FormatNumber(kind Kind, n int64) string {
	return fmt.Sprintf("%s-%05d", kind.NumberPrefix(), n)
}

// maxNumberRetries bounds the collision retry loop on save. Another tenant
// process may have claimed a manually assigned number between NextNumber and
// insert; the loop advances the sequence past it transparently.
const maxNumberRetries = 10

// nextAvailableNumber allocates numbers until insert succeeds or the retry
// budget is exhausted. The insert callback reports true on a unique-number
// collision, any other error aborts.
func nextAvailableNumber(ctx context.Context, seq SequencePort, tenantID int64, kind Kind, insert func(number string) (collision bool, err error)) (string, error) {
	for attempt := 0; attempt < maxNumberRetries; attempt++ {
		n, err := seq.NextNumber(ctx, tenantID, kind)
		if err != nil {
			return "", fmt.Errorf("documents: next number: %w", err)
		}
		number := FormatNumber(kind, n)
		collision, err := insert(number)
		if err != nil {
			return "", err
		}
		if !collision {
			return number, nil
		}
	}
	return "", fmt.Errorf("documents: could not allocate a unique %s number after %d attempts", kind.Label(), maxNumberRetries)
}
