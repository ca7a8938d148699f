package valuation

import (
	"context"
	"fmt"
	"time"

	"stockledger/internal/core/id"
)

// SnapshotCache stores computed snapshots.
type SnapshotCache interface {
	Get(ctx context.Context, key CacheKey) (Snapshot, bool, error)
	Set(ctx context.Context, key CacheKey, snap Snapshot) error
}

// CacheKey identifies a snapshot of one ledger state. Any append to either
// ledger for the product changes a revision and so the key.
type CacheKey struct {
	ProductID        id.ID
	AsOf             time.Time
	MovementRevision int64
	ResetRevision    int64
}

// String renders the key for key-value stores.
func (k CacheKey) String() string {
	return fmt.Sprintf("snapshot:%s:%d:%d:%d", k.ProductID, k.AsOf.UTC().UnixNano(), k.MovementRevision, k.ResetRevision)
}

func (e *Engine) cacheKey(ctx context.Context, productID id.ID, asOf time.Time) (CacheKey, error) {
	mrev, err := e.movements.Revision(ctx, productID)
	if err != nil {
		return CacheKey{}, fmt.Errorf("movement revision: %w", err)
	}
	rrev, err := e.resets.Revision(ctx, productID)
	if err != nil {
		return CacheKey{}, fmt.Errorf("reset revision: %w", err)
	}
	return CacheKey{ProductID: productID, AsOf: asOf, MovementRevision: mrev, ResetRevision: rrev}, nil
}
