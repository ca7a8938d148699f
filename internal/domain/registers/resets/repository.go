// Package resets provides the physical-count reset ledger.
// Each reset anchors a new valuation epoch for its product.
package resets

import (
	"context"
	"time"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
)

// Repository defines storage operations for reset events.
type Repository interface {
	// AppendReset stores r and fills in ID (when nil), Sequence and RecordedAt.
	AppendReset(ctx context.Context, r *entity.ResetEvent) error

	// LatestResetBefore returns the latest reset with Date at or before date.
	// Ties on Date resolve to the highest sequence. found is false when none exists.
	LatestResetBefore(ctx context.Context, productID id.ID, date time.Time) (r entity.ResetEvent, found bool, err error)

	// ListResets returns resets matching the filter ordered by (date, sequence).
	ListResets(ctx context.Context, f ListFilter) ([]entity.ResetEvent, error)

	// Revision returns the highest reset sequence for the product (0 if none).
	Revision(ctx context.Context, productID id.ID) (int64, error)
}

// ListFilter selects resets. Zero values leave a bound open.
type ListFilter struct {
	ProductID     *id.ID
	From          time.Time
	FromExclusive bool
	To            time.Time
}

// Matches reports whether r satisfies the filter.
func (f ListFilter) Matches(r *entity.ResetEvent) bool {
	if f.ProductID != nil && r.ProductID != *f.ProductID {
		return false
	}
	if !f.From.IsZero() {
		if r.Date.Before(f.From) || (f.FromExclusive && r.Date.Equal(f.From)) {
			return false
		}
	}
	if !f.To.IsZero() && r.Date.After(f.To) {
		return false
	}
	return true
}
