// Package stock provides the append-only stock movement ledger.
package stock

import (
	"context"
	"time"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
)

// Repository defines storage operations for the movement ledger.
// There is no update or delete: corrections are new movements.
type Repository interface {
	// AppendMovement stores m and fills in ID (when nil), Sequence and RecordedAt.
	// Returns apperror CodeDuplicate when the idempotency key is already used.
	AppendMovement(ctx context.Context, m *entity.Movement) error

	// ListMovements returns one page of a product's movements in ledger order.
	ListMovements(ctx context.Context, q PageQuery) ([]entity.Movement, error)

	// ProductIDs returns every product with at least one movement, sorted.
	ProductIDs(ctx context.Context) ([]id.ID, error)

	// Revision returns the highest sequence appended for the product (0 if none).
	Revision(ctx context.Context, productID id.ID) (int64, error)
}

// PageQuery selects a window of one product's movements.
type PageQuery struct {
	ProductID id.ID

	// From is the lower bound; zero means unbounded.
	From          time.Time
	FromExclusive bool

	// To is the upper bound; zero means unbounded.
	To          time.Time
	ToExclusive bool

	// After resumes strictly after this ordering key (keyset pagination).
	After *entity.Position

	Limit int
}

// Matches reports whether m falls inside the window of q (ignoring Limit).
// Storage implementations without a query language use it directly.
func (q PageQuery) Matches(m *entity.Movement) bool {
	if m.ProductID != q.ProductID {
		return false
	}
	if !q.From.IsZero() {
		if m.Timestamp.Before(q.From) || (q.FromExclusive && m.Timestamp.Equal(q.From)) {
			return false
		}
	}
	if !q.To.IsZero() {
		if m.Timestamp.After(q.To) || (q.ToExclusive && m.Timestamp.Equal(q.To)) {
			return false
		}
	}
	if q.After != nil && !q.After.Before(m.Position()) {
		return false
	}
	return true
}
