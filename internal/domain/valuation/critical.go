package valuation

import (
	"context"
	"slices"
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// CriticalItem is a product whose quantity fell below the threshold.
type CriticalItem struct {
	ProductID     id.ID          `json:"productId"`
	Quantity      types.Quantity `json:"quantity"`
	HasPriorEntry bool           `json:"hasPriorEntry"`
}

// FilterCritical keeps snapshots with quantity strictly below threshold,
// lowest quantity first.
func FilterCritical(snaps []Snapshot, threshold types.Quantity) []CriticalItem {
	out := make([]CriticalItem, 0)
	for _, s := range snaps {
		if s.Quantity < threshold {
			out = append(out, CriticalItem{
				ProductID:     s.ProductID,
				Quantity:      s.Quantity,
				HasPriorEntry: s.HasPriorEntry,
			})
		}
	}
	slices.SortStableFunc(out, func(a, b CriticalItem) int {
		if a.Quantity != b.Quantity {
			if a.Quantity < b.Quantity {
				return -1
			}
			return 1
		}
		return compareIDs(a.ProductID, b.ProductID)
	})
	return out
}

// FindCritical flags every ledger product below threshold as of asOf.
func (e *Engine) FindCritical(ctx context.Context, asOf time.Time, threshold types.Quantity) ([]CriticalItem, error) {
	snaps, err := e.Snapshots(ctx, asOf, nil)
	if err != nil {
		return nil, err
	}
	return FilterCritical(snaps, threshold), nil
}
