package valuation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/registers/stock"
	"stockledger/pkg/logger"
)

// Snapshot is a product's reconstructed position as of a point in time.
type Snapshot struct {
	ProductID id.ID          `json:"productId"`
	AsOf      time.Time      `json:"asOf"`
	Quantity  types.Quantity `json:"quantity"`

	// CostBasisValue is Quantity at LastEntryUnitCost; zero when no cost is known.
	CostBasisValue    types.Money  `json:"costBasisValue"`
	LastEntryUnitCost *types.Money `json:"lastEntryUnitCost,omitempty"`
	LastEntryDate     *time.Time   `json:"lastEntryDate,omitempty"`

	// HasPriorEntry is false when an exit was replayed before any entry or reset.
	HasPriorEntry bool `json:"hasPriorEntry"`

	// AnchorDate is the date of the reset the replay started from, if any.
	AnchorDate *time.Time `json:"anchorDate,omitempty"`
}

// Snapshot rebuilds one product's position as of asOf (inclusive).
//
// The latest reset at or before asOf anchors the replay; movements in
// (anchor, asOf] are then applied in ledger order. Movements stamped exactly at
// the anchor instant are superseded by the count.
func (e *Engine) Snapshot(ctx context.Context, productID id.ID, asOf time.Time) (snap Snapshot, err error) {
	ctx, span := startSpan(ctx, "valuation.Snapshot",
		attribute.String("product.id", productID.String()),
		attribute.String("as_of", asOf.Format(time.RFC3339)),
	)
	defer func() { endSpan(span, err) }()

	var key CacheKey
	if e.cache != nil {
		key, err = e.cacheKey(ctx, productID, asOf)
		if err != nil {
			return Snapshot{}, err
		}
		if cached, ok, cerr := e.cache.Get(ctx, key); cerr != nil {
			logger.Warn(ctx, "snapshot cache get failed", "error", cerr, "product_id", productID)
		} else if ok {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return cached, nil
		}
	}

	snap, err = e.buildSnapshot(ctx, productID, asOf)
	if err != nil {
		return Snapshot{}, err
	}

	if e.cache != nil {
		if cerr := e.cache.Set(ctx, key, snap); cerr != nil {
			logger.Warn(ctx, "snapshot cache set failed", "error", cerr, "product_id", productID)
		}
	}
	return snap, nil
}

func (e *Engine) buildSnapshot(ctx context.Context, productID id.ID, asOf time.Time) (Snapshot, error) {
	state, anchor, err := e.replay(ctx, productID, asOf)
	if err != nil {
		return Snapshot{}, err
	}

	return Snapshot{
		ProductID:         productID,
		AsOf:              asOf,
		Quantity:          state.quantity,
		CostBasisValue:    state.value(),
		LastEntryUnitCost: state.cost,
		LastEntryDate:     state.costDate,
		HasPriorEntry:     state.exitsWithoutCost == 0,
		AnchorDate:        anchor,
	}, nil
}

// replay returns the running state after every ledger event at or before asOf.
func (e *Engine) replay(ctx context.Context, productID id.ID, asOf time.Time) (*runningState, *time.Time, error) {
	state := &runningState{}

	anchor, found, err := e.resets.LatestResetBefore(ctx, productID, asOf)
	if err != nil {
		return nil, nil, fmt.Errorf("anchor reset: %w", err)
	}

	var (
		from       time.Time
		anchorDate *time.Time
	)
	if found {
		state.applyReset(&anchor)
		from = anchor.Date
		anchorDate = &from
	}

	cur, err := e.movements.QueryRange(ctx, productID, from, asOf, stock.RangeOptions{FromExclusive: found})
	if err != nil {
		return nil, nil, err
	}
	for cur.Next(ctx) {
		m := cur.Movement()
		state.applyMovement(&m)
	}
	if err := cur.Err(); err != nil {
		return nil, nil, fmt.Errorf("replay movements: %w", err)
	}

	return state, anchorDate, nil
}

// Snapshots rebuilds positions for many products concurrently.
// A nil productIDs means every product with ledger activity.
// Results follow the order of productIDs.
func (e *Engine) Snapshots(ctx context.Context, asOf time.Time, productIDs []id.ID) (out []Snapshot, err error) {
	ctx, span := startSpan(ctx, "valuation.Snapshots", attribute.String("as_of", asOf.Format(time.RFC3339)))
	defer func() { endSpan(span, err) }()

	if productIDs == nil {
		productIDs, err = e.ProductUniverse(ctx)
		if err != nil {
			return nil, err
		}
	}
	span.SetAttributes(attribute.Int("products", len(productIDs)))

	out = make([]Snapshot, len(productIDs))
	err = e.forEachProduct(ctx, productIDs, func(ctx context.Context, i int, pid id.ID) error {
		s, err := e.Snapshot(ctx, pid, asOf)
		if err != nil {
			return fmt.Errorf("snapshot %s: %w", pid, err)
		}
		out[i] = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
