package reports

import (
	"context"
	"time"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/catalog"
	"stockledger/internal/domain/registers/resets"
	"stockledger/internal/domain/valuation"
)

// Valuator is the valuation engine as seen by reports.
type Valuator interface {
	ProductUniverse(ctx context.Context) ([]id.ID, error)
	Snapshots(ctx context.Context, asOf time.Time, productIDs []id.ID) ([]valuation.Snapshot, error)
	Aggregate(ctx context.Context, req valuation.PeriodRequest) ([]valuation.PeriodAggregate, error)
	Detail(ctx context.Context, productID id.ID, from, to time.Time) (valuation.PeriodAggregate, error)
	RollupByGroup(ctx context.Context, asOf time.Time, membership map[id.ID][]id.ID) (valuation.Rollup, error)
	Reconcile(ctx context.Context, from, to time.Time) ([]valuation.ReconciliationResult, error)
}

// Catalog resolves product names and group membership.
type Catalog interface {
	Membership(ctx context.Context, groupIDs []id.ID) (map[id.ID][]id.ID, error)
	Index(ctx context.Context, f catalog.ListFilter) (map[id.ID]catalog.Product, error)
}

// ResetLister reads the reset ledger.
type ResetLister interface {
	ListResets(ctx context.Context, f resets.ListFilter) ([]entity.ResetEvent, error)
}

var (
	_ Valuator    = (*valuation.Engine)(nil)
	_ Catalog     = (*catalog.Service)(nil)
	_ ResetLister = (*resets.Service)(nil)
)
