package reports

import (
	"context"
	"fmt"
	"slices"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/catalog"
	"stockledger/internal/domain/registers/resets"
	"stockledger/internal/domain/valuation"
)

// Service provides the read-only query surface over the valuation engine.
type Service struct {
	valuator Valuator
	catalog  Catalog
	resets   ResetLister
	now      func() time.Time
}

// NewService creates a new reports service.
func NewService(valuator Valuator, catalog Catalog, resets ResetLister) *Service {
	return &Service{
		valuator: valuator,
		catalog:  catalog,
		resets:   resets,
		now:      time.Now,
	}
}

// WithClock replaces the clock used for default dates.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	if offset < 0 {
		offset = 0
	}
	end := min(offset+limit, len(items))
	return items[offset:end]
}

// GetCurrentStock generates the current stock report.
func (s *Service) GetCurrentStock(ctx context.Context, filter CurrentStockFilter) (*CurrentStockReport, error) {
	asOf := s.now().UTC()
	if filter.AsOfDate != nil {
		asOf = *filter.AsOfDate
	}
	filter.Limit = clampLimit(filter.Limit)

	switch filter.OrderBy {
	case "":
		filter.OrderBy = OrderByProduct
	case OrderByProduct, OrderByQuantity, OrderByValue:
	default:
		return nil, apperror.NewValidation("orderBy must be product, quantity or value").
			WithDetail("orderBy", filter.OrderBy)
	}

	productIDs, err := s.stockUniverse(ctx, filter.GroupIDs)
	if err != nil {
		return nil, err
	}
	snaps, err := s.valuator.Snapshots(ctx, asOf, productIDs)
	if err != nil {
		return nil, apperror.FromContext(fmt.Errorf("get current stock: %w", err))
	}
	index, err := s.catalog.Index(ctx, catalog.ListFilter{ProductIDs: productIDs})
	if err != nil {
		return nil, fmt.Errorf("product index: %w", err)
	}

	report := &CurrentStockReport{AsOfDate: asOf, TotalValue: types.Zero()}
	items := make([]StockItem, 0, len(snaps))
	for _, snap := range snaps {
		if filter.ExcludeZero && snap.Quantity.IsZero() {
			continue
		}
		p, ok := index[snap.ProductID]
		items = append(items, StockItem{Snapshot: snap, ProductRef: refOf(p, ok)})

		report.TotalQuantity += snap.Quantity
		report.TotalValue = report.TotalValue.Add(snap.CostBasisValue)
		if !snap.HasPriorEntry {
			report.NoPriorEntry++
		}
	}

	sortStock(items, filter.OrderBy, filter.Desc)
	report.TotalItems = len(items)
	report.Items = paginate(items, filter.Offset, filter.Limit)
	return report, nil
}

// stockUniverse is the members of groupIDs, or every product known to the
// ledger or the catalog when no group is selected.
func (s *Service) stockUniverse(ctx context.Context, groupIDs []id.ID) ([]id.ID, error) {
	seen := make(map[id.ID]struct{})
	var out []id.ID
	add := func(pid id.ID) {
		if _, ok := seen[pid]; !ok {
			seen[pid] = struct{}{}
			out = append(out, pid)
		}
	}

	if len(groupIDs) > 0 {
		membership, err := s.catalog.Membership(ctx, groupIDs)
		if err != nil {
			return nil, fmt.Errorf("group membership: %w", err)
		}
		for _, g := range groupIDs {
			for _, pid := range membership[g] {
				add(pid)
			}
		}
		if out == nil {
			out = []id.ID{}
		}
		return out, nil
	}

	ledgerIDs, err := s.valuator.ProductUniverse(ctx)
	if err != nil {
		return nil, apperror.FromContext(fmt.Errorf("product universe: %w", err))
	}
	for _, pid := range ledgerIDs {
		add(pid)
	}
	products, err := s.catalog.Index(ctx, catalog.ListFilter{})
	if err != nil {
		return nil, fmt.Errorf("product index: %w", err)
	}
	extra := make([]id.ID, 0)
	for pid := range products {
		if _, ok := seen[pid]; !ok {
			extra = append(extra, pid)
		}
	}
	slices.SortFunc(extra, func(a, b id.ID) int { return slices.Compare(a[:], b[:]) })
	for _, pid := range extra {
		add(pid)
	}
	if out == nil {
		out = []id.ID{}
	}
	return out, nil
}

func sortStock(items []StockItem, orderBy string, desc bool) {
	cmp := func(a, b StockItem) int {
		switch orderBy {
		case OrderByQuantity:
			if a.Quantity != b.Quantity {
				if a.Quantity < b.Quantity {
					return -1
				}
				return 1
			}
		case OrderByValue:
			if c := a.CostBasisValue.Cmp(b.CostBasisValue); c != 0 {
				return c
			}
		default:
			if a.ProductCode != b.ProductCode {
				if a.ProductCode < b.ProductCode {
					return -1
				}
				return 1
			}
		}
		return slices.Compare(a.ProductID[:], b.ProductID[:])
	}
	slices.SortStableFunc(items, func(a, b StockItem) int {
		if desc {
			return cmp(b, a)
		}
		return cmp(a, b)
	})
}

// GetCriticalStock lists products whose quantity is below threshold. Catalog
// products that never moved stand at zero and are checked like any other.
func (s *Service) GetCriticalStock(ctx context.Context, asOfDate *time.Time, threshold types.Quantity) (*CriticalStockReport, error) {
	asOf := s.now().UTC()
	if asOfDate != nil {
		asOf = *asOfDate
	}

	productIDs, err := s.stockUniverse(ctx, nil)
	if err != nil {
		return nil, err
	}
	snaps, err := s.valuator.Snapshots(ctx, asOf, productIDs)
	if err != nil {
		return nil, apperror.FromContext(fmt.Errorf("critical snapshots: %w", err))
	}
	items := valuation.FilterCritical(snaps, threshold)
	index, err := s.catalog.Index(ctx, catalog.ListFilter{})
	if err != nil {
		return nil, fmt.Errorf("product index: %w", err)
	}

	report := &CriticalStockReport{AsOfDate: asOf, Threshold: threshold, Items: make([]CriticalStockItem, 0, len(items))}
	for _, it := range items {
		p, ok := index[it.ProductID]
		report.Items = append(report.Items, CriticalStockItem{CriticalItem: it, ProductRef: refOf(p, ok)})
	}
	return report, nil
}

// GetPeriodMovements generates the period movements report.
func (s *Service) GetPeriodMovements(ctx context.Context, filter PeriodMovementsFilter) (*PeriodMovementsReport, error) {
	aggs, err := s.valuator.Aggregate(ctx, valuation.PeriodRequest{
		ProductID:      filter.ProductID,
		From:           filter.FromDate,
		To:             filter.ToDate,
		IncludeDetails: filter.IncludeDetails,
	})
	if err != nil {
		return nil, apperror.FromContext(fmt.Errorf("aggregate period: %w", err))
	}
	index, err := s.catalog.Index(ctx, catalog.ListFilter{})
	if err != nil {
		return nil, fmt.Errorf("product index: %w", err)
	}

	report := &PeriodMovementsReport{
		FromDate: filter.FromDate,
		ToDate:   filter.ToDate,
		Items:    make([]PeriodItem, 0, len(aggs)),
		Totals: PeriodTotals{
			ValueIn:        types.Zero(),
			ValueOut:       types.Zero(),
			ValueOutAtCost: types.Zero(),
			PriceCostDelta: types.Zero(),
		},
	}
	for _, a := range aggs {
		p, ok := index[a.ProductID]
		item := periodItem(a, refOf(p, ok))
		report.Items = append(report.Items, item)

		t := &report.Totals
		t.QuantityIn += a.QuantityIn
		t.QuantityOut += a.QuantityOut
		t.ValueIn = t.ValueIn.Add(a.ValueIn)
		t.ValueOut = t.ValueOut.Add(a.ValueOut)
		t.ValueOutAtCost = t.ValueOutAtCost.Add(a.ValueOutAtCost)
		t.PriceCostDelta = t.PriceCostDelta.Add(a.PriceCostDelta)

		if item.SoldBelowCost {
			report.BelowCostCount++
		}
		if !a.HasPriorEntry {
			report.NoPriorEntryCount++
		}
	}
	return report, nil
}

// GetPeriodDetail returns one product's itemized walk, regardless of whether
// the summary report included details.
func (s *Service) GetPeriodDetail(ctx context.Context, productID id.ID, from, to time.Time) (*PeriodItem, error) {
	agg, err := s.valuator.Detail(ctx, productID, from, to)
	if err != nil {
		return nil, apperror.FromContext(fmt.Errorf("period detail: %w", err))
	}
	index, err := s.catalog.Index(ctx, catalog.ListFilter{ProductIDs: []id.ID{productID}})
	if err != nil {
		return nil, fmt.Errorf("product index: %w", err)
	}
	p, ok := index[productID]
	item := periodItem(agg, refOf(p, ok))
	return &item, nil
}

func periodItem(a valuation.PeriodAggregate, ref ProductRef) PeriodItem {
	return PeriodItem{
		PeriodAggregate: a,
		ProductRef:      ref,
		SoldBelowCost:   a.HasPriorEntry && a.PriceCostDelta.IsNegative(),
	}
}

// GetGroupValuation values the selected groups (all groups when none given).
func (s *Service) GetGroupValuation(ctx context.Context, asOfDate *time.Time, groupIDs []id.ID) (*GroupValuationReport, error) {
	asOf := s.now().UTC()
	if asOfDate != nil {
		asOf = *asOfDate
	}

	membership, err := s.catalog.Membership(ctx, groupIDs)
	if err != nil {
		return nil, fmt.Errorf("group membership: %w", err)
	}
	rollup, err := s.valuator.RollupByGroup(ctx, asOf, membership)
	if err != nil {
		return nil, apperror.FromContext(fmt.Errorf("rollup: %w", err))
	}

	names := make(map[id.ID]string)
	products, err := s.catalog.Index(ctx, catalog.ListFilter{GroupIDs: groupIDs})
	if err != nil {
		return nil, fmt.Errorf("product index: %w", err)
	}
	for _, p := range products {
		if p.GroupID != nil && p.GroupName != "" {
			names[*p.GroupID] = p.GroupName
		}
	}

	report := &GroupValuationReport{
		AsOfDate:      asOf,
		Groups:        make([]GroupValuationItem, 0, len(rollup.Groups)),
		TotalValue:    rollup.TotalValue,
		TotalProducts: rollup.TotalProducts,
	}
	for gid, total := range rollup.Groups {
		report.Groups = append(report.Groups, GroupValuationItem{GroupTotal: total, GroupName: names[gid]})
	}
	slices.SortFunc(report.Groups, func(a, b GroupValuationItem) int {
		if c := b.ValueTotal.Cmp(a.ValueTotal); c != 0 {
			return c
		}
		return slices.Compare(a.GroupID[:], b.GroupID[:])
	})
	return report, nil
}

// GetReconciliation compares fiscal and physical flow per product.
func (s *Service) GetReconciliation(ctx context.Context, from, to time.Time) (*ReconciliationReport, error) {
	results, err := s.valuator.Reconcile(ctx, from, to)
	if err != nil {
		return nil, apperror.FromContext(fmt.Errorf("reconcile: %w", err))
	}
	index, err := s.catalog.Index(ctx, catalog.ListFilter{})
	if err != nil {
		return nil, fmt.Errorf("product index: %w", err)
	}

	report := &ReconciliationReport{FromDate: from, ToDate: to, Items: make([]ReconciliationItem, 0, len(results))}
	for _, r := range results {
		p, ok := index[r.ProductID]
		report.Items = append(report.Items, ReconciliationItem{ReconciliationResult: r, ProductRef: refOf(p, ok)})
		if !r.Delta.Balance.IsZero() {
			report.Discrepancies++
		}
	}
	return report, nil
}

// GetResetHistory lists resets of the last months, newest first, with statistics.
func (s *Service) GetResetHistory(ctx context.Context, filter ResetHistoryFilter) (*ResetHistory, error) {
	if filter.Months <= 0 {
		filter.Months = 12
	}
	if filter.Months > 120 {
		return nil, apperror.NewValidation("months must be at most 120")
	}
	filter.Limit = clampLimit(filter.Limit)
	from := s.now().UTC().AddDate(0, -filter.Months, 0)

	events, err := s.resets.ListResets(ctx, resets.ListFilter{ProductID: filter.ProductID, From: from})
	if err != nil {
		return nil, apperror.FromContext(fmt.Errorf("list resets: %w", err))
	}
	index, err := s.catalog.Index(ctx, catalog.ListFilter{})
	if err != nil {
		return nil, fmt.Errorf("product index: %w", err)
	}

	stats := ResetStats{CountedValue: types.Zero()}
	products := make(map[id.ID]struct{})
	items := make([]ResetHistoryItem, 0, len(events))
	for i := len(events) - 1; i >= 0; i-- {
		r := events[i]
		value := r.CountedValue()

		stats.Total++
		if r.CountedQuantity.IsZero() {
			stats.Zeroed++
		} else {
			stats.Active++
		}
		products[r.ProductID] = struct{}{}
		stats.CountedValue = stats.CountedValue.Add(value)

		p, ok := index[r.ProductID]
		items = append(items, ResetHistoryItem{ResetEvent: r, ProductRef: refOf(p, ok), CountedValue: value})
	}
	stats.DistinctProducts = len(products)

	return &ResetHistory{
		FromDate:   from,
		Items:      paginate(items, filter.Offset, filter.Limit),
		TotalItems: len(items),
		Stats:      stats,
	}, nil
}
