package reports_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/catalog"
	"stockledger/internal/domain/registers/resets"
	"stockledger/internal/domain/registers/stock"
	"stockledger/internal/domain/reports"
	"stockledger/internal/domain/valuation"
	"stockledger/internal/infrastructure/storage/memory"
)

var (
	clock  = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	tools  = id.MustParse("01900000-0000-7000-8000-0000000000f1")
	paint  = id.MustParse("01900000-0000-7000-8000-0000000000f2")
	hammer = id.MustParse("01900000-0000-7000-8000-0000000000b1")
	saw    = id.MustParse("01900000-0000-7000-8000-0000000000b2")
	primer = id.MustParse("01900000-0000-7000-8000-0000000000b3")
)

func jan(d int) time.Time { return time.Date(2026, 1, d, 0, 0, 0, 0, time.UTC) }

type fixture struct {
	stock   *stock.Service
	resets  *resets.Service
	reports *reports.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	stockSvc := stock.NewService(store.Movements, nil, stock.Config{}).WithClock(func() time.Time { return clock })
	resetSvc := resets.NewService(store.Resets, nil, time.Minute).WithClock(func() time.Time { return clock })
	catalogSvc := catalog.NewService(store.Products, store.Numerator)
	engine := valuation.NewEngine(stockSvc, resetSvc, valuation.WithWorkers(2))

	for _, p := range []catalog.Product{
		{ID: hammer, Code: "HAM", Name: "Hammer", GroupID: &tools, GroupName: "Tools"},
		{ID: saw, Code: "SAW", Name: "Saw", GroupID: &tools, GroupName: "Tools"},
		{ID: primer, Code: "PRI", Name: "Primer", GroupID: &paint, GroupName: "Paint"},
	} {
		require.NoError(t, catalogSvc.Save(ctx, &p))
	}

	return &fixture{
		stock:   stockSvc,
		resets:  resetSvc,
		reports: reports.NewService(engine, catalogSvc, resetSvc).WithClock(func() time.Time { return clock }),
	}
}

func (f *fixture) move(t *testing.T, p id.ID, day int, kind entity.MovementKind, qty int64, amount string) {
	t.Helper()
	m := &entity.Movement{
		ProductID: p, Timestamp: jan(day), Kind: kind,
		Quantity: types.NewQuantity(qty), Source: entity.SourceInvoice,
	}
	v := types.MustMoney(amount)
	if kind == entity.KindEntry {
		m.UnitCost = &v
	} else {
		m.UnitPrice = &v
	}
	require.NoError(t, f.stock.AppendMovement(context.Background(), m))
}

func (f *fixture) count(t *testing.T, p id.ID, date time.Time, qty int64, cost string) {
	t.Helper()
	require.NoError(t, f.resets.AppendReset(context.Background(), &entity.ResetEvent{
		ProductID: p, Date: date, CountedQuantity: types.NewQuantity(qty), CountedUnitCost: types.MustMoney(cost),
	}))
}

func TestGetCurrentStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.move(t, hammer, 1, entity.KindEntry, 10, "5") // 50
	f.move(t, primer, 1, entity.KindEntry, 4, "20") // 80
	f.move(t, primer, 2, entity.KindExit, 1, "30")  // 3 left, 60

	asOf := jan(31)
	report, err := f.reports.GetCurrentStock(ctx, reports.CurrentStockFilter{AsOfDate: &asOf})
	require.NoError(t, err)
	require.Equal(t, 3, report.TotalItems, "catalog products without movements are listed")
	assert.Equal(t, "HAM", report.Items[0].ProductCode)
	assert.True(t, types.MustMoney("110").Equal(report.TotalValue))

	report, err = f.reports.GetCurrentStock(ctx, reports.CurrentStockFilter{
		AsOfDate: &asOf, ExcludeZero: true, OrderBy: reports.OrderByValue, Desc: true,
	})
	require.NoError(t, err)
	require.Len(t, report.Items, 2)
	assert.Equal(t, primer, report.Items[0].ProductID)

	report, err = f.reports.GetCurrentStock(ctx, reports.CurrentStockFilter{
		AsOfDate: &asOf, GroupIDs: []id.ID{tools}, Limit: 1, Offset: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, report.TotalItems)
	require.Len(t, report.Items, 1)
	assert.Equal(t, "SAW", report.Items[0].ProductCode)

	_, err = f.reports.GetCurrentStock(ctx, reports.CurrentStockFilter{OrderBy: "color"})
	assert.True(t, apperror.IsValidation(err))
}

func TestGetPeriodMovements_BelowCost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.move(t, hammer, 1, entity.KindEntry, 10, "5")
	f.move(t, hammer, 5, entity.KindExit, 2, "4") // below cost
	f.move(t, saw, 6, entity.KindExit, 1, "9")    // no prior entry

	report, err := f.reports.GetPeriodMovements(ctx, reports.PeriodMovementsFilter{FromDate: jan(1), ToDate: jan(31)})
	require.NoError(t, err)
	require.Len(t, report.Items, 2)
	assert.Equal(t, 1, report.BelowCostCount)
	assert.Equal(t, 1, report.NoPriorEntryCount)
	assert.True(t, types.MustMoney("-2").Equal(report.Totals.PriceCostDelta))

	detail, err := f.reports.GetPeriodDetail(ctx, hammer, jan(1), jan(31))
	require.NoError(t, err)
	assert.Equal(t, "Hammer", detail.ProductName)
	assert.Len(t, detail.Lines, 1)

	_, err = f.reports.GetPeriodMovements(ctx, reports.PeriodMovementsFilter{FromDate: jan(31), ToDate: jan(1)})
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidRange))
}

func TestGetGroupValuation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.move(t, hammer, 1, entity.KindEntry, 10, "5")
	f.move(t, primer, 1, entity.KindEntry, 4, "20")

	asOf := jan(31)
	report, err := f.reports.GetGroupValuation(ctx, &asOf, []id.ID{tools, paint})
	require.NoError(t, err)
	require.Len(t, report.Groups, 2)
	assert.Equal(t, paint, report.Groups[0].GroupID, "highest value first")
	assert.Equal(t, "Paint", report.Groups[0].GroupName)
	assert.Equal(t, 2, report.Groups[1].ProductCount)
	assert.Equal(t, 3, report.TotalProducts)
	assert.True(t, types.MustMoney("130").Equal(report.TotalValue))
}

func TestGetReconciliation(t *testing.T) {
	f := newFixture(t)
	f.move(t, hammer, 1, entity.KindEntry, 10, "5")
	f.count(t, hammer, jan(20), 10, "5")
	f.move(t, saw, 2, entity.KindEntry, 3, "5")
	f.count(t, saw, jan(20), 1, "5")

	report, err := f.reports.GetReconciliation(context.Background(), jan(1).Add(-time.Second), jan(31))
	require.NoError(t, err)
	require.Len(t, report.Items, 2)
	assert.Equal(t, 1, report.Discrepancies, "the hammer count confirms its invoices")
	for _, it := range report.Items {
		assert.Equal(t, it.Fiscal.Balance-it.Physical.Balance, it.Delta.Balance)
		switch it.ProductID {
		case hammer:
			assert.True(t, it.Delta.Balance.IsZero())
		case saw:
			assert.Equal(t, types.NewQuantity(2), it.Delta.Balance)
		}
	}
}

func TestGetResetHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.count(t, hammer, clock.AddDate(0, -14, 0), 9, "1") // outside the default window
	f.count(t, hammer, jan(10), 5, "2")
	f.count(t, saw, jan(12), 0, "3")
	f.count(t, hammer, jan(20), 4, "2")

	history, err := f.reports.GetResetHistory(ctx, reports.ResetHistoryFilter{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, history.TotalItems)
	require.Len(t, history.Items, 2)
	assert.Equal(t, jan(20), history.Items[0].Date, "newest first")
	assert.Equal(t, "Hammer", history.Items[0].ProductName)

	assert.Equal(t, reports.ResetStats{
		Total:            3,
		Active:           2,
		Zeroed:           1,
		DistinctProducts: 2,
		CountedValue:     history.Stats.CountedValue,
	}, history.Stats)
	assert.True(t, types.MustMoney("18").Equal(history.Stats.CountedValue))

	history, err = f.reports.GetResetHistory(ctx, reports.ResetHistoryFilter{ProductID: &saw})
	require.NoError(t, err)
	assert.Equal(t, 1, history.Stats.Zeroed)
	assert.Equal(t, 0, history.Stats.Active)

	history, err = f.reports.GetResetHistory(ctx, reports.ResetHistoryFilter{Months: 24})
	require.NoError(t, err)
	assert.Equal(t, 4, history.TotalItems)
}

func TestGetCriticalStock(t *testing.T) {
	f := newFixture(t)
	f.move(t, hammer, 1, entity.KindEntry, 10, "5")
	f.move(t, primer, 1, entity.KindEntry, 1, "20")

	asOf := jan(31)
	report, err := f.reports.GetCriticalStock(context.Background(), &asOf, types.NewQuantity(2))
	require.NoError(t, err)
	require.Len(t, report.Items, 2, "saw has never moved and sits at zero")
	assert.Equal(t, "Saw", report.Items[0].ProductName)
	assert.Equal(t, "Primer", report.Items[1].ProductName)
}

func TestGetCriticalStock_CatalogProductsWithoutMovements(t *testing.T) {
	f := newFixture(t)
	f.move(t, hammer, 1, entity.KindEntry, 10, "5")

	asOf := jan(31)
	report, err := f.reports.GetCriticalStock(context.Background(), &asOf, types.NewQuantity(5))
	require.NoError(t, err)
	require.Len(t, report.Items, 2)
	codes := []string{report.Items[0].ProductCode, report.Items[1].ProductCode}
	assert.ElementsMatch(t, []string{"SAW", "PRI"}, codes)
	for _, it := range report.Items {
		assert.True(t, it.Quantity.IsZero())
	}
}

func TestReports_Cancelled(t *testing.T) {
	f := newFixture(t)
	f.move(t, hammer, 1, entity.KindEntry, 10, "5")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.reports.GetReconciliation(ctx, jan(1), jan(31))
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeCancelled))
}
