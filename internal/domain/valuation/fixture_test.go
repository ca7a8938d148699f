package valuation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/registers/resets"
	"stockledger/internal/domain/registers/stock"
	"stockledger/internal/domain/valuation"
	"stockledger/internal/infrastructure/storage/memory"
)

var (
	productP = id.MustParse("01900000-0000-7000-8000-0000000000a1")
	productQ = id.MustParse("01900000-0000-7000-8000-0000000000a2")
	productR = id.MustParse("01900000-0000-7000-8000-0000000000a3")
	clock    = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
)

func jan(d int) time.Time { return time.Date(2026, 1, d, 0, 0, 0, 0, time.UTC) }

func money(s string) *types.Money {
	m := types.MustMoney(s)
	return &m
}

// ledger wires the memory store, both ledger services and an engine.
type ledger struct {
	t        *testing.T
	stock    *stock.Service
	resets   *resets.Service
	engine   *valuation.Engine
	pageSize int
}

func newLedger(t *testing.T, opts ...valuation.Option) *ledger {
	t.Helper()
	store := memory.New()
	stockSvc := stock.NewService(store.Movements, nil, stock.Config{PageSize: 2}).
		WithClock(func() time.Time { return clock })
	resetSvc := resets.NewService(store.Resets, nil, time.Minute).
		WithClock(func() time.Time { return clock })
	return &ledger{
		t:      t,
		stock:  stockSvc,
		resets: resetSvc,
		engine: valuation.NewEngine(stockSvc, resetSvc, opts...),
	}
}

func (l *ledger) entry(p id.ID, at time.Time, qty int64, cost string) {
	l.t.Helper()
	require.NoError(l.t, l.stock.AppendMovement(context.Background(), &entity.Movement{
		ProductID: p, Timestamp: at, Kind: entity.KindEntry,
		Quantity: types.NewQuantity(qty), UnitCost: money(cost), Source: entity.SourceInvoice,
	}))
}

func (l *ledger) exit(p id.ID, at time.Time, qty int64, price string) {
	l.t.Helper()
	require.NoError(l.t, l.stock.AppendMovement(context.Background(), &entity.Movement{
		ProductID: p, Timestamp: at, Kind: entity.KindExit,
		Quantity: types.NewQuantity(qty), UnitPrice: money(price), Source: entity.SourceInvoice,
	}))
}

func (l *ledger) adjust(p id.ID, at time.Time, qty int64, dir entity.Direction) {
	l.t.Helper()
	require.NoError(l.t, l.stock.AppendMovement(context.Background(), &entity.Movement{
		ProductID: p, Timestamp: at, Kind: entity.KindAdjustment, Direction: dir,
		Quantity: types.NewQuantity(qty), Source: entity.SourceManual,
	}))
}

func (l *ledger) append(m *entity.Movement) {
	l.t.Helper()
	require.NoError(l.t, l.stock.AppendMovement(context.Background(), m))
}

func (l *ledger) reset(p id.ID, at time.Time, qty int64, cost string) {
	l.t.Helper()
	require.NoError(l.t, l.resets.AppendReset(context.Background(), &entity.ResetEvent{
		ProductID: p, Date: at, CountedQuantity: types.NewQuantity(qty), CountedUnitCost: types.MustMoney(cost),
	}))
}

func (l *ledger) snapshot(p id.ID, asOf time.Time) valuation.Snapshot {
	l.t.Helper()
	s, err := l.engine.Snapshot(context.Background(), p, asOf)
	require.NoError(l.t, err)
	return s
}

func (l *ledger) period(p id.ID, from, to time.Time) valuation.PeriodAggregate {
	l.t.Helper()
	pid := p
	out, err := l.engine.Aggregate(context.Background(), valuation.PeriodRequest{ProductID: &pid, From: from, To: to})
	require.NoError(l.t, err)
	require.Len(l.t, out, 1)
	return out[0]
}

func assertMoney(t *testing.T, want string, got types.Money) {
	t.Helper()
	require.True(t, types.MustMoney(want).Equal(got), "want %s, got %s", want, got)
}

func stockRange(fromExclusive bool) stock.RangeOptions {
	return stock.RangeOptions{FromExclusive: fromExclusive}
}
