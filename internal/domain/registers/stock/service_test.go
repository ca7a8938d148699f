package stock_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/registers/stock"
	"stockledger/internal/infrastructure/storage/memory"
)

var (
	now     = time.Date(2026, 1, 31, 12, 0, 0, 0, time.UTC)
	product = id.MustParse("01900000-0000-7000-8000-000000000001")
)

func newService(pageSize int) *stock.Service {
	return stock.NewService(memory.NewMovementStore(), nil, stock.Config{PageSize: pageSize}).
		WithClock(func() time.Time { return now })
}

func money(s string) *types.Money {
	m := types.MustMoney(s)
	return &m
}

func entry(day int, qty int64, cost string) *entity.Movement {
	return &entity.Movement{
		ProductID: product,
		Timestamp: time.Date(2026, 1, day, 0, 0, 0, 0, time.UTC),
		Kind:      entity.KindEntry,
		Quantity:  types.NewQuantity(qty),
		UnitCost:  money(cost),
		Source:    entity.SourceInvoice,
	}
}

func exit(day int, qty int64, price string) *entity.Movement {
	return &entity.Movement{
		ProductID: product,
		Timestamp: time.Date(2026, 1, day, 0, 0, 0, 0, time.UTC),
		Kind:      entity.KindExit,
		Quantity:  types.NewQuantity(qty),
		UnitPrice: money(price),
		Source:    entity.SourceInvoice,
	}
}

func TestAppendMovement_Validation(t *testing.T) {
	svc := newService(0)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(m *entity.Movement)
	}{
		{"zero quantity", func(m *entity.Movement) { m.Quantity = 0 }},
		{"negative quantity", func(m *entity.Movement) { m.Quantity = types.NewQuantity(-1) }},
		{"entry without cost", func(m *entity.Movement) { m.UnitCost = nil }},
		{"negative cost", func(m *entity.Movement) { m.UnitCost = money("-1") }},
		{"exit without price", func(m *entity.Movement) { m.Kind = entity.KindExit; m.UnitPrice = nil }},
		{"adjustment without direction", func(m *entity.Movement) { m.Kind = entity.KindAdjustment }},
		{"direction on entry", func(m *entity.Movement) { m.Direction = entity.DirectionIncrease }},
		{"unknown kind", func(m *entity.Movement) { m.Kind = "transfer" }},
		{"unknown source", func(m *entity.Movement) { m.Source = "pos" }},
		{"nil product", func(m *entity.Movement) { m.ProductID = id.ID{} }},
		{"future beyond skew", func(m *entity.Movement) { m.Timestamp = now.Add(10 * time.Minute) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := entry(5, 10, "2.50")
			tt.mutate(m)
			err := svc.AppendMovement(ctx, m)
			require.Error(t, err)
			assert.True(t, apperror.IsValidation(err), "got %v", err)
		})
	}

	t.Run("within skew is accepted", func(t *testing.T) {
		m := entry(5, 10, "2.50")
		m.Timestamp = now.Add(4 * time.Minute)
		require.NoError(t, svc.AppendMovement(ctx, m))
		assert.False(t, id.IsNil(m.ID))
		assert.Positive(t, m.Sequence)
		assert.Equal(t, now, m.RecordedAt)
	})
}

func TestAppendMovement_IdempotencyKey(t *testing.T) {
	svc := newService(0)
	ctx := context.Background()
	key := "invoice-42/line-1"

	first := entry(3, 5, "1")
	first.IdempotencyKey = &key
	require.NoError(t, svc.AppendMovement(ctx, first))

	second := entry(3, 5, "1")
	second.IdempotencyKey = &key
	err := svc.AppendMovement(ctx, second)
	require.Error(t, err)
	assert.True(t, apperror.IsDuplicate(err))

	all, err := stock.Collect(ctx, mustQuery(t, svc, time.Time{}, time.Time{}, stock.RangeOptions{}))
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func mustQuery(t *testing.T, svc *stock.Service, from, to time.Time, opts stock.RangeOptions) *stock.Cursor {
	t.Helper()
	cur, err := svc.QueryRange(context.Background(), product, from, to, opts)
	require.NoError(t, err)
	return cur
}

func TestQueryRange_OrderAndBounds(t *testing.T) {
	svc := newService(2)
	ctx := context.Background()

	// Appended out of timestamp order; ties on day 10 keep append order.
	require.NoError(t, svc.AppendMovement(ctx, exit(10, 1, "5")))
	require.NoError(t, svc.AppendMovement(ctx, entry(1, 10, "2")))
	require.NoError(t, svc.AppendMovement(ctx, entry(10, 3, "3")))
	require.NoError(t, svc.AppendMovement(ctx, exit(20, 2, "5")))
	require.NoError(t, svc.AppendMovement(ctx, entry(5, 1, "2")))

	all, err := stock.Collect(ctx, mustQuery(t, svc, time.Time{}, time.Time{}, stock.RangeOptions{}))
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i := 1; i < len(all); i++ {
		assert.True(t, all[i-1].Position().Before(all[i].Position()), "out of order at %d", i)
	}
	assert.Equal(t, entity.KindExit, all[2].Kind, "earlier append wins the tie")
	assert.Equal(t, entity.KindEntry, all[3].Kind)

	jan := func(d int) time.Time { return time.Date(2026, 1, d, 0, 0, 0, 0, time.UTC) }

	inclusive, err := stock.Collect(ctx, mustQuery(t, svc, jan(5), jan(10), stock.RangeOptions{}))
	require.NoError(t, err)
	assert.Len(t, inclusive, 3)

	exclusiveTo, err := stock.Collect(ctx, mustQuery(t, svc, jan(5), jan(10), stock.RangeOptions{ToExclusive: true}))
	require.NoError(t, err)
	assert.Len(t, exclusiveTo, 1)

	exclusiveFrom, err := stock.Collect(ctx, mustQuery(t, svc, jan(5), jan(10), stock.RangeOptions{FromExclusive: true}))
	require.NoError(t, err)
	assert.Len(t, exclusiveFrom, 2)
}

func TestQueryRange_Restart(t *testing.T) {
	svc := newService(3)
	ctx := context.Background()
	for d := 1; d <= 10; d++ {
		require.NoError(t, svc.AppendMovement(ctx, entry(d, int64(d), "1")))
	}

	cur := mustQuery(t, svc, time.Time{}, time.Time{}, stock.RangeOptions{})
	for i := 0; i < 4; i++ {
		require.True(t, cur.Next(ctx))
	}
	pos := cur.Position()
	require.NotNil(t, pos)

	rest, err := stock.Collect(ctx, mustQuery(t, svc, time.Time{}, time.Time{}, stock.RangeOptions{After: pos}))
	require.NoError(t, err)
	require.Len(t, rest, 6)
	assert.Equal(t, types.NewQuantity(5), rest[0].Quantity)
	assert.Equal(t, types.NewQuantity(10), rest[5].Quantity)
}

func TestQueryRange_InvalidRange(t *testing.T) {
	svc := newService(0)
	_, err := svc.QueryRange(context.Background(), product, now, now.Add(-time.Hour), stock.RangeOptions{})
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidRange))
}

func TestQueryRange_Cancelled(t *testing.T) {
	svc := newService(1)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, svc.AppendMovement(ctx, entry(1, 1, "1")))
	require.NoError(t, svc.AppendMovement(ctx, entry(2, 1, "1")))

	cur := mustQuery(t, svc, time.Time{}, time.Time{}, stock.RangeOptions{})
	require.True(t, cur.Next(ctx))
	cancel()

	assert.False(t, cur.Next(ctx))
	assert.True(t, errors.Is(cur.Err(), context.Canceled))

	_, err := stock.Collect(ctx, mustQuery(t, svc, time.Time{}, time.Time{}, stock.RangeOptions{}))
	assert.Error(t, err)
}

func TestAppendMovement_ConcurrentSequencesUnique(t *testing.T) {
	svc := newService(0)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m := entry(15, 1, fmt.Sprintf("%d", i))
			if err := svc.AppendMovement(ctx, m); err != nil {
				t.Errorf("append: %v", err)
			}
		}(i)
	}
	wg.Wait()

	all, err := stock.Collect(ctx, mustQuery(t, svc, time.Time{}, time.Time{}, stock.RangeOptions{}))
	require.NoError(t, err)
	require.Len(t, all, 40)

	seen := make(map[int64]bool)
	for _, m := range all {
		assert.False(t, seen[m.Sequence], "duplicate sequence %d", m.Sequence)
		seen[m.Sequence] = true
	}
}
