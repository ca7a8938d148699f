package valuation_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/valuation"
)

// Entry 100 @ 10 on Jan 1, exit 40 @ 15 on Jan 10, count of 50 on Jan 15.
func scenarioP(t *testing.T, opts ...valuation.Option) *ledger {
	l := newLedger(t, opts...)
	l.entry(productP, jan(1), 100, "10")
	l.exit(productP, jan(10), 40, "15")
	l.reset(productP, jan(15), 50, "10")
	return l
}

func TestSnapshot_ScenarioP(t *testing.T) {
	l := scenarioP(t)

	s := l.snapshot(productP, jan(10))
	assert.Equal(t, types.NewQuantity(60), s.Quantity)
	assertMoney(t, "600", s.CostBasisValue)
	require.NotNil(t, s.LastEntryUnitCost)
	assertMoney(t, "10", *s.LastEntryUnitCost)
	assert.Equal(t, jan(1), *s.LastEntryDate)
	assert.True(t, s.HasPriorEntry)
	assert.Nil(t, s.AnchorDate)

	s = l.snapshot(productP, jan(15))
	assert.Equal(t, types.NewQuantity(50), s.Quantity, "reset wins over the replayed 60")
	require.NotNil(t, s.AnchorDate)
	assert.Equal(t, jan(15), *s.AnchorDate)
}

func TestSnapshot_BeforeAnyActivity(t *testing.T) {
	l := scenarioP(t)

	s := l.snapshot(productP, jan(1).Add(-time.Second))
	assert.True(t, s.Quantity.IsZero())
	assert.True(t, s.CostBasisValue.IsZero())
	assert.Nil(t, s.LastEntryUnitCost)
	assert.True(t, s.HasPriorEntry)
}

func TestSnapshot_ResetOverride(t *testing.T) {
	l := newLedger(t)
	l.entry(productR, jan(1), 30, "2")
	l.exit(productR, jan(3), 7, "5")
	l.adjust(productR, jan(4), 2, entity.DirectionDecrease)
	// Movement at the reset instant is superseded by the count.
	l.entry(productR, jan(5), 99, "3")
	l.reset(productR, jan(5), 12, "2.5")

	s := l.snapshot(productR, jan(5))
	assert.Equal(t, types.NewQuantity(12), s.Quantity)
	assertMoney(t, "30", s.CostBasisValue)

	l.exit(productR, jan(6), 2, "5")
	s = l.snapshot(productR, jan(6))
	assert.Equal(t, types.NewQuantity(10), s.Quantity)
	assertMoney(t, "25", s.CostBasisValue)
}

func TestSnapshot_Conservation(t *testing.T) {
	l := newLedger(t)
	l.entry(productR, jan(1), 10, "1")
	l.exit(productR, jan(2), 3, "2")
	l.entry(productR, jan(4), 8, "1.5")
	l.adjust(productR, jan(6), 4, entity.DirectionIncrease)
	l.exit(productR, jan(8), 6, "2")
	l.adjust(productR, jan(9), 1, entity.DirectionDecrease)

	t1, t2 := jan(2), jan(9)
	s1 := l.snapshot(productR, t1)
	s2 := l.snapshot(productR, t2)

	cur, err := l.stock.QueryRange(context.Background(), productR, t1, t2, stockRange(true))
	require.NoError(t, err)
	var sum types.Quantity
	for cur.Next(context.Background()) {
		m := cur.Movement()
		sum += m.SignedQuantity()
	}
	require.NoError(t, cur.Err())

	assert.Equal(t, s1.Quantity+sum, s2.Quantity)
	assert.Equal(t, types.NewQuantity(12), s2.Quantity)
}

func TestSnapshot_NoPriorEntry(t *testing.T) {
	l := newLedger(t)
	l.exit(productQ, jan(5), 5, "20")

	s := l.snapshot(productQ, jan(31))
	assert.False(t, s.HasPriorEntry)
	assert.Equal(t, types.NewQuantity(-5), s.Quantity)
	assert.True(t, s.CostBasisValue.IsZero())
}

func TestSnapshot_Idempotent(t *testing.T) {
	l := scenarioP(t)
	for _, asOf := range []time.Time{jan(1), jan(10), jan(15), jan(31)} {
		assert.Equal(t, l.snapshot(productP, asOf), l.snapshot(productP, asOf))
	}
}

func TestSnapshots_CatalogOrderAndResetOnlyProducts(t *testing.T) {
	l := scenarioP(t)
	l.reset(productR, jan(2), 4, "1")

	snaps, err := l.engine.Snapshots(context.Background(), jan(31), nil)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, productP, snaps[0].ProductID)
	assert.Equal(t, productR, snaps[1].ProductID)
	assert.Equal(t, types.NewQuantity(4), snaps[1].Quantity)
}

func TestSnapshot_Cancelled(t *testing.T) {
	l := scenarioP(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.engine.Snapshot(ctx, productP, jan(31))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	_, err = l.engine.Snapshots(ctx, jan(31), nil)
	assert.Error(t, err)
}

type countingCache struct {
	entries map[string]valuation.Snapshot
	hits    atomic.Int32
}

func (c *countingCache) Get(_ context.Context, key valuation.CacheKey) (valuation.Snapshot, bool, error) {
	s, ok := c.entries[key.String()]
	if ok {
		c.hits.Add(1)
	}
	return s, ok, nil
}

func (c *countingCache) Set(_ context.Context, key valuation.CacheKey, s valuation.Snapshot) error {
	c.entries[key.String()] = s
	return nil
}

func TestSnapshot_CacheInvalidatedByAppend(t *testing.T) {
	cache := &countingCache{entries: map[string]valuation.Snapshot{}}
	l := scenarioP(t, valuation.WithCache(cache), valuation.WithWorkers(1))

	first := l.snapshot(productP, jan(12))
	second := l.snapshot(productP, jan(12))
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), cache.hits.Load())

	// Backdated append changes the revision, so the cached value is not reused.
	l.exit(productP, jan(11), 5, "15")
	third := l.snapshot(productP, jan(12))
	assert.Equal(t, types.NewQuantity(55), third.Quantity)
	assert.Equal(t, int32(1), cache.hits.Load())
}
