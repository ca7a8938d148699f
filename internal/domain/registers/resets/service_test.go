package resets_test

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
	"stockledger/internal/domain/registers/resets"
	"stockledger/internal/infrastructure/storage/memory"
)

var (
	now      = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	productA = id.MustParse("01900000-0000-7000-8000-00000000000a")
	productB = id.MustParse("01900000-0000-7000-8000-00000000000b")
)

func jan(d int) time.Time { return time.Date(2026, 1, d, 0, 0, 0, 0, time.UTC) }

func reset(p id.ID, day int, qty int64) *entity.ResetEvent {
	return &entity.ResetEvent{
		ProductID:       p,
		Date:            jan(day),
		CountedQuantity: types.NewQuantity(qty),
		CountedUnitCost: types.MustMoney("10"),
	}
}

func newService() *resets.Service {
	return resets.NewService(memory.NewResetStore(), nil, time.Minute).
		WithClock(func() time.Time { return now })
}

func TestAppendReset_Validation(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	negative := reset(productA, 1, -1)
	err := svc.AppendReset(ctx, negative)
	assert.True(t, apperror.IsValidation(err))

	future := reset(productA, 1, 1)
	future.Date = now.Add(time.Hour)
	err = svc.AppendReset(ctx, future)
	assert.True(t, apperror.IsValidation(err))

	noProduct := reset(id.ID{}, 1, 1)
	err = svc.AppendReset(ctx, noProduct)
	assert.True(t, apperror.IsValidation(err))

	badCost := reset(productA, 1, 1)
	badCost.CountedUnitCost = types.MustMoney("-0.01")
	err = svc.AppendReset(ctx, badCost)
	assert.True(t, apperror.IsValidation(err))

	zero := reset(productA, 1, 0)
	require.NoError(t, svc.AppendReset(ctx, zero), "zeroing count is allowed")
}

func TestLatestResetBefore(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	require.NoError(t, svc.AppendReset(ctx, reset(productA, 15, 50)))
	require.NoError(t, svc.AppendReset(ctx, reset(productA, 5, 20)))
	require.NoError(t, svc.AppendReset(ctx, reset(productB, 10, 7)))

	_, found, err := svc.LatestResetBefore(ctx, productA, jan(4))
	require.NoError(t, err)
	assert.False(t, found)

	r, found, err := svc.LatestResetBefore(ctx, productA, jan(14))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, types.NewQuantity(20), r.CountedQuantity)

	r, found, err = svc.LatestResetBefore(ctx, productA, jan(15))
	require.NoError(t, err)
	require.True(t, found, "a reset on the as-of date is its own anchor")
	assert.Equal(t, types.NewQuantity(50), r.CountedQuantity)

	// Same-day recount: the later append wins.
	require.NoError(t, svc.AppendReset(ctx, reset(productA, 15, 48)))
	r, _, err = svc.LatestResetBefore(ctx, productA, jan(20))
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(48), r.CountedQuantity)
}

func TestListResets(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	require.NoError(t, svc.AppendReset(ctx, reset(productB, 3, 1)))
	require.NoError(t, svc.AppendReset(ctx, reset(productA, 2, 1)))
	require.NoError(t, svc.AppendReset(ctx, reset(productA, 9, 1)))

	all, err := svc.ListResets(ctx, resets.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, jan(2), all[0].Date)
	assert.Equal(t, jan(9), all[2].Date)

	onlyA, err := svc.ListResets(ctx, resets.ListFilter{ProductID: &productA, From: jan(2), FromExclusive: true})
	require.NoError(t, err)
	require.Len(t, onlyA, 1)
	assert.Equal(t, jan(9), onlyA[0].Date)

	_, err = svc.ListResets(ctx, resets.ListFilter{From: jan(9), To: jan(2)})
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidRange))
}

func TestAppendReset_Duplicate(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	key := "count-2026-01"

	first := reset(productA, 1, 5)
	first.IdempotencyKey = &key
	require.NoError(t, svc.AppendReset(ctx, first))

	second := reset(productA, 1, 5)
	second.IdempotencyKey = &key
	assert.True(t, apperror.IsDuplicate(svc.AppendReset(ctx, second)))
}
