//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/catalog"
	"stockledger/internal/domain/registers/resets"
	"stockledger/internal/domain/registers/stock"
	"stockledger/internal/domain/valuation"
	"stockledger/internal/infrastructure/numerator"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/internal/infrastructure/storage/postgres/catalog_repo"
	"stockledger/internal/infrastructure/storage/postgres/migrations"
	"stockledger/internal/infrastructure/storage/postgres/register_repo"
)

type testDB struct {
	pool *postgres.Pool
	txm  *postgres.TxManager
}

func newTestDB(t *testing.T) *testDB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("stockledger_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	m, err := migrations.New(dsn, nil)
	require.NoError(t, err)
	require.NoError(t, m.Up())
	require.NoError(t, m.Close())

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(dsn))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return &testDB{pool: pool, txm: postgres.NewTxManager(pool)}
}

func TestPostgresLedger(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	stockSvc := stock.NewService(register_repo.NewMovementRepo(db.txm), db.txm, stock.Config{PageSize: 2}).WithClock(clock)
	resetSvc := resets.NewService(register_repo.NewResetRepo(db.txm), db.txm, time.Minute).WithClock(clock)
	engine := valuation.NewEngine(stockSvc, resetSvc)

	product := id.New()
	day := func(d int) time.Time { return time.Date(2026, 1, d, 0, 0, 0, 0, time.UTC) }
	cost := func(s string) *types.Money { m := types.MustMoney(s); return &m }
	key := "inv-1/line-1"

	movements := []*entity.Movement{
		{ProductID: product, Timestamp: day(1), Kind: entity.KindEntry, Quantity: types.NewQuantity(10), UnitCost: cost("5.00"), Source: entity.SourceInvoice, IdempotencyKey: &key},
		{ProductID: product, Timestamp: day(5), Kind: entity.KindExit, Quantity: types.NewQuantity(4), UnitPrice: cost("9.00"), Source: entity.SourceInvoice},
		{ProductID: product, Timestamp: day(10), Kind: entity.KindEntry, Quantity: types.NewQuantity(6), UnitCost: cost("6.50"), Source: entity.SourceProduction},
		{ProductID: product, Timestamp: day(12), Kind: entity.KindAdjustment, Direction: entity.DirectionDecrease, Quantity: types.NewQuantity(1), Source: entity.SourceManual},
	}
	for _, m := range movements {
		require.NoError(t, stockSvc.AppendMovement(ctx, m))
		assert.Positive(t, m.Sequence)
	}

	t.Run("duplicate idempotency key", func(t *testing.T) {
		dup := *movements[0]
		dup.ID = id.ID{}
		err := stockSvc.AppendMovement(ctx, &dup)
		assert.True(t, apperror.IsDuplicate(err))
	})

	t.Run("range in ledger order across pages", func(t *testing.T) {
		cur, err := stockSvc.QueryRange(ctx, product, day(1), day(31), stock.RangeOptions{})
		require.NoError(t, err)
		got, err := stock.Collect(ctx, cur)
		require.NoError(t, err)
		require.Len(t, got, 4)
		for i := 1; i < len(got); i++ {
			assert.True(t, got[i-1].Position().Before(got[i].Position()))
		}
		assert.True(t, got[0].UnitCost.Equal(types.MustMoney("5.00")))
		assert.Nil(t, got[1].UnitCost)
		assert.Equal(t, entity.DirectionDecrease, got[3].Direction)
	})

	t.Run("snapshot with reset", func(t *testing.T) {
		snap, err := engine.Snapshot(ctx, product, day(20))
		require.NoError(t, err)
		assert.Equal(t, types.NewQuantity(11), snap.Quantity)
		assert.True(t, snap.CostBasisValue.Equal(types.MustMoney("71.50")))

		require.NoError(t, resetSvc.AppendReset(ctx, &entity.ResetEvent{
			ProductID: product, Date: day(15),
			CountedQuantity: types.NewQuantity(8), CountedUnitCost: types.MustMoney("7.00"),
		}))

		snap, err = engine.Snapshot(ctx, product, day(20))
		require.NoError(t, err)
		assert.Equal(t, types.NewQuantity(8), snap.Quantity)
		assert.True(t, snap.CostBasisValue.Equal(types.MustMoney("56.00")))

		latest, found, err := resetSvc.LatestResetBefore(ctx, product, day(15))
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, day(15), latest.Date)
	})
}

func TestPostgresConcurrentAppendsAreSequenced(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	svc := stock.NewService(register_repo.NewMovementRepo(db.txm), db.txm, stock.Config{})
	product := id.New()
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cost := types.MustMoney("1")
			errs <- svc.AppendMovement(ctx, &entity.Movement{
				ProductID: product, Timestamp: at, Kind: entity.KindEntry,
				Quantity: types.NewQuantity(1), UnitCost: &cost, Source: entity.SourceInvoice,
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	rev, err := svc.Revision(ctx, product)
	require.NoError(t, err)
	assert.Positive(t, rev)

	cur, err := svc.QueryRange(ctx, product, at, at, stock.RangeOptions{PageSize: 7})
	require.NoError(t, err)
	got, err := stock.Collect(ctx, cur)
	require.NoError(t, err)
	assert.Len(t, got, 20)
}

func TestPostgresCatalog(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	svc := catalog.NewService(catalog_repo.NewProductRepo(db.txm), numerator.New(db.pool))

	group := id.New()
	hammer := &catalog.Product{Name: "Hammer", GroupID: &group, GroupName: "Tools"}
	saw := &catalog.Product{Name: "Saw", GroupID: &group, GroupName: "Tools"}
	loose := &catalog.Product{Name: "Rope"}
	for _, p := range []*catalog.Product{hammer, saw, loose} {
		require.NoError(t, svc.Save(ctx, p))
	}
	assert.Equal(t, "PRD-00001", hammer.Code)
	assert.Equal(t, "PRD-00002", saw.Code)

	got, err := svc.GetByID(ctx, saw.ID)
	require.NoError(t, err)
	assert.Equal(t, "Saw", got.Name)

	members, err := svc.Membership(ctx, []id.ID{group})
	require.NoError(t, err)
	assert.ElementsMatch(t, []id.ID{hammer.ID, saw.ID}, members[group])

	_, err = svc.GetByID(ctx, id.New())
	assert.True(t, apperror.IsNotFound(err))
}

func TestPostgresTxManager(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	svc := stock.NewService(register_repo.NewMovementRepo(db.txm), db.txm, stock.Config{})
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	entry := func(product id.ID) *entity.Movement {
		cost := types.MustMoney("1")
		return &entity.Movement{
			ProductID: product, Timestamp: at, Kind: entity.KindEntry,
			Quantity: types.NewQuantity(1), UnitCost: &cost, Source: entity.SourceInvoice,
		}
	}
	count := func(product id.ID) int {
		cur, err := svc.QueryRange(ctx, product, at, at, stock.RangeOptions{})
		require.NoError(t, err)
		got, err := stock.Collect(ctx, cur)
		require.NoError(t, err)
		return len(got)
	}

	t.Run("nested call joins the outer transaction", func(t *testing.T) {
		product := id.New()
		boom := errors.New("boom")
		err := db.txm.RunInTransaction(ctx, func(ctx context.Context) error {
			assert.True(t, db.txm.InTransaction(ctx))
			require.NoError(t, svc.AppendMovement(ctx, entry(product)))
			require.NoError(t, svc.AppendMovement(ctx, entry(product)))
			return boom
		})
		require.ErrorIs(t, err, boom)
		assert.Zero(t, count(product), "both appends roll back with the outer transaction")
	})

	t.Run("commit", func(t *testing.T) {
		product := id.New()
		err := db.txm.RunInTransaction(ctx, func(ctx context.Context) error {
			return svc.AppendMovement(ctx, entry(product))
		})
		require.NoError(t, err)
		assert.Equal(t, 1, count(product))
	})

	t.Run("statement timeout", func(t *testing.T) {
		txm := postgres.NewTxManager(db.pool).WithStatementTimeout(50 * time.Millisecond)
		err := txm.RunInTransaction(ctx, func(ctx context.Context) error {
			_, err := txm.GetQuerier(ctx).Exec(ctx, "SELECT pg_sleep(1)")
			return err
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "statement timeout")
	})
}
