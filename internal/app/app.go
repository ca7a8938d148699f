// Package app assembles stores, services and infrastructure from configuration.
// Every binary under cmd/ builds its dependencies through Build.
package app

import (
	"context"
	"errors"
	"fmt"

	corenumerator "stockledger/internal/core/numerator"
	"stockledger/internal/core/tx"
	"stockledger/internal/domain/catalog"
	"stockledger/internal/domain/registers/resets"
	"stockledger/internal/domain/registers/stock"
	"stockledger/internal/domain/reports"
	"stockledger/internal/domain/valuation"
	"stockledger/internal/infrastructure/cache"
	"stockledger/internal/infrastructure/config"
	"stockledger/internal/infrastructure/http/v1/handlers"
	"stockledger/internal/infrastructure/numerator"
	"stockledger/internal/infrastructure/rules"
	"stockledger/internal/infrastructure/storage/memory"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/internal/infrastructure/storage/postgres/catalog_repo"
	"stockledger/internal/infrastructure/storage/postgres/migrations"
	"stockledger/internal/infrastructure/storage/postgres/register_repo"
	"stockledger/pkg/logger"
)

// App holds the wired services. Close releases everything Build opened.
type App struct {
	Movements *stock.Service
	Resets    *resets.Service
	Catalog   *catalog.Service
	Engine    *valuation.Engine
	Reports   *reports.Service

	// Checks are probed by the readiness endpoint.
	Checks map[string]handlers.Pinger

	pool   *postgres.Pool
	cache  *cache.SnapshotCache
	closer []func() error
}

// Build wires the application. An empty database.url selects the in-memory
// store; an empty redis.addr disables the snapshot cache.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{Checks: make(map[string]handlers.Pinger)}

	var (
		movementRepo stock.Repository
		resetRepo    resets.Repository
		productRepo  catalog.Repository
		codes        corenumerator.Generator
		txm          tx.Manager
	)

	if cfg.UseMemory() {
		log.Warn("database.url is empty, using in-memory store (data is lost on restart)")
		store := memory.New()
		movementRepo, resetRepo, productRepo, codes = store.Movements, store.Resets, store.Products, store.Numerator
	} else {
		if cfg.Database.AutoMigrate {
			if err := migrate(cfg.Database.URL, log); err != nil {
				return nil, err
			}
		}

		poolCfg := postgres.DefaultPoolConfig(cfg.Database.URL)
		poolCfg.MaxConns = cfg.Database.MaxConns
		poolCfg.MinConns = cfg.Database.MinConns
		poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime
		poolCfg.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

		pool, err := postgres.NewPool(ctx, poolCfg)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		a.pool = pool
		a.closer = append(a.closer, func() error { pool.Close(); return nil })
		a.Checks["database"] = pool
		postgres.LogPoolStats(ctx, pool.Pool)

		pgTx := postgres.NewTxManager(pool).WithStatementTimeout(cfg.Database.StatementTimeout)
		txm = pgTx
		movementRepo = register_repo.NewMovementRepo(pgTx)
		resetRepo = register_repo.NewResetRepo(pgTx)
		productRepo = catalog_repo.NewProductRepo(pgTx)
		codes = numerator.New(pool)
	}

	classifier, err := rules.NewCELClassifier(cfg.Reconciliation.FiscalRule, cfg.Reconciliation.PhysicalRule)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("reconciliation rules: %w", err)
	}
	opts := []valuation.Option{
		valuation.WithClassifier(classifier),
		valuation.WithWorkers(cfg.Ledger.Workers),
	}

	if cfg.Redis.Addr != "" {
		snapshots, err := cache.NewSnapshotCache(cache.Config{
			Addr:              cfg.Redis.Addr,
			Password:          cfg.Redis.Password,
			DB:                cfg.Redis.DB,
			TTL:               cfg.Redis.TTL,
			CompressThreshold: cfg.Redis.CompressThreshold,
			Prefix:            cfg.App.Name,
		})
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("snapshot cache: %w", err)
		}
		a.cache = snapshots
		a.closer = append(a.closer, snapshots.Close)
		a.Checks["redis"] = snapshots
		opts = append(opts, valuation.WithCache(snapshots))
	}

	a.Movements = stock.NewService(movementRepo, txm, stock.Config{
		ClockSkew: cfg.Ledger.ClockSkew,
		PageSize:  cfg.Ledger.PageSize,
	})
	a.Resets = resets.NewService(resetRepo, txm, cfg.Ledger.ClockSkew)
	a.Catalog = catalog.NewService(productRepo, codes)
	a.Engine = valuation.NewEngine(a.Movements, a.Resets, opts...)
	a.Reports = reports.NewService(a.Engine, a.Catalog, a.Resets)

	log.Infow("application wired",
		"store", storeName(cfg),
		"snapshot_cache", a.cache != nil,
		"workers", cfg.Ledger.Workers,
	)
	return a, nil
}

// Stats reports pool statistics, or nil for the in-memory store.
func (a *App) Stats() any {
	if a.pool == nil {
		return nil
	}
	return a.pool.Stats()
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closer) - 1; i >= 0; i-- {
		if err := a.closer[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closer = nil
	return errors.Join(errs...)
}

func migrate(url string, log *logger.Logger) error {
	m, err := migrations.New(url, log)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	if err := m.Up(); err != nil {
		_ = m.Close()
		return fmt.Errorf("apply migrations: %w", err)
	}
	return m.Close()
}

func storeName(cfg *config.Config) string {
	if cfg.UseMemory() {
		return "memory"
	}
	return "postgres"
}
