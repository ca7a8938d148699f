// Package main loads a JSON fixture of products, movements and resets through
// the ledger services. Records carrying an idempotency key are skipped when
// already present, so a fixture can be loaded repeatedly.
//
// Usage: seed [fixture.json]   (defaults to the embedded demo fixture)
package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"stockledger/internal/app"
	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/domain/catalog"
	"stockledger/internal/infrastructure/config"
	"stockledger/pkg/logger"
)

//go:embed demo.json
var demoFixture []byte

// Fixture is the seed file layout.
type Fixture struct {
	Products  []catalog.Product   `json:"products"`
	Movements []entity.Movement   `json:"movements"`
	Resets    []entity.ResetEvent `json:"resets"`
}

// Result counts what a load did.
type Result struct {
	Products  int
	Movements int
	Resets    int
	Skipped   int
}

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Development: true})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	raw := demoFixture
	if flag.NArg() > 0 {
		raw, err = os.ReadFile(flag.Arg(0))
		if err != nil {
			log.Fatalw("failed to read fixture", "path", flag.Arg(0), "error", err)
		}
	}

	var fx Fixture
	if err := json.Unmarshal(raw, &fx); err != nil {
		log.Fatalw("failed to parse fixture", "error", err)
	}

	ctx := logger.WithLogger(context.Background(), log)
	application, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatalw("failed to build application", "error", err)
	}
	defer func() { _ = application.Close() }()

	res, err := load(ctx, application, fx)
	if err != nil {
		log.Fatalw("seed failed", "error", err)
	}
	log.Infow("seed complete",
		"products", res.Products,
		"movements", res.Movements,
		"resets", res.Resets,
		"skipped", res.Skipped,
	)
}

// load saves products first so codes exist before any report runs, then
// appends movements and resets in file order.
func load(ctx context.Context, a *app.App, fx Fixture) (Result, error) {
	var res Result

	for i := range fx.Products {
		if err := a.Catalog.Save(ctx, &fx.Products[i]); err != nil {
			return res, fmt.Errorf("product %q: %w", fx.Products[i].Name, err)
		}
		res.Products++
	}

	for i := range fx.Movements {
		m := &fx.Movements[i]
		m.Sequence = 0
		switch err := a.Movements.AppendMovement(ctx, m); {
		case err == nil:
			res.Movements++
		case apperror.IsDuplicate(err):
			res.Skipped++
		default:
			return res, fmt.Errorf("movement %d: %w", i, err)
		}
	}

	for i := range fx.Resets {
		r := &fx.Resets[i]
		r.Sequence = 0
		switch err := a.Resets.AppendReset(ctx, r); {
		case err == nil:
			res.Resets++
		case apperror.IsDuplicate(err):
			res.Skipped++
		default:
			return res, fmt.Errorf("reset %d: %w", i, err)
		}
	}
	return res, nil
}
