// Package valuation rebuilds stock quantity and cost basis from the movement and
// reset ledgers. Everything here is a pure function of ledger contents: results
// are recomputed per call and never persisted.
package valuation

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/registers/resets"
	"stockledger/internal/domain/registers/stock"
)

var tracer = otel.Tracer("stockledger/valuation")

const DefaultWorkers = 8

// MovementReader is the read side of the movement ledger.
type MovementReader interface {
	QueryRange(ctx context.Context, productID id.ID, from, to time.Time, opts stock.RangeOptions) (*stock.Cursor, error)
	ProductIDs(ctx context.Context) ([]id.ID, error)
	Revision(ctx context.Context, productID id.ID) (int64, error)
}

// ResetReader is the read side of the reset ledger.
type ResetReader interface {
	LatestResetBefore(ctx context.Context, productID id.ID, date time.Time) (entity.ResetEvent, bool, error)
	ListResets(ctx context.Context, f resets.ListFilter) ([]entity.ResetEvent, error)
	Revision(ctx context.Context, productID id.ID) (int64, error)
}

// Engine answers valuation queries over the two ledgers.
// It holds no mutable state between calls.
type Engine struct {
	movements  MovementReader
	resets     ResetReader
	cache      SnapshotCache
	classifier Classifier
	workers    int
}

// Option configures an Engine.
type Option func(*Engine)

// WithCache memoizes snapshots. Keys include ledger revisions, so entries never go stale.
func WithCache(c SnapshotCache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithClassifier replaces the default fiscal/physical classification.
func WithClassifier(c Classifier) Option {
	return func(e *Engine) { e.classifier = c }
}

// WithWorkers bounds per-product fan-out for catalog-wide queries.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// NewEngine creates a valuation engine.
func NewEngine(movements MovementReader, resets ResetReader, opts ...Option) *Engine {
	e := &Engine{
		movements:  movements,
		resets:     resets,
		classifier: SourceClassifier{},
		workers:    DefaultWorkers,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ProductUniverse returns every product with a movement or a reset, sorted.
func (e *Engine) ProductUniverse(ctx context.Context) ([]id.ID, error) {
	ids, err := e.movements.ProductIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("movement products: %w", err)
	}
	rs, err := e.resets.ListResets(ctx, resets.ListFilter{})
	if err != nil {
		return nil, fmt.Errorf("reset products: %w", err)
	}

	seen := make(map[id.ID]struct{}, len(ids))
	for _, pid := range ids {
		seen[pid] = struct{}{}
	}
	for _, r := range rs {
		if _, ok := seen[r.ProductID]; !ok {
			seen[r.ProductID] = struct{}{}
			ids = append(ids, r.ProductID)
		}
	}
	slices.SortFunc(ids, compareIDs)
	return ids, nil
}

// forEachProduct runs fn for every product with at most e.workers in flight.
// The first error cancels the rest; results from a failed run must be discarded.
func (e *Engine) forEachProduct(ctx context.Context, productIDs []id.ID, fn func(ctx context.Context, i int, productID id.ID) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, pid := range productIDs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(ctx, i, pid)
		})
	}
	return g.Wait()
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func compareIDs(a, b id.ID) int {
	return bytes.Compare(a[:], b[:])
}
