package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"stockledger/internal/core/tx"
	"stockledger/pkg/logger"
)

var tracer = otel.Tracer("stockledger/tx")

var _ tx.Manager = (*TxManager)(nil)

// ErrNoTransaction is returned by operations that only make sense inside
// RunInTransaction.
var ErrNoTransaction = errors.New("no transaction in context")

// DefaultStatementTimeout bounds every statement of a ledger transaction.
const DefaultStatementTimeout = 30 * time.Second

// TxManager runs ledger writes in read-committed transactions. The active
// transaction travels in the context so repositories pick it up through
// GetQuerier, and a nested RunInTransaction joins the outer one.
type TxManager struct {
	pool             *pgxpool.Pool
	statementTimeout time.Duration
}

// NewTxManager creates a transaction manager over pool.
func NewTxManager(pool *Pool) *TxManager {
	return &TxManager{pool: pool.Pool, statementTimeout: DefaultStatementTimeout}
}

// WithStatementTimeout sets SET LOCAL statement_timeout for new transactions.
// Zero leaves the server default in place.
func (m *TxManager) WithStatementTimeout(d time.Duration) *TxManager {
	m.statementTimeout = d
	return m
}

type txKey struct{}

// Querier is the subset of pgx shared by a pool and a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// RunInTransaction executes fn inside a transaction, committing when fn
// returns nil. Inside an existing transaction fn simply joins it, so the
// outermost caller decides the outcome.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if txFrom(ctx) != nil {
		return fn(ctx)
	}

	ctx, span := tracer.Start(ctx, "ledger.transaction")
	span.SetAttributes(attribute.Int64("tx.statement_timeout_ms", m.statementTimeout.Milliseconds()))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	pgTx, err := m.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err = m.applyTimeout(ctx, pgTx); err == nil {
		err = fn(context.WithValue(ctx, txKey{}, pgTx))
	}
	if err != nil {
		// The caller's context may already be cancelled.
		if rbErr := pgTx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			logger.Error(ctx, "rollback failed", "error", rbErr, "cause", err)
		}
		return err
	}

	if err = pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (m *TxManager) applyTimeout(ctx context.Context, pgTx pgx.Tx) error {
	if m.statementTimeout <= 0 {
		return nil
	}
	stmt := fmt.Sprintf("SET LOCAL statement_timeout = %d", m.statementTimeout.Milliseconds())
	if _, err := pgTx.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("set statement_timeout: %w", err)
	}
	return nil
}

func txFrom(ctx context.Context) pgx.Tx {
	t, _ := ctx.Value(txKey{}).(pgx.Tx)
	return t
}

// InTransaction reports whether ctx carries an open transaction.
func (m *TxManager) InTransaction(ctx context.Context) bool {
	return txFrom(ctx) != nil
}

// GetQuerier returns the transaction in ctx, or the pool outside one.
func (m *TxManager) GetQuerier(ctx context.Context) Querier {
	if t := txFrom(ctx); t != nil {
		return t
	}
	return m.pool
}

// LockKey takes a transaction-scoped advisory lock on hashtext(key), blocking
// until concurrent holders commit or roll back.
func (m *TxManager) LockKey(ctx context.Context, key string) error {
	t := txFrom(ctx)
	if t == nil {
		return fmt.Errorf("advisory lock %q: %w", key, ErrNoTransaction)
	}
	if _, err := t.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", key); err != nil {
		return fmt.Errorf("advisory lock %q: %w", key, err)
	}
	return nil
}
