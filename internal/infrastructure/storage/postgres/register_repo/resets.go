package register_repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/registers/resets"
	"stockledger/internal/infrastructure/storage/postgres"
)

const resetsTable = "stock_resets"

var resetColumns = postgres.ExtractDBColumns[entity.ResetEvent]()

// ResetRepo implements resets.Repository.
type ResetRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

var _ resets.Repository = (*ResetRepo)(nil)

// NewResetRepo creates the reset ledger repository.
func NewResetRepo(txm *postgres.TxManager) *ResetRepo {
	return &ResetRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// AppendReset inserts r and reads back its sequence.
func (r *ResetRepo) AppendReset(ctx context.Context, ev *entity.ResetEvent) error {
	if id.IsNil(ev.ID) {
		ev.ID = id.New()
	}
	if r.txm.InTransaction(ctx) {
		if err := r.txm.LockKey(ctx, resetsTable+":"+ev.ProductID.String()); err != nil {
			return err
		}
	}

	data := postgres.StructToMap(ev)
	delete(data, "sequence")

	sql, args, err := r.builder.
		Insert(resetsTable).
		SetMap(data).
		Suffix("RETURNING sequence").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert reset: %w", err)
	}

	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&ev.Sequence); err != nil {
		if isUniqueViolation(err) {
			key := ""
			if ev.IdempotencyKey != nil {
				key = *ev.IdempotencyKey
			}
			return apperror.NewDuplicate("reset", "idempotency_key", key).WithCause(err)
		}
		return fmt.Errorf("insert reset: %w", err)
	}
	return nil
}

// LatestResetBefore returns the latest reset at or before date.
func (r *ResetRepo) LatestResetBefore(ctx context.Context, productID id.ID, date time.Time) (entity.ResetEvent, bool, error) {
	sql, args, err := r.builder.
		Select(resetColumns...).
		From(resetsTable).
		Where(squirrel.Eq{"product_id": productID}).
		Where(squirrel.LtOrEq{"reset_at": date}).
		OrderBy("reset_at DESC", "sequence DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return entity.ResetEvent{}, false, fmt.Errorf("build latest reset: %w", err)
	}

	var ev entity.ResetEvent
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &ev, sql, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return entity.ResetEvent{}, false, nil
		}
		return entity.ResetEvent{}, false, fmt.Errorf("select latest reset: %w", err)
	}
	normalizeReset(&ev)
	return ev, true, nil
}

// ListResets returns matching resets ordered by (reset_at, sequence).
func (r *ResetRepo) ListResets(ctx context.Context, f resets.ListFilter) ([]entity.ResetEvent, error) {
	sql, args, err := r.listQuery(f).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list resets: %w", err)
	}

	var events []entity.ResetEvent
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &events, sql, args...); err != nil {
		return nil, fmt.Errorf("select resets: %w", err)
	}
	for i := range events {
		normalizeReset(&events[i])
	}
	return events, nil
}

func (r *ResetRepo) listQuery(f resets.ListFilter) squirrel.SelectBuilder {
	sb := r.builder.
		Select(resetColumns...).
		From(resetsTable).
		OrderBy("reset_at", "sequence")

	if f.ProductID != nil {
		sb = sb.Where(squirrel.Eq{"product_id": *f.ProductID})
	}
	if !f.From.IsZero() {
		if f.FromExclusive {
			sb = sb.Where(squirrel.Gt{"reset_at": f.From})
		} else {
			sb = sb.Where(squirrel.GtOrEq{"reset_at": f.From})
		}
	}
	if !f.To.IsZero() {
		sb = sb.Where(squirrel.LtOrEq{"reset_at": f.To})
	}

	return sb
}

// Revision returns the highest reset sequence for the product.
func (r *ResetRepo) Revision(ctx context.Context, productID id.ID) (int64, error) {
	return maxSequence(ctx, r.txm, r.builder, resetsTable, productID)
}

func normalizeReset(ev *entity.ResetEvent) {
	ev.Date = ev.Date.UTC()
	ev.RecordedAt = ev.RecordedAt.UTC()
}
