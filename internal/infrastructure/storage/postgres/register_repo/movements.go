// Package register_repo provides PostgreSQL implementations of the movement and reset ledgers.
package register_repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgconn"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/registers/stock"
	"stockledger/internal/infrastructure/storage/postgres"
)

const (
	movementsTable = "stock_movements"

	uniqueViolation = "23505"
)

var movementColumns = postgres.ExtractDBColumns[entity.Movement]()

// MovementRepo implements stock.Repository.
type MovementRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

var _ stock.Repository = (*MovementRepo)(nil)

// NewMovementRepo creates the movement ledger repository.
func NewMovementRepo(txm *postgres.TxManager) *MovementRepo {
	return &MovementRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// AppendMovement inserts m and reads back its sequence.
// Inside a transaction, appends for the same product are serialized by an advisory lock
// so sequence order matches commit order per product.
func (r *MovementRepo) AppendMovement(ctx context.Context, m *entity.Movement) error {
	if id.IsNil(m.ID) {
		m.ID = id.New()
	}
	if r.txm.InTransaction(ctx) {
		if err := r.txm.LockKey(ctx, movementsTable+":"+m.ProductID.String()); err != nil {
			return err
		}
	}

	data := postgres.StructToMap(m)
	delete(data, "sequence")

	sql, args, err := r.builder.
		Insert(movementsTable).
		SetMap(data).
		Suffix("RETURNING sequence").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert movement: %w", err)
	}

	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&m.Sequence); err != nil {
		if isUniqueViolation(err) {
			key := ""
			if m.IdempotencyKey != nil {
				key = *m.IdempotencyKey
			}
			return apperror.NewDuplicate("movement", "idempotency_key", key).WithCause(err)
		}
		return fmt.Errorf("insert movement: %w", err)
	}
	return nil
}

// ListMovements returns one keyset page ordered by (occurred_at, sequence).
func (r *MovementRepo) ListMovements(ctx context.Context, q stock.PageQuery) ([]entity.Movement, error) {
	sql, args, err := r.listQuery(q).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list movements: %w", err)
	}

	var movements []entity.Movement
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("select movements: %w", err)
	}
	for i := range movements {
		movements[i].Timestamp = movements[i].Timestamp.UTC()
		movements[i].RecordedAt = movements[i].RecordedAt.UTC()
	}
	return movements, nil
}

func (r *MovementRepo) listQuery(q stock.PageQuery) squirrel.SelectBuilder {
	sb := r.builder.
		Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{"product_id": q.ProductID})

	if !q.From.IsZero() {
		if q.FromExclusive {
			sb = sb.Where(squirrel.Gt{"occurred_at": q.From})
		} else {
			sb = sb.Where(squirrel.GtOrEq{"occurred_at": q.From})
		}
	}
	if !q.To.IsZero() {
		if q.ToExclusive {
			sb = sb.Where(squirrel.Lt{"occurred_at": q.To})
		} else {
			sb = sb.Where(squirrel.LtOrEq{"occurred_at": q.To})
		}
	}
	if q.After != nil {
		sb = sb.Where(squirrel.Expr("(occurred_at, sequence) > (?, ?)", q.After.Timestamp, q.After.Sequence))
	}
	sb = sb.OrderBy("occurred_at", "sequence")
	if q.Limit > 0 {
		sb = sb.Limit(uint64(q.Limit))
	}
	return sb
}

// ProductIDs returns every product with at least one movement.
func (r *MovementRepo) ProductIDs(ctx context.Context) ([]id.ID, error) {
	sql, args, err := r.builder.
		Select("DISTINCT product_id").
		From(movementsTable).
		OrderBy("product_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build product ids: %w", err)
	}

	var ids []id.ID
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &ids, sql, args...); err != nil {
		return nil, fmt.Errorf("select product ids: %w", err)
	}
	return ids, nil
}

// Revision returns the highest sequence stored for the product.
func (r *MovementRepo) Revision(ctx context.Context, productID id.ID) (int64, error) {
	return maxSequence(ctx, r.txm, r.builder, movementsTable, productID)
}

func maxSequence(ctx context.Context, txm *postgres.TxManager, b squirrel.StatementBuilderType, table string, productID id.ID) (int64, error) {
	sql, args, err := b.
		Select("COALESCE(MAX(sequence), 0)").
		From(table).
		Where(squirrel.Eq{"product_id": productID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build revision: %w", err)
	}

	var rev int64
	if err := txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&rev); err != nil {
		return 0, fmt.Errorf("select revision %s: %w", table, err)
	}
	return rev, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
