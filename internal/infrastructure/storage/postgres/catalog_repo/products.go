// Package catalog_repo provides the PostgreSQL product catalog.
package catalog_repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgconn"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/catalog"
	"stockledger/internal/infrastructure/storage/postgres"
)

const productsTable = "products"

var productColumns = postgres.ExtractDBColumns[catalog.Product]()

// ProductRepo implements catalog.Repository.
type ProductRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

var _ catalog.Repository = (*ProductRepo)(nil)

// NewProductRepo creates the product catalog repository.
func NewProductRepo(txm *postgres.TxManager) *ProductRepo {
	return &ProductRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Upsert inserts p or replaces every attribute of the row with the same ID.
func (r *ProductRepo) Upsert(ctx context.Context, p *catalog.Product) error {
	data := postgres.StructToMap(p)

	updates := make([]string, 0, len(productColumns))
	for _, col := range postgres.OmitColumns(productColumns, "id") {
		updates = append(updates, col+" = EXCLUDED."+col)
	}

	sql, args, err := r.builder.
		Insert(productsTable).
		SetMap(data).
		Suffix("ON CONFLICT (id) DO UPDATE SET " + strings.Join(updates, ", ")).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert product: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperror.NewDuplicate("product", "code", p.Code).WithCause(err)
		}
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

// GetByID retrieves a product by ID.
func (r *ProductRepo) GetByID(ctx context.Context, productID id.ID) (*catalog.Product, error) {
	sql, args, err := r.builder.
		Select(productColumns...).
		From(productsTable).
		Where(squirrel.Eq{"id": productID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var p catalog.Product
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &p, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("product", productID.String())
		}
		return nil, fmt.Errorf("get product by id: %w", err)
	}
	return &p, nil
}

// List returns products ordered by code. Limit 0 returns every match.
func (r *ProductRepo) List(ctx context.Context, f catalog.ListFilter) ([]catalog.Product, error) {
	sql, args, err := r.listQuery(f).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list products: %w", err)
	}

	var products []catalog.Product
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &products, sql, args...); err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	return products, nil
}

func (r *ProductRepo) listQuery(f catalog.ListFilter) squirrel.SelectBuilder {
	sb := r.builder.
		Select(productColumns...).
		From(productsTable).
		OrderBy("code", "id")

	if len(f.GroupIDs) > 0 {
		sb = sb.Where(squirrel.Expr("group_id = ANY(?)", f.GroupIDs))
	}
	if len(f.ProductIDs) > 0 {
		sb = sb.Where(squirrel.Expr("id = ANY(?)", f.ProductIDs))
	}
	if f.Limit > 0 {
		sb = sb.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		sb = sb.Offset(uint64(f.Offset))
	}
	return sb
}
