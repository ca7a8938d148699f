package catalog

import (
	"context"

	"stockledger/internal/core/id"
)

// Repository defines the interface for product persistence.
type Repository interface {
	// Upsert creates the product or replaces its attributes by ID.
	Upsert(ctx context.Context, p *Product) error

	// GetByID returns apperror CodeNotFound when the product is unknown.
	GetByID(ctx context.Context, productID id.ID) (*Product, error)

	// List returns products ordered by code.
	List(ctx context.Context, f ListFilter) ([]Product, error)
}
