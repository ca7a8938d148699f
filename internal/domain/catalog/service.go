package catalog

import (
	"context"
	"fmt"
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/numerator"
	"stockledger/pkg/logger"
)

// codeConfig numbers products as PRD-00001, never resetting.
var codeConfig = numerator.Config{Prefix: "PRD", PadWidth: 5, ResetPeriod: "never"}

// Service provides business logic for the product catalog.
type Service struct {
	repo      Repository
	numerator numerator.Generator
}

// NewService creates a new catalog service.
func NewService(repo Repository, numerator numerator.Generator) *Service {
	return &Service{repo: repo, numerator: numerator}
}

// Save validates and stores a product, assigning an ID and a code when missing.
func (s *Service) Save(ctx context.Context, p *Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if id.IsNil(p.ID) {
		p.ID = id.New()
	}
	if p.Code == "" {
		code, err := s.numerator.GetNextNumber(ctx, codeConfig, nil, time.Now())
		if err != nil {
			return fmt.Errorf("generate code: %w", err)
		}
		p.Code = code
	}
	p.UpdatedAt = time.Now().UTC()

	if err := s.repo.Upsert(ctx, p); err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}

	logger.Info(ctx, "saved product", "product_id", p.ID, "code", p.Code)
	return nil
}

// GetByID returns one product.
func (s *Service) GetByID(ctx context.Context, productID id.ID) (*Product, error) {
	return s.repo.GetByID(ctx, productID)
}

// List returns products matching f.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Product, error) {
	items, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return items, nil
}

// Membership maps each requested group to its products. With no groups given,
// every grouped product is returned. Requested groups without products map to
// an empty slice so callers can still report them.
func (s *Service) Membership(ctx context.Context, groupIDs []id.ID) (map[id.ID][]id.ID, error) {
	items, err := s.List(ctx, ListFilter{GroupIDs: groupIDs})
	if err != nil {
		return nil, err
	}

	out := make(map[id.ID][]id.ID, len(groupIDs))
	for _, g := range groupIDs {
		out[g] = []id.ID{}
	}
	for _, p := range items {
		if p.GroupID == nil {
			continue
		}
		out[*p.GroupID] = append(out[*p.GroupID], p.ID)
	}
	return out, nil
}

// Index returns products keyed by ID for report enrichment.
func (s *Service) Index(ctx context.Context, f ListFilter) (map[id.ID]Product, error) {
	items, err := s.List(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make(map[id.ID]Product, len(items))
	for _, p := range items {
		out[p.ID] = p
	}
	return out, nil
}
