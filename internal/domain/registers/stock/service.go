package stock

import (
	"context"
	"fmt"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/pkg/logger"
)

const (
	DefaultClockSkew = 5 * time.Minute
	DefaultPageSize  = 500
)

// Config tunes ledger ingestion and reads.
type Config struct {
	// ClockSkew is how far in the future a movement timestamp may be.
	ClockSkew time.Duration
	// PageSize is the number of movements fetched per cursor page.
	PageSize int
}

// RangeOptions adjusts QueryRange bounds and paging.
type RangeOptions struct {
	FromExclusive bool
	ToExclusive   bool
	// PageSize overrides Config.PageSize when positive.
	PageSize int
	// After resumes a previous cursor strictly after this position.
	After *entity.Position
}

// Service provides business operations for the movement ledger.
// Appends are serialized per product by the repository.
type Service struct {
	repo Repository
	txm  tx.Manager
	cfg  Config
	now  func() time.Time
}

// NewService creates a new movement ledger service.
func NewService(repo Repository, txm tx.Manager, cfg Config) *Service {
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = DefaultClockSkew
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if txm == nil {
		txm = tx.Nop{}
	}
	return &Service{
		repo: repo,
		txm:  txm,
		cfg:  cfg,
		now:  time.Now,
	}
}

// WithClock replaces the wall clock used for the future-timestamp check.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// AppendMovement validates m and appends it to the ledger.
// On success m carries its assigned ID, Sequence and RecordedAt.
func (s *Service) AppendMovement(ctx context.Context, m *entity.Movement) error {
	if err := ValidateMovement(m, s.now(), s.cfg.ClockSkew); err != nil {
		return err
	}
	if id.IsNil(m.ID) {
		m.ID = id.New()
	}
	m.Timestamp = m.Timestamp.UTC()
	m.RecordedAt = s.now().UTC()

	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.repo.AppendMovement(ctx, m)
	})
	if err != nil {
		if apperror.IsAppError(err) {
			return err
		}
		return fmt.Errorf("append movement: %w", err)
	}

	logger.Debug(ctx, "appended stock movement",
		"product_id", m.ProductID,
		"kind", m.Kind,
		"sequence", m.Sequence,
	)

	return nil
}

// ValidateMovement checks a movement before it may enter the ledger.
func ValidateMovement(m *entity.Movement, now time.Time, skew time.Duration) error {
	if id.IsNil(m.ProductID) {
		return apperror.NewValidation("product_id is required")
	}
	if !m.Kind.Valid() {
		return apperror.NewValidation(fmt.Sprintf("unknown movement kind %q", m.Kind)).
			WithDetail("kind", m.Kind)
	}
	if !m.Source.Valid() {
		return apperror.NewValidation(fmt.Sprintf("unknown movement source %q", m.Source)).
			WithDetail("source", m.Source)
	}
	if !m.Quantity.IsPositive() {
		return apperror.NewValidation("quantity must be positive").
			WithDetail("quantity", m.Quantity.String())
	}
	if m.Timestamp.IsZero() {
		return apperror.NewValidation("timestamp is required")
	}
	if m.Timestamp.After(now.Add(skew)) {
		return apperror.NewValidation("timestamp is in the future").
			WithDetail("timestamp", m.Timestamp).
			WithDetail("clockSkew", skew.String())
	}

	switch m.Kind {
	case entity.KindEntry:
		if m.UnitCost == nil {
			return apperror.NewValidation("entry requires unit_cost")
		}
		if m.UnitCost.IsNegative() {
			return apperror.NewValidation("unit_cost must not be negative")
		}
	case entity.KindExit:
		if m.UnitPrice == nil {
			return apperror.NewValidation("exit requires unit_price")
		}
		if m.UnitPrice.IsNegative() {
			return apperror.NewValidation("unit_price must not be negative")
		}
	case entity.KindAdjustment:
		if !m.Direction.Valid() {
			return apperror.NewValidation("adjustment requires direction (increase or decrease)")
		}
	}
	if m.Kind != entity.KindAdjustment && m.Direction != "" {
		return apperror.NewValidation("direction is only allowed on adjustments")
	}

	return nil
}

// QueryRange returns a lazy cursor over a product's movements between from and
// to, ordered by (timestamp, sequence). A zero from or to leaves that side open.
func (s *Service) QueryRange(ctx context.Context, productID id.ID, from, to time.Time, opts RangeOptions) (*Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperror.FromContext(err)
	}
	if id.IsNil(productID) {
		return nil, apperror.NewValidation("product_id is required")
	}
	if !from.IsZero() && !to.IsZero() {
		if from.After(to) {
			return nil, apperror.NewInvalidRange("from must be before to").
				WithDetail("from", from).
				WithDetail("to", to)
		}
	}

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = s.cfg.PageSize
	}

	return newCursor(s.repo, PageQuery{
		ProductID:     productID,
		From:          from,
		FromExclusive: opts.FromExclusive,
		To:            to,
		ToExclusive:   opts.ToExclusive,
		After:         opts.After,
		Limit:         pageSize,
	}), nil
}

// ProductIDs returns every product that has ledger activity.
func (s *Service) ProductIDs(ctx context.Context) ([]id.ID, error) {
	ids, err := s.repo.ProductIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list product ids: %w", err)
	}
	return ids, nil
}

// Revision returns the ledger revision of a product; it changes on every append.
func (s *Service) Revision(ctx context.Context, productID id.ID) (int64, error) {
	return s.repo.Revision(ctx, productID)
}
