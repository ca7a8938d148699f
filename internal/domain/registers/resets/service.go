package resets

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

// Service provides business operations for the reset ledger.
type Service struct {
	repo      Repository
	txm       tx.Manager
	clockSkew time.Duration
	now       func() time.Time
}

// NewService creates a new reset ledger service.
func NewService(repo Repository, txm tx.Manager, clockSkew time.Duration) *Service {
	if txm == nil {
		txm = tx.Nop{}
	}
	if clockSkew <= 0 {
		clockSkew = 5 * time.Minute
	}
	return &Service{
		repo:      repo,
		txm:       txm,
		clockSkew: clockSkew,
		now:       time.Now,
	}
}

// WithClock replaces the wall clock used for the future-date check.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// AppendReset validates r and appends it to the reset ledger.
func (s *Service) AppendReset(ctx context.Context, r *entity.ResetEvent) error {
	if err := ValidateReset(r, s.now(), s.clockSkew); err != nil {
		return err
	}
	if id.IsNil(r.ID) {
		r.ID = id.New()
	}
	r.Date = r.Date.UTC()
	r.RecordedAt = s.now().UTC()

	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.repo.AppendReset(ctx, r)
	})
	if err != nil {
		if apperror.IsAppError(err) {
			return err
		}
		return fmt.Errorf("append reset: %w", err)
	}

	logger.Info(ctx, "recorded stock reset",
		"product_id", r.ProductID,
		"date", r.Date,
		"counted_quantity", r.CountedQuantity.String(),
	)
	return nil
}

// ValidateReset checks a reset before it may enter the ledger.
func ValidateReset(r *entity.ResetEvent, now time.Time, skew time.Duration) error {
	if id.IsNil(r.ProductID) {
		return apperror.NewValidation("product_id is required")
	}
	if r.Date.IsZero() {
		return apperror.NewValidation("date is required")
	}
	if r.Date.After(now.Add(skew)) {
		return apperror.NewValidation("reset date is in the future").
			WithDetail("date", r.Date)
	}
	if r.CountedQuantity.IsNegative() {
		return apperror.NewValidation("counted_quantity must not be negative").
			WithDetail("countedQuantity", r.CountedQuantity.String())
	}
	if r.CountedUnitCost.IsNegative() {
		return apperror.NewValidation("counted_unit_cost must not be negative")
	}
	return nil
}

// LatestResetBefore returns the anchor reset for a snapshot as of date.
func (s *Service) LatestResetBefore(ctx context.Context, productID id.ID, date time.Time) (entity.ResetEvent, bool, error) {
	r, found, err := s.repo.LatestResetBefore(ctx, productID, date)
	if err != nil {
		return entity.ResetEvent{}, false, fmt.Errorf("latest reset: %w", err)
	}
	return r, found, nil
}

// ListResets returns resets matching f in ledger order.
func (s *Service) ListResets(ctx context.Context, f ListFilter) ([]entity.ResetEvent, error) {
	if !f.From.IsZero() && !f.To.IsZero() && f.From.After(f.To) {
		return nil, apperror.NewInvalidRange("from must be before to")
	}
	out, err := s.repo.ListResets(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list resets: %w", err)
	}
	return out, nil
}

// Revision returns the reset revision of a product.
func (s *Service) Revision(ctx context.Context, productID id.ID) (int64, error) {
	return s.repo.Revision(ctx, productID)
}
