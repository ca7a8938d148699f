package valuation

import (
	"time"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/types"
)

// runningState is the carried state of one product's ledger walk.
// Movements must be applied strictly in ledger order.
type runningState struct {
	quantity types.Quantity
	cost     *types.Money
	costDate *time.Time
	// exitsWithoutCost counts exits applied before any cost was known.
	exitsWithoutCost int
}

// applyMovement advances the state and returns the unit cost an exit was
// valued at (the cost from the latest earlier entry or reset), or nil.
func (s *runningState) applyMovement(m *entity.Movement) *types.Money {
	var costAtExit *types.Money
	switch m.Kind {
	case entity.KindEntry:
		c := *m.UnitCost
		ts := m.Timestamp
		s.cost, s.costDate = &c, &ts
	case entity.KindExit:
		if s.cost != nil {
			c := *s.cost
			costAtExit = &c
		} else {
			s.exitsWithoutCost++
		}
	}
	s.quantity += m.SignedQuantity()
	return costAtExit
}

// applyReset replaces quantity and cost basis with the counted values and
// returns counted minus the computed balance it overrides.
func (s *runningState) applyReset(r *entity.ResetEvent) types.Quantity {
	diff := r.CountedQuantity - s.quantity
	c := r.CountedUnitCost
	d := r.Date
	s.quantity = r.CountedQuantity
	s.cost, s.costDate = &c, &d
	return diff
}

// value is quantity at the current cost basis, zero when no cost is known.
func (s *runningState) value() types.Money {
	if s.cost == nil {
		return types.Zero()
	}
	return s.quantity.Value(*s.cost)
}
