package valuation

import (
	"context"
	"fmt"
	"slices"
	"time"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// Flow is a quantity view of a period: entries, exits and their balance.
type Flow struct {
	Entry   types.Quantity `json:"entry"`
	Exit    types.Quantity `json:"exit"`
	Balance types.Quantity `json:"balance"`
}

// Sub returns f - o field by field.
func (f Flow) Sub(o Flow) Flow {
	return Flow{
		Entry:   f.Entry - o.Entry,
		Exit:    f.Exit - o.Exit,
		Balance: f.Balance - o.Balance,
	}
}

// FlowOf derives a flow from an aggregate. Reset gains and losses are part of
// the physical view only.
func FlowOf(a PeriodAggregate, withResets bool) Flow {
	entry := a.QuantityIn + a.AdjustedIn
	exit := a.QuantityOut + a.AdjustedOut
	if withResets {
		entry += a.ResetGain
		exit += a.ResetLoss
	}
	return Flow{Entry: entry, Exit: exit, Balance: entry - exit}
}

// ReconciliationResult compares the two views of one product.
// Delta is Fiscal minus Physical; a non-zero Delta.Balance is an unexplained discrepancy.
type ReconciliationResult struct {
	ProductID id.ID     `json:"productId"`
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
	Fiscal    Flow      `json:"fiscal"`
	Physical  Flow      `json:"physical"`
	Delta     Flow      `json:"delta"`
}

// Reconcile diffs two independently built views. A product present in only
// one view is still emitted with the other side at zero. Inputs are not modified.
func Reconcile(from, to time.Time, fiscal, physical []PeriodAggregate) []ReconciliationResult {
	byProduct := make(map[id.ID]*ReconciliationResult)
	get := func(pid id.ID) *ReconciliationResult {
		r, ok := byProduct[pid]
		if !ok {
			r = &ReconciliationResult{ProductID: pid, From: from, To: to}
			byProduct[pid] = r
		}
		return r
	}

	for _, a := range fiscal {
		get(a.ProductID).Fiscal = FlowOf(a, false)
	}
	for _, a := range physical {
		get(a.ProductID).Physical = FlowOf(a, true)
	}

	out := make([]ReconciliationResult, 0, len(byProduct))
	for _, r := range byProduct {
		r.Delta = r.Fiscal.Sub(r.Physical)
		out = append(out, *r)
	}
	slices.SortFunc(out, func(a, b ReconciliationResult) int {
		return compareIDs(a.ProductID, b.ProductID)
	})
	return out
}

// Reconcile builds the fiscal and physical views over (from, to] for every
// product and diffs them.
func (e *Engine) Reconcile(ctx context.Context, from, to time.Time) ([]ReconciliationResult, error) {
	if err := validatePeriod(from, to); err != nil {
		return nil, err
	}

	fiscal, err := e.aggregateCatalog(ctx, from, to, walkOptions{
		include:    e.classify(func(c Class) bool { return c.Fiscal }),
		skipResets: true,
	})
	if err != nil {
		return nil, fmt.Errorf("fiscal view: %w", err)
	}

	physical, err := e.aggregateCatalog(ctx, from, to, walkOptions{
		include:    e.classify(func(c Class) bool { return c.Physical }),
		viewResets: true,
	})
	if err != nil {
		return nil, fmt.Errorf("physical view: %w", err)
	}

	return Reconcile(from, to, fiscal, physical), nil
}

func (e *Engine) classify(view func(Class) bool) func(m *entity.Movement) (bool, error) {
	return func(m *entity.Movement) (bool, error) {
		c, err := e.classifier.Classify(m)
		if err != nil {
			return false, err
		}
		return view(c), nil
	}
}
