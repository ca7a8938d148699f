package valuation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/registers/resets"
	"stockledger/internal/domain/registers/stock"
)

// PeriodRequest selects a period walk.
type PeriodRequest struct {
	// ProductID restricts the walk to one product; nil walks every product.
	ProductID      *id.ID
	From           time.Time
	To             time.Time
	IncludeDetails bool
}

// LineType distinguishes detail lines.
type LineType string

const (
	LineMovement LineType = "movement"
	LineReset    LineType = "reset"
)

// DetailLine is one itemized step of a period walk.
type DetailLine struct {
	Type      LineType    `json:"type"`
	ID        id.ID       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Sequence  int64       `json:"sequence"`

	Kind        entity.MovementKind   `json:"kind,omitempty"`
	Direction   entity.Direction      `json:"direction,omitempty"`
	Source      entity.MovementSource `json:"source,omitempty"`
	DocumentRef string                `json:"documentRef,omitempty"`
	Note        string                `json:"note,omitempty"`

	Quantity  types.Quantity `json:"quantity"`
	UnitCost  *types.Money   `json:"unitCost,omitempty"`
	UnitPrice *types.Money   `json:"unitPrice,omitempty"`

	// Exit valuation. CostAtExit is nil when the exit fell back to its price.
	CostAtExit     *types.Money `json:"costAtExit,omitempty"`
	ValueOut       *types.Money `json:"valueOut,omitempty"`
	ValueOutAtCost *types.Money `json:"valueOutAtCost,omitempty"`
	PriceCostDelta *types.Money `json:"priceCostDelta,omitempty"`

	// ResetDelta is counted minus the computed balance the reset replaced.
	ResetDelta *types.Quantity `json:"resetDelta,omitempty"`

	RunningQuantity types.Quantity `json:"runningQuantity"`
}

// PeriodAggregate totals one product's flow over (From, To].
type PeriodAggregate struct {
	ProductID id.ID     `json:"productId"`
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`

	OpeningQuantity types.Quantity `json:"openingQuantity"`
	ClosingQuantity types.Quantity `json:"closingQuantity"`

	QuantityIn  types.Quantity `json:"quantityIn"`
	QuantityOut types.Quantity `json:"quantityOut"`
	AdjustedIn  types.Quantity `json:"adjustedIn"`
	AdjustedOut types.Quantity `json:"adjustedOut"`
	ResetGain   types.Quantity `json:"resetGain"`
	ResetLoss   types.Quantity `json:"resetLoss"`

	ValueIn        types.Money `json:"valueIn"`
	ValueOut       types.Money `json:"valueOut"`
	ValueOutAtCost types.Money `json:"valueOutAtCost"`
	// PriceCostDelta is ValueOut minus ValueOutAtCost; negative means sold below cost.
	PriceCostDelta types.Money `json:"priceCostDelta"`

	// HasPriorEntry is true when every exit in the period had a known cost.
	HasPriorEntry    bool `json:"hasPriorEntry"`
	ExitsWithoutCost int  `json:"exitsWithoutCost"`

	MovementCount int `json:"movementCount"`
	ResetCount    int `json:"resetCount"`

	Lines []DetailLine `json:"lines,omitempty"`
}

// Active reports whether anything in the period contributed to the aggregate.
func (a *PeriodAggregate) Active() bool {
	return a.MovementCount > 0 || a.ResetCount > 0
}

// walkOptions narrows what a walk reports. Running quantity and cost always
// follow the full ledger.
type walkOptions struct {
	details bool
	// include decides which movements count toward flows and lines; nil means all.
	include func(m *entity.Movement) (bool, error)
	// skipResets leaves reset gains and losses out of the totals.
	skipResets bool
	// viewResets measures each reset against a balance moved only by included
	// movements, so excluded stock a count confirms is not a gain.
	viewResets bool
}

// Aggregate walks the requested period for one product or the whole ledger.
// Aggregates of products with no activity in the period are omitted from
// catalog-wide results.
func (e *Engine) Aggregate(ctx context.Context, req PeriodRequest) ([]PeriodAggregate, error) {
	if err := validatePeriod(req.From, req.To); err != nil {
		return nil, err
	}
	opts := walkOptions{details: req.IncludeDetails}

	if req.ProductID != nil {
		agg, err := e.walk(ctx, *req.ProductID, req.From, req.To, opts)
		if err != nil {
			return nil, err
		}
		return []PeriodAggregate{agg}, nil
	}
	return e.aggregateCatalog(ctx, req.From, req.To, opts)
}

// Detail returns one product's aggregate with every line itemized. It is the
// same walk as Aggregate, so its totals always agree with the summary.
func (e *Engine) Detail(ctx context.Context, productID id.ID, from, to time.Time) (PeriodAggregate, error) {
	if err := validatePeriod(from, to); err != nil {
		return PeriodAggregate{}, err
	}
	return e.walk(ctx, productID, from, to, walkOptions{details: true})
}

func validatePeriod(from, to time.Time) error {
	if from.IsZero() || to.IsZero() {
		return apperror.NewInvalidRange("from and to are required")
	}
	if from.After(to) {
		return apperror.NewInvalidRange("from must not be after to").
			WithDetail("from", from).
			WithDetail("to", to)
	}
	return nil
}

func (e *Engine) aggregateCatalog(ctx context.Context, from, to time.Time, opts walkOptions) (out []PeriodAggregate, err error) {
	ctx, span := startSpan(ctx, "valuation.AggregateCatalog")
	defer func() { endSpan(span, err) }()

	productIDs, err := e.ProductUniverse(ctx)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("products", len(productIDs)))

	all := make([]PeriodAggregate, len(productIDs))
	err = e.forEachProduct(ctx, productIDs, func(ctx context.Context, i int, pid id.ID) error {
		agg, err := e.walk(ctx, pid, from, to, opts)
		if err != nil {
			return fmt.Errorf("aggregate %s: %w", pid, err)
		}
		all[i] = agg
		return nil
	})
	if err != nil {
		return nil, err
	}

	out = make([]PeriodAggregate, 0, len(all))
	for i := range all {
		if all[i].Active() {
			out = append(out, all[i])
		}
	}
	return out, nil
}

// walk seeds the running state with the snapshot as of from, then applies
// every movement and reset in (from, to] in ledger order. At equal instants
// movements go first and the reset overrides them.
func (e *Engine) walk(ctx context.Context, productID id.ID, from, to time.Time, opts walkOptions) (agg PeriodAggregate, err error) {
	ctx, span := startSpan(ctx, "valuation.walk",
		attribute.String("product.id", productID.String()),
		attribute.Bool("details", opts.details),
	)
	defer func() { endSpan(span, err) }()

	state, _, err := e.replay(ctx, productID, from)
	if err != nil {
		return PeriodAggregate{}, err
	}

	pid := productID
	rs, err := e.resets.ListResets(ctx, resets.ListFilter{ProductID: &pid, From: from, FromExclusive: true, To: to})
	if err != nil {
		return PeriodAggregate{}, fmt.Errorf("period resets: %w", err)
	}

	cur, err := e.movements.QueryRange(ctx, productID, from, to, stock.RangeOptions{FromExclusive: true})
	if err != nil {
		return PeriodAggregate{}, err
	}

	agg = PeriodAggregate{
		ProductID:       productID,
		From:            from,
		To:              to,
		OpeningQuantity: state.quantity,
		ValueIn:         types.Zero(),
		ValueOut:        types.Zero(),
		ValueOutAtCost:  types.Zero(),
		PriceCostDelta:  types.Zero(),
	}

	// view is the opening balance plus included movements only.
	view := state.quantity
	next := 0
	flushResets := func(upTo *time.Time) {
		for ; next < len(rs); next++ {
			r := &rs[next]
			if upTo != nil && !r.Date.Before(*upTo) {
				return
			}
			agg.addReset(state, &view, r, opts)
		}
	}

	for cur.Next(ctx) {
		m := cur.Movement()
		// Resets strictly before this movement happen first.
		flushResets(&m.Timestamp)
		if err := agg.addMovement(state, &view, &m, opts); err != nil {
			return PeriodAggregate{}, err
		}
	}
	if err := cur.Err(); err != nil {
		return PeriodAggregate{}, fmt.Errorf("walk movements: %w", err)
	}
	flushResets(nil)

	agg.ClosingQuantity = state.quantity
	agg.HasPriorEntry = agg.ExitsWithoutCost == 0
	return agg, nil
}

func (a *PeriodAggregate) addMovement(state *runningState, view *types.Quantity, m *entity.Movement, opts walkOptions) error {
	include := true
	if opts.include != nil {
		ok, err := opts.include(m)
		if err != nil {
			return fmt.Errorf("classify movement %s: %w", m.ID, err)
		}
		include = ok
	}

	costAtExit := state.applyMovement(m)
	if !include {
		return nil
	}
	*view += m.SignedQuantity()
	a.MovementCount++

	var line *DetailLine
	if opts.details {
		line = &DetailLine{
			Type:        LineMovement,
			ID:          m.ID,
			Timestamp:   m.Timestamp,
			Sequence:    m.Sequence,
			Kind:        m.Kind,
			Direction:   m.Direction,
			Source:      m.Source,
			DocumentRef: m.DocumentRef,
			Quantity:    m.Quantity,
			UnitCost:    m.UnitCost,
			UnitPrice:   m.UnitPrice,
		}
	}

	switch m.Kind {
	case entity.KindEntry:
		a.QuantityIn += m.Quantity
		a.ValueIn = a.ValueIn.Add(m.Quantity.Value(*m.UnitCost))

	case entity.KindExit:
		valueOut := m.Quantity.Value(*m.UnitPrice)
		atCost := valueOut
		if costAtExit != nil {
			atCost = m.Quantity.Value(*costAtExit)
		} else {
			a.ExitsWithoutCost++
		}
		delta := valueOut.Sub(atCost)

		a.QuantityOut += m.Quantity
		a.ValueOut = a.ValueOut.Add(valueOut)
		a.ValueOutAtCost = a.ValueOutAtCost.Add(atCost)
		a.PriceCostDelta = a.PriceCostDelta.Add(delta)

		if line != nil {
			line.CostAtExit = costAtExit
			line.ValueOut = &valueOut
			line.ValueOutAtCost = &atCost
			line.PriceCostDelta = &delta
		}

	case entity.KindAdjustment:
		if m.Direction == entity.DirectionDecrease {
			a.AdjustedOut += m.Quantity
		} else {
			a.AdjustedIn += m.Quantity
		}
	}

	if line != nil {
		line.RunningQuantity = state.quantity
		a.Lines = append(a.Lines, *line)
	}
	return nil
}

func (a *PeriodAggregate) addReset(state *runningState, view *types.Quantity, r *entity.ResetEvent, opts walkOptions) {
	diff := state.applyReset(r)
	if opts.viewResets {
		diff = r.CountedQuantity - *view
	}
	*view = r.CountedQuantity
	if opts.skipResets {
		return
	}
	a.ResetCount++
	if diff.IsPositive() {
		a.ResetGain += diff
	} else {
		a.ResetLoss += diff.Neg()
	}

	if opts.details {
		cost := r.CountedUnitCost
		a.Lines = append(a.Lines, DetailLine{
			Type:            LineReset,
			ID:              r.ID,
			Timestamp:       r.Date,
			Sequence:        r.Sequence,
			Note:            r.Note,
			Quantity:        r.CountedQuantity,
			UnitCost:        &cost,
			ResetDelta:      &diff,
			RunningQuantity: state.quantity,
		})
	}
}
