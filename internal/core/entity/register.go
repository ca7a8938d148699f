// Package entity provides the ledger records shared by storage and valuation.
package entity

import (
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// MovementKind defines how a movement changes stock.
type MovementKind string

const (
	// KindEntry increases stock (purchase, production output) and refreshes the cost basis.
	KindEntry MovementKind = "entry"
	// KindExit decreases stock (sale, consumption) and is valued at the cost basis.
	KindExit MovementKind = "exit"
	// KindAdjustment changes stock in the Direction given, without cost effect.
	KindAdjustment MovementKind = "adjustment"
)

// Valid reports whether k is a known kind.
func (k MovementKind) Valid() bool {
	switch k {
	case KindEntry, KindExit, KindAdjustment:
		return true
	}
	return false
}

// Direction is the sign of an adjustment. Quantities are always positive.
type Direction string

const (
	DirectionIncrease Direction = "increase"
	DirectionDecrease Direction = "decrease"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionIncrease || d == DirectionDecrease
}

// MovementSource identifies the producing system.
type MovementSource string

const (
	SourceInvoice    MovementSource = "invoice"
	SourceProduction MovementSource = "production"
	SourceManual     MovementSource = "manual"
)

// Valid reports whether s is a known source.
func (s MovementSource) Valid() bool {
	switch s {
	case SourceInvoice, SourceProduction, SourceManual:
		return true
	}
	return false
}

// Position is the ledger ordering key: (timestamp, sequence).
// Sequence is assigned by the store and breaks timestamp ties in append order.
type Position struct {
	Timestamp time.Time `json:"timestamp"`
	Sequence  int64     `json:"sequence"`
}

// Before reports whether p sorts strictly before o.
func (p Position) Before(o Position) bool {
	if !p.Timestamp.Equal(o.Timestamp) {
		return p.Timestamp.Before(o.Timestamp)
	}
	return p.Sequence < o.Sequence
}

// Movement is one immutable record in the stock ledger.
// Movements are never updated or deleted once appended.
type Movement struct {
	ID        id.ID `db:"id" json:"id"`
	Sequence  int64 `db:"sequence" json:"sequence"`
	ProductID id.ID `db:"product_id" json:"productId"`

	// Timestamp is the business time of the movement (ordering key).
	Timestamp time.Time    `db:"occurred_at" json:"timestamp"`
	Kind      MovementKind `db:"kind" json:"kind"`
	Direction Direction    `db:"direction" json:"direction,omitempty"`

	Quantity  types.Quantity `db:"quantity" json:"quantity"`
	UnitCost  *types.Money   `db:"unit_cost" json:"unitCost,omitempty"`
	UnitPrice *types.Money   `db:"unit_price" json:"unitPrice,omitempty"`

	DocumentRef    string         `db:"document_ref" json:"documentRef,omitempty"`
	Source         MovementSource `db:"source" json:"source"`
	IdempotencyKey *string        `db:"idempotency_key" json:"idempotencyKey,omitempty"`

	// RecordedAt is when the store accepted the movement.
	RecordedAt time.Time `db:"recorded_at" json:"recordedAt"`
}

// Position returns the ordering key of the movement.
func (m *Movement) Position() Position {
	return Position{Timestamp: m.Timestamp, Sequence: m.Sequence}
}

// SignedQuantity returns quantity with sign based on kind and direction.
// Entry = positive, Exit = negative, Adjustment follows Direction.
func (m *Movement) SignedQuantity() types.Quantity {
	switch m.Kind {
	case KindExit:
		return m.Quantity.Neg()
	case KindAdjustment:
		if m.Direction == DirectionDecrease {
			return m.Quantity.Neg()
		}
	}
	return m.Quantity
}

// ResetEvent is an authoritative physical count. It overrides the computed
// balance at Date and starts a new valuation epoch for the product.
type ResetEvent struct {
	ID        id.ID `db:"id" json:"id"`
	Sequence  int64 `db:"sequence" json:"sequence"`
	ProductID id.ID `db:"product_id" json:"productId"`

	Date            time.Time      `db:"reset_at" json:"date"`
	CountedQuantity types.Quantity `db:"counted_quantity" json:"countedQuantity"`
	CountedUnitCost types.Money    `db:"counted_unit_cost" json:"countedUnitCost"`
	Note            string         `db:"note" json:"note,omitempty"`
	IdempotencyKey  *string        `db:"idempotency_key" json:"idempotencyKey,omitempty"`

	RecordedAt time.Time `db:"recorded_at" json:"recordedAt"`
}

// Position returns the ordering key of the reset.
func (r *ResetEvent) Position() Position {
	return Position{Timestamp: r.Date, Sequence: r.Sequence}
}

// CountedValue is the monetary value of the count at its own unit cost.
func (r *ResetEvent) CountedValue() types.Money {
	return r.CountedQuantity.Value(r.CountedUnitCost)
}
