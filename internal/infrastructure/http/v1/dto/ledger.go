package dto

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/types"
)

// --- Movements ---

// AppendMovementRequest is the body of POST /ledger/movements.
type AppendMovementRequest struct {
	ProductID      string                `json:"productId" binding:"required"`
	Timestamp      time.Time             `json:"timestamp" binding:"required"`
	Kind           entity.MovementKind   `json:"kind" binding:"required"`
	Direction      entity.Direction      `json:"direction"`
	Quantity       types.Quantity        `json:"quantity"`
	UnitCost       *types.Money          `json:"unitCost"`
	UnitPrice      *types.Money          `json:"unitPrice"`
	DocumentRef    string                `json:"documentRef"`
	Source         entity.MovementSource `json:"source" binding:"required"`
	IdempotencyKey *string               `json:"idempotencyKey"`
}

// ToEntity converts the request; key is the Idempotency-Key header, used when
// the body does not carry one.
func (r *AppendMovementRequest) ToEntity(key string) (*entity.Movement, error) {
	pid, err := ParseID("productId", r.ProductID)
	if err != nil {
		return nil, err
	}
	m := &entity.Movement{
		ProductID:      pid,
		Timestamp:      r.Timestamp,
		Kind:           r.Kind,
		Direction:      r.Direction,
		Quantity:       r.Quantity,
		UnitCost:       r.UnitCost,
		UnitPrice:      r.UnitPrice,
		DocumentRef:    strings.TrimSpace(r.DocumentRef),
		Source:         r.Source,
		IdempotencyKey: r.IdempotencyKey,
	}
	if m.IdempotencyKey == nil && key != "" {
		m.IdempotencyKey = &key
	}
	return m, nil
}

// ListMovementsRequest holds GET /ledger/movements query parameters.
type ListMovementsRequest struct {
	ProductID   string `form:"productId" binding:"required"`
	From        string `form:"from"`
	To          string `form:"to"`
	ToExclusive bool   `form:"toExclusive"`
	Cursor      string `form:"cursor"`
	Limit       int    `form:"limit" binding:"min=0,max=1000"`
}

// MovementPage is one page of ledger movements.
type MovementPage struct {
	Items      []entity.Movement `json:"items"`
	NextCursor string            `json:"nextCursor,omitempty"`
}

// --- Resets ---

// AppendResetRequest is the body of POST /ledger/resets.
type AppendResetRequest struct {
	ProductID       string         `json:"productId" binding:"required"`
	Date            time.Time      `json:"date" binding:"required"`
	CountedQuantity types.Quantity `json:"countedQuantity"`
	CountedUnitCost types.Money    `json:"countedUnitCost"`
	Note            string         `json:"note"`
	IdempotencyKey  *string        `json:"idempotencyKey"`
}

// ToEntity converts the request.
func (r *AppendResetRequest) ToEntity(key string) (*entity.ResetEvent, error) {
	pid, err := ParseID("productId", r.ProductID)
	if err != nil {
		return nil, err
	}
	ev := &entity.ResetEvent{
		ProductID:       pid,
		Date:            r.Date,
		CountedQuantity: r.CountedQuantity,
		CountedUnitCost: r.CountedUnitCost,
		Note:            strings.TrimSpace(r.Note),
		IdempotencyKey:  r.IdempotencyKey,
	}
	if ev.IdempotencyKey == nil && key != "" {
		ev.IdempotencyKey = &key
	}
	return ev, nil
}

// --- Cursor token ---

// EncodeCursor turns a ledger position into an opaque page token.
func EncodeCursor(p entity.Position) string {
	raw := fmt.Sprintf("%d:%d", p.Timestamp.UnixNano(), p.Sequence)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token produced by EncodeCursor.
func DecodeCursor(token string) (*entity.Position, error) {
	if token == "" {
		return nil, nil
	}
	invalid := apperror.NewValidation("invalid cursor").WithDetail("field", "cursor")

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, invalid.WithCause(err)
	}
	nanos, seq, ok := strings.Cut(string(raw), ":")
	if !ok {
		return nil, invalid
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return nil, invalid.WithCause(err)
	}
	s, err := strconv.ParseInt(seq, 10, 64)
	if err != nil || s < 0 {
		return nil, invalid.WithCause(err)
	}
	return &entity.Position{Timestamp: time.Unix(0, n).UTC(), Sequence: s}, nil
}
