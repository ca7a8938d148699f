package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/entity"
	"stockledger/internal/domain/registers/resets"
	"stockledger/internal/domain/registers/stock"
	"stockledger/internal/infrastructure/http/v1/dto"
)

const defaultMovementPage = 100

// LedgerHandler serves movement and reset ingestion and raw ledger reads.
type LedgerHandler struct {
	*BaseHandler
	movements *stock.Service
	resets    *resets.Service
}

// NewLedgerHandler creates a new ledger handler.
func NewLedgerHandler(base *BaseHandler, movements *stock.Service, resets *resets.Service) *LedgerHandler {
	return &LedgerHandler{BaseHandler: base, movements: movements, resets: resets}
}

// AppendMovement handles POST /ledger/movements
func (h *LedgerHandler) AppendMovement(c *gin.Context) {
	var req dto.AppendMovementRequest
	if !h.BindJSON(c, &req) {
		return
	}
	m, err := req.ToEntity(h.IdempotencyKey(c))
	if err != nil {
		h.Error(c, err)
		return
	}
	if err := h.movements.AppendMovement(c.Request.Context(), m); err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, m)
}

// AppendReset handles POST /ledger/resets
func (h *LedgerHandler) AppendReset(c *gin.Context) {
	var req dto.AppendResetRequest
	if !h.BindJSON(c, &req) {
		return
	}
	ev, err := req.ToEntity(h.IdempotencyKey(c))
	if err != nil {
		h.Error(c, err)
		return
	}
	if err := h.resets.AppendReset(c.Request.Context(), ev); err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, ev)
}

// ListMovements handles GET /ledger/movements
func (h *LedgerHandler) ListMovements(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.ListMovementsRequest
	if !h.BindQuery(c, &req) {
		return
	}
	productID, err := dto.ParseID("productId", req.ProductID)
	if err != nil {
		h.Error(c, err)
		return
	}
	var from, to time.Time
	if req.From != "" {
		if from, err = dto.ParseTime("from", req.From); err != nil {
			h.Error(c, err)
			return
		}
	}
	if req.To != "" {
		if to, err = dto.ParseTime("to", req.To); err != nil {
			h.Error(c, err)
			return
		}
	}
	after, err := dto.DecodeCursor(req.Cursor)
	if err != nil {
		h.Error(c, err)
		return
	}
	limit := req.Limit
	if limit == 0 {
		limit = defaultMovementPage
	}

	// One extra row tells whether another page exists.
	cur, err := h.movements.QueryRange(ctx, productID, from, to, stock.RangeOptions{
		ToExclusive: req.ToExclusive,
		PageSize:    limit + 1,
		After:       after,
	})
	if err != nil {
		h.Error(c, err)
		return
	}

	page := dto.MovementPage{Items: make([]entity.Movement, 0, limit)}
	for len(page.Items) < limit && cur.Next(ctx) {
		page.Items = append(page.Items, cur.Movement())
	}
	if len(page.Items) == limit && cur.Next(ctx) {
		page.NextCursor = dto.EncodeCursor(page.Items[len(page.Items)-1].Position())
	}
	if err := cur.Err(); err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, page)
}

// RegisterRoutes registers ledger routes.
func (h *LedgerHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/movements", h.AppendMovement)
	rg.GET("/movements", h.ListMovements)
	rg.POST("/resets", h.AppendReset)
}
