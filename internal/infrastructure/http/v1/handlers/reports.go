package handlers

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/reports"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// ReportsHandler handles HTTP requests for reports.
type ReportsHandler struct {
	*BaseHandler
	service *reports.Service
}

// NewReportsHandler creates a new reports handler.
func NewReportsHandler(base *BaseHandler, service *reports.Service) *ReportsHandler {
	return &ReportsHandler{
		BaseHandler: base,
		service:     service,
	}
}

// GetCurrentStock handles GET /reports/current-stock
func (h *ReportsHandler) GetCurrentStock(c *gin.Context) {
	var req dto.CurrentStockRequest
	if !h.BindQuery(c, &req) {
		return
	}
	filter, err := req.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}

	report, err := h.service.GetCurrentStock(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, report)
}

// GetCriticalStock handles GET /reports/critical-stock
func (h *ReportsHandler) GetCriticalStock(c *gin.Context) {
	var req dto.CriticalStockRequest
	if !h.BindQuery(c, &req) {
		return
	}
	asOf, err := dto.ParseOptionalTime("asOf", req.AsOf)
	if err != nil {
		h.Error(c, err)
		return
	}
	threshold, err := req.ParseThreshold()
	if err != nil {
		h.Error(c, err)
		return
	}

	report, err := h.service.GetCriticalStock(c.Request.Context(), asOf, threshold)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, report)
}

// GetPeriodMovements handles GET /reports/period-movements
func (h *ReportsHandler) GetPeriodMovements(c *gin.Context) {
	var req dto.PeriodMovementsRequest
	if !h.BindQuery(c, &req) {
		return
	}
	filter, err := req.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}

	report, err := h.service.GetPeriodMovements(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, report)
}

// GetPeriodDetail handles GET /reports/period-movements/:productId/details
func (h *ReportsHandler) GetPeriodDetail(c *gin.Context) {
	productID, err := dto.ParseID("productId", c.Param("productId"))
	if err != nil {
		h.Error(c, err)
		return
	}
	var req dto.PeriodRange
	if !h.BindQuery(c, &req) {
		return
	}
	from, err := dto.ParseTime("from", req.From)
	if err != nil {
		h.Error(c, err)
		return
	}
	to, err := dto.ParseTime("to", req.To)
	if err != nil {
		h.Error(c, err)
		return
	}

	item, err := h.service.GetPeriodDetail(c.Request.Context(), productID, from, to)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, item)
}

// GetGroupValuation handles GET /reports/group-valuation
func (h *ReportsHandler) GetGroupValuation(c *gin.Context) {
	var req dto.GroupValuationRequest
	if !h.BindQuery(c, &req) {
		return
	}
	asOf, err := dto.ParseOptionalTime("asOf", req.AsOf)
	if err != nil {
		h.Error(c, err)
		return
	}
	groups, err := dto.ParseIDs("groupId", req.GroupIDs)
	if err != nil {
		h.Error(c, err)
		return
	}

	report, err := h.service.GetGroupValuation(c.Request.Context(), asOf, groups)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, report)
}

// GetReconciliation handles GET /reports/reconciliation
func (h *ReportsHandler) GetReconciliation(c *gin.Context) {
	var req dto.PeriodRange
	if !h.BindQuery(c, &req) {
		return
	}
	from, err := dto.ParseTime("from", req.From)
	if err != nil {
		h.Error(c, err)
		return
	}
	to, err := dto.ParseTime("to", req.To)
	if err != nil {
		h.Error(c, err)
		return
	}

	report, err := h.service.GetReconciliation(c.Request.Context(), from, to)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, report)
}

// GetResetHistory handles GET /reports/reset-history
func (h *ReportsHandler) GetResetHistory(c *gin.Context) {
	var req dto.ResetHistoryRequest
	if !h.BindQuery(c, &req) {
		return
	}
	filter, err := req.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}

	history, err := h.service.GetResetHistory(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, history)
}

// RegisterRoutes registers report routes.
func (h *ReportsHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/current-stock", h.GetCurrentStock)
	rg.GET("/critical-stock", h.GetCriticalStock)
	rg.GET("/period-movements", h.GetPeriodMovements)
	rg.GET("/period-movements/:productId/details", h.GetPeriodDetail)
	rg.GET("/group-valuation", h.GetGroupValuation)
	rg.GET("/reconciliation", h.GetReconciliation)
	rg.GET("/reset-history", h.GetResetHistory)
}
