package dto

import (
	"stockledger/internal/core/apperror"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/reports"
)

// --- Current Stock Report ---

// CurrentStockRequest holds GET /reports/current-stock query parameters.
type CurrentStockRequest struct {
	AsOf        string   `form:"asOf"`
	GroupIDs    []string `form:"groupId"`
	ExcludeZero bool     `form:"excludeZero"`
	OrderBy     string   `form:"orderBy" binding:"omitempty,oneof=product quantity value"`
	Desc        bool     `form:"desc"`
	Limit       int      `form:"limit" binding:"min=0,max=1000"`
	Offset      int      `form:"offset" binding:"min=0"`
}

// ToFilter converts the request to the domain filter.
func (r *CurrentStockRequest) ToFilter() (reports.CurrentStockFilter, error) {
	asOf, err := ParseOptionalTime("asOf", r.AsOf)
	if err != nil {
		return reports.CurrentStockFilter{}, err
	}
	groups, err := ParseIDs("groupId", r.GroupIDs)
	if err != nil {
		return reports.CurrentStockFilter{}, err
	}
	return reports.CurrentStockFilter{
		AsOfDate:    asOf,
		GroupIDs:    groups,
		ExcludeZero: r.ExcludeZero,
		OrderBy:     r.OrderBy,
		Desc:        r.Desc,
		Limit:       r.Limit,
		Offset:      r.Offset,
	}, nil
}

// --- Critical Stock Report ---

// CriticalStockRequest holds GET /reports/critical-stock query parameters.
type CriticalStockRequest struct {
	AsOf      string `form:"asOf"`
	Threshold string `form:"threshold" binding:"required"`
}

// ParseThreshold parses the quantity threshold.
func (r *CriticalStockRequest) ParseThreshold() (types.Quantity, error) {
	q, err := types.ParseQuantity(r.Threshold)
	if err != nil {
		return 0, apperror.NewValidation("invalid threshold").
			WithDetail("field", "threshold").
			WithCause(err)
	}
	return q, nil
}

// --- Period Movements Report ---

// PeriodMovementsRequest holds GET /reports/period-movements query parameters.
type PeriodMovementsRequest struct {
	ProductID      string `form:"productId"`
	From           string `form:"from" binding:"required"`
	To             string `form:"to" binding:"required"`
	IncludeDetails bool   `form:"includeDetails"`
}

// ToFilter converts the request to the domain filter.
func (r *PeriodMovementsRequest) ToFilter() (reports.PeriodMovementsFilter, error) {
	var f reports.PeriodMovementsFilter
	var err error
	if f.FromDate, err = ParseTime("from", r.From); err != nil {
		return f, err
	}
	if f.ToDate, err = ParseTime("to", r.To); err != nil {
		return f, err
	}
	if f.ProductID, err = ParseOptionalID("productId", r.ProductID); err != nil {
		return f, err
	}
	f.IncludeDetails = r.IncludeDetails
	return f, nil
}

// PeriodRange holds a required from/to pair.
type PeriodRange struct {
	From string `form:"from" binding:"required"`
	To   string `form:"to" binding:"required"`
}

// --- Group Valuation Report ---

// GroupValuationRequest holds GET /reports/group-valuation query parameters.
type GroupValuationRequest struct {
	AsOf     string   `form:"asOf"`
	GroupIDs []string `form:"groupId"`
}

// --- Reset History ---

// ResetHistoryRequest holds GET /reports/reset-history query parameters.
type ResetHistoryRequest struct {
	ProductID string `form:"productId"`
	Months    int    `form:"months" binding:"min=0,max=120"`
	Limit     int    `form:"limit" binding:"min=0,max=1000"`
	Offset    int    `form:"offset" binding:"min=0"`
}

// ToFilter converts the request to the domain filter.
func (r *ResetHistoryRequest) ToFilter() (reports.ResetHistoryFilter, error) {
	pid, err := ParseOptionalID("productId", r.ProductID)
	if err != nil {
		return reports.ResetHistoryFilter{}, err
	}
	return reports.ResetHistoryFilter{
		ProductID: pid,
		Months:    r.Months,
		Limit:     r.Limit,
		Offset:    r.Offset,
	}, nil
}
