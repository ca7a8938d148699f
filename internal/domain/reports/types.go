// Package reports shapes valuation results for the reporting layer.
package reports

import (
	"time"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/catalog"
	"stockledger/internal/domain/valuation"
)

// ProductRef names a product when the catalog knows it.
type ProductRef struct {
	ProductCode string `json:"productCode,omitempty"`
	ProductName string `json:"productName,omitempty"`
	GroupID     *id.ID `json:"groupId,omitempty"`
	GroupName   string `json:"groupName,omitempty"`
}

func refOf(p catalog.Product, ok bool) ProductRef {
	if !ok {
		return ProductRef{}
	}
	return ProductRef{ProductCode: p.Code, ProductName: p.Name, GroupID: p.GroupID, GroupName: p.GroupName}
}

// --- Current Stock Report ---

// Ordering options for the current stock report.
const (
	OrderByProduct  = "product"
	OrderByQuantity = "quantity"
	OrderByValue    = "value"
)

// CurrentStockFilter defines filter for the current stock report.
type CurrentStockFilter struct {
	// AsOfDate - report date (defaults to now)
	AsOfDate *time.Time

	// GroupIDs restricts the report to members of these groups.
	GroupIDs []id.ID

	ExcludeZero bool

	// OrderBy is product, quantity or value. Desc reverses it.
	OrderBy string
	Desc    bool

	// Pagination
	Limit  int
	Offset int
}

// StockItem is one row of the current stock report.
type StockItem struct {
	valuation.Snapshot
	ProductRef
}

// CurrentStockReport represents the full current stock report.
type CurrentStockReport struct {
	AsOfDate   time.Time   `json:"asOfDate"`
	Items      []StockItem `json:"items"`
	TotalItems int         `json:"totalItems"`

	// Summary over all rows, not only the returned page
	TotalQuantity types.Quantity `json:"totalQuantity"`
	TotalValue    types.Money    `json:"totalValue"`
	// NoPriorEntry counts products with an exit that had no known cost.
	NoPriorEntry int `json:"noPriorEntry"`
}

// --- Critical Stock Report ---

// CriticalStockItem is a flagged product.
type CriticalStockItem struct {
	valuation.CriticalItem
	ProductRef
}

// CriticalStockReport lists products below the threshold.
type CriticalStockReport struct {
	AsOfDate  time.Time           `json:"asOfDate"`
	Threshold types.Quantity      `json:"threshold"`
	Items     []CriticalStockItem `json:"items"`
}

// --- Period Movements Report ---

// PeriodMovementsFilter defines filter for the period movements report.
type PeriodMovementsFilter struct {
	// Period (required), walked as (FromDate, ToDate]
	FromDate time.Time
	ToDate   time.Time

	ProductID      *id.ID
	IncludeDetails bool
}

// PeriodItem is one product's flow in the period.
type PeriodItem struct {
	valuation.PeriodAggregate
	ProductRef
	// SoldBelowCost marks a negative margin backed by known costs.
	SoldBelowCost bool `json:"soldBelowCost"`
}

// PeriodTotals sums all products of a period report.
type PeriodTotals struct {
	QuantityIn     types.Quantity `json:"quantityIn"`
	QuantityOut    types.Quantity `json:"quantityOut"`
	ValueIn        types.Money    `json:"valueIn"`
	ValueOut       types.Money    `json:"valueOut"`
	ValueOutAtCost types.Money    `json:"valueOutAtCost"`
	PriceCostDelta types.Money    `json:"priceCostDelta"`
}

// PeriodMovementsReport represents the period movements report.
type PeriodMovementsReport struct {
	FromDate time.Time    `json:"fromDate"`
	ToDate   time.Time    `json:"toDate"`
	Items    []PeriodItem `json:"items"`
	Totals   PeriodTotals `json:"totals"`

	BelowCostCount    int `json:"belowCostCount"`
	NoPriorEntryCount int `json:"noPriorEntryCount"`
}

// --- Group Valuation Report ---

// GroupValuationItem is one group's total.
type GroupValuationItem struct {
	valuation.GroupTotal
	GroupName string `json:"groupName,omitempty"`
}

// GroupValuationReport represents the group valuation report.
type GroupValuationReport struct {
	AsOfDate      time.Time            `json:"asOfDate"`
	Groups        []GroupValuationItem `json:"groups"`
	TotalValue    types.Money          `json:"totalValue"`
	TotalProducts int                  `json:"totalProducts"`
}

// --- Reconciliation Report ---

// ReconciliationItem is one product's fiscal/physical comparison.
type ReconciliationItem struct {
	valuation.ReconciliationResult
	ProductRef
}

// ReconciliationReport represents the reconciliation report.
type ReconciliationReport struct {
	FromDate time.Time            `json:"fromDate"`
	ToDate   time.Time            `json:"toDate"`
	Items    []ReconciliationItem `json:"items"`
	// Discrepancies counts products with a non-zero balance delta.
	Discrepancies int `json:"discrepancies"`
}

// --- Reset History ---

// ResetHistoryFilter defines filter for the reset history.
type ResetHistoryFilter struct {
	ProductID *id.ID
	// Months looks back from now (default 12).
	Months int

	Limit  int
	Offset int
}

// ResetHistoryItem is one reset with its counted value.
type ResetHistoryItem struct {
	entity.ResetEvent
	ProductRef
	CountedValue types.Money `json:"countedValue"`
}

// ResetStats summarizes every reset in the window, not only the returned page.
type ResetStats struct {
	Total            int         `json:"total"`
	Active           int         `json:"active"`
	Zeroed           int         `json:"zeroed"`
	DistinctProducts int         `json:"distinctProducts"`
	CountedValue     types.Money `json:"countedValue"`
}

// ResetHistory represents the reset history report.
type ResetHistory struct {
	FromDate   time.Time          `json:"fromDate"`
	Items      []ResetHistoryItem `json:"items"`
	TotalItems int                `json:"totalItems"`
	Stats      ResetStats         `json:"stats"`
}
