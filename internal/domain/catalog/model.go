// Package catalog provides the product catalog used to group stock for valuation rollups.
// The ledger does not depend on it: movements may reference products the catalog
// has never seen.
package catalog

import (
	"strings"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
)

// Product is a stocked item and its group membership.
type Product struct {
	ID   id.ID  `db:"id" json:"id"`
	Code string `db:"code" json:"code"`
	Name string `db:"name" json:"name"`

	// GroupID is the product group (category). Nil means ungrouped.
	GroupID   *id.ID `db:"group_id" json:"groupId,omitempty"`
	GroupName string `db:"group_name" json:"groupName,omitempty"`

	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Validate checks required fields.
func (p *Product) Validate() error {
	p.Name = strings.TrimSpace(p.Name)
	p.Code = strings.TrimSpace(p.Code)
	if p.Name == "" {
		return apperror.NewValidation("name is required").WithDetail("field", "name")
	}
	if len(p.Code) > 50 {
		return apperror.NewValidation("code must be at most 50 characters").WithDetail("field", "code")
	}
	if p.GroupID != nil && id.IsNil(*p.GroupID) {
		p.GroupID = nil
	}
	return nil
}

// ListFilter selects catalog products.
type ListFilter struct {
	GroupIDs   []id.ID
	ProductIDs []id.ID
	Limit      int
	Offset     int
}
