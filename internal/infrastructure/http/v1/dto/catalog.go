package dto

import (
	"stockledger/internal/domain/catalog"
)

// SaveProductRequest is the body of POST /catalog/products.
type SaveProductRequest struct {
	ID        string `json:"id"`
	Code      string `json:"code"`
	Name      string `json:"name" binding:"required"`
	GroupID   string `json:"groupId"`
	GroupName string `json:"groupName"`
}

// ToModel converts the request. An empty ID creates a new product.
func (r *SaveProductRequest) ToModel() (*catalog.Product, error) {
	p := &catalog.Product{Code: r.Code, Name: r.Name, GroupName: r.GroupName}
	if r.ID != "" {
		pid, err := ParseID("id", r.ID)
		if err != nil {
			return nil, err
		}
		p.ID = pid
	}
	gid, err := ParseOptionalID("groupId", r.GroupID)
	if err != nil {
		return nil, err
	}
	p.GroupID = gid
	return p, nil
}

// ListProductsRequest holds GET /catalog/products query parameters.
type ListProductsRequest struct {
	GroupIDs []string `form:"groupId"`
	Limit    int      `form:"limit" binding:"min=0,max=1000"`
	Offset   int      `form:"offset" binding:"min=0"`
}

// ProductListResponse wraps a product list.
type ProductListResponse struct {
	Items  []catalog.Product `json:"items"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}
