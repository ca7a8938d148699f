// Package handlers provides HTTP request handlers.
package handlers

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/catalog"
	"stockledger/internal/infrastructure/http/v1/dto"
)

const defaultProductPage = 50

// CatalogHandler serves the product catalog used for group rollups.
type CatalogHandler struct {
	*BaseHandler
	service *catalog.Service
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(base *BaseHandler, service *catalog.Service) *CatalogHandler {
	return &CatalogHandler{BaseHandler: base, service: service}
}

// List handles GET /catalog/products
func (h *CatalogHandler) List(c *gin.Context) {
	var req dto.ListProductsRequest
	if !h.BindQuery(c, &req) {
		return
	}
	groups, err := dto.ParseIDs("groupId", req.GroupIDs)
	if err != nil {
		h.Error(c, err)
		return
	}
	if req.Limit == 0 {
		req.Limit = defaultProductPage
	}

	items, err := h.service.List(c.Request.Context(), catalog.ListFilter{
		GroupIDs: groups,
		Limit:    req.Limit,
		Offset:   req.Offset,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	if items == nil {
		items = []catalog.Product{}
	}
	h.OK(c, dto.ProductListResponse{Items: items, Limit: req.Limit, Offset: req.Offset})
}

// Get handles GET /catalog/products/:id
func (h *CatalogHandler) Get(c *gin.Context) {
	productID, err := dto.ParseID("id", c.Param("id"))
	if err != nil {
		h.Error(c, err)
		return
	}
	p, err := h.service.GetByID(c.Request.Context(), productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, p)
}

// Save handles POST /catalog/products (create, or replace by id).
func (h *CatalogHandler) Save(c *gin.Context) {
	var req dto.SaveProductRequest
	if !h.BindJSON(c, &req) {
		return
	}
	p, err := req.ToModel()
	if err != nil {
		h.Error(c, err)
		return
	}
	if err := h.service.Save(c.Request.Context(), p); err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, p)
}

// RegisterRoutes registers catalog routes.
func (h *CatalogHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/products", h.List)
	rg.POST("/products", h.Save)
	rg.GET("/products/:id", h.Get)
}
