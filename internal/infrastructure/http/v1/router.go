// Package v1 provides HTTP API version 1.
package v1

import (
	"time"

	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/catalog"
	"stockledger/internal/domain/registers/resets"
	"stockledger/internal/domain/registers/stock"
	"stockledger/internal/domain/reports"
	"stockledger/internal/infrastructure/http/v1/handlers"
	"stockledger/internal/infrastructure/http/v1/middleware"
	"stockledger/pkg/logger"
)

// RouterConfig holds the services exposed over HTTP.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	// QueryTimeout bounds every API request; zero disables it.
	QueryTimeout time.Duration

	// Development enables gin debug mode.
	Development bool

	Movements *stock.Service
	Resets    *resets.Service
	Reports   *reports.Service
	Catalog   *catalog.Service

	Health *handlers.HealthHandler
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	router := gin.New()

	// Global middleware (order matters: Recovery sits inside ErrorHandler so a
	// recovered panic still gets a JSON body).
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.Recovery())

	if cfg.Health != nil {
		cfg.Health.RegisterRoutes(router.Group("/health"))
	}

	base := handlers.NewBaseHandler()
	api := router.Group("/api/v1")
	api.Use(middleware.Timeout(cfg.QueryTimeout))
	{
		handlers.NewLedgerHandler(base, cfg.Movements, cfg.Resets).RegisterRoutes(api.Group("/ledger"))
		handlers.NewReportsHandler(base, cfg.Reports).RegisterRoutes(api.Group("/reports"))
		handlers.NewCatalogHandler(base, cfg.Catalog).RegisterRoutes(api.Group("/catalog"))
	}

	return router
}
