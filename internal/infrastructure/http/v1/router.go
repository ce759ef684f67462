// Package v1 provides HTTP API version 1.
package v1

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"stockalloc/internal/app"
	"stockalloc/internal/infrastructure/http/v1/handlers"
	"stockalloc/internal/infrastructure/http/v1/middleware"
	"stockalloc/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	Services *app.Services

	// Logger for request logging
	Logger *logger.Logger

	// Tokens validates bearer tokens. Nil accepts no tokens.
	Tokens       middleware.TokenValidator
	AuthRequired bool

	// Idempotency enables X-Idempotency-Key handling when set.
	Idempotency middleware.IdempotencyStore

	// Ready backs /health/ready.
	Ready func(ctx context.Context) error

	// Now overrides the clock used by expiry views.
	Now func() time.Time
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.Ready)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Auth(cfg.Tokens, cfg.AuthRequired))
	if cfg.Idempotency != nil {
		v1.Use(middleware.Idempotency(cfg.Idempotency))
	}

	base := handlers.NewBaseHandler(cfg.Now)
	registerInventoryRoutes(v1, base, cfg.Services)
	registerOrderRoutes(v1, base, cfg.Services)
	registerReturnRoutes(v1, base, cfg.Services)
	registerHistoryRoutes(v1, base, cfg.Services)

	return router
}

func registerInventoryRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, s *app.Services) {
	h := handlers.NewInventoryHandler(base, s.Inventory, s.Ledger)

	items := rg.Group("/items")
	items.POST("", h.CreateItem)
	items.GET("", h.ListItems)
	items.GET("/low-stock", h.LowStock)
	items.GET("/:id", h.GetItem)

	batches := rg.Group("/batches")
	batches.POST("", h.ReceiveBatch)
	batches.GET("", h.ListBatches)
	batches.GET("/:id", h.GetBatch)
	batches.POST("/:id/reserve", h.ReserveBatch)
	batches.POST("/:id/release", h.ReleaseBatch)
	batches.PATCH("/:id/status", h.SetBatchStatus)
	batches.DELETE("/:id", h.DeleteBatch)
}

func registerOrderRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, s *app.Services) {
	h := handlers.NewOrderHandler(base, s.Orders, s.Allocation)

	ord := rg.Group("/orders")
	ord.POST("", h.Create)
	ord.GET("", h.List)
	ord.POST("/allocate-pending", h.AllocatePending)
	ord.GET("/:id", h.Get)
	ord.POST("/:id/allocate", h.Allocate)
	ord.POST("/:id/deallocate", h.Deallocate)
	ord.POST("/:id/ship", h.Ship)
	ord.POST("/:id/cancel", h.Cancel)
	ord.POST("/:id/status", h.Advance)
}

func registerReturnRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, s *app.Services) {
	h := handlers.NewReturnHandler(base, s.Returns)

	ret := rg.Group("/returns")
	ret.POST("", h.Create)
	ret.GET("", h.List)
	ret.GET("/:id", h.Get)
	ret.POST("/:id/restock", h.Restock)
	ret.POST("/:id/reject", h.Reject)
}

func registerHistoryRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, s *app.Services) {
	h := handlers.NewHistoryHandler(base, s.Undo, s.TxLog, s.Expiry, s.Notifications)

	rg.POST("/undo", h.Undo)
	rg.POST("/redo", h.Redo)
	rg.GET("/undo/history", h.History)
	rg.GET("/transactions", h.Transactions)
	rg.GET("/notifications", h.Notifications)
	rg.POST("/expiry/scan", h.ScanExpiry)
}
