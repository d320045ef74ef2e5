// internal/interfaces/http/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/your-org/ops-ledger/internal/config"
	"github.com/your-org/ops-ledger/internal/domain/dispatch"
	"github.com/your-org/ops-ledger/internal/domain/inventory"
	"github.com/your-org/ops-ledger/internal/domain/order"
	"github.com/your-org/ops-ledger/internal/domain/purchase"
	"github.com/your-org/ops-ledger/internal/domain/returns"
	"github.com/your-org/ops-ledger/internal/domain/rider"
	"github.com/your-org/ops-ledger/internal/domain/settlement"
	"github.com/your-org/ops-ledger/internal/interfaces/http/handlers"
	"github.com/your-org/ops-ledger/internal/interfaces/http/middleware"
	"github.com/your-org/ops-ledger/internal/pkg/lock"
	"gorm.io/gorm"
)

// Services holds the domain services shared by every handler
type Services struct {
	Ledger      *inventory.Ledger
	Purchases   *purchase.Service
	Packing     *order.PackingService
	Riders      *rider.Service
	Dispatch    *dispatch.Service
	Returns     *returns.Service
	Settlements *settlement.Service
}

// NewServices wires the domain services around one ledger and one locker
func NewServices(db *gorm.DB, locker lock.Locker, cfg *config.Config, logger *logrus.Logger) *Services {
	ledger := inventory.NewLedger(db, locker, logger)
	riders := rider.NewService(db, logger)

	return &Services{
		Ledger:      ledger,
		Purchases:   purchase.NewService(db, ledger, locker, cfg, logger),
		Packing:     order.NewPackingService(db, ledger, locker, logger),
		Riders:      riders,
		Dispatch:    dispatch.NewService(db, ledger, riders, locker, logger),
		Returns:     returns.NewService(db, ledger, locker, logger),
		Settlements: settlement.NewService(db, riders, locker, logger),
	}
}

// SetupInventoryRoutes sets up stock ledger routes
func SetupInventoryRoutes(rg *gin.RouterGroup, svc *Services, logger *logrus.Logger) {
	inventoryHandler := handlers.NewInventoryHandler(svc.Ledger, logger)

	variants := rg.Group("/variants")
	{
		variants.GET("/:id/stock", inventoryHandler.GetStock)
		variants.GET("/:id/movements", inventoryHandler.GetMovements)
		variants.GET("/:id/reconcile", inventoryHandler.Reconcile)
		variants.POST("/:id/repair", inventoryHandler.Repair)
		variants.POST("/:id/damage", inventoryHandler.WriteOffDamage)
		variants.POST("/:id/adjust", inventoryHandler.Adjust)
	}

	rg.GET("/stock-alerts", inventoryHandler.GetAlerts)
}

// SetupPurchaseRoutes sets up supplier bill routes
func SetupPurchaseRoutes(rg *gin.RouterGroup, svc *Services, logger *logrus.Logger) {
	purchaseHandler := handlers.NewPurchaseHandler(svc.Purchases, logger)

	purchases := rg.Group("/purchases")
	{
		purchases.POST("", purchaseHandler.CreatePurchase)
		purchases.GET("", purchaseHandler.ListPurchases)
		purchases.GET("/:id", purchaseHandler.GetPurchase)
		purchases.POST("/:id/payments", purchaseHandler.RecordPayment)
	}

	rg.GET("/vendors/:id", purchaseHandler.GetVendor)
}

// SetupOrderRoutes sets up packing and return routes
func SetupOrderRoutes(rg *gin.RouterGroup, svc *Services, logger *logrus.Logger) {
	orderHandler := handlers.NewOrderHandler(svc.Packing, svc.Returns, logger)

	orders := rg.Group("/orders")
	{
		orders.POST("/pack", orderHandler.PackOrders)
		orders.GET("/:id", orderHandler.GetOrder)
		orders.POST("/:id/pack", orderHandler.PackOrder)
		orders.POST("/:id/returns", orderHandler.ProcessReturn)
		orders.GET("/:id/returns", orderHandler.ListReturns)
	}
}

// SetupManifestRoutes sets up dispatch routes
func SetupManifestRoutes(rg *gin.RouterGroup, svc *Services, logger *logrus.Logger) {
	manifestHandler := handlers.NewManifestHandler(svc.Dispatch, logger)

	manifests := rg.Group("/manifests")
	{
		manifests.POST("", manifestHandler.CreateManifest)
		manifests.GET("", manifestHandler.ListManifests)
		manifests.GET("/:id", manifestHandler.GetManifest)
		manifests.GET("/:id/export", manifestHandler.ExportManifest)
		manifests.POST("/:id/dispatch", manifestHandler.DispatchManifest)
		manifests.POST("/:id/cancel", manifestHandler.CancelManifest)
		manifests.POST("/:id/orders/:orderId/outcome", manifestHandler.RecordOutcome)
		manifests.POST("/:id/orders/:orderId/reschedule", manifestHandler.RescheduleOrder)
	}
}

// SetupSettlementRoutes sets up rider cash routes
func SetupSettlementRoutes(rg *gin.RouterGroup, svc *Services, logger *logrus.Logger) {
	settlementHandler := handlers.NewSettlementHandler(svc.Settlements, svc.Riders, logger)

	settlements := rg.Group("/settlements")
	{
		settlements.POST("", settlementHandler.CreateSettlement)
		settlements.POST("/bulk", settlementHandler.BulkCreateSettlements)
		settlements.GET("", settlementHandler.ListSettlements)
		settlements.POST("/:id/verify", settlementHandler.VerifySettlement)
	}

	riders := rg.Group("/riders")
	{
		riders.GET("/:id", settlementHandler.GetRider)
		riders.GET("/:id/balance-logs", settlementHandler.GetBalanceLogs)
	}
}

// SetupRoutes mounts every API route behind JWT authentication
func SetupRoutes(rg *gin.RouterGroup, svc *Services, cfg *config.Config, logger *logrus.Logger) {
	rg.Use(middleware.AuthMiddleware(cfg))

	SetupInventoryRoutes(rg, svc, logger)
	SetupPurchaseRoutes(rg, svc, logger)
	SetupOrderRoutes(rg, svc, logger)
	SetupManifestRoutes(rg, svc, logger)
	SetupSettlementRoutes(rg, svc, logger)
}
