package router

import (
	"github.com/gin-gonic/gin"

	"github.com/tcgbazaar/escrow-backend/internal/config"
	"github.com/tcgbazaar/escrow-backend/internal/http/handlers"
	"github.com/tcgbazaar/escrow-backend/internal/http/middleware"
	"github.com/tcgbazaar/escrow-backend/internal/models"
	"github.com/tcgbazaar/escrow-backend/internal/service"
)

func SetupRouter(
	cfg *config.Config,
	authHandler *handlers.AuthHandler,
	transactionHandler *handlers.TransactionHandler,
	escrowHandler *handlers.EscrowHandler,
	disputeHandler *handlers.DisputeHandler,
	releaseHandler *handlers.ReleaseHandler,
	packageHandler *handlers.PackageHandler,
	revenueHandler *handlers.RevenueHandler,
	notificationHandler *handlers.NotificationHandler,
	wsHandler *handlers.WSHandler,
	healthHandler *handlers.HealthHandler,
	tokenManager *service.TokenManager,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", healthHandler.Health)

	api := r.Group("/api")

	authGroup := api.Group("/auth")
	authRateLimit := middleware.RateLimitMiddleware(5, cfg.RateLimitPeriod)
	authGroup.Use(authRateLimit)
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
	}

	// Публичные маршруты
	api.GET("/ws", wsHandler.Handle)

	// Защищённые маршруты
	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(tokenManager))
	{
		protected.GET("/auth/me", authHandler.Me)

		protected.POST("/transactions", transactionHandler.CreateTransaction)
		protected.GET("/transactions", transactionHandler.ListTransactions)
		protected.GET("/transactions/:id", middleware.UUIDValidator("id"), transactionHandler.GetTransaction)
		protected.POST("/transactions/:id/complete", middleware.UUIDValidator("id"), transactionHandler.CompleteTransaction)
		protected.POST("/transactions/:id/cancel", middleware.UUIDValidator("id"), transactionHandler.CancelTransaction)

		protected.POST("/escrow", escrowHandler.InitiatePayment)
		protected.GET("/escrow/:id", middleware.UUIDValidator("id"), escrowHandler.GetPayment)
		protected.GET("/escrow/transactions/:id", middleware.UUIDValidator("id"), escrowHandler.GetActivePayment)

		protected.POST("/disputes", disputeHandler.OpenDispute)
		protected.GET("/disputes", disputeHandler.ListDisputes)
		protected.GET("/disputes/:id", middleware.UUIDValidator("id"), disputeHandler.GetDispute)
		protected.POST("/disputes/:id/respond", middleware.UUIDValidator("id"), disputeHandler.RespondDispute)
		protected.POST("/disputes/:id/escalate", middleware.UUIDValidator("id"), disputeHandler.EscalateDispute)
		protected.POST("/disputes/:id/messages", middleware.UUIDValidator("id"), disputeHandler.SendMessage)
		protected.GET("/disputes/:id/messages", middleware.UUIDValidator("id"), disputeHandler.ListMessages)

		protected.GET("/releases/:id", middleware.UUIDValidator("id"), releaseHandler.GetRelease)

		protected.POST("/packages", packageHandler.RegisterPackage)
		protected.GET("/packages/:id", middleware.UUIDValidator("id"), packageHandler.GetPackage)
		protected.POST("/packages/:id/ship", middleware.UUIDValidator("id"), packageHandler.ShipPackage)
		protected.POST("/packages/:id/delivered", middleware.UUIDValidator("id"), packageHandler.DeliverPackage)

		protected.GET("/notifications", notificationHandler.ListNotifications)
		protected.POST("/notifications/:id/read", middleware.UUIDValidator("id"), notificationHandler.MarkAsRead)
		protected.POST("/notifications/read-all", notificationHandler.MarkAllAsRead)

		protected.GET("/revenue/splits", revenueHandler.ListSplits)
		protected.GET("/revenue/splits/:id", middleware.UUIDValidator("id"), revenueHandler.GetSplit)
	}

	// Действия хаба: приём денег и кастодиальная цепочка посылки
	hubOnly := api.Group("/")
	hubOnly.Use(middleware.AuthMiddleware(tokenManager), middleware.RequireRole(models.RoleHub, models.RoleAdmin))
	{
		hubOnly.POST("/escrow/:id/hold", middleware.UUIDValidator("id"), escrowHandler.HoldPayment)
		hubOnly.POST("/packages/:id/received", middleware.UUIDValidator("id"), packageHandler.ReceivePackage)
		hubOnly.POST("/packages/:id/verify", middleware.UUIDValidator("id"), packageHandler.VerifyPackage)
		hubOnly.POST("/packages/:id/return", middleware.UUIDValidator("id"), packageHandler.ReturnPackage)
		hubOnly.POST("/packages/:id/forward", middleware.UUIDValidator("id"), packageHandler.ForwardPackage)
		hubOnly.POST("/revenue/splits", revenueHandler.CreateSplit)
	}

	// Действия модераторов: медиация споров и двухфазное подтверждение выплат
	adminOnly := api.Group("/")
	adminOnly.Use(middleware.AuthMiddleware(tokenManager), middleware.RequireRole(models.RoleAdmin))
	{
		adminOnly.GET("/disputes/escalated/queue", disputeHandler.ListEscalated)
		adminOnly.POST("/disputes/:id/claim", middleware.UUIDValidator("id"), disputeHandler.ClaimDispute)
		adminOnly.POST("/disputes/:id/resolve", middleware.UUIDValidator("id"), disputeHandler.ResolveDispute)
		adminOnly.POST("/disputes/:id/close", middleware.UUIDValidator("id"), disputeHandler.CloseDispute)

		adminOnly.GET("/releases", releaseHandler.ListPending)
		adminOnly.POST("/releases/:id/initiate-approval", middleware.UUIDValidator("id"), releaseHandler.InitiateApproval)
		adminOnly.POST("/releases/:id/confirm", middleware.UUIDValidator("id"), releaseHandler.ConfirmApproval)
		adminOnly.POST("/releases/:id/reject", middleware.UUIDValidator("id"), releaseHandler.RejectRelease)

		adminOnly.POST("/revenue/splits/:id/payout", middleware.UUIDValidator("id"), revenueHandler.AdvanceShare)
	}

	return r
}
