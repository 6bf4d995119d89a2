package http

import (
	"time"

	"github.com/bookstay/payments-backend/internal/config"
	"github.com/bookstay/payments-backend/internal/http/handlers"
	"github.com/bookstay/payments-backend/internal/middleware"
	"github.com/bookstay/payments-backend/internal/rbac"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	authHandler *handlers.AuthHandler,
	profileHandler *handlers.ProfileHandler,
	walletHandler *handlers.WalletHandler,
	paymentsHandler *handlers.PaymentsHandler,
	withdrawalHandler *handlers.WithdrawalHandler,
	webhookHandler *handlers.WebhookHandler,
	auditHandler *handlers.AuditHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Provider callbacks, authenticated by signature, not JWT.
	app.Post("/webhooks/gateway", webhookHandler.GatewayIPN)
	app.Post("/webhooks/payout", webhookHandler.PayoutCallback)

	api := app.Group("/api/v1")

	// Token exchange (service-to-service)
	api.Post("/auth/token", authHandler.ExchangeToken)

	api.Use(middleware.RateLimitMiddleware(rdb, 100, time.Minute))

	// Meta (public)
	metaHandler := handlers.NewMetaHandler(cfg)
	api.Get("/meta/carriers", metaHandler.GetCarriers)
	api.Get("/meta/banks", metaHandler.GetBanks)
	api.Get("/meta/limits", metaHandler.GetLimits)

	// Protected endpoints
	protected := api.Group("", middleware.AuthMiddleware(cfg, log))

	// Profile
	protected.Get("/me", profileHandler.GetMe)
	protected.Put("/me/phone", profileHandler.UpdatePhone)

	// Wallet
	protected.Get("/me/wallet", walletHandler.GetWallet)
	protected.Get("/me/wallet/transactions", walletHandler.ListTransactions)

	// Escrow deposits
	protected.Post("/payments/deposits",
		middleware.RequirePermission(rbac.PermDeposit), paymentsHandler.CreateDeposit)
	protected.Get("/payments/transactions", paymentsHandler.ListMine)
	protected.Get("/payments/transactions/:id", paymentsHandler.GetTransaction)

	// Withdrawals
	withdraw := protected.Group("", middleware.RequirePermission(rbac.PermWithdraw))
	withdraw.Get("/withdrawals/info", withdrawalHandler.Info)
	withdraw.Post("/withdrawals/request-otp", withdrawalHandler.RequestOTP)
	withdraw.Post("/withdrawals/resend-otp", withdrawalHandler.ResendOTP)
	withdraw.Post("/withdrawals", withdrawalHandler.Create)
	withdraw.Get("/withdrawals", withdrawalHandler.History)
	withdraw.Post("/withdrawals/:id/cancel", withdrawalHandler.Cancel)

	// Admin
	admin := protected.Group("/admin", middleware.AdminMiddleware())
	admin.Post("/payments/transactions/:id/release", paymentsHandler.Release)
	admin.Post("/payments/transactions/:id/refund", paymentsHandler.Refund)
	admin.Get("/withdrawals", withdrawalHandler.AdminList)
	admin.Post("/withdrawals/:id/status", withdrawalHandler.AdminUpdateStatus)
	admin.Get("/audit/:entityType/:id", auditHandler.GetTrail)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(wsHub.HandleWS))
}
