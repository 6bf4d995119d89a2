package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bookstay/payments-backend/internal/config"
	"github.com/bookstay/payments-backend/internal/db"
	"github.com/bookstay/payments-backend/internal/events"
	"github.com/bookstay/payments-backend/internal/gateway"
	apphttp "github.com/bookstay/payments-backend/internal/http"
	"github.com/bookstay/payments-backend/internal/http/handlers"
	"github.com/bookstay/payments-backend/internal/repositories"
	"github.com/bookstay/payments-backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, "migrations", log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repositories
	profileRepo := repositories.NewProfileRepo(pool)
	escrowRepo := repositories.NewEscrowRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)
	withdrawRepo := repositories.NewWithdrawRepo(pool)
	walletRepo := repositories.NewWalletRepo(pool, cfg.Currency)

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	// Gateway
	gatewayClient := gateway.NewClient(gateway.Config{
		BaseURL:        cfg.GatewayBaseURL,
		ConsumerKey:    cfg.GatewayConsumerKey,
		ConsumerSecret: cfg.GatewayConsumerSecret,
		WebhookSecret:  cfg.GatewayWebhookSecret,
		IPNURL:         cfg.GatewayIPNURL,
		CallbackURL:    cfg.GatewayCallbackURL,
		Timeout:        cfg.GatewayTimeout,
	}, log)

	// Services
	smsSender := &services.LogSMSSender{Log: log}
	otpService := services.NewOTPService(rdb, smsSender, cfg.OTPTTL, cfg.OTPMaxAttempts, log)
	escrowService := services.NewEscrowService(escrowRepo, walletRepo, auditRepo, gatewayClient, publisher, cfg, log)
	withdrawalService := services.NewWithdrawalService(withdrawRepo, walletRepo, auditRepo, gatewayClient, otpService, publisher, cfg, log)

	// Handlers
	authHandler := handlers.NewAuthHandler(profileRepo, cfg, log)
	profileHandler := handlers.NewProfileHandler(profileRepo, log)
	walletHandler := handlers.NewWalletHandler(walletRepo, log)
	paymentsHandler := handlers.NewPaymentsHandler(escrowService, cfg, log)
	withdrawalHandler := handlers.NewWithdrawalHandler(withdrawalService, otpService, profileRepo, log)
	webhookHandler := handlers.NewWebhookHandler(escrowService, withdrawalService, gatewayClient, log)
	auditHandler := handlers.NewAuditHandler(auditRepo, log)
	wsHub := handlers.NewWSHub(cfg, subscriber, log)

	// Start WS hub
	wsHub.Start(ctx)

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb,
		authHandler, profileHandler, walletHandler, paymentsHandler,
		withdrawalHandler, webhookHandler, auditHandler, wsHub)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
