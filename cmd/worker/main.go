package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bookstay/payments-backend/internal/config"
	"github.com/bookstay/payments-backend/internal/db"
	"github.com/bookstay/payments-backend/internal/events"
	"github.com/bookstay/payments-backend/internal/gateway"
	"github.com/bookstay/payments-backend/internal/repositories"
	"github.com/bookstay/payments-backend/internal/services"
	"go.uber.org/zap"
)

// The worker runs the reconciliation loops: re-polling pending deposits
// the provider never notified about, and payouts stuck without a
// callback.
func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repos
	escrowRepo := repositories.NewEscrowRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)
	withdrawRepo := repositories.NewWithdrawRepo(pool)
	walletRepo := repositories.NewWalletRepo(pool, cfg.Currency)

	// Services
	publisher := events.NewRedisPublisher(rdb, log)
	gatewayClient := gateway.NewClient(gateway.Config{
		BaseURL:        cfg.GatewayBaseURL,
		ConsumerKey:    cfg.GatewayConsumerKey,
		ConsumerSecret: cfg.GatewayConsumerSecret,
		WebhookSecret:  cfg.GatewayWebhookSecret,
		IPNURL:         cfg.GatewayIPNURL,
		CallbackURL:    cfg.GatewayCallbackURL,
		Timeout:        cfg.GatewayTimeout,
	}, log)
	smsSender := &services.LogSMSSender{Log: log}
	otpService := services.NewOTPService(rdb, smsSender, cfg.OTPTTL, cfg.OTPMaxAttempts, log)
	escrowService := services.NewEscrowService(escrowRepo, walletRepo, auditRepo, gatewayClient, publisher, cfg, log)
	withdrawalService := services.NewWithdrawalService(withdrawRepo, walletRepo, auditRepo, gatewayClient, otpService, publisher, cfg, log)

	log.Info("worker started",
		zap.Duration("reconcile_interval", cfg.ReconcileInterval),
		zap.Duration("payout_poll_interval", cfg.PayoutPollInterval),
	)

	reconcileTicker := time.NewTicker(cfg.ReconcileInterval)
	payoutTicker := time.NewTicker(cfg.PayoutPollInterval)
	defer reconcileTicker.Stop()
	defer payoutTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-reconcileTicker.C:
			escrowService.ReconcileStale(ctx)
		case <-payoutTicker.C:
			withdrawalService.PollStuck(ctx)
		case <-sigCh:
			log.Info("shutting down worker")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}
