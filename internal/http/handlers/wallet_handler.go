package handlers

import (
	"github.com/bookstay/payments-backend/internal/http/dto"
	"github.com/bookstay/payments-backend/internal/middleware"
	"github.com/bookstay/payments-backend/internal/repositories"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type WalletHandler struct {
	walletRepo *repositories.WalletRepo
	log        *zap.Logger
}

func NewWalletHandler(walletRepo *repositories.WalletRepo, log *zap.Logger) *WalletHandler {
	return &WalletHandler{walletRepo: walletRepo, log: log}
}

// GetWallet returns the caller's balance, creating the wallet on first
// touch.
// GET /me/wallet
func (h *WalletHandler) GetWallet(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	wallet, err := h.walletRepo.GetOrCreate(c.Context(), userID)
	if err != nil {
		h.log.Error("failed to load wallet", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.WalletResponse{
		WalletID:     wallet.ID.String(),
		BalanceCents: int64(wallet.Balance),
		Balance:      wallet.Balance.String(),
		Currency:     wallet.Currency,
	}})
}

// ListTransactions pages through the caller's ledger, newest first.
// GET /me/wallet/transactions
func (h *WalletHandler) ListTransactions(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	wallet, err := h.walletRepo.GetOrCreate(c.Context(), userID)
	if err != nil {
		h.log.Error("failed to load wallet", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}

	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)
	entries, err := h.walletRepo.ListEntries(c.Context(), wallet.ID, limit, offset)
	if err != nil {
		h.log.Error("failed to list ledger entries", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: entries})
}
