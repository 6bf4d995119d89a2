package handlers

import (
	"github.com/bookstay/payments-backend/internal/config"
	"github.com/bookstay/payments-backend/internal/http/dto"
	"github.com/gofiber/fiber/v2"
)

type MetaHandler struct {
	cfg *config.Config
}

func NewMetaHandler(cfg *config.Config) *MetaHandler {
	return &MetaHandler{cfg: cfg}
}

type MetaCarrier struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type MetaBank struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

var supportedCarriers = []MetaCarrier{
	{ID: "safaricom", Label: "Safaricom M-Pesa"},
	{ID: "airtel", Label: "Airtel Money"},
	{ID: "telkom", Label: "T-Kash"},
}

var supportedBanks = []MetaBank{
	{Code: "01", Label: "KCB"},
	{Code: "02", Label: "Standard Chartered"},
	{Code: "03", Label: "ABSA Kenya"},
	{Code: "07", Label: "NCBA"},
	{Code: "10", Label: "Prime Bank"},
	{Code: "11", Label: "Co-operative Bank"},
	{Code: "12", Label: "National Bank"},
	{Code: "16", Label: "Citibank"},
	{Code: "18", Label: "Middle East Bank"},
	{Code: "23", Label: "Consolidated Bank"},
	{Code: "31", Label: "CBA"},
	{Code: "35", Label: "ABC Bank"},
	{Code: "41", Label: "NIC Bank"},
	{Code: "49", Label: "Spire Bank"},
	{Code: "54", Label: "Victoria Commercial Bank"},
	{Code: "63", Label: "Diamond Trust Bank"},
	{Code: "68", Label: "Equity Bank"},
	{Code: "70", Label: "Family Bank"},
	{Code: "72", Label: "Gulf African Bank"},
	{Code: "74", Label: "First Community Bank"},
}

func (h *MetaHandler) GetCarriers(c *fiber.Ctx) error {
	return c.JSON(dto.SuccessResponse{OK: true, Data: supportedCarriers})
}

func (h *MetaHandler) GetBanks(c *fiber.Ctx) error {
	return c.JSON(dto.SuccessResponse{OK: true, Data: supportedBanks})
}

// GetLimits exposes the deposit and withdrawal bounds clients validate
// against before submitting.
func (h *MetaHandler) GetLimits(c *fiber.Ctx) error {
	return c.JSON(dto.SuccessResponse{OK: true, Data: fiber.Map{
		"currency":             h.cfg.Currency,
		"min_deposit_cents":    h.cfg.MinDepositCents,
		"max_deposit_cents":    h.cfg.MaxDepositCents,
		"min_withdrawal_cents": h.cfg.MinWithdrawalCents,
		"max_withdrawal_cents": h.cfg.MaxWithdrawalCents,
	}})
}
