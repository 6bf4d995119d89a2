package handlers

import (
	"errors"

	"github.com/bookstay/payments-backend/internal/http/dto"
	"github.com/bookstay/payments-backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// SignatureVerifier checks a webhook body against its signature header.
type SignatureVerifier interface {
	VerifyWebhookSignature(payload []byte, signature string) bool
}

type WebhookHandler struct {
	escrowService     *services.EscrowService
	withdrawalService *services.WithdrawalService
	verifier          SignatureVerifier
	log               *zap.Logger
}

func NewWebhookHandler(
	escrowService *services.EscrowService,
	withdrawalService *services.WithdrawalService,
	verifier SignatureVerifier,
	log *zap.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		escrowService:     escrowService,
		withdrawalService: withdrawalService,
		verifier:          verifier,
		log:               log,
	}
}

// GatewayIPN receives payment notifications. The body only tells us
// which order to look at; the handler never trusts a status carried in
// it.
// POST /webhooks/gateway
func (h *WebhookHandler) GatewayIPN(c *fiber.Ctx) error {
	body := c.Body()
	if !h.verifier.VerifyWebhookSignature(body, c.Get("X-Webhook-Signature")) {
		h.log.Warn("webhook with bad signature", zap.String("ip", c.IP()))
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "invalid signature"})
	}

	var payload struct {
		OrderTrackingID   string `json:"OrderTrackingId"`
		MerchantReference string `json:"OrderMerchantReference"`
		NotificationType  string `json:"OrderNotificationType"`
	}
	if err := c.BodyParser(&payload); err != nil || payload.OrderTrackingID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "missing OrderTrackingId"})
	}

	if err := h.escrowService.HandleWebhook(c.Context(), payload.OrderTrackingID); err != nil {
		if errors.Is(err, services.ErrIntegrityViolation) {
			// Retrying will not change the outcome; it is logged and
			// audited, acknowledge so the provider stops redelivering.
			return c.JSON(fiber.Map{"status": "ignored"})
		}
		h.log.Error("webhook processing failed",
			zap.String("tracking_id", payload.OrderTrackingID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "processing failed"})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

// PayoutCallback receives payout results for withdrawals.
// POST /webhooks/payout
func (h *WebhookHandler) PayoutCallback(c *fiber.Ctx) error {
	body := c.Body()
	if !h.verifier.VerifyWebhookSignature(body, c.Get("X-Webhook-Signature")) {
		h.log.Warn("payout callback with bad signature", zap.String("ip", c.IP()))
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "invalid signature"})
	}

	var payload struct {
		PayoutID string `json:"payout_id"`
		Status   string `json:"status"`
	}
	if err := c.BodyParser(&payload); err != nil || payload.PayoutID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "missing payout_id"})
	}

	if err := h.withdrawalService.HandlePayoutCallback(c.Context(), payload.PayoutID, payload.Status); err != nil {
		if errors.Is(err, services.ErrIntegrityViolation) {
			// Already settled the other way; logged and audited,
			// acknowledge so the provider stops redelivering.
			return c.JSON(fiber.Map{"status": "ignored"})
		}
		h.log.Error("payout callback processing failed",
			zap.String("payout_id", payload.PayoutID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "processing failed"})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}
