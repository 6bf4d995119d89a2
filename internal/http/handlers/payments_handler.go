package handlers

import (
	"errors"

	"github.com/bookstay/payments-backend/internal/config"
	"github.com/bookstay/payments-backend/internal/gateway"
	"github.com/bookstay/payments-backend/internal/http/dto"
	"github.com/bookstay/payments-backend/internal/middleware"
	"github.com/bookstay/payments-backend/internal/money"
	"github.com/bookstay/payments-backend/internal/rbac"
	"github.com/bookstay/payments-backend/internal/services"
	"github.com/bookstay/payments-backend/internal/split"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type PaymentsHandler struct {
	escrowService *services.EscrowService
	cfg           *config.Config
	log           *zap.Logger
}

func NewPaymentsHandler(escrowService *services.EscrowService, cfg *config.Config, log *zap.Logger) *PaymentsHandler {
	return &PaymentsHandler{escrowService: escrowService, cfg: cfg, log: log}
}

// CreateDeposit starts an escrow deposit and returns the hosted
// checkout URL.
// POST /payments/deposits
func (h *PaymentsHandler) CreateDeposit(c *fiber.Ctx) error {
	var req dto.CreateDepositRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}

	hostID, err := uuid.Parse(req.HostID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid host_id"})
	}
	var agentID *uuid.UUID
	if req.AgentID != nil {
		id, err := uuid.Parse(*req.AgentID)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid agent_id"})
		}
		agentID = &id
	}
	if req.Billing.Email == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "billing.email is required"})
	}

	rules, err := h.resolveRules(req.HostPct, req.AgentPct)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	guestID := middleware.GetUserID(c)
	result, err := h.escrowService.CreateDeposit(c.Context(), guestID, services.CreateDepositRequest{
		HostID:      hostID,
		AgentID:     agentID,
		Amount:      money.Cents(req.AmountCents),
		SplitRules:  rules,
		Description: req.Description,
		Billing: gateway.BillingAddress{
			Email:       req.Billing.Email,
			Phone:       req.Billing.Phone,
			FirstName:   req.Billing.FirstName,
			LastName:    req.Billing.LastName,
			CountryCode: req.Billing.CountryCode,
		},
	})
	if err != nil {
		if errors.Is(err, services.ErrAmountOutOfRange) || errors.Is(err, split.ErrInvalidRules) {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
		}
		h.log.Error("create deposit failed", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Error: "payment provider unavailable"})
	}

	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: dto.DepositResponse{
		Transaction: result.Transaction,
		CheckoutURL: result.CheckoutURL,
	}})
}

// resolveRules fills missing percentages from config, with the platform
// taking whatever remains.
func (h *PaymentsHandler) resolveRules(hostPct, agentPct *decimal.Decimal) (split.Rules, error) {
	host, err := decimal.NewFromString(h.cfg.DefaultHostPct)
	if err != nil {
		return split.Rules{}, errors.New("default host percentage is misconfigured")
	}
	agent, err := decimal.NewFromString(h.cfg.DefaultAgentPct)
	if err != nil {
		return split.Rules{}, errors.New("default agent percentage is misconfigured")
	}
	if hostPct != nil {
		host = *hostPct
	}
	if agentPct != nil {
		agent = *agentPct
	}
	platform := decimal.NewFromInt(100).Sub(host).Sub(agent)
	rules := split.Rules{Host: host, Agent: agent, Platform: platform}
	if err := rules.Validate(); err != nil {
		return split.Rules{}, err
	}
	return rules, nil
}

// GetTransaction returns one escrow transaction. Guests see their own;
// admins see all.
// GET /payments/transactions/:id
func (h *PaymentsHandler) GetTransaction(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid transaction id"})
	}

	tx, err := h.escrowService.GetTransaction(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "transaction not found"})
	}

	userID := middleware.GetUserID(c)
	if middleware.GetRole(c) != rbac.RoleAdmin &&
		tx.GuestID != userID && tx.HostID != userID && (tx.AgentID == nil || *tx.AgentID != userID) {
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: "not a party to this transaction"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: tx})
}

// ListMine returns the caller's deposits, newest first.
// GET /payments/transactions
func (h *PaymentsHandler) ListMine(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	limit := c.QueryInt("limit", 20)
	offset := c.QueryInt("offset", 0)

	txs, err := h.escrowService.ListByGuest(c.Context(), userID, limit, offset)
	if err != nil {
		h.log.Error("list transactions failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: txs})
}

// Release pays the held amount out to the beneficiaries' wallets.
// POST /payments/transactions/:id/release
func (h *PaymentsHandler) Release(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid transaction id"})
	}

	actorID := middleware.GetUserID(c)
	tx, err := h.escrowService.Release(c.Context(), id, &actorID)
	if err != nil {
		if errors.Is(err, services.ErrInvalidStatus) {
			return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: err.Error()})
		}
		h.log.Error("release failed", zap.String("escrow_id", id.String()), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: tx})
}

// Refund reverses a held payment at the provider.
// POST /payments/transactions/:id/refund
func (h *PaymentsHandler) Refund(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid transaction id"})
	}

	var req dto.RefundEscrowRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}
	var amount *money.Cents
	if req.AmountCents != nil {
		a := money.Cents(*req.AmountCents)
		amount = &a
	}

	actorID := middleware.GetUserID(c)
	tx, err := h.escrowService.Refund(c.Context(), id, amount, &actorID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidStatus):
			return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: err.Error()})
		case errors.Is(err, services.ErrAmountOutOfRange):
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
		}
		h.log.Error("refund failed", zap.String("escrow_id", id.String()), zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Error: "payment provider unavailable"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: tx})
}
