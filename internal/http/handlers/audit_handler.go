package handlers

import (
	"github.com/bookstay/payments-backend/internal/http/dto"
	"github.com/bookstay/payments-backend/internal/models"
	"github.com/bookstay/payments-backend/internal/repositories"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type AuditHandler struct {
	auditRepo *repositories.AuditRepo
	log       *zap.Logger
}

func NewAuditHandler(auditRepo *repositories.AuditRepo, log *zap.Logger) *AuditHandler {
	return &AuditHandler{auditRepo: auditRepo, log: log}
}

// GetTrail returns the audit entries for one entity, newest first.
// GET /admin/audit/:entityType/:id
func (h *AuditHandler) GetTrail(c *fiber.Ctx) error {
	entityType := c.Params("entityType")
	if entityType != models.EntityEscrowTransaction && entityType != models.EntityWithdrawalRequest {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "unknown entity type"})
	}
	entityID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid entity id"})
	}

	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)
	logs, err := h.auditRepo.GetByEntity(c.Context(), entityType, entityID, limit, offset)
	if err != nil {
		h.log.Error("audit trail lookup failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: logs})
}
