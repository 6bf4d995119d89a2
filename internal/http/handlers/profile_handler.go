package handlers

import (
	"github.com/bookstay/payments-backend/internal/http/dto"
	"github.com/bookstay/payments-backend/internal/middleware"
	"github.com/bookstay/payments-backend/internal/repositories"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type ProfileHandler struct {
	profileRepo *repositories.ProfileRepo
	log         *zap.Logger
}

func NewProfileHandler(profileRepo *repositories.ProfileRepo, log *zap.Logger) *ProfileHandler {
	return &ProfileHandler{profileRepo: profileRepo, log: log}
}

func (h *ProfileHandler) GetMe(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	profile, err := h.profileRepo.GetByUserID(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "profile not found"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: profile})
}

// UpdatePhone sets the number withdrawal OTPs are delivered to.
// PUT /me/phone
func (h *ProfileHandler) UpdatePhone(c *fiber.Ctx) error {
	var req dto.UpdatePhoneRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if req.PhoneNumber == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "phone_number is required"})
	}

	userID := middleware.GetUserID(c)
	if err := h.profileRepo.UpdatePhone(c.Context(), userID, req.PhoneNumber); err != nil {
		h.log.Error("failed to update phone", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}
