package handlers

import (
	"crypto/subtle"

	"github.com/bookstay/payments-backend/internal/auth"
	"github.com/bookstay/payments-backend/internal/config"
	"github.com/bookstay/payments-backend/internal/http/dto"
	"github.com/bookstay/payments-backend/internal/rbac"
	"github.com/bookstay/payments-backend/internal/repositories"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type AuthHandler struct {
	profileRepo *repositories.ProfileRepo
	cfg         *config.Config
	log         *zap.Logger
}

func NewAuthHandler(profileRepo *repositories.ProfileRepo, cfg *config.Config, log *zap.Logger) *AuthHandler {
	return &AuthHandler{profileRepo: profileRepo, cfg: cfg, log: log}
}

// ExchangeToken mints a payments JWT for a platform user. Only the
// booking platform holds the service key; end users never call this.
// POST /auth/token
func (h *AuthHandler) ExchangeToken(c *fiber.Ctx) error {
	var req dto.AuthTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}

	if h.cfg.ServiceAPIKey == "" ||
		subtle.ConstantTimeCompare([]byte(req.ServiceKey), []byte(h.cfg.ServiceAPIKey)) != 1 {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "invalid service key"})
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "user_id must be a uuid"})
	}
	if _, ok := rbac.RolePermissions[req.Role]; !ok {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "unknown role"})
	}

	profile, err := h.profileRepo.Upsert(c.Context(), userID, req.Email, req.PhoneNumber, req.Role)
	if err != nil {
		h.log.Error("failed to upsert payment profile", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}

	token, err := auth.GenerateJWT(h.cfg.JWTSecret, profile.UserID, profile.Role, h.cfg.JWTExpiration)
	if err != nil {
		h.log.Error("failed to generate jwt", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}

	return c.JSON(dto.AuthResponse{
		Token:   token,
		Profile: profile,
	})
}
