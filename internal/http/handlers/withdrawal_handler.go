package handlers

import (
	"errors"

	"github.com/bookstay/payments-backend/internal/http/dto"
	"github.com/bookstay/payments-backend/internal/middleware"
	"github.com/bookstay/payments-backend/internal/models"
	"github.com/bookstay/payments-backend/internal/money"
	"github.com/bookstay/payments-backend/internal/repositories"
	"github.com/bookstay/payments-backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type WithdrawalHandler struct {
	withdrawalService *services.WithdrawalService
	otpService        *services.OTPService
	profileRepo       *repositories.ProfileRepo
	log               *zap.Logger
}

func NewWithdrawalHandler(
	withdrawalService *services.WithdrawalService,
	otpService *services.OTPService,
	profileRepo *repositories.ProfileRepo,
	log *zap.Logger,
) *WithdrawalHandler {
	return &WithdrawalHandler{
		withdrawalService: withdrawalService,
		otpService:        otpService,
		profileRepo:       profileRepo,
		log:               log,
	}
}

// RequestOTP sends a verification code to the caller's registered phone
// for a withdrawal of the given amount.
// POST /withdrawals/request-otp
func (h *WithdrawalHandler) RequestOTP(c *fiber.Ctx) error {
	var req dto.RequestOTPRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}
	if req.AmountCents <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "amount_cents must be positive"})
	}

	userID := middleware.GetUserID(c)
	profile, err := h.profileRepo.GetByUserID(c.Context(), userID)
	if err != nil || profile.PhoneNumber == nil || *profile.PhoneNumber == "" {
		return c.Status(fiber.StatusPreconditionFailed).JSON(dto.ErrorResponse{Error: "no phone number on file, set one first"})
	}

	if err := h.otpService.Request(c.Context(), userID, *profile.PhoneNumber, money.Cents(req.AmountCents)); err != nil {
		h.log.Error("otp request failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "could not send verification code"})
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

// ResendOTP redelivers the active code.
// POST /withdrawals/resend-otp
func (h *WithdrawalHandler) ResendOTP(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if err := h.otpService.Resend(c.Context(), userID); err != nil {
		if errors.Is(err, services.ErrOTPInvalid) {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
		}
		h.log.Error("otp resend failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "could not resend verification code"})
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

// Create submits an OTP-verified withdrawal.
// POST /withdrawals
func (h *WithdrawalHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateWithdrawalRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}
	if req.OTPCode == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "otp_code is required"})
	}

	userID := middleware.GetUserID(c)
	w, err := h.withdrawalService.CreateWithdrawal(c.Context(), userID, services.CreateWithdrawalRequest{
		Amount: money.Cents(req.AmountCents),
		Method: req.Method,
		Destination: models.WithdrawalDestination{
			PhoneNumber:   req.PhoneNumber,
			BankCode:      req.BankCode,
			AccountNumber: req.AccountNumber,
			AccountName:   req.AccountName,
		},
		OTPCode: req.OTPCode,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrAmountOutOfRange),
			errors.Is(err, services.ErrInvalidDestination):
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
		case errors.Is(err, services.ErrOTPInvalid):
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: err.Error()})
		case errors.Is(err, repositories.ErrInsufficientBalance):
			return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{Error: err.Error()})
		}
		if w != nil {
			// Funds are held and the request is pending; the caller can
			// cancel or wait for the poller.
			h.log.Warn("withdrawal submitted with provider error", zap.Error(err))
			return c.Status(fiber.StatusAccepted).JSON(dto.SuccessResponse{OK: true, Data: w})
		}
		h.log.Error("create withdrawal failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: w})
}

// Cancel reverses an unacknowledged withdrawal and returns the hold.
// POST /withdrawals/:id/cancel
func (h *WithdrawalHandler) Cancel(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid withdrawal id"})
	}

	userID := middleware.GetUserID(c)
	w, err := h.withdrawalService.Get(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "withdrawal not found"})
	}
	if w.UserID != userID {
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: "not your withdrawal"})
	}

	cancelled, err := h.withdrawalService.Cancel(c.Context(), id, userID)
	if err != nil {
		if errors.Is(err, services.ErrCancelNotAllowed) {
			return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: err.Error()})
		}
		h.log.Error("cancel withdrawal failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: cancelled})
}

// History lists the caller's withdrawals.
// GET /withdrawals
func (h *WithdrawalHandler) History(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	limit := c.QueryInt("limit", 20)
	offset := c.QueryInt("offset", 0)

	list, err := h.withdrawalService.History(c.Context(), userID, limit, offset)
	if err != nil {
		h.log.Error("withdrawal history failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: list})
}

// Info returns limits, currency and the caller's balance for the form.
// GET /withdrawals/info
func (h *WithdrawalHandler) Info(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	info, err := h.withdrawalService.Info(c.Context(), userID)
	if err != nil {
		h.log.Error("withdrawal info failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: info})
}

// AdminList pages through all withdrawals, optionally by status.
// GET /admin/withdrawals
func (h *WithdrawalHandler) AdminList(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)
	status := c.Query("status")

	list, err := h.withdrawalService.ListAll(c.Context(), status, limit, offset)
	if err != nil {
		h.log.Error("admin withdrawal list failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: list})
}

// AdminUpdateStatus settles a withdrawal the provider never resolved.
// POST /admin/withdrawals/:id/status
func (h *WithdrawalHandler) AdminUpdateStatus(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid withdrawal id"})
	}

	var req dto.AdminWithdrawalUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}

	actorID := middleware.GetUserID(c)
	w, err := h.withdrawalService.AdminUpdateStatus(c.Context(), id, req.Status, req.Reason, actorID)
	if err != nil {
		if errors.Is(err, services.ErrInvalidStatus) {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
		}
		if errors.Is(err, services.ErrIntegrityViolation) {
			return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: err.Error()})
		}
		h.log.Error("admin withdrawal update failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: w})
}
