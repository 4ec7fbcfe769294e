package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/asset-exchange/backend/internal/http/dto"
	"github.com/asset-exchange/backend/internal/middleware"
	"github.com/asset-exchange/backend/internal/services"
	"github.com/asset-exchange/backend/internal/ton"
)

type AuthHandler struct {
	authService *services.AuthService
	log         *zap.Logger
}

func NewAuthHandler(authService *services.AuthService, log *zap.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, log: log}
}

// Payload выдаёт nonce, который кошелёк подпишет в ton_proof.
func (h *AuthHandler) Payload(c *fiber.Ctx) error {
	payload, err := h.authService.GeneratePayload(c.Context())
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.PayloadResponse{Payload: payload})
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req ton.Login
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Address == "" || req.PublicKey == "" || req.Proof.Payload == "" {
		return badRequest(c, "address, public_key and proof are required")
	}

	res, err := h.authService.Login(c.Context(), req)
	if err != nil {
		h.log.Debug("ton proof login failed", zap.Error(err))
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: err.Error(), Code: "invalid_proof"})
	}

	return c.JSON(dto.AuthResponse{Token: res.Token, Identity: res.Identity, Role: res.Role})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	identity, role, err := h.authService.Me(c.Context(), middleware.GetIdentity(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.MeResponse{Identity: identity, Role: role}})
}
