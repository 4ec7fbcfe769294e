package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/asset-exchange/backend/internal/http/dto"
	"github.com/asset-exchange/backend/internal/middleware"
	"github.com/asset-exchange/backend/internal/models"
	"github.com/asset-exchange/backend/internal/services"
)

// AuditReader is satisfied by repositories.AuditRepo.
type AuditReader interface {
	GetByEntity(ctx context.Context, entityType, entityID string, limit, offset int) ([]models.AuditLog, error)
}

type AdminHandler struct {
	market *services.MarketService
	audit  AuditReader
	log    *zap.Logger
}

func NewAdminHandler(market *services.MarketService, audit AuditReader, log *zap.Logger) *AdminHandler {
	return &AdminHandler{market: market, audit: audit, log: log}
}

func (h *AdminHandler) GetFee(c *fiber.Ctx) error {
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.FeeResponse{FeeBps: h.market.FeeRate()}})
}

func (h *AdminHandler) SetFee(c *fiber.Ctx) error {
	var req dto.SetFeeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	if err := h.market.SetFeeRate(c.Context(), middleware.GetIdentity(c), req.FeeBps); err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.FeeResponse{FeeBps: req.FeeBps}})
}

func (h *AdminHandler) WithdrawFees(c *fiber.Ctx) error {
	identity := middleware.GetIdentity(c)
	amount, err := h.market.WithdrawFees(c.Context(), identity)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.BalanceResponse{Account: identity, Amount: amount.Dec()}})
}

func (h *AdminHandler) MintAsset(c *fiber.Ctx) error {
	var req dto.MintRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	asset := models.AssetRef{Contract: req.Contract, TokenID: req.TokenID}
	if !asset.Valid() || req.Owner == "" {
		return badRequest(c, "contract and owner are required")
	}
	if err := h.market.Mint(c.Context(), middleware.GetIdentity(c), asset, req.Owner); err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: asset})
}

func (h *AdminHandler) Credit(c *fiber.Ctx) error {
	var req dto.CreditRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	if req.Account == "" {
		return badRequest(c, "account is required")
	}
	if err := h.market.Credit(c.Context(), middleware.GetIdentity(c), req.Account, req.Amount); err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

// AuditTrail: /admin/audit/:entityType/:entityId
func (h *AdminHandler) AuditTrail(c *fiber.Ctx) error {
	if h.audit == nil {
		return c.JSON(dto.SuccessResponse{OK: true, Data: []models.AuditLog{}})
	}
	limit, offset := paging(c)
	entries, err := h.audit.GetByEntity(c.Context(), c.Params("entityType"), c.Params("entityId"), limit, offset)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: entries})
}
