package handlers

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/asset-exchange/backend/internal/http/dto"
	"github.com/asset-exchange/backend/internal/middleware"
	"github.com/asset-exchange/backend/internal/models"
	"github.com/asset-exchange/backend/internal/services"
)

// ActivityReader is satisfied by repositories.AuditRepo.
type ActivityReader interface {
	ListByActor(ctx context.Context, actor string, limit, offset int) ([]models.AuditLog, error)
}

// AccountHandler serves the caller's balance, withdrawals and asset approvals.
type AccountHandler struct {
	market   *services.MarketService
	treasury *services.TreasuryService
	activity ActivityReader
	log      *zap.Logger
}

func NewAccountHandler(market *services.MarketService, treasury *services.TreasuryService, activity ActivityReader, log *zap.Logger) *AccountHandler {
	return &AccountHandler{market: market, treasury: treasury, activity: activity, log: log}
}

func (h *AccountHandler) Balance(c *fiber.Ctx) error {
	identity := middleware.GetIdentity(c)
	amount, err := h.market.Balance(c.Context(), identity)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.BalanceResponse{Account: identity, Amount: amount.Dec()}})
}

func (h *AccountHandler) RequestWithdrawal(c *fiber.Ctx) error {
	var req dto.WithdrawalRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	amount, err := services.ParseAmount(req.Amount)
	if err != nil {
		return respondError(c, h.log, err)
	}

	identity := middleware.GetIdentity(c)
	to := req.To
	if to == "" {
		to = identity
	}
	w, err := h.treasury.RequestWithdrawal(c.Context(), identity, to, amount)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(dto.SuccessResponse{OK: true, Data: w})
}

func (h *AccountHandler) ListWithdrawals(c *fiber.Ctx) error {
	limit, offset := paging(c)
	list, err := h.treasury.ListWithdrawals(c.Context(), middleware.GetIdentity(c), limit, offset)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: list})
}

func (h *AccountHandler) Approve(c *fiber.Ctx) error {
	var req dto.AssetRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	asset := models.AssetRef{Contract: req.Contract, TokenID: req.TokenID}
	if !asset.Valid() {
		return badRequest(c, "contract is required")
	}
	if err := h.market.Approve(c.Context(), middleware.GetIdentity(c), asset); err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *AccountHandler) ApproveAll(c *fiber.Ctx) error {
	var req dto.ApproveAllRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	if err := h.market.ApproveAll(c.Context(), middleware.GetIdentity(c), req.Approved); err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

// GetAsset: /assets/:contract/:tokenId
func (h *AccountHandler) GetAsset(c *fiber.Ctx) error {
	tokenID, err := strconv.ParseUint(c.Params("tokenId"), 10, 64)
	if err != nil {
		return badRequest(c, "invalid token id")
	}
	asset := models.AssetRef{Contract: c.Params("contract"), TokenID: tokenID}
	view, err := h.market.Asset(c.Context(), asset)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: view})
}

// Activity: /me/activity
func (h *AccountHandler) Activity(c *fiber.Ctx) error {
	if h.activity == nil {
		return c.JSON(dto.SuccessResponse{OK: true, Data: []models.AuditLog{}})
	}
	limit, offset := paging(c)
	entries, err := h.activity.ListByActor(c.Context(), middleware.GetIdentity(c), limit, offset)
	if err != nil {
		return respondError(c, h.log, err)
	}
	if entries == nil {
		entries = []models.AuditLog{}
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: entries})
}
