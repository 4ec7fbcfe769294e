package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/asset-exchange/backend/internal/http/dto"
	"github.com/asset-exchange/backend/internal/market"
	"github.com/asset-exchange/backend/internal/middleware"
	"github.com/asset-exchange/backend/internal/models"
	"github.com/asset-exchange/backend/internal/services"
)

type ListingHandler struct {
	market *services.MarketService
	log    *zap.Logger
}

func NewListingHandler(market *services.MarketService, log *zap.Logger) *ListingHandler {
	return &ListingHandler{market: market, log: log}
}

func (h *ListingHandler) CreateListing(c *fiber.Ctx) error {
	var req dto.CreateListingRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}

	asset := models.AssetRef{Contract: req.Contract, TokenID: req.TokenID}
	if !asset.Valid() {
		return badRequest(c, "contract is required")
	}

	l, err := h.market.CreateListing(c.Context(), middleware.GetIdentity(c), asset, req.Price)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: l})
}

func (h *ListingHandler) GetListing(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, "invalid listing id")
	}
	l, err := h.market.GetListing(c.Context(), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: l})
}

// ListListings: ?seller=&active=true&limit=&offset=
func (h *ListingHandler) ListListings(c *fiber.Ctx) error {
	limit, offset := paging(c)
	f := market.ListFilter{
		Seller:     c.Query("seller"),
		ActiveOnly: c.QueryBool("active", true),
		Limit:      limit,
		Offset:     offset,
	}
	if c.Query("seller") == "me" {
		f.Seller = middleware.GetIdentity(c)
	}

	listings, err := h.market.ListListings(c.Context(), f)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: listings})
}

func (h *ListingHandler) Buy(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, "invalid listing id")
	}
	var req dto.BuyRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request")
		}
	}

	st, err := h.market.Buy(c.Context(), id, middleware.GetIdentity(c), req.Paid)
	if err != nil {
		return respondError(c, h.log, err)
	}
	resp := dto.SettlementResponse{
		Listing:  st.Listing,
		Fee:      st.Split.Fee.Dec(),
		Proceeds: st.Split.Proceeds.Dec(),
		Refund:   st.Split.Refund.Dec(),
	}
	if st.Receipt != nil {
		resp.ReceiptID = st.Receipt.ID.String()
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: resp})
}

func (h *ListingHandler) Cancel(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, "invalid listing id")
	}
	l, err := h.market.Cancel(c.Context(), id, middleware.GetIdentity(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: l})
}
