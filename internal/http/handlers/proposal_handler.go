package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/asset-exchange/backend/internal/http/dto"
	"github.com/asset-exchange/backend/internal/middleware"
	"github.com/asset-exchange/backend/internal/models"
	"github.com/asset-exchange/backend/internal/services"
)

type ProposalHandler struct {
	gov *services.GovernanceService
	log *zap.Logger
}

func NewProposalHandler(gov *services.GovernanceService, log *zap.Logger) *ProposalHandler {
	return &ProposalHandler{gov: gov, log: log}
}

func (h *ProposalHandler) view(p *models.Proposal) dto.ProposalView {
	return dto.ProposalView{Proposal: p, Phase: p.Phase(h.gov.Now())}
}

func (h *ProposalHandler) CreateProposal(c *fiber.Ctx) error {
	var req dto.CreateProposalRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	p, err := h.gov.CreateProposal(c.Context(), middleware.GetIdentity(c), req.Description, req.RelatedListingID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: h.view(p)})
}

func (h *ProposalHandler) GetProposal(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, "invalid proposal id")
	}
	p, err := h.gov.GetProposal(c.Context(), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: h.view(p)})
}

func (h *ProposalHandler) ListProposals(c *fiber.Ctx) error {
	limit, offset := paging(c)
	list, err := h.gov.ListProposals(c.Context(), limit, offset)
	if err != nil {
		return respondError(c, h.log, err)
	}
	out := make([]dto.ProposalView, 0, len(list))
	for _, p := range list {
		out = append(out, h.view(p))
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: out})
}

func (h *ProposalHandler) Commit(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, "invalid proposal id")
	}
	var req dto.CommitVoteRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	if err := h.gov.Commit(c.Context(), id, middleware.GetIdentity(c), req.CommitHash); err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *ProposalHandler) Reveal(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, "invalid proposal id")
	}
	var req dto.RevealVoteRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	if err := h.gov.Reveal(c.Context(), id, middleware.GetIdentity(c), req.Support, req.Salt); err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *ProposalHandler) Execute(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, "invalid proposal id")
	}
	p, err := h.gov.Execute(c.Context(), id, middleware.GetIdentity(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: h.view(p)})
}

func (h *ProposalHandler) MyVote(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, "invalid proposal id")
	}
	v, err := h.gov.MyVote(c.Context(), id, middleware.GetIdentity(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: v})
}
