package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/asset-exchange/backend/internal/config"
	"github.com/asset-exchange/backend/internal/http/handlers"
	"github.com/asset-exchange/backend/internal/middleware"
	"github.com/asset-exchange/backend/internal/rbac"
)

// Handlers groups everything the router mounts. WS may be nil.
type Handlers struct {
	Auth     *handlers.AuthHandler
	Listing  *handlers.ListingHandler
	Proposal *handlers.ProposalHandler
	Account  *handlers.AccountHandler
	Admin    *handlers.AdminHandler
	WS       *handlers.WSHub
}

func SetupRouter(app *fiber.App, cfg *config.Config, log *zap.Logger, rdb *redis.Client, h Handlers) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")

	// Auth (public, tighter limit)
	authLimit := middleware.RateLimitMiddleware(rdb, 20, time.Minute)
	api.Post("/auth/ton/payload", authLimit, h.Auth.Payload)
	api.Post("/auth/ton", authLimit, h.Auth.Login)

	// Protected endpoints
	protected := api.Group("", middleware.AuthMiddleware(cfg, log), middleware.RateLimitMiddleware(rdb, 100, time.Minute))

	protected.Get("/me", h.Auth.Me)
	protected.Get("/me/balance", h.Account.Balance)
	protected.Get("/me/withdrawals", h.Account.ListWithdrawals)
	protected.Get("/me/activity", h.Account.Activity)
	protected.Post("/me/withdrawals", middleware.RequirePermission(rbac.PermWithdrawOwn), h.Account.RequestWithdrawal)

	// Assets
	protected.Post("/assets/approve", h.Account.Approve)
	protected.Post("/assets/approve-all", h.Account.ApproveAll)
	protected.Get("/assets/:contract/:tokenId", h.Account.GetAsset)

	// Listings
	protected.Get("/fee", h.Admin.GetFee)
	protected.Post("/listings", middleware.RequirePermission(rbac.PermCreateListing), h.Listing.CreateListing)
	protected.Get("/listings", h.Listing.ListListings)
	protected.Get("/listings/:id", h.Listing.GetListing)
	protected.Post("/listings/:id/buy", middleware.RequirePermission(rbac.PermBuyListing), h.Listing.Buy)
	protected.Post("/listings/:id/cancel", middleware.RequirePermission(rbac.PermCancelOwn), h.Listing.Cancel)

	// Governance
	protected.Post("/proposals", middleware.RequirePermission(rbac.PermPropose), h.Proposal.CreateProposal)
	protected.Get("/proposals", h.Proposal.ListProposals)
	protected.Get("/proposals/:id", h.Proposal.GetProposal)
	protected.Post("/proposals/:id/commit", middleware.RequirePermission(rbac.PermVote), h.Proposal.Commit)
	protected.Post("/proposals/:id/reveal", middleware.RequirePermission(rbac.PermVote), h.Proposal.Reveal)
	protected.Post("/proposals/:id/execute", middleware.RequirePermission(rbac.PermExecute), h.Proposal.Execute)
	protected.Get("/proposals/:id/votes/me", h.Proposal.MyVote)

	// Admin
	admin := protected.Group("/admin", middleware.AdminMiddleware(cfg))
	admin.Put("/fee", middleware.RequirePermission(rbac.PermSetFee), h.Admin.SetFee)
	admin.Post("/withdraw", middleware.RequirePermission(rbac.PermWithdrawFees), h.Admin.WithdrawFees)
	admin.Post("/assets", middleware.RequirePermission(rbac.PermMintAsset), h.Admin.MintAsset)
	admin.Post("/credit", middleware.RequirePermission(rbac.PermCreditBalance), h.Admin.Credit)
	admin.Get("/audit/:entityType/:entityId", h.Admin.AuditTrail)

	// WebSocket
	if h.WS != nil {
		app.Use("/ws", handlers.WSUpgradeMiddleware())
		app.Get("/ws", websocket.New(h.WS.HandleWS))
	}
}
