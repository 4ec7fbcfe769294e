package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/asset-exchange/backend/internal/apperr"
	"github.com/asset-exchange/backend/internal/config"
	"github.com/asset-exchange/backend/internal/db"
	"github.com/asset-exchange/backend/internal/escrow"
	"github.com/asset-exchange/backend/internal/events"
	"github.com/asset-exchange/backend/internal/governance"
	apphttp "github.com/asset-exchange/backend/internal/http"
	"github.com/asset-exchange/backend/internal/http/dto"
	"github.com/asset-exchange/backend/internal/http/handlers"
	"github.com/asset-exchange/backend/internal/market"
	"github.com/asset-exchange/backend/internal/repositories"
	"github.com/asset-exchange/backend/internal/services"
)

// eventHistory bounds the in-process replay buffer behind /ws?since=.
const eventHistory = 10_000

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	if err := cfg.Validate(log); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, db.PoolOptions{}, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, cfg.MigrationsDir, log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	if rdb != nil {
		defer rdb.Close()
	}

	// Repositories
	listingRepo := repositories.NewListingRepo(pool)
	proposalRepo := repositories.NewProposalRepo(pool)
	assetRepo := repositories.NewAssetRepo(pool)
	balanceRepo := repositories.NewBalanceRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)
	withdrawRepo := repositories.NewWithdrawRepo(pool)
	walletRepo := repositories.NewWalletRepo(pool)

	// Events
	history := events.NewBoundedRecorder(eventHistory)
	emitter := events.Multi{history}
	var subscriber events.Subscriber
	if rdb != nil {
		publisher := events.NewRedisPublisher(rdb, log)
		emitter = append(emitter, events.NewPublishingEmitter(publisher, events.StreamExchange, log))
		subscriber = events.NewRedisSubscriber(rdb, log)
	}

	// Ledgers share one clock
	now := func() int64 { return time.Now().Unix() }

	vault := escrow.NewVault(assetRepo, cfg.VaultIdentity, log)
	marketLedger, err := market.NewLedger(listingRepo, vault, balanceRepo, market.Config{
		Owner:           cfg.MarketplaceOwner,
		ExchangeAccount: cfg.ExchangeAccount,
		FeeRecipient:    cfg.FeeRecipient,
		FeeBps:          uint64(cfg.PlatformFeeBPS),
	}, log.Named("market"))
	if err != nil {
		log.Fatal("failed to create market ledger", zap.Error(err))
	}
	marketLedger.SetNowFunc(now)
	marketLedger.SetEmitter(emitter)

	govLedger, err := governance.NewLedger(proposalRepo, governance.Config{
		VotingDuration: int64(cfg.VotingDurationSeconds),
		RevealDuration: int64(cfg.RevealDurationSeconds),
		MinVotes:       uint64(cfg.MinVotesRequired),
	}, log.Named("governance"))
	if err != nil {
		log.Fatal("failed to create governance ledger", zap.Error(err))
	}
	govLedger.SetNowFunc(now)
	govLedger.SetEmitter(emitter)

	// Services
	marketService := services.NewMarketService(marketLedger, assetRepo, vault, balanceRepo, auditRepo, log)
	govService := services.NewGovernanceService(govLedger, auditRepo, log)
	govLedger.SetExecutionHook(govService.OutcomeHook())
	treasuryService := services.NewTreasuryService(balanceRepo, balanceRepo, withdrawRepo, emitter, auditRepo, log)
	authService := services.NewAuthService(walletRepo, auditRepo, cfg, log)

	// Handlers
	wsHub := handlers.NewWSHub(cfg, subscriber, history, log)
	if err := wsHub.Start(ctx); err != nil {
		log.Warn("websocket hub runs without pub/sub", zap.Error(err))
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return c.Status(fe.Code).JSON(dto.ErrorResponse{Error: fe.Message})
			}
			return c.Status(apperr.HTTPStatus(err)).JSON(dto.ErrorResponse{Error: err.Error(), Code: apperr.CodeOf(err)})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, apphttp.Handlers{
		Auth:     handlers.NewAuthHandler(authService, log),
		Listing:  handlers.NewListingHandler(marketService, log),
		Proposal: handlers.NewProposalHandler(govService, log),
		Account:  handlers.NewAccountHandler(marketService, treasuryService, auditRepo, log),
		Admin:    handlers.NewAdminHandler(marketService, auditRepo, log),
		WS:       wsHub,
	})

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.ShutdownWithTimeout(10 * time.Second)
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server",
		zap.String("addr", addr),
		zap.String("owner", cfg.MarketplaceOwner),
		zap.Int("fee_bps", cfg.PlatformFeeBPS),
	)
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
