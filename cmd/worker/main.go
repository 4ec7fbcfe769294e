package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/asset-exchange/backend/internal/config"
	"github.com/asset-exchange/backend/internal/db"
	"github.com/asset-exchange/backend/internal/events"
	"github.com/asset-exchange/backend/internal/governance"
	"github.com/asset-exchange/backend/internal/repositories"
	"github.com/asset-exchange/backend/internal/services"
	"github.com/asset-exchange/backend/internal/ton"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	if err := cfg.Validate(log); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 5, MinConns: 1}, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	if rdb != nil {
		defer rdb.Close()
	}

	// Repos
	proposalRepo := repositories.NewProposalRepo(pool)
	balanceRepo := repositories.NewBalanceRepo(pool)
	withdrawRepo := repositories.NewWithdrawRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)

	var emitter events.Emitter = events.NoopEmitter{}
	if rdb != nil {
		emitter = events.NewPublishingEmitter(events.NewRedisPublisher(rdb, log), events.StreamExchange, log)
	}

	govLedger, err := governance.NewLedger(proposalRepo, governance.Config{
		VotingDuration: int64(cfg.VotingDurationSeconds),
		RevealDuration: int64(cfg.RevealDurationSeconds),
		MinVotes:       uint64(cfg.MinVotesRequired),
	}, log.Named("governance"))
	if err != nil {
		log.Fatal("failed to create governance ledger", zap.Error(err))
	}
	govLedger.SetNowFunc(func() int64 { return time.Now().Unix() })
	govLedger.SetEmitter(emitter)

	govService := services.NewGovernanceService(govLedger, auditRepo, log)
	govLedger.SetExecutionHook(govService.OutcomeHook())
	treasuryService := services.NewTreasuryService(balanceRepo, balanceRepo, withdrawRepo, emitter, auditRepo, log)

	// Payouts need a hot wallet; without a seed the queue only accumulates.
	var sender ton.Sender
	if cfg.TONHotWalletSeed != "" {
		api, err := ton.Connect(ctx, ton.Params{
			Network:        cfg.TONNetwork,
			LiteServerHost: cfg.LiteServerHost,
			LiteServerPort: cfg.LiteServerPort,
			LiteServerKey:  cfg.LiteServerKey,
			ConfigURL:      cfg.TONConfigURL,
		}, log)
		if err != nil {
			log.Fatal("failed to connect to TON network", zap.Error(err))
		}
		hw, err := ton.NewHotWallet(api, cfg.TONHotWalletSeed, log)
		if err != nil {
			log.Fatal("failed to open hot wallet", zap.Error(err))
		}
		sender = hw
	} else {
		log.Warn("TON_HOT_WALLET_SEED is empty, withdrawals will not be sent")
	}

	var lastFinalize atomic.Int64
	go serveHealth(cfg.WorkerPort, &lastFinalize, log)

	log.Info("worker started",
		zap.Duration("finalize_interval", cfg.FinalizeInterval),
		zap.Duration("withdrawal_interval", cfg.WithdrawalInterval),
	)

	// Run jobs on tickers
	finalizeTicker := time.NewTicker(cfg.FinalizeInterval)
	withdrawTicker := time.NewTicker(cfg.WithdrawalInterval)
	defer finalizeTicker.Stop()
	defer withdrawTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-finalizeTicker.C:
			runFinalize(ctx, govService, log)
			lastFinalize.Store(time.Now().Unix())
		case <-withdrawTicker.C:
			if sender != nil {
				runWithdrawals(ctx, treasuryService, sender, log)
			}
		case <-sigCh:
			log.Info("shutting down worker")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

func runFinalize(ctx context.Context, gov *services.GovernanceService, log *zap.Logger) {
	executed, err := gov.FinalizeReady(ctx)
	if err != nil {
		log.Error("proposal finalization failed", zap.Error(err))
	}
	for _, p := range executed {
		log.Info("proposal finalized",
			zap.Uint64("proposal_id", p.ID),
			zap.Bool("passed", p.Passed),
			zap.Uint64("support", p.SupportCount),
			zap.Uint64("revealed", p.RevealedCount),
		)
	}
}

func runWithdrawals(ctx context.Context, treasury *services.TreasuryService, sender ton.Sender, log *zap.Logger) {
	sent, err := treasury.ProcessPending(ctx, sender)
	if err != nil {
		log.Error("withdrawal batch failed", zap.Error(err))
	}
	if sent > 0 {
		log.Info("withdrawals sent", zap.Int("count", sent))
	}
}

func serveHealth(port string, lastFinalize *atomic.Int64, log *zap.Logger) {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "last_finalize": lastFinalize.Load()})
	})
	if err := app.Listen(fmt.Sprintf(":%s", port)); err != nil {
		log.Warn("worker health endpoint stopped", zap.Error(err))
	}
}
