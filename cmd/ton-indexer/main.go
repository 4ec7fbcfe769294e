package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"
	tonapi "github.com/xssnick/tonutils-go/ton"
	"go.uber.org/zap"

	"github.com/asset-exchange/backend/internal/config"
	"github.com/asset-exchange/backend/internal/db"
	"github.com/asset-exchange/backend/internal/events"
	"github.com/asset-exchange/backend/internal/repositories"
	"github.com/asset-exchange/backend/internal/services"
	"github.com/asset-exchange/backend/internal/ton"
)

const (
	redisCursorLT   = "ton-indexer:cursor:lt"
	redisCursorHash = "ton-indexer:cursor:hash"
	redisProcessed  = "ton-indexer:tx:"
	processedTTL    = 7 * 24 * time.Hour
	pollInterval    = 5 * time.Second
	txBatchSize     = 100
)

type indexer struct {
	api      tonapi.APIClientWrapped
	wallet   *address.Address
	treasury *services.TreasuryService
	rdb      *redis.Client
	log      *zap.Logger
}

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.TONHotWalletAddress == "" {
		log.Fatal("TON_HOT_WALLET_ADDRESS is required")
	}

	hotWallet, err := address.ParseAddr(cfg.TONHotWalletAddress)
	if err != nil {
		log.Fatal("invalid TON_HOT_WALLET_ADDRESS", zap.String("addr", cfg.TONHotWalletAddress), zap.Error(err))
	}

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 4, MinConns: 1}, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil || rdb == nil {
		log.Fatal("ton-indexer keeps its cursor in redis", zap.Error(err))
	}
	defer rdb.Close()

	balanceRepo := repositories.NewBalanceRepo(pool)
	emitter := events.NewPublishingEmitter(events.NewRedisPublisher(rdb, log), events.StreamExchange, log)
	treasury := services.NewTreasuryService(balanceRepo, balanceRepo, repositories.NewWithdrawRepo(pool), emitter, repositories.NewAuditRepo(pool), log)

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

	ix := &indexer{api: api, wallet: hotWallet, treasury: treasury, rdb: rdb, log: log}

	log.Info("TON indexer started",
		zap.String("hot_wallet", hotWallet.String()),
		zap.String("network", cfg.TONNetwork),
	)

	ix.initCursor(ctx)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			if err := ix.poll(ctx); err != nil {
				log.Error("poll cycle failed", zap.Error(err))
			}
		case <-sigCh:
			log.Info("shutting down TON indexer")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

// initCursor sets the initial cursor position on first run.
// On first run, it stores the current account LastTxLT so that only
// NEW transactions (arriving after startup) are processed.
func (ix *indexer) initCursor(ctx context.Context) {
	existing, _ := ix.rdb.Get(ctx, redisCursorLT).Result()
	if existing != "" {
		ix.log.Info("resuming from saved cursor", zap.String("lt", existing))
		return
	}

	account, err := ix.account(ctx)
	if err != nil {
		ix.log.Warn("failed to get account for cursor init", zap.Error(err))
		ix.rdb.Set(ctx, redisCursorLT, "0", 0)
		return
	}

	if account == nil || !account.IsActive || account.LastTxLT == 0 {
		ix.log.Info("hot wallet not active yet, starting from LT=0")
		ix.rdb.Set(ctx, redisCursorLT, "0", 0)
		return
	}

	ix.saveCursor(ctx, account.LastTxLT, account.LastTxHash)
	ix.log.Info("cursor initialized at current account state (skipping historical transactions)",
		zap.Uint64("lt", account.LastTxLT),
		zap.String("hash", hex.EncodeToString(account.LastTxHash)),
	)
}

func (ix *indexer) account(ctx context.Context) (*tlb.Account, error) {
	block, err := ix.api.CurrentMasterchainInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("get master block: %w", err)
	}
	account, err := ix.api.GetAccount(ctx, block, ix.wallet)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

func (ix *indexer) cursorLT(ctx context.Context) uint64 {
	val, err := ix.rdb.Get(ctx, redisCursorLT).Result()
	if err != nil || val == "" {
		return 0
	}
	lt, _ := strconv.ParseUint(val, 10, 64)
	return lt
}

func (ix *indexer) saveCursor(ctx context.Context, lt uint64, hash []byte) {
	ix.rdb.Set(ctx, redisCursorLT, strconv.FormatUint(lt, 10), 0)
	ix.rdb.Set(ctx, redisCursorHash, hex.EncodeToString(hash), 0)
}

// poll runs a single cycle: fetch transactions newer than the cursor, credit
// deposits, advance the cursor. The cursor only moves when every deposit in
// the batch was handled, so a database outage replays the batch.
func (ix *indexer) poll(ctx context.Context) error {
	cursor := ix.cursorLT(ctx)

	account, err := ix.account(ctx)
	if err != nil {
		return err
	}
	if account == nil || !account.IsActive || account.LastTxLT == 0 || account.LastTxLT <= cursor {
		return nil
	}

	newTxs, err := ix.fetchNewTransactions(ctx, account, cursor)
	if err != nil {
		return fmt.Errorf("fetch transactions: %w", err)
	}

	if len(newTxs) > 0 {
		ix.log.Info("found new transactions", zap.Int("count", len(newTxs)))
	}
	for _, tx := range newTxs {
		if err := ix.process(ctx, tx); err != nil {
			return fmt.Errorf("tx lt=%d: %w", tx.LT, err)
		}
	}

	ix.saveCursor(ctx, account.LastTxLT, account.LastTxHash)
	return nil
}

// fetchNewTransactions retrieves all transactions with LT > cursorLT.
// ListTransactions returns results oldest-first; we paginate backwards
// until we reach the cursor, then return in chronological order.
func (ix *indexer) fetchNewTransactions(ctx context.Context, account *tlb.Account, cursorLT uint64) ([]*tlb.Transaction, error) {
	var allTxs []*tlb.Transaction

	lt := account.LastTxLT
	hash := account.LastTxHash

	for {
		txs, err := ix.api.ListTransactions(ctx, ix.wallet, uint32(txBatchSize), lt, hash)
		if err != nil {
			return nil, fmt.Errorf("list transactions (lt=%d): %w", lt, err)
		}
		if len(txs) == 0 {
			break
		}

		reachedCursor := false
		for _, tx := range txs {
			if tx.LT <= cursorLT {
				reachedCursor = true
				continue
			}
			allTxs = append(allTxs, tx)
		}

		if reachedCursor || len(txs) < txBatchSize {
			break
		}

		oldest := txs[0]
		if oldest.PrevTxLT == 0 {
			break
		}
		lt = oldest.PrevTxLT
		hash = oldest.PrevTxHash
	}

	sort.Slice(allTxs, func(i, j int) bool {
		return allTxs[i].LT < allTxs[j].LT
	})

	return allTxs, nil
}

// process credits one incoming transfer. Redis marks are a fast path; the
// ton_deposits primary key is what makes crediting exactly-once.
func (ix *indexer) process(ctx context.Context, tx *tlb.Transaction) error {
	in, ok := ton.ParseIncoming(tx)
	if !ok {
		return nil
	}

	txKey := redisProcessed + in.Hash
	if ix.rdb.Exists(ctx, txKey).Val() > 0 {
		return nil
	}

	if in.Comment == "" {
		ix.log.Debug("transfer without memo, skipping",
			zap.Uint64("lt", in.LT),
			zap.String("from", in.From),
			zap.String("amount_nano", in.AmountNano.Dec()),
		)
		ix.rdb.Set(ctx, txKey, "no_memo", processedTTL)
		return nil
	}

	credited, err := ix.treasury.Deposit(ctx, in)
	if err != nil {
		return err
	}

	mark := "ignored"
	if credited {
		mark = "credited"
	}
	ix.rdb.Set(ctx, txKey, mark, processedTTL)
	return nil
}
