package repositories

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/asset-exchange/backend/internal/apperr"
	"github.com/asset-exchange/backend/internal/db"
	"github.com/asset-exchange/backend/internal/models"
	"github.com/asset-exchange/backend/internal/payments"
)

// testPool connects to TEST_POSTGRES_DSN and applies migrations; the test is
// skipped when no database is configured.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	pool, err := db.NewPostgresPool(ctx, dsn, db.PoolOptions{MaxConns: 4, MinConns: 1}, zap.NewNop())
	if err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	t.Cleanup(pool.Close)
	require.NoError(t, db.RunMigrations(ctx, pool, "../../migrations", zap.NewNop()))
	return pool
}

func uniqueName(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

func TestListingRepo_ConditionalClose(t *testing.T) {
	pool := testPool(t)
	repo := NewListingRepo(pool)
	ctx := context.Background()
	asset := models.AssetRef{Contract: uniqueName("EQc"), TokenID: 1}

	id, err := repo.InsertListing(ctx, &models.Listing{
		Asset: asset, Seller: "alice", Price: uint256.NewInt(100),
		Active: true, Status: models.ListingStatusActive, ListedAt: 10,
	})
	require.NoError(t, err)

	_, err = repo.InsertListing(ctx, &models.Listing{
		Asset: asset, Seller: "alice", Price: uint256.NewInt(100),
		Active: true, Status: models.ListingStatusActive, ListedAt: 11,
	})
	require.ErrorIs(t, err, apperr.ErrAssetAlreadyListed)

	require.NoError(t, repo.CloseListing(ctx, id, models.ListingStatusSold, "bob", 20))
	require.ErrorIs(t, repo.CloseListing(ctx, id, models.ListingStatusCancelled, "", 21), apperr.ErrNotActive)
	require.ErrorIs(t, repo.CloseListing(ctx, 1<<40, models.ListingStatusSold, "bob", 21), apperr.ErrListingNotFound)

	require.NoError(t, repo.ReopenListing(ctx, id))
	got, err := repo.ActiveListingByAsset(ctx, asset)
	require.NoError(t, err)
	require.Equal(t, id, got.ID)
	require.Equal(t, "100", got.Price.Dec())

	require.ErrorIs(t, repo.FailSettlement(ctx, id), apperr.ErrNotActive)
	require.NoError(t, repo.CloseListing(ctx, id, models.ListingStatusSold, "bob", 30))
	require.NoError(t, repo.FailSettlement(ctx, id))
	require.NoError(t, repo.ReopenListing(ctx, id))
	_, err = repo.ActiveListingByAsset(ctx, asset)
	require.ErrorIs(t, err, apperr.ErrListingNotFound)
	parked, err := repo.GetListing(ctx, id)
	require.NoError(t, err)
	require.Equal(t, models.ListingStatusSettlementFailed, parked.Status)
}

func TestBalanceRepo_AtomicBatch(t *testing.T) {
	pool := testPool(t)
	repo := NewBalanceRepo(pool)
	ctx := context.Background()
	buyer, seller := uniqueName("buyer"), uniqueName("seller")
	require.NoError(t, repo.Credit(ctx, buyer, uint256.NewInt(50)))

	_, err := repo.Pay(ctx,
		payments.Transfer{From: buyer, To: seller, Amount: uint256.NewInt(50)},
		payments.Transfer{From: seller, To: buyer, Amount: uint256.NewInt(60)},
	)
	require.ErrorIs(t, err, apperr.ErrInsufficientFunds)

	b, err := repo.Balance(ctx, buyer)
	require.NoError(t, err)
	require.Equal(t, uint64(50), b.Uint64())

	receipt, err := repo.Pay(ctx, payments.Transfer{From: buyer, To: seller, Amount: uint256.NewInt(30)})
	require.NoError(t, err)
	require.NoError(t, repo.Reverse(ctx, receipt))
	require.NoError(t, repo.Reverse(ctx, receipt))

	b, err = repo.Balance(ctx, seller)
	require.NoError(t, err)
	require.True(t, b.IsZero())
}

func TestBalanceRepo_CreditDepositOnce(t *testing.T) {
	pool := testPool(t)
	repo := NewBalanceRepo(pool)
	ctx := context.Background()
	account, hash := uniqueName("acct"), uniqueName("tx")

	ok, err := repo.CreditDeposit(ctx, hash, account, uint256.NewInt(7), 1)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = repo.CreditDeposit(ctx, hash, account, uint256.NewInt(7), 1)
	require.NoError(t, err)
	require.False(t, ok)

	b, err := repo.Balance(ctx, account)
	require.NoError(t, err)
	require.Equal(t, uint64(7), b.Uint64())
}

func TestProposalRepo_VoteCounters(t *testing.T) {
	pool := testPool(t)
	repo := NewProposalRepo(pool)
	ctx := context.Background()

	id, err := repo.InsertProposal(ctx, &models.Proposal{
		Description: "test", Proposer: "alice", CreatedAt: 1, VotingEndsAt: 2, RevealEndsAt: 3,
	})
	require.NoError(t, err)

	hash := models.Hash{1}
	require.NoError(t, repo.InsertCommit(ctx, &models.VoteRecord{ProposalID: id, Voter: "bob", CommitHash: hash, CommittedAt: 1}))
	require.ErrorIs(t, repo.InsertCommit(ctx, &models.VoteRecord{ProposalID: id, Voter: "bob", CommitHash: hash, CommittedAt: 1}), apperr.ErrAlreadyCommitted)
	require.NoError(t, repo.MarkRevealed(ctx, id, "bob", true, 2))
	require.ErrorIs(t, repo.MarkRevealed(ctx, id, "bob", true, 2), apperr.ErrAlreadyRevealed)
	require.ErrorIs(t, repo.MarkRevealed(ctx, id, "carol", true, 2), apperr.ErrNoCommitment)

	require.NoError(t, repo.MarkExecuted(ctx, id, true, 4))
	require.ErrorIs(t, repo.MarkExecuted(ctx, id, true, 4), apperr.ErrAlreadyExecuted)
	require.ErrorIs(t, repo.UnmarkExecuted(ctx, id, 9), apperr.ErrAlreadyExecuted)

	p, err := repo.GetProposal(ctx, id)
	require.NoError(t, err)
	require.Equal(t, uint64(1), p.TotalCommits)
	require.Equal(t, uint64(1), p.RevealedCount)
	require.Equal(t, uint64(1), p.SupportCount)

	v, err := repo.GetVote(ctx, id, "bob")
	require.NoError(t, err)
	require.Equal(t, hash, v.CommitHash)
}
