package services

import (
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/asset-exchange/backend/internal/apperr"
	"github.com/asset-exchange/backend/internal/escrow"
	"github.com/asset-exchange/backend/internal/market"
	"github.com/asset-exchange/backend/internal/models"
	"github.com/asset-exchange/backend/internal/payments"
)

var punk = models.AssetRef{Contract: "EQpunks", TokenID: 7}

type marketFixture struct {
	svc      *MarketService
	registry *escrow.MemoryRegistry
	bank     *payments.MemoryTreasury
	audit    *fakeAudit
}

func newMarketFixture(t *testing.T) *marketFixture {
	t.Helper()
	registry := escrow.NewMemoryRegistry()
	bank := payments.NewMemoryTreasury()
	vault := escrow.NewVault(registry, "vault", nil)
	ledger, err := market.NewLedger(market.NewMemoryStore(), vault, bank, market.Config{
		Owner:           "owner",
		ExchangeAccount: "exchange",
		FeeBps:          market.DefaultFeeBps,
	}, nil)
	require.NoError(t, err)

	audit := &fakeAudit{}
	return &marketFixture{
		svc:      NewMarketService(ledger, registry, vault, bank, audit, zap.NewNop()),
		registry: registry,
		bank:     bank,
		audit:    audit,
	}
}

func (f *marketFixture) list(t *testing.T, price string) *models.Listing {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.svc.Mint(ctx, "owner", punk, "alice"))
	require.NoError(t, f.svc.Approve(ctx, "alice", punk))
	l, err := f.svc.CreateListing(ctx, "alice", punk, price)
	require.NoError(t, err)
	return l
}

func TestMarketService_BuyWithOverpayment(t *testing.T) {
	f := newMarketFixture(t)
	ctx := context.Background()
	l := f.list(t, "100")
	require.NoError(t, f.svc.Credit(ctx, "owner", "bob", "120"))

	st, err := f.svc.Buy(ctx, l.ID, "bob", "120")
	require.NoError(t, err)
	require.Equal(t, "2", st.Split.Fee.Dec())
	require.Equal(t, "98", st.Split.Proceeds.Dec())
	require.Equal(t, "20", st.Split.Refund.Dec())

	for account, want := range map[string]uint64{"alice": 98, "bob": 20, "exchange": 2} {
		got, err := f.svc.Balance(ctx, account)
		require.NoError(t, err)
		require.Equal(t, want, got.Uint64(), account)
	}

	owner, err := f.registry.OwnerOf(ctx, punk)
	require.NoError(t, err)
	require.Equal(t, "bob", owner)

	require.Equal(t, []string{"asset_minted", "asset_approved", "listing_created", "balance_credited", "listing_sold"}, f.audit.actions())
}

func TestMarketService_BuyEmptyPaidPaysPrice(t *testing.T) {
	f := newMarketFixture(t)
	ctx := context.Background()
	l := f.list(t, "100")
	require.NoError(t, f.bank.Credit(ctx, "bob", uint256.NewInt(100)))

	st, err := f.svc.Buy(ctx, l.ID, "bob", "")
	require.NoError(t, err)
	require.True(t, st.Split.Refund.IsZero())

	bal, err := f.svc.Balance(ctx, "bob")
	require.NoError(t, err)
	require.True(t, bal.IsZero())
}

func TestMarketService_BuyRejectsGarbageAmount(t *testing.T) {
	f := newMarketFixture(t)
	l := f.list(t, "100")

	_, err := f.svc.Buy(context.Background(), l.ID, "bob", "lots")
	require.ErrorIs(t, err, apperr.ErrInsufficientPayment)
}

func TestMarketService_AssetView(t *testing.T) {
	f := newMarketFixture(t)
	ctx := context.Background()
	l := f.list(t, "5")

	view, err := f.svc.Asset(ctx, punk)
	require.NoError(t, err)
	require.True(t, view.InEscrow)
	require.Equal(t, "vault", view.Owner)
	require.Equal(t, l.ID, view.ListingID)

	_, err = f.svc.Cancel(ctx, l.ID, "alice")
	require.NoError(t, err)

	view, err = f.svc.Asset(ctx, punk)
	require.NoError(t, err)
	require.False(t, view.InEscrow)
	require.Equal(t, "alice", view.Owner)
	require.Zero(t, view.ListingID)
}

func TestMarketService_OwnerCancelIsAuditedAsAdmin(t *testing.T) {
	f := newMarketFixture(t)
	l := f.list(t, "5")

	_, err := f.svc.Cancel(context.Background(), l.ID, "owner")
	require.NoError(t, err)

	last := f.audit.entries[len(f.audit.entries)-1]
	require.Equal(t, "listing_cancelled", last.Action)
	require.Equal(t, actorAdmin, last.ActorType)
}

func TestMarketService_FeesAndWithdraw(t *testing.T) {
	f := newMarketFixture(t)
	ctx := context.Background()

	require.ErrorIs(t, f.svc.SetFeeRate(ctx, "alice", 100), apperr.ErrUnauthorized)
	require.ErrorIs(t, f.svc.SetFeeRate(ctx, "owner", market.MaxFeeBps+1), apperr.ErrFeeTooHigh)
	require.NoError(t, f.svc.SetFeeRate(ctx, "owner", 500))
	require.Equal(t, uint64(500), f.svc.FeeRate())

	l := f.list(t, "1000")
	require.NoError(t, f.bank.Credit(ctx, "bob", uint256.NewInt(1000)))
	_, err := f.svc.Buy(ctx, l.ID, "bob", "")
	require.NoError(t, err)

	amount, err := f.svc.WithdrawFees(ctx, "owner")
	require.NoError(t, err)
	require.Equal(t, uint64(50), amount.Uint64())

	amount, err = f.svc.WithdrawFees(ctx, "owner")
	require.NoError(t, err)
	require.True(t, amount.IsZero())
}

func TestParseAmount(t *testing.T) {
	for _, in := range []string{"", "  ", "abc", "-1", "1.5"} {
		_, err := ParseAmount(in)
		require.ErrorIs(t, err, apperr.ErrInvalidPrice, in)
	}
	v, err := ParseAmount(" 1000000000 ")
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000_000), v.Uint64())
}
