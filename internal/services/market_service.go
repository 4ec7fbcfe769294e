package services

import (
	"context"
	"strconv"
	"strings"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/asset-exchange/backend/internal/apperr"
	"github.com/asset-exchange/backend/internal/escrow"
	"github.com/asset-exchange/backend/internal/market"
	"github.com/asset-exchange/backend/internal/models"
	"github.com/asset-exchange/backend/internal/payments"
)

type MarketService struct {
	ledger   *market.Ledger
	registry escrow.ManagedRegistry
	vault    *escrow.Vault
	bank     payments.Bank
	audit    AuditLogger
	log      *zap.Logger
}

func NewMarketService(
	ledger *market.Ledger,
	registry escrow.ManagedRegistry,
	vault *escrow.Vault,
	bank payments.Bank,
	audit AuditLogger,
	log *zap.Logger,
) *MarketService {
	return &MarketService{
		ledger:   ledger,
		registry: registry,
		vault:    vault,
		bank:     bank,
		audit:    audit,
		log:      log,
	}
}

// ParseAmount reads a non-negative decimal integer amount (nanoTON).
func ParseAmount(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, apperr.ErrInvalidPrice
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, apperr.ErrInvalidPrice
	}
	return v, nil
}

func (s *MarketService) CreateListing(ctx context.Context, seller string, asset models.AssetRef, price string) (*models.Listing, error) {
	p, err := ParseAmount(price)
	if err != nil {
		return nil, err
	}
	l, err := s.ledger.Create(ctx, seller, asset, p)
	if err != nil {
		return nil, err
	}
	record(ctx, s.audit, seller, actorUser, "listing_created", "listing", idString(l.ID),
		map[string]any{"asset": asset.String(), "price": p.Dec()})
	return l, nil
}

// Buy settles a listing. An empty paid amount pays exactly the price.
func (s *MarketService) Buy(ctx context.Context, listingID uint64, buyer, paid string) (*market.Settlement, error) {
	var amount *uint256.Int
	if strings.TrimSpace(paid) == "" {
		l, err := s.ledger.Get(ctx, listingID)
		if err != nil {
			return nil, err
		}
		amount = l.Price
	} else {
		a, err := ParseAmount(paid)
		if err != nil {
			return nil, apperr.ErrInsufficientPayment
		}
		amount = a
	}

	st, err := s.ledger.Settle(ctx, listingID, buyer, amount)
	if err != nil {
		return nil, err
	}
	record(ctx, s.audit, buyer, actorUser, "listing_sold", "listing", idString(listingID), map[string]any{
		"paid":     amount.Dec(),
		"fee":      st.Split.Fee.Dec(),
		"proceeds": st.Split.Proceeds.Dec(),
		"refund":   st.Split.Refund.Dec(),
		"receipt":  st.Receipt.ID.String(),
	})
	return st, nil
}

func (s *MarketService) Cancel(ctx context.Context, listingID uint64, caller string) (*models.Listing, error) {
	l, err := s.ledger.Cancel(ctx, listingID, caller)
	if err != nil {
		return nil, err
	}
	actorType := actorUser
	if caller != l.Seller {
		actorType = actorAdmin
	}
	record(ctx, s.audit, caller, actorType, "listing_cancelled", "listing", idString(listingID), nil)
	return l, nil
}

func (s *MarketService) GetListing(ctx context.Context, id uint64) (*models.Listing, error) {
	return s.ledger.Get(ctx, id)
}

func (s *MarketService) ListListings(ctx context.Context, f market.ListFilter) ([]*models.Listing, error) {
	return s.ledger.List(ctx, f)
}

func (s *MarketService) FeeRate() uint64 {
	return s.ledger.FeeRate()
}

func (s *MarketService) SetFeeRate(ctx context.Context, caller string, bps uint64) error {
	old := s.ledger.FeeRate()
	if err := s.ledger.SetFeeRate(ctx, caller, bps); err != nil {
		return err
	}
	record(ctx, s.audit, caller, actorAdmin, "fee_updated", "treasury", "fee",
		map[string]any{"old_bps": old, "new_bps": bps})
	return nil
}

func (s *MarketService) WithdrawFees(ctx context.Context, caller string) (*uint256.Int, error) {
	amount, err := s.ledger.WithdrawAll(ctx, caller)
	if err != nil {
		return nil, err
	}
	if !amount.IsZero() {
		record(ctx, s.audit, caller, actorAdmin, "treasury_withdrawn", "treasury", s.ledger.ExchangeAccount(),
			map[string]any{"amount": amount.Dec()})
	}
	return amount, nil
}

// --- Assets ---

func (s *MarketService) Approve(ctx context.Context, caller string, asset models.AssetRef) error {
	if err := s.registry.Approve(ctx, caller, asset, s.vault.Identity()); err != nil {
		return err
	}
	record(ctx, s.audit, caller, actorUser, "asset_approved", "asset", asset.String(), nil)
	return nil
}

func (s *MarketService) ApproveAll(ctx context.Context, caller string, approved bool) error {
	if err := s.registry.SetApprovalForAll(ctx, caller, s.vault.Identity(), approved); err != nil {
		return err
	}
	record(ctx, s.audit, caller, actorUser, "operator_approval", "identity", caller,
		map[string]any{"approved": approved})
	return nil
}

// AssetView is what the API reports about an asset.
type AssetView struct {
	Asset     models.AssetRef `json:"asset"`
	Owner     string          `json:"owner"`
	InEscrow  bool            `json:"in_escrow"`
	ListingID uint64          `json:"listing_id,omitempty"`
}

func (s *MarketService) Asset(ctx context.Context, asset models.AssetRef) (*AssetView, error) {
	owner, err := s.registry.OwnerOf(ctx, asset)
	if err != nil {
		return nil, err
	}
	held, err := s.vault.Holds(ctx, asset)
	if err != nil {
		return nil, err
	}
	view := &AssetView{Asset: asset, Owner: owner, InEscrow: held}
	if held {
		if l, err := s.ledger.ActiveListing(ctx, asset); err == nil {
			view.ListingID = l.ID
		}
	}
	return view, nil
}

func (s *MarketService) Mint(ctx context.Context, admin string, asset models.AssetRef, owner string) error {
	if err := s.registry.Mint(ctx, asset, owner); err != nil {
		return err
	}
	record(ctx, s.audit, admin, actorAdmin, "asset_minted", "asset", asset.String(),
		map[string]any{"owner": owner})
	return nil
}

func (s *MarketService) Credit(ctx context.Context, admin, account, amount string) error {
	a, err := ParseAmount(amount)
	if err != nil {
		return err
	}
	if err := s.bank.Credit(ctx, account, a); err != nil {
		return err
	}
	record(ctx, s.audit, admin, actorAdmin, "balance_credited", "balance", account,
		map[string]any{"amount": a.Dec()})
	return nil
}

func (s *MarketService) Balance(ctx context.Context, account string) (*uint256.Int, error) {
	return s.bank.Balance(ctx, account)
}

func idString(id uint64) string {
	return strconv.FormatUint(id, 10)
}
