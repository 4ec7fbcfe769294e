package market

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/asset-exchange/backend/internal/apperr"
	"github.com/asset-exchange/backend/internal/events"
	"github.com/asset-exchange/backend/internal/models"
	"github.com/asset-exchange/backend/internal/payments"
)

// Custodian is the escrow the ledger parks listed assets in.
type Custodian interface {
	Hold(ctx context.Context, owner string, asset models.AssetRef) error
	Release(ctx context.Context, asset models.AssetRef, to string) error
	Holds(ctx context.Context, asset models.AssetRef) (bool, error)
}

type Config struct {
	// Owner may cancel any listing, change the fee and withdraw.
	Owner string
	// ExchangeAccount collects buyer payments before they are split.
	ExchangeAccount string
	// FeeRecipient receives the fee share. Defaults to ExchangeAccount.
	FeeRecipient string
	FeeBps       uint64
}

// Ledger owns the listing lifecycle. All mutations are serialized by mu;
// external calls to the custodian and treasury run after mu is released and
// after the listing state has already been committed to the store.
type Ledger struct {
	mu       sync.Mutex
	store    Store
	vault    Custodian
	treasury payments.Treasury
	cfg      Config
	reserved map[models.AssetRef]struct{}
	nowFn    func() int64
	emitter  events.Emitter
	log      *zap.Logger
}

func NewLedger(store Store, vault Custodian, treasury payments.Treasury, cfg Config, log *zap.Logger) (*Ledger, error) {
	if cfg.Owner == "" || cfg.ExchangeAccount == "" {
		return nil, fmt.Errorf("market: owner and exchange account are required")
	}
	if cfg.FeeBps > MaxFeeBps {
		return nil, apperr.ErrFeeTooHigh
	}
	if cfg.FeeRecipient == "" {
		cfg.FeeRecipient = cfg.ExchangeAccount
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{
		store:    store,
		vault:    vault,
		treasury: treasury,
		cfg:      cfg,
		reserved: make(map[models.AssetRef]struct{}),
		nowFn:    func() int64 { return time.Now().Unix() },
		emitter:  events.NoopEmitter{},
		log:      log,
	}, nil
}

// SetNowFunc overrides the clock. Share one clock between ledgers.
func (l *Ledger) SetNowFunc(now func() int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if now != nil {
		l.nowFn = now
	}
}

func (l *Ledger) SetEmitter(e events.Emitter) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e == nil {
		e = events.NoopEmitter{}
	}
	l.emitter = e
}

func (l *Ledger) Owner() string { return l.cfg.Owner }

func (l *Ledger) ExchangeAccount() string { return l.cfg.ExchangeAccount }

func (l *Ledger) FeeRate() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg.FeeBps
}

func (l *Ledger) Get(ctx context.Context, id uint64) (*models.Listing, error) {
	return l.store.GetListing(ctx, id)
}

// ActiveListing returns the open listing for asset, or ErrListingNotFound.
func (l *Ledger) ActiveListing(ctx context.Context, asset models.AssetRef) (*models.Listing, error) {
	return l.store.ActiveListingByAsset(ctx, asset)
}

func (l *Ledger) List(ctx context.Context, f ListFilter) ([]*models.Listing, error) {
	return l.store.ListListings(ctx, f)
}

// Create escrows asset from seller and opens a listing for it.
func (l *Ledger) Create(ctx context.Context, seller string, asset models.AssetRef, price *uint256.Int) (*models.Listing, error) {
	if seller == "" || !asset.Valid() {
		return nil, apperr.ErrInvalidIdentity
	}
	if price == nil || price.IsZero() {
		return nil, apperr.ErrInvalidPrice
	}

	if err := l.reserve(ctx, asset); err != nil {
		return nil, err
	}
	defer l.unreserve(asset)

	if err := l.vault.Hold(ctx, seller, asset); err != nil {
		return nil, err
	}

	l.mu.Lock()
	listing := &models.Listing{
		Asset:    asset,
		Seller:   seller,
		Price:    new(uint256.Int).Set(price),
		Active:   true,
		Status:   models.ListingStatusActive,
		ListedAt: l.nowFn(),
	}
	id, err := l.store.InsertListing(ctx, listing)
	emitter := l.emitter
	l.mu.Unlock()

	if err != nil {
		if rerr := l.vault.Release(ctx, asset, seller); rerr != nil {
			l.log.Error("failed to return asset after insert error",
				zap.String("asset", asset.String()), zap.Error(rerr))
			return nil, errors.Join(err, rerr)
		}
		return nil, err
	}
	listing.ID = id

	l.log.Info("listing created",
		zap.Uint64("listing_id", id),
		zap.String("asset", asset.String()),
		zap.String("seller", seller),
		zap.String("price", price.Dec()),
	)
	emitter.Emit(ctx, events.Event{
		Type: events.EventListingCreated,
		Payload: map[string]any{
			"listing_id": id,
			"seller":     seller,
			"contract":   asset.Contract,
			"token_id":   asset.TokenID,
			"price":      price.Dec(),
			"listed_at":  listing.ListedAt,
		},
	})
	return listing, nil
}

func (l *Ledger) reserve(ctx context.Context, asset models.AssetRef) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.reserved[asset]; ok {
		return apperr.ErrAssetAlreadyListed
	}
	_, err := l.store.ActiveListingByAsset(ctx, asset)
	switch {
	case err == nil:
		return apperr.ErrAssetAlreadyListed
	case !errors.Is(err, apperr.ErrListingNotFound):
		return err
	}
	l.reserved[asset] = struct{}{}
	return nil
}

func (l *Ledger) unreserve(asset models.AssetRef) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.reserved, asset)
}

// Settlement is the outcome of a successful purchase.
type Settlement struct {
	Listing *models.Listing   `json:"listing"`
	Split   Split             `json:"-"`
	Receipt *payments.Receipt `json:"receipt"`
}

// Settle sells an active listing to buyer for paid (>= price). The listing is
// closed before any value moves; the asset is released last.
func (l *Ledger) Settle(ctx context.Context, listingID uint64, buyer string, paid *uint256.Int) (*Settlement, error) {
	if buyer == "" {
		return nil, apperr.ErrInvalidIdentity
	}

	l.mu.Lock()
	listing, err := l.store.GetListing(ctx, listingID)
	if err != nil {
		l.mu.Unlock()
		return nil, err
	}
	if !listing.Active {
		l.mu.Unlock()
		return nil, apperr.ErrNotActive
	}
	if buyer == listing.Seller {
		l.mu.Unlock()
		return nil, apperr.ErrSelfTrade
	}
	if paid == nil || paid.Lt(listing.Price) {
		l.mu.Unlock()
		return nil, apperr.ErrInsufficientPayment
	}
	split := SplitPayment(listing.Price, paid, l.cfg.FeeBps)
	closedAt := l.nowFn()
	if err := l.store.CloseListing(ctx, listingID, models.ListingStatusSold, buyer, closedAt); err != nil {
		l.mu.Unlock()
		return nil, err
	}
	cfg := l.cfg
	emitter := l.emitter
	l.mu.Unlock()

	exchange := cfg.ExchangeAccount
	receipt, err := l.treasury.Pay(ctx,
		payments.Transfer{From: buyer, To: exchange, Amount: paid},
		payments.Transfer{From: exchange, To: listing.Seller, Amount: split.Proceeds},
		payments.Transfer{From: exchange, To: buyer, Amount: split.Refund},
		payments.Transfer{From: exchange, To: cfg.FeeRecipient, Amount: split.Fee},
	)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindUnknown {
			err = fmt.Errorf("%w: %w", apperr.ErrSettlementFailure, err)
		}
		return nil, l.rollback(ctx, listingID, nil, err)
	}

	if err := l.vault.Release(ctx, listing.Asset, buyer); err != nil {
		return nil, l.rollback(ctx, listingID, receipt, err)
	}

	listing.Active = false
	listing.Status = models.ListingStatusSold
	listing.Buyer = buyer
	listing.ClosedAt = closedAt

	l.log.Info("listing sold",
		zap.Uint64("listing_id", listingID),
		zap.String("buyer", buyer),
		zap.String("fee", split.Fee.Dec()),
		zap.String("proceeds", split.Proceeds.Dec()),
		zap.String("refund", split.Refund.Dec()),
	)
	emitter.Emit(ctx, events.Event{
		Type: events.EventListingSold,
		Payload: map[string]any{
			"listing_id": listingID,
			"seller":     listing.Seller,
			"buyer":      buyer,
			"price":      listing.Price.Dec(),
			"paid":       paid.Dec(),
			"fee":        split.Fee.Dec(),
			"proceeds":   split.Proceeds.Dec(),
			"refund":     split.Refund.Dec(),
		},
	})
	return &Settlement{Listing: listing, Split: split, Receipt: receipt}, nil
}

// Cancel closes an active listing and returns the asset to the seller. Only
// the seller or the marketplace owner may cancel.
func (l *Ledger) Cancel(ctx context.Context, listingID uint64, caller string) (*models.Listing, error) {
	l.mu.Lock()
	listing, err := l.store.GetListing(ctx, listingID)
	if err != nil {
		l.mu.Unlock()
		return nil, err
	}
	if !listing.Active {
		l.mu.Unlock()
		return nil, apperr.ErrNotActive
	}
	if caller != listing.Seller && caller != l.cfg.Owner {
		l.mu.Unlock()
		return nil, apperr.ErrUnauthorized
	}
	closedAt := l.nowFn()
	if err := l.store.CloseListing(ctx, listingID, models.ListingStatusCancelled, "", closedAt); err != nil {
		l.mu.Unlock()
		return nil, err
	}
	emitter := l.emitter
	l.mu.Unlock()

	if err := l.vault.Release(ctx, listing.Asset, listing.Seller); err != nil {
		return nil, l.rollback(ctx, listingID, nil, err)
	}

	listing.Active = false
	listing.Status = models.ListingStatusCancelled
	listing.ClosedAt = closedAt

	l.log.Info("listing cancelled", zap.Uint64("listing_id", listingID), zap.String("by", caller))
	emitter.Emit(ctx, events.Event{
		Type: events.EventListingCancelled,
		Payload: map[string]any{
			"listing_id": listingID,
			"seller":     listing.Seller,
			"by":         caller,
		},
	})
	return listing, nil
}

// rollback undoes a failed sale or cancellation. The listing is reopened only
// when no value moved or the payment batch was reversed; otherwise it is
// parked as settlement_failed so nobody can buy it a second time.
func (l *Ledger) rollback(ctx context.Context, listingID uint64, receipt *payments.Receipt, cause error) error {
	if receipt != nil {
		if err := l.treasury.Reverse(ctx, receipt); err != nil {
			return l.parkSettlement(ctx, listingID, receipt, cause, err)
		}
	}

	l.mu.Lock()
	err := l.store.ReopenListing(ctx, listingID)
	l.mu.Unlock()
	if err != nil {
		l.log.Error("listing reopen failed", zap.Uint64("listing_id", listingID), zap.Error(err))
		return errors.Join(cause, fmt.Errorf("reopen listing: %w", err))
	}
	l.log.Warn("listing restored after failed interaction",
		zap.Uint64("listing_id", listingID), zap.Error(cause))
	return cause
}

func (l *Ledger) parkSettlement(ctx context.Context, listingID uint64, receipt *payments.Receipt, cause, reverseErr error) error {
	errs := []error{cause, fmt.Errorf("%w: reverse payment: %w", apperr.ErrSettlementFailure, reverseErr)}

	l.mu.Lock()
	err := l.store.FailSettlement(ctx, listingID)
	l.mu.Unlock()
	if err != nil {
		errs = append(errs, fmt.Errorf("mark settlement failed: %w", err))
	}
	// manual reconciliation: receipt id identifies the transfers to undo
	l.log.Error("settlement needs reconciliation",
		zap.Uint64("listing_id", listingID),
		zap.String("receipt", receipt.ID.String()),
		zap.NamedError("cause", cause),
		zap.NamedError("reverse_error", reverseErr),
		zap.Error(err))
	return errors.Join(errs...)
}

// SetFeeRate changes the fee for future settlements.
func (l *Ledger) SetFeeRate(ctx context.Context, caller string, bps uint64) error {
	l.mu.Lock()
	if caller != l.cfg.Owner {
		l.mu.Unlock()
		return apperr.ErrUnauthorized
	}
	if bps > MaxFeeBps {
		l.mu.Unlock()
		return apperr.ErrFeeTooHigh
	}
	old := l.cfg.FeeBps
	l.cfg.FeeBps = bps
	emitter := l.emitter
	l.mu.Unlock()

	l.log.Info("fee rate updated", zap.Uint64("old_bps", old), zap.Uint64("new_bps", bps))
	emitter.Emit(ctx, events.Event{
		Type:    events.EventFeeUpdated,
		Payload: map[string]any{"old_bps": old, "new_bps": bps},
	})
	return nil
}

// WithdrawAll moves the exchange account balance to the owner. A zero balance
// is a no-op.
func (l *Ledger) WithdrawAll(ctx context.Context, caller string) (*uint256.Int, error) {
	l.mu.Lock()
	if caller != l.cfg.Owner {
		l.mu.Unlock()
		return nil, apperr.ErrUnauthorized
	}
	cfg := l.cfg
	emitter := l.emitter
	l.mu.Unlock()

	balance, err := l.treasury.Balance(ctx, cfg.ExchangeAccount)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrSettlementFailure, err)
	}
	if balance.IsZero() {
		return balance, nil
	}
	if _, err := l.treasury.Pay(ctx, payments.Transfer{From: cfg.ExchangeAccount, To: cfg.Owner, Amount: balance}); err != nil {
		if apperr.KindOf(err) == apperr.KindUnknown {
			err = fmt.Errorf("%w: %w", apperr.ErrSettlementFailure, err)
		}
		return nil, err
	}

	l.log.Info("treasury withdrawn", zap.String("to", cfg.Owner), zap.String("amount", balance.Dec()))
	emitter.Emit(ctx, events.Event{
		Type:    events.EventTreasuryWithdrawn,
		Payload: map[string]any{"to": cfg.Owner, "amount": balance.Dec()},
	})
	return balance, nil
}
