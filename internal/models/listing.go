package models

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// Listing statuses
const (
	ListingStatusActive    = "active"
	ListingStatusSold      = "sold"
	ListingStatusCancelled = "cancelled"
	// ListingStatusSettlementFailed: a sale whose payment could not be
	// reversed. The asset stays in the vault until reconciled by hand.
	ListingStatusSettlementFailed = "settlement_failed"
)

// Valid state transitions: from -> []to
var ValidListingTransitions = map[string][]string{
	ListingStatusActive:    {ListingStatusSold, ListingStatusCancelled},
	ListingStatusSold:      {},
	ListingStatusCancelled: {},

	ListingStatusSettlementFailed: {},
}

func IsValidListingTransition(from, to string) bool {
	allowed, ok := ValidListingTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// AssetRef identifies a uniquely-owned asset inside the registry.
type AssetRef struct {
	Contract string `json:"contract"`
	TokenID  uint64 `json:"token_id"`
}

func (a AssetRef) Valid() bool {
	return strings.TrimSpace(a.Contract) != ""
}

func (a AssetRef) String() string {
	return fmt.Sprintf("%s#%d", a.Contract, a.TokenID)
}

type Listing struct {
	ID       uint64       `json:"id"`
	Asset    AssetRef     `json:"asset"`
	Seller   string       `json:"seller"`
	Price    *uint256.Int `json:"price"`
	Active   bool         `json:"active"`
	Status   string       `json:"status"`
	Buyer    string       `json:"buyer,omitempty"`
	ListedAt int64        `json:"listed_at"`
	ClosedAt int64        `json:"closed_at,omitempty"`
}

// Clone returns a deep copy so callers can't mutate stored state.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	c := *l
	if l.Price != nil {
		c.Price = new(uint256.Int).Set(l.Price)
	}
	return &c
}
