package market

import "github.com/holiman/uint256"

const (
	BasisPoints   = 10_000
	DefaultFeeBps = 250
	MaxFeeBps     = 1_000
)

// Split is how a settlement payment is divided.
type Split struct {
	Fee      *uint256.Int
	Proceeds *uint256.Int
	Refund   *uint256.Int
}

// SplitPayment computes fee = price*feeBps/10000 (floor), proceeds = price-fee
// and refund = paid-price. paid must be >= price and feeBps <= BasisPoints.
func SplitPayment(price, paid *uint256.Int, feeBps uint64) Split {
	fee, _ := new(uint256.Int).MulDivOverflow(price, uint256.NewInt(feeBps), uint256.NewInt(BasisPoints))
	return Split{
		Fee:      fee,
		Proceeds: new(uint256.Int).Sub(price, fee),
		Refund:   new(uint256.Int).Sub(paid, price),
	}
}
