package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// Transfer moves Amount from one account to another.
type Transfer struct {
	From   string       `json:"from"`
	To     string       `json:"to"`
	Amount *uint256.Int `json:"amount"`
}

// Receipt records a committed batch so it can be reversed.
type Receipt struct {
	ID        uuid.UUID  `json:"id"`
	Transfers []Transfer `json:"transfers"`
	CreatedAt time.Time  `json:"created_at"`
}

// Treasury settles value. Pay applies the whole batch in order or nothing.
type Treasury interface {
	Pay(ctx context.Context, transfers ...Transfer) (*Receipt, error)
	Reverse(ctx context.Context, receipt *Receipt) error
	Balance(ctx context.Context, account string) (*uint256.Int, error)
}

// Bank is a Treasury that also accepts value from outside the system
// (deposits, admin credits).
type Bank interface {
	Treasury
	Credit(ctx context.Context, account string, amount *uint256.Int) error
}

// Compact drops zero-amount transfers, keeping order.
func Compact(transfers []Transfer) []Transfer {
	out := make([]Transfer, 0, len(transfers))
	for _, t := range transfers {
		if t.Amount == nil || t.Amount.IsZero() {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Inverse returns the transfers that undo a receipt, last first.
func Inverse(receipt *Receipt) []Transfer {
	out := make([]Transfer, 0, len(receipt.Transfers))
	for i := len(receipt.Transfers) - 1; i >= 0; i-- {
		t := receipt.Transfers[i]
		out = append(out, Transfer{From: t.To, To: t.From, Amount: t.Amount})
	}
	return out
}
