package events

import "context"

// Event types
const (
	EventListingCreated    = "listing.created"
	EventListingSold       = "listing.sold"
	EventListingCancelled  = "listing.cancelled"
	EventProposalCreated   = "proposal.created"
	EventVoteCommitted     = "vote.committed"
	EventVoteRevealed      = "vote.revealed"
	EventProposalExecuted  = "proposal.executed"
	EventFeeUpdated        = "fee.updated"
	EventTreasuryWithdrawn = "treasury.withdrawn"
	EventDepositReceived   = "deposit.received"
	EventWithdrawalSent    = "withdrawal.sent"
)

// StreamExchange is the pub/sub channel all exchange notifications go to.
const StreamExchange = "events:exchange"

type Event struct {
	Seq     uint64         `json:"seq,omitempty"`
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}
