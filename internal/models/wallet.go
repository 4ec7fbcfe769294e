package models

import (
	"time"

	"github.com/google/uuid"
)

// Identity is a wallet that proved control of its key via TON Proof.
type Identity struct {
	Address         string    `json:"address"`          // raw: 0:<hex>
	AddressFriendly string    `json:"address_friendly"` // EQ.../UQ..., used as the identity everywhere else
	Network         string    `json:"network"`          // mainnet/testnet
	PublicKey       string    `json:"public_key"`       // hex
	ProofPayload    string    `json:"-"`
	ProofSignature  string    `json:"-"`
	ProofTimestamp  int64     `json:"-"`
	ProofDomain     string    `json:"-"`
	ConnectedAt     time.Time `json:"connected_at"`
	LastActiveAt    time.Time `json:"last_active_at"`
}

type TonProofPayload struct {
	ID        uuid.UUID `json:"id"`
	Payload   string    `json:"payload"`
	CreatedAt time.Time `json:"-"`
	ExpiresAt time.Time `json:"-"`
	Used      bool      `json:"-"`
}
