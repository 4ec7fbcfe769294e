package dto

import "github.com/asset-exchange/backend/internal/models"

type AuthResponse struct {
	Token    string `json:"token"`
	Identity any    `json:"identity"`
	Role     string `json:"role"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

type PayloadResponse struct {
	Payload string `json:"payload"`
}

type SettlementResponse struct {
	Listing   *models.Listing `json:"listing"`
	Fee       string          `json:"fee"`
	Proceeds  string          `json:"proceeds"`
	Refund    string          `json:"refund"`
	ReceiptID string          `json:"receipt_id"`
}

// ProposalView adds the phase at request time.
type ProposalView struct {
	*models.Proposal
	Phase string `json:"phase"`
}

type BalanceResponse struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

type FeeResponse struct {
	FeeBps uint64 `json:"fee_bps"`
}

type MeResponse struct {
	Identity *models.Identity `json:"identity"`
	Role     string           `json:"role"`
}
