package dto

type CreateListingRequest struct {
	Contract string `json:"contract"`
	TokenID  uint64 `json:"token_id"`
	Price    string `json:"price"` // nanoTON, decimal
}

// BuyRequest: пустой paid означает оплату ровно по цене листинга.
type BuyRequest struct {
	Paid string `json:"paid,omitempty"`
}

type CreateProposalRequest struct {
	Description      string `json:"description"`
	RelatedListingID uint64 `json:"related_listing_id,omitempty"`
}

type CommitVoteRequest struct {
	CommitHash string `json:"commit_hash"` // 0x + 64 hex
}

type RevealVoteRequest struct {
	Support bool   `json:"support"`
	Salt    string `json:"salt"`
}

type WithdrawalRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type AssetRequest struct {
	Contract string `json:"contract"`
	TokenID  uint64 `json:"token_id"`
}

type ApproveAllRequest struct {
	Approved bool `json:"approved"`
}

type SetFeeRequest struct {
	FeeBps uint64 `json:"fee_bps"`
}

type MintRequest struct {
	Contract string `json:"contract"`
	TokenID  uint64 `json:"token_id"`
	Owner    string `json:"owner"`
}

type CreditRequest struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}
