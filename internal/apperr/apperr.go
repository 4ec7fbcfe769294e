package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies a failure by what the caller has to fix before retrying.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindValidation: bad input shape (zero price, empty description, zero commitment).
	KindValidation
	// KindAuthorization: wrong caller for the action.
	KindAuthorization
	// KindState: operation invalid for the current entity state or time window.
	KindState
	// KindIntegrity: revealed vote does not match the stored commitment.
	KindIntegrity
	// KindQuorum: not enough revealed votes at execution time.
	KindQuorum
	KindNotFound
	// KindExternal: a collaborator (registry, treasury, hook) failed.
	KindExternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindState:
		return "state"
	case KindIntegrity:
		return "integrity"
	case KindQuorum:
		return "quorum"
	case KindNotFound:
		return "not_found"
	case KindExternal:
		return "external"
	default:
		return "unknown"
	}
}

// Error is a distinct, inspectable failure reason. Values are compared by
// identity, so the package-level sentinels work with errors.Is through any
// amount of %w wrapping.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

func newErr(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

var (
	ErrInvalidPrice        = newErr(KindValidation, "invalid_price", "price must be greater than zero")
	ErrInsufficientPayment = newErr(KindValidation, "insufficient_payment", "paid amount is below the listing price")
	ErrEmptyDescription    = newErr(KindValidation, "empty_description", "proposal description must not be empty")
	ErrZeroCommitment      = newErr(KindValidation, "zero_commitment", "commitment hash must not be zero")
	ErrInvalidIdentity     = newErr(KindValidation, "invalid_identity", "identity must not be empty")
	ErrFeeTooHigh          = newErr(KindValidation, "fee_too_high", "fee rate exceeds the 10% ceiling")

	ErrNotOwner     = newErr(KindAuthorization, "not_owner", "caller does not own the asset")
	ErrNotApproved  = newErr(KindAuthorization, "not_approved", "vault is not approved to move the asset")
	ErrUnauthorized = newErr(KindAuthorization, "unauthorized", "caller is not allowed to perform this action")
	ErrSelfTrade    = newErr(KindAuthorization, "self_trade", "seller cannot buy their own listing")
	ErrInvalidProof = newErr(KindAuthorization, "invalid_proof", "wallet ownership proof rejected")

	ErrNotActive          = newErr(KindState, "not_active", "listing is not active")
	ErrAssetAlreadyListed = newErr(KindState, "asset_already_listed", "asset already has an active listing")
	ErrVotingClosed       = newErr(KindState, "voting_closed", "commit window has closed")
	ErrAlreadyCommitted   = newErr(KindState, "already_committed", "voter already committed on this proposal")
	ErrRevealNotOpen      = newErr(KindState, "reveal_not_open", "reveal window has not opened yet")
	ErrRevealClosed       = newErr(KindState, "reveal_closed", "reveal window has closed")
	ErrNoCommitment       = newErr(KindState, "no_commitment", "voter has no commitment on this proposal")
	ErrAlreadyRevealed    = newErr(KindState, "already_revealed", "vote already revealed")
	ErrRevealWindowOpen   = newErr(KindState, "reveal_window_open", "reveal window has not closed yet")
	ErrAlreadyExecuted    = newErr(KindState, "already_executed", "proposal already executed")
	ErrInsufficientFunds  = newErr(KindState, "insufficient_funds", "account balance is too low")

	ErrRevealMismatch = newErr(KindIntegrity, "reveal_mismatch", "revealed vote does not match the commitment")

	ErrQuorumNotMet = newErr(KindQuorum, "quorum_not_met", "not enough revealed votes")

	ErrListingNotFound    = newErr(KindNotFound, "listing_not_found", "listing not found")
	ErrProposalNotFound   = newErr(KindNotFound, "proposal_not_found", "proposal not found")
	ErrAssetNotFound      = newErr(KindNotFound, "asset_not_found", "asset not found")
	ErrWithdrawalNotFound = newErr(KindNotFound, "withdrawal_not_found", "withdrawal not found")

	ErrRegistryFailure   = newErr(KindExternal, "registry_failure", "asset registry transfer failed")
	ErrSettlementFailure = newErr(KindExternal, "settlement_failure", "value transfer failed")
	ErrHookFailure       = newErr(KindExternal, "hook_failure", "proposal execution hook failed")
)

// KindOf returns the kind of the first *Error found in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf returns the machine-readable code of err, or "internal".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}

// HTTPStatus maps an error to the status code the API answers with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthorization:
		return http.StatusForbidden
	case KindState, KindQuorum:
		return http.StatusConflict
	case KindIntegrity:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	case KindExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
