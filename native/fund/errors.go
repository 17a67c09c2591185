package fund

import "errors"

// Error kinds surfaced by the engine. Every rejection carries one of these so
// the calling layer can render an actionable message instead of a generic
// failure. Validation errors are returned before any state mutation.
var (
	ErrFundNotFound     = errors.New("fund: fund not found")
	ErrMemberNotFound   = errors.New("fund: member not found")
	ErrProposalNotFound = errors.New("fund: proposal not found")

	ErrFundInactive   = errors.New("fund: fund is not active")
	ErrMemberInactive = errors.New("fund: member is not active")
	ErrBelowMinimum   = errors.New("fund: contribution below fund minimum")
	ErrInvalidAmount  = errors.New("fund: amount must be positive")
	ErrNoShares       = errors.New("fund: member holds no shares")
	ErrFundEmpty      = errors.New("fund: fund holds no shares")

	ErrNotTraderOrManager = errors.New("fund: caller is not a trader or manager")
	ErrNotApprovedTrader  = errors.New("fund: caller is not on the trader allow-list")
	ErrNotAuthority       = errors.New("fund: caller is not the fund authority")

	ErrProposalNotPending = errors.New("fund: proposal is not pending")
	ErrProposalExpired    = errors.New("fund: proposal has expired")
	ErrSelfApproval       = errors.New("fund: proposer cannot approve own proposal")
	ErrAlreadyApproved    = errors.New("fund: wallet already approved proposal")
	ErrNotApproved        = errors.New("fund: proposal has not reached quorum")

	// ErrContended signals the per-fund lock could not be acquired within the
	// configured wait. Retryable.
	ErrContended = errors.New("fund: fund busy, retry")

	// ErrSettlementFailed wraps a settlement collaborator failure. The
	// proposal stays approved and the attempt may be retried.
	ErrSettlementFailed = errors.New("fund: settlement failed")

	// ErrPersistence wraps a state backend failure. The operation must not
	// have mutated visible state when this is returned.
	ErrPersistence = errors.New("fund: persistence failed")
)
