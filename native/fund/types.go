package fund

import (
	"fmt"
	"math/big"
	"time"
)

// WalletID identifies a participant wallet. The engine treats it as an opaque
// string; resolution against real keys happens in the identity layer.
type WalletID string

// TokenID identifies a tradeable token.
type TokenID string

// Role enumerates the membership roles recognised by the permission gate.
type Role uint8

const (
	RoleContributor Role = iota
	RoleTrader
	RoleManager
)

// String renders the role for storage and display.
func (r Role) String() string {
	switch r {
	case RoleContributor:
		return "contributor"
	case RoleTrader:
		return "trader"
	case RoleManager:
		return "manager"
	default:
		return "unknown"
	}
}

// ParseRole converts a stored role string back into a Role.
func ParseRole(raw string) (Role, error) {
	switch raw {
	case "contributor":
		return RoleContributor, nil
	case "trader":
		return RoleTrader, nil
	case "manager":
		return RoleManager, nil
	default:
		return RoleContributor, fmt.Errorf("fund: unknown role %q", raw)
	}
}

// ProposalStatus tracks a trade proposal through its lifecycle.
type ProposalStatus uint8

const (
	ProposalPending ProposalStatus = iota
	ProposalApproved
	ProposalExecuted
	ProposalExpired
)

// String renders the status for storage and display.
func (s ProposalStatus) String() string {
	switch s {
	case ProposalPending:
		return "pending"
	case ProposalApproved:
		return "approved"
	case ProposalExecuted:
		return "executed"
	case ProposalExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// ParseProposalStatus converts a stored status string back into a status.
func ParseProposalStatus(raw string) (ProposalStatus, error) {
	switch raw {
	case "pending":
		return ProposalPending, nil
	case "approved":
		return ProposalApproved, nil
	case "executed":
		return ProposalExecuted, nil
	case "expired":
		return ProposalExpired, nil
	default:
		return ProposalPending, fmt.Errorf("fund: unknown proposal status %q", raw)
	}
}

// Fund is the pooled-value aggregate. TotalShares and TotalValue move together:
// both are zero exactly when the fund holds nothing.
type Fund struct {
	ID                string
	Authority         WalletID
	TotalShares       *big.Int
	TotalValue        *big.Int
	MinContribution   *big.Int
	TradingFeeBps     uint16
	RequiredApprovals uint8
	ApprovedTraders   map[WalletID]struct{}
	Active            bool
	NextProposalID    uint64
}

// Clone returns a deep copy of the fund.
func (f *Fund) Clone() *Fund {
	if f == nil {
		return nil
	}
	clone := *f
	clone.TotalShares = copyAmount(f.TotalShares)
	clone.TotalValue = copyAmount(f.TotalValue)
	clone.MinContribution = copyAmount(f.MinContribution)
	clone.ApprovedTraders = make(map[WalletID]struct{}, len(f.ApprovedTraders))
	for wallet := range f.ApprovedTraders {
		clone.ApprovedTraders[wallet] = struct{}{}
	}
	return &clone
}

// TraderApproved reports whether the wallet is on the fund allow-list.
func (f *Fund) TraderApproved(wallet WalletID) bool {
	if f == nil || f.ApprovedTraders == nil {
		return false
	}
	_, ok := f.ApprovedTraders[wallet]
	return ok
}

// SanitizeFund normalises nil amounts and validates structural invariants
// before the fund is acted upon. Records loaded from storage pass through
// here so downstream arithmetic never sees nil big.Ints.
func SanitizeFund(f *Fund) (*Fund, error) {
	if f == nil {
		return nil, fmt.Errorf("fund: nil fund record")
	}
	clone := f.Clone()
	if clone.TotalShares == nil {
		clone.TotalShares = big.NewInt(0)
	}
	if clone.TotalValue == nil {
		clone.TotalValue = big.NewInt(0)
	}
	if clone.MinContribution == nil {
		clone.MinContribution = big.NewInt(0)
	}
	if clone.TotalShares.Sign() < 0 || clone.TotalValue.Sign() < 0 {
		return nil, fmt.Errorf("fund: negative fund totals")
	}
	if (clone.TotalShares.Sign() == 0) != (clone.TotalValue.Sign() == 0) {
		return nil, fmt.Errorf("fund: shares and value must be zero together")
	}
	if clone.TradingFeeBps > 10_000 {
		return nil, fmt.Errorf("fund: trading fee above 10000 bps")
	}
	return clone, nil
}

// Member records one wallet's stake in a fund. Members are deactivated rather
// than deleted so trade statistics and cost basis survive as history.
type Member struct {
	Wallet           WalletID
	FundID           string
	Shares           *big.Int
	TotalContributed *big.Int
	Role             Role
	Active           bool
	SuccessfulTrades uint32
	FailedTrades     uint32
	ReputationScore  int32
}

// Clone returns a deep copy of the member.
func (m *Member) Clone() *Member {
	if m == nil {
		return nil
	}
	clone := *m
	clone.Shares = copyAmount(m.Shares)
	clone.TotalContributed = copyAmount(m.TotalContributed)
	return &clone
}

// SanitizeMember normalises nil amounts on a loaded member record.
func SanitizeMember(m *Member) (*Member, error) {
	if m == nil {
		return nil, fmt.Errorf("fund: nil member record")
	}
	clone := m.Clone()
	if clone.Shares == nil {
		clone.Shares = big.NewInt(0)
	}
	if clone.TotalContributed == nil {
		clone.TotalContributed = big.NewInt(0)
	}
	if clone.Shares.Sign() < 0 || clone.TotalContributed.Sign() < 0 {
		return nil, fmt.Errorf("fund: negative member balances")
	}
	return clone, nil
}

// TradeProposal is a request to swap pooled value, gated behind the approval
// quorum. Approvals keep insertion order for display; uniqueness is enforced
// by the engine.
type TradeProposal struct {
	FundID     string
	ID         uint64
	Proposer   WalletID
	FromToken  TokenID
	ToToken    TokenID
	Amount     *big.Int
	MinimumOut *big.Int
	Status     ProposalStatus
	Approvals  []WalletID
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Clone returns a deep copy of the proposal.
func (p *TradeProposal) Clone() *TradeProposal {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Amount = copyAmount(p.Amount)
	clone.MinimumOut = copyAmount(p.MinimumOut)
	clone.Approvals = append([]WalletID(nil), p.Approvals...)
	return &clone
}

// HasApproval reports whether the wallet already approved the proposal.
func (p *TradeProposal) HasApproval(wallet WalletID) bool {
	if p == nil {
		return false
	}
	for _, approver := range p.Approvals {
		if approver == wallet {
			return true
		}
	}
	return false
}

// ExpiredAt reports whether the proposal TTL has elapsed at the given instant.
func (p *TradeProposal) ExpiredAt(now time.Time) bool {
	if p == nil || p.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(p.ExpiresAt)
}

// RedemptionStatus classifies the sign of a realised profit or loss.
type RedemptionStatus uint8

const (
	RedemptionBreakEven RedemptionStatus = iota
	RedemptionProfit
	RedemptionLoss
)

// String renders the redemption status for display.
func (s RedemptionStatus) String() string {
	switch s {
	case RedemptionProfit:
		return "profit"
	case RedemptionLoss:
		return "loss"
	default:
		return "break_even"
	}
}

// ContributionReceipt reports the outcome of a contribution.
type ContributionReceipt struct {
	FundID       string
	Wallet       WalletID
	Amount       *big.Int
	MintedShares *big.Int
	TotalShares  *big.Int
	TotalValue   *big.Int
}

// RedemptionReceipt reports the outcome of a full redemption.
type RedemptionReceipt struct {
	FundID       string
	Wallet       WalletID
	CurrentValue *big.Int
	ProfitOrLoss *big.Int
	Fee          *big.Int
	Payout       *big.Int
	Status       RedemptionStatus
}

// ProfitClaimReceipt reports the outcome of a profit-only claim.
type ProfitClaimReceipt struct {
	FundID      string
	Wallet      WalletID
	GrossProfit *big.Int
	Fee         *big.Int
	NetProfit   *big.Int
}

// ApprovalReceipt reports the approval count and status after an approval.
type ApprovalReceipt struct {
	FundID        string
	ProposalID    uint64
	ApprovalCount int
	Status        ProposalStatus
}

// SettlementResult is the settlement collaborator's report for an executed
// trade attempt. AmountOut is the realised output in the destination token.
type SettlementResult struct {
	Success   bool
	AmountOut *big.Int
	Reason    string
}

func copyAmount(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
