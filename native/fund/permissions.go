package fund

import "time"

// CanProposeTrade reports whether the member may open a trade proposal:
// trader or manager role, on the fund allow-list, and both member and fund
// active.
func CanProposeTrade(fund *Fund, member *Member) bool {
	return checkProposer(fund, member) == nil
}

// checkProposer is the error-carrying form of CanProposeTrade so callers get
// the specific rejection kind.
func checkProposer(fund *Fund, member *Member) error {
	if fund == nil || !fund.Active {
		return ErrFundInactive
	}
	if member == nil || !member.Active {
		return ErrMemberInactive
	}
	if member.Role != RoleTrader && member.Role != RoleManager {
		return ErrNotTraderOrManager
	}
	if !fund.TraderApproved(member.Wallet) {
		return ErrNotApprovedTrader
	}
	return nil
}

// CanApprove validates an approval attempt. Checks short-circuit in priority
// order so the first failing condition names the rejection: role, allow-list,
// proposal status, expiry, self-approval, duplicate approval.
func CanApprove(fund *Fund, member *Member, proposal *TradeProposal, now time.Time) error {
	if fund == nil || !fund.Active {
		return ErrFundInactive
	}
	if member == nil || !member.Active {
		return ErrMemberInactive
	}
	if member.Role != RoleTrader && member.Role != RoleManager {
		return ErrNotTraderOrManager
	}
	if !fund.TraderApproved(member.Wallet) {
		return ErrNotApprovedTrader
	}
	if proposal == nil || proposal.Status != ProposalPending {
		return ErrProposalNotPending
	}
	if proposal.ExpiredAt(now) {
		return ErrProposalExpired
	}
	if proposal.Proposer == member.Wallet {
		return ErrSelfApproval
	}
	if proposal.HasApproval(member.Wallet) {
		return ErrAlreadyApproved
	}
	return nil
}

// CanAdminister reports whether the actor holds the fund authority. Gates
// pause/resume/close, role changes, and allow-list edits.
func CanAdminister(fund *Fund, actor WalletID) bool {
	if fund == nil {
		return false
	}
	return fund.Authority == actor
}
