package fund

import (
	"fmt"
	"math/big"
)

// ProposeTrade opens a trade proposal for the fund. The proposer must pass the
// trader gate; the proposal starts pending with an empty approval set and an
// expiry stamped from the engine TTL. Proposal identifiers are monotonic per
// fund.
func (e *Engine) ProposeTrade(fundID string, proposer WalletID, fromToken, toToken TokenID, amount, minimumOut *big.Int) (*TradeProposal, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if fromToken == toToken {
		return nil, fmt.Errorf("fund: proposal tokens must differ")
	}
	unlock, err := e.lockFund(fundID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var proposal *TradeProposal
	err = e.withState(func(state State) error {
		fund, err := loadFund(state, fundID)
		if err != nil {
			return err
		}
		member, err := loadMember(state, fundID, proposer)
		if err != nil {
			return err
		}
		if err := checkProposer(fund, member); err != nil {
			return err
		}

		now := e.now()
		minOut := big.NewInt(0)
		if minimumOut != nil {
			if minimumOut.Sign() < 0 {
				return ErrInvalidAmount
			}
			minOut = new(big.Int).Set(minimumOut)
		}
		proposal = &TradeProposal{
			FundID:     fundID,
			ID:         fund.NextProposalID,
			Proposer:   proposer,
			FromToken:  fromToken,
			ToToken:    toToken,
			Amount:     new(big.Int).Set(amount),
			MinimumOut: minOut,
			Status:     ProposalPending,
			Approvals:  []WalletID{},
			CreatedAt:  now,
			ExpiresAt:  now.Add(e.proposalTTL),
		}
		fund.NextProposalID++

		if err := state.FundPut(fund); err != nil {
			return wrapPersistence(err)
		}
		if err := state.ProposalPut(proposal); err != nil {
			return wrapPersistence(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.emit(newProposalEvent(EventTypeProposalCreated, proposal))
	return proposal.Clone(), nil
}

// ApproveTrade records a distinct approval. Once the approval count reaches
// the fund quorum the proposal flips to approved; further approval attempts
// are rejected with the specific kind rather than silently ignored.
func (e *Engine) ApproveTrade(fundID string, approver WalletID, proposalID uint64) (*ApprovalReceipt, error) {
	unlock, err := e.lockFund(fundID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		proposal *TradeProposal
		receipt  *ApprovalReceipt
	)
	err = e.withState(func(state State) error {
		fund, err := loadFund(state, fundID)
		if err != nil {
			return err
		}
		member, err := loadMember(state, fundID, approver)
		if err != nil {
			return err
		}
		proposal, err = loadProposal(state, fundID, proposalID)
		if err != nil {
			return err
		}
		if err := CanApprove(fund, member, proposal, e.now()); err != nil {
			return err
		}

		proposal.Approvals = append(proposal.Approvals, approver)
		if len(proposal.Approvals) >= int(fund.RequiredApprovals) {
			proposal.Status = ProposalApproved
		}
		if err := state.ProposalPut(proposal); err != nil {
			return wrapPersistence(err)
		}
		receipt = &ApprovalReceipt{
			FundID:        fundID,
			ProposalID:    proposalID,
			ApprovalCount: len(proposal.Approvals),
			Status:        proposal.Status,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.emit(newApprovalEvent(proposal, approver))
	return receipt, nil
}

// RecordExecution feeds the settlement collaborator's result back into the
// proposal. The proposal must be approved and unexpired. A successful result
// honouring the minimum output flips the proposal to executed and credits the
// executor; anything else leaves the proposal approved for retry and debits
// the executor's failure count. Idempotent on the proposal: an executed
// proposal rejects re-execution.
func (e *Engine) RecordExecution(fundID string, proposalID uint64, executor WalletID, result SettlementResult) (*TradeProposal, error) {
	unlock, err := e.lockFund(fundID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		proposal   *TradeProposal
		honoured   bool
		updateStat = func(state State, success bool) error {
			member, ok, err := state.MemberGet(fundID, executor)
			if err != nil {
				return wrapPersistence(err)
			}
			if !ok || member == nil {
				return nil
			}
			member = member.Clone()
			if success {
				member.SuccessfulTrades++
				member.ReputationScore++
			} else {
				member.FailedTrades++
			}
			if err := state.MemberPut(member); err != nil {
				return wrapPersistence(err)
			}
			return nil
		}
	)
	err = e.withState(func(state State) error {
		var err error
		proposal, err = loadProposal(state, fundID, proposalID)
		if err != nil {
			return err
		}
		if proposal.Status != ProposalApproved {
			return ErrProposalNotPending
		}
		if proposal.ExpiredAt(e.now()) {
			return ErrProposalExpired
		}

		honoured = result.Success && result.AmountOut != nil && result.AmountOut.Cmp(proposal.MinimumOut) >= 0
		if !honoured {
			return updateStat(state, false)
		}

		proposal.Status = ProposalExecuted
		if err := state.ProposalPut(proposal); err != nil {
			return wrapPersistence(err)
		}
		return updateStat(state, true)
	})
	if err != nil {
		return nil, err
	}
	e.emit(newExecutionEvent(proposal, executor, result, honoured))
	if !honoured {
		return proposal.Clone(), fmt.Errorf("%w: %s", ErrSettlementFailed, settlementFailureReason(result))
	}
	return proposal.Clone(), nil
}

// settlementFailureReason normalizes the venue's failure description; a
// success report that missed the minimum output gets an explicit reason.
func settlementFailureReason(result SettlementResult) string {
	if result.Reason != "" {
		return result.Reason
	}
	if result.Success {
		return "reported output below minimum"
	}
	return "settlement failed"
}

// SweepExpired flips every pending or approved proposal past its expiry to
// the expired terminal status. Purely a hygiene pass; expiry is also enforced
// lazily on approval and execution, so the sweep may run at any cadence.
func (e *Engine) SweepExpired(fundID string) (int, error) {
	unlock, err := e.lockFund(fundID)
	if err != nil {
		return 0, err
	}
	defer unlock()

	swept := 0
	var expired []*TradeProposal
	err = e.withState(func(state State) error {
		open, err := state.ProposalsOpen(fundID)
		if err != nil {
			return wrapPersistence(err)
		}
		now := e.now()
		for _, proposal := range open {
			if proposal == nil || !proposal.ExpiredAt(now) {
				continue
			}
			flipped := proposal.Clone()
			flipped.Status = ProposalExpired
			if err := state.ProposalPut(flipped); err != nil {
				return wrapPersistence(err)
			}
			expired = append(expired, flipped)
			swept++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, proposal := range expired {
		e.emit(newProposalEvent(EventTypeProposalExpired, proposal))
	}
	return swept, nil
}

// Proposal returns a copy of the proposal, applying lazy expiry to the view
// (but not the store) when the TTL has elapsed on an open proposal.
func (e *Engine) Proposal(fundID string, proposalID uint64) (*TradeProposal, error) {
	if e == nil || e.state == nil {
		return nil, errStateNotConfigured
	}
	proposal, err := loadProposal(e.state, fundID, proposalID)
	if err != nil {
		return nil, err
	}
	if (proposal.Status == ProposalPending || proposal.Status == ProposalApproved) && proposal.ExpiredAt(e.now()) {
		proposal.Status = ProposalExpired
	}
	return proposal, nil
}
