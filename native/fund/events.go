package fund

import (
	"strconv"
	"time"
)

// Event types emitted by the engine.
const (
	EventTypeFundCreated      = "fund.created"
	EventTypeFundPaused       = "fund.paused"
	EventTypeFundResumed      = "fund.resumed"
	EventTypeFundClosed       = "fund.closed"
	EventTypeContributed      = "fund.contributed"
	EventTypeRedeemed         = "fund.redeemed"
	EventTypeProfitClaimed    = "fund.profit_claimed"
	EventTypeMemberUpdated    = "fund.member_updated"
	EventTypeTraderAllowed    = "fund.trader_allowed"
	EventTypeTraderRevoked    = "fund.trader_revoked"
	EventTypeProposalCreated  = "fund.proposal_created"
	EventTypeProposalApproved = "fund.proposal_approved"
	EventTypeProposalExecuted = "fund.proposal_executed"
	EventTypeExecutionFailed  = "fund.execution_failed"
	EventTypeProposalExpired  = "fund.proposal_expired"
)

// Event is an engine notification. Attributes are flat strings so the service
// layer can persist them as an audit trail without interpreting the payload.
type Event struct {
	Type       string
	FundID     string
	Attributes map[string]string
}

// Emitter receives engine events.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards events.
type NoopEmitter struct{}

// Emit implements Emitter.
func (NoopEmitter) Emit(Event) {}

func newContributionEvent(r *ContributionReceipt) Event {
	attrs := map[string]string{
		"wallet": string(r.Wallet),
		"amount": r.Amount.String(),
		"minted": r.MintedShares.String(),
	}
	return Event{Type: EventTypeContributed, FundID: r.FundID, Attributes: attrs}
}

func newRedemptionEvent(r *RedemptionReceipt) Event {
	attrs := map[string]string{
		"wallet": string(r.Wallet),
		"value":  r.CurrentValue.String(),
		"pnl":    r.ProfitOrLoss.String(),
		"fee":    r.Fee.String(),
		"payout": r.Payout.String(),
		"status": r.Status.String(),
	}
	return Event{Type: EventTypeRedeemed, FundID: r.FundID, Attributes: attrs}
}

func newProfitClaimEvent(r *ProfitClaimReceipt) Event {
	attrs := map[string]string{
		"wallet": string(r.Wallet),
		"gross":  r.GrossProfit.String(),
		"fee":    r.Fee.String(),
		"net":    r.NetProfit.String(),
	}
	return Event{Type: EventTypeProfitClaimed, FundID: r.FundID, Attributes: attrs}
}

func newProposalEvent(eventType string, p *TradeProposal) Event {
	attrs := map[string]string{
		"id":       strconv.FormatUint(p.ID, 10),
		"proposer": string(p.Proposer),
		"from":     string(p.FromToken),
		"to":       string(p.ToToken),
		"amount":   p.Amount.String(),
		"status":   p.Status.String(),
	}
	if !p.ExpiresAt.IsZero() {
		attrs["expiresAt"] = strconv.FormatInt(p.ExpiresAt.Unix(), 10)
	}
	return Event{Type: eventType, FundID: p.FundID, Attributes: attrs}
}

func newApprovalEvent(p *TradeProposal, approver WalletID) Event {
	attrs := map[string]string{
		"id":        strconv.FormatUint(p.ID, 10),
		"approver":  string(approver),
		"approvals": strconv.Itoa(len(p.Approvals)),
		"status":    p.Status.String(),
	}
	return Event{Type: EventTypeProposalApproved, FundID: p.FundID, Attributes: attrs}
}

func newExecutionEvent(p *TradeProposal, executor WalletID, result SettlementResult, honoured bool) Event {
	eventType := EventTypeProposalExecuted
	attrs := map[string]string{
		"id":       strconv.FormatUint(p.ID, 10),
		"executor": string(executor),
	}
	if result.AmountOut != nil {
		attrs["amountOut"] = result.AmountOut.String()
	}
	if !honoured {
		eventType = EventTypeExecutionFailed
		attrs["reason"] = settlementFailureReason(result)
	}
	return Event{Type: eventType, FundID: p.FundID, Attributes: attrs}
}

func newFundEvent(eventType string, f *Fund, at time.Time) Event {
	attrs := map[string]string{
		"authority": string(f.Authority),
		"at":        strconv.FormatInt(at.Unix(), 10),
	}
	return Event{Type: eventType, FundID: f.ID, Attributes: attrs}
}
