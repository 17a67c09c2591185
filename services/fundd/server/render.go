package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"fundvault/native/fund"
	"fundvault/observability/metrics"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeEngineError maps engine sentinels to HTTP statuses.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	if errors.Is(err, fund.ErrContended) {
		metrics.Fund().RecordLockContention()
	}
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, fund.ErrFundNotFound),
		errors.Is(err, fund.ErrMemberNotFound),
		errors.Is(err, fund.ErrProposalNotFound):
		status = http.StatusNotFound
	case errors.Is(err, fund.ErrNotAuthority),
		errors.Is(err, fund.ErrNotTraderOrManager),
		errors.Is(err, fund.ErrNotApprovedTrader),
		errors.Is(err, fund.ErrSelfApproval):
		status = http.StatusForbidden
	case errors.Is(err, fund.ErrAlreadyApproved),
		errors.Is(err, fund.ErrProposalNotPending),
		errors.Is(err, fund.ErrProposalExpired),
		errors.Is(err, fund.ErrFundInactive),
		errors.Is(err, fund.ErrMemberInactive),
		errors.Is(err, fund.ErrNoShares),
		errors.Is(err, fund.ErrFundEmpty):
		status = http.StatusConflict
	case errors.Is(err, fund.ErrInvalidAmount),
		errors.Is(err, fund.ErrBelowMinimum):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, fund.ErrContended):
		status = http.StatusTooManyRequests
	case errors.Is(err, fund.ErrSettlementFailed):
		status = http.StatusBadGateway
	case errors.Is(err, fund.ErrPersistence):
		s.log.Error("persistence failure", "error", err)
		status = http.StatusInternalServerError
	case strings.HasPrefix(err.Error(), "fund: "):
		// Unmapped engine rejections are validation failures, not faults.
		status = http.StatusBadRequest
	}
	writeError(w, status, err.Error())
}

// parseAmount decodes a base-unit integer string from a request payload.
func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("amount must not be empty")
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return value, nil
}

// display renders a base-unit amount scaled to the configured display
// decimals. Committed math never touches this path.
func (s *Server) display(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -s.decimals).String()
}

type amountView struct {
	Base    string `json:"base"`
	Display string `json:"display"`
}

func (s *Server) amount(v *big.Int) amountView {
	base := "0"
	if v != nil {
		base = v.String()
	}
	return amountView{Base: base, Display: s.display(v)}
}

type fundView struct {
	ID                string     `json:"id"`
	Authority         string     `json:"authority"`
	TotalShares       string     `json:"total_shares"`
	TotalValue        amountView `json:"total_value"`
	MinContribution   amountView `json:"min_contribution"`
	TradingFeeBps     uint16     `json:"trading_fee_bps"`
	RequiredApprovals uint8      `json:"required_approvals"`
	ApprovedTraders   []string   `json:"approved_traders"`
	Active            bool       `json:"active"`
}

func (s *Server) fundView(f *fund.Fund) fundView {
	traders := lo.Map(lo.Keys(f.ApprovedTraders), func(w fund.WalletID, _ int) string {
		return string(w)
	})
	sort.Strings(traders)
	return fundView{
		ID:                f.ID,
		Authority:         string(f.Authority),
		TotalShares:       f.TotalShares.String(),
		TotalValue:        s.amount(f.TotalValue),
		MinContribution:   s.amount(f.MinContribution),
		TradingFeeBps:     f.TradingFeeBps,
		RequiredApprovals: f.RequiredApprovals,
		ApprovedTraders:   traders,
		Active:            f.Active,
	}
}

type memberView struct {
	Wallet           string     `json:"wallet"`
	FundID           string     `json:"fund_id"`
	Shares           string     `json:"shares"`
	TotalContributed amountView `json:"total_contributed"`
	Role             string     `json:"role"`
	Active           bool       `json:"active"`
	SuccessfulTrades uint32     `json:"successful_trades"`
	FailedTrades     uint32     `json:"failed_trades"`
	ReputationScore  int32      `json:"reputation_score"`
}

func (s *Server) memberView(m *fund.Member) memberView {
	return memberView{
		Wallet:           string(m.Wallet),
		FundID:           m.FundID,
		Shares:           m.Shares.String(),
		TotalContributed: s.amount(m.TotalContributed),
		Role:             m.Role.String(),
		Active:           m.Active,
		SuccessfulTrades: m.SuccessfulTrades,
		FailedTrades:     m.FailedTrades,
		ReputationScore:  m.ReputationScore,
	}
}

type proposalView struct {
	FundID     string     `json:"fund_id"`
	ID         uint64     `json:"id"`
	Proposer   string     `json:"proposer"`
	FromToken  string     `json:"from_token"`
	ToToken    string     `json:"to_token"`
	Amount     amountView `json:"amount"`
	MinimumOut amountView `json:"minimum_out"`
	Status     string     `json:"status"`
	Approvals  []string   `json:"approvals"`
	CreatedAt  string     `json:"created_at"`
	ExpiresAt  string     `json:"expires_at"`
}

func (s *Server) proposalView(p *fund.TradeProposal) proposalView {
	return proposalView{
		FundID:     p.FundID,
		ID:         p.ID,
		Proposer:   string(p.Proposer),
		FromToken:  string(p.FromToken),
		ToToken:    string(p.ToToken),
		Amount:     s.amount(p.Amount),
		MinimumOut: s.amount(p.MinimumOut),
		Status:     p.Status.String(),
		Approvals: lo.Map(p.Approvals, func(w fund.WalletID, _ int) string {
			return string(w)
		}),
		CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339),
		ExpiresAt: p.ExpiresAt.UTC().Format(time.RFC3339),
	}
}

type quoteView struct {
	FundID         string     `json:"fund_id"`
	Wallet         string     `json:"wallet"`
	Shares         string     `json:"shares"`
	TotalShares    string     `json:"total_shares"`
	SharePercent   float64    `json:"share_percent"`
	CurrentValue   amountView `json:"current_value"`
	ProfitOrLoss   amountView `json:"profit_or_loss"`
	Fee            amountView `json:"fee"`
	Payout         amountView `json:"payout"`
	Status         string     `json:"status"`
	ClaimableGross amountView `json:"claimable_gross"`
	ClaimableFee   amountView `json:"claimable_fee"`
	ClaimableNet   amountView `json:"claimable_net"`
}

func (s *Server) quoteView(q *fund.Quote) quoteView {
	return quoteView{
		FundID:         q.FundID,
		Wallet:         string(q.Wallet),
		Shares:         q.Shares.String(),
		TotalShares:    q.TotalShares.String(),
		SharePercent:   q.SharePercent,
		CurrentValue:   s.amount(q.CurrentValue),
		ProfitOrLoss:   s.amount(q.ProfitOrLoss),
		Fee:            s.amount(q.Fee),
		Payout:         s.amount(q.Payout),
		Status:         q.Status.String(),
		ClaimableGross: s.amount(q.ClaimableGross),
		ClaimableFee:   s.amount(q.ClaimableFee),
		ClaimableNet:   s.amount(q.ClaimableNet),
	}
}
