package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"fundvault/native/fund"
	"fundvault/observability/metrics"
	"fundvault/services/fundd/storage"
)

type createFundRequest struct {
	ID                string `json:"id"`
	MinContribution   string `json:"min_contribution"`
	TradingFeeBps     uint16 `json:"trading_fee_bps"`
	RequiredApprovals uint8  `json:"required_approvals"`
}

// CreateFund opens a new fund with the caller as authority.
func (s *Server) CreateFund(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerWallet(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "caller identity missing")
		return
	}
	var req createFundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cfg := fund.FundConfig{
		ID:                req.ID,
		Authority:         caller,
		TradingFeeBps:     req.TradingFeeBps,
		RequiredApprovals: req.RequiredApprovals,
	}
	if strings.TrimSpace(req.MinContribution) != "" {
		minContribution, err := parseAmount(req.MinContribution)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		cfg.MinContribution = minContribution
	}
	created, err := s.engine.CreateFund(cfg)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.log.Info("fund created", "fund", created.ID, "authority", string(caller))
	writeJSON(w, http.StatusCreated, s.fundView(created))
}

// GetFund returns the fund aggregate.
func (s *Server) GetFund(w http.ResponseWriter, r *http.Request) {
	f, err := s.engine.FundByID(chi.URLParam(r, "fundID"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.fundView(f))
}

// ListMembers returns the fund roster.
func (s *Server) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.store.MembersByFund(chi.URLParam(r, "fundID"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	views := lo.Map(members, func(m *fund.Member, _ int) memberView {
		return s.memberView(m)
	})
	writeJSON(w, http.StatusOK, views)
}

// GetMember returns one member record.
func (s *Server) GetMember(w http.ResponseWriter, r *http.Request) {
	member, err := s.engine.MemberByWallet(chi.URLParam(r, "fundID"), fund.WalletID(chi.URLParam(r, "wallet")))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.memberView(member))
}

type contributeRequest struct {
	Amount string `json:"amount"`
}

// Contribute adds pooled value for the caller and mints shares.
func (s *Server) Contribute(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerWallet(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "caller identity missing")
		return
	}
	var req contributeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	fundID := chi.URLParam(r, "fundID")
	receipt, err := s.engine.Contribute(fundID, caller, amount)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	metrics.Fund().RecordContribution(fundID)
	writeJSON(w, http.StatusOK, map[string]any{
		"fund_id":       receipt.FundID,
		"wallet":        string(receipt.Wallet),
		"amount":        s.amount(receipt.Amount),
		"minted_shares": receipt.MintedShares.String(),
		"total_shares":  receipt.TotalShares.String(),
		"total_value":   s.amount(receipt.TotalValue),
	})
}

// RedeemFull burns the caller's shares and pays out their slice.
func (s *Server) RedeemFull(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerWallet(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "caller identity missing")
		return
	}
	fundID := chi.URLParam(r, "fundID")
	receipt, err := s.engine.RedeemFull(fundID, caller)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	metrics.Fund().RecordRedemption(fundID, receipt.Status.String())
	writeJSON(w, http.StatusOK, map[string]any{
		"fund_id":        receipt.FundID,
		"wallet":         string(receipt.Wallet),
		"current_value":  s.amount(receipt.CurrentValue),
		"profit_or_loss": s.amount(receipt.ProfitOrLoss),
		"fee":            s.amount(receipt.Fee),
		"payout":         s.amount(receipt.Payout),
		"status":         receipt.Status.String(),
	})
}

// RedeemProfitOnly pays out the caller's accrued profit, keeping their shares.
func (s *Server) RedeemProfitOnly(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerWallet(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "caller identity missing")
		return
	}
	fundID := chi.URLParam(r, "fundID")
	receipt, err := s.engine.RedeemProfitOnly(fundID, caller)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if receipt.GrossProfit.Sign() > 0 {
		metrics.Fund().RecordProfitClaim(fundID)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"fund_id":      receipt.FundID,
		"wallet":       string(receipt.Wallet),
		"gross_profit": s.amount(receipt.GrossProfit),
		"fee":          s.amount(receipt.Fee),
		"net_profit":   s.amount(receipt.NetProfit),
	})
}

// QuotePosition projects the caller's position without mutating anything.
func (s *Server) QuotePosition(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerWallet(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "caller identity missing")
		return
	}
	quote, err := s.engine.Quote(chi.URLParam(r, "fundID"), caller)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.quoteView(quote))
}

type proposeRequest struct {
	FromToken  string `json:"from_token"`
	ToToken    string `json:"to_token"`
	Amount     string `json:"amount"`
	MinimumOut string `json:"minimum_out"`
}

// ProposeTrade opens a trade proposal with the caller as proposer.
func (s *Server) ProposeTrade(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerWallet(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "caller identity missing")
		return
	}
	var req proposeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var minimumOut *big.Int
	if strings.TrimSpace(req.MinimumOut) != "" {
		minimumOut, err = parseAmount(req.MinimumOut)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	fundID := chi.URLParam(r, "fundID")
	proposal, err := s.engine.ProposeTrade(fundID, caller,
		fund.TokenID(req.FromToken), fund.TokenID(req.ToToken), amount, minimumOut)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	metrics.Fund().RecordProposal(fundID)
	writeJSON(w, http.StatusCreated, s.proposalView(proposal))
}

// ListProposals returns the fund's proposals, newest first.
func (s *Server) ListProposals(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	proposals, err := s.store.ProposalsByFund(chi.URLParam(r, "fundID"), limit)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	views := lo.Map(proposals, func(p *fund.TradeProposal, _ int) proposalView {
		return s.proposalView(p)
	})
	writeJSON(w, http.StatusOK, views)
}

// GetProposal returns one proposal, with lazy expiry applied to the view.
func (s *Server) GetProposal(w http.ResponseWriter, r *http.Request) {
	proposalID, err := parseProposalID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	proposal, err := s.engine.Proposal(chi.URLParam(r, "fundID"), proposalID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.proposalView(proposal))
}

// ApproveTrade records the caller's approval on the proposal.
func (s *Server) ApproveTrade(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerWallet(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "caller identity missing")
		return
	}
	proposalID, err := parseProposalID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	fundID := chi.URLParam(r, "fundID")
	receipt, err := s.engine.ApproveTrade(fundID, caller, proposalID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	metrics.Fund().RecordApproval(fundID)
	writeJSON(w, http.StatusOK, map[string]any{
		"fund_id":        receipt.FundID,
		"proposal_id":    receipt.ProposalID,
		"approval_count": receipt.ApprovalCount,
		"status":         receipt.Status.String(),
	})
}

// ExecuteTrade submits an approved proposal to the settlement venue and
// records the outcome. A failed settlement leaves the proposal approved for
// retry and reports the venue's reason.
func (s *Server) ExecuteTrade(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerWallet(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "caller identity missing")
		return
	}
	proposalID, err := parseProposalID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	fundID := chi.URLParam(r, "fundID")
	proposal, err := s.engine.Proposal(fundID, proposalID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	switch proposal.Status {
	case fund.ProposalApproved:
	case fund.ProposalExpired:
		s.writeEngineError(w, fund.ErrProposalExpired)
		return
	default:
		s.writeEngineError(w, fund.ErrProposalNotPending)
		return
	}

	// The venue call runs outside the fund lock; the proposal sits approved
	// while execution is in flight and RecordExecution re-validates under the
	// lock before committing the outcome.
	result, err := s.settle.Execute(r.Context(), proposal)
	if err != nil {
		s.log.Error("settlement unreachable", "fund", fundID, "proposal", proposalID, "error", err)
		result = fund.SettlementResult{Success: false, Reason: err.Error()}
	}

	updated, execErr := s.engine.RecordExecution(fundID, proposalID, caller, result)
	if execErr != nil && updated == nil {
		s.writeEngineError(w, execErr)
		return
	}
	outcome := "executed"
	if execErr != nil {
		outcome = "failed"
	}
	metrics.Fund().RecordExecution(fundID, outcome)
	payload := map[string]any{
		"proposal": s.proposalView(updated),
		"outcome":  outcome,
	}
	if execErr != nil {
		payload["reason"] = execErr.Error()
		writeJSON(w, http.StatusBadGateway, payload)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// PauseFund suspends fund activity. Authority only.
func (s *Server) PauseFund(w http.ResponseWriter, r *http.Request) {
	s.adminAction(w, r, s.engine.Pause)
}

// ResumeFund reactivates a paused fund. Authority only.
func (s *Server) ResumeFund(w http.ResponseWriter, r *http.Request) {
	s.adminAction(w, r, s.engine.Resume)
}

// CloseFund deactivates a drained fund. Authority only.
func (s *Server) CloseFund(w http.ResponseWriter, r *http.Request) {
	s.adminAction(w, r, s.engine.CloseFund)
}

func (s *Server) adminAction(w http.ResponseWriter, r *http.Request, action func(string, fund.WalletID) error) {
	caller, ok := callerWallet(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "caller identity missing")
		return
	}
	fundID := chi.URLParam(r, "fundID")
	if err := action(fundID, caller); err != nil {
		s.writeEngineError(w, err)
		return
	}
	f, err := s.engine.FundByID(fundID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.fundView(f))
}

// AllowTrader adds a wallet to the fund allow-list. Authority only.
func (s *Server) AllowTrader(w http.ResponseWriter, r *http.Request) {
	s.traderAction(w, r, s.engine.AllowTrader)
}

// RevokeTrader removes a wallet from the fund allow-list. Authority only.
func (s *Server) RevokeTrader(w http.ResponseWriter, r *http.Request) {
	s.traderAction(w, r, s.engine.RevokeTrader)
}

func (s *Server) traderAction(w http.ResponseWriter, r *http.Request, action func(string, fund.WalletID, fund.WalletID) error) {
	caller, ok := callerWallet(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "caller identity missing")
		return
	}
	fundID := chi.URLParam(r, "fundID")
	wallet := fund.WalletID(chi.URLParam(r, "wallet"))
	if err := action(fundID, caller, wallet); err != nil {
		s.writeEngineError(w, err)
		return
	}
	f, err := s.engine.FundByID(fundID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.fundView(f))
}

type addMemberRequest struct {
	Wallet string `json:"wallet"`
	Role   string `json:"role"`
}

// AddMember registers a wallet without a contribution. Authority only.
func (s *Server) AddMember(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerWallet(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "caller identity missing")
		return
	}
	var req addMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	role, err := fund.ParseRole(req.Role)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	member, err := s.engine.AddMember(chi.URLParam(r, "fundID"), caller, fund.WalletID(req.Wallet), role)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.memberView(member))
}

type setRoleRequest struct {
	Role string `json:"role"`
}

// SetMemberRole changes a member's role. Authority only.
func (s *Server) SetMemberRole(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerWallet(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "caller identity missing")
		return
	}
	var req setRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	role, err := fund.ParseRole(req.Role)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	fundID := chi.URLParam(r, "fundID")
	wallet := fund.WalletID(chi.URLParam(r, "wallet"))
	if err := s.engine.SetMemberRole(fundID, caller, wallet, role); err != nil {
		s.writeEngineError(w, err)
		return
	}
	member, err := s.engine.MemberByWallet(fundID, wallet)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.memberView(member))
}

// DeactivateMember marks a member inactive. Authority only.
func (s *Server) DeactivateMember(w http.ResponseWriter, r *http.Request) {
	s.memberAction(w, r, s.engine.DeactivateMember)
}

// ReactivateMember marks a member active again. Authority only.
func (s *Server) ReactivateMember(w http.ResponseWriter, r *http.Request) {
	s.memberAction(w, r, s.engine.ReactivateMember)
}

func (s *Server) memberAction(w http.ResponseWriter, r *http.Request, action func(string, fund.WalletID, fund.WalletID) error) {
	caller, ok := callerWallet(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "caller identity missing")
		return
	}
	fundID := chi.URLParam(r, "fundID")
	wallet := fund.WalletID(chi.URLParam(r, "wallet"))
	if err := action(fundID, caller, wallet); err != nil {
		s.writeEngineError(w, err)
		return
	}
	member, err := s.engine.MemberByWallet(fundID, wallet)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.memberView(member))
}

type auditView struct {
	ID         uint64            `json:"id"`
	EventID    string            `json:"event_id"`
	Type       string            `json:"type"`
	FundID     string            `json:"fund_id"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  string            `json:"created_at"`
}

// ListAudit returns the newest audit events for the fund.
func (s *Server) ListAudit(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	records, err := s.store.AuditByFund(chi.URLParam(r, "fundID"), limit)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	views := lo.Map(records, func(record storage.AuditRecord, _ int) auditView {
		return auditView{
			ID:         record.ID,
			EventID:    record.EventID,
			Type:       record.Type,
			FundID:     record.FundID,
			Attributes: decodeAuditAttributes(s.log, record),
			CreatedAt:  record.CreatedAt.UTC().Format(time.RFC3339),
		}
	})
	writeJSON(w, http.StatusOK, views)
}

// decodeAuditAttributes unpacks a stored attribute blob. A corrupt blob is
// logged and rendered as an empty attribute set rather than hiding the entry.
func decodeAuditAttributes(log *slog.Logger, record storage.AuditRecord) map[string]string {
	if strings.TrimSpace(record.Attributes) == "" {
		return nil
	}
	var attrs map[string]string
	if err := json.Unmarshal([]byte(record.Attributes), &attrs); err != nil {
		log.Warn("audit attributes undecodable", "id", record.ID, "error", err)
		return nil
	}
	return attrs
}

func parseProposalID(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "proposalID")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid proposal id %q", raw)
	}
	return id, nil
}
