package fund

import (
	"errors"
	"math/big"
	"testing"
	"time"
)

func permissionFixtures() (*Fund, *Member, *TradeProposal, time.Time) {
	now := time.Unix(1_700_000_000, 0).UTC()
	f := &Fund{
		ID:                "alpha",
		Authority:         "authority",
		TotalShares:       big.NewInt(100),
		TotalValue:        big.NewInt(100),
		MinContribution:   big.NewInt(0),
		RequiredApprovals: 2,
		ApprovedTraders:   map[WalletID]struct{}{"trader": {}},
		Active:            true,
	}
	member := &Member{
		Wallet: "trader",
		FundID: "alpha",
		Shares: big.NewInt(10),
		Role:   RoleTrader,
		Active: true,
	}
	proposal := &TradeProposal{
		FundID:    "alpha",
		ID:        1,
		Proposer:  "someone-else",
		Status:    ProposalPending,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
	return f, member, proposal, now
}

func TestCanProposeTrade(t *testing.T) {
	f, member, _, _ := permissionFixtures()
	if !CanProposeTrade(f, member) {
		t.Fatalf("expected trader on allow-list to propose")
	}

	manager := member.Clone()
	manager.Wallet = "manager"
	manager.Role = RoleManager
	f.ApprovedTraders["manager"] = struct{}{}
	if !CanProposeTrade(f, manager) {
		t.Fatalf("expected manager on allow-list to propose")
	}

	contributor := member.Clone()
	contributor.Role = RoleContributor
	if CanProposeTrade(f, contributor) {
		t.Fatalf("contributor must not propose")
	}

	unlisted := member.Clone()
	unlisted.Wallet = "unlisted"
	if CanProposeTrade(f, unlisted) {
		t.Fatalf("unlisted trader must not propose")
	}

	inactive := member.Clone()
	inactive.Active = false
	if CanProposeTrade(f, inactive) {
		t.Fatalf("inactive member must not propose")
	}

	f.Active = false
	if CanProposeTrade(f, member) {
		t.Fatalf("no proposals on an inactive fund")
	}
}

// Each failing condition short-circuits in priority order and yields its own
// kind.
func TestCanApprovePriorityOrder(t *testing.T) {
	type tweak func(*Fund, *Member, *TradeProposal)
	cases := []struct {
		name string
		mod  tweak
		want error
	}{
		{"role", func(_ *Fund, m *Member, _ *TradeProposal) { m.Role = RoleContributor }, ErrNotTraderOrManager},
		{"allow-list", func(f *Fund, _ *Member, _ *TradeProposal) { delete(f.ApprovedTraders, "trader") }, ErrNotApprovedTrader},
		{"status", func(_ *Fund, _ *Member, p *TradeProposal) { p.Status = ProposalExecuted }, ErrProposalNotPending},
		{"expiry", func(_ *Fund, _ *Member, p *TradeProposal) { p.ExpiresAt = time.Unix(1_600_000_000, 0) }, ErrProposalExpired},
		{"self", func(_ *Fund, m *Member, p *TradeProposal) { p.Proposer = m.Wallet }, ErrSelfApproval},
		{"duplicate", func(_ *Fund, m *Member, p *TradeProposal) { p.Approvals = []WalletID{m.Wallet} }, ErrAlreadyApproved},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f, member, proposal, now := permissionFixtures()
			tc.mod(f, member, proposal)
			if err := CanApprove(f, member, proposal, now); !errors.Is(err, tc.want) {
				t.Fatalf("want %v, got %v", tc.want, err)
			}
		})
	}

	// A role failure masks later failures: contributor approving own expired
	// proposal still reports the role.
	f, member, proposal, now := permissionFixtures()
	member.Role = RoleContributor
	proposal.Proposer = member.Wallet
	proposal.ExpiresAt = now.Add(-time.Minute)
	if err := CanApprove(f, member, proposal, now); !errors.Is(err, ErrNotTraderOrManager) {
		t.Fatalf("expected role failure to win, got %v", err)
	}
}

func TestCanApproveHappyPath(t *testing.T) {
	f, member, proposal, now := permissionFixtures()
	if err := CanApprove(f, member, proposal, now); err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
}

func TestCanAdminister(t *testing.T) {
	f, _, _, _ := permissionFixtures()
	if !CanAdminister(f, "authority") {
		t.Fatalf("authority must administer")
	}
	if CanAdminister(f, "trader") {
		t.Fatalf("non-authority must not administer")
	}
	if CanAdminister(nil, "authority") {
		t.Fatalf("nil fund must not be administrable")
	}
}
