package fund

import (
	"errors"
	"math/big"
	"testing"
)

func TestCreateFund(t *testing.T) {
	state := newMemState()
	engine := newTestEngine(state)

	created, err := engine.CreateFund(FundConfig{
		ID:                "alpha",
		Authority:         "authority",
		MinContribution:   big.NewInt(10),
		TradingFeeBps:     250,
		RequiredApprovals: 2,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !created.Active || created.TotalShares.Sign() != 0 || created.TotalValue.Sign() != 0 {
		t.Fatalf("unexpected initial fund: %+v", created)
	}

	manager := state.members[memberKey("alpha", "authority")]
	if manager == nil || manager.Role != RoleManager {
		t.Fatalf("authority must be seeded as manager")
	}

	if _, err := engine.CreateFund(FundConfig{ID: "alpha", Authority: "authority", RequiredApprovals: 1}); err == nil {
		t.Fatalf("duplicate fund id must be rejected")
	}
	if _, err := engine.CreateFund(FundConfig{ID: "beta", Authority: "authority", RequiredApprovals: 0}); err == nil {
		t.Fatalf("zero quorum must be rejected")
	}
	if _, err := engine.CreateFund(FundConfig{ID: "gamma", Authority: "authority", RequiredApprovals: 1, TradingFeeBps: 10_001}); err == nil {
		t.Fatalf("fee above 10000 bps must be rejected")
	}
}

func TestPauseResumeGating(t *testing.T) {
	state := newMemState()
	seedFund(state, "alpha", 0, 1)
	engine := newTestEngine(state)

	if err := engine.Pause("alpha", "stranger"); !errors.Is(err, ErrNotAuthority) {
		t.Fatalf("stranger pause: %v", err)
	}
	if err := engine.Pause("alpha", "authority"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if state.funds["alpha"].Active {
		t.Fatalf("fund should be paused")
	}
	if _, err := engine.Contribute("alpha", "alice", big.NewInt(100)); !errors.Is(err, ErrFundInactive) {
		t.Fatalf("contribute while paused: %v", err)
	}
	if err := engine.Resume("alpha", "authority"); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if _, err := engine.Contribute("alpha", "alice", big.NewInt(100)); err != nil {
		t.Fatalf("contribute after resume: %v", err)
	}
}

func TestCloseFundRequiresEmptyPool(t *testing.T) {
	state := newMemState()
	seedFund(state, "alpha", 0, 1)
	engine := newTestEngine(state)

	if _, err := engine.Contribute("alpha", "alice", big.NewInt(100)); err != nil {
		t.Fatalf("contribute: %v", err)
	}
	if err := engine.CloseFund("alpha", "authority"); err == nil {
		t.Fatalf("close with outstanding shares must fail")
	}
	if _, err := engine.RedeemFull("alpha", "alice"); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if err := engine.CloseFund("alpha", "authority"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if state.funds["alpha"].Active {
		t.Fatalf("closed fund should be inactive")
	}
}

func TestAllowListEdits(t *testing.T) {
	state := newMemState()
	seedFund(state, "alpha", 0, 1)
	seedMember(state, "alpha", "trader", RoleTrader)
	engine := newTestEngine(state)

	if err := engine.AllowTrader("alpha", "trader", "trader"); !errors.Is(err, ErrNotAuthority) {
		t.Fatalf("non-authority edit: %v", err)
	}
	if err := engine.AllowTrader("alpha", "authority", "trader"); err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !state.funds["alpha"].TraderApproved("trader") {
		t.Fatalf("trader not on allow-list")
	}
	if err := engine.RevokeTrader("alpha", "authority", "trader"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if state.funds["alpha"].TraderApproved("trader") {
		t.Fatalf("trader still on allow-list")
	}
}

func TestMemberAdministration(t *testing.T) {
	state := newMemState()
	seedFund(state, "alpha", 0, 1)
	engine := newTestEngine(state)

	member, err := engine.AddMember("alpha", "authority", "carol", RoleTrader)
	if err != nil {
		t.Fatalf("add member: %v", err)
	}
	if member.Role != RoleTrader || !member.Active {
		t.Fatalf("unexpected member: %+v", member)
	}
	if _, err := engine.AddMember("alpha", "authority", "carol", RoleTrader); err == nil {
		t.Fatalf("duplicate member must be rejected")
	}

	if err := engine.SetMemberRole("alpha", "authority", "carol", RoleManager); err != nil {
		t.Fatalf("set role: %v", err)
	}
	if state.members[memberKey("alpha", "carol")].Role != RoleManager {
		t.Fatalf("role not updated")
	}

	if err := engine.DeactivateMember("alpha", "authority", "carol"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	stored := state.members[memberKey("alpha", "carol")]
	if stored.Active {
		t.Fatalf("member should be inactive")
	}
	if stored == nil || stored.Wallet != "carol" {
		t.Fatalf("deactivation must not delete the record")
	}

	if err := engine.ReactivateMember("alpha", "authority", "carol"); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	if !state.members[memberKey("alpha", "carol")].Active {
		t.Fatalf("member should be active again")
	}
}
