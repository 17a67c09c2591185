package fund

import (
	"math/big"
	"testing"
)

func distributionFixtures() (*Fund, *Member) {
	f := &Fund{
		ID:              "alpha",
		TotalShares:     big.NewInt(150),
		TotalValue:      big.NewInt(180),
		MinContribution: big.NewInt(0),
		TradingFeeBps:   1000,
		ApprovedTraders: map[WalletID]struct{}{},
		Active:          true,
	}
	member := &Member{
		Wallet:           "alice",
		FundID:           "alpha",
		Shares:           big.NewInt(100),
		TotalContributed: big.NewInt(100),
		Role:             RoleContributor,
		Active:           true,
	}
	return f, member
}

func TestQuoteMatchesRedemptionMath(t *testing.T) {
	f, member := distributionFixtures()
	quote := QuotePosition(f, member)

	if quote.CurrentValue.Cmp(big.NewInt(120)) != 0 {
		t.Fatalf("unexpected value: %s", quote.CurrentValue)
	}
	if quote.ProfitOrLoss.Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("unexpected pnl: %s", quote.ProfitOrLoss)
	}
	if quote.Fee.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("unexpected fee: %s", quote.Fee)
	}
	if quote.Payout.Cmp(big.NewInt(118)) != 0 {
		t.Fatalf("unexpected payout: %s", quote.Payout)
	}
	if quote.Status != RedemptionProfit {
		t.Fatalf("unexpected status: %s", quote.Status)
	}
	if quote.ClaimableGross.Cmp(big.NewInt(20)) != 0 || quote.ClaimableNet.Cmp(big.NewInt(18)) != 0 {
		t.Fatalf("unexpected claimables: %s/%s", quote.ClaimableGross, quote.ClaimableNet)
	}

	// The committed redemption pays exactly the quoted amounts.
	state := newMemState()
	state.funds["alpha"] = f
	state.members[memberKey("alpha", "alice")] = member
	engine := newTestEngine(state)
	receipt, err := engine.RedeemFull("alpha", "alice")
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if receipt.Payout.Cmp(quote.Payout) != 0 || receipt.Fee.Cmp(quote.Fee) != 0 {
		t.Fatalf("quote/commit divergence: quoted %s/%s, paid %s/%s",
			quote.Payout, quote.Fee, receipt.Payout, receipt.Fee)
	}
}

func TestQuoteIsIdempotent(t *testing.T) {
	f, member := distributionFixtures()
	first := QuotePosition(f, member)
	second := QuotePosition(f, member)

	if first.CurrentValue.Cmp(second.CurrentValue) != 0 ||
		first.ProfitOrLoss.Cmp(second.ProfitOrLoss) != 0 ||
		first.Fee.Cmp(second.Fee) != 0 ||
		first.Payout.Cmp(second.Payout) != 0 {
		t.Fatalf("quotes diverged without mutation")
	}
	if f.TotalValue.Cmp(big.NewInt(180)) != 0 || member.Shares.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("quoting must not mutate records")
	}
}

func TestQuoteLossPosition(t *testing.T) {
	f, member := distributionFixtures()
	f.TotalValue = big.NewInt(120)

	quote := QuotePosition(f, member)
	if quote.CurrentValue.Cmp(big.NewInt(80)) != 0 {
		t.Fatalf("unexpected value: %s", quote.CurrentValue)
	}
	if quote.ProfitOrLoss.Cmp(big.NewInt(-20)) != 0 {
		t.Fatalf("unexpected pnl: %s", quote.ProfitOrLoss)
	}
	if quote.Fee.Sign() != 0 {
		t.Fatalf("loss position must quote zero fee: %s", quote.Fee)
	}
	if quote.Status != RedemptionLoss {
		t.Fatalf("unexpected status: %s", quote.Status)
	}
	if quote.ClaimableGross.Sign() != 0 {
		t.Fatalf("loss position has no claimable profit")
	}
}

func TestSharePercent(t *testing.T) {
	f, member := distributionFixtures()
	got := SharePercent(f, member)
	want := 100.0 / 150.0 * 100
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("unexpected percent: %f", got)
	}

	member.Shares = big.NewInt(0)
	if SharePercent(f, member) != 0 {
		t.Fatalf("zero shares must be zero percent")
	}
}

func TestQuoteZeroShares(t *testing.T) {
	f, member := distributionFixtures()
	member.Shares = big.NewInt(0)
	member.TotalContributed = big.NewInt(0)

	quote := QuotePosition(f, member)
	if quote.CurrentValue.Sign() != 0 || quote.Payout.Sign() != 0 || quote.SharePercent != 0 {
		t.Fatalf("zero-share quote must be empty: %+v", quote)
	}
}
