package fund

import "math/big"

// Quote is a read-only projection of a member's position. The integer fields
// use exactly the same formulas and rounding as the mutating ledger paths, so
// a quote followed by a commit pays out precisely the quoted amounts as long
// as no other operation touched the fund in between.
type Quote struct {
	FundID         string
	Wallet         WalletID
	Shares         *big.Int
	TotalShares    *big.Int
	SharePercent   float64
	CurrentValue   *big.Int
	ProfitOrLoss   *big.Int
	Fee            *big.Int
	Payout         *big.Int
	Status         RedemptionStatus
	ClaimableNet   *big.Int
	ClaimableFee   *big.Int
	ClaimableGross *big.Int
}

// QuotePosition projects the member's current value, profit/loss, fee, and
// payout without mutating state. Pure arithmetic over the two records.
func QuotePosition(fund *Fund, member *Member) *Quote {
	quote := &Quote{
		FundID:         fund.ID,
		Wallet:         member.Wallet,
		Shares:         new(big.Int).Set(member.Shares),
		TotalShares:    new(big.Int).Set(fund.TotalShares),
		SharePercent:   SharePercent(fund, member),
		CurrentValue:   big.NewInt(0),
		ProfitOrLoss:   big.NewInt(0),
		Fee:            big.NewInt(0),
		Payout:         big.NewInt(0),
		Status:         RedemptionBreakEven,
		ClaimableNet:   big.NewInt(0),
		ClaimableFee:   big.NewInt(0),
		ClaimableGross: big.NewInt(0),
	}
	if member.Shares.Sign() == 0 || fund.TotalShares.Sign() == 0 {
		quote.ProfitOrLoss = new(big.Int).Neg(member.TotalContributed)
		if member.TotalContributed.Sign() == 0 {
			quote.ProfitOrLoss = big.NewInt(0)
		}
		return quote
	}

	quote.CurrentValue = proRataValue(member.Shares, fund.TotalValue, fund.TotalShares)
	quote.ProfitOrLoss = new(big.Int).Sub(quote.CurrentValue, member.TotalContributed)
	quote.Fee = profitFee(quote.ProfitOrLoss, fund.TradingFeeBps)
	quote.Payout = new(big.Int).Sub(quote.CurrentValue, quote.Fee)
	quote.Status = redemptionStatus(quote.ProfitOrLoss)

	if quote.ProfitOrLoss.Sign() > 0 {
		quote.ClaimableGross = new(big.Int).Set(quote.ProfitOrLoss)
		quote.ClaimableFee = new(big.Int).Set(quote.Fee)
		quote.ClaimableNet = new(big.Int).Sub(quote.ClaimableGross, quote.ClaimableFee)
	}
	return quote
}

// SharePercent renders the member's ownership fraction as a percentage. Float
// output is for display only; all committed math stays in integers.
func SharePercent(fund *Fund, member *Member) float64 {
	if member.Shares.Sign() == 0 || fund.TotalShares.Sign() == 0 {
		return 0
	}
	shares := new(big.Float).SetInt(member.Shares)
	total := new(big.Float).SetInt(fund.TotalShares)
	ratio, _ := new(big.Float).Quo(shares, total).Float64()
	return ratio * 100
}

// Quote loads the fund and member records and projects the member's position.
// Runs outside the fund lock: quotes are advisory and any commit re-validates
// under the lock.
func (e *Engine) Quote(fundID string, wallet WalletID) (*Quote, error) {
	if e == nil || e.state == nil {
		return nil, errStateNotConfigured
	}
	fund, err := loadFund(e.state, fundID)
	if err != nil {
		return nil, err
	}
	member, err := loadMember(e.state, fundID, wallet)
	if err != nil {
		return nil, err
	}
	return QuotePosition(fund, member), nil
}
