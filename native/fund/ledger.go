package fund

import (
	"fmt"
	"math/big"
)

// Contribute adds value to the fund and mints shares for the wallet. The first
// contribution bootstraps the ledger at one share per value unit; later mints
// use floor(amount * totalShares / totalValue) with full-width intermediate
// math so rounding always favours the fund, never the contributor. A member
// record is created on first contribution.
func (e *Engine) Contribute(fundID string, wallet WalletID, amount *big.Int) (*ContributionReceipt, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	unlock, err := e.lockFund(fundID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var receipt *ContributionReceipt
	err = e.withState(func(state State) error {
		fund, err := loadFund(state, fundID)
		if err != nil {
			return err
		}
		if !fund.Active {
			return ErrFundInactive
		}
		if amount.Cmp(fund.MinContribution) < 0 {
			return fmt.Errorf("%w: need at least %s", ErrBelowMinimum, fund.MinContribution)
		}

		member, ok, err := state.MemberGet(fundID, wallet)
		if err != nil {
			return wrapPersistence(err)
		}
		if !ok || member == nil {
			member = &Member{
				Wallet: wallet,
				FundID: fundID,
				Role:   RoleContributor,
				Active: true,
			}
		}
		member, err = SanitizeMember(member)
		if err != nil {
			return err
		}
		if !member.Active {
			return ErrMemberInactive
		}

		minted := mintShares(fund, amount)
		fund.TotalValue = new(big.Int).Add(fund.TotalValue, amount)
		fund.TotalShares = new(big.Int).Add(fund.TotalShares, minted)
		member.Shares = new(big.Int).Add(member.Shares, minted)
		member.TotalContributed = new(big.Int).Add(member.TotalContributed, amount)

		if err := state.FundPut(fund); err != nil {
			return wrapPersistence(err)
		}
		if err := state.MemberPut(member); err != nil {
			return wrapPersistence(err)
		}
		receipt = &ContributionReceipt{
			FundID:       fundID,
			Wallet:       wallet,
			Amount:       new(big.Int).Set(amount),
			MintedShares: minted,
			TotalShares:  new(big.Int).Set(fund.TotalShares),
			TotalValue:   new(big.Int).Set(fund.TotalValue),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.emit(newContributionEvent(receipt))
	return receipt, nil
}

// RedeemFull burns all of the member's shares and pays out their proportional
// slice of the pool. The trading fee applies to realised profit only; losses
// and principal are never charged. TotalContributed is left untouched as the
// historical cost basis once shares reach zero.
func (e *Engine) RedeemFull(fundID string, wallet WalletID) (*RedemptionReceipt, error) {
	unlock, err := e.lockFund(fundID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var receipt *RedemptionReceipt
	err = e.withState(func(state State) error {
		fund, err := loadFund(state, fundID)
		if err != nil {
			return err
		}
		member, err := loadMember(state, fundID, wallet)
		if err != nil {
			return err
		}
		if member.Shares.Sign() == 0 {
			return ErrNoShares
		}
		if fund.TotalShares.Sign() == 0 {
			return ErrFundEmpty
		}

		currentValue := proRataValue(member.Shares, fund.TotalValue, fund.TotalShares)
		profitOrLoss := new(big.Int).Sub(currentValue, member.TotalContributed)
		fee := profitFee(profitOrLoss, fund.TradingFeeBps)
		payout := new(big.Int).Sub(currentValue, fee)

		fund.TotalValue = new(big.Int).Sub(fund.TotalValue, currentValue)
		fund.TotalShares = new(big.Int).Sub(fund.TotalShares, member.Shares)
		member.Shares = big.NewInt(0)

		if err := state.FundPut(fund); err != nil {
			return wrapPersistence(err)
		}
		if err := state.MemberPut(member); err != nil {
			return wrapPersistence(err)
		}
		receipt = &RedemptionReceipt{
			FundID:       fundID,
			Wallet:       wallet,
			CurrentValue: currentValue,
			ProfitOrLoss: profitOrLoss,
			Fee:          fee,
			Payout:       payout,
			Status:       redemptionStatus(profitOrLoss),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.emit(newRedemptionEvent(receipt))
	return receipt, nil
}

// RedeemProfitOnly pays out the member's accrued profit while leaving their
// shares in place. The gross profit leaves the pool entirely: the net goes to
// the member and the fee is retained outside the pooled value. The cost basis
// advances to the member's value immediately after the claim so the same
// profit cannot be claimed twice. A zero-profit claim is a no-op.
func (e *Engine) RedeemProfitOnly(fundID string, wallet WalletID) (*ProfitClaimReceipt, error) {
	unlock, err := e.lockFund(fundID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var receipt *ProfitClaimReceipt
	err = e.withState(func(state State) error {
		fund, err := loadFund(state, fundID)
		if err != nil {
			return err
		}
		member, err := loadMember(state, fundID, wallet)
		if err != nil {
			return err
		}
		if member.Shares.Sign() == 0 {
			return ErrNoShares
		}
		if fund.TotalShares.Sign() == 0 {
			return ErrFundEmpty
		}

		currentValue := proRataValue(member.Shares, fund.TotalValue, fund.TotalShares)
		grossProfit := new(big.Int).Sub(currentValue, member.TotalContributed)
		if grossProfit.Sign() <= 0 {
			receipt = &ProfitClaimReceipt{
				FundID:      fundID,
				Wallet:      wallet,
				GrossProfit: big.NewInt(0),
				Fee:         big.NewInt(0),
				NetProfit:   big.NewInt(0),
			}
			return nil
		}
		fee := profitFee(grossProfit, fund.TradingFeeBps)
		netProfit := new(big.Int).Sub(grossProfit, fee)

		fund.TotalValue = new(big.Int).Sub(fund.TotalValue, grossProfit)
		member.TotalContributed = new(big.Int).Sub(currentValue, grossProfit)

		if err := state.FundPut(fund); err != nil {
			return wrapPersistence(err)
		}
		if err := state.MemberPut(member); err != nil {
			return wrapPersistence(err)
		}
		receipt = &ProfitClaimReceipt{
			FundID:      fundID,
			Wallet:      wallet,
			GrossProfit: grossProfit,
			Fee:         fee,
			NetProfit:   netProfit,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if receipt.GrossProfit.Sign() > 0 {
		e.emit(newProfitClaimEvent(receipt))
	}
	return receipt, nil
}

// mintShares computes the share mint for a contribution. Callers must hold the
// fund lock.
func mintShares(fund *Fund, amount *big.Int) *big.Int {
	if fund.TotalShares.Sign() == 0 {
		return new(big.Int).Set(amount)
	}
	minted := new(big.Int).Mul(amount, fund.TotalShares)
	return minted.Div(minted, fund.TotalValue)
}

// proRataValue computes floor(shares * totalValue / totalShares).
func proRataValue(shares, totalValue, totalShares *big.Int) *big.Int {
	value := new(big.Int).Mul(shares, totalValue)
	return value.Div(value, totalShares)
}

// profitFee computes floor(profit * feeBps / 10000) for positive profit and
// zero otherwise.
func profitFee(profit *big.Int, feeBps uint16) *big.Int {
	if profit == nil || profit.Sign() <= 0 {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(profit, big.NewInt(int64(feeBps)))
	return fee.Div(fee, big.NewInt(10_000))
}

func redemptionStatus(profitOrLoss *big.Int) RedemptionStatus {
	switch profitOrLoss.Sign() {
	case 1:
		return RedemptionProfit
	case -1:
		return RedemptionLoss
	default:
		return RedemptionBreakEven
	}
}
