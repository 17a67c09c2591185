package fund

import (
	"fmt"
	"math/big"
	"strings"
)

// FundConfig carries the parameters for fund initialisation.
type FundConfig struct {
	ID                string
	Authority         WalletID
	MinContribution   *big.Int
	TradingFeeBps     uint16
	RequiredApprovals uint8
}

// CreateFund initialises an empty active fund. The authority wallet becomes a
// manager member so it can participate without a separate registration step.
func (e *Engine) CreateFund(cfg FundConfig) (*Fund, error) {
	id := strings.TrimSpace(cfg.ID)
	if id == "" {
		return nil, fmt.Errorf("fund: fund id must not be empty")
	}
	if cfg.Authority == "" {
		return nil, fmt.Errorf("fund: authority wallet must not be empty")
	}
	if cfg.TradingFeeBps > 10_000 {
		return nil, fmt.Errorf("fund: trading fee above 10000 bps")
	}
	if cfg.RequiredApprovals == 0 {
		return nil, fmt.Errorf("fund: required approvals must be at least 1")
	}
	minContribution := big.NewInt(0)
	if cfg.MinContribution != nil {
		if cfg.MinContribution.Sign() < 0 {
			return nil, ErrInvalidAmount
		}
		minContribution = new(big.Int).Set(cfg.MinContribution)
	}

	unlock, err := e.lockFund(id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var created *Fund
	err = e.withState(func(state State) error {
		if _, ok, err := state.FundGet(id); err != nil {
			return wrapPersistence(err)
		} else if ok {
			return fmt.Errorf("fund: fund %s already exists", id)
		}
		created = &Fund{
			ID:                id,
			Authority:         cfg.Authority,
			TotalShares:       big.NewInt(0),
			TotalValue:        big.NewInt(0),
			MinContribution:   minContribution,
			TradingFeeBps:     cfg.TradingFeeBps,
			RequiredApprovals: cfg.RequiredApprovals,
			ApprovedTraders:   map[WalletID]struct{}{},
			Active:            true,
		}
		if err := state.FundPut(created); err != nil {
			return wrapPersistence(err)
		}
		manager := &Member{
			Wallet:           cfg.Authority,
			FundID:           id,
			Shares:           big.NewInt(0),
			TotalContributed: big.NewInt(0),
			Role:             RoleManager,
			Active:           true,
		}
		if err := state.MemberPut(manager); err != nil {
			return wrapPersistence(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.emit(newFundEvent(EventTypeFundCreated, created, e.now()))
	return created.Clone(), nil
}

// Pause suspends new fund activity. Authority only.
func (e *Engine) Pause(fundID string, actor WalletID) error {
	return e.setActive(fundID, actor, false, EventTypeFundPaused)
}

// Resume reactivates a paused fund. Authority only.
func (e *Engine) Resume(fundID string, actor WalletID) error {
	return e.setActive(fundID, actor, true, EventTypeFundResumed)
}

func (e *Engine) setActive(fundID string, actor WalletID, active bool, eventType string) error {
	unlock, err := e.lockFund(fundID)
	if err != nil {
		return err
	}
	defer unlock()

	var fund *Fund
	err = e.withState(func(state State) error {
		var err error
		fund, err = loadFund(state, fundID)
		if err != nil {
			return err
		}
		if !CanAdminister(fund, actor) {
			return ErrNotAuthority
		}
		if fund.Active == active {
			return nil
		}
		fund.Active = active
		if err := state.FundPut(fund); err != nil {
			return wrapPersistence(err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.emit(newFundEvent(eventType, fund, e.now()))
	return nil
}

// CloseFund deactivates a fully drained fund. Rejected while any shares are
// outstanding.
func (e *Engine) CloseFund(fundID string, actor WalletID) error {
	unlock, err := e.lockFund(fundID)
	if err != nil {
		return err
	}
	defer unlock()

	var fund *Fund
	err = e.withState(func(state State) error {
		var err error
		fund, err = loadFund(state, fundID)
		if err != nil {
			return err
		}
		if !CanAdminister(fund, actor) {
			return ErrNotAuthority
		}
		if fund.TotalShares.Sign() != 0 {
			return fmt.Errorf("fund: cannot close fund with outstanding shares")
		}
		fund.Active = false
		if err := state.FundPut(fund); err != nil {
			return wrapPersistence(err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.emit(newFundEvent(EventTypeFundClosed, fund, e.now()))
	return nil
}

// AddMember registers a wallet without a contribution. Authority only.
func (e *Engine) AddMember(fundID string, actor, wallet WalletID, role Role) (*Member, error) {
	unlock, err := e.lockFund(fundID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var member *Member
	err = e.withState(func(state State) error {
		fund, err := loadFund(state, fundID)
		if err != nil {
			return err
		}
		if !CanAdminister(fund, actor) {
			return ErrNotAuthority
		}
		if _, ok, err := state.MemberGet(fundID, wallet); err != nil {
			return wrapPersistence(err)
		} else if ok {
			return fmt.Errorf("fund: member %s already exists", wallet)
		}
		member = &Member{
			Wallet:           wallet,
			FundID:           fundID,
			Shares:           big.NewInt(0),
			TotalContributed: big.NewInt(0),
			Role:             role,
			Active:           true,
		}
		if err := state.MemberPut(member); err != nil {
			return wrapPersistence(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.emit(Event{Type: EventTypeMemberUpdated, FundID: fundID, Attributes: map[string]string{
		"wallet": string(wallet),
		"role":   role.String(),
		"change": "added",
	}})
	return member.Clone(), nil
}

// SetMemberRole changes a member's role. Authority only.
func (e *Engine) SetMemberRole(fundID string, actor, wallet WalletID, role Role) error {
	return e.updateMember(fundID, actor, wallet, "role:"+role.String(), func(m *Member) {
		m.Role = role
	})
}

// DeactivateMember marks a member inactive. Members are never hard-deleted so
// their trade statistics and cost basis remain as history.
func (e *Engine) DeactivateMember(fundID string, actor, wallet WalletID) error {
	return e.updateMember(fundID, actor, wallet, "deactivated", func(m *Member) {
		m.Active = false
	})
}

// ReactivateMember marks a member active again. Authority only.
func (e *Engine) ReactivateMember(fundID string, actor, wallet WalletID) error {
	return e.updateMember(fundID, actor, wallet, "reactivated", func(m *Member) {
		m.Active = true
	})
}

func (e *Engine) updateMember(fundID string, actor, wallet WalletID, change string, apply func(*Member)) error {
	unlock, err := e.lockFund(fundID)
	if err != nil {
		return err
	}
	defer unlock()

	err = e.withState(func(state State) error {
		fund, err := loadFund(state, fundID)
		if err != nil {
			return err
		}
		if !CanAdminister(fund, actor) {
			return ErrNotAuthority
		}
		member, err := loadMember(state, fundID, wallet)
		if err != nil {
			return err
		}
		apply(member)
		if err := state.MemberPut(member); err != nil {
			return wrapPersistence(err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.emit(Event{Type: EventTypeMemberUpdated, FundID: fundID, Attributes: map[string]string{
		"wallet": string(wallet),
		"change": change,
	}})
	return nil
}

// AllowTrader adds a wallet to the fund allow-list. Authority only.
func (e *Engine) AllowTrader(fundID string, actor, wallet WalletID) error {
	return e.editAllowList(fundID, actor, wallet, true)
}

// RevokeTrader removes a wallet from the fund allow-list. Authority only.
func (e *Engine) RevokeTrader(fundID string, actor, wallet WalletID) error {
	return e.editAllowList(fundID, actor, wallet, false)
}

func (e *Engine) editAllowList(fundID string, actor, wallet WalletID, allow bool) error {
	unlock, err := e.lockFund(fundID)
	if err != nil {
		return err
	}
	defer unlock()

	err = e.withState(func(state State) error {
		fund, err := loadFund(state, fundID)
		if err != nil {
			return err
		}
		if !CanAdminister(fund, actor) {
			return ErrNotAuthority
		}
		if allow {
			fund.ApprovedTraders[wallet] = struct{}{}
		} else {
			delete(fund.ApprovedTraders, wallet)
		}
		if err := state.FundPut(fund); err != nil {
			return wrapPersistence(err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	eventType := EventTypeTraderAllowed
	if !allow {
		eventType = EventTypeTraderRevoked
	}
	e.emit(Event{Type: eventType, FundID: fundID, Attributes: map[string]string{
		"wallet": string(wallet),
	}})
	return nil
}

// FundByID returns a sanitised copy of the fund record.
func (e *Engine) FundByID(fundID string) (*Fund, error) {
	if e == nil || e.state == nil {
		return nil, errStateNotConfigured
	}
	return loadFund(e.state, fundID)
}

// MemberByWallet returns a sanitised copy of the member record.
func (e *Engine) MemberByWallet(fundID string, wallet WalletID) (*Member, error) {
	if e == nil || e.state == nil {
		return nil, errStateNotConfigured
	}
	return loadMember(e.state, fundID, wallet)
}
