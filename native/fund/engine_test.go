package fund

import (
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"
)

type memState struct {
	funds     map[string]*Fund
	members   map[string]*Member
	proposals map[string]*TradeProposal
	putErr    error
}

func newMemState() *memState {
	return &memState{
		funds:     make(map[string]*Fund),
		members:   make(map[string]*Member),
		proposals: make(map[string]*TradeProposal),
	}
}

func memberKey(fundID string, wallet WalletID) string {
	return fundID + "/" + string(wallet)
}

func proposalKey(fundID string, id uint64) string {
	return fmt.Sprintf("%s/%d", fundID, id)
}

func (m *memState) FundGet(id string) (*Fund, bool, error) {
	record, ok := m.funds[id]
	if !ok {
		return nil, false, nil
	}
	return record.Clone(), true, nil
}

func (m *memState) FundPut(f *Fund) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.funds[f.ID] = f.Clone()
	return nil
}

func (m *memState) MemberGet(fundID string, wallet WalletID) (*Member, bool, error) {
	record, ok := m.members[memberKey(fundID, wallet)]
	if !ok {
		return nil, false, nil
	}
	return record.Clone(), true, nil
}

func (m *memState) MemberPut(member *Member) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.members[memberKey(member.FundID, member.Wallet)] = member.Clone()
	return nil
}

func (m *memState) ProposalGet(fundID string, id uint64) (*TradeProposal, bool, error) {
	record, ok := m.proposals[proposalKey(fundID, id)]
	if !ok {
		return nil, false, nil
	}
	return record.Clone(), true, nil
}

func (m *memState) ProposalPut(p *TradeProposal) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.proposals[proposalKey(p.FundID, p.ID)] = p.Clone()
	return nil
}

func (m *memState) ProposalsOpen(fundID string) ([]*TradeProposal, error) {
	var open []*TradeProposal
	for _, p := range m.proposals {
		if p.FundID != fundID {
			continue
		}
		if p.Status == ProposalPending || p.Status == ProposalApproved {
			open = append(open, p.Clone())
		}
	}
	return open, nil
}

type captureEmitter struct {
	events []Event
}

func (c *captureEmitter) Emit(evt Event) { c.events = append(c.events, evt) }

func seedFund(state *memState, id string, feeBps uint16, required uint8) *Fund {
	f := &Fund{
		ID:                id,
		Authority:         "authority",
		TotalShares:       big.NewInt(0),
		TotalValue:        big.NewInt(0),
		MinContribution:   big.NewInt(0),
		TradingFeeBps:     feeBps,
		RequiredApprovals: required,
		ApprovedTraders:   map[WalletID]struct{}{},
		Active:            true,
	}
	state.funds[id] = f
	return f
}

func seedMember(state *memState, fundID string, wallet WalletID, role Role) *Member {
	m := &Member{
		Wallet:           wallet,
		FundID:           fundID,
		Shares:           big.NewInt(0),
		TotalContributed: big.NewInt(0),
		Role:             role,
		Active:           true,
	}
	state.members[memberKey(fundID, wallet)] = m
	return m
}

func newTestEngine(state *memState) *Engine {
	engine := NewEngine()
	engine.SetState(state)
	engine.SetNowFunc(func() time.Time { return time.Unix(1_700_000_000, 0).UTC() })
	return engine
}

func TestLockContention(t *testing.T) {
	state := newMemState()
	seedFund(state, "alpha", 0, 1)
	engine := newTestEngine(state)
	engine.SetLockWait(10 * time.Millisecond)

	unlock, err := engine.lockFund("alpha")
	if err != nil {
		t.Fatalf("first acquisition: %v", err)
	}
	defer unlock()

	if _, err := engine.Contribute("alpha", "carol", big.NewInt(100)); !errors.Is(err, ErrContended) {
		t.Fatalf("expected ErrContended, got %v", err)
	}

	// Independent funds are unaffected by the held lock.
	seedFund(state, "beta", 0, 1)
	if _, err := engine.Contribute("beta", "carol", big.NewInt(100)); err != nil {
		t.Fatalf("independent fund blocked: %v", err)
	}
}

func TestPersistenceFailureWrapped(t *testing.T) {
	state := newMemState()
	seedFund(state, "alpha", 0, 1)
	engine := newTestEngine(state)

	state.putErr = errors.New("disk full")
	_, err := engine.Contribute("alpha", "carol", big.NewInt(100))
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if _, ok := state.members[memberKey("alpha", "carol")]; ok {
		t.Fatalf("member must not be created on persistence failure")
	}
}

func TestUnknownFundRejected(t *testing.T) {
	engine := newTestEngine(newMemState())
	if _, err := engine.Contribute("ghost", "carol", big.NewInt(100)); !errors.Is(err, ErrFundNotFound) {
		t.Fatalf("expected ErrFundNotFound, got %v", err)
	}
}
