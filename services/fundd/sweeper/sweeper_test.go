package sweeper

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fundvault/native/fund"
	"fundvault/services/fundd/storage"
)

func TestSweepExpiresStaleProposals(t *testing.T) {
	store, err := storage.OpenMemory()
	require.NoError(t, err)
	defer store.Close()

	now := time.Unix(1_700_000_000, 0).UTC()
	engine := fund.NewEngine()
	engine.SetState(store)
	engine.SetNowFunc(func() time.Time { return now })
	engine.SetProposalTTL(time.Hour)

	_, err = engine.CreateFund(fund.FundConfig{
		ID:                "alpha",
		Authority:         "authority",
		RequiredApprovals: 1,
	})
	require.NoError(t, err)
	_, err = engine.AddMember("alpha", "authority", "trader", fund.RoleTrader)
	require.NoError(t, err)
	require.NoError(t, engine.AllowTrader("alpha", "authority", "trader"))
	_, err = engine.Contribute("alpha", "authority", big.NewInt(1000))
	require.NoError(t, err)

	stale, err := engine.ProposeTrade("alpha", "trader", "ATOK", "BTOK", big.NewInt(100), nil)
	require.NoError(t, err)

	now = now.Add(30 * time.Minute)
	fresh, err := engine.ProposeTrade("alpha", "trader", "ATOK", "BTOK", big.NewInt(100), nil)
	require.NoError(t, err)

	now = now.Add(45 * time.Minute)
	sw := New(engine, store, nil)
	sw.Sweep()

	swept, _, err := store.ProposalGet("alpha", stale.ID)
	require.NoError(t, err)
	require.Equal(t, fund.ProposalExpired, swept.Status)

	kept, _, err := store.ProposalGet("alpha", fresh.ID)
	require.NoError(t, err)
	require.Equal(t, fund.ProposalPending, kept.Status)
}

func TestSweepSurvivesListFailure(t *testing.T) {
	engine := fund.NewEngine()
	sw := New(engine, failingLister{}, nil)
	sw.Sweep()
}

type failingLister struct{}

func (failingLister) ListFundIDs() ([]string, error) {
	return nil, errors.New("list failed")
}
