package storage

import (
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fundvault/native/fund"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestFundRoundTrip(t *testing.T) {
	store := openTestStore(t)

	original := &fund.Fund{
		ID:                "alpha",
		Authority:         "authority",
		TotalShares:       big.NewInt(150),
		TotalValue:        big.NewInt(180),
		MinContribution:   big.NewInt(10),
		TradingFeeBps:     250,
		RequiredApprovals: 2,
		ApprovedTraders: map[fund.WalletID]struct{}{
			"trader-a": {},
			"trader-b": {},
		},
		Active:         true,
		NextProposalID: 3,
	}
	require.NoError(t, store.FundPut(original))

	loaded, ok, err := store.FundGet("alpha")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, original.ID, loaded.ID)
	require.Equal(t, original.Authority, loaded.Authority)
	require.Equal(t, 0, loaded.TotalShares.Cmp(original.TotalShares))
	require.Equal(t, 0, loaded.TotalValue.Cmp(original.TotalValue))
	require.Equal(t, 0, loaded.MinContribution.Cmp(original.MinContribution))
	require.Equal(t, original.TradingFeeBps, loaded.TradingFeeBps)
	require.Equal(t, original.RequiredApprovals, loaded.RequiredApprovals)
	require.Equal(t, original.ApprovedTraders, loaded.ApprovedTraders)
	require.True(t, loaded.Active)
	require.Equal(t, uint64(3), loaded.NextProposalID)

	_, ok, err = store.FundGet("missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemberRoundTrip(t *testing.T) {
	store := openTestStore(t)

	original := &fund.Member{
		Wallet:           "alice",
		FundID:           "alpha",
		Shares:           big.NewInt(100),
		TotalContributed: big.NewInt(120),
		Role:             fund.RoleTrader,
		Active:           true,
		SuccessfulTrades: 4,
		FailedTrades:     1,
		ReputationScore:  3,
	}
	require.NoError(t, store.MemberPut(original))

	loaded, ok, err := store.MemberGet("alpha", "alice")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, original.Wallet, loaded.Wallet)
	require.Equal(t, 0, loaded.Shares.Cmp(original.Shares))
	require.Equal(t, 0, loaded.TotalContributed.Cmp(original.TotalContributed))
	require.Equal(t, fund.RoleTrader, loaded.Role)
	require.Equal(t, uint32(4), loaded.SuccessfulTrades)
	require.Equal(t, uint32(1), loaded.FailedTrades)
	require.Equal(t, int32(3), loaded.ReputationScore)

	_, ok, err = store.MemberGet("alpha", "nobody")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestProposalRoundTripAndOpenFilter(t *testing.T) {
	store := openTestStore(t)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	statuses := []fund.ProposalStatus{
		fund.ProposalPending,
		fund.ProposalApproved,
		fund.ProposalExecuted,
		fund.ProposalExpired,
	}
	for i, status := range statuses {
		require.NoError(t, store.ProposalPut(&fund.TradeProposal{
			FundID:     "alpha",
			ID:         uint64(i),
			Proposer:   "trader",
			FromToken:  "ATOK",
			ToToken:    "BTOK",
			Amount:     big.NewInt(1000),
			MinimumOut: big.NewInt(950),
			Status:     status,
			Approvals:  []fund.WalletID{"approver-a"},
			CreatedAt:  now,
			ExpiresAt:  now.Add(24 * time.Hour),
		}))
	}

	loaded, ok, err := store.ProposalGet("alpha", 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, fund.ProposalApproved, loaded.Status)
	require.Equal(t, []fund.WalletID{"approver-a"}, loaded.Approvals)
	require.True(t, loaded.CreatedAt.Equal(now))
	require.True(t, loaded.ExpiresAt.Equal(now.Add(24*time.Hour)))

	open, err := store.ProposalsOpen("alpha")
	require.NoError(t, err)
	require.Len(t, open, 2)
	require.Equal(t, uint64(0), open[0].ID)
	require.Equal(t, uint64(1), open[1].ID)

	all, err := store.ProposalsByFund("alpha", 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	require.Equal(t, uint64(3), all[0].ID)
}

func TestTransactionRollback(t *testing.T) {
	store := openTestStore(t)

	injected := fmt.Errorf("boom")
	err := store.InTransaction(func(state fund.State) error {
		require.NoError(t, state.FundPut(&fund.Fund{
			ID:              "alpha",
			Authority:       "authority",
			TotalShares:     big.NewInt(0),
			TotalValue:      big.NewInt(0),
			MinContribution: big.NewInt(0),
			Active:          true,
		}))
		return injected
	})
	require.ErrorIs(t, err, injected)

	_, ok, err := store.FundGet("alpha")
	require.NoError(t, err)
	require.False(t, ok, "rolled-back write must not be visible")
}

func TestEngineOverSQLite(t *testing.T) {
	store := openTestStore(t)

	engine := fund.NewEngine()
	engine.SetState(store)

	_, err := engine.CreateFund(fund.FundConfig{
		ID:                "alpha",
		Authority:         "authority",
		TradingFeeBps:     1000,
		RequiredApprovals: 1,
	})
	require.NoError(t, err)

	receipt, err := engine.Contribute("alpha", "alice", big.NewInt(100))
	require.NoError(t, err)
	require.Equal(t, 0, receipt.MintedShares.Cmp(big.NewInt(100)))

	quote, err := engine.Quote("alpha", "alice")
	require.NoError(t, err)
	require.Equal(t, 0, quote.CurrentValue.Cmp(big.NewInt(100)))

	ids, err := store.ListFundIDs()
	require.NoError(t, err)
	require.Equal(t, []string{"alpha"}, ids)
}

func TestAuditTrail(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.AppendAudit(fund.Event{
		Type:       fund.EventTypeFundCreated,
		FundID:     "alpha",
		Attributes: map[string]string{"authority": "authority"},
	}))
	require.NoError(t, store.AppendAudit(fund.Event{
		Type:   fund.EventTypeFundPaused,
		FundID: "alpha",
	}))

	records, err := store.AuditByFund("alpha", 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, fund.EventTypeFundPaused, records[0].Type)
	require.Equal(t, fund.EventTypeFundCreated, records[1].Type)
	require.NotEmpty(t, records[0].EventID)
	require.NotEqual(t, records[0].EventID, records[1].EventID)
}

func TestFileDSN(t *testing.T) {
	dsn, err := FileDSN("/var/data/fundd.sqlite")
	require.NoError(t, err)
	require.Contains(t, dsn, "file:/var/data/fundd.sqlite?")
	require.Contains(t, dsn, "busy_timeout")

	passthrough, err := FileDSN(":memory:")
	require.NoError(t, err)
	require.Equal(t, ":memory:", passthrough)

	_, err = FileDSN("   ")
	require.ErrorIs(t, err, ErrPathRequired)
}
