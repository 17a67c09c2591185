package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"fundvault/native/fund"
)

// Store wraps the fundd persistence layer. It satisfies both fund.State and
// fund.Transactor, so the engine batches each operation's writes into one
// database transaction.
type Store struct {
	db *gorm.DB
}

// Open initialises the backing store. DSNs with a postgres scheme dial
// PostgreSQL; anything else is treated as an on-disk SQLite path.
func Open(dsn string) (*Store, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	var dialector gorm.Dialector
	if strings.HasPrefix(trimmed, "postgres://") || strings.HasPrefix(trimmed, "postgresql://") {
		dialector = postgres.Open(trimmed)
	} else {
		fileDSN, err := FileDSN(trimmed)
		if err != nil {
			return nil, err
		}
		dialector = sqlite.Open(fileDSN)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenMemory initialises an in-memory store, used in tests. The pool is
// capped at one connection so every session sees the same memory database.
func OpenMemory() (*Store, error) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// upsert writes a record keyed by its primary columns. Plain Save mistakes a
// zero-valued key (proposal id 0) for a missing one and always inserts.
func (s *Store) upsert(record any) error {
	return s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(record).Error
}

// InTransaction implements fund.Transactor.
func (s *Store) InTransaction(fn func(fund.State) error) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("storage not configured")
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// FundGet implements fund.State.
func (s *Store) FundGet(id string) (*fund.Fund, bool, error) {
	var record FundRecord
	if err := s.db.First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load fund: %w", err)
	}
	decoded, err := fundFromRecord(record)
	if err != nil {
		return nil, false, err
	}
	return decoded, true, nil
}

// FundPut implements fund.State.
func (s *Store) FundPut(f *fund.Fund) error {
	if f == nil {
		return fmt.Errorf("nil fund")
	}
	record, err := fundToRecord(f)
	if err != nil {
		return err
	}
	if err := s.upsert(&record); err != nil {
		return fmt.Errorf("save fund: %w", err)
	}
	return nil
}

// MemberGet implements fund.State.
func (s *Store) MemberGet(fundID string, wallet fund.WalletID) (*fund.Member, bool, error) {
	var record MemberRecord
	err := s.db.First(&record, "fund_id = ? AND wallet = ?", fundID, string(wallet)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load member: %w", err)
	}
	decoded, err := memberFromRecord(record)
	if err != nil {
		return nil, false, err
	}
	return decoded, true, nil
}

// MemberPut implements fund.State.
func (s *Store) MemberPut(m *fund.Member) error {
	if m == nil {
		return fmt.Errorf("nil member")
	}
	record, err := memberToRecord(m)
	if err != nil {
		return err
	}
	if err := s.upsert(&record); err != nil {
		return fmt.Errorf("save member: %w", err)
	}
	return nil
}

// ProposalGet implements fund.State.
func (s *Store) ProposalGet(fundID string, id uint64) (*fund.TradeProposal, bool, error) {
	var record ProposalRecord
	err := s.db.First(&record, "fund_id = ? AND proposal_id = ?", fundID, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load proposal: %w", err)
	}
	decoded, err := proposalFromRecord(record)
	if err != nil {
		return nil, false, err
	}
	return decoded, true, nil
}

// ProposalPut implements fund.State.
func (s *Store) ProposalPut(p *fund.TradeProposal) error {
	if p == nil {
		return fmt.Errorf("nil proposal")
	}
	record, err := proposalToRecord(p)
	if err != nil {
		return err
	}
	if err := s.upsert(&record); err != nil {
		return fmt.Errorf("save proposal: %w", err)
	}
	return nil
}

// ProposalsOpen implements fund.State.
func (s *Store) ProposalsOpen(fundID string) ([]*fund.TradeProposal, error) {
	var records []ProposalRecord
	err := s.db.
		Where("fund_id = ? AND status IN ?", fundID, []string{
			fund.ProposalPending.String(),
			fund.ProposalApproved.String(),
		}).
		Order("proposal_id ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list open proposals: %w", err)
	}
	proposals := make([]*fund.TradeProposal, 0, len(records))
	for _, record := range records {
		decoded, err := proposalFromRecord(record)
		if err != nil {
			return nil, err
		}
		proposals = append(proposals, decoded)
	}
	return proposals, nil
}

// ProposalsByFund lists every proposal for the fund, newest first.
func (s *Store) ProposalsByFund(fundID string, limit int) ([]*fund.TradeProposal, error) {
	query := s.db.Where("fund_id = ?", fundID).Order("proposal_id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var records []ProposalRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	proposals := make([]*fund.TradeProposal, 0, len(records))
	for _, record := range records {
		decoded, err := proposalFromRecord(record)
		if err != nil {
			return nil, err
		}
		proposals = append(proposals, decoded)
	}
	return proposals, nil
}

// MembersByFund lists the fund roster ordered by wallet.
func (s *Store) MembersByFund(fundID string) ([]*fund.Member, error) {
	var records []MemberRecord
	err := s.db.Where("fund_id = ?", fundID).Order("wallet ASC").Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	members := make([]*fund.Member, 0, len(records))
	for _, record := range records {
		decoded, err := memberFromRecord(record)
		if err != nil {
			return nil, err
		}
		members = append(members, decoded)
	}
	return members, nil
}

// ListFundIDs returns every fund id, used by the expiry sweeper.
func (s *Store) ListFundIDs() ([]string, error) {
	var ids []string
	if err := s.db.Model(&FundRecord{}).Order("id ASC").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list fund ids: %w", err)
	}
	return ids, nil
}

// AppendAudit records an engine event on the audit trail.
func (s *Store) AppendAudit(event fund.Event) error {
	attrs, err := json.Marshal(event.Attributes)
	if err != nil {
		return fmt.Errorf("encode audit attributes: %w", err)
	}
	record := AuditRecord{
		EventID:    uuid.NewString(),
		Type:       event.Type,
		FundID:     event.FundID,
		Attributes: string(attrs),
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.db.Create(&record).Error; err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

// AuditByFund returns the newest audit records for the fund.
func (s *Store) AuditByFund(fundID string, limit int) ([]AuditRecord, error) {
	query := s.db.Where("fund_id = ?", fundID).Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var records []AuditRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	return records, nil
}

func fundToRecord(f *fund.Fund) (FundRecord, error) {
	traders := lo.Map(lo.Keys(f.ApprovedTraders), func(w fund.WalletID, _ int) string {
		return string(w)
	})
	sort.Strings(traders)
	encoded, err := json.Marshal(traders)
	if err != nil {
		return FundRecord{}, fmt.Errorf("encode allow-list: %w", err)
	}
	return FundRecord{
		ID:                f.ID,
		Authority:         string(f.Authority),
		TotalShares:       encodeAmount(f.TotalShares),
		TotalValue:        encodeAmount(f.TotalValue),
		MinContribution:   encodeAmount(f.MinContribution),
		TradingFeeBps:     f.TradingFeeBps,
		RequiredApprovals: f.RequiredApprovals,
		ApprovedTraders:   string(encoded),
		Active:            f.Active,
		NextProposalID:    f.NextProposalID,
	}, nil
}

func fundFromRecord(record FundRecord) (*fund.Fund, error) {
	totalShares, err := decodeAmount(record.TotalShares)
	if err != nil {
		return nil, fmt.Errorf("fund %s shares: %w", record.ID, err)
	}
	totalValue, err := decodeAmount(record.TotalValue)
	if err != nil {
		return nil, fmt.Errorf("fund %s value: %w", record.ID, err)
	}
	minContribution, err := decodeAmount(record.MinContribution)
	if err != nil {
		return nil, fmt.Errorf("fund %s minimum: %w", record.ID, err)
	}
	var traders []string
	if strings.TrimSpace(record.ApprovedTraders) != "" {
		if err := json.Unmarshal([]byte(record.ApprovedTraders), &traders); err != nil {
			return nil, fmt.Errorf("fund %s allow-list: %w", record.ID, err)
		}
	}
	allowList := lo.SliceToMap(traders, func(w string) (fund.WalletID, struct{}) {
		return fund.WalletID(w), struct{}{}
	})
	return &fund.Fund{
		ID:                record.ID,
		Authority:         fund.WalletID(record.Authority),
		TotalShares:       totalShares,
		TotalValue:        totalValue,
		MinContribution:   minContribution,
		TradingFeeBps:     record.TradingFeeBps,
		RequiredApprovals: record.RequiredApprovals,
		ApprovedTraders:   allowList,
		Active:            record.Active,
		NextProposalID:    record.NextProposalID,
	}, nil
}

func memberToRecord(m *fund.Member) (MemberRecord, error) {
	return MemberRecord{
		FundID:           m.FundID,
		Wallet:           string(m.Wallet),
		Shares:           encodeAmount(m.Shares),
		TotalContributed: encodeAmount(m.TotalContributed),
		Role:             m.Role.String(),
		Active:           m.Active,
		SuccessfulTrades: m.SuccessfulTrades,
		FailedTrades:     m.FailedTrades,
		ReputationScore:  m.ReputationScore,
	}, nil
}

func memberFromRecord(record MemberRecord) (*fund.Member, error) {
	shares, err := decodeAmount(record.Shares)
	if err != nil {
		return nil, fmt.Errorf("member %s shares: %w", record.Wallet, err)
	}
	contributed, err := decodeAmount(record.TotalContributed)
	if err != nil {
		return nil, fmt.Errorf("member %s contributed: %w", record.Wallet, err)
	}
	role, err := fund.ParseRole(record.Role)
	if err != nil {
		return nil, err
	}
	return &fund.Member{
		Wallet:           fund.WalletID(record.Wallet),
		FundID:           record.FundID,
		Shares:           shares,
		TotalContributed: contributed,
		Role:             role,
		Active:           record.Active,
		SuccessfulTrades: record.SuccessfulTrades,
		FailedTrades:     record.FailedTrades,
		ReputationScore:  record.ReputationScore,
	}, nil
}

func proposalToRecord(p *fund.TradeProposal) (ProposalRecord, error) {
	approvals := lo.Map(p.Approvals, func(w fund.WalletID, _ int) string {
		return string(w)
	})
	encoded, err := json.Marshal(approvals)
	if err != nil {
		return ProposalRecord{}, fmt.Errorf("encode approvals: %w", err)
	}
	return ProposalRecord{
		FundID:     p.FundID,
		ProposalID: p.ID,
		Proposer:   string(p.Proposer),
		FromToken:  string(p.FromToken),
		ToToken:    string(p.ToToken),
		Amount:     encodeAmount(p.Amount),
		MinimumOut: encodeAmount(p.MinimumOut),
		Status:     p.Status.String(),
		Approvals:  string(encoded),
		CreatedAt:  p.CreatedAt.UTC(),
		ExpiresAt:  p.ExpiresAt.UTC(),
	}, nil
}

func proposalFromRecord(record ProposalRecord) (*fund.TradeProposal, error) {
	amount, err := decodeAmount(record.Amount)
	if err != nil {
		return nil, fmt.Errorf("proposal %d amount: %w", record.ProposalID, err)
	}
	minimumOut, err := decodeAmount(record.MinimumOut)
	if err != nil {
		return nil, fmt.Errorf("proposal %d minimum out: %w", record.ProposalID, err)
	}
	status, err := fund.ParseProposalStatus(record.Status)
	if err != nil {
		return nil, err
	}
	var approvals []string
	if strings.TrimSpace(record.Approvals) != "" {
		if err := json.Unmarshal([]byte(record.Approvals), &approvals); err != nil {
			return nil, fmt.Errorf("proposal %d approvals: %w", record.ProposalID, err)
		}
	}
	return &fund.TradeProposal{
		FundID:     record.FundID,
		ID:         record.ProposalID,
		Proposer:   fund.WalletID(record.Proposer),
		FromToken:  fund.TokenID(record.FromToken),
		ToToken:    fund.TokenID(record.ToToken),
		Amount:     amount,
		MinimumOut: minimumOut,
		Status:     status,
		Approvals: lo.Map(approvals, func(w string, _ int) fund.WalletID {
			return fund.WalletID(w)
		}),
		CreatedAt: record.CreatedAt.UTC(),
		ExpiresAt: record.ExpiresAt.UTC(),
	}, nil
}

func encodeAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func decodeAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return value, nil
}
