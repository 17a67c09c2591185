package storage

import (
	"time"

	"gorm.io/gorm"
)

// FundRecord persists one fund aggregate. Amounts are stored as decimal
// strings so arbitrary-precision values survive the round trip.
type FundRecord struct {
	ID                string `gorm:"primaryKey;size:64"`
	Authority         string `gorm:"size:128;index"`
	TotalShares       string `gorm:"size:80"`
	TotalValue        string `gorm:"size:80"`
	MinContribution   string `gorm:"size:80"`
	TradingFeeBps     uint16
	RequiredApprovals uint8
	ApprovedTraders   string `gorm:"type:text"`
	Active            bool
	NextProposalID    uint64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// MemberRecord persists one wallet's stake in a fund.
type MemberRecord struct {
	FundID           string `gorm:"primaryKey;size:64"`
	Wallet           string `gorm:"primaryKey;size:128"`
	Shares           string `gorm:"size:80"`
	TotalContributed string `gorm:"size:80"`
	Role             string `gorm:"size:16;index"`
	Active           bool
	SuccessfulTrades uint32
	FailedTrades     uint32
	ReputationScore  int32
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ProposalRecord persists one trade proposal.
type ProposalRecord struct {
	FundID     string `gorm:"primaryKey;size:64"`
	ProposalID uint64 `gorm:"primaryKey;autoIncrement:false"`
	Proposer   string `gorm:"size:128;index"`
	FromToken  string `gorm:"size:32"`
	ToToken    string `gorm:"size:32"`
	Amount     string `gorm:"size:80"`
	MinimumOut string `gorm:"size:80"`
	Status     string `gorm:"size:16;index"`
	Approvals  string `gorm:"type:text"`
	CreatedAt  time.Time
	ExpiresAt  time.Time
	UpdatedAt  time.Time
}

// AuditRecord is the append-only trail of engine events. EventID is a uuid
// assigned at append time so entries stay referenceable across exports.
type AuditRecord struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	EventID    string `gorm:"size:36;uniqueIndex"`
	Type       string `gorm:"size:64;index"`
	FundID     string `gorm:"size:64;index"`
	Attributes string `gorm:"type:text"`
	CreatedAt  time.Time
}

// AutoMigrate creates or updates all fundd tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&FundRecord{},
		&MemberRecord{},
		&ProposalRecord{},
		&AuditRecord{},
	)
}
