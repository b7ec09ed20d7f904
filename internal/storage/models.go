package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CategoryType string

const (
	CategoryExpense CategoryType = "expense"
	CategoryIncome  CategoryType = "income"
)

type AssetKind string

const (
	AssetFiat   AssetKind = "fiat"
	AssetCrypto AssetKind = "crypto"
	AssetMetal  AssetKind = "metal"
	AssetStock  AssetKind = "stock"
)

type TransactionType string

const (
	TransactionExpense  TransactionType = "expense"
	TransactionIncome   TransactionType = "income"
	TransactionTransfer TransactionType = "transfer"
)

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

type BudgetPeriod string

const BudgetMonthly BudgetPeriod = "monthly"

// Model is embedded by every ledger entity. ID is the live identity of a row:
// it is only meaningful inside the backend that created it.
type Model struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BeforeCreate assigns a fresh live identity to rows created without one.
func (m *Model) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// Category represents a spending or income category.
type Category struct {
	Model
	Name  string       `gorm:"type:varchar(255);not null"`
	Type  CategoryType `gorm:"type:varchar(16);not null"`
	Color string       `gorm:"type:varchar(32)"`
}

// WalletFolder groups wallets. Wallets point back to it via FolderID.
type WalletFolder struct {
	Model
	Name string `gorm:"type:varchar(255);not null"`
}

// Asset is an entry of the asset catalog a wallet may be denominated in.
type Asset struct {
	Model
	Code string    `gorm:"type:varchar(32);not null"`
	Name string    `gorm:"type:varchar(255)"`
	Kind AssetKind `gorm:"type:varchar(16);not null"`
}

// Wallet represents a stored balance in a single asset.
type Wallet struct {
	Model
	Name      string          `gorm:"type:varchar(255);not null"`
	AssetCode string          `gorm:"type:varchar(32);not null"`
	AssetKind AssetKind       `gorm:"type:varchar(16);not null"`
	Balance   decimal.Decimal `gorm:"type:varchar(64);not null"`
	Color     string          `gorm:"type:varchar(32)"`
	FolderID  *string         `gorm:"type:varchar(36);index"`
	AssetID   *string         `gorm:"type:varchar(36);index"`
}

// Transaction represents a stored financial transaction. The Wallet* fields
// freeze the wallet as it was when the transaction was recorded, so history
// survives the wallet being renamed or deleted.
type Transaction struct {
	Model
	Amount           decimal.Decimal  `gorm:"type:varchar(64);not null"`
	CurrencyCode     string           `gorm:"type:varchar(32);not null"`
	Date             time.Time        `gorm:"index"`
	Note             string           `gorm:"type:text"`
	Type             *TransactionType `gorm:"type:varchar(16)"`
	Attachment       []byte
	CategoryID       *string `gorm:"type:varchar(36);index"`
	WalletID         *string `gorm:"type:varchar(36);index"`
	TransferWalletID *string `gorm:"type:varchar(36);index"`

	WalletName     string    `gorm:"type:varchar(255)"`
	WalletKind     AssetKind `gorm:"type:varchar(16)"`
	WalletColor    string    `gorm:"type:varchar(32)"`
	WalletCurrency string    `gorm:"type:varchar(32)"`
}

// RecurringRule schedules a transaction every Interval units of Frequency.
type RecurringRule struct {
	Model
	Title        string          `gorm:"type:varchar(255);not null"`
	Amount       decimal.Decimal `gorm:"type:varchar(64);not null"`
	CurrencyCode string          `gorm:"type:varchar(32);not null"`
	Type         TransactionType `gorm:"type:varchar(16);not null"`
	Frequency    Frequency       `gorm:"type:varchar(16);not null"`
	Interval     int             `gorm:"not null;default:1"`
	NextRunAt    time.Time
	Active       bool
	CategoryID   *string `gorm:"type:varchar(36);index"`
	WalletID     *string `gorm:"type:varchar(36);index"`
}

type Budget struct {
	Model
	Amount       decimal.Decimal `gorm:"type:varchar(64);not null"`
	CurrencyCode string          `gorm:"type:varchar(32);not null"`
	Period       BudgetPeriod    `gorm:"type:varchar(16);not null"`
	Active       bool
	CategoryID   *string `gorm:"type:varchar(36);index"`
}

// allModels lists every entity kind in dependency order: a kind only
// references kinds listed before it.
func allModels() []any {
	return []any{
		&Category{},
		&WalletFolder{},
		&Asset{},
		&Wallet{},
		&Transaction{},
		&RecurringRule{},
		&Budget{},
	}
}
