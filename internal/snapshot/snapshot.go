// Package snapshot converts the live ledger graph to and from its portable,
// schema-versioned form.
//
// A snapshot never carries live identities. Every record gets a synthetic key
// derived from its kind, its position in the sorted record list and a few
// discriminating fields; references between records use those keys. Because
// the sort order is total, encoding the same logical graph always yields the
// same bytes, which is what makes the payload digest usable for change
// detection.
package snapshot

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/NgigiN/walletsync/internal/storage"
)

// SchemaVersion is the newest snapshot schema this build reads and the one it
// writes.
const SchemaVersion = 1

// Record kinds, used as the first component of synthetic keys.
const (
	kindCategory      = "category"
	kindFolder        = "walletFolder"
	kindAsset         = "asset"
	kindWallet        = "wallet"
	kindTransaction   = "transaction"
	kindRecurringRule = "recurringRule"
	kindBudget        = "budget"
)

var (
	ErrMalformed          = errors.New("malformed snapshot")
	ErrUnsupportedVersion = errors.New("unsupported snapshot schema version")
	// ErrInvalidEntity is returned by Encode for a graph whose snapshot
	// Decode would reject.
	ErrInvalidEntity = errors.New("ledger entity cannot be snapshotted")
)

// DecodeError reports why a payload could not be decoded. Kind is either
// ErrMalformed or ErrUnsupportedVersion.
type DecodeError struct {
	Kind    error
	Version int
	Err     error
}

func (e *DecodeError) Error() string {
	if errors.Is(e.Kind, ErrUnsupportedVersion) {
		return fmt.Sprintf("%v: %d (newest supported is %d)", e.Kind, e.Version, SchemaVersion)
	}
	if e.Err != nil {
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}
	return e.Kind.Error()
}

func (e *DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Snapshot is the decoded envelope. Each list is in canonical order.
type Snapshot struct {
	SchemaVersion  int                   `json:"schemaVersion"`
	Categories     []CategoryRecord      `json:"categories" validate:"dive"`
	Folders        []FolderRecord        `json:"walletFolders" validate:"dive"`
	Assets         []AssetRecord         `json:"assets" validate:"dive"`
	Wallets        []WalletRecord        `json:"wallets" validate:"dive"`
	Transactions   []TransactionRecord   `json:"transactions" validate:"dive"`
	RecurringRules []RecurringRuleRecord `json:"recurringRules" validate:"dive"`
	Budgets        []BudgetRecord        `json:"budgets" validate:"dive"`
}

type CategoryRecord struct {
	Key       string               `json:"key" validate:"required"`
	Name      string               `json:"name"`
	Type      storage.CategoryType `json:"type" validate:"oneof=expense income"`
	Color     string               `json:"color"`
	CreatedAt time.Time            `json:"createdAt"`
	UpdatedAt time.Time            `json:"updatedAt"`
}

type FolderRecord struct {
	Key       string    `json:"key" validate:"required"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type AssetRecord struct {
	Key       string            `json:"key" validate:"required"`
	Code      string            `json:"code"`
	Name      string            `json:"name"`
	Kind      storage.AssetKind `json:"kind" validate:"oneof=fiat crypto metal stock"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

type WalletRecord struct {
	Key       string            `json:"key" validate:"required"`
	Name      string            `json:"name"`
	AssetCode string            `json:"assetCode"`
	AssetKind storage.AssetKind `json:"assetKind" validate:"oneof=fiat crypto metal stock"`
	Balance   decimal.Decimal   `json:"balance"`
	Color     string            `json:"color"`
	FolderKey *string           `json:"folderKey,omitempty"`
	AssetKey  *string           `json:"assetKey,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

type TransactionRecord struct {
	Key               string                   `json:"key" validate:"required"`
	Amount            decimal.Decimal          `json:"amount"`
	CurrencyCode      string                   `json:"currencyCode"`
	Date              time.Time                `json:"date"`
	Note              string                   `json:"note"`
	Type              *storage.TransactionType `json:"type,omitempty" validate:"omitempty,oneof=expense income transfer"`
	Attachment        []byte                   `json:"attachment,omitempty"`
	CategoryKey       *string                  `json:"categoryKey,omitempty"`
	WalletKey         *string                  `json:"walletKey,omitempty"`
	TransferWalletKey *string                  `json:"transferWalletKey,omitempty"`
	WalletName        string                   `json:"walletName"`
	WalletKind        storage.AssetKind        `json:"walletKind" validate:"omitempty,oneof=fiat crypto metal stock"`
	WalletColor       string                   `json:"walletColor"`
	WalletCurrency    string                   `json:"walletCurrency"`
	CreatedAt         time.Time                `json:"createdAt"`
	UpdatedAt         time.Time                `json:"updatedAt"`
}

type RecurringRuleRecord struct {
	Key          string                  `json:"key" validate:"required"`
	Title        string                  `json:"title"`
	Amount       decimal.Decimal         `json:"amount"`
	CurrencyCode string                  `json:"currencyCode"`
	Type         storage.TransactionType `json:"type" validate:"oneof=expense income transfer"`
	Frequency    storage.Frequency       `json:"frequency" validate:"oneof=daily weekly monthly"`
	Interval     int                     `json:"interval" validate:"min=1"`
	NextRunAt    time.Time               `json:"nextRunAt"`
	Active       bool                    `json:"active"`
	CategoryKey  *string                 `json:"categoryKey,omitempty"`
	WalletKey    *string                 `json:"walletKey,omitempty"`
	CreatedAt    time.Time               `json:"createdAt"`
	UpdatedAt    time.Time               `json:"updatedAt"`
}

type BudgetRecord struct {
	Key          string               `json:"key" validate:"required"`
	Amount       decimal.Decimal      `json:"amount"`
	CurrencyCode string               `json:"currencyCode"`
	Period       storage.BudgetPeriod `json:"period" validate:"oneof=monthly"`
	Active       bool                 `json:"active"`
	CategoryKey  *string              `json:"categoryKey,omitempty"`
	CreatedAt    time.Time            `json:"createdAt"`
	UpdatedAt    time.Time            `json:"updatedAt"`
}
