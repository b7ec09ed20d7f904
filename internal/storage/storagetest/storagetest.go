// Package storagetest opens throwaway live stores and fills them with a small
// ledger for tests.
package storagetest

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/NgigiN/walletsync/internal/storage"
)

// Open returns an sqlite store in a temporary directory, closed when the test
// ends.
func Open(t testing.TB, name string) *storage.Database {
	t.Helper()
	db, err := storage.Open(storage.Backend{
		Driver: storage.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), name+".db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// FailInserts installs a trigger on an sqlite store that aborts every insert
// into table.
func FailInserts(t testing.TB, db *storage.Database, table string) {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(db.Backend().DSN), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	stmt := fmt.Sprintf("CREATE TRIGGER refuse_%[1]s BEFORE INSERT ON %[1]s BEGIN SELECT RAISE(ABORT, 'insert into %[1]s refused'); END", table)
	require.NoError(t, conn.Exec(stmt).Error)
}

// Ledger is what Seed created.
type Ledger struct {
	Groceries storage.Category
	Salary    storage.Category
	Savings   storage.WalletFolder
	Bitcoin   storage.Asset
	Cash      storage.Wallet
	ColdStore storage.Wallet
	Lunch     storage.Transaction
	Transfer  storage.Transaction
	Rent      storage.RecurringRule
	Food      storage.Budget
}

// Seed writes one entity of every kind, with every kind of reference set.
func Seed(t testing.TB, db *storage.Database) *Ledger {
	t.Helper()
	ctx := context.Background()
	day := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	l := &Ledger{}

	l.Groceries = storage.Category{Name: "Groceries", Type: storage.CategoryExpense, Color: "#00ff00"}
	l.Salary = storage.Category{Name: "Salary", Type: storage.CategoryIncome}
	l.Savings = storage.WalletFolder{Name: "Savings"}
	l.Bitcoin = storage.Asset{Code: "BTC", Name: "Bitcoin", Kind: storage.AssetCrypto}
	for _, v := range []any{&l.Groceries, &l.Salary, &l.Savings, &l.Bitcoin} {
		require.NoError(t, db.Create(ctx, v))
	}

	l.Cash = storage.Wallet{Name: "Cash", AssetCode: "USD", AssetKind: storage.AssetFiat, Balance: decimal.RequireFromString("100.00")}
	l.ColdStore = storage.Wallet{
		Name:      "Cold",
		AssetCode: "BTC",
		AssetKind: storage.AssetCrypto,
		Balance:   decimal.RequireFromString("0.5"),
		FolderID:  &l.Savings.ID,
		AssetID:   &l.Bitcoin.ID,
	}
	require.NoError(t, db.Create(ctx, &l.Cash))
	require.NoError(t, db.Create(ctx, &l.ColdStore))

	expense, transfer := storage.TransactionExpense, storage.TransactionTransfer
	l.Lunch = storage.Transaction{
		Amount:         decimal.RequireFromString("25.50"),
		CurrencyCode:   "USD",
		Date:           day,
		Note:           "lunch",
		Type:           &expense,
		CategoryID:     &l.Groceries.ID,
		WalletID:       &l.Cash.ID,
		WalletName:     "Cash",
		WalletKind:     storage.AssetFiat,
		WalletCurrency: "USD",
	}
	l.Transfer = storage.Transaction{
		Amount:           decimal.RequireFromString("10"),
		CurrencyCode:     "USD",
		Date:             day.Add(time.Hour),
		Type:             &transfer,
		WalletID:         &l.Cash.ID,
		TransferWalletID: &l.ColdStore.ID,
		Attachment:       []byte{0x89, 0x50, 0x4e, 0x47},
	}
	require.NoError(t, db.Create(ctx, &l.Lunch))
	require.NoError(t, db.Create(ctx, &l.Transfer))

	l.Rent = storage.RecurringRule{
		Title:        "Rent",
		Amount:       decimal.RequireFromString("800"),
		CurrencyCode: "USD",
		Type:         storage.TransactionExpense,
		Frequency:    storage.FrequencyMonthly,
		Interval:     1,
		NextRunAt:    day.AddDate(0, 1, 0),
		Active:       true,
		WalletID:     &l.Cash.ID,
	}
	l.Food = storage.Budget{
		Amount:       decimal.RequireFromString("300"),
		CurrencyCode: "USD",
		Period:       storage.BudgetMonthly,
		Active:       true,
		CategoryID:   &l.Groceries.ID,
	}
	require.NoError(t, db.Create(ctx, &l.Rent))
	require.NoError(t, db.Create(ctx, &l.Food))
	return l
}
