package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CategoryByName returns the category with the given name and type, creating
// it when missing.
func (d *Database) CategoryByName(ctx context.Context, name string, typ CategoryType) (*Category, error) {
	var c Category
	err := d.db.WithContext(ctx).Where("name = ? AND type = ?", name, typ).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c = Category{Name: name, Type: typ}
		if err := d.Create(ctx, &c); err != nil {
			return nil, err
		}
		return &c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up category %q: %w", name, err)
	}
	return &c, nil
}

// WalletByName returns the wallet with the given name, creating an empty fiat
// wallet in assetCode when missing.
func (d *Database) WalletByName(ctx context.Context, name, assetCode string) (*Wallet, error) {
	var w Wallet
	err := d.db.WithContext(ctx).Where("name = ?", name).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		w = Wallet{Name: name, AssetCode: assetCode, AssetKind: AssetFiat, Balance: decimal.Zero}
		if err := d.Create(ctx, &w); err != nil {
			return nil, err
		}
		return &w, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up wallet %q: %w", name, err)
	}
	return &w, nil
}

// RecordExpense stores tx against the wallet and category, freezing the
// wallet's current name, kind, color and currency on the transaction, and
// updates the wallet balance when the wallet reports one.
func (d *Database) RecordExpense(ctx context.Context, tx *Transaction, w *Wallet, c *Category, balance *decimal.Decimal) error {
	return d.Transaction(ctx, func(db *Database) error {
		typ := TransactionExpense
		tx.Type = &typ
		tx.WalletID = &w.ID
		tx.CategoryID = &c.ID
		tx.WalletName = w.Name
		tx.WalletKind = w.AssetKind
		tx.WalletColor = w.Color
		tx.WalletCurrency = w.AssetCode
		if err := db.SaveTransaction(ctx, tx); err != nil {
			return err
		}
		if balance == nil {
			return nil
		}
		w.Balance = *balance
		if err := db.db.WithContext(ctx).Model(w).Update("balance", w.Balance).Error; err != nil {
			return fmt.Errorf("failed to update wallet balance: %w", err)
		}
		return nil
	})
}

// CategoryTotals sums expense amounts per category name.
func (d *Database) CategoryTotals(ctx context.Context) (map[string]decimal.Decimal, error) {
	g, err := d.LoadGraph(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(g.Categories))
	for _, c := range g.Categories {
		names[c.ID] = c.Name
	}
	totals := make(map[string]decimal.Decimal)
	for _, t := range g.Transactions {
		if t.Type != nil && *t.Type != TransactionExpense {
			continue
		}
		name := "uncategorized"
		if t.CategoryID != nil {
			if n, ok := names[*t.CategoryID]; ok {
				name = n
			}
		}
		totals[name] = totals[name].Add(t.Amount)
	}
	return totals, nil
}

// TransactionsByCategory returns the expenses filed under the named
// category, most recent first.
func (d *Database) TransactionsByCategory(ctx context.Context, name string) ([]Transaction, error) {
	var txs []Transaction
	err := d.db.WithContext(ctx).
		Joins("JOIN categories ON categories.id = transactions.category_id").
		Where("categories.name = ?", name).
		Order("transactions.date DESC").
		Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions for %q: %w", name, err)
	}
	return txs, nil
}
