package storage

import (
	"context"
	"fmt"
)

// Graph is the whole ledger held in memory: every entity of every kind, with
// references expressed as live identities of the store it came from.
type Graph struct {
	Categories     []Category
	Folders        []WalletFolder
	Assets         []Asset
	Wallets        []Wallet
	Transactions   []Transaction
	RecurringRules []RecurringRule
	Budgets        []Budget
}

// Len returns the total number of entities in the graph.
func (g *Graph) Len() int {
	return len(g.Categories) + len(g.Folders) + len(g.Assets) + len(g.Wallets) +
		len(g.Transactions) + len(g.RecurringRules) + len(g.Budgets)
}

// LoadGraph reads every entity of the store.
func (d *Database) LoadGraph(ctx context.Context) (*Graph, error) {
	var g Graph
	db := d.db.WithContext(ctx)
	targets := []struct {
		name string
		dest any
	}{
		{"categories", &g.Categories},
		{"wallet folders", &g.Folders},
		{"assets", &g.Assets},
		{"wallets", &g.Wallets},
		{"transactions", &g.Transactions},
		{"recurring rules", &g.RecurringRules},
		{"budgets", &g.Budgets},
	}
	for _, t := range targets {
		if err := db.Find(t.dest).Error; err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", t.name, err)
		}
	}
	return &g, nil
}

// ReplaceGraph clears the store and inserts g in dependency order, all in one
// transaction. On any failure the store is left as it was.
func (d *Database) ReplaceGraph(ctx context.Context, g *Graph) error {
	return d.Transaction(ctx, func(tx *Database) error {
		if err := tx.clear(ctx); err != nil {
			return err
		}
		return tx.insertGraph(ctx, g)
	})
}

func (d *Database) insertGraph(ctx context.Context, g *Graph) error {
	db := d.db.WithContext(ctx)
	batches := []struct {
		name string
		n    int
		rows any
	}{
		{"categories", len(g.Categories), &g.Categories},
		{"wallet folders", len(g.Folders), &g.Folders},
		{"assets", len(g.Assets), &g.Assets},
		{"wallets", len(g.Wallets), &g.Wallets},
		{"transactions", len(g.Transactions), &g.Transactions},
		{"recurring rules", len(g.RecurringRules), &g.RecurringRules},
		{"budgets", len(g.Budgets), &g.Budgets},
	}
	for _, b := range batches {
		if b.n == 0 {
			continue
		}
		if err := db.CreateInBatches(b.rows, 200).Error; err != nil {
			return fmt.Errorf("failed to insert %s: %w", b.name, err)
		}
	}
	return nil
}
