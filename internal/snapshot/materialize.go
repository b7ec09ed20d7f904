package snapshot

import (
	"slices"

	"github.com/google/uuid"

	"github.com/NgigiN/walletsync/internal/storage"
)

// idIndex maps synthetic keys back to the live identities handed out while
// materializing. It only lives for one pass.
type idIndex map[string]string

func (m idIndex) resolve(key *string) *string {
	if key == nil {
		return nil
	}
	id, ok := m[*key]
	if !ok {
		return nil
	}
	return &id
}

// Materialize rebuilds a live graph from the snapshot, giving every entity a
// fresh identity from newID (uuid v4 when nil). Kinds are materialized in
// dependency order so every key a record refers to is already known; keys
// with no matching record resolve to nil.
func (s *Snapshot) Materialize(newID func() string) *storage.Graph {
	if newID == nil {
		newID = uuid.NewString
	}
	g := &storage.Graph{}

	cats := make(idIndex, len(s.Categories))
	for _, r := range s.Categories {
		c := storage.Category{Name: r.Name, Type: r.Type, Color: r.Color}
		c.ID, c.CreatedAt, c.UpdatedAt = newID(), r.CreatedAt, r.UpdatedAt
		cats[r.Key] = c.ID
		g.Categories = append(g.Categories, c)
	}

	folders := make(idIndex, len(s.Folders))
	for _, r := range s.Folders {
		f := storage.WalletFolder{Name: r.Name}
		f.ID, f.CreatedAt, f.UpdatedAt = newID(), r.CreatedAt, r.UpdatedAt
		folders[r.Key] = f.ID
		g.Folders = append(g.Folders, f)
	}

	assets := make(idIndex, len(s.Assets))
	for _, r := range s.Assets {
		a := storage.Asset{Code: r.Code, Name: r.Name, Kind: r.Kind}
		a.ID, a.CreatedAt, a.UpdatedAt = newID(), r.CreatedAt, r.UpdatedAt
		assets[r.Key] = a.ID
		g.Assets = append(g.Assets, a)
	}

	wallets := make(idIndex, len(s.Wallets))
	for _, r := range s.Wallets {
		w := storage.Wallet{
			Name:      r.Name,
			AssetCode: r.AssetCode,
			AssetKind: r.AssetKind,
			Balance:   r.Balance,
			Color:     r.Color,
			FolderID:  folders.resolve(r.FolderKey),
			AssetID:   assets.resolve(r.AssetKey),
		}
		w.ID, w.CreatedAt, w.UpdatedAt = newID(), r.CreatedAt, r.UpdatedAt
		wallets[r.Key] = w.ID
		g.Wallets = append(g.Wallets, w)
	}

	for _, r := range s.Transactions {
		var typ *storage.TransactionType
		if r.Type != nil {
			v := *r.Type
			typ = &v
		}
		t := storage.Transaction{
			Amount:           r.Amount,
			CurrencyCode:     r.CurrencyCode,
			Date:             r.Date,
			Note:             r.Note,
			Type:             typ,
			Attachment:       slices.Clone(r.Attachment),
			CategoryID:       cats.resolve(r.CategoryKey),
			WalletID:         wallets.resolve(r.WalletKey),
			TransferWalletID: wallets.resolve(r.TransferWalletKey),
			WalletName:       r.WalletName,
			WalletKind:       r.WalletKind,
			WalletColor:      r.WalletColor,
			WalletCurrency:   r.WalletCurrency,
		}
		t.ID, t.CreatedAt, t.UpdatedAt = newID(), r.CreatedAt, r.UpdatedAt
		g.Transactions = append(g.Transactions, t)
	}

	for _, r := range s.RecurringRules {
		rule := storage.RecurringRule{
			Title:        r.Title,
			Amount:       r.Amount,
			CurrencyCode: r.CurrencyCode,
			Type:         r.Type,
			Frequency:    r.Frequency,
			Interval:     r.Interval,
			NextRunAt:    r.NextRunAt,
			Active:       r.Active,
			CategoryID:   cats.resolve(r.CategoryKey),
			WalletID:     wallets.resolve(r.WalletKey),
		}
		rule.ID, rule.CreatedAt, rule.UpdatedAt = newID(), r.CreatedAt, r.UpdatedAt
		g.RecurringRules = append(g.RecurringRules, rule)
	}

	for _, r := range s.Budgets {
		b := storage.Budget{
			Amount:       r.Amount,
			CurrencyCode: r.CurrencyCode,
			Period:       r.Period,
			Active:       r.Active,
			CategoryID:   cats.resolve(r.CategoryKey),
		}
		b.ID, b.CreatedAt, b.UpdatedAt = newID(), r.CreatedAt, r.UpdatedAt
		g.Budgets = append(g.Budgets, b)
	}

	return g
}
