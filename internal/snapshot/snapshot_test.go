package snapshot

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NgigiN/walletsync/internal/digest"
	"github.com/NgigiN/walletsync/internal/storage"
)

var t0 = time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

// exampleGraph is the Groceries / Cash / 25.50 USD ledger.
func exampleGraph() *storage.Graph {
	g := &storage.Graph{}
	cat := storage.Category{Model: storage.Model{ID: "cat-1", CreatedAt: t0, UpdatedAt: t0}, Name: "Groceries", Type: storage.CategoryExpense}
	wallet := storage.Wallet{
		Model:     storage.Model{ID: "wal-1", CreatedAt: t0, UpdatedAt: t0},
		Name:      "Cash",
		AssetCode: "USD",
		AssetKind: storage.AssetFiat,
		Balance:   decimal.RequireFromString("100.00"),
	}
	tx := storage.Transaction{
		Model:          storage.Model{ID: "tx-1", CreatedAt: t0.Add(time.Hour), UpdatedAt: t0.Add(time.Hour)},
		Amount:         decimal.RequireFromString("25.50"),
		CurrencyCode:   "USD",
		Date:           t0.Add(time.Hour),
		Type:           ptr(storage.TransactionExpense),
		CategoryID:     ptr("cat-1"),
		WalletID:       ptr("wal-1"),
		WalletName:     "Cash",
		WalletKind:     storage.AssetFiat,
		WalletCurrency: "USD",
	}
	g.Categories = append(g.Categories, cat)
	g.Wallets = append(g.Wallets, wallet)
	g.Transactions = append(g.Transactions, tx)
	return g
}

// richGraph exercises every kind and every reference field.
func richGraph() *storage.Graph {
	g := exampleGraph()
	g.Categories = append(g.Categories,
		storage.Category{Model: storage.Model{ID: "cat-2", CreatedAt: t0, UpdatedAt: t0}, Name: "Salary", Type: storage.CategoryIncome, Color: "#00ff00"},
		storage.Category{Model: storage.Model{ID: "cat-3", CreatedAt: t0.Add(-time.Hour), UpdatedAt: t0}, Name: "Rent", Type: storage.CategoryExpense},
	)
	g.Folders = append(g.Folders, storage.WalletFolder{Model: storage.Model{ID: "fold-1", CreatedAt: t0, UpdatedAt: t0}, Name: "Savings"})
	g.Assets = append(g.Assets, storage.Asset{Model: storage.Model{ID: "as-1", CreatedAt: t0, UpdatedAt: t0}, Code: "BTC", Name: "Bitcoin", Kind: storage.AssetCrypto})
	g.Wallets = append(g.Wallets, storage.Wallet{
		Model:     storage.Model{ID: "wal-2", CreatedAt: t0.Add(time.Minute), UpdatedAt: t0},
		Name:      "Cold storage",
		AssetCode: "BTC",
		AssetKind: storage.AssetCrypto,
		Balance:   decimal.RequireFromString("0.125"),
		FolderID:  ptr("fold-1"),
		AssetID:   ptr("as-1"),
	})
	g.Transactions = append(g.Transactions,
		storage.Transaction{
			Model:            storage.Model{ID: "tx-2", CreatedAt: t0, UpdatedAt: t0},
			Amount:           decimal.RequireFromString("10"),
			CurrencyCode:     "USD",
			Date:             t0.Add(2 * time.Hour),
			Note:             "move <to> cold & back/forth",
			Type:             ptr(storage.TransactionTransfer),
			Attachment:       []byte{0x89, 0x50, 0x4e, 0x47},
			WalletID:         ptr("wal-1"),
			TransferWalletID: ptr("wal-2"),
		},
		storage.Transaction{
			Model:        storage.Model{ID: "tx-3", CreatedAt: t0, UpdatedAt: t0},
			Amount:       decimal.RequireFromString("3"),
			CurrencyCode: "USD",
			Date:         t0,
			Note:         "legacy row",
			WalletID:     ptr("deleted-wallet"),
		},
	)
	g.RecurringRules = append(g.RecurringRules, storage.RecurringRule{
		Model:        storage.Model{ID: "rr-1", CreatedAt: t0, UpdatedAt: t0},
		Title:        "Rent",
		Amount:       decimal.RequireFromString("1200"),
		CurrencyCode: "USD",
		Type:         storage.TransactionExpense,
		Frequency:    storage.FrequencyMonthly,
		Interval:     1,
		NextRunAt:    t0.AddDate(0, 1, 0),
		Active:       true,
		CategoryID:   ptr("cat-3"),
		WalletID:     ptr("wal-1"),
	})
	g.Budgets = append(g.Budgets, storage.Budget{
		Model:        storage.Model{ID: "bud-1", CreatedAt: t0, UpdatedAt: t0},
		Amount:       decimal.RequireFromString("400"),
		CurrencyCode: "USD",
		Period:       storage.BudgetMonthly,
		Active:       true,
		CategoryID:   ptr("cat-1"),
	})
	return g
}

// reidentify returns a copy of g with every live identity replaced and every
// list reversed, as if it had been loaded from another backend.
func reidentify(g *storage.Graph) *storage.Graph {
	ids := map[string]string{}
	remap := func(id string) string {
		if _, ok := ids[id]; !ok {
			ids[id] = fmt.Sprintf("other-%d", len(ids))
		}
		return ids[id]
	}
	ref := func(id *string) *string {
		if id == nil {
			return nil
		}
		return ptr(remap(*id))
	}
	out := &storage.Graph{
		Categories:     slices.Clone(g.Categories),
		Folders:        slices.Clone(g.Folders),
		Assets:         slices.Clone(g.Assets),
		Wallets:        slices.Clone(g.Wallets),
		Transactions:   slices.Clone(g.Transactions),
		RecurringRules: slices.Clone(g.RecurringRules),
		Budgets:        slices.Clone(g.Budgets),
	}
	for i := range out.Categories {
		out.Categories[i].ID = remap(out.Categories[i].ID)
	}
	for i := range out.Folders {
		out.Folders[i].ID = remap(out.Folders[i].ID)
	}
	for i := range out.Assets {
		out.Assets[i].ID = remap(out.Assets[i].ID)
	}
	for i := range out.Wallets {
		w := &out.Wallets[i]
		w.ID, w.FolderID, w.AssetID = remap(w.ID), ref(w.FolderID), ref(w.AssetID)
	}
	for i := range out.Transactions {
		t := &out.Transactions[i]
		t.ID, t.CategoryID, t.WalletID, t.TransferWalletID = remap(t.ID), ref(t.CategoryID), ref(t.WalletID), ref(t.TransferWalletID)
	}
	for i := range out.RecurringRules {
		r := &out.RecurringRules[i]
		r.ID, r.CategoryID, r.WalletID = remap(r.ID), ref(r.CategoryID), ref(r.WalletID)
	}
	for i := range out.Budgets {
		b := &out.Budgets[i]
		b.ID, b.CategoryID = remap(b.ID), ref(b.CategoryID)
	}
	slices.Reverse(out.Categories)
	slices.Reverse(out.Wallets)
	slices.Reverse(out.Transactions)
	return out
}

func TestEncodeIsDeterministic(t *testing.T) {
	g := richGraph()
	first, _, err := Encode(g)
	require.NoError(t, err)
	second, _, err := Encode(g)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, digest.Sum(first), digest.Sum(second))

	other, _, err := Encode(reidentify(g))
	require.NoError(t, err)
	assert.Equal(t, string(first), string(other), "live identities and load order must not leak into the payload")
}

func TestExampleScenarioFingerprint(t *testing.T) {
	g := exampleGraph()
	data, _, err := Encode(g)
	require.NoError(t, err)
	f1 := digest.Sum(data)

	again, _, err := Encode(g)
	require.NoError(t, err)
	assert.Equal(t, f1, digest.Sum(again))

	g.Transactions = append(g.Transactions, storage.Transaction{
		Model:        storage.Model{ID: "tx-2", CreatedAt: t0.Add(3 * time.Hour)},
		Amount:       decimal.RequireFromString("4.20"),
		CurrencyCode: "USD",
		Date:         t0.Add(3 * time.Hour),
		CategoryID:   ptr("cat-1"),
		WalletID:     ptr("wal-1"),
	})
	changed, _, err := Encode(g)
	require.NoError(t, err)
	assert.NotEqual(t, f1, digest.Sum(changed))
}

func TestEncodeKeysAndReferences(t *testing.T) {
	_, s, err := Encode(richGraph())
	require.NoError(t, err)

	// Rent was created first, so it sorts first.
	require.Len(t, s.Categories, 3)
	assert.Equal(t, "Rent", s.Categories[0].Name)
	assert.Equal(t, "Groceries", s.Categories[1].Name)
	assert.Equal(t, "Salary", s.Categories[2].Name)

	seen := map[string]bool{}
	for _, c := range s.Categories {
		assert.Len(t, c.Key, 64)
		assert.False(t, seen[c.Key])
		seen[c.Key] = true
	}

	byNote := map[string]TransactionRecord{}
	for _, tx := range s.Transactions {
		byNote[tx.Note] = tx
	}
	transfer := byNote["move <to> cold & back/forth"]
	require.NotNil(t, transfer.WalletKey)
	require.NotNil(t, transfer.TransferWalletKey)
	assert.Equal(t, s.Wallets[0].Key, *transfer.WalletKey)
	assert.Equal(t, s.Wallets[1].Key, *transfer.TransferWalletKey)

	legacy := byNote["legacy row"]
	assert.Nil(t, legacy.Type)
	assert.Nil(t, legacy.WalletKey, "references to entities outside the graph are dropped")

	require.NotNil(t, s.Wallets[1].FolderKey)
	assert.Equal(t, s.Folders[0].Key, *s.Wallets[1].FolderKey)
	assert.Equal(t, s.Assets[0].Key, *s.Wallets[1].AssetKey)
}

func TestEncodeDoesNotEscape(t *testing.T) {
	data, _, err := Encode(richGraph())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"note": "move <to> cold & back/forth"`)
	assert.True(t, strings.HasSuffix(string(data), "}\n"))
}

func TestRoundTrip(t *testing.T) {
	g := richGraph()
	data, _, err := Encode(g)
	require.NoError(t, err)

	s, err := Decode(data)
	require.NoError(t, err)

	n := 0
	restored := s.Materialize(func() string { n++; return fmt.Sprintf("new-%d", n) })
	assert.Equal(t, g.Len(), restored.Len())

	again, _, err := Encode(restored)
	require.NoError(t, err)
	assert.Equal(t, string(data), string(again))

	cats := map[string]string{}
	for _, c := range restored.Categories {
		assert.True(t, strings.HasPrefix(c.ID, "new-"))
		cats[c.ID] = c.Name
	}
	for _, tx := range restored.Transactions {
		if tx.Note == "" {
			require.NotNil(t, tx.CategoryID)
			assert.Equal(t, "Groceries", cats[*tx.CategoryID])
			assert.True(t, tx.Amount.Equal(decimal.RequireFromString("25.5")))
		}
		if tx.Note == "legacy row" {
			assert.Nil(t, tx.WalletID)
		}
		if tx.Type != nil && *tx.Type == storage.TransactionTransfer {
			assert.Equal(t, []byte{0x89, 0x50, 0x4e, 0x47}, tx.Attachment)
		}
	}
}

func TestMaterializeMissingKeyResolvesToNil(t *testing.T) {
	s := &Snapshot{
		SchemaVersion: SchemaVersion,
		Categories:    []CategoryRecord{{Key: "c1", Name: "Food", Type: storage.CategoryExpense}},
		Transactions: []TransactionRecord{
			{Key: "t1", Amount: decimal.NewFromInt(5), CurrencyCode: "EUR", CategoryKey: ptr("c1")},
			{Key: "t2", Amount: decimal.NewFromInt(6), CurrencyCode: "EUR", CategoryKey: ptr("gone")},
		},
		Budgets: []BudgetRecord{{Key: "b1", Period: storage.BudgetMonthly, CategoryKey: ptr("gone")}},
	}
	g := s.Materialize(nil)
	require.Len(t, g.Transactions, 2)
	require.NotNil(t, g.Transactions[0].CategoryID)
	assert.Equal(t, g.Categories[0].ID, *g.Transactions[0].CategoryID)
	assert.Nil(t, g.Transactions[1].CategoryID)
	assert.Nil(t, g.Budgets[0].CategoryID)
}

func TestDecodeUnsupportedVersion(t *testing.T) {
	_, err := Decode([]byte(`{"schemaVersion": 2, "somethingNew": {"x": 1}}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
	assert.NotErrorIs(t, err, ErrMalformed)

	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, 2, de.Version)
}

func TestDecodeMalformed(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"not json", `snapshot`},
		{"array", `[]`},
		{"missing version", `{"categories": []}`},
		{"zero version", `{"schemaVersion": 0}`},
		{"unknown field", `{"schemaVersion": 1, "extra": true}`},
		{"trailing data", `{"schemaVersion": 1} {}`},
		{"bad category type", `{"schemaVersion": 1, "categories": [{"key": "k", "type": "gift"}]}`},
		{"missing key", `{"schemaVersion": 1, "walletFolders": [{"name": "x"}]}`},
		{"zero interval", `{"schemaVersion": 1, "recurringRules": [{"key": "r", "type": "expense", "frequency": "daily", "interval": 0}]}`},
		{"duplicate keys", `{"schemaVersion": 1, "walletFolders": [{"key": "f"}, {"key": "f"}]}`},
		{"bad amount", `{"schemaVersion": 1, "budgets": [{"key": "b", "period": "monthly", "amount": "lots"}]}`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Decode([]byte(c.data))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestEncodeRejectsWhatDecodeRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(g *storage.Graph)
	}{
		{"empty budget period", func(g *storage.Graph) { g.Budgets[0].Period = "" }},
		{"zero rule interval", func(g *storage.Graph) { g.RecurringRules[0].Interval = 0 }},
		{"unknown category type", func(g *storage.Graph) { g.Categories[0].Type = "gift" }},
		{"unknown wallet kind", func(g *storage.Graph) { g.Wallets[0].AssetKind = "" }},
		{"unknown rule frequency", func(g *storage.Graph) { g.RecurringRules[0].Frequency = "yearly" }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			g := richGraph()
			require.NotEmpty(t, g.Budgets)
			require.NotEmpty(t, g.RecurringRules)
			c.mutate(g)

			data, _, err := Encode(g)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidEntity)
			assert.Nil(t, data)
		})
	}

	data, _, err := Encode(richGraph())
	require.NoError(t, err)
	_, err = Decode(data)
	require.NoError(t, err)
}

func TestDecodeEmptySnapshot(t *testing.T) {
	data, _, err := Encode(&storage.Graph{})
	require.NoError(t, err)
	s, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Materialize(nil).Len())
}
