package snapshot

import (
	"bytes"
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/NgigiN/walletsync/internal/digest"
	"github.com/NgigiN/walletsync/internal/storage"
)

// Encode serializes g into its canonical snapshot bytes. The result depends
// only on the logical content of g, never on live identities or on the order
// rows were loaded in. A graph holding values Decode rejects fails with
// ErrInvalidEntity instead of producing an unrestorable snapshot.
func Encode(g *storage.Graph) ([]byte, *Snapshot, error) {
	s, err := build(g)
	if err != nil {
		return nil, nil, err
	}
	if err := validate.Struct(s); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidEntity, err)
	}
	data, err := Marshal(s)
	if err != nil {
		return nil, nil, err
	}
	return data, s, nil
}

// Marshal writes s as indented JSON with HTML escaping disabled.
func Marshal(s *Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// keyIndex maps the live identity of an entity to its synthetic key.
type keyIndex map[string]string

// ref translates a live reference. References to entities outside the graph
// are dropped rather than left dangling.
func (k keyIndex) ref(id *string) *string {
	if id == nil {
		return nil
	}
	key, ok := k[*id]
	if !ok {
		return nil
	}
	return &key
}

type entry[R any] struct {
	id    string
	rec   R
	canon []byte
}

// order sorts the records of one kind, assigns their synthetic keys and
// returns the sorted records with the live-ID to key index. Records that
// compare equal under less are ordered by their canonical JSON, so the order
// is total over content.
func order[R any](kind string, entries []entry[R], less func(a, b *R) int, disc func(*R) string, setKey func(*R, string)) ([]R, keyIndex, error) {
	for i := range entries {
		b, err := json.Marshal(entries[i].rec)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal %s: %w", kind, err)
		}
		entries[i].canon = b
	}
	slices.SortStableFunc(entries, func(a, b entry[R]) int {
		if c := less(&a.rec, &b.rec); c != 0 {
			return c
		}
		return bytes.Compare(a.canon, b.canon)
	})

	recs := make([]R, len(entries))
	idx := make(keyIndex, len(entries))
	for i := range entries {
		r := entries[i].rec
		key := syntheticKey(kind, i, disc(&r))
		setKey(&r, key)
		recs[i] = r
		idx[entries[i].id] = key
	}
	return recs, idx, nil
}

func syntheticKey(kind string, ordinal int, fields string) string {
	return digest.String(fmt.Sprintf("%s|%d|%s", kind, ordinal, fields))
}

func ts(t time.Time) time.Time { return t.UTC() }

func stamp(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func fields(parts ...string) string { return strings.Join(parts, "|") }

func build(g *storage.Graph) (*Snapshot, error) {
	s := &Snapshot{SchemaVersion: SchemaVersion}
	var err error

	catEntries := make([]entry[CategoryRecord], len(g.Categories))
	for i, c := range g.Categories {
		catEntries[i] = entry[CategoryRecord]{id: c.ID, rec: CategoryRecord{
			Name:      c.Name,
			Type:      c.Type,
			Color:     c.Color,
			CreatedAt: ts(c.CreatedAt),
			UpdatedAt: ts(c.UpdatedAt),
		}}
	}
	var cats keyIndex
	s.Categories, cats, err = order(kindCategory, catEntries,
		func(a, b *CategoryRecord) int {
			return cmpOr(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.Name, b.Name), cmp.Compare(a.Type, b.Type))
		},
		func(r *CategoryRecord) string { return fields(r.Name, string(r.Type), stamp(r.CreatedAt)) },
		func(r *CategoryRecord, k string) { r.Key = k })
	if err != nil {
		return nil, err
	}

	folderEntries := make([]entry[FolderRecord], len(g.Folders))
	for i, f := range g.Folders {
		folderEntries[i] = entry[FolderRecord]{id: f.ID, rec: FolderRecord{
			Name:      f.Name,
			CreatedAt: ts(f.CreatedAt),
			UpdatedAt: ts(f.UpdatedAt),
		}}
	}
	var folders keyIndex
	s.Folders, folders, err = order(kindFolder, folderEntries,
		func(a, b *FolderRecord) int {
			return cmpOr(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.Name, b.Name))
		},
		func(r *FolderRecord) string { return fields(r.Name, stamp(r.CreatedAt)) },
		func(r *FolderRecord, k string) { r.Key = k })
	if err != nil {
		return nil, err
	}

	assetEntries := make([]entry[AssetRecord], len(g.Assets))
	for i, a := range g.Assets {
		assetEntries[i] = entry[AssetRecord]{id: a.ID, rec: AssetRecord{
			Code:      a.Code,
			Name:      a.Name,
			Kind:      a.Kind,
			CreatedAt: ts(a.CreatedAt),
			UpdatedAt: ts(a.UpdatedAt),
		}}
	}
	var assets keyIndex
	s.Assets, assets, err = order(kindAsset, assetEntries,
		func(a, b *AssetRecord) int {
			return cmpOr(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.Code, b.Code), cmp.Compare(a.Name, b.Name))
		},
		func(r *AssetRecord) string { return fields(r.Code, string(r.Kind), stamp(r.CreatedAt)) },
		func(r *AssetRecord, k string) { r.Key = k })
	if err != nil {
		return nil, err
	}

	walletEntries := make([]entry[WalletRecord], len(g.Wallets))
	for i, w := range g.Wallets {
		walletEntries[i] = entry[WalletRecord]{id: w.ID, rec: WalletRecord{
			Name:      w.Name,
			AssetCode: w.AssetCode,
			AssetKind: w.AssetKind,
			Balance:   w.Balance,
			Color:     w.Color,
			FolderKey: folders.ref(w.FolderID),
			AssetKey:  assets.ref(w.AssetID),
			CreatedAt: ts(w.CreatedAt),
			UpdatedAt: ts(w.UpdatedAt),
		}}
	}
	var wallets keyIndex
	s.Wallets, wallets, err = order(kindWallet, walletEntries,
		func(a, b *WalletRecord) int {
			return cmpOr(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.Name, b.Name), cmp.Compare(a.AssetCode, b.AssetCode))
		},
		func(r *WalletRecord) string { return fields(r.Name, r.AssetCode, stamp(r.CreatedAt)) },
		func(r *WalletRecord, k string) { r.Key = k })
	if err != nil {
		return nil, err
	}

	txEntries := make([]entry[TransactionRecord], len(g.Transactions))
	for i, t := range g.Transactions {
		var typ *storage.TransactionType
		if t.Type != nil {
			v := *t.Type
			typ = &v
		}
		var attachment []byte
		if len(t.Attachment) > 0 {
			attachment = slices.Clone(t.Attachment)
		}
		txEntries[i] = entry[TransactionRecord]{id: t.ID, rec: TransactionRecord{
			Amount:            t.Amount,
			CurrencyCode:      t.CurrencyCode,
			Date:              ts(t.Date),
			Note:              t.Note,
			Type:              typ,
			Attachment:        attachment,
			CategoryKey:       cats.ref(t.CategoryID),
			WalletKey:         wallets.ref(t.WalletID),
			TransferWalletKey: wallets.ref(t.TransferWalletID),
			WalletName:        t.WalletName,
			WalletKind:        t.WalletKind,
			WalletColor:       t.WalletColor,
			WalletCurrency:    t.WalletCurrency,
			CreatedAt:         ts(t.CreatedAt),
			UpdatedAt:         ts(t.UpdatedAt),
		}}
	}
	s.Transactions, _, err = order(kindTransaction, txEntries,
		func(a, b *TransactionRecord) int {
			return cmpOr(a.Date.Compare(b.Date), a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.Note, b.Note))
		},
		func(r *TransactionRecord) string {
			return fields(stamp(r.Date), r.Amount.String(), r.CurrencyCode, stamp(r.CreatedAt))
		},
		func(r *TransactionRecord, k string) { r.Key = k })
	if err != nil {
		return nil, err
	}

	ruleEntries := make([]entry[RecurringRuleRecord], len(g.RecurringRules))
	for i, r := range g.RecurringRules {
		ruleEntries[i] = entry[RecurringRuleRecord]{id: r.ID, rec: RecurringRuleRecord{
			Title:        r.Title,
			Amount:       r.Amount,
			CurrencyCode: r.CurrencyCode,
			Type:         r.Type,
			Frequency:    r.Frequency,
			Interval:     r.Interval,
			NextRunAt:    ts(r.NextRunAt),
			Active:       r.Active,
			CategoryKey:  cats.ref(r.CategoryID),
			WalletKey:    wallets.ref(r.WalletID),
			CreatedAt:    ts(r.CreatedAt),
			UpdatedAt:    ts(r.UpdatedAt),
		}}
	}
	s.RecurringRules, _, err = order(kindRecurringRule, ruleEntries,
		func(a, b *RecurringRuleRecord) int {
			return cmpOr(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.Title, b.Title))
		},
		func(r *RecurringRuleRecord) string { return fields(r.Title, string(r.Frequency), stamp(r.CreatedAt)) },
		func(r *RecurringRuleRecord, k string) { r.Key = k })
	if err != nil {
		return nil, err
	}

	budgetEntries := make([]entry[BudgetRecord], len(g.Budgets))
	for i, b := range g.Budgets {
		budgetEntries[i] = entry[BudgetRecord]{id: b.ID, rec: BudgetRecord{
			Amount:       b.Amount,
			CurrencyCode: b.CurrencyCode,
			Period:       b.Period,
			Active:       b.Active,
			CategoryKey:  cats.ref(b.CategoryID),
			CreatedAt:    ts(b.CreatedAt),
			UpdatedAt:    ts(b.UpdatedAt),
		}}
	}
	s.Budgets, _, err = order(kindBudget, budgetEntries,
		func(a, b *BudgetRecord) int {
			return cmpOr(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.CurrencyCode, b.CurrencyCode))
		},
		func(r *BudgetRecord) string {
			return fields(r.Amount.String(), r.CurrencyCode, string(r.Period), stamp(r.CreatedAt))
		},
		func(r *BudgetRecord, k string) { r.Key = k })
	if err != nil {
		return nil, err
	}

	return s, nil
}
