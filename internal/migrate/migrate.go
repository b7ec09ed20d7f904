// Package migrate copies the ledger between live-store backends, for when the
// storage backend itself changes.
package migrate

import (
	"context"
	"fmt"

	"github.com/NgigiN/walletsync/internal/logger"
	"github.com/NgigiN/walletsync/internal/settings"
	"github.com/NgigiN/walletsync/internal/storage"
)

// SkipReason says why Migrate did not copy anything.
type SkipReason string

const (
	SourceEmpty         SkipReason = "source empty"
	DestinationOccupied SkipReason = "destination occupied"
)

type Result struct {
	Skipped SkipReason
	// Copied counts the entities created per kind.
	Copied map[string]int
}

func (r Result) Total() int {
	n := 0
	for _, c := range r.Copied {
		n += c
	}
	return n
}

// identityMap maps a source live identity to its destination counterpart.
type identityMap map[string]string

func (m identityMap) link(id *string) *string {
	if id == nil {
		return nil
	}
	n, ok := m[*id]
	if !ok {
		return nil
	}
	return &n
}

// Migrate copies every entity of src into dst, relinking references through
// per-kind identity maps. It does nothing when src is empty or dst holds any
// data. The copy runs in one dst transaction.
func Migrate(ctx context.Context, src, dst *storage.Database) (Result, error) {
	empty, err := src.IsEmpty(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to inspect source: %w", err)
	}
	if empty {
		return Result{Skipped: SourceEmpty}, nil
	}
	empty, err = dst.IsEmpty(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to inspect destination: %w", err)
	}
	if !empty {
		return Result{Skipped: DestinationOccupied}, nil
	}

	g, err := src.LoadGraph(ctx)
	if err != nil {
		return Result{}, err
	}

	res := Result{Copied: make(map[string]int)}
	err = dst.Transaction(ctx, func(tx *storage.Database) error {
		return copyGraph(ctx, tx, g, res.Copied)
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to migrate %s to %s: %w", src.Backend(), dst.Backend(), err)
	}
	return res, nil
}

func copyGraph(ctx context.Context, dst *storage.Database, g *storage.Graph, copied map[string]int) error {
	cats := identityMap{}
	for _, c := range g.Categories {
		old := c.ID
		c.ID = ""
		if err := dst.Create(ctx, &c); err != nil {
			return err
		}
		cats[old] = c.ID
	}
	copied["categories"] = len(g.Categories)

	folders := identityMap{}
	for _, f := range g.Folders {
		old := f.ID
		f.ID = ""
		if err := dst.Create(ctx, &f); err != nil {
			return err
		}
		folders[old] = f.ID
	}
	copied["walletFolders"] = len(g.Folders)

	assets := identityMap{}
	for _, a := range g.Assets {
		old := a.ID
		a.ID = ""
		if err := dst.Create(ctx, &a); err != nil {
			return err
		}
		assets[old] = a.ID
	}
	copied["assets"] = len(g.Assets)

	wallets := identityMap{}
	for _, w := range g.Wallets {
		old := w.ID
		w.ID = ""
		w.FolderID = folders.link(w.FolderID)
		w.AssetID = assets.link(w.AssetID)
		if err := dst.Create(ctx, &w); err != nil {
			return err
		}
		wallets[old] = w.ID
	}
	copied["wallets"] = len(g.Wallets)

	for _, t := range g.Transactions {
		t.ID = ""
		t.CategoryID = cats.link(t.CategoryID)
		t.WalletID = wallets.link(t.WalletID)
		t.TransferWalletID = wallets.link(t.TransferWalletID)
		if err := dst.Create(ctx, &t); err != nil {
			return err
		}
	}
	copied["transactions"] = len(g.Transactions)

	for _, r := range g.RecurringRules {
		r.ID = ""
		r.CategoryID = cats.link(r.CategoryID)
		r.WalletID = wallets.link(r.WalletID)
		if err := dst.Create(ctx, &r); err != nil {
			return err
		}
	}
	copied["recurringRules"] = len(g.RecurringRules)

	for _, b := range g.Budgets {
		b.ID = ""
		b.CategoryID = cats.link(b.CategoryID)
		if err := dst.Create(ctx, &b); err != nil {
			return err
		}
	}
	copied["budgets"] = len(g.Budgets)
	return nil
}

// Mode is the storage mode the user asked for.
type Mode string

const (
	ModeLocal Mode = "local"
	ModeCloud Mode = "cloud"
)

// Switch moves the ledger to a new backend when the storage mode changes.
// The migration is best effort: a failure is logged and the switch still
// completes, since dst refuses to be overwritten once it holds data.
func Switch(ctx context.Context, st *settings.Store, bucket string, src, dst *storage.Database, mode Mode) Result {
	log := logger.FromContext(ctx).With("bucket", bucket, "mode", mode)

	if err := st.SetBool(settings.Key(bucket, settings.RequestedCloud), mode == ModeCloud); err != nil {
		log.Warn("failed to record requested storage mode", "error", err)
	}

	res, err := Migrate(ctx, src, dst)
	switch {
	case err != nil:
		log.Warn("store migration failed", "from", src.Backend(), "to", dst.Backend(), "error", err)
	case res.Skipped != "":
		log.Info("store migration skipped", "reason", res.Skipped)
	default:
		log.Info("store migrated", "from", src.Backend(), "to", dst.Backend(), "entities", res.Total())
	}

	if err := st.Set(settings.Key(bucket, settings.StorageMode), string(mode)); err != nil {
		log.Warn("failed to record storage mode", "error", err)
	}
	return res
}
