package migrate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NgigiN/walletsync/internal/settings"
	"github.com/NgigiN/walletsync/internal/storage"
	"github.com/NgigiN/walletsync/internal/storage/storagetest"
)

func TestMigrateSkipsEmptySource(t *testing.T) {
	res, err := Migrate(context.Background(), storagetest.Open(t, "src"), storagetest.Open(t, "dst"))
	require.NoError(t, err)
	assert.Equal(t, SourceEmpty, res.Skipped)
}

func TestMigrateNeverOverwritesOccupiedDestination(t *testing.T) {
	ctx := context.Background()
	src := storagetest.Open(t, "src")
	storagetest.Seed(t, src)
	dst := storagetest.Open(t, "dst")
	existing := storage.Category{Name: "Mine", Type: storage.CategoryExpense}
	require.NoError(t, dst.Create(ctx, &existing))

	res, err := Migrate(ctx, src, dst)
	require.NoError(t, err)
	assert.Equal(t, DestinationOccupied, res.Skipped)

	g, err := dst.LoadGraph(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, g.Len())
}

func TestMigrateFailureLeavesDestinationEmpty(t *testing.T) {
	ctx := context.Background()
	src := storagetest.Open(t, "src")
	storagetest.Seed(t, src)
	dst := storagetest.Open(t, "dst")
	storagetest.FailInserts(t, dst, "transactions")

	res, err := Migrate(ctx, src, dst)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert into transactions refused")
	assert.Zero(t, res.Total())

	empty, err := dst.IsEmpty(ctx)
	require.NoError(t, err)
	assert.True(t, empty, "categories and wallets copied before the failure are rolled back")

	srcEmpty, err := src.IsEmpty(ctx)
	require.NoError(t, err)
	assert.False(t, srcEmpty)
}

func TestMigrateRelinksRelationships(t *testing.T) {
	ctx := context.Background()
	src := storagetest.Open(t, "src")
	seeded := storagetest.Seed(t, src)
	dst := storagetest.Open(t, "dst")

	res, err := Migrate(ctx, src, dst)
	require.NoError(t, err)
	assert.Empty(t, res.Skipped)
	assert.Equal(t, 10, res.Total())
	assert.Equal(t, 2, res.Copied["transactions"])

	g, err := dst.LoadGraph(ctx)
	require.NoError(t, err)

	byName := map[string]string{}
	for _, c := range g.Categories {
		byName["cat:"+c.Name] = c.ID
		assert.NotEqual(t, seeded.Groceries.ID, c.ID)
	}
	for _, w := range g.Wallets {
		byName["wallet:"+w.Name] = w.ID
	}
	require.Len(t, g.Folders, 1)
	require.Len(t, g.Assets, 1)

	for _, w := range g.Wallets {
		if w.Name == "Cold" {
			assert.Equal(t, g.Folders[0].ID, *w.FolderID)
			assert.Equal(t, g.Assets[0].ID, *w.AssetID)
		} else {
			assert.Nil(t, w.FolderID)
		}
	}
	for _, tx := range g.Transactions {
		assert.Equal(t, byName["wallet:Cash"], *tx.WalletID)
		if tx.TransferWalletID != nil {
			assert.Equal(t, byName["wallet:Cold"], *tx.TransferWalletID)
		} else {
			assert.Equal(t, byName["cat:Groceries"], *tx.CategoryID)
		}
	}
	require.Len(t, g.Budgets, 1)
	assert.Equal(t, byName["cat:Groceries"], *g.Budgets[0].CategoryID)
	require.Len(t, g.RecurringRules, 1)
	assert.Equal(t, byName["wallet:Cash"], *g.RecurringRules[0].WalletID)
	assert.True(t, g.RecurringRules[0].CreatedAt.Equal(seeded.Rent.CreatedAt))
}

func TestSwitchRecordsModeAndMigrates(t *testing.T) {
	ctx := context.Background()
	st, err := settings.Open(settings.InMemoryConfig())
	require.NoError(t, err)
	defer st.Close()

	src := storagetest.Open(t, "src")
	storagetest.Seed(t, src)
	dst := storagetest.Open(t, "dst")

	res := Switch(ctx, st, "b1", src, dst, ModeCloud)
	assert.Equal(t, 10, res.Total())
	assert.Equal(t, "cloud", st.GetString(settings.Key("b1", settings.StorageMode)))
	requested, err := st.GetBool(settings.Key("b1", settings.RequestedCloud))
	require.NoError(t, err)
	assert.True(t, requested)

	// A second switch finds the destination occupied and leaves it alone.
	res = Switch(ctx, st, "b1", src, dst, ModeCloud)
	assert.Equal(t, DestinationOccupied, res.Skipped)
}
