package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NgigiN/walletsync/internal/backup"
	"github.com/NgigiN/walletsync/internal/config"
	"github.com/NgigiN/walletsync/internal/migrate"
	"github.com/NgigiN/walletsync/internal/settings"
	"github.com/NgigiN/walletsync/internal/storage"
	"github.com/NgigiN/walletsync/internal/storage/storagetest"
)

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		Account:        "me@example.com",
		DataDir:        dir,
		StorageMode:    "local",
		DatabasePath:   filepath.Join(dir, "live.db"),
		RemoteAttempts: 3,
		BackupInterval: time.Hour,
	}
}

func TestLocalOnlyBackupAndRestore(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	a, err := Open(ctx, cfg)
	require.NoError(t, err)
	assert.Nil(t, a.Remote)
	storagetest.Seed(t, a.Live)

	assert.Equal(t, backup.Written, a.BackupIfNeeded(ctx, false))
	assert.Equal(t, backup.Throttled, a.BackupIfNeeded(ctx, false))
	st := a.Status()
	assert.NotEmpty(t, st.LocalDigest)
	assert.Empty(t, st.RemoteDigest)
	a.Close()

	// Same account, fresh live database: the local snapshot comes back.
	cfg.DatabasePath = filepath.Join(cfg.DataDir, "fresh.db")
	b, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer b.Close()

	restored, err := b.RestoreIfNeeded(ctx)
	require.NoError(t, err)
	assert.True(t, restored)
	g, err := b.Live.LoadGraph(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, g.Len())
}

func TestBackendForMode(t *testing.T) {
	cfg := &config.Config{DataDir: "d", MySQLDSN: "user:pw@tcp(db:3306)/ledger"}
	assert.Equal(t, storage.Backend{Driver: storage.DriverSQLite, DSN: filepath.Join("d", "transaction.db")}, Backend(cfg, migrate.ModeLocal))
	assert.Equal(t, storage.DriverMySQL, Backend(cfg, migrate.ModeCloud).Driver)
}

func TestSwitchModeRejectsUnknownMode(t *testing.T) {
	a, err := Open(context.Background(), testConfig(t))
	require.NoError(t, err)
	defer a.Close()

	_, err = a.SwitchMode(context.Background(), "tape")
	assert.Error(t, err)
	_, err = a.SwitchMode(context.Background(), migrate.ModeCloud)
	assert.Error(t, err)
}

func TestSwitchModeKeepsLedgerWhenCopyFails(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.BackupInterval = 0
	a, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer a.Close()
	storagetest.Seed(t, a.Live)
	require.Equal(t, backup.Written, a.BackupIfNeeded(ctx, false))
	before := a.Status().LocalDigest

	// The copy runs against a store that refuses transactions, so nothing
	// reaches the new live store.
	a.switchStore = func(ctx context.Context, st *settings.Store, bucket string, src, _ *storage.Database, mode migrate.Mode) migrate.Result {
		refusing := storagetest.Open(t, "refusing")
		storagetest.FailInserts(t, refusing, "transactions")
		return migrate.Switch(ctx, st, bucket, src, refusing, mode)
	}

	target := filepath.Join(cfg.DataDir, "target.db")
	a.Config.DatabasePath = target
	res, err := a.SwitchMode(ctx, migrate.ModeLocal)
	require.NoError(t, err)
	assert.Zero(t, res.Total())
	assert.Equal(t, target, a.Live.Backend().DSN)

	g, err := a.Live.LoadGraph(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, g.Len())

	assert.Equal(t, backup.Unchanged, a.BackupIfNeeded(ctx, false))
	assert.Equal(t, before, a.Status().LocalDigest)
	assert.Equal(t, string(migrate.ModeLocal), a.Settings.GetString(settings.Key(a.Bucket, settings.StorageMode)))
}
