// Package app wires the live store, the snapshot stores and the backup
// machinery together from a Config.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/NgigiN/walletsync/internal/backup"
	"github.com/NgigiN/walletsync/internal/config"
	"github.com/NgigiN/walletsync/internal/diagnostics"
	"github.com/NgigiN/walletsync/internal/digest"
	"github.com/NgigiN/walletsync/internal/localstore"
	"github.com/NgigiN/walletsync/internal/logger"
	"github.com/NgigiN/walletsync/internal/migrate"
	"github.com/NgigiN/walletsync/internal/remote"
	"github.com/NgigiN/walletsync/internal/settings"
	"github.com/NgigiN/walletsync/internal/storage"
	"github.com/NgigiN/walletsync/internal/upload"
)

type App struct {
	Config   *config.Config
	Bucket   string
	Live     *storage.Database
	Settings *settings.Store
	Sink     *diagnostics.Sink
	Local    *localstore.Store
	Remote   *remote.Store // nil without cloud backup
	Uploads  *upload.Coordinator
	Backups  *backup.Engine

	gcs         *remote.GCSClient
	switchStore func(ctx context.Context, st *settings.Store, bucket string, src, dst *storage.Database, mode migrate.Mode) migrate.Result
}

// Open builds an App. The caller must Close it.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg, Bucket: digest.Bucket(cfg.Account), switchStore: migrate.Switch}

	var err error
	sc := settings.DefaultConfig(cfg.SettingsDir())
	sc.Logger = logger.L
	if a.Settings, err = settings.Open(sc); err != nil {
		return nil, err
	}
	a.Sink = diagnostics.NewSink(a.Settings, logger.L)
	a.Local = localstore.New(cfg.DataDir)

	// A mode chosen with SwitchMode outlives the configured one.
	if m := a.Settings.GetString(settings.Key(a.Bucket, settings.StorageMode)); m != "" && m != cfg.StorageMode {
		if m == string(migrate.ModeCloud) && cfg.MySQLDSN == "" {
			logger.L.Warn("cloud storage was selected but no MySQL DSN is configured, staying local")
		} else {
			cfg.StorageMode = m
		}
	}
	if a.Live, err = storage.Open(Backend(cfg, migrate.Mode(cfg.StorageMode))); err != nil {
		a.Close()
		return nil, err
	}

	var uploads backup.Requester
	var reader backup.RemoteReader
	if cfg.CloudBackup() {
		a.gcs, err = remote.NewGCSClient(ctx, cfg.GCSBucket, cfg.GCSPrefix, cfg.GCSCredentialsFile)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Remote = remote.NewStore(a.gcs,
			remote.WithAttempts(cfg.RemoteAttempts),
			remote.WithBackoff(cfg.RemoteBackoff),
			remote.WithLogger(logger.L),
		)
		a.Uploads = upload.New(a.Remote, a.Settings.Digests(), a.Sink, cfg.UploadTimeout)
		uploads, reader = a.Uploads, a.Remote
	}

	a.Backups = backup.New(backup.Config{
		Local:       a.Local,
		Settings:    a.Settings,
		Sink:        a.Sink,
		Remote:      reader,
		Uploads:     uploads,
		MinInterval: cfg.BackupInterval,
	})
	return a, nil
}

// Backend returns the live-store backend used in mode.
func Backend(cfg *config.Config, mode migrate.Mode) storage.Backend {
	if mode == migrate.ModeCloud {
		return storage.Backend{Driver: storage.DriverMySQL, DSN: cfg.MySQLDSN}
	}
	path := cfg.DatabasePath
	if path == "" {
		path = filepath.Join(cfg.DataDir, "transaction.db")
	}
	return storage.Backend{Driver: storage.DriverSQLite, DSN: path}
}

func (a *App) BackupIfNeeded(ctx context.Context, force bool) backup.Outcome {
	return a.Backups.BackupIfNeeded(ctx, a.Live, a.Config.Account, force)
}

func (a *App) RestoreIfNeeded(ctx context.Context) (bool, error) {
	return a.Backups.RestoreIfNeeded(ctx, a.Live, a.Config.Account)
}

func (a *App) Status() diagnostics.Status {
	return a.Sink.Status(a.Bucket)
}

// SwitchMode copies the ledger into the backend of mode and makes it the live
// store. The copy is best effort; the switch itself fails only when the new
// backend cannot be opened. The ledger is snapshotted first, and a new live
// store the copy left empty is refilled from that snapshot, so a failed copy
// never leaves an empty ledger for the next backup to upload.
func (a *App) SwitchMode(ctx context.Context, mode migrate.Mode) (migrate.Result, error) {
	if mode != migrate.ModeLocal && mode != migrate.ModeCloud {
		return migrate.Result{}, fmt.Errorf("unknown storage mode %q", mode)
	}
	if mode == migrate.ModeCloud && a.Config.MySQLDSN == "" {
		return migrate.Result{}, errors.New("MySQL DSN is not configured")
	}
	dst, err := storage.Open(Backend(a.Config, mode))
	if err != nil {
		return migrate.Result{}, err
	}
	if out := a.BackupIfNeeded(ctx, true); out == backup.Failed {
		logger.L.Warn("could not snapshot the ledger before switching storage", "mode", mode)
	}
	res := a.switchStore(ctx, a.Settings, a.Bucket, a.Live, dst, mode)

	old := a.Live
	a.Live = dst
	a.Config.StorageMode = string(mode)
	if err := old.Close(); err != nil {
		logger.L.Warn("failed to close previous live store", "error", err)
	}

	restored, err := a.RestoreIfNeeded(ctx)
	switch {
	case err != nil:
		logger.L.Warn("failed to refill new live store from snapshot", "mode", mode, "error", err)
	case restored:
		logger.L.Info("new live store refilled from snapshot", "mode", mode)
	}
	return res, nil
}

// Close waits for running uploads, then releases everything.
func (a *App) Close() {
	if a.Uploads != nil {
		a.Uploads.Wait()
	}
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			logger.L.Warn("failed to close GCS client", "error", err)
		}
	}
	if a.Live != nil {
		if err := a.Live.Close(); err != nil {
			logger.L.Warn("failed to close live store", "error", err)
		}
	}
	if a.Settings != nil {
		if err := a.Settings.Close(); err != nil {
			logger.L.Warn("failed to close settings", "error", err)
		}
	}
}
