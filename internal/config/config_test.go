package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("WALLETSYNC_ACCOUNT", "me@example.com")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.StorageMode)
	assert.Equal(t, 3, cfg.RemoteAttempts)
	assert.Equal(t, 5*time.Second, cfg.BackupInterval)
	assert.Equal(t, filepath.Join("data", "transaction.db"), cfg.DatabasePath)
	assert.False(t, cfg.CloudBackup())
	assert.Error(t, cfg.RequireDiscord())
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "walletsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
account: file-account
gcs_bucket: ledger-backups
backup_interval: 30s
remote_attempts: 5
discord_bot_token: tok
discord_channel_id: chan
`), 0o600))
	t.Setenv("WALLETSYNC_CONFIG", path)
	t.Setenv("REMOTE_ATTEMPTS", "2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "file-account", cfg.Account)
	assert.Equal(t, 30*time.Second, cfg.BackupInterval)
	assert.Equal(t, 2, cfg.RemoteAttempts)
	assert.True(t, cfg.CloudBackup())
	assert.NoError(t, cfg.RequireDiscord())
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"no account":    {},
		"cloud no dsn":  {"WALLETSYNC_ACCOUNT": "a", "STORAGE_MODE": "cloud"},
		"unknown mode":  {"WALLETSYNC_ACCOUNT": "a", "STORAGE_MODE": "ftp"},
		"zero attempts": {"WALLETSYNC_ACCOUNT": "a", "REMOTE_ATTEMPTS": "0"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			chdir(t, t.TempDir())
			t.Setenv("WALLETSYNC_ACCOUNT", "")
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
