// Package settings persists flat key/value settings in an embedded BadgerDB.
//
// Keys are namespaced per bucket (see Key) so several accounts can share one
// settings directory without ever storing the account identifier itself.
package settings

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Per-bucket setting names.
const (
	LastLocalSuccess  = "lastLocalSuccessAt"
	LastRemoteSuccess = "lastRemoteSuccessAt"
	LastLocalError    = "lastLocalError"
	LastRemoteError   = "lastRemoteError"
	LastReason        = "lastReason"
	LocalDigest       = "localDigest"
	RemoteDigest      = "remoteDigest"
	StorageMode       = "storageMode"
	RequestedCloud    = "requestedCloud"
)

// Key returns the flat key of a per-bucket setting.
func Key(bucket, name string) string {
	return "bucket/" + bucket + "/" + name
}

// Config holds configuration for the settings database.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string

	// InMemory keeps everything in RAM. Useful for testing.
	InMemory bool

	// SyncWrites fsyncs every write.
	SyncWrites bool

	// Logger receives BadgerDB's own logs. Nil disables them.
	Logger *slog.Logger
}

func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true}
}

func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store is a flat key/value settings store. Safe for concurrent use.
type Store struct {
	db *badger.DB
}

func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent settings")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create settings directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open settings database: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the raw value of key and whether it was set.
func (s *Store) Get(key string) (string, bool, error) {
	var val []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read setting %s: %w", key, err)
	}
	return string(val), true, nil
}

// GetString returns the value of key, or "" when unset or unreadable.
func (s *Store) GetString(key string) string {
	v, _, _ := s.Get(key)
	return v
}

func (s *Store) Set(key, value string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("write setting %s: %w", key, err)
	}
	return nil
}

// SetMany writes all pairs in one transaction.
func (s *Store) SetMany(pairs map[string]string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		for k, v := range pairs {
			if err := txn.Set([]byte(k), []byte(v)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

func (s *Store) Delete(key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("delete setting %s: %w", key, err)
	}
	return nil
}

func (s *Store) GetTime(key string) (time.Time, bool, error) {
	v, ok, err := s.Get(key)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse setting %s: %w", key, err)
	}
	return t, true, nil
}

func (s *Store) SetTime(key string, t time.Time) error {
	return s.Set(key, t.UTC().Format(time.RFC3339Nano))
}

func (s *Store) GetBool(key string) (bool, error) {
	v, ok, err := s.Get(key)
	if err != nil || !ok {
		return false, err
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parse setting %s: %w", key, err)
	}
	return b, nil
}

func (s *Store) SetBool(key string, b bool) error {
	return s.Set(key, strconv.FormatBool(b))
}

// Digests is the per-bucket view of the last known local and remote payload
// digests.
type Digests struct {
	store *Store
}

func (s *Store) Digests() Digests { return Digests{store: s} }

func (d Digests) Local(bucket string) string  { return d.store.GetString(Key(bucket, LocalDigest)) }
func (d Digests) Remote(bucket string) string { return d.store.GetString(Key(bucket, RemoteDigest)) }

func (d Digests) SetLocal(bucket, digest string) error {
	return d.store.Set(Key(bucket, LocalDigest), digest)
}

func (d Digests) SetRemote(bucket, digest string) error {
	return d.store.Set(Key(bucket, RemoteDigest), digest)
}

// SetBoth records digest as both the local and remote digest, as after a
// restore where both copies are known to match.
func (d Digests) SetBoth(bucket, digest string) error {
	return d.store.SetMany(map[string]string{
		Key(bucket, LocalDigest):  digest,
		Key(bucket, RemoteDigest): digest,
	})
}
