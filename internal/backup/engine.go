// Package backup snapshots the live ledger to the local and remote stores and
// restores it into an empty live store.
package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/NgigiN/walletsync/internal/diagnostics"
	"github.com/NgigiN/walletsync/internal/digest"
	"github.com/NgigiN/walletsync/internal/localstore"
	"github.com/NgigiN/walletsync/internal/logger"
	"github.com/NgigiN/walletsync/internal/remote"
	"github.com/NgigiN/walletsync/internal/settings"
	"github.com/NgigiN/walletsync/internal/snapshot"
	"github.com/NgigiN/walletsync/internal/storage"
)

// DefaultMinInterval is the default minimum time between unforced backups of
// one bucket.
const DefaultMinInterval = 5 * time.Second

// restoreTimeout bounds a shared restore run, which outlives the callers
// waiting on it.
const restoreTimeout = 2 * time.Minute

// LiveStore is the entity store being backed up.
type LiveStore interface {
	LoadGraph(ctx context.Context) (*storage.Graph, error)
	ReplaceGraph(ctx context.Context, g *storage.Graph) error
	IsOccupied(ctx context.Context) (bool, error)
}

// RemoteReader fetches a bucket's remote payload.
type RemoteReader interface {
	Get(ctx context.Context, bucket string) ([]byte, *remote.Record, error)
}

// Requester accepts remote upload requests without blocking.
type Requester interface {
	Request(bucket string, payload []byte, digest string, force bool)
}

// Outcome is the result of one BackupIfNeeded call.
type Outcome int

const (
	Throttled Outcome = iota
	Unchanged
	Written
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Throttled:
		return "throttled"
	case Unchanged:
		return "unchanged"
	case Written:
		return "written"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

type Config struct {
	Local    *localstore.Store
	Settings *settings.Store
	Sink     *diagnostics.Sink

	// Remote and Uploads are nil when cloud backup is off.
	Remote  RemoteReader
	Uploads Requester

	// MinInterval throttles unforced backups per bucket. Zero or less
	// disables throttling.
	MinInterval time.Duration
}

type Engine struct {
	local   *localstore.Store
	digests settings.Digests
	sink    *diagnostics.Sink
	remote  RemoteReader
	uploads Requester
	logger  *slog.Logger

	interval time.Duration
	mu       sync.Mutex
	limiters *cache.Cache

	restores singleflight.Group
}

func New(cfg Config) *Engine {
	e := &Engine{
		local:    cfg.Local,
		digests:  cfg.Settings.Digests(),
		sink:     cfg.Sink,
		remote:   cfg.Remote,
		uploads:  cfg.Uploads,
		logger:   logger.L,
		interval: cfg.MinInterval,
	}
	if e.interval > 0 {
		e.limiters = cache.New(2*e.interval, 10*e.interval)
	}
	return e
}

// allow reports whether an unforced backup of bucket may run now. Each
// bucket's limiter is kept in the cache until it has been idle for twice the
// interval, after which a fresh one behaves identically.
func (e *Engine) allow(bucket string) bool {
	if e.limiters == nil {
		return true
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	var lim *rate.Limiter
	if v, ok := e.limiters.Get(bucket); ok {
		lim = v.(*rate.Limiter)
	} else {
		lim = rate.NewLimiter(rate.Every(e.interval), 1)
	}
	if !lim.Allow() {
		return false
	}
	e.limiters.SetDefault(bucket, lim)
	return true
}

// BackupIfNeeded snapshots store for account. The local copy is rewritten
// only when the content changed (or force is set); the remote upload is
// handed to the coordinator, which applies its own skip rule. Failures are
// recorded in diagnostics and never returned.
func (e *Engine) BackupIfNeeded(ctx context.Context, store LiveStore, account string, force bool) Outcome {
	bucket := digest.Bucket(account)
	log := logger.FromContext(ctx).With("bucket", bucket)

	if !force && !e.allow(bucket) {
		log.Debug("backup throttled")
		return Throttled
	}

	g, err := store.LoadGraph(ctx)
	if err != nil {
		e.sink.LocalFailure(bucket, err)
		return Failed
	}
	payload, _, err := snapshot.Encode(g)
	if err != nil {
		e.sink.LocalFailure(bucket, err)
		return Failed
	}
	sum := digest.Sum(payload)

	outcome := Unchanged
	if force || sum != e.digests.Local(bucket) {
		if err := e.local.Write(bucket, payload); err != nil {
			e.sink.LocalFailure(bucket, err)
			outcome = Failed
		} else {
			if err := e.digests.SetLocal(bucket, sum); err != nil {
				log.Warn("failed to record local digest", "error", err)
			}
			e.sink.LocalSuccess(bucket)
			outcome = Written
			log.Info("local snapshot written", "entities", g.Len(), "bytes", len(payload))
		}
	}

	if e.uploads != nil {
		e.uploads.Request(bucket, payload, sum, force)
	}
	return outcome
}

// RestoreIfNeeded fills an empty live store from the newest snapshot
// available for account, local first then remote. It reports whether a
// restore happened. Concurrent calls for one account share a single run; a
// caller whose ctx ends stops waiting, but the run itself carries on.
func (e *Engine) RestoreIfNeeded(ctx context.Context, store LiveStore, account string) (bool, error) {
	bucket := digest.Bucket(account)
	ch := e.restores.DoChan(bucket, func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), restoreTimeout)
		defer cancel()
		return e.restore(runCtx, store, bucket)
	})
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case res := <-ch:
		restored, _ := res.Val.(bool)
		return restored, res.Err
	}
}

func (e *Engine) restore(ctx context.Context, store LiveStore, bucket string) (bool, error) {
	log := logger.FromContext(ctx).With("bucket", bucket)

	occupied, err := store.IsOccupied(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to inspect live store: %w", err)
	}
	if occupied {
		return false, nil
	}

	snap, payload, source, err := e.load(ctx, bucket)
	if errors.Is(err, snapshot.ErrUnsupportedVersion) {
		log.Warn("snapshot written by a newer version, skipping restore", "source", source, "error", err)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if snap == nil {
		log.Info("no snapshot to restore")
		return false, nil
	}

	g := snap.Materialize(nil)
	if g.Len() == 0 {
		log.Info("snapshot is empty, nothing to restore", "source", source)
		return false, nil
	}
	if err := store.ReplaceGraph(ctx, g); err != nil {
		return false, fmt.Errorf("failed to restore %s snapshot: %w", source, err)
	}

	if err := e.digests.SetBoth(bucket, digest.Sum(payload)); err != nil {
		log.Warn("failed to record restored digest", "error", err)
	}
	log.Info("snapshot restored", "source", source, "entities", g.Len())
	return true, nil
}

// load returns the first usable snapshot. A local snapshot that fails to
// decode falls back to the remote one; a newer-version local snapshot does
// not, since the remote would be at least as new.
func (e *Engine) load(ctx context.Context, bucket string) (*snapshot.Snapshot, []byte, string, error) {
	var localErr error
	data, err := e.local.Read(bucket)
	switch {
	case err == nil:
		snap, err := snapshot.Decode(data)
		if err == nil || errors.Is(err, snapshot.ErrUnsupportedVersion) {
			return snap, data, "local", err
		}
		localErr = fmt.Errorf("failed to decode local snapshot: %w", err)
		logger.FromContext(ctx).Warn("local snapshot unreadable, trying remote", "bucket", bucket, "error", err)
	case !errors.Is(err, localstore.ErrNotFound):
		e.sink.LocalFailure(bucket, err)
		localErr = err
	}

	if e.remote == nil {
		return nil, nil, "local", localErr
	}
	data, _, err = e.remote.Get(ctx, bucket)
	if errors.Is(err, remote.ErrNotFound) {
		return nil, nil, "remote", localErr
	}
	if err != nil {
		e.sink.RemoteFailure(bucket, err)
		return nil, nil, "remote", fmt.Errorf("failed to fetch remote snapshot: %w", err)
	}
	snap, err := snapshot.Decode(data)
	if err != nil && !errors.Is(err, snapshot.ErrUnsupportedVersion) {
		err = fmt.Errorf("failed to decode remote snapshot: %w", err)
	}
	return snap, data, "remote", err
}
