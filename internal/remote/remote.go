// Package remote stores one snapshot record per bucket in a remote object
// store, with optimistic concurrency on a per-record version tag.
package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/NgigiN/walletsync/internal/diagnostics"
	"github.com/NgigiN/walletsync/internal/logger"
	"github.com/NgigiN/walletsync/internal/snapshot"
)

// RecordType is the record type every snapshot record carries.
const RecordType = "WalletSnapshot"

const defaultAttempts = 3

var ErrNotFound = errors.New("remote record not found")

// Record is the remote representation of one bucket's snapshot. Version is
// opaque to callers; zero means the record has never been saved.
type Record struct {
	Type          string
	Name          string
	Version       int64
	PayloadHash   string
	UpdatedAt     time.Time
	SchemaVersion int
	Payload       []byte
}

func (r *Record) clone() *Record {
	c := *r
	c.Payload = slices.Clone(r.Payload)
	return &c
}

// ConflictError is returned by Client.Save when the record changed on the
// server since it was fetched. Server holds the current server copy, or nil
// when the record no longer exists.
type ConflictError struct {
	Name   string
	Server *Record
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("remote record %s was modified concurrently", e.Name)
}

// Client is a remote record store.
type Client interface {
	// Fetch returns ErrNotFound when no record exists under name.
	Fetch(ctx context.Context, name string) (*Record, error)
	// Save writes rec if its Version still matches the server's, returning
	// the saved record with its new Version.
	Save(ctx context.Context, rec *Record) (*Record, error)
}

// RecordName is the record name of a bucket's snapshot.
func RecordName(bucket string) string {
	return "snapshot-" + bucket
}

type Store struct {
	client   Client
	attempts int
	backoff  time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

type Option func(*Store)

// WithAttempts sets the total number of save attempts per Put.
func WithAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.attempts = n
		}
	}
}

// WithBackoff sets the base delay between attempts; attempt n waits n*d.
func WithBackoff(d time.Duration) Option {
	return func(s *Store) { s.backoff = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

func NewStore(client Client, opts ...Option) *Store {
	s := &Store{
		client:   client,
		attempts: defaultAttempts,
		backoff:  500 * time.Millisecond,
		now:      time.Now,
		logger:   logger.L,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Get returns the payload of the bucket's snapshot record, retrying
// transient failures. It returns ErrNotFound when nothing was ever uploaded.
func (s *Store) Get(ctx context.Context, bucket string) ([]byte, *Record, error) {
	name := RecordName(bucket)
	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		if attempt > 1 {
			if err := s.sleep(ctx, attempt-1); err != nil {
				return nil, nil, err
			}
		}
		rec, err := s.client.Fetch(ctx, name)
		if err == nil {
			return rec.Payload, rec, nil
		}
		if errors.Is(err, ErrNotFound) || !diagnostics.Classify(err).Transient() {
			return nil, nil, err
		}
		lastErr = err
		s.logger.Debug("retrying remote fetch", "record", name, "attempt", attempt, "error", err)
	}
	return nil, nil, fmt.Errorf("failed to fetch %s after %d attempts: %w", name, s.attempts, lastErr)
}

// Put creates or updates the bucket's snapshot record. Version conflicts are
// resolved by reapplying the fields onto the server copy; transient failures
// are retried. Both share the attempt budget.
func (s *Store) Put(ctx context.Context, bucket, digest string, payload []byte) (*Record, error) {
	name := RecordName(bucket)
	var (
		rec     *Record
		lastErr error
	)
	for attempt := 1; attempt <= s.attempts; attempt++ {
		if attempt > 1 {
			if err := s.sleep(ctx, attempt-1); err != nil {
				return nil, err
			}
		}

		if rec == nil {
			cur, err := s.client.Fetch(ctx, name)
			switch {
			case errors.Is(err, ErrNotFound):
				rec = &Record{Type: RecordType, Name: name}
			case err != nil:
				lastErr = err
				if !diagnostics.Classify(err).Transient() {
					return nil, fmt.Errorf("failed to fetch %s: %w", name, err)
				}
				s.logger.Debug("retrying remote fetch", "record", name, "attempt", attempt, "error", err)
				continue
			default:
				rec = cur
			}
		}

		rec.PayloadHash = digest
		rec.UpdatedAt = s.now().UTC()
		rec.SchemaVersion = snapshot.SchemaVersion
		rec.Payload = payload

		saved, err := s.client.Save(ctx, rec)
		if err == nil {
			return saved, nil
		}
		lastErr = err

		var conflict *ConflictError
		if errors.As(err, &conflict) {
			s.logger.Debug("remote record changed, reapplying", "record", name, "attempt", attempt)
			rec = conflict.Server
			if rec != nil {
				rec = rec.clone()
			}
			continue
		}
		if !diagnostics.Classify(err).Transient() {
			return nil, fmt.Errorf("failed to save %s: %w", name, err)
		}
		s.logger.Debug("retrying remote save", "record", name, "attempt", attempt, "error", err)
		// The failed save may or may not have landed; refetch.
		rec = nil
	}
	return nil, fmt.Errorf("failed to save %s after %d attempts: %w", name, s.attempts, lastErr)
}

func (s *Store) sleep(ctx context.Context, n int) error {
	if s.backoff <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(time.Duration(n) * s.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
