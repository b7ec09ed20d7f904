package diagnostics

import (
	"log/slog"
	"time"

	"github.com/NgigiN/walletsync/internal/settings"
)

// Sink records success and failure of local and remote writes per bucket.
// It never returns errors: a diagnostics write that fails is logged and
// dropped so it cannot block the backup flow.
type Sink struct {
	store  *settings.Store
	logger *slog.Logger
	now    func() time.Time
}

func NewSink(store *settings.Store, logger *slog.Logger) *Sink {
	return &Sink{store: store, logger: logger, now: time.Now}
}

func (s *Sink) LocalSuccess(bucket string) {
	s.success(bucket, settings.LastLocalSuccess, settings.LastLocalError)
}

func (s *Sink) RemoteSuccess(bucket string) {
	s.success(bucket, settings.LastRemoteSuccess, settings.LastRemoteError)
}

// LocalFailure records err as the bucket's last local error and returns its
// classification.
func (s *Sink) LocalFailure(bucket string, err error) Reason {
	return s.failure(bucket, settings.LastLocalError, err)
}

func (s *Sink) RemoteFailure(bucket string, err error) Reason {
	return s.failure(bucket, settings.LastRemoteError, err)
}

func (s *Sink) success(bucket, timeKey, errKey string) {
	err := s.store.SetMany(map[string]string{
		settings.Key(bucket, timeKey): s.now().UTC().Format(time.RFC3339Nano),
		settings.Key(bucket, errKey):  "",
	})
	if err != nil {
		s.logger.Warn("failed to record backup success", "bucket", bucket, "error", err)
	}
}

func (s *Sink) failure(bucket, errKey string, cause error) Reason {
	reason := Classify(cause)
	err := s.store.SetMany(map[string]string{
		settings.Key(bucket, errKey):              cause.Error(),
		settings.Key(bucket, settings.LastReason): string(reason),
	})
	if err != nil {
		s.logger.Warn("failed to record backup failure", "bucket", bucket, "error", err)
	}
	s.logger.Warn("backup write failed", "bucket", bucket, "reason", reason, "error", cause)
	return reason
}

// Status is everything the UI shows about a bucket.
type Status struct {
	Bucket            string    `json:"bucket"`
	LastLocalSuccess  time.Time `json:"lastLocalSuccessAt"`
	LastRemoteSuccess time.Time `json:"lastRemoteSuccessAt"`
	LastLocalError    string    `json:"lastLocalError,omitempty"`
	LastRemoteError   string    `json:"lastRemoteError,omitempty"`
	LastReason        Reason    `json:"lastReason,omitempty"`
	LocalDigest       string    `json:"localDigest,omitempty"`
	RemoteDigest      string    `json:"remoteDigest,omitempty"`
	StorageMode       string    `json:"storageMode,omitempty"`
	RequestedCloud    bool      `json:"requestedCloud"`
}

func (s *Sink) Status(bucket string) Status {
	st := Status{
		Bucket:          bucket,
		LastLocalError:  s.store.GetString(settings.Key(bucket, settings.LastLocalError)),
		LastRemoteError: s.store.GetString(settings.Key(bucket, settings.LastRemoteError)),
		LastReason:      Reason(s.store.GetString(settings.Key(bucket, settings.LastReason))),
		LocalDigest:     s.store.GetString(settings.Key(bucket, settings.LocalDigest)),
		RemoteDigest:    s.store.GetString(settings.Key(bucket, settings.RemoteDigest)),
		StorageMode:     s.store.GetString(settings.Key(bucket, settings.StorageMode)),
	}
	st.LastLocalSuccess, _, _ = s.store.GetTime(settings.Key(bucket, settings.LastLocalSuccess))
	st.LastRemoteSuccess, _, _ = s.store.GetTime(settings.Key(bucket, settings.LastRemoteSuccess))
	st.RequestedCloud, _ = s.store.GetBool(settings.Key(bucket, settings.RequestedCloud))
	return st
}
