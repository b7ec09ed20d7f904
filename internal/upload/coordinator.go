// Package upload serializes remote snapshot writes per bucket.
//
// At most one write per bucket is in flight. Requests arriving while a write
// runs replace the bucket's pending request, so only the latest payload is
// uploaded once the current write finishes.
package upload

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/NgigiN/walletsync/internal/diagnostics"
	"github.com/NgigiN/walletsync/internal/logger"
	"github.com/NgigiN/walletsync/internal/remote"
)

var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "walletsync_uploads_total",
		Help: "Remote snapshot uploads by result",
	}, []string{"result"})

	uploadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "walletsync_upload_duration_seconds",
		Help:    "Remote snapshot upload duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	})

	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "walletsync_upload_requests_total",
		Help: "Upload requests by how they were handled",
	}, []string{"handling"})
)

// Uploader writes a bucket's payload to the remote store.
type Uploader interface {
	Put(ctx context.Context, bucket, digest string, payload []byte) (*remote.Record, error)
}

// DigestStore remembers the last digest successfully persisted remotely.
type DigestStore interface {
	Remote(bucket string) string
	SetRemote(bucket, digest string) error
}

type Reporter interface {
	RemoteSuccess(bucket string)
	RemoteFailure(bucket string, err error) diagnostics.Reason
}

type request struct {
	payload []byte
	digest  string
	force   bool
}

type bucketState struct {
	inflight bool
	pending  *request
}

type Coordinator struct {
	uploader Uploader
	digests  DigestStore
	reporter Reporter
	timeout  time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	states map[string]*bucketState
	wg     sync.WaitGroup
}

// New returns a coordinator. timeout bounds each remote write; zero means
// no bound.
func New(uploader Uploader, digests DigestStore, reporter Reporter, timeout time.Duration) *Coordinator {
	return &Coordinator{
		uploader: uploader,
		digests:  digests,
		reporter: reporter,
		timeout:  timeout,
		logger:   logger.L,
		states:   make(map[string]*bucketState),
	}
}

// Request schedules an upload of payload for bucket and returns immediately.
func (c *Coordinator) Request(bucket string, payload []byte, digest string, force bool) {
	req := request{payload: payload, digest: digest, force: force}

	c.mu.Lock()
	st, ok := c.states[bucket]
	if !ok {
		st = &bucketState{}
		c.states[bucket] = st
	}
	if st.inflight {
		if st.pending != nil {
			requestsTotal.WithLabelValues("coalesced").Inc()
		}
		st.pending = &req
		c.mu.Unlock()
		requestsTotal.WithLabelValues("deferred").Inc()
		return
	}
	st.inflight = true
	c.wg.Add(1)
	c.mu.Unlock()

	requestsTotal.WithLabelValues("started").Inc()
	go c.run(bucket, req)
}

// run uploads req, then keeps draining the bucket's pending request until
// none is left. inflight stays set for the whole loop.
func (c *Coordinator) run(bucket string, req request) {
	defer c.wg.Done()
	for {
		c.upload(bucket, req)

		c.mu.Lock()
		st := c.states[bucket]
		if st.pending == nil {
			delete(c.states, bucket)
			c.mu.Unlock()
			return
		}
		req = *st.pending
		st.pending = nil
		c.mu.Unlock()
	}
}

func (c *Coordinator) upload(bucket string, req request) {
	if !req.force && req.digest == c.digests.Remote(bucket) {
		uploadsTotal.WithLabelValues("skipped").Inc()
		c.logger.Debug("remote snapshot already current", "bucket", bucket)
		return
	}

	ctx := context.Background()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	_, err := c.uploader.Put(ctx, bucket, req.digest, req.payload)
	uploadDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		uploadsTotal.WithLabelValues("failed").Inc()
		c.reporter.RemoteFailure(bucket, err)
		return
	}

	uploadsTotal.WithLabelValues("succeeded").Inc()
	if err := c.digests.SetRemote(bucket, req.digest); err != nil {
		c.logger.Warn("failed to record remote digest", "bucket", bucket, "error", err)
	}
	c.reporter.RemoteSuccess(bucket)
	c.logger.Info("remote snapshot uploaded", "bucket", bucket, "bytes", len(req.payload))
}

// Wait blocks until no upload is running.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Busy reports whether an upload for bucket is running.
func (c *Coordinator) Busy(bucket string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.states[bucket]
	return ok && st.inflight
}
