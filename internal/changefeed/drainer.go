package changefeed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/rzpsarthak13/lionrow/internal/core"
	"github.com/rzpsarthak13/lionrow/internal/registry"
)

// DrainerConfig controls how fast and how persistently changes are
// delivered.
type DrainerConfig struct {
	// DrainRate is the maximum number of changes delivered per second.
	DrainRate int

	// BatchSize is how many changes are dequeued at once.
	BatchSize int

	// PollInterval is the wait after an empty dequeue.
	PollInterval time.Duration

	// MaxRetries is how many times a failed delivery is retried before the
	// change is dropped.
	MaxRetries int

	// RetryBackoffBase is the first retry delay; each retry doubles it up to
	// RetryBackoffMax.
	RetryBackoffBase time.Duration
	RetryBackoffMax  time.Duration
}

// DefaultDrainerConfig returns the defaults.
func DefaultDrainerConfig() DrainerConfig {
	return DrainerConfig{
		DrainRate:        50,
		BatchSize:        100,
		PollInterval:     100 * time.Millisecond,
		MaxRetries:       5,
		RetryBackoffBase: time.Second,
		RetryBackoffMax:  30 * time.Second,
	}
}

// DrainerConfigFrom takes the drainer settings of a change feed
// configuration.
func DrainerConfigFrom(cf registry.ChangeFeedConfig) DrainerConfig {
	return DrainerConfig{
		DrainRate:        cf.DrainRate,
		BatchSize:        cf.BatchSize,
		PollInterval:     cf.PollInterval,
		MaxRetries:       cf.MaxRetries,
		RetryBackoffBase: cf.RetryBackoffBase,
		RetryBackoffMax:  cf.RetryBackoffMax,
	}
}

func (c DrainerConfig) withDefaults() DrainerConfig {
	d := DefaultDrainerConfig()
	if c.DrainRate <= 0 {
		c.DrainRate = d.DrainRate
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBackoffBase <= 0 {
		c.RetryBackoffBase = d.RetryBackoffBase
	}
	if c.RetryBackoffMax < c.RetryBackoffBase {
		c.RetryBackoffMax = c.RetryBackoffBase
	}
	return c
}

// backoff returns the delay before retry attempt n, counting from 1.
func (c DrainerConfig) backoff(n int) time.Duration {
	d := c.RetryBackoffBase
	for i := 1; i < n && d < c.RetryBackoffMax; i++ {
		d *= 2
	}
	return min(d, c.RetryBackoffMax)
}

// DrainerStats counts deliveries since the drainer was created.
type DrainerStats struct {
	// Delivered counts changes every sink accepted.
	Delivered int64

	// Retried counts failed attempts that were retried.
	Retried int64

	// Dropped counts changes given up on, once per sink.
	Dropped int64
}

// Drainer moves changes from a queue to its sinks in the background, no
// faster than DrainRate. A change is handed to every sink; a sink that
// fails is retried with exponential backoff, and after MaxRetries the
// change is dropped for that sink and logged.
type Drainer struct {
	queue  core.ChangeQueue
	sinks  []Sink
	config DrainerConfig
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	delivered atomic.Int64
	retried   atomic.Int64
	dropped   atomic.Int64
}

// NewDrainer creates a stopped drainer.
func NewDrainer(queue core.ChangeQueue, config DrainerConfig, logger *slog.Logger, sinks ...Sink) *Drainer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Drainer{
		queue:  queue,
		sinks:  sinks,
		config: config.withDefaults(),
		logger: logger.With("component", "changefeed"),
	}
}

// Config returns the effective configuration.
func (d *Drainer) Config() DrainerConfig {
	return d.config
}

// Start runs the drainer until Stop is called or ctx is done. Starting a
// running drainer is a no-op.
func (d *Drainer) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}
	d.running = true
	d.stopCh = make(chan struct{})
	d.doneCh = make(chan struct{})

	go d.run(ctx, d.stopCh, d.doneCh)
	d.logger.InfoContext(ctx, "drainer started", "drain_rate", d.config.DrainRate, "sinks", len(d.sinks))
}

// Stop stops the drainer and waits for the change in flight. Changes left
// in the queue stay there.
func (d *Drainer) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	stopCh, doneCh := d.stopCh, d.doneCh
	d.mu.Unlock()

	close(stopCh)
	<-doneCh
	d.logger.Info("drainer stopped", "delivered", d.delivered.Load(), "dropped", d.dropped.Load())
}

// Running reports whether the drainer is running.
func (d *Drainer) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Stats returns the delivery counters.
func (d *Drainer) Stats() DrainerStats {
	return DrainerStats{
		Delivered: d.delivered.Load(),
		Retried:   d.retried.Load(),
		Dropped:   d.dropped.Load(),
	}
}

func (d *Drainer) run(parent context.Context, stopCh <-chan struct{}, doneCh chan struct{}) {
	defer close(doneCh)
	defer d.markStopped(doneCh)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	limiter := rate.NewLimiter(rate.Limit(d.config.DrainRate), 1)
	for ctx.Err() == nil {
		changes, err := d.queue.Dequeue(ctx, d.config.BatchSize)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) {
				d.logger.WarnContext(ctx, "queue closed, drainer exiting")
				return
			}
			if ctx.Err() == nil {
				d.logger.ErrorContext(ctx, "dequeue failed", "error", err)
			}
		}
		if len(changes) == 0 {
			sleep(ctx, d.config.PollInterval)
			continue
		}

		for _, change := range changes {
			if change == nil {
				continue
			}
			if err := limiter.Wait(ctx); err != nil {
				// Stopping: the dequeued changes not yet delivered are lost
				// from in-memory queues.
				d.logger.WarnContext(parent, "drainer stopped mid-batch", "undelivered", len(changes))
				return
			}
			d.deliver(ctx, change)
		}
	}
}

// markStopped clears running when the run owning doneCh exits on its own,
// whether the queue closed or the start context ended.
func (d *Drainer) markStopped(doneCh chan struct{}) {
	d.mu.Lock()
	if d.doneCh == doneCh {
		d.running = false
	}
	d.mu.Unlock()
}

// deliver hands change to every sink, retrying each failed sink.
func (d *Drainer) deliver(ctx context.Context, change *core.Change) {
	delivered := true
	for _, sink := range d.sinks {
		if !d.deliverTo(ctx, sink, change) {
			delivered = false
		}
	}
	if delivered {
		d.delivered.Add(1)
	}
}

func (d *Drainer) deliverTo(ctx context.Context, sink Sink, change *core.Change) bool {
	for attempt := 1; ; attempt++ {
		err := sink.Deliver(ctx, change)
		if err == nil {
			return true
		}
		change.Attempts++
		if attempt > d.config.MaxRetries || ctx.Err() != nil {
			d.dropped.Add(1)
			d.logger.ErrorContext(ctx, "dropping change after failed deliveries",
				"change_id", change.ID, "table", change.Table, "key", change.Key.String(),
				"attempts", attempt, "error", err)
			return false
		}
		d.retried.Add(1)
		d.logger.WarnContext(ctx, "change delivery failed, retrying",
			"change_id", change.ID, "attempt", attempt, "error", err)
		if !sleep(ctx, d.config.backoff(attempt)) {
			d.dropped.Add(1)
			return false
		}
	}
}

// sleep waits for d or until ctx is done, reporting whether it waited the
// full duration.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
