package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	drepo "RoundPull/internal/domain/repository"
	mid "RoundPull/internal/middleware"
	applogger "RoundPull/pkg/logger"
)

// ErrPollInFlight is returned by PollOnce when the previous cycle has not finished.
var ErrPollInFlight = errors.New("poll already in flight")

// CollectorConfig holds poll loop timings.
type CollectorConfig struct {
	Interval   time.Duration
	Timeout    time.Duration
	StallAfter time.Duration
}

// CollectorStatus is reported by the health endpoint.
type CollectorStatus struct {
	Running   bool      `json:"running"`
	InFlight  bool      `json:"in_flight"`
	Stalled   bool      `json:"stalled"`
	Heartbeat time.Time `json:"heartbeat"`
	Polls     int64     `json:"polls"`
	Failures  int64     `json:"failures"`
	Restarts  int64     `json:"restarts"`
	LastError string    `json:"last_error,omitempty"`
}

// RoundCollector polls the feed on a fixed interval and submits pages to the pipeline.
// A single in-flight guard prevents overlapping cycles. A watchdog restarts the loop
// and clears the guard when no cycle has completed within StallAfter.
type RoundCollector struct {
	feed    drepo.FeedSource
	pipe    *mid.RoundPipeline
	metrics drepo.Metrics
	l       *applogger.Logger
	cfg     CollectorConfig

	// guard holds the generation of the cycle that owns it, 0 when free.
	guard     atomic.Uint64
	gen       atomic.Uint64
	heartbeat atomic.Int64
	polls     atomic.Int64
	failures  atomic.Int64
	restarts  atomic.Int64
	lastErr   atomic.Value // string

	mu       sync.Mutex
	running  bool
	parent   context.Context
	stopLoop context.CancelFunc
	stopAll  context.CancelFunc
	wg       sync.WaitGroup
}

// NewRoundCollector creates a new RoundCollector.
func NewRoundCollector(feed drepo.FeedSource, pipe *mid.RoundPipeline, metrics drepo.Metrics, l *applogger.Logger, cfg CollectorConfig) *RoundCollector {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.StallAfter <= 0 {
		cfg.StallAfter = 60 * time.Second
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &RoundCollector{feed: feed, pipe: pipe, metrics: metrics, l: l, cfg: cfg}
}

// Start launches the poll loop and the watchdog. It returns immediately.
func (c *RoundCollector) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	c.parent = ctx
	c.stopAll = cancel
	c.running = true
	c.beat()

	c.startLoopLocked()
	c.wg.Add(1)
	go c.watchdog(ctx)

	c.l.Info("collector started",
		applogger.Duration("interval_ms", c.cfg.Interval),
		applogger.Duration("stall_after_ms", c.cfg.StallAfter),
	)
	return nil
}

func (c *RoundCollector) startLoopLocked() {
	loopCtx, cancel := context.WithCancel(c.parent)
	c.stopLoop = cancel
	c.wg.Add(1)
	go c.loop(loopCtx)
}

func (c *RoundCollector) loop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	c.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

// tick runs one cycle in the background so a slow feed never blocks the ticker.
func (c *RoundCollector) tick(ctx context.Context) {
	g, ok := c.acquire()
	if !ok {
		c.metrics.RecordError("poll_overlap")
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.release(g)
		_, _ = c.cycle(ctx)
	}()
}

// acquire takes the in-flight guard under a fresh generation.
func (c *RoundCollector) acquire() (uint64, bool) {
	g := c.gen.Add(1)
	return g, c.guard.CompareAndSwap(0, g)
}

// release frees the guard only if generation g still owns it. A cycle abandoned by
// the watchdog finishing late leaves the guard of its successor alone.
func (c *RoundCollector) release(g uint64) bool {
	return c.guard.CompareAndSwap(g, 0)
}

// PollOnce runs a single cycle synchronously, honouring the in-flight guard.
func (c *RoundCollector) PollOnce(ctx context.Context) (mid.Result, error) {
	g, ok := c.acquire()
	if !ok {
		return mid.Result{}, ErrPollInFlight
	}
	defer c.release(g)
	return c.cycle(ctx)
}

func (c *RoundCollector) cycle(ctx context.Context) (mid.Result, error) {
	start := time.Now()
	c.polls.Add(1)
	defer c.beat()

	fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	entries, err := c.feed.Fetch(fetchCtx)
	if err != nil {
		if ctx.Err() != nil {
			return mid.Result{}, ctx.Err()
		}
		c.fail("feed_fetch", err)
		return mid.Result{}, err
	}

	res, err := c.pipe.Submit(ctx, entries)
	if err != nil {
		c.fail("feed_submit", err)
		return res, err
	}
	if res.Gap {
		c.l.Warn("feed gap detected", applogger.Int("new", res.New))
	}
	if res.Accepted > 0 {
		c.l.Debug("poll cycle",
			applogger.Int("fetched", res.Fetched),
			applogger.Int("accepted", res.Accepted),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	c.metrics.RecordLatency("poll_cycle", time.Since(start).Seconds())
	return res, nil
}

func (c *RoundCollector) fail(kind string, err error) {
	c.failures.Add(1)
	c.lastErr.Store(err.Error())
	c.metrics.RecordError(kind)
	c.l.Warn("poll cycle skipped", applogger.String("stage", kind), applogger.Error(err))
}

func (c *RoundCollector) beat() {
	c.heartbeat.Store(time.Now().UnixNano())
}

func (c *RoundCollector) watchdog(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(max(c.cfg.StallAfter/4, 10*time.Millisecond))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.checkStall()
		}
	}
}

// checkStall clears the guard and restarts the loop when the heartbeat is stale.
// The stalled cycle may still be running; its late release no longer matches the guard.
func (c *RoundCollector) checkStall() bool {
	last := time.Unix(0, c.heartbeat.Load())
	if time.Since(last) < c.cfg.StallAfter {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return false
	}
	c.l.Warn("collector stalled, restarting loop", applogger.Duration("since_ms", time.Since(last)))
	c.metrics.RecordError("collector_stall")
	c.restarts.Add(1)
	c.stopLoop()
	c.guard.Store(0)
	c.beat()
	c.startLoopLocked()
	return true
}

// Status returns a snapshot of the collector state.
func (c *RoundCollector) Status() CollectorStatus {
	c.mu.Lock()
	running := c.running
	c.mu.Unlock()
	s := CollectorStatus{
		Running:   running,
		InFlight:  c.guard.Load() != 0,
		Heartbeat: time.Unix(0, c.heartbeat.Load()),
		Polls:     c.polls.Load(),
		Failures:  c.failures.Load(),
		Restarts:  c.restarts.Load(),
	}
	s.Stalled = running && time.Since(s.Heartbeat) >= c.cfg.StallAfter
	if v, ok := c.lastErr.Load().(string); ok {
		s.LastError = v
	}
	return s
}

// Shutdown stops the loop and the watchdog and waits for the running cycle.
func (c *RoundCollector) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	c.stopAll()
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		c.l.Info("collector stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
