package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"RoundPull/internal/domain/models"
	mid "RoundPull/internal/middleware"
)

type scriptedFeed struct {
	mu    sync.Mutex
	pages [][]models.FeedEntry
	err   error
	block chan struct{}
	calls int
}

func (f *scriptedFeed) Fetch(ctx context.Context) ([]models.FeedEntry, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if len(f.pages) == 0 {
		return nil, nil
	}
	p := f.pages[0]
	f.pages = f.pages[1:]
	return p, nil
}

type countingProc struct {
	mu   sync.Mutex
	seen []string
}

func (p *countingProc) Process(_ context.Context, r *models.Round) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, r.RoundID.String())
	return true, nil
}

func TestPollOnceSubmitsPage(t *testing.T) {
	feed := &scriptedFeed{pages: [][]models.FeedEntry{
		{{IssueNumber: "12", Number: "4"}, {IssueNumber: "11", Number: "9"}},
		{{IssueNumber: "13", Number: "0"}, {IssueNumber: "12", Number: "4"}},
	}}
	proc := &countingProc{}
	m := newFakeMetrics()
	c := NewRoundCollector(feed, mid.NewRoundPipeline(proc, m), m, nil, CollectorConfig{})

	res, err := c.PollOnce(context.Background())
	if err != nil || res.Accepted != 2 {
		t.Fatalf("first poll = %+v, %v", res, err)
	}
	res, err = c.PollOnce(context.Background())
	if err != nil || res.Accepted != 1 {
		t.Fatalf("second poll = %+v, %v", res, err)
	}
	if got := proc.seen; len(got) != 3 || got[0] != "11" || got[2] != "13" {
		t.Fatalf("seen = %v", got)
	}
	if s := c.Status(); s.Polls != 2 || s.Failures != 0 {
		t.Fatalf("status = %+v", s)
	}
}

func TestPollOnceRecordsFeedFailure(t *testing.T) {
	feed := &scriptedFeed{err: errors.New("502")}
	m := newFakeMetrics()
	c := NewRoundCollector(feed, mid.NewRoundPipeline(&countingProc{}, m), m, nil, CollectorConfig{})

	if _, err := c.PollOnce(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	s := c.Status()
	if s.Failures != 1 || s.LastError != "502" {
		t.Fatalf("status = %+v", s)
	}
	if len(m.errs) != 1 || m.errs[0] != "feed_fetch" {
		t.Fatalf("errors = %v", m.errs)
	}
}

func TestPollOnceGuardsOverlap(t *testing.T) {
	feed := &scriptedFeed{block: make(chan struct{})}
	m := newFakeMetrics()
	c := NewRoundCollector(feed, mid.NewRoundPipeline(&countingProc{}, m), m, nil, CollectorConfig{})

	done := make(chan error, 1)
	go func() {
		_, err := c.PollOnce(context.Background())
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !c.Status().InFlight {
		if time.Now().After(deadline) {
			t.Fatalf("first poll never started")
		}
		time.Sleep(time.Millisecond)
	}
	if _, err := c.PollOnce(context.Background()); !errors.Is(err, ErrPollInFlight) {
		t.Fatalf("expected ErrPollInFlight, got %v", err)
	}
	close(feed.block)
	if err := <-done; err != nil {
		t.Fatalf("first poll: %v", err)
	}
}

func TestWatchdogRestartsStalledLoop(t *testing.T) {
	feed := &scriptedFeed{block: make(chan struct{})}
	m := newFakeMetrics()
	c := NewRoundCollector(feed, mid.NewRoundPipeline(&countingProc{}, m), m, nil, CollectorConfig{
		Interval:   time.Hour,
		Timeout:    time.Hour,
		StallAfter: 40 * time.Millisecond,
	})
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for c.Status().Restarts == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("watchdog never restarted the loop")
		}
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if c.Status().Running {
		t.Fatalf("collector still running after shutdown")
	}
}

func TestStaleCycleKeepsSuccessorGuard(t *testing.T) {
	m := newFakeMetrics()
	c := NewRoundCollector(&scriptedFeed{}, mid.NewRoundPipeline(&countingProc{}, m), m, nil, CollectorConfig{})

	stale, ok := c.acquire()
	if !ok {
		t.Fatalf("first acquire failed")
	}
	// the watchdog abandons the stuck cycle and frees the guard
	c.guard.Store(0)

	next, ok := c.acquire()
	if !ok {
		t.Fatalf("successor could not acquire the cleared guard")
	}
	if c.release(stale) {
		t.Fatalf("stale cycle released its successor's guard")
	}
	if !c.Status().InFlight {
		t.Fatalf("guard lost after stale release")
	}
	if _, err := c.PollOnce(context.Background()); !errors.Is(err, ErrPollInFlight) {
		t.Fatalf("overlapping cycle allowed: %v", err)
	}
	if !c.release(next) || c.Status().InFlight {
		t.Fatalf("owner could not release the guard")
	}
}
