package middleware

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"RoundPull/internal/domain/models"
	domrepo "RoundPull/internal/domain/repository"
)

// Proc is the minimal processor interface the pipeline needs.
// It reports whether the round was new to the ledger.
type Proc interface {
	Process(ctx context.Context, r *models.Round) (bool, error)
}

// Result summarizes one Submit call.
type Result struct {
	Fetched  int
	New      int
	Accepted int
	Gap      bool // first new round did not follow the watermark
}

// RoundPipeline sits between the feed poller and the processor.
// It validates a whole page, orders it oldest first and forwards only rounds past the watermark.
type RoundPipeline struct {
	proc    Proc
	metrics domrepo.Metrics
	now     func() time.Time

	mu        sync.Mutex
	watermark models.RoundID
	hasMark   bool
}

type PipelineOption func(*RoundPipeline)

// WithPipelineClock sets the capture time source.
func WithPipelineClock(now func() time.Time) PipelineOption {
	return func(p *RoundPipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// NewRoundPipeline creates a new pipeline.
func NewRoundPipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *RoundPipeline {
	p := &RoundPipeline{
		proc:    proc,
		metrics: metrics,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetWatermark records the newest round already known, usually the restored ledger tip.
func (p *RoundPipeline) SetWatermark(id models.RoundID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.watermark = id
	p.hasMark = true
}

// Watermark returns the current watermark.
func (p *RoundPipeline) Watermark() (models.RoundID, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.watermark, p.hasMark
}

// Submit ingests one feed page. A single malformed entry rejects the page with no ledger mutation.
// Processing stops at the first downstream error; the watermark only covers forwarded rounds,
// so the next cycle resumes where this one failed.
func (p *RoundPipeline) Submit(ctx context.Context, entries []models.FeedEntry) (Result, error) {
	start := time.Now()
	res := Result{Fetched: len(entries)}

	rounds, err := p.validate(entries)
	if err != nil {
		p.metrics.RecordError("pipeline_validate")
		return res, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	fresh := rounds[:0]
	for _, r := range rounds {
		if !p.hasMark || r.RoundID.After(p.watermark) {
			fresh = append(fresh, r)
		}
	}
	res.New = len(fresh)
	if len(fresh) > 0 && p.hasMark && fresh[0].RoundID.Cmp(p.watermark.Next()) != 0 {
		res.Gap = true
		p.metrics.RecordError("feed_gap")
	}

	for _, r := range fresh {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		accepted, err := p.proc.Process(ctx, r)
		if err != nil {
			p.metrics.RecordError("pipeline_process")
			return res, fmt.Errorf("pipeline downstream: %w", err)
		}
		if accepted {
			res.Accepted++
		}
		p.watermark = r.RoundID
		p.hasMark = true
	}
	p.metrics.RecordLatency("pipeline_submit", time.Since(start).Seconds())
	return res, nil
}

// validate parses every entry and returns the page oldest first with duplicates inside the page removed.
func (p *RoundPipeline) validate(entries []models.FeedEntry) ([]*models.Round, error) {
	ts := p.now()
	seen := make(map[string]struct{}, len(entries))
	out := make([]*models.Round, 0, len(entries))
	for i, e := range entries {
		id, err := models.ParseRoundID(e.IssueNumber)
		if err != nil {
			return nil, fmt.Errorf("entry %d: issue number %q: %w", i, e.IssueNumber, err)
		}
		raw, err := parseDigit(e.Number)
		if err != nil {
			return nil, fmt.Errorf("entry %d (%s): %w", i, id, err)
		}
		if _, dup := seen[id.String()]; dup {
			continue
		}
		seen[id.String()] = struct{}{}
		out = append(out, &models.Round{RoundID: id, RawValue: raw, CaptureTime: ts})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoundID.Cmp(out[j].RoundID) < 0 })
	return out, nil
}

func parseDigit(s string) (int, error) {
	s = strings.TrimSpace(s)
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 || v > 9 {
		return 0, fmt.Errorf("number %q is not a digit", s)
	}
	return v, nil
}
