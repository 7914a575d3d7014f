// Package pipeline is the batch driver: it selects candidate pages,
// claims them, and routes each through assessment, rescanning and
// correction with a fixed worker pool. A daily rate limit or an exhausted
// budget raises a cooperative stop flag checked between pages; in-flight
// pages finish, untouched pages stay untouched.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/pagemill/pagemill/internal/budget"
	"github.com/pagemill/pagemill/internal/correct"
	"github.com/pagemill/pagemill/internal/quality"
	"github.com/pagemill/pagemill/internal/rescan"
	"github.com/pagemill/pagemill/internal/store"
)

// DefaultWorkers is the worker pool size when unconfigured.
const DefaultWorkers = 4

// Queue reasons and priorities for pages needing attention after a run.
const (
	reasonRescanExhausted = "rescan_exhausted"
	reasonLowConfidence   = "low_confidence_correction"

	priorityHigh = 10
	priorityLow  = 5
)

// Options configures one pipeline run.
type Options struct {
	Workers   int
	BatchSize int
	// Limit caps the number of pages examined this run; 0 means no cap.
	Limit int
	// DryRun reports candidates without claiming or processing any page.
	DryRun bool
	// CorrectionEnabled routes acceptable pages through the LLM
	// correction workflow.
	CorrectionEnabled bool
}

// Result aggregates what one run did.
type Result struct {
	Candidates int   `json:"candidates" yaml:"candidates"`
	Claimed    int64 `json:"claimed" yaml:"claimed"`
	Assessed   int64 `json:"assessed" yaml:"assessed"`
	Rescans    int64 `json:"rescans" yaml:"rescans"`
	Accepted   int64 `json:"accepted" yaml:"accepted"`
	Failed     int64 `json:"failed" yaml:"failed"`
	Corrected  int64 `json:"corrected" yaml:"corrected"`
	Deferred   int64 `json:"deferred" yaml:"deferred"`
	Errors     int64 `json:"errors" yaml:"errors"`
	Skipped    int64 `json:"skipped" yaml:"skipped"`

	// Stopped is true when the run halted early on a daily limit or
	// budget ceiling. This is a graceful stop, not an error.
	Stopped    bool   `json:"stopped" yaml:"stopped"`
	StopReason string `json:"stop_reason,omitempty" yaml:"stop_reason,omitempty"`
}

// Pipeline drives batch processing.
type Pipeline struct {
	store     *store.Store
	assessor  *quality.Assessor
	rescanner *rescan.Engine
	corrector *correct.Engine
	governor  *budget.Governor
	opts      Options
	logger    *slog.Logger

	stop       atomic.Bool
	stopMu     sync.Mutex
	stopReason string
}

// New creates a pipeline. corrector may be nil when correction is disabled.
func New(st *store.Store, assessor *quality.Assessor, rescanner *rescan.Engine, corrector *correct.Engine, gov *budget.Governor, opts Options, logger *slog.Logger) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if corrector == nil {
		opts.CorrectionEnabled = false
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:     st,
		assessor:  assessor,
		rescanner: rescanner,
		corrector: corrector,
		governor:  gov,
		opts:      opts,
		logger:    logger,
	}
}

// Run executes one batch pass. Returns a nil error on a graceful stop;
// the Result carries the stop reason.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	limit := p.opts.BatchSize
	if p.opts.Limit > 0 && p.opts.Limit < limit {
		limit = p.opts.Limit
	}

	pages, err := p.store.ListCandidates(ctx, p.rescanner.MaxAttempts(), limit)
	if err != nil {
		return nil, err
	}

	result := &Result{Candidates: len(pages)}
	if p.opts.DryRun {
		p.logger.Info("dry run, nothing processed", "candidates", len(pages))
		return result, nil
	}
	if len(pages) == 0 {
		p.logger.Info("no candidate pages")
		return result, nil
	}

	p.logger.Info("starting run",
		"candidates", len(pages),
		"workers", p.opts.Workers,
		"correction_enabled", p.opts.CorrectionEnabled)

	jobs := make(chan *store.Page)
	var wg sync.WaitGroup
	for i := 0; i < p.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for page := range jobs {
				// Checked between pages: after a stop no new page is
				// started, but pages already being worked on finish.
				if p.stop.Load() || ctx.Err() != nil {
					atomic.AddInt64(&result.Skipped, 1)
					continue
				}
				p.processPage(ctx, page, result)
			}
		}()
	}

	for _, page := range pages {
		if p.stop.Load() || ctx.Err() != nil {
			atomic.AddInt64(&result.Skipped, 1)
			continue
		}
		jobs <- page
	}
	close(jobs)
	wg.Wait()

	if p.stop.Load() {
		result.Stopped = true
		p.stopMu.Lock()
		result.StopReason = p.stopReason
		p.stopMu.Unlock()
		p.logger.Warn("run stopped early", "reason", result.StopReason)
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func (p *Pipeline) requestStop(reason string) {
	p.stopMu.Lock()
	if p.stopReason == "" {
		p.stopReason = reason
	}
	p.stopMu.Unlock()
	p.stop.Store(true)
}

// processPage routes one page through the engines its status calls for.
// The page is claimed before any work and never left in the processing
// state on an error path.
func (p *Pipeline) processPage(ctx context.Context, page *store.Page, result *Result) {
	claimed, err := p.store.ClaimPage(ctx, page.ID, page.QualityStatus)
	if err != nil {
		p.logger.Error("claim failed", "page_id", page.ID, "error", err)
		atomic.AddInt64(&result.Errors, 1)
		return
	}
	if !claimed {
		// Another run holds the page.
		atomic.AddInt64(&result.Skipped, 1)
		return
	}
	atomic.AddInt64(&result.Claimed, 1)

	status := page.QualityStatus
	var verdict *quality.Verdict

	if status == store.StatusUnchecked {
		verdict, err = p.assessor.Assess(ctx, page)
		if err != nil {
			p.routeError(ctx, page, status, err, result)
			return
		}
		atomic.AddInt64(&result.Assessed, 1)
		status = verdict.Status
	}

	if status == store.StatusNeedsRescan {
		status = p.rescanLoop(ctx, page, status == page.QualityStatus, result)
		if status == "" {
			return
		}
	}

	switch status {
	case store.StatusAcceptable:
		atomic.AddInt64(&result.Accepted, 1)
		if p.opts.CorrectionEnabled {
			p.correctPage(ctx, page, store.StatusAcceptable, false, result)
		}
	case store.StatusNeedsCorrection:
		// Claimed at the top of processPage and not yet released.
		p.correctPage(ctx, page, store.StatusNeedsCorrection, status == page.QualityStatus, result)
	case store.StatusFailed:
		atomic.AddInt64(&result.Failed, 1)
		if _, err := p.store.Enqueue(ctx, page.ID, reasonRescanExhausted, priorityHigh); err != nil {
			p.logger.Error("enqueue failed", "page_id", page.ID, "error", err)
		}
	}
}

// rescanLoop runs rescan attempts until the page converges, fails, or an
// error routes it away. stillClaimed is true when the page is currently
// in the processing state from the initial claim. Returns the final
// status, or "" when the page was deferred on an error.
func (p *Pipeline) rescanLoop(ctx context.Context, page *store.Page, stillClaimed bool, result *Result) store.Status {
	for {
		if !stillClaimed {
			claimed, err := p.store.ClaimPage(ctx, page.ID, store.StatusNeedsRescan)
			if err != nil {
				p.logger.Error("claim failed", "page_id", page.ID, "error", err)
				atomic.AddInt64(&result.Errors, 1)
				return ""
			}
			if !claimed {
				atomic.AddInt64(&result.Skipped, 1)
				return ""
			}
		}
		stillClaimed = false

		outcome, err := p.rescanner.Rescan(ctx, page)
		if err != nil {
			p.routeError(ctx, page, store.StatusNeedsRescan, err, result)
			return ""
		}
		if !outcome.Skipped {
			atomic.AddInt64(&result.Rescans, 1)
		}

		switch {
		case outcome.Failed:
			return store.StatusFailed
		case outcome.Skipped:
			// No work was done and nothing wrote a status; put the
			// claim back where it was.
			if err := p.store.ReleasePage(ctx, page.ID, store.StatusNeedsRescan); err != nil {
				p.logger.Error("release failed", "page_id", page.ID, "error", err)
			}
			return page.QualityStatus
		case outcome.Verdict != nil && outcome.Verdict.Score > 0:
			return outcome.Verdict.Status
		}

		if p.stop.Load() || ctx.Err() != nil {
			return page.QualityStatus
		}
	}
}

// correctPage runs the two-round workflow and releases the page back to
// acceptable, or back to its entry status on a transient deferral.
// alreadyClaimed is true when the caller still holds the claim from
// processPage; otherwise the page is re-claimed here.
func (p *Pipeline) correctPage(ctx context.Context, page *store.Page, expected store.Status, alreadyClaimed bool, result *Result) {
	if !alreadyClaimed {
		claimed, err := p.store.ClaimPage(ctx, page.ID, expected)
		if err != nil {
			p.logger.Error("claim failed", "page_id", page.ID, "error", err)
			atomic.AddInt64(&result.Errors, 1)
			return
		}
		if !claimed {
			atomic.AddInt64(&result.Skipped, 1)
			return
		}
	}

	outcome, err := p.corrector.Correct(ctx, page)
	if err != nil {
		p.routeError(ctx, page, expected, err, result)
		return
	}

	// Transient deferrals go back where they came from so the page stays
	// a candidate; everything else settles at acceptable.
	releaseTo := store.StatusAcceptable
	if outcome.Deferred() && correct.TransientDefer(outcome.DeferReason) {
		releaseTo = expected
	}
	if err := p.store.ReleasePage(ctx, page.ID, releaseTo); err != nil {
		p.logger.Error("release failed", "page_id", page.ID, "error", err)
		atomic.AddInt64(&result.Errors, 1)
		return
	}

	if outcome.Deferred() {
		atomic.AddInt64(&result.Deferred, 1)
		p.logger.Info("correction deferred", "page_id", page.ID, "reason", outcome.DeferReason)
		return
	}
	atomic.AddInt64(&result.Corrected, 1)

	rec := outcome.Record
	if rec.NeedsReview || rec.Confidence == "low" {
		priority := priorityLow
		if rec.Confidence == "low" {
			priority = priorityHigh
		}
		if _, err := p.store.Enqueue(ctx, page.ID, reasonLowConfidence, priority); err != nil {
			p.logger.Error("enqueue failed", "page_id", page.ID, "error", err)
		}
	}
}

// routeError classifies a failure from a billed call, releases the page
// claim back to its pre-claim status, and raises the stop flag for
// fatal-to-the-run conditions.
func (p *Pipeline) routeError(ctx context.Context, page *store.Page, releaseTo store.Status, err error, result *Result) {
	if relErr := p.store.ReleasePage(ctx, page.ID, releaseTo); relErr != nil {
		p.logger.Error("release after error failed", "page_id", page.ID, "error", relErr)
	}

	switch p.governor.HandleRateLimit(err) {
	case budget.ActionStopAll:
		p.logger.Warn("stopping run",
			"page_id", page.ID,
			"error", err)
		p.requestStop(err.Error())
		atomic.AddInt64(&result.Deferred, 1)
	case budget.ActionDeferPage:
		p.logger.Warn("page deferred by rate limit", "page_id", page.ID, "error", err)
		atomic.AddInt64(&result.Deferred, 1)
	default:
		p.logger.Error("page processing failed", "page_id", page.ID, "error", err)
		atomic.AddInt64(&result.Errors, 1)
	}
}
