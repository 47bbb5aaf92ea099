// Package pipeline drives articles through validation, extraction,
// normalization and graph ingestion, skipping everything the checkpoint
// already records as done.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/OFFIS-RIT/newsgraph/pkg/checkpoint"
	"github.com/OFFIS-RIT/newsgraph/pkg/common"
	"github.com/OFFIS-RIT/newsgraph/pkg/graph"
	"github.com/OFFIS-RIT/newsgraph/pkg/logger"
	"github.com/OFFIS-RIT/newsgraph/pkg/normalize"
	"github.com/OFFIS-RIT/newsgraph/pkg/progress"
	"github.com/OFFIS-RIT/newsgraph/pkg/retry"
	"github.com/OFFIS-RIT/newsgraph/pkg/source"
	"github.com/OFFIS-RIT/newsgraph/pkg/validate"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultBatchSize = 16
	DefaultParallel  = 4
)

var (
	ErrInvalidArticle     = errors.New("invalid article")
	ErrExtractionRejected = errors.New("extraction rejected")
)

// Extractor turns an article into candidate entities and relationships.
type Extractor interface {
	Extract(ctx context.Context, article common.Article) (common.ExtractionResult, error)
}

// Ingester merges a validated extraction into the graph.
type Ingester interface {
	Ingest(ctx context.Context, article common.Article, res common.ExtractionResult) (graph.IngestSummary, error)
}

// ArticleResult is the final state of one article within a batch.
type ArticleResult struct {
	ArticleID string
	State     State
	Attempts  int
	Reasons   []string
	Err       error
	Ingest    graph.IngestSummary
	// Category is the progress category the article was counted under. It
	// is empty for articles that never started.
	Category progress.Category
}

func (r ArticleResult) Done() bool {
	return r.State == Done
}

// Failed reports whether the article ended without being ingested. Articles
// that were skipped or never started are not failures.
func (r ArticleResult) Failed() bool {
	return r.State == Failed || (r.State == Ingesting && r.Err != nil)
}

type Params struct {
	Validator    *validate.Validator
	Extractor    Extractor
	Resolver     *normalize.Resolver
	Engine       Ingester
	Checkpoint   *checkpoint.Store
	Tracker      *progress.Tracker
	Policy       retry.Policy
	BatchSize    int
	Parallel     int
	RetryOptions []retry.Option
	RunID        string
}

type Orchestrator struct {
	validator  *validate.Validator
	extractor  Extractor
	resolver   *normalize.Resolver
	engine     Ingester
	checkpoint *checkpoint.Store
	tracker    *progress.Tracker
	policy     retry.Policy
	batchSize  int
	parallel   int
	retryOpts  []retry.Option
	runID      string
}

func New(params Params) (*Orchestrator, error) {
	switch {
	case params.Extractor == nil:
		return nil, errors.New("pipeline: extractor is required")
	case params.Engine == nil:
		return nil, errors.New("pipeline: engine is required")
	case params.Checkpoint == nil:
		return nil, errors.New("pipeline: checkpoint is required")
	}

	o := &Orchestrator{
		validator:  params.Validator,
		extractor:  params.Extractor,
		resolver:   params.Resolver,
		engine:     params.Engine,
		checkpoint: params.Checkpoint,
		tracker:    params.Tracker,
		policy:     params.Policy,
		batchSize:  params.BatchSize,
		parallel:   params.Parallel,
		retryOpts:  params.RetryOptions,
		runID:      params.RunID,
	}
	if o.validator == nil {
		o.validator = validate.New()
	}
	if o.tracker == nil {
		o.tracker = progress.NewTracker()
	}
	if o.policy.MaxAttempts <= 0 {
		o.policy = retry.DefaultPolicy()
	}
	if o.batchSize <= 0 {
		o.batchSize = DefaultBatchSize
	}
	if o.parallel <= 0 {
		o.parallel = DefaultParallel
	}
	if o.runID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return nil, fmt.Errorf("generate run id: %w", err)
		}
		o.runID = id
	}
	return o, nil
}

func (o *Orchestrator) RunID() string {
	return o.runID
}

func (o *Orchestrator) Tracker() *progress.Tracker {
	return o.tracker
}

// Run consumes src batch by batch until it is exhausted or ctx is
// cancelled. A cancelled run still finishes the articles already in flight,
// flushes the checkpoint and returns the summary together with ctx's error.
func (o *Orchestrator) Run(ctx context.Context, src source.ArticleSource) (progress.Summary, error) {
	logger.Info("[Pipeline] Run started", "run_id", o.runID, "batch_size", o.batchSize, "parallel", o.parallel, "checkpointed", o.checkpoint.Len())

	batches := 0
	for ctx.Err() == nil {
		batch, err := source.ReadBatch(ctx, src, o.batchSize)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && ctx.Err() == nil {
			return o.tracker.Summary(), fmt.Errorf("read batch: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		batches++
		if _, err := o.ProcessBatch(ctx, batch); err != nil {
			return o.tracker.Summary(), err
		}
	}

	summary := o.tracker.Summary()
	kv := append([]any{"run_id", o.runID, "batches", batches}, summary.KeyVals()...)
	if err := ctx.Err(); err != nil {
		logger.Warn("[Pipeline] Run interrupted", kv...)
		return summary, err
	}
	logger.Info("[Pipeline] Run finished", kv...)
	return summary, nil
}

// ProcessBatch runs one batch. Already checkpointed articles and repeats of
// an id within the batch are skipped before anything is scheduled. The
// checkpoint is flushed once every ingest of the batch has returned, even
// when ctx was cancelled in the meantime.
func (o *Orchestrator) ProcessBatch(ctx context.Context, articles []common.Article) ([]ArticleResult, error) {
	results := make([]ArticleResult, len(articles))
	scheduled := make([]int, 0, len(articles))
	seen := make(map[string]struct{}, len(articles))

	for i, a := range articles {
		results[i] = ArticleResult{ArticleID: a.ID, State: Pending}
		if a.ID != "" {
			_, dup := seen[a.ID]
			if dup || o.checkpoint.IsDone(a.ID) {
				results[i].State, _ = transition(Pending, Skipped)
				results[i].Category = progress.Skipped
				o.tracker.Record(progress.Skipped)
				logger.Debug("[Pipeline] Skipping article", "article_id", a.ID, "duplicate", dup)
				continue
			}
			seen[a.ID] = struct{}{}
		}
		scheduled = append(scheduled, i)
	}

	var eg errgroup.Group
	eg.SetLimit(o.parallel)
	for _, i := range scheduled {
		if ctx.Err() != nil {
			results[i].Err = ctx.Err()
			continue
		}
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			results[i] = o.process(ctx, articles[i])
			return nil
		})
	}
	eg.Wait()

	for _, r := range results {
		if r.Done() {
			o.checkpoint.MarkDone(r.ArticleID, o.stats())
		}
	}
	o.checkpoint.SetStats(o.stats())
	if err := o.checkpoint.Flush(context.WithoutCancel(ctx)); err != nil {
		logger.Error("[Pipeline] Checkpoint flush failed", "run_id", o.runID, "err", err)
		return results, err
	}
	return results, nil
}

func (o *Orchestrator) stats() checkpoint.Stats {
	s := o.tracker.Summary()
	return checkpoint.Stats{
		RunID:     o.runID,
		Processed: s.Succeeded,
		Skipped:   s.Skipped,
		Failed:    s.Failed,
	}
}

// process walks a single article through the chain. It never returns an
// error; the outcome is carried by the result.
func (o *Orchestrator) process(ctx context.Context, a common.Article) ArticleResult {
	r := ArticleResult{ArticleID: a.ID, State: Pending}
	advance := func(to State) {
		next, err := transition(r.State, to)
		if err != nil {
			logger.Error("[Pipeline] State machine violation", "article_id", a.ID, "err", err)
			return
		}
		r.State = next
	}
	fail := func(c progress.Category, err error) ArticleResult {
		advance(Failed)
		r.Err = err
		r.Category = c
		o.tracker.Record(c)
		logger.Warn("[Pipeline] Article failed", "article_id", a.ID, "category", c, "attempts", r.Attempts, "err", err)
		return r
	}

	advance(Validating)
	o.tracker.Record(progress.Attempted)
	if ok, reasons := o.validator.ValidateArticle(a); !ok {
		r.Reasons = reasons
		return fail(progress.ValidationFailed, fmt.Errorf("%w: %v", ErrInvalidArticle, reasons))
	}

	advance(Extracting)
	opts := append([]retry.Option{
		retry.WithOnRetry(func(attempt int, delay time.Duration, err error) {
			logger.Warn("[Retry] Extraction failed, retrying", "article_id", a.ID, "attempt", attempt, "delay", delay, "err", err)
		}),
	}, o.retryOpts...)
	res := retry.Do(ctx, o.policy, func(ctx context.Context) (common.ExtractionResult, error) {
		return o.extractor.Extract(ctx, a)
	}, opts...)
	r.Attempts = res.Attempts
	switch res.Outcome {
	case retry.TransientFailure:
		return fail(progress.RetryExhausted, res.Err)
	case retry.PermanentFailure:
		return fail(progress.PermanentFailure, res.Err)
	case retry.Canceled:
		return fail(progress.Interrupted, res.Err)
	}

	advance(ExtractionValidating)
	cleaned, ok, reasons := o.validator.ValidateExtraction(res.Value)
	r.Reasons = append(r.Reasons, reasons...)
	if !ok {
		return fail(progress.ExtractionRejected, fmt.Errorf("%w: %v", ErrExtractionRejected, reasons))
	}
	if len(reasons) > 0 {
		logger.Debug("[Pipeline] Extraction partially valid", "article_id", a.ID, "dropped", len(reasons))
	}

	advance(Normalizing)
	if o.resolver != nil {
		cleaned = o.resolver.Consolidate(cleaned)
	}

	advance(Ingesting)
	sum, err := o.engine.Ingest(context.WithoutCancel(ctx), a, cleaned)
	r.Ingest = sum
	if err != nil {
		r.Err = err
		r.Category = progress.IngestFailed
		o.tracker.Record(progress.IngestFailed)
		logger.Error("[Pipeline] Ingest failed", "article_id", a.ID, "err", err)
		return r
	}

	advance(Done)
	r.Category = progress.Succeeded
	o.tracker.Record(progress.Succeeded)
	return r
}
