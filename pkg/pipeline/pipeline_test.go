package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/OFFIS-RIT/newsgraph/pkg/ai"
	"github.com/OFFIS-RIT/newsgraph/pkg/checkpoint"
	"github.com/OFFIS-RIT/newsgraph/pkg/common"
	"github.com/OFFIS-RIT/newsgraph/pkg/graph"
	"github.com/OFFIS-RIT/newsgraph/pkg/normalize"
	"github.com/OFFIS-RIT/newsgraph/pkg/progress"
	"github.com/OFFIS-RIT/newsgraph/pkg/retry"
	"github.com/OFFIS-RIT/newsgraph/pkg/source"
	"github.com/OFFIS-RIT/newsgraph/pkg/store/memory"
)

type fakeExtractor struct {
	mu      sync.Mutex
	results map[string]common.ExtractionResult
	errs    map[string]error
	calls   map[string]int
	hook    func(id string)
}

func newFakeExtractor() *fakeExtractor {
	return &fakeExtractor{
		results: make(map[string]common.ExtractionResult),
		errs:    make(map[string]error),
		calls:   make(map[string]int),
	}
}

func (f *fakeExtractor) Extract(ctx context.Context, a common.Article) (common.ExtractionResult, error) {
	f.mu.Lock()
	f.calls[a.ID]++
	res, err, hook := f.results[a.ID], f.errs[a.ID], f.hook
	f.mu.Unlock()

	if hook != nil {
		hook(a.ID)
	}
	if err != nil {
		return common.ExtractionResult{}, err
	}
	return res, nil
}

func (f *fakeExtractor) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeExtractor) count(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

type failingIngester struct{}

func (failingIngester) Ingest(ctx context.Context, a common.Article, res common.ExtractionResult) (graph.IngestSummary, error) {
	return graph.IngestSummary{ArticleID: a.ID}, errors.New("connection reset")
}

func article(id string) common.Article {
	return common.Article{
		ID:          id,
		Title:       "Acme raises Series B",
		Body:        "Acme Corp raised $50M in a round led by Sequoia Capital. Jane Doe founded Acme in 2019.",
		PublishedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func acmeResult() common.ExtractionResult {
	return common.ExtractionResult{
		Entities: []common.CandidateEntity{
			{Type: common.EntityCompany, Name: "Acme Corp", Description: "Robotics startup"},
			{Type: common.EntityInvestor, Name: "Sequoia Capital", Description: "Venture firm"},
			{Type: common.EntityPerson, Name: "Jane Doe", Description: "Founder of Acme"},
		},
		Relationships: []common.CandidateRelationship{
			{Source: "Acme Corp", Target: "Sequoia Capital", Type: common.RelFundedBy, Strength: 9},
			{Source: "Jane Doe", Target: "Acme Corp", Type: common.RelFounded, Strength: 10},
			{Source: "Acme Corp", Target: "Jane Doe", Type: common.RelMentionedIn, Strength: 5},
		},
	}
}

type fixture struct {
	orch      *Orchestrator
	extractor *fakeExtractor
	store     *memory.Store
	backend   *checkpoint.MemoryBackend
	cp        *checkpoint.Store
}

func newFixture(t *testing.T, backend *checkpoint.MemoryBackend, ext *fakeExtractor, parallel int) fixture {
	t.Helper()
	ctx := context.Background()

	cp, err := checkpoint.Open(ctx, backend)
	if err != nil {
		t.Fatalf("checkpoint.Open returned error: %v", err)
	}
	s := memory.New()
	engine, err := graph.NewEngine(graph.NewEngineParams{Store: s})
	if err != nil {
		t.Fatalf("NewEngine returned error: %v", err)
	}
	orch, err := New(Params{
		Extractor:  ext,
		Resolver:   normalize.NewResolver(0),
		Engine:     engine,
		Checkpoint: cp,
		Policy:     retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond},
		BatchSize:  2,
		Parallel:   parallel,
		RunID:      "run-1",
		RetryOptions: []retry.Option{
			retry.WithSleep(func(ctx context.Context, d time.Duration) error { return ctx.Err() }),
		},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return fixture{orch: orch, extractor: ext, store: s, backend: backend, cp: cp}
}

func TestProcessBatchAcmeEndToEnd(t *testing.T) {
	ext := newFakeExtractor()
	ext.results["a1"] = acmeResult()
	f := newFixture(t, checkpoint.NewMemoryBackend(), ext, 2)

	results, err := f.orch.ProcessBatch(context.Background(), []common.Article{article("a1")})
	if err != nil {
		t.Fatalf("ProcessBatch returned error: %v", err)
	}
	if len(results) != 1 || !results[0].Done() {
		t.Fatalf("expected a1 done, got %+v", results)
	}
	if results[0].Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", results[0].Attempts)
	}
	if len(results[0].Reasons) == 0 {
		t.Fatalf("expected the reserved relationship to be reported")
	}

	entities := f.store.Entities()
	if len(entities) != 3 {
		t.Fatalf("expected 3 entities, got %d", len(entities))
	}
	rels := f.store.Relationships()
	if len(rels) != 2 {
		t.Fatalf("expected 2 relationships, got %d", len(rels))
	}
	for _, r := range rels {
		if r.Type == common.RelMentionedIn {
			t.Fatalf("reserved relationship persisted: %+v", r)
		}
	}
	for _, e := range entities {
		if len(e.SourceArticles) != 1 || e.SourceArticles[0] != "a1" || e.MentionCount != 1 {
			t.Fatalf("unexpected provenance for %s: %+v", e.CanonicalName, e)
		}
	}

	if !f.cp.IsDone("a1") {
		t.Fatalf("expected a1 to be checkpointed")
	}
	if f.backend.Saves() != 1 {
		t.Fatalf("expected one flush, got %d", f.backend.Saves())
	}
}

func TestRerunSkipsCheckpointedArticles(t *testing.T) {
	backend := checkpoint.NewMemoryBackend()
	articles := []common.Article{article("a1"), article("a2")}

	first := newFakeExtractor()
	first.results["a1"] = acmeResult()
	first.results["a2"] = acmeResult()
	f := newFixture(t, backend, first, 2)
	if _, err := f.orch.ProcessBatch(context.Background(), articles); err != nil {
		t.Fatalf("first run returned error: %v", err)
	}
	if first.total() != 2 {
		t.Fatalf("expected 2 extraction calls, got %d", first.total())
	}

	second := newFakeExtractor()
	g := newFixture(t, backend, second, 2)
	results, err := g.orch.ProcessBatch(context.Background(), articles)
	if err != nil {
		t.Fatalf("second run returned error: %v", err)
	}
	if second.total() != 0 {
		t.Fatalf("expected no extraction calls on rerun, got %d", second.total())
	}
	for _, r := range results {
		if r.State != Skipped {
			t.Fatalf("expected %s skipped, got %s", r.ArticleID, r.State)
		}
	}
	if n := g.orch.Tracker().Count(progress.Skipped); n != 2 {
		t.Fatalf("expected 2 skipped, got %d", n)
	}
}

func TestDuplicateWithinBatchIsSkipped(t *testing.T) {
	ext := newFakeExtractor()
	ext.results["a1"] = acmeResult()
	f := newFixture(t, checkpoint.NewMemoryBackend(), ext, 2)

	results, err := f.orch.ProcessBatch(context.Background(), []common.Article{article("a1"), article("a1")})
	if err != nil {
		t.Fatalf("ProcessBatch returned error: %v", err)
	}
	if results[0].State != Done || results[1].State != Skipped {
		t.Fatalf("unexpected states: %s, %s", results[0].State, results[1].State)
	}
	if ext.count("a1") != 1 {
		t.Fatalf("expected a single extraction, got %d", ext.count("a1"))
	}
}

func TestFailureCategories(t *testing.T) {
	invalid := article("bad")
	invalid.Title = ""

	ext := newFakeExtractor()
	ext.errs["perm"] = retry.MarkPermanent(errors.New("bad request"))
	ext.errs["flaky"] = &ai.StatusError{Provider: "openai", StatusCode: 503, Err: errors.New("unavailable")}
	ext.results["empty"] = common.ExtractionResult{
		Entities: []common.CandidateEntity{{Type: "Planet", Name: "Mars"}},
	}
	ext.results["partial"] = common.ExtractionResult{
		Entities: []common.CandidateEntity{
			{Type: common.EntityCompany, Name: "Acme Corp"},
			{Type: "Planet", Name: "Mars"},
		},
	}

	f := newFixture(t, checkpoint.NewMemoryBackend(), ext, 4)
	results, err := f.orch.ProcessBatch(context.Background(), []common.Article{
		invalid, article("perm"), article("flaky"), article("empty"), article("partial"),
	})
	if err != nil {
		t.Fatalf("ProcessBatch returned error: %v", err)
	}

	tests := []struct {
		idx      int
		state    State
		attempts int
		wantErr  error
	}{
		{idx: 0, state: Failed, attempts: 0, wantErr: ErrInvalidArticle},
		{idx: 1, state: Failed, attempts: 1},
		{idx: 2, state: Failed, attempts: 3, wantErr: retry.ErrRetryExhausted},
		{idx: 3, state: Failed, attempts: 1, wantErr: ErrExtractionRejected},
		{idx: 4, state: Done, attempts: 1},
	}
	for _, tt := range tests {
		r := results[tt.idx]
		if r.State != tt.state {
			t.Fatalf("%s: expected state %s, got %s (err %v)", r.ArticleID, tt.state, r.State, r.Err)
		}
		if r.Attempts != tt.attempts {
			t.Fatalf("%s: expected %d attempts, got %d", r.ArticleID, tt.attempts, r.Attempts)
		}
		if tt.wantErr != nil && !errors.Is(r.Err, tt.wantErr) {
			t.Fatalf("%s: expected %v, got %v", r.ArticleID, tt.wantErr, r.Err)
		}
	}

	if ext.count("bad") != 0 {
		t.Fatalf("invalid article must not reach extraction")
	}
	if !results[4].Done() || len(results[4].Reasons) == 0 {
		t.Fatalf("expected partial article done with reasons, got %+v", results[4])
	}

	tr := f.orch.Tracker()
	counts := map[progress.Category]int64{
		progress.ValidationFailed:   1,
		progress.PermanentFailure:   1,
		progress.RetryExhausted:     1,
		progress.ExtractionRejected: 1,
		progress.Succeeded:          1,
		progress.Attempted:          5,
	}
	for c, want := range counts {
		if got := tr.Count(c); got != want {
			t.Fatalf("%s: expected %d, got %d", c, want, got)
		}
	}

	for _, id := range []string{"bad", "perm", "flaky", "empty"} {
		if f.cp.IsDone(id) {
			t.Fatalf("failed article %s must not be checkpointed", id)
		}
	}
	if !f.cp.IsDone("partial") {
		t.Fatalf("expected partial article to be checkpointed")
	}
	rec := f.cp.Record()
	if rec.Stats.Failed != 4 || rec.Stats.Processed != 1 || rec.Stats.RunID != "run-1" {
		t.Fatalf("unexpected checkpoint stats: %+v", rec.Stats)
	}
}

func TestIngestFailureLeavesArticlePending(t *testing.T) {
	ctx := context.Background()
	backend := checkpoint.NewMemoryBackend()
	cp, err := checkpoint.Open(ctx, backend)
	if err != nil {
		t.Fatalf("checkpoint.Open returned error: %v", err)
	}
	ext := newFakeExtractor()
	ext.results["a1"] = acmeResult()

	orch, err := New(Params{Extractor: ext, Engine: failingIngester{}, Checkpoint: cp})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	results, err := orch.ProcessBatch(ctx, []common.Article{article("a1")})
	if err != nil {
		t.Fatalf("ProcessBatch returned error: %v", err)
	}
	r := results[0]
	if r.State != Ingesting || r.Err == nil || !r.Failed() {
		t.Fatalf("expected article stuck in ingesting, got %+v", r)
	}
	if cp.IsDone("a1") {
		t.Fatalf("article with failed ingest must not be checkpointed")
	}
	if orch.Tracker().Count(progress.IngestFailed) != 1 {
		t.Fatalf("expected ingest_failed to be counted")
	}
}

func TestInterruptFinishesCurrentArticle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ext := newFakeExtractor()
	ext.results["a1"] = acmeResult()
	ext.results["a2"] = acmeResult()
	ext.hook = func(id string) {
		if id == "a1" {
			cancel()
		}
	}
	f := newFixture(t, checkpoint.NewMemoryBackend(), ext, 1)

	results, err := f.orch.ProcessBatch(ctx, []common.Article{article("a1"), article("a2")})
	if err != nil {
		t.Fatalf("ProcessBatch returned error: %v", err)
	}
	if !results[0].Done() {
		t.Fatalf("expected in-flight article to finish, got %+v", results[0])
	}
	if results[1].State != Pending || !errors.Is(results[1].Err, context.Canceled) {
		t.Fatalf("expected a2 not started, got %+v", results[1])
	}
	if ext.count("a2") != 0 {
		t.Fatalf("a2 must not be extracted after cancellation")
	}
	if !f.cp.IsDone("a1") || f.cp.IsDone("a2") {
		t.Fatalf("unexpected checkpoint: %v", f.cp.Record().ProcessedIDs)
	}
	if f.backend.Saves() != 1 {
		t.Fatalf("expected checkpoint flush despite cancellation, got %d saves", f.backend.Saves())
	}
}

func TestFlushFailureIsReturned(t *testing.T) {
	backend := checkpoint.NewMemoryBackend()
	backend.FailWith(errors.New("disk full"))
	ext := newFakeExtractor()
	ext.results["a1"] = acmeResult()
	f := newFixture(t, backend, ext, 1)

	if _, err := f.orch.ProcessBatch(context.Background(), []common.Article{article("a1")}); err == nil {
		t.Fatalf("expected flush error")
	}
}

func TestRunConsumesSource(t *testing.T) {
	ext := newFakeExtractor()
	for _, id := range []string{"a1", "a2", "a3"} {
		ext.results[id] = acmeResult()
	}
	f := newFixture(t, checkpoint.NewMemoryBackend(), ext, 2)

	src := source.NewSliceSource(article("a1"), article("a2"), article("a3"))
	summary, err := f.orch.Run(context.Background(), src)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if summary.Attempted != 3 || summary.Succeeded != 3 || summary.Failed != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if f.backend.Saves() != 2 {
		t.Fatalf("expected one flush per batch, got %d", f.backend.Saves())
	}

	e, ok := f.store.Entity(common.EntityCompany, normalize.Normalize("Acme Corp", common.EntityCompany))
	if !ok {
		t.Fatalf("expected Acme in the graph")
	}
	if e.MentionCount != 3 || len(e.SourceArticles) != 3 {
		t.Fatalf("expected Acme mentioned by 3 articles, got %+v", e)
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(Params{}); err == nil {
		t.Fatalf("expected error without dependencies")
	}
}
