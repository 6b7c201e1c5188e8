package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/feedwise/analysis-back/internal/ai"
	"github.com/feedwise/analysis-back/internal/analysis"
	"github.com/feedwise/analysis-back/internal/cache"
	"github.com/feedwise/analysis-back/internal/domain"
	"github.com/feedwise/analysis-back/internal/metrics"
	"github.com/feedwise/analysis-back/internal/notify"
	"github.com/feedwise/analysis-back/internal/preliminary"
	"github.com/feedwise/analysis-back/internal/repository"
)

type fakeProvider struct {
	failFacets bool
	importance float64

	summaryStarted chan struct{}
	summaryGate    chan struct{}
}

func (p *fakeProvider) Name() string    { return "fake" }
func (p *fakeProvider) Available() bool { return true }

func (p *fakeProvider) Summarize(context.Context, string, string) (string, ai.TokenUsage, error) {
	if p.summaryStarted != nil {
		select {
		case p.summaryStarted <- struct{}{}:
		default:
		}
	}
	if p.summaryGate != nil {
		<-p.summaryGate
	}
	if p.failFacets {
		return "", ai.TokenUsage{}, errors.New("backend down")
	}
	return "A short but complete summary of the article.", ai.TokenUsage{TotalTokens: 50}, nil
}

func (p *fakeProvider) ExtractKeywords(context.Context, string, string) ([]string, ai.TokenUsage, error) {
	if p.failFacets {
		return nil, ai.TokenUsage{}, errors.New("backend down")
	}
	return []string{"news", "pipeline"}, ai.TokenUsage{TotalTokens: 30}, nil
}

func (p *fakeProvider) Categorize(context.Context, string, string) (string, ai.TokenUsage, error) {
	if p.failFacets {
		return "", ai.TokenUsage{}, errors.New("backend down")
	}
	return "technology", ai.TokenUsage{TotalTokens: 10}, nil
}

func (p *fakeProvider) AnalyzeSentiment(context.Context, string, string) (string, ai.TokenUsage, error) {
	if p.failFacets {
		return "", ai.TokenUsage{}, errors.New("backend down")
	}
	return "neutral", ai.TokenUsage{TotalTokens: 10}, nil
}

func (p *fakeProvider) ScoreImportance(context.Context, string, string) (float64, ai.TokenUsage, error) {
	if p.failFacets {
		return 0, ai.TokenUsage{}, errors.New("backend down")
	}
	return 0.6, ai.TokenUsage{TotalTokens: 10}, nil
}

func (p *fakeProvider) Embed(context.Context, string, string) ([]float64, ai.TokenUsage, error) {
	return nil, ai.TokenUsage{}, errors.New("not implemented")
}

func (p *fakeProvider) Chat(context.Context, []ai.ChatMessage, ai.ChatOptions) (ai.ChatResult, error) {
	return ai.ChatResult{}, errors.New("not implemented")
}

func (p *fakeProvider) AnalyzeArticle(context.Context, string, string) (ai.ArticleAnalysis, ai.TokenUsage, error) {
	return ai.ArticleAnalysis{
		Summary:    "verdict",
		Category:   "other",
		Importance: p.importance,
	}, ai.TokenUsage{TotalTokens: 20}, nil
}

type fakeFactory struct {
	provider *fakeProvider
}

func (f *fakeFactory) ForUser(*domain.UserProviderConfig) (ai.Provider, error) {
	return f.provider, nil
}

func (f *fakeFactory) Provider(string) (ai.Provider, error) {
	return f.provider, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.CompletionEvent
}

func (n *recordingNotifier) JobCompleted(_ context.Context, event notify.CompletionEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

type poolFixture struct {
	jobs      *repository.MemoryJobsRepository
	articles  *repository.MemoryArticlesRepository
	collector *metrics.Collector
	notifier  *recordingNotifier
	pool      *Pool
}

func newPoolFixture(t *testing.T, provider *fakeProvider, evaluator *preliminary.Evaluator) *poolFixture {
	t.Helper()

	jobs := newTestJobsRepository()
	articles := repository.NewMemoryArticlesRepository()
	articles.Put(domain.Article{
		ID:      "article-1",
		UserID:  "user-1",
		Title:   "Headline",
		Content: "The article body is plain English text with enough words for the tests.",
	})

	router, err := ai.NewModelRouter(ai.ModelRouterConfig{})
	if err != nil {
		t.Fatalf("model router: %v", err)
	}

	collector := metrics.NewCollector()
	notifier := &recordingNotifier{}
	pool := NewPool(
		jobs,
		articles,
		repository.NewMemoryUserConfigRepository(),
		&fakeFactory{provider: provider},
		evaluator,
		analysis.NewService(articles, router, nil, nil),
		collector,
		nil,
		notifier,
		Config{Concurrency: 2, IdlePoll: 10 * time.Millisecond, ErrorSleep: 10 * time.Millisecond},
		nil,
	)
	return &poolFixture{
		jobs:      jobs,
		articles:  articles,
		collector: collector,
		notifier:  notifier,
		pool:      pool,
	}
}

func newTestJobsRepository() *repository.MemoryJobsRepository {
	return repository.NewMemoryJobsRepository(repository.RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  time.Hour,
	})
}

func waitFor(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestPoolProcessesJobEndToEnd(t *testing.T) {
	fixture := newPoolFixture(t, &fakeProvider{}, nil)
	ctx := context.Background()

	job, _, err := fixture.jobs.Enqueue(ctx, "article-1", domain.KindAll, 0)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	fixture.pool.Start(ctx)
	defer fixture.pool.Stop()

	waitFor(t, 2*time.Second, func() bool {
		stored, err := fixture.jobs.GetJob(ctx, job.ID)
		return err == nil && stored.Status == domain.JobStatusCompleted
	})

	stored, _ := fixture.jobs.GetJob(ctx, job.ID)
	if stored.Provider != "fake" || stored.TokensUsed == 0 {
		t.Errorf("outcome not recorded on job: %+v", stored)
	}

	if _, ok := fixture.articles.Enrichment("article-1"); !ok {
		t.Errorf("enrichment not written")
	}

	byStage := fixture.collector.AggregateByStage(0)
	stage := byStage[string(domain.StageAnalysis)]
	if stage.Count != 1 || stage.SuccessCount != 1 {
		t.Errorf("expected one successful analysis metric, got %+v", stage)
	}

	waitFor(t, time.Second, func() bool { return fixture.notifier.count() == 1 })
}

func TestPoolSendsFailedExecutionsToRetryPath(t *testing.T) {
	fixture := newPoolFixture(t, &fakeProvider{failFacets: true}, nil)
	ctx := context.Background()

	job, _, err := fixture.jobs.Enqueue(ctx, "article-1", domain.KindAll, 0)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	fixture.pool.Start(ctx)
	defer fixture.pool.Stop()

	waitFor(t, 2*time.Second, func() bool {
		stored, err := fixture.jobs.GetJob(ctx, job.ID)
		return err == nil && stored.RetryCount >= 1
	})

	stored, _ := fixture.jobs.GetJob(ctx, job.ID)
	if stored.Status != domain.JobStatusPending {
		t.Errorf("first failure should leave the job pending for retry, got %s", stored.Status)
	}
	if stored.NextRetryAt == nil {
		t.Errorf("retried job missing backoff gate")
	}
	if fixture.notifier.count() != 0 {
		t.Errorf("failed execution must not notify completion")
	}
}

func TestPoolSkipsArticlesRejectedByPreliminary(t *testing.T) {
	provider := &fakeProvider{importance: 0.1}
	router, err := ai.NewModelRouter(ai.ModelRouterConfig{})
	if err != nil {
		t.Fatalf("model router: %v", err)
	}
	evaluator := preliminary.NewEvaluator(
		&fakeFactory{provider: provider},
		router,
		cache.NewEvaluationCache(cache.Config{}),
		nil,
		preliminary.Config{MinValue: 3, MaxChars: 2000},
		nil,
	)
	fixture := newPoolFixture(t, provider, evaluator)
	ctx := context.Background()

	job, _, err := fixture.jobs.Enqueue(ctx, "article-1", domain.KindAll, 0)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	fixture.pool.Start(ctx)
	defer fixture.pool.Stop()

	waitFor(t, 2*time.Second, func() bool {
		stored, err := fixture.jobs.GetJob(ctx, job.ID)
		return err == nil && stored.Status == domain.JobStatusCompleted
	})

	stored, _ := fixture.jobs.GetJob(ctx, job.ID)
	if stored.ErrorMessage == "" {
		t.Errorf("skipped job should carry the skip note, got empty message")
	}
	// Deep analysis never ran, so no enrichment was written.
	if _, ok := fixture.articles.Enrichment("article-1"); ok {
		t.Errorf("skipped article must not be enriched")
	}
}

// ctxStrictJobs refuses terminal writes on a cancelled context, the way a
// real database driver does.
type ctxStrictJobs struct {
	repository.JobsRepository
}

func (s *ctxStrictJobs) Complete(ctx context.Context, jobID string, outcome domain.JobOutcome) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.JobsRepository.Complete(ctx, jobID, outcome)
}

func (s *ctxStrictJobs) FailOrRetry(ctx context.Context, jobID string, jobErr error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.JobsRepository.FailOrRetry(ctx, jobID, jobErr)
}

func TestStopLetsInFlightJobsFinish(t *testing.T) {
	provider := &fakeProvider{
		summaryStarted: make(chan struct{}, 1),
		summaryGate:    make(chan struct{}),
	}
	jobs := &ctxStrictJobs{JobsRepository: newTestJobsRepository()}
	articles := repository.NewMemoryArticlesRepository()
	articles.Put(domain.Article{ID: "article-1", UserID: "user-1", Title: "Headline", Content: "Body text."})

	router, err := ai.NewModelRouter(ai.ModelRouterConfig{})
	if err != nil {
		t.Fatalf("model router: %v", err)
	}
	pool := NewPool(
		jobs,
		articles,
		repository.NewMemoryUserConfigRepository(),
		&fakeFactory{provider: provider},
		nil,
		analysis.NewService(articles, router, nil, nil),
		metrics.NewCollector(),
		nil,
		nil,
		Config{Concurrency: 1, IdlePoll: 10 * time.Millisecond, ErrorSleep: 10 * time.Millisecond},
		nil,
	)

	ctx := context.Background()
	job, _, err := jobs.Enqueue(ctx, "article-1", domain.KindSummary, 0)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	pool.Start(ctx)

	select {
	case <-provider.summaryStarted:
	case <-time.After(2 * time.Second):
		t.Fatalf("job never reached the provider")
	}

	stopped := make(chan struct{})
	go func() {
		pool.Stop()
		close(stopped)
	}()

	// Let Stop interrupt the claim loop while the job is still in flight.
	time.Sleep(20 * time.Millisecond)
	close(provider.summaryGate)

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatalf("Stop did not wait for the in-flight job")
	}

	stored, err := jobs.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if stored.Status != domain.JobStatusCompleted {
		t.Fatalf("in-flight job must finish across Stop, got status %s error %q",
			stored.Status, stored.ErrorMessage)
	}
}

func TestPoolRecordsMetricWhenArticleLookupFails(t *testing.T) {
	fixture := newPoolFixture(t, &fakeProvider{}, nil)
	ctx := context.Background()

	job, _, err := fixture.jobs.Enqueue(ctx, "no-such-article", domain.KindAll, 0)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	fixture.pool.Start(ctx)
	defer fixture.pool.Stop()

	waitFor(t, 2*time.Second, func() bool {
		stored, err := fixture.jobs.GetJob(ctx, job.ID)
		return err == nil && stored.RetryCount >= 1
	})

	byStage := fixture.collector.AggregateByStage(0)
	stage := byStage[string(domain.StageAnalysis)]
	if stage.FailureCount < 1 {
		t.Fatalf("article lookup failure left no analysis metric: %+v", stage)
	}
}

func TestPoolStartIsIdempotentAndStopWaits(t *testing.T) {
	fixture := newPoolFixture(t, &fakeProvider{}, nil)
	ctx := context.Background()

	fixture.pool.Start(ctx)
	fixture.pool.Start(ctx)

	done := make(chan struct{})
	go func() {
		fixture.pool.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Stop did not return")
	}

	// Restart after Stop must work.
	fixture.pool.Start(ctx)
	fixture.pool.Stop()
}
