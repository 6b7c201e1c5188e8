package worker

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/feedwise/analysis-back/internal/ai"
	"github.com/feedwise/analysis-back/internal/analysis"
	"github.com/feedwise/analysis-back/internal/domain"
	"github.com/feedwise/analysis-back/internal/metrics"
	"github.com/feedwise/analysis-back/internal/notify"
	"github.com/feedwise/analysis-back/internal/preliminary"
	"github.com/feedwise/analysis-back/internal/repository"
)

// Config tunes the claim loop.
type Config struct {
	Concurrency int
	IdlePoll    time.Duration
	ErrorSleep  time.Duration
}

// ProviderFactory builds providers per user configuration.
type ProviderFactory interface {
	ForUser(userConfig *domain.UserProviderConfig) (ai.Provider, error)
}

// Pool claims pending jobs in batches and fans each batch out to goroutines.
// The store's claim atomicity makes running several pools safe; concurrency
// here only bounds this process's parallelism.
type Pool struct {
	jobs      repository.JobsRepository
	articles  repository.ArticlesRepository
	users     repository.UserConfigRepository
	factory   ProviderFactory
	evaluator *preliminary.Evaluator
	service   *analysis.Service
	collector *metrics.Collector
	pipeline  *metrics.PipelineMetrics
	notifier  notify.Notifier
	config    Config
	logger    *log.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

func NewPool(
	jobs repository.JobsRepository,
	articles repository.ArticlesRepository,
	users repository.UserConfigRepository,
	factory ProviderFactory,
	evaluator *preliminary.Evaluator,
	service *analysis.Service,
	collector *metrics.Collector,
	pipeline *metrics.PipelineMetrics,
	notifier notify.Notifier,
	config Config,
	logger *log.Logger,
) *Pool {
	if config.Concurrency <= 0 {
		config.Concurrency = 3
	}
	if config.IdlePoll <= 0 {
		config.IdlePoll = 5 * time.Second
	}
	if config.ErrorSleep <= 0 {
		config.ErrorSleep = 10 * time.Second
	}
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	return &Pool{
		jobs:      jobs,
		articles:  articles,
		users:     users,
		factory:   factory,
		evaluator: evaluator,
		service:   service,
		collector: collector,
		pipeline:  pipeline,
		notifier:  notifier,
		config:    config,
		logger:    logger,
	}
}

// Start launches the claim loop. Calling Start on a running pool is a no-op.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.mu.Unlock()

	go p.run(runCtx)
}

// Stop interrupts claiming and sleeping and waits for in-flight jobs to
// finish. Jobs already claimed are never aborted: they run to a terminal
// store transition on their own context.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.mu.Unlock()

	cancel()
	<-done

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
}

func (p *Pool) run(ctx context.Context) {
	defer close(p.done)

	if p.logger != nil {
		p.logger.Printf("worker: pool started concurrency=%d", p.config.Concurrency)
	}

	// Cancellation only stops claiming; a claimed job must still reach
	// Complete or FailOrRetry, or its row stays in processing forever.
	jobCtx := context.WithoutCancel(ctx)

	for {
		if ctx.Err() != nil {
			return
		}

		claimed, err := p.jobs.ClaimBatch(ctx, p.config.Concurrency)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if p.logger != nil {
				p.logger.Printf("worker: claim batch: %v", err)
			}
			if !sleepCtx(ctx, p.config.ErrorSleep) {
				return
			}
			continue
		}

		if len(claimed) == 0 {
			if !sleepCtx(ctx, p.config.IdlePoll) {
				return
			}
			continue
		}

		p.updateQueueGauges(ctx)

		var group sync.WaitGroup
		for _, job := range claimed {
			if p.pipeline != nil {
				p.pipeline.JobsClaimed.Inc()
			}
			group.Add(1)
			go func(job domain.AnalysisJob) {
				defer group.Done()
				p.process(jobCtx, job)
			}(job)
		}
		group.Wait()

		p.updateQueueGauges(ctx)
	}
}

func (p *Pool) process(ctx context.Context, job domain.AnalysisJob) {
	started := time.Now()

	article, err := p.articles.Get(ctx, job.ArticleID)
	if err != nil {
		p.recordFailure(job, time.Since(started), err)
		p.failOrRetry(ctx, job, err)
		return
	}

	if p.evaluator != nil && job.Kind == domain.KindAll {
		evaluation := p.evaluator.Evaluate(ctx, article)
		if evaluation.Ignore {
			outcome := domain.JobOutcome{
				PartialErrors: []string{"skipped by preliminary evaluation: " + evaluation.Reason},
			}
			if err := p.jobs.Complete(ctx, job.ID, outcome); err != nil && p.logger != nil {
				p.logger.Printf("worker: complete skipped job %s: %v", job.ID, err)
			}
			p.finish(ctx, job, domain.JobStatusCompleted)
			return
		}
	}

	var userConfig *domain.UserProviderConfig
	if p.users != nil && article.UserID != "" {
		userConfig, err = p.users.GetProviderConfig(ctx, article.UserID)
		if err != nil {
			if p.logger != nil {
				p.logger.Printf("worker: user config for %s unavailable, using defaults: %v", article.UserID, err)
			}
			userConfig = nil
		}
	}

	provider, err := p.factory.ForUser(userConfig)
	if err != nil {
		p.recordFailure(job, time.Since(started), err)
		p.failOrRetry(ctx, job, err)
		return
	}

	modelOverride := ""
	if userConfig != nil {
		modelOverride = userConfig.Model
	}

	result, execErr := p.service.Execute(ctx, provider, article, job.Kind, modelOverride)
	elapsed := time.Since(started)

	p.record(job, article, result, elapsed, execErr)

	if execErr != nil {
		p.failOrRetry(ctx, job, execErr)
		return
	}

	if err := p.jobs.Complete(ctx, job.ID, result.Outcome); err != nil {
		if p.logger != nil {
			p.logger.Printf("worker: complete job %s: %v", job.ID, err)
		}
		return
	}
	if p.logger != nil {
		p.logger.Printf("worker: job completed id=%s article=%s kind=%s model=%s partial=%d",
			job.ID, job.ArticleID, job.Kind, result.Outcome.Model, len(result.Outcome.PartialErrors))
	}
	p.finish(ctx, job, domain.JobStatusCompleted)
}

func (p *Pool) failOrRetry(ctx context.Context, job domain.AnalysisJob, jobErr error) {
	if p.logger != nil {
		p.logger.Printf("worker: job failed id=%s article=%s: %v", job.ID, job.ArticleID, jobErr)
	}
	if err := p.jobs.FailOrRetry(ctx, job.ID, jobErr); err != nil && p.logger != nil {
		p.logger.Printf("worker: record failure for job %s: %v", job.ID, err)
	}
	if p.pipeline != nil {
		p.pipeline.JobsFailed.Inc()
	}
}

func (p *Pool) record(
	job domain.AnalysisJob,
	article *domain.Article,
	result analysis.Result,
	elapsed time.Duration,
	execErr error,
) {
	metric := domain.AnalysisMetric{
		ArticleID:     job.ArticleID,
		Stage:         domain.StageAnalysis,
		Model:         result.Outcome.Model,
		Language:      string(result.Language),
		ContentLength: len(article.Content),
		ProcessingMS:  elapsed.Milliseconds(),
		InputTokens:   result.Tokens.InputTokens,
		OutputTokens:  result.Tokens.OutputTokens,
		TotalTokens:   result.Tokens.TotalTokens,
		Cost:          result.Outcome.Cost,
		Success:       execErr == nil,
		Timestamp:     time.Now().UTC(),
	}
	if execErr != nil {
		metric.ErrorMessage = execErr.Error()
	}
	if p.collector != nil {
		p.collector.Record(metric)
	}

	if p.pipeline != nil {
		p.pipeline.JobDuration.Observe(elapsed.Seconds())
		labels := []string{result.Outcome.Model, string(domain.StageAnalysis)}
		p.pipeline.TokensUsed.WithLabelValues(labels...).Add(float64(result.Tokens.TotalTokens))
		p.pipeline.CostTotal.WithLabelValues(labels...).Add(result.Outcome.Cost)
	}
}

// recordFailure covers executions that never reached the orchestrator; every
// finished attempt leaves a metric, success or failure.
func (p *Pool) recordFailure(job domain.AnalysisJob, elapsed time.Duration, jobErr error) {
	if p.collector == nil {
		return
	}
	p.collector.Record(domain.AnalysisMetric{
		ArticleID:    job.ArticleID,
		Stage:        domain.StageAnalysis,
		ProcessingMS: elapsed.Milliseconds(),
		Success:      false,
		ErrorMessage: jobErr.Error(),
		Timestamp:    time.Now().UTC(),
	})
}

func (p *Pool) finish(ctx context.Context, job domain.AnalysisJob, status domain.JobStatus) {
	if p.pipeline != nil && status == domain.JobStatusCompleted {
		p.pipeline.JobsCompleted.Inc()
	}
	p.notifier.JobCompleted(ctx, notify.CompletionEvent{
		JobID:     job.ID,
		ArticleID: job.ArticleID,
		Kind:      string(job.Kind),
		Status:    string(status),
	})
}

func (p *Pool) updateQueueGauges(ctx context.Context) {
	if p.pipeline == nil {
		return
	}
	status, err := p.jobs.Status(ctx)
	if err != nil {
		return
	}
	p.pipeline.PendingJobs.Set(float64(status.Pending))
	p.pipeline.ProcessingJobs.Set(float64(status.Processing))
}

func sleepCtx(ctx context.Context, duration time.Duration) bool {
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
