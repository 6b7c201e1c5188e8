package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/feedwise/analysis-back/internal/ai"
	"github.com/feedwise/analysis-back/internal/analysis"
	"github.com/feedwise/analysis-back/internal/cache"
	"github.com/feedwise/analysis-back/internal/config"
	httpserver "github.com/feedwise/analysis-back/internal/http"
	"github.com/feedwise/analysis-back/internal/http/handlers"
	"github.com/feedwise/analysis-back/internal/metrics"
	"github.com/feedwise/analysis-back/internal/monitor"
	"github.com/feedwise/analysis-back/internal/notify"
	"github.com/feedwise/analysis-back/internal/preliminary"
	"github.com/feedwise/analysis-back/internal/quality"
	"github.com/feedwise/analysis-back/internal/repository"
	"github.com/feedwise/analysis-back/internal/worker"
)

func main() {
	logger := log.New(os.Stdout, "[analyzer] ", log.LstdFlags|log.LUTC|log.Lmicroseconds)
	if err := config.LoadDotEnv(".env", ".env.local"); err != nil {
		logger.Printf("failed loading .env files: %v", err)
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	retryPolicy := repository.RetryPolicy{
		MaxRetries: cfg.JobMaxRetries,
		BaseDelay:  time.Duration(cfg.JobRetryBaseDelayMS) * time.Millisecond,
	}
	jobs, articles, users, storeCloser := setupStores(ctx, cfg, retryPolicy, logger)
	defer storeCloser()

	factory := ai.NewFactory(ai.FactoryConfig{
		DefaultProvider: cfg.DefaultProvider,
		OpenAI: ai.OpenAIClientConfig{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			Timeout:    time.Duration(cfg.OpenAITimeoutMS) * time.Millisecond,
			MaxRetries: cfg.OpenAIMaxRetries,
		},
		OpenRouter: ai.OpenRouterClientConfig{
			APIKey:     cfg.OpenRouterAPIKey,
			BaseURL:    cfg.OpenRouterBaseURL,
			Timeout:    time.Duration(cfg.OpenRouterTimeoutMS) * time.Millisecond,
			MaxRetries: cfg.OpenRouterMaxRetries,
			SiteURL:    cfg.OpenRouterSiteURL,
			AppName:    cfg.OpenRouterAppName,
		},
		RateRPS:   cfg.ProviderRateRPS,
		RateBurst: cfg.ProviderRateBurst,
	})

	modelRouter, err := ai.NewModelRouter(ai.ModelRouterConfig{
		DefaultProvider:  cfg.DefaultProvider,
		DefaultModel:     cfg.ModelDefault,
		ChineseModel:     cfg.ModelDefaultChinese,
		PreliminaryModel: cfg.ModelDefaultPreliminary,
		RoutesFile:       cfg.ModelRoutesFile,
	})
	if err != nil {
		logger.Fatalf("model router: %v", err)
	}
	if err := modelRouter.Validate(factory.HasCredentials); err != nil {
		logger.Fatalf("model router validation: %v", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	pipeline := metrics.NewPipelineMetrics(registry)
	collector := metrics.NewCollector()

	perfMonitor := monitor.NewMonitor(collector, jobs, monitor.Thresholds{
		MaxProcessingMS: float64(cfg.AlertMaxProcessingMS),
		MaxCost:         cfg.AlertMaxCost,
		MaxErrorRate:    cfg.AlertMaxErrorRate,
		MaxBacklog:      cfg.AlertMaxBacklog,
	})

	notifier, notifierCloser := setupNotifier(cfg, logger)
	defer notifierCloser()

	var evaluator *preliminary.Evaluator
	if cfg.PreliminaryEnabled {
		evaluator = preliminary.NewEvaluator(
			factory,
			modelRouter,
			cache.NewEvaluationCache(cache.Config{
				TTL: time.Duration(cfg.PreliminaryCacheTTLSec) * time.Second,
			}),
			collector,
			preliminary.Config{
				MinValue: cfg.PreliminaryMinValue,
				MaxChars: cfg.PreliminaryMaxChars,
			},
			logger,
		)
	} else {
		logger.Printf("preliminary evaluation disabled by configuration")
	}

	service := analysis.NewService(articles, modelRouter, quality.NewValidator(), logger)

	pool := worker.NewPool(
		jobs, articles, users, factory, evaluator, service,
		collector, pipeline, notifier,
		worker.Config{
			Concurrency: cfg.WorkerConcurrency,
			IdlePoll:    time.Duration(cfg.WorkerIdlePollMS) * time.Millisecond,
			ErrorSleep:  time.Duration(cfg.WorkerErrorSleepMS) * time.Millisecond,
		},
		logger,
	)
	if cfg.WorkerEnabled {
		pool.Start(ctx)
		defer pool.Stop()
		logger.Printf("worker pool enabled and started")
	} else {
		logger.Printf("worker pool disabled by configuration")
	}

	go runRetention(ctx, collector, jobs, cfg.MetricRetentionDays, logger)

	api := handlers.NewAPI(jobs, collector, perfMonitor, logger)
	handler := httpserver.NewRouter(httpserver.RouterDependencies{
		API:            api,
		Logger:         logger,
		AuthToken:      cfg.AuthToken,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		Registry:       registry,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Printf("api listening on :%s", cfg.Port)
		errChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Printf("shutdown signal received")
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("server failed: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
}

func setupStores(
	ctx context.Context,
	cfg config.Config,
	retryPolicy repository.RetryPolicy,
	logger *log.Logger,
) (repository.JobsRepository, repository.ArticlesRepository, repository.UserConfigRepository, func()) {
	if cfg.DatabaseURL == "" {
		logger.Printf("DATABASE_URL not configured, using in-memory stores")
		return repository.NewMemoryJobsRepository(retryPolicy),
			repository.NewMemoryArticlesRepository(),
			repository.NewMemoryUserConfigRepository(),
			func() {}
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err == nil {
		err = pool.Ping(ctx)
	}
	if err != nil {
		logger.Printf("failed to initialize postgres stores, fallback to memory: %v", err)
		return repository.NewMemoryJobsRepository(retryPolicy),
			repository.NewMemoryArticlesRepository(),
			repository.NewMemoryUserConfigRepository(),
			func() {}
	}

	logger.Printf("postgres stores initialized")
	return repository.NewPostgresJobsRepositoryWithPool(pool, retryPolicy),
		repository.NewPostgresArticlesRepository(pool),
		repository.NewPostgresUserConfigRepository(pool),
		pool.Close
}

func setupNotifier(cfg config.Config, logger *log.Logger) (notify.Notifier, func()) {
	if cfg.RedisAddr == "" {
		logger.Printf("REDIS_ADDR not configured, completion notifications disabled")
		return notify.NoopNotifier{}, func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	logger.Printf("redis notifier initialized channel=%s", cfg.RedisChannel)
	return notify.NewRedisNotifier(client, cfg.RedisChannel, logger), func() {
		_ = client.Close()
	}
}

// runRetention prunes old metric records and completed jobs once a day.
func runRetention(
	ctx context.Context,
	collector *metrics.Collector,
	jobs repository.JobsRepository,
	retentionDays int,
	logger *log.Logger,
) {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	retention := time.Duration(retentionDays) * 24 * time.Hour

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			droppedMetrics := collector.DeleteOlderThan(retention)
			deletedJobs, err := jobs.Cleanup(ctx, retention)
			if err != nil {
				logger.Printf("retention: cleanup jobs: %v", err)
				continue
			}
			logger.Printf("retention: dropped %d metric records, deleted %d completed jobs", droppedMetrics, deletedJobs)
		}
	}
}
