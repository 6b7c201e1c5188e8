package preliminary

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/feedwise/analysis-back/internal/ai"
	"github.com/feedwise/analysis-back/internal/cache"
	"github.com/feedwise/analysis-back/internal/content"
	"github.com/feedwise/analysis-back/internal/domain"
	"github.com/feedwise/analysis-back/internal/lang"
	"github.com/feedwise/analysis-back/internal/metrics"
)

const fallbackReason = "evaluation failed, needs manual review"

// Config tunes the cheap pre-judgment pass.
type Config struct {
	MinValue int
	MaxChars int
}

// ProviderResolver builds a provider for the named vendor.
type ProviderResolver interface {
	Provider(name string) (ai.Provider, error)
}

// Evaluator runs the preliminary stage: one cheap composite call deciding
// whether an article deserves deep analysis. It fails open so a broken cheap
// model never silently drops articles.
type Evaluator struct {
	resolver  ProviderResolver
	router    *ai.ModelRouter
	cache     *cache.EvaluationCache
	collector *metrics.Collector
	config    Config
	logger    *log.Logger
}

func NewEvaluator(
	resolver ProviderResolver,
	router *ai.ModelRouter,
	evaluationCache *cache.EvaluationCache,
	collector *metrics.Collector,
	config Config,
	logger *log.Logger,
) *Evaluator {
	if config.MinValue <= 0 {
		config.MinValue = 3
	}
	if config.MaxChars <= 0 {
		config.MaxChars = 2000
	}
	return &Evaluator{
		resolver:  resolver,
		router:    router,
		cache:     evaluationCache,
		collector: collector,
		config:    config,
		logger:    logger,
	}
}

// Evaluate judges the article on truncated content. Any failure downstream of
// language detection yields the fail-open neutral verdict, never an error.
func (e *Evaluator) Evaluate(ctx context.Context, article *domain.Article) domain.PreliminaryEvaluation {
	started := time.Now()

	text := content.Truncate(content.ExtractText(article.Content), e.config.MaxChars)
	if text == "" {
		text = content.Truncate(article.Title, e.config.MaxChars)
	}
	language := lang.Detect(text)
	target := e.router.Route(domain.StagePreliminary, language)

	signature := ""
	if e.cache != nil {
		signature = e.cache.BuildSignature(article.ID, text, target.Model)
		if cached, ok := e.cache.Get(signature); ok {
			return cached
		}
	}

	analysis, usage, err := e.analyze(ctx, text, target)
	elapsed := time.Since(started).Milliseconds()

	metric := domain.AnalysisMetric{
		ArticleID:     article.ID,
		Stage:         domain.StagePreliminary,
		Model:         target.Model,
		Language:      string(language),
		ContentLength: len(text),
		ProcessingMS:  elapsed,
		InputTokens:   usage.InputTokens,
		OutputTokens:  usage.OutputTokens,
		TotalTokens:   usage.TotalTokens,
		Cost:          ai.Cost(target.Model, usage),
		Success:       err == nil,
		Timestamp:     time.Now().UTC(),
	}
	if err != nil {
		metric.ErrorMessage = err.Error()
	}
	if e.collector != nil {
		e.collector.Record(metric)
	}

	if err != nil {
		if e.logger != nil {
			e.logger.Printf("preliminary: article %s fell back to neutral verdict: %v", article.ID, err)
		}
		return domain.PreliminaryEvaluation{
			Ignore:   false,
			Reason:   fallbackReason,
			Value:    3,
			Language: string(language),
		}
	}

	evaluation := e.verdict(analysis, language, len(text))
	if e.cache != nil {
		e.cache.Set(signature, evaluation, target.Model)
	}
	return evaluation
}

func (e *Evaluator) analyze(
	ctx context.Context,
	text string,
	target ai.RouteTarget,
) (ai.ArticleAnalysis, ai.TokenUsage, error) {
	provider, err := e.resolver.Provider(target.Provider)
	if err != nil {
		return ai.ArticleAnalysis{}, ai.TokenUsage{}, fmt.Errorf("resolve provider %s: %w", target.Provider, err)
	}
	return provider.AnalyzeArticle(ctx, text, target.Model)
}

func (e *Evaluator) verdict(
	analysis ai.ArticleAnalysis,
	language lang.Language,
	contentLength int,
) domain.PreliminaryEvaluation {
	value := int(math.Round(analysis.Importance * 5))
	if value < 1 {
		value = 1
	}
	if value > 5 {
		value = 5
	}

	confidence := 0.5 + float64(contentLength)/4000
	if confidence > 1 {
		confidence = 1
	}
	// Extreme verdicts on a cheap model deserve less trust.
	if value == 1 || value == 5 {
		confidence *= 0.8
	}

	evaluation := domain.PreliminaryEvaluation{
		Ignore:     value < e.config.MinValue,
		Value:      value,
		Summary:    analysis.Summary,
		Language:   string(language),
		Confidence: math.Round(confidence*100) / 100,
	}
	if evaluation.Ignore {
		evaluation.Reason = fmt.Sprintf("estimated value %d below threshold %d", value, e.config.MinValue)
	}
	return evaluation
}
