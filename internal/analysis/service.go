package analysis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/feedwise/analysis-back/internal/ai"
	"github.com/feedwise/analysis-back/internal/content"
	"github.com/feedwise/analysis-back/internal/domain"
	"github.com/feedwise/analysis-back/internal/lang"
	"github.com/feedwise/analysis-back/internal/quality"
	"github.com/feedwise/analysis-back/internal/repository"
)

var ErrAllFacetsFailed = errors.New("all analysis facets failed")

// Result is one finished orchestration: the billable outcome plus what was
// learned about the article.
type Result struct {
	Outcome  domain.JobOutcome
	Language lang.Language
	Tokens   ai.TokenUsage
}

// Service runs the deep-analysis stage. Facets execute independently: one
// facet's failure is noted and the rest still persist, and only a fully
// failed run reaches the retry path.
type Service struct {
	articles  repository.ArticlesRepository
	router    *ai.ModelRouter
	validator *quality.Validator
	logger    *log.Logger
}

func NewService(
	articles repository.ArticlesRepository,
	router *ai.ModelRouter,
	validator *quality.Validator,
	logger *log.Logger,
) *Service {
	if validator == nil {
		validator = quality.NewValidator()
	}
	return &Service{
		articles:  articles,
		router:    router,
		validator: validator,
		logger:    logger,
	}
}

// Execute runs the facets the job's kind asks for against the given provider
// and writes the enrichment back to the article store. modelOverride, when
// set, wins over the routed model.
func (s *Service) Execute(
	ctx context.Context,
	provider ai.Provider,
	article *domain.Article,
	kind domain.AnalysisKind,
	modelOverride string,
) (Result, error) {
	started := time.Now()

	text := content.ExtractText(article.Content)
	if strings.TrimSpace(text) == "" {
		text = article.Title
	}
	language := lang.Detect(text)

	model := strings.TrimSpace(modelOverride)
	if model == "" {
		model = s.router.Route(domain.StageAnalysis, language).Model
	}

	enrichment := domain.Enrichment{
		Language: string(language),
		Model:    model,
	}
	var usage ai.TokenUsage
	partialErrors := make([]string, 0)
	succeeded := 0

	runFacet := func(name string, execute func() (ai.TokenUsage, error)) {
		facetUsage, err := execute()
		usage = usage.Add(facetUsage)
		if err != nil {
			partialErrors = append(partialErrors, fmt.Sprintf("%s: %v", name, err))
			if s.logger != nil {
				s.logger.Printf("analysis: article %s facet %s failed: %v", article.ID, name, err)
			}
			return
		}
		succeeded++
	}

	if kind == domain.KindAll || kind == domain.KindSummary {
		runFacet("summary", func() (ai.TokenUsage, error) {
			raw, facetUsage, err := provider.Summarize(ctx, text, model)
			if err != nil {
				return facetUsage, err
			}
			checked, err := s.validator.ValidateSummary(raw)
			if err != nil {
				return facetUsage, err
			}
			enrichment.Summary = checked.Summary
			return facetUsage, nil
		})
	}

	if kind == domain.KindAll || kind == domain.KindKeywords {
		runFacet("keywords", func() (ai.TokenUsage, error) {
			raw, facetUsage, err := provider.ExtractKeywords(ctx, text, model)
			if err != nil {
				return facetUsage, err
			}
			keywords, err := s.validator.ValidateKeywords(raw)
			if err != nil {
				return facetUsage, err
			}
			enrichment.Keywords = keywords
			return facetUsage, nil
		})
	}

	if kind == domain.KindAll || kind == domain.KindCategory {
		runFacet("category", func() (ai.TokenUsage, error) {
			raw, facetUsage, err := provider.Categorize(ctx, text, model)
			if err != nil {
				return facetUsage, err
			}
			enrichment.Category = s.validator.ValidateCategory(raw)
			return facetUsage, nil
		})
	}

	if kind == domain.KindAll || kind == domain.KindSentiment {
		runFacet("sentiment", func() (ai.TokenUsage, error) {
			raw, facetUsage, err := provider.AnalyzeSentiment(ctx, text, model)
			if err != nil {
				return facetUsage, err
			}
			enrichment.Sentiment = s.validator.ValidateSentiment(raw)
			return facetUsage, nil
		})
	}

	if kind == domain.KindAll {
		runFacet("importance", func() (ai.TokenUsage, error) {
			raw, facetUsage, err := provider.ScoreImportance(ctx, text, model)
			if err != nil {
				return facetUsage, err
			}
			enrichment.ImportanceScore = s.validator.ValidateScore(raw)
			return facetUsage, nil
		})
	}

	result := Result{
		Outcome: domain.JobOutcome{
			Provider:      provider.Name(),
			Model:         model,
			TokensUsed:    usage.TotalTokens,
			Cost:          ai.Cost(model, usage),
			PartialErrors: partialErrors,
		},
		Language: language,
		Tokens:   usage,
	}

	if succeeded == 0 {
		return result, fmt.Errorf("%w: %s", ErrAllFacetsFailed, strings.Join(partialErrors, "; "))
	}

	enrichment.ProcessingMS = time.Since(started).Milliseconds()
	enrichment.AnalyzedAt = time.Now().UTC()
	if err := s.articles.UpdateEnrichment(ctx, article.ID, enrichment); err != nil {
		return result, fmt.Errorf("persist enrichment for article %s: %w", article.ID, err)
	}
	return result, nil
}
