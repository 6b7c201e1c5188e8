package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/time/rate"

	"github.com/feedwise/analysis-back/internal/content"
)

const defaultMaxInputRunes = 24000

// capabilityProvider implements Provider on top of a raw TextGenerator. The
// shared rate limiter serializes calls against the vendor's request budget;
// inputs are truncated to the context budget before sending.
type capabilityProvider struct {
	generator     TextGenerator
	limiter       *rate.Limiter
	maxInputRunes int
}

// NewProvider wraps a vendor backend with the capability operations. A nil
// limiter disables throttling (used by tests).
func NewProvider(generator TextGenerator, limiter *rate.Limiter) Provider {
	return &capabilityProvider{
		generator:     generator,
		limiter:       limiter,
		maxInputRunes: defaultMaxInputRunes,
	}
}

func (p *capabilityProvider) Name() string    { return p.generator.Name() }
func (p *capabilityProvider) Available() bool { return p.generator.Available() }

func (p *capabilityProvider) Summarize(ctx context.Context, text, model string) (string, TokenUsage, error) {
	result, err := p.generate(ctx, model,
		"Summarize the article in two to three sentences. Reply with the summary only.",
		text, 0.2, 400)
	if err != nil {
		return "", result.Usage, err
	}
	summary := strings.TrimSpace(result.Text)
	if summary == "" {
		return "", result.Usage, fmt.Errorf("empty summary from %s", p.Name())
	}
	return summary, result.Usage, nil
}

func (p *capabilityProvider) ExtractKeywords(ctx context.Context, text, model string) ([]string, TokenUsage, error) {
	result, err := p.generate(ctx, model,
		"Extract up to 10 keywords from the article. Reply with a JSON array of strings only.",
		text, 0.1, 200)
	if err != nil {
		return nil, result.Usage, err
	}
	keywords := parseKeywordList(result.Text, 10)
	if len(keywords) == 0 {
		return nil, result.Usage, fmt.Errorf("no keywords in %s reply", p.Name())
	}
	return keywords, result.Usage, nil
}

func (p *capabilityProvider) Categorize(ctx context.Context, text, model string) (string, TokenUsage, error) {
	instructions := fmt.Sprintf(
		"Classify the article into exactly one category from: %s. Reply with the category only.",
		strings.Join(Categories, ", "))
	result, err := p.generate(ctx, model, instructions, text, 0.0, 20)
	if err != nil {
		return "", result.Usage, err
	}
	return normalizeCategory(result.Text), result.Usage, nil
}

func (p *capabilityProvider) AnalyzeSentiment(ctx context.Context, text, model string) (string, TokenUsage, error) {
	result, err := p.generate(ctx, model,
		"Classify the overall sentiment of the article as positive, neutral or negative. Reply with one word.",
		text, 0.0, 10)
	if err != nil {
		return "", result.Usage, err
	}
	return normalizeSentiment(result.Text), result.Usage, nil
}

// ScoreImportance never fails: when the call or the numeric parse fails it
// falls back to a content heuristic so the facet still produces a score.
func (p *capabilityProvider) ScoreImportance(ctx context.Context, text, model string) (float64, TokenUsage, error) {
	result, err := p.generate(ctx, model,
		"Rate the importance of this article for a general news reader between 0 and 1. Reply with the number only.",
		text, 0.0, 10)
	if err != nil {
		return heuristicScore(text), TokenUsage{}, nil
	}
	score, parseErr := parseScore(result.Text)
	if parseErr != nil {
		return heuristicScore(text), result.Usage, nil
	}
	return score, result.Usage, nil
}

func (p *capabilityProvider) Embed(ctx context.Context, text, model string) ([]float64, TokenUsage, error) {
	if err := p.wait(ctx); err != nil {
		return nil, TokenUsage{}, err
	}
	return p.generator.Embed(ctx, content.Truncate(text, p.maxInputRunes), model)
}

func (p *capabilityProvider) Chat(ctx context.Context, messages []ChatMessage, options ChatOptions) (ChatResult, error) {
	if err := p.wait(ctx); err != nil {
		return ChatResult{}, err
	}

	instructions := make([]string, 0, 1)
	inputs := make([]string, 0, len(messages))
	for _, message := range messages {
		if strings.TrimSpace(message.Content) == "" {
			continue
		}
		if message.Role == "system" {
			instructions = append(instructions, message.Content)
			continue
		}
		inputs = append(inputs, fmt.Sprintf("%s: %s", message.Role, message.Content))
	}

	result, err := p.generator.Generate(ctx, GenerateRequest{
		Model:           options.Model,
		Instructions:    strings.Join(instructions, "\n"),
		Input:           content.Truncate(strings.Join(inputs, "\n"), p.maxInputRunes),
		Temperature:     options.Temperature,
		MaxOutputTokens: options.MaxOutputTokens,
	})
	if err != nil {
		return ChatResult{}, err
	}
	return ChatResult{
		Content: result.Text,
		ModelID: result.ModelID,
		Usage:   result.Usage,
	}, nil
}

// AnalyzeArticle is the composite preliminary call: summary, category and
// importance in a single cheap request.
func (p *capabilityProvider) AnalyzeArticle(ctx context.Context, text, model string) (ArticleAnalysis, TokenUsage, error) {
	instructions := fmt.Sprintf(
		`Evaluate the article. Reply with JSON only: {"summary": "<one line, max 50 chars>", "category": "<one of: %s>", "importance": <number 0 to 1>}`,
		strings.Join(Categories, ", "))
	result, err := p.generate(ctx, model, instructions, text, 0.1, 200)
	if err != nil {
		return ArticleAnalysis{}, result.Usage, err
	}

	encoded, err := extractJSON(result.Text)
	if err != nil {
		return ArticleAnalysis{}, result.Usage, fmt.Errorf("parse article analysis: %w", err)
	}

	var payload struct {
		Summary    string          `json:"summary"`
		Category   string          `json:"category"`
		Importance json.RawMessage `json:"importance"`
	}
	if err := json.Unmarshal(encoded, &payload); err != nil {
		return ArticleAnalysis{}, result.Usage, fmt.Errorf("decode article analysis: %w", err)
	}

	importance, scoreErr := parseScore(string(payload.Importance))
	if scoreErr != nil {
		importance = heuristicScore(text)
	}

	return ArticleAnalysis{
		Summary:    strings.TrimSpace(payload.Summary),
		Category:   normalizeCategory(payload.Category),
		Importance: importance,
	}, result.Usage, nil
}

func (p *capabilityProvider) generate(
	ctx context.Context,
	model string,
	instructions string,
	text string,
	temperature float64,
	maxTokens int,
) (GenerateResult, error) {
	if err := p.wait(ctx); err != nil {
		return GenerateResult{}, err
	}
	return p.generator.Generate(ctx, GenerateRequest{
		Model:           model,
		Instructions:    instructions,
		Input:           content.Truncate(text, p.maxInputRunes),
		Temperature:     temperature,
		MaxOutputTokens: maxTokens,
	})
}

func (p *capabilityProvider) wait(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("provider rate limit wait: %w", err)
	}
	return nil
}
