package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrProviderUnavailable signals a backend without usable credentials.
var ErrProviderUnavailable = errors.New("provider unavailable")

// Categories is the fixed set Categorize must resolve to.
var Categories = []string{
	"technology", "business", "science", "politics",
	"entertainment", "sports", "health", "world", "other",
}

type TokenUsage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Add accumulates usage across calls belonging to one job.
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
		TotalTokens:  u.TotalTokens + other.TotalTokens,
	}
}

type GenerateRequest struct {
	Model           string
	Instructions    string
	Input           string
	Temperature     float64
	MaxOutputTokens int
}

type GenerateResult struct {
	Text    string
	ModelID string
	Usage   TokenUsage
}

// TextGenerator is the raw completion surface a vendor backend exposes. The
// capability layer in provider.go builds the typed operations on top of it.
type TextGenerator interface {
	Name() string
	Available() bool
	Generate(ctx context.Context, request GenerateRequest) (GenerateResult, error)
	Embed(ctx context.Context, text, model string) ([]float64, TokenUsage, error)
}

type ChatMessage struct {
	Role    string
	Content string
}

type ChatOptions struct {
	Model           string
	Temperature     float64
	MaxOutputTokens int
}

type ChatResult struct {
	Content string
	ModelID string
	Usage   TokenUsage
}

// ArticleAnalysis is the composite preliminary judgment: the cheapest
// combination of outputs one call can produce.
type ArticleAnalysis struct {
	Summary    string
	Category   string
	Importance float64
}

// Provider is the capability interface over language-model backends. Each
// operation may fail independently; one capability's failure never leaks into
// another's result.
type Provider interface {
	Name() string
	Available() bool
	Summarize(ctx context.Context, text, model string) (string, TokenUsage, error)
	ExtractKeywords(ctx context.Context, text, model string) ([]string, TokenUsage, error)
	Categorize(ctx context.Context, text, model string) (string, TokenUsage, error)
	AnalyzeSentiment(ctx context.Context, text, model string) (string, TokenUsage, error)
	ScoreImportance(ctx context.Context, text, model string) (float64, TokenUsage, error)
	Embed(ctx context.Context, text, model string) ([]float64, TokenUsage, error)
	Chat(ctx context.Context, messages []ChatMessage, options ChatOptions) (ChatResult, error)
	AnalyzeArticle(ctx context.Context, text, model string) (ArticleAnalysis, TokenUsage, error)
}

type providerHTTPError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *providerHTTPError) Error() string {
	return fmt.Sprintf("%s status %d: %s", e.Provider, e.StatusCode, e.Message)
}

// isRetryableProviderError gates the short in-client retry only. Job-level
// backoff retries every failure regardless of class.
func isRetryableProviderError(err error) bool {
	if err == nil {
		return false
	}
	var httpErr *providerHTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "timeout") || strings.Contains(message, "tempor")
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}
