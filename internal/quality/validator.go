package quality

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/feedwise/analysis-back/internal/domain"
)

var ErrQualityRejected = errors.New("output failed quality checks")

const (
	maxSummaryLen  = 600
	minSummaryLen  = 10
	maxKeywords    = 10
	maxKeywordLen  = 60
	maxPoints      = 8
	maxQuotes      = 5
	minResultScore = 0.40
)

var validCategories = map[string]struct{}{
	"technology":    {},
	"business":      {},
	"science":       {},
	"politics":      {},
	"entertainment": {},
	"sports":        {},
	"health":        {},
	"world":         {},
	"other":         {},
}

// Validator normalizes model output before it is persisted. It corrects what
// it can and rejects only results with nothing salvageable.
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// SummaryResult is the checked summary facet.
type SummaryResult struct {
	Summary   string
	Score     float64
	Corrected bool
}

func (v *Validator) ValidateSummary(raw string) (SummaryResult, error) {
	penalty := 0.0
	corrected := false

	summary := normalizeText(raw)
	if summary == "" {
		return SummaryResult{}, fmt.Errorf("%w: summary text is empty", ErrQualityRejected)
	}
	if len(summary) > maxSummaryLen {
		summary = truncateAtWord(summary, maxSummaryLen)
		corrected = true
		penalty += 0.06
	}
	if len(summary) < minSummaryLen {
		penalty += 0.20
	}
	if !hasTerminalPunctuation(summary) {
		summary += "."
		corrected = true
	}

	score := clamp01(1.0 - penalty)
	if score < minResultScore {
		return SummaryResult{}, fmt.Errorf("%w: low summary quality score %.2f", ErrQualityRejected, score)
	}
	return SummaryResult{Summary: summary, Score: round2(score), Corrected: corrected}, nil
}

// ValidateKeywords dedupes, trims and clamps the keyword list.
func (v *Validator) ValidateKeywords(raw []string) ([]string, error) {
	seen := make(map[string]struct{}, len(raw))
	keywords := make([]string, 0, maxKeywords)
	for _, item := range raw {
		keyword := normalizeText(item)
		if keyword == "" {
			continue
		}
		if len(keyword) > maxKeywordLen {
			keyword = truncateAtWord(keyword, maxKeywordLen)
		}
		key := strings.ToLower(keyword)
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		keywords = append(keywords, keyword)
		if len(keywords) == maxKeywords {
			break
		}
	}
	if len(keywords) == 0 {
		return nil, fmt.Errorf("%w: no usable keywords", ErrQualityRejected)
	}
	return keywords, nil
}

// ValidateCategory maps output to the fixed category set; anything off the
// list becomes "other" rather than an error.
func (v *Validator) ValidateCategory(raw string) string {
	category := strings.ToLower(normalizeText(raw))
	if _, ok := validCategories[category]; ok {
		return category
	}
	for known := range validCategories {
		if strings.Contains(category, known) {
			return known
		}
	}
	return "other"
}

// ValidateSentiment collapses output onto the three-value sentiment scale.
func (v *Validator) ValidateSentiment(raw string) string {
	sentiment := strings.ToLower(normalizeText(raw))
	switch {
	case strings.Contains(sentiment, domain.SentimentPositive):
		return domain.SentimentPositive
	case strings.Contains(sentiment, domain.SentimentNegative):
		return domain.SentimentNegative
	default:
		return domain.SentimentNeutral
	}
}

// ValidateScore clamps an importance score into [0, 1].
func (v *Validator) ValidateScore(raw float64) float64 {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 0
	}
	return round2(clamp01(raw))
}

// ValidateMainPoints drops empty points and clamps list length and each
// point's importance.
func (v *Validator) ValidateMainPoints(raw []domain.MainPoint) []domain.MainPoint {
	points := make([]domain.MainPoint, 0, maxPoints)
	for _, item := range raw {
		point := normalizeText(item.Point)
		if point == "" {
			continue
		}
		points = append(points, domain.MainPoint{
			Point:       point,
			Explanation: normalizeText(item.Explanation),
			Importance:  round2(clamp01(item.Importance)),
		})
		if len(points) == maxPoints {
			break
		}
	}
	return points
}

// ValidateKeyQuotes drops empty quotes and clamps list length.
func (v *Validator) ValidateKeyQuotes(raw []domain.KeyQuote) []domain.KeyQuote {
	quotes := make([]domain.KeyQuote, 0, maxQuotes)
	for _, item := range raw {
		quote := normalizeText(item.Quote)
		if quote == "" {
			continue
		}
		quotes = append(quotes, domain.KeyQuote{
			Quote:   quote,
			Context: normalizeText(item.Context),
		})
		if len(quotes) == maxQuotes {
			break
		}
	}
	return quotes
}

// ValidateDimensions clamps every facet score; a nil input stays nil.
func (v *Validator) ValidateDimensions(raw *domain.ScoreDimensions) *domain.ScoreDimensions {
	if raw == nil {
		return nil
	}
	return &domain.ScoreDimensions{
		Relevance: round2(clamp01(raw.Relevance)),
		Novelty:   round2(clamp01(raw.Novelty)),
		Depth:     round2(clamp01(raw.Depth)),
	}
}

func normalizeText(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	return strings.Join(strings.Fields(trimmed), " ")
}

func truncateAtWord(value string, maxLen int) string {
	if len(value) <= maxLen || maxLen <= 0 {
		return value
	}
	cut := value[:maxLen]
	lastSpace := strings.LastIndex(cut, " ")
	if lastSpace > maxLen/2 {
		cut = cut[:lastSpace]
	}
	return strings.TrimSpace(cut)
}

func hasTerminalPunctuation(value string) bool {
	if value == "" {
		return false
	}
	last := value[len(value)-1]
	return last == '.' || last == '!' || last == '?'
}

func clamp01(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
