package quality

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/feedwise/analysis-back/internal/domain"
)

func TestValidateSummaryNormalizesAndPunctuates(t *testing.T) {
	v := NewValidator()

	got, err := v.ValidateSummary("  A  clear   summary of the piece  ")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got.Summary != "A clear summary of the piece." {
		t.Errorf("summary = %q", got.Summary)
	}
	if !got.Corrected {
		t.Errorf("added punctuation should mark the result corrected")
	}
	if got.Score < minResultScore {
		t.Errorf("score = %v", got.Score)
	}
}

func TestValidateSummaryRejectsEmpty(t *testing.T) {
	v := NewValidator()
	if _, err := v.ValidateSummary("   "); !errors.Is(err, ErrQualityRejected) {
		t.Fatalf("expected ErrQualityRejected, got %v", err)
	}
}

func TestValidateSummaryTruncatesLongText(t *testing.T) {
	v := NewValidator()
	long := strings.Repeat("many words here ", 100)

	got, err := v.ValidateSummary(long)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(got.Summary) > maxSummaryLen+1 {
		t.Errorf("summary length = %d, want at most %d", len(got.Summary), maxSummaryLen+1)
	}
	if !got.Corrected {
		t.Errorf("truncation should mark the result corrected")
	}
}

func TestValidateKeywordsDedupesAndClamps(t *testing.T) {
	v := NewValidator()
	raw := []string{" Go ", "go", "", "queues", "Queues", "a", "b", "c", "d", "e", "f", "g", "h", "i"}

	got, err := v.ValidateKeywords(raw)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(got) != maxKeywords {
		t.Errorf("len = %d, want %d", len(got), maxKeywords)
	}
	if got[0] != "Go" || got[1] != "queues" {
		t.Errorf("unexpected head: %v", got[:2])
	}

	if _, err := v.ValidateKeywords([]string{"", "   "}); !errors.Is(err, ErrQualityRejected) {
		t.Errorf("all-empty list should be rejected, got %v", err)
	}
}

func TestValidateCategoryFallsBackToOther(t *testing.T) {
	v := NewValidator()
	cases := []struct {
		raw  string
		want string
	}{
		{"Technology", "technology"},
		{"the category is sports", "sports"},
		{"astrology", "other"},
		{"", "other"},
	}
	for _, tc := range cases {
		if got := v.ValidateCategory(tc.raw); got != tc.want {
			t.Errorf("ValidateCategory(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestValidateSentimentCollapsesToThreeValues(t *testing.T) {
	v := NewValidator()
	cases := []struct {
		raw  string
		want string
	}{
		{"Positive", domain.SentimentPositive},
		{"mostly negative tone", domain.SentimentNegative},
		{"mixed", domain.SentimentNeutral},
		{"", domain.SentimentNeutral},
	}
	for _, tc := range cases {
		if got := v.ValidateSentiment(tc.raw); got != tc.want {
			t.Errorf("ValidateSentiment(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestValidateScoreClampsAndRejectsNonFinite(t *testing.T) {
	v := NewValidator()
	cases := []struct {
		raw  float64
		want float64
	}{
		{0.756, 0.76},
		{-0.3, 0},
		{1.7, 1},
		{math.NaN(), 0},
		{math.Inf(1), 0},
	}
	for _, tc := range cases {
		if got := v.ValidateScore(tc.raw); got != tc.want {
			t.Errorf("ValidateScore(%v) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestValidateMainPointsDropsEmptyAndClamps(t *testing.T) {
	v := NewValidator()
	raw := []domain.MainPoint{
		{Point: "  first  point ", Importance: 1.5},
		{Point: "", Importance: 0.5},
		{Point: "second", Explanation: " why it matters ", Importance: -1},
	}

	got := v.ValidateMainPoints(raw)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Point != "first point" || got[0].Importance != 1 {
		t.Errorf("first point = %+v", got[0])
	}
	if got[1].Explanation != "why it matters" || got[1].Importance != 0 {
		t.Errorf("second point = %+v", got[1])
	}
}

func TestValidateDimensionsKeepsNil(t *testing.T) {
	v := NewValidator()
	if v.ValidateDimensions(nil) != nil {
		t.Fatalf("nil input must stay nil")
	}

	got := v.ValidateDimensions(&domain.ScoreDimensions{Relevance: 1.2, Novelty: -0.1, Depth: 0.333})
	if got.Relevance != 1 || got.Novelty != 0 || got.Depth != 0.33 {
		t.Errorf("dimensions not clamped: %+v", got)
	}
}
