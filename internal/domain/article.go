package domain

import "time"

// Article is the ingested feed item the pipeline enriches. Content may still
// carry HTML from the feed; analysis works on the extracted text.
type Article struct {
	ID        string
	UserID    string
	Title     string
	Author    string
	URL       string
	Content   string
	Published time.Time
}

// MainPoint is one point of a multi-point analysis. Explanation and
// Importance are optional in model output.
type MainPoint struct {
	Point       string  `json:"point"`
	Explanation string  `json:"explanation,omitempty"`
	Importance  float64 `json:"importance,omitempty"`
}

// KeyQuote is a notable quote lifted from the article.
type KeyQuote struct {
	Quote   string `json:"quote"`
	Context string `json:"context,omitempty"`
}

// ScoreDimensions breaks the importance judgment into facets.
type ScoreDimensions struct {
	Relevance float64 `json:"relevance"`
	Novelty   float64 `json:"novelty"`
	Depth     float64 `json:"depth"`
}

// Enrichment is the write-back payload persisted on the article record after
// analysis. Empty fields mean the facet was not produced.
type Enrichment struct {
	Language        string
	Summary         string
	Keywords        []string
	Category        string
	Sentiment       string
	ImportanceScore float64
	MainPoints      []MainPoint
	KeyQuotes       []KeyQuote
	Scores          *ScoreDimensions
	Model           string
	ProcessingMS    int64
	AnalyzedAt      time.Time
}

// UserProviderConfig is the per-user language-model credential set. A nil
// config means environment defaults apply.
type UserProviderConfig struct {
	UserID   string
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)
