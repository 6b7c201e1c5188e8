package domain

import "time"

type AnalysisStage string

const (
	StagePreliminary AnalysisStage = "preliminary"
	StageAnalysis    AnalysisStage = "analysis"
	StageReflection  AnalysisStage = "reflection"
	StageFull        AnalysisStage = "full"
)

// AnalysisMetric is one immutable record per attempted stage execution,
// written at the moment the stage finishes, success or failure.
type AnalysisMetric struct {
	ArticleID     string
	Stage         AnalysisStage
	Model         string
	Language      string
	ContentLength int
	ProcessingMS  int64
	InputTokens   int
	OutputTokens  int
	TotalTokens   int
	Cost          float64
	Success       bool
	ErrorMessage  string
	Timestamp     time.Time
}

// PreliminaryEvaluation is the cheap pre-judgment of an article. It is
// consumed inline to decide whether deep analysis is worth its cost and is
// never persisted on its own.
type PreliminaryEvaluation struct {
	Ignore     bool
	Reason     string
	Value      int
	Summary    string
	Language   string
	Confidence float64
}

type AlertType string

const (
	AlertSlowProcessing AlertType = "slow_processing"
	AlertHighCost       AlertType = "high_cost"
	AlertLowQuality     AlertType = "low_quality"
	AlertErrorSpike     AlertType = "error_spike"
	AlertQueueBacklog   AlertType = "queue_backlog"
)

type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// PerformanceAlert is derived on each monitoring pass and not persisted.
type PerformanceAlert struct {
	Type      AlertType          `json:"type"`
	Severity  AlertSeverity      `json:"severity"`
	Message   string             `json:"message"`
	Data      map[string]float64 `json:"data,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}
