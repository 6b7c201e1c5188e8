package domain

import "time"

type AnalysisKind string

const (
	KindSummary   AnalysisKind = "summary"
	KindKeywords  AnalysisKind = "keywords"
	KindCategory  AnalysisKind = "category"
	KindSentiment AnalysisKind = "sentiment"
	KindAll       AnalysisKind = "all"
)

// ValidKind reports whether the kind is one the pipeline can execute.
func ValidKind(kind AnalysisKind) bool {
	switch kind {
	case KindSummary, KindKeywords, KindCategory, KindSentiment, KindAll:
		return true
	default:
		return false
	}
}

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// AnalysisJob is the canonical unit of enrichment work for one article.
// At most one job per (article, kind) may be pending or processing at a time.
type AnalysisJob struct {
	ID           string
	ArticleID    string
	Kind         AnalysisKind
	Priority     int
	Status       JobStatus
	RetryCount   int
	NextRetryAt  *time.Time
	Provider     string
	Model        string
	TokensUsed   int
	Cost         float64
	ErrorMessage string
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// IsTerminal reports whether the job reached a final state.
func (j *AnalysisJob) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// JobOutcome carries the billable result of a finished execution.
type JobOutcome struct {
	Provider      string
	Model         string
	TokensUsed    int
	Cost          float64
	PartialErrors []string
}

// QueueStatus is a point-in-time count per job state.
type QueueStatus struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// JobFilter narrows job listings on the operational surface.
type JobFilter struct {
	Status   JobStatus
	Kind     AnalysisKind
	Page     int
	PageSize int
}
