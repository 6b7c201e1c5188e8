package metrics

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/feedwise/analysis-back/internal/domain"
)

// Aggregate summarizes a set of metric records. All ratios are zero-safe:
// an empty window yields an all-zero aggregate, never a division panic.
type Aggregate struct {
	Count           int     `json:"count"`
	SuccessCount    int     `json:"success_count"`
	FailureCount    int     `json:"failure_count"`
	SuccessRate     float64 `json:"success_rate"`
	TotalTokens     int     `json:"total_tokens"`
	TotalCost       float64 `json:"total_cost"`
	AvgCost         float64 `json:"avg_cost"`
	AvgProcessingMS float64 `json:"avg_processing_ms"`
}

// Percentiles are processing-time quantiles over a window.
type Percentiles struct {
	P50 int64 `json:"p50_ms"`
	P95 int64 `json:"p95_ms"`
	P99 int64 `json:"p99_ms"`
}

// CostAnalysis breaks spend down for the operational surface.
type CostAnalysis struct {
	TotalCost   float64            `json:"total_cost"`
	ByModel     map[string]float64 `json:"by_model"`
	ByStage     map[string]float64 `json:"by_stage"`
	DailyTrend  map[string]float64 `json:"daily_trend"`
	Suggestions []string           `json:"suggestions"`
}

// Collector is the in-process, append-only metric store. Records are immutable
// once added; reads aggregate over a copy taken under the lock.
type Collector struct {
	mu      sync.RWMutex
	records []domain.AnalysisMetric
}

func NewCollector() *Collector {
	return &Collector{records: make([]domain.AnalysisMetric, 0, 256)}
}

func (c *Collector) Record(metric domain.AnalysisMetric) {
	if metric.Timestamp.IsZero() {
		metric.Timestamp = time.Now().UTC()
	}
	c.mu.Lock()
	c.records = append(c.records, metric)
	c.mu.Unlock()
}

func (c *Collector) snapshot(window time.Duration) []domain.AnalysisMetric {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if window <= 0 {
		out := make([]domain.AnalysisMetric, len(c.records))
		copy(out, c.records)
		return out
	}

	cutoff := time.Now().UTC().Add(-window)
	out := make([]domain.AnalysisMetric, 0, len(c.records))
	for _, record := range c.records {
		if record.Timestamp.Before(cutoff) {
			continue
		}
		out = append(out, record)
	}
	return out
}

// Aggregate summarizes all records inside the window; window <= 0 means all.
func (c *Collector) Aggregate(window time.Duration) Aggregate {
	return aggregate(c.snapshot(window))
}

// AggregateByModel groups the window's records per model id.
func (c *Collector) AggregateByModel(window time.Duration) map[string]Aggregate {
	return aggregateBy(c.snapshot(window), func(m domain.AnalysisMetric) string { return m.Model })
}

// AggregateByLanguage groups the window's records per detected language.
func (c *Collector) AggregateByLanguage(window time.Duration) map[string]Aggregate {
	return aggregateBy(c.snapshot(window), func(m domain.AnalysisMetric) string { return m.Language })
}

// AggregateByStage groups the window's records per pipeline stage.
func (c *Collector) AggregateByStage(window time.Duration) map[string]Aggregate {
	return aggregateBy(c.snapshot(window), func(m domain.AnalysisMetric) string { return string(m.Stage) })
}

// Percentiles computes p50/p95/p99 processing time over the window.
func (c *Collector) Percentiles(window time.Duration) Percentiles {
	records := c.snapshot(window)
	if len(records) == 0 {
		return Percentiles{}
	}

	durations := make([]int64, 0, len(records))
	for _, record := range records {
		durations = append(durations, record.ProcessingMS)
	}
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	return Percentiles{
		P50: percentile(durations, 0.50),
		P95: percentile(durations, 0.95),
		P99: percentile(durations, 0.99),
	}
}

// SlowestN returns the n slowest executions in the window, slowest first.
func (c *Collector) SlowestN(window time.Duration, n int) []domain.AnalysisMetric {
	records := c.snapshot(window)
	sort.Slice(records, func(i, j int) bool {
		return records[i].ProcessingMS > records[j].ProcessingMS
	})
	if n > 0 && len(records) > n {
		records = records[:n]
	}
	return records
}

// CostAnalysis breaks down spend in the window and derives suggestions.
func (c *Collector) CostAnalysis(window time.Duration) CostAnalysis {
	records := c.snapshot(window)

	analysis := CostAnalysis{
		ByModel:     make(map[string]float64),
		ByStage:     make(map[string]float64),
		DailyTrend:  make(map[string]float64),
		Suggestions: make([]string, 0),
	}
	for _, record := range records {
		analysis.TotalCost += record.Cost
		analysis.ByModel[record.Model] += record.Cost
		analysis.ByStage[string(record.Stage)] += record.Cost
		analysis.DailyTrend[record.Timestamp.Format("2006-01-02")] += record.Cost
	}

	if analysis.TotalCost > 0 {
		for model, cost := range analysis.ByModel {
			if cost/analysis.TotalCost > 0.6 && len(analysis.ByModel) > 1 {
				analysis.Suggestions = append(analysis.Suggestions,
					fmt.Sprintf("model %s accounts for %.0f%% of spend; consider routing more stages to a cheaper tier",
						model, 100*cost/analysis.TotalCost))
			}
		}
		if preliminaryCost, ok := analysis.ByStage[string(domain.StagePreliminary)]; ok {
			if analysisCost := analysis.ByStage[string(domain.StageAnalysis)]; analysisCost > 0 &&
				preliminaryCost > analysisCost {
				analysis.Suggestions = append(analysis.Suggestions,
					"preliminary stage outspends deep analysis; lower the preliminary model tier")
			}
		}
	}
	sort.Strings(analysis.Suggestions)
	return analysis
}

// DeleteOlderThan drops records past the retention window and reports how
// many were removed.
func (c *Collector) DeleteOlderThan(olderThan time.Duration) int {
	cutoff := time.Now().UTC().Add(-olderThan)

	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.records[:0]
	deleted := 0
	for _, record := range c.records {
		if record.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, record)
	}
	c.records = kept
	return deleted
}

func aggregate(records []domain.AnalysisMetric) Aggregate {
	var out Aggregate
	var totalProcessing int64
	for _, record := range records {
		out.Count++
		if record.Success {
			out.SuccessCount++
		} else {
			out.FailureCount++
		}
		out.TotalTokens += record.TotalTokens
		out.TotalCost += record.Cost
		totalProcessing += record.ProcessingMS
	}
	if out.Count > 0 {
		out.SuccessRate = float64(out.SuccessCount) / float64(out.Count)
		out.AvgCost = out.TotalCost / float64(out.Count)
		out.AvgProcessingMS = float64(totalProcessing) / float64(out.Count)
	}
	return out
}

func aggregateBy(
	records []domain.AnalysisMetric,
	key func(domain.AnalysisMetric) string,
) map[string]Aggregate {
	grouped := make(map[string][]domain.AnalysisMetric)
	for _, record := range records {
		name := key(record)
		if name == "" {
			name = "unknown"
		}
		grouped[name] = append(grouped[name], record)
	}

	out := make(map[string]Aggregate, len(grouped))
	for name, group := range grouped {
		out[name] = aggregate(group)
	}
	return out
}

func percentile(sorted []int64, q float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	index := int(float64(len(sorted)-1) * q)
	return sorted[index]
}
