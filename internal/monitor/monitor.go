package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/feedwise/analysis-back/internal/domain"
	"github.com/feedwise/analysis-back/internal/metrics"
)

const (
	historySize = 30
	trendBand   = 0.05
)

// Thresholds define where the monitor starts raising alerts. A value at twice
// its threshold escalates from warning to critical.
type Thresholds struct {
	MaxProcessingMS float64
	MaxCost         float64
	MaxErrorRate    float64
	MaxBacklog      int
}

type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDegrading Trend = "degrading"
)

// Report is one monitoring pass: current aggregates, derived alerts and the
// trends against the rolling history.
type Report struct {
	Aggregate   metrics.Aggregate         `json:"aggregate"`
	Percentiles metrics.Percentiles       `json:"percentiles"`
	Queue       domain.QueueStatus        `json:"queue"`
	Alerts      []domain.PerformanceAlert `json:"alerts"`
	Trends      map[string]Trend          `json:"trends"`
	GeneratedAt time.Time                 `json:"generated_at"`
}

type snapshot struct {
	avgProcessingMS float64
	avgCost         float64
	errorRate       float64
	takenAt         time.Time
}

// QueueReader is the slice of the job store the monitor needs.
type QueueReader interface {
	Status(ctx context.Context) (domain.QueueStatus, error)
}

// Monitor derives operational alerts from the metric collector and the queue
// state. Alerts are recomputed on every pass and never persisted.
type Monitor struct {
	collector  *metrics.Collector
	queue      QueueReader
	thresholds Thresholds

	mu      sync.Mutex
	history []snapshot
}

func NewMonitor(collector *metrics.Collector, queue QueueReader, thresholds Thresholds) *Monitor {
	if thresholds.MaxProcessingMS <= 0 {
		thresholds.MaxProcessingMS = 30000
	}
	if thresholds.MaxCost <= 0 {
		thresholds.MaxCost = 0.05
	}
	if thresholds.MaxErrorRate <= 0 {
		thresholds.MaxErrorRate = 0.1
	}
	if thresholds.MaxBacklog <= 0 {
		thresholds.MaxBacklog = 100
	}
	return &Monitor{
		collector:  collector,
		queue:      queue,
		thresholds: thresholds,
		history:    make([]snapshot, 0, historySize),
	}
}

// Check runs one monitoring pass over the given metric window.
func (m *Monitor) Check(ctx context.Context, window time.Duration) (Report, error) {
	aggregate := m.collector.Aggregate(window)
	percentiles := m.collector.Percentiles(window)

	queue, err := m.queue.Status(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("read queue status: %w", err)
	}

	now := time.Now().UTC()
	report := Report{
		Aggregate:   aggregate,
		Percentiles: percentiles,
		Queue:       queue,
		Alerts:      m.deriveAlerts(aggregate, queue, now),
		GeneratedAt: now,
	}

	errorRate := 0.0
	if aggregate.Count > 0 {
		errorRate = 1 - aggregate.SuccessRate
	}
	report.Trends = m.recordAndTrend(snapshot{
		avgProcessingMS: aggregate.AvgProcessingMS,
		avgCost:         aggregate.AvgCost,
		errorRate:       errorRate,
		takenAt:         now,
	})
	return report, nil
}

func (m *Monitor) deriveAlerts(
	aggregate metrics.Aggregate,
	queue domain.QueueStatus,
	now time.Time,
) []domain.PerformanceAlert {
	alerts := make([]domain.PerformanceAlert, 0)

	if aggregate.Count > 0 {
		if aggregate.AvgProcessingMS > m.thresholds.MaxProcessingMS {
			alerts = append(alerts, m.alert(
				domain.AlertSlowProcessing,
				aggregate.AvgProcessingMS, m.thresholds.MaxProcessingMS,
				fmt.Sprintf("average processing time %.0fms exceeds %.0fms", aggregate.AvgProcessingMS, m.thresholds.MaxProcessingMS),
				map[string]float64{"avg_processing_ms": aggregate.AvgProcessingMS},
				now,
			))
		}
		if aggregate.AvgCost > m.thresholds.MaxCost {
			alerts = append(alerts, m.alert(
				domain.AlertHighCost,
				aggregate.AvgCost, m.thresholds.MaxCost,
				fmt.Sprintf("average cost per execution %.4f exceeds %.4f", aggregate.AvgCost, m.thresholds.MaxCost),
				map[string]float64{"avg_cost": aggregate.AvgCost},
				now,
			))
		}
		errorRate := 1 - aggregate.SuccessRate
		if errorRate > m.thresholds.MaxErrorRate {
			alerts = append(alerts, m.alert(
				domain.AlertErrorSpike,
				errorRate, m.thresholds.MaxErrorRate,
				fmt.Sprintf("error rate %.0f%% exceeds %.0f%%", 100*errorRate, 100*m.thresholds.MaxErrorRate),
				map[string]float64{"error_rate": errorRate},
				now,
			))
		}
	}

	if queue.Pending > m.thresholds.MaxBacklog {
		alerts = append(alerts, m.alert(
			domain.AlertQueueBacklog,
			float64(queue.Pending), float64(m.thresholds.MaxBacklog),
			fmt.Sprintf("%d pending jobs exceed backlog threshold %d", queue.Pending, m.thresholds.MaxBacklog),
			map[string]float64{"pending": float64(queue.Pending)},
			now,
		))
	}
	return alerts
}

func (m *Monitor) alert(
	alertType domain.AlertType,
	value float64,
	threshold float64,
	message string,
	data map[string]float64,
	now time.Time,
) domain.PerformanceAlert {
	severity := domain.SeverityWarning
	if threshold > 0 && value >= 2*threshold {
		severity = domain.SeverityCritical
	}
	return domain.PerformanceAlert{
		Type:      alertType,
		Severity:  severity,
		Message:   message + "; " + Recommendation(alertType),
		Data:      data,
		Timestamp: now,
	}
}

// Recommendation maps an alert type to its operator guidance.
func Recommendation(alertType domain.AlertType) string {
	switch alertType {
	case domain.AlertSlowProcessing:
		return "check provider latency or lower the model tier for large articles"
	case domain.AlertHighCost:
		return "route more stages to a cheaper model or tighten input truncation"
	case domain.AlertErrorSpike:
		return "inspect recent error messages and provider status before retrying failed jobs"
	case domain.AlertQueueBacklog:
		return "raise worker concurrency or pause ingestion until the queue drains"
	case domain.AlertLowQuality:
		return "review validator rejections and adjust prompts for the affected model"
	default:
		return "inspect recent metrics"
	}
}

func (m *Monitor) recordAndTrend(current snapshot) map[string]Trend {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.history = append(m.history, current)
	if len(m.history) > historySize {
		m.history = m.history[len(m.history)-historySize:]
	}

	oldest := m.history[0]
	newest := m.history[len(m.history)-1]
	return map[string]Trend{
		"processing_time": trendOf(oldest.avgProcessingMS, newest.avgProcessingMS),
		"cost":            trendOf(oldest.avgCost, newest.avgCost),
		"error_rate":      trendOf(oldest.errorRate, newest.errorRate),
	}
}

// trendOf compares oldest vs newest: lower is better for every tracked
// dimension, and moves within the 5% band count as stable.
func trendOf(oldest, newest float64) Trend {
	if oldest == 0 {
		if newest == 0 {
			return TrendStable
		}
		return TrendDegrading
	}
	change := (newest - oldest) / oldest
	switch {
	case change > trendBand:
		return TrendDegrading
	case change < -trendBand:
		return TrendImproving
	default:
		return TrendStable
	}
}
