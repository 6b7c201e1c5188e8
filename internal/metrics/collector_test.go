package metrics

import (
	"testing"
	"time"

	"github.com/feedwise/analysis-back/internal/domain"
)

func record(model, language string, stage domain.AnalysisStage, cost float64, processingMS int64, success bool) domain.AnalysisMetric {
	return domain.AnalysisMetric{
		ArticleID:    "article",
		Stage:        stage,
		Model:        model,
		Language:     language,
		ProcessingMS: processingMS,
		TotalTokens:  100,
		Cost:         cost,
		Success:      success,
		Timestamp:    time.Now().UTC(),
	}
}

func TestAggregateIsZeroSafeOnEmptyWindow(t *testing.T) {
	collector := NewCollector()

	got := collector.Aggregate(time.Hour)
	if got.Count != 0 || got.SuccessRate != 0 || got.AvgCost != 0 || got.AvgProcessingMS != 0 {
		t.Fatalf("empty aggregate not zero: %+v", got)
	}
	if p := collector.Percentiles(time.Hour); p.P50 != 0 || p.P99 != 0 {
		t.Fatalf("empty percentiles not zero: %+v", p)
	}
}

func TestAggregateTotalsAndAverages(t *testing.T) {
	collector := NewCollector()
	collector.Record(record("gpt-4.1-mini", "en", domain.StageAnalysis, 0.01, 100, true))
	collector.Record(record("gpt-4.1-mini", "en", domain.StageAnalysis, 0.02, 200, true))
	collector.Record(record("gpt-4.1-mini", "zh", domain.StageAnalysis, 0.03, 300, false))

	got := collector.Aggregate(0)
	if got.Count != 3 || got.SuccessCount != 2 || got.FailureCount != 1 {
		t.Fatalf("unexpected counts: %+v", got)
	}
	if diff := got.TotalCost - 0.06; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("total cost = %v, want 0.06", got.TotalCost)
	}
	if diff := got.AvgCost - 0.02; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("avg cost = %v, want 0.02", got.AvgCost)
	}
	if got.AvgProcessingMS != 200 {
		t.Errorf("avg processing = %v, want 200", got.AvgProcessingMS)
	}
	if diff := got.SuccessRate - 2.0/3.0; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("success rate = %v", got.SuccessRate)
	}
}

func TestAggregateByGroupsRecords(t *testing.T) {
	collector := NewCollector()
	collector.Record(record("gpt-4.1-mini", "en", domain.StageAnalysis, 0.01, 100, true))
	collector.Record(record("qwen-plus", "zh", domain.StagePreliminary, 0.02, 50, true))
	collector.Record(record("qwen-plus", "zh", domain.StageAnalysis, 0.04, 150, false))

	byModel := collector.AggregateByModel(0)
	if byModel["gpt-4.1-mini"].Count != 1 || byModel["qwen-plus"].Count != 2 {
		t.Errorf("unexpected model grouping: %+v", byModel)
	}

	byLanguage := collector.AggregateByLanguage(0)
	if byLanguage["zh"].Count != 2 || byLanguage["en"].Count != 1 {
		t.Errorf("unexpected language grouping: %+v", byLanguage)
	}

	byStage := collector.AggregateByStage(0)
	if byStage[string(domain.StagePreliminary)].Count != 1 || byStage[string(domain.StageAnalysis)].Count != 2 {
		t.Errorf("unexpected stage grouping: %+v", byStage)
	}
}

func TestPercentilesAndSlowest(t *testing.T) {
	collector := NewCollector()
	for _, ms := range []int64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100} {
		collector.Record(record("m", "en", domain.StageAnalysis, 0, ms, true))
	}

	p := collector.Percentiles(0)
	if p.P50 != 50 {
		t.Errorf("p50 = %d, want 50", p.P50)
	}
	if p.P95 < p.P50 || p.P99 < p.P95 {
		t.Errorf("percentiles not monotonic: %+v", p)
	}

	slowest := collector.SlowestN(0, 3)
	if len(slowest) != 3 || slowest[0].ProcessingMS != 100 || slowest[2].ProcessingMS != 80 {
		t.Errorf("unexpected slowest: %+v", slowest)
	}
}

func TestCostAnalysisBreaksDownSpend(t *testing.T) {
	collector := NewCollector()
	collector.Record(record("gpt-4.1-mini", "en", domain.StageAnalysis, 0.08, 100, true))
	collector.Record(record("gpt-4.1-nano", "en", domain.StagePreliminary, 0.01, 20, true))

	analysis := collector.CostAnalysis(0)
	if diff := analysis.TotalCost - 0.09; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("total = %v", analysis.TotalCost)
	}
	if analysis.ByModel["gpt-4.1-mini"] != 0.08 {
		t.Errorf("by model = %+v", analysis.ByModel)
	}
	if analysis.ByStage[string(domain.StagePreliminary)] != 0.01 {
		t.Errorf("by stage = %+v", analysis.ByStage)
	}
	// One model dominating spend should produce a suggestion.
	if len(analysis.Suggestions) == 0 {
		t.Errorf("expected a routing suggestion, got none")
	}
}

func TestDeleteOlderThanDropsOnlyOldRecords(t *testing.T) {
	collector := NewCollector()

	old := record("m", "en", domain.StageAnalysis, 0, 10, true)
	old.Timestamp = time.Now().UTC().Add(-48 * time.Hour)
	collector.Record(old)
	collector.Record(record("m", "en", domain.StageAnalysis, 0, 10, true))

	deleted := collector.DeleteOlderThan(24 * time.Hour)
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}
	if got := collector.Aggregate(0); got.Count != 1 {
		t.Fatalf("remaining count = %d, want 1", got.Count)
	}
}
