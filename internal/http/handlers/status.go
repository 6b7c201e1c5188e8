package handlers

import (
	"net/http"
	"time"
)

// QueueStatus reports the per-state job counts.
func (api *API) QueueStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	status, err := api.jobs.Status(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to read queue status")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// Performance runs a monitoring pass and returns alerts, trends and the
// window's aggregates. window_hours defaults to 24.
func (api *API) Performance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	windowHours := parseIntDefault(r.URL.Query().Get("window_hours"), 24)
	window := time.Duration(windowHours) * time.Hour

	report, err := api.monitor.Check(r.Context(), window)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to run monitoring pass")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"report":      report,
		"by_model":    api.collector.AggregateByModel(window),
		"by_language": api.collector.AggregateByLanguage(window),
		"by_stage":    api.collector.AggregateByStage(window),
		"cost":        api.collector.CostAnalysis(window),
	})
}
