package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/feedwise/analysis-back/internal/domain"
	"github.com/feedwise/analysis-back/internal/repository"
)

type enqueueRequest struct {
	ArticleID string `json:"article_id"`
	Kind      string `json:"kind"`
	Priority  int    `json:"priority,omitempty"`
}

type batchEnqueueRequest struct {
	Items []enqueueRequest `json:"items"`
}

type retryFailedRequest struct {
	Limit int `json:"limit,omitempty"`
}

// Jobs serves the collection endpoint: GET lists with filters, POST enqueues
// one job.
func (api *API) Jobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		api.listJobs(w, r)
	case http.MethodPost:
		api.enqueueJob(w, r)
	default:
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

// JobByID routes /v1/jobs/{id} plus the batch and retry-failed actions that
// share the path prefix.
func (api *API) JobByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, "/v1/jobs/"))
	switch rest {
	case "batch":
		api.enqueueBatch(w, r)
		return
	case "retry-failed":
		api.retryFailed(w, r)
		return
	}

	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	if rest == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "job id is required")
		return
	}

	job, err := api.jobs.GetJob(r.Context(), rest)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "not_found", "job not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to load job")
		return
	}
	writeJSON(w, http.StatusOK, jobResponse(*job))
}

func (api *API) listJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := domain.JobFilter{
		Status:   domain.JobStatus(strings.TrimSpace(query.Get("status"))),
		Kind:     domain.AnalysisKind(strings.TrimSpace(query.Get("kind"))),
		Page:     parseIntDefault(query.Get("page"), 1),
		PageSize: parseIntDefault(query.Get("page_size"), 20),
	}
	if filter.Kind != "" && !domain.ValidKind(filter.Kind) {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "unknown kind "+string(filter.Kind))
		return
	}

	jobs, total, err := api.jobs.ListJobs(r.Context(), filter)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to list jobs")
		return
	}

	items := make([]map[string]any, 0, len(jobs))
	for _, job := range jobs {
		items = append(items, jobResponse(job))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":      items,
		"total":     total,
		"page":      filter.Page,
		"page_size": filter.PageSize,
	})
}

func (api *API) enqueueJob(w http.ResponseWriter, r *http.Request) {
	var request enqueueRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid payload")
		return
	}
	if err := validateEnqueue(request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	job, created, err := api.jobs.Enqueue(
		r.Context(),
		strings.TrimSpace(request.ArticleID),
		domain.AnalysisKind(request.Kind),
		request.Priority,
	)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to enqueue job")
		return
	}
	if !created {
		writeJSON(w, http.StatusOK, map[string]any{"created": false})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"created": true,
		"job":     jobResponse(*job),
	})
}

func (api *API) enqueueBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	var request batchEnqueueRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid payload")
		return
	}
	if len(request.Items) == 0 || len(request.Items) > 500 {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "items must contain between 1 and 500 entries")
		return
	}

	items := make([]repository.EnqueueItem, 0, len(request.Items))
	for _, item := range request.Items {
		if err := validateEnqueue(item); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		items = append(items, repository.EnqueueItem{
			ArticleID: strings.TrimSpace(item.ArticleID),
			Kind:      domain.AnalysisKind(item.Kind),
			Priority:  item.Priority,
		})
	}

	created, err := api.jobs.EnqueueBatch(r.Context(), items)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to enqueue batch")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"requested": len(items),
		"created":   created,
	})
}

func (api *API) retryFailed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	request := retryFailedRequest{Limit: 50}
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &request); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid payload")
			return
		}
	}

	reset, err := api.jobs.RetryFailed(r.Context(), request.Limit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to retry jobs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reset": reset})
}

func validateEnqueue(request enqueueRequest) error {
	if strings.TrimSpace(request.ArticleID) == "" {
		return errors.New("article_id is required")
	}
	if !domain.ValidKind(domain.AnalysisKind(request.Kind)) {
		return errors.New("unknown kind " + request.Kind)
	}
	return nil
}

func jobResponse(job domain.AnalysisJob) map[string]any {
	response := map[string]any{
		"job_id":      job.ID,
		"article_id":  job.ArticleID,
		"kind":        job.Kind,
		"priority":    job.Priority,
		"status":      job.Status,
		"retry_count": job.RetryCount,
		"created_at":  job.CreatedAt,
	}
	if job.NextRetryAt != nil {
		response["next_retry_at"] = job.NextRetryAt
	}
	if job.StartedAt != nil {
		response["started_at"] = job.StartedAt
	}
	if job.CompletedAt != nil {
		response["completed_at"] = job.CompletedAt
	}
	if job.Provider != "" {
		response["provider"] = job.Provider
		response["model"] = job.Model
		response["tokens_used"] = job.TokensUsed
		response["cost"] = job.Cost
	}
	if strings.TrimSpace(job.ErrorMessage) != "" {
		response["error"] = map[string]any{
			"code":    "processing_error",
			"message": job.ErrorMessage,
		}
	}
	return response
}

func parseIntDefault(value string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
