package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/feedwise/analysis-back/internal/http/middleware"
	"github.com/feedwise/analysis-back/internal/metrics"
	"github.com/feedwise/analysis-back/internal/monitor"
	"github.com/feedwise/analysis-back/internal/repository"
)

var errInvalidPayload = errors.New("invalid payload")

// API bundles the handler dependencies for the operational surface.
type API struct {
	jobs      repository.JobsRepository
	collector *metrics.Collector
	monitor   *monitor.Monitor
	logger    *log.Logger
}

func NewAPI(
	jobs repository.JobsRepository,
	collector *metrics.Collector,
	perfMonitor *monitor.Monitor,
	logger *log.Logger,
) *API {
	return &API{
		jobs:      jobs,
		collector: collector,
		monitor:   perfMonitor,
		logger:    logger,
	}
}

type errorPayload struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func writeJSON(w http.ResponseWriter, statusCode int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	payload := errorPayload{RequestID: middleware.GetRequestID(r.Context())}
	payload.Error.Code = code
	payload.Error.Message = message
	writeJSON(w, statusCode, payload)
}

func decodeJSON(r *http.Request, value any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(value); err != nil {
		return errInvalidPayload
	}
	return nil
}
