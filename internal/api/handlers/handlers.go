package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/saveplus/saveplus/internal/api/middleware"
	"github.com/saveplus/saveplus/internal/bigquery"
	"github.com/saveplus/saveplus/internal/domain"
	"github.com/saveplus/saveplus/internal/jobs"
)

// userRequest is the body of the per-user job endpoints.
type userRequest struct {
	UserID string `json:"user_id"`
}

// requireUserID reads user_id from the query string.
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "user_id is required")
		return "", false
	}
	return userID, true
}

// SubscriptionsHandler handles subscription endpoints.
type SubscriptionsHandler struct {
	repo      bigquery.SubscriptionRepository
	publisher jobs.Publisher
	log       zerolog.Logger
}

// NewSubscriptionsHandler creates a new subscriptions handler.
func NewSubscriptionsHandler(repo bigquery.SubscriptionRepository, publisher jobs.Publisher, log zerolog.Logger) *SubscriptionsHandler {
	return &SubscriptionsHandler{
		repo:      repo,
		publisher: publisher,
		log:       log,
	}
}

// ListSubscriptions handles GET /api/subscriptions?user_id=
func (h *SubscriptionsHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	subs, err := h.repo.ListSubscriptions(r.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to list subscriptions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list subscriptions")
		return
	}
	if subs == nil {
		subs = []*bigquery.SubscriptionRow{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"subscriptions": subs,
		"count":         len(subs),
	})
}

// SetStatus handles PUT /api/subscriptions/{id}/status
func (h *SubscriptionsHandler) SetStatus(w http.ResponseWriter, r *http.Request, subscriptionID string) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	switch domain.SubscriptionStatus(req.Status) {
	case domain.StatusDetected, domain.StatusConfirmed, domain.StatusCancelled:
	default:
		middleware.WriteError(w, http.StatusBadRequest, "status must be detected, confirmed or cancelled")
		return
	}

	err := h.repo.SetStatus(r.Context(), subscriptionID, req.Status)
	if errors.Is(err, bigquery.ErrNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Subscription not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("subscription_id", subscriptionID).Msg("Failed to set subscription status")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to update subscription")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"subscription_id": subscriptionID,
		"status":          req.Status,
	})
}

// EnqueueDetection handles POST /api/subscriptions/detect
func (h *SubscriptionsHandler) EnqueueDetection(w http.ResponseWriter, r *http.Request) {
	h.enqueue(w, r, jobs.JobTypeDetectSubscriptions)
}

// EnqueueZombieScoring handles POST /api/subscriptions/zombie-score
func (h *SubscriptionsHandler) EnqueueZombieScoring(w http.ResponseWriter, r *http.Request) {
	h.enqueue(w, r, jobs.JobTypeScoreZombies)
}

func (h *SubscriptionsHandler) enqueue(w http.ResponseWriter, r *http.Request, jobType jobs.JobType) {
	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	job := &jobs.UserJob{UserID: req.UserID, Type: jobType}
	if err := h.publisher.Publish(r.Context(), job); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, jobs.ErrQueueClosed) {
			status = http.StatusServiceUnavailable
		}
		h.log.Error().Err(err).Str("user_id", req.UserID).Str("job_type", string(jobType)).Msg("Failed to enqueue job")
		middleware.WriteError(w, status, "Failed to enqueue job")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Str("user_id", req.UserID).Str("job_type", string(jobType)).Msg("Job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id":  job.JobID,
		"user_id": job.UserID,
		"type":    string(job.Type),
		"status":  string(job.Status),
	})
}

// NudgesHandler handles nudge endpoints.
type NudgesHandler struct {
	repo bigquery.NudgeRepository
	log  zerolog.Logger
}

// NewNudgesHandler creates a new nudges handler.
func NewNudgesHandler(repo bigquery.NudgeRepository, log zerolog.Logger) *NudgesHandler {
	return &NudgesHandler{repo: repo, log: log}
}

// ListNudges handles GET /api/nudges?user_id=
func (h *NudgesHandler) ListNudges(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	nudges, err := h.repo.ListNudges(r.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to list nudges")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list nudges")
		return
	}
	if nudges == nil {
		nudges = []*bigquery.NudgeRow{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"nudges": nudges,
		"count":  len(nudges),
	})
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.store.GetJob(r.Context(), jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		UserID: query.Get("user_id"),
		Status: jobs.JobStatus(query.Get("status")),
	}

	if t := query.Get("type"); t != "" {
		jobType, ok := jobs.ParseJobType(t)
		if !ok {
			middleware.WriteError(w, http.StatusBadRequest, "Unknown job type")
			return
		}
		filter.Type = jobType
	}
	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}
	if jobsList == nil {
		jobsList = []*jobs.UserJob{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}
