package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"videogen-server/internal/core"
	"videogen-server/internal/domain"
)

type videoGenerateRequest struct {
	Prompt    string   `json:"prompt" validate:"required"`
	ImageURLs []string `json:"image_urls" validate:"omitempty,max=4,dive,url"`
	Seed      *int64   `json:"seed"`
}

type jobResponse struct {
	JobID           string `json:"job_id"`
	Status          string `json:"status"`
	CreditsReserved int    `json:"credits_reserved"`
}

// VideosGenerate accepts a generation request and returns the job reference.
// The caller never blocks on completion.
func (a *App) VideosGenerate(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req videoGenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if err := a.Validate.Struct(req); err != nil {
		a.error(w, http.StatusUnprocessableEntity, "invalid_prompt", "prompt is required and image references must be valid URLs")
		return
	}

	job, err := a.Orchestrator.Submit(r.Context(), core.SubmitInput{
		UserID:    userID,
		Prompt:    req.Prompt,
		ImageURLs: req.ImageURLs,
		Seed:      req.Seed,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidPrompt):
			a.error(w, http.StatusUnprocessableEntity, "invalid_prompt", "the prompt is empty, too long, or has malformed image references")
		case errors.Is(err, domain.ErrInsufficientCredits):
			a.error(w, http.StatusPaymentRequired, "insufficient_credits", "not enough credits; please top up")
		case errors.Is(err, domain.ErrTranslationFailed):
			a.error(w, http.StatusBadGateway, "translation_failed", "prompt translation is temporarily unavailable; please try again")
		case errors.Is(err, domain.ErrNotFound):
			a.error(w, http.StatusNotFound, "not_found", "unknown user")
		default:
			a.Logger.Error().Err(err).Str("user_id", userID).Msg("handlers: submit failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to submit generation request")
		}
		return
	}

	a.json(w, http.StatusAccepted, jobResponse{
		JobID:           job.ID,
		Status:          string(job.Status),
		CreditsReserved: job.CreditsReserved,
	})
}

// VideoStatus returns the caller's job, failures included; a failed job's
// message already notes whether the refund was settled.
func (a *App) VideoStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := a.loadOwnJob(w, r)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, jobDetail(job))
}

// VideoRefresh polls the provider for this job right now instead of waiting
// for the next scheduled sweep.
func (a *App) VideoRefresh(w http.ResponseWriter, r *http.Request) {
	job, ok := a.loadOwnJob(w, r)
	if !ok {
		return
	}
	refreshed, err := a.Orchestrator.RefreshJob(r.Context(), job.ID)
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("handlers: refresh failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to refresh job")
		return
	}
	a.json(w, http.StatusOK, jobDetail(refreshed))
}

// VideosList returns the caller's jobs, newest first.
func (a *App) VideosList(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	limit := queryInt(r, "limit", 20, 100)
	offset := queryInt(r, "offset", 0, 10000)
	jobs, err := a.Jobs.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("handlers: list jobs failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list jobs")
		return
	}
	items := make([]map[string]any, 0, len(jobs))
	for i := range jobs {
		items = append(items, jobDetail(&jobs[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func (a *App) loadOwnJob(w http.ResponseWriter, r *http.Request) (*domain.Job, bool) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return nil, false
	}
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return nil, false
	}
	job, err := a.Jobs.GetByID(r.Context(), jobID)
	if err != nil || job.UserID != userID {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return nil, false
	}
	return job, true
}

func jobDetail(job *domain.Job) map[string]any {
	detail := map[string]any{
		"id":               job.ID,
		"status":           string(job.Status),
		"prompt":           job.OriginalPrompt,
		"credits_reserved": job.CreditsReserved,
		"created_at":       job.CreatedAt,
		"updated_at":       job.UpdatedAt,
	}
	if job.ResultURL != "" {
		detail["result_url"] = job.ResultURL
	}
	if job.ErrorMessage != "" {
		detail["error_message"] = job.ErrorMessage
	}
	if job.CompletedAt != nil {
		detail["completed_at"] = job.CompletedAt
	}
	return detail
}

func queryInt(r *http.Request, key string, fallback, max int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	if n > max {
		return max
	}
	return n
}
