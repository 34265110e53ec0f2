// Package handlers contains the HTTP handler implementations for the
// StageCall operator API. Each handler declares the narrow service
// interfaces it depends on and registers its own routes on the v1 router.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"stagecall/internal/core"
	"stagecall/internal/db"
	"stagecall/internal/scheduler"
	"stagecall/internal/types"
)

// JobStore is the data access contract for operator job operations.
// OverrideStatus bypasses the terminal guard; only the explicit status edit
// may call it.
type JobStore interface {
	ListForUI(ctx context.Context, orgID string, filter db.ListFilter) ([]types.MessageJob, error)
	GetByID(ctx context.Context, id int64) (*types.MessageJob, error)
	SetStatus(ctx context.Context, id int64, status types.JobStatus, lastError string) error
	OverrideStatus(ctx context.Context, id int64, status types.JobStatus) error
	SetSendAt(ctx context.Context, id int64, sendAt time.Time) error
	SetEnabled(ctx context.Context, id int64, enabled bool) error
}

// ManualSender triggers an immediate delivery attempt for one job.
type ManualSender interface {
	SendNow(ctx context.Context, jobID int64) (*types.ManualSendResult, error)
}

// JobPurger deletes old terminal jobs after archiving them.
type JobPurger interface {
	PurgeTerminalJobs(ctx context.Context, orgID string, olderThanDays int, confirm bool) (*scheduler.PurgeResult, error)
}

// JobsHandler serves the operator job listing and per-job actions.
type JobsHandler struct {
	jobs      JobStore
	sender    ManualSender
	purger    JobPurger
	validator *core.Validator
	clock     types.Clock
	logger    *slog.Logger
}

// NewJobsHandler wires the job routes. A nil clock defaults to real time.
func NewJobsHandler(jobs JobStore, sender ManualSender, purger JobPurger, v *core.Validator, clock types.Clock, logger *slog.Logger) *JobsHandler {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &JobsHandler{
		jobs:      jobs,
		sender:    sender,
		purger:    purger,
		validator: v,
		clock:     clock,
		logger:    logger,
	}
}

// RegisterRoutes mounts the job routes under /orgs/{orgID}.
func (h *JobsHandler) RegisterRoutes(r chi.Router) {
	r.Route("/orgs/{orgID}/jobs", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/purge", h.Purge)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Patch("/", h.Edit)
			r.Post("/send-now", h.SendNow)
			r.Post("/enabled", h.SetEnabled)
		})
	})
}

// List returns the operator-facing job listing. Query parameters:
//
//	message_type  filter to one type (INIT, TECH_REMINDER, SHIFT_REMINDER)
//	show_sent     include terminal sent rows (default hidden)
//	hide_past     drop unsent rows whose send_at is already behind now
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")

	filter := db.ListFilter{
		ShowSent: r.URL.Query().Get("show_sent") == "true",
		HidePast: r.URL.Query().Get("hide_past") == "true",
		Now:      h.clock.Now(),
	}

	if raw := r.URL.Query().Get("message_type"); raw != "" {
		mt := types.MessageType(raw)
		if !mt.Valid() {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeValidationInvalidType,
				"unknown message type: "+raw,
				nil,
			))
			return
		}
		filter.MessageType = &mt
	}

	jobs, err := h.jobs.ListForUI(r.Context(), orgID, filter)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: jobs})
}

// Get returns one job by ID, scoped to the organization in the path.
func (h *JobsHandler) Get(w http.ResponseWriter, r *http.Request) {
	job, ok := h.loadJob(w, r)
	if !ok {
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: job})
}

// editJobRequest is the PATCH payload. Both fields are optional; at least
// one must be present.
type editJobRequest struct {
	SendAt *time.Time       `json:"send_at"`
	Status *types.JobStatus `json:"status"`
}

// Edit updates a job's send time and/or status.
//
// A new send_at must be in the future. A new status must be one of the
// defined enum values; moving a blocked job back to scheduled keeps its
// attempt count.
//
// A terminal job (sent, failed, skipped) rejects edits with 409, with one
// escape hatch: an explicit status change to a non-terminal value revives
// the row. Nothing in the automatic lifecycle ever does this; it exists so
// an operator can reschedule a job that failed for a reason they have since
// repaired. The status write runs first so a revival can carry a new
// send_at in the same request.
func (h *JobsHandler) Edit(w http.ResponseWriter, r *http.Request) {
	job, ok := h.loadJob(w, r)
	if !ok {
		return
	}

	var req editJobRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if req.SendAt == nil && req.Status == nil {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"at least one of send_at or status is required",
			nil,
		))
		return
	}

	if req.Status != nil && !req.Status.Valid() {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidStatus,
			"unknown job status: "+string(*req.Status),
			nil,
		))
		return
	}
	if req.SendAt != nil && req.SendAt.Before(h.clock.Now()) {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationSendAtPast,
			"send_at must be in the future",
			nil,
		))
		return
	}

	if job.Status.IsTerminal() {
		if req.Status == nil || req.Status.IsTerminal() {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeConflictTerminalJob,
				"job is in a terminal state; only an explicit status change to a non-terminal value can revive it",
				nil,
			))
			return
		}
		if err := h.jobs.OverrideStatus(r.Context(), job.ID, *req.Status); err != nil {
			core.Error(w, r, err)
			return
		}
	} else if req.Status != nil {
		if err := h.jobs.SetStatus(r.Context(), job.ID, *req.Status, ""); err != nil {
			core.Error(w, r, err)
			return
		}
	}

	if req.SendAt != nil {
		if err := h.jobs.SetSendAt(r.Context(), job.ID, req.SendAt.UTC()); err != nil {
			core.Error(w, r, err)
			return
		}
	}

	updated, err := h.jobs.GetByID(r.Context(), job.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: updated})
}

// SendNow triggers an immediate delivery attempt. Expected business
// conditions (already sent, missing recipient, provider failure) come
// back as a structured outcome with 200, not as errors.
func (h *JobsHandler) SendNow(w http.ResponseWriter, r *http.Request) {
	job, ok := h.loadJob(w, r)
	if !ok {
		return
	}

	result, err := h.sender.SendNow(r.Context(), job.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: result})
}

type setEnabledRequest struct {
	Enabled *bool `json:"enabled"`
}

// SetEnabled toggles the per-job enable flag. A disabled job is skipped
// by the builder and the dispatch loop without losing its schedule.
func (h *JobsHandler) SetEnabled(w http.ResponseWriter, r *http.Request) {
	job, ok := h.loadJob(w, r)
	if !ok {
		return
	}

	var req setEnabledRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if req.Enabled == nil {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"enabled is required",
			nil,
		))
		return
	}

	if err := h.jobs.SetEnabled(r.Context(), job.ID, *req.Enabled); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]any{
		"id":      job.ID,
		"enabled": *req.Enabled,
	}})
}

type purgeRequest struct {
	OlderThanDays int  `json:"older_than_days"`
	Confirm       bool `json:"confirm"`
}

// Purge deletes terminal jobs older than the requested age, archiving
// them first. The confirm flag is mandatory; without it the purge service
// rejects the request with a 400.
func (h *JobsHandler) Purge(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")

	var req purgeRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	result, err := h.purger.PurgeTerminalJobs(r.Context(), orgID, req.OlderThanDays, req.Confirm)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: result})
}

// loadJob parses the {id} path parameter, loads the job, and verifies it
// belongs to the organization in the path. Writes the error response and
// returns ok=false on any failure.
func (h *JobsHandler) loadJob(w http.ResponseWriter, r *http.Request) (*types.MessageJob, bool) {
	orgID := chi.URLParam(r, "orgID")

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeNotFoundJob,
			"job not found",
			err,
		))
		return nil, false
	}

	job, err := h.jobs.GetByID(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return nil, false
	}
	if job.OrganizationID != orgID {
		// Cross-organization access reads as not found, never as forbidden.
		core.Error(w, r, types.NewAppError(
			types.ErrCodeNotFoundJob,
			"job not found",
			nil,
		))
		return nil, false
	}
	return job, true
}
