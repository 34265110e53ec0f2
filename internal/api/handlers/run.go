package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"stagecall/internal/core"
	"stagecall/internal/types"
)

// DispatchRunner executes one dispatch cycle synchronously.
type DispatchRunner interface {
	RunOnce(ctx context.Context, orgID string) (*types.DispatchReport, error)
}

// SyncRunner executes one recompute pass synchronously.
type SyncRunner interface {
	SyncOrganization(ctx context.Context, orgID string) (*types.SyncReport, error)
}

// RunHandler serves the internal run endpoints used by EventBridge-driven
// invokers and by operators debugging a stuck organization. These routes
// bypass the queue and run the cycle in-request, so the registrar guards
// them with the scheduler run token rather than the admin key.
type RunHandler struct {
	dispatcher DispatchRunner
	builder    SyncRunner
	logger     *slog.Logger
}

// NewRunHandler wires the internal run routes.
func NewRunHandler(dispatcher DispatchRunner, builder SyncRunner, logger *slog.Logger) *RunHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunHandler{
		dispatcher: dispatcher,
		builder:    builder,
		logger:     logger,
	}
}

// RegisterRoutes mounts the run routes. The runToken middleware is applied
// here so the rest of the v1 tree stays on the admin key.
func (h *RunHandler) RegisterRoutes(runToken types.SecretString) func(r chi.Router) {
	return func(r chi.Router) {
		r.Route("/internal/run", func(r chi.Router) {
			r.Use(core.BearerAuth(runToken))
			r.Post("/dispatch/{orgID}", h.RunDispatch)
			r.Post("/sync/{orgID}", h.RunSync)
		})
	}
}

// RunDispatch runs one dispatch cycle for the organization and returns
// its report. A cycle-level failure (listing due jobs) is a 500; per-job
// failures are isolated and reflected in the report counters.
func (h *RunHandler) RunDispatch(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")

	report, err := h.dispatcher.RunOnce(r.Context(), orgID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: report})
}

// RunSync runs one recompute pass for the organization and returns the
// full sync report, including the skip-reason breakdown.
func (h *RunHandler) RunSync(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")

	report, err := h.builder.SyncOrganization(r.Context(), orgID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: report})
}
