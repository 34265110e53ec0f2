package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"stagecall/internal/core"
	"stagecall/internal/scheduler"
	"stagecall/internal/types"
)

// SettingsStore reads and writes the per-organization scheduler settings.
type SettingsStore interface {
	GetOrCreate(ctx context.Context, orgID string) (*types.SchedulerSettings, error)
	Update(ctx context.Context, s *types.SchedulerSettings) error
}

// SyncEnqueuer queues an asynchronous recompute pass for an organization.
type SyncEnqueuer interface {
	TriggerSync(ctx context.Context, orgID, reason string) error
}

// HeartbeatReader loads the most recent dispatch heartbeat.
type HeartbeatReader interface {
	Get(ctx context.Context, orgID string) (*types.Heartbeat, error)
}

// SyncHandler serves settings, the recompute trigger, and the delivery
// health traffic light.
type SyncHandler struct {
	settings  SettingsStore
	enqueuer  SyncEnqueuer
	heartbeat HeartbeatReader
	validator *core.Validator
	clock     types.Clock
	logger    *slog.Logger
}

// NewSyncHandler wires the sync and settings routes.
func NewSyncHandler(settings SettingsStore, enqueuer SyncEnqueuer, heartbeat HeartbeatReader, v *core.Validator, clock types.Clock, logger *slog.Logger) *SyncHandler {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncHandler{
		settings:  settings,
		enqueuer:  enqueuer,
		heartbeat: heartbeat,
		validator: v,
		clock:     clock,
		logger:    logger,
	}
}

// RegisterRoutes mounts the settings, sync, and health routes under
// /orgs/{orgID}.
func (h *SyncHandler) RegisterRoutes(r chi.Router) {
	r.Route("/orgs/{orgID}", func(r chi.Router) {
		r.Get("/settings", h.GetSettings)
		r.Put("/settings", h.PutSettings)
		r.Post("/sync", h.TriggerSync)
		r.Get("/delivery-health", h.DeliveryHealth)
	})
}

// GetSettings returns the organization's scheduler settings, creating the
// default row on first access.
func (h *SyncHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")

	settings, err := h.settings.GetOrCreate(r.Context(), orgID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: settings})
}

// typeSettingsPayload mirrors types.TypeSettings with validation tags.
type typeSettingsPayload struct {
	Enabled  bool   `json:"enabled"`
	LeadDays int    `json:"lead_days" validate:"min=0,max=365"`
	SendTime string `json:"send_time" validate:"required"`
}

type putSettingsRequest struct {
	Enabled       bool                `json:"enabled"`
	Init          typeSettingsPayload `json:"init"`
	TechReminder  typeSettingsPayload `json:"tech_reminder"`
	ShiftReminder typeSettingsPayload `json:"shift_reminder"`
}

// PutSettings replaces the organization's scheduler settings and queues a
// recompute pass so existing jobs pick up the new lead days and send
// times. The queue failure is logged but does not fail the settings
// write; the next scheduled pass applies them anyway.
func (h *SyncHandler) PutSettings(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")

	var req putSettingsRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	settings := &types.SchedulerSettings{
		OrganizationID: orgID,
		Enabled:        req.Enabled,
	}
	for _, conv := range []struct {
		in  typeSettingsPayload
		out *types.TypeSettings
	}{
		{req.Init, &settings.Init},
		{req.TechReminder, &settings.TechReminder},
		{req.ShiftReminder, &settings.ShiftReminder},
	} {
		sendTime, err := types.ParseTimeOfDay(conv.in.SendTime)
		if err != nil {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeValidationInvalidPayload,
				err.Error(),
				err,
			))
			return
		}
		*conv.out = types.TypeSettings{
			Enabled:  conv.in.Enabled,
			LeadDays: conv.in.LeadDays,
			SendTime: sendTime,
		}
	}

	if err := h.settings.Update(r.Context(), settings); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.enqueuer.TriggerSync(r.Context(), orgID, "settings_updated"); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to queue recompute after settings update",
			slog.String("organization_id", orgID),
			slog.Any("error", err),
		)
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: settings})
}

type triggerSyncRequest struct {
	Reason string `json:"reason"`
}

// TriggerSync queues an asynchronous recompute pass. The body is
// optional; an empty reason defaults to "manual".
func (h *SyncHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")

	reason := "manual"
	if r.ContentLength > 0 {
		var req triggerSyncRequest
		if err := core.DecodeJSON(w, r, &req); err != nil {
			core.Error(w, r, err)
			return
		}
		if req.Reason != "" {
			reason = req.Reason
		}
	}

	if err := h.enqueuer.TriggerSync(r.Context(), orgID, reason); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusAccepted, core.APIResponse{Data: map[string]string{
		"organization_id": orgID,
		"reason":          reason,
		"status":          "queued",
	}})
}

// deliveryHealthResponse pairs the traffic-light state with the raw
// heartbeat so operators see counts from the last cycle.
type deliveryHealthResponse struct {
	State     types.HealthState `json:"state"`
	Heartbeat *types.Heartbeat  `json:"heartbeat,omitempty"`
}

// DeliveryHealth derives the traffic-light state from heartbeat age:
// healthy within 15 minutes, degraded within 60, unhealthy beyond that
// or when no cycle has ever run.
func (h *SyncHandler) DeliveryHealth(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")

	hb, err := h.heartbeat.Get(r.Context(), orgID)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundHeartbeat {
			core.JSON(w, r, http.StatusOK, core.APIResponse{Data: deliveryHealthResponse{
				State: types.HealthUnhealthy,
			}})
			return
		}
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: deliveryHealthResponse{
		State:     scheduler.HealthFor(hb, h.clock.Now()),
		Heartbeat: hb,
	}})
}
