package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"stagecall/internal/conversation"
	"stagecall/internal/core"
	"stagecall/internal/types"
)

// InboundGuard screens an inbound message against the conversation's
// expected-input state before any business handler runs.
type InboundGuard interface {
	HandleInbound(ctx context.Context, orgID string, msg *types.InboundMessage) (*conversation.GuardResult, error)
}

// InboundProcessor receives messages the guard passed through. The guard
// result carries the synthesized contact phone when the conversation was
// waiting for a contact share.
type InboundProcessor interface {
	Process(ctx context.Context, orgID string, msg *types.InboundMessage, result *conversation.GuardResult) error
}

// WebhookHandler receives inbound WhatsApp messages from the provider.
type WebhookHandler struct {
	guard     InboundGuard
	processor InboundProcessor
	logger    *slog.Logger
}

// NewWebhookHandler wires the inbound webhook route. The processor may be
// nil when no downstream handling is configured; passed messages are then
// acknowledged and dropped.
func NewWebhookHandler(guard InboundGuard, processor InboundProcessor, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{
		guard:     guard,
		processor: processor,
		logger:    logger,
	}
}

// RegisterRoutes mounts the webhook route. The provider authenticates via
// the admin-key-guarded group configured by main; the route itself only
// validates payload shape.
func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/whatsapp/{orgID}", h.HandleInbound)
}

type webhookResponse struct {
	Action       conversation.GuardAction `json:"action"`
	ContactPhone string                   `json:"contact_phone,omitempty"`
}

// HandleInbound runs the guard on one inbound message. The webhook is
// always acknowledged with 200 once the guard has run, even when the
// message was rejected or absorbed; the provider must not retry what was
// handled. Downstream processor failures are logged, not surfaced.
func (h *WebhookHandler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")

	var msg types.InboundMessage
	if err := core.DecodeJSON(w, r, &msg); err != nil {
		core.Error(w, r, err)
		return
	}
	if msg.From == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"from is required",
			nil,
		))
		return
	}

	result, err := h.guard.HandleInbound(r.Context(), orgID, &msg)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if result.Action == conversation.ActionPass && h.processor != nil {
		if err := h.processor.Process(r.Context(), orgID, &msg, result); err != nil {
			h.logger.ErrorContext(r.Context(), "inbound processor failed",
				slog.String("organization_id", orgID),
				slog.String("from", msg.From),
				slog.Any("error", err),
			)
		}
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: webhookResponse{
		Action:       result.Action,
		ContactPhone: result.ContactPhone,
	}})
}
