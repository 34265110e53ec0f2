// Package conversation owns the WhatsApp thread state machine: the prompt
// service that records what each outbound template expects back, and the
// inbound guard that enforces it before any business handler runs.
package conversation

import (
	"context"
	"log/slog"

	"stagecall/internal/messaging"
	"stagecall/internal/types"
)

// ConversationStore is the persistence surface for thread state.
type ConversationStore interface {
	GetForContact(ctx context.Context, orgID, contactPhone string) (*types.Conversation, error)
	SetExpectedState(ctx context.Context, orgID, contactPhone string, expected types.ExpectedInput, prompt *types.Prompt) error
}

// PromptService sends outbound templates and records the resulting expected
// state on the conversation in the same call. Sending a template without
// going through here breaks the guard: it would have no idea what reply the
// thread is waiting for.
type PromptService struct {
	sender messaging.TemplateSender
	store  ConversationStore
	logger *slog.Logger
}

// NewPromptService creates a PromptService.
func NewPromptService(sender messaging.TemplateSender, store ConversationStore, logger *slog.Logger) *PromptService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PromptService{sender: sender, store: store, logger: logger}
}

// SendPrompt delivers the template and writes the conversation's new expected
// input plus the prompt itself for exact re-send. Returns the provider
// message ID.
func (s *PromptService) SendPrompt(ctx context.Context, orgID, toPhone string, prompt types.Prompt, expected types.ExpectedInput) (string, error) {
	messageID, err := s.sender.SendTemplate(ctx, toPhone, prompt.TemplateID, prompt.Variables)
	if err != nil {
		return "", err
	}

	if err := s.store.SetExpectedState(ctx, orgID, toPhone, expected, &prompt); err != nil {
		// The message already left; failing here would trigger a re-send.
		// Surface the broken state loudly instead.
		s.logger.ErrorContext(ctx, "sent template but failed to record conversation state",
			"organization_id", orgID,
			"to", toPhone,
			"prompt_kind", string(prompt.Kind),
			"error", err,
		)
	}
	return messageID, nil
}
